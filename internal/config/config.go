// Package config provides environment configuration for the API server.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration

	// NATS settings (JetStream KV is the durable store)
	NATSURL      string
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string
	NATSToken    string

	// JWT settings (optional; X-Client-Id header is the fallback identity)
	JWTSecret string

	// LLM settings
	AnthropicAPIKey string
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	DefaultModel    string

	// Pricing for usage estimation, USD per 1M tokens
	CostPerMillionInput  float64
	CostPerMillionOutput float64

	// Turn rate gate (per client, inside the pipeline)
	RateGateWindow time.Duration
	RateGateLimit  int

	// Transport burst limiting (httprate middleware)
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Retrieval augmentation
	RAGEnabled     bool
	RAGTopK        int
	WeaviateHost   string
	WeaviateScheme string
	WeaviateClass  string

	// Wikipedia on-demand retrieval
	WikipediaMaxResults        int
	WikipediaMaxCharsPerResult int

	// Concept cards
	CardGenerateOnMiss bool

	// Logging
	LogLevel string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		// Server
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 180*time.Second),

		// NATS
		NATSURL:      getEnv("NATS_URL", "nats://localhost:4222"),
		NATSCAFile:   getEnv("NATS_CA_FILE", ""),
		NATSCertFile: getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:  getEnv("NATS_KEY_FILE", ""),
		NATSToken:    getEnv("NATS_TOKEN", ""),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", ""),

		// LLM
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:   getEnv("OPENAI_BASE_URL", ""),
		DefaultModel:    getEnv("DEFAULT_MODEL", "deepseek-chat"),

		// Pricing (DeepSeek tier by default)
		CostPerMillionInput:  getFloatEnv("COST_PER_MILLION_INPUT", 0.14),
		CostPerMillionOutput: getFloatEnv("COST_PER_MILLION_OUTPUT", 0.28),

		// Turn rate gate
		RateGateWindow: getDurationEnv("RATE_GATE_WINDOW", 10*time.Minute),
		RateGateLimit:  getIntEnv("RATE_GATE_LIMIT", 20),

		// Transport burst limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		// Retrieval augmentation
		RAGEnabled:     getBoolEnv("RAG_ENABLED", false),
		RAGTopK:        getIntEnv("RAG_TOP_K", 8),
		WeaviateHost:   getEnv("WEAVIATE_HOST", "localhost:8081"),
		WeaviateScheme: getEnv("WEAVIATE_SCHEME", "http"),
		WeaviateClass:  getEnv("WEAVIATE_CLASS", "AstroChunk"),

		// Wikipedia
		WikipediaMaxResults:        getIntEnv("WIKIPEDIA_MAX_RESULTS", 2),
		WikipediaMaxCharsPerResult: getIntEnv("WIKIPEDIA_MAX_CHARS_PER_RESULT", 500),

		// Concept cards
		CardGenerateOnMiss: getBoolEnv("CARD_GENERATE_ON_MISS", false),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
