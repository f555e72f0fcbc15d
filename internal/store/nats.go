package store

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/astroguide/tutoring-platform/internal/model"
	"github.com/astroguide/tutoring-platform/pkg/logger"
)

// KV bucket names.
const (
	bucketConversations = "conversations"
	bucketMessages      = "messages"
	bucketUsage         = "request_usage"
	bucketCards         = "term_cache"
)

// NATSConfig holds NATS connection configuration.
type NATSConfig struct {
	URL      string
	CAFile   string
	CertFile string
	KeyFile  string
	Token    string
}

// NATSStore is a Store backed by NATS JetStream KV buckets.
type NATSStore struct {
	conn          *nats.Conn
	js            jetstream.JetStream
	conversations jetstream.KeyValue
	messages      jetstream.KeyValue
	usage         jetstream.KeyValue
	cards         jetstream.KeyValue
	logger        *logger.Logger
}

// ConnectNATS establishes a connection to NATS and ensures the KV buckets.
func ConnectNATS(ctx context.Context, cfg NATSConfig, log *logger.Logger) (*NATSStore, error) {
	opts := []nats.Option{
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected")
		}),
	}

	if cfg.CAFile != "" && cfg.CertFile != "" && cfg.KeyFile != "" {
		tlsConfig, err := createTLSConfig(cfg.CAFile, cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
		opts = append(opts, nats.Secure(tlsConfig))
	}

	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	s := &NATSStore{conn: nc, js: js, logger: log}

	buckets := []struct {
		name string
		dst  *jetstream.KeyValue
	}{
		{bucketConversations, &s.conversations},
		{bucketMessages, &s.messages},
		{bucketUsage, &s.usage},
		{bucketCards, &s.cards},
	}
	for _, b := range buckets {
		kv, err := ensureBucket(ctx, js, b.name)
		if err != nil {
			nc.Close()
			return nil, err
		}
		*b.dst = kv
	}

	return s, nil
}

func ensureBucket(ctx context.Context, js jetstream.JetStream, name string) (jetstream.KeyValue, error) {
	kv, err := js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:  name,
		Storage: jetstream.FileStorage,
	})
	if err == nil {
		return kv, nil
	}
	kv, lookupErr := js.KeyValue(ctx, name)
	if lookupErr != nil {
		return nil, fmt.Errorf("failed to ensure bucket %s: %w", name, err)
	}
	return kv, nil
}

// Close closes the NATS connection.
func (s *NATSStore) Close() {
	if s.conn != nil {
		s.conn.Close()
	}
}

// IsConnected reports whether the NATS connection is up.
func (s *NATSStore) IsConnected() bool {
	return s.conn != nil && s.conn.IsConnected()
}

func (s *NATSStore) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	var conv model.Conversation
	if err := s.getJSON(ctx, s.conversations, id, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

func (s *NATSStore) SaveConversation(ctx context.Context, conv *model.Conversation) error {
	return s.putJSON(ctx, s.conversations, conv.ID, conv)
}

func (s *NATSStore) UpdateConversation(ctx context.Context, conv *model.Conversation) error {
	if _, err := s.GetConversation(ctx, conv.ID); err != nil {
		return err
	}
	return s.putJSON(ctx, s.conversations, conv.ID, conv)
}

func (s *NATSStore) ListConversations(ctx context.Context, clientID string, limit int) ([]model.Conversation, error) {
	keys, err := s.listKeys(ctx, s.conversations)
	if err != nil {
		return nil, err
	}

	var out []model.Conversation
	for _, key := range keys {
		var conv model.Conversation
		if err := s.getJSON(ctx, s.conversations, key, &conv); err != nil {
			continue
		}
		if conv.ClientID == clientID {
			out = append(out, conv)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// messageKey scopes message keys by conversation so a single prefix scan
// covers one conversation's history.
func messageKey(conversationID, messageID string) string {
	return conversationID + "." + messageID
}

func (s *NATSStore) GetMessage(ctx context.Context, id string) (*model.Message, error) {
	// Messages are keyed by conversation; without it, fall back to a scan.
	keys, err := s.listKeys(ctx, s.messages)
	if err != nil {
		return nil, err
	}
	for _, key := range keys {
		if !strings.HasSuffix(key, "."+id) {
			continue
		}
		var msg model.Message
		if err := s.getJSON(ctx, s.messages, key, &msg); err != nil {
			continue
		}
		if msg.ID == id {
			return &msg, nil
		}
	}
	return nil, ErrNotFound
}

func (s *NATSStore) SaveMessage(ctx context.Context, msg *model.Message) error {
	return s.putJSON(ctx, s.messages, messageKey(msg.ConversationID, msg.ID), msg)
}

func (s *NATSStore) UpdateMessage(ctx context.Context, msg *model.Message) error {
	key := messageKey(msg.ConversationID, msg.ID)
	var existing model.Message
	if err := s.getJSON(ctx, s.messages, key, &existing); err != nil {
		return err
	}
	return s.putJSON(ctx, s.messages, key, msg)
}

func (s *NATSStore) QueryMessages(ctx context.Context, conversationID string, q MessageQuery) ([]model.Message, error) {
	msgs, err := s.conversationMessages(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	var out []model.Message
	for _, msg := range msgs {
		if !q.Before.IsZero() && !msg.CreatedAt.Before(q.Before) {
			continue
		}
		if q.After != nil {
			m := msg
			if !AfterPosition(&m, *q.After) {
				continue
			}
		}
		out = append(out, msg)
	}
	sortMessages(out)
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[len(out)-q.Limit:]
	}
	return out, nil
}

func (s *NATSStore) FindUserMessage(ctx context.Context, conversationID, clientMessageID string) (*model.Message, error) {
	msgs, err := s.conversationMessages(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	for _, msg := range msgs {
		if msg.Role == model.RoleUser && msg.ClientMessageID == clientMessageID {
			out := msg
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (s *NATSStore) SaveUsage(ctx context.Context, usage *model.RequestUsage) error {
	return s.putJSON(ctx, s.usage, usage.ID, usage)
}

// cardKey maps a card cache key (type:identifier:lang) onto the KV key
// charset, which does not allow colons.
func cardKey(cacheKey string) string {
	return strings.ReplaceAll(cacheKey, ":", ".")
}

func (s *NATSStore) GetCard(ctx context.Context, cacheKey string) (*model.ConceptCard, error) {
	var card model.ConceptCard
	if err := s.getJSON(ctx, s.cards, cardKey(cacheKey), &card); err != nil {
		return nil, err
	}
	return &card, nil
}

func (s *NATSStore) PutCard(ctx context.Context, cacheKey string, card *model.ConceptCard) error {
	return s.putJSON(ctx, s.cards, cardKey(cacheKey), card)
}

func (s *NATSStore) conversationMessages(ctx context.Context, conversationID string) ([]model.Message, error) {
	keys, err := s.listKeys(ctx, s.messages)
	if err != nil {
		return nil, err
	}

	prefix := conversationID + "."
	var out []model.Message
	for _, key := range keys {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		var msg model.Message
		if err := s.getJSON(ctx, s.messages, key, &msg); err != nil {
			continue
		}
		out = append(out, msg)
	}
	sortMessages(out)
	return out, nil
}

func sortMessages(msgs []model.Message) {
	sort.Slice(msgs, func(i, j int) bool {
		if !msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
		}
		return msgs[i].ID < msgs[j].ID
	})
}

func (s *NATSStore) getJSON(ctx context.Context, kv jetstream.KeyValue, key string, v any) error {
	entry, err := kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("kv get %s: %w", key, err)
	}
	if err := json.Unmarshal(entry.Value(), v); err != nil {
		return fmt.Errorf("kv decode %s: %w", key, err)
	}
	return nil
}

func (s *NATSStore) putJSON(ctx context.Context, kv jetstream.KeyValue, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("kv encode %s: %w", key, err)
	}
	if _, err := kv.Put(ctx, key, data); err != nil {
		return fmt.Errorf("kv put %s: %w", key, err)
	}
	return nil
}

func (s *NATSStore) listKeys(ctx context.Context, kv jetstream.KeyValue) ([]string, error) {
	keys, err := kv.Keys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("kv keys: %w", err)
	}
	return keys, nil
}

func createTLSConfig(caFile, certFile, keyFile string) (*tls.Config, error) {
	caCert, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA file: %w", err)
	}

	caCertPool := x509.NewCertPool()
	if !caCertPool.AppendCertsFromPEM(caCert) {
		return nil, errors.New("failed to parse CA certificate")
	}

	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load client cert: %w", err)
	}

	return &tls.Config{
		RootCAs:      caCertPool,
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}
