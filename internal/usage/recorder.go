package usage

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"go.uber.org/zap"

	"github.com/astroguide/tutoring-platform/internal/model"
	"github.com/astroguide/tutoring-platform/internal/store"
	"github.com/astroguide/tutoring-platform/pkg/logger"
)

// Recorder persists per-request usage audit records. Recording is best
// effort: a failed write is logged but never fails the answer.
type Recorder interface {
	Record(ctx context.Context, messageID, model string, latencyMs int64, est Estimate)
}

type storeRecorder struct {
	store  store.Store
	logger *logger.Logger
}

// NewRecorder builds a store-backed usage recorder.
func NewRecorder(s store.Store, log *logger.Logger) Recorder {
	return &storeRecorder{store: s, logger: log}
}

func (r *storeRecorder) Record(ctx context.Context, messageID, modelName string, latencyMs int64, est Estimate) {
	rec := &model.RequestUsage{
		ID:               newUsageID(),
		MessageID:        messageID,
		Model:            modelName,
		LatencyMs:        latencyMs,
		PromptTokens:     est.PromptTokens,
		CompletionTokens: est.CompletionTokens,
		EstimatedCostUSD: est.CostUSD,
		CreatedAt:        time.Now().UTC(),
	}

	if err := r.store.SaveUsage(ctx, rec); err != nil {
		r.logger.Warn("failed to record usage",
			zap.String("message_id", messageID),
			zap.Error(err),
		)
	}
}

func newUsageID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return "ru_" + hex.EncodeToString(b)
}
