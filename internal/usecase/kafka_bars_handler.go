package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"FinAgent/internal/domain/models"
	domrepo "FinAgent/internal/domain/repository"
	"FinAgent/internal/middleware"
	pkgkafka "FinAgent/pkg/kafka"
)

// KafkaBarsHandler feeds closed bars from a Kafka topic into the live gate.
// Malformed and stale bars are skipped rather than retried.
type KafkaBarsHandler struct {
	topic   string
	gate    middleware.BarProcessor
	metrics domrepo.Metrics
}

func NewKafkaBarsHandler(topic string, gate middleware.BarProcessor, metrics domrepo.Metrics) *KafkaBarsHandler {
	if metrics == nil {
		metrics = domrepo.NopMetrics{}
	}
	return &KafkaBarsHandler{topic: topic, gate: gate, metrics: metrics}
}

func (h *KafkaBarsHandler) Topic() string { return h.topic }

// Handle accepts a bar object; timestamps may be RFC3339, unix seconds or
// unix milliseconds.
func (h *KafkaBarsHandler) Handle(ctx context.Context, b []byte) error {
	var bar models.Bar
	if err := json.Unmarshal(b, &bar); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return pkgkafka.ErrSkip
	}
	h.metrics.RecordLatency("bar_ingest_lag", time.Since(bar.Timestamp).Seconds())

	err := h.gate.Process(ctx, &bar)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, middleware.ErrStaleBar),
		errors.Is(err, models.ErrMalformedSeries),
		errors.Is(err, models.ErrInvalidPrice),
		errors.Is(err, models.ErrInsufficientData),
		errors.Is(err, models.ErrModelNotReady):
		return pkgkafka.ErrSkip
	default:
		return err
	}
}

var _ pkgkafka.MessageHandler = (*KafkaBarsHandler)(nil)
