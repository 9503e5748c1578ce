package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"RiskGate/internal/domain/models"
	domrepo "RiskGate/internal/domain/repository"
	pkgkafka "RiskGate/pkg/kafka"
	"RiskGate/pkg/retry"
)

// KafkaActivityHandler writes published bets and sessions into the activity log.
type KafkaActivityHandler struct {
	topic   string
	store   *ActivityIngestor
	metrics domrepo.Metrics
}

// NewKafkaActivityHandler expects an ingestor with the store backend.
func NewKafkaActivityHandler(topic string, store *ActivityIngestor, metrics domrepo.Metrics) *KafkaActivityHandler {
	return &KafkaActivityHandler{topic: topic, store: store, metrics: metrics}
}

func (h *KafkaActivityHandler) Topic() string { return h.topic }

func (h *KafkaActivityHandler) Handle(ctx context.Context, b []byte) error {
	var ev models.ActivityEvent
	if err := json.Unmarshal(b, &ev); err != nil {
		h.metrics.RecordError("activity_unmarshal")
		return retry.Permanent(fmt.Errorf("decode activity: %w", err))
	}
	err := h.store.Process(ctx, ev)
	if errors.Is(err, models.ErrValidation) {
		return retry.Permanent(err)
	}
	return err
}

var _ pkgkafka.MessageHandler = (*KafkaActivityHandler)(nil)
