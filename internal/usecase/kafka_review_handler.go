package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"RiskGate/internal/domain/models"
	domrepo "RiskGate/internal/domain/repository"
	pkgkafka "RiskGate/pkg/kafka"
	"RiskGate/pkg/retry"
)

// KafkaReviewHandler consumes reviewer decisions published by the back office.
type KafkaReviewHandler struct {
	topic   string
	svc     *TransactionService
	metrics domrepo.Metrics
}

func NewKafkaReviewHandler(topic string, svc *TransactionService, metrics domrepo.Metrics) *KafkaReviewHandler {
	return &KafkaReviewHandler{topic: topic, svc: svc, metrics: metrics}
}

func (h *KafkaReviewHandler) Topic() string { return h.topic }

// incoming message schema: {transaction_id, approved, reviewer, note, decided_at}
func (h *KafkaReviewHandler) Handle(ctx context.Context, b []byte) error {
	var d models.ReviewDecision
	if err := json.Unmarshal(b, &d); err != nil {
		h.metrics.RecordError("review_unmarshal")
		return retry.Permanent(fmt.Errorf("decode review decision: %w", err))
	}
	if d.TransactionID == "" || d.Reviewer == "" {
		h.metrics.RecordError("review_invalid")
		return retry.Permanent(errors.New("review decision needs transaction_id and reviewer"))
	}
	if !d.DecidedAt.IsZero() {
		h.metrics.RecordLatency("review_decision_lag_seconds", time.Since(d.DecidedAt).Seconds())
	}

	start := time.Now()
	_, err := h.svc.ResolveReview(ctx, d)
	h.metrics.RecordLatency("review_resolve_seconds", time.Since(start).Seconds())
	switch {
	case err == nil:
		return nil
	case errors.Is(err, models.ErrPipelineNotFound), errors.Is(err, models.ErrIdempotency):
		// Redelivered or stale decision: nothing left to apply.
		h.metrics.RecordError("review_stale")
		return nil
	default:
		h.metrics.RecordError("review_resolve")
		return err
	}
}

var _ pkgkafka.MessageHandler = (*KafkaReviewHandler)(nil)
