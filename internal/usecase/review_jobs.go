package usecase

import (
	"context"
	"fmt"

	"RiskGate/internal/domain/models"
	applogger "RiskGate/pkg/logger"
	"RiskGate/pkg/queue"
)

// ReviewTimeoutJob fires at a ticket's deadline and fails the pipeline if it
// is still waiting for a reviewer.
type ReviewTimeoutJob struct {
	svc    *TransactionService
	logger *applogger.Logger
}

func NewReviewTimeoutJob(svc *TransactionService, l *applogger.Logger) *ReviewTimeoutJob {
	if l == nil {
		l = applogger.NewNop()
	}
	return &ReviewTimeoutJob{svc: svc, logger: l}
}

func (j *ReviewTimeoutJob) Name() string { return "review-timeout" }

func (j *ReviewTimeoutJob) Type() string { return models.ReviewTimeoutMessage }

func (j *ReviewTimeoutJob) Handle(ctx context.Context, payload interface{}) error {
	ticket, err := queue.ParsePayload[models.ReviewTicket](payload)
	if err != nil {
		return fmt.Errorf("parse review ticket: %w", err)
	}
	if err := j.svc.ExpireReview(ctx, ticket.TransactionID); err != nil {
		return err
	}
	j.logger.Debug("review deadline processed",
		applogger.String("transaction_id", ticket.TransactionID),
		applogger.String("queue", ticket.Queue),
	)
	return nil
}

var _ queue.Job = (*ReviewTimeoutJob)(nil)
