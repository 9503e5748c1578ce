package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"RiskGate/internal/domain/models"
	"RiskGate/internal/domain/repository"
	"RiskGate/pkg/queue"
)

// ScheduledReviewQueue keeps open tickets and schedules a timeout message at
// each ticket's deadline on the underlying queue (memory or Redis).
type ScheduledReviewQueue struct {
	sched   queue.Scheduler
	mu      sync.RWMutex
	tickets map[string]models.ReviewTicket
}

func NewScheduledReviewQueue(sched queue.Scheduler) *ScheduledReviewQueue {
	return &ScheduledReviewQueue{sched: sched, tickets: make(map[string]models.ReviewTicket)}
}

func (q *ScheduledReviewQueue) Enqueue(ctx context.Context, ticket models.ReviewTicket) error {
	q.mu.Lock()
	q.tickets[ticket.TransactionID] = ticket
	q.mu.Unlock()

	if err := q.sched.EnqueueAt(ctx, models.ReviewTimeoutMessage, ticket, ticket.Deadline); err != nil {
		q.mu.Lock()
		delete(q.tickets, ticket.TransactionID)
		q.mu.Unlock()
		return fmt.Errorf("schedule review timeout: %w", err)
	}
	return nil
}

// Resolve removes and returns the open ticket of txID.
func (q *ScheduledReviewQueue) Resolve(txID string) (models.ReviewTicket, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, ok := q.tickets[txID]
	delete(q.tickets, txID)
	return t, ok
}

// Open lists open tickets, most urgent first then oldest first.
func (q *ScheduledReviewQueue) Open() []models.ReviewTicket {
	q.mu.RLock()
	out := make([]models.ReviewTicket, 0, len(q.tickets))
	for _, t := range q.tickets {
		out = append(out, t)
	}
	q.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		pi, pj := out[i].Priority.Rank(), out[j].Priority.Rank()
		if pi != pj {
			return pi > pj
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

var _ repository.ReviewQueue = (*ScheduledReviewQueue)(nil)
