package repository

import (
	"context"
	"time"

	"RiskGate/internal/domain/models"

	"github.com/shopspring/decimal"
)

// UserDirectory owns user balances. AdjustBalance must be a single atomic
// conditional update: the delta is applied only if the balance before the
// update is at least expectedMinBalance, otherwise ErrInsufficientBalance.
type UserDirectory interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	AdjustBalance(ctx context.Context, id string, delta, expectedMinBalance decimal.Decimal) (decimal.Decimal, error)
}

type TransactionLedger interface {
	Append(ctx context.Context, rec *models.TransactionRecord) error
	Update(ctx context.Context, id string, upd models.TransactionUpdate) error
	Get(ctx context.Context, id string) (*models.TransactionRecord, error)
	// ListByUser returns records created in [from, to). An empty kind matches both kinds.
	ListByUser(ctx context.Context, userID string, kind models.Kind, from, to time.Time) ([]models.TransactionRecord, error)
}

type ActivityLog interface {
	Bets(ctx context.Context, userID string, from, to time.Time) ([]models.Bet, error)
	Sessions(ctx context.Context, userID string, from, to time.Time) ([]models.GameSession, error)
}

// ActivityWriter stores ingested bets and sessions.
type ActivityWriter interface {
	InsertBets(ctx context.Context, bets []models.Bet) error
	InsertSessions(ctx context.Context, sessions []models.GameSession) error
}

type AuditSink interface {
	Record(ctx context.Context, entry models.AuditEntry) error
}

// AuditReader is implemented by sinks that can replay a transaction's trail.
type AuditReader interface {
	AuditSink
	ForTransaction(ctx context.Context, txID string) ([]models.AuditEntry, error)
}

type EventPublisher interface {
	PublishStage(ctx context.Context, ev models.StageEvent) error
}

// ReviewQueue holds tickets for pipelines parked in approval. Enqueue also
// arranges for a timeout at the ticket deadline.
type ReviewQueue interface {
	Enqueue(ctx context.Context, ticket models.ReviewTicket) error
	Resolve(txID string) (models.ReviewTicket, bool)
	Open() []models.ReviewTicket
}

type Metrics interface {
	RecordStageTransition(kind, stage string)
	RecordOutcome(kind, outcome string)
	RecordStageLatency(stage string, seconds float64)
	RecordRiskScore(level string, score int)
	RecordProviderDispatch(provider, result string, seconds float64)
	RecordActivePipelines(n int)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
