package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AuditEntry is written for every stage transition.
type AuditEntry struct {
	ID            string    `json:"id"`
	TransactionID string    `json:"transaction_id"`
	UserID        string    `json:"user_id"`
	Stage         Stage     `json:"stage"`
	Message       string    `json:"message"`
	ErrorKind     ErrorKind `json:"error_kind,omitempty"`
	At            time.Time `json:"at"`
}

// StageEvent is broadcast to Kafka and websocket subscribers.
type StageEvent struct {
	TransactionID string          `json:"transaction_id"`
	UserID        string          `json:"user_id"`
	Kind          Kind            `json:"kind"`
	Amount        decimal.Decimal `json:"amount"`
	Stage         Stage           `json:"stage"`
	Priority      Priority        `json:"priority"`
	ErrorKind     ErrorKind       `json:"error_kind,omitempty"`
	Reason        string          `json:"reason,omitempty"`
	At            time.Time       `json:"at"`
}

// ReviewTicket asks a human to approve a pipeline parked in approval.
type ReviewTicket struct {
	ID             string          `json:"id"`
	TransactionID  string          `json:"transaction_id"`
	UserID         string          `json:"user_id"`
	Kind           Kind            `json:"kind"`
	Amount         decimal.Decimal `json:"amount"`
	Priority       Priority        `json:"priority"`
	Queue          string          `json:"queue"` // "risk_review" or "finance_review"
	RiskScore      int             `json:"risk_score"`
	Recommendation Recommendation  `json:"recommendation"`
	CreatedAt      time.Time       `json:"created_at"`
	Deadline       time.Time       `json:"deadline"`
}

// ReviewDecision resolves a ticket.
type ReviewDecision struct {
	TransactionID string    `json:"transaction_id" validate:"required"`
	Approved      bool      `json:"approved"`
	Reviewer      string    `json:"reviewer" validate:"required"`
	Note          string    `json:"note"`
	DecidedAt     time.Time `json:"decided_at"`
}

// ReviewTimeoutMessage is the queue message type fired at a ticket's deadline.
const ReviewTimeoutMessage = "review.timeout"
