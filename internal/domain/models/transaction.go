package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Kind string

const (
	KindDeposit    Kind = "deposit"
	KindWithdrawal Kind = "withdrawal"
)

func (k Kind) Valid() bool {
	return k == KindDeposit || k == KindWithdrawal
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Rank orders priorities; higher is more urgent.
func (p Priority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 3
	case PriorityHigh:
		return 2
	case PriorityNormal:
		return 1
	}
	return 0
}

// TransactionRequest is the immutable input of a pipeline.
type TransactionRequest struct {
	ID        string                 `json:"id"`
	UserID    string                 `json:"user_id"`
	Kind      Kind                   `json:"kind"`
	Amount    decimal.Decimal        `json:"amount"`
	Currency  string                 `json:"currency"`
	Method    string                 `json:"method"`  // provider id: "card", "bank_transfer", ...
	Details   map[string]string      `json:"details"` // withdrawal destination (iban, wallet, ...)
	Metadata  map[string]interface{} `json:"metadata"`
	CreatedAt time.Time              `json:"created_at"`
}

// Copy returns a request that shares no maps with r.
func (r TransactionRequest) Copy() TransactionRequest {
	out := r
	out.Details = make(map[string]string, len(r.Details))
	for k, v := range r.Details {
		out.Details[k] = v
	}
	out.Metadata = copyMeta(r.Metadata)
	return out
}

// MetaString reads a string metadata value.
func (r TransactionRequest) MetaString(key string) string {
	if v, ok := r.Metadata[key].(string); ok {
		return v
	}
	return ""
}

// MetaBool reads a boolean metadata value; "true" strings count.
func (r TransactionRequest) MetaBool(key string) bool {
	switch v := r.Metadata[key].(type) {
	case bool:
		return v
	case string:
		return v == "true"
	}
	return false
}

// TransactionRecord is the ledger row for one transaction.
type TransactionRecord struct {
	ID            string          `json:"id"`
	UserID        string          `json:"user_id"`
	Kind          Kind            `json:"kind"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Method        string          `json:"method"`
	Status        Stage           `json:"status"`
	Priority      Priority        `json:"priority"`
	Fees          decimal.Decimal `json:"fees"`
	ExternalID    string          `json:"external_id,omitempty"`
	FailureReason string          `json:"failure_reason,omitempty"`
	Risk          *RiskAssessment `json:"risk,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// TransactionUpdate carries the mutable parts of a record. Nil/zero fields are left untouched.
type TransactionUpdate struct {
	Status        Stage
	Fees          *decimal.Decimal
	ExternalID    string
	FailureReason string
	Risk          *RiskAssessment
	At            time.Time
}

// Apply merges u into rec.
func (u TransactionUpdate) Apply(rec *TransactionRecord) {
	if u.Status != "" {
		rec.Status = u.Status
	}
	if u.Fees != nil {
		rec.Fees = *u.Fees
	}
	if u.ExternalID != "" {
		rec.ExternalID = u.ExternalID
	}
	if u.FailureReason != "" {
		rec.FailureReason = u.FailureReason
	}
	if u.Risk != nil {
		rec.Risk = u.Risk
	}
	if !u.At.IsZero() {
		rec.UpdatedAt = u.At
	}
}

func copyMeta(in map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
