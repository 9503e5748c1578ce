package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type ActivityType string

const (
	ActivityBet     ActivityType = "bet"
	ActivitySession ActivityType = "session"
)

// ActivityEvent carries one bet or one session into the activity log.
type ActivityEvent struct {
	Type    ActivityType `json:"type" validate:"required,oneof=bet session"`
	Bet     *Bet         `json:"bet,omitempty"`
	Session *GameSession `json:"session,omitempty"`
}

// UserID is the owner of the carried payload.
func (e ActivityEvent) UserID() string {
	switch {
	case e.Bet != nil:
		return e.Bet.UserID
	case e.Session != nil:
		return e.Session.UserID
	}
	return ""
}

func (e ActivityEvent) Validate() error {
	switch e.Type {
	case ActivityBet:
		if e.Bet == nil {
			return fmt.Errorf("bet event without bet")
		}
		if e.Bet.Stake < 0 || e.Bet.Payout < 0 {
			return fmt.Errorf("bet amounts must not be negative")
		}
		if e.Bet.PlacedAt.IsZero() {
			return fmt.Errorf("bet placed_at required")
		}
	case ActivitySession:
		if e.Session == nil {
			return fmt.Errorf("session event without session")
		}
		if e.Session.StartedAt.IsZero() {
			return fmt.Errorf("session started_at required")
		}
	default:
		return fmt.Errorf("unknown activity type %q", e.Type)
	}
	if e.UserID() == "" {
		return fmt.Errorf("user_id required")
	}
	return nil
}

// SummaryBucket aggregates one user's ledger records over [Start, Start+bucket).
type SummaryBucket struct {
	Start         time.Time       `json:"start"`
	Deposits      int             `json:"deposits"`
	DepositSum    decimal.Decimal `json:"deposit_sum"`
	Withdrawals   int             `json:"withdrawals"`
	WithdrawalSum decimal.Decimal `json:"withdrawal_sum"`
	Failed        int             `json:"failed"`
	InFlight      int             `json:"in_flight"`
}
