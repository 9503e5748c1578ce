package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	ID          string          `json:"id" yaml:"id"`
	Balance     decimal.Decimal `json:"balance" yaml:"-"`
	KYCLevel    int             `json:"kyc_level" yaml:"kyc_level"`
	KYCVerified bool            `json:"kyc_verified" yaml:"kyc_verified"`
	VIPLevel    int             `json:"vip_level" yaml:"vip_level"`
	Country     string          `json:"country" yaml:"country"`
	Frozen      bool            `json:"frozen" yaml:"frozen"`
	CreatedAt   time.Time       `json:"created_at" yaml:"created_at"`
}

// AccountAge is the time since registration at now.
func (u *User) AccountAge(now time.Time) time.Duration {
	if u.CreatedAt.IsZero() || now.Before(u.CreatedAt) {
		return 0
	}
	return now.Sub(u.CreatedAt)
}

// Bet is one settled wager from the activity log.
type Bet struct {
	UserID   string    `json:"user_id"`
	GameID   string    `json:"game_id"`
	Stake    float64   `json:"stake"`
	Payout   float64   `json:"payout"`
	PlacedAt time.Time `json:"placed_at"`
}

func (b Bet) Won() bool { return b.Payout > b.Stake }

// GameSession is one login session from the activity log.
type GameSession struct {
	UserID    string    `json:"user_id"`
	DeviceID  string    `json:"device_id"`
	IP        string    `json:"ip"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
}

func (s GameSession) Duration() time.Duration {
	if s.EndedAt.Before(s.StartedAt) {
		return 0
	}
	return s.EndedAt.Sub(s.StartedAt)
}
