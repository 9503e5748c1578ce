package repository

import (
	"context"
	"sync"
	"time"

	"RiskGate/internal/domain/models"
	"RiskGate/internal/domain/repository"
)

// MemoryActivityLog holds bets and sessions fed by AddBet/AddSession.
type MemoryActivityLog struct {
	mu       sync.RWMutex
	bets     map[string][]models.Bet
	sessions map[string][]models.GameSession
}

func NewMemoryActivityLog() *MemoryActivityLog {
	return &MemoryActivityLog{
		bets:     make(map[string][]models.Bet),
		sessions: make(map[string][]models.GameSession),
	}
}

func (a *MemoryActivityLog) AddBet(b models.Bet) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.bets[b.UserID] = append(a.bets[b.UserID], b)
}

func (a *MemoryActivityLog) AddSession(s models.GameSession) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sessions[s.UserID] = append(a.sessions[s.UserID], s)
}

func (a *MemoryActivityLog) InsertBets(_ context.Context, bets []models.Bet) error {
	for _, b := range bets {
		a.AddBet(b)
	}
	return nil
}

func (a *MemoryActivityLog) InsertSessions(_ context.Context, sessions []models.GameSession) error {
	for _, s := range sessions {
		a.AddSession(s)
	}
	return nil
}

func (a *MemoryActivityLog) Bets(_ context.Context, userID string, from, to time.Time) ([]models.Bet, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var out []models.Bet
	for _, b := range a.bets[userID] {
		if !b.PlacedAt.Before(from) && b.PlacedAt.Before(to) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (a *MemoryActivityLog) Sessions(_ context.Context, userID string, from, to time.Time) ([]models.GameSession, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var out []models.GameSession
	for _, s := range a.sessions[userID] {
		if !s.StartedAt.Before(from) && s.StartedAt.Before(to) {
			out = append(out, s)
		}
	}
	return out, nil
}

var (
	_ repository.ActivityLog    = (*MemoryActivityLog)(nil)
	_ repository.ActivityWriter = (*MemoryActivityLog)(nil)
)
