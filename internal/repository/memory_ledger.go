package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"RiskGate/internal/domain/models"
	"RiskGate/internal/domain/repository"
)

// MemoryLedger is an in-process TransactionLedger.
type MemoryLedger struct {
	mu      sync.RWMutex
	records map[string]*models.TransactionRecord
	byUser  map[string][]string
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		records: make(map[string]*models.TransactionRecord),
		byUser:  make(map[string][]string),
	}
}

func (l *MemoryLedger) Append(_ context.Context, rec *models.TransactionRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.records[rec.ID]; exists {
		return fmt.Errorf("transaction %s already recorded", rec.ID)
	}
	cp := *rec
	l.records[rec.ID] = &cp
	l.byUser[rec.UserID] = append(l.byUser[rec.UserID], rec.ID)
	return nil
}

func (l *MemoryLedger) Update(_ context.Context, id string, upd models.TransactionUpdate) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[id]
	if !ok {
		return fmt.Errorf("transaction %s: %w", id, models.ErrTransactionNotFound)
	}
	upd.Apply(rec)
	return nil
}

func (l *MemoryLedger) Get(_ context.Context, id string) (*models.TransactionRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec, ok := l.records[id]
	if !ok {
		return nil, fmt.Errorf("transaction %s: %w", id, models.ErrTransactionNotFound)
	}
	cp := *rec
	return &cp, nil
}

func (l *MemoryLedger) ListByUser(_ context.Context, userID string, kind models.Kind, from, to time.Time) ([]models.TransactionRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]models.TransactionRecord, 0, len(l.byUser[userID]))
	for _, id := range l.byUser[userID] {
		rec := l.records[id]
		if kind != "" && rec.Kind != kind {
			continue
		}
		if rec.CreatedAt.Before(from) || !rec.CreatedAt.Before(to) {
			continue
		}
		out = append(out, *rec)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

var _ repository.TransactionLedger = (*MemoryLedger)(nil)
