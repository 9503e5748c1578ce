package repository

import (
	"context"
	"sync"

	"RiskGate/internal/domain/models"
	"RiskGate/internal/domain/repository"
)

// MemoryAuditSink keeps audit entries in insertion order.
type MemoryAuditSink struct {
	mu      sync.RWMutex
	entries []models.AuditEntry
}

func NewMemoryAuditSink() *MemoryAuditSink {
	return &MemoryAuditSink{}
}

func (s *MemoryAuditSink) Record(_ context.Context, entry models.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

// ForTransaction returns the entries of one transaction.
func (s *MemoryAuditSink) ForTransaction(_ context.Context, txID string) ([]models.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.AuditEntry
	for _, e := range s.entries {
		if e.TransactionID == txID {
			out = append(out, e)
		}
	}
	return out, nil
}

var _ repository.AuditReader = (*MemoryAuditSink)(nil)
