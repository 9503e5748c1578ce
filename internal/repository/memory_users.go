package repository

import (
	"context"
	"fmt"
	"sync"

	"RiskGate/internal/domain/models"
	"RiskGate/internal/domain/repository"

	"github.com/shopspring/decimal"
)

// MemoryUserDirectory keeps users in a map. AdjustBalance runs under the
// write lock, so the check and the update are one step.
type MemoryUserDirectory struct {
	mu    sync.RWMutex
	users map[string]*models.User
}

func NewMemoryUserDirectory(users ...models.User) *MemoryUserDirectory {
	d := &MemoryUserDirectory{users: make(map[string]*models.User, len(users))}
	for _, u := range users {
		d.Put(u)
	}
	return d
}

// Put inserts or replaces a user.
func (d *MemoryUserDirectory) Put(u models.User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := u
	d.users[u.ID] = &cp
}

func (d *MemoryUserDirectory) GetUser(_ context.Context, id string) (*models.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, models.ErrUserNotFound)
	}
	cp := *u
	return &cp, nil
}

func (d *MemoryUserDirectory) AdjustBalance(_ context.Context, id string, delta, expectedMinBalance decimal.Decimal) (decimal.Decimal, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[id]
	if !ok {
		return decimal.Zero, fmt.Errorf("user %s: %w", id, models.ErrUserNotFound)
	}
	if u.Balance.LessThan(expectedMinBalance) {
		return u.Balance, models.NewPipelineError(models.ErrKindInsufficientBalance, "", nil,
			fmt.Sprintf("balance %s below required %s", u.Balance, expectedMinBalance))
	}
	u.Balance = u.Balance.Add(delta)
	return u.Balance, nil
}

var _ repository.UserDirectory = (*MemoryUserDirectory)(nil)
