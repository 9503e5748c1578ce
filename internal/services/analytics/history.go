package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"RiskGate/internal/domain/models"
	"RiskGate/internal/domain/repository"
	"RiskGate/pkg/cache"
)

const historyPrefix = "history"

// History is the read side the analyzers share. Every lookup is memoized
// under history:{user}:... so the concurrent analyzers of one evaluation hit
// the backing stores once per window.
type History struct {
	users    repository.UserDirectory
	ledger   repository.TransactionLedger
	activity repository.ActivityLog
	cache    cache.Service
	ttl      time.Duration
}

// NewHistory wires the stores. c may be nil to disable caching.
func NewHistory(users repository.UserDirectory, ledger repository.TransactionLedger, activity repository.ActivityLog, c cache.Service, ttl time.Duration) *History {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &History{users: users, ledger: ledger, activity: activity, cache: c, ttl: ttl}
}

// HistoryPattern matches every cached entry of userID.
func HistoryPattern(userID string) string {
	return cache.BuildPattern(cache.GenerateKey(historyPrefix, userID) + ":")
}

func historyKey(userID string, params ...interface{}) string {
	return cache.GenerateKeyWithParams(cache.GenerateKey(historyPrefix, userID), params...)
}

// Invalidate drops the cached history of userID.
func (h *History) Invalidate(ctx context.Context, userID string) error {
	if h.cache == nil {
		return nil
	}
	return h.cache.DeleteByPattern(ctx, HistoryPattern(userID))
}

func (h *History) User(ctx context.Context, userID string) (*models.User, error) {
	return cache.Memoize(ctx, h.cache, historyKey(userID, "user"), h.ttl, func(ctx context.Context) (*models.User, error) {
		u, err := h.users.GetUser(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("load user %s: %w", userID, err)
		}
		return u, nil
	})
}

// Users batch-loads profiles for listings. Unknown ids are left out.
func (h *History) Users(ctx context.Context, ids []string) (map[string]*models.User, error) {
	keys := make([]string, len(ids))
	byKey := make(map[string]string, len(ids))
	for i, id := range ids {
		keys[i] = historyKey(id, "user")
		byKey[keys[i]] = id
	}

	cached, err := cache.MemoizeMany(ctx, h.cache, keys, h.ttl, func(ctx context.Context, missing []string) (map[string]*models.User, error) {
		out := make(map[string]*models.User, len(missing))
		for _, key := range missing {
			u, err := h.users.GetUser(ctx, byKey[key])
			if errors.Is(err, models.ErrUserNotFound) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("load user %s: %w", byKey[key], err)
			}
			out[key] = u
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}

	users := make(map[string]*models.User, len(cached))
	for key, u := range cached {
		if u != nil {
			users[byKey[key]] = u
		}
	}
	return users, nil
}

// Transactions returns every ledger record of the user created in [from, to).
func (h *History) Transactions(ctx context.Context, userID string, from, to time.Time) ([]models.TransactionRecord, error) {
	key := historyKey(userID, "tx", from.Unix(), to.UnixNano())
	return cache.Memoize(ctx, h.cache, key, h.ttl, func(ctx context.Context) ([]models.TransactionRecord, error) {
		recs, err := h.ledger.ListByUser(ctx, userID, "", from, to)
		if err != nil {
			return nil, fmt.Errorf("load transactions: %w", err)
		}
		return recs, nil
	})
}

func (h *History) Bets(ctx context.Context, userID string, from, to time.Time) ([]models.Bet, error) {
	key := historyKey(userID, "bets", from.Unix(), to.UnixNano())
	return cache.Memoize(ctx, h.cache, key, h.ttl, func(ctx context.Context) ([]models.Bet, error) {
		bets, err := h.activity.Bets(ctx, userID, from, to)
		if err != nil {
			return nil, fmt.Errorf("load bets: %w", err)
		}
		return bets, nil
	})
}

func (h *History) Sessions(ctx context.Context, userID string, from, to time.Time) ([]models.GameSession, error) {
	key := historyKey(userID, "sessions", from.Unix(), to.UnixNano())
	return cache.Memoize(ctx, h.cache, key, h.ttl, func(ctx context.Context) ([]models.GameSession, error) {
		sessions, err := h.activity.Sessions(ctx, userID, from, to)
		if err != nil {
			return nil, fmt.Errorf("load sessions: %w", err)
		}
		return sessions, nil
	})
}

func flag(t models.FlagType, sev models.Severity, code string, score int, format string, args ...interface{}) models.Flag {
	return models.Flag{Type: t, Severity: sev, Code: code, Score: score, Description: fmt.Sprintf(format, args...)}
}
