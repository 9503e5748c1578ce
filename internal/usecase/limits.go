package usecase

import (
	"context"
	"fmt"
	"time"

	"RiskGate/internal/domain/models"
	"RiskGate/internal/domain/repository"
	"RiskGate/internal/services/features"
	"RiskGate/pkg/util"

	"github.com/shopspring/decimal"
)

// KindLimits bounds one transaction kind. Zero count or amount limits are off.
type KindLimits struct {
	Min          decimal.Decimal
	Max          decimal.Decimal
	HourlyCount  int
	HourlyAmount decimal.Decimal
	DailyCount   int
	DailyAmount  decimal.Decimal
	Day          decimal.Decimal
	Week         decimal.Decimal
	Month        decimal.Decimal
}

// LimitChecker enforces amount bounds, sliding velocity windows and calendar
// ceilings. It reads the ledger directly, never a cache, and reserves
// nothing: two concurrent requests can both pass before either is recorded.
type LimitChecker struct {
	ledger    repository.TransactionLedger
	limits    map[models.Kind]KindLimits
	loc       *time.Location
	weekStart time.Weekday
}

func NewLimitChecker(ledger repository.TransactionLedger, deposit, withdrawal KindLimits, loc *time.Location, weekStart time.Weekday) *LimitChecker {
	if loc == nil {
		loc = time.UTC
	}
	return &LimitChecker{
		ledger:    ledger,
		limits:    map[models.Kind]KindLimits{models.KindDeposit: deposit, models.KindWithdrawal: withdrawal},
		loc:       loc,
		weekStart: weekStart,
	}
}

// CheckBounds requires min < amount <= max.
func (c *LimitChecker) CheckBounds(kind models.Kind, amount decimal.Decimal) error {
	l := c.limits[kind]
	if !amount.GreaterThan(l.Min) {
		return validationError("bounds", "amount %s must be greater than %s", amount, l.Min)
	}
	if l.Max.IsPositive() && amount.GreaterThan(l.Max) {
		return validationError("bounds", "amount %s exceeds maximum %s", amount, l.Max)
	}
	return nil
}

// CheckVelocity fails when either trailing window already holds the maximum
// number of requests, or the candidate would push its sum over the limit.
// Every recorded request counts, whatever its status.
func (c *LimitChecker) CheckVelocity(ctx context.Context, req models.TransactionRequest, now time.Time) error {
	l := c.limits[req.Kind]
	end := now.Add(time.Nanosecond)
	recs, err := c.ledger.ListByUser(ctx, req.UserID, req.Kind, now.Add(-24*time.Hour), end)
	if err != nil {
		return fmt.Errorf("velocity lookup: %w", err)
	}
	others := features.Excluding(req.ID)

	checks := []struct {
		w      features.Window
		count  int
		amount decimal.Decimal
	}{
		{features.Aggregate("1h", recs, now.Add(-time.Hour), end, others), l.HourlyCount, l.HourlyAmount},
		{features.Aggregate("24h", recs, now.Add(-24*time.Hour), end, others), l.DailyCount, l.DailyAmount},
	}
	for _, ch := range checks {
		if ch.count > 0 && ch.w.Count >= ch.count {
			return validationError("velocity", "%d %s requests in the last %s, limit %d", ch.w.Count, req.Kind, ch.w.Type, ch.count)
		}
		if ch.amount.IsPositive() && ch.w.Sum.Add(req.Amount).GreaterThan(ch.amount) {
			return validationError("velocity", "%s %s in the last %s plus %s exceeds %s",
				ch.w.Sum, req.Kind, ch.w.Type, req.Amount, ch.amount)
		}
	}
	return nil
}

// CheckPeriodic adds the candidate to the current day, week and month sums
// before comparing them with the ceilings. Failed requests do not count.
func (c *LimitChecker) CheckPeriodic(ctx context.Context, req models.TransactionRequest, now time.Time) error {
	l := c.limits[req.Kind]
	windows, err := c.periodWindows(ctx, req.UserID, req.Kind, now, features.Excluding(req.ID))
	if err != nil {
		return err
	}
	for i, ceiling := range []decimal.Decimal{l.Day, l.Week, l.Month} {
		w := windows[i]
		if !ceiling.IsPositive() {
			continue
		}
		if total := w.Sum.Add(req.Amount); total.GreaterThan(ceiling) {
			return validationError("periodic", "%s %s total %s would exceed the %s limit %s",
				w.Type, req.Kind, total, w.Type, ceiling)
		}
	}
	return nil
}

// Usage reports the current day, week and month windows of userID.
func (c *LimitChecker) Usage(ctx context.Context, userID string, kind models.Kind, now time.Time) ([]features.Window, error) {
	return c.periodWindows(ctx, userID, kind, now)
}

func (c *LimitChecker) periodWindows(ctx context.Context, userID string, kind models.Kind, now time.Time, filters ...features.Filter) ([]features.Window, error) {
	day := util.StartOfDay(now, c.loc)
	week := util.StartOfWeek(now, c.loc, c.weekStart)
	month := util.StartOfMonth(now, c.loc)
	from := month
	if week.Before(from) {
		from = week
	}
	end := now.Add(time.Nanosecond)

	recs, err := c.ledger.ListByUser(ctx, userID, kind, from, end)
	if err != nil {
		return nil, fmt.Errorf("periodic lookup: %w", err)
	}
	filters = append(filters, features.WithoutStatus(models.StageFailed))
	return []features.Window{
		features.Aggregate("day", recs, day, end, filters...),
		features.Aggregate("week", recs, week, end, filters...),
		features.Aggregate("month", recs, month, end, filters...),
	}, nil
}

func validationError(check, format string, args ...interface{}) error {
	return models.NewPipelineError(models.ErrKindValidation, models.StageValidation, nil,
		check+": "+fmt.Sprintf(format, args...))
}
