package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"RiskGate/internal/domain/models"
	memrepo "RiskGate/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ledgerSeed struct {
	kind   models.Kind
	amount string
	status models.Stage
	at     time.Time
}

func seededLedger(t *testing.T, seeds ...ledgerSeed) *memrepo.MemoryLedger {
	t.Helper()
	l := memrepo.NewMemoryLedger()
	for i, s := range seeds {
		status := s.status
		if status == "" {
			status = models.StageCompleted
		}
		require.NoError(t, l.Append(context.Background(), &models.TransactionRecord{
			ID: fmt.Sprintf("r%d", i), UserID: "u1", Kind: s.kind, Amount: dec(s.amount),
			Status: status, CreatedAt: s.at, UpdatedAt: s.at,
		}))
	}
	return l
}

func candidate(kind models.Kind, amount string) models.TransactionRequest {
	return models.TransactionRequest{ID: "cand", UserID: "u1", Kind: kind, Amount: dec(amount)}
}

func assertValidation(t *testing.T, err error, check string) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrValidation))
	var pe *models.PipelineError
	require.True(t, errors.As(err, &pe))
	require.NotEmpty(t, pe.Reasons)
	assert.Contains(t, pe.Reasons[0], check+":")
}

func TestCheckBounds(t *testing.T) {
	c := NewLimitChecker(memrepo.NewMemoryLedger(), KindLimits{Min: dec("10"), Max: dec("1000")}, KindLimits{Min: dec("20")}, nil, time.Monday)

	assertValidation(t, c.CheckBounds(models.KindDeposit, dec("10")), "bounds")
	assert.NoError(t, c.CheckBounds(models.KindDeposit, dec("10.01")))
	assert.NoError(t, c.CheckBounds(models.KindDeposit, dec("1000")))
	assertValidation(t, c.CheckBounds(models.KindDeposit, dec("1000.01")), "bounds")

	// zero max is unbounded
	assert.NoError(t, c.CheckBounds(models.KindWithdrawal, dec("1000000")))
	assertValidation(t, c.CheckBounds(models.KindWithdrawal, dec("20")), "bounds")
}

func TestCheckVelocityCounts(t *testing.T) {
	ctx := context.Background()
	ledger := seededLedger(t,
		ledgerSeed{kind: models.KindDeposit, amount: "10", at: t0.Add(-10 * time.Minute)},
		ledgerSeed{kind: models.KindDeposit, amount: "10", at: t0.Add(-20 * time.Minute), status: models.StageFailed},
		ledgerSeed{kind: models.KindDeposit, amount: "10", at: t0.Add(-2 * time.Hour)},
		ledgerSeed{kind: models.KindWithdrawal, amount: "10", at: t0.Add(-5 * time.Minute)},
	)

	c := NewLimitChecker(ledger, KindLimits{HourlyCount: 2}, KindLimits{}, time.UTC, time.Monday)
	assertValidation(t, c.CheckVelocity(ctx, candidate(models.KindDeposit, "10"), t0), "velocity")

	c = NewLimitChecker(ledger, KindLimits{HourlyCount: 3}, KindLimits{}, time.UTC, time.Monday)
	assert.NoError(t, c.CheckVelocity(ctx, candidate(models.KindDeposit, "10"), t0))

	c = NewLimitChecker(ledger, KindLimits{DailyCount: 3}, KindLimits{}, time.UTC, time.Monday)
	assertValidation(t, c.CheckVelocity(ctx, candidate(models.KindDeposit, "10"), t0), "velocity")
}

func TestCheckVelocityExcludesCandidate(t *testing.T) {
	ledger := seededLedger(t,
		ledgerSeed{kind: models.KindDeposit, amount: "10", at: t0.Add(-10 * time.Minute)},
	)
	c := NewLimitChecker(ledger, KindLimits{HourlyCount: 1}, KindLimits{}, time.UTC, time.Monday)
	req := candidate(models.KindDeposit, "10")
	req.ID = "r0"
	assert.NoError(t, c.CheckVelocity(context.Background(), req, t0))
}

func TestCheckVelocityAmount(t *testing.T) {
	ctx := context.Background()
	ledger := seededLedger(t,
		ledgerSeed{kind: models.KindWithdrawal, amount: "400", at: t0.Add(-30 * time.Minute)},
	)
	c := NewLimitChecker(ledger, KindLimits{}, KindLimits{HourlyAmount: dec("500")}, time.UTC, time.Monday)

	assert.NoError(t, c.CheckVelocity(ctx, candidate(models.KindWithdrawal, "100"), t0))
	assertValidation(t, c.CheckVelocity(ctx, candidate(models.KindWithdrawal, "100.01"), t0), "velocity")
	assert.NoError(t, c.CheckVelocity(ctx, candidate(models.KindDeposit, "1000"), t0), "limits are per kind")
}

func TestCheckPeriodicCalendarWindows(t *testing.T) {
	ctx := context.Background()
	// t0 is Tuesday 2026-03-10 14:00 UTC
	ledger := seededLedger(t,
		ledgerSeed{kind: models.KindDeposit, amount: "900", at: t0.Add(-2 * time.Hour)},
		ledgerSeed{kind: models.KindDeposit, amount: "500", at: t0.Add(-time.Hour), status: models.StageFailed},
		ledgerSeed{kind: models.KindDeposit, amount: "600", at: t0.Add(-25 * time.Hour)},     // Monday
		ledgerSeed{kind: models.KindDeposit, amount: "700", at: t0.Add(-3 * 24 * time.Hour)}, // Saturday
	)

	c := NewLimitChecker(ledger, KindLimits{Day: dec("1000")}, KindLimits{}, time.UTC, time.Monday)
	assert.NoError(t, c.CheckPeriodic(ctx, candidate(models.KindDeposit, "100"), t0), "failed records are ignored")
	assertValidation(t, c.CheckPeriodic(ctx, candidate(models.KindDeposit, "100.01"), t0), "periodic")

	c = NewLimitChecker(ledger, KindLimits{Week: dec("1600")}, KindLimits{}, time.UTC, time.Monday)
	assert.NoError(t, c.CheckPeriodic(ctx, candidate(models.KindDeposit, "100"), t0))
	assertValidation(t, c.CheckPeriodic(ctx, candidate(models.KindDeposit, "101"), t0), "periodic")

	// with a Saturday week start the Saturday deposit joins the week
	c = NewLimitChecker(ledger, KindLimits{Week: dec("1600")}, KindLimits{}, time.UTC, time.Saturday)
	assertValidation(t, c.CheckPeriodic(ctx, candidate(models.KindDeposit, "100"), t0), "periodic")

	c = NewLimitChecker(ledger, KindLimits{Month: dec("2300")}, KindLimits{}, time.UTC, time.Monday)
	assert.NoError(t, c.CheckPeriodic(ctx, candidate(models.KindDeposit, "100"), t0))
	assertValidation(t, c.CheckPeriodic(ctx, candidate(models.KindDeposit, "100.5"), t0), "periodic")
}

func TestPeriodicWindowsFollowLocation(t *testing.T) {
	ctx := context.Background()
	// 14:00 UTC is midnight in UTC+10, so a deposit an hour earlier was yesterday there
	ledger := seededLedger(t,
		ledgerSeed{kind: models.KindDeposit, amount: "900", at: t0.Add(-time.Hour)},
	)
	loc := time.FixedZone("UTC+10", 10*3600)

	utc := NewLimitChecker(ledger, KindLimits{Day: dec("1000")}, KindLimits{}, time.UTC, time.Monday)
	assertValidation(t, utc.CheckPeriodic(ctx, candidate(models.KindDeposit, "200"), t0), "periodic")

	local := NewLimitChecker(ledger, KindLimits{Day: dec("1000")}, KindLimits{}, loc, time.Monday)
	assert.NoError(t, local.CheckPeriodic(ctx, candidate(models.KindDeposit, "200"), t0))
}

func TestUsageReportsWindows(t *testing.T) {
	ledger := seededLedger(t,
		ledgerSeed{kind: models.KindDeposit, amount: "900", at: t0.Add(-2 * time.Hour)},
		ledgerSeed{kind: models.KindDeposit, amount: "600", at: t0.Add(-25 * time.Hour)},
	)
	c := NewLimitChecker(ledger, KindLimits{}, KindLimits{}, time.UTC, time.Monday)

	windows, err := c.Usage(context.Background(), "u1", models.KindDeposit, t0)
	require.NoError(t, err)
	require.Len(t, windows, 3)
	assert.Equal(t, "day", windows[0].Type)
	assert.Equal(t, 1, windows[0].Count)
	assert.Equal(t, "1500", windows[1].Sum.String())
	assert.Equal(t, time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC), windows[1].Start)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), windows[2].Start)
}
