package usecase

import (
	"context"
	"testing"
	"time"

	"RiskGate/internal/domain/models"
	domrepo "RiskGate/internal/domain/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummaryBucketsByDay(t *testing.T) {
	ledger := seededLedger(t,
		ledgerSeed{kind: models.KindDeposit, amount: "100", at: t0.Add(-time.Hour)},
		ledgerSeed{kind: models.KindDeposit, amount: "50", at: t0.Add(-2 * time.Hour)},
		ledgerSeed{kind: models.KindWithdrawal, amount: "30", at: t0.Add(-3 * time.Hour), status: models.StageFailed},
		ledgerSeed{kind: models.KindWithdrawal, amount: "20", at: t0.Add(-25 * time.Hour), status: models.StageApproval},
	)
	uc := NewSummaryUseCase(ledger, time.UTC, time.Monday)

	res, err := uc.GetSummary(context.Background(), GetSummaryParams{
		UserID: "u1", From: t0.Add(-72 * time.Hour), To: t0, Bucket: domrepo.Bucket1d,
	})
	require.NoError(t, err)
	require.Equal(t, 2, res.Count)

	monday, tuesday := res.Buckets[0], res.Buckets[1]
	assert.Equal(t, time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC), monday.Start)
	assert.Equal(t, 1, monday.Withdrawals)
	assert.Equal(t, 1, monday.InFlight)
	assert.Equal(t, "20", monday.WithdrawalSum.String())

	assert.Equal(t, 2, tuesday.Deposits)
	assert.Equal(t, "150", tuesday.DepositSum.String())
	assert.Equal(t, 1, tuesday.Failed)
	assert.Zero(t, tuesday.Withdrawals)
}

func TestSummaryWeekAndLimit(t *testing.T) {
	ledger := seededLedger(t,
		ledgerSeed{kind: models.KindDeposit, amount: "10", at: t0},
		ledgerSeed{kind: models.KindDeposit, amount: "10", at: t0.Add(-7 * 24 * time.Hour)},
		ledgerSeed{kind: models.KindDeposit, amount: "10", at: t0.Add(-14 * 24 * time.Hour)},
	)
	uc := NewSummaryUseCase(ledger, time.UTC, time.Monday)

	res, err := uc.GetSummary(context.Background(), GetSummaryParams{
		UserID: "u1", From: t0.Add(-30 * 24 * time.Hour), To: t0.Add(time.Second), Bucket: domrepo.Bucket1w, Limit: 2,
	})
	require.NoError(t, err)
	require.Len(t, res.Buckets, 2)
	assert.Equal(t, time.Date(2026, 2, 23, 0, 0, 0, 0, time.UTC), res.Buckets[0].Start)
	assert.Equal(t, "1w", res.Bucket)
}

func TestSummaryRejectsBadParams(t *testing.T) {
	uc := NewSummaryUseCase(seededLedger(t), nil, time.Monday)
	_, err := uc.GetSummary(context.Background(), GetSummaryParams{From: t0, To: t0})
	assert.Error(t, err)
	_, err = uc.GetSummary(context.Background(), GetSummaryParams{UserID: "u1", From: t0, To: t0.Add(-time.Hour)})
	assert.Error(t, err)

	res, err := uc.GetSummary(context.Background(), GetSummaryParams{UserID: "u1", From: t0.Add(-time.Hour), To: t0, Bucket: "5m"})
	require.NoError(t, err)
	assert.Equal(t, "1d", res.Bucket)
	assert.Empty(t, res.Buckets)
}
