package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"RiskGate/internal/domain/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdjustBalanceRejectsBelowExpectedMinimum(t *testing.T) {
	ctx := context.Background()
	users := NewMemoryUserDirectory(models.User{ID: "u1", Balance: decimal.NewFromInt(100)})

	bal, err := users.AdjustBalance(ctx, "u1", decimal.NewFromInt(-150), decimal.NewFromInt(150))
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrInsufficientBalance))
	assert.True(t, bal.Equal(decimal.NewFromInt(100)))

	u, err := users.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, u.Balance.Equal(decimal.NewFromInt(100)), "failed CAS must not mutate")
}

func TestAdjustBalanceConcurrentReservationsNeverOverdraw(t *testing.T) {
	ctx := context.Background()
	users := NewMemoryUserDirectory(models.User{ID: "u1", Balance: decimal.NewFromInt(100)})
	amount := decimal.NewFromInt(30)

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := users.AdjustBalance(ctx, "u1", amount.Neg(), amount); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	u, err := users.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, ok)
	assert.True(t, u.Balance.Equal(decimal.NewFromInt(10)))
}

func TestGetUserReturnsCopy(t *testing.T) {
	users := NewMemoryUserDirectory(models.User{ID: "u1", Balance: decimal.NewFromInt(5)})
	u, err := users.GetUser(context.Background(), "u1")
	require.NoError(t, err)
	u.Balance = decimal.NewFromInt(1000)

	again, _ := users.GetUser(context.Background(), "u1")
	assert.True(t, again.Balance.Equal(decimal.NewFromInt(5)))

	_, err = users.GetUser(context.Background(), "missing")
	assert.True(t, errors.Is(err, models.ErrUserNotFound))
}

func TestMemoryLedgerAppendUpdateList(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	recs := []models.TransactionRecord{
		{ID: "t1", UserID: "u1", Kind: models.KindDeposit, Amount: decimal.NewFromInt(10), Status: models.StageValidation, CreatedAt: base},
		{ID: "t2", UserID: "u1", Kind: models.KindWithdrawal, Amount: decimal.NewFromInt(5), Status: models.StageValidation, CreatedAt: base.Add(time.Minute)},
		{ID: "t3", UserID: "u1", Kind: models.KindDeposit, Amount: decimal.NewFromInt(7), Status: models.StageValidation, CreatedAt: base.Add(-time.Minute)},
		{ID: "t4", UserID: "u2", Kind: models.KindDeposit, Amount: decimal.NewFromInt(1), Status: models.StageValidation, CreatedAt: base},
	}
	for i := range recs {
		require.NoError(t, l.Append(ctx, &recs[i]))
	}
	require.Error(t, l.Append(ctx, &recs[0]), "duplicate id")

	deposits, err := l.ListByUser(ctx, "u1", models.KindDeposit, base.Add(-time.Hour), base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, deposits, 2)
	assert.Equal(t, "t3", deposits[0].ID)
	assert.Equal(t, "t1", deposits[1].ID)

	all, err := l.ListByUser(ctx, "u1", "", base, base.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, all, 1, "upper bound is exclusive")
	assert.Equal(t, "t1", all[0].ID)

	fees := decimal.RequireFromString("0.59")
	require.NoError(t, l.Update(ctx, "t1", models.TransactionUpdate{Status: models.StageCompleted, Fees: &fees, ExternalID: "ext-1", At: base.Add(time.Hour)}))
	got, err := l.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, models.StageCompleted, got.Status)
	assert.Equal(t, "ext-1", got.ExternalID)
	assert.True(t, got.Fees.Equal(fees))

	err = l.Update(ctx, "nope", models.TransactionUpdate{Status: models.StageFailed})
	assert.True(t, errors.Is(err, models.ErrTransactionNotFound))
}

func TestMemoryActivityLogWindows(t *testing.T) {
	ctx := context.Background()
	a := NewMemoryActivityLog()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	a.AddBet(models.Bet{UserID: "u1", Stake: 10, PlacedAt: now.Add(-2 * time.Hour)})
	a.AddBet(models.Bet{UserID: "u1", Stake: 20, PlacedAt: now.Add(-30 * time.Minute)})
	a.AddSession(models.GameSession{UserID: "u1", DeviceID: "d1", StartedAt: now.Add(-time.Minute)})

	bets, err := a.Bets(ctx, "u1", now.Add(-time.Hour), now)
	require.NoError(t, err)
	require.Len(t, bets, 1)
	assert.Equal(t, 20.0, bets[0].Stake)

	sessions, err := a.Sessions(ctx, "u1", now.Add(-time.Hour), now)
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
}

func TestFanOutPublisherJoinsErrors(t *testing.T) {
	rec := NewRecordingPublisher(0)
	fan := NewFanOutPublisher(rec, failingPublisher{}, nil)

	err := fan.PublishStage(context.Background(), models.StageEvent{TransactionID: "t1", Stage: models.StageInitiated})
	require.Error(t, err)
	assert.Len(t, rec.Events("t1"), 1, "healthy publishers still receive the event")
}

func TestRecordingPublisherLimit(t *testing.T) {
	rec := NewRecordingPublisher(2)
	for _, s := range []models.Stage{models.StageInitiated, models.StageValidation, models.StageFailed} {
		require.NoError(t, rec.PublishStage(context.Background(), models.StageEvent{TransactionID: "t1", Stage: s}))
	}
	events := rec.Events("t1")
	require.Len(t, events, 2)
	assert.Equal(t, models.StageValidation, events[0].Stage)
}

type failingPublisher struct{}

func (failingPublisher) PublishStage(context.Context, models.StageEvent) error {
	return errors.New("broker down")
}

type fakeScheduler struct {
	mu   sync.Mutex
	at   []time.Time
	fail bool
}

func (s *fakeScheduler) Enqueue(context.Context, string, interface{}) error { return nil }

func (s *fakeScheduler) EnqueueAt(_ context.Context, msgType string, _ interface{}, at time.Time) error {
	if s.fail {
		return errors.New("redis down")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if msgType == models.ReviewTimeoutMessage {
		s.at = append(s.at, at)
	}
	return nil
}

func TestScheduledReviewQueue(t *testing.T) {
	ctx := context.Background()
	sched := &fakeScheduler{}
	q := NewScheduledReviewQueue(sched)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, q.Enqueue(ctx, models.ReviewTicket{TransactionID: "t1", Priority: models.PriorityNormal, CreatedAt: now, Deadline: now.Add(time.Hour)}))
	require.NoError(t, q.Enqueue(ctx, models.ReviewTicket{TransactionID: "t2", Priority: models.PriorityUrgent, CreatedAt: now.Add(time.Minute), Deadline: now.Add(time.Hour)}))
	assert.Equal(t, []time.Time{now.Add(time.Hour), now.Add(time.Hour)}, sched.at)

	open := q.Open()
	require.Len(t, open, 2)
	assert.Equal(t, "t2", open[0].TransactionID)

	ticket, ok := q.Resolve("t1")
	require.True(t, ok)
	assert.Equal(t, "t1", ticket.TransactionID)
	_, ok = q.Resolve("t1")
	assert.False(t, ok)

	sched.fail = true
	require.Error(t, q.Enqueue(ctx, models.ReviewTicket{TransactionID: "t3"}))
	_, ok = q.Resolve("t3")
	assert.False(t, ok, "ticket dropped when scheduling fails")
}

func TestBalanceUnits(t *testing.T) {
	d := decimal.RequireFromString("1234.5678")
	assert.Equal(t, int64(12345678), toUnits(d))
	assert.True(t, fromUnits(12345678).Equal(d))
	assert.Equal(t, int64(-300000), toUnits(decimal.NewFromInt(-30)))
}
