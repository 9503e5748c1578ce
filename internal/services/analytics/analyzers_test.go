package analytics

import (
	"context"
	"fmt"
	"testing"
	"time"

	"RiskGate/internal/domain/models"
	"RiskGate/internal/repository"
	"RiskGate/pkg/cache"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

type fixture struct {
	users    *repository.MemoryUserDirectory
	ledger   *repository.MemoryLedger
	activity *repository.MemoryActivityLog
	history  *History
}

func newFixture(t *testing.T, users ...models.User) *fixture {
	t.Helper()
	f := &fixture{
		users:    repository.NewMemoryUserDirectory(users...),
		ledger:   repository.NewMemoryLedger(),
		activity: repository.NewMemoryActivityLog(),
	}
	f.history = NewHistory(f.users, f.ledger, f.activity, nil, time.Second)
	return f
}

func (f *fixture) tx(t *testing.T, id string, kind models.Kind, amount string, status models.Stage, ago time.Duration) {
	t.Helper()
	require.NoError(t, f.ledger.Append(context.Background(), &models.TransactionRecord{
		ID:        id,
		UserID:    "u1",
		Kind:      kind,
		Amount:    decimal.RequireFromString(amount),
		Currency:  "USD",
		Status:    status,
		CreatedAt: now.Add(-ago),
		UpdatedAt: now.Add(-ago),
	}))
}

func user(ageDays int) models.User {
	return models.User{ID: "u1", Balance: decimal.NewFromInt(1000), KYCLevel: 1, Country: "US", CreatedAt: now.AddDate(0, 0, -ageDays)}
}

func input(kind models.Kind, amount string, meta map[string]interface{}) models.AnalysisInput {
	return models.AnalysisInput{
		TransactionID: "current",
		UserID:        "u1",
		Kind:          kind,
		Amount:        decimal.RequireFromString(amount),
		Metadata:      meta,
		Now:           now,
	}
}

func codes(flags []models.Flag) []string {
	out := make([]string, 0, len(flags))
	for _, fl := range flags {
		out = append(out, fl.Code)
	}
	return out
}

func TestFinancialRapidWithdrawal(t *testing.T) {
	f := newFixture(t, user(400))
	for i := 0; i < 3; i++ {
		f.tx(t, fmt.Sprintf("d%d", i), models.KindDeposit, "100", models.StageCompleted, time.Duration(i+1)*24*time.Hour)
	}
	f.tx(t, "failed", models.KindDeposit, "5000", models.StageFailed, 2*time.Hour)

	var p models.Profiles
	flags, err := NewFinancialAnalyzer(f.history, 5).Analyze(context.Background(), input(models.KindWithdrawal, "290", nil), &p)
	require.NoError(t, err)

	assert.Equal(t, []string{models.FlagRapidWithdrawal}, codes(flags))
	assert.Equal(t, 3, p.Financial.DepositCount30d)
	assert.Equal(t, 3, p.Financial.LifetimeDeposits)
	assert.True(t, p.Financial.AverageDeposit.Equal(decimal.NewFromInt(100)))
	assert.InDelta(t, 0.967, p.Financial.WithdrawDepositRate, 0.001)
	assert.Equal(t, 1, p.Financial.HourlyCount)
}

func TestFinancialNewAccountWithoutDeposits(t *testing.T) {
	f := newFixture(t, user(2))
	for i := 0; i < 3; i++ {
		f.tx(t, fmt.Sprintf("w%d", i), models.KindWithdrawal, "10", models.StageFailed, time.Duration(i+1)*time.Minute)
	}

	var p models.Profiles
	flags, err := NewFinancialAnalyzer(f.history, 3).Analyze(context.Background(), input(models.KindWithdrawal, "1500", nil), &p)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{models.FlagHighVelocity, models.FlagNoDepositHistory, models.FlagNewAccountLargeTx}, codes(flags))
	assert.Equal(t, 4, p.Financial.HourlyCount)
	assert.Equal(t, 2, p.Financial.AccountAgeDays)
}

func TestFinancialUnknownUser(t *testing.T) {
	f := newFixture(t)
	_, err := NewFinancialAnalyzer(f.history, 5).Analyze(context.Background(), input(models.KindDeposit, "10", nil), &models.Profiles{})
	assert.Error(t, err)
}

func TestBehavioralRapidCycle(t *testing.T) {
	f := newFixture(t, user(400))
	f.tx(t, "d1", models.KindDeposit, "500", models.StageCompleted, 20*time.Minute)
	f.activity.AddBet(models.Bet{UserID: "u1", GameID: "g", Stake: 50, PlacedAt: now.Add(-10 * time.Minute)})
	f.activity.AddBet(models.Bet{UserID: "u1", GameID: "g", Stake: 999, PlacedAt: now.Add(-2 * time.Hour)})

	var p models.Profiles
	flags, err := NewBehavioralAnalyzer(f.history, time.UTC).Analyze(context.Background(), input(models.KindWithdrawal, "450", nil), &p)
	require.NoError(t, err)

	assert.Equal(t, []string{models.FlagRapidCycle}, codes(flags))
	require.NotNil(t, p.Behavioral.LastDepositAt)
	assert.Equal(t, 50.0, p.Behavioral.WageredSinceDeposit)
	assert.InDelta(t, 20, p.Behavioral.MinutesSinceDeposit, 0.01)
}

func TestBehavioralUnusualHour(t *testing.T) {
	f := newFixture(t, user(400))
	for i := 0; i < 12; i++ {
		start := time.Date(2026, 3, 9-i%5, 9, 0, 0, 0, time.UTC)
		f.activity.AddSession(models.GameSession{UserID: "u1", DeviceID: "d1", StartedAt: start, EndedAt: start.Add(30 * time.Minute)})
	}

	var p models.Profiles
	flags, err := NewBehavioralAnalyzer(f.history, time.UTC).Analyze(context.Background(), input(models.KindDeposit, "50", nil), &p)
	require.NoError(t, err)

	assert.Equal(t, []string{models.FlagUnusualHour}, codes(flags))
	assert.Equal(t, 12, p.Behavioral.Sessions7d)
	assert.InDelta(t, 30, p.Behavioral.AvgSessionMinutes, 0.01)
}

func TestGameplayFlags(t *testing.T) {
	f := newFixture(t, user(400))
	f.tx(t, "d1", models.KindDeposit, "1000", models.StageCompleted, 48*time.Hour)
	for i := 0; i < 20; i++ {
		payout := 25.0
		if i < 2 {
			payout = 0
		}
		f.activity.AddBet(models.Bet{UserID: "u1", GameID: "slots", Stake: 10, Payout: payout, PlacedAt: now.Add(-time.Duration(i+1) * time.Hour)})
	}

	var p models.Profiles
	flags, err := NewGameplayAnalyzer(f.history).Analyze(context.Background(), input(models.KindWithdrawal, "100", nil), &p)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{models.FlagLowWagering, models.FlagAbnormalWinRate}, codes(flags))
	assert.Equal(t, 20, p.Gameplay.Bets30d)
	assert.InDelta(t, 0.9, p.Gameplay.WinRate, 0.001)
	assert.InDelta(t, 0.2, p.Gameplay.WageringRatio, 0.001)

	// deposits are never held to the wagering requirement
	flags, err = NewGameplayAnalyzer(f.history).Analyze(context.Background(), input(models.KindDeposit, "100", nil), &p)
	require.NoError(t, err)
	assert.Equal(t, []string{models.FlagAbnormalWinRate}, codes(flags))
}

func TestDeviceFlags(t *testing.T) {
	f := newFixture(t, user(400))
	for i, d := range []string{"d1", "d2"} {
		start := now.Add(-time.Duration(i+1) * time.Hour)
		f.activity.AddSession(models.GameSession{UserID: "u1", DeviceID: d, IP: "10.0.0.1", StartedAt: start, EndedAt: start.Add(time.Minute)})
	}
	old := now.AddDate(0, 0, -10)
	f.activity.AddSession(models.GameSession{UserID: "u1", DeviceID: "d0", IP: "10.0.0.9", StartedAt: old, EndedAt: old.Add(time.Minute)})

	var p models.Profiles
	flags, err := NewDeviceAnalyzer(f.history).Analyze(context.Background(),
		input(models.KindDeposit, "10", map[string]interface{}{"device_id": "d9", "ip": "10.0.0.2", "vpn": true}), &p)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{models.FlagMultipleDevices, models.FlagVPNDetected, models.FlagNewDevice}, codes(flags))
	assert.Equal(t, 3, p.Device.Devices24h)
	assert.Equal(t, 2, p.Device.IPs24h)
	assert.Equal(t, 3, p.Device.KnownDevices)

	flags, err = NewDeviceAnalyzer(f.history).Analyze(context.Background(),
		input(models.KindDeposit, "10", map[string]interface{}{"device_id": "d0"}), &p)
	require.NoError(t, err)
	assert.Equal(t, []string{models.FlagMultipleDevices}, codes(flags))
	assert.False(t, p.Device.NewDevice)
}

func TestComplianceFlags(t *testing.T) {
	u := user(400)
	u.Country = "ir"
	f := newFixture(t, u)
	f.tx(t, "s1", models.KindDeposit, "9500", models.StageCompleted, 3*time.Hour)
	f.tx(t, "s2", models.KindDeposit, "9100", models.StageCompleted, 2*time.Hour)
	f.tx(t, "s3", models.KindDeposit, "9900", models.StageFailed, time.Hour)

	a := NewComplianceAnalyzer(f.history, decimal.NewFromInt(2000), decimal.NewFromInt(10000), []string{"IR", "kp"})
	var p models.Profiles
	flags, err := a.Analyze(context.Background(), input(models.KindDeposit, "9200", nil), &p)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{models.FlagPossibleStructuring, models.FlagKYCRequired, models.FlagHighRiskJurisdiction}, codes(flags))
	assert.Equal(t, 3, p.Compliance.NearThreshold24h)
	assert.Equal(t, "IR", p.Compliance.Country)
	assert.True(t, p.Compliance.KYCThresholdReach)
}

func TestKYCRequiredOnlyAboveThreshold(t *testing.T) {
	f := newFixture(t, user(400))
	a := NewComplianceAnalyzer(f.history, decimal.NewFromInt(2000), decimal.NewFromInt(10000), nil)

	tests := []struct {
		amount string
		want   bool
	}{
		{"1999.99", false},
		{"2000", false},
		{"2000.01", true},
	}
	for _, tt := range tests {
		var p models.Profiles
		flags, err := a.Analyze(context.Background(), input(models.KindWithdrawal, tt.amount, nil), &p)
		require.NoError(t, err)
		assert.Equal(t, tt.want, p.Compliance.KYCThresholdReach, tt.amount)
		assert.Equal(t, tt.want, len(flags) == 1 && flags[0].Code == models.FlagKYCRequired, tt.amount)
	}
}

func TestComplianceCountryFromMetadata(t *testing.T) {
	u := user(400)
	u.KYCVerified = true
	f := newFixture(t, u)
	a := NewComplianceAnalyzer(f.history, decimal.NewFromInt(2000), decimal.NewFromInt(10000), []string{"KP"})

	var p models.Profiles
	flags, err := a.Analyze(context.Background(), input(models.KindWithdrawal, "5000", map[string]interface{}{"country": "kp"}), &p)
	require.NoError(t, err)
	assert.Equal(t, []string{models.FlagHighRiskJurisdiction}, codes(flags))
}

func TestHeuristicPredictorIsDeterministic(t *testing.T) {
	p := NewHeuristicPredictor(5)
	feat := models.Features{
		Kind:             models.KindWithdrawal,
		VPN:              true,
		NewDevice:        true,
		LifetimeDeposits: 0,
		AccountAgeDays:   1,
		HourlyCount:      9,
		HighRiskCountry:  true,
		Amount:           5000,
		AverageDeposit:   100,
		UnusualHour:      true,
		Devices24h:       4,
	}
	a, err := p.Predict(context.Background(), feat)
	require.NoError(t, err)
	b, err := p.Predict(context.Background(), feat)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Equal(t, 1.0, a.FraudProbability)
	assert.Equal(t, 1.0, a.AnomalyScore)
	assert.Equal(t, 0.4, a.Confidence)
	assert.Equal(t, "heuristic-v1", a.Model)

	calm, err := p.Predict(context.Background(), models.Features{Kind: models.KindDeposit, AccountAgeDays: 400, LifetimeDeposits: 40, Sessions7d: 50})
	require.NoError(t, err)
	assert.Equal(t, 0.05, calm.FraudProbability)
	assert.Equal(t, 0.0, calm.AnomalyScore)
	assert.Equal(t, 0.9, calm.Confidence)
}

func TestHistoryInvalidate(t *testing.T) {
	users := repository.NewMemoryUserDirectory(user(400))
	mc := cache.NewMemoryCache()
	defer mc.Close()
	h := NewHistory(users, repository.NewMemoryLedger(), repository.NewMemoryActivityLog(), mc, time.Minute)
	ctx := context.Background()

	u, err := h.User(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, u.KYCLevel)

	changed := user(400)
	changed.KYCLevel = 3
	users.Put(changed)

	u, err = h.User(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, u.KYCLevel, "served from cache")

	require.NoError(t, h.Invalidate(ctx, "u1"))
	u, err = h.User(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, u.KYCLevel)
}
