package di

import (
	"testing"
	"time"

	"RiskGate/internal/domain/models"
	"RiskGate/pkg/config"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGatewayProvidersFromConfig(t *testing.T) {
	ps := GatewayProviders([]config.ProviderConfig{
		{ID: "card", Kinds: []string{"Deposit", "bogus"}, FixedFee: 0.3, PercentFee: 2.9, SuccessRate: 1},
		{ID: "bank", Name: "Bank", Disabled: true},
	})
	require.Len(t, ps, 2)

	assert.Equal(t, "card", ps[0].Name)
	assert.True(t, ps[0].Enabled)
	assert.Equal(t, []models.Kind{models.KindDeposit}, ps[0].Kinds)
	assert.True(t, ps[0].FixedFee.Equal(decimal.RequireFromString("0.3")))
	assert.True(t, ps[0].PercentFee.Equal(decimal.RequireFromString("2.9")))

	assert.False(t, ps[1].Enabled)
	assert.Equal(t, []models.Kind{models.KindDeposit, models.KindWithdrawal}, ps[1].Kinds)
}

func TestComplianceRulesFromConfig(t *testing.T) {
	rules := ComplianceRules(config.DefaultRules())
	require.Len(t, rules, 3)
	for _, r := range rules {
		assert.True(t, r.Active, r.ID)
	}
	assert.Equal(t, models.RuleAmount, rules[0].Type)

	off := ComplianceRules([]config.RuleConfig{{ID: "x", Type: "aml", Disabled: true}})
	assert.False(t, off[0].Active)
}

func TestSeedUsers(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	users := SeedUsers([]config.SeedUser{{ID: "p1", Balance: 12.5, KYCLevel: 2, Country: "us", AgeDays: 10}}, now)
	require.Len(t, users, 1)
	assert.Equal(t, "US", users[0].Country)
	assert.True(t, users[0].Balance.Equal(decimal.RequireFromString("12.5")))
	assert.Equal(t, now.AddDate(0, 0, -10), users[0].CreatedAt)
}

func TestDefaultConfigProviders(t *testing.T) {
	cfg := config.Default()

	loc, err := ProvideLocation(cfg)
	require.NoError(t, err)
	assert.Equal(t, "UTC", loc.String())

	wd, err := ProvideWeekStart(cfg)
	require.NoError(t, err)
	assert.Equal(t, time.Monday, wd)

	lim := ToKindLimits(cfg.Limits.Deposit)
	assert.True(t, lim.Min.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, 10, lim.HourlyCount)

	assert.False(t, needsRedis(cfg))
	c, err := ProvideCache(cfg, nil, nil)
	require.NoError(t, err)
	assert.NotNil(t, c.Stats())
	require.NoError(t, c.Close())

	assert.Nil(t, ProvideKafkaHandlers(cfg, nil, nil, nil, nil, nil))
	assert.NotNil(t, ProvideRateLimiter(cfg))
}
