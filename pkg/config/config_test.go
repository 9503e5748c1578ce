package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	c := Default()
	assert.Equal(t, "development", c.Environment)
	assert.Equal(t, 8080, c.Server.Port)
	assert.Equal(t, "memory", c.Storage.Backend)
	assert.Equal(t, 24*time.Hour, c.Review.Deadline)
	assert.Equal(t, []string{"USD", "EUR", "GBP"}, c.Pipeline.Currencies)
	assert.Len(t, c.Providers, 4)
	assert.Len(t, c.Compliance.Rules, 3)
	assert.Equal(t, 0.98, c.Providers[0].SuccessRate)
	assert.Equal(t, 10.0, c.Limits.Deposit.Min)
}

func TestParseOverrides(t *testing.T) {
	c, err := Parse([]byte(`
server:
  port: 9090
providers:
  - id: only
    kinds: [deposit]
limits:
  week_start: sunday
`))
	require.NoError(t, err)
	assert.Equal(t, 9090, c.Server.Port)
	require.Len(t, c.Providers, 1)
	assert.Equal(t, 200*time.Millisecond, c.Providers[0].MaxLatency)
	assert.Equal(t, "sunday", c.Limits.WeekStart)
}

func TestParseRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"cache backend":       "cache: {backend: disk}",
		"kafka brokers":       "kafka: {enabled: true}",
		"activity on kafka":   "activity: {backend: kafka}",
		"predictor url":       "risk: {predictor: {type: http}}",
		"bad location":        "limits: {location: Nowhere/City}",
		"min above max":       "limits: {deposit: {min: 100, max: 50}}",
		"duplicate ids":       "providers: [{id: a}, {id: a}]",
		"rule type":           "compliance: {rules: [{id: r, type: magic}]}",
		"week start":          "limits: {week_start: someday}",
		"amount rule ceiling": "compliance: {rules: [{id: r, type: amount}]}",
		"kyc threshold text":  "compliance: {rules: [{id: r, type: kyc, params: {threshold: lots}}]}",
		"kyc min level text":  "compliance: {rules: [{id: r, type: kyc, params: {threshold: 10, min_level: high}}]}",
		"sanctions countries": "compliance: {rules: [{id: r, type: sanctions, params: {countries: []}}]}",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestParseAcceptsRuleParams(t *testing.T) {
	c, err := Parse([]byte(`
compliance:
  rules:
    - {id: cap, type: amount, params: {max_amount: "2500.50", kind: withdrawal}}
    - {id: kyc, type: kyc, params: {threshold: 1000}}
    - {id: geo, type: sanctions, params: {countries: [KP, IR]}}
    - {id: aml, type: aml}
`))
	require.NoError(t, err)
	assert.Len(t, c.Compliance.Rules, 4)
}

func TestLoadWithEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("environment: test\n"), 0o600))

	t.Setenv("HTTP_PORT", "7070")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	c, err := LoadWithEnv(path)
	require.NoError(t, err)
	assert.Equal(t, "test", c.Environment)
	assert.Equal(t, 7070, c.Server.Port)
	assert.True(t, c.Kafka.Enabled)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
}
