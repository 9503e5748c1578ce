package clickhouse

import (
	"errors"
	"testing"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/stretchr/testify/assert"
)

func TestOptionsNative(t *testing.T) {
	cfg := &ClientConfig{
		Host:         "ch.local",
		Database:     "riskgate",
		User:         "default",
		Password:     "p@ss",
		DialTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		MaxExecTime:  30 * time.Second,
		AsyncInsert:  true,
	}
	WithTimeouts(0, 3*time.Second, 0)(cfg)

	opts := options(cfg)
	assert.Equal(t, []string{"ch.local:9000"}, opts.Addr)
	assert.Equal(t, ch.Native, opts.Protocol)
	assert.Equal(t, "riskgate", opts.Auth.Database)
	assert.Equal(t, "p@ss", opts.Auth.Password)
	assert.Equal(t, 5*time.Second, opts.DialTimeout)
	assert.Equal(t, 3*time.Second, opts.ReadTimeout)
	assert.Equal(t, 30, opts.Settings["max_execution_time"])
	assert.Equal(t, 10, opts.Settings["send_timeout"])
	assert.Equal(t, 1, opts.Settings["async_insert"])
	assert.Equal(t, 0, opts.Settings["wait_for_async_insert"])
}

func TestOptionsHTTPDefaultsPort(t *testing.T) {
	opts := options(&ClientConfig{Host: "ch", UseHTTP: true})
	assert.Equal(t, ch.HTTP, opts.Protocol)
	assert.Equal(t, []string{"ch:8123"}, opts.Addr)
	assert.Empty(t, opts.Settings)
}

func TestNewClientRequiresHost(t *testing.T) {
	_, err := NewClient()
	assert.Error(t, err)
}

func TestSchemaErrorUnwraps(t *testing.T) {
	cause := errors.New("syntax error")
	err := error(&SchemaError{Index: 2, Err: cause})
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "statement 2")
}
