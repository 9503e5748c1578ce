package middleware

import (
	"context"
	"errors"
	"testing"
	"time"

	"RiskGate/internal/domain/models"
	"RiskGate/pkg/metrics"
	"RiskGate/pkg/retry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGuard(timeout time.Duration, attempts int) *StageGuard {
	return NewStageGuard(metrics.Nop{},
		WithStageTimeout(timeout),
		WithRetryPolicy(retry.Policy{Attempts: attempts, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}))
}

func TestStageGuardRetriesTransientFailures(t *testing.T) {
	g := newGuard(time.Second, 3)
	calls := 0
	err := g.Run(context.Background(), models.StageProcessing, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("provider timeout")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestStageGuardPassesPipelineErrorsThrough(t *testing.T) {
	g := newGuard(time.Second, 3)
	calls := 0
	err := g.Run(context.Background(), models.StageRiskAnalysis, func(context.Context) error {
		calls++
		return models.NewPipelineError(models.ErrKindRiskRejection, "", nil, "score 80")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, errors.Is(err, models.ErrRiskRejection))

	var pe *models.PipelineError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, models.StageRiskAnalysis, pe.Stage)
}

func TestStageGuardExhaustionBecomesProviderError(t *testing.T) {
	g := newGuard(time.Second, 2)
	err := g.Run(context.Background(), models.StageProcessing, func(context.Context) error {
		return errors.New("connection reset")
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrProvider))
	assert.Contains(t, err.Error(), "2 attempt(s)")
}

func TestStageGuardTimesOutStuckStage(t *testing.T) {
	g := newGuard(20*time.Millisecond, 2)
	start := time.Now()
	err := g.Run(context.Background(), models.StageRiskAnalysis, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrProvider))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Less(t, time.Since(start), time.Second)
}
