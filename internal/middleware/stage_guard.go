package middleware

import (
	"context"
	"errors"
	"fmt"
	"time"

	"RiskGate/internal/domain/models"
	domrepo "RiskGate/internal/domain/repository"
	"RiskGate/pkg/retry"
)

// StageGuard runs one pipeline stage under a per-attempt timeout and a
// bounded retry policy. Pipeline errors are final and pass through untouched;
// anything else is treated as transient. When the attempts run out the stage
// fails with a provider error.
type StageGuard struct {
	timeout time.Duration
	policy  retry.Policy
	metrics domrepo.Metrics
}

type GuardOption func(*StageGuard)

// WithStageTimeout bounds each attempt.
func WithStageTimeout(d time.Duration) GuardOption {
	return func(g *StageGuard) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithRetryPolicy sets attempts and backoff for transient failures.
func WithRetryPolicy(p retry.Policy) GuardOption {
	return func(g *StageGuard) {
		if p.Attempts > 0 {
			g.policy = p
		}
	}
}

func NewStageGuard(metrics domrepo.Metrics, opts ...GuardOption) *StageGuard {
	g := &StageGuard{
		timeout: 5 * time.Second,
		policy:  retry.Policy{Attempts: 3, BaseDelay: 100 * time.Millisecond, MaxDelay: 2 * time.Second},
		metrics: metrics,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Run executes fn for stage. The returned error is nil or a *models.PipelineError.
func (g *StageGuard) Run(ctx context.Context, stage models.Stage, fn func(ctx context.Context) error) error {
	start := time.Now()
	attempts := 0
	err := retry.Do(ctx, g.policy, func(ctx context.Context) error {
		attempts++
		actx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()

		err := fn(actx)
		if err == nil {
			return nil
		}
		var pe *models.PipelineError
		if errors.As(err, &pe) {
			return retry.Permanent(err)
		}
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return fmt.Errorf("attempt %d timed out after %s: %w", attempts, g.timeout, err)
		}
		return err
	})
	if g.metrics != nil {
		g.metrics.RecordStageLatency(string(stage), time.Since(start).Seconds())
	}
	if err == nil {
		return nil
	}

	var pe *models.PipelineError
	if errors.As(err, &pe) {
		if pe.Stage == "" {
			pe.Stage = stage
		}
		return pe
	}
	if g.metrics != nil {
		g.metrics.RecordError("stage_" + string(stage))
	}
	return models.NewPipelineError(models.ErrKindProvider, stage, err,
		fmt.Sprintf("%s failed after %d attempt(s): %v", stage, attempts, err))
}
