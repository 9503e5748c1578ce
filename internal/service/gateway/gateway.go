// Package gateway simulates the payment providers a transaction is
// dispatched to: fees, latency, declines, transient timeouts and health.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"RiskGate/internal/domain/models"
	domrepo "RiskGate/internal/domain/repository"
	domsvc "RiskGate/internal/domain/service"
	applogger "RiskGate/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	// outcomeWindow is how many recent dispatches drive health.
	outcomeWindow = 100
	// minSamples before the success rate is trusted.
	minSamples = 10
)

// ErrTimeout is a transient provider failure; the dispatch may be retried.
var ErrTimeout = errors.New("provider timeout")

// Provider is the static description of one payment rail.
type Provider struct {
	ID              string
	Name            string
	Enabled         bool
	Kinds           []models.Kind
	FixedFee        decimal.Decimal
	PercentFee      decimal.Decimal
	MinLatency      time.Duration
	MaxLatency      time.Duration
	SuccessRate     float64
	TimeoutShare    float64
	HealthThreshold float64
}

// Fee is the fixed part plus the percentage of amount, rounded to cents.
func (p Provider) Fee(amount decimal.Decimal) decimal.Decimal {
	return p.FixedFee.Add(amount.Mul(p.PercentFee).Div(decimal.NewFromInt(100))).Round(2)
}

func (p Provider) supports(k models.Kind) bool {
	if len(p.Kinds) == 0 {
		return true
	}
	for _, pk := range p.Kinds {
		if pk == k {
			return true
		}
	}
	return false
}

type providerState struct {
	cfg      Provider
	outcomes [outcomeWindow]bool
	latency  [outcomeWindow]time.Duration
	n, next  int
}

func (s *providerState) record(ok bool, d time.Duration) {
	s.outcomes[s.next] = ok
	s.latency[s.next] = d
	s.next = (s.next + 1) % outcomeWindow
	if s.n < outcomeWindow {
		s.n++
	}
}

func (s *providerState) health() models.ProviderHealth {
	h := models.ProviderHealth{ID: s.cfg.ID, Name: s.cfg.Name, Samples: s.n, SuccessRate: 1}
	if s.n > 0 {
		ok := 0
		var total time.Duration
		for i := 0; i < s.n; i++ {
			if s.outcomes[i] {
				ok++
			}
			total += s.latency[i]
		}
		h.SuccessRate = float64(ok) / float64(s.n)
		h.AvgLatencyMs = float64(total.Milliseconds()) / float64(s.n)
	}

	switch {
	case !s.cfg.Enabled:
		h.Status = models.HealthDisabled
	case s.n < minSamples || h.SuccessRate >= s.cfg.HealthThreshold:
		h.Status = models.HealthHealthy
	case h.SuccessRate >= s.cfg.HealthThreshold/2:
		h.Status = models.HealthDegraded
	default:
		h.Status = models.HealthDown
	}
	return h
}

// Gateway dispatches to providers by method id.
type Gateway struct {
	mu        sync.Mutex
	providers map[string]*providerState
	rng       *rand.Rand
	sleep     func(ctx context.Context, d time.Duration) error
	metrics   domrepo.Metrics
	logger    *applogger.Logger
}

type Option func(*Gateway)

// WithRand makes outcomes reproducible.
func WithRand(r *rand.Rand) Option {
	return func(g *Gateway) { g.rng = r }
}

// WithSleep replaces the latency wait, mostly to skip it in tests.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(g *Gateway) { g.sleep = fn }
}

func WithMetrics(m domrepo.Metrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

func WithLogger(l *applogger.Logger) Option {
	return func(g *Gateway) {
		if l != nil {
			g.logger = l
		}
	}
}

func New(providers []Provider, opts ...Option) *Gateway {
	g := &Gateway{
		providers: make(map[string]*providerState, len(providers)),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:     sleepCtx,
		logger:    applogger.NewNop(),
	}
	for _, p := range providers {
		if p.HealthThreshold <= 0 {
			p.HealthThreshold = 0.8
		}
		g.providers[p.ID] = &providerState{cfg: p}
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Dispatch sends req to the provider registered as method. Unknown,
// disabled or down providers and declines are returned as provider pipeline
// errors; simulated timeouts wrap ErrTimeout and can be retried.
func (g *Gateway) Dispatch(ctx context.Context, method string, req models.DispatchRequest) (models.DispatchResult, error) {
	g.mu.Lock()
	st, ok := g.providers[method]
	if !ok {
		g.mu.Unlock()
		return models.DispatchResult{}, providerError("unknown provider %q", method)
	}
	cfg := st.cfg
	status := st.health().Status
	latency := cfg.MinLatency
	if span := cfg.MaxLatency - cfg.MinLatency; span > 0 {
		latency += time.Duration(g.rng.Int63n(int64(span)))
	}
	roll, kindRoll := g.rng.Float64(), g.rng.Float64()
	g.mu.Unlock()

	switch {
	case status == models.HealthDisabled:
		return models.DispatchResult{}, providerError("provider %s is disabled", method)
	case status == models.HealthDown:
		return models.DispatchResult{}, providerError("provider %s is unhealthy", method)
	case !cfg.supports(req.Kind):
		return models.DispatchResult{}, providerError("provider %s does not handle %s", method, req.Kind)
	}

	if err := g.sleep(ctx, latency); err != nil {
		g.record(st, false, latency)
		return models.DispatchResult{}, fmt.Errorf("dispatch %s: %w", method, err)
	}

	if roll >= cfg.SuccessRate {
		g.record(st, false, latency)
		if kindRoll < cfg.TimeoutShare {
			return models.DispatchResult{}, fmt.Errorf("dispatch %s: %w", method, ErrTimeout)
		}
		return models.DispatchResult{}, providerError("provider %s declined the transaction", method)
	}

	g.record(st, true, latency)
	res := models.DispatchResult{
		ExternalID: fmt.Sprintf("%s_%s", cfg.ID, uuid.NewString()),
		Fees:       cfg.Fee(req.Amount),
		Provider:   cfg.ID,
		Latency:    latency,
	}
	g.logger.Debug("provider dispatch ok",
		applogger.String("transaction_id", req.TransactionID),
		applogger.String("provider", cfg.ID),
		applogger.String("external_id", res.ExternalID),
		applogger.Duration("latency", latency),
	)
	return res, nil
}

func (g *Gateway) record(st *providerState, ok bool, d time.Duration) {
	g.mu.Lock()
	st.record(ok, d)
	g.mu.Unlock()
	if g.metrics != nil {
		result := "ok"
		if !ok {
			result = "failed"
		}
		g.metrics.RecordProviderDispatch(st.cfg.ID, result, d.Seconds())
	}
}

// Health reports every provider keyed by id.
func (g *Gateway) Health() map[string]models.ProviderHealth {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[string]models.ProviderHealth, len(g.providers))
	for id, st := range g.providers {
		out[id] = st.health()
	}
	return out
}

// SetEnabled toggles a provider at runtime.
func (g *Gateway) SetEnabled(id string, enabled bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	st, ok := g.providers[id]
	if !ok {
		return fmt.Errorf("unknown provider %q", id)
	}
	st.cfg.Enabled = enabled
	return nil
}

// Methods lists provider ids in order.
func (g *Gateway) Methods() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, 0, len(g.providers))
	for id := range g.providers {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func providerError(format string, args ...interface{}) error {
	return models.NewPipelineError(models.ErrKindProvider, models.StageProcessing, nil, fmt.Sprintf(format, args...))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

var _ domsvc.ProviderGateway = (*Gateway)(nil)
