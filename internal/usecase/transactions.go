package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"RiskGate/internal/domain/models"
	"RiskGate/internal/domain/repository"
	domsvc "RiskGate/internal/domain/service"
	"RiskGate/pkg/cache"
	applogger "RiskGate/pkg/logger"

	"github.com/shopspring/decimal"
)

// SubmitResult is what callers of the submit operations see.
type SubmitResult struct {
	Success       bool             `json:"success"`
	TransactionID string           `json:"transaction_id"`
	Stage         models.Stage     `json:"stage,omitempty"`
	Pipeline      *models.Pipeline `json:"pipeline,omitempty"`
	Error         string           `json:"error,omitempty"`
	ErrorKind     models.ErrorKind `json:"error_kind,omitempty"`
}

// SystemHealth summarizes the running service.
type SystemHealth struct {
	Status              string                           `json:"status"`
	ProviderHealth      map[string]models.ProviderHealth `json:"provider_health"`
	ActivePipelineCount int                              `json:"active_pipeline_count"`
	ActiveRuleCount     int                              `json:"active_rule_count"`
	OpenReviews         int                              `json:"open_reviews"`
	CacheMetrics        map[string]cache.OpStats         `json:"cache_metrics,omitempty"`
	CheckedAt           time.Time                        `json:"checked_at"`
}

// CacheStats is implemented by caches that track per-operation latency.
type CacheStats interface {
	Stats() map[string]cache.OpStats
}

// TransactionService is the entry point used by the HTTP layer, the review
// jobs and the Kafka decision consumer.
type TransactionService struct {
	orch     *Orchestrator
	gateway  domsvc.ProviderGateway
	reviews  repository.ReviewQueue
	rules    *ComplianceRuleSet
	ledger   repository.TransactionLedger
	audit    repository.AuditSink
	limits   *LimitChecker
	stats    CacheStats
	profiles UserProfiles
	logger   *applogger.Logger
	now      func() time.Time
}

func NewTransactionService(orch *Orchestrator, stats CacheStats) *TransactionService {
	return &TransactionService{
		orch:     orch,
		gateway:  orch.Gateway,
		reviews:  orch.Reviews,
		rules:    orch.Rules,
		ledger:   orch.Ledger,
		audit:    orch.Audit,
		limits:   orch.Limits,
		stats:    stats,
		profiles: orch.Profiles,
		logger:   orch.Logger,
		now:      orch.Clock,
	}
}

// Submit runs req and folds the outcome into a SubmitResult. A pipeline
// parked for review is reported as successful so far.
func (s *TransactionService) Submit(ctx context.Context, req models.TransactionRequest) SubmitResult {
	id, stage, err := s.orch.Submit(ctx, req)
	res := SubmitResult{TransactionID: id, Stage: stage, Pipeline: s.orch.Status(id)}
	if err != nil {
		res.Error = err.Error()
		if kind, ok := models.KindOf(err); ok {
			res.ErrorKind = kind
		}
		return res
	}
	res.Success = true
	return res
}

func (s *TransactionService) SubmitDeposit(ctx context.Context, userID string, amount decimal.Decimal, currency, method string, metadata map[string]interface{}) SubmitResult {
	return s.Submit(ctx, models.TransactionRequest{
		UserID:   userID,
		Kind:     models.KindDeposit,
		Amount:   amount,
		Currency: currency,
		Method:   method,
		Metadata: metadata,
	})
}

func (s *TransactionService) SubmitWithdrawal(ctx context.Context, userID string, amount decimal.Decimal, currency, method string, details map[string]string, metadata map[string]interface{}) SubmitResult {
	return s.Submit(ctx, models.TransactionRequest{
		UserID:   userID,
		Kind:     models.KindWithdrawal,
		Amount:   amount,
		Currency: currency,
		Method:   method,
		Details:  details,
		Metadata: metadata,
	})
}

// GetPipelineStatus returns a snapshot, or nil for an unknown id.
func (s *TransactionService) GetPipelineStatus(txID string) *models.Pipeline {
	return s.orch.Status(txID)
}

func (s *TransactionService) ListActivePipelines(limit int) []*models.Pipeline {
	return s.orch.Active(limit)
}

// ResolveReview applies a reviewer decision. The returned error is non-nil
// only when the decision could not be applied; a rejection that fails the
// pipeline is reported through the result.
func (s *TransactionService) ResolveReview(ctx context.Context, d models.ReviewDecision) (SubmitResult, error) {
	if d.DecidedAt.IsZero() {
		d.DecidedAt = s.now()
	}
	p, err := s.orch.ResolveReview(ctx, d)
	if errors.Is(err, models.ErrPipelineNotFound) || errors.Is(err, models.ErrIdempotency) {
		return SubmitResult{TransactionID: d.TransactionID, Pipeline: p}, err
	}
	res := SubmitResult{TransactionID: d.TransactionID, Pipeline: p, Success: err == nil}
	if p != nil {
		res.Stage = p.Stage
	}
	if err != nil {
		res.Error = err.Error()
		res.ErrorKind, _ = models.KindOf(err)
	}
	s.logger.Info("review resolved",
		applogger.String("transaction_id", d.TransactionID),
		applogger.String("reviewer", d.Reviewer),
		applogger.Bool("approved", d.Approved),
		applogger.String("stage", string(res.Stage)),
	)
	return res, nil
}

// ExpireReview fails a pipeline whose review deadline passed.
func (s *TransactionService) ExpireReview(ctx context.Context, txID string) error {
	return s.orch.ExpireReview(ctx, txID)
}

func (s *TransactionService) OpenReviews() []models.ReviewTicket {
	return s.reviews.Open()
}

// ReviewView is an open ticket with the profile of its user.
type ReviewView struct {
	models.ReviewTicket
	User *models.User `json:"user,omitempty"`
}

// ReviewQueue lists open tickets with their users loaded in one batch. A
// profile lookup failure leaves User nil rather than failing the listing.
func (s *TransactionService) ReviewQueue(ctx context.Context) []ReviewView {
	tickets := s.reviews.Open()
	views := make([]ReviewView, len(tickets))
	ids := make([]string, 0, len(tickets))
	seen := make(map[string]bool, len(tickets))
	for i, t := range tickets {
		views[i].ReviewTicket = t
		if !seen[t.UserID] {
			seen[t.UserID] = true
			ids = append(ids, t.UserID)
		}
	}
	if s.profiles == nil || len(ids) == 0 {
		return views
	}

	users, err := s.profiles.Users(ctx, ids)
	if err != nil {
		s.logger.Warn("review queue profiles unavailable", applogger.Error(err))
		return views
	}
	for i := range views {
		views[i].User = users[views[i].UserID]
	}
	return views
}

// History lists a user's ledger records in [from, to).
func (s *TransactionService) History(ctx context.Context, userID string, kind models.Kind, from, to time.Time) ([]models.TransactionRecord, error) {
	if to.IsZero() {
		to = s.now().Add(time.Nanosecond)
	}
	if from.IsZero() {
		from = to.AddDate(0, 0, -30)
	}
	if !from.Before(to) {
		return nil, fmt.Errorf("empty range %s..%s", from.Format(time.RFC3339), to.Format(time.RFC3339))
	}
	return s.ledger.ListByUser(ctx, userID, kind, from, to)
}

// LimitUsage reports the day, week and month totals of kind for a user.
func (s *TransactionService) LimitUsage(ctx context.Context, userID string, kind models.Kind) (map[string]interface{}, error) {
	windows, err := s.limits.Usage(ctx, userID, kind, s.now())
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"user_id": userID, "kind": kind, "windows": windows}, nil
}

// AuditTrail returns the stage entries of a transaction when the sink can
// replay them.
func (s *TransactionService) AuditTrail(ctx context.Context, txID string) ([]models.AuditEntry, error) {
	r, ok := s.audit.(repository.AuditReader)
	if !ok {
		return nil, errors.New("audit sink does not support reads")
	}
	return r.ForTransaction(ctx, txID)
}

// SetProviderEnabled toggles a provider when the gateway supports it.
func (s *TransactionService) SetProviderEnabled(id string, enabled bool) error {
	t, ok := s.gateway.(interface{ SetEnabled(string, bool) error })
	if !ok {
		return errors.New("gateway does not support toggling providers")
	}
	return t.SetEnabled(id, enabled)
}

// Prune drops terminal pipelines older than retention.
func (s *TransactionService) Prune(retention time.Duration) int {
	return s.orch.Prune(s.now().Add(-retention))
}

// GetSystemHealth is degraded when any provider is not healthy and down
// when no enabled provider can take traffic.
func (s *TransactionService) GetSystemHealth(_ context.Context) SystemHealth {
	h := SystemHealth{
		ProviderHealth:      s.gateway.Health(),
		ActivePipelineCount: s.orch.ActiveCount(),
		ActiveRuleCount:     s.rules.ActiveRuleCount(),
		OpenReviews:         len(s.reviews.Open()),
		CheckedAt:           s.now(),
	}
	if s.stats != nil {
		h.CacheMetrics = s.stats.Stats()
	}

	usable, impaired := 0, 0
	for _, ph := range h.ProviderHealth {
		switch ph.Status {
		case models.HealthHealthy:
			usable++
		case models.HealthDegraded:
			usable++
			impaired++
		case models.HealthDown:
			impaired++
		}
	}
	switch {
	case usable == 0:
		h.Status = "down"
	case impaired > 0:
		h.Status = "degraded"
	default:
		h.Status = "healthy"
	}
	return h
}
