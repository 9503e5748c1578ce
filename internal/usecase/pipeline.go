package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"RiskGate/internal/domain/models"
	"RiskGate/internal/domain/repository"
	domsvc "RiskGate/internal/domain/service"
	"RiskGate/internal/middleware"
	applogger "RiskGate/pkg/logger"
	"RiskGate/pkg/tracing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PipelineConfig holds the orchestrator thresholds.
type PipelineConfig struct {
	HighValueThreshold decimal.Decimal
	UrgentThreshold    decimal.Decimal
	// WithdrawalReviewThreshold routes larger withdrawals to finance review. Zero disables.
	WithdrawalReviewThreshold decimal.Decimal
	ReviewDeadline            time.Duration
	Currencies                []string
}

// RiskAnalyzer produces one assessment per transaction.
type RiskAnalyzer interface {
	Analyze(ctx context.Context, in models.AnalysisInput) (*models.RiskAssessment, error)
}

// CacheInvalidator drops cached per-user history.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, userID string) error
}

// UserProfiles batch-loads users for listings.
type UserProfiles interface {
	Users(ctx context.Context, ids []string) (map[string]*models.User, error)
}

// OrchestratorDeps groups the collaborators of an Orchestrator.
type OrchestratorDeps struct {
	Users    repository.UserDirectory
	Ledger   repository.TransactionLedger
	Audit    repository.AuditSink
	Events   repository.EventPublisher
	Reviews  repository.ReviewQueue
	Limits   *LimitChecker
	Risk     RiskAnalyzer
	Rules    *ComplianceRuleSet
	Gateway  domsvc.ProviderGateway
	Guard    *middleware.StageGuard
	History  CacheInvalidator
	// Profiles is optional; without it review listings carry no user.
	Profiles UserProfiles
	Metrics  repository.Metrics
	Logger   *applogger.Logger
	Clock    func() time.Time
}

type pipelineEntry struct {
	// work serializes stage execution for one transaction.
	work sync.Mutex
	// mu guards p; readers take a Clone under it.
	mu         sync.RWMutex
	p          *models.Pipeline
	req        models.TransactionRequest
	user       *models.User
	assessment *models.RiskAssessment
	recorded   bool
	// audited is set once an audit entry landed; with recorded it tells
	// Prune whether the id has a durable trace.
	audited bool
}

func (e *pipelineEntry) snapshot() *models.Pipeline {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.p.Clone()
}

func (e *pipelineEntry) stage() models.Stage {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.p.Stage
}

// Orchestrator owns every pipeline it creates. Pipelines of different
// transactions run independently; the stages of one pipeline run in order.
type Orchestrator struct {
	cfg PipelineConfig
	OrchestratorDeps

	mu        sync.RWMutex
	pipelines map[string]*pipelineEntry
}

func NewOrchestrator(cfg PipelineConfig, deps OrchestratorDeps) *Orchestrator {
	if deps.Logger == nil {
		deps.Logger = applogger.NewNop()
	}
	if deps.Clock == nil {
		deps.Clock = func() time.Time { return time.Now().UTC() }
	}
	if cfg.ReviewDeadline <= 0 {
		cfg.ReviewDeadline = 24 * time.Hour
	}
	return &Orchestrator{
		cfg:              cfg,
		OrchestratorDeps: deps,
		pipelines:        make(map[string]*pipelineEntry),
	}
}

// Submit runs req through the pipeline. It returns the stage the pipeline
// stopped in: completed, failed, or approval when a reviewer has to decide.
// Failures are returned as *models.PipelineError.
func (o *Orchestrator) Submit(ctx context.Context, req models.TransactionRequest) (string, models.Stage, error) {
	req = req.Copy()
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	now := o.Clock()
	if req.CreatedAt.IsZero() {
		req.CreatedAt = now
	}

	e, err := o.register(ctx, req, now)
	if err != nil {
		return req.ID, "", err
	}

	// an accepted pipeline runs to a terminal stage even if the caller goes
	// away; the stage guard bounds every external call
	ctx, span := tracing.StartSpan(context.WithoutCancel(ctx), "pipeline.submit",
		tracing.TransactionID(req.ID), tracing.UserID(req.UserID), tracing.Kind(string(req.Kind)))
	e.work.Lock()
	err = o.run(ctx, e)
	e.work.Unlock()
	tracing.End(span, err)

	return req.ID, e.stage(), err
}

// register creates the pipeline or rejects an id that was seen before.
func (o *Orchestrator) register(ctx context.Context, req models.TransactionRequest, now time.Time) (*pipelineEntry, error) {
	o.mu.Lock()
	if prev, ok := o.pipelines[req.ID]; ok {
		o.mu.Unlock()
		state := "already in progress"
		if prev.stage().Terminal() {
			state = "already processed"
		}
		o.Metrics.RecordOutcome(string(req.Kind), string(models.ErrKindIdempotency))
		return nil, models.NewPipelineError(models.ErrKindIdempotency, "", nil, fmt.Sprintf("transaction %s %s", req.ID, state))
	}
	e := &pipelineEntry{req: req, p: models.NewPipeline(req, o.priority(req), now)}
	o.pipelines[req.ID] = e
	o.mu.Unlock()

	if _, err := o.Ledger.Get(ctx, req.ID); err == nil {
		o.forget(req.ID)
		o.Metrics.RecordOutcome(string(req.Kind), string(models.ErrKindIdempotency))
		return nil, models.NewPipelineError(models.ErrKindIdempotency, "", nil, fmt.Sprintf("transaction %s already recorded", req.ID))
	} else if !errors.Is(err, models.ErrTransactionNotFound) {
		o.forget(req.ID)
		return nil, models.NewPipelineError(models.ErrKindProvider, "", err, "ledger unavailable")
	}

	// pipelines that failed before validation have no ledger record, only
	// an audit trail
	if trail, ok := o.Audit.(repository.AuditReader); ok {
		entries, err := trail.ForTransaction(ctx, req.ID)
		if err != nil {
			o.forget(req.ID)
			return nil, models.NewPipelineError(models.ErrKindProvider, "", err, "audit trail unavailable")
		}
		if len(entries) > 0 {
			o.forget(req.ID)
			o.Metrics.RecordOutcome(string(req.Kind), string(models.ErrKindIdempotency))
			return nil, models.NewPipelineError(models.ErrKindIdempotency, "", nil, fmt.Sprintf("transaction %s already processed", req.ID))
		}
	}

	o.Metrics.RecordActivePipelines(o.ActiveCount())
	o.emit(ctx, e, "")
	return e, nil
}

func (o *Orchestrator) forget(id string) {
	o.mu.Lock()
	delete(o.pipelines, id)
	o.mu.Unlock()
}

func (o *Orchestrator) priority(req models.TransactionRequest) models.Priority {
	switch {
	case o.cfg.UrgentThreshold.IsPositive() && req.Amount.GreaterThan(o.cfg.UrgentThreshold):
		return models.PriorityUrgent
	case o.cfg.HighValueThreshold.IsPositive() && req.Amount.GreaterThan(o.cfg.HighValueThreshold),
		req.MetaBool("vip"):
		return models.PriorityHigh
	case req.MetaString("priority") == string(models.PriorityLow):
		return models.PriorityLow
	}
	return models.PriorityNormal
}

func (o *Orchestrator) run(ctx context.Context, e *pipelineEntry) error {
	if err := o.intake(e.req); err != nil {
		return o.fail(ctx, e, models.StageInitiated, err)
	}
	if err := o.validate(ctx, e); err != nil {
		return o.fail(ctx, e, models.StageValidation, err)
	}
	if err := o.analyze(ctx, e); err != nil {
		return o.fail(ctx, e, models.StageRiskAnalysis, err)
	}
	if err := o.checkCompliance(ctx, e); err != nil {
		return o.fail(ctx, e, models.StageCompliance, err)
	}
	if reason, ok := o.needsReview(e); ok {
		if err := o.park(ctx, e, reason); err != nil {
			return o.fail(ctx, e, models.StageApproval, err)
		}
		return nil
	}
	return o.process(ctx, e)
}

// intake checks the request shape while the pipeline is still initiated.
func (o *Orchestrator) intake(req models.TransactionRequest) error {
	var reasons []string
	if req.UserID == "" {
		reasons = append(reasons, "user id is required")
	}
	if !req.Kind.Valid() {
		reasons = append(reasons, fmt.Sprintf("unknown kind %q", req.Kind))
	}
	if !req.Amount.IsPositive() {
		reasons = append(reasons, "amount must be positive")
	}
	if len(o.cfg.Currencies) > 0 && !containsFold(o.cfg.Currencies, req.Currency) {
		reasons = append(reasons, fmt.Sprintf("unsupported currency %q", req.Currency))
	}
	if _, ok := o.Gateway.Health()[req.Method]; !ok {
		reasons = append(reasons, fmt.Sprintf("unknown method %q", req.Method))
	}
	if len(reasons) > 0 {
		return models.NewPipelineError(models.ErrKindValidation, models.StageInitiated, nil, reasons...)
	}
	if err := o.Limits.CheckBounds(req.Kind, req.Amount); err != nil {
		var pe *models.PipelineError
		if errors.As(err, &pe) {
			pe.Stage = models.StageInitiated
		}
		return err
	}
	return nil
}

func (o *Orchestrator) validate(ctx context.Context, e *pipelineEntry) error {
	o.advance(ctx, e, models.StageValidation, "")
	now := o.Clock()

	err := o.Guard.Run(ctx, models.StageValidation, func(ctx context.Context) error {
		u, err := o.Users.GetUser(ctx, e.req.UserID)
		if errors.Is(err, models.ErrUserNotFound) {
			return models.NewPipelineError(models.ErrKindValidation, models.StageValidation, err, "user: "+err.Error())
		}
		if err != nil {
			return err
		}
		if u.Frozen {
			return models.NewPipelineError(models.ErrKindValidation, models.StageValidation, nil, "user: account is frozen")
		}
		if err := o.Limits.CheckVelocity(ctx, e.req, now); err != nil {
			return err
		}
		if err := o.Limits.CheckPeriodic(ctx, e.req, now); err != nil {
			return err
		}
		e.user = u
		return nil
	})
	if err != nil {
		return err
	}

	e.mu.RLock()
	rec := &models.TransactionRecord{
		ID:        e.req.ID,
		UserID:    e.req.UserID,
		Kind:      e.req.Kind,
		Amount:    e.req.Amount,
		Currency:  e.req.Currency,
		Method:    e.req.Method,
		Status:    models.StageValidation,
		Priority:  e.p.Priority,
		Fees:      decimal.Zero,
		CreatedAt: e.req.CreatedAt,
		UpdatedAt: now,
	}
	e.mu.RUnlock()
	err = o.Guard.Run(ctx, models.StageValidation, func(ctx context.Context) error {
		return o.Ledger.Append(ctx, rec)
	})
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.recorded = true
	e.mu.Unlock()
	o.invalidate(ctx, e.req.UserID)
	o.note(e, "limits passed, transaction recorded")
	return nil
}

func (o *Orchestrator) analyze(ctx context.Context, e *pipelineEntry) error {
	o.advance(ctx, e, models.StageRiskAnalysis, "")
	in := models.AnalysisInput{
		TransactionID: e.req.ID,
		UserID:        e.req.UserID,
		Kind:          e.req.Kind,
		Amount:        e.req.Amount,
		Metadata:      e.req.Metadata,
		Now:           o.Clock(),
	}

	var a *models.RiskAssessment
	err := o.Guard.Run(ctx, models.StageRiskAnalysis, func(ctx context.Context) error {
		var err error
		a, err = o.Risk.Analyze(ctx, in)
		return err
	})
	if err != nil {
		return err
	}
	e.assessment = a
	o.Metrics.RecordRiskScore(string(a.Level), a.Score)
	o.updateRecord(ctx, e, models.TransactionUpdate{Risk: a})

	codes := flagCodes(a.Flags)
	e.mu.Lock()
	e.p.Metadata["risk"] = a
	e.mu.Unlock()
	o.note(e, "risk score %d (%s), recommendation %s, flags [%s]", a.Score, a.Level, a.Recommendation, strings.Join(codes, ", "))

	if a.Recommendation == models.RecommendFreezeAccount {
		o.note(e, "account freeze recommended for user %s", e.req.UserID)
		o.Logger.Warn("account freeze recommended",
			applogger.String("transaction_id", e.req.ID),
			applogger.String("user_id", e.req.UserID),
			applogger.Int("score", a.Score),
			applogger.Float64("fraud_probability", a.Prediction.FraudProbability),
		)
	}
	if a.Recommendation.Blocking() {
		reasons := []string{fmt.Sprintf("recommendation %s at score %d", a.Recommendation, a.Score)}
		reasons = append(reasons, codes...)
		return models.NewPipelineError(models.ErrKindRiskRejection, models.StageRiskAnalysis, nil, reasons...)
	}
	return nil
}

func (o *Orchestrator) checkCompliance(ctx context.Context, e *pipelineEntry) error {
	o.advance(ctx, e, models.StageCompliance, "")
	violations, err := o.Rules.Evaluate(ctx, ComplianceInput{
		UserID:     e.req.UserID,
		Kind:       e.req.Kind,
		Amount:     e.req.Amount,
		User:       e.user,
		Metadata:   e.req.Metadata,
		Assessment: e.assessment,
	})
	if err != nil {
		return models.NewPipelineError(models.ErrKindComplianceViolation, models.StageCompliance, err, "rule evaluation failed: "+err.Error())
	}

	e.mu.Lock()
	e.p.Metadata["compliance"] = violations
	e.mu.Unlock()
	if len(violations) == 0 {
		o.note(e, "%d rules passed", o.Rules.ActiveRuleCount())
		return nil
	}
	reasons := make([]string, 0, len(violations))
	for _, v := range violations {
		reasons = append(reasons, fmt.Sprintf("%s (%s): %s", v.RuleID, v.Type, v.Message))
	}
	return models.NewPipelineError(models.ErrKindComplianceViolation, models.StageCompliance, nil, reasons...)
}

func (o *Orchestrator) needsReview(e *pipelineEntry) (string, bool) {
	if e.assessment != nil && e.assessment.Recommendation.RequiresReview() {
		return "risk_review", true
	}
	if e.req.Kind == models.KindWithdrawal && o.cfg.WithdrawalReviewThreshold.IsPositive() &&
		e.req.Amount.GreaterThan(o.cfg.WithdrawalReviewThreshold) {
		return "finance_review", true
	}
	return "", false
}

// park moves the pipeline into approval and enqueues a review ticket.
func (o *Orchestrator) park(ctx context.Context, e *pipelineEntry, queue string) error {
	o.advance(ctx, e, models.StageApproval, "")
	now := o.Clock()

	e.mu.RLock()
	ticket := models.ReviewTicket{
		ID:            uuid.NewString(),
		TransactionID: e.req.ID,
		UserID:        e.req.UserID,
		Kind:          e.req.Kind,
		Amount:        e.req.Amount,
		Priority:      e.p.Priority,
		Queue:         queue,
		CreatedAt:     now,
		Deadline:      now.Add(o.cfg.ReviewDeadline),
	}
	e.mu.RUnlock()
	if e.assessment != nil {
		ticket.RiskScore = e.assessment.Score
		ticket.Recommendation = e.assessment.Recommendation
	}

	if err := o.Reviews.Enqueue(ctx, ticket); err != nil {
		return models.NewPipelineError(models.ErrKindProvider, models.StageApproval, err, "review queue unavailable")
	}
	o.note(e, "queued for %s until %s", queue, ticket.Deadline.Format(time.RFC3339))
	return nil
}

// ResolveReview applies a reviewer decision to a pipeline parked in approval.
func (o *Orchestrator) ResolveReview(ctx context.Context, d models.ReviewDecision) (*models.Pipeline, error) {
	e, ok := o.entry(d.TransactionID)
	if !ok {
		return nil, fmt.Errorf("transaction %s: %w", d.TransactionID, models.ErrPipelineNotFound)
	}
	e.work.Lock()
	defer e.work.Unlock()

	if st := e.stage(); st != models.StageApproval {
		return e.snapshot(), models.NewPipelineError(models.ErrKindIdempotency, st, nil,
			fmt.Sprintf("transaction %s is %s, not awaiting review", d.TransactionID, st))
	}
	o.Reviews.Resolve(d.TransactionID)

	ctx, span := tracing.StartSpan(context.WithoutCancel(ctx), "pipeline.review", tracing.TransactionID(d.TransactionID))
	var err error
	if d.Approved {
		o.note(e, "approved by %s: %s", d.Reviewer, d.Note)
		err = o.process(ctx, e)
	} else {
		err = o.fail(ctx, e, models.StageApproval, models.NewPipelineError(models.ErrKindRiskRejection, models.StageApproval, nil,
			fmt.Sprintf("rejected by %s: %s", d.Reviewer, d.Note)))
	}
	tracing.End(span, err)
	return e.snapshot(), err
}

// ExpireReview fails a pipeline whose review deadline passed. It is a no-op
// for pipelines that already left approval.
func (o *Orchestrator) ExpireReview(ctx context.Context, txID string) error {
	e, ok := o.entry(txID)
	if !ok {
		return nil
	}
	e.work.Lock()
	defer e.work.Unlock()
	if e.stage() != models.StageApproval {
		return nil
	}
	o.Reviews.Resolve(txID)
	err := o.fail(context.WithoutCancel(ctx), e, models.StageApproval, models.NewPipelineError(models.ErrKindRiskRejection, models.StageApproval, nil,
		"review deadline passed"))
	if errors.Is(err, models.ErrRiskRejection) {
		return nil
	}
	return err
}

// process moves the balance, dispatches, and reverses the balance change
// when the dispatch fails. Withdrawals debit only if the balance covers the
// amount; deposits credit unconditionally.
func (o *Orchestrator) process(ctx context.Context, e *pipelineEntry) error {
	o.advance(ctx, e, models.StageProcessing, "")
	amount := e.req.Amount

	if err := o.applyBalance(ctx, e); err != nil {
		return o.fail(ctx, e, models.StageProcessing, asPipelineError(err, models.StageProcessing))
	}

	var res models.DispatchResult
	err := o.Guard.Run(ctx, models.StageProcessing, func(ctx context.Context) error {
		var err error
		res, err = o.Gateway.Dispatch(ctx, e.req.Method, models.DispatchRequest{
			TransactionID: e.req.ID,
			UserID:        e.req.UserID,
			Kind:          e.req.Kind,
			Amount:        amount,
			Currency:      e.req.Currency,
			Details:       e.req.Details,
		})
		return err
	})
	if err != nil {
		pe := asPipelineError(err, models.StageProcessing)
		if rerr := o.release(ctx, e); rerr != nil {
			if len(pe.Reasons) == 0 && pe.Err != nil {
				pe.Reasons = append(pe.Reasons, pe.Err.Error())
			}
			pe.Reasons = append(pe.Reasons, fmt.Sprintf("balance change of %s not reversed: %v", amount, rerr))
		}
		return o.fail(ctx, e, models.StageProcessing, pe)
	}
	o.note(e, "dispatched to %s as %s, fees %s", res.Provider, res.ExternalID, res.Fees)

	e.mu.Lock()
	e.p.ExternalID = res.ExternalID
	e.p.Fees = res.Fees
	e.mu.Unlock()
	fees := res.Fees
	o.advance(ctx, e, models.StageCompleted, "", models.TransactionUpdate{Fees: &fees, ExternalID: res.ExternalID})
	o.invalidate(ctx, e.req.UserID)
	o.Metrics.RecordOutcome(string(e.req.Kind), string(models.StageCompleted))
	o.Metrics.RecordActivePipelines(o.ActiveCount())
	return nil
}

// applyBalance reserves a withdrawal or credits a deposit, once per pipeline.
func (o *Orchestrator) applyBalance(ctx context.Context, e *pipelineEntry) error {
	e.mu.RLock()
	applied := e.p.Reserved
	e.mu.RUnlock()
	if applied {
		return nil
	}

	amount := e.req.Amount
	delta, floor, verb := amount, decimal.Zero, "credited"
	if e.req.Kind == models.KindWithdrawal {
		delta, floor, verb = amount.Neg(), amount, "reserved"
	}
	bal, err := o.Users.AdjustBalance(ctx, e.req.UserID, delta, floor)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.p.Reserved = true
	e.mu.Unlock()
	o.note(e, "%s %s, balance now %s", verb, amount, bal)
	o.invalidate(ctx, e.req.UserID)
	return nil
}

// release reverses the balance change of a pipeline whose dispatch failed.
func (o *Orchestrator) release(ctx context.Context, e *pipelineEntry) error {
	e.mu.RLock()
	applied := e.p.Reserved
	e.mu.RUnlock()
	if !applied {
		return nil
	}

	amount := e.req.Amount
	delta, floor, what := amount, decimal.Zero, "reservation"
	if e.req.Kind == models.KindDeposit {
		delta, floor, what = amount.Neg(), amount, "credit"
	}
	bal, err := o.Users.AdjustBalance(ctx, e.req.UserID, delta, floor)
	if err != nil {
		o.Metrics.RecordError("balance_reversal")
		o.Logger.Error("balance reversal failed",
			applogger.String("transaction_id", e.req.ID),
			applogger.String("user_id", e.req.UserID),
			applogger.String("amount", amount.String()),
			applogger.Error(err))
		o.note(e, "%s of %s not reversed: %v", what, amount, err)
		return err
	}
	e.mu.Lock()
	e.p.Reserved = false
	e.mu.Unlock()
	o.note(e, "%s of %s released, balance now %s", what, amount, bal)
	o.invalidate(ctx, e.req.UserID)
	return nil
}

// fail moves the pipeline into failed and returns the pipeline error.
func (o *Orchestrator) fail(ctx context.Context, e *pipelineEntry, at models.Stage, err error) error {
	pe := asPipelineError(err, at)
	now := o.Clock()

	e.mu.Lock()
	if ferr := e.p.Fail(pe.Kind, pe.Reason(), now); ferr != nil {
		e.mu.Unlock()
		return pe
	}
	e.mu.Unlock()

	if e.recorded {
		o.updateRecord(ctx, e, models.TransactionUpdate{Status: models.StageFailed, FailureReason: pe.Reason(), At: now})
		o.invalidate(ctx, e.req.UserID)
	}
	o.emit(ctx, e, pe.Kind)
	o.Metrics.RecordOutcome(string(e.req.Kind), string(pe.Kind))
	o.Metrics.RecordActivePipelines(o.ActiveCount())
	o.Logger.Info("pipeline failed",
		applogger.String("transaction_id", e.req.ID),
		applogger.String("user_id", e.req.UserID),
		applogger.String("stage", string(at)),
		applogger.String("error_kind", string(pe.Kind)),
		applogger.String("reason", pe.Reason()),
	)
	return pe
}

// advance records a forward transition and mirrors it to the ledger, audit
// trail, event stream and metrics.
func (o *Orchestrator) advance(ctx context.Context, e *pipelineEntry, stage models.Stage, note string, updates ...models.TransactionUpdate) {
	now := o.Clock()
	e.mu.Lock()
	err := e.p.Advance(stage, now, note)
	e.mu.Unlock()
	if err != nil {
		o.Logger.Error("illegal transition", applogger.String("transaction_id", e.req.ID), applogger.Error(err))
		return
	}

	if e.recorded {
		upd := models.TransactionUpdate{Status: stage, At: now}
		for _, u := range updates {
			if u.Fees != nil {
				upd.Fees = u.Fees
			}
			if u.ExternalID != "" {
				upd.ExternalID = u.ExternalID
			}
		}
		o.updateRecord(ctx, e, upd)
	}
	o.emit(ctx, e, "")
	o.Logger.Debug("stage entered",
		applogger.String("transaction_id", e.req.ID),
		applogger.String("user_id", e.req.UserID),
		applogger.String("stage", string(stage)),
	)
}

// emit writes the audit entry and stage event of the current stage.
// Both are best effort: a failing sink is logged, not fatal.
func (o *Orchestrator) emit(ctx context.Context, e *pipelineEntry, kind models.ErrorKind) {
	e.mu.RLock()
	p := e.p
	last := p.Timeline[len(p.Timeline)-1]
	msg := ""
	if n := len(p.Notes); n > 0 {
		msg = p.Notes[n-1].Message
	}
	ev := models.StageEvent{
		TransactionID: p.ID,
		UserID:        p.UserID,
		Kind:          p.Kind,
		Amount:        p.Amount,
		Stage:         last.Stage,
		Priority:      p.Priority,
		ErrorKind:     kind,
		Reason:        p.FailureReason,
		At:            last.At,
	}
	e.mu.RUnlock()

	o.Metrics.RecordStageTransition(string(ev.Kind), string(ev.Stage))
	entry := models.AuditEntry{
		ID:            uuid.NewString(),
		TransactionID: ev.TransactionID,
		UserID:        ev.UserID,
		Stage:         ev.Stage,
		Message:       msg,
		ErrorKind:     kind,
		At:            ev.At,
	}
	if err := o.Audit.Record(ctx, entry); err != nil {
		o.Metrics.RecordError("audit")
		o.Logger.Error("audit record failed", applogger.String("transaction_id", ev.TransactionID), applogger.Error(err))
	} else {
		e.mu.Lock()
		e.audited = true
		e.mu.Unlock()
	}
	if err := o.Events.PublishStage(ctx, ev); err != nil {
		o.Metrics.RecordError("publish_stage")
		o.Logger.Warn("stage event publish failed", applogger.String("transaction_id", ev.TransactionID), applogger.Error(err))
	}
}

func (o *Orchestrator) note(e *pipelineEntry, format string, args ...interface{}) {
	now := o.Clock()
	e.mu.Lock()
	e.p.AddNote(now, format, args...)
	e.mu.Unlock()
}

func (o *Orchestrator) updateRecord(ctx context.Context, e *pipelineEntry, upd models.TransactionUpdate) {
	if upd.At.IsZero() {
		upd.At = o.Clock()
	}
	if err := o.Ledger.Update(ctx, e.req.ID, upd); err != nil {
		o.Metrics.RecordError("ledger_update")
		o.Logger.Error("ledger update failed",
			applogger.String("transaction_id", e.req.ID),
			applogger.String("status", string(upd.Status)),
			applogger.Error(err))
	}
}

func (o *Orchestrator) invalidate(ctx context.Context, userID string) {
	if o.History == nil {
		return
	}
	if err := o.History.Invalidate(ctx, userID); err != nil {
		o.Logger.Warn("history invalidation failed", applogger.String("user_id", userID), applogger.Error(err))
	}
}

func (o *Orchestrator) entry(id string) (*pipelineEntry, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	e, ok := o.pipelines[id]
	return e, ok
}

// Status returns a copy of the pipeline, or nil when id is unknown.
func (o *Orchestrator) Status(id string) *models.Pipeline {
	e, ok := o.entry(id)
	if !ok {
		return nil
	}
	return e.snapshot()
}

// Active lists non-terminal pipelines, most urgent first then oldest first.
// limit <= 0 returns all of them.
func (o *Orchestrator) Active(limit int) []*models.Pipeline {
	o.mu.RLock()
	entries := make([]*pipelineEntry, 0, len(o.pipelines))
	for _, e := range o.pipelines {
		entries = append(entries, e)
	}
	o.mu.RUnlock()

	out := make([]*models.Pipeline, 0, len(entries))
	for _, e := range entries {
		if p := e.snapshot(); !p.Stage.Terminal() {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		pi, pj := out[i].Priority.Rank(), out[j].Priority.Rank()
		if pi != pj {
			return pi > pj
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (o *Orchestrator) ActiveCount() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	n := 0
	for _, e := range o.pipelines {
		if !e.stage().Terminal() {
			n++
		}
	}
	return n
}

// Prune drops terminal pipelines last updated before cutoff. Their ledger
// record or audit trail still blocks resubmission of the same id, so a
// pipeline with neither is kept.
func (o *Orchestrator) Prune(cutoff time.Time) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for id, e := range o.pipelines {
		e.mu.RLock()
		drop := e.p.Stage.Terminal() && e.p.UpdatedAt.Before(cutoff) && (e.recorded || e.audited)
		e.mu.RUnlock()
		if drop {
			delete(o.pipelines, id)
			n++
		}
	}
	return n
}

func asPipelineError(err error, stage models.Stage) *models.PipelineError {
	var pe *models.PipelineError
	if errors.As(err, &pe) {
		if pe.Stage == "" {
			pe.Stage = stage
		}
		return pe
	}
	return models.NewPipelineError(models.ErrKindProvider, stage, err)
}

func flagCodes(flags []models.Flag) []string {
	out := make([]string, 0, len(flags))
	for _, f := range flags {
		out = append(out, f.Code)
	}
	return out
}

func containsFold(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}
