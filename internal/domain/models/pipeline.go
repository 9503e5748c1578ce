package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Stage is the one status vocabulary used by pipelines, ledger records,
// audit entries and events.
type Stage string

const (
	StageInitiated    Stage = "initiated"
	StageValidation   Stage = "validation"
	StageRiskAnalysis Stage = "risk_analysis"
	StageCompliance   Stage = "compliance"
	StageApproval     Stage = "approval"
	StageProcessing   Stage = "processing"
	StageCompleted    Stage = "completed"
	StageFailed       Stage = "failed"
)

var nextStages = map[Stage][]Stage{
	StageInitiated:    {StageValidation},
	StageValidation:   {StageRiskAnalysis},
	StageRiskAnalysis: {StageCompliance},
	StageCompliance:   {StageApproval, StageProcessing},
	StageApproval:     {StageProcessing},
	StageProcessing:   {StageCompleted},
}

// Terminal reports whether no further transition is possible.
func (s Stage) Terminal() bool {
	return s == StageCompleted || s == StageFailed
}

// CanTransition reports whether from -> to is a legal forward move.
// failed is reachable from every non-terminal stage.
func CanTransition(from, to Stage) bool {
	if from.Terminal() {
		return false
	}
	if to == StageFailed {
		return true
	}
	for _, s := range nextStages[from] {
		if s == to {
			return true
		}
	}
	return false
}

type StageEntry struct {
	Stage Stage     `json:"stage"`
	At    time.Time `json:"at"`
}

type Note struct {
	Stage   Stage     `json:"stage"`
	At      time.Time `json:"at"`
	Message string    `json:"message"`
}

// Pipeline tracks one transaction through the stage machine.
type Pipeline struct {
	ID            string                 `json:"id"`
	UserID        string                 `json:"user_id"`
	Kind          Kind                   `json:"kind"`
	Amount        decimal.Decimal        `json:"amount"`
	Currency      string                 `json:"currency"`
	Method        string                 `json:"method"`
	Stage         Stage                  `json:"stage"`
	Priority      Priority               `json:"priority"`
	Timeline      []StageEntry           `json:"timeline"`
	Notes         []Note                 `json:"notes"`
	Metadata      map[string]interface{} `json:"metadata"`
	ErrorKind     ErrorKind              `json:"error_kind,omitempty"`
	FailureReason string                 `json:"failure_reason,omitempty"`
	ExternalID    string                 `json:"external_id,omitempty"`
	Fees          decimal.Decimal        `json:"fees"`
	// Reserved is set while the pipeline's balance change (withdrawal debit
	// or deposit credit) is applied; a failed dispatch reverses it.
	Reserved      bool                   `json:"reserved"`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
}

// NewPipeline starts a pipeline in the initiated stage.
func NewPipeline(req TransactionRequest, priority Priority, at time.Time) *Pipeline {
	return &Pipeline{
		ID:        req.ID,
		UserID:    req.UserID,
		Kind:      req.Kind,
		Amount:    req.Amount,
		Currency:  req.Currency,
		Method:    req.Method,
		Stage:     StageInitiated,
		Priority:  priority,
		Timeline:  []StageEntry{{Stage: StageInitiated, At: at}},
		Notes:     []Note{{Stage: StageInitiated, At: at, Message: "pipeline created"}},
		Metadata:  make(map[string]interface{}),
		CreatedAt: at,
		UpdatedAt: at,
	}
}

// Advance moves the pipeline to stage, appending timeline and note entries.
func (p *Pipeline) Advance(stage Stage, at time.Time, note string) error {
	if !CanTransition(p.Stage, stage) {
		return fmt.Errorf("illegal transition %s -> %s", p.Stage, stage)
	}
	p.Stage = stage
	p.Timeline = append(p.Timeline, StageEntry{Stage: stage, At: at})
	p.UpdatedAt = at
	if note != "" {
		p.Notes = append(p.Notes, Note{Stage: stage, At: at, Message: note})
	}
	return nil
}

// AddNote appends a note against the current stage.
func (p *Pipeline) AddNote(at time.Time, format string, args ...interface{}) {
	p.Notes = append(p.Notes, Note{Stage: p.Stage, At: at, Message: fmt.Sprintf(format, args...)})
	p.UpdatedAt = at
}

// Fail moves the pipeline into failed and records why.
func (p *Pipeline) Fail(kind ErrorKind, reason string, at time.Time) error {
	from := p.Stage
	if err := p.Advance(StageFailed, at, ""); err != nil {
		return err
	}
	p.ErrorKind = kind
	p.FailureReason = reason
	p.Notes = append(p.Notes, Note{Stage: StageFailed, At: at, Message: fmt.Sprintf("%s at %s: %s", kind, from, reason)})
	return nil
}

// Stages lists visited stages in order.
func (p *Pipeline) Stages() []Stage {
	out := make([]Stage, len(p.Timeline))
	for i, e := range p.Timeline {
		out[i] = e.Stage
	}
	return out
}

// Visited reports whether the pipeline ever entered stage.
func (p *Pipeline) Visited(stage Stage) bool {
	for _, e := range p.Timeline {
		if e.Stage == stage {
			return true
		}
	}
	return false
}

// Clone returns a deep copy safe to hand to readers.
func (p *Pipeline) Clone() *Pipeline {
	out := *p
	out.Timeline = append([]StageEntry(nil), p.Timeline...)
	out.Notes = append([]Note(nil), p.Notes...)
	out.Metadata = copyMeta(p.Metadata)
	return &out
}
