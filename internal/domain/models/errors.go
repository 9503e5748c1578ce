package models

import (
	"errors"
	"fmt"
	"strings"
)

type ErrorKind string

const (
	ErrKindValidation          ErrorKind = "validation_error"
	ErrKindRiskRejection       ErrorKind = "risk_rejection"
	ErrKindComplianceViolation ErrorKind = "compliance_violation"
	ErrKindProvider            ErrorKind = "provider_error"
	ErrKindInsufficientBalance ErrorKind = "insufficient_balance"
	ErrKindIdempotency         ErrorKind = "idempotency_violation"
)

// PipelineError is the error every failed submission resolves to.
// errors.Is matches on Kind, so callers compare against the sentinels below.
type PipelineError struct {
	Kind    ErrorKind
	Stage   Stage
	Reasons []string
	Err     error
}

var (
	ErrValidation          error = &PipelineError{Kind: ErrKindValidation}
	ErrRiskRejection       error = &PipelineError{Kind: ErrKindRiskRejection}
	ErrComplianceViolation error = &PipelineError{Kind: ErrKindComplianceViolation}
	ErrProvider            error = &PipelineError{Kind: ErrKindProvider}
	ErrInsufficientBalance error = &PipelineError{Kind: ErrKindInsufficientBalance}
	ErrIdempotency         error = &PipelineError{Kind: ErrKindIdempotency}

	// Lookup failures returned by adapters.
	ErrUserNotFound        = errors.New("user not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrPipelineNotFound    = errors.New("pipeline not found")
)

func NewPipelineError(kind ErrorKind, stage Stage, err error, reasons ...string) *PipelineError {
	return &PipelineError{Kind: kind, Stage: stage, Reasons: reasons, Err: err}
}

func (e *PipelineError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Stage != "" {
		fmt.Fprintf(&b, " at %s", e.Stage)
	}
	if len(e.Reasons) > 0 {
		b.WriteString(": ")
		b.WriteString(strings.Join(e.Reasons, "; "))
	} else if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

func (e *PipelineError) Is(target error) bool {
	t, ok := target.(*PipelineError)
	return ok && t.Kind == e.Kind
}

// Reason returns a single line describing the failure.
func (e *PipelineError) Reason() string {
	if len(e.Reasons) > 0 {
		return strings.Join(e.Reasons, "; ")
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

// KindOf extracts the pipeline error kind from err, if any.
func KindOf(err error) (ErrorKind, bool) {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind, true
	}
	return "", false
}
