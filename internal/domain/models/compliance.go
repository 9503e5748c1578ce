package models

import "github.com/shopspring/decimal"

type RuleType string

const (
	RuleKYC       RuleType = "kyc"
	RuleAML       RuleType = "aml"
	RuleSanctions RuleType = "sanctions"
	RuleVelocity  RuleType = "velocity"
	RuleAmount    RuleType = "amount"
)

// ComplianceRule is loaded once from configuration and never mutated.
type ComplianceRule struct {
	ID       string                 `json:"id" yaml:"id"`
	Type     RuleType               `json:"type" yaml:"type"`
	Severity Severity               `json:"severity" yaml:"severity"`
	Active   bool                   `json:"active" yaml:"active"`
	Params   map[string]interface{} `json:"params" yaml:"params"`
	Actions  []string               `json:"actions" yaml:"actions"` // e.g. "block", "notify_compliance"
}

// ParamDecimal reads a numeric parameter, accepting numbers or numeric strings.
func (r ComplianceRule) ParamDecimal(key string) (decimal.Decimal, bool) {
	switch v := r.Params[key].(type) {
	case int:
		return decimal.NewFromInt(int64(v)), true
	case int64:
		return decimal.NewFromInt(v), true
	case float64:
		return decimal.NewFromFloat(v), true
	case string:
		d, err := decimal.NewFromString(v)
		return d, err == nil
	}
	return decimal.Zero, false
}

// ParamInt reads an integer parameter.
func (r ComplianceRule) ParamInt(key string) (int, bool) {
	d, ok := r.ParamDecimal(key)
	if !ok {
		return 0, false
	}
	return int(d.IntPart()), true
}

// ParamString reads a string parameter.
func (r ComplianceRule) ParamString(key string) string {
	s, _ := r.Params[key].(string)
	return s
}

// ParamStrings reads a list parameter.
func (r ComplianceRule) ParamStrings(key string) []string {
	switch v := r.Params[key].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

type Violation struct {
	RuleID   string   `json:"rule_id"`
	Type     RuleType `json:"type"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	Actions  []string `json:"actions,omitempty"`
}
