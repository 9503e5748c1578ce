package usecase

import (
	"context"
	"fmt"
	"strings"

	"RiskGate/internal/domain/models"

	"github.com/shopspring/decimal"
)

// ComplianceInput is what every rule is evaluated against.
type ComplianceInput struct {
	UserID     string
	Kind       models.Kind
	Amount     decimal.Decimal
	User       *models.User
	Metadata   map[string]interface{}
	Assessment *models.RiskAssessment
}

// ComplianceRuleSet holds the rules loaded at startup. It is read-only.
type ComplianceRuleSet struct {
	rules []models.ComplianceRule
}

func NewComplianceRuleSet(rules []models.ComplianceRule) *ComplianceRuleSet {
	cp := make([]models.ComplianceRule, len(rules))
	copy(cp, rules)
	return &ComplianceRuleSet{rules: cp}
}

// Evaluate runs every active rule and returns all violations.
func (s *ComplianceRuleSet) Evaluate(_ context.Context, in ComplianceInput) ([]models.Violation, error) {
	var out []models.Violation
	for _, r := range s.rules {
		if !r.Active {
			continue
		}
		msg, violated, err := evaluateRule(r, in)
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", r.ID, err)
		}
		if violated {
			out = append(out, models.Violation{RuleID: r.ID, Type: r.Type, Severity: r.Severity, Message: msg, Actions: r.Actions})
		}
	}
	return out, nil
}

func (s *ComplianceRuleSet) ActiveRuleCount() int {
	n := 0
	for _, r := range s.rules {
		if r.Active {
			n++
		}
	}
	return n
}

// Rules returns a copy of the configured rules.
func (s *ComplianceRuleSet) Rules() []models.ComplianceRule {
	out := make([]models.ComplianceRule, len(s.rules))
	copy(out, s.rules)
	return out
}

func evaluateRule(r models.ComplianceRule, in ComplianceInput) (string, bool, error) {
	switch r.Type {
	case models.RuleAmount:
		ceiling, ok := r.ParamDecimal("max_amount")
		if !ok {
			return "", false, fmt.Errorf("max_amount is required")
		}
		if k := r.ParamString("kind"); k != "" && models.Kind(k) != in.Kind {
			return "", false, nil
		}
		if in.Amount.GreaterThan(ceiling) {
			return fmt.Sprintf("amount %s exceeds ceiling %s", in.Amount, ceiling), true, nil
		}

	case models.RuleKYC:
		threshold, ok := r.ParamDecimal("threshold")
		if !ok {
			return "", false, fmt.Errorf("threshold is required")
		}
		if !in.Amount.GreaterThan(threshold) || in.User == nil {
			return "", false, nil
		}
		minLevel, hasLevel := r.ParamInt("min_level")
		if !in.User.KYCVerified {
			return fmt.Sprintf("verification required above %s", threshold), true, nil
		}
		if hasLevel && in.User.KYCLevel < minLevel {
			return fmt.Sprintf("kyc level %d below required %d above %s", in.User.KYCLevel, minLevel, threshold), true, nil
		}

	case models.RuleAML:
		if in.Assessment == nil {
			return "", false, nil
		}
		var codes []string
		for _, f := range in.Assessment.Flags {
			if f.Type == models.FlagCompliance {
				codes = append(codes, f.Code)
			}
		}
		if len(codes) > 0 {
			return "compliance flags raised: " + strings.Join(codes, ", "), true, nil
		}

	case models.RuleSanctions:
		countries := r.ParamStrings("countries")
		var candidates []string
		if in.User != nil && in.User.Country != "" {
			candidates = append(candidates, in.User.Country)
		}
		if c, ok := in.Metadata["country"].(string); ok && c != "" {
			candidates = append(candidates, c)
		}
		for _, c := range candidates {
			for _, banned := range countries {
				if strings.EqualFold(c, banned) {
					return fmt.Sprintf("country %s is sanctioned", strings.ToUpper(c)), true, nil
				}
			}
		}

	case models.RuleVelocity:
		if in.Assessment != nil && in.Assessment.HasFlag(models.FlagHighVelocity) {
			return "request velocity above the compliance limit", true, nil
		}

	default:
		return "", false, fmt.Errorf("unknown rule type %q", r.Type)
	}
	return "", false, nil
}
