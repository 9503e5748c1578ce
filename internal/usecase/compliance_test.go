package usecase

import (
	"context"
	"testing"

	"RiskGate/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rule(id string, typ models.RuleType, params map[string]interface{}) models.ComplianceRule {
	return models.ComplianceRule{ID: id, Type: typ, Severity: models.SeverityCritical, Active: true, Params: params, Actions: []string{"block"}}
}

func ruleIDs(vs []models.Violation) []string {
	out := make([]string, 0, len(vs))
	for _, v := range vs {
		out = append(out, v.RuleID)
	}
	return out
}

func TestComplianceRules(t *testing.T) {
	verified := &models.User{ID: "u1", KYCVerified: true, KYCLevel: 1, Country: "DE"}
	unverified := &models.User{ID: "u1", Country: "DE"}

	tests := []struct {
		name string
		rule models.ComplianceRule
		in   ComplianceInput
		want bool
	}{
		{
			name: "amount above ceiling",
			rule: rule("max", models.RuleAmount, map[string]interface{}{"max_amount": 1000}),
			in:   ComplianceInput{Kind: models.KindDeposit, Amount: dec("1000.01")},
			want: true,
		},
		{
			name: "amount at ceiling",
			rule: rule("max", models.RuleAmount, map[string]interface{}{"max_amount": "1000"}),
			in:   ComplianceInput{Kind: models.KindDeposit, Amount: dec("1000")},
		},
		{
			name: "amount rule scoped to other kind",
			rule: rule("max", models.RuleAmount, map[string]interface{}{"max_amount": 10, "kind": "withdrawal"}),
			in:   ComplianceInput{Kind: models.KindDeposit, Amount: dec("500")},
		},
		{
			name: "kyc unverified above threshold",
			rule: rule("kyc", models.RuleKYC, map[string]interface{}{"threshold": 2000}),
			in:   ComplianceInput{Amount: dec("2500"), User: unverified},
			want: true,
		},
		{
			name: "kyc unverified at threshold",
			rule: rule("kyc", models.RuleKYC, map[string]interface{}{"threshold": 2000}),
			in:   ComplianceInput{Amount: dec("2000"), User: unverified},
		},
		{
			name: "kyc level too low",
			rule: rule("kyc", models.RuleKYC, map[string]interface{}{"threshold": 2000, "min_level": 2}),
			in:   ComplianceInput{Amount: dec("2500"), User: verified},
			want: true,
		},
		{
			name: "aml with compliance flag",
			rule: rule("aml", models.RuleAML, nil),
			in: ComplianceInput{Assessment: &models.RiskAssessment{Flags: []models.Flag{
				{Type: models.FlagCompliance, Code: models.FlagPossibleStructuring},
			}}},
			want: true,
		},
		{
			name: "aml with other flags only",
			rule: rule("aml", models.RuleAML, nil),
			in: ComplianceInput{Assessment: &models.RiskAssessment{Flags: []models.Flag{
				{Type: models.FlagDevice, Code: models.FlagVPNDetected},
			}}},
		},
		{
			name: "sanctions from user country",
			rule: rule("sanctions", models.RuleSanctions, map[string]interface{}{"countries": []interface{}{"de"}}),
			in:   ComplianceInput{User: verified},
			want: true,
		},
		{
			name: "sanctions from metadata country",
			rule: rule("sanctions", models.RuleSanctions, map[string]interface{}{"countries": []string{"KP"}}),
			in:   ComplianceInput{User: verified, Metadata: map[string]interface{}{"country": "kp"}},
			want: true,
		},
		{
			name: "velocity flag",
			rule: rule("velocity", models.RuleVelocity, nil),
			in: ComplianceInput{Assessment: &models.RiskAssessment{Flags: []models.Flag{
				{Type: models.FlagVelocity, Code: models.FlagHighVelocity},
			}}},
			want: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vs, err := NewComplianceRuleSet([]models.ComplianceRule{tt.rule}).Evaluate(context.Background(), tt.in)
			require.NoError(t, err)
			if tt.want {
				require.Len(t, vs, 1)
				assert.Equal(t, tt.rule.ID, vs[0].RuleID)
				assert.Equal(t, tt.rule.Type, vs[0].Type)
				assert.NotEmpty(t, vs[0].Message)
				assert.Equal(t, []string{"block"}, vs[0].Actions)
			} else {
				assert.Empty(t, vs)
			}
		})
	}
}

func TestComplianceEvaluatesEveryActiveRule(t *testing.T) {
	inactive := rule("off", models.RuleAmount, map[string]interface{}{"max_amount": 1})
	inactive.Active = false
	set := NewComplianceRuleSet([]models.ComplianceRule{
		rule("max", models.RuleAmount, map[string]interface{}{"max_amount": 100}),
		inactive,
		rule("kyc", models.RuleKYC, map[string]interface{}{"threshold": 50}),
	})
	assert.Equal(t, 2, set.ActiveRuleCount())
	assert.Len(t, set.Rules(), 3)

	vs, err := set.Evaluate(context.Background(), ComplianceInput{
		Kind: models.KindDeposit, Amount: dec("200"), User: &models.User{ID: "u1"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"max", "kyc"}, ruleIDs(vs))
}

func TestComplianceRejectsMalformedRules(t *testing.T) {
	_, err := NewComplianceRuleSet([]models.ComplianceRule{rule("bad", "geo", nil)}).
		Evaluate(context.Background(), ComplianceInput{Amount: dec("1")})
	assert.Error(t, err)

	_, err = NewComplianceRuleSet([]models.ComplianceRule{rule("max", models.RuleAmount, nil)}).
		Evaluate(context.Background(), ComplianceInput{Amount: dec("1")})
	assert.Error(t, err)

	_, err = NewComplianceRuleSet([]models.ComplianceRule{rule("kyc", models.RuleKYC, nil)}).
		Evaluate(context.Background(), ComplianceInput{Amount: dec("1"), User: &models.User{ID: "u1"}})
	assert.Error(t, err)
}
