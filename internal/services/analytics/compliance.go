package analytics

import (
	"context"
	"strings"
	"time"

	"RiskGate/internal/domain/models"
	"RiskGate/internal/services/features"

	"github.com/shopspring/decimal"
)

const structuringCount = 3

// ComplianceAnalyzer raises KYC, jurisdiction and structuring flags. Any flag
// it raises is of type compliance, which the aml rule turns into a violation.
type ComplianceAnalyzer struct {
	history            *History
	kycThreshold       decimal.Decimal
	reportingThreshold decimal.Decimal
	highRisk           map[string]struct{}
}

func NewComplianceAnalyzer(h *History, kycThreshold, reportingThreshold decimal.Decimal, highRiskCountries []string) *ComplianceAnalyzer {
	hr := make(map[string]struct{}, len(highRiskCountries))
	for _, c := range highRiskCountries {
		hr[strings.ToUpper(c)] = struct{}{}
	}
	return &ComplianceAnalyzer{
		history:            h,
		kycThreshold:       kycThreshold,
		reportingThreshold: reportingThreshold,
		highRisk:           hr,
	}
}

func (a *ComplianceAnalyzer) Name() string { return "compliance" }

func (a *ComplianceAnalyzer) Analyze(ctx context.Context, in models.AnalysisInput, p *models.Profiles) ([]models.Flag, error) {
	user, err := a.history.User(ctx, in.UserID)
	if err != nil {
		return nil, err
	}

	cp := models.ComplianceProfile{
		KYCLevel:    user.KYCLevel,
		KYCVerified: user.KYCVerified,
		Country:     strings.ToUpper(user.Country),
	}
	if c := in.MetaString("country"); c != "" {
		cp.Country = strings.ToUpper(c)
	}
	_, cp.HighRiskCountry = a.highRisk[cp.Country]
	cp.KYCThresholdReach = a.kycThreshold.IsPositive() && in.Amount.GreaterThan(a.kycThreshold)

	var flags []models.Flag
	if in.Kind == models.KindDeposit && a.reportingThreshold.IsPositive() {
		txs, err := a.history.Transactions(ctx, in.UserID, in.Now.Add(-24*time.Hour), in.Now)
		if err != nil {
			return nil, err
		}
		lo := a.reportingThreshold.Mul(decimal.NewFromFloat(0.9))
		near := features.Select(txs,
			features.OfKind(models.KindDeposit),
			features.Excluding(in.TransactionID),
			features.AmountIn(lo, a.reportingThreshold))
		cp.NearThreshold24h = len(near)
		for _, r := range near {
			if r.Status == models.StageFailed {
				cp.NearThreshold24h--
			}
		}
		if in.Amount.GreaterThanOrEqual(lo) && in.Amount.LessThan(a.reportingThreshold) {
			cp.NearThreshold24h++
		}
		if cp.NearThreshold24h >= structuringCount {
			flags = append(flags, flag(models.FlagCompliance, models.SeverityCritical, models.FlagPossibleStructuring, 30,
				"%d deposits just under the %s reporting threshold in 24 hours", cp.NearThreshold24h, a.reportingThreshold))
		}
	}

	if cp.KYCThresholdReach && !cp.KYCVerified {
		flags = append(flags, flag(models.FlagCompliance, models.SeverityWarning, models.FlagKYCRequired, 10,
			"amount %s requires verified KYC", in.Amount))
	}
	if cp.HighRiskCountry {
		flags = append(flags, flag(models.FlagCompliance, models.SeverityCritical, models.FlagHighRiskJurisdiction, 25,
			"country %s is on the high risk list", cp.Country))
	}
	p.Compliance = cp
	return flags, nil
}
