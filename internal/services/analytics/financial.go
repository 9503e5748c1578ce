package analytics

import (
	"context"
	"time"

	"RiskGate/internal/domain/models"
	"RiskGate/internal/services/features"

	"github.com/shopspring/decimal"
)

const (
	rapidWithdrawalRatio = 0.9
	largeAmountFactor    = 5
	newAccountAge        = 7 * 24 * time.Hour
	newAccountAmount     = 1000
)

// FinancialAnalyzer looks at balances, deposit/withdrawal history and velocity.
type FinancialAnalyzer struct {
	history           *History
	velocityThreshold int
}

func NewFinancialAnalyzer(h *History, velocityThreshold int) *FinancialAnalyzer {
	return &FinancialAnalyzer{history: h, velocityThreshold: velocityThreshold}
}

func (a *FinancialAnalyzer) Name() string { return "financial" }

func (a *FinancialAnalyzer) Analyze(ctx context.Context, in models.AnalysisInput, p *models.Profiles) ([]models.Flag, error) {
	user, err := a.history.User(ctx, in.UserID)
	if err != nil {
		return nil, err
	}
	all, err := a.history.Transactions(ctx, in.UserID, time.Time{}, in.Now)
	if err != nil {
		return nil, err
	}
	all = features.Select(all, features.Excluding(in.TransactionID))

	monthAgo := in.Now.AddDate(0, 0, -30)
	done := features.WithStatus(models.StageCompleted)
	dep30 := features.Aggregate("deposits_30d", all, monthAgo, in.Now, features.OfKind(models.KindDeposit), done)
	wd30 := features.Aggregate("withdrawals_30d", all, monthAgo, in.Now, features.OfKind(models.KindWithdrawal), done)
	lifetime := features.Aggregate("deposits_lifetime", all, time.Time{}, in.Now, features.OfKind(models.KindDeposit), done)
	hourly := features.Aggregate("hourly", all, in.Now.Add(-time.Hour), in.Now, features.OfKind(in.Kind))

	fp := models.FinancialProfile{
		Balance:            user.Balance,
		Deposits30d:        dep30.Sum,
		Withdrawals30d:     wd30.Sum,
		DepositCount30d:    dep30.Count,
		WithdrawalCount30d: wd30.Count,
		LifetimeDeposits:   lifetime.Count,
		AverageDeposit:     decimal.Zero,
		HourlyCount:        hourly.Count + 1,
		HourlySum:          hourly.Sum.Add(in.Amount),
		AccountAgeDays:     int(user.AccountAge(in.Now).Hours() / 24),
	}
	if lifetime.Count > 0 {
		fp.AverageDeposit = lifetime.Sum.Div(decimal.NewFromInt(int64(lifetime.Count))).Round(2)
	}
	if in.Kind == models.KindWithdrawal && dep30.Sum.IsPositive() {
		fp.WithdrawDepositRate, _ = wd30.Sum.Add(in.Amount).Div(dep30.Sum).Float64()
	}
	p.Financial = fp

	var flags []models.Flag
	if in.Kind == models.KindWithdrawal && fp.WithdrawDepositRate > rapidWithdrawalRatio {
		flags = append(flags, flag(models.FlagFinancial, models.SeverityWarning, models.FlagRapidWithdrawal, 15,
			"withdrawals reach %.0f%% of 30 day deposits", fp.WithdrawDepositRate*100))
	}
	if a.velocityThreshold > 0 && fp.HourlyCount > a.velocityThreshold {
		flags = append(flags, flag(models.FlagVelocity, models.SeverityCritical, models.FlagHighVelocity, 25,
			"%d %s requests in the last hour", fp.HourlyCount, in.Kind))
	}
	if in.Kind == models.KindWithdrawal && fp.LifetimeDeposits == 0 {
		flags = append(flags, flag(models.FlagFinancial, models.SeverityCritical, models.FlagNoDepositHistory, 50,
			"withdrawal without any completed deposit"))
	}
	if fp.AverageDeposit.IsPositive() && in.Amount.GreaterThan(fp.AverageDeposit.Mul(decimal.NewFromInt(largeAmountFactor))) {
		flags = append(flags, flag(models.FlagFinancial, models.SeverityWarning, models.FlagLargeAmount, 10,
			"amount %s exceeds %dx the average deposit %s", in.Amount, largeAmountFactor, fp.AverageDeposit))
	}
	if user.AccountAge(in.Now) < newAccountAge && in.Amount.GreaterThan(decimal.NewFromInt(newAccountAmount)) {
		flags = append(flags, flag(models.FlagFinancial, models.SeverityWarning, models.FlagNewAccountLargeTx, 15,
			"account is %d days old", fp.AccountAgeDays))
	}
	return flags, nil
}
