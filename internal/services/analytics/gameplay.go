package analytics

import (
	"context"

	"RiskGate/internal/domain/models"
	"RiskGate/internal/services/features"
)

const (
	abnormalWinRate = 0.8
	minBetsForRate  = 20
)

// GameplayAnalyzer compares wagering with deposits and checks win rates.
type GameplayAnalyzer struct {
	history *History
}

func NewGameplayAnalyzer(h *History) *GameplayAnalyzer {
	return &GameplayAnalyzer{history: h}
}

func (a *GameplayAnalyzer) Name() string { return "gameplay" }

func (a *GameplayAnalyzer) Analyze(ctx context.Context, in models.AnalysisInput, p *models.Profiles) ([]models.Flag, error) {
	monthAgo := in.Now.AddDate(0, 0, -30)
	bets, err := a.history.Bets(ctx, in.UserID, monthAgo, in.Now)
	if err != nil {
		return nil, err
	}
	txs, err := a.history.Transactions(ctx, in.UserID, monthAgo, in.Now)
	if err != nil {
		return nil, err
	}

	var gp models.GameplayProfile
	wins := 0
	for _, b := range bets {
		gp.Bets30d++
		gp.Wagered30d += b.Stake
		gp.Won30d += b.Payout
		if b.Won() {
			wins++
		}
	}
	if gp.Bets30d > 0 {
		gp.WinRate = float64(wins) / float64(gp.Bets30d)
	}
	deposits := features.Aggregate("deposits_30d", txs, monthAgo, in.Now,
		features.OfKind(models.KindDeposit),
		features.WithStatus(models.StageCompleted),
		features.Excluding(in.TransactionID))
	deposited, _ := deposits.Sum.Float64()
	if deposited > 0 {
		gp.WageringRatio = gp.Wagered30d / deposited
	}
	p.Gameplay = gp

	var flags []models.Flag
	if in.Kind == models.KindWithdrawal && gp.Wagered30d < deposited {
		flags = append(flags, flag(models.FlagGameplay, models.SeverityWarning, models.FlagLowWagering, 10,
			"wagered %.2f of %.2f deposited in 30 days", gp.Wagered30d, deposited))
	}
	if gp.Bets30d >= minBetsForRate && gp.WinRate > abnormalWinRate {
		flags = append(flags, flag(models.FlagGameplay, models.SeverityWarning, models.FlagAbnormalWinRate, 15,
			"win rate %.0f%% over %d bets", gp.WinRate*100, gp.Bets30d))
	}
	return flags, nil
}
