package analytics

import (
	"context"
	"time"

	"RiskGate/internal/domain/models"
	"RiskGate/internal/services/features"
)

const (
	unusualHourShare    = 0.02
	unusualHourSessions = 10
	rapidCycleWindow    = time.Hour
	rapidCycleWagering  = 0.5
)

// BehavioralAnalyzer looks at session habits and the deposit/withdraw cycle.
type BehavioralAnalyzer struct {
	history  *History
	location *time.Location
}

func NewBehavioralAnalyzer(h *History, loc *time.Location) *BehavioralAnalyzer {
	if loc == nil {
		loc = time.UTC
	}
	return &BehavioralAnalyzer{history: h, location: loc}
}

func (a *BehavioralAnalyzer) Name() string { return "behavioral" }

func (a *BehavioralAnalyzer) Analyze(ctx context.Context, in models.AnalysisInput, p *models.Profiles) ([]models.Flag, error) {
	monthAgo := in.Now.AddDate(0, 0, -30)
	sessions, err := a.history.Sessions(ctx, in.UserID, monthAgo, in.Now)
	if err != nil {
		return nil, err
	}
	txs, err := a.history.Transactions(ctx, in.UserID, monthAgo, in.Now)
	if err != nil {
		return nil, err
	}

	var bp models.BehavioralProfile
	weekAgo := in.Now.AddDate(0, 0, -7)
	starts := make([]time.Time, 0, len(sessions))
	var minutes float64
	for _, s := range sessions {
		starts = append(starts, s.StartedAt)
		if !s.StartedAt.Before(weekAgo) {
			bp.Sessions7d++
			minutes += s.Duration().Minutes()
		}
	}
	if bp.Sessions7d > 0 {
		bp.AvgSessionMinutes = minutes / float64(bp.Sessions7d)
	}
	if len(sessions) >= unusualHourSessions {
		bp.UnusualHour = features.HourShare(starts, in.Now.In(a.location).Hour(), a.location) < unusualHourShare
	}

	var flags []models.Flag
	last, ok := features.Latest(txs,
		features.OfKind(models.KindDeposit),
		features.WithStatus(models.StageCompleted),
		features.Excluding(in.TransactionID))
	if ok {
		at := last.CreatedAt
		bp.LastDepositAt = &at
		bp.MinutesSinceDeposit = in.Now.Sub(at).Minutes()
		bp.LastDepositAmount, _ = last.Amount.Float64()

		bets, err := a.history.Bets(ctx, in.UserID, at, in.Now)
		if err != nil {
			return nil, err
		}
		for _, b := range bets {
			bp.WageredSinceDeposit += b.Stake
		}

		if in.Kind == models.KindWithdrawal &&
			in.Now.Sub(at) < rapidCycleWindow &&
			bp.WageredSinceDeposit < bp.LastDepositAmount*rapidCycleWagering {
			flags = append(flags, flag(models.FlagBehavioral, models.SeverityWarning, models.FlagRapidCycle, 20,
				"withdrawal %.0f minutes after a deposit with %.2f wagered", bp.MinutesSinceDeposit, bp.WageredSinceDeposit))
		}
	}

	if bp.UnusualHour {
		flags = append(flags, flag(models.FlagBehavioral, models.SeverityInfo, models.FlagUnusualHour, 5,
			"activity at hour %d is rare for this user", in.Now.In(a.location).Hour()))
	}
	p.Behavioral = bp
	return flags, nil
}
