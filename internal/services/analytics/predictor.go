package analytics

import (
	"context"
	"fmt"
	"math"
	"time"

	"RiskGate/internal/domain/models"
	domsvc "RiskGate/internal/domain/service"
)

// HeuristicPredictor is a deterministic rule based stand-in for a trained
// fraud model. Equal features always give equal predictions.
type HeuristicPredictor struct {
	velocityThreshold int
}

func NewHeuristicPredictor(velocityThreshold int) *HeuristicPredictor {
	return &HeuristicPredictor{velocityThreshold: velocityThreshold}
}

func (h *HeuristicPredictor) Predict(_ context.Context, f models.Features) (models.Prediction, error) {
	fp := 0.05
	if f.VPN {
		fp += 0.25
	}
	if f.NewDevice {
		fp += 0.15
	}
	if f.Kind == models.KindWithdrawal && f.WithdrawDepositRate > 0.9 {
		fp += 0.2
	}
	if f.Kind == models.KindWithdrawal && f.LifetimeDeposits == 0 {
		fp += 0.2
	}
	if f.AccountAgeDays < 7 {
		fp += 0.1
	}
	if h.velocityThreshold > 0 && f.HourlyCount > h.velocityThreshold {
		fp += 0.15
	}
	if f.HighRiskCountry {
		fp += 0.1
	}

	anomaly := 0.0
	if f.AverageDeposit > 0 && f.Amount > f.AverageDeposit {
		anomaly += math.Min((f.Amount/f.AverageDeposit-1)/10, 0.6)
	}
	if f.UnusualHour {
		anomaly += 0.2
	}
	if f.Devices24h >= 3 {
		anomaly += 0.2
	}

	// more history means a better informed guess
	confidence := 0.4 + math.Min(float64(f.LifetimeDeposits)/20, 0.3) + math.Min(float64(f.Sessions7d)/50, 0.2)

	return models.Prediction{
		FraudProbability: round3(clamp01(fp)),
		AnomalyScore:     round3(clamp01(anomaly)),
		Confidence:       round3(clamp01(confidence)),
		Model:            "heuristic-v1",
	}, nil
}

// HTTPPredictor calls a remote model service: POST {url}/predict with the
// feature vector, answered with a Prediction.
type HTTPPredictor struct {
	*HTTPServiceBase
	attempts int
}

func NewHTTPPredictor(baseURL string, timeout time.Duration, attempts int) *HTTPPredictor {
	return &HTTPPredictor{HTTPServiceBase: NewHTTPServiceBase(baseURL, timeout), attempts: attempts}
}

func (p *HTTPPredictor) Predict(ctx context.Context, f models.Features) (models.Prediction, error) {
	var out models.Prediction
	if err := p.PostJSONWithRetry(ctx, "/predict", f, &out, p.attempts); err != nil {
		return models.Prediction{}, err
	}
	if out.FraudProbability < 0 || out.FraudProbability > 1 || out.AnomalyScore < 0 || out.AnomalyScore > 1 {
		return models.Prediction{}, fmt.Errorf("model returned out of range prediction %+v", out)
	}
	if out.Model == "" {
		out.Model = "remote"
	}
	out.Confidence = clamp01(out.Confidence)
	return out, nil
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

var (
	_ domsvc.Predictor = (*HeuristicPredictor)(nil)
	_ domsvc.Predictor = (*HTTPPredictor)(nil)
	_ domsvc.Analyzer  = (*FinancialAnalyzer)(nil)
	_ domsvc.Analyzer  = (*BehavioralAnalyzer)(nil)
	_ domsvc.Analyzer  = (*GameplayAnalyzer)(nil)
	_ domsvc.Analyzer  = (*DeviceAnalyzer)(nil)
	_ domsvc.Analyzer  = (*ComplianceAnalyzer)(nil)
)
