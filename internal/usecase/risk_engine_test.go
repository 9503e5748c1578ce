package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"RiskGate/internal/domain/models"
	domsvc "RiskGate/internal/domain/service"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAnalyzer struct {
	name  string
	flags []models.Flag
	delay time.Duration
	err   error
}

func (s stubAnalyzer) Name() string { return s.name }

func (s stubAnalyzer) Analyze(ctx context.Context, _ models.AnalysisInput, p *models.Profiles) ([]models.Flag, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.name == "device" {
		p.Device.Devices24h = len(s.flags)
	}
	return s.flags, s.err
}

type stubPredictor struct {
	pred models.Prediction
	err  error
}

func (s stubPredictor) Predict(context.Context, models.Features) (models.Prediction, error) {
	return s.pred, s.err
}

func warning(code string, score int) models.Flag {
	return models.Flag{Type: models.FlagFinancial, Severity: models.SeverityWarning, Code: code, Score: score}
}

func TestScoreIsClamped(t *testing.T) {
	many := make([]models.Flag, 10)
	for i := range many {
		many[i] = warning("X", 30)
	}
	assert.Equal(t, 100, Score(many, models.Prediction{FraudProbability: 1, AnomalyScore: 1}))
	assert.Equal(t, 0, Score(nil, models.Prediction{}))
	assert.Equal(t, 0, Score([]models.Flag{warning("NEG", -20)}, models.Prediction{}))
	// 10 + 0.25*40 + 0.5*20
	assert.Equal(t, 30, Score([]models.Flag{warning("A", 10)}, models.Prediction{FraudProbability: 0.25, AnomalyScore: 0.5}))
}

func TestLevelFor(t *testing.T) {
	tests := []struct {
		score int
		want  models.Level
	}{
		{0, models.LevelMinimal},
		{9, models.LevelMinimal},
		{10, models.LevelLow},
		{24, models.LevelLow},
		{25, models.LevelModerate},
		{49, models.LevelModerate},
		{50, models.LevelHigh},
		{74, models.LevelHigh},
		{75, models.LevelCritical},
		{89, models.LevelCritical},
		{90, models.LevelExtreme},
		{100, models.LevelExtreme},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LevelFor(tt.score), "score %d", tt.score)
	}
}

func TestRecommend(t *testing.T) {
	critical := []models.Flag{{Severity: models.SeverityCritical, Code: "C"}}
	assert.Equal(t, models.RecommendFreezeAccount, Recommend(models.LevelLow, nil, 0.95))
	assert.Equal(t, models.RecommendFreezeAccount, Recommend(models.LevelExtreme, nil, 0.1))
	assert.Equal(t, models.RecommendReject, Recommend(models.LevelCritical, nil, 0.1))
	assert.Equal(t, models.RecommendReject, Recommend(models.LevelLow, critical, 0.1))
	assert.Equal(t, models.RecommendEnhancedVerification, Recommend(models.LevelHigh, nil, 0.1))
	assert.Equal(t, models.RecommendManualReview, Recommend(models.LevelModerate, nil, 0.1))
	assert.Equal(t, models.RecommendAutoApprove, Recommend(models.LevelLow, nil, 0.1))
	assert.Equal(t, models.RecommendAutoApprove, Recommend(models.LevelMinimal, nil, 0))
}

func TestConfidence(t *testing.T) {
	flags := []models.Flag{warning("A", 1), warning("B", 1)}
	// (2/5 + 0.6) / 2
	assert.Equal(t, 0.5, Confidence(flags, models.Prediction{Confidence: 0.6}))
	assert.Equal(t, 1.0, Confidence(make([]models.Flag, 9), models.Prediction{Confidence: 1}))
}

func analysisInput() models.AnalysisInput {
	return models.AnalysisInput{
		TransactionID: "tx",
		UserID:        "u1",
		Kind:          models.KindDeposit,
		Amount:        decimal.NewFromInt(100),
		Now:           t0,
	}
}

func TestAnalyzeKeepsAnalyzerOrder(t *testing.T) {
	analyzers := []domsvc.Analyzer{
		stubAnalyzer{name: "slow", flags: []models.Flag{warning("FIRST", 5)}, delay: 20 * time.Millisecond},
		stubAnalyzer{name: "fast", flags: []models.Flag{warning("SECOND", 5)}},
		stubAnalyzer{name: "device", flags: []models.Flag{warning("THIRD", 5)}},
	}
	pred := stubPredictor{pred: models.Prediction{FraudProbability: 0.1, Confidence: 0.5}}

	concurrent, err := NewRiskEngine(pred, analyzers).Analyze(context.Background(), analysisInput())
	require.NoError(t, err)
	sequential, err := NewRiskEngine(pred, analyzers, Sequential()).Analyze(context.Background(), analysisInput())
	require.NoError(t, err)

	assert.Equal(t, sequential, concurrent)
	codes := flagCodes(concurrent.Flags)
	assert.Equal(t, []string{"FIRST", "SECOND", "THIRD"}, codes)
	assert.Equal(t, 19, concurrent.Score)
	assert.Equal(t, models.LevelLow, concurrent.Level)
	assert.Equal(t, 1, concurrent.Profiles.Device.Devices24h)
	assert.Equal(t, t0, concurrent.AnalyzedAt)
}

func TestAnalyzeIsDeterministic(t *testing.T) {
	engine := NewRiskEngine(stubPredictor{pred: models.Prediction{FraudProbability: 0.3, AnomalyScore: 0.2, Confidence: 0.7}},
		[]domsvc.Analyzer{stubAnalyzer{name: "a", flags: []models.Flag{warning("A", 12)}}})
	first, err := engine.Analyze(context.Background(), analysisInput())
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := engine.Analyze(context.Background(), analysisInput())
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestAnalyzeAddsHighFraudRiskFlag(t *testing.T) {
	engine := NewRiskEngine(stubPredictor{pred: models.Prediction{FraudProbability: 0.75}}, nil)
	a, err := engine.Analyze(context.Background(), analysisInput())
	require.NoError(t, err)
	require.True(t, a.HasFlag(models.FlagHighFraudRisk))
	// 30 + 0.75*40
	assert.Equal(t, 60, a.Score)
	assert.Equal(t, models.RecommendReject, a.Recommendation)

	engine = NewRiskEngine(stubPredictor{pred: models.Prediction{FraudProbability: 0.7}}, nil)
	a, err = engine.Analyze(context.Background(), analysisInput())
	require.NoError(t, err)
	assert.False(t, a.HasFlag(models.FlagHighFraudRisk), "threshold is exclusive")
}

func TestAnalyzeFailsWhenAnAnalyzerFails(t *testing.T) {
	boom := errors.New("ledger down")
	engine := NewRiskEngine(stubPredictor{}, []domsvc.Analyzer{
		stubAnalyzer{name: "ok"},
		stubAnalyzer{name: "broken", err: boom},
	})
	_, err := engine.Analyze(context.Background(), analysisInput())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "broken analyzer")

	_, err = NewRiskEngine(stubPredictor{err: boom}, nil).Analyze(context.Background(), analysisInput())
	assert.ErrorIs(t, err, boom)
}
