package usecase

import (
	"context"
	"fmt"
	"math"
	"time"

	"RiskGate/internal/domain/models"
	domsvc "RiskGate/internal/domain/service"
	applogger "RiskGate/pkg/logger"
	"RiskGate/pkg/tracing"

	"golang.org/x/sync/errgroup"
)

const (
	highFraudProbability   = 0.7
	freezeFraudProbability = 0.9
	fraudWeight            = 40
	anomalyWeight          = 20
	flagsForFullConfidence = 5
)

// levelBounds are lower bounds, highest first; the first match wins.
var levelBounds = []struct {
	min   int
	level models.Level
}{
	{90, models.LevelExtreme},
	{75, models.LevelCritical},
	{50, models.LevelHigh},
	{25, models.LevelModerate},
	{10, models.LevelLow},
	{0, models.LevelMinimal},
}

// RiskEngine fans out to the analyzers, waits for all of them and merges
// their flags with a prediction into one assessment.
type RiskEngine struct {
	analyzers  []domsvc.Analyzer
	predictor  domsvc.Predictor
	sequential bool
	logger     *applogger.Logger
}

type EngineOption func(*RiskEngine)

// Sequential runs analyzers one after another instead of concurrently.
func Sequential() EngineOption {
	return func(e *RiskEngine) { e.sequential = true }
}

func WithEngineLogger(l *applogger.Logger) EngineOption {
	return func(e *RiskEngine) {
		if l != nil {
			e.logger = l
		}
	}
}

func NewRiskEngine(predictor domsvc.Predictor, analyzers []domsvc.Analyzer, opts ...EngineOption) *RiskEngine {
	e := &RiskEngine{
		analyzers: analyzers,
		predictor: predictor,
		logger:    applogger.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Analyze evaluates in. Flags keep analyzer order regardless of which
// analyzer finished first, so equal inputs give equal assessments.
func (e *RiskEngine) Analyze(ctx context.Context, in models.AnalysisInput) (*models.RiskAssessment, error) {
	if in.Now.IsZero() {
		in.Now = time.Now().UTC()
	}
	ctx, span := tracing.StartSpan(ctx, "risk.analyze", tracing.UserID(in.UserID), tracing.Kind(string(in.Kind)))
	var err error
	defer func() { tracing.End(span, err) }()

	var profiles models.Profiles
	results := make([][]models.Flag, len(e.analyzers))
	if e.sequential {
		for i, a := range e.analyzers {
			if results[i], err = a.Analyze(ctx, in, &profiles); err != nil {
				err = fmt.Errorf("%s analyzer: %w", a.Name(), err)
				return nil, err
			}
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		for i, a := range e.analyzers {
			g.Go(func() error {
				flags, aerr := a.Analyze(gctx, in, &profiles)
				if aerr != nil {
					return fmt.Errorf("%s analyzer: %w", a.Name(), aerr)
				}
				results[i] = flags
				return nil
			})
		}
		if err = g.Wait(); err != nil {
			return nil, err
		}
	}

	var flags []models.Flag
	for _, r := range results {
		flags = append(flags, r...)
	}

	pred, err := e.predictor.Predict(ctx, models.NewFeatures(in, profiles))
	if err != nil {
		err = fmt.Errorf("predict: %w", err)
		return nil, err
	}
	if pred.FraudProbability > highFraudProbability {
		flags = append(flags, models.Flag{
			Type:        models.FlagML,
			Severity:    models.SeverityCritical,
			Code:        models.FlagHighFraudRisk,
			Description: fmt.Sprintf("fraud probability %.2f", pred.FraudProbability),
			Score:       30,
		})
	}

	a := Assess(flags, pred, profiles, in.Now)
	e.logger.Debug("risk assessed",
		applogger.String("user_id", in.UserID),
		applogger.Int("score", a.Score),
		applogger.String("level", string(a.Level)),
		applogger.String("recommendation", string(a.Recommendation)),
		applogger.Int("flags", len(a.Flags)),
	)
	return a, nil
}

// Assess derives score, level, recommendation and confidence. It is pure.
func Assess(flags []models.Flag, pred models.Prediction, profiles models.Profiles, at time.Time) *models.RiskAssessment {
	score := Score(flags, pred)
	level := LevelFor(score)
	return &models.RiskAssessment{
		Score:          score,
		Level:          level,
		Flags:          flags,
		Recommendation: Recommend(level, flags, pred.FraudProbability),
		Confidence:     Confidence(flags, pred),
		Prediction:     pred,
		Profiles:       profiles,
		AnalyzedAt:     at,
	}
}

// Score is the flag weights plus weighted model outputs, clamped to [0, 100].
func Score(flags []models.Flag, pred models.Prediction) int {
	total := pred.FraudProbability*fraudWeight + pred.AnomalyScore*anomalyWeight
	for _, f := range flags {
		total += float64(f.Score)
	}
	s := int(math.Round(total))
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}

func LevelFor(score int) models.Level {
	for _, b := range levelBounds {
		if score >= b.min {
			return b.level
		}
	}
	return models.LevelMinimal
}

func Recommend(level models.Level, flags []models.Flag, fraudProbability float64) models.Recommendation {
	if fraudProbability > freezeFraudProbability || level == models.LevelExtreme {
		return models.RecommendFreezeAccount
	}
	if level == models.LevelCritical || hasCritical(flags) {
		return models.RecommendReject
	}
	switch level {
	case models.LevelHigh:
		return models.RecommendEnhancedVerification
	case models.LevelModerate:
		return models.RecommendManualReview
	}
	return models.RecommendAutoApprove
}

// Confidence averages the normalized flag count with the model confidence.
func Confidence(flags []models.Flag, pred models.Prediction) float64 {
	n := math.Min(float64(len(flags))/flagsForFullConfidence, 1)
	return math.Round((n+pred.Confidence)/2*1000) / 1000
}

func hasCritical(flags []models.Flag) bool {
	for _, f := range flags {
		if f.Severity == models.SeverityCritical {
			return true
		}
	}
	return false
}
