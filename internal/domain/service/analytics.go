package service

import (
	"context"

	"RiskGate/internal/domain/models"
)

// Analyzer builds one sub-profile and raises the flags derived from it.
// Analyzers run concurrently against the same *Profiles, so each one writes
// only its own field.
type Analyzer interface {
	Name() string
	Analyze(ctx context.Context, in models.AnalysisInput, p *models.Profiles) ([]models.Flag, error)
}

// Predictor scores a feature vector. Implementations may call a remote model.
type Predictor interface {
	Predict(ctx context.Context, f models.Features) (models.Prediction, error)
}

// ProviderGateway moves money through the payment rail picked by method.
type ProviderGateway interface {
	Dispatch(ctx context.Context, method string, req models.DispatchRequest) (models.DispatchResult, error)
	Health() map[string]models.ProviderHealth
}
