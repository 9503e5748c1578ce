package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type DispatchRequest struct {
	TransactionID string            `json:"transaction_id"`
	UserID        string            `json:"user_id"`
	Kind          Kind              `json:"kind"`
	Amount        decimal.Decimal   `json:"amount"`
	Currency      string            `json:"currency"`
	Details       map[string]string `json:"details,omitempty"`
}

type DispatchResult struct {
	ExternalID string          `json:"external_id"`
	Fees       decimal.Decimal `json:"fees"`
	Provider   string          `json:"provider"`
	Latency    time.Duration   `json:"latency"`
}

type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthDown     HealthStatus = "down"
	HealthDisabled HealthStatus = "disabled"
)

type ProviderHealth struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Status       HealthStatus `json:"status"`
	SuccessRate  float64      `json:"success_rate"`
	Samples      int          `json:"samples"`
	AvgLatencyMs float64      `json:"avg_latency_ms"`
}
