//go:build wireinject
// +build wireinject

package di

import (
	"RiskGate/pkg/config"
	"RiskGate/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Metrics
		ProvideMetrics,

		// Infrastructure clients
		ProvideKafkaProducer,
		ProvideLogger,
		ProvideKafkaConsumer,
		ProvideRedisClient,
		ProvideCache,
		ProvideClickHouseClient,

		// Repositories
		ProvideUserDirectory,
		ProvideLedger,
		ProvideActivityStore,
		ProvideAuditSink,
		ProvideStreamHub,
		ProvideEventPublisher,
		ProvideJobQueue,
		ProvideReviewQueue,

		// Services
		ProvideGateway,
		ProvideHistory,
		ProvideLocation,
		ProvideWeekStart,
		ProvideRiskEngine,
		ProvideLimitChecker,
		ProvideComplianceRules,
		ProvideStageGuard,

		// Use cases
		ProvideOrchestrator,
		ProvideTransactionService,
		ProvideReviewTimeoutJob,
		ProvideSummary,
		ProvideActivityIngestor,
		ProvideKafkaHandlers,

		// Transport
		ProvideRateLimiter,
		ProvideHTTPHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
