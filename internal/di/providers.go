package di

import (
	"context"
	"fmt"
	"strings"
	"time"

	"RiskGate/internal/domain/models"
	"RiskGate/internal/domain/repository"
	domsvc "RiskGate/internal/domain/service"
	"RiskGate/internal/handler/api"
	mid "RiskGate/internal/middleware"
	internalrepo "RiskGate/internal/repository"
	"RiskGate/internal/service/gateway"
	svcmetrics "RiskGate/internal/service/metrics"
	"RiskGate/internal/service/ratelimit"
	"RiskGate/internal/service/stream"
	"RiskGate/internal/services/analytics"
	"RiskGate/internal/usecase"
	"RiskGate/pkg/cache"
	pkgch "RiskGate/pkg/clickhouse"
	"RiskGate/pkg/config"
	xhttp "RiskGate/pkg/http"
	pkgkafka "RiskGate/pkg/kafka"
	applogger "RiskGate/pkg/logger"
	"RiskGate/pkg/metrics"
	"RiskGate/pkg/queue"
	"RiskGate/pkg/retry"
	"RiskGate/pkg/server"
	"RiskGate/pkg/util"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
)

// ActivityStore is an activity log the ingestor can also write to.
type ActivityStore interface {
	repository.ActivityLog
	repository.ActivityWriter
}

// KafkaHandlers are the consumer-side handlers registered at startup.
type KafkaHandlers []pkgkafka.MessageHandler

// ProvideLogger creates the application logger. With the collector enabled,
// aggregated error logs are shipped to Kafka through producer.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
		Static: map[string]string{"service": cfg.Tracing.Service, "env": cfg.Environment},
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	if cfg.Log.Collector.Enabled && producer != nil {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   cfg.Log.Collector.Interval,
			CountThreshold: cfg.Log.Collector.Threshold,
			Topic:          cfg.Log.Collector.Topic,
			MinLevel:       cfg.Log.Collector.Level,
			Publisher:      producer,
		})
	}
	return l, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

func needsRedis(cfg *config.Config) bool {
	return cfg.Cache.Backend != "memory" || cfg.Users.Backend == "redis" || cfg.Review.Backend == "redis"
}

// ProvideRedisClient returns the shared client, or nil when no component is
// configured for Redis.
func ProvideRedisClient(cfg *config.Config) (*redis.Client, error) {
	if !needsRedis(cfg) {
		return nil, nil
	}
	client, _, err := cache.NewRedisClient(
		cache.WithRedisHost(cfg.Redis.Host),
		cache.WithRedisPort(cfg.Redis.Port),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPool(cfg.Redis.PoolSize, cfg.Redis.PoolSize/2, 30*time.Second),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis client: %w", err)
	}
	return client, nil
}

// ProvideCache builds the history cache and wraps it with Prometheus metering.
func ProvideCache(cfg *config.Config, client *redis.Client, l *applogger.Logger) (*cache.MeteredCache, error) {
	var backend cache.Service
	switch cfg.Cache.Backend {
	case "memory":
		backend = cache.NewMemoryCache(
			cache.WithMemoryMaxSize(cfg.Cache.MemoryMaxSize),
			cache.WithMemoryCleanup(time.Minute),
		)
	case "redis":
		backend = cache.NewRedisCacheFromClient(client, cfg.Redis.Prefix)
	case "layered":
		countRemoteError := svcmetrics.RemoteErrorCounter()
		backend = cache.NewLayeredCache(
			cache.NewRedisCacheFromClient(client, cfg.Redis.Prefix),
			cache.WithLayeredMemorySize(cfg.Cache.MemoryMaxSize),
			cache.WithStaleWindow(cfg.Cache.HistoryTTL),
			cache.WithL2ErrorHandler(func(op string, err error) {
				countRemoteError(op)
				l.Warn("redis cache layer error", applogger.String("op", op), applogger.Error(err))
			}),
		)
	default:
		return nil, fmt.Errorf("unknown cache backend: %s", cfg.Cache.Backend)
	}
	return cache.NewMeteredCache(backend, svcmetrics.CacheObserver()), nil
}

// ProvideClickHouseClient creates a ClickHouse client and applies the schema.
// Nil when storage is in memory.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if cfg.Storage.Backend != "clickhouse" {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.InitSchema(ctx, internalrepo.ClickHouseSchema(cfg.ClickHouse.Database)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is off.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideKafkaConsumer creates a Kafka consumer configured from YAML, or nil
// when Kafka is off.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.Chain(pkgkafka.TraceHook(), pkgkafka.HookFuncs{
		Err: func(_ context.Context, topic string, km kafkago.Message, _ []byte, err error) {
			l.Warn("kafka message failed",
				applogger.String("topic", topic),
				applogger.String("key", string(km.Key)),
				applogger.String("trace_id", pkgkafka.ExtractTraceID(km)),
				applogger.Error(err),
			)
		},
	}))
	return consumer, nil
}

// ProvideUserDirectory creates the balance store and loads the seed users.
func ProvideUserDirectory(cfg *config.Config, client *redis.Client) (repository.UserDirectory, error) {
	users := SeedUsers(cfg.Users.Seed, time.Now())
	switch cfg.Users.Backend {
	case "redis":
		dir := internalrepo.NewRedisUserDirectory(client, cfg.Redis.Prefix)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		for _, u := range users {
			if err := dir.Put(ctx, u); err != nil {
				return nil, fmt.Errorf("seed user %s: %w", u.ID, err)
			}
		}
		return dir, nil
	default:
		return internalrepo.NewMemoryUserDirectory(users...), nil
	}
}

// ProvideLedger selects the transaction ledger backend.
func ProvideLedger(cfg *config.Config, ch *pkgch.Client, l *applogger.Logger) repository.TransactionLedger {
	if ch != nil {
		return internalrepo.NewClickHouseLedger(ch, cfg.ClickHouse.Database, l)
	}
	return internalrepo.NewMemoryLedger()
}

// ProvideActivityStore selects where bets and sessions live.
func ProvideActivityStore(cfg *config.Config, ch *pkgch.Client, l *applogger.Logger) ActivityStore {
	if ch != nil {
		return internalrepo.NewClickHouseActivityLog(ch, cfg.ClickHouse.Database, l)
	}
	return internalrepo.NewMemoryActivityLog()
}

// ProvideAuditSink selects the audit trail backend.
func ProvideAuditSink(cfg *config.Config, ch *pkgch.Client) repository.AuditSink {
	if ch != nil {
		return internalrepo.NewClickHouseAuditSink(ch, cfg.ClickHouse.Database)
	}
	return internalrepo.NewMemoryAuditSink()
}

// ProvideStreamHub creates the websocket fan-out for stage events.
func ProvideStreamHub(cfg *config.Config, l *applogger.Logger) *stream.Hub {
	return stream.NewHub(cfg.Stream.PingInterval, cfg.Stream.WriteTimeout, cfg.Stream.BufferSize, l)
}

// ProvideEventPublisher fans stage events out to websocket subscribers and,
// when enabled, to the Kafka stage topic.
func ProvideEventPublisher(cfg *config.Config, producer *pkgkafka.Producer, hub *stream.Hub) repository.EventPublisher {
	pubs := []repository.EventPublisher{hub}
	if producer != nil {
		pubs = append(pubs, internalrepo.NewKafkaStagePublisher(producer, cfg.Kafka.StageTopic))
	}
	return internalrepo.NewFanOutPublisher(pubs...)
}

// ProvideJobQueue creates the queue that delivers review deadlines. Jobs are
// registered by the application at startup.
func ProvideJobQueue(cfg *config.Config, client *redis.Client, l *applogger.Logger) queue.Runner {
	qcfg := &queue.QueueConfig{
		Workers:    cfg.Review.Workers,
		QueueSize:  1000,
		RetryLimit: 3,
		RetryDelay: cfg.Review.RetryDelay,
	}
	if cfg.Review.Backend == "redis" {
		return queue.NewRedisQueue(l, qcfg, client,
			queue.WithKeyPrefix(cfg.Redis.Prefix+":review"),
			queue.WithPollInterval(cfg.Review.SweepInterval),
		)
	}
	return queue.NewMemoryQueue(l, qcfg)
}

func ProvideReviewQueue(jobs queue.Runner) repository.ReviewQueue {
	return internalrepo.NewScheduledReviewQueue(jobs)
}

// ProvideGateway builds the simulated provider set.
func ProvideGateway(cfg *config.Config, m repository.Metrics, l *applogger.Logger) *gateway.Gateway {
	return gateway.New(GatewayProviders(cfg.Providers),
		gateway.WithMetrics(m),
		gateway.WithLogger(l),
	)
}

func ProvideHistory(cfg *config.Config, users repository.UserDirectory, ledger repository.TransactionLedger, activity ActivityStore, c *cache.MeteredCache) *analytics.History {
	return analytics.NewHistory(users, ledger, activity, c, cfg.Cache.HistoryTTL)
}

// ProvideLocation resolves the calendar location for limits and buckets.
func ProvideLocation(cfg *config.Config) (*time.Location, error) {
	loc, err := time.LoadLocation(cfg.Limits.Location)
	if err != nil {
		return nil, fmt.Errorf("limits location: %w", err)
	}
	return loc, nil
}

func ProvideWeekStart(cfg *config.Config) (time.Weekday, error) {
	wd, ok := util.ParseWeekday(cfg.Limits.WeekStart)
	if !ok {
		return 0, fmt.Errorf("limits.week_start: unknown weekday %q", cfg.Limits.WeekStart)
	}
	return wd, nil
}

// ProvideRiskEngine builds the predictor and the analyzer set.
func ProvideRiskEngine(cfg *config.Config, h *analytics.History, loc *time.Location, l *applogger.Logger) *usecase.RiskEngine {
	var pred domsvc.Predictor
	switch cfg.Risk.Predictor.Type {
	case "http":
		pred = analytics.NewHTTPPredictor(cfg.Risk.Predictor.URL, cfg.Risk.Predictor.Timeout, cfg.Risk.Predictor.Attempts)
	default:
		pred = analytics.NewHeuristicPredictor(cfg.Risk.VelocityFlagThreshold)
	}
	analyzers := []domsvc.Analyzer{
		analytics.NewFinancialAnalyzer(h, cfg.Risk.VelocityFlagThreshold),
		analytics.NewBehavioralAnalyzer(h, loc),
		analytics.NewGameplayAnalyzer(h),
		analytics.NewDeviceAnalyzer(h),
		analytics.NewComplianceAnalyzer(h,
			decimal.NewFromFloat(cfg.Risk.KYCThreshold),
			decimal.NewFromFloat(cfg.Risk.ReportingThreshold),
			cfg.Risk.HighRiskCountries,
		),
	}
	return usecase.NewRiskEngine(pred, analyzers, usecase.WithEngineLogger(l))
}

func ProvideLimitChecker(cfg *config.Config, ledger repository.TransactionLedger, loc *time.Location, weekStart time.Weekday) *usecase.LimitChecker {
	return usecase.NewLimitChecker(ledger, ToKindLimits(cfg.Limits.Deposit), ToKindLimits(cfg.Limits.Withdrawal), loc, weekStart)
}

func ProvideComplianceRules(cfg *config.Config) *usecase.ComplianceRuleSet {
	return usecase.NewComplianceRuleSet(ComplianceRules(cfg.Compliance.Rules))
}

// ProvideStageGuard bounds every stage with the configured timeout and retry policy.
func ProvideStageGuard(cfg *config.Config, m repository.Metrics) *mid.StageGuard {
	return mid.NewStageGuard(m,
		mid.WithStageTimeout(cfg.Pipeline.StageTimeout),
		mid.WithRetryPolicy(retry.Policy{
			Attempts:  cfg.Pipeline.RetryAttempts,
			BaseDelay: cfg.Pipeline.RetryBaseDelay,
			MaxDelay:  cfg.Pipeline.RetryBaseDelay * 10,
		}),
	)
}

func ProvideOrchestrator(
	cfg *config.Config,
	users repository.UserDirectory,
	ledger repository.TransactionLedger,
	audit repository.AuditSink,
	events repository.EventPublisher,
	reviews repository.ReviewQueue,
	limits *usecase.LimitChecker,
	risk *usecase.RiskEngine,
	rules *usecase.ComplianceRuleSet,
	gw *gateway.Gateway,
	guard *mid.StageGuard,
	h *analytics.History,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.Orchestrator {
	return usecase.NewOrchestrator(usecase.PipelineConfig{
		HighValueThreshold:        decimal.NewFromFloat(cfg.Pipeline.HighValueThreshold),
		UrgentThreshold:           decimal.NewFromFloat(cfg.Pipeline.UrgentThreshold),
		WithdrawalReviewThreshold: decimal.NewFromFloat(cfg.Pipeline.WithdrawalReviewThreshold),
		ReviewDeadline:            cfg.Review.Deadline,
		Currencies:                cfg.Pipeline.Currencies,
	}, usecase.OrchestratorDeps{
		Users:    users,
		Ledger:   ledger,
		Audit:    audit,
		Events:   events,
		Reviews:  reviews,
		Limits:   limits,
		Risk:     risk,
		Rules:    rules,
		Gateway:  gw,
		Guard:    guard,
		History:  h,
		Profiles: h,
		Metrics:  m,
		Logger:   l,
	})
}

func ProvideTransactionService(orch *usecase.Orchestrator, c *cache.MeteredCache) *usecase.TransactionService {
	return usecase.NewTransactionService(orch, c)
}

func ProvideReviewTimeoutJob(svc *usecase.TransactionService, l *applogger.Logger) queue.Job {
	return usecase.NewReviewTimeoutJob(svc, l)
}

func ProvideSummary(ledger repository.TransactionLedger, loc *time.Location, weekStart time.Weekday) *usecase.SummaryUseCase {
	return usecase.NewSummaryUseCase(ledger, loc, weekStart)
}

func activityConfig(cfg *config.Config, backend string) usecase.ActivityIngestorConfig {
	return usecase.ActivityIngestorConfig{
		Backend:      backend,
		Topic:        cfg.Activity.Topic,
		BatchSize:    cfg.Activity.BatchSize,
		BatchTimeout: cfg.Activity.BatchTimeout,
		QueueSize:    cfg.Activity.QueueSize,
	}
}

// ProvideActivityIngestor creates the front ingestor used by the HTTP API.
func ProvideActivityIngestor(cfg *config.Config, producer *pkgkafka.Producer, store ActivityStore, h *analytics.History, m repository.Metrics, l *applogger.Logger) *usecase.ActivityIngestor {
	var pub usecase.ActivityPublisher
	if producer != nil {
		pub = producer
	}
	return usecase.NewActivityIngestor(activityConfig(cfg, cfg.Activity.Backend), pub, store, h, m, l)
}

// ProvideKafkaHandlers registers the review-decision handler and, when
// activity is routed through Kafka, a store-backed activity consumer.
func ProvideKafkaHandlers(cfg *config.Config, svc *usecase.TransactionService, store ActivityStore, h *analytics.History, m repository.Metrics, l *applogger.Logger) KafkaHandlers {
	if !cfg.Kafka.Enabled {
		return nil
	}
	handlers := KafkaHandlers{usecase.NewKafkaReviewHandler(cfg.Kafka.ReviewDecisionTopic, svc, m)}
	if cfg.Activity.Backend == usecase.ActivityBackendKafka {
		sink := usecase.NewActivityIngestor(activityConfig(cfg, usecase.ActivityBackendStore), nil, store, h, m, l)
		handlers = append(handlers, usecase.NewKafkaActivityHandler(cfg.Activity.Topic, sink, m))
	}
	return handlers
}

func ProvideRateLimiter(cfg *config.Config) *ratelimit.Limiter {
	if cfg.Server.RateLimit.Capacity <= 0 {
		return nil
	}
	return ratelimit.New(cfg.Server.RateLimit.Capacity, cfg.Server.RateLimit.RefillPerSec)
}

func ProvideHTTPHandler(l *applogger.Logger, svc *usecase.TransactionService, summary *usecase.SummaryUseCase, ingest *usecase.ActivityIngestor, hub *stream.Hub, limiter *ratelimit.Limiter) xhttp.Handler {
	opts := []api.HandlerOption{api.WithStream(hub)}
	if limiter != nil {
		opts = append(opts, api.WithRateLimit(limiter))
	}
	return api.NewTransactionsEchoHandler(l, svc, summary, ingest, opts...)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	handler xhttp.Handler,
	svc *usecase.TransactionService,
	jobs queue.Runner,
	reviewJob queue.Job,
	ingest *usecase.ActivityIngestor,
	hub *stream.Hub,
	limiter *ratelimit.Limiter,
	consumer *pkgkafka.Consumer,
	handlers KafkaHandlers,
	producer *pkgkafka.Producer,
	ch *pkgch.Client,
	client *redis.Client,
	c *cache.MeteredCache,
) *server.App {
	return server.New(cfg, server.Deps{
		Logger:      l,
		HTTPHandler: handler,
		Service:     svc,
		Jobs:        jobs,
		ReviewJob:   reviewJob,
		Ingestor:    ingest,
		Hub:         hub,
		Limiter:     limiter,
		Consumer:    consumer,
		Handlers:    handlers,
		Producer:    producer,
		ClickHouse:  ch,
		Redis:       client,
		Cache:       c,
	})
}

// GatewayProviders converts provider config into gateway providers. Unknown
// kinds are ignored; an empty list means both kinds.
func GatewayProviders(in []config.ProviderConfig) []gateway.Provider {
	out := make([]gateway.Provider, 0, len(in))
	for _, p := range in {
		kinds := make([]models.Kind, 0, len(p.Kinds))
		for _, k := range p.Kinds {
			if kind := models.Kind(strings.ToLower(k)); kind.Valid() {
				kinds = append(kinds, kind)
			}
		}
		if len(kinds) == 0 {
			kinds = []models.Kind{models.KindDeposit, models.KindWithdrawal}
		}
		name := p.Name
		if name == "" {
			name = p.ID
		}
		out = append(out, gateway.Provider{
			ID:              p.ID,
			Name:            name,
			Enabled:         !p.Disabled,
			Kinds:           kinds,
			FixedFee:        decimal.NewFromFloat(p.FixedFee),
			PercentFee:      decimal.NewFromFloat(p.PercentFee),
			MinLatency:      p.MinLatency,
			MaxLatency:      p.MaxLatency,
			SuccessRate:     p.SuccessRate,
			TimeoutShare:    p.TimeoutShare,
			HealthThreshold: p.HealthThreshold,
		})
	}
	return out
}

func ComplianceRules(in []config.RuleConfig) []models.ComplianceRule {
	out := make([]models.ComplianceRule, 0, len(in))
	for _, r := range in {
		out = append(out, models.ComplianceRule{
			ID:       r.ID,
			Type:     models.RuleType(r.Type),
			Severity: models.Severity(r.Severity),
			Active:   !r.Disabled,
			Params:   r.Params,
			Actions:  r.Actions,
		})
	}
	return out
}

func ToKindLimits(in config.KindLimits) usecase.KindLimits {
	return usecase.KindLimits{
		Min:          decimal.NewFromFloat(in.Min),
		Max:          decimal.NewFromFloat(in.Max),
		HourlyCount:  in.HourlyCount,
		HourlyAmount: decimal.NewFromFloat(in.HourlyAmount),
		DailyCount:   in.DailyCount,
		DailyAmount:  decimal.NewFromFloat(in.DailyAmount),
		Day:          decimal.NewFromFloat(in.Day),
		Week:         decimal.NewFromFloat(in.Week),
		Month:        decimal.NewFromFloat(in.Month),
	}
}

// SeedUsers converts seed entries into users created AgeDays before now.
func SeedUsers(in []config.SeedUser, now time.Time) []models.User {
	out := make([]models.User, 0, len(in))
	for _, s := range in {
		out = append(out, models.User{
			ID:          s.ID,
			Balance:     decimal.NewFromFloat(s.Balance),
			KYCLevel:    s.KYCLevel,
			KYCVerified: s.KYCVerified,
			VIPLevel:    s.VIPLevel,
			Country:     strings.ToUpper(s.Country),
			CreatedAt:   now.AddDate(0, 0, -s.AgeDays),
		})
	}
	return out
}
