package server

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"RiskGate/internal/service/ratelimit"
	"RiskGate/internal/service/stream"
	"RiskGate/internal/usecase"
	pkgch "RiskGate/pkg/clickhouse"
	"RiskGate/pkg/config"
	xhttp "RiskGate/pkg/http"
	pkgkafka "RiskGate/pkg/kafka"
	applogger "RiskGate/pkg/logger"
	"RiskGate/pkg/queue"
	"RiskGate/pkg/tracing"

	"github.com/redis/go-redis/v9"
)

// Version is stamped at build time with -ldflags.
var Version = "dev"

// Deps is everything the application owns at runtime. Optional
// infrastructure (Kafka, ClickHouse, Redis) is nil when disabled.
type Deps struct {
	Logger      *applogger.Logger
	HTTPHandler xhttp.Handler
	Service     *usecase.TransactionService
	Jobs        queue.Runner
	ReviewJob   queue.Job
	Ingestor    *usecase.ActivityIngestor
	Hub         *stream.Hub
	Limiter     *ratelimit.Limiter
	Consumer    *pkgkafka.Consumer
	Handlers    []pkgkafka.MessageHandler
	Producer    *pkgkafka.Producer
	ClickHouse  *pkgch.Client
	Redis       *redis.Client
	Cache       io.Closer
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	deps       Deps
	log        *applogger.Logger
	httpServer *xhttp.Server
	tracerStop func(context.Context) error
	janitor    chan struct{}
	janitorWG  chan struct{}
}

// New creates a new App instance with all dependencies.
func New(cfg *config.Config, deps Deps) *App {
	l := deps.Logger
	if l == nil {
		l = applogger.NewNop()
	}
	return &App{cfg: cfg, deps: deps, log: l}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.Start(ctx); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.log.Info("shutdown signal received")
	cancel()
	return a.shutdown(context.Background())
}

// Start brings up background workers, consumers and the HTTP server without
// blocking.
func (a *App) Start(ctx context.Context) error {
	a.log.Info("riskgate starting",
		applogger.String("version", Version),
		applogger.String("storage", a.cfg.Storage.Backend),
		applogger.String("cache", a.cfg.Cache.Backend),
		applogger.String("review_queue", a.cfg.Review.Backend),
		applogger.Bool("kafka", a.cfg.Kafka.Enabled))

	stop, err := tracing.Init(ctx, a.cfg.Tracing.Endpoint, a.cfg.Tracing.Service, Version, a.log)
	if err != nil {
		a.log.Warn("tracing init failed", applogger.Error(err))
	} else {
		a.tracerStop = stop
	}

	// Review deadlines must have a handler before the first pipeline parks.
	if a.deps.Jobs != nil {
		if a.deps.ReviewJob != nil {
			a.deps.Jobs.RegisterJob(a.deps.ReviewJob)
		}
		if s, ok := a.deps.Jobs.(interface{ Start() error }); ok {
			if err := s.Start(); err != nil {
				a.log.Error("review queue start error", applogger.Error(err))
				return err
			}
		}
		a.log.Info("review queue started", applogger.String("backend", a.cfg.Review.Backend))
	}

	if a.deps.Consumer != nil && len(a.deps.Handlers) > 0 {
		topics := make([]string, 0, len(a.deps.Handlers))
		for _, h := range a.deps.Handlers {
			a.deps.Consumer.RegisterHandler(h)
			topics = append(topics, h.Topic())
		}
		go func() {
			if err := a.deps.Consumer.Start(); err != nil {
				a.log.Error("kafka consumer error", applogger.Error(err))
			}
		}()
		a.log.Info("kafka consumer started", applogger.Strings("topics", topics))
	}

	if a.deps.Ingestor != nil {
		a.deps.Ingestor.Start(ctx)
		a.log.Info("activity ingestor started", applogger.String("backend", a.deps.Ingestor.Backend()))
	}

	a.startJanitor()

	a.httpServer = xhttp.NewServer(a.deps.HTTPHandler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithSlowRequest(a.cfg.Server.SlowRequest),
		xhttp.WithBodyLimit(a.cfg.Server.BodyLimit),
		xhttp.WithCORSOrigins(a.cfg.Server.CORSOrigins...),
		xhttp.WithLogger(a.log),
	)
	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}
	return nil
}

// startJanitor prunes terminal pipelines past retention and forgets idle
// rate-limit buckets.
func (a *App) startJanitor() {
	interval := a.cfg.Pipeline.PruneInterval
	if interval <= 0 || a.deps.Service == nil {
		return
	}
	a.janitor = make(chan struct{})
	a.janitorWG = make(chan struct{})
	go func() {
		defer close(a.janitorWG)
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-a.janitor:
				return
			case <-t.C:
				n := a.deps.Service.Prune(a.cfg.Pipeline.Retention)
				if a.deps.Limiter != nil {
					a.deps.Limiter.Sweep(interval)
				}
				if n > 0 {
					a.log.Debug("pruned pipelines", applogger.Int("count", n))
				}
			}
		}
	}()
}

// shutdown gracefully stops all services.
func (a *App) shutdown(ctx context.Context) error {
	a.log.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if a.httpServer != nil {
		if err := a.httpServer.Stop(shutdownCtx); err != nil {
			a.log.Error("http shutdown error", applogger.Error(err))
		}
	}
	if a.deps.Hub != nil {
		a.deps.Hub.Close()
	}

	if a.janitor != nil {
		close(a.janitor)
		<-a.janitorWG
	}

	if a.deps.Consumer != nil {
		if err := a.deps.Consumer.Stop(shutdownCtx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}
	if a.deps.Ingestor != nil {
		a.deps.Ingestor.Stop()
	}
	if a.deps.Jobs != nil {
		if err := a.deps.Jobs.Stop(shutdownCtx); err != nil {
			a.log.Warn("review queue stop error", applogger.Error(err))
		}
	}

	// The log collector publishes through the producer, so it goes first.
	a.log.RemoveCollector()
	if a.deps.Producer != nil {
		if err := a.deps.Producer.Close(); err != nil {
			a.log.Warn("kafka producer close error", applogger.Error(err))
		}
	}
	if a.deps.ClickHouse != nil {
		if err := a.deps.ClickHouse.Close(); err != nil {
			a.log.Warn("clickhouse close error", applogger.Error(err))
		}
	}
	if a.deps.Cache != nil {
		if err := a.deps.Cache.Close(); err != nil {
			a.log.Warn("cache close error", applogger.Error(err))
		}
	}
	// last: the job queue and user directory share this client
	if a.deps.Redis != nil {
		if err := a.deps.Redis.Close(); err != nil {
			a.log.Warn("redis close error", applogger.Error(err))
		}
	}
	if a.tracerStop != nil {
		if err := a.tracerStop(shutdownCtx); err != nil {
			a.log.Warn("tracer shutdown error", applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	return nil
}
