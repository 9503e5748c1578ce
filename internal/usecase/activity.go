package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"RiskGate/internal/domain/models"
	drepo "RiskGate/internal/domain/repository"
	pkgkafka "RiskGate/pkg/kafka"
	"RiskGate/pkg/logger"
)

const (
	ActivityBackendKafka = "kafka"
	ActivityBackendStore = "store"
)

var ErrIngestQueueFull = errors.New("activity ingest queue full")

// ActivityPublisher is the kafka side of the ingestor.
type ActivityPublisher interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
	PublishBatch(ctx context.Context, topic string, messages []pkgkafka.Message) error
}

type ActivityIngestorConfig struct {
	Backend      string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	QueueSize    int
}

// ActivityIngestor feeds bets and sessions into the activity log the risk
// analyzers read. With the kafka backend events are only published; a
// store-backed ingestor on the consumer side writes them.
type ActivityIngestor struct {
	cfg     ActivityIngestorConfig
	pub     ActivityPublisher
	writer  drepo.ActivityWriter
	cache   CacheInvalidator
	metrics drepo.Metrics
	log     *logger.Logger

	in   chan models.ActivityEvent
	wg   sync.WaitGroup
	once sync.Once
	stop chan struct{}
}

func NewActivityIngestor(cfg ActivityIngestorConfig, pub ActivityPublisher, writer drepo.ActivityWriter, cache CacheInvalidator, metrics drepo.Metrics, log *logger.Logger) *ActivityIngestor {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = time.Second
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 10000
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &ActivityIngestor{
		cfg:     cfg,
		pub:     pub,
		writer:  writer,
		cache:   cache,
		metrics: metrics,
		log:     log,
		in:      make(chan models.ActivityEvent, cfg.QueueSize),
		stop:    make(chan struct{}),
	}
}

func (p *ActivityIngestor) Backend() string { return p.cfg.Backend }

// Process routes a single event to the configured backend.
func (p *ActivityIngestor) Process(ctx context.Context, ev models.ActivityEvent) error {
	if err := ev.Validate(); err != nil {
		return models.NewPipelineError(models.ErrKindValidation, "", err, "activity: "+err.Error())
	}

	start := time.Now()
	var err error
	switch p.cfg.Backend {
	case ActivityBackendKafka:
		err = p.pub.Publish(ctx, p.cfg.Topic, []byte(ev.UserID()), ev)
	case ActivityBackendStore:
		err = p.write(ctx, []models.ActivityEvent{ev})
	default:
		err = fmt.Errorf("unknown backend: %s", p.cfg.Backend)
	}
	if err != nil {
		p.metrics.RecordError("activity_process")
		return fmt.Errorf("process activity: %w", err)
	}
	p.metrics.RecordLatency("activity_process", time.Since(start).Seconds())
	return nil
}

// ProcessBatch validates every event before routing any of them.
func (p *ActivityIngestor) ProcessBatch(ctx context.Context, evs []models.ActivityEvent) error {
	if len(evs) == 0 {
		return nil
	}
	for i, ev := range evs {
		if err := ev.Validate(); err != nil {
			return models.NewPipelineError(models.ErrKindValidation, "", err, fmt.Sprintf("activity[%d]: %s", i, err))
		}
	}

	start := time.Now()
	var err error
	switch p.cfg.Backend {
	case ActivityBackendKafka:
		msgs := make([]pkgkafka.Message, 0, len(evs))
		for _, ev := range evs {
			msgs = append(msgs, pkgkafka.Message{Key: []byte(ev.UserID()), Value: ev})
		}
		err = p.pub.PublishBatch(ctx, p.cfg.Topic, msgs)
	case ActivityBackendStore:
		err = p.write(ctx, evs)
	default:
		err = fmt.Errorf("unknown backend: %s", p.cfg.Backend)
	}
	if err != nil {
		p.metrics.RecordError("activity_process_batch")
		return fmt.Errorf("process activity batch: %w", err)
	}
	p.metrics.RecordLatency("activity_process_batch", time.Since(start).Seconds())
	return nil
}

func (p *ActivityIngestor) write(ctx context.Context, evs []models.ActivityEvent) error {
	var (
		bets     []models.Bet
		sessions []models.GameSession
		users    = map[string]struct{}{}
	)
	for _, ev := range evs {
		switch ev.Type {
		case models.ActivityBet:
			bets = append(bets, *ev.Bet)
		case models.ActivitySession:
			sessions = append(sessions, *ev.Session)
		}
		users[ev.UserID()] = struct{}{}
	}
	if len(bets) > 0 {
		if err := p.writer.InsertBets(ctx, bets); err != nil {
			return err
		}
	}
	if len(sessions) > 0 {
		if err := p.writer.InsertSessions(ctx, sessions); err != nil {
			return err
		}
	}
	if p.cache != nil {
		for u := range users {
			if err := p.cache.Invalidate(ctx, u); err != nil {
				p.log.Warn("invalidate history failed", logger.String("user_id", u), logger.Error(err))
			}
		}
	}
	return nil
}

// Enqueue hands an event to the batching loop started by Start.
func (p *ActivityIngestor) Enqueue(ev models.ActivityEvent) error {
	if err := ev.Validate(); err != nil {
		return models.NewPipelineError(models.ErrKindValidation, "", err, "activity: "+err.Error())
	}
	select {
	case p.in <- ev:
		return nil
	default:
		p.metrics.RecordError("activity_queue_full")
		return ErrIngestQueueFull
	}
}

// Start runs the batching loop. Batches flush when full or every BatchTimeout.
func (p *ActivityIngestor) Start(ctx context.Context) {
	p.wg.Add(1)
	go p.consume(ctx)
}

func (p *ActivityIngestor) consume(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.cfg.BatchTimeout)
	defer ticker.Stop()

	buf := make([]models.ActivityEvent, 0, p.cfg.BatchSize)
	flush := func() {
		if len(buf) == 0 {
			return
		}
		fctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := p.ProcessBatch(fctx, buf); err != nil {
			p.log.Error("activity batch dropped", logger.Int("size", len(buf)), logger.Error(err))
		}
		buf = buf[:0]
	}

	for {
		select {
		case <-ctx.Done():
			p.drain(&buf)
			flush()
			return
		case <-p.stop:
			p.drain(&buf)
			flush()
			return
		case ev := <-p.in:
			buf = append(buf, ev)
			if len(buf) >= p.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (p *ActivityIngestor) drain(buf *[]models.ActivityEvent) {
	for {
		select {
		case ev := <-p.in:
			*buf = append(*buf, ev)
		default:
			return
		}
	}
}

// Stop flushes buffered events and waits for the loop to exit.
func (p *ActivityIngestor) Stop() {
	p.once.Do(func() { close(p.stop) })
	p.wg.Wait()
}
