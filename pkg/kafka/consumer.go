package kafka

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strconv"
	"sync"
	"time"

	"RiskGate/pkg/logger"
	"RiskGate/pkg/retry"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

// MessageHandler handles the records of one topic. Returning a
// retry.Permanent error skips the remaining attempts.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

type ConsumerOption func(*ConsumerConfig)

type ConsumerConfig struct {
	Brokers     []string
	GroupID     string
	WorkerCount int
	BufferSize  int // per worker
	RetryMax    int
	BackoffMin  time.Duration
	BackoffMax  time.Duration
	DLQTopic    string
	MinBytes    int
	MaxBytes    int
	Logger      *logger.Logger
}

func WithConsumerBrokers(brokers []string) ConsumerOption {
	return func(c *ConsumerConfig) { c.Brokers = brokers }
}

func WithConsumerGroupID(groupID string) ConsumerOption {
	return func(c *ConsumerConfig) {
		if groupID != "" {
			c.GroupID = groupID
		}
	}
}

func WithConsumerWorkers(n int) ConsumerOption {
	return func(c *ConsumerConfig) {
		if n > 0 {
			c.WorkerCount = n
		}
	}
}

func WithConsumerBufferSize(n int) ConsumerOption {
	return func(c *ConsumerConfig) {
		if n > 0 {
			c.BufferSize = n
		}
	}
}

// WithConsumerRetry sets how many times a failed record is retried and the
// backoff range between attempts.
func WithConsumerRetry(max int, backoffMin, backoffMax time.Duration) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.RetryMax = max
		c.BackoffMin = backoffMin
		c.BackoffMax = backoffMax
	}
}

// WithConsumerDLQ enables the dead letter topic. Without one, a record that
// keeps failing is not committed and is seen again after a rebalance.
func WithConsumerDLQ(topic string) ConsumerOption {
	return func(c *ConsumerConfig) { c.DLQTopic = topic }
}

func WithConsumerFetch(minBytes, maxBytes int) ConsumerOption {
	return func(c *ConsumerConfig) {
		if minBytes > 0 {
			c.MinBytes = minBytes
		}
		if maxBytes > 0 {
			c.MaxBytes = maxBytes
		}
	}
}

func WithConsumerLogger(l *logger.Logger) ConsumerOption {
	return func(c *ConsumerConfig) { c.Logger = l }
}

// Consumer reads every registered topic in one group. Records are routed to
// a worker lane by (topic, partition), so each partition is handled in offset
// order while different partitions run in parallel.
type Consumer struct {
	cfg      *ConsumerConfig
	log      *logger.Logger
	hook     ConsumerHook
	handlers map[string]MessageHandler
	readers  map[string]*kafka.Reader
	lanes    []chan *message
	dlq      messageWriter

	stop     chan struct{}
	stopOnce sync.Once
	fetchers sync.WaitGroup
	workers  sync.WaitGroup
}

type message struct {
	topic string
	data  []byte
	km    kafka.Message
}

func NewConsumer(opts ...ConsumerOption) (*Consumer, error) {
	cfg := &ConsumerConfig{
		GroupID:     "riskgate",
		WorkerCount: 1,
		BufferSize:  16,
		RetryMax:    3,
		BackoffMin:  50 * time.Millisecond,
		BackoffMax:  2 * time.Second,
		MinBytes:    1,
		MaxBytes:    10 << 20,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}

	c := &Consumer{
		cfg:      cfg,
		log:      cfg.Logger,
		hook:     HookFuncs{},
		handlers: make(map[string]MessageHandler),
		readers:  make(map[string]*kafka.Reader),
		stop:     make(chan struct{}),
	}
	if cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{Addr: kafka.TCP(cfg.Brokers...), Topic: cfg.DLQTopic, Balancer: &kafka.Hash{}}
	}
	consumerMetricsOnce.Do(registerConsumerMetrics)
	return c, nil
}

// RegisterHandler must be called before Start. One handler per topic.
func (c *Consumer) RegisterHandler(h MessageHandler) {
	if _, dup := c.handlers[h.Topic()]; dup {
		c.log.Warn("kafka handler already registered", logger.String("topic", h.Topic()))
		return
	}
	c.handlers[h.Topic()] = h
}

// WithConsumerHook installs lifecycle hooks. nil keeps the current one.
func (c *Consumer) WithConsumerHook(h ConsumerHook) {
	if h != nil {
		c.hook = h
	}
}

func (c *Consumer) Start() error {
	if len(c.handlers) == 0 {
		return fmt.Errorf("no handlers registered")
	}

	c.lanes = make([]chan *message, c.cfg.WorkerCount)
	for i := range c.lanes {
		c.lanes[i] = make(chan *message, c.cfg.BufferSize)
		c.workers.Add(1)
		go c.work(c.lanes[i])
	}

	for topic := range c.handlers {
		r := kafka.NewReader(kafka.ReaderConfig{
			Brokers:  c.cfg.Brokers,
			Topic:    topic,
			GroupID:  c.cfg.GroupID,
			MinBytes: c.cfg.MinBytes,
			MaxBytes: c.cfg.MaxBytes,
		})
		c.readers[topic] = r
		c.fetchers.Add(1)
		go c.fetch(topic, r)
	}

	c.log.Info("kafka consumer started",
		logger.String("group", c.cfg.GroupID),
		logger.Int("topics", len(c.readers)),
		logger.Int("lanes", len(c.lanes)),
		logger.String("dlq", c.cfg.DLQTopic))
	return nil
}

// Stop ends fetching, lets the lanes drain what they hold and closes the
// readers. It gives up when ctx expires.
func (c *Consumer) Stop(ctx context.Context) error {
	var err error
	c.stopOnce.Do(func() {
		close(c.stop)
		c.fetchers.Wait()
		for _, lane := range c.lanes {
			close(lane)
		}

		done := make(chan struct{})
		go func() {
			c.workers.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			err = fmt.Errorf("kafka consumer stop: %w", ctx.Err())
		}

		for topic, r := range c.readers {
			if cerr := r.Close(); cerr != nil {
				c.log.Warn("close kafka reader", logger.String("topic", topic), logger.Error(cerr))
			}
		}
		if c.dlq != nil {
			if cerr := c.dlq.Close(); cerr != nil {
				c.log.Warn("close dlq writer", logger.Error(cerr))
			}
		}
		if err == nil {
			c.log.Info("kafka consumer stopped")
		}
	})
	return err
}

// lane picks the worker for a partition. The same input always maps to the
// same lane.
func (c *Consumer) lane(topic string, partition int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(topic))
	_, _ = h.Write([]byte(strconv.Itoa(partition)))
	return int(h.Sum32() % uint32(c.cfg.WorkerCount))
}

func (c *Consumer) fetch(topic string, r *kafka.Reader) {
	defer c.fetchers.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-c.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		km, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Warn("fetch kafka message", logger.String("topic", topic), logger.Error(err))
			select {
			case <-c.stop:
				return
			case <-time.After(c.cfg.BackoffMin):
			}
			continue
		}

		lane := c.lanes[c.lane(topic, km.Partition)]
		select {
		case lane <- &message{topic: topic, data: km.Value, km: km}:
			consumerMetrics.depth.WithLabelValues(topic).Set(float64(len(lane)))
		case <-c.stop:
			return
		}
	}
}

func (c *Consumer) work(lane <-chan *message) {
	defer c.workers.Done()
	for msg := range lane {
		c.process(msg)
	}
}

func (c *Consumer) process(msg *message) {
	h, ok := c.handlers[msg.topic]
	if !ok {
		return
	}
	start := time.Now()
	ctx := context.Background()

	attempts, err := c.handle(ctx, h, msg)
	outcome := "ok"
	if err != nil {
		outcome = "failed"
		c.hook.OnError(ctx, msg.topic, msg.km, msg.data, err)
		c.log.Error("kafka handler failed",
			logger.String("topic", msg.topic),
			logger.Int("partition", msg.km.Partition),
			logger.Int64("offset", msg.km.Offset),
			logger.Int("attempts", attempts),
			logger.Error(err))
		if c.dlq == nil {
			consumerMetrics.handled.WithLabelValues(msg.topic, outcome).Inc()
			return
		}
		if derr := c.deadLetter(ctx, msg, attempts, err); derr != nil {
			c.log.Error("write dlq", logger.String("topic", c.cfg.DLQTopic), logger.Error(derr))
			consumerMetrics.handled.WithLabelValues(msg.topic, outcome).Inc()
			return
		}
		outcome = "dead_lettered"
	}

	if r := c.readers[msg.topic]; r != nil {
		c.commit(r, msg.km)
	}
	consumerMetrics.handled.WithLabelValues(msg.topic, outcome).Inc()
	consumerMetrics.latency.WithLabelValues(msg.topic).Observe(time.Since(start).Seconds())
}

// handle runs the hooks and the handler, retrying transient errors up to
// RetryMax times. A panic counts as a failed attempt.
func (c *Consumer) handle(ctx context.Context, h MessageHandler, msg *message) (int, error) {
	attempts := 0
	for {
		attempts++
		err := c.handleOnce(ctx, h, msg)
		if err == nil || attempts > c.cfg.RetryMax || retry.IsPermanent(err) {
			return attempts, err
		}
		select {
		case <-time.After(retry.Backoff(c.cfg.BackoffMin, c.cfg.BackoffMax, attempts)):
		case <-c.stop:
			return attempts, err
		}
	}
}

func (c *Consumer) handleOnce(ctx context.Context, h MessageHandler, msg *message) (err error) {
	hctx, km, data, err := c.hook.BeforeHandle(ctx, msg.topic, msg.km, msg.data)
	if err != nil {
		return err
	}
	defer func() { c.hook.AfterHandle(hctx, msg.topic, km, data, err) }()
	return invoke(hctx, h, data, msg)
}

// invoke turns a handler panic into an error for the current attempt.
func invoke(ctx context.Context, h MessageHandler, data []byte, msg *message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic handling %s offset %d: %v", msg.topic, msg.km.Offset, r)
		}
	}()
	return h.Handle(ctx, data)
}

func (c *Consumer) deadLetter(ctx context.Context, msg *message, attempts int, cause error) error {
	hs := append([]kafka.Header{
		{Key: "source_topic", Value: []byte(msg.topic)},
		{Key: "source_partition", Value: []byte(strconv.Itoa(msg.km.Partition))},
		{Key: "source_offset", Value: []byte(strconv.FormatInt(msg.km.Offset, 10))},
		{Key: "attempts", Value: []byte(strconv.Itoa(attempts))},
		{Key: "error", Value: []byte(cause.Error())},
	}, msg.km.Headers...)

	wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return c.dlq.WriteMessages(wctx, kafka.Message{Key: msg.km.Key, Value: msg.data, Time: time.Now(), Headers: hs})
}

func (c *Consumer) commit(r *kafka.Reader, km kafka.Message) {
	err := retry.Do(context.Background(), retry.Policy{Attempts: 3, BaseDelay: 50 * time.Millisecond, MaxDelay: 500 * time.Millisecond},
		func(ctx context.Context) error {
			cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			return r.CommitMessages(cctx, km)
		})
	if err != nil && !errors.Is(err, context.Canceled) {
		c.log.Warn("commit kafka offset",
			logger.String("topic", km.Topic),
			logger.Int64("offset", km.Offset),
			logger.Error(err))
	}
}

type consumerCollectors struct {
	depth   *prometheus.GaugeVec
	handled *prometheus.CounterVec
	latency *prometheus.HistogramVec
}

var (
	consumerMetrics     consumerCollectors
	consumerMetricsOnce sync.Once
)

func registerConsumerMetrics() {
	consumerMetrics = consumerCollectors{
		depth: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "riskgate_kafka_consumer_lane_depth",
			Help: "Records buffered in the lane that received the last record of a topic.",
		}, []string{"topic"}),
		handled: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "riskgate_kafka_consumer_records_total",
			Help: "Records handled by topic and outcome (ok, failed, dead_lettered).",
		}, []string{"topic", "outcome"}),
		latency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name: "riskgate_kafka_consumer_handle_seconds",
			Help: "Time from dispatch to commit per record, retries included.",
		}, []string{"topic"}),
	}
}
