package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/trace"
)

// TraceHeader carries the correlation id between producer and TraceHook.
const TraceHeader = "trace_id"

// Message is one record of a batch publish.
type Message struct {
	Key     []byte
	Value   interface{}
	Headers map[string]string
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes JSON records. Records written with a context that holds
// a trace id, or an active span, get a trace_id header.
type Producer struct {
	writer messageWriter
	comp   string
	now    func() time.Time
}

func NewProducer(opts ...ProducerOption) (*Producer, error) {
	cfg := &ProducerConfig{
		RequiredAcks: -1,
		Compression:  "gzip",
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
		BatchSize:    100,
		BatchBytes:   1 << 20,
		BatchTimeout: time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}

	var bal kafka.Balancer = &kafka.LeastBytes{}
	if cfg.HashByKey {
		bal = &kafka.Hash{}
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     bal,
		RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:  compressionCodec(cfg.Compression),
		MaxAttempts:  cfg.MaxAttempts,
		WriteTimeout: cfg.WriteTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		BatchSize:    cfg.BatchSize,
		BatchBytes:   int64(cfg.BatchBytes),
		BatchTimeout: cfg.BatchTimeout,
		Async:        cfg.Async,
	}
	return newProducer(w, cfg.Compression), nil
}

func newProducer(w messageWriter, comp string) *Producer {
	producerMetricsOnce.Do(registerProducerMetrics)
	return &Producer{writer: w, comp: comp, now: time.Now}
}

// Publish writes one record keyed by key.
func (p *Producer) Publish(ctx context.Context, topic string, key []byte, value interface{}) error {
	return p.write(ctx, topic, []Message{{Key: key, Value: value}})
}

// PublishMessage writes an unkeyed record. It makes the producer usable as
// the log collector's publisher.
func (p *Producer) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return p.write(ctx, topic, []Message{{Value: payload}})
}

// PublishBatch writes all messages in one call. Encoding errors fail the
// batch before anything is sent.
func (p *Producer) PublishBatch(ctx context.Context, topic string, messages []Message) error {
	if len(messages) == 0 {
		return nil
	}
	return p.write(ctx, topic, messages)
}

func (p *Producer) write(ctx context.Context, topic string, messages []Message) error {
	start := p.now()
	traceID := traceIDFrom(ctx)

	out := make([]kafka.Message, len(messages))
	var size int64
	for i, m := range messages {
		v, err := encodeValue(m.Value)
		if err != nil {
			return fmt.Errorf("encode %s record %d: %w", topic, i, err)
		}
		out[i] = kafka.Message{
			Topic:   topic,
			Key:     m.Key,
			Value:   v,
			Time:    start,
			Headers: headers(m.Headers, traceID),
		}
		size += int64(len(v))
	}

	err := p.writer.WriteMessages(ctx, out...)
	producerMetrics.observe(topic, p.comp, size, len(out), time.Since(start), err)
	if err != nil {
		return fmt.Errorf("write %d records to %s: %w", len(out), topic, err)
	}
	return nil
}

func (p *Producer) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

func traceIDFrom(ctx context.Context) string {
	if id := TraceID(ctx); id != "" {
		return id
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

func headers(extra map[string]string, traceID string) []kafka.Header {
	if len(extra) == 0 && traceID == "" {
		return nil
	}
	hs := make([]kafka.Header, 0, len(extra)+1)
	for k, v := range extra {
		hs = append(hs, kafka.Header{Key: k, Value: []byte(v)})
	}
	if _, set := extra[TraceHeader]; !set && traceID != "" {
		hs = append(hs, kafka.Header{Key: TraceHeader, Value: []byte(traceID)})
	}
	return hs
}

func encodeValue(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	case json.RawMessage:
		return v, nil
	}
	return json.Marshal(value)
}

func compressionCodec(name string) kafka.Compression {
	switch name {
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	default:
		return kafka.Gzip
	}
}

type producerCollectors struct {
	records *prometheus.CounterVec
	bytes   *prometheus.CounterVec
	latency *prometheus.HistogramVec
}

var (
	producerMetrics     producerCollectors
	producerMetricsOnce sync.Once
)

func registerProducerMetrics() {
	producerMetrics = producerCollectors{
		records: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "riskgate_kafka_producer_records_total",
			Help: "Records written to Kafka by topic and outcome.",
		}, []string{"topic", "result"}),
		bytes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "riskgate_kafka_producer_bytes_total",
			Help: "Encoded payload bytes written to Kafka.",
		}, []string{"topic", "compression"}),
		latency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "riskgate_kafka_producer_write_seconds",
			Help:    "Duration of one WriteMessages call.",
			Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"topic"}),
	}
}

func (m producerCollectors) observe(topic, comp string, size int64, n int, d time.Duration, err error) {
	if m.records == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.records.WithLabelValues(topic, result).Add(float64(n))
	m.bytes.WithLabelValues(topic, comp).Add(float64(size))
	m.latency.WithLabelValues(topic).Observe(d.Seconds())
}
