package repository

import (
	"context"
	"errors"
	"sync"

	"RiskGate/internal/domain/models"
	"RiskGate/internal/domain/repository"
	pkgkafka "RiskGate/pkg/kafka"
)

// KafkaStagePublisher writes stage events keyed by transaction id, so all
// events of one transaction land on one partition in order.
type KafkaStagePublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaStagePublisher(producer *pkgkafka.Producer, topic string) *KafkaStagePublisher {
	return &KafkaStagePublisher{producer: producer, topic: topic}
}

func (p *KafkaStagePublisher) PublishStage(ctx context.Context, ev models.StageEvent) error {
	return p.producer.Publish(ctx, p.topic, []byte(ev.TransactionID), ev)
}

// FanOutPublisher forwards every event to all publishers and joins their errors.
type FanOutPublisher struct {
	publishers []repository.EventPublisher
}

func NewFanOutPublisher(publishers ...repository.EventPublisher) *FanOutPublisher {
	out := make([]repository.EventPublisher, 0, len(publishers))
	for _, p := range publishers {
		if p != nil {
			out = append(out, p)
		}
	}
	return &FanOutPublisher{publishers: out}
}

func (f *FanOutPublisher) PublishStage(ctx context.Context, ev models.StageEvent) error {
	var errs []error
	for _, p := range f.publishers {
		if err := p.PublishStage(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RecordingPublisher keeps events in memory. Used when no broker is configured.
type RecordingPublisher struct {
	mu     sync.RWMutex
	events []models.StageEvent
	limit  int
}

// NewRecordingPublisher keeps at most limit events (0 = unbounded).
func NewRecordingPublisher(limit int) *RecordingPublisher {
	return &RecordingPublisher{limit: limit}
}

func (r *RecordingPublisher) PublishStage(_ context.Context, ev models.StageEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	if r.limit > 0 && len(r.events) > r.limit {
		r.events = r.events[len(r.events)-r.limit:]
	}
	return nil
}

// Events returns the stages published for txID in order.
func (r *RecordingPublisher) Events(txID string) []models.StageEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []models.StageEvent
	for _, ev := range r.events {
		if ev.TransactionID == txID {
			out = append(out, ev)
		}
	}
	return out
}

var (
	_ repository.EventPublisher = (*KafkaStagePublisher)(nil)
	_ repository.EventPublisher = (*FanOutPublisher)(nil)
	_ repository.EventPublisher = (*RecordingPublisher)(nil)
)
