package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Job handles every message of one Type.
type Job interface {
	Name() string
	Type() string
	Handle(ctx context.Context, payload interface{}) error
}

// Scheduler delivers a payload to the job registered for msgType, now or at
// a later time.
type Scheduler interface {
	Enqueue(ctx context.Context, msgType string, payload interface{}) error
	EnqueueAt(ctx context.Context, msgType string, payload interface{}, at time.Time) error
}

// Runner is a Scheduler that owns the workers running its jobs.
type Runner interface {
	Scheduler
	RegisterJob(job Job)
	Stop(ctx context.Context) error
}

var (
	_ Runner = (*MemoryQueue)(nil)
	_ Runner = (*RedisQueue)(nil)
)

type QueueConfig struct {
	Workers    int
	QueueSize  int
	RetryLimit int           // retries after the first failed delivery
	RetryDelay time.Duration // wait before each retry
}

// Message is the unit stored in a queue. Payload is the caller's value in
// memory and json.RawMessage after a trip through Redis.
type Message struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload"`
	Attempts  int         `json:"attempts"`
	Timestamp time.Time   `json:"timestamp"`
}

func newMessage(msgType string, payload interface{}) Message {
	return Message{ID: uuid.NewString(), Type: msgType, Payload: payload, Timestamp: time.Now()}
}

// ParsePayload returns payload as a *T whichever backend delivered it.
func ParsePayload[T any](payload interface{}) (*T, error) {
	switch p := payload.(type) {
	case *T:
		return p, nil
	case T:
		return &p, nil
	case nil:
		return nil, fmt.Errorf("empty payload")
	}

	raw, ok := payload.(json.RawMessage)
	if !ok {
		var err error
		if raw, err = json.Marshal(payload); err != nil {
			return nil, fmt.Errorf("re-encode %T payload: %w", payload, err)
		}
	}
	out := new(T)
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, fmt.Errorf("decode payload into %T: %w", *out, err)
	}
	return out, nil
}
