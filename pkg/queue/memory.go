package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"RiskGate/pkg/logger"
)

// MemoryQueue runs jobs in-process. Delayed messages are held by timers, so
// they are lost on restart.
type MemoryQueue struct {
	logger *logger.Logger
	config *QueueConfig
	jobs   map[string]Job
	msgs   chan Message
	timers map[string]*time.Timer
	mu     sync.RWMutex
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	closed bool
}

// NewMemoryQueue creates a queue with config.Workers goroutines started immediately.
func NewMemoryQueue(lgr *logger.Logger, config *QueueConfig, jobs ...Job) *MemoryQueue {
	if config == nil {
		config = &QueueConfig{}
	}
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 256
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = time.Second
	}
	if lgr == nil {
		lgr = logger.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	q := &MemoryQueue{
		logger: lgr,
		config: config,
		jobs:   make(map[string]Job),
		msgs:   make(chan Message, config.QueueSize),
		timers: make(map[string]*time.Timer),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, j := range jobs {
		q.RegisterJob(j)
	}
	for i := 0; i < config.Workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	return q
}

// RegisterJob registers a single job.
func (q *MemoryQueue) RegisterJob(job Job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, exists := q.jobs[job.Type()]; exists {
		q.logger.Warn("job already registered", logger.String("job", job.Name()))
		return
	}
	q.jobs[job.Type()] = job
}

// Enqueue delivers a message to the workers.
func (q *MemoryQueue) Enqueue(ctx context.Context, msgType string, payload interface{}) error {
	if err := q.accepts(msgType); err != nil {
		return err
	}
	return q.push(ctx, newMessage(msgType, payload))
}

// EnqueueAt delivers a message once at has passed.
func (q *MemoryQueue) EnqueueAt(ctx context.Context, msgType string, payload interface{}, at time.Time) error {
	if err := q.accepts(msgType); err != nil {
		return err
	}
	q.schedule(newMessage(msgType, payload), time.Until(at))
	return nil
}

// Pending returns the number of delayed messages not yet delivered.
func (q *MemoryQueue) Pending() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.timers)
}

// Stop cancels delayed messages and waits for in-flight jobs.
func (q *MemoryQueue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	for id, t := range q.timers {
		t.Stop()
		delete(q.timers, id)
	}
	q.mu.Unlock()
	q.cancel()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return fmt.Errorf("timeout: %w", ctx.Err())
	case <-done:
		return nil
	}
}

func (q *MemoryQueue) accepts(msgType string) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return fmt.Errorf("queue not running")
	}
	if _, ok := q.jobs[msgType]; !ok {
		return fmt.Errorf("no job registered for type: %s", msgType)
	}
	return nil
}

func (q *MemoryQueue) push(ctx context.Context, msg Message) error {
	select {
	case q.msgs <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.ctx.Done():
		return fmt.Errorf("queue not running")
	}
}

func (q *MemoryQueue) schedule(msg Message, delay time.Duration) {
	if delay < 0 {
		delay = 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.timers[msg.ID] = time.AfterFunc(delay, func() {
		q.mu.Lock()
		delete(q.timers, msg.ID)
		q.mu.Unlock()
		if err := q.push(q.ctx, msg); err != nil {
			q.logger.Warn("drop delayed message", logger.String("id", msg.ID), logger.Error(err))
		}
	})
}

func (q *MemoryQueue) worker() {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case msg := <-q.msgs:
			q.process(msg)
		}
	}
}

func (q *MemoryQueue) process(msg Message) {
	q.mu.RLock()
	job := q.jobs[msg.Type]
	q.mu.RUnlock()

	err := job.Handle(q.ctx, msg.Payload)
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}

	q.logger.Error("message processing error",
		logger.String("id", msg.ID),
		logger.String("job", job.Name()),
		logger.Int("attempt", msg.Attempts+1),
		logger.Error(err))
	if msg.Attempts < q.config.RetryLimit {
		msg.Attempts++
		q.schedule(msg, q.config.RetryDelay)
		return
	}
	q.logger.Error("max retries reached", logger.String("id", msg.ID), logger.String("job", job.Name()))
}
