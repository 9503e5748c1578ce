package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"RiskGate/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// promoteScript moves up to ARGV[2] members of the delayed set whose score is
// <= ARGV[1] onto the ready list. Running it as one script keeps two
// replicas from delivering the same message twice.
var promoteScript = redis.NewScript(`
local due = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1], "LIMIT", 0, tonumber(ARGV[2]))
for _, m in ipairs(due) do
  redis.call("ZREM", KEYS[1], m)
  redis.call("LPUSH", KEYS[2], m)
end
return #due
`)

const promoteBatch = 100

// RedisQueue keeps ready messages in a list, delayed and retried messages in
// a sorted set scored by due time in milliseconds, and exhausted messages in
// a dead letter list. Several processes may share one prefix.
type RedisQueue struct {
	logger  *logger.Logger
	config  *QueueConfig
	client  redis.UniversalClient
	prefix  string
	poll    time.Duration
	block   time.Duration
	jobs    map[string]Job
	mu      sync.RWMutex
	running bool
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

// RedisQueueOption configures RedisQueue.
type RedisQueueOption func(*RedisQueue)

// WithKeyPrefix namespaces the queue keys.
func WithKeyPrefix(prefix string) RedisQueueOption {
	return func(r *RedisQueue) {
		if prefix != "" {
			r.prefix = prefix
		}
	}
}

// WithPollInterval sets how often due delayed messages are promoted.
func WithPollInterval(d time.Duration) RedisQueueOption {
	return func(r *RedisQueue) {
		if d > 0 {
			r.poll = d
		}
	}
}

func NewRedisQueue(lgr *logger.Logger, config *QueueConfig, client redis.UniversalClient, opts ...RedisQueueOption) *RedisQueue {
	if config == nil {
		config = &QueueConfig{}
	}
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = 10 * time.Second
	}
	if lgr == nil {
		lgr = logger.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &RedisQueue{
		logger: lgr,
		config: config,
		client: client,
		prefix: "riskgate:queue",
		poll:   time.Second,
		block:  time.Second,
		jobs:   make(map[string]Job),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RedisQueue) readyKey() string   { return r.prefix + ":ready" }
func (r *RedisQueue) delayedKey() string { return r.prefix + ":delayed" }
func (r *RedisQueue) deadKey() string    { return r.prefix + ":dlq" }

// RegisterJob binds job to its message type. A second job for the same type
// is ignored.
func (r *RedisQueue) RegisterJob(job Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[job.Type()]; ok {
		r.logger.Warn("job already registered", logger.String("job", job.Name()), logger.String("type", job.Type()))
		return
	}
	r.jobs[job.Type()] = job
	r.logger.Info("job registered", logger.String("job", job.Name()), logger.String("type", job.Type()))
}

// Start pings Redis and launches the workers and the promoter.
func (r *RedisQueue) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return fmt.Errorf("queue already running")
	}

	ctx, cancel := context.WithTimeout(r.ctx, 5*time.Second)
	defer cancel()
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	r.running = true
	for i := 0; i < r.config.Workers; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}
	r.wg.Add(1)
	go r.promoter()

	r.logger.Info("redis queue started",
		logger.String("prefix", r.prefix),
		logger.Int("workers", r.config.Workers),
		logger.Duration("poll", r.poll))
	return nil
}

// Stop cancels the workers and waits for them until ctx expires. Messages
// still in Redis stay there for the next start.
func (r *RedisQueue) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		r.cancel()
		return nil
	}
	r.running = false
	r.mu.Unlock()
	r.cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		r.logger.Info("redis queue stopped", logger.String("prefix", r.prefix))
		return nil
	case <-ctx.Done():
		return fmt.Errorf("redis queue stop: %w", ctx.Err())
	}
}

func (r *RedisQueue) encode(msgType string, payload interface{}) ([]byte, error) {
	r.mu.RLock()
	_, known := r.jobs[msgType]
	r.mu.RUnlock()
	if !known {
		return nil, fmt.Errorf("no job registered for type %q", msgType)
	}
	data, err := json.Marshal(newMessage(msgType, payload))
	if err != nil {
		return nil, fmt.Errorf("marshal %s message: %w", msgType, err)
	}
	return data, nil
}

// Enqueue makes the message ready for the next free worker.
func (r *RedisQueue) Enqueue(ctx context.Context, msgType string, payload interface{}) error {
	data, err := r.encode(msgType, payload)
	if err != nil {
		return err
	}
	if err := r.client.LPush(ctx, r.readyKey(), data).Err(); err != nil {
		return fmt.Errorf("lpush %s: %w", r.readyKey(), err)
	}
	return nil
}

// EnqueueAt delivers the message on the first promotion after at.
func (r *RedisQueue) EnqueueAt(ctx context.Context, msgType string, payload interface{}, at time.Time) error {
	data, err := r.encode(msgType, payload)
	if err != nil {
		return err
	}
	return r.schedule(ctx, data, at)
}

func (r *RedisQueue) schedule(ctx context.Context, data []byte, at time.Time) error {
	z := redis.Z{Score: float64(at.UnixMilli()), Member: data}
	if err := r.client.ZAdd(ctx, r.delayedKey(), z).Err(); err != nil {
		return fmt.Errorf("zadd %s: %w", r.delayedKey(), err)
	}
	return nil
}

// promote moves due delayed messages to the ready list and returns how many
// moved.
func (r *RedisQueue) promote(ctx context.Context, now time.Time) (int, error) {
	n, err := promoteScript.Run(ctx, r.client,
		[]string{r.delayedKey(), r.readyKey()},
		strconv.FormatInt(now.UnixMilli(), 10), promoteBatch).Int()
	if err != nil {
		return 0, fmt.Errorf("promote delayed: %w", err)
	}
	return n, nil
}

func (r *RedisQueue) promoter() {
	defer r.wg.Done()
	ticker := time.NewTicker(r.poll)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			for {
				n, err := r.promote(r.ctx, time.Now())
				if err != nil {
					if !errors.Is(err, context.Canceled) {
						r.logger.Error("promote delayed messages failed", logger.String("prefix", r.prefix), logger.Error(err))
					}
					break
				}
				if n < promoteBatch {
					break
				}
			}
		}
	}
}

func (r *RedisQueue) worker(id int) {
	defer r.wg.Done()
	for r.ctx.Err() == nil {
		res, err := r.client.BRPop(r.ctx, r.block, r.readyKey()).Result()
		switch {
		case err == nil:
		case errors.Is(err, redis.Nil), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			continue
		default:
			r.logger.Error("brpop failed", logger.Int("worker_id", id), logger.Error(err))
			select {
			case <-r.ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}
		if len(res) < 2 {
			continue
		}
		r.handle([]byte(res[1]))
	}
}

func (r *RedisQueue) handle(raw []byte) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		r.logger.Error("dropping undecodable message", logger.String("prefix", r.prefix), logger.Error(err))
		r.bury(raw)
		return
	}

	r.mu.RLock()
	job, ok := r.jobs[msg.Type]
	r.mu.RUnlock()
	if !ok {
		r.logger.Error("no job for message", logger.String("type", msg.Type), logger.String("id", msg.ID))
		r.bury(raw)
		return
	}

	if p, err := json.Marshal(msg.Payload); err == nil {
		msg.Payload = json.RawMessage(p)
	}
	err := job.Handle(r.ctx, msg.Payload)
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}

	msg.Attempts++
	if msg.Attempts > r.config.RetryLimit {
		r.logger.Error("job failed, moving to dead letter",
			logger.String("job", job.Name()),
			logger.String("id", msg.ID),
			logger.Int("attempts", msg.Attempts),
			logger.Error(err))
		data, _ := json.Marshal(msg)
		r.bury(data)
		return
	}

	at := time.Now().Add(r.config.RetryDelay)
	r.logger.Warn("job failed, retry scheduled",
		logger.String("job", job.Name()),
		logger.String("id", msg.ID),
		logger.Int("attempt", msg.Attempts),
		logger.String("retry_at", at.Format(time.RFC3339)),
		logger.Error(err))
	data, mErr := json.Marshal(msg)
	if mErr != nil {
		r.logger.Error("marshal retry", logger.Error(mErr))
		return
	}
	if sErr := r.schedule(context.Background(), data, at); sErr != nil {
		r.logger.Error("schedule retry", logger.String("id", msg.ID), logger.Error(sErr))
	}
}

func (r *RedisQueue) bury(data []byte) {
	if err := r.client.LPush(context.Background(), r.deadKey(), data).Err(); err != nil {
		r.logger.Error("lpush dead letter", logger.Error(err))
	}
}
