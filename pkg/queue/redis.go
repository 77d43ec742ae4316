package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"FxPulse/pkg/logger"
	"FxPulse/pkg/util"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type QueueMode int

const (
	ModeProducerConsumer QueueMode = iota
	ModeProducerOnly
	ModeConsumerOnly
)

func (m QueueMode) String() string {
	switch m {
	case ModeProducerOnly:
		return "producer-only"
	case ModeConsumerOnly:
		return "consumer-only"
	default:
		return "producer-consumer"
	}
}

// promoteDue moves up to ARGV[2] retries whose time has come back onto the
// work list in one step, so concurrent pollers never push a message twice.
var promoteDue = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ARGV[2])
for _, m in ipairs(due) do
	redis.call('ZREM', KEYS[1], m)
	redis.call('LPUSH', KEYS[2], m)
end
return #due
`)

// requeueInflight returns messages a previous process claimed but never
// finished to the work list.
var requeueInflight = redis.NewScript(`
local n = 0
while redis.call('LMOVE', KEYS[1], KEYS[2], 'RIGHT', 'RIGHT') do
	n = n + 1
end
return n
`)

// RedisQueue is a Redis list work queue. Workers claim a message by moving
// it to a processing list and release it once it has been handled, parked
// for retry or dead-lettered, so a crash never loses a claimed message.
type RedisQueue struct {
	log     *logger.Logger
	cfg     QueueConfig
	client  *redis.Client
	mode    QueueMode
	prefix  string
	jobs    map[string]Job
	mu      sync.RWMutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

type RedisQueueOption func(*RedisQueue)

// WithKeyPrefix namespaces the queue keys. Queues sharing a prefix share messages.
func WithKeyPrefix(prefix string) RedisQueueOption {
	return func(r *RedisQueue) { r.prefix = prefix }
}

// storedMessage is Message as read back, with the payload left undecoded
// for the job.
type storedMessage struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempts  int             `json:"attempts"`
	Timestamp time.Time       `json:"timestamp"`
}

func NewRedisQueue(l *logger.Logger, cfg QueueConfig, client *redis.Client, mode QueueMode, opts ...RedisQueueOption) *RedisQueue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 10 * time.Second
	}
	if cfg.MaxRetryDelay < cfg.RetryDelay {
		cfg.MaxRetryDelay = cfg.RetryDelay
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if l == nil {
		l = logger.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &RedisQueue{
		log:    l,
		cfg:    cfg,
		client: client,
		mode:   mode,
		prefix: "fxpulse:queue",
		jobs:   make(map[string]Job),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// NewRedisPublisher returns a started producer-only queue.
func NewRedisPublisher(l *logger.Logger, client *redis.Client, opts ...RedisQueueOption) (*RedisQueue, error) {
	q := NewRedisQueue(l, QueueConfig{}, client, ModeProducerOnly, opts...)
	if err := q.Start(); err != nil {
		return nil, err
	}
	return q, nil
}

func (r *RedisQueue) RegisterJob(job Job) {
	if r.mode == ModeProducerOnly {
		r.log.Warn("job registration ignored in producer-only mode", logger.String("job", job.Name()))
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.jobs[job.Type()]; dup {
		r.log.Warn("job already registered", logger.String("job", job.Name()))
		return
	}
	r.jobs[job.Type()] = job
}

func (r *RedisQueue) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return errors.New("queue already running")
	}

	ctx, cancel := context.WithTimeout(r.ctx, 5*time.Second)
	defer cancel()
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	if r.mode != ModeProducerOnly {
		n, err := requeueInflight.Run(ctx, r.client, []string{r.processingKey(), r.queueKey()}).Int()
		if err != nil {
			return fmt.Errorf("requeue in-flight: %w", err)
		}
		if n > 0 {
			r.log.Warn("requeued unfinished messages", logger.Int("count", n))
		}
		for i := 0; i < r.cfg.Workers; i++ {
			r.wg.Add(1)
			go r.work()
		}
		r.wg.Add(1)
		go r.pollRetries()
	}
	r.running = true
	r.log.Info("redis queue started",
		logger.String("prefix", r.prefix),
		logger.String("mode", r.mode.String()),
		logger.Int("workers", r.cfg.Workers))
	return nil
}

// Stop cancels the workers and waits for in-flight handlers until ctx is done.
func (r *RedisQueue) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
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
		r.log.Info("redis queue stopped", logger.String("prefix", r.prefix))
		return nil
	case <-ctx.Done():
		return fmt.Errorf("redis queue stop: %w", ctx.Err())
	}
}

// Enqueue appends a message. Consumer queues only accept types they have a
// job for; producer-only queues accept anything.
func (r *RedisQueue) Enqueue(ctx context.Context, msgType string, payload interface{}) error {
	r.mu.RLock()
	running := r.running
	_, known := r.jobs[msgType]
	r.mu.RUnlock()
	if !running {
		return errors.New("queue not running")
	}
	if r.mode != ModeProducerOnly && !known {
		return fmt.Errorf("no job registered for type %q", msgType)
	}

	data, err := json.Marshal(Message{
		ID:        uuid.NewString(),
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	return r.client.LPush(ctx, r.queueKey(), data).Err()
}

// PublishMessage lets the queue serve as a log collector sink.
func (r *RedisQueue) PublishMessage(ctx context.Context, msgType string, payload interface{}) error {
	return r.Enqueue(ctx, msgType, payload)
}

func (r *RedisQueue) Stats(ctx context.Context) (Stats, error) {
	pipe := r.client.Pipeline()
	pending := pipe.LLen(ctx, r.queueKey())
	inflight := pipe.LLen(ctx, r.processingKey())
	retrying := pipe.ZCard(ctx, r.retryKey())
	dead := pipe.LLen(ctx, r.deadLetterKey())
	if _, err := pipe.Exec(ctx); err != nil {
		return Stats{}, fmt.Errorf("queue stats: %w", err)
	}
	return Stats{
		Pending:    pending.Val(),
		InFlight:   inflight.Val(),
		Retrying:   retrying.Val(),
		DeadLetter: dead.Val(),
	}, nil
}

func (r *RedisQueue) work() {
	defer r.wg.Done()
	for r.ctx.Err() == nil {
		raw, err := r.client.BLMove(r.ctx, r.queueKey(), r.processingKey(), "RIGHT", "LEFT", time.Second).Result()
		switch {
		case err == nil:
			r.handle(raw)
		case errors.Is(err, redis.Nil), r.ctx.Err() != nil:
		default:
			r.log.Error("claim message", logger.Error(err))
			select {
			case <-time.After(time.Second):
			case <-r.ctx.Done():
			}
		}
	}
}

// handle runs the job for one claimed message and then releases the claim.
// Bookkeeping writes use a fresh context so shutdown does not strand the claim.
func (r *RedisQueue) handle(raw string) {
	bg := context.Background()
	defer func() {
		if err := r.client.LRem(bg, r.processingKey(), 1, raw).Err(); err != nil {
			r.log.Error("release claim", logger.Error(err))
		}
	}()

	var msg storedMessage
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		r.log.Error("undecodable message", logger.Error(err))
		r.push(bg, r.deadLetterKey(), []byte(raw))
		return
	}

	r.mu.RLock()
	job, ok := r.jobs[msg.Type]
	r.mu.RUnlock()
	if !ok {
		r.log.Error("no job for message", logger.String("type", msg.Type), logger.String("id", msg.ID))
		r.park(bg, msg, time.Time{})
		return
	}

	err := job.Handle(r.ctx, msg.Payload)
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled) && r.ctx.Err() != nil:
		// Interrupted by Stop; run it again without spending an attempt.
		r.park(bg, msg, time.Now())
	case msg.Attempts >= r.cfg.RetryLimit:
		r.log.Warn("retries exhausted",
			logger.String("id", msg.ID),
			logger.String("job", job.Name()),
			logger.Int("attempts", msg.Attempts+1),
			logger.Error(err))
		r.park(bg, msg, time.Time{})
	default:
		delay := util.BackoffWithJitter(r.cfg.RetryDelay, r.cfg.MaxRetryDelay, msg.Attempts)
		msg.Attempts++
		r.park(bg, msg, time.Now().Add(delay))
		r.log.Debug("retry scheduled",
			logger.String("id", msg.ID),
			logger.String("job", job.Name()),
			logger.Int("attempt", msg.Attempts),
			logger.Duration("delay", delay),
			logger.Error(err))
	}
}

// park schedules msg for another attempt at the given time, or dead-letters
// it when at is zero.
func (r *RedisQueue) park(ctx context.Context, msg storedMessage, at time.Time) {
	data, err := json.Marshal(msg)
	if err != nil {
		r.log.Error("marshal message", logger.Error(err))
		return
	}
	if at.IsZero() {
		r.push(ctx, r.deadLetterKey(), data)
		return
	}
	if err := r.client.ZAdd(ctx, r.retryKey(), redis.Z{Score: float64(at.UnixMilli()), Member: data}).Err(); err != nil {
		r.log.Error("schedule retry", logger.Error(err))
	}
}

func (r *RedisQueue) push(ctx context.Context, key string, data []byte) {
	if err := r.client.LPush(ctx, key, data).Err(); err != nil {
		r.log.Error("push", logger.String("key", key), logger.Error(err))
	}
}

func (r *RedisQueue) pollRetries() {
	defer r.wg.Done()
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			now := strconv.FormatInt(time.Now().UnixMilli(), 10)
			err := promoteDue.Run(r.ctx, r.client, []string{r.retryKey(), r.queueKey()}, now, 100).Err()
			if err != nil && r.ctx.Err() == nil {
				r.log.Error("promote retries", logger.Error(err))
			}
		}
	}
}

func (r *RedisQueue) queueKey() string      { return r.prefix + ":messages" }
func (r *RedisQueue) processingKey() string { return r.prefix + ":processing" }
func (r *RedisQueue) retryKey() string      { return r.prefix + ":retry" }
func (r *RedisQueue) deadLetterKey() string { return r.prefix + ":dlq" }
