// Package redisqueue provides a task.TaskQueue backed by Redis lists, so
// queued and in-flight envelopes survive a worker restart.
//
// Producers LPUSH onto the ready list. Each consumer atomically moves an
// envelope into its own processing list with BLMOVE and removes it there on
// Ack. Envelopes found in a consumer's processing list at start-up were
// interrupted and are moved back to the ready list. Delayed envelopes wait
// in a sorted set scored by due time until a pump moves them.
package redisqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/phrazzld/carouselmaker/internal/task"
	"github.com/redis/go-redis/v9"
)

// Config holds queue settings.
type Config struct {
	// Key is the ready list; related keys share it as a prefix
	Key string

	// ConsumerID names this consumer's processing list. It must be stable
	// across restarts of the same worker.
	ConsumerID string

	// BlockTimeout bounds each BLMOVE so shutdown is noticed
	BlockTimeout time.Duration

	// PumpInterval is how often due delayed envelopes are released
	PumpInterval time.Duration

	// PumpBatch caps envelopes released per pump tick
	PumpBatch int
}

// DefaultConfig returns settings suitable for production.
func DefaultConfig(key, consumerID string) Config {
	return Config{
		Key:          key,
		ConsumerID:   consumerID,
		BlockTimeout: time.Second,
		PumpInterval: time.Second,
		PumpBatch:    100,
	}
}

// releaseDue moves up to ARGV[2] members of KEYS[1] scored <= ARGV[1] onto
// the ready list KEYS[2].
var releaseDue = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
for _, member in ipairs(due) do
	redis.call('ZREM', KEYS[1], member)
	redis.call('LPUSH', KEYS[2], member)
end
return #due
`)

// Queue implements task.TaskQueue on Redis.
type Queue struct {
	rdb           *redis.Client
	cfg           Config
	readyKey      string
	processingKey string
	delayedKey    string
	ch            chan task.Envelope
	logger        *slog.Logger

	mu      sync.RWMutex
	started bool
	closed  bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

var _ task.TaskQueue = (*Queue)(nil)

// New creates a queue. Call Start before consuming.
func New(rdb *redis.Client, cfg Config, logger *slog.Logger) (*Queue, error) {
	if rdb == nil {
		return nil, errors.New("redisqueue: nil client")
	}
	if cfg.Key == "" || cfg.ConsumerID == "" {
		return nil, errors.New("redisqueue: key and consumer id are required")
	}
	if cfg.BlockTimeout <= 0 {
		cfg.BlockTimeout = time.Second
	}
	if cfg.PumpInterval <= 0 {
		cfg.PumpInterval = time.Second
	}
	if cfg.PumpBatch <= 0 {
		cfg.PumpBatch = 100
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		rdb:           rdb,
		cfg:           cfg,
		readyKey:      cfg.Key,
		processingKey: cfg.Key + ":processing:" + cfg.ConsumerID,
		delayedKey:    cfg.Key + ":delayed",
		ch:            make(chan task.Envelope),
		logger:        logger.With("component", "redis_queue", "queue", cfg.Key, "consumer", cfg.ConsumerID),
		ctx:           ctx,
		cancel:        cancel,
	}, nil
}

// Start requeues envelopes this consumer left unacknowledged and begins
// consuming and pumping delayed envelopes.
func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return task.ErrQueueClosed
	}
	if q.started {
		return nil
	}

	n, err := q.requeueProcessing(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		q.logger.Info("requeued interrupted envelopes", "count", n)
	}

	q.started = true
	q.wg.Add(2)
	go q.consume()
	go q.pump()
	return nil
}

func (q *Queue) requeueProcessing(ctx context.Context) (int, error) {
	n := 0
	for {
		err := q.rdb.LMove(ctx, q.processingKey, q.readyKey, "RIGHT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("redisqueue: requeue processing list: %w", err)
		}
		n++
	}
}

// Enqueue pushes env onto the ready list.
func (q *Queue) Enqueue(ctx context.Context, env task.Envelope) error {
	if q.isClosed() {
		return task.ErrQueueClosed
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("redisqueue: encode envelope: %w", err)
	}
	if err := q.rdb.LPush(ctx, q.readyKey, data).Err(); err != nil {
		return fmt.Errorf("redisqueue: enqueue: %w", err)
	}
	return nil
}

// EnqueueAfter stores env in the delayed set until delay has passed.
func (q *Queue) EnqueueAfter(ctx context.Context, env task.Envelope, delay time.Duration) error {
	if delay <= 0 {
		return q.Enqueue(ctx, env)
	}
	if q.isClosed() {
		return task.ErrQueueClosed
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("redisqueue: encode envelope: %w", err)
	}
	due := time.Now().Add(delay).UnixMilli()
	if err := q.rdb.ZAdd(ctx, q.delayedKey, redis.Z{Score: float64(due), Member: data}).Err(); err != nil {
		return fmt.Errorf("redisqueue: schedule: %w", err)
	}
	return nil
}

// Ack removes the delivered envelope from the processing list.
func (q *Queue) Ack(ctx context.Context, env task.Envelope) error {
	if len(env.Raw) == 0 {
		return fmt.Errorf("redisqueue: envelope %s was not delivered by this queue", env.TaskID)
	}
	removed, err := q.rdb.LRem(ctx, q.processingKey, 1, env.Raw).Result()
	if err != nil {
		return fmt.Errorf("redisqueue: ack: %w", err)
	}
	if removed == 0 {
		q.logger.Warn("acknowledged envelope was not in the processing list", "task_id", env.TaskID)
	}
	return nil
}

// GetChannel returns the channel delivered envelopes are sent on.
func (q *Queue) GetChannel() <-chan task.Envelope {
	return q.ch
}

// Close stops consuming and closes the channel. Envelopes not yet
// acknowledged stay in Redis.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	q.cancel()
	q.wg.Wait()
	close(q.ch)
}

func (q *Queue) isClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

// Depth reports the number of ready, delayed and in-flight envelopes.
func (q *Queue) Depth(ctx context.Context) (ready, delayed, processing int64, err error) {
	pipe := q.rdb.Pipeline()
	r := pipe.LLen(ctx, q.readyKey)
	d := pipe.ZCard(ctx, q.delayedKey)
	p := pipe.LLen(ctx, q.processingKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, 0, fmt.Errorf("redisqueue: depth: %w", err)
	}
	return r.Val(), d.Val(), p.Val(), nil
}

func (q *Queue) consume() {
	defer q.wg.Done()
	for {
		raw, err := q.rdb.BLMove(q.ctx, q.readyKey, q.processingKey, "RIGHT", "LEFT", q.cfg.BlockTimeout).Result()
		if q.ctx.Err() != nil {
			if err == nil {
				// Left in the processing list; requeued on the next Start.
				q.logger.Debug("shutdown with envelope in flight")
			}
			return
		}
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			q.logger.Error("failed to read from queue", "error", err)
			q.sleep(q.cfg.BlockTimeout)
			continue
		}

		var env task.Envelope
		if err := json.Unmarshal([]byte(raw), &env); err != nil {
			q.logger.Error("dropping undecodable envelope", "error", err, "raw", truncate(raw, 200))
			if err := q.rdb.LRem(q.ctx, q.processingKey, 1, raw).Err(); err != nil {
				q.logger.Error("failed to drop undecodable envelope", "error", err)
			}
			continue
		}
		env.Raw = []byte(raw)

		select {
		case q.ch <- env:
		case <-q.ctx.Done():
			return
		}
	}
}

func (q *Queue) pump() {
	defer q.wg.Done()
	ticker := time.NewTicker(q.cfg.PumpInterval)
	defer ticker.Stop()
	for {
		select {
		case <-q.ctx.Done():
			return
		case <-ticker.C:
			if _, err := q.releaseDue(q.ctx, time.Now()); err != nil && q.ctx.Err() == nil {
				q.logger.Error("failed to release delayed envelopes", "error", err)
			}
		}
	}
}

// releaseDue moves delayed envelopes due at now onto the ready list.
func (q *Queue) releaseDue(ctx context.Context, now time.Time) (int64, error) {
	n, err := releaseDue.Run(ctx, q.rdb,
		[]string{q.delayedKey, q.readyKey},
		strconv.FormatInt(now.UnixMilli(), 10),
		q.cfg.PumpBatch,
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("redisqueue: release delayed: %w", err)
	}
	if n > 0 {
		q.logger.Debug("released delayed envelopes", "count", n)
	}
	return n, nil
}

func (q *Queue) sleep(d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-q.ctx.Done():
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
