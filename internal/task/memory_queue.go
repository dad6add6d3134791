package task

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// MemoryQueue is a buffered in-process queue. It satisfies TaskQueue;
// envelopes are lost when the process exits, so it is meant for
// development and for runners that recover from the task store on start.
type MemoryQueue struct {
	envelopes chan Envelope
	logger    *slog.Logger

	mu     sync.RWMutex
	closed bool
	timers []*time.Timer
}

// NewMemoryQueue creates a new queue with the specified buffer size
func NewMemoryQueue(size int, logger *slog.Logger) *MemoryQueue {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryQueue{
		envelopes: make(chan Envelope, size),
		logger:    logger.With("component", "memory_queue"),
	}
}

// Enqueue adds an envelope to the queue for processing.
// Returns an error if the queue is full or closed.
func (q *MemoryQueue) Enqueue(_ context.Context, env Envelope) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.envelopes <- env:
		q.logger.Debug("task enqueued",
			"task_id", env.TaskID,
			"task_type", env.Type,
			"attempt", env.Attempt,
			"queue_len", len(q.envelopes),
			"queue_cap", cap(q.envelopes))
		return nil
	default:
		return fmt.Errorf("%w: queue capacity %d reached", ErrQueueFull, cap(q.envelopes))
	}
}

// EnqueueAfter enqueues env once delay has elapsed. A delayed envelope
// that no longer fits is logged and dropped; the task store still holds it
// as pending.
func (q *MemoryQueue) EnqueueAfter(ctx context.Context, env Envelope, delay time.Duration) error {
	if delay <= 0 {
		return q.Enqueue(ctx, env)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}

	timer := time.AfterFunc(delay, func() {
		if err := q.Enqueue(context.Background(), env); err != nil {
			q.logger.Error("failed to enqueue delayed task",
				"task_id", env.TaskID,
				"attempt", env.Attempt,
				"error", err)
		}
	})
	q.timers = append(q.timers, timer)
	return nil
}

// Ack is a no-op: an in-memory delivery cannot be redelivered.
func (q *MemoryQueue) Ack(context.Context, Envelope) error {
	return nil
}

// Close closes the task queue, preventing further task submission.
// Pending delayed envelopes are discarded.
func (q *MemoryQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	for _, t := range q.timers {
		t.Stop()
	}
	close(q.envelopes)
	q.logger.Info("task queue closed")
}

// GetChannel returns a read-only channel for consuming envelopes
func (q *MemoryQueue) GetChannel() <-chan Envelope {
	return q.envelopes
}

var _ TaskQueue = (*MemoryQueue)(nil)
