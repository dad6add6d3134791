package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/phrazzld/carouselmaker/internal/metrics"
	"github.com/phrazzld/carouselmaker/internal/platform/logger"
)

// TaskRunnerConfig holds configuration for the task runner
type TaskRunnerConfig struct {
	// WorkerCount determines how many concurrent workers process tasks
	WorkerCount int

	// MaxRetries is the number of attempts after the first before a task
	// is marked failed
	MaxRetries int

	// RetryDelay is the fixed delay before a failed attempt is redelivered
	RetryDelay time.Duration

	// StuckTaskAge defines how long a task can be in processing state
	// before it's considered stuck and reset
	StuckTaskAge time.Duration

	// StuckTaskCheckInterval defines how often to check for stuck tasks
	// If zero, defaults to 5 minutes
	StuckTaskCheckInterval time.Duration

	// RecoverOnStart requeues pending and processing records on Start.
	// Only queues that lose envelopes on restart need it.
	RecoverOnStart bool
}

// DefaultTaskRunnerConfig returns a TaskRunnerConfig with reasonable defaults
func DefaultTaskRunnerConfig() TaskRunnerConfig {
	return TaskRunnerConfig{
		WorkerCount:            2,
		MaxRetries:             2,
		RetryDelay:             30 * time.Second,
		StuckTaskAge:           30 * time.Minute,
		StuckTaskCheckInterval: 5 * time.Minute,
	}
}

// ErrorHandler is called when a task fails permanently, after its record
// has been marked failed and before the delivery is acknowledged. A crash
// in between redelivers the envelope and the handler runs again, so it
// must be idempotent.
type ErrorHandler func(ctx context.Context, env Envelope, err error)

// TaskRunner manages background task processing
type TaskRunner struct {
	store      TaskStore
	queue      TaskQueue
	registry   *Registry
	pool       *WorkerPool
	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	config     TaskRunnerConfig
	metrics    *metrics.Metrics
	logger     *slog.Logger
	errHandler ErrorHandler
}

// NewTaskRunner creates a new TaskRunner
func NewTaskRunner(
	store TaskStore,
	queue TaskQueue,
	registry *Registry,
	config TaskRunnerConfig,
	m *metrics.Metrics,
	logger *slog.Logger,
) *TaskRunner {
	// Apply default check interval if not specified
	if config.StuckTaskCheckInterval == 0 {
		config.StuckTaskCheckInterval = 5 * time.Minute
	}
	if m == nil {
		m = metrics.NewUnregistered()
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "task_runner")

	ctx, cancel := context.WithCancel(context.Background())

	r := &TaskRunner{
		store:      store,
		queue:      queue,
		registry:   registry,
		ctx:        ctx,
		cancelFunc: cancel,
		config:     config,
		metrics:    m,
		logger:     logger,
		errHandler: func(_ context.Context, env Envelope, err error) {
			// Default error handler just logs the error
			logger.Error("task execution failed permanently",
				"task_id", env.TaskID,
				"task_type", env.Type,
				"error", err)
		},
	}
	r.pool = NewWorkerPool(queue, WorkerPoolConfig{WorkerCount: config.WorkerCount}, r.handle, logger)
	return r
}

// SetErrorHandler allows setting a custom error handler function
func (r *TaskRunner) SetErrorHandler(handler ErrorHandler) {
	r.errHandler = handler
}

// Submit persists the task and enqueues its first attempt.
func (r *TaskRunner) Submit(ctx context.Context, task Task) error {
	env := NewEnvelope(task)

	// Save task to database first
	if err := r.store.SaveTask(ctx, env); err != nil {
		return fmt.Errorf("failed to save task: %w", err)
	}

	if err := r.queue.Enqueue(ctx, env); err != nil {
		if updateErr := r.store.UpdateTaskStatus(ctx, env.TaskID, TaskStatusFailed, err.Error()); updateErr != nil {
			r.logger.Error("failed to mark unqueued task failed",
				"task_id", env.TaskID,
				"error", updateErr)
		}
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	r.logger.Debug("task submitted", "task_id", env.TaskID, "task_type", env.Type)
	return nil
}

// Start initializes the worker pool and begins processing tasks
func (r *TaskRunner) Start() error {
	if r.config.RecoverOnStart {
		// Recover unfinished tasks from previous runs
		if err := r.Recover(r.ctx); err != nil {
			return fmt.Errorf("failed to recover tasks: %w", err)
		}
	}

	r.pool.Start()

	if r.config.StuckTaskAge > 0 {
		// Start goroutine to check for stuck tasks periodically
		r.wg.Add(1)
		go r.stuckTaskMonitor()
	}

	return nil
}

// Stop gracefully shuts down the task runner. In-flight tasks run to
// completion; tasks still queued stay pending in the store.
func (r *TaskRunner) Stop() {
	r.cancelFunc()
	r.pool.Stop()
	r.wg.Wait()
	r.queue.Close()
}

// Recover loads any unfinished tasks from the database
func (r *TaskRunner) Recover(ctx context.Context) error {
	// Get tasks that were in "pending" state
	pendingTasks, err := r.store.GetPendingTasks(ctx)
	if err != nil {
		return fmt.Errorf("failed to get pending tasks: %w", err)
	}

	// Get tasks that were in "processing" state (potentially interrupted by a crash)
	processingTasks, err := r.store.GetProcessingTasks(ctx, 0)
	if err != nil {
		return fmt.Errorf("failed to get processing tasks: %w", err)
	}

	// Log recovery statistics
	r.logger.Info("recovering unfinished tasks",
		"pending_count", len(pendingTasks),
		"processing_count", len(processingTasks))

	for _, rec := range pendingTasks {
		r.requeue(ctx, rec, "")
	}

	// Reset processing tasks back to pending state and requeue them
	for _, rec := range processingTasks {
		r.requeue(ctx, rec, "Reset after recovery")
	}

	return nil
}

// requeue resets rec to pending when reason is set and enqueues it.
func (r *TaskRunner) requeue(ctx context.Context, rec Record, reason string) {
	if reason != "" {
		if err := r.store.UpdateTaskStatus(ctx, rec.ID, TaskStatusPending, reason); err != nil {
			r.logger.Error("failed to reset task status",
				"task_id", rec.ID,
				"task_type", rec.Type,
				"error", err)
			return
		}
	}

	if err := r.queue.Enqueue(ctx, rec.Envelope()); err != nil {
		r.logger.Error("failed to requeue task",
			"task_id", rec.ID,
			"task_type", rec.Type,
			"error", err)
	}
}

// handle processes a single envelope. The task runs on a context detached
// from runner shutdown so a pipeline is never cancelled mid-flight.
func (r *TaskRunner) handle(env Envelope, workerID int) {
	log := r.logger.With(
		"task_id", env.TaskID,
		"task_type", env.Type,
		"attempt", env.Attempt,
		"worker_id", workerID,
	)
	ctx := logger.WithLogger(context.WithoutCancel(r.ctx), log)

	if r.settled(ctx, env) {
		return
	}

	err := r.execute(ctx, env)
	switch {
	case err == nil:
		log.Info("task completed successfully")
		r.finish(ctx, env, TaskStatusCompleted, "")
		r.metrics.TaskOutcomes.WithLabelValues(env.Type, "completed").Inc()

	case !errors.Is(err, ErrPermanent) && env.Attempt < r.config.MaxRetries:
		log.Warn("task attempt failed, scheduling retry",
			"error", err,
			"retry_delay", r.config.RetryDelay)
		r.retry(ctx, env, err)

	default:
		log.Error("task failed", "error", err)
		r.setStatus(ctx, env, TaskStatusFailed, err.Error())
		r.errHandler(ctx, env, err)
		r.ack(ctx, env)
		r.metrics.TaskOutcomes.WithLabelValues(env.Type, "failed").Inc()
	}
}

// settled acknowledges a redelivered envelope whose record already reached
// a final status instead of running it again. A failed record gets its
// error handler rerun, since the previous delivery may have stopped before
// the handler finished.
func (r *TaskRunner) settled(ctx context.Context, env Envelope) bool {
	rec, err := r.store.GetTask(ctx, env.TaskID)
	if err != nil {
		// Unknown records run as usual; execute reports store failures.
		return false
	}

	switch rec.Status {
	case TaskStatusCompleted:
		logger.FromContext(ctx).Info("redelivered task already completed")
	case TaskStatusFailed:
		logger.FromContext(ctx).Info("redelivered task already failed, settling again")
		r.errHandler(ctx, env, errors.New(rec.ErrorMessage))
	default:
		return false
	}
	r.ack(ctx, env)
	return true
}

func (r *TaskRunner) execute(ctx context.Context, env Envelope) error {
	task, err := r.registry.Build(env)
	if err != nil {
		return Permanent(err)
	}

	// Update task status to processing
	if err := r.store.UpdateTaskStatus(ctx, env.TaskID, TaskStatusProcessing, ""); err != nil {
		return fmt.Errorf("failed to update task status to processing: %w", err)
	}

	logger.FromContext(ctx).Info("processing task")
	return task.Execute(ctx)
}

// finish records the final status and acknowledges the delivery.
func (r *TaskRunner) finish(ctx context.Context, env Envelope, status TaskStatus, errMsg string) {
	r.setStatus(ctx, env, status, errMsg)
	r.ack(ctx, env)
}

func (r *TaskRunner) setStatus(ctx context.Context, env Envelope, status TaskStatus, errMsg string) {
	if err := r.store.UpdateTaskStatus(ctx, env.TaskID, status, errMsg); err != nil {
		r.logger.Error("failed to update task status",
			"task_id", env.TaskID,
			"status", status,
			"error", err)
	}
}

// retry schedules the next attempt before acknowledging the current one,
// so a crash in between can only duplicate the envelope, never lose it.
func (r *TaskRunner) retry(ctx context.Context, env Envelope, cause error) {
	if err := r.store.UpdateTaskStatus(ctx, env.TaskID, TaskStatusPending, cause.Error()); err != nil {
		r.logger.Error("failed to reset task status for retry",
			"task_id", env.TaskID,
			"error", err)
	}

	if err := r.queue.EnqueueAfter(ctx, env.Retry(), r.config.RetryDelay); err != nil {
		r.logger.Error("failed to schedule task retry",
			"task_id", env.TaskID,
			"error", err)
		return
	}
	r.ack(ctx, env)
	r.metrics.TaskOutcomes.WithLabelValues(env.Type, "retried").Inc()
}

func (r *TaskRunner) ack(ctx context.Context, env Envelope) {
	if err := r.queue.Ack(ctx, env); err != nil {
		r.logger.Error("failed to acknowledge task",
			"task_id", env.TaskID,
			"error", err)
	}
}

// stuckTaskMonitor periodically checks for tasks that have been in "processing"
// state for too long and resets them
func (r *TaskRunner) stuckTaskMonitor() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.StuckTaskCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			// Context cancelled, stop monitor
			return

		case <-ticker.C:
			r.requeueStuck(r.ctx)
		}
	}
}

func (r *TaskRunner) requeueStuck(ctx context.Context) {
	// Find tasks that have been in "processing" state for too long
	stuckTasks, err := r.store.GetProcessingTasks(ctx, r.config.StuckTaskAge)
	if err != nil {
		r.logger.Error("failed to check for stuck tasks", "error", err)
		return
	}
	if len(stuckTasks) == 0 {
		return
	}

	r.logger.Info("found stuck tasks", "count", len(stuckTasks))
	for _, rec := range stuckTasks {
		r.requeue(ctx, rec, "Reset after being stuck in processing state")
	}
}
