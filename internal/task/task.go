package task

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the current delivery state of a task record.
// It is independent of the generation status that tasks drive.
type TaskStatus string

// Possible task status values
const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// Task type constants
const (
	// TaskTypeCarouselGeneration runs the carousel generation pipeline for one request.
	TaskTypeCarouselGeneration = "carousel_generation"
)

// Task represents a unit of background work to be processed
// Version: 1.0
type Task interface {
	// ID returns the task's unique identifier
	ID() uuid.UUID

	// Type returns the task type identifier
	Type() string

	// Payload returns the task data as a byte slice
	Payload() []byte

	// Execute runs the task logic
	Execute(ctx context.Context) error
}

// Envelope is the unit carried by a task queue. Attempt starts at 0 and is
// incremented each time the runner schedules a retry.
type Envelope struct {
	TaskID     uuid.UUID       `json:"task_id"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	Attempt    int             `json:"attempt"`
	EnqueuedAt time.Time       `json:"enqueued_at"`

	// Raw is the exact encoded form read from a queue backend, used to
	// acknowledge the delivery. It is never serialized.
	Raw []byte `json:"-"`
}

// NewEnvelope builds a first-attempt envelope for a task.
func NewEnvelope(t Task) Envelope {
	return Envelope{
		TaskID:     t.ID(),
		Type:       t.Type(),
		Payload:    json.RawMessage(t.Payload()),
		EnqueuedAt: time.Now().UTC(),
	}
}

// Retry returns a copy of e for the next attempt.
func (e Envelope) Retry() Envelope {
	next := e
	next.Attempt++
	next.EnqueuedAt = time.Now().UTC()
	next.Raw = nil
	return next
}

// TaskQueueReader provides read-only access to the task channel
// allowing workers to consume tasks without the ability to enqueue
// Version: 1.0
type TaskQueueReader interface {
	// GetChannel returns a read-only channel for consuming envelopes
	GetChannel() <-chan Envelope

	// Ack confirms an envelope was handled and must not be redelivered
	Ack(ctx context.Context, env Envelope) error
}

// TaskQueueWriter provides write access to the task queue
// allowing services to enqueue tasks for processing
// Version: 1.0
type TaskQueueWriter interface {
	// Enqueue adds an envelope to the queue for processing
	// Returns an error if the queue is full or closed
	Enqueue(ctx context.Context, env Envelope) error

	// EnqueueAfter adds an envelope that becomes visible after delay
	EnqueueAfter(ctx context.Context, env Envelope, delay time.Duration) error

	// Close closes the task queue, preventing further task submission
	Close()
}

// TaskQueue is a queue backend usable by both producers and the runner.
type TaskQueue interface {
	TaskQueueReader
	TaskQueueWriter
}

// Record is the persisted form of a task.
type Record struct {
	ID           uuid.UUID
	Type         string
	Payload      []byte
	Status       TaskStatus
	Attempts     int
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Envelope rebuilds a queue envelope from the record.
// Attempt continues from the number of attempts already made.
func (r Record) Envelope() Envelope {
	return Envelope{
		TaskID:     r.ID,
		Type:       r.Type,
		Payload:    json.RawMessage(r.Payload),
		Attempt:    r.Attempts,
		EnqueuedAt: time.Now().UTC(),
	}
}

// TaskStore defines the interface for persisting tasks
// Version: 1.0
type TaskStore interface {
	// SaveTask persists a new pending task record for the envelope
	SaveTask(ctx context.Context, env Envelope) error

	// UpdateTaskStatus updates the status of a task.
	// Moving to processing also increments the attempt count.
	UpdateTaskStatus(ctx context.Context, taskID uuid.UUID, status TaskStatus, errorMsg string) error

	// GetTask retrieves a single task record.
	// Returns an error wrapping store.ErrNotFound if it does not exist.
	GetTask(ctx context.Context, taskID uuid.UUID) (Record, error)

	// GetPendingTasks retrieves all tasks with "pending" status
	GetPendingTasks(ctx context.Context) ([]Record, error)

	// GetProcessingTasks retrieves tasks with "processing" status
	// If olderThan is non-zero, only returns tasks that have been in this state
	// longer than the specified duration
	GetProcessingTasks(ctx context.Context, olderThan time.Duration) ([]Record, error)

	// CountByStatus returns the number of task records per status
	CountByStatus(ctx context.Context) (map[TaskStatus]int, error)

	// WithTx returns a new TaskStore instance that uses the provided transaction.
	// This allows for multiple operations to be executed within a single transaction.
	// The transaction should be created and managed by the caller (typically a service).
	WithTx(tx *sql.Tx) TaskStore
}
