package task

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/phrazzld/carouselmaker/internal/events"
)

// TaskSubmitter accepts tasks for background execution.
type TaskSubmitter interface {
	Submit(ctx context.Context, task Task) error
}

// TaskFactoryEventHandler implements the events.EventHandler interface
// to turn task request events into tasks and submit them to the runner.
// The event ID becomes the task ID.
type TaskFactoryEventHandler struct {
	registry  *Registry
	submitter TaskSubmitter
	logger    *slog.Logger
}

// NewTaskFactoryEventHandler creates a new event handler that uses the given
// registry to create tasks, and submits them to the provided task runner.
func NewTaskFactoryEventHandler(
	registry *Registry,
	submitter TaskSubmitter,
	logger *slog.Logger,
) *TaskFactoryEventHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskFactoryEventHandler{
		registry:  registry,
		submitter: submitter,
		logger:    logger.With("component", "task_factory_event_handler"),
	}
}

// HandleEvent processes events by creating and submitting tasks.
// Events of unregistered types are ignored.
func (h *TaskFactoryEventHandler) HandleEvent(
	ctx context.Context,
	event *events.TaskRequestEvent,
) error {
	if !h.registry.Has(event.Type) {
		h.logger.Debug("ignoring event with unsupported type",
			"event_type", event.Type,
			"event_id", event.ID)
		return nil
	}

	task, err := h.registry.Build(Envelope{
		TaskID:     event.ID,
		Type:       event.Type,
		Payload:    event.Payload,
		EnqueuedAt: event.CreatedAt,
	})
	if err != nil {
		h.logger.Error("failed to create task",
			"error", err,
			"event_id", event.ID)
		return fmt.Errorf("failed to create task: %w", err)
	}

	if err := h.submitter.Submit(ctx, task); err != nil {
		h.logger.Error("failed to submit task",
			"error", err,
			"task_id", task.ID(),
			"event_id", event.ID)
		return fmt.Errorf("failed to submit task: %w", err)
	}

	h.logger.Info("task created and submitted successfully",
		"task_id", task.ID(),
		"task_type", task.Type())
	return nil
}

// Ensure TaskFactoryEventHandler implements events.EventHandler
var _ events.EventHandler = (*TaskFactoryEventHandler)(nil)
