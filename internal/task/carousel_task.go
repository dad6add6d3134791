package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/carouselmaker/internal/domain"
	"github.com/phrazzld/carouselmaker/internal/generation"
	"github.com/phrazzld/carouselmaker/internal/platform/logger"
)

// CarouselPayload is the queued form of a carousel request.
type CarouselPayload struct {
	UserID          uuid.UUID `json:"user_id"`
	ChatID          int64     `json:"chat_id"`
	InputText       string    `json:"input_text"`
	Style           string    `json:"style"`
	StatusMessageID int       `json:"status_message_id"`
}

// Validate checks the identifiers of the payload.
func (p CarouselPayload) Validate() error {
	if p.UserID == uuid.Nil {
		return fmt.Errorf("%w: %w", ErrInvalidPayload, domain.ErrEmptyUserID)
	}
	if p.ChatID == 0 {
		return fmt.Errorf("%w: %w", ErrInvalidPayload, domain.ErrEmptyChatID)
	}
	return nil
}

// Pipeline is the part of the generation orchestrator a task drives.
type Pipeline interface {
	Run(ctx context.Context, req generation.Request) error
	Resume(ctx context.Context, gen *domain.CarouselGeneration, statusMessageID int) error
	Abandon(ctx context.Context, gen *domain.CarouselGeneration, reason string) error
}

// CarouselGenerationTask runs the generation pipeline for one request,
// consulting the IdempotencyGuard first so redelivery is harmless.
type CarouselGenerationTask struct {
	id       uuid.UUID
	payload  CarouselPayload
	pipeline Pipeline
	guard    *IdempotencyGuard
	logger   *slog.Logger
}

// NewCarouselGenerationTask creates a task with the given id.
func NewCarouselGenerationTask(
	id uuid.UUID,
	payload CarouselPayload,
	pipeline Pipeline,
	guard *IdempotencyGuard,
	logger *slog.Logger,
) (*CarouselGenerationTask, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, domain.ErrEmptyTaskID)
	}
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	if pipeline == nil || guard == nil {
		return nil, errors.New("pipeline and guard cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CarouselGenerationTask{
		id:       id,
		payload:  payload,
		pipeline: pipeline,
		guard:    guard,
		logger:   logger.With("task_type", TaskTypeCarouselGeneration, "user_id", payload.UserID),
	}, nil
}

// ID returns the task's unique identifier
func (t *CarouselGenerationTask) ID() uuid.UUID {
	return t.id
}

// Type returns the task type identifier
func (t *CarouselGenerationTask) Type() string {
	return TaskTypeCarouselGeneration
}

// Payload returns the task data as a byte slice
func (t *CarouselGenerationTask) Payload() []byte {
	data, err := json.Marshal(t.payload)
	if err != nil {
		// If marshal fails, return an empty payload with error logged
		t.logger.Error("failed to marshal task payload", "error", err)
		return []byte{}
	}
	return data
}

// Execute applies the guard decision. Validation errors and pipeline
// failures that were already refunded are permanent.
func (t *CarouselGenerationTask) Execute(ctx context.Context) error {
	log := logger.FromContextOrDefault(ctx, t.logger)

	decision, gen, err := t.guard.Check(ctx, t.id)
	if err != nil {
		return err
	}

	switch decision {
	case DecisionSkip:
		return nil
	case DecisionResume:
		err = t.pipeline.Resume(ctx, gen, t.payload.StatusMessageID)
	case DecisionAbandon:
		err = t.pipeline.Abandon(ctx, gen, fmt.Sprintf("interrupted during %s", gen.Status))
		if err == nil {
			return nil
		}
	default:
		log.Info("starting carousel generation", "style", t.payload.Style)
		err = t.pipeline.Run(ctx, generation.Request{
			UserID:          t.payload.UserID,
			ChatID:          t.payload.ChatID,
			InputText:       t.payload.InputText,
			Style:           t.payload.Style,
			StatusMessageID: t.payload.StatusMessageID,
			TaskID:          t.id,
		})
	}

	if errors.Is(err, domain.ErrValidation) || errors.Is(err, generation.ErrGenerationFailed) {
		return Permanent(err)
	}
	return err
}

// CarouselTaskFactory builds carousel generation tasks.
type CarouselTaskFactory struct {
	pipeline Pipeline
	guard    *IdempotencyGuard
	logger   *slog.Logger
}

// NewCarouselTaskFactory creates a factory sharing pipeline and guard.
func NewCarouselTaskFactory(pipeline Pipeline, guard *IdempotencyGuard, logger *slog.Logger) *CarouselTaskFactory {
	if logger == nil {
		logger = slog.Default()
	}
	return &CarouselTaskFactory{pipeline: pipeline, guard: guard, logger: logger}
}

// NewTask creates a task with a fresh id.
func (f *CarouselTaskFactory) NewTask(payload CarouselPayload) (*CarouselGenerationTask, error) {
	return NewCarouselGenerationTask(uuid.New(), payload, f.pipeline, f.guard, f.logger)
}

// FromEnvelope implements Factory.
func (f *CarouselTaskFactory) FromEnvelope(env Envelope) (Task, error) {
	var payload CarouselPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return NewCarouselGenerationTask(env.TaskID, payload, f.pipeline, f.guard, f.logger)
}

// Refunder returns the charge of a task that never produced a generation.
// A task is refunded at most once.
type Refunder interface {
	RefundTask(ctx context.Context, userID uuid.UUID, amount int64, taskID uuid.UUID) error
}

// NewCarouselFailureHandler returns the ErrorHandler for carousel tasks
// that failed permanently. A generation left non-terminal is abandoned; a
// task that never created its generation has its charge refunded against
// the task id. Terminal generations were already settled by the pipeline.
// The handler is idempotent, so the runner may call it again for a
// redelivered failure.
func NewCarouselFailureHandler(
	guard *IdempotencyGuard,
	pipeline Pipeline,
	refunder Refunder,
	logger *slog.Logger,
) ErrorHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, env Envelope, cause error) {
		log := logger.With("task_id", env.TaskID, "task_type", env.Type)
		if env.Type != TaskTypeCarouselGeneration {
			log.Error("task execution failed permanently", "error", cause)
			return
		}

		decision, gen, err := guard.Check(ctx, env.TaskID)
		if err != nil {
			log.Error("cannot settle failed task", "error", err, "cause", cause)
			return
		}

		switch decision {
		case DecisionSkip:
			return
		case DecisionResume, DecisionAbandon:
			if err := pipeline.Abandon(ctx, gen, domain.TruncateErrorMessage(cause.Error())); err != nil {
				log.Error("failed to abandon generation of failed task", "error", err)
			}
		default:
			var payload CarouselPayload
			if err := json.Unmarshal(env.Payload, &payload); err != nil || payload.UserID == uuid.Nil {
				log.Error("cannot refund task with unreadable payload", "error", err)
				return
			}
			if err := refunder.RefundTask(ctx, payload.UserID, domain.CreditsPerCarousel, env.TaskID); err != nil {
				log.Error("failed to refund task without generation", "error", err)
				return
			}
			log.Info("refunded task that never started a generation", "user_id", payload.UserID)
		}
	}
}
