package task

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/carouselmaker/internal/domain"
	"github.com/phrazzld/carouselmaker/internal/platform/logger"
	"github.com/phrazzld/carouselmaker/internal/store"
)

// Decision tells a generation task what to do with a delivery.
type Decision string

// Guard decisions
const (
	// DecisionRun starts a new generation.
	DecisionRun Decision = "run"

	// DecisionSkip ignores a redelivery of a terminal generation.
	DecisionSkip Decision = "skip"

	// DecisionResume continues a generation no step of which has run.
	DecisionResume Decision = "resume"

	// DecisionAbandon fails and refunds a generation interrupted mid-pipeline.
	DecisionAbandon Decision = "abandon"
)

// GenerationLookup finds the generation created for a task.
type GenerationLookup interface {
	GetByTaskID(ctx context.Context, taskID uuid.UUID) (*domain.CarouselGeneration, error)
}

// IdempotencyGuard decides whether a delivered task may run the pipeline.
// The generation's task_id is the idempotency key.
type IdempotencyGuard struct {
	generations GenerationLookup
	logger      *slog.Logger
}

// NewIdempotencyGuard creates a guard over generations.
func NewIdempotencyGuard(generations GenerationLookup, logger *slog.Logger) *IdempotencyGuard {
	if logger == nil {
		logger = slog.Default()
	}
	return &IdempotencyGuard{
		generations: generations,
		logger:      logger.With("component", "idempotency_guard"),
	}
}

// Check returns the decision for taskID and, unless the decision is
// DecisionRun, the existing generation.
func (g *IdempotencyGuard) Check(ctx context.Context, taskID uuid.UUID) (Decision, *domain.CarouselGeneration, error) {
	gen, err := g.generations.GetByTaskID(ctx, taskID)
	if store.IsNotFoundError(err) {
		return DecisionRun, nil, nil
	}
	if err != nil {
		return "", nil, fmt.Errorf("failed to look up generation for task %s: %w", taskID, err)
	}

	log := logger.FromContextOrDefault(ctx, g.logger).With(
		"task_id", taskID,
		"generation_id", gen.ID,
		"status", gen.Status)

	switch {
	case gen.Status.IsTerminal():
		log.Info("generation already finished, skipping redelivered task")
		return DecisionSkip, gen, nil
	case gen.Status == domain.GenerationStatusPending:
		log.Info("resuming pending generation")
		return DecisionResume, gen, nil
	default:
		log.Warn("generation was interrupted mid-pipeline")
		return DecisionAbandon, gen, nil
	}
}
