package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/phrazzld/carouselmaker/internal/domain"
)

// CarouselStore defines the interface for carousel generation persistence.
//
// Status changes go through compare-and-set methods so that two concurrent
// runs of the same generation cannot both advance it.
type CarouselStore interface {
	// Create saves a new generation.
	// Returns ErrTaskIDExists if a generation is already bound to the task ID.
	// Returns validation errors from the domain CarouselGeneration if data is invalid.
	Create(ctx context.Context, gen *domain.CarouselGeneration) error

	// GetByID retrieves a generation by its ID.
	// Returns ErrGenerationNotFound if it does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.CarouselGeneration, error)

	// GetByTaskID retrieves the generation bound to a task ID.
	// Returns ErrGenerationNotFound if none exists.
	GetByTaskID(ctx context.Context, taskID uuid.UUID) (*domain.CarouselGeneration, error)

	// TransitionStatus moves a generation from one status to the next.
	// The update only applies if the stored status still equals from.
	// Returns ErrStatusConflict when it does not, and
	// domain.ErrInvalidTransition when from -> to is not a forward move.
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to domain.GenerationStatus) error

	// SetSlideCount records the number of slides produced by copywriting.
	// Returns ErrGenerationNotFound if the generation does not exist.
	SetSlideCount(ctx context.Context, id uuid.UUID, count int) error

	// MarkFailed moves a non-terminal generation to FAILED with the given
	// message. It reports false without error if the generation was already
	// terminal, so callers can skip side effects tied to the first failure.
	// Returns ErrGenerationNotFound if the generation does not exist.
	MarkFailed(ctx context.Context, id uuid.UUID, errorMessage string) (bool, error)

	// CountByStatus returns the number of generations per status.
	CountByStatus(ctx context.Context) (map[domain.GenerationStatus]int, error)

	// WithTx returns a new CarouselStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) CarouselStore
}
