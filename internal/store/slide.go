package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/phrazzld/carouselmaker/internal/domain"
)

// SlideStore defines the interface for slide persistence.
type SlideStore interface {
	// Create saves a slide row for an uploaded object.
	Create(ctx context.Context, slide *domain.Slide) error

	// ListByCarousel returns the slides of a generation ordered by position.
	ListByCarousel(ctx context.Context, carouselID uuid.UUID) ([]*domain.Slide, error)

	// ClearStorageKeys nulls out storage_key for the given keys after the
	// objects were deleted. Returns the number of rows changed.
	ClearStorageKeys(ctx context.Context, keys []string) (int, error)

	// WithTx returns a new SlideStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) SlideStore
}
