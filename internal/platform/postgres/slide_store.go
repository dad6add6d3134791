package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/carouselmaker/internal/domain"
	"github.com/phrazzld/carouselmaker/internal/platform/logger"
	"github.com/phrazzld/carouselmaker/internal/store"
)

// PostgresSlideStore implements the store.SlideStore interface
// using a PostgreSQL database as the storage backend.
type PostgresSlideStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresSlideStore creates a new PostgreSQL implementation of the SlideStore interface.
// If logger is nil, a default logger will be used.
func NewPostgresSlideStore(db store.DBTX, logger *slog.Logger) *PostgresSlideStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresSlideStore{
		db:     db,
		logger: logger.With(slog.String("component", "slide_store")),
	}
}

// Ensure PostgresSlideStore implements store.SlideStore interface
var _ store.SlideStore = (*PostgresSlideStore)(nil)

// Create implements store.SlideStore.Create
func (s *PostgresSlideStore) Create(ctx context.Context, slide *domain.Slide) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := slide.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO slides (id, carousel_id, position, heading, body_text, slide_type, storage_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.db.ExecContext(ctx, query,
		slide.ID,
		slide.CarouselID,
		slide.Position,
		slide.Heading,
		slide.BodyText,
		string(slide.SlideType),
		slide.StorageKey,
		slide.CreatedAt,
	)
	if err != nil {
		log.Error("failed to create slide",
			slog.String("error", err.Error()),
			slog.String("carousel_id", slide.CarouselID.String()),
			slog.Int("position", slide.Position))
		return MapError(err)
	}
	return nil
}

// ListByCarousel implements store.SlideStore.ListByCarousel
func (s *PostgresSlideStore) ListByCarousel(ctx context.Context, carouselID uuid.UUID) ([]*domain.Slide, error) {
	query := `
		SELECT id, carousel_id, position, heading, body_text, slide_type, storage_key, created_at
		FROM slides
		WHERE carousel_id = $1
		ORDER BY position
	`
	rows, err := s.db.QueryContext(ctx, query, carouselID)
	if err != nil {
		return nil, fmt.Errorf("failed to list slides: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var slides []*domain.Slide
	for rows.Next() {
		var (
			sl        domain.Slide
			slideType string
			key       sql.NullString
		)
		if err := rows.Scan(&sl.ID, &sl.CarouselID, &sl.Position, &sl.Heading, &sl.BodyText,
			&slideType, &key, &sl.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan slide: %w", err)
		}
		sl.SlideType = domain.SlideType(slideType)
		if key.Valid {
			sl.StorageKey = &key.String
		}
		slides = append(slides, &sl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating slides: %w", err)
	}
	return slides, nil
}

// ClearStorageKeys implements store.SlideStore.ClearStorageKeys
func (s *PostgresSlideStore) ClearStorageKeys(ctx context.Context, keys []string) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}

	log := logger.FromContextOrDefault(ctx, s.logger)

	result, err := s.db.ExecContext(ctx,
		`UPDATE slides SET storage_key = NULL WHERE storage_key = ANY($1)`, keys)
	if err != nil {
		log.Error("failed to clear slide storage keys",
			slog.String("error", err.Error()),
			slog.Int("key_count", len(keys)))
		return 0, MapError(err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(n), nil
}

// WithTx implements store.SlideStore.WithTx
func (s *PostgresSlideStore) WithTx(tx *sql.Tx) store.SlideStore {
	return &PostgresSlideStore{
		db:     tx,
		logger: s.logger,
	}
}
