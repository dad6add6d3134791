package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/carouselmaker/internal/domain"
	"github.com/phrazzld/carouselmaker/internal/platform/logger"
	"github.com/phrazzld/carouselmaker/internal/store"
)

const generationColumns = `id, user_id, chat_id, input_text, style_slug, status, slide_count,
	task_id, error_message, created_at, updated_at`

// PostgresCarouselStore implements the store.CarouselStore interface
// using a PostgreSQL database as the storage backend.
type PostgresCarouselStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresCarouselStore creates a new PostgreSQL implementation of the CarouselStore interface.
// If logger is nil, a default logger will be used.
func NewPostgresCarouselStore(db store.DBTX, logger *slog.Logger) *PostgresCarouselStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresCarouselStore{
		db:     db,
		logger: logger.With(slog.String("component", "carousel_store")),
	}
}

// Ensure PostgresCarouselStore implements store.CarouselStore interface
var _ store.CarouselStore = (*PostgresCarouselStore)(nil)

// Create implements store.CarouselStore.Create
func (s *PostgresCarouselStore) Create(ctx context.Context, gen *domain.CarouselGeneration) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := gen.Validate(); err != nil {
		log.Warn("generation validation failed during create",
			slog.String("error", err.Error()),
			slog.String("task_id", gen.TaskID.String()))
		return err
	}

	query := `
		INSERT INTO carousel_generations (` + generationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := s.db.ExecContext(ctx, query,
		gen.ID,
		gen.UserID,
		gen.ChatID,
		gen.InputText,
		gen.StyleSlug,
		string(gen.Status),
		gen.SlideCount,
		gen.TaskID,
		nullString(gen.ErrorMessage),
		gen.CreatedAt,
		gen.UpdatedAt,
	)
	if err != nil {
		mapped := MapError(err)
		if errors.Is(mapped, store.ErrTaskIDExists) {
			log.Info("generation already exists for task",
				slog.String("task_id", gen.TaskID.String()))
			return mapped
		}
		log.Error("failed to create generation",
			slog.String("error", err.Error()),
			slog.String("generation_id", gen.ID.String()))
		return mapped
	}

	log.Info("generation created",
		slog.String("generation_id", gen.ID.String()),
		slog.String("task_id", gen.TaskID.String()),
		slog.String("user_id", gen.UserID.String()))
	return nil
}

// GetByID implements store.CarouselStore.GetByID
func (s *PostgresCarouselStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.CarouselGeneration, error) {
	query := `SELECT ` + generationColumns + ` FROM carousel_generations WHERE id = $1`
	return s.getOne(ctx, query, id)
}

// GetByTaskID implements store.CarouselStore.GetByTaskID
func (s *PostgresCarouselStore) GetByTaskID(ctx context.Context, taskID uuid.UUID) (*domain.CarouselGeneration, error) {
	query := `SELECT ` + generationColumns + ` FROM carousel_generations WHERE task_id = $1`
	return s.getOne(ctx, query, taskID)
}

func (s *PostgresCarouselStore) getOne(
	ctx context.Context,
	query string,
	id uuid.UUID,
) (*domain.CarouselGeneration, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	var (
		g        domain.CarouselGeneration
		status   string
		errorMsg sql.NullString
	)
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&g.ID,
		&g.UserID,
		&g.ChatID,
		&g.InputText,
		&g.StyleSlug,
		&status,
		&g.SlideCount,
		&g.TaskID,
		&errorMsg,
		&g.CreatedAt,
		&g.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrGenerationNotFound
		}
		log.Error("failed to get generation",
			slog.String("error", err.Error()),
			slog.String("key", id.String()))
		return nil, MapError(err)
	}

	g.Status = domain.GenerationStatus(status)
	g.ErrorMessage = errorMsg.String
	return &g, nil
}

// TransitionStatus implements store.CarouselStore.TransitionStatus
func (s *PostgresCarouselStore) TransitionStatus(
	ctx context.Context,
	id uuid.UUID,
	from, to domain.GenerationStatus,
) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, from, to)
	}

	query := `
		UPDATE carousel_generations
		SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4
	`
	result, err := s.db.ExecContext(ctx, query, string(to), time.Now().UTC(), id, string(from))
	if err != nil {
		log.Error("failed to transition generation",
			slog.String("error", err.Error()),
			slog.String("generation_id", id.String()),
			slog.String("from", string(from)),
			slog.String("to", string(to)))
		return MapError(err)
	}

	if err := CheckRowsAffected(result, store.ErrStatusConflict); err != nil {
		if errors.Is(err, store.ErrStatusConflict) {
			log.Warn("generation status changed concurrently",
				slog.String("generation_id", id.String()),
				slog.String("expected", string(from)),
				slog.String("to", string(to)))
			return fmt.Errorf("%w: generation %s is no longer %s", store.ErrStatusConflict, id, from)
		}
		return err
	}

	log.Debug("generation status changed",
		slog.String("generation_id", id.String()),
		slog.String("from", string(from)),
		slog.String("to", string(to)))
	return nil
}

// SetSlideCount implements store.CarouselStore.SetSlideCount
func (s *PostgresCarouselStore) SetSlideCount(ctx context.Context, id uuid.UUID, count int) error {
	query := `UPDATE carousel_generations SET slide_count = $1, updated_at = $2 WHERE id = $3`
	result, err := s.db.ExecContext(ctx, query, count, time.Now().UTC(), id)
	if err != nil {
		return MapError(err)
	}
	return CheckRowsAffected(result, store.ErrGenerationNotFound)
}

// MarkFailed implements store.CarouselStore.MarkFailed
func (s *PostgresCarouselStore) MarkFailed(ctx context.Context, id uuid.UUID, errorMessage string) (bool, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		UPDATE carousel_generations
		SET status = $1, error_message = $2, updated_at = $3
		WHERE id = $4 AND status NOT IN ($5, $6)
	`
	result, err := s.db.ExecContext(ctx, query,
		string(domain.GenerationStatusFailed),
		domain.TruncateErrorMessage(errorMessage),
		time.Now().UTC(),
		id,
		string(domain.GenerationStatusCompleted),
		string(domain.GenerationStatusFailed),
	)
	if err != nil {
		log.Error("failed to mark generation failed",
			slog.String("error", err.Error()),
			slog.String("generation_id", id.String()))
		return false, MapError(err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows > 0 {
		return true, nil
	}

	// Distinguish "already terminal" from "missing".
	if _, err := s.GetByID(ctx, id); err != nil {
		return false, err
	}
	log.Debug("generation already terminal, not marking failed",
		slog.String("generation_id", id.String()))
	return false, nil
}

// CountByStatus implements store.CarouselStore.CountByStatus
func (s *PostgresCarouselStore) CountByStatus(ctx context.Context) (map[domain.GenerationStatus]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM carousel_generations GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count generations: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[domain.GenerationStatus]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan generation count: %w", err)
		}
		counts[domain.GenerationStatus(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating generation counts: %w", err)
	}
	return counts, nil
}

// WithTx implements store.CarouselStore.WithTx
func (s *PostgresCarouselStore) WithTx(tx *sql.Tx) store.CarouselStore {
	return &PostgresCarouselStore{
		db:     tx,
		logger: s.logger,
	}
}

// nullString stores empty strings as NULL.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
