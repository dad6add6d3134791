package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/carouselmaker/internal/platform/logger"
	"github.com/phrazzld/carouselmaker/internal/store"
	"github.com/phrazzld/carouselmaker/internal/task"
)

// PostgresTaskStore implements the task.TaskStore interface using PostgreSQL
type PostgresTaskStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresTaskStore creates a new PostgresTaskStore
func NewPostgresTaskStore(db store.DBTX, logger *slog.Logger) *PostgresTaskStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresTaskStore{
		db:     db,
		logger: logger.With(slog.String("component", "task_store")),
	}
}

// Ensure PostgresTaskStore implements task.TaskStore interface
var _ task.TaskStore = (*PostgresTaskStore)(nil)

// SaveTask persists a task record to the database
func (s *PostgresTaskStore) SaveTask(ctx context.Context, env task.Envelope) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		INSERT INTO tasks (id, type, payload, status, attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, $5, $6)
	`
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx, query,
		env.TaskID,
		env.Type,
		[]byte(env.Payload),
		string(task.TaskStatusPending),
		now,
		now,
	)
	if err != nil {
		log.Error("failed to save task",
			"task_id", env.TaskID,
			"task_type", env.Type,
			"error", err)
		return fmt.Errorf("failed to save task to database: %w", MapError(err))
	}

	return nil
}

// UpdateTaskStatus updates the status of a task in the database.
// Entering processing counts as a delivery attempt.
func (s *PostgresTaskStore) UpdateTaskStatus(
	ctx context.Context,
	taskID uuid.UUID,
	status task.TaskStatus,
	errorMsg string,
) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		UPDATE tasks
		SET status = $1,
			error_message = $2,
			attempts = attempts + CASE WHEN $1::text = 'processing' THEN 1 ELSE 0 END,
			updated_at = $3
		WHERE id = $4
	`

	result, err := s.db.ExecContext(ctx, query,
		string(status),
		nullString(errorMsg),
		time.Now().UTC(),
		taskID,
	)
	if err != nil {
		log.Error("failed to update task status",
			"task_id", taskID,
			"status", status,
			"error", err)
		return fmt.Errorf("failed to update task status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		log.Warn("no task found with ID to update status", "task_id", taskID)
		return store.ErrTaskNotFound
	}

	return nil
}

// GetTask retrieves a task record by ID
func (s *PostgresTaskStore) GetTask(ctx context.Context, taskID uuid.UUID) (task.Record, error) {
	query := `
		SELECT id, type, payload, status, attempts, error_message, created_at, updated_at
		FROM tasks
		WHERE id = $1
	`

	var (
		r            task.Record
		taskStatus   string
		errorMessage sql.NullString
	)
	err := s.db.QueryRowContext(ctx, query, taskID).Scan(&r.ID, &r.Type, &r.Payload, &taskStatus,
		&r.Attempts, &errorMessage, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return task.Record{}, store.ErrTaskNotFound
	}
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to get task",
			"task_id", taskID,
			"error", err)
		return task.Record{}, fmt.Errorf("failed to get task: %w", MapError(err))
	}
	r.Status = task.TaskStatus(taskStatus)
	r.ErrorMessage = errorMessage.String
	return r, nil
}

// GetPendingTasks retrieves all tasks with "pending" status
func (s *PostgresTaskStore) GetPendingTasks(ctx context.Context) ([]task.Record, error) {
	return s.getTasksByStatus(ctx, task.TaskStatusPending, 0)
}

// GetProcessingTasks retrieves tasks with "processing" status
func (s *PostgresTaskStore) GetProcessingTasks(ctx context.Context, olderThan time.Duration) ([]task.Record, error) {
	return s.getTasksByStatus(ctx, task.TaskStatusProcessing, olderThan)
}

// getTasksByStatus is a helper method to get tasks by status with optional age filter
func (s *PostgresTaskStore) getTasksByStatus(
	ctx context.Context,
	status task.TaskStatus,
	olderThan time.Duration,
) ([]task.Record, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	cutoff := time.Now().UTC().Add(-olderThan)
	query := `
		SELECT id, type, payload, status, attempts, error_message, created_at, updated_at
		FROM tasks
		WHERE status = $1 AND (NOT $2::boolean OR updated_at < $3)
		ORDER BY created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, string(status), olderThan > 0, cutoff)
	if err != nil {
		log.Error("failed to query tasks by status",
			"status", status,
			"error", err)
		return nil, fmt.Errorf("failed to query tasks by status: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []task.Record
	for rows.Next() {
		var (
			r            task.Record
			taskStatus   string
			errorMessage sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Type, &r.Payload, &taskStatus, &r.Attempts,
			&errorMessage, &r.CreatedAt, &r.UpdatedAt); err != nil {
			log.Error("failed to scan task row",
				"status", status,
				"error", err)
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		r.Status = task.TaskStatus(taskStatus)
		r.ErrorMessage = errorMessage.String
		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task rows: %w", err)
	}

	return records, nil
}

// CountByStatus returns the number of task records per status
func (s *PostgresTaskStore) CountByStatus(ctx context.Context) (map[task.TaskStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count tasks: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[task.TaskStatus]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan task count: %w", err)
		}
		counts[task.TaskStatus(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task counts: %w", err)
	}
	return counts, nil
}

// WithTx returns a new TaskStore instance that uses the provided transaction
func (s *PostgresTaskStore) WithTx(tx *sql.Tx) task.TaskStore {
	return &PostgresTaskStore{
		db:     tx,
		logger: s.logger,
	}
}
