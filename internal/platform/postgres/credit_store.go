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

// PostgresCreditStore implements the store.CreditStore interface
// using a PostgreSQL database as the storage backend.
type PostgresCreditStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresCreditStore creates a new PostgreSQL implementation of the CreditStore interface.
// If logger is nil, a default logger will be used.
func NewPostgresCreditStore(db store.DBTX, logger *slog.Logger) *PostgresCreditStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresCreditStore{
		db:     db,
		logger: logger.With(slog.String("component", "credit_store")),
	}
}

// Ensure PostgresCreditStore implements store.CreditStore interface
var _ store.CreditStore = (*PostgresCreditStore)(nil)

// Create implements store.CreditStore.Create
// Duplicate payments, refunds and welcome bonuses surface as
// store.ErrPaymentExists, store.ErrRefundExists and store.ErrWelcomeExists
// through the partial unique indexes.
func (s *PostgresCreditStore) Create(ctx context.Context, tx *domain.CreditTransaction) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := tx.Validate(); err != nil {
		log.Warn("credit transaction validation failed",
			slog.String("error", err.Error()),
			slog.String("user_id", tx.UserID.String()))
		return err
	}

	query := `
		INSERT INTO credit_transactions
			(id, user_id, amount, transaction_type, external_payment_id, generation_id, task_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.db.ExecContext(ctx, query,
		tx.ID,
		tx.UserID,
		tx.Amount,
		string(tx.Type),
		tx.ExternalPaymentID,
		tx.GenerationID,
		tx.TaskID,
		tx.CreatedAt,
	)
	if err != nil {
		mapped := MapError(err)
		if store.IsDuplicateError(mapped) {
			log.Info("duplicate credit transaction rejected",
				slog.String("user_id", tx.UserID.String()),
				slog.String("transaction_type", string(tx.Type)))
		} else {
			log.Error("failed to create credit transaction",
				slog.String("error", err.Error()),
				slog.String("user_id", tx.UserID.String()),
				slog.String("transaction_type", string(tx.Type)))
		}
		return mapped
	}

	log.Debug("credit transaction recorded",
		slog.String("transaction_id", tx.ID.String()),
		slog.String("user_id", tx.UserID.String()),
		slog.String("transaction_type", string(tx.Type)),
		slog.Int64("amount", tx.Amount))
	return nil
}

// ListByUser implements store.CreditStore.ListByUser
func (s *PostgresCreditStore) ListByUser(
	ctx context.Context,
	userID uuid.UUID,
	limit, offset int,
) ([]*domain.CreditTransaction, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT id, user_id, amount, transaction_type, external_payment_id, generation_id, task_id, created_at
		FROM credit_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3
	`
	rows, err := s.db.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		log.Error("failed to list credit transactions",
			slog.String("error", err.Error()),
			slog.String("user_id", userID.String()))
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var txs []*domain.CreditTransaction
	for rows.Next() {
		var (
			t         domain.CreditTransaction
			txType    string
			paymentID sql.NullString
			genID     uuid.NullUUID
			taskID    uuid.NullUUID
		)
		if err := rows.Scan(&t.ID, &t.UserID, &t.Amount, &txType, &paymentID, &genID, &taskID, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan credit transaction: %w", err)
		}
		t.Type = domain.TransactionType(txType)
		if paymentID.Valid {
			t.ExternalPaymentID = &paymentID.String
		}
		if genID.Valid {
			t.GenerationID = &genID.UUID
		}
		if taskID.Valid {
			t.TaskID = &taskID.UUID
		}
		txs = append(txs, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating credit transactions: %w", err)
	}
	return txs, nil
}

// SumByUser implements store.CreditStore.SumByUser
func (s *PostgresCreditStore) SumByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	var sum int64
	query := `SELECT COALESCE(SUM(amount), 0) FROM credit_transactions WHERE user_id = $1`
	if err := s.db.QueryRowContext(ctx, query, userID).Scan(&sum); err != nil {
		return 0, fmt.Errorf("failed to sum credit transactions: %w", MapError(err))
	}
	return sum, nil
}

// CountRefunds implements store.CreditStore.CountRefunds
func (s *PostgresCreditStore) CountRefunds(ctx context.Context, generationID uuid.UUID) (int, error) {
	var n int
	query := `
		SELECT COUNT(*) FROM credit_transactions
		WHERE generation_id = $1 AND transaction_type = $2
	`
	if err := s.db.QueryRowContext(ctx, query, generationID, string(domain.TransactionRefund)).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count refunds: %w", MapError(err))
	}
	return n, nil
}

// WithTx implements store.CreditStore.WithTx
func (s *PostgresCreditStore) WithTx(tx *sql.Tx) store.CreditStore {
	return &PostgresCreditStore{
		db:     tx,
		logger: s.logger,
	}
}
