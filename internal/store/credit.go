package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/phrazzld/carouselmaker/internal/domain"
)

// CreditStore defines the interface for the append-only credit ledger.
// Transactions are never updated or deleted.
type CreditStore interface {
	// Create appends a transaction.
	// Returns ErrPaymentExists if ExternalPaymentID was already recorded.
	// Returns ErrRefundExists if the generation or task already has a refund.
	// Returns ErrWelcomeExists if the user already holds a welcome bonus.
	// Returns validation errors from the domain CreditTransaction if data is invalid.
	Create(ctx context.Context, tx *domain.CreditTransaction) error

	// ListByUser returns a user's transactions, newest first.
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.CreditTransaction, error)

	// SumByUser returns the sum of all transaction amounts for a user.
	// A user with no transactions has a sum of zero.
	SumByUser(ctx context.Context, userID uuid.UUID) (int64, error)

	// CountRefunds returns the number of refund transactions tagged with the generation.
	CountRefunds(ctx context.Context, generationID uuid.UUID) (int, error)

	// WithTx returns a new CreditStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) CreditStore
}
