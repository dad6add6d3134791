package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/phrazzld/carouselmaker/internal/domain"
)

// UserStore defines the interface for user data persistence.
//
// CreditBalance is owned by the credit ledger: callers outside the ledger
// must never call UpdateBalance directly.
type UserStore interface {
	// Create saves a new user to the store.
	// Returns ErrTelegramIDExists if the Telegram ID is already registered.
	// Returns validation errors from the domain User if data is invalid.
	Create(ctx context.Context, user *domain.User) error

	// GetByID retrieves a user by their unique ID.
	// Returns ErrUserNotFound if the user does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)

	// GetByTelegramID retrieves a user by their Telegram account ID.
	// Returns ErrUserNotFound if the user does not exist.
	GetByTelegramID(ctx context.Context, telegramID int64) (*domain.User, error)

	// GetForUpdate retrieves a user and locks the row until the enclosing
	// transaction ends (SELECT ... FOR UPDATE).
	// It must be called on a store bound to a transaction via WithTx.
	// Returns ErrUserNotFound if the user does not exist.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.User, error)

	// UpdateBalance overwrites the cached credit balance of a user.
	// Returns ErrUserNotFound if the user does not exist.
	UpdateBalance(ctx context.Context, id uuid.UUID, balance int64) error

	// Count returns the number of registered users.
	Count(ctx context.Context) (int, error)

	// WithTx returns a new UserStore instance that uses the provided transaction.
	// This allows for multiple operations to be executed within a single transaction.
	// The transaction should be created and managed by the caller (typically a service).
	WithTx(tx *sql.Tx) UserStore
}
