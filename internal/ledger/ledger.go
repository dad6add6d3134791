// Package ledger implements the credit ledger: every balance change is an
// append-only transaction written together with the cached user balance in
// one database transaction that holds the user's row lock.
//
// The cached balance always equals the sum of the user's transactions and
// never goes negative.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/carouselmaker/internal/domain"
	"github.com/phrazzld/carouselmaker/internal/metrics"
	"github.com/phrazzld/carouselmaker/internal/platform/logger"
	"github.com/phrazzld/carouselmaker/internal/store"
)

// Ledger errors
var (
	// ErrInsufficient is returned internally when a debit would make the balance negative.
	ErrInsufficient = errors.New("insufficient credits")

	// ErrDuplicatePayment is returned by Purchase when the external payment was already credited.
	ErrDuplicatePayment = errors.New("payment already credited")

	// ErrInvalidAmount is returned when an amount is not strictly positive.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrBalanceMismatch is returned by Reconcile when the cached balance drifted.
	ErrBalanceMismatch = errors.New("cached balance does not match transactions")
)

// Ledger mutates credit balances.
type Ledger struct {
	tx          store.Transactor
	users       store.UserStore
	credits     store.CreditStore
	generations store.CarouselStore
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// New creates a Ledger. m and logger may be nil.
func New(
	tx store.Transactor,
	users store.UserStore,
	credits store.CreditStore,
	generations store.CarouselStore,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Ledger {
	if tx == nil || users == nil || credits == nil || generations == nil {
		panic("ledger: nil dependency")
	}
	if m == nil {
		m = metrics.NewUnregistered()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		tx:          tx,
		users:       users,
		credits:     credits,
		generations: generations,
		metrics:     m,
		logger:      logger.With(slog.String("component", "ledger")),
	}
}

// Charge debits amount from user for a generation request. It returns false
// without changing anything when the balance is too low. On success the new
// balance is mirrored onto user.
func (l *Ledger) Charge(ctx context.Context, user *domain.User, amount int64) (bool, error) {
	entry, err := newEntry(user.ID, amount, domain.TransactionGenerationCharge)
	if err != nil {
		return false, err
	}

	updated, err := l.apply(ctx, "charge", entry, nil)
	if errors.Is(err, ErrInsufficient) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	user.CreditBalance = updated.CreditBalance
	return true, nil
}

// Refund credits amount back for a generation. generationID may be uuid.Nil
// when the charge never produced a generation. A generation is refunded at
// most once; a repeated refund is a no-op.
func (l *Ledger) Refund(ctx context.Context, userID uuid.UUID, amount int64, generationID uuid.UUID) error {
	entry, err := newEntry(userID, amount, domain.TransactionRefund)
	if err != nil {
		return err
	}
	entry.WithGenerationID(generationID)

	_, err = l.apply(ctx, "refund", entry, nil)
	if errors.Is(err, store.ErrRefundExists) {
		logger.FromContextOrDefault(ctx, l.logger).Info("generation already refunded",
			slog.String("generation_id", generationID.String()),
			slog.String("user_id", userID.String()))
		return nil
	}
	return err
}

// RefundTask credits amount back for a task that was charged but never
// produced a generation. A task is refunded at most once; a repeated refund
// is a no-op.
func (l *Ledger) RefundTask(ctx context.Context, userID uuid.UUID, amount int64, taskID uuid.UUID) error {
	if taskID == uuid.Nil {
		return fmt.Errorf("%w: %w", domain.ErrValidation, domain.ErrEmptyTaskID)
	}
	entry, err := newEntry(userID, amount, domain.TransactionRefund)
	if err != nil {
		return err
	}
	entry.WithTaskID(taskID)

	_, err = l.apply(ctx, "refund", entry, nil)
	if errors.Is(err, store.ErrRefundExists) {
		logger.FromContextOrDefault(ctx, l.logger).Info("task already refunded",
			slog.String("task_id", taskID.String()),
			slog.String("user_id", userID.String()))
		return nil
	}
	return err
}

// Purchase credits a paid pack. Each externalPaymentID is credited once;
// a repeat returns ErrDuplicatePayment and leaves the balance unchanged.
func (l *Ledger) Purchase(
	ctx context.Context,
	user *domain.User,
	amount int64,
	externalPaymentID string,
) (*domain.User, error) {
	entry, err := newEntry(user.ID, amount, domain.TransactionPurchase)
	if err != nil {
		return nil, err
	}
	if externalPaymentID != "" {
		entry.WithExternalPaymentID(externalPaymentID)
	}

	updated, err := l.apply(ctx, "purchase", entry, nil)
	if errors.Is(err, store.ErrPaymentExists) {
		return nil, fmt.Errorf("%w: %s", ErrDuplicatePayment, externalPaymentID)
	}
	if err != nil {
		return nil, err
	}

	user.CreditBalance = updated.CreditBalance
	return updated, nil
}

// Register creates user and records its welcome bonus in one transaction,
// so a registered user always holds the bonus. A taken Telegram ID returns
// store.ErrTelegramIDExists and nothing is written.
func (l *Ledger) Register(ctx context.Context, user *domain.User) (*domain.User, error) {
	entry, err := newEntry(user.ID, domain.FreeCreditsOnStart, domain.TransactionWelcomeBonus)
	if err != nil {
		return nil, err
	}

	var registered *domain.User
	err = l.tx.WithinTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := l.users.WithTx(tx).Create(ctx, user); err != nil {
			return err
		}
		var err error
		registered, err = l.applyTx(ctx, tx, entry, nil)
		return err
	})
	l.record(ctx, "register", entry, registered, err)
	return registered, err
}

// GrantWelcome records the free credits of a user that has no ledger
// entries yet. The check runs under the user's row lock, so concurrent
// calls grant the bonus once; the others return granted=false and the
// current balance.
func (l *Ledger) GrantWelcome(ctx context.Context, userID uuid.UUID) (user *domain.User, granted bool, err error) {
	entry, err := newEntry(userID, domain.FreeCreditsOnStart, domain.TransactionWelcomeBonus)
	if err != nil {
		return nil, false, err
	}

	updated, err := l.apply(ctx, "welcome_bonus", entry, func(ctx context.Context, tx *sql.Tx) (bool, error) {
		history, err := l.credits.WithTx(tx).ListByUser(ctx, userID, 1, 0)
		if err != nil {
			return false, err
		}
		return len(history) == 0, nil
	})
	if errors.Is(err, errSkipped) || errors.Is(err, store.ErrWelcomeExists) {
		current, err := l.users.GetByID(ctx, userID)
		return current, false, err
	}
	if err != nil {
		return nil, false, err
	}
	return updated, true, nil
}

// AdminGrant credits amount on behalf of an operator.
func (l *Ledger) AdminGrant(ctx context.Context, userID uuid.UUID, amount int64) (*domain.User, error) {
	entry, err := newEntry(userID, amount, domain.TransactionAdminGrant)
	if err != nil {
		return nil, err
	}
	return l.apply(ctx, "admin_grant", entry, nil)
}

// FailAndRefund marks a generation FAILED and refunds its charge in one
// transaction. If the generation is already terminal nothing changes and
// refunded is false, so a generation is refunded exactly once.
func (l *Ledger) FailAndRefund(
	ctx context.Context,
	generationID, userID uuid.UUID,
	amount int64,
	errorMessage string,
) (refunded bool, err error) {
	entry, err := newEntry(userID, amount, domain.TransactionRefund)
	if err != nil {
		return false, err
	}
	entry.WithGenerationID(generationID)

	log := logger.FromContextOrDefault(ctx, l.logger).With(
		slog.String("generation_id", generationID.String()),
		slog.String("user_id", userID.String()))

	_, err = l.apply(ctx, "fail_and_refund", entry, func(ctx context.Context, tx *sql.Tx) (bool, error) {
		changed, err := l.generations.WithTx(tx).MarkFailed(ctx, generationID, errorMessage)
		if err != nil {
			return false, fmt.Errorf("failed to mark generation failed: %w", err)
		}
		return changed, nil
	})
	if errors.Is(err, errSkipped) {
		log.Info("generation already terminal, refund skipped")
		return false, nil
	}
	if err != nil {
		return false, err
	}

	log.Info("generation failed and refunded", slog.Int64("amount", amount))
	return true, nil
}

// Balance returns the cached balance of a user.
func (l *Ledger) Balance(ctx context.Context, userID uuid.UUID) (int64, error) {
	u, err := l.users.GetByID(ctx, userID)
	if err != nil {
		return 0, err
	}
	return u.CreditBalance, nil
}

// History returns a page of the user's transactions, newest first.
func (l *Ledger) History(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.CreditTransaction, error) {
	return l.credits.ListByUser(ctx, userID, limit, offset)
}

// Reconcile verifies that the cached balance equals the sum of transactions.
func (l *Ledger) Reconcile(ctx context.Context, userID uuid.UUID) error {
	var balance, sum int64
	err := l.tx.WithinTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		u, err := l.users.WithTx(tx).GetForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		balance = u.CreditBalance
		sum, err = l.credits.WithTx(tx).SumByUser(ctx, userID)
		return err
	})
	if err != nil {
		return err
	}
	if balance != sum {
		return fmt.Errorf("%w: user %s balance %d, transactions %d", ErrBalanceMismatch, userID, balance, sum)
	}
	return nil
}

// errSkipped aborts a transaction whose precondition did not hold.
var errSkipped = errors.New("ledger operation skipped")

// precondition runs first inside the transaction. Returning false aborts the
// operation with errSkipped.
type precondition func(ctx context.Context, tx *sql.Tx) (bool, error)

// apply runs applyTx in its own transaction and records the outcome.
func (l *Ledger) apply(
	ctx context.Context,
	operation string,
	entry *domain.CreditTransaction,
	pre precondition,
) (*domain.User, error) {
	var updated *domain.User
	err := l.tx.WithinTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		updated, err = l.applyTx(ctx, tx, entry, pre)
		return err
	})
	l.record(ctx, operation, entry, updated, err)
	return updated, err
}

// applyTx locks the user row, checks the resulting balance, appends entry
// and writes the new balance. Every check runs before the first write.
func (l *Ledger) applyTx(
	ctx context.Context,
	tx *sql.Tx,
	entry *domain.CreditTransaction,
	pre precondition,
) (*domain.User, error) {
	users := l.users.WithTx(tx)

	user, err := users.GetForUpdate(ctx, entry.UserID)
	if err != nil {
		return nil, err
	}

	newBalance := user.CreditBalance + entry.Amount
	if newBalance < 0 {
		return nil, fmt.Errorf("%w: balance %d, requested %d", ErrInsufficient, user.CreditBalance, -entry.Amount)
	}

	if pre != nil {
		ok, err := pre(ctx, tx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errSkipped
		}
	}

	if err := l.credits.WithTx(tx).Create(ctx, entry); err != nil {
		return nil, err
	}
	if err := users.UpdateBalance(ctx, user.ID, newBalance); err != nil {
		return nil, err
	}

	user.CreditBalance = newBalance
	return user, nil
}

// record counts and logs the outcome of a ledger operation.
func (l *Ledger) record(
	ctx context.Context,
	operation string,
	entry *domain.CreditTransaction,
	updated *domain.User,
	err error,
) {
	log := logger.FromContextOrDefault(ctx, l.logger)

	l.metrics.LedgerOperations.WithLabelValues(operation, resultLabel(err)).Inc()
	switch {
	case err == nil:
		log.Info("ledger operation applied",
			slog.String("operation", operation),
			slog.String("user_id", entry.UserID.String()),
			slog.Int64("amount", entry.Amount),
			slog.Int64("balance", updated.CreditBalance))
	case errors.Is(err, ErrInsufficient), errors.Is(err, errSkipped), store.IsDuplicateError(err):
		log.Debug("ledger operation not applied",
			slog.String("operation", operation),
			slog.String("user_id", entry.UserID.String()),
			slog.String("reason", err.Error()))
	default:
		log.Error("ledger operation failed",
			slog.String("operation", operation),
			slog.String("user_id", entry.UserID.String()),
			slog.String("error", err.Error()))
	}
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInsufficient):
		return "insufficient"
	case errors.Is(err, errSkipped):
		return "skipped"
	case store.IsDuplicateError(err):
		return "duplicate"
	default:
		return "error"
	}
}

func newEntry(userID uuid.UUID, amount int64, txType domain.TransactionType) (*domain.CreditTransaction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidAmount, amount)
	}
	return domain.NewCreditTransaction(userID, amount, txType)
}
