package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/phrazzld/carouselmaker/internal/domain"
	"github.com/phrazzld/carouselmaker/internal/platform/logger"
	"github.com/phrazzld/carouselmaker/internal/store"
)

// UserService registers and looks up users by their Telegram identity.
type UserService interface {
	// GetOrCreate returns the user for telegramID, registering it with the
	// welcome bonus on first contact. created reports a new registration.
	GetOrCreate(ctx context.Context, telegramID int64, username, fullName string) (user *domain.User, created bool, err error)

	// GetByTelegramID retrieves a registered user.
	GetByTelegramID(ctx context.Context, telegramID int64) (*domain.User, error)
}

type userService struct {
	users  store.UserStore
	ledger CreditLedger
	logger *slog.Logger
}

// NewUserService creates a new UserService
func NewUserService(
	users store.UserStore,
	ledger CreditLedger,
	logger *slog.Logger,
) UserService {
	if logger == nil {
		logger = slog.Default()
	}
	return &userService{
		users:  users,
		ledger: ledger,
		logger: logger.With("component", "user_service"),
	}
}

// GetOrCreate implements UserService. A new user is created together with
// the welcome bonus in one transaction. A stored user without any ledger
// entries is granted the bonus on lookup; the ledger decides under the
// user's row lock, so concurrent calls grant it once.
func (s *userService) GetOrCreate(
	ctx context.Context,
	telegramID int64,
	username, fullName string,
) (*domain.User, bool, error) {
	log := logger.FromContextOrDefault(ctx, s.logger).With("telegram_id", telegramID)

	user, err := s.users.GetByTelegramID(ctx, telegramID)
	switch {
	case err == nil:
		return s.ensureWelcome(ctx, user)
	case !errors.Is(err, store.ErrUserNotFound):
		return nil, false, NewServiceError("user", "get_or_create", "failed to look up user", err)
	}

	user, err = domain.NewUser(telegramID, username, fullName)
	if err != nil {
		return nil, false, NewServiceError("user", "get_or_create", "invalid user", err)
	}

	registered, err := s.ledger.Register(ctx, user)
	if errors.Is(err, store.ErrTelegramIDExists) {
		// Lost a registration race; the winner holds the bonus.
		existing, getErr := s.users.GetByTelegramID(ctx, telegramID)
		if getErr != nil {
			return nil, false, NewServiceError("user", "get_or_create", "failed to look up user", getErr)
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, NewServiceError("user", "get_or_create", "failed to register user", err)
	}

	log.Info("user registered", "user_id", registered.ID, "balance", registered.CreditBalance)
	return registered, true, nil
}

// ensureWelcome grants the welcome bonus to a stored user that never
// received one.
func (s *userService) ensureWelcome(ctx context.Context, user *domain.User) (*domain.User, bool, error) {
	if user.CreditBalance != 0 {
		return user, false, nil
	}

	updated, granted, err := s.ledger.GrantWelcome(ctx, user.ID)
	if err != nil {
		return nil, false, NewServiceError("user", "get_or_create", "failed to grant welcome bonus", err)
	}
	if granted {
		logger.FromContextOrDefault(ctx, s.logger).Info("welcome bonus granted",
			"user_id", user.ID,
			"balance", updated.CreditBalance)
	}
	return updated, false, nil
}

// GetByTelegramID implements UserService.
func (s *userService) GetByTelegramID(ctx context.Context, telegramID int64) (*domain.User, error) {
	user, err := s.users.GetByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, NewServiceError("user", "get", "failed to retrieve user", err)
	}
	return user, nil
}
