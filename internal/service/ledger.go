package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/phrazzld/carouselmaker/internal/domain"
	"github.com/phrazzld/carouselmaker/internal/ledger"
)

// CreditLedger is the part of the credit ledger the services use.
type CreditLedger interface {
	Charge(ctx context.Context, user *domain.User, amount int64) (bool, error)
	RefundTask(ctx context.Context, userID uuid.UUID, amount int64, taskID uuid.UUID) error
	Purchase(ctx context.Context, user *domain.User, amount int64, externalPaymentID string) (*domain.User, error)
	Register(ctx context.Context, user *domain.User) (*domain.User, error)
	GrantWelcome(ctx context.Context, userID uuid.UUID) (user *domain.User, granted bool, err error)
	AdminGrant(ctx context.Context, userID uuid.UUID, amount int64) (*domain.User, error)
}

var _ CreditLedger = (*ledger.Ledger)(nil)
