package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/carouselmaker/internal/domain"
	"github.com/phrazzld/carouselmaker/internal/platform/logger"
)

// PaymentSucceeded is the only gateway event that credits a user.
const PaymentSucceeded = "payment.succeeded"

// PaymentNotification is a payment gateway callback.
type PaymentNotification struct {
	Event      string
	PaymentID  string
	TelegramID int64
	Credits    int64
}

// PaymentResult reports what a notification changed.
type PaymentResult struct {
	Credited bool      `json:"credited"`
	UserID   uuid.UUID `json:"user_id,omitempty"`
	Balance  int64     `json:"balance"`
}

// PaymentService credits purchased packs.
type PaymentService interface {
	// HandleNotification credits the pack of a succeeded payment. Other
	// events are acknowledged without effect. A payment ID already credited
	// returns ErrDuplicatePayment.
	HandleNotification(ctx context.Context, n PaymentNotification) (*PaymentResult, error)
}

type paymentService struct {
	users  UserService
	ledger CreditLedger
	logger *slog.Logger
}

// NewPaymentService creates a new PaymentService
func NewPaymentService(users UserService, ledger CreditLedger, logger *slog.Logger) PaymentService {
	if logger == nil {
		logger = slog.Default()
	}
	return &paymentService{
		users:  users,
		ledger: ledger,
		logger: logger.With("component", "payment_service"),
	}
}

// HandleNotification implements PaymentService.
func (s *paymentService) HandleNotification(ctx context.Context, n PaymentNotification) (*PaymentResult, error) {
	log := logger.FromContextOrDefault(ctx, s.logger).With(
		"payment_id", n.PaymentID,
		"event", n.Event,
		"telegram_id", n.TelegramID)

	if n.Event != PaymentSucceeded {
		log.Info("ignoring payment event")
		return &PaymentResult{}, nil
	}
	if n.PaymentID == "" {
		return nil, fmt.Errorf("%w: payment id is required", domain.ErrValidation)
	}
	if _, ok := domain.FindCreditPack(n.Credits); !ok {
		log.Warn("payment for unknown credit pack", "credits", n.Credits)
		return nil, fmt.Errorf("%w: %d credits", ErrUnknownPack, n.Credits)
	}

	user, err := s.users.GetByTelegramID(ctx, n.TelegramID)
	if err != nil {
		return nil, err
	}

	updated, err := s.ledger.Purchase(ctx, user, n.Credits, n.PaymentID)
	if err != nil {
		err = NewServiceError("payment", "credit", "failed to credit purchase", err)
		if errors.Is(err, ErrDuplicatePayment) {
			log.Info("payment already credited")
		} else {
			log.Error("failed to credit purchase", "error", err)
		}
		return nil, err
	}

	log.Info("purchase credited",
		"user_id", updated.ID,
		"credits", n.Credits,
		"balance", updated.CreditBalance)
	return &PaymentResult{Credited: true, UserID: updated.ID, Balance: updated.CreditBalance}, nil
}
