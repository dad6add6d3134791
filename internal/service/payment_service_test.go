package service_test

import (
	"context"
	"testing"

	"github.com/phrazzld/carouselmaker/internal/domain"
	"github.com/phrazzld/carouselmaker/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func succeeded(paymentID string, credits int64) service.PaymentNotification {
	return service.PaymentNotification{
		Event:      service.PaymentSucceeded,
		PaymentID:  paymentID,
		TelegramID: telegramID,
		Credits:    credits,
	}
}

func TestHandleNotificationCreditsPack(t *testing.T) {
	t.Parallel()

	f := newFixture()
	user := f.register(t, telegramID)
	svc := service.NewPaymentService(f.users, f.ledger, discardLogger())

	res, err := svc.HandleNotification(context.Background(), succeeded("pay_1", 15))
	require.NoError(t, err)
	assert.True(t, res.Credited)
	assert.Equal(t, user.ID, res.UserID)
	assert.Equal(t, int64(domain.FreeCreditsOnStart+15), res.Balance)
	assert.Equal(t, res.Balance, f.balance(t, user))
}

func TestHandleNotificationDuplicatePayment(t *testing.T) {
	t.Parallel()

	f := newFixture()
	user := f.register(t, telegramID)
	svc := service.NewPaymentService(f.users, f.ledger, discardLogger())
	ctx := context.Background()

	_, err := svc.HandleNotification(ctx, succeeded("pay_123", 50))
	require.NoError(t, err)

	_, err = svc.HandleNotification(ctx, succeeded("pay_123", 50))
	require.ErrorIs(t, err, service.ErrDuplicatePayment)

	assert.Equal(t, int64(domain.FreeCreditsOnStart+50), f.balance(t, user), "credited once")
}

func TestHandleNotificationIgnoresOtherEvents(t *testing.T) {
	t.Parallel()

	f := newFixture()
	user := f.register(t, telegramID)
	svc := service.NewPaymentService(f.users, f.ledger, discardLogger())

	n := succeeded("pay_2", 5)
	n.Event = "payment.canceled"
	res, err := svc.HandleNotification(context.Background(), n)
	require.NoError(t, err)
	assert.False(t, res.Credited)
	assert.Equal(t, int64(domain.FreeCreditsOnStart), f.balance(t, user))
}

func TestHandleNotificationRejectsBadInput(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.register(t, telegramID)
	svc := service.NewPaymentService(f.users, f.ledger, discardLogger())
	ctx := context.Background()

	_, err := svc.HandleNotification(ctx, succeeded("pay_3", 7))
	assert.ErrorIs(t, err, service.ErrUnknownPack)

	_, err = svc.HandleNotification(ctx, succeeded("", 5))
	assert.ErrorIs(t, err, domain.ErrValidation)

	n := succeeded("pay_4", 5)
	n.TelegramID = 1
	_, err = svc.HandleNotification(ctx, n)
	assert.ErrorIs(t, err, service.ErrUserNotFound)
}
