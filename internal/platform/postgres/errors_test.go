package postgres

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/phrazzld/carouselmaker/internal/domain"
	"github.com/phrazzld/carouselmaker/internal/store"
	"github.com/stretchr/testify/assert"
)

func TestMapError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"no rows", sql.ErrNoRows, store.ErrNotFound},
		{"telegram id", &pgconn.PgError{Code: uniqueViolationCode, ConstraintName: constraintTelegramID}, store.ErrTelegramIDExists},
		{"task id", &pgconn.PgError{Code: uniqueViolationCode, ConstraintName: constraintTaskID}, store.ErrTaskIDExists},
		{"payment", &pgconn.PgError{Code: uniqueViolationCode, ConstraintName: constraintExternalPaymentID}, store.ErrPaymentExists},
		{"refund", &pgconn.PgError{Code: uniqueViolationCode, ConstraintName: constraintRefundGeneration}, store.ErrRefundExists},
		{"balance check", &pgconn.PgError{Code: checkViolationCode, ConstraintName: constraintBalanceNonNeg}, domain.ErrNegativeBalance},
		{"other unique", &pgconn.PgError{Code: uniqueViolationCode, ConstraintName: "slides_carousel_position_key"}, store.ErrDuplicate},
		{"foreign key", &pgconn.PgError{Code: foreignKeyViolationCode}, store.ErrInvalidEntity},
		{"other check", &pgconn.PgError{Code: checkViolationCode}, store.ErrInvalidEntity},
		{"not null", &pgconn.PgError{Code: notNullViolationCode}, store.ErrInvalidEntity},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := MapError(fmt.Errorf("exec: %w", tc.err))
			assert.ErrorIs(t, got, tc.want)
		})
	}

	assert.NoError(t, MapError(nil))
	plain := errors.New("connection refused")
	assert.Equal(t, plain, MapError(plain))
}

func TestViolationPredicates(t *testing.T) {
	t.Parallel()

	assert.True(t, IsUniqueViolation(&pgconn.PgError{Code: uniqueViolationCode}))
	assert.False(t, IsUniqueViolation(errors.New("x")))
	assert.True(t, IsForeignKeyViolation(&pgconn.PgError{Code: foreignKeyViolationCode}))
	assert.True(t, IsCheckConstraintViolation(&pgconn.PgError{Code: checkViolationCode}))
}

func TestCheckRowsAffected(t *testing.T) {
	t.Parallel()

	assert.NoError(t, CheckRowsAffected(sqlmock.NewResult(0, 1), nil))
	assert.ErrorIs(t, CheckRowsAffected(sqlmock.NewResult(0, 0), nil), store.ErrNotFound)
	assert.ErrorIs(t, CheckRowsAffected(sqlmock.NewResult(0, 0), store.ErrUserNotFound), store.ErrUserNotFound)
	assert.Error(t, CheckRowsAffected(nil, nil))
	assert.Error(t, CheckRowsAffected(sqlmock.NewErrorResult(errors.New("driver")), nil))
}
