package store_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/phrazzld/carouselmaker/internal/store"
	"github.com/stretchr/testify/assert"
)

func TestEntityErrorsWrapGenericErrors(t *testing.T) {
	t.Parallel()

	notFound := []error{store.ErrUserNotFound, store.ErrGenerationNotFound, store.ErrTaskNotFound}
	for _, err := range notFound {
		assert.True(t, store.IsNotFoundError(err), err.Error())
		assert.False(t, store.IsDuplicateError(err), err.Error())
	}

	duplicates := []error{
		store.ErrTelegramIDExists,
		store.ErrTaskIDExists,
		store.ErrPaymentExists,
		store.ErrRefundExists,
	}
	for _, err := range duplicates {
		assert.True(t, store.IsDuplicateError(err), err.Error())
		assert.False(t, store.IsNotFoundError(err), err.Error())
	}

	assert.False(t, store.IsNotFoundError(errors.New("boom")))
	assert.True(t, store.IsNotFoundError(fmt.Errorf("lookup: %w", store.ErrUserNotFound)))
}

func TestStoreError(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection reset")
	err := store.NewStoreError("carousel_generation", "create", "insert failed", cause)

	assert.Equal(t,
		"create operation on carousel_generation failed: insert failed: connection reset",
		err.Error())
	assert.ErrorIs(t, err, cause)

	bare := store.NewStoreError("slide", "list", "no rows", nil)
	assert.Equal(t, "list operation on slide failed: no rows", bare.Error())
	assert.Nil(t, bare.Unwrap())
}
