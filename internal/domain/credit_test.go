package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCreditTransaction(t *testing.T) {
	t.Parallel()

	userID := uuid.New()

	t.Run("charge is stored negative", func(t *testing.T) {
		tx, err := NewCreditTransaction(userID, 1, TransactionGenerationCharge)
		require.NoError(t, err)
		assert.Equal(t, int64(-1), tx.Amount)
	})

	t.Run("credit types are stored positive", func(t *testing.T) {
		for _, typ := range []TransactionType{
			TransactionWelcomeBonus, TransactionPurchase, TransactionRefund, TransactionAdminGrant,
		} {
			tx, err := NewCreditTransaction(userID, 5, typ)
			require.NoError(t, err, string(typ))
			assert.Equal(t, int64(5), tx.Amount)
		}
	})

	t.Run("non-positive magnitude rejected", func(t *testing.T) {
		_, err := NewCreditTransaction(userID, 0, TransactionPurchase)
		assert.ErrorIs(t, err, ErrInvalidAmount)
		_, err = NewCreditTransaction(userID, -3, TransactionPurchase)
		assert.ErrorIs(t, err, ErrInvalidAmount)
	})

	t.Run("unknown type rejected", func(t *testing.T) {
		_, err := NewCreditTransaction(userID, 1, "gift")
		assert.ErrorIs(t, err, ErrInvalidTransactionType)
	})

	t.Run("tags", func(t *testing.T) {
		genID := uuid.New()
		tx, err := NewCreditTransaction(userID, 1, TransactionRefund)
		require.NoError(t, err)
		tx.WithGenerationID(genID).WithExternalPaymentID("pay_1")
		require.NotNil(t, tx.GenerationID)
		assert.Equal(t, genID, *tx.GenerationID)
		require.NotNil(t, tx.ExternalPaymentID)
		assert.Equal(t, "pay_1", *tx.ExternalPaymentID)

		untagged, err := NewCreditTransaction(userID, 1, TransactionRefund)
		require.NoError(t, err)
		untagged.WithGenerationID(uuid.Nil)
		assert.Nil(t, untagged.GenerationID)
	})
}

func TestStyles(t *testing.T) {
	t.Parallel()

	for _, s := range Styles() {
		got, ok := LookupStyle(s.Slug)
		require.True(t, ok)
		assert.Equal(t, s, got)
		_, err := ParseHexColor(s.Background)
		assert.NoError(t, err, s.Slug)
	}

	_, ok := LookupStyle("nope")
	assert.False(t, ok)

	c, err := ParseHexColor("#FFD600")
	require.NoError(t, err)
	assert.Equal(t, uint8(0xFF), c.R)
	assert.Equal(t, uint8(0xD6), c.G)
	assert.Equal(t, uint8(0x00), c.B)

	_, err = ParseHexColor("red")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestFindCreditPack(t *testing.T) {
	t.Parallel()

	p, ok := FindCreditPack(15)
	require.True(t, ok)
	assert.Equal(t, int64(349), p.PriceRub)

	_, ok = FindCreditPack(7)
	assert.False(t, ok)
}
