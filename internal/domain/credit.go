package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreditsPerCarousel is the price of one generation attempt.
const CreditsPerCarousel = 1

// TransactionType classifies a credit ledger entry.
type TransactionType string

// Possible transaction types
const (
	TransactionWelcomeBonus     TransactionType = "welcome_bonus"
	TransactionPurchase         TransactionType = "purchase"
	TransactionGenerationCharge TransactionType = "generation_charge"
	TransactionRefund           TransactionType = "refund"
	TransactionAdminGrant       TransactionType = "admin_grant"
)

// IsValid reports whether t is a known transaction type.
func (t TransactionType) IsValid() bool {
	switch t {
	case TransactionWelcomeBonus, TransactionPurchase, TransactionGenerationCharge,
		TransactionRefund, TransactionAdminGrant:
		return true
	default:
		return false
	}
}

// IsDebit reports whether entries of this type decrease the balance.
func (t TransactionType) IsDebit() bool {
	return t == TransactionGenerationCharge
}

// CreditTransaction is an immutable entry in a user's credit ledger.
// The sum of a user's Amount values always equals User.CreditBalance.
type CreditTransaction struct {
	ID                uuid.UUID       `json:"id"`
	UserID            uuid.UUID       `json:"user_id"`
	Amount            int64           `json:"amount"`
	Type              TransactionType `json:"transaction_type"`
	ExternalPaymentID *string         `json:"external_payment_id,omitempty"`
	GenerationID      *uuid.UUID      `json:"generation_id,omitempty"`
	TaskID            *uuid.UUID      `json:"task_id,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

// NewCreditTransaction builds a ledger entry for a positive magnitude.
// Debit types are stored with a negative amount.
func NewCreditTransaction(
	userID uuid.UUID,
	magnitude int64,
	txType TransactionType,
) (*CreditTransaction, error) {
	if magnitude <= 0 {
		return nil, fmt.Errorf("%w: magnitude must be positive, got %d", ErrInvalidAmount, magnitude)
	}

	amount := magnitude
	if txType.IsDebit() {
		amount = -magnitude
	}

	tx := &CreditTransaction{
		ID:        uuid.New(),
		UserID:    userID,
		Amount:    amount,
		Type:      txType,
		CreatedAt: time.Now().UTC(),
	}
	if err := tx.Validate(); err != nil {
		return nil, err
	}
	return tx, nil
}

// WithExternalPaymentID tags the entry with the gateway payment identifier.
func (t *CreditTransaction) WithExternalPaymentID(id string) *CreditTransaction {
	t.ExternalPaymentID = &id
	return t
}

// WithGenerationID tags the entry with the generation it relates to.
func (t *CreditTransaction) WithGenerationID(id uuid.UUID) *CreditTransaction {
	if id != uuid.Nil {
		t.GenerationID = &id
	}
	return t
}

// WithTaskID tags the entry with the background task it settles.
func (t *CreditTransaction) WithTaskID(id uuid.UUID) *CreditTransaction {
	if id != uuid.Nil {
		t.TaskID = &id
	}
	return t
}

// Validate checks if the CreditTransaction has valid data.
func (t *CreditTransaction) Validate() error {
	if t.ID == uuid.Nil {
		return fmt.Errorf("%w: transaction ID cannot be empty", ErrInvalidID)
	}
	if t.UserID == uuid.Nil {
		return ErrEmptyUserID
	}
	if !t.Type.IsValid() {
		return ErrInvalidTransactionType
	}
	if t.Amount == 0 {
		return fmt.Errorf("%w: amount cannot be zero", ErrInvalidAmount)
	}
	if t.Type.IsDebit() != (t.Amount < 0) {
		return fmt.Errorf("%w: %s amount has wrong sign", ErrInvalidAmount, t.Type)
	}
	return nil
}

// CreditPack is a purchasable bundle of credits.
type CreditPack struct {
	Credits  int64 `json:"credits"`
	PriceRub int64 `json:"price_rub"`
}

// CreditPacks lists the bundles offered for purchase.
var CreditPacks = []CreditPack{
	{Credits: 5, PriceRub: 149},
	{Credits: 15, PriceRub: 349},
	{Credits: 50, PriceRub: 899},
}

// FindCreditPack returns the pack granting the given number of credits.
func FindCreditPack(credits int64) (CreditPack, bool) {
	for _, p := range CreditPacks {
		if p.Credits == credits {
			return p, true
		}
	}
	return CreditPack{}, false
}
