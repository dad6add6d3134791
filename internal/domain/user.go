package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// FreeCreditsOnStart is the welcome grant a user receives on first contact.
const FreeCreditsOnStart = 3

// Common validation errors
var (
	ErrEmptyUserID     = errors.New("user ID cannot be empty")
	ErrEmptyTelegramID = errors.New("telegram ID cannot be empty")
)

// User represents a person talking to the carousel bot.
// CreditBalance is a cached projection of the user's credit transactions
// and is only mutated through the credit ledger.
type User struct {
	ID            uuid.UUID `json:"id"`
	TelegramID    int64     `json:"telegram_id"`
	Username      string    `json:"username,omitempty"`
	FullName      string    `json:"full_name,omitempty"`
	CreditBalance int64     `json:"credit_balance"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// NewUser creates a new User for the given Telegram identity with a zero balance.
// The welcome grant is applied separately by the ledger so that it is recorded
// as a transaction.
func NewUser(telegramID int64, username, fullName string) (*User, error) {
	now := time.Now().UTC()
	user := &User{
		ID:         uuid.New(),
		TelegramID: telegramID,
		Username:   username,
		FullName:   fullName,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := user.Validate(); err != nil {
		return nil, err
	}

	return user, nil
}

// Validate checks if the User has valid data.
func (u *User) Validate() error {
	if u.ID == uuid.Nil {
		return ErrEmptyUserID
	}
	if u.TelegramID == 0 {
		return ErrEmptyTelegramID
	}
	if u.CreditBalance < 0 {
		return ErrNegativeBalance
	}
	return nil
}
