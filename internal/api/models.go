package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/carouselmaker/internal/domain"
)

// RegisterUserRequest is sent by the bot on a user's first message.
type RegisterUserRequest struct {
	TelegramID int64  `json:"telegram_id" validate:"required,gt=0"`
	Username   string `json:"username"    validate:"max=64"`
	FullName   string `json:"full_name"   validate:"max=256"`
}

// UserResponse describes a registered user.
type UserResponse struct {
	ID         uuid.UUID `json:"id"`
	TelegramID int64     `json:"telegram_id"`
	Username   string    `json:"username,omitempty"`
	Balance    int64     `json:"balance"`
	Created    bool      `json:"created"`
	CreatedAt  time.Time `json:"created_at"`
}

func userToResponse(u *domain.User, created bool) UserResponse {
	return UserResponse{
		ID:         u.ID,
		TelegramID: u.TelegramID,
		Username:   u.Username,
		Balance:    u.CreditBalance,
		Created:    created,
		CreatedAt:  u.CreatedAt,
	}
}

// CreateGenerationRequest asks for a new carousel. Text and style are
// checked against the domain rules by the service.
type CreateGenerationRequest struct {
	TelegramID      int64  `json:"telegram_id"       validate:"required,gt=0"`
	ChatID          int64  `json:"chat_id"           validate:"required"`
	InputText       string `json:"input_text"        validate:"required"`
	Style           string `json:"style"`
	StatusMessageID int    `json:"status_message_id" validate:"gte=0"`
}

// PaymentWebhookRequest is the payment gateway callback.
type PaymentWebhookRequest struct {
	Event      string `json:"event"       validate:"required"`
	PaymentID  string `json:"payment_id"  validate:"required,max=128"`
	TelegramID int64  `json:"telegram_id" validate:"required,gt=0"`
	Credits    int64  `json:"credits"     validate:"required,gt=0"`
}

// GrantRequest credits a user on behalf of an operator.
type GrantRequest struct {
	Amount int64 `json:"amount" validate:"required,gt=0,lte=10000"`
}

// StatusResponse is the body of health and webhook acknowledgements.
type StatusResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}
