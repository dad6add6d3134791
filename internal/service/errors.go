package service

import (
	"errors"
	"fmt"

	"github.com/phrazzld/carouselmaker/internal/ledger"
	"github.com/phrazzld/carouselmaker/internal/store"
)

// Common service errors - sentinel errors used across service implementations.
// Callers check for them with errors.Is(); the API layer maps them to HTTP
// status codes.
var (
	// ErrUserNotFound indicates that no user is registered for the given
	// Telegram ID. API layer should map this to HTTP 404 Not Found.
	ErrUserNotFound = errors.New("user not found")

	// ErrInsufficientCredits indicates the user cannot pay for a generation.
	// API layer should map this to HTTP 402 Payment Required.
	ErrInsufficientCredits = errors.New("insufficient credits")

	// ErrUnknownPack indicates a payment for a credit amount that is not on sale.
	ErrUnknownPack = errors.New("unknown credit pack")

	// ErrDuplicatePayment indicates the payment was already credited.
	// API layer should map this to HTTP 409 Conflict.
	ErrDuplicatePayment = errors.New("payment already credited")
)

// ServiceError wraps errors from a service with the operation that failed.
type ServiceError struct {
	// Service is the name of the service (e.g., "carousel", "payment")
	Service string
	// Operation is the operation that failed (e.g., "request", "credit")
	Operation string
	// Message is a human-readable description of the error
	Message string
	// Err is the underlying error that caused the failure
	Err error
}

// Error implements the error interface for ServiceError.
func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s service %s failed: %s: %v", e.Service, e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("%s service %s failed: %s", e.Service, e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// NewServiceError creates a new ServiceError.
// Known sentinel errors are returned directly without wrapping, and store
// and ledger sentinels are mapped to their service-level equivalents.
func NewServiceError(service, operation, message string, err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, ErrUserNotFound), errors.Is(err, store.ErrUserNotFound):
		return ErrUserNotFound
	case errors.Is(err, ErrDuplicatePayment), errors.Is(err, ledger.ErrDuplicatePayment):
		return ErrDuplicatePayment
	case errors.Is(err, ErrInsufficientCredits), errors.Is(err, ErrUnknownPack):
		return err
	}

	return &ServiceError{
		Service:   service,
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}
