// Package domain defines the core business entities and errors.
package domain

import "errors"

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity or request fails validation.
	// This is often wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidID is returned when an ID is malformed or invalid.
	ErrInvalidID = errors.New("invalid ID")

	// ErrEmptyContent is returned when required content is empty.
	ErrEmptyContent = errors.New("content cannot be empty")

	// ErrInputTooLong is returned when carousel input text exceeds MaxInputTextLength.
	ErrInputTooLong = errors.New("input text too long")

	// ErrUnknownStyle is returned when a style slug is not in the style registry.
	ErrUnknownStyle = errors.New("unknown style")

	// ErrInvalidStatus is returned when a generation status is not valid.
	ErrInvalidStatus = errors.New("invalid generation status")

	// ErrInvalidTransition is returned when a status change would move a
	// generation backwards or out of a terminal state.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrInvalidTransactionType is returned when a credit transaction type is not valid.
	ErrInvalidTransactionType = errors.New("invalid transaction type")

	// ErrInvalidAmount is returned when a credit amount has the wrong sign for its type.
	ErrInvalidAmount = errors.New("invalid credit amount")

	// ErrNegativeBalance is returned when an entity would carry a negative balance.
	ErrNegativeBalance = errors.New("credit balance cannot be negative")
)
