package gemini

import "errors"

// Error definitions for the gemini package.
var (
	// ErrEmptyInputText is returned when copy is requested for empty text.
	ErrEmptyInputText = errors.New("input text cannot be empty")

	// ErrInvalidSlideCount is returned when fewer than one slide is requested.
	ErrInvalidSlideCount = errors.New("slide count must be positive")
)
