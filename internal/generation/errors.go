package generation

import "errors"

// Common errors returned by the generation package
var (
	// ErrGenerationFailed wraps the cause of a generation that ended FAILED.
	// The charge has been refunded when this error is returned.
	ErrGenerationFailed = errors.New("carousel generation failed")

	// ErrInvalidResponse is returned when a provider response cannot be parsed or is malformed
	ErrInvalidResponse = errors.New("invalid response from language model")

	// ErrContentBlocked is returned when the provider blocks the content due to safety filters
	ErrContentBlocked = errors.New("content blocked by language model safety filters")

	// ErrTransientFailure is returned for temporary errors that might resolve on retry
	ErrTransientFailure = errors.New("transient error during generation")

	// ErrInvalidConfig is returned when a provider or orchestrator configuration is invalid
	ErrInvalidConfig = errors.New("invalid generator configuration")

	// ErrEmptyCopy is returned when the copy provider produced no slides.
	ErrEmptyCopy = errors.New("copy provider returned no slides")

	// ErrNoImage is carried by a Fallback image result.
	ErrNoImage = errors.New("no image generated")
)

// FailureMessage is sent to the user after a failed generation was refunded.
const FailureMessage = "Sorry, carousel generation failed. Your credits have been refunded."
