package task

import (
	"errors"
	"fmt"
)

// Common errors returned by the task package
var (
	ErrQueueClosed     = errors.New("task queue is closed")
	ErrQueueFull       = errors.New("task queue is full")
	ErrUnknownTaskType = errors.New("unknown task type")
	ErrInvalidPayload  = errors.New("invalid task payload")

	// ErrPermanent marks an execution error that retrying cannot fix.
	ErrPermanent = errors.New("permanent task failure")
)

// Permanent wraps err so the runner fails the task without retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}
