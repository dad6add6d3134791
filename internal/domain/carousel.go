package domain

import (
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Generation limits
const (
	MaxInputTextLength    = 5000
	MinSlidesPerCarousel  = 3
	MaxSlidesPerCarousel  = 10
	MaxErrorMessageLength = 500
)

// GenerationStatus is the state of a carousel generation attempt.
type GenerationStatus string

// Generation states in pipeline order. Failed is reachable from any
// non-terminal state.
const (
	GenerationStatusPending         GenerationStatus = "pending"
	GenerationStatusCopywriting     GenerationStatus = "copywriting"
	GenerationStatusImageGeneration GenerationStatus = "image_generation"
	GenerationStatusRendering       GenerationStatus = "rendering"
	GenerationStatusUploading       GenerationStatus = "uploading"
	GenerationStatusSending         GenerationStatus = "sending"
	GenerationStatusCompleted       GenerationStatus = "completed"
	GenerationStatusFailed          GenerationStatus = "failed"
)

// statusOrder ranks the forward path. Failed is handled separately.
var statusOrder = map[GenerationStatus]int{
	GenerationStatusPending:         0,
	GenerationStatusCopywriting:     1,
	GenerationStatusImageGeneration: 2,
	GenerationStatusRendering:       3,
	GenerationStatusUploading:       4,
	GenerationStatusSending:         5,
	GenerationStatusCompleted:       6,
}

// AllGenerationStatuses lists every status, forward path first.
var AllGenerationStatuses = []GenerationStatus{
	GenerationStatusPending,
	GenerationStatusCopywriting,
	GenerationStatusImageGeneration,
	GenerationStatusRendering,
	GenerationStatusUploading,
	GenerationStatusSending,
	GenerationStatusCompleted,
	GenerationStatusFailed,
}

// IsValid reports whether s is a known status.
func (s GenerationStatus) IsValid() bool {
	if s == GenerationStatusFailed {
		return true
	}
	_, ok := statusOrder[s]
	return ok
}

// IsTerminal reports whether no further transitions are allowed.
func (s GenerationStatus) IsTerminal() bool {
	return s == GenerationStatusCompleted || s == GenerationStatusFailed
}

// CanTransitionTo reports whether moving from s to next keeps the
// state machine strictly forward. Only the immediate successor or Failed
// is allowed.
func (s GenerationStatus) CanTransitionTo(next GenerationStatus) bool {
	if !s.IsValid() || !next.IsValid() || s.IsTerminal() {
		return false
	}
	if next == GenerationStatusFailed {
		return true
	}
	return statusOrder[next] == statusOrder[s]+1
}

// Common validation errors for CarouselGeneration
var (
	ErrEmptyGenerationID = errors.New("generation ID cannot be empty")
	ErrEmptyTaskID       = errors.New("task ID cannot be empty")
	ErrEmptyChatID       = errors.New("chat ID cannot be empty")
)

// CarouselGeneration is one request attempt. It is the audit trail for the
// attempt and, through TaskID, the idempotency key for task re-delivery.
type CarouselGeneration struct {
	ID           uuid.UUID        `json:"id"`
	UserID       uuid.UUID        `json:"user_id"`
	ChatID       int64            `json:"chat_id"`
	InputText    string           `json:"input_text"`
	StyleSlug    string           `json:"style_slug"`
	Status       GenerationStatus `json:"status"`
	SlideCount   int              `json:"slide_count"`
	TaskID       uuid.UUID        `json:"task_id"`
	ErrorMessage string           `json:"error_message,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// NewCarouselGeneration creates a PENDING generation after validating the input.
func NewCarouselGeneration(
	userID uuid.UUID,
	chatID int64,
	inputText, styleSlug string,
	taskID uuid.UUID,
) (*CarouselGeneration, error) {
	now := time.Now().UTC()
	g := &CarouselGeneration{
		ID:        uuid.New(),
		UserID:    userID,
		ChatID:    chatID,
		InputText: inputText,
		StyleSlug: styleSlug,
		Status:    GenerationStatusPending,
		TaskID:    taskID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// Validate checks if the CarouselGeneration has valid data.
func (g *CarouselGeneration) Validate() error {
	if g.ID == uuid.Nil {
		return ErrEmptyGenerationID
	}
	if g.UserID == uuid.Nil {
		return ErrEmptyUserID
	}
	if g.TaskID == uuid.Nil {
		return ErrEmptyTaskID
	}
	if g.ChatID == 0 {
		return ErrEmptyChatID
	}
	if err := ValidateInput(g.InputText, g.StyleSlug); err != nil {
		return err
	}
	if !g.Status.IsValid() {
		return ErrInvalidStatus
	}
	return nil
}

// ValidateInput checks the user-supplied text and style of a carousel request.
// All returned errors wrap ErrValidation.
func ValidateInput(inputText, styleSlug string) error {
	if inputText == "" {
		return fmt.Errorf("%w: %w", ErrValidation, ErrEmptyContent)
	}
	if n := utf8.RuneCountInString(inputText); n > MaxInputTextLength {
		return fmt.Errorf("%w: %w: %d characters exceeds maximum of %d",
			ErrValidation, ErrInputTooLong, n, MaxInputTextLength)
	}
	if _, ok := LookupStyle(styleSlug); !ok {
		return fmt.Errorf("%w: %w: %q", ErrValidation, ErrUnknownStyle, styleSlug)
	}
	return nil
}

// EstimateSlideCount derives the requested slide count from the input length,
// clamped to [MinSlidesPerCarousel, MaxSlidesPerCarousel].
func EstimateSlideCount(inputText string) int {
	n := utf8.RuneCountInString(inputText)/500 + 3
	return min(max(n, MinSlidesPerCarousel), MaxSlidesPerCarousel)
}

// TruncateErrorMessage shortens msg to MaxErrorMessageLength runes.
func TruncateErrorMessage(msg string) string {
	if utf8.RuneCountInString(msg) <= MaxErrorMessageLength {
		return msg
	}
	runes := []rune(msg)
	return string(runes[:MaxErrorMessageLength])
}
