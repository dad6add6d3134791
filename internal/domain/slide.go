package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Slide canvas size in pixels (portrait feed format).
const (
	SlideWidth  = 1080
	SlideHeight = 1350
)

// SlideType is the template kind used to render a slide.
type SlideType string

// Possible slide types
const (
	SlideTypeHook    SlideType = "hook"
	SlideTypeContent SlideType = "content"
	SlideTypeCTA     SlideType = "cta"
)

// SlideTypeFor returns the template kind for a zero-based position in a
// carousel of total slides. The first slide is the hook, the last the CTA.
func SlideTypeFor(position, total int) SlideType {
	switch {
	case position == 0:
		return SlideTypeHook
	case position == total-1:
		return SlideTypeCTA
	default:
		return SlideTypeContent
	}
}

// Common validation errors for Slide
var (
	ErrEmptySlideID     = errors.New("slide ID cannot be empty")
	ErrEmptyCarouselID  = errors.New("slide carousel ID cannot be empty")
	ErrInvalidSlideType = errors.New("invalid slide type")
	ErrNegativePosition = errors.New("slide position cannot be negative")
)

// Slide is one rendered and uploaded output image of a carousel.
// It is immutable once created, except that StorageKey is cleared when the
// stored object expires.
type Slide struct {
	ID         uuid.UUID `json:"id"`
	CarouselID uuid.UUID `json:"carousel_id"`
	Position   int       `json:"position"`
	Heading    string    `json:"heading"`
	BodyText   string    `json:"body_text"`
	SlideType  SlideType `json:"slide_type"`
	StorageKey *string   `json:"storage_key,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewSlide creates a Slide for an uploaded object.
func NewSlide(
	carouselID uuid.UUID,
	position int,
	heading, body string,
	slideType SlideType,
	storageKey string,
) (*Slide, error) {
	s := &Slide{
		ID:         uuid.New(),
		CarouselID: carouselID,
		Position:   position,
		Heading:    heading,
		BodyText:   body,
		SlideType:  slideType,
		StorageKey: &storageKey,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks if the Slide has valid data.
func (s *Slide) Validate() error {
	if s.ID == uuid.Nil {
		return ErrEmptySlideID
	}
	if s.CarouselID == uuid.Nil {
		return ErrEmptyCarouselID
	}
	if s.Position < 0 {
		return ErrNegativePosition
	}
	switch s.SlideType {
	case SlideTypeHook, SlideTypeContent, SlideTypeCTA:
	default:
		return ErrInvalidSlideType
	}
	return nil
}
