package generation

import (
	"context"
	"time"

	"github.com/phrazzld/carouselmaker/internal/domain"
)

// SlideContent is the copy for one slide as produced by a CopyProvider.
type SlideContent struct {
	Position int              `json:"position"`
	Heading  string           `json:"heading"`
	BodyText string           `json:"body_text"`
	Type     domain.SlideType `json:"slide_type"`
}

// CopyProvider writes the text of every slide in one call.
type CopyProvider interface {
	GenerateSlides(ctx context.Context, inputText string, style domain.Style, count int) ([]SlideContent, error)
}

// ImageProvider generates a background image for a slide.
// A nil image and a non-nil error both count as a failed attempt.
type ImageProvider interface {
	GenerateSlideImage(ctx context.Context, slide SlideContent, style domain.Style) ([]byte, error)
}

// Renderer composes a slide into a PNG. image may be nil.
type Renderer interface {
	Render(slide SlideContent, style domain.Style, image []byte) ([]byte, error)
}

// ObjectStore persists rendered slides and returns the stored key.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// Delivery is the conversational front-end the user talks to.
type Delivery interface {
	SendMediaGroup(ctx context.Context, chatID int64, images [][]byte) error
	SendMessage(ctx context.Context, chatID int64, text string) error
	EditMessage(ctx context.Context, chatID int64, messageID int, text string) error
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
}
