package mocks

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/phrazzld/carouselmaker/internal/domain"
	"github.com/phrazzld/carouselmaker/internal/generation"
)

// SampleSlides returns n slides of copy with hook and CTA types set.
func SampleSlides(n int) []generation.SlideContent {
	slides := make([]generation.SlideContent, n)
	for i := range slides {
		slides[i] = generation.SlideContent{
			Position: i,
			Heading:  fmt.Sprintf("Heading %d", i+1),
			BodyText: fmt.Sprintf("Body text of slide %d", i+1),
			Type:     domain.SlideTypeFor(i, n),
		}
	}
	return slides
}

// MockCopyProvider implements generation.CopyProvider for testing
type MockCopyProvider struct {
	// GenerateSlidesFn allows test cases to mock the GenerateSlides behavior
	GenerateSlidesFn func(ctx context.Context, inputText string, style domain.Style, count int) ([]generation.SlideContent, error)

	// Default response values
	Slides []generation.SlideContent
	Err    error

	mu     sync.Mutex
	counts []int
}

// GenerateSlides implements generation.CopyProvider
func (m *MockCopyProvider) GenerateSlides(
	ctx context.Context,
	inputText string,
	style domain.Style,
	count int,
) ([]generation.SlideContent, error) {
	m.mu.Lock()
	m.counts = append(m.counts, count)
	m.mu.Unlock()

	if m.GenerateSlidesFn != nil {
		return m.GenerateSlidesFn(ctx, inputText, style, count)
	}
	if m.Slides == nil && m.Err == nil {
		return SampleSlides(count), nil
	}
	return append([]generation.SlideContent(nil), m.Slides...), m.Err
}

// Calls returns the requested slide count of every call.
func (m *MockCopyProvider) Calls() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.counts...)
}

// MockImageProvider implements generation.ImageProvider for testing
type MockImageProvider struct {
	// GenerateSlideImageFn allows test cases to mock the GenerateSlideImage behavior
	GenerateSlideImageFn func(ctx context.Context, slide generation.SlideContent, style domain.Style) ([]byte, error)

	// Default response values
	Image []byte
	Err   error

	mu    sync.Mutex
	calls int
}

// GenerateSlideImage implements generation.ImageProvider
func (m *MockImageProvider) GenerateSlideImage(
	ctx context.Context,
	slide generation.SlideContent,
	style domain.Style,
) ([]byte, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if m.GenerateSlideImageFn != nil {
		return m.GenerateSlideImageFn(ctx, slide, style)
	}
	return m.Image, m.Err
}

// CallCount returns how many times GenerateSlideImage was called.
func (m *MockImageProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// RenderCall records one Render invocation.
type RenderCall struct {
	Slide generation.SlideContent
	Style string
	Image []byte
}

// MockRenderer implements generation.Renderer for testing.
// Without RenderFn it returns a fake PNG naming the slide position.
type MockRenderer struct {
	RenderFn func(slide generation.SlideContent, style domain.Style, image []byte) ([]byte, error)

	mu    sync.Mutex
	calls []RenderCall
}

// Render implements generation.Renderer
func (m *MockRenderer) Render(slide generation.SlideContent, style domain.Style, image []byte) ([]byte, error) {
	m.mu.Lock()
	m.calls = append(m.calls, RenderCall{Slide: slide, Style: style.Slug, Image: image})
	m.mu.Unlock()

	if m.RenderFn != nil {
		return m.RenderFn(slide, style, image)
	}
	return []byte(fmt.Sprintf("png-%d", slide.Position)), nil
}

// Calls returns every recorded Render call.
func (m *MockRenderer) Calls() []RenderCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]RenderCall(nil), m.calls...)
}

// MockObjectStore is an in-memory bucket.
type MockObjectStore struct {
	// PutFn replaces the default behavior of Put when set
	PutFn func(ctx context.Context, key string, data []byte, contentType string) (string, error)

	// Now stamps LastModified on Put; defaults to time.Now
	Now func() time.Time

	mu       sync.Mutex
	objects  map[string][]byte
	modified map[string]time.Time
}

// NewMockObjectStore creates an empty bucket.
func NewMockObjectStore() *MockObjectStore {
	return &MockObjectStore{objects: make(map[string][]byte)}
}

// Put implements generation.ObjectStore
func (m *MockObjectStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if m.PutFn != nil {
		return m.PutFn(ctx, key, data, contentType)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store(key, data)
	return key, nil
}

// Seed stores an object with an explicit modification time.
func (m *MockObjectStore) Seed(key string, data []byte, modified time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store(key, data)
	m.modified[key] = modified
}

func (m *MockObjectStore) store(key string, data []byte) {
	if m.objects == nil {
		m.objects = make(map[string][]byte)
	}
	if m.modified == nil {
		m.modified = make(map[string]time.Time)
	}
	now := time.Now
	if m.Now != nil {
		now = m.Now
	}
	m.objects[key] = append([]byte(nil), data...)
	m.modified[key] = now().UTC()
}

// List returns the objects under prefix ordered by key.
func (m *MockObjectStore) List(_ context.Context, prefix string) ([]generation.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []generation.ObjectInfo
	for key, data := range m.objects {
		if strings.HasPrefix(key, prefix) {
			out = append(out, generation.ObjectInfo{
				Key:          key,
				Size:         int64(len(data)),
				LastModified: m.modified[key],
			})
		}
	}
	slices.SortFunc(out, func(a, b generation.ObjectInfo) int { return strings.Compare(a.Key, b.Key) })
	return out, nil
}

// Delete removes key. Deleting a missing key is not an error.
func (m *MockObjectStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	delete(m.modified, key)
	return nil
}

// Objects returns a copy of the stored objects.
func (m *MockObjectStore) Objects() map[string][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return maps.Clone(m.objects)
}

// SentMessage records one text message or status edit.
type SentMessage struct {
	ChatID    int64
	MessageID int
	Text      string
}

// MockDelivery implements generation.Delivery and records every call.
type MockDelivery struct {
	// Errors returned by the matching methods
	SendMediaGroupErr error
	SendMessageErr    error
	EditMessageErr    error
	DeleteMessageErr  error

	mu          sync.Mutex
	mediaGroups [][][]byte
	messages    []SentMessage
	edits       []SentMessage
	deletes     []SentMessage
}

// SendMediaGroup implements generation.Delivery
func (m *MockDelivery) SendMediaGroup(_ context.Context, _ int64, images [][]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SendMediaGroupErr != nil {
		return m.SendMediaGroupErr
	}
	m.mediaGroups = append(m.mediaGroups, images)
	return nil
}

// SendMessage implements generation.Delivery
func (m *MockDelivery) SendMessage(_ context.Context, chatID int64, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, SentMessage{ChatID: chatID, Text: text})
	return m.SendMessageErr
}

// EditMessage implements generation.Delivery
func (m *MockDelivery) EditMessage(_ context.Context, chatID int64, messageID int, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edits = append(m.edits, SentMessage{ChatID: chatID, MessageID: messageID, Text: text})
	return m.EditMessageErr
}

// DeleteMessage implements generation.Delivery
func (m *MockDelivery) DeleteMessage(_ context.Context, chatID int64, messageID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes = append(m.deletes, SentMessage{ChatID: chatID, MessageID: messageID})
	return m.DeleteMessageErr
}

// MediaGroups returns every delivered media group.
func (m *MockDelivery) MediaGroups() [][][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][][]byte(nil), m.mediaGroups...)
}

// Messages returns every text message sent.
func (m *MockDelivery) Messages() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentMessage(nil), m.messages...)
}

// Edits returns every status message edit.
func (m *MockDelivery) Edits() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentMessage(nil), m.edits...)
}

// Deletes returns every deleted message.
func (m *MockDelivery) Deletes() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentMessage(nil), m.deletes...)
}
