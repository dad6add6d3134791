package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type samplePayload struct {
	UserID uuid.UUID `json:"user_id"`
	Style  string    `json:"style"`
}

func TestNewTaskRequestEvent(t *testing.T) {
	t.Parallel()

	payload := samplePayload{UserID: uuid.New(), Style: "tech"}

	event, err := NewTaskRequestEvent("carousel_generation", payload)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, event.ID)
	assert.Equal(t, "carousel_generation", event.Type)
	assert.WithinDuration(t, time.Now(), event.CreatedAt, 2*time.Second)

	var decoded samplePayload
	require.NoError(t, json.Unmarshal(event.Payload, &decoded))
	assert.Equal(t, payload, decoded)
}

func TestNewTaskRequestEventOptions(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	event, err := NewTaskRequestEvent("carousel_generation", struct{}{}, WithID(id), WithCreatedAt(at))
	require.NoError(t, err)
	assert.Equal(t, id, event.ID)
	assert.Equal(t, at, event.CreatedAt)
}

func TestNewTaskRequestEventErrors(t *testing.T) {
	t.Parallel()

	_, err := NewTaskRequestEvent("", struct{}{})
	assert.ErrorIs(t, err, ErrEmptyEventType)

	_, err = NewTaskRequestEvent("bad", make(chan int))
	assert.Error(t, err)
}

func TestDecodePayload(t *testing.T) {
	t.Parallel()

	want := samplePayload{UserID: uuid.New(), Style: "minimalist"}
	event, err := NewTaskRequestEvent("carousel_generation", want)
	require.NoError(t, err)

	got, err := DecodePayload[samplePayload](event)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	event.Payload = json.RawMessage(`{"user_id":`)
	_, err = DecodePayload[samplePayload](event)
	assert.Error(t, err)
}
