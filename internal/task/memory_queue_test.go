package task

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

func newTestEnvelope() Envelope {
	return Envelope{
		TaskID:     uuid.New(),
		Type:       "test",
		Payload:    []byte(`{"n":1}`),
		EnqueuedAt: time.Now().UTC(),
	}
}

func TestMemoryQueue_Enqueue(t *testing.T) {
	t.Parallel()

	q := NewMemoryQueue(2, setupTestLogger())
	ctx := context.Background()

	env1, env2 := newTestEnvelope(), newTestEnvelope()
	require.NoError(t, q.Enqueue(ctx, env1))
	require.NoError(t, q.Enqueue(ctx, env2))

	err := q.Enqueue(ctx, newTestEnvelope())
	assert.ErrorIs(t, err, ErrQueueFull)

	ch := q.GetChannel()
	assert.Equal(t, env1.TaskID, (<-ch).TaskID)
	assert.Equal(t, env2.TaskID, (<-ch).TaskID)
}

func TestMemoryQueue_Close(t *testing.T) {
	t.Parallel()

	q := NewMemoryQueue(1, setupTestLogger())
	q.Close()
	q.Close()

	assert.ErrorIs(t, q.Enqueue(context.Background(), newTestEnvelope()), ErrQueueClosed)
	assert.ErrorIs(t, q.EnqueueAfter(context.Background(), newTestEnvelope(), time.Second), ErrQueueClosed)

	_, ok := <-q.GetChannel()
	assert.False(t, ok, "channel should be closed")
}

func TestMemoryQueue_EnqueueAfter(t *testing.T) {
	t.Parallel()

	q := NewMemoryQueue(1, setupTestLogger())
	env := newTestEnvelope().Retry()

	start := time.Now()
	require.NoError(t, q.EnqueueAfter(context.Background(), env, 20*time.Millisecond))
	assert.Empty(t, q.GetChannel(), "delayed envelope must not be visible yet")

	select {
	case got := <-q.GetChannel():
		assert.Equal(t, env.TaskID, got.TaskID)
		assert.Equal(t, 1, got.Attempt)
		assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	case <-time.After(time.Second):
		t.Fatal("delayed envelope was never enqueued")
	}
}

func TestMemoryQueue_CloseDiscardsDelayed(t *testing.T) {
	t.Parallel()

	q := NewMemoryQueue(1, setupTestLogger())
	require.NoError(t, q.EnqueueAfter(context.Background(), newTestEnvelope(), 10*time.Millisecond))
	q.Close()

	time.Sleep(30 * time.Millisecond)
	_, ok := <-q.GetChannel()
	assert.False(t, ok)
}

func TestMemoryQueue_AckIsNoop(t *testing.T) {
	t.Parallel()

	q := NewMemoryQueue(1, nil)
	assert.NoError(t, q.Ack(context.Background(), newTestEnvelope()))
}

func TestEnvelope_Retry(t *testing.T) {
	t.Parallel()

	env := newTestEnvelope()
	env.Raw = []byte("raw")

	next := env.Retry()

	assert.Equal(t, env.TaskID, next.TaskID)
	assert.Equal(t, 1, next.Attempt)
	assert.Nil(t, next.Raw)
	assert.Zero(t, env.Attempt, "original must be unchanged")
}

func TestRecord_Envelope(t *testing.T) {
	t.Parallel()

	rec := Record{ID: uuid.New(), Type: "test", Payload: []byte(`{}`), Attempts: 2}
	env := rec.Envelope()

	assert.Equal(t, rec.ID, env.TaskID)
	assert.Equal(t, 2, env.Attempt)
	assert.JSONEq(t, `{}`, string(env.Payload))
}
