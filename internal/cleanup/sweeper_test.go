package cleanup_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/phrazzld/carouselmaker/internal/cleanup"
	"github.com/phrazzld/carouselmaker/internal/domain"
	"github.com/phrazzld/carouselmaker/internal/generation"
	"github.com/phrazzld/carouselmaker/internal/metrics"
	"github.com/phrazzld/carouselmaker/internal/mocks"
	"github.com/phrazzld/carouselmaker/internal/platform/redisqueue"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	objects *mocks.MockObjectStore
	db      *mocks.MemoryDB
	metrics *metrics.Metrics
}

func newFixture() *fixture {
	return &fixture{
		objects: mocks.NewMockObjectStore(),
		db:      mocks.NewMemoryDB(),
		metrics: metrics.NewUnregistered(),
	}
}

// addSlide stores an object uploaded at ts and a slide row pointing at it.
func (f *fixture) addSlide(t *testing.T, ts time.Time) string {
	t.Helper()
	genID := uuid.New()
	key := generation.ObjectKey("carousels", uuid.New(), genID, ts.Unix(), 0)
	f.objects.Seed(key, []byte("png-bytes"), ts)

	slide, err := domain.NewSlide(genID, 0, "Heading", "Body", domain.SlideTypeHook, key)
	require.NoError(t, err)
	require.NoError(t, f.db.Slides().Create(context.Background(), slide))
	return key
}

func (f *fixture) sweeper(t *testing.T, opts ...cleanup.Option) *cleanup.Sweeper {
	t.Helper()
	opts = append([]cleanup.Option{cleanup.WithClock(func() time.Time { return now })}, opts...)
	s, err := cleanup.NewSweeper(f.objects, f.db.Slides(),
		cleanup.Config{Prefix: "carousels", Retention: 30 * 24 * time.Hour},
		f.metrics, discardLogger(), opts...)
	require.NoError(t, err)
	return s
}

func TestNewSweeperValidation(t *testing.T) {
	t.Parallel()

	_, err := cleanup.NewSweeper(nil, nil, cleanup.Config{Retention: time.Hour}, nil, nil)
	assert.Error(t, err)

	_, err = cleanup.NewSweeper(mocks.NewMockObjectStore(), nil, cleanup.Config{}, nil, nil)
	assert.Error(t, err)
}

func TestSweepDeletesExpiredObjects(t *testing.T) {
	t.Parallel()

	f := newFixture()
	expired := f.addSlide(t, now.Add(-31*24*time.Hour))
	fresh := f.addSlide(t, now.Add(-2*24*time.Hour))

	report, err := f.sweeper(t).Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Scanned)
	assert.Equal(t, 1, report.Deleted)
	assert.Equal(t, 1, report.KeysCleared)
	assert.Equal(t, int64(len("png-bytes")), report.BytesRemoved)

	stored := f.objects.Objects()
	assert.NotContains(t, stored, expired)
	assert.Contains(t, stored, fresh)

	for _, row := range f.db.SlideRows() {
		if row.StorageKey == nil {
			continue
		}
		assert.Equal(t, fresh, *row.StorageKey)
	}
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.CleanupDeleted), 0)
}

func TestSweepFallsBackToModificationTime(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.objects.Seed("carousels/legacy/old.png", []byte("x"), now.Add(-90*24*time.Hour))
	f.objects.Seed("carousels/legacy/new.png", []byte("x"), now.Add(-time.Hour))
	f.objects.Seed("other/untouched.png", []byte("x"), now.Add(-90*24*time.Hour))

	report, err := f.sweeper(t).Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Scanned)
	assert.Equal(t, 1, report.Deleted)
	assert.Zero(t, report.KeysCleared)

	stored := f.objects.Objects()
	assert.NotContains(t, stored, "carousels/legacy/old.png")
	assert.Contains(t, stored, "carousels/legacy/new.png")
	assert.Contains(t, stored, "other/untouched.png")
}

func TestSweepNothingExpired(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.addSlide(t, now.Add(-time.Minute))

	report, err := f.sweeper(t).Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, cleanup.Report{Scanned: 1}, report)
}

type failingDeletes struct {
	*mocks.MockObjectStore
	fail string
}

func (f failingDeletes) Delete(ctx context.Context, key string) error {
	if key == f.fail {
		return errors.New("access denied")
	}
	return f.MockObjectStore.Delete(ctx, key)
}

func TestSweepContinuesPastDeleteFailures(t *testing.T) {
	t.Parallel()

	f := newFixture()
	first := f.addSlide(t, now.Add(-40*24*time.Hour))
	second := f.addSlide(t, now.Add(-50*24*time.Hour))

	s, err := cleanup.NewSweeper(failingDeletes{f.objects, first}, f.db.Slides(),
		cleanup.Config{Prefix: "carousels", Retention: 24 * time.Hour},
		f.metrics, discardLogger(), cleanup.WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	report, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Deleted)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.KeysCleared)

	stored := f.objects.Objects()
	assert.Contains(t, stored, first)
	assert.NotContains(t, stored, second)
}

func TestSweepSkipsWhenLockHeld(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	f := newFixture()
	expired := f.addSlide(t, now.Add(-60*24*time.Hour))

	holder := redisqueue.NewLock(rdb, "carouselmaker:cleanup", time.Minute)
	require.NoError(t, holder.Acquire(context.Background()))

	s := f.sweeper(t, cleanup.WithLocker(redisqueue.NewLock(rdb, "carouselmaker:cleanup", time.Minute)))

	_, err := s.Sweep(context.Background())
	require.ErrorIs(t, err, cleanup.ErrSkipped)
	assert.Contains(t, f.objects.Objects(), expired)

	require.NoError(t, holder.Release(context.Background()))

	report, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Deleted)
	assert.False(t, mr.Exists("carouselmaker:cleanup"), "lock is released after the sweep")
}

func TestRunStopsWithContext(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.addSlide(t, now.Add(-60*24*time.Hour))
	s := f.sweeper(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx, time.Hour)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(f.objects.Objects()) == 0 }, time.Second, 10*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}
