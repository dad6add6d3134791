package generation_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/phrazzld/carouselmaker/internal/domain"
	"github.com/phrazzld/carouselmaker/internal/generation"
	"github.com/phrazzld/carouselmaker/internal/metrics"
	"github.com/phrazzld/carouselmaker/internal/mocks"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func techStyle(t *testing.T) domain.Style {
	t.Helper()
	style, ok := domain.LookupStyle(domain.StyleTech)
	require.True(t, ok)
	return style
}

func newRequester(
	t *testing.T,
	provider generation.ImageProvider,
	cfg generation.ImageRequesterConfig,
) (*generation.ImageRequester, *metrics.Metrics) {
	t.Helper()
	m := metrics.NewUnregistered()
	r, err := generation.NewImageRequester(provider, cfg, m, discardLogger())
	require.NoError(t, err)
	return r, m
}

func TestNewImageRequesterValidation(t *testing.T) {
	t.Parallel()

	provider := &mocks.MockImageProvider{}
	tests := []struct {
		name     string
		provider generation.ImageProvider
		cfg      generation.ImageRequesterConfig
	}{
		{"nil provider", nil, generation.ImageRequesterConfig{MaxConcurrency: 1}},
		{"zero concurrency", provider, generation.ImageRequesterConfig{MaxConcurrency: 0}},
		{"negative retries", provider, generation.ImageRequesterConfig{MaxConcurrency: 1, MaxRetries: -1}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := generation.NewImageRequester(tc.provider, tc.cfg, nil, nil)
			assert.ErrorIs(t, err, generation.ErrInvalidConfig)
		})
	}
}

func TestRequestImagesNeverExceedsMaxConcurrency(t *testing.T) {
	t.Parallel()

	var inFlight, peak atomic.Int32
	provider := &mocks.MockImageProvider{
		GenerateSlideImageFn: func(ctx context.Context, _ generation.SlideContent, _ domain.Style) ([]byte, error) {
			n := inFlight.Add(1)
			defer inFlight.Add(-1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			return []byte("img"), nil
		},
	}
	r, m := newRequester(t, provider, generation.ImageRequesterConfig{MaxConcurrency: 2})

	var (
		mu    sync.Mutex
		ready []int
	)
	results := r.RequestImages(context.Background(), mocks.SampleSlides(10), techStyle(t),
		func(_ context.Context, n, total int) {
			mu.Lock()
			defer mu.Unlock()
			assert.Equal(t, 10, total)
			ready = append(ready, n)
		})

	require.Len(t, results, 10)
	for i, res := range results {
		assert.Equal(t, generation.OutcomeSucceeded, res.Outcome)
		assert.Equal(t, i, res.Index)
		assert.Equal(t, []byte("img"), res.Image)
	}
	assert.Equal(t, int32(2), peak.Load(), "both permits are used in parallel")
	assert.Equal(t, 10, provider.CallCount())
	assert.ElementsMatch(t, []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, ready)
	assert.Zero(t, testutil.ToFloat64(m.ImagesInFlight))
}

func TestRequestImagesRetriesWithBackoff(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	provider := &mocks.MockImageProvider{
		GenerateSlideImageFn: func(context.Context, generation.SlideContent, domain.Style) ([]byte, error) {
			if calls.Add(1) < 3 {
				return nil, errors.New("rate limited")
			}
			return []byte("img"), nil
		},
	}
	r, m := newRequester(t, provider, generation.ImageRequesterConfig{
		MaxConcurrency: 1,
		MaxRetries:     2,
		RetryBackoff:   5 * time.Millisecond,
	})

	start := time.Now()
	results := r.RequestImages(context.Background(), mocks.SampleSlides(1), techStyle(t), nil)

	require.Len(t, results, 1)
	assert.Equal(t, generation.OutcomeSucceeded, results[0].Outcome)
	assert.Equal(t, 3, results[0].Attempts)
	// linear backoff: 5ms after the first attempt, 10ms after the second
	assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
	assert.Equal(t, float64(2), testutil.ToFloat64(m.ImageRetries))
	assert.Zero(t, testutil.ToFloat64(m.ImageFallbacks))
}

func TestRequestImagesFallsBackWhenRetriesExhausted(t *testing.T) {
	t.Parallel()

	// An empty image counts as a failed attempt just like an error.
	provider := &mocks.MockImageProvider{}
	r, m := newRequester(t, provider, generation.ImageRequesterConfig{
		MaxConcurrency: 2,
		MaxRetries:     2,
		RetryBackoff:   time.Millisecond,
	})

	var progressCalls atomic.Int32
	results := r.RequestImages(context.Background(), mocks.SampleSlides(2), techStyle(t),
		func(context.Context, int, int) { progressCalls.Add(1) })

	for _, res := range results {
		assert.Equal(t, generation.OutcomeFallback, res.Outcome)
		assert.Nil(t, res.Image)
		assert.ErrorIs(t, res.Err, generation.ErrNoImage)
		assert.False(t, res.IsFatal())
	}
	assert.Equal(t, 6, provider.CallCount())
	assert.Equal(t, int32(2), progressCalls.Load())
	assert.Equal(t, float64(2), testutil.ToFloat64(m.ImageFallbacks))
}

func TestRequestImagesCanceledContext(t *testing.T) {
	t.Parallel()

	provider := &mocks.MockImageProvider{Image: []byte("img")}
	r, _ := newRequester(t, provider, generation.ImageRequesterConfig{MaxConcurrency: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := r.RequestImages(ctx, mocks.SampleSlides(3), techStyle(t), nil)

	for _, res := range results {
		assert.Equal(t, generation.OutcomeFallback, res.Outcome)
		assert.ErrorIs(t, res.Err, context.Canceled)
	}
	assert.Zero(t, provider.CallCount())
}

func TestRequestImagesSharesPermitsAcrossCalls(t *testing.T) {
	t.Parallel()

	var inFlight, peak atomic.Int32
	provider := &mocks.MockImageProvider{
		GenerateSlideImageFn: func(context.Context, generation.SlideContent, domain.Style) ([]byte, error) {
			n := inFlight.Add(1)
			defer inFlight.Add(-1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			return []byte("img"), nil
		},
	}
	r, _ := newRequester(t, provider, generation.ImageRequesterConfig{MaxConcurrency: 2})

	style := techStyle(t)
	var wg sync.WaitGroup
	for range 3 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results := r.RequestImages(context.Background(), mocks.SampleSlides(4), style, nil)
			for _, res := range results {
				assert.Equal(t, generation.OutcomeSucceeded, res.Outcome)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(2), peak.Load(), "concurrent carousels share one permit pool")
	assert.Equal(t, 12, provider.CallCount())
}
