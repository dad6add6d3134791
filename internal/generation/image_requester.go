package generation

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/phrazzld/carouselmaker/internal/domain"
	"github.com/phrazzld/carouselmaker/internal/metrics"
	"github.com/phrazzld/carouselmaker/internal/platform/logger"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// ImageRequesterConfig tunes the permit pool and the retry loop.
type ImageRequesterConfig struct {
	// MaxConcurrency is the number of permits shared by every caller in the process.
	MaxConcurrency int

	// MaxRetries is the number of attempts after the first one.
	MaxRetries int

	// RetryBackoff is multiplied by the attempt number before each retry.
	RetryBackoff time.Duration
}

// ProgressFunc is told how many of total slides have resolved.
type ProgressFunc func(ctx context.Context, ready, total int)

// ImageRequester calls the ImageProvider for many slides while never
// holding more than MaxConcurrency permits. Permits are granted in FIFO
// order and held for the whole retry loop of a slide.
type ImageRequester struct {
	provider ImageProvider
	sem      *semaphore.Weighted
	config   ImageRequesterConfig
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewImageRequester creates an ImageRequester. One instance should be
// shared by all workers of a process.
func NewImageRequester(
	provider ImageProvider,
	config ImageRequesterConfig,
	m *metrics.Metrics,
	logger *slog.Logger,
) (*ImageRequester, error) {
	if provider == nil {
		return nil, fmt.Errorf("%w: image provider cannot be nil", ErrInvalidConfig)
	}
	if config.MaxConcurrency <= 0 {
		return nil, fmt.Errorf("%w: max concurrency must be positive, got %d", ErrInvalidConfig, config.MaxConcurrency)
	}
	if config.MaxRetries < 0 {
		return nil, fmt.Errorf("%w: max retries cannot be negative", ErrInvalidConfig)
	}
	if m == nil {
		m = metrics.NewUnregistered()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ImageRequester{
		provider: provider,
		sem:      semaphore.NewWeighted(int64(config.MaxConcurrency)),
		config:   config,
		metrics:  m,
		logger:   logger.With(slog.String("component", "image_requester")),
	}, nil
}

// RequestImages generates images for slides concurrently. It never returns
// an error: a slide whose attempts all failed, or whose context ended while
// waiting, yields a Fallback result with a nil image. Results are indexed
// like slides. progress may be nil.
func (r *ImageRequester) RequestImages(
	ctx context.Context,
	slides []SlideContent,
	style domain.Style,
	progress ProgressFunc,
) []ImageResult {
	results := make([]ImageResult, len(slides))
	total := len(slides)
	var ready atomic.Int32

	// No call can use more goroutines than there are permits, so a large
	// carousel queues in the group instead of parking goroutines on the
	// semaphore.
	var g errgroup.Group
	g.SetLimit(r.config.MaxConcurrency)
	for i, slide := range slides {
		g.Go(func() error {
			results[i] = r.requestOne(ctx, i, slide, style)
			n := int(ready.Add(1))
			if progress != nil {
				progress(ctx, n, total)
			}
			return nil
		})
	}
	// Slides resolve to Fallback results rather than errors.
	_ = g.Wait()

	return results
}

func (r *ImageRequester) requestOne(ctx context.Context, index int, slide SlideContent, style domain.Style) ImageResult {
	log := logger.FromContextOrDefault(ctx, r.logger).With(slog.Int("slide_position", slide.Position))

	if err := r.sem.Acquire(ctx, 1); err != nil {
		log.Warn("gave up waiting for image permit", slog.String("error", err.Error()))
		r.metrics.ImageFallbacks.Inc()
		return ImageResult{Result: Fallback(fmt.Errorf("%w: %w", ErrNoImage, err)), Index: index}
	}
	defer r.sem.Release(1)

	r.metrics.ImagesInFlight.Inc()
	defer r.metrics.ImagesInFlight.Dec()

	attempts := r.config.MaxRetries + 1
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		image, err := r.provider.GenerateSlideImage(ctx, slide, style)
		if err == nil && len(image) > 0 {
			return ImageResult{Result: Succeeded(), Index: index, Image: image, Attempts: attempt}
		}
		if err == nil {
			err = ErrNoImage
		}
		lastErr = err

		if attempt == attempts {
			break
		}

		log.Warn("slide image generation failed, retrying",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", attempts),
			slog.String("error", err.Error()))
		r.metrics.ImageRetries.Inc()

		if err := sleep(ctx, r.config.RetryBackoff*time.Duration(attempt)); err != nil {
			lastErr = err
			break
		}
	}

	log.Warn("all retries exhausted for slide image", slog.String("error", lastErr.Error()))
	r.metrics.ImageFallbacks.Inc()
	return ImageResult{
		Result:   Fallback(fmt.Errorf("%w: %w", ErrNoImage, lastErr)),
		Index:    index,
		Attempts: attempts,
	}
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
