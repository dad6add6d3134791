package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/carouselmaker/internal/generation"
	"github.com/phrazzld/carouselmaker/internal/metrics"
	"github.com/phrazzld/carouselmaker/internal/store"
)

// ErrSkipped is returned by Sweep when another process holds the lock.
var ErrSkipped = errors.New("cleanup sweep skipped: lock held elsewhere")

// ObjectStore lists and deletes stored slide objects.
type ObjectStore interface {
	List(ctx context.Context, prefix string) ([]generation.ObjectInfo, error)
	Delete(ctx context.Context, key string) error
}

// Locker is a cross-process mutex. Acquire returns an error when the lock
// is already held.
type Locker interface {
	Acquire(ctx context.Context) error
	Release(ctx context.Context) error
}

// Config controls what a sweep deletes.
type Config struct {
	// Prefix limits the sweep to keys under it
	Prefix string
	// Retention is how long an object is kept after upload
	Retention time.Duration
}

// Report summarizes one sweep.
type Report struct {
	Scanned      int
	Deleted      int
	Failed       int
	KeysCleared  int
	BytesRemoved int64
}

// Sweeper deletes expired slide objects.
type Sweeper struct {
	objects ObjectStore
	slides  store.SlideStore
	locker  Locker
	cfg     Config
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithLocker serializes sweeps across processes.
func WithLocker(l Locker) Option {
	return func(s *Sweeper) { s.locker = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) { s.now = now }
}

// NewSweeper creates a Sweeper. slides may be nil when no database is
// available, in which case only objects are removed.
func NewSweeper(
	objects ObjectStore,
	slides store.SlideStore,
	cfg Config,
	m *metrics.Metrics,
	logger *slog.Logger,
	opts ...Option,
) (*Sweeper, error) {
	if objects == nil {
		return nil, errors.New("cleanup: object store is required")
	}
	if cfg.Retention <= 0 {
		return nil, fmt.Errorf("cleanup: retention must be positive, got %s", cfg.Retention)
	}
	if m == nil {
		m = metrics.NewUnregistered()
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Sweeper{
		objects: objects,
		slides:  slides,
		cfg:     cfg,
		metrics: m,
		logger:  logger.With("component", "cleanup"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Sweep deletes every object under the prefix older than the retention
// window. The upload time is read from the key and falls back to the
// object's modification time for keys in any other format.
func (s *Sweeper) Sweep(ctx context.Context) (Report, error) {
	var report Report

	if s.locker != nil {
		if err := s.locker.Acquire(ctx); err != nil {
			s.logger.Debug("cleanup lock not acquired", "error", err)
			return report, ErrSkipped
		}
		defer func() {
			if err := s.locker.Release(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn("failed to release cleanup lock", "error", err)
			}
		}()
	}

	objects, err := s.objects.List(ctx, s.cfg.Prefix)
	if err != nil {
		return report, fmt.Errorf("failed to list objects: %w", err)
	}
	report.Scanned = len(objects)

	cutoff := s.now().UTC().Add(-s.cfg.Retention)
	var deleted []string
	for _, obj := range objects {
		if !uploadedAt(obj).Before(cutoff) {
			continue
		}
		if err := ctx.Err(); err != nil {
			break
		}
		if err := s.objects.Delete(ctx, obj.Key); err != nil {
			report.Failed++
			s.logger.Warn("failed to delete expired object", "key", obj.Key, "error", err)
			continue
		}
		deleted = append(deleted, obj.Key)
		report.BytesRemoved += obj.Size
	}
	report.Deleted = len(deleted)
	s.metrics.CleanupDeleted.Add(float64(report.Deleted))

	if s.slides != nil && len(deleted) > 0 {
		n, err := s.slides.ClearStorageKeys(ctx, deleted)
		if err != nil {
			return report, fmt.Errorf("failed to clear storage keys: %w", err)
		}
		report.KeysCleared = n
	}

	s.logger.Info("cleanup sweep finished",
		"scanned", report.Scanned,
		"deleted", report.Deleted,
		"failed", report.Failed,
		"keys_cleared", report.KeysCleared,
		"bytes_removed", report.BytesRemoved)
	return report, ctx.Err()
}

// Run sweeps once immediately and then every interval until ctx ends.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := s.Sweep(ctx); err != nil && !errors.Is(err, ErrSkipped) && ctx.Err() == nil {
			s.logger.Error("cleanup sweep failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func uploadedAt(obj generation.ObjectInfo) time.Time {
	if ts, ok := generation.ObjectKeyTime(obj.Key); ok {
		return ts
	}
	return obj.LastModified
}
