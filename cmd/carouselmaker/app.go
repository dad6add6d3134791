package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
	"github.com/phrazzld/carouselmaker/internal/api"
	"github.com/phrazzld/carouselmaker/internal/cleanup"
	"github.com/phrazzld/carouselmaker/internal/config"
	"github.com/phrazzld/carouselmaker/internal/domain"
	"github.com/phrazzld/carouselmaker/internal/events"
	"github.com/phrazzld/carouselmaker/internal/generation"
	"github.com/phrazzld/carouselmaker/internal/ledger"
	"github.com/phrazzld/carouselmaker/internal/metrics"
	"github.com/phrazzld/carouselmaker/internal/platform/gemini"
	"github.com/phrazzld/carouselmaker/internal/platform/objectstore"
	"github.com/phrazzld/carouselmaker/internal/platform/postgres"
	"github.com/phrazzld/carouselmaker/internal/platform/rediscache"
	"github.com/phrazzld/carouselmaker/internal/platform/redisqueue"
	"github.com/phrazzld/carouselmaker/internal/platform/telegram"
	"github.com/phrazzld/carouselmaker/internal/render"
	"github.com/phrazzld/carouselmaker/internal/service"
	"github.com/phrazzld/carouselmaker/internal/store"
	"github.com/phrazzld/carouselmaker/internal/task"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

const (
	cacheKeyPrefix = "carouselmaker:cache"
	cleanupLockKey = "carouselmaker:cleanup:lock"
)

// stores groups the Postgres-backed stores sharing one *sql.DB pool.
type stores struct {
	tx          store.Transactor
	users       store.UserStore
	credits     store.CreditStore
	generations store.CarouselStore
	slides      store.SlideStore
	tasks       *postgres.PostgresTaskStore
}

// pipeline is everything a worker needs to run generations.
type pipeline struct {
	orchestrator *generation.Orchestrator
	guard        *task.IdempotencyGuard
	registry     *task.Registry
}

// runtime couples the task runner with the emitter that feeds it.
type runtime struct {
	runner  *task.TaskRunner
	queue   task.TaskQueue
	emitter *events.InMemoryEventEmitter
	// start runs queue-specific startup before the runner
	start func(ctx context.Context) error
}

// application holds the process-wide dependencies. Every component is built
// on first use and shared afterwards, so each subcommand only connects to
// what it needs.
type application struct {
	config   *config.Config
	logger   *slog.Logger
	metrics  *metrics.Metrics
	registry *prometheus.Registry

	db       func() (*sql.DB, error)
	redis    func() (*redis.Client, error)
	stores   func() (*stores, error)
	ledger   func() (*ledger.Ledger, error)
	objects  func() (*objectstore.Store, error)
	telegram func() (*telegram.Client, error)
	pipeline func() (*pipeline, error)
	runtime  func() (*runtime, error)
	services func() (*serviceSet, error)

	mu      sync.Mutex
	closers []func()
}

// serviceSet is the application layer used by the HTTP API and the CLI.
type serviceSet struct {
	users     service.UserService
	carousels service.CarouselService
	payments  service.PaymentService
	admin     service.AdminService
}

func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) *application {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	app := &application{
		config:   cfg,
		logger:   logger,
		metrics:  metrics.New(reg),
		registry: reg,
	}

	app.db = sync.OnceValues(func() (*sql.DB, error) { return app.openDatabase(ctx) })
	app.redis = sync.OnceValues(func() (*redis.Client, error) { return app.openRedis(ctx) })
	app.stores = sync.OnceValues(app.buildStores)
	app.ledger = sync.OnceValues(app.buildLedger)
	app.objects = sync.OnceValues(func() (*objectstore.Store, error) { return app.openObjectStore(ctx) })
	app.telegram = sync.OnceValues(app.buildTelegram)
	app.pipeline = sync.OnceValues(func() (*pipeline, error) { return app.buildPipeline(ctx) })
	app.runtime = sync.OnceValues(app.buildRuntime)
	app.services = sync.OnceValues(app.buildServices)

	return app
}

func (app *application) onClose(fn func()) {
	app.mu.Lock()
	defer app.mu.Unlock()
	app.closers = append(app.closers, fn)
}

// Close releases resources in reverse order of acquisition.
func (app *application) Close() {
	app.mu.Lock()
	closers := app.closers
	app.closers = nil
	app.mu.Unlock()

	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}
}

func (app *application) openDatabase(ctx context.Context) (*sql.DB, error) {
	cfg := app.config.Database
	db, err := sql.Open("pgx", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	app.onClose(func() {
		if err := db.Close(); err != nil {
			app.logger.Error("error closing database connection", "error", err)
		}
	})
	app.logger.Info("database connection established")
	return db, nil
}

func (app *application) openRedis(ctx context.Context) (*redis.Client, error) {
	cfg := app.config.Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	app.onClose(func() {
		if err := rdb.Close(); err != nil {
			app.logger.Error("error closing redis client", "error", err)
		}
	})
	return rdb, nil
}

func (app *application) buildStores() (*stores, error) {
	db, err := app.db()
	if err != nil {
		return nil, err
	}
	return &stores{
		tx:          store.NewSQLTransactor(db),
		users:       postgres.NewPostgresUserStore(db, app.logger),
		credits:     postgres.NewPostgresCreditStore(db, app.logger),
		generations: postgres.NewPostgresCarouselStore(db, app.logger),
		slides:      postgres.NewPostgresSlideStore(db, app.logger),
		tasks:       postgres.NewPostgresTaskStore(db, app.logger),
	}, nil
}

func (app *application) buildLedger() (*ledger.Ledger, error) {
	s, err := app.stores()
	if err != nil {
		return nil, err
	}
	return ledger.New(s.tx, s.users, s.credits, s.generations, app.metrics, app.logger), nil
}

func (app *application) openObjectStore(ctx context.Context) (*objectstore.Store, error) {
	objects, err := objectstore.New(app.config.Storage, app.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create object store: %w", err)
	}
	if err := objects.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("failed to prepare bucket: %w", err)
	}
	return objects, nil
}

func (app *application) buildTelegram() (*telegram.Client, error) {
	cfg := app.config.Telegram
	return telegram.NewClient(cfg.BotToken,
		telegram.WithBaseURL(cfg.APIBaseURL),
		telegram.WithHTTPClient(&http.Client{Timeout: cfg.RequestTimeout}),
		telegram.WithMediaTimeout(cfg.MediaGroupTimeout),
		telegram.WithLogger(app.logger),
	)
}

func (app *application) buildPipeline(ctx context.Context) (*pipeline, error) {
	s, err := app.stores()
	if err != nil {
		return nil, err
	}
	l, err := app.ledger()
	if err != nil {
		return nil, err
	}
	objects, err := app.objects()
	if err != nil {
		return nil, err
	}
	delivery, err := app.telegram()
	if err != nil {
		return nil, err
	}

	client, err := gemini.NewClient(ctx, app.config.LLM)
	if err != nil {
		return nil, err
	}
	copyWriter, err := gemini.NewCopyWriter(client.Models, app.config.LLM, app.logger)
	if err != nil {
		return nil, err
	}
	imageGen, err := gemini.NewImageGenerator(client.Models, app.config.LLM, app.logger)
	if err != nil {
		return nil, err
	}

	gen := app.config.Generation
	images, err := generation.NewImageRequester(imageGen, generation.ImageRequesterConfig{
		MaxConcurrency: gen.ImageMaxConcurrency,
		MaxRetries:     gen.ImageMaxRetries,
		RetryBackoff:   gen.ImageRetryBackoff,
	}, app.metrics, app.logger)
	if err != nil {
		return nil, err
	}

	ctaImages, err := loadCTAImages(gen.CTAImageDir)
	if err != nil {
		return nil, err
	}

	orchestrator, err := generation.NewOrchestrator(generation.Dependencies{
		Generations: s.generations,
		Slides:      s.slides,
		Ledger:      l,
		Copy:        copyWriter,
		Images:      images,
		Renderer:    render.New(render.DefaultOptions(), app.logger),
		Objects:     objects,
		Delivery:    delivery,
	}, generation.OrchestratorConfig{
		StoragePrefix: app.config.Storage.Prefix,
		ImageSlides:   gen.ImageSlides,
		CTAImages:     ctaImages,
	}, app.metrics, app.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create orchestrator: %w", err)
	}

	guard := task.NewIdempotencyGuard(s.generations, app.logger)
	registry := task.NewRegistry()
	registry.Register(task.TaskTypeCarouselGeneration,
		task.NewCarouselTaskFactory(orchestrator, guard, app.logger).FromEnvelope)

	return &pipeline{orchestrator: orchestrator, guard: guard, registry: registry}, nil
}

// loadCTAImages reads <slug>.png for every style from dir. Missing files
// leave the style without a CTA image; an empty dir disables them.
func loadCTAImages(dir string) (map[string][]byte, error) {
	images := make(map[string][]byte)
	if dir == "" {
		return images, nil
	}
	for _, style := range domain.Styles() {
		data, err := os.ReadFile(filepath.Join(dir, style.Slug+".png"))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CTA image for %s: %w", style.Slug, err)
		}
		images[style.Slug] = data
	}
	return images, nil
}

func (app *application) buildQueue() (task.TaskQueue, func(ctx context.Context) error, error) {
	cfg := app.config.Task
	if cfg.QueueBackend == "memory" {
		return task.NewMemoryQueue(cfg.QueueSize, app.logger), nil, nil
	}

	rdb, err := app.redis()
	if err != nil {
		return nil, nil, err
	}
	q, err := redisqueue.New(rdb, redisqueue.DefaultConfig(cfg.QueueKey, consumerID()), app.logger)
	if err != nil {
		return nil, nil, err
	}
	return q, q.Start, nil
}

// consumerID names this worker's processing list. It must survive restarts
// so envelopes left in flight are requeued by the same worker.
func consumerID() string {
	if id := os.Getenv("CAROUSEL_CONSUMER_ID"); id != "" {
		return id
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "default"
	}
	return host
}

func (app *application) buildRuntime() (*runtime, error) {
	s, err := app.stores()
	if err != nil {
		return nil, err
	}
	l, err := app.ledger()
	if err != nil {
		return nil, err
	}
	p, err := app.pipeline()
	if err != nil {
		return nil, err
	}
	queue, start, err := app.buildQueue()
	if err != nil {
		return nil, err
	}

	cfg := app.config.Task
	runner := task.NewTaskRunner(s.tasks, queue, p.registry, task.TaskRunnerConfig{
		WorkerCount:    cfg.WorkerCount,
		MaxRetries:     cfg.MaxRetries,
		RetryDelay:     cfg.RetryDelay,
		StuckTaskAge:   time.Duration(cfg.StuckTaskAgeMinutes) * time.Minute,
		RecoverOnStart: cfg.QueueBackend == "memory",
	}, app.metrics, app.logger)
	runner.SetErrorHandler(task.NewCarouselFailureHandler(p.guard, p.orchestrator, l, app.logger))

	emitter := events.NewInMemoryEventEmitter(app.logger)
	emitter.RegisterHandler(
		task.NewTaskFactoryEventHandler(p.registry, runner, app.logger),
		task.TaskTypeCarouselGeneration,
	)

	app.onClose(runner.Stop)
	return &runtime{runner: runner, queue: queue, emitter: emitter, start: start}, nil
}

// startRunner begins consuming tasks in this process.
func (app *application) startRunner(ctx context.Context) error {
	rt, err := app.runtime()
	if err != nil {
		return err
	}
	if rt.start != nil {
		if err := rt.start(ctx); err != nil {
			return fmt.Errorf("failed to start queue: %w", err)
		}
	}
	if err := rt.runner.Start(); err != nil {
		return fmt.Errorf("failed to start task runner: %w", err)
	}
	app.logger.Info("task runner started",
		"queue_backend", app.config.Task.QueueBackend,
		"worker_count", app.config.Task.WorkerCount)
	return nil
}

func (app *application) buildServices() (*serviceSet, error) {
	s, err := app.stores()
	if err != nil {
		return nil, err
	}
	l, err := app.ledger()
	if err != nil {
		return nil, err
	}
	rt, err := app.runtime()
	if err != nil {
		return nil, err
	}
	tg, err := app.telegram()
	if err != nil {
		return nil, err
	}

	users := service.NewUserService(s.users, l, app.logger)
	carousels, err := service.NewCarouselService(users, l, rt.emitter, tg, app.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create carousel service: %w", err)
	}

	set := &serviceSet{
		users:     users,
		carousels: carousels,
		payments:  service.NewPaymentService(users, l, app.logger),
	}
	set.admin = app.adminService(s, l)
	return set, nil
}

// adminService caches stats in Redis when it is reachable.
func (app *application) adminService(s *stores, l *ledger.Ledger) service.AdminService {
	deps := service.AdminDeps{
		Users:       s.users,
		Generations: s.generations,
		Tasks:       s.tasks,
		Ledger:      l,
		CacheTTL:    app.config.Admin.StatsCacheTTL,
	}
	if rdb, err := app.redis(); err == nil {
		deps.Cache = rediscache.New(rdb, cacheKeyPrefix)
	} else {
		app.logger.Warn("stats cache disabled", "error", err)
	}
	return service.NewAdminService(deps, app.logger)
}

// sweeper builds the storage cleanup job. The Redis lock is used when
// Redis is reachable so only one process sweeps at a time.
func (app *application) sweeper() (*cleanup.Sweeper, error) {
	objects, err := app.objects()
	if err != nil {
		return nil, err
	}
	s, err := app.stores()
	if err != nil {
		return nil, err
	}

	cfg := app.config.Storage
	var opts []cleanup.Option
	if rdb, err := app.redis(); err == nil {
		opts = append(opts, cleanup.WithLocker(redisqueue.NewLock(rdb, cleanupLockKey, time.Hour)))
	} else {
		app.logger.Warn("cleanup lock disabled", "error", err)
	}

	return cleanup.NewSweeper(objects, s.slides, cleanup.Config{
		Prefix:    cfg.Prefix,
		Retention: time.Duration(cfg.RetentionDays) * 24 * time.Hour,
	}, app.metrics, app.logger, opts...)
}

// healthChecks are the dependencies probed by /readiness.
func (app *application) healthChecks() ([]api.HealthCheck, error) {
	db, err := app.db()
	if err != nil {
		return nil, err
	}
	objects, err := app.objects()
	if err != nil {
		return nil, err
	}
	checks := []api.HealthCheck{
		{Name: "database", Ping: db.PingContext},
		{Name: "storage", Ping: objects.Ping},
	}
	if app.config.Task.QueueBackend == "redis" {
		rdb, err := app.redis()
		if err != nil {
			return nil, err
		}
		checks = append(checks, api.HealthCheck{
			Name: "redis",
			Ping: func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		})
	}
	return checks, nil
}

func (app *application) metricsHandler() http.Handler {
	return promhttp.HandlerFor(app.registry, promhttp.HandlerOpts{Registry: app.registry})
}
