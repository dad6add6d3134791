package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	apimiddleware "github.com/phrazzld/carouselmaker/internal/api/middleware"
	"github.com/phrazzld/carouselmaker/internal/metrics"
	"github.com/phrazzld/carouselmaker/internal/service"
)

// RouterDeps carries everything NewRouter mounts.
type RouterDeps struct {
	Users         service.UserService
	Carousels     service.CarouselService
	Payments      service.PaymentService
	Admin         service.AdminService
	Checks        []HealthCheck
	CheckTimeout  time.Duration
	AdminKey      string
	WebhookSecret string
	Metrics       *metrics.Metrics
	// MetricsHandler serves /metrics when set.
	MetricsHandler http.Handler
	Logger         *slog.Logger
}

// NewRouter creates the application router with all routes and middleware.
func NewRouter(deps RouterDeps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewUnregistered()
	}

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(apimiddleware.NewTraceMiddleware(deps.Logger))
	r.Use(apimiddleware.NewMetricsMiddleware(deps.Metrics))

	users := NewUserHandler(deps.Users)
	carousels := NewCarouselHandler(deps.Carousels)
	payments := NewPaymentHandler(deps.Payments)
	admin := NewAdminHandler(deps.Admin)
	health := NewHealthHandler(deps.CheckTimeout, deps.Checks...)

	r.Get("/health", health.Health)
	r.Get("/readiness", health.Readiness)
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/styles", ListStyles)
		r.Post("/users", users.Register)
		r.Post("/generations", carousels.CreateGeneration)
	})

	r.Route("/webhook", func(r chi.Router) {
		r.Use(apimiddleware.RequireKey(apimiddleware.WebhookSecretHeader, deps.WebhookSecret))
		r.Post("/payments", payments.Webhook)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(apimiddleware.RequireKey(apimiddleware.AdminKeyHeader, deps.AdminKey))
		r.Get("/stats", admin.Stats)
		r.Post("/users/{telegram_id}/grant", admin.Grant)
	})

	return r
}
