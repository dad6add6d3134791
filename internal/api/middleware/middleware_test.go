package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/phrazzld/carouselmaker/internal/api/middleware"
	"github.com/phrazzld/carouselmaker/internal/api/shared"
	"github.com/phrazzld/carouselmaker/internal/metrics"
	"github.com/phrazzld/carouselmaker/internal/platform/logger"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestTraceMiddlewareGeneratesID(t *testing.T) {
	t.Parallel()

	var seen string
	var hasLogger bool
	h := middleware.NewTraceMiddleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = shared.GetTraceID(r.Context())
		hasLogger = logger.FromContext(r.Context()) != nil
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Len(t, seen, 32)
	assert.True(t, hasLogger)
	assert.Equal(t, seen, w.Header().Get(shared.TraceIDHeader))
}

func TestTraceMiddlewareReusesCallerID(t *testing.T) {
	t.Parallel()

	var seen string
	h := middleware.NewTraceMiddleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = shared.GetTraceID(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(shared.TraceIDHeader, "bot-update-991")
	h.ServeHTTP(httptest.NewRecorder(), r)
	assert.Equal(t, "bot-update-991", seen)

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(shared.TraceIDHeader, "bad id\n")
	h.ServeHTTP(httptest.NewRecorder(), r)
	assert.NotEqual(t, "bad id\n", seen)
	assert.Len(t, seen, 32)
}

func TestRequireKey(t *testing.T) {
	t.Parallel()

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })

	tests := []struct {
		name   string
		key    string
		header string
		want   int
	}{
		{"valid key", "s3cret", "s3cret", http.StatusNoContent},
		{"missing header", "s3cret", "", http.StatusUnauthorized},
		{"wrong key", "s3cret", "guess", http.StatusForbidden},
		{"unconfigured key", "", "anything", http.StatusForbidden},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			h := middleware.RequireKey(middleware.AdminKeyHeader, tc.key)(ok)
			r := httptest.NewRequest(http.MethodGet, "/admin/stats", nil)
			if tc.header != "" {
				r.Header.Set(middleware.AdminKeyHeader, tc.header)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, r)
			assert.Equal(t, tc.want, w.Code)
		})
	}
}

func TestMetricsMiddlewareLabelsRoutePattern(t *testing.T) {
	t.Parallel()

	m := metrics.NewUnregistered()
	r := chi.NewRouter()
	r.Use(middleware.NewMetricsMiddleware(m))
	r.Post("/admin/users/{telegram_id}/grant", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})

	for _, id := range []string{"1", "2"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/admin/users/"+id+"/grant", nil))
	}
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope", nil))

	assert.InDelta(t, 2, testutil.ToFloat64(
		m.HTTPRequests.WithLabelValues(http.MethodPost, "/admin/users/{telegram_id}/grant", "201")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(
		m.HTTPRequests.WithLabelValues(http.MethodGet, "unmatched", "404")), 0)
}
