package metrics_test

import (
	"testing"

	"github.com/phrazzld/carouselmaker/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersCollectors(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	m.GenerationOutcomes.WithLabelValues("completed").Inc()
	m.LedgerOperations.WithLabelValues("charge", "ok").Add(2)
	m.ImagesInFlight.Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.GenerationOutcomes.WithLabelValues("completed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.LedgerOperations.WithLabelValues("charge", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ImagesInFlight))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)

	assert.Panics(t, func() { metrics.New(reg) }, "double registration must panic")
}
