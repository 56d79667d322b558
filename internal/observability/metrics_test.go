package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsHandler(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics()
	require.NoError(t, err)
	m.Routing.SetActiveRoutes(3)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "routing_active_routes 3")
	assert.Contains(t, rec.Body.String(), "mqtt_connection_status 0")
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestRegistryMetricTypes(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics()
	require.NoError(t, err)
	m.Routing.RecordTransition("active")
	m.Routing.RecordDeviceRemoval()

	families, err := m.Registry().Gather()
	require.NoError(t, err)

	types := make(map[string]dto.MetricType, len(families))
	for _, f := range families {
		types[f.GetName()] = f.GetType()
	}
	assert.Equal(t, dto.MetricType_GAUGE, types["routing_active_routes"])
	assert.Equal(t, dto.MetricType_GAUGE, types["routing_engine_users"])
	assert.Equal(t, dto.MetricType_COUNTER, types["routing_route_transitions_total"])
	assert.Equal(t, dto.MetricType_COUNTER, types["routing_device_removals_total"])
}
