// Package metrics provides Prometheus metrics for the router components.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// RoutingMetrics contains Prometheus metrics for device discovery and routing.
type RoutingMetrics struct {
	activeRoutes       prometheus.Gauge
	engineUsers        prometheus.Gauge
	routeTransitions   *prometheus.CounterVec
	routeErrors        *prometheus.CounterVec
	deviceEnumerations *prometheus.CounterVec
	deviceRemovals     prometheus.Counter

	collectors []prometheus.Collector
}

// NewRoutingMetrics creates and registers routing metrics.
func NewRoutingMetrics(registry *prometheus.Registry) (*RoutingMetrics, error) {
	m := &RoutingMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register routing metrics: %w", err)
	}
	return m, nil
}

func (m *RoutingMetrics) initMetrics() {
	m.activeRoutes = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "routing_active_routes",
		Help: "Number of virtual cables currently carrying audio",
	})

	m.engineUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "routing_engine_users",
		Help: "Reference count of the shared processing engine",
	})

	m.routeTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "routing_route_transitions_total",
			Help: "Total number of route state transitions by target state",
		},
		[]string{"state"},
	)

	m.routeErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "routing_route_errors_total",
			Help: "Total number of routing errors by kind",
		},
		[]string{"kind"},
	)

	m.deviceEnumerations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "routing_device_enumerations_total",
			Help: "Total number of host device enumerations by result",
		},
		[]string{"result"},
	)

	m.deviceRemovals = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "routing_device_removals_total",
		Help: "Total number of device removal notifications handled",
	})

	m.collectors = []prometheus.Collector{
		m.activeRoutes,
		m.engineUsers,
		m.routeTransitions,
		m.routeErrors,
		m.deviceEnumerations,
		m.deviceRemovals,
	}
}

// Describe implements the prometheus.Collector interface.
func (m *RoutingMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors {
		c.Describe(ch)
	}
}

// Collect implements the prometheus.Collector interface.
func (m *RoutingMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors {
		c.Collect(ch)
	}
}

// SetActiveRoutes records the number of active routes.
func (m *RoutingMetrics) SetActiveRoutes(n int) {
	m.activeRoutes.Set(float64(n))
}

// SetEngineUsers records the shared engine reference count.
func (m *RoutingMetrics) SetEngineUsers(n int) {
	m.engineUsers.Set(float64(n))
}

// RecordTransition counts a route entering state.
func (m *RoutingMetrics) RecordTransition(state string) {
	m.routeTransitions.WithLabelValues(state).Inc()
}

// RecordError counts a routing error of the given kind.
func (m *RoutingMetrics) RecordError(kind string) {
	m.routeErrors.WithLabelValues(kind).Inc()
}

// RecordEnumeration counts a device enumeration attempt.
func (m *RoutingMetrics) RecordEnumeration(ok bool) {
	result := "success"
	if !ok {
		result = "failure"
	}
	m.deviceEnumerations.WithLabelValues(result).Inc()
}

// RecordDeviceRemoval counts a handled device removal.
func (m *RoutingMetrics) RecordDeviceRemoval() {
	m.deviceRemovals.Inc()
}
