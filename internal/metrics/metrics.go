package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the API
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, path, and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// RouteComputeDuration tracks full route computations by policy and outcome
	RouteComputeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "route_compute_duration_seconds", Help: "Route computation duration in seconds.", Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 15}},
		[]string{"policy", "status"},
	)
	// RouteStops records how many mandatory stops a computed route covered
	RouteStops = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "route_stops", Help: "Mandatory stop count per computed route.", Buckets: []float64{1, 2, 4, 6, 8, 10, 15, 20}},
	)
	// AllocationFailures counts allocation failures by reason
	AllocationFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "allocation_failures_total", Help: "Allocation failures by reason."},
		[]string{"reason"},
	)

	// WebhookDeliveries counts webhook delivery outcomes by event type and status
	WebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Webhook deliveries by event type and status."},
		[]string{"event_type", "status"},
	)
	// WebhookLatency tracks webhook delivery latencies in milliseconds
	WebhookLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "webhook_delivery_latency_ms", Help: "Webhook delivery latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000}},
		[]string{"event_type", "status"},
	)
)

// RegisterDefault registers collectors to the default registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(RouteComputeDuration)
		Registry.MustRegister(RouteStops)
		Registry.MustRegister(AllocationFailures)
		Registry.MustRegister(WebhookDeliveries)
		Registry.MustRegister(WebhookLatency)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
