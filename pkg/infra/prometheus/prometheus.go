package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var registry = prometheus.NewRegistry()

var registerer = prometheus.WrapRegistererWith(nil, registry)

var (
	RequestsTotal = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "wardgate_requests_total",
			Help: "Total number of requests inspected",
		},
		[]string{"method", "outcome"},
	)

	ThreatsDetected = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "wardgate_threats_detected_total",
			Help: "Detected threats by category and severity",
		},
		[]string{"category", "severity"},
	)

	RequestsBlocked = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "wardgate_requests_blocked_total",
			Help: "Requests denied by the escalation policy",
		},
		[]string{"action"},
	)

	RequestsRateLimited = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "wardgate_requests_rate_limited_total",
			Help: "Requests rejected by the adaptive rate limiter",
		},
		[]string{"reason"},
	)

	AuditEventsDropped = promauto.With(registerer).NewCounter(
		prometheus.CounterOpts{
			Name: "wardgate_audit_events_dropped_total",
			Help: "Security events dropped on audit queue overflow",
		},
	)

	ActiveClients = promauto.With(registerer).NewGauge(
		prometheus.GaugeOpts{
			Name: "wardgate_active_clients",
			Help: "Client profiles currently tracked",
		},
	)

	SystemLoad = promauto.With(registerer).NewGauge(
		prometheus.GaugeOpts{
			Name: "wardgate_system_load",
			Help: "Request-rate load signal in [0,1] scaling the global ceiling",
		},
	)
)

func Initialize() {
	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	prometheus.DefaultRegisterer = registry
	prometheus.DefaultGatherer = registry
}
