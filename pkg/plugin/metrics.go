package plugin

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registered on the default registry, which the plugin SDK exposes to Grafana.
var (
	apiRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "grafana_plugin",
		Name:      "checkmk_api_requests_total",
		Help:      "Requests sent to the Checkmk API by backend, endpoint and outcome.",
	}, []string{"backend", "endpoint", "status"})

	apiRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "grafana_plugin",
		Name:      "checkmk_api_request_duration_seconds",
		Help:      "Duration of Checkmk API requests.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"backend", "endpoint"})
)
