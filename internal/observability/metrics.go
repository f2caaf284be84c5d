// Package observability provides Prometheus metrics for the proxy.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Invocations counts model invocations by resolved model and outcome.
	Invocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bedrockproxy_invocations_total",
		Help: "Model invocations by resolved model ID and outcome.",
	}, []string{"model", "outcome"})

	// ThroughputRetries counts one-shot model-substitution retries taken
	// after an on-demand throughput rejection.
	ThroughputRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bedrockproxy_throughput_retries_total",
		Help: "Invocations retried with a degraded model after a throughput-tier rejection.",
	})

	// DroppedImages counts image parts dropped during content transcoding.
	DroppedImages = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bedrockproxy_dropped_images_total",
		Help: "Image parts dropped because decoding or validation failed.",
	})

	// LowConfidenceResolutions counts model resolutions that fell back to
	// a default or emergency model.
	LowConfidenceResolutions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bedrockproxy_low_confidence_resolutions_total",
		Help: "Model resolutions below the pattern-match confidence tier.",
	})
)
