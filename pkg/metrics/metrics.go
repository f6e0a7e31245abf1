// Package metrics exposes the node's Prometheus collectors.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "camnode"

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	framesProcessed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "motion",
		Name:      "frames_total",
		Help:      "Frames run through the motion engine.",
	})
	motionDetections = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "motion",
		Name:      "detections_total",
		Help:      "Frames classified as motion.",
	})
	changedCells = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "motion",
		Name:      "changed_cells",
		Help:      "Grid cells that changed in the most recent frame.",
	})
	captureErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "camera",
		Name:      "capture_errors_total",
		Help:      "Failed frame captures.",
	})

	provisioningState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "provisioning",
			Name:      "state",
			Help:      "1 for the current provisioning state, 0 otherwise.",
		},
		[]string{"state"},
	)
	provisioningTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provisioning",
			Name:      "transitions_total",
			Help:      "Provisioning state transitions.",
		},
		[]string{"from", "to"},
	)

	notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "published_total",
			Help:      "Motion notifications by outcome.",
		},
		[]string{"success"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			framesProcessed, motionDetections, changedCells, captureErrors,
			provisioningState, provisioningTransitions,
			notifications,
		)
	})
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}

// RecordFrame accounts one motion engine result.
func RecordFrame(changed int, motion bool) {
	RegisterMetrics()
	framesProcessed.Inc()
	changedCells.Set(float64(changed))
	if motion {
		motionDetections.Inc()
	}
}

func RecordCaptureError() {
	RegisterMetrics()
	captureErrors.Inc()
}

// SetProvisioningState marks current as the only active state among all.
func SetProvisioningState(current string, all []string) {
	RegisterMetrics()
	for _, s := range all {
		v := 0.0
		if s == current {
			v = 1
		}
		provisioningState.WithLabelValues(s).Set(v)
	}
}

func RecordTransition(from, to string) {
	RegisterMetrics()
	provisioningTransitions.WithLabelValues(from, to).Inc()
}

func RecordNotification(success bool) {
	RegisterMetrics()
	notifications.WithLabelValues(strconv.FormatBool(success)).Inc()
}
