package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "groundctl",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total bridge HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "groundctl",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Bridge HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	sessionConnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "groundctl",
			Subsystem: "session",
			Name:      "connects_total",
			Help:      "Transports that reached the open state.",
		},
	)
	sessionDisconnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "groundctl",
			Subsystem: "session",
			Name:      "disconnects_total",
			Help:      "Disconnect callbacks by reason.",
		},
		[]string{"reason"},
	)
	sessionReconnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "groundctl",
			Subsystem: "session",
			Name:      "reconnect_attempts_total",
			Help:      "Automatic reconnect attempts scheduled.",
		},
	)
	framesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "groundctl",
			Subsystem: "session",
			Name:      "frames_sent_total",
			Help:      "Outbound frames written to the transport.",
		},
		[]string{"type"},
	)
	framesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "groundctl",
			Subsystem: "session",
			Name:      "frames_received_total",
			Help:      "Inbound frames by parse result.",
		},
		[]string{"result"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			sessionConnects,
			sessionDisconnects,
			sessionReconnects,
			framesSent,
			framesReceived,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordSessionConnect() {
	RegisterMetrics()
	sessionConnects.Inc()
}

func RecordSessionDisconnect(reason string) {
	RegisterMetrics()
	sessionDisconnects.WithLabelValues(reason).Inc()
}

func RecordReconnectAttempt() {
	RegisterMetrics()
	sessionReconnects.Inc()
}

func RecordFrameSent(frameType string) {
	RegisterMetrics()
	framesSent.WithLabelValues(frameType).Inc()
}

func RecordInboundFrame(result string) {
	RegisterMetrics()
	framesReceived.WithLabelValues(result).Inc()
}
