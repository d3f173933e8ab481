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
			Namespace: "panelctl",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"server", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "panelctl",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"server", "method", "path", "status"},
	)
	messagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "panelctl",
			Subsystem: "protocol",
			Name:      "messages_total",
			Help:      "Decoded commands by outcome kind.",
		},
		[]string{"kind"},
	)
	rejectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "panelctl",
			Subsystem: "protocol",
			Name:      "rejects_total",
			Help:      "Rejected commands by reason.",
		},
		[]string{"reason"},
	)
	deferredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "panelctl",
			Subsystem: "protocol",
			Name:      "deferred_total",
			Help:      "Work deferred to a later tick because memory was exhausted.",
		},
		[]string{"cause"},
	)
	pageChanges = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "panelctl",
			Subsystem: "protocol",
			Name:      "page_changes_total",
			Help:      "Page changes requested by update callbacks.",
		},
	)
	connectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "panelctl",
			Subsystem: "conn",
			Name:      "active",
			Help:      "Open panel connections.",
		},
	)
	connectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "panelctl",
			Subsystem: "conn",
			Name:      "accepted_total",
			Help:      "Accepted panel connections.",
		},
		[]string{"transport"},
	)
	bytesSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "panelctl",
			Subsystem: "conn",
			Name:      "sent_bytes_total",
			Help:      "Response bytes acknowledged by transports.",
		},
	)
	budgetInUse = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "panelctl",
			Subsystem: "memory",
			Name:      "budget_in_use_bytes",
			Help:      "Bytes currently reserved from the memory budget.",
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			messagesTotal, rejectsTotal, deferredTotal, pageChanges,
			connectionsActive, connectionsTotal, bytesSent, budgetInUse,
		)
	})
}

func RecordHTTPRequest(server, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(server, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(server, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordMessage(kind string) {
	RegisterMetrics()
	messagesTotal.WithLabelValues(kind).Inc()
}

func RecordReject(reason string) {
	RegisterMetrics()
	rejectsTotal.WithLabelValues(reason).Inc()
}

func RecordDeferred(cause string) {
	RegisterMetrics()
	deferredTotal.WithLabelValues(cause).Inc()
}

func RecordPageChange() {
	RegisterMetrics()
	pageChanges.Inc()
}

func ConnectionOpened(transport string) {
	RegisterMetrics()
	connectionsTotal.WithLabelValues(transport).Inc()
	connectionsActive.Inc()
}

func ConnectionClosed() {
	RegisterMetrics()
	connectionsActive.Dec()
}

func RecordBytesSent(n int) {
	RegisterMetrics()
	bytesSent.Add(float64(n))
}

func SetBudgetInUse(n int64) {
	RegisterMetrics()
	budgetInUse.Set(float64(n))
}
