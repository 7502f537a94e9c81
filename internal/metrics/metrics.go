package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce sync.Once

	HTTPInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "incentivos",
		Name:      "http_in_flight_requests",
		Help:      "In-flight HTTP requests.",
	})

	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "incentivos",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "incentivos",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latencies in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	Logins = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "incentivos",
			Name:      "logins_total",
			Help:      "Login attempts by result.",
		},
		[]string{"result"},
	)

	SessionsSwept = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "incentivos",
		Name:      "sessions_swept_total",
		Help:      "Expired sessions deactivated by the cleanup sweep.",
	})

	// AuditWriteFailures counts audit rows that could not be stored; stage is
	// "write" for the primary insert and "deadletter" when the fallback also
	// failed.
	AuditWriteFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "incentivos",
			Name:      "audit_write_failures_total",
			Help:      "Audit log rows that failed to persist.",
		},
		[]string{"stage"},
	)

	AuditReplayed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "incentivos",
		Name:      "audit_replayed_total",
		Help:      "Dead-lettered audit rows written on replay.",
	})

	TasksProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "incentivos",
			Name:      "tasks_processed_total",
			Help:      "Background tasks handled by the worker.",
		},
		[]string{"type", "result"},
	)
)

// Register adds every collector to reg once per process.
func Register(reg prometheus.Registerer) {
	registerOnce.Do(func() {
		reg.MustRegister(
			HTTPInFlight,
			HTTPRequests,
			HTTPDuration,
			Logins,
			SessionsSwept,
			AuditWriteFailures,
			AuditReplayed,
			TasksProcessed,
		)
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}
