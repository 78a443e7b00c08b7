package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	PollsTotal      = prometheus.NewCounter(prometheus.CounterOpts{Name: "blitz_polls_total", Help: "Status polls issued"})
	PollErrors      = prometheus.NewCounter(prometheus.CounterOpts{Name: "blitz_poll_errors_total", Help: "Status polls that failed transiently"})
	JobsCompleted   = prometheus.NewCounter(prometheus.CounterOpts{Name: "blitz_jobs_completed_total", Help: "Jobs that reached the completed state"})
	JobsFailed      = prometheus.NewCounter(prometheus.CounterOpts{Name: "blitz_jobs_failed_total", Help: "Jobs that reached the failed state"})
	ActiveJobsGauge = prometheus.NewGauge(prometheus.GaugeOpts{Name: "blitz_jobs_active", Help: "Jobs currently being polled"})
)

// Handler exposes the /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			PollsTotal,
			PollErrors,
			JobsCompleted,
			JobsFailed,
			ActiveJobsGauge,
		)
	})
	return promhttp.Handler()
}
