package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "renderer",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "renderer",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.3, 1, 5},
	}, []string{"method", "path"})

	RenderJobsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "renderer",
		Name:      "render_jobs_total",
		Help:      "Render jobs by terminal status.",
	}, []string{"status"})

	RenderActiveJobs = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "renderer",
		Name:      "render_active_jobs",
		Help:      "Number of render jobs currently being processed.",
	})

	RenderDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "renderer",
		Name:      "render_duration_seconds",
		Help:      "Wall time of a render job from start to terminal state.",
		Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 900},
	})

	FetchTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "renderer",
		Name:      "fetch_total",
		Help:      "Remote source downloads by result.",
	}, []string{"result"})

	FetchBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "renderer",
		Name:      "fetch_bytes_total",
		Help:      "Bytes downloaded from remote sources.",
	})

	JobsEvictedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "renderer",
		Name:      "jobs_evicted_total",
		Help:      "Jobs removed by the retention sweep.",
	})

	RecordUpdateFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "renderer",
		Name:      "record_update_failures_total",
		Help:      "External record updates that failed.",
	})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		RenderJobsTotal,
		RenderActiveJobs,
		RenderDuration,
		FetchTotal,
		FetchBytes,
		JobsEvictedTotal,
		RecordUpdateFailures,
	)
}
