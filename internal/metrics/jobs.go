package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(jobsTotal, jobDurationSeconds, jobsInFlight) }

var (
	jobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tts_jobs_total",
			Help: "Generation jobs by outcome (submitted/completed/failed/reclaimed).",
		},
		[]string{"status"},
	)

	jobDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tts_job_duration_seconds",
			Help:    "Wall time from job start to its terminal state.",
			Buckets: []float64{1, 2.5, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
	)

	jobsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tts_jobs_in_flight",
			Help: "Jobs currently running.",
		},
	)
)

// IncJob counts a job reaching status.
func IncJob(status string) {
	jobsTotal.WithLabelValues(norm(status)).Inc()
}

// AddReclaimedJobs counts jobs removed by the reclamation sweep.
func AddReclaimedJobs(n int) {
	if n > 0 {
		jobsTotal.WithLabelValues("reclaimed").Add(float64(n))
	}
}

// JobStarted marks a job as running and returns the func that records its end.
func JobStarted() func() {
	started := time.Now()

	jobsInFlight.Inc()

	return func() {
		jobsInFlight.Dec()
		jobDurationSeconds.Observe(time.Since(started).Seconds())
	}
}
