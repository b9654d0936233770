package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(chunkAttemptsTotal, chunkFallbacksTotal, resourceLoadsTotal, resourceEvictionsTotal)
}

var (
	chunkAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tts_chunk_attempts_total",
			Help: "Synthesis attempts per chunk by result (success/failure).",
		},
		[]string{"result"},
	)

	chunkFallbacksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tts_chunk_fallbacks_total",
			Help: "Chunks replaced by silence after exhausting their attempts.",
		},
	)

	resourceLoadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tts_resource_loads_total",
			Help: "Synthesis resource loads by result (success/failure).",
		},
		[]string{"result"},
	)

	resourceEvictionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tts_resource_evictions_total",
			Help: "Synthesis resources released by the idle sweep or an explicit unload.",
		},
	)
)

// ObserveChunk records the attempts of one finished chunk.
func ObserveChunk(attempts int, fallback bool) {
	failures := attempts
	if !fallback {
		failures--

		chunkAttemptsTotal.WithLabelValues("success").Inc()
	} else {
		chunkFallbacksTotal.Inc()
	}

	if failures > 0 {
		chunkAttemptsTotal.WithLabelValues("failure").Add(float64(failures))
	}
}

// ObserveResourceLoad records one load of the synthesis resource.
func ObserveResourceLoad(err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}

	resourceLoadsTotal.WithLabelValues(result).Inc()
}

// IncResourceEviction counts one released resource.
func IncResourceEviction() {
	resourceEvictionsTotal.Inc()
}
