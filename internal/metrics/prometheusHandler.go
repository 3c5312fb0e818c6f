package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var HttpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "http_requests_total",
	Help: "Total number of requests labelled by path and status",
}, []string{"path", "status"})

var chatRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "chat_request_duration_seconds",
	Help:    "Total time spent answering a chat request, by mode.",
	Buckets: []float64{.1, .5, 1, 2, 5, 10, 30, 60, 120},
}, []string{"mode"})

var dependencyLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "dependency_latency_seconds",
	Help:    "Latency of external service calls.",
	Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10},
}, []string{"service"})

var rewritePasses = promauto.NewCounter(prometheus.CounterOpts{
	Name: "readability_rewrite_passes_total",
	Help: "Number of readability rewrite passes issued to the model.",
})

var ingestedChunks = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ingested_chunks_total",
	Help: "Chunks indexed per corpus.",
}, []string{"corpus"})

type HttpStatusRecorder struct {
	http.ResponseWriter
	Status int
}

func (r *HttpStatusRecorder) WriteHeader(code int) {
	r.Status = code
	r.ResponseWriter.WriteHeader(code)
}

func CaptureExecutionMetrics(label string, timeElapsed time.Duration) {
	dependencyLatency.WithLabelValues(label).Observe(timeElapsed.Seconds())
}

func CaptureChatMetrics(mode string, timeElapsed time.Duration) {
	chatRequestDuration.WithLabelValues(mode).Observe(timeElapsed.Seconds())
}

func IncrementRewritePasses() {
	rewritePasses.Inc()
}

func CountIngestedChunks(corpus string, n int) {
	ingestedChunks.WithLabelValues(corpus).Add(float64(n))
}
