package observability

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

// Entry outcomes and detection outcomes used as metric labels.
const (
	OutcomeEvaluated = "evaluated"
	OutcomeFailed    = "failed"

	DetectionAI      = "ai"
	DetectionHuman   = "human"
	DetectionUnknown = "unknown"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 30, 120},
		},
		[]string{"route", "method"},
	)

	AIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_requests_total",
			Help: "Total number of AI requests by provider, operation and status",
		},
		[]string{"provider", "operation", "status"},
	)
	AIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_request_duration_seconds",
			Help:    "AI request duration in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"provider", "operation"},
	)
	AITokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_tokens_total",
			Help: "Estimated tokens exchanged with AI providers",
		},
		[]string{"provider", "direction"},
	)

	EvaluationRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evaluation_runs_total",
			Help: "Total number of evaluation runs by mode",
		},
		[]string{"mode"},
	)
	EvaluationEntriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evaluation_entries_total",
			Help: "Entries attempted by outcome",
		},
		[]string{"outcome"},
	)
	AIOriginDetectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_origin_detections_total",
			Help: "AI-origin detections by outcome",
		},
		[]string{"outcome"},
	)
	ExtractionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "text_extractions_total",
			Help: "Document text extractions by extractor, format and status",
		},
		[]string{"extractor", "format", "status"},
	)
	ExtractionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "text_extraction_duration_seconds",
			Help:    "Document text extraction duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15},
		},
		[]string{"extractor", "format"},
	)
	RunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "evaluation_run_duration_seconds",
			Help:    "Wall time of an evaluation run",
			Buckets: []float64{1, 5, 15, 30, 60, 180, 600},
		},
		[]string{"mode"},
	)
	AICircuitState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ai_circuit_state",
			Help: "AI client circuit state (0 closed, 1 open, 2 half-open)",
		},
		[]string{"client"},
	)
)

func InitMetrics() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(AIRequestsTotal)
	prometheus.MustRegister(AIRequestDuration)
	prometheus.MustRegister(AITokensTotal)
	prometheus.MustRegister(EvaluationRunsTotal)
	prometheus.MustRegister(EvaluationEntriesTotal)
	prometheus.MustRegister(AIOriginDetectionsTotal)
	prometheus.MustRegister(ExtractionsTotal)
	prometheus.MustRegister(ExtractionDuration)
	prometheus.MustRegister(RunDuration)
	prometheus.MustRegister(AICircuitState)
}

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			route = r.URL.Path
		}
		HTTPRequestsTotal.WithLabelValues(route, r.Method, http.StatusText(ww.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(dur)
	})
}

// ObserveAIRequest records one call to an AI provider.
func ObserveAIRequest(provider, operation string, err error, dur time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	AIRequestsTotal.WithLabelValues(provider, operation, status).Inc()
	AIRequestDuration.WithLabelValues(provider, operation).Observe(dur.Seconds())
}

// ObserveAITokens adds estimated prompt and completion token counts.
func ObserveAITokens(provider string, in, out int) {
	if in > 0 {
		AITokensTotal.WithLabelValues(provider, "input").Add(float64(in))
	}
	if out > 0 {
		AITokensTotal.WithLabelValues(provider, "output").Add(float64(out))
	}
}

// ObserveEntry counts one attempted entry.
func ObserveEntry(outcome string) {
	EvaluationEntriesTotal.WithLabelValues(outcome).Inc()
}

// ObserveDetection counts one AI-origin detection.
func ObserveDetection(outcome string) {
	AIOriginDetectionsTotal.WithLabelValues(outcome).Inc()
}

// ObserveRun records a finished run.
func ObserveRun(mode string, dur time.Duration) {
	EvaluationRunsTotal.WithLabelValues(mode).Inc()
	RunDuration.WithLabelValues(mode).Observe(dur.Seconds())
}

// ObserveExtraction records one document extraction. format is the lower-case
// extension without the dot.
func ObserveExtraction(extractor, format string, err error, dur time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	ExtractionsTotal.WithLabelValues(extractor, format, status).Inc()
	ExtractionDuration.WithLabelValues(extractor, format).Observe(dur.Seconds())
}

// ObserveCircuitState records the breaker state of an AI client.
func ObserveCircuitState(client string, state int) {
	AICircuitState.WithLabelValues(client).Set(float64(state))
}
