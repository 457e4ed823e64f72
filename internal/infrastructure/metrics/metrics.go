package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Generations
	Generations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codegen_generations_total",
			Help: "Generate requests by final status",
		},
		[]string{"status"}, // status: succeeded|failed|rejected
	)
	GenerationDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "codegen_generation_duration_seconds",
			Help:    "Histogram of generate durations in seconds",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10), // 0.25s..128s
		},
	)
	InFlightGenerations = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "codegen_generations_in_flight",
			Help: "Generate requests waiting on the model",
		},
	)

	// Validation
	ValidationRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codegen_validation_rejections_total",
			Help: "Descriptions rejected before reaching the model",
		},
		[]string{"reason"}, // reason: empty|too_long
	)

	// LLM
	LLMRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codegen_llm_requests_total",
			Help: "Number of LLM requests by model",
		},
		[]string{"model"},
	)

	// History store ops
	HistoryOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codegen_history_ops_total",
			Help: "History store operations performed",
		},
		[]string{"op"}, // op: get|put|delete|list
	)

	// Websockets
	WebsocketConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "codegen_ws_connections",
			Help: "Current number of open websocket connections",
		},
	)

	// HTTP
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed.",
		},
		[]string{"method", "path"},
	)
	HTTPErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total number of HTTP request errors.",
		},
		[]string{"method", "path", "status"},
	)

	// Errors
	Errors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codegen_errors_total",
			Help: "Errors encountered in components",
		},
		[]string{"component", "type"},
	)
)

func init() {
	prometheus.MustRegister(
		// Generations
		Generations,
		GenerationDurationSeconds,
		InFlightGenerations,
		// Validation
		ValidationRejections,
		// LLM
		LLMRequests,
		// History
		HistoryOps,
		// WS
		WebsocketConnections,
		// HTTP
		HTTPRequestDuration,
		HTTPRequests,
		HTTPErrors,
		// Errors
		Errors,
	)
}

// StartMetricsServer serves /metrics on addr until ctx is done.
func StartMetricsServer(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Generations
func IncGeneration(status string) {
	Generations.WithLabelValues(status).Inc()
}

func ObserveGenerationDuration(d time.Duration) {
	GenerationDurationSeconds.Observe(d.Seconds())
}

func IncInFlight() {
	InFlightGenerations.Inc()
}

func DecInFlight() {
	InFlightGenerations.Dec()
}

// Validation
func IncValidationRejection(reason string) {
	ValidationRejections.WithLabelValues(reason).Inc()
}

// LLM
func IncLLMRequest(model string) {
	LLMRequests.WithLabelValues(model).Inc()
}

// History
func IncHistoryOp(op string) {
	HistoryOps.WithLabelValues(op).Inc()
}

// Websocket
func IncWSConnections() {
	WebsocketConnections.Inc()
}

func DecWSConnections() {
	WebsocketConnections.Dec()
}

// HTTP
func ObserveHTTPRequest(method, path string, status int, d time.Duration) {
	code := strconv.Itoa(status)
	HTTPRequests.WithLabelValues(method, path).Inc()
	HTTPRequestDuration.WithLabelValues(method, path, code).Observe(d.Seconds())
	if status >= 400 {
		HTTPErrors.WithLabelValues(method, path, code).Inc()
	}
}

// Errors
func IncError(component, typ string) {
	Errors.WithLabelValues(component, typ).Inc()
}
