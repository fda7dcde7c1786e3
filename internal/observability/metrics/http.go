package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTPServerMetrics carries the api service's HTTP traffic metrics plus the
// chat turn counters. It implements usecase.TurnTelemetry so degraded
// retrievers and history persist failures stay visible even when the turn
// itself succeeds.
type HTTPServerMetrics struct {
	registry *prometheus.Registry
	service  string

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	turnsCompletedTotal  *prometheus.CounterVec
	turnsFailedTotal     *prometheus.CounterVec
	turnDuration         *prometheus.HistogramVec
	turnSources          *prometheus.HistogramVec
	turnNoContextTotal   *prometheus.CounterVec
	retrieverDegraded    *prometheus.CounterVec
	historyPersistFailed prometheus.Counter
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docuchat",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docuchat",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "docuchat",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	turnsCompletedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docuchat",
			Subsystem: "chat",
			Name:      "turns_completed_total",
			Help:      "Total completed chat turns by session mode.",
		},
		[]string{"service", "mode"},
	)
	turnsFailedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docuchat",
			Subsystem: "chat",
			Name:      "turns_failed_total",
			Help:      "Total failed chat turns by session mode and stage.",
		},
		[]string{"service", "mode", "stage"},
	)
	turnDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docuchat",
			Subsystem: "chat",
			Name:      "turn_duration_seconds",
			Help:      "Chat turn duration in seconds by session mode.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 80, 120},
		},
		[]string{"service", "mode"},
	)
	turnSources := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docuchat",
			Subsystem: "chat",
			Name:      "turn_sources",
			Help:      "Distribution of cited sources per completed turn.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"service", "mode"},
	)
	turnNoContextTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docuchat",
			Subsystem: "chat",
			Name:      "turn_no_context_total",
			Help:      "Total turns answered without any retrieved context.",
		},
		[]string{"service", "mode"},
	)
	retrieverDegraded := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docuchat",
			Subsystem: "chat",
			Name:      "retriever_degraded_total",
			Help:      "Total retrieval calls degraded to an empty list.",
		},
		[]string{"service", "partition", "kind"},
	)
	historyPersistFailed := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "docuchat",
			Subsystem: "chat",
			Name:      "history_persist_failures_total",
			Help:      "Total turns whose history append failed after the answer was produced.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		turnsCompletedTotal,
		turnsFailedTotal,
		turnDuration,
		turnSources,
		turnNoContextTotal,
		retrieverDegraded,
		historyPersistFailed,
	)

	return &HTTPServerMetrics{
		registry:             registry,
		service:              service,
		requestTotal:         requestTotal,
		requestDuration:      requestDuration,
		requestInFlight:      requestInFlight,
		turnsCompletedTotal:  turnsCompletedTotal,
		turnsFailedTotal:     turnsFailedTotal,
		turnDuration:         turnDuration,
		turnSources:          turnSources,
		turnNoContextTotal:   turnNoContextTotal,
		retrieverDegraded:    retrieverDegraded,
		historyPersistFailed: historyPersistFailed,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			m.service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(m.service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/documents/"):
		return "/v1/documents/{document_id}"
	default:
		return path
	}
}

// TurnTelemetry implementation.

func (m *HTTPServerMetrics) TurnCompleted(mode string) {
	m.turnsCompletedTotal.WithLabelValues(m.service, orUnknown(mode)).Inc()
}

func (m *HTTPServerMetrics) TurnFailed(mode, stage string) {
	m.turnsFailedTotal.WithLabelValues(m.service, orUnknown(mode), orUnknown(stage)).Inc()
}

func (m *HTTPServerMetrics) RetrieverDegraded(partition, kind string) {
	m.retrieverDegraded.WithLabelValues(m.service, orUnknown(partition), orUnknown(kind)).Inc()
}

func (m *HTTPServerMetrics) HistoryPersistFailed() {
	m.historyPersistFailed.Inc()
}

// ObserveTurn records duration and citation fan-out of a completed turn.
func (m *HTTPServerMetrics) ObserveTurn(mode string, sourceCount int, duration time.Duration) {
	mode = orUnknown(mode)
	m.turnDuration.WithLabelValues(m.service, mode).Observe(duration.Seconds())
	m.turnSources.WithLabelValues(m.service, mode).Observe(float64(sourceCount))
	if sourceCount == 0 {
		m.turnNoContextTotal.WithLabelValues(m.service, mode).Inc()
	}
}

func orUnknown(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
