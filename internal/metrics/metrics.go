package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "churn"

// Metrics holds the service's Prometheus collectors on a private registry
type Metrics struct {
	registry *prometheus.Registry

	responses            *prometheus.CounterVec
	predictions          *prometheus.CounterVec
	inferenceSeconds     prometheus.Histogram
	probabilitySupported prometheus.Gauge
}

// New creates and registers all collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		responses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_responses_total",
			Help:      "HTTP responses by route pattern, method and status code.",
		}, []string{"route", "method", "status"}),
		predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      "Predictions by outcome: class_0, class_1 or error.",
		}, []string{"outcome"}),
		inferenceSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "inference_duration_seconds",
			Help:      "Time spent mapping, shaping and classifying a record.",
			Buckets:   []float64{.0001, .00025, .0005, .001, .0025, .005, .01, .025, .05, .1},
		}),
		probabilitySupported: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "model_probability_supported",
			Help:      "1 when the loaded model estimates class probabilities.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.responses,
		m.predictions,
		m.inferenceSeconds,
		m.probabilitySupported,
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// SetProbabilitySupported records the loaded model's capability
func (m *Metrics) SetProbabilitySupported(supported bool) {
	if supported {
		m.probabilitySupported.Set(1)
	} else {
		m.probabilitySupported.Set(0)
	}
}

// ObservePrediction records one successful inference
func (m *Metrics) ObservePrediction(class int, elapsed time.Duration) {
	m.predictions.WithLabelValues("class_" + strconv.Itoa(class)).Inc()
	m.inferenceSeconds.Observe(elapsed.Seconds())
}

// ObserveFailure records one failed inference
func (m *Metrics) ObserveFailure(elapsed time.Duration) {
	m.predictions.WithLabelValues("error").Inc()
	m.inferenceSeconds.Observe(elapsed.Seconds())
}

// Middleware counts responses by chi route pattern
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		m.responses.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
	})
}
