// Package metrics exposes Prometheus instruments for the HTTP surface and the
// assessment workflow. Everything registers on a private registry so tests can
// build as many instances as they like.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "automaton_risk"

type Recorder struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	httpInFlight prometheus.Gauge

	analyses        *prometheus.CounterVec
	analysisSeconds *prometheus.HistogramVec
	batchProducts   prometheus.Counter
	memoriesCreated prometheus.Counter
	memoriesRecall  prometheus.Counter
}

// New builds a Recorder. withRuntime adds Go and process collectors.
func New(withRuntime bool) *Recorder {
	reg := prometheus.NewRegistry()
	if withRuntime {
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{Namespace: namespace}),
		)
	}
	f := promauto.With(reg)
	return &Recorder{
		registry: reg,
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http", Name: "requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "http", Name: "request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		httpInFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "http", Name: "requests_in_flight",
			Help: "HTTP requests currently being served.",
		}),
		analyses: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "assessment", Name: "analyses_total",
			Help: "Finished analyses by terminal status and error kind.",
		}, []string{"status", "kind"}),
		analysisSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "assessment", Name: "analysis_duration_seconds",
			Help:    "Wall time of the analysis engine call.",
			Buckets: []float64{.25, .5, 1, 2.5, 5, 10, 20, 30, 60},
		}, []string{"status"}),
		batchProducts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "assessment", Name: "batch_products_total",
			Help: "Products submitted through batch analysis.",
		}),
		memoriesCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "memory", Name: "created_total",
			Help: "Memories written after completed analyses.",
		}),
		memoriesRecall: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "memory", Name: "recalled_total",
			Help: "Memories recalled into analysis context.",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

func (r *Recorder) RequestStarted()  { r.httpInFlight.Inc() }
func (r *Recorder) RequestFinished() { r.httpInFlight.Dec() }

func (r *Recorder) ObserveRequest(method, route string, status int, d time.Duration) {
	r.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	r.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// AnalysisFinished records one terminal analysis. kind is empty on success.
func (r *Recorder) AnalysisFinished(status, kind string, d time.Duration) {
	if kind == "" {
		kind = "none"
	}
	r.analyses.WithLabelValues(status, kind).Inc()
	r.analysisSeconds.WithLabelValues(status).Observe(d.Seconds())
}

func (r *Recorder) BatchSubmitted(products int) { r.batchProducts.Add(float64(products)) }
func (r *Recorder) MemoryCreated()              { r.memoriesCreated.Inc() }
func (r *Recorder) MemoriesRecalled(n int)      { r.memoriesRecall.Add(float64(n)) }
