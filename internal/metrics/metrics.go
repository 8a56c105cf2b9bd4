package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Upsert path

	UpsertsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scheduler",
		Name:      "upserts_total",
		Help:      "Total upsertJobScheduler calls, by outcome.",
	}, []string{"outcome"}) // committed | empty | error

	UpsertDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "scheduler",
		Name:      "upsert_duration_seconds",
		Help:      "Time to validate, compute nextFireMs, and commit the transaction.",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	})

	// Steady-state shape of the scheduler set

	LiveSchedulers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "scheduler",
		Name:      "live_definitions",
		Help:      "Cardinality of the repeat index at last observation.",
	})

	TransactionErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scheduler",
		Name:      "transaction_errors_total",
		Help:      "Composite transaction failures, by cause.",
	}, []string{"cause"}) // duplicate_instance | script_error

	RemovalsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "scheduler",
		Name:      "removals_total",
		Help:      "Total removeJobScheduler calls that removed an entry.",
	})

	// HTTP metrics (admin surface)

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "scheduler",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scheduler",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests.",
	}, []string{"method", "path", "status"})
)

func Register() {
	prometheus.MustRegister(
		UpsertsTotal,
		UpsertDuration,
		LiveSchedulers,
		TransactionErrorsTotal,
		RemovalsTotal,
		HTTPRequestDuration,
		HTTPRequestsTotal,
	)
}

func NewServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &http.Server{Addr: addr, Handler: mux}
}
