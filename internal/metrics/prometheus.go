package metrics

import (
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds ledger and scheduler metrics. All methods are safe on a nil *Collector.
type Collector struct {
	registry          *prometheus.Registry
	postings          *prometheus.CounterVec
	postingDuration   prometheus.Histogram
	jobRuns           *prometheus.CounterVec
	jobLoansProcessed *prometheus.CounterVec
	jobLoanErrors     *prometheus.CounterVec
}

func NewCollector() *Collector {
	registry := prometheus.NewRegistry()

	return &Collector{
		registry: registry,
		postings: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_postings_total",
			Help: "Ledger postings by outcome (committed, replayed, rejected, failed)",
		}, []string{"outcome"}),
		postingDuration: promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
			Name:    "ledger_posting_duration_seconds",
			Help:    "Time taken to post a balanced transaction",
			Buckets: prometheus.DefBuckets,
		}),
		jobRuns: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "loan_job_runs_total",
			Help: "Scheduler job runs by job and result",
		}, []string{"job", "result"}),
		jobLoansProcessed: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "loan_job_loans_processed_total",
			Help: "Loans successfully processed by scheduler jobs",
		}, []string{"job"}),
		jobLoanErrors: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "loan_job_loan_errors_total",
			Help: "Per-loan failures in scheduler jobs",
		}, []string{"job"}),
	}
}

func (m *Collector) RecordPosting(duration time.Duration, outcome string) {
	if m == nil {
		return
	}
	m.postings.WithLabelValues(outcome).Inc()
	m.postingDuration.Observe(duration.Seconds())
}

func (m *Collector) RecordJob(job, result string, processed, failures int) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job, result).Inc()
	m.jobLoansProcessed.WithLabelValues(job).Add(float64(processed))
	m.jobLoanErrors.WithLabelValues(job).Add(float64(failures))
}

func (m *Collector) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartMetricsServer serves /metrics on its own listener
func (m *Collector) StartMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("[METRICS] Starting metrics server on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[METRICS] Metrics server failed: %v", err)
		}
	}()

	return server
}
