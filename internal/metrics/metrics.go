// Package metrics exposes Prometheus metrics for searches, runs and the
// price API client.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds all sharpescan metrics on a private Prometheus registry.
type Registry struct {
	registry *prometheus.Registry

	CombinationsEvaluated prometheus.Counter
	Trials                prometheus.Counter
	RunDuration           *prometheus.HistogramVec
	Runs                  *prometheus.CounterVec
	ActiveRuns            prometheus.Gauge
	BestSharpe            prometheus.Gauge
	AlphaVantageRequests  *prometheus.CounterVec
}

// NewRegistry creates and registers every metric, plus the Go runtime and
// process collectors.
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),

		CombinationsEvaluated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sharpescan_combinations_evaluated_total",
				Help: "Total number of asset combinations scored",
			},
		),

		Trials: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sharpescan_trials_total",
				Help: "Total number of weight vectors sampled and scored",
			},
		),

		RunDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sharpescan_run_duration_seconds",
				Help:    "Wall time of combination search runs",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 3600},
			},
			[]string{"status"},
		),

		Runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sharpescan_runs_total",
				Help: "Total number of runs by final status",
			},
			[]string{"status"},
		),

		ActiveRuns: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "sharpescan_active_runs",
				Help: "Number of runs currently executing",
			},
		),

		BestSharpe: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "sharpescan_best_sharpe",
				Help: "Best in-sample Sharpe ratio of the last completed run",
			},
		),

		AlphaVantageRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sharpescan_alphavantage_requests_total",
				Help: "Alpha Vantage API requests by function and result",
			},
			[]string{"function", "result"},
		),
	}

	r.registry.MustRegister(
		r.CombinationsEvaluated,
		r.Trials,
		r.RunDuration,
		r.Runs,
		r.ActiveRuns,
		r.BestSharpe,
		r.AlphaVantageRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// CombinationEvaluated records one scored combination.
func (r *Registry) CombinationEvaluated(trials int) {
	r.CombinationsEvaluated.Inc()
	r.Trials.Add(float64(trials))
}

// APIRequest records one Alpha Vantage call outcome.
func (r *Registry) APIRequest(function, outcome string) {
	r.AlphaVantageRequests.WithLabelValues(function, outcome).Inc()
}

// RunStarted marks a run as executing.
func (r *Registry) RunStarted() {
	r.ActiveRuns.Inc()
}

// RunFinished records the end of a run. bestSharpe is only recorded for
// successful runs.
func (r *Registry) RunFinished(status string, elapsed time.Duration, bestSharpe float64) {
	r.ActiveRuns.Dec()
	r.Runs.WithLabelValues(status).Inc()
	r.RunDuration.WithLabelValues(status).Observe(elapsed.Seconds())
	if status == "completed" {
		r.BestSharpe.Set(bestSharpe)
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
