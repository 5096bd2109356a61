// Package telemetry exposes Prometheus metrics for backtest runs.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"stratlab/internal/domain"
	"stratlab/internal/engine"
)

var (
	RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "stratlab_runs_total", Help: "Backtest runs by strategy and outcome"},
		[]string{"strategy", "status"},
	)
	RunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stratlab_run_duration_seconds",
			Help:    "Wall time of a whole backtest run",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		},
		[]string{"strategy"},
	)
	SimulationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "stratlab_simulations_total", Help: "Per-symbol simulations completed"},
		[]string{"strategy"},
	)
	BarsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "stratlab_bars_processed_total", Help: "Bars replayed through strategies"},
		[]string{"strategy"},
	)
	SimulationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stratlab_simulation_duration_seconds",
			Help:    "Wall time of one symbol's simulation",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		},
		[]string{"strategy"},
	)
	TradesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "stratlab_trades_total", Help: "Simulated fills"},
		[]string{"strategy", "side"},
	)
	RejectedFillsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "stratlab_rejected_fills_total", Help: "BUY signals the risk manager refused"},
		[]string{"strategy"},
	)
)

func init() {
	prometheus.MustRegister(RunsTotal, RunDuration, SimulationsTotal, BarsProcessed,
		SimulationDuration, TradesTotal, RejectedFillsTotal)
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve starts a standalone /metrics server on addr.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}

var _ engine.Observer = Recorder{}

// Recorder feeds engine events into the package metrics.
type Recorder struct{}

// ObserveTrade counts a fill.
func (Recorder) ObserveTrade(strategy string, t domain.Trade) {
	TradesTotal.WithLabelValues(strategy, string(t.Side)).Inc()
}

// ObserveRejection counts a refused BUY.
func (Recorder) ObserveRejection(strategy string, _ engine.Rejection) {
	RejectedFillsTotal.WithLabelValues(strategy).Inc()
}

// ObserveSimulation records one symbol's replay.
func (Recorder) ObserveSimulation(strategy, _ string, bars int, elapsed time.Duration) {
	SimulationsTotal.WithLabelValues(strategy).Inc()
	BarsProcessed.WithLabelValues(strategy).Add(float64(bars))
	SimulationDuration.WithLabelValues(strategy).Observe(elapsed.Seconds())
}

// ObserveRun records a finished run. err == nil counts as completed.
func (Recorder) ObserveRun(strategy string, elapsed time.Duration, err error) {
	status := "completed"
	if err != nil {
		status = "failed"
	}
	RunsTotal.WithLabelValues(strategy, status).Inc()
	RunDuration.WithLabelValues(strategy).Observe(elapsed.Seconds())
}
