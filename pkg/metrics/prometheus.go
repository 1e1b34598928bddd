package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements the domain Metrics interface using Prometheus.
type Recorder struct {
	predictions *prometheus.CounterVec
	trades      *prometheus.CounterVec
	errorsTotal *prometheus.CounterVec
	equity      *prometheus.GaugeVec
	latency     *prometheus.HistogramVec
}

// New registers the agent metrics on reg. A nil reg uses the default registry.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Recorder{
		predictions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finagent_predictions_total",
				Help: "Predictions served, by strategy and signal",
			},
			[]string{"strategy", "signal"},
		),
		trades: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finagent_trades_total",
				Help: "State machine steps that changed the position, by action",
			},
			[]string{"action"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finagent_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		equity: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "finagent_agent_equity",
				Help: "Mark-to-market equity of a live agent",
			},
			[]string{"agent_id"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "finagent_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120, 600},
			},
			[]string{"operation"},
		),
	}
}

func (r *Recorder) RecordPrediction(strategy, signal string) {
	r.predictions.WithLabelValues(strategy, signal).Inc()
}

// RecordTrade counts buy and sell steps.
func (r *Recorder) RecordTrade(action string) {
	r.trades.WithLabelValues(action).Inc()
}

func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

func (r *Recorder) RecordEquity(agentID string, equity float64) {
	r.equity.WithLabelValues(agentID).Set(equity)
}
