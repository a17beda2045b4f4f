// Package metrics provides Prometheus metrics for the note store
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"fractalnote/internal/domain"
)

// Metrics holds all Prometheus metrics for the note store
type Metrics struct {
	// Mutation metrics
	MutationsTotal   *prometheus.CounterVec
	MutationDuration *prometheus.HistogramVec

	// Store metrics
	LockWaitDuration *prometheus.HistogramVec
	CascadeNodes     *prometheus.HistogramVec
	NodesTotal       prometheus.Gauge
	TokenBumpsTotal  prometheus.Counter
}

// New creates the metrics and registers them with reg. A nil reg keeps the
// collectors unregistered, which is what short-lived CLI invocations want.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		MutationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fractalnote_mutations_total",
				Help: "Total number of tree mutations by operation and outcome",
			},
			[]string{"op", "outcome"},
		),
		MutationDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fractalnote_mutation_duration_seconds",
				Help:    "Duration of tree mutations in seconds, lock wait included",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"op"},
		),
		LockWaitDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fractalnote_lock_wait_seconds",
				Help:    "Time spent waiting for the store lock",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"mode"},
		),
		CascadeNodes: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fractalnote_cascade_nodes",
				Help:    "Number of nodes touched by a delete or reparent cascade",
				Buckets: prometheus.ExponentialBuckets(1, 2, 10),
			},
			[]string{"op"},
		),
		NodesTotal: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "fractalnote_nodes_total",
				Help: "Number of nodes seen by the last tree build",
			},
		),
		TokenBumpsTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "fractalnote_token_bumps_total",
				Help: "Total number of version token bumps after a commit",
			},
		),
	}
}

// Outcome classifies an operation error into a low-cardinality label
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrConflict):
		return "conflict"
	case errors.Is(err, domain.ErrNoChanges):
		return "no_changes"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrNotEditable):
		return "not_editable"
	case errors.Is(err, domain.ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, domain.ErrLogicViolation):
		return "logic_violation"
	default:
		return "error"
	}
}

// ObserveMutation records the outcome and duration of one mutation
func (m *Metrics) ObserveMutation(op string, started time.Time, err error) {
	m.MutationsTotal.WithLabelValues(op, Outcome(err)).Inc()
	m.MutationDuration.WithLabelValues(op).Observe(time.Since(started).Seconds())
}

// ObserveLockWait records how long acquiring the store lock took
func (m *Metrics) ObserveLockWait(mode string, d time.Duration) {
	m.LockWaitDuration.WithLabelValues(mode).Observe(d.Seconds())
}
