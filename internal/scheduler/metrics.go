package scheduler

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for housekeeping jobs.
type Metrics struct {
	Runs        *prometheus.CounterVec
	RunDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers scheduler metrics.
// Returns nil if reg is nil.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		return nil
	}

	m := &Metrics{
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "duka",
			Subsystem: "housekeeping",
			Name:      "runs_total",
			Help:      "Total housekeeping job runs by outcome.",
		}, []string{"job", "status"}),
		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "duka",
			Subsystem: "housekeeping",
			Name:      "run_duration_seconds",
			Help:      "Duration of each housekeeping job run.",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 30},
		}, []string{"job"}),
	}

	reg.MustRegister(m.Runs, m.RunDuration)
	return m
}
