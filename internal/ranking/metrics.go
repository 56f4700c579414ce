package ranking

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Delivery phase labels.
const (
	phaseEarly = "early"
	phaseFinal = "final"
)

// Metrics contains Prometheus metrics for ranking operations. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	deliveredTotal  *prometheus.CounterVec
	scoredTotal     prometheus.Counter
	scoringFailures prometheus.Counter
	rankingDuration prometheus.Histogram
}

// NewMetrics creates all collectors. They are not registered; call Register
// to attach them to a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		deliveredTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ranking_results_delivered_total",
				Help: "Total number of results handed to the transport by delivery phase",
			},
			[]string{"phase"},
		),
		scoredTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ranking_candidates_scored_total",
				Help: "Total number of candidates scored successfully",
			},
		),
		scoringFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ranking_scoring_failures_total",
				Help: "Total number of per-item scoring failures",
			},
		),
		rankingDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ranking_batch_duration_seconds",
				Help:    "Histogram of fan-out duration per ranking request",
				Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0, 60.0},
			},
		),
	}
}

// Register registers all collectors with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.deliveredTotal,
		m.scoredTotal,
		m.scoringFailures,
		m.rankingDuration,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) delivered(phase string) {
	if m == nil {
		return
	}
	m.deliveredTotal.WithLabelValues(phase).Inc()
}

func (m *Metrics) scored() {
	if m == nil {
		return
	}
	m.scoredTotal.Inc()
}

func (m *Metrics) scoringFailed() {
	if m == nil {
		return
	}
	m.scoringFailures.Inc()
}

func (m *Metrics) observeDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.rankingDuration.Observe(d.Seconds())
}
