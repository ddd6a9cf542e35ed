package edition

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for registry operations. A nil
// *Metrics records nothing.
type Metrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	minted     prometheus.Gauge
}

// NewMetrics registers the registry collectors with reg. A nil reg uses
// prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "edition",
			Name:      "operations_total",
			Help:      "Registry mutations by operation and outcome",
		}, []string{"operation", "outcome"}),

		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "edition",
			Name:      "operation_duration_seconds",
			Help:      "Registry mutation latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),

		minted: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "edition",
			Name:      "token_minted",
			Help:      "1 once the token has been minted",
		}),
	}
}

func (m *Metrics) observe(op string, started time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
		if re, ok := AsRegistryError(err); ok {
			outcome = re.Code
		}
	}
	m.operations.WithLabelValues(op, outcome).Inc()
	m.duration.WithLabelValues(op).Observe(time.Since(started).Seconds())
}

func (m *Metrics) setMinted(minted bool) {
	if m == nil {
		return
	}
	if minted {
		m.minted.Set(1)
	} else {
		m.minted.Set(0)
	}
}
