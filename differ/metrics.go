package differ

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the differ's collectors.
type Metrics struct {
	diffDuration *prometheus.HistogramVec
	poolChanges  *prometheus.CounterVec
}

// NewMetrics registers the differ's collectors on reg. Collectors already registered by another
// differ on the same registry are reused.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	diffDuration, err := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "clamm",
		Subsystem: "differ",
		Name:      "diff_duration_seconds",
		Help:      "Time taken to diff two states.",
		Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
	}, nil))
	if err != nil {
		return nil, err
	}
	poolChanges, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "clamm",
		Subsystem: "differ",
		Name:      "pool_changes_total",
		Help:      "Pools added, updated or deleted between consecutive states.",
	}, []string{"change"}))
	if err != nil {
		return nil, err
	}
	return &Metrics{diffDuration: diffDuration, poolChanges: poolChanges}, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}
