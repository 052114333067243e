package pool

import (
	"errors"
	"math/big"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors shared by every pool registered on the same registry.
type Metrics struct {
	operations   *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	ticksCrossed *prometheus.CounterVec
	tick         *prometheus.GaugeVec
	liquidity    *prometheus.GaugeVec
}

// NewMetrics registers the pool collectors on reg. Collectors already registered by another
// pool are reused.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	operations, err := register(reg, prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clamm",
			Subsystem: "pool",
			Name:      "operations_total",
			Help:      "Pool operations by result.",
		},
		[]string{"pool", "op", "result"},
	))
	if err != nil {
		return nil, err
	}
	duration, err := register(reg, prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "clamm",
			Subsystem: "pool",
			Name:      "operation_duration_seconds",
			Help:      "Time spent inside a pool operation, including callbacks.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		},
		[]string{"pool", "op"},
	))
	if err != nil {
		return nil, err
	}
	ticksCrossed, err := register(reg, prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clamm",
			Subsystem: "pool",
			Name:      "ticks_crossed_total",
			Help:      "Initialized ticks crossed by swaps.",
		},
		[]string{"pool"},
	))
	if err != nil {
		return nil, err
	}
	tickGauge, err := register(reg, prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "clamm",
			Subsystem: "pool",
			Name:      "tick",
			Help:      "Current tick of the pool.",
		},
		[]string{"pool"},
	))
	if err != nil {
		return nil, err
	}
	liquidity, err := register(reg, prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "clamm",
			Subsystem: "pool",
			Name:      "liquidity",
			Help:      "Active liquidity of the pool, as a float approximation.",
		},
		[]string{"pool"},
	))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		operations:   operations,
		duration:     duration,
		ticksCrossed: ticksCrossed,
		tick:         tickGauge,
		liquidity:    liquidity,
	}, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		var zero T
		return zero, err
	}
	return c, nil
}

// observe records the outcome of one operation.
func (m *Metrics) observe(pool, op string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = Classify(err).String()
	}
	m.operations.WithLabelValues(pool, op, result).Inc()
	m.duration.WithLabelValues(pool, op).Observe(time.Since(start).Seconds())
}

func (m *Metrics) setState(pool string, tick int32, liquidity *big.Int) {
	m.tick.WithLabelValues(pool).Set(float64(tick))
	f, _ := new(big.Float).SetInt(liquidity).Float64()
	m.liquidity.WithLabelValues(pool).Set(f)
}
