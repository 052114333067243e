package differ

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/defistate/clamm-go/engine"
	"github.com/defistate/clamm-go/protocols/clamm"
)

var (
	ErrChainMismatch = errors.New("differ: states are from different chains")
	ErrBlockOrder    = errors.New("differ: new state is not after old state")
)

// StateDifferConfig holds the differ's dependencies.
type StateDifferConfig struct {
	Registry prometheus.Registerer
	Logger   Logger
}

func (c *StateDifferConfig) validate() error {
	if c.Registry == nil {
		return errors.New("config: Registry cannot be nil")
	}
	if c.Logger == nil {
		return errors.New("config: Logger cannot be nil")
	}
	return nil
}

// StateDiffer computes the diff between consecutive states.
type StateDiffer struct {
	metrics *Metrics
	logger  Logger
}

// NewStateDiffer constructs a new differ from a configuration, returning an error if the config is invalid.
func NewStateDiffer(cfg *StateDifferConfig) (*StateDiffer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	metrics, err := NewMetrics(cfg.Registry)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	return &StateDiffer{metrics: metrics, logger: cfg.Logger}, nil
}

// Diff returns the changes that turn old into new.
func (d *StateDiffer) Diff(old, new *engine.State) (*StateDiff, error) {
	timer := prometheus.NewTimer(d.metrics.diffDuration.WithLabelValues())
	defer timer.ObserveDuration()

	if old.ChainID != new.ChainID {
		return nil, fmt.Errorf("%w: %d and %d", ErrChainMismatch, old.ChainID, new.ChainID)
	}
	if new.Block.Number <= old.Block.Number {
		return nil, fmt.Errorf("%w: block %d after %d", ErrBlockOrder, new.Block.Number, old.Block.Number)
	}

	pools := clamm.Differ(old.Pools, new.Pools)
	d.metrics.poolChanges.WithLabelValues("addition").Add(float64(len(pools.Additions)))
	d.metrics.poolChanges.WithLabelValues("update").Add(float64(len(pools.Updates)))
	d.metrics.poolChanges.WithLabelValues("deletion").Add(float64(len(pools.Deletions)))

	d.logger.Debug("state diffed",
		"from_block", old.Block.Number,
		"to_block", new.Block.Number,
		"additions", len(pools.Additions),
		"updates", len(pools.Updates),
		"deletions", len(pools.Deletions),
	)

	return &StateDiff{
		ChainID:   new.ChainID,
		Timestamp: uint64(time.Now().UnixNano()),
		FromBlock: old.Block.Number,
		ToBlock:   new.Block,
		Pools:     pools,
	}, nil
}
