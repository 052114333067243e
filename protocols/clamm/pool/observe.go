package pool

import (
	"fmt"
	"math/big"
	"time"

	"github.com/holiman/uint256"

	"github.com/defistate/clamm-go/protocols/clamm/events"
)

var mask160 = new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 160), uint256.NewInt(1))

// Observe returns the tick and seconds-per-liquidity cumulatives as of each look-back in
// secondsAgos, relative to the current block timestamp.
func (p *Pool) Observe(secondsAgos []uint32) (tickCumulatives []int64, secondsPerLiquidityCumulativeX128s []*big.Int, err error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if err = p.checkInitialized(); err != nil {
		return nil, nil, err
	}

	tickCumulatives, spls, err := p.observations.Observe(
		p.clock.BlockTimestamp(),
		secondsAgos,
		p.slot0.Tick,
		p.slot0.ObservationIndex,
		p.liquidity,
		p.slot0.ObservationCardinality,
	)
	if err != nil {
		return nil, nil, err
	}

	secondsPerLiquidityCumulativeX128s = make([]*big.Int, len(spls))
	for i := range spls {
		secondsPerLiquidityCumulativeX128s[i] = spls[i].ToBig()
	}
	return tickCumulatives, secondsPerLiquidityCumulativeX128s, nil
}

// SnapshotCumulativesInside returns the tick cumulative, seconds per liquidity and seconds spent
// inside a range. Values are only meaningful as differences between two snapshots taken while
// both ticks stayed initialized.
func (p *Pool) SnapshotCumulativesInside(tickLower, tickUpper int32) (
	tickCumulativeInside int64,
	secondsPerLiquidityInsideX128 *big.Int,
	secondsInside uint32,
	err error,
) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if err = p.checkInitialized(); err != nil {
		return 0, nil, 0, err
	}
	if err = p.checkTicks(tickLower, tickUpper); err != nil {
		return 0, nil, 0, err
	}

	lower, ok := p.ticks.Get(tickLower)
	if !ok || !lower.Initialized {
		return 0, nil, 0, fmt.Errorf("%w: %d", ErrTickNotInitialized, tickLower)
	}
	upper, ok := p.ticks.Get(tickUpper)
	if !ok || !upper.Initialized {
		return 0, nil, 0, fmt.Errorf("%w: %d", ErrTickNotInitialized, tickUpper)
	}

	var spl uint256.Int
	switch {
	case p.slot0.Tick < tickLower:
		spl.Sub(&lower.SecondsPerLiquidityOutsideX128, &upper.SecondsPerLiquidityOutsideX128)
		tickCumulativeInside = lower.TickCumulativeOutside - upper.TickCumulativeOutside
		secondsInside = lower.SecondsOutside - upper.SecondsOutside
	case p.slot0.Tick < tickUpper:
		blockTimestamp := p.clock.BlockTimestamp()
		tickCumulative, secondsPerLiquidity, err := p.observations.ObserveSingle(
			blockTimestamp, 0, p.slot0.Tick, p.slot0.ObservationIndex, p.liquidity, p.slot0.ObservationCardinality,
		)
		if err != nil {
			return 0, nil, 0, err
		}
		spl.Sub(&secondsPerLiquidity, &lower.SecondsPerLiquidityOutsideX128)
		spl.Sub(&spl, &upper.SecondsPerLiquidityOutsideX128)
		tickCumulativeInside = tickCumulative - lower.TickCumulativeOutside - upper.TickCumulativeOutside
		secondsInside = blockTimestamp - lower.SecondsOutside - upper.SecondsOutside
	default:
		spl.Sub(&upper.SecondsPerLiquidityOutsideX128, &lower.SecondsPerLiquidityOutsideX128)
		tickCumulativeInside = upper.TickCumulativeOutside - lower.TickCumulativeOutside
		secondsInside = upper.SecondsOutside - lower.SecondsOutside
	}
	spl.And(&spl, mask160)
	return tickCumulativeInside, spl.ToBig(), secondsInside, nil
}

// IncreaseObservationCardinalityNext makes room for at least next observations. The buffer
// only grows; smaller values are ignored.
func (p *Pool) IncreaseObservationCardinalityNext(next uint16) (err error) {
	start := time.Now()
	defer func() { p.metrics.observe(p.label, "increaseObservationCardinalityNext", start, err) }()

	if err = p.lock(); err != nil {
		return err
	}
	defer p.unlock()

	if err = p.checkInitialized(); err != nil {
		return err
	}

	blockTimestamp := p.clock.BlockTimestamp()
	old := p.slot0.ObservationCardinalityNext
	var ev events.Event
	p.commit(func() {
		var updated uint16
		if updated, err = p.observations.Grow(old, next); err != nil {
			return
		}
		p.slot0.ObservationCardinalityNext = updated
		if updated != old {
			ev = events.IncreaseObservationCardinalityNext{
				Header: p.header(blockTimestamp),
				Old:    old,
				New:    updated,
			}
		}
	})
	if err != nil {
		return err
	}

	if ev != nil {
		p.logger.Debug("observation cardinality next increased", "pool", p.label, "old", old, "new", next)
	}
	p.emit(ev)
	return nil
}
