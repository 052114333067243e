// Package oracle keeps a growable ring buffer of price and liquidity observations.
//
// Each observation holds running sums since pool initialization: the tick multiplied by
// elapsed seconds, and elapsed seconds divided by active liquidity. Differences between two
// observations give the time-weighted average tick and liquidity over the interval. At most
// one observation is written per block timestamp.
package oracle

import (
	"errors"
	"math/big"

	"github.com/holiman/uint256"
)

// MaxCardinality is the largest number of observations a buffer can hold.
const MaxCardinality = 65535

var (
	// ErrObservationUnavailable is returned for a look-back older than the oldest observation.
	ErrObservationUnavailable = errors.New("oracle: observation older than the retained window")
	// ErrUninitialized is returned when the buffer has not been initialized.
	ErrUninitialized = errors.New("oracle: not initialized")
)

var mask160 = new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 160), uint256.NewInt(1))

// Observation is a single oracle data point.
type Observation struct {
	BlockTimestamp uint32
	// TickCumulative is tick * seconds elapsed since initialization.
	TickCumulative int64
	// SecondsPerLiquidityCumulativeX128 is seconds elapsed / max(1, liquidity), wrapping at 160 bits.
	SecondsPerLiquidityCumulativeX128 uint256.Int
	Initialized                       bool
}

// transform returns the observation that would follow last at time with the given tick and liquidity.
func transform(last Observation, time uint32, tick int32, liquidity *big.Int) Observation {
	delta := time - last.BlockTimestamp

	var liq uint256.Int
	if liquidity != nil && liquidity.Sign() > 0 {
		liq.SetFromBig(liquidity)
	}
	if liq.IsZero() {
		liq.SetOne()
	}

	var spl uint256.Int
	spl.Lsh(uint256.NewInt(uint64(delta)), 128)
	spl.Div(&spl, &liq)
	spl.Add(&spl, &last.SecondsPerLiquidityCumulativeX128)
	spl.And(&spl, mask160)

	return Observation{
		BlockTimestamp:                    time,
		TickCumulative:                    last.TickCumulative + int64(tick)*int64(delta),
		SecondsPerLiquidityCumulativeX128: spl,
		Initialized:                       true,
	}
}

// Oracle is the observation buffer of a single pool.
type Oracle struct {
	observations []Observation
}

// New returns an empty, uninitialized buffer.
func New() *Oracle {
	return &Oracle{}
}

// Initialize writes the first observation and returns the initial cardinality values.
func (o *Oracle) Initialize(time uint32) (cardinality, cardinalityNext uint16) {
	o.observations = []Observation{{BlockTimestamp: time, Initialized: true}}
	return 1, 1
}

// At returns the observation stored in slot i.
func (o *Oracle) At(i uint16) Observation {
	if int(i) >= len(o.observations) {
		return Observation{}
	}
	return o.observations[i]
}

// Len returns the number of allocated slots.
func (o *Oracle) Len() int {
	return len(o.observations)
}

// Write records an observation for time unless one was already written at that timestamp.
// The buffer grows to cardinalityNext once the write reaches the last populated slot.
func (o *Oracle) Write(
	index uint16,
	time uint32,
	tick int32,
	liquidity *big.Int,
	cardinality, cardinalityNext uint16,
) (indexUpdated, cardinalityUpdated uint16) {
	last := o.At(index)

	if last.BlockTimestamp == time {
		return index, cardinality
	}

	if cardinalityNext > cardinality && index == cardinality-1 {
		cardinalityUpdated = cardinalityNext
	} else {
		cardinalityUpdated = cardinality
	}

	indexUpdated = uint16((uint32(index) + 1) % uint32(cardinalityUpdated))
	o.ensure(int(indexUpdated) + 1)
	o.observations[indexUpdated] = transform(last, time, tick, liquidity)
	return indexUpdated, cardinalityUpdated
}

// Grow prepares the buffer to hold next observations and returns the new cardinalityNext.
// It is a no-op when next is not larger than current.
func (o *Oracle) Grow(current, next uint16) (uint16, error) {
	if current == 0 {
		return 0, ErrUninitialized
	}
	if next <= current {
		return current, nil
	}
	o.ensure(int(next))
	// Mark the slots as touched so their first real write is not treated as a fresh slot.
	for i := current; i < next; i++ {
		if !o.observations[i].Initialized {
			o.observations[i].BlockTimestamp = 1
		}
	}
	return next, nil
}

func (o *Oracle) ensure(n int) {
	if len(o.observations) < n {
		o.observations = append(o.observations, make([]Observation, n-len(o.observations))...)
	}
}

// lte compares two timestamps that may have wrapped around 2^32, relative to time.
// a and b must be chronologically before or equal to time.
func lte(time, a, b uint32) bool {
	if a <= time && b <= time {
		return a <= b
	}
	aAdjusted := uint64(a)
	if a <= time {
		aAdjusted += 1 << 32
	}
	bAdjusted := uint64(b)
	if b <= time {
		bAdjusted += 1 << 32
	}
	return aAdjusted <= bAdjusted
}

// binarySearch finds the observations immediately at or around target. The caller guarantees
// target is within the retained window.
func (o *Oracle) binarySearch(time, target uint32, index, cardinality uint16) (beforeOrAt, atOrAfter Observation) {
	l := (uint32(index) + 1) % uint32(cardinality)
	r := l + uint32(cardinality) - 1

	for {
		i := (l + r) / 2

		beforeOrAt = o.At(uint16(i % uint32(cardinality)))
		// uninitialized slots are only ever ahead of the oldest observation
		if !beforeOrAt.Initialized {
			l = i + 1
			continue
		}

		atOrAfter = o.At(uint16((i + 1) % uint32(cardinality)))

		targetAtOrAfter := lte(time, beforeOrAt.BlockTimestamp, target)
		if targetAtOrAfter && lte(time, target, atOrAfter.BlockTimestamp) {
			return beforeOrAt, atOrAfter
		}

		if !targetAtOrAfter {
			r = i - 1
		} else {
			l = i + 1
		}
	}
}

func (o *Oracle) surroundingObservations(
	time, target uint32,
	tick int32,
	index uint16,
	liquidity *big.Int,
	cardinality uint16,
) (beforeOrAt, atOrAfter Observation, err error) {
	beforeOrAt = o.At(index)

	// target is at or after the newest observation
	if lte(time, beforeOrAt.BlockTimestamp, target) {
		if beforeOrAt.BlockTimestamp == target {
			return beforeOrAt, atOrAfter, nil
		}
		return beforeOrAt, transform(beforeOrAt, target, tick, liquidity), nil
	}

	// the oldest observation is the next slot, or slot 0 while the buffer is still filling
	beforeOrAt = o.At(uint16((uint32(index) + 1) % uint32(cardinality)))
	if !beforeOrAt.Initialized {
		beforeOrAt = o.At(0)
	}

	if !lte(time, beforeOrAt.BlockTimestamp, target) {
		return Observation{}, Observation{}, ErrObservationUnavailable
	}

	beforeOrAt, atOrAfter = o.binarySearch(time, target, index, cardinality)
	return beforeOrAt, atOrAfter, nil
}

// ObserveSingle returns the cumulatives as of secondsAgo before time, interpolating between
// observations when needed.
func (o *Oracle) ObserveSingle(
	time, secondsAgo uint32,
	tick int32,
	index uint16,
	liquidity *big.Int,
	cardinality uint16,
) (tickCumulative int64, secondsPerLiquidityCumulativeX128 uint256.Int, err error) {
	if cardinality == 0 {
		return 0, uint256.Int{}, ErrUninitialized
	}

	if secondsAgo == 0 {
		last := o.At(index)
		if last.BlockTimestamp != time {
			last = transform(last, time, tick, liquidity)
		}
		return last.TickCumulative, last.SecondsPerLiquidityCumulativeX128, nil
	}

	target := time - secondsAgo

	beforeOrAt, atOrAfter, err := o.surroundingObservations(time, target, tick, index, liquidity, cardinality)
	if err != nil {
		return 0, uint256.Int{}, err
	}

	switch target {
	case beforeOrAt.BlockTimestamp:
		return beforeOrAt.TickCumulative, beforeOrAt.SecondsPerLiquidityCumulativeX128, nil
	case atOrAfter.BlockTimestamp:
		return atOrAfter.TickCumulative, atOrAfter.SecondsPerLiquidityCumulativeX128, nil
	}

	observationTimeDelta := atOrAfter.BlockTimestamp - beforeOrAt.BlockTimestamp
	targetDelta := target - beforeOrAt.BlockTimestamp

	tickCumulative = beforeOrAt.TickCumulative +
		(atOrAfter.TickCumulative-beforeOrAt.TickCumulative)/int64(observationTimeDelta)*int64(targetDelta)

	var spl uint256.Int
	spl.Sub(&atOrAfter.SecondsPerLiquidityCumulativeX128, &beforeOrAt.SecondsPerLiquidityCumulativeX128)
	spl.And(&spl, mask160)
	spl.Mul(&spl, uint256.NewInt(uint64(targetDelta)))
	spl.Div(&spl, uint256.NewInt(uint64(observationTimeDelta)))
	spl.Add(&spl, &beforeOrAt.SecondsPerLiquidityCumulativeX128)
	spl.And(&spl, mask160)
	return tickCumulative, spl, nil
}

// Observe calls ObserveSingle for each look-back in secondsAgos.
func (o *Oracle) Observe(
	time uint32,
	secondsAgos []uint32,
	tick int32,
	index uint16,
	liquidity *big.Int,
	cardinality uint16,
) (tickCumulatives []int64, secondsPerLiquidityCumulativeX128s []uint256.Int, err error) {
	if cardinality == 0 {
		return nil, nil, ErrUninitialized
	}

	tickCumulatives = make([]int64, len(secondsAgos))
	secondsPerLiquidityCumulativeX128s = make([]uint256.Int, len(secondsAgos))
	for i, secondsAgo := range secondsAgos {
		tickCumulatives[i], secondsPerLiquidityCumulativeX128s[i], err = o.ObserveSingle(time, secondsAgo, tick, index, liquidity, cardinality)
		if err != nil {
			return nil, nil, err
		}
	}
	return tickCumulatives, secondsPerLiquidityCumulativeX128s, nil
}
