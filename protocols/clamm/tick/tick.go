// Package tick stores per-tick liquidity and the accumulators tracked on the far side of each tick.
package tick

import (
	"errors"
	"fmt"
	"math/big"
	"slices"

	"github.com/holiman/uint256"

	"github.com/defistate/clamm-go/protocols/clamm/math/liquiditymath"
	"github.com/defistate/clamm-go/protocols/clamm/math/tickmath"
)

// ErrInvalidLiquidityDelta is returned when a tick's gross liquidity would exceed the per-tick cap.
var ErrInvalidLiquidityDelta = errors.New("tick: liquidity delta exceeds the per-tick maximum")

var mask160 = new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 160), uint256.NewInt(1))

// Globals are the pool-wide accumulators a tick snapshots when it is initialized or crossed.
type Globals struct {
	FeeGrowth0X128                    uint256.Int
	FeeGrowth1X128                    uint256.Int
	SecondsPerLiquidityCumulativeX128 uint256.Int
	TickCumulative                    int64
	Time                              uint32
}

// Info is the state kept for an initialized tick.
//
// The outside values are relative to the current tick: they hold the growth on the side of
// this tick that the current tick is not on, and only have meaning relative to each other.
type Info struct {
	// LiquidityGross is the total position liquidity that references this tick.
	LiquidityGross *big.Int
	// LiquidityNet is added to active liquidity when the tick is crossed left to right.
	LiquidityNet *big.Int

	FeeGrowthOutside0X128          uint256.Int
	FeeGrowthOutside1X128          uint256.Int
	TickCumulativeOutside          int64
	SecondsPerLiquidityOutsideX128 uint256.Int
	SecondsOutside                 uint32

	Initialized bool
}

// NewInfo returns an uninitialized tick with zero liquidity.
func NewInfo() Info {
	return Info{
		LiquidityGross: new(big.Int),
		LiquidityNet:   new(big.Int),
	}
}

// Clone returns a deep copy of the info.
func (info Info) Clone() Info {
	c := info
	c.LiquidityGross = cloneOrZero(info.LiquidityGross)
	c.LiquidityNet = cloneOrZero(info.LiquidityNet)
	return c
}

func cloneOrZero(x *big.Int) *big.Int {
	if x == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(x)
}

// Update applies liquidityDelta to a tick boundary and reports whether the tick flipped between
// initialized and uninitialized. upper is true when the tick is the upper bound of the position.
func (info *Info) Update(
	tick, tickCurrent int32,
	liquidityDelta *big.Int,
	globals *Globals,
	upper bool,
	maxLiquidity *big.Int,
) (flipped bool, err error) {
	if info.LiquidityGross == nil {
		info.LiquidityGross = new(big.Int)
	}
	if info.LiquidityNet == nil {
		info.LiquidityNet = new(big.Int)
	}

	before := info.LiquidityGross
	after := new(big.Int)
	if err := liquiditymath.AddDelta(after, before, liquidityDelta); err != nil {
		return false, fmt.Errorf("tick %d: %w", tick, err)
	}
	if after.Cmp(maxLiquidity) > 0 {
		return false, ErrInvalidLiquidityDelta
	}

	flipped = (after.Sign() == 0) != (before.Sign() == 0)

	if before.Sign() == 0 {
		// by convention, all growth before a tick was initialized happened below it
		if tick <= tickCurrent {
			info.FeeGrowthOutside0X128 = globals.FeeGrowth0X128
			info.FeeGrowthOutside1X128 = globals.FeeGrowth1X128
			info.SecondsPerLiquidityOutsideX128 = globals.SecondsPerLiquidityCumulativeX128
			info.TickCumulativeOutside = globals.TickCumulative
			info.SecondsOutside = globals.Time
		}
		info.Initialized = true
	}

	info.LiquidityGross = after
	net := new(big.Int)
	if upper {
		net.Sub(info.LiquidityNet, liquidityDelta)
	} else {
		net.Add(info.LiquidityNet, liquidityDelta)
	}
	info.LiquidityNet = net
	return flipped, nil
}

// Cross flips the outside accumulators as the price moves across the tick and returns
// the tick's liquidityNet.
func (info *Info) Cross(globals *Globals) *big.Int {
	info.FeeGrowthOutside0X128.Sub(&globals.FeeGrowth0X128, &info.FeeGrowthOutside0X128)
	info.FeeGrowthOutside1X128.Sub(&globals.FeeGrowth1X128, &info.FeeGrowthOutside1X128)
	info.SecondsPerLiquidityOutsideX128.Sub(&globals.SecondsPerLiquidityCumulativeX128, &info.SecondsPerLiquidityOutsideX128)
	info.SecondsPerLiquidityOutsideX128.And(&info.SecondsPerLiquidityOutsideX128, mask160)
	info.TickCumulativeOutside = globals.TickCumulative - info.TickCumulativeOutside
	info.SecondsOutside = globals.Time - info.SecondsOutside
	return cloneOrZero(info.LiquidityNet)
}

// GetFeeGrowthInside returns the fee growth per unit of liquidity inside [tickLower, tickUpper).
// Missing ticks may be passed as zero-valued Info.
func GetFeeGrowthInside(
	lower, upper *Info,
	tickLower, tickUpper, tickCurrent int32,
	feeGrowthGlobal0X128, feeGrowthGlobal1X128 *uint256.Int,
) (inside0, inside1 uint256.Int) {
	var below0, below1, above0, above1 uint256.Int

	if tickCurrent >= tickLower {
		below0, below1 = lower.FeeGrowthOutside0X128, lower.FeeGrowthOutside1X128
	} else {
		below0.Sub(feeGrowthGlobal0X128, &lower.FeeGrowthOutside0X128)
		below1.Sub(feeGrowthGlobal1X128, &lower.FeeGrowthOutside1X128)
	}

	if tickCurrent < tickUpper {
		above0, above1 = upper.FeeGrowthOutside0X128, upper.FeeGrowthOutside1X128
	} else {
		above0.Sub(feeGrowthGlobal0X128, &upper.FeeGrowthOutside0X128)
		above1.Sub(feeGrowthGlobal1X128, &upper.FeeGrowthOutside1X128)
	}

	inside0.Sub(feeGrowthGlobal0X128, &below0)
	inside0.Sub(&inside0, &above0)
	inside1.Sub(feeGrowthGlobal1X128, &below1)
	inside1.Sub(&inside1, &above1)
	return inside0, inside1
}

// TickSpacingToMaxLiquidityPerTick returns the largest gross liquidity a single tick may hold so
// that active liquidity can never overflow uint128 even if every usable tick is at the cap.
func TickSpacingToMaxLiquidityPerTick(tickSpacing int32) *big.Int {
	minTick := (tickmath.MinTick / tickSpacing) * tickSpacing
	maxTick := (tickmath.MaxTick / tickSpacing) * tickSpacing
	numTicks := int64((maxTick-minTick)/tickSpacing) + 1
	return new(big.Int).Quo(liquiditymath.MaxUint128, big.NewInt(numTicks))
}

// Registry is a sparse map of initialized ticks.
type Registry struct {
	ticks map[int32]*Info
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{ticks: make(map[int32]*Info)}
}

// Get returns a copy of the tick and whether it exists.
func (r *Registry) Get(tick int32) (Info, bool) {
	info, ok := r.ticks[tick]
	if !ok {
		return NewInfo(), false
	}
	return info.Clone(), true
}

// Lookup returns a copy of the tick, or a zero tick if it does not exist.
func (r *Registry) Lookup(tick int32) Info {
	info, _ := r.Get(tick)
	return info
}

// LiquidityNet returns the tick's liquidityNet without copying the rest of the entry.
func (r *Registry) LiquidityNet(tick int32) *big.Int {
	if info, ok := r.ticks[tick]; ok {
		return new(big.Int).Set(info.LiquidityNet)
	}
	return new(big.Int)
}

// Set stores info for tick.
func (r *Registry) Set(tick int32, info Info) {
	c := info.Clone()
	r.ticks[tick] = &c
}

// Clear deletes the tick.
func (r *Registry) Clear(tick int32) {
	delete(r.ticks, tick)
}

// Len returns the number of stored ticks.
func (r *Registry) Len() int {
	return len(r.ticks)
}

// Update applies a liquidity change to the stored tick, creating it if needed.
func (r *Registry) Update(
	tick, tickCurrent int32,
	liquidityDelta *big.Int,
	globals *Globals,
	upper bool,
	maxLiquidity *big.Int,
) (bool, error) {
	info := r.Lookup(tick)
	flipped, err := info.Update(tick, tickCurrent, liquidityDelta, globals, upper, maxLiquidity)
	if err != nil {
		return false, err
	}
	r.Set(tick, info)
	return flipped, nil
}

// Cross crosses the stored tick and returns its liquidityNet.
func (r *Registry) Cross(tick int32, globals *Globals) *big.Int {
	info, ok := r.ticks[tick]
	if !ok {
		return new(big.Int)
	}
	return info.Cross(globals)
}

// GetFeeGrowthInside returns the fee growth inside a range of stored ticks.
func (r *Registry) GetFeeGrowthInside(
	tickLower, tickUpper, tickCurrent int32,
	feeGrowthGlobal0X128, feeGrowthGlobal1X128 *uint256.Int,
) (uint256.Int, uint256.Int) {
	lower := r.Lookup(tickLower)
	upper := r.Lookup(tickUpper)
	return GetFeeGrowthInside(&lower, &upper, tickLower, tickUpper, tickCurrent, feeGrowthGlobal0X128, feeGrowthGlobal1X128)
}

// Range calls fn for each tick in ascending order until fn returns false.
func (r *Registry) Range(fn func(tick int32, info Info) bool) {
	keys := make([]int32, 0, len(r.ticks))
	for k := range r.ticks {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		if !fn(k, r.ticks[k].Clone()) {
			return
		}
	}
}
