package clamm

import (
	"bytes"
	"cmp"
	"math/big"
	"slices"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/common"
)

// SystemDiff is the change between two sets of pool views, keyed by pool address.
type SystemDiff struct {
	Additions []Pool           `json:"additions,omitempty"`
	Updates   []Pool           `json:"updates,omitempty"`
	Deletions []common.Address `json:"deletions,omitempty"`
}

// IsEmpty returns true if the diff contains no changes.
func (d SystemDiff) IsEmpty() bool {
	return len(d.Additions) == 0 && len(d.Updates) == 0 && len(d.Deletions) == 0
}

// bigEqual treats nil as zero.
func bigEqual(a, b *big.Int) bool {
	switch {
	case a == nil && b == nil:
		return true
	case a == nil:
		return b.Sign() == 0
	case b == nil:
		return a.Sign() == 0
	}
	return a.Cmp(b) == 0
}

func sortedTicks(ticks []TickInfo) []TickInfo {
	out := slices.Clone(ticks)
	slices.SortFunc(out, func(a, b TickInfo) int { return cmp.Compare(a.Index, b.Index) })
	return out
}

func poolChanged(old, new Pool) bool {
	if old.Tick != new.Tick ||
		!bigEqual(old.SqrtPriceX96, new.SqrtPriceX96) ||
		!bigEqual(old.Liquidity, new.Liquidity) ||
		!bigEqual(old.FeeGrowthGlobal0X128, new.FeeGrowthGlobal0X128) ||
		!bigEqual(old.FeeGrowthGlobal1X128, new.FeeGrowthGlobal1X128) {
		return true
	}

	if len(old.Ticks) != len(new.Ticks) {
		return true
	}
	oldTicks, newTicks := sortedTicks(old.Ticks), sortedTicks(new.Ticks)
	for i := range oldTicks {
		if oldTicks[i].Index != newTicks[i].Index ||
			!bigEqual(oldTicks[i].LiquidityNet, newTicks[i].LiquidityNet) ||
			!bigEqual(oldTicks[i].LiquidityGross, newTicks[i].LiquidityGross) {
			return true
		}
	}
	return false
}

func byAddress(a, b Pool) int { return bytes.Compare(a.Address[:], b.Address[:]) }

// Differ computes the change from old to new. Each slice of the result is ordered by pool address.
func Differ(old, new []Pool) SystemDiff {
	oldPools := make(map[common.Address]Pool, len(old))
	oldKeys := mapset.NewThreadUnsafeSetWithSize[common.Address](len(old))
	for _, p := range old {
		oldPools[p.Address] = p
		oldKeys.Add(p.Address)
	}
	newKeys := mapset.NewThreadUnsafeSetWithSize[common.Address](len(new))
	for _, p := range new {
		newKeys.Add(p.Address)
	}

	var diff SystemDiff
	for _, p := range new {
		prev, ok := oldPools[p.Address]
		switch {
		case !ok:
			diff.Additions = append(diff.Additions, p)
		case poolChanged(prev, p):
			diff.Updates = append(diff.Updates, p)
		}
	}
	diff.Deletions = oldKeys.Difference(newKeys).ToSlice()

	slices.SortFunc(diff.Additions, byAddress)
	slices.SortFunc(diff.Updates, byAddress)
	slices.SortFunc(diff.Deletions, func(a, b common.Address) int { return bytes.Compare(a[:], b[:]) })
	if len(diff.Deletions) == 0 {
		diff.Deletions = nil
	}
	return diff
}
