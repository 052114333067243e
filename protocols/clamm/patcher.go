package clamm

import (
	"math/big"
	"slices"

	"github.com/ethereum/go-ethereum/common"
)

func copyBig(x *big.Int) *big.Int {
	if x == nil {
		return nil
	}
	return new(big.Int).Set(x)
}

// Clone returns a deep copy of the view: the result shares no *big.Int or slice with p.
func (p Pool) Clone() Pool {
	out := p
	out.Liquidity = copyBig(p.Liquidity)
	out.SqrtPriceX96 = copyBig(p.SqrtPriceX96)
	out.FeeGrowthGlobal0X128 = copyBig(p.FeeGrowthGlobal0X128)
	out.FeeGrowthGlobal1X128 = copyBig(p.FeeGrowthGlobal1X128)
	if p.Ticks != nil {
		out.Ticks = make([]TickInfo, len(p.Ticks))
		for i, t := range p.Ticks {
			out.Ticks[i] = TickInfo{
				Index:          t.Index,
				LiquidityGross: copyBig(t.LiquidityGross),
				LiquidityNet:   copyBig(t.LiquidityNet),
			}
		}
	}
	return out
}

// Patcher applies diff to prevState and returns the new state ordered by pool address. Neither
// argument is modified.
func Patcher(prevState []Pool, diff SystemDiff) ([]Pool, error) {
	next := make(map[common.Address]Pool, len(prevState))
	for _, p := range prevState {
		next[p.Address] = p.Clone()
	}

	for _, addr := range diff.Deletions {
		delete(next, addr)
	}
	for _, p := range diff.Updates {
		next[p.Address] = p.Clone()
	}
	for _, p := range diff.Additions {
		next[p.Address] = p.Clone()
	}

	out := make([]Pool, 0, len(next))
	for _, p := range next {
		out = append(out, p)
	}
	slices.SortFunc(out, byAddress)
	return out, nil
}
