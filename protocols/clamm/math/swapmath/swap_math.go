// Package swapmath computes the result of swapping within a single liquidity segment.
package swapmath

import (
	"math/big"
	"sync"

	"github.com/defistate/clamm-go/protocols/clamm/math/fullmath"
	"github.com/defistate/clamm-go/protocols/clamm/math/sqrtpricemath"
)

// FeeDenominator is the fee unit: fees are expressed in parts per million.
const FeeDenominator = 1_000_000

var feeDenominator = big.NewInt(FeeDenominator)

// step is the scratch space of one ComputeSwapStep call.
type step struct {
	next, in, out, fee *big.Int

	avail   *big.Int // input net of fee, or the requested output
	feePips *big.Int
	keep    *big.Int // FeeDenominator - feePips
}

var steps = sync.Pool{
	New: func() any {
		return &step{
			next:    new(big.Int),
			in:      new(big.Int),
			out:     new(big.Int),
			fee:     new(big.Int),
			avail:   new(big.Int),
			feePips: new(big.Int),
			keep:    new(big.Int),
		}
	},
}

// ComputeSwapStep calculates the result of swapping from the current price toward the target price.
//
// A non-negative amountRemaining is an exact input (fee included), a negative one an exact output.
// The step stops at sqrtRatioTargetX96 when the remaining amount would overshoot it. The fee is
// taken from the input and rounds up; the output rounds down.
func ComputeSwapStep(
	sqrtRatioNextX96 *big.Int,
	amountIn *big.Int,
	amountOut *big.Int,
	feeAmount *big.Int,

	sqrtRatioCurrentX96 *big.Int,
	sqrtRatioTargetX96 *big.Int,
	liquidity *big.Int,
	amountRemaining *big.Int,
	feePips uint32,
) error {
	s := steps.Get().(*step)
	defer steps.Put(s)

	if err := s.run(sqrtRatioCurrentX96, sqrtRatioTargetX96, liquidity, amountRemaining, feePips); err != nil {
		return err
	}
	sqrtRatioNextX96.Set(s.next)
	amountIn.Set(s.in)
	amountOut.Set(s.out)
	feeAmount.Set(s.fee)
	return nil
}

// inputDelta is the input token amount for moving between prices a and b: token0 when the price
// falls, token1 when it rises. Rounds up.
func inputDelta(dest, a, b, liquidity *big.Int, zeroForOne bool) error {
	if zeroForOne {
		return sqrtpricemath.GetAmount0Delta(dest, a, b, liquidity, true)
	}
	return sqrtpricemath.GetAmount1Delta(dest, a, b, liquidity, true)
}

// outputDelta is the output token amount for moving between prices a and b. Rounds down.
func outputDelta(dest, a, b, liquidity *big.Int, zeroForOne bool) error {
	if zeroForOne {
		return sqrtpricemath.GetAmount1Delta(dest, a, b, liquidity, false)
	}
	return sqrtpricemath.GetAmount0Delta(dest, a, b, liquidity, false)
}

func (s *step) run(current, target, liquidity, remaining *big.Int, feePips uint32) error {
	zeroForOne := current.Cmp(target) >= 0
	exactIn := remaining.Sign() >= 0

	s.in.SetInt64(0)
	s.out.SetInt64(0)
	s.fee.SetInt64(0)
	s.feePips.SetUint64(uint64(feePips))
	s.keep.Sub(feeDenominator, s.feePips)

	// First find where the price ends up.
	if exactIn {
		if err := fullmath.MulDiv(s.avail, remaining, s.keep, feeDenominator); err != nil {
			return err
		}
		if err := inputDelta(s.in, current, target, liquidity, zeroForOne); err != nil {
			return err
		}
		if s.avail.Cmp(s.in) >= 0 {
			s.next.Set(target)
		} else if err := sqrtpricemath.GetNextSqrtPriceFromInput(s.next, current, liquidity, s.avail, zeroForOne); err != nil {
			return err
		}
	} else {
		s.avail.Neg(remaining)
		if err := outputDelta(s.out, current, target, liquidity, zeroForOne); err != nil {
			return err
		}
		if s.avail.Cmp(s.out) >= 0 {
			s.next.Set(target)
		} else if err := sqrtpricemath.GetNextSqrtPriceFromOutput(s.next, current, liquidity, s.avail, zeroForOne); err != nil {
			return err
		}
	}
	reached := s.next.Cmp(target) == 0

	// Then price the leg that was not already computed against the final price.
	if !reached || !exactIn {
		if err := inputDelta(s.in, s.next, current, liquidity, zeroForOne); err != nil {
			return err
		}
	}
	if !reached || exactIn {
		if err := outputDelta(s.out, s.next, current, liquidity, zeroForOne); err != nil {
			return err
		}
	}

	if !exactIn && s.out.Cmp(s.avail) > 0 {
		s.out.Set(s.avail)
	}

	if exactIn && !reached {
		// the remainder of the input is all fee
		s.fee.Sub(remaining, s.in)
		return nil
	}
	return fullmath.MulDivRoundingUp(s.fee, s.in, s.feePips, s.keep)
}
