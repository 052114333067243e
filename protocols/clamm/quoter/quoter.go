// Package quoter prices swaps against a pool view without touching the pool. A quote steps from
// one initialized tick to the next rather than one bitmap word at a time, so it can differ from
// the executed swap by rounding where the swap stops at a word boundary.
package quoter

import (
	"cmp"
	"errors"
	"fmt"
	"math/big"
	"slices"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/defistate/clamm-go/protocols/clamm"
	"github.com/defistate/clamm-go/protocols/clamm/math/liquiditymath"
	"github.com/defistate/clamm-go/protocols/clamm/math/swapmath"
	"github.com/defistate/clamm-go/protocols/clamm/math/tickmath"
)

var (
	ErrInvalidAmount     = errors.New("quoter: amount must be greater than zero")
	ErrTokenMismatch     = errors.New("quoter: token mismatch")
	ErrInvalidPriceLimit = errors.New("quoter: price limit on the wrong side of the current price")
	ErrUninitializedPool = errors.New("quoter: pool has no price")

	q96 = new(big.Int).Lsh(big.NewInt(1), 96)
)

type swapState struct {
	amountSpecifiedRemaining *big.Int
	amountCalculated         *big.Int
	sqrtPriceX96             *big.Int
	tick                     int64
	liquidity                *big.Int

	sqrtPriceStartX96 *big.Int
	sqrtPriceNextX96  *big.Int
	targetPrice       *big.Int
	stepAmountIn      *big.Int
	stepAmountOut     *big.Int
	stepFeeAmount     *big.Int
	tmp               *big.Int
	liquidityNet      *big.Int
}

var swapStatePool = sync.Pool{
	New: func() any {
		return &swapState{
			amountSpecifiedRemaining: new(big.Int),
			amountCalculated:         new(big.Int),
			sqrtPriceX96:             new(big.Int),
			liquidity:                new(big.Int),
			sqrtPriceStartX96:        new(big.Int),
			sqrtPriceNextX96:         new(big.Int),
			targetPrice:              new(big.Int),
			stepAmountIn:             new(big.Int),
			stepAmountOut:            new(big.Int),
			stepFeeAmount:            new(big.Int),
			tmp:                      new(big.Int),
			liquidityNet:             new(big.Int),
		}
	},
}

func (s *swapState) reset(amountSpecified *big.Int, view clamm.Pool) {
	s.amountSpecifiedRemaining.Set(amountSpecified)
	s.amountCalculated.SetInt64(0)
	s.sqrtPriceX96.Set(view.SqrtPriceX96)
	s.tick = view.Tick
	s.liquidity.Set(view.Liquidity)
}

// run walks the sorted ticks of view until the amount is used up or the price reaches limit.
func (s *swapState) run(view clamm.Pool, ticks []clamm.TickInfo, limit *big.Int, zeroForOne bool) error {
	exactInput := s.amountSpecifiedRemaining.Sign() > 0

	for s.amountSpecifiedRemaining.Sign() != 0 && s.sqrtPriceX96.Cmp(limit) != 0 {
		s.sqrtPriceStartX96.Set(s.sqrtPriceX96)

		tickNext, idx, found := nextInitializedTick(ticks, s.tick, zeroForOne)
		if !found {
			// nothing initialized past here: run to the end of the range
			tickNext = int64(tickmath.MaxTick)
			if zeroForOne {
				tickNext = int64(tickmath.MinTick)
			}
		}
		tickNext = max(int64(tickmath.MinTick), min(int64(tickmath.MaxTick), tickNext))

		if err := tickmath.GetSqrtRatioAtTick(s.sqrtPriceNextX96, int32(tickNext)); err != nil {
			return err
		}
		if (zeroForOne && s.sqrtPriceNextX96.Cmp(limit) < 0) || (!zeroForOne && s.sqrtPriceNextX96.Cmp(limit) > 0) {
			s.targetPrice.Set(limit)
		} else {
			s.targetPrice.Set(s.sqrtPriceNextX96)
		}

		if err := swapmath.ComputeSwapStep(
			s.sqrtPriceX96, s.stepAmountIn, s.stepAmountOut, s.stepFeeAmount,
			s.sqrtPriceStartX96, s.targetPrice, s.liquidity, s.amountSpecifiedRemaining, uint32(view.Fee),
		); err != nil {
			return err
		}

		s.tmp.Add(s.stepAmountIn, s.stepFeeAmount)
		if exactInput {
			s.amountSpecifiedRemaining.Sub(s.amountSpecifiedRemaining, s.tmp)
			s.amountCalculated.Add(s.amountCalculated, s.stepAmountOut)
		} else {
			s.amountSpecifiedRemaining.Add(s.amountSpecifiedRemaining, s.stepAmountOut)
			s.amountCalculated.Add(s.amountCalculated, s.tmp)
		}

		if s.sqrtPriceX96.Cmp(s.sqrtPriceNextX96) == 0 {
			if idx >= 0 {
				s.liquidityNet.Set(ticks[idx].LiquidityNet)
				if zeroForOne {
					s.liquidityNet.Neg(s.liquidityNet)
				}
				if err := liquiditymath.AddDelta(s.liquidity, s.liquidity, s.liquidityNet); err != nil {
					return fmt.Errorf("cross tick %d: %w", tickNext, err)
				}
			}
			if zeroForOne {
				s.tick = tickNext - 1
			} else {
				s.tick = tickNext
			}
		} else if s.sqrtPriceX96.Cmp(s.sqrtPriceStartX96) != 0 {
			t, err := tickmath.GetTickAtSqrtRatio(s.sqrtPriceX96)
			if err != nil {
				return err
			}
			s.tick = int64(t)
		}
	}
	return nil
}

func direction(tokenIn common.Address, view clamm.Pool) (zeroForOne bool, err error) {
	switch tokenIn {
	case view.Token0:
		return true, nil
	case view.Token1:
		return false, nil
	}
	return false, fmt.Errorf("%w: %s is not in pool %s", ErrTokenMismatch, tokenIn.Hex(), view.Address.Hex())
}

func priceLimit(limit *big.Int, view clamm.Pool, zeroForOne bool) (*big.Int, error) {
	if limit == nil {
		if zeroForOne {
			return new(big.Int).Add(tickmath.MinSqrtRatio, big.NewInt(1)), nil
		}
		return new(big.Int).Sub(tickmath.MaxSqrtRatio, big.NewInt(1)), nil
	}
	if zeroForOne {
		if limit.Cmp(view.SqrtPriceX96) >= 0 || limit.Cmp(tickmath.MinSqrtRatio) <= 0 {
			return nil, ErrInvalidPriceLimit
		}
	} else if limit.Cmp(view.SqrtPriceX96) <= 0 || limit.Cmp(tickmath.MaxSqrtRatio) >= 0 {
		return nil, ErrInvalidPriceLimit
	}
	return limit, nil
}

func quote(amountSpecified, sqrtPriceLimitX96 *big.Int, tokenIn common.Address, view clamm.Pool) (*big.Int, clamm.Pool, error) {
	if view.SqrtPriceX96 == nil || view.SqrtPriceX96.Sign() == 0 || view.Liquidity == nil {
		return nil, clamm.Pool{}, ErrUninitializedPool
	}
	zeroForOne, err := direction(tokenIn, view)
	if err != nil {
		return nil, clamm.Pool{}, err
	}
	limit, err := priceLimit(sqrtPriceLimitX96, view, zeroForOne)
	if err != nil {
		return nil, clamm.Pool{}, err
	}

	ticks := view.Ticks
	if !slices.IsSortedFunc(ticks, byIndex) {
		ticks = slices.SortedFunc(slices.Values(ticks), byIndex)
	}

	s := swapStatePool.Get().(*swapState)
	defer swapStatePool.Put(s)

	s.reset(amountSpecified, view)
	if err := s.run(view, ticks, limit, zeroForOne); err != nil {
		return nil, clamm.Pool{}, err
	}

	next := view.Clone()
	next.SqrtPriceX96.Set(s.sqrtPriceX96)
	next.Tick = s.tick
	next.Liquidity.Set(s.liquidity)
	return new(big.Int).Set(s.amountCalculated), next, nil
}

func byIndex(a, b clamm.TickInfo) int { return cmp.Compare(a.Index, b.Index) }

// QuoteExactInput returns the output of selling amountIn of tokenIn into view, and the view after
// the swap. A nil limit lets the price run to the end of the tick range.
func QuoteExactInput(amountIn, sqrtPriceLimitX96 *big.Int, tokenIn common.Address, view clamm.Pool) (amountOut *big.Int, after clamm.Pool, err error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, clamm.Pool{}, ErrInvalidAmount
	}
	return quote(amountIn, sqrtPriceLimitX96, tokenIn, view)
}

// QuoteExactOutput returns the input of tokenIn needed to buy amountOut of the other token, and the
// view after the swap. If the price reaches the limit first, the input covers only what was bought.
func QuoteExactOutput(amountOut, sqrtPriceLimitX96 *big.Int, tokenIn common.Address, view clamm.Pool) (amountIn *big.Int, after clamm.Pool, err error) {
	if amountOut == nil || amountOut.Sign() <= 0 {
		return nil, clamm.Pool{}, ErrInvalidAmount
	}
	return quote(new(big.Int).Neg(amountOut), sqrtPriceLimitX96, tokenIn, view)
}

// VirtualReserves returns the reserves a constant-product pool would need to have the view's
// liquidity and price, ordered as (tokenIn, tokenOut).
func VirtualReserves(tokenIn common.Address, view clamm.Pool) (reserveIn, reserveOut *big.Int, err error) {
	zeroForOne, err := direction(tokenIn, view)
	if err != nil {
		return nil, nil, err
	}
	if view.SqrtPriceX96 == nil || view.SqrtPriceX96.Sign() == 0 {
		return nil, nil, ErrUninitializedPool
	}
	reserve0 := new(big.Int).Div(new(big.Int).Lsh(view.Liquidity, 96), view.SqrtPriceX96)
	reserve1 := new(big.Int).Div(new(big.Int).Mul(view.Liquidity, view.SqrtPriceX96), q96)
	if zeroForOne {
		return reserve0, reserve1, nil
	}
	return reserve1, reserve0, nil
}

// SpotPrice returns the price of one whole tokenIn in whole units of the other token, given
// each token's decimals.
func SpotPrice(tokenIn common.Address, decimalsIn, decimalsOut int32, view clamm.Pool) (decimal.Decimal, error) {
	zeroForOne, err := direction(tokenIn, view)
	if err != nil {
		return decimal.Zero, err
	}
	if view.SqrtPriceX96 == nil || view.SqrtPriceX96.Sign() == 0 {
		return decimal.Zero, ErrUninitializedPool
	}

	// price of token0 in token1 raw units: (sqrtPriceX96 / 2^96)^2
	numerator := new(big.Int).Mul(view.SqrtPriceX96, view.SqrtPriceX96)
	denominator := new(big.Int).Lsh(big.NewInt(1), 192)
	if !zeroForOne {
		numerator, denominator = denominator, numerator
	}
	raw := decimal.NewFromBigInt(numerator, 0).DivRound(decimal.NewFromBigInt(denominator, 0), 36)
	return raw.Shift(decimalsIn - decimalsOut), nil
}
