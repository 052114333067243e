package pool

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/defistate/clamm-go/protocols/clamm/events"
	"github.com/defistate/clamm-go/protocols/clamm/math/fullmath"
	"github.com/defistate/clamm-go/protocols/clamm/math/liquiditymath"
	"github.com/defistate/clamm-go/protocols/clamm/math/swapmath"
	"github.com/defistate/clamm-go/protocols/clamm/math/tickmath"
	"github.com/defistate/clamm-go/protocols/clamm/tick"
)

var q128 = new(big.Int).Lsh(big.NewInt(1), 128)

// SwapParams describes a swap. A positive AmountSpecified is an exact input, a negative one an
// exact output. The price will not move past SqrtPriceLimitX96.
type SwapParams struct {
	Sender            common.Address
	Recipient         common.Address
	ZeroForOne        bool
	AmountSpecified   *big.Int
	SqrtPriceLimitX96 *big.Int
	Callback          SwapCallback
	Data              []byte
}

// swapState is the running state of the swap loop.
type swapState struct {
	amountSpecifiedRemaining *big.Int
	amountCalculated         *big.Int
	sqrtPriceX96             *big.Int
	tick                     int32
	// fee growth of the input token
	feeGrowthGlobalX128 uint256.Int
	protocolFee         *big.Int
	liquidity           *big.Int
}

type swapStep struct {
	sqrtPriceStartX96 *big.Int
	tickNext          int32
	initialized       bool
	sqrtPriceNextX96  *big.Int
	amountIn          *big.Int
	amountOut         *big.Int
	feeAmount         *big.Int
}

// crossing is an initialized tick passed by the swap, applied to the registry on commit.
type crossing struct {
	tick    int32
	globals tick.Globals
}

// Swap trades one token for the other. The output is sent to the recipient before the callback
// runs; the callback must then pay the input. The returned deltas are from the pool's side:
// positive amounts were received, negative amounts were sent.
func (p *Pool) Swap(params SwapParams) (amount0, amount1 *big.Int, err error) {
	start := time.Now()
	defer func() { p.metrics.observe(p.label, "swap", start, err) }()

	if err = p.lock(); err != nil {
		return nil, nil, err
	}
	defer p.unlock()

	if params.AmountSpecified == nil || params.AmountSpecified.Sign() == 0 {
		return nil, nil, ErrZeroAmountSpecified
	}
	if err = p.checkInitialized(); err != nil {
		return nil, nil, err
	}
	if params.Callback == nil {
		return nil, nil, ErrNilCallback
	}

	slot0Start := p.slot0
	limit := params.SqrtPriceLimitX96
	if limit == nil {
		return nil, nil, ErrInvalidPriceLimit
	}
	if params.ZeroForOne {
		if limit.Cmp(slot0Start.SqrtPriceX96) >= 0 || limit.Cmp(tickmath.MinSqrtRatio) <= 0 {
			return nil, nil, fmt.Errorf("%w: %s", ErrInvalidPriceLimit, limit)
		}
	} else {
		if limit.Cmp(slot0Start.SqrtPriceX96) <= 0 || limit.Cmp(tickmath.MaxSqrtRatio) >= 0 {
			return nil, nil, fmt.Errorf("%w: %s", ErrInvalidPriceLimit, limit)
		}
	}

	blockTimestamp := p.clock.BlockTimestamp()
	liquidityStart := new(big.Int).Set(p.liquidity)
	exactInput := params.AmountSpecified.Sign() > 0

	var feeProtocol uint8
	if params.ZeroForOne {
		feeProtocol = slot0Start.FeeProtocol % 16
	} else {
		feeProtocol = slot0Start.FeeProtocol >> 4
	}

	state := swapState{
		amountSpecifiedRemaining: new(big.Int).Set(params.AmountSpecified),
		amountCalculated:         new(big.Int),
		sqrtPriceX96:             new(big.Int).Set(slot0Start.SqrtPriceX96),
		tick:                     slot0Start.Tick,
		protocolFee:              new(big.Int),
		liquidity:                new(big.Int).Set(p.liquidity),
	}
	if params.ZeroForOne {
		state.feeGrowthGlobalX128 = p.feeGrowthGlobal0X128
	} else {
		state.feeGrowthGlobalX128 = p.feeGrowthGlobal1X128
	}

	var (
		crossings           []crossing
		observed            bool
		tickCumulative      int64
		secondsPerLiquidity uint256.Int
		feeGrowthStepU      uint256.Int
	)
	var (
		feeGrowthStep    = new(big.Int)
		sqrtPriceTarget  = new(big.Int)
		sqrtPriceNext    = new(big.Int)
		protocolFeeStep  = new(big.Int)
		feeProtocolDenom = big.NewInt(int64(feeProtocol))
	)

	for state.amountSpecifiedRemaining.Sign() != 0 && state.sqrtPriceX96.Cmp(limit) != 0 {
		step := swapStep{
			sqrtPriceStartX96: new(big.Int).Set(state.sqrtPriceX96),
			sqrtPriceNextX96:  new(big.Int),
			amountIn:          new(big.Int),
			amountOut:         new(big.Int),
			feeAmount:         new(big.Int),
		}

		step.tickNext, step.initialized = p.bitmap.NextInitializedTickWithinOneWord(state.tick, p.tickSpacing, params.ZeroForOne)
		// the bitmap knows nothing of the tick bounds
		if step.tickNext < tickmath.MinTick {
			step.tickNext = tickmath.MinTick
		} else if step.tickNext > tickmath.MaxTick {
			step.tickNext = tickmath.MaxTick
		}

		if err = tickmath.GetSqrtRatioAtTick(step.sqrtPriceNextX96, step.tickNext); err != nil {
			return nil, nil, err
		}

		if (params.ZeroForOne && step.sqrtPriceNextX96.Cmp(limit) < 0) ||
			(!params.ZeroForOne && step.sqrtPriceNextX96.Cmp(limit) > 0) {
			sqrtPriceTarget.Set(limit)
		} else {
			sqrtPriceTarget.Set(step.sqrtPriceNextX96)
		}

		if err = swapmath.ComputeSwapStep(
			sqrtPriceNext, step.amountIn, step.amountOut, step.feeAmount,
			state.sqrtPriceX96, sqrtPriceTarget, state.liquidity, state.amountSpecifiedRemaining, p.fee,
		); err != nil {
			return nil, nil, err
		}
		state.sqrtPriceX96.Set(sqrtPriceNext)

		if exactInput {
			state.amountSpecifiedRemaining.Sub(state.amountSpecifiedRemaining, step.amountIn)
			state.amountSpecifiedRemaining.Sub(state.amountSpecifiedRemaining, step.feeAmount)
			state.amountCalculated.Sub(state.amountCalculated, step.amountOut)
		} else {
			state.amountSpecifiedRemaining.Add(state.amountSpecifiedRemaining, step.amountOut)
			state.amountCalculated.Add(state.amountCalculated, step.amountIn)
			state.amountCalculated.Add(state.amountCalculated, step.feeAmount)
		}

		if feeProtocol > 0 {
			protocolFeeStep.Quo(step.feeAmount, feeProtocolDenom)
			step.feeAmount.Sub(step.feeAmount, protocolFeeStep)
			state.protocolFee.Add(state.protocolFee, protocolFeeStep)
		}

		if state.liquidity.Sign() > 0 {
			if err = fullmath.MulDiv(feeGrowthStep, step.feeAmount, q128, state.liquidity); err != nil {
				return nil, nil, err
			}
			// fee growth wraps at 256 bits, and a single step never exceeds it
			if feeGrowthStepU.SetFromBig(feeGrowthStep) {
				return nil, nil, fullmath.ErrMulDivOverflow
			}
			state.feeGrowthGlobalX128.Add(&state.feeGrowthGlobalX128, &feeGrowthStepU)
		}

		if state.sqrtPriceX96.Cmp(step.sqrtPriceNextX96) == 0 {
			if step.initialized {
				if !observed {
					tickCumulative, secondsPerLiquidity, err = p.observations.ObserveSingle(
						blockTimestamp, 0, slot0Start.Tick, slot0Start.ObservationIndex, liquidityStart, slot0Start.ObservationCardinality,
					)
					if err != nil {
						return nil, nil, err
					}
					observed = true
				}

				globals := tick.Globals{
					SecondsPerLiquidityCumulativeX128: secondsPerLiquidity,
					TickCumulative:                    tickCumulative,
					Time:                              blockTimestamp,
				}
				if params.ZeroForOne {
					globals.FeeGrowth0X128 = state.feeGrowthGlobalX128
					globals.FeeGrowth1X128 = p.feeGrowthGlobal1X128
				} else {
					globals.FeeGrowth0X128 = p.feeGrowthGlobal0X128
					globals.FeeGrowth1X128 = state.feeGrowthGlobalX128
				}
				crossings = append(crossings, crossing{tick: step.tickNext, globals: globals})

				liquidityNet := p.ticks.LiquidityNet(step.tickNext)
				// moving left, liquidityNet is applied in reverse
				if params.ZeroForOne {
					liquidityNet.Neg(liquidityNet)
				}
				if err = liquiditymath.AddDelta(state.liquidity, state.liquidity, liquidityNet); err != nil {
					return nil, nil, err
				}
			}

			if params.ZeroForOne {
				state.tick = step.tickNext - 1
			} else {
				state.tick = step.tickNext
			}
		} else if state.sqrtPriceX96.Cmp(step.sqrtPriceStartX96) != 0 {
			// moved within the tick range without reaching the next tick
			if state.tick, err = tickmath.GetTickAtSqrtRatio(state.sqrtPriceX96); err != nil {
				return nil, nil, err
			}
		}
	}

	specifiedUsed := new(big.Int).Sub(params.AmountSpecified, state.amountSpecifiedRemaining)
	if params.ZeroForOne == exactInput {
		amount0, amount1 = specifiedUsed, new(big.Int).Set(state.amountCalculated)
	} else {
		amount0, amount1 = new(big.Int).Set(state.amountCalculated), specifiedUsed
	}

	var ev events.Event
	err = p.withBankSnapshot(func() error {
		if params.ZeroForOne {
			if amount1.Sign() < 0 {
				if err := p.pay(p.token1, params.Recipient, new(big.Int).Neg(amount1)); err != nil {
					return err
				}
			}
			balance0Before := p.balance0()
			if err := params.Callback(new(big.Int).Set(amount0), new(big.Int).Set(amount1), params.Data); err != nil {
				return fmt.Errorf("swap callback: %w", err)
			}
			if new(big.Int).Add(balance0Before, amount0).Cmp(p.balance0()) > 0 {
				return fmt.Errorf("%w: token0 owed %s", ErrInsufficientInputAmount, amount0)
			}
		} else {
			if amount0.Sign() < 0 {
				if err := p.pay(p.token0, params.Recipient, new(big.Int).Neg(amount0)); err != nil {
					return err
				}
			}
			balance1Before := p.balance1()
			if err := params.Callback(new(big.Int).Set(amount0), new(big.Int).Set(amount1), params.Data); err != nil {
				return fmt.Errorf("swap callback: %w", err)
			}
			if new(big.Int).Add(balance1Before, amount1).Cmp(p.balance1()) > 0 {
				return fmt.Errorf("%w: token1 owed %s", ErrInsufficientInputAmount, amount1)
			}
		}

		p.commit(func() {
			// one observation per block, covering the time spent at the starting tick
			p.slot0.ObservationIndex, p.slot0.ObservationCardinality = p.observations.Write(
				slot0Start.ObservationIndex,
				blockTimestamp,
				slot0Start.Tick,
				liquidityStart,
				slot0Start.ObservationCardinality,
				slot0Start.ObservationCardinalityNext,
			)
			p.slot0.SqrtPriceX96 = new(big.Int).Set(state.sqrtPriceX96)
			p.slot0.Tick = state.tick
			p.liquidity = new(big.Int).Set(state.liquidity)

			if params.ZeroForOne {
				p.feeGrowthGlobal0X128 = state.feeGrowthGlobalX128
				if state.protocolFee.Sign() > 0 {
					p.protocolFees0 = new(big.Int).Add(p.protocolFees0, state.protocolFee)
				}
			} else {
				p.feeGrowthGlobal1X128 = state.feeGrowthGlobalX128
				if state.protocolFee.Sign() > 0 {
					p.protocolFees1 = new(big.Int).Add(p.protocolFees1, state.protocolFee)
				}
			}

			for i := range crossings {
				p.ticks.Cross(crossings[i].tick, &crossings[i].globals)
			}

			ev = events.Swap{
				Header:       p.header(blockTimestamp),
				Sender:       params.Sender,
				Recipient:    params.Recipient,
				Amount0:      new(big.Int).Set(amount0),
				Amount1:      new(big.Int).Set(amount1),
				SqrtPriceX96: new(big.Int).Set(state.sqrtPriceX96),
				Liquidity:    new(big.Int).Set(state.liquidity),
				Tick:         state.tick,
			}
		})
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	if len(crossings) > 0 {
		p.metrics.ticksCrossed.WithLabelValues(p.label).Add(float64(len(crossings)))
	}
	p.metrics.setState(p.label, state.tick, state.liquidity)
	p.logger.Debug("swapped", "pool", p.label, "zeroForOne", params.ZeroForOne, "amount0", amount0,
		"amount1", amount1, "tick", state.tick, "ticksCrossed", len(crossings))
	p.emit(ev)
	return amount0, amount1, nil
}
