package pool

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/defistate/clamm-go/protocols/clamm/events"
	"github.com/defistate/clamm-go/protocols/clamm/math/liquiditymath"
	"github.com/defistate/clamm-go/protocols/clamm/math/sqrtpricemath"
	"github.com/defistate/clamm-go/protocols/clamm/math/tickmath"
	"github.com/defistate/clamm-go/protocols/clamm/position"
	"github.com/defistate/clamm-go/protocols/clamm/tick"
)

// MintParams describes liquidity added to a range on behalf of Owner.
type MintParams struct {
	Sender    common.Address
	Owner     common.Address
	TickLower int32
	TickUpper int32
	Amount    *big.Int
	Callback  MintCallback
	Data      []byte
}

// positionChange is a staged liquidity change. Nothing in it is visible until applied.
type positionChange struct {
	blockTimestamp uint32
	tickLower      int32
	tickUpper      int32
	liquidityDelta *big.Int

	position     position.Info
	lower, upper tick.Info
	flippedLower bool
	flippedUpper bool

	// signed token deltas from the pool's side
	amount0 *big.Int
	amount1 *big.Int

	// activeLiquidity is the pool liquidity after the change, or nil when the range does not
	// contain the current tick.
	activeLiquidity *big.Int
}

// modifyPosition stages a liquidity change of a position and computes the token amounts it
// moves. A zero delta only checkpoints the fees of the position.
func (p *Pool) modifyPosition(
	owner common.Address,
	tickLower, tickUpper int32,
	liquidityDelta *big.Int,
	blockTimestamp uint32,
) (*positionChange, error) {
	slot0 := p.slot0
	pos, _ := p.positions.Get(owner, tickLower, tickUpper)

	// checked here so a burn fails on the position rather than on the tick underflow
	if liquidityDelta.Sign() < 0 && pos.Liquidity.CmpAbs(liquidityDelta) < 0 {
		return nil, fmt.Errorf("%w: holds %s, burning %s", ErrInsufficientLiquidity, pos.Liquidity, new(big.Int).Neg(liquidityDelta))
	}

	c := &positionChange{
		blockTimestamp: blockTimestamp,
		tickLower:      tickLower,
		tickUpper:      tickUpper,
		liquidityDelta: liquidityDelta,
		lower:          p.ticks.Lookup(tickLower),
		upper:          p.ticks.Lookup(tickUpper),
		amount0:        new(big.Int),
		amount1:        new(big.Int),
	}

	if liquidityDelta.Sign() != 0 {
		tickCumulative, secondsPerLiquidity, err := p.observations.ObserveSingle(
			blockTimestamp, 0, slot0.Tick, slot0.ObservationIndex, p.liquidity, slot0.ObservationCardinality,
		)
		if err != nil {
			return nil, err
		}
		globals := tick.Globals{
			FeeGrowth0X128:                    p.feeGrowthGlobal0X128,
			FeeGrowth1X128:                    p.feeGrowthGlobal1X128,
			SecondsPerLiquidityCumulativeX128: secondsPerLiquidity,
			TickCumulative:                    tickCumulative,
			Time:                              blockTimestamp,
		}

		if c.flippedLower, err = c.lower.Update(tickLower, slot0.Tick, liquidityDelta, &globals, false, p.maxLiquidityPerTick); err != nil {
			return nil, err
		}
		if c.flippedUpper, err = c.upper.Update(tickUpper, slot0.Tick, liquidityDelta, &globals, true, p.maxLiquidityPerTick); err != nil {
			return nil, err
		}
	}

	inside0, inside1 := tick.GetFeeGrowthInside(
		&c.lower, &c.upper, tickLower, tickUpper, slot0.Tick, &p.feeGrowthGlobal0X128, &p.feeGrowthGlobal1X128,
	)
	if err := pos.Update(liquidityDelta, &inside0, &inside1); err != nil {
		return nil, err
	}
	c.position = pos

	if liquidityDelta.Sign() == 0 {
		return c, nil
	}

	sqrtRatioLower, sqrtRatioUpper := new(big.Int), new(big.Int)
	if err := tickmath.GetSqrtRatioAtTick(sqrtRatioLower, tickLower); err != nil {
		return nil, err
	}
	if err := tickmath.GetSqrtRatioAtTick(sqrtRatioUpper, tickUpper); err != nil {
		return nil, err
	}

	switch {
	case slot0.Tick < tickLower:
		// range is above the price: only token0 is needed
		if err := sqrtpricemath.GetAmount0DeltaSigned(c.amount0, sqrtRatioLower, sqrtRatioUpper, liquidityDelta); err != nil {
			return nil, err
		}
	case slot0.Tick < tickUpper:
		if err := sqrtpricemath.GetAmount0DeltaSigned(c.amount0, slot0.SqrtPriceX96, sqrtRatioUpper, liquidityDelta); err != nil {
			return nil, err
		}
		if err := sqrtpricemath.GetAmount1DeltaSigned(c.amount1, sqrtRatioLower, slot0.SqrtPriceX96, liquidityDelta); err != nil {
			return nil, err
		}
		c.activeLiquidity = new(big.Int)
		if err := liquiditymath.AddDelta(c.activeLiquidity, p.liquidity, liquidityDelta); err != nil {
			return nil, err
		}
	default:
		if err := sqrtpricemath.GetAmount1DeltaSigned(c.amount1, sqrtRatioLower, sqrtRatioUpper, liquidityDelta); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// apply commits a staged change. Call only from a commit.
func (p *Pool) apply(c *positionChange) {
	if c.activeLiquidity != nil {
		// the observation covers the time before the change, so it uses the old liquidity
		p.slot0.ObservationIndex, p.slot0.ObservationCardinality = p.observations.Write(
			p.slot0.ObservationIndex,
			c.blockTimestamp,
			p.slot0.Tick,
			p.liquidity,
			p.slot0.ObservationCardinality,
			p.slot0.ObservationCardinalityNext,
		)
		p.liquidity = c.activeLiquidity
	}

	p.positions.Set(c.position)
	if c.liquidityDelta.Sign() == 0 {
		return
	}

	p.ticks.Set(c.tickLower, c.lower)
	p.ticks.Set(c.tickUpper, c.upper)
	// both ticks passed checkTicks, so flipping cannot fail
	if c.flippedLower {
		_ = p.bitmap.FlipTick(c.tickLower, p.tickSpacing)
	}
	if c.flippedUpper {
		_ = p.bitmap.FlipTick(c.tickUpper, p.tickSpacing)
	}

	if c.liquidityDelta.Sign() < 0 {
		if c.flippedLower {
			p.ticks.Clear(c.tickLower)
		}
		if c.flippedUpper {
			p.ticks.Clear(c.tickUpper)
		}
	}
}

// Mint adds liquidity to a position and returns the token amounts the callback paid.
func (p *Pool) Mint(params MintParams) (amount0, amount1 *big.Int, err error) {
	start := time.Now()
	defer func() { p.metrics.observe(p.label, "mint", start, err) }()

	if err = p.lock(); err != nil {
		return nil, nil, err
	}
	defer p.unlock()

	if err = p.checkInitialized(); err != nil {
		return nil, nil, err
	}
	if params.Amount == nil || params.Amount.Sign() <= 0 {
		return nil, nil, ErrZeroLiquidity
	}
	if params.Callback == nil {
		return nil, nil, ErrNilCallback
	}
	if err = p.checkTicks(params.TickLower, params.TickUpper); err != nil {
		return nil, nil, err
	}

	blockTimestamp := p.clock.BlockTimestamp()
	c, err := p.modifyPosition(params.Owner, params.TickLower, params.TickUpper, params.Amount, blockTimestamp)
	if err != nil {
		return nil, nil, err
	}
	amount0, amount1 = c.amount0, c.amount1

	var ev events.Event
	err = p.withBankSnapshot(func() error {
		var balance0Before, balance1Before *big.Int
		if amount0.Sign() > 0 {
			balance0Before = p.balance0()
		}
		if amount1.Sign() > 0 {
			balance1Before = p.balance1()
		}

		if err := params.Callback(new(big.Int).Set(amount0), new(big.Int).Set(amount1), params.Data); err != nil {
			return fmt.Errorf("mint callback: %w", err)
		}

		if amount0.Sign() > 0 && new(big.Int).Add(balance0Before, amount0).Cmp(p.balance0()) > 0 {
			return fmt.Errorf("%w: token0 owed %s", ErrInsufficientPayment, amount0)
		}
		if amount1.Sign() > 0 && new(big.Int).Add(balance1Before, amount1).Cmp(p.balance1()) > 0 {
			return fmt.Errorf("%w: token1 owed %s", ErrInsufficientPayment, amount1)
		}

		p.commit(func() {
			p.apply(c)
			ev = events.Mint{
				Header:    p.header(blockTimestamp),
				Sender:    params.Sender,
				Owner:     params.Owner,
				TickLower: params.TickLower,
				TickUpper: params.TickUpper,
				Amount:    new(big.Int).Set(params.Amount),
				Amount0:   new(big.Int).Set(amount0),
				Amount1:   new(big.Int).Set(amount1),
			}
		})
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	p.metrics.setState(p.label, p.slot0.Tick, p.liquidity)
	p.logger.Debug("minted", "pool", p.label, "owner", params.Owner, "tickLower", params.TickLower,
		"tickUpper", params.TickUpper, "amount", params.Amount, "amount0", amount0, "amount1", amount1)
	p.emit(ev)
	return amount0, amount1, nil
}

// Burn removes liquidity from the owner's position and credits the released tokens, plus any
// fees earned, to the position. Burning zero only updates the fees owed.
func (p *Pool) Burn(owner common.Address, tickLower, tickUpper int32, amount *big.Int) (amount0, amount1 *big.Int, err error) {
	start := time.Now()
	defer func() { p.metrics.observe(p.label, "burn", start, err) }()

	if err = p.lock(); err != nil {
		return nil, nil, err
	}
	defer p.unlock()

	if err = p.checkInitialized(); err != nil {
		return nil, nil, err
	}
	if amount == nil || amount.Sign() < 0 {
		return nil, nil, ErrNegativeAmount
	}
	if err = p.checkTicks(tickLower, tickUpper); err != nil {
		return nil, nil, err
	}

	blockTimestamp := p.clock.BlockTimestamp()
	c, err := p.modifyPosition(owner, tickLower, tickUpper, new(big.Int).Neg(amount), blockTimestamp)
	if err != nil {
		return nil, nil, err
	}

	amount0 = new(big.Int).Neg(c.amount0)
	amount1 = new(big.Int).Neg(c.amount1)
	if amount0.Sign() > 0 || amount1.Sign() > 0 {
		c.position.Credit(amount0, amount1)
	}

	var ev events.Event
	p.commit(func() {
		p.apply(c)
		ev = events.Burn{
			Header:    p.header(blockTimestamp),
			Owner:     owner,
			TickLower: tickLower,
			TickUpper: tickUpper,
			Amount:    new(big.Int).Set(amount),
			Amount0:   new(big.Int).Set(amount0),
			Amount1:   new(big.Int).Set(amount1),
		}
	})

	p.metrics.setState(p.label, p.slot0.Tick, p.liquidity)
	p.logger.Debug("burned", "pool", p.label, "owner", owner, "tickLower", tickLower,
		"tickUpper", tickUpper, "amount", amount, "amount0", amount0, "amount1", amount1)
	p.emit(ev)
	return amount0, amount1, nil
}
