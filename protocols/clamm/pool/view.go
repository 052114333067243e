package pool

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/defistate/clamm-go/protocols/clamm"
	"github.com/defistate/clamm-go/protocols/clamm/oracle"
	"github.com/defistate/clamm-go/protocols/clamm/position"
	"github.com/defistate/clamm-go/protocols/clamm/tick"
)

func (p *Pool) Address() common.Address { return p.address }
func (p *Pool) Token0() common.Address  { return p.token0 }
func (p *Pool) Token1() common.Address  { return p.token1 }
func (p *Pool) Fee() uint32             { return p.fee }
func (p *Pool) TickSpacing() int32      { return p.tickSpacing }
func (p *Pool) Owner() common.Address   { return p.owner }

func (p *Pool) MaxLiquidityPerTick() *big.Int {
	return new(big.Int).Set(p.maxLiquidityPerTick)
}

// Initialized reports whether Initialize has succeeded.
func (p *Pool) Initialized() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.initialized
}

// Slot0 returns a copy of the current price, tick and oracle bookkeeping.
func (p *Pool) Slot0() Slot0 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.slot0.clone()
}

// Liquidity returns the liquidity active at the current tick.
func (p *Pool) Liquidity() *big.Int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return new(big.Int).Set(p.liquidity)
}

func (p *Pool) FeeGrowthGlobal0X128() *big.Int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.feeGrowthGlobal0X128.ToBig()
}

func (p *Pool) FeeGrowthGlobal1X128() *big.Int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.feeGrowthGlobal1X128.ToBig()
}

// ProtocolFees returns the protocol fees accrued and not yet collected.
func (p *Pool) ProtocolFees() (token0, token1 *big.Int) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return new(big.Int).Set(p.protocolFees0), new(big.Int).Set(p.protocolFees1)
}

// Tick returns a copy of an initialized tick.
func (p *Pool) Tick(t int32) (tick.Info, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.ticks.Get(t)
}

// Position returns a copy of a position.
func (p *Pool) Position(owner common.Address, tickLower, tickUpper int32) (position.Info, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.positions.Get(owner, tickLower, tickUpper)
}

// Observation returns the oracle observation in slot i.
func (p *Pool) Observation(i uint16) oracle.Observation {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.observations.At(i)
}

// TickBitmapWord returns the bitmap word at wordPos of the compressed tick index.
func (p *Pool) TickBitmapWord(wordPos int16) *big.Int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	w := p.bitmap.Word(wordPos)
	return w.ToBig()
}

// Ticks returns copies of every initialized tick keyed by index.
func (p *Pool) Ticks() map[int32]tick.Info {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[int32]tick.Info, p.ticks.Len())
	p.ticks.Range(func(t int32, info tick.Info) bool {
		out[t] = info
		return true
	})
	return out
}

// Positions returns copies of every position.
func (p *Pool) Positions() []position.Info {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]position.Info, 0, p.positions.Len())
	p.positions.Range(func(_ common.Hash, info position.Info) bool {
		out = append(out, info)
		return true
	})
	return out
}

// Snapshot returns a consistent view of the pool for pricing and streaming.
func (p *Pool) Snapshot() clamm.Pool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	view := clamm.Pool{
		PoolViewMinimal: clamm.PoolViewMinimal{
			Address:              p.address,
			Token0:               p.token0,
			Token1:               p.token1,
			Fee:                  uint64(p.fee),
			TickSpacing:          uint64(p.tickSpacing),
			Tick:                 int64(p.slot0.Tick),
			Liquidity:            new(big.Int).Set(p.liquidity),
			SqrtPriceX96:         new(big.Int).Set(p.slot0.SqrtPriceX96),
			FeeGrowthGlobal0X128: p.feeGrowthGlobal0X128.ToBig(),
			FeeGrowthGlobal1X128: p.feeGrowthGlobal1X128.ToBig(),
		},
		Ticks: make([]clamm.TickInfo, 0, p.ticks.Len()),
	}
	p.ticks.Range(func(t int32, info tick.Info) bool {
		view.Ticks = append(view.Ticks, clamm.TickInfo{
			Index:          int64(t),
			LiquidityGross: info.LiquidityGross,
			LiquidityNet:   info.LiquidityNet,
		})
		return true
	})
	return view
}
