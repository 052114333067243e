package clamm

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// PoolViewMinimal is the per-pool state needed to price a swap without its tick list.
type PoolViewMinimal struct {
	Address              common.Address `json:"address"`
	Token0               common.Address `json:"token0"`
	Token1               common.Address `json:"token1"`
	Fee                  uint64         `json:"fee"`
	TickSpacing          uint64         `json:"tickSpacing"`
	Tick                 int64          `json:"tick"`
	Liquidity            *big.Int       `json:"liquidity"`
	SqrtPriceX96         *big.Int       `json:"sqrtPriceX96"`
	FeeGrowthGlobal0X128 *big.Int       `json:"feeGrowthGlobal0X128"`
	FeeGrowthGlobal1X128 *big.Int       `json:"feeGrowthGlobal1X128"`
}

// TickInfo is the liquidity held at an initialized tick.
// presence of an entry means the tick is initialized
type TickInfo struct {
	Index          int64    `json:"index"`
	LiquidityGross *big.Int `json:"liquidityGross"`
	LiquidityNet   *big.Int `json:"liquidityNet"`
}

// Pool is the full view of a pool: the minimal core plus its initialized ticks in ascending order.
type Pool struct {
	PoolViewMinimal `json:",inline"`
	Ticks           []TickInfo `json:"ticks"`
}
