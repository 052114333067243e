// Package liquiditymath applies liquidity deltas and converts between liquidity and token amounts.
package liquiditymath

import (
	"errors"
	"math/big"

	"github.com/defistate/clamm-go/protocols/clamm/math/fullmath"
	"github.com/defistate/clamm-go/protocols/clamm/math/sqrtpricemath"
)

var (
	// MaxUint128 is the maximum value for a uint128 (2^128 - 1).
	MaxUint128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

	ErrLiquidityOverflow  = errors.New("liquidity overflow")
	ErrLiquidityUnderflow = errors.New("liquidity underflow")
)

// AddDelta adds a signed liquidity delta to an unsigned liquidity value,
// returning an error if the result leaves the uint128 range.
func AddDelta(dest *big.Int, x *big.Int, y *big.Int) error {
	dest.Add(x, y)
	if dest.Sign() < 0 {
		return ErrLiquidityUnderflow
	}
	if dest.Cmp(MaxUint128) > 0 {
		return ErrLiquidityOverflow
	}
	return nil
}

// GetLiquidityForAmount0 returns the liquidity received for amount0 between two prices.
func GetLiquidityForAmount0(dest, sqrtRatioAX96, sqrtRatioBX96, amount0 *big.Int) error {
	if sqrtRatioAX96.Cmp(sqrtRatioBX96) > 0 {
		sqrtRatioAX96, sqrtRatioBX96 = sqrtRatioBX96, sqrtRatioAX96
	}
	intermediate := new(big.Int)
	if err := fullmath.MulDiv(intermediate, sqrtRatioAX96, sqrtRatioBX96, sqrtpricemath.Q96); err != nil {
		return err
	}
	if err := fullmath.MulDiv(dest, amount0, intermediate, new(big.Int).Sub(sqrtRatioBX96, sqrtRatioAX96)); err != nil {
		return err
	}
	return checkUint128(dest)
}

// GetLiquidityForAmount1 returns the liquidity received for amount1 between two prices.
func GetLiquidityForAmount1(dest, sqrtRatioAX96, sqrtRatioBX96, amount1 *big.Int) error {
	if sqrtRatioAX96.Cmp(sqrtRatioBX96) > 0 {
		sqrtRatioAX96, sqrtRatioBX96 = sqrtRatioBX96, sqrtRatioAX96
	}
	if err := fullmath.MulDiv(dest, amount1, sqrtpricemath.Q96, new(big.Int).Sub(sqrtRatioBX96, sqrtRatioAX96)); err != nil {
		return err
	}
	return checkUint128(dest)
}

// GetLiquidityForAmounts returns the largest liquidity that amount0 and amount1 can fund over
// [sqrtRatioAX96, sqrtRatioBX96] at the current price.
func GetLiquidityForAmounts(dest, sqrtRatioX96, sqrtRatioAX96, sqrtRatioBX96, amount0, amount1 *big.Int) error {
	if sqrtRatioAX96.Cmp(sqrtRatioBX96) > 0 {
		sqrtRatioAX96, sqrtRatioBX96 = sqrtRatioBX96, sqrtRatioAX96
	}

	switch {
	case sqrtRatioX96.Cmp(sqrtRatioAX96) <= 0:
		return GetLiquidityForAmount0(dest, sqrtRatioAX96, sqrtRatioBX96, amount0)
	case sqrtRatioX96.Cmp(sqrtRatioBX96) < 0:
		liquidity0, liquidity1 := new(big.Int), new(big.Int)
		if err := GetLiquidityForAmount0(liquidity0, sqrtRatioX96, sqrtRatioBX96, amount0); err != nil {
			return err
		}
		if err := GetLiquidityForAmount1(liquidity1, sqrtRatioAX96, sqrtRatioX96, amount1); err != nil {
			return err
		}
		if liquidity0.Cmp(liquidity1) < 0 {
			dest.Set(liquidity0)
		} else {
			dest.Set(liquidity1)
		}
		return nil
	default:
		return GetLiquidityForAmount1(dest, sqrtRatioAX96, sqrtRatioBX96, amount1)
	}
}

// GetAmountsForLiquidity returns the token amounts represented by liquidity over
// [sqrtRatioAX96, sqrtRatioBX96] at the current price, rounded down.
func GetAmountsForLiquidity(amount0, amount1, sqrtRatioX96, sqrtRatioAX96, sqrtRatioBX96, liquidity *big.Int) error {
	if sqrtRatioAX96.Cmp(sqrtRatioBX96) > 0 {
		sqrtRatioAX96, sqrtRatioBX96 = sqrtRatioBX96, sqrtRatioAX96
	}
	amount0.SetInt64(0)
	amount1.SetInt64(0)

	switch {
	case sqrtRatioX96.Cmp(sqrtRatioAX96) <= 0:
		return sqrtpricemath.GetAmount0Delta(amount0, sqrtRatioAX96, sqrtRatioBX96, liquidity, false)
	case sqrtRatioX96.Cmp(sqrtRatioBX96) < 0:
		if err := sqrtpricemath.GetAmount0Delta(amount0, sqrtRatioX96, sqrtRatioBX96, liquidity, false); err != nil {
			return err
		}
		return sqrtpricemath.GetAmount1Delta(amount1, sqrtRatioAX96, sqrtRatioX96, liquidity, false)
	default:
		return sqrtpricemath.GetAmount1Delta(amount1, sqrtRatioAX96, sqrtRatioBX96, liquidity, false)
	}
}

func checkUint128(x *big.Int) error {
	if x.Cmp(MaxUint128) > 0 {
		return ErrLiquidityOverflow
	}
	return nil
}
