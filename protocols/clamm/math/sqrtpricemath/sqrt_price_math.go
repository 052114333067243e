// Package sqrtpricemath computes prices and token amounts from Q64.96 square-root prices and liquidity.
package sqrtpricemath

import (
	"errors"
	"math/big"
	"sync"

	"github.com/defistate/clamm-go/protocols/clamm/math/fullmath"
)

var (
	// Q96 is the UQ64.96 fixed-point number representing 1.
	Q96 = new(big.Int).Lsh(big.NewInt(1), 96)
	// Resolution is the number of fractional bits in the Q96 format.
	Resolution = uint(96)

	maxUint160 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 160), big.NewInt(1))

	ErrLiquidityZero = errors.New("sqrtpricemath: liquidity must be greater than zero")
	ErrSqrtPriceZero = errors.New("sqrtpricemath: sqrt price must be greater than zero")
	// ErrPriceOverflow is returned when the next price does not fit in 160 bits.
	ErrPriceOverflow = errors.New("sqrtpricemath: sqrt price overflows uint160")
	// ErrInsufficientReserves is returned when an output amount exceeds what the liquidity can provide.
	ErrInsufficientReserves = errors.New("sqrtpricemath: output exceeds available reserves")
)

// sqrtPriceMath holds reusable big.Int objects to avoid memory allocations.
type sqrtPriceMath struct {
	product     *big.Int
	numerator1  *big.Int
	numerator2  *big.Int
	denominator *big.Int
	quotient    *big.Int
	term        *big.Int
	abs         *big.Int
}

var pool = sync.Pool{
	New: func() any {
		return &sqrtPriceMath{
			product:     new(big.Int),
			numerator1:  new(big.Int),
			numerator2:  new(big.Int),
			denominator: new(big.Int),
			quotient:    new(big.Int),
			term:        new(big.Int),
			abs:         new(big.Int),
		}
	},
}

// GetNextSqrtPriceFromAmount0RoundingUp returns the price after adding or removing amount of token0.
// The result is rounded up so the price moves less than exactly and the pool keeps the difference.
func GetNextSqrtPriceFromAmount0RoundingUp(dest, sqrtPX96, liquidity, amount *big.Int, add bool) error {
	s := pool.Get().(*sqrtPriceMath)
	defer pool.Put(s)
	return s.nextFromAmount0RoundingUp(dest, sqrtPX96, liquidity, amount, add)
}

// GetNextSqrtPriceFromAmount1RoundingDown returns the price after adding or removing amount of token1.
func GetNextSqrtPriceFromAmount1RoundingDown(dest, sqrtPX96, liquidity, amount *big.Int, add bool) error {
	s := pool.Get().(*sqrtPriceMath)
	defer pool.Put(s)
	return s.nextFromAmount1RoundingDown(dest, sqrtPX96, liquidity, amount, add)
}

// GetNextSqrtPriceFromInput returns the price after swapping amountIn of the input token.
func GetNextSqrtPriceFromInput(dest, sqrtPX96, liquidity, amountIn *big.Int, zeroForOne bool) error {
	if sqrtPX96.Sign() <= 0 {
		return ErrSqrtPriceZero
	}
	if liquidity.Sign() <= 0 {
		return ErrLiquidityZero
	}

	if zeroForOne {
		return GetNextSqrtPriceFromAmount0RoundingUp(dest, sqrtPX96, liquidity, amountIn, true)
	}
	return GetNextSqrtPriceFromAmount1RoundingDown(dest, sqrtPX96, liquidity, amountIn, true)
}

// GetNextSqrtPriceFromOutput returns the price after receiving amountOut of the output token.
func GetNextSqrtPriceFromOutput(dest, sqrtPX96, liquidity, amountOut *big.Int, zeroForOne bool) error {
	if sqrtPX96.Sign() <= 0 {
		return ErrSqrtPriceZero
	}
	if liquidity.Sign() <= 0 {
		return ErrLiquidityZero
	}

	if zeroForOne {
		return GetNextSqrtPriceFromAmount1RoundingDown(dest, sqrtPX96, liquidity, amountOut, false)
	}
	return GetNextSqrtPriceFromAmount0RoundingUp(dest, sqrtPX96, liquidity, amountOut, false)
}

// GetAmount0Delta writes liquidity * (sqrt(upper) - sqrt(lower)) / (sqrt(upper) * sqrt(lower)) into dest.
func GetAmount0Delta(dest, sqrtRatioAX96, sqrtRatioBX96, liquidity *big.Int, roundUp bool) error {
	s := pool.Get().(*sqrtPriceMath)
	defer pool.Put(s)
	return s.amount0Delta(dest, sqrtRatioAX96, sqrtRatioBX96, liquidity, roundUp)
}

// GetAmount1Delta writes liquidity * (sqrt(upper) - sqrt(lower)) into dest.
func GetAmount1Delta(dest, sqrtRatioAX96, sqrtRatioBX96, liquidity *big.Int, roundUp bool) error {
	s := pool.Get().(*sqrtPriceMath)
	defer pool.Put(s)
	return s.amount1Delta(dest, sqrtRatioAX96, sqrtRatioBX96, liquidity, roundUp)
}

// GetAmount0DeltaSigned returns the token0 amount owed to the pool for a signed liquidity change.
// Added liquidity rounds up; removed liquidity rounds down and yields a negative amount.
func GetAmount0DeltaSigned(dest, sqrtRatioAX96, sqrtRatioBX96, liquidity *big.Int) error {
	s := pool.Get().(*sqrtPriceMath)
	defer pool.Put(s)

	if liquidity.Sign() < 0 {
		s.abs.Neg(liquidity)
		if err := s.amount0Delta(dest, sqrtRatioAX96, sqrtRatioBX96, s.abs, false); err != nil {
			return err
		}
		dest.Neg(dest)
		return nil
	}
	s.abs.Set(liquidity)
	return s.amount0Delta(dest, sqrtRatioAX96, sqrtRatioBX96, s.abs, true)
}

// GetAmount1DeltaSigned is the token1 counterpart of GetAmount0DeltaSigned.
func GetAmount1DeltaSigned(dest, sqrtRatioAX96, sqrtRatioBX96, liquidity *big.Int) error {
	s := pool.Get().(*sqrtPriceMath)
	defer pool.Put(s)

	if liquidity.Sign() < 0 {
		s.abs.Neg(liquidity)
		if err := s.amount1Delta(dest, sqrtRatioAX96, sqrtRatioBX96, s.abs, false); err != nil {
			return err
		}
		dest.Neg(dest)
		return nil
	}
	s.abs.Set(liquidity)
	return s.amount1Delta(dest, sqrtRatioAX96, sqrtRatioBX96, s.abs, true)
}

func (s *sqrtPriceMath) nextFromAmount0RoundingUp(dest, sqrtPX96, liquidity, amount *big.Int, add bool) error {
	if amount.Sign() == 0 {
		dest.Set(sqrtPX96)
		return nil
	}

	s.numerator1.Lsh(liquidity, Resolution)
	s.product.Mul(amount, sqrtPX96)

	if add {
		// Exact form while the product and denominator fit in a word, otherwise the
		// 1 / (1/price + amount/liquidity) form, which rounds the same direction.
		s.denominator.Add(s.numerator1, s.product)
		if s.product.Cmp(fullmath.MaxUint256) <= 0 && s.denominator.Cmp(fullmath.MaxUint256) <= 0 {
			if err := fullmath.MulDivRoundingUp(dest, s.numerator1, sqrtPX96, s.denominator); err != nil {
				return err
			}
			return checkUint160(dest)
		}
		s.denominator.Quo(s.numerator1, sqrtPX96)
		s.denominator.Add(s.denominator, amount)
		if err := fullmath.DivRoundingUp(dest, s.numerator1, s.denominator); err != nil {
			return err
		}
		return checkUint160(dest)
	}

	if s.product.Cmp(fullmath.MaxUint256) > 0 || s.numerator1.Cmp(s.product) <= 0 {
		return ErrInsufficientReserves
	}
	s.denominator.Sub(s.numerator1, s.product)
	if err := fullmath.MulDivRoundingUp(dest, s.numerator1, sqrtPX96, s.denominator); err != nil {
		return err
	}
	return checkUint160(dest)
}

func (s *sqrtPriceMath) nextFromAmount1RoundingDown(dest, sqrtPX96, liquidity, amount *big.Int, add bool) error {
	if add {
		if err := fullmath.MulDiv(s.quotient, amount, Q96, liquidity); err != nil {
			return err
		}
		dest.Add(sqrtPX96, s.quotient)
		return checkUint160(dest)
	}

	if err := fullmath.MulDivRoundingUp(s.quotient, amount, Q96, liquidity); err != nil {
		return err
	}
	if sqrtPX96.Cmp(s.quotient) <= 0 {
		return ErrInsufficientReserves
	}
	dest.Sub(sqrtPX96, s.quotient)
	return nil
}

func (s *sqrtPriceMath) amount0Delta(dest, sqrtRatioAX96, sqrtRatioBX96, liquidity *big.Int, roundUp bool) error {
	if sqrtRatioAX96.Cmp(sqrtRatioBX96) > 0 {
		sqrtRatioAX96, sqrtRatioBX96 = sqrtRatioBX96, sqrtRatioAX96
	}
	if sqrtRatioAX96.Sign() <= 0 {
		return ErrSqrtPriceZero
	}

	s.numerator1.Lsh(liquidity, Resolution)
	s.numerator2.Sub(sqrtRatioBX96, sqrtRatioAX96)

	if roundUp {
		if err := fullmath.MulDivRoundingUp(s.term, s.numerator1, s.numerator2, sqrtRatioBX96); err != nil {
			return err
		}
		return fullmath.DivRoundingUp(dest, s.term, sqrtRatioAX96)
	}
	if err := fullmath.MulDiv(s.term, s.numerator1, s.numerator2, sqrtRatioBX96); err != nil {
		return err
	}
	dest.Quo(s.term, sqrtRatioAX96)
	return nil
}

func (s *sqrtPriceMath) amount1Delta(dest, sqrtRatioAX96, sqrtRatioBX96, liquidity *big.Int, roundUp bool) error {
	if sqrtRatioAX96.Cmp(sqrtRatioBX96) > 0 {
		sqrtRatioAX96, sqrtRatioBX96 = sqrtRatioBX96, sqrtRatioAX96
	}

	s.numerator1.Sub(sqrtRatioBX96, sqrtRatioAX96)
	if roundUp {
		return fullmath.MulDivRoundingUp(dest, liquidity, s.numerator1, Q96)
	}
	return fullmath.MulDiv(dest, liquidity, s.numerator1, Q96)
}

func checkUint160(x *big.Int) error {
	if x.Cmp(maxUint160) > 0 {
		return ErrPriceOverflow
	}
	return nil
}
