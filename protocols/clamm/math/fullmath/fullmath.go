package fullmath

import (
	"errors"
	"math/big"
	"sync"
)

var (
	// MaxUint256 is 2^256 - 1, the largest value any result may take.
	MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

	ErrMulDivOverflow = errors.New("fullmath: result overflows uint256")
	ErrDivisionByZero = errors.New("fullmath: division by zero")

	one = big.NewInt(1)
)

// scratch holds the 512-bit intermediate product and remainder.
type scratch struct {
	product *big.Int
	rem     *big.Int
}

var pool = sync.Pool{
	New: func() any {
		return &scratch{
			product: new(big.Int),
			rem:     new(big.Int),
		}
	},
}

// MulDiv writes floor(a*b/c) into dest. The intermediate product is computed at full
// precision; only the final result must fit in 256 bits.
func MulDiv(dest, a, b, c *big.Int) error {
	if c.Sign() == 0 {
		return ErrDivisionByZero
	}
	s := pool.Get().(*scratch)
	defer pool.Put(s)

	s.product.Mul(a, b)
	dest.Quo(s.product, c)
	if dest.CmpAbs(MaxUint256) > 0 {
		return ErrMulDivOverflow
	}
	return nil
}

// MulDivRoundingUp writes ceil(a*b/c) into dest.
func MulDivRoundingUp(dest, a, b, c *big.Int) error {
	if c.Sign() == 0 {
		return ErrDivisionByZero
	}
	s := pool.Get().(*scratch)
	defer pool.Put(s)

	s.product.Mul(a, b)
	dest.QuoRem(s.product, c, s.rem)
	if s.rem.Sign() > 0 {
		dest.Add(dest, one)
	}
	if dest.CmpAbs(MaxUint256) > 0 {
		return ErrMulDivOverflow
	}
	return nil
}

// DivRoundingUp writes ceil(a/b) into dest for non-negative a and positive b.
func DivRoundingUp(dest, a, b *big.Int) error {
	if b.Sign() == 0 {
		return ErrDivisionByZero
	}
	s := pool.Get().(*scratch)
	defer pool.Put(s)

	dest.QuoRem(a, b, s.rem)
	if s.rem.Sign() > 0 {
		dest.Add(dest, one)
	}
	return nil
}
