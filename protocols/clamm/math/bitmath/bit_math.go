// Package bitmath locates the highest and lowest set bits of 256-bit words.
package bitmath

import (
	"errors"
	"math/bits"

	"github.com/holiman/uint256"
)

var (
	ErrZeroWord = errors.New("bitmath: word is zero")
	ErrNilWord  = errors.New("bitmath: word is nil")
)

func check(x *uint256.Int) error {
	if x == nil {
		return ErrNilWord
	}
	if x.IsZero() {
		return ErrZeroWord
	}
	return nil
}

// MostSignificantBit returns the index of the highest set bit, counting from 0 at the least
// significant end, so that 2**msb <= x < 2**(msb+1).
func MostSignificantBit(x *uint256.Int) (uint8, error) {
	if err := check(x); err != nil {
		return 0, err
	}
	// limbs are little-endian
	limb := 3
	for x[limb] == 0 {
		limb--
	}
	return uint8(limb<<6 | (63 - bits.LeadingZeros64(x[limb]))), nil
}

// LeastSignificantBit returns the index of the lowest set bit.
func LeastSignificantBit(x *uint256.Int) (uint8, error) {
	if err := check(x); err != nil {
		return 0, err
	}
	limb := 0
	for x[limb] == 0 {
		limb++
	}
	return uint8(limb<<6 | bits.TrailingZeros64(x[limb])), nil
}
