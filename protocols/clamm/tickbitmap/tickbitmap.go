// Package tickbitmap indexes initialized ticks as bits in 256-bit words.
//
// Ticks are compressed by the tick spacing first, so bit b of word w stands for the
// compressed tick w*256 + b. Searching for the next initialized tick never leaves the
// word of the starting tick; callers loop until they find one or reach a price limit.
package tickbitmap

import (
	"errors"
	"maps"

	"github.com/holiman/uint256"

	"github.com/defistate/clamm-go/protocols/clamm/math/bitmath"
)

// ErrTickMisaligned is returned when a tick is not a multiple of the tick spacing.
var ErrTickMisaligned = errors.New("tickbitmap: tick is not a multiple of the tick spacing")

// Bitmap is a sparse map from word position to a 256-bit word of tick flags.
// The zero value is not usable; use New.
type Bitmap struct {
	words map[int16]uint256.Int
}

// New returns an empty bitmap.
func New() *Bitmap {
	return &Bitmap{words: make(map[int16]uint256.Int)}
}

// Clone returns an independent copy of the bitmap.
func (b *Bitmap) Clone() *Bitmap {
	return &Bitmap{words: maps.Clone(b.words)}
}

// Compress divides tick by spacing, rounding toward negative infinity.
func Compress(tick, spacing int32) int32 {
	compressed := tick / spacing
	if tick < 0 && tick%spacing != 0 {
		compressed--
	}
	return compressed
}

// Position returns the word and bit index of a compressed tick.
func Position(compressed int32) (wordPos int16, bitPos uint8) {
	return int16(compressed >> 8), uint8(compressed)
}

// Word returns a copy of the word at wordPos. Missing words are zero.
func (b *Bitmap) Word(wordPos int16) uint256.Int {
	return b.words[wordPos]
}

// Len returns the number of non-empty words.
func (b *Bitmap) Len() int {
	return len(b.words)
}

// FlipTick toggles the initialized flag of tick.
func (b *Bitmap) FlipTick(tick, spacing int32) error {
	if tick%spacing != 0 {
		return ErrTickMisaligned
	}
	wordPos, bitPos := Position(tick / spacing)

	var mask uint256.Int
	mask.Lsh(uint256.NewInt(1), uint(bitPos))

	word := b.words[wordPos]
	word.Xor(&word, &mask)
	if word.IsZero() {
		delete(b.words, wordPos)
		return nil
	}
	b.words[wordPos] = word
	return nil
}

// IsInitialized reports whether the flag for tick is set.
func (b *Bitmap) IsInitialized(tick, spacing int32) bool {
	if tick%spacing != 0 {
		return false
	}
	wordPos, bitPos := Position(tick / spacing)
	word := b.words[wordPos]
	return bitSet(&word, bitPos)
}

func bitSet(word *uint256.Int, bitPos uint8) bool {
	return word[bitPos/64]&(1<<(bitPos%64)) != 0
}

// NextInitializedTickWithinOneWord returns the next initialized tick contained in the same word
// as tick (or the adjacent one when searching right), and whether it is initialized.
//
// With lte the search covers tick itself and everything to its left; otherwise it covers the
// ticks strictly greater than tick. When nothing is initialized the word boundary is returned
// with initialized false.
func (b *Bitmap) NextInitializedTickWithinOneWord(tick, spacing int32, lte bool) (next int32, initialized bool) {
	compressed := Compress(tick, spacing)

	var mask, masked uint256.Int
	if lte {
		wordPos, bitPos := Position(compressed)
		// all the 1s at or to the right of the current bitPos
		mask.Lsh(uint256.NewInt(1), uint(bitPos))
		mask.Sub(&mask, uint256.NewInt(1))
		mask.Add(&mask, new(uint256.Int).Lsh(uint256.NewInt(1), uint(bitPos)))

		word := b.words[wordPos]
		masked.And(&word, &mask)

		if masked.IsZero() {
			return (compressed - int32(bitPos)) * spacing, false
		}
		msb, _ := bitmath.MostSignificantBit(&masked)
		return (compressed - int32(bitPos-msb)) * spacing, true
	}

	// start from the word of the next tick, since the current tick state doesn't matter
	wordPos, bitPos := Position(compressed + 1)
	// all the 1s at or to the left of the bitPos
	mask.Lsh(uint256.NewInt(1), uint(bitPos))
	mask.Sub(&mask, uint256.NewInt(1))
	mask.Not(&mask)

	word := b.words[wordPos]
	masked.And(&word, &mask)

	if masked.IsZero() {
		return (compressed + 1 + int32(255-bitPos)) * spacing, false
	}
	lsb, _ := bitmath.LeastSignificantBit(&masked)
	return (compressed + 1 + int32(lsb-bitPos)) * spacing, true
}

// Range calls fn for every initialized compressed tick in ascending word order within each word.
// Word iteration order is unspecified.
func (b *Bitmap) Range(fn func(compressed int32) bool) {
	for wordPos, word := range b.words {
		for i := 0; i < 256; i++ {
			if bitSet(&word, uint8(i)) {
				if !fn(int32(wordPos)<<8 | int32(i)) {
					return
				}
			}
		}
	}
}
