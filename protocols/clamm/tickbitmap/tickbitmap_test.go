package tickbitmap

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bitmapWith(t *testing.T, spacing int32, ticks ...int32) *Bitmap {
	t.Helper()
	b := New()
	for _, tick := range ticks {
		require.NoError(t, b.FlipTick(tick, spacing))
	}
	return b
}

func TestCompress(t *testing.T) {
	testCases := []struct {
		tick, spacing, expected int32
	}{
		{0, 60, 0},
		{59, 60, 0},
		{60, 60, 1},
		{-1, 60, -1},
		{-60, 60, -1},
		{-61, 60, -2},
		{-887272, 1, -887272},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.expected, Compress(tc.tick, tc.spacing), "tick %d spacing %d", tc.tick, tc.spacing)
	}
}

func TestFlipTick(t *testing.T) {
	t.Run("is false at first", func(t *testing.T) {
		assert.False(t, New().IsInitialized(1, 1))
	})

	t.Run("is flipped by flipTick", func(t *testing.T) {
		b := bitmapWith(t, 1, 1)
		assert.True(t, b.IsInitialized(1, 1))
	})

	t.Run("is flipped back by flipTick", func(t *testing.T) {
		b := bitmapWith(t, 1, 1, 1)
		assert.False(t, b.IsInitialized(1, 1))
		assert.Zero(t, b.Len())
	})

	t.Run("is not changed by another flip to a different tick", func(t *testing.T) {
		b := bitmapWith(t, 1, 2)
		assert.False(t, b.IsInitialized(1, 1))
	})

	t.Run("is not changed by another flip to a different tick on another word", func(t *testing.T) {
		b := bitmapWith(t, 1, 1+256)
		assert.True(t, b.IsInitialized(257, 1))
		assert.False(t, b.IsInitialized(1, 1))
	})

	t.Run("flips only the specified tick", func(t *testing.T) {
		b := bitmapWith(t, 1, -230)
		assert.True(t, b.IsInitialized(-230, 1))
		assert.False(t, b.IsInitialized(-231, 1))
		assert.False(t, b.IsInitialized(-229, 1))
		assert.False(t, b.IsInitialized(-230+256, 1))
		assert.False(t, b.IsInitialized(-230-256, 1))

		require.NoError(t, b.FlipTick(-230, 1))
		assert.False(t, b.IsInitialized(-230, 1))
	})

	t.Run("rejects misaligned ticks", func(t *testing.T) {
		assert.ErrorIs(t, New().FlipTick(61, 60), ErrTickMisaligned)
	})

	t.Run("word holds the flipped bit", func(t *testing.T) {
		b := bitmapWith(t, 60, -60)
		word := b.Word(-1)
		assert.Equal(t, uint64(1)<<63, word[3])
	})
}

func TestNextInitializedTickWithinOneWord(t *testing.T) {
	initialized := []int32{-200, -55, -4, 70, 78, 84, 139, 240, 535}

	testCases := []struct {
		name                string
		extra               []int32
		tick                int32
		lte                 bool
		expectedNext        int32
		expectedInitialized bool
	}{
		// lte = false
		{"GT: returns tick to right if at initialized tick", nil, 78, false, 84, true},
		{"GT: returns tick to right if at initialized tick (negative)", nil, -55, false, -4, true},
		{"GT: returns the tick directly to the right", nil, 77, false, 78, true},
		{"GT: returns the tick directly to the right (negative)", nil, -56, false, -55, true},
		{"GT: returns the next words initialized tick if on the right boundary", nil, 255, false, 511, false},
		{"GT: returns the next words initialized tick if on the right boundary (negative)", nil, -257, false, -200, true},
		{"GT: returns the next initialized tick from the next word", []int32{340}, 328, false, 340, true},
		{"GT: does not exceed boundary", nil, 508, false, 511, false},
		{"GT: skips entire word", nil, 255, false, 511, false},
		{"GT: skips half word", nil, 383, false, 511, false},

		// lte = true
		{"LTE: returns same tick if initialized", nil, 78, true, 78, true},
		{"LTE: returns tick directly to the left of input tick if not initialized", nil, 79, true, 78, true},
		{"LTE: will not exceed the word boundary", nil, 258, true, 256, false},
		{"LTE: at the word boundary", nil, 256, true, 256, false},
		{"LTE: word boundary less 1 (next initialized tick in next word)", nil, 72, true, 70, true},
		{"LTE: word boundary", nil, -257, true, -512, false},
		{"LTE: entire empty word", nil, 1023, true, 768, false},
		{"LTE: halfway through empty word", nil, 900, true, 768, false},
		{"LTE: boundary is initialized", []int32{329}, 456, true, 329, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			b := bitmapWith(t, 1, append(append([]int32{}, initialized...), tc.extra...)...)
			next, ok := b.NextInitializedTickWithinOneWord(tc.tick, 1, tc.lte)
			assert.Equal(t, tc.expectedInitialized, ok)
			assert.Equal(t, tc.expectedNext, next)
		})
	}

	t.Run("respects tick spacing", func(t *testing.T) {
		b := bitmapWith(t, 60, -120, 60, 180)

		next, ok := b.NextInitializedTickWithinOneWord(0, 60, false)
		assert.True(t, ok)
		assert.Equal(t, int32(60), next)

		next, ok = b.NextInitializedTickWithinOneWord(59, 60, true)
		assert.False(t, ok)
		assert.Equal(t, int32(0), next)

		next, ok = b.NextInitializedTickWithinOneWord(-1, 60, true)
		assert.True(t, ok)
		assert.Equal(t, int32(-120), next)
	})
}

func TestRange(t *testing.T) {
	b := bitmapWith(t, 1, -300, -1, 0, 255, 256)
	var got []int32
	b.Range(func(compressed int32) bool {
		got = append(got, compressed)
		return true
	})
	sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
	assert.Equal(t, []int32{-300, -1, 0, 255, 256}, got)
}

func TestClone(t *testing.T) {
	b := bitmapWith(t, 1, 5)
	c := b.Clone()
	require.NoError(t, c.FlipTick(6, 1))
	assert.False(t, b.IsInitialized(6, 1))
	assert.True(t, c.IsInitialized(5, 1))
}
