package pool

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/defistate/clamm-go/protocols/clamm/events"
)

func TestObserve(t *testing.T) {
	t.Run("not initialized", func(t *testing.T) {
		f := newFixture(t)
		_, _, err := f.pool.Observe([]uint32{0})
		assert.ErrorIs(t, err, ErrNotInitialized)
	})

	t.Run("accumulates the current tick", func(t *testing.T) {
		f := newInitializedFixture(t)
		f.mint(t, lp, -60, 60, e18)
		_, _, err := f.swap(true, new(big.Int).Exp(big.NewInt(10), big.NewInt(15), nil))
		require.NoError(t, err)
		tick := f.pool.Slot0().Tick
		require.Negative(t, tick)

		f.clock.Advance(10)
		tickCumulatives, secondsPerLiquidity, err := f.pool.Observe([]uint32{0, 10})
		require.NoError(t, err)
		assert.Equal(t, []int64{int64(tick) * 10, 0}, tickCumulatives)

		want := new(big.Int).Lsh(big.NewInt(10), 128)
		want.Quo(want, e18)
		assert.Equal(t, want, secondsPerLiquidity[0])
		assert.Zero(t, secondsPerLiquidity[1].Sign())
	})

	t.Run("older than the window", func(t *testing.T) {
		f := newInitializedFixture(t)
		f.clock.Advance(10)
		_, _, err := f.pool.Observe([]uint32{11})
		assert.ErrorIs(t, err, ErrObservationUnavailable)
		assert.Equal(t, ClassState, Classify(err))
	})

	t.Run("one observation per block", func(t *testing.T) {
		f := newInitializedFixture(t)
		f.mint(t, lp, -600, 600, e18)
		require.NoError(t, f.pool.IncreaseObservationCardinalityNext(4))

		small := big.NewInt(1_000_000)
		f.clock.Advance(5)
		_, _, err := f.swap(true, small)
		require.NoError(t, err)
		_, _, err = f.swap(false, small)
		require.NoError(t, err)

		slot0 := f.pool.Slot0()
		assert.Equal(t, uint16(1), slot0.ObservationIndex)
		assert.Equal(t, uint16(4), slot0.ObservationCardinality)
		assert.Equal(t, uint32(startTime+5), f.pool.Observation(1).BlockTimestamp)

		f.clock.Advance(5)
		_, _, err = f.swap(true, small)
		require.NoError(t, err)
		assert.Equal(t, uint16(2), f.pool.Slot0().ObservationIndex)
		assert.Equal(t, uint32(startTime+10), f.pool.Observation(2).BlockTimestamp)
	})
}

func TestIncreaseObservationCardinalityNext(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.pool.IncreaseObservationCardinalityNext(2), ErrNotInitialized)

	f = newInitializedFixture(t)
	require.NoError(t, f.pool.IncreaseObservationCardinalityNext(3))
	slot0 := f.pool.Slot0()
	assert.Equal(t, uint16(1), slot0.ObservationCardinality)
	assert.Equal(t, uint16(3), slot0.ObservationCardinalityNext)

	got := f.events.Events()
	ev, ok := got[len(got)-1].(events.IncreaseObservationCardinalityNext)
	require.True(t, ok)
	assert.Equal(t, uint16(1), ev.Old)
	assert.Equal(t, uint16(3), ev.New)

	// shrinking is a no-op and emits nothing
	n := len(got)
	require.NoError(t, f.pool.IncreaseObservationCardinalityNext(2))
	assert.Equal(t, uint16(3), f.pool.Slot0().ObservationCardinalityNext)
	assert.Len(t, f.events.Events(), n)
}

func TestSnapshotCumulativesInside(t *testing.T) {
	f := newInitializedFixture(t)
	f.mint(t, lp, -60, 60, e18)
	f.mint(t, lp, 60, 120, e18)

	_, _, _, err := f.pool.SnapshotCumulativesInside(-120, 60)
	assert.ErrorIs(t, err, ErrTickNotInitialized)
	_, _, _, err = f.pool.SnapshotCumulativesInside(60, -60)
	assert.ErrorIs(t, err, ErrInvalidTickRange)

	f.clock.Advance(10)

	tickCumulative, secondsPerLiquidity, seconds, err := f.pool.SnapshotCumulativesInside(-60, 60)
	require.NoError(t, err)
	assert.Equal(t, int64(0), tickCumulative)
	assert.Equal(t, uint32(10), seconds)
	want := new(big.Int).Lsh(big.NewInt(10), 128)
	want.Quo(want, e18)
	assert.Equal(t, want, secondsPerLiquidity)

	// above the price: no time inside yet
	_, secondsPerLiquidity, seconds, err = f.pool.SnapshotCumulativesInside(60, 120)
	require.NoError(t, err)
	assert.Zero(t, seconds)
	assert.Zero(t, secondsPerLiquidity.Sign())
}
