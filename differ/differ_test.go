package differ

import (
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/defistate/clamm-go/engine"
	"github.com/defistate/clamm-go/protocols/clamm"
)

func view(addr byte, tick int64) clamm.Pool {
	return clamm.Pool{PoolViewMinimal: clamm.PoolViewMinimal{
		Address:      common.Address{addr},
		Tick:         tick,
		Liquidity:    big.NewInt(1),
		SqrtPriceX96: big.NewInt(1),
	}}
}

func newDiffer(t *testing.T, reg prometheus.Registerer) *StateDiffer {
	t.Helper()
	d, err := NewStateDiffer(&StateDifferConfig{
		Registry: reg,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	return d
}

func TestNewStateDiffer(t *testing.T) {
	_, err := NewStateDiffer(&StateDifferConfig{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	assert.Error(t, err)
	_, err = NewStateDiffer(&StateDifferConfig{Registry: prometheus.NewRegistry()})
	assert.Error(t, err)

	// two differs can share a registry
	reg := prometheus.NewRegistry()
	newDiffer(t, reg)
	newDiffer(t, reg)
}

func TestDiff(t *testing.T) {
	reg := prometheus.NewRegistry()
	d := newDiffer(t, reg)

	old := &engine.State{ChainID: 1, Block: engine.BlockSummary{Number: 10}, Pools: []clamm.Pool{view(1, 0), view(2, 0)}}
	new := &engine.State{ChainID: 1, Block: engine.BlockSummary{Number: 11, Timestamp: 99}, Pools: []clamm.Pool{view(1, 5), view(3, 0)}}

	diff, err := d.Diff(old, new)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), diff.FromBlock)
	assert.Equal(t, new.Block, diff.ToBlock)
	require.Len(t, diff.Pools.Updates, 1)
	assert.Equal(t, int64(5), diff.Pools.Updates[0].Tick)
	require.Len(t, diff.Pools.Additions, 1)
	assert.Equal(t, []common.Address{{2}}, diff.Pools.Deletions)

	assert.Equal(t, 1.0, testutil.ToFloat64(d.metrics.poolChanges.WithLabelValues("update")))
	assert.Equal(t, 1.0, testutil.ToFloat64(d.metrics.poolChanges.WithLabelValues("deletion")))

	_, err = d.Diff(old, &engine.State{ChainID: 2, Block: engine.BlockSummary{Number: 11}})
	assert.ErrorIs(t, err, ErrChainMismatch)
	_, err = d.Diff(new, old)
	assert.ErrorIs(t, err, ErrBlockOrder)
}
