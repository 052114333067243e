package postgres

import (
	"context"
	"math/big"
	"os"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/defistate/clamm-go/protocols/clamm/events"
)

func TestNewStoreRequiresDSN(t *testing.T) {
	_, err := NewStore(context.Background(), "")
	assert.ErrorIs(t, err, ErrMissingDSN)
}

// TestStore runs against a real database when CLAMM_TEST_PG_DSN is set.
func TestStore(t *testing.T) {
	dsn := os.Getenv("CLAMM_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("CLAMM_TEST_PG_DSN not set")
	}
	ctx := context.Background()
	s, err := NewStore(ctx, dsn)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.EnsureSchema(ctx))

	pool := common.BytesToAddress([]byte(t.Name()))
	batch := []events.Event{
		events.Initialize{Header: events.Header{Pool: pool, Seq: 1, BlockTimestamp: 1}, SqrtPriceX96: big.NewInt(1)},
		events.Swap{Header: events.Header{Pool: pool, Seq: 2, BlockTimestamp: 2}, Amount0: big.NewInt(1), Amount1: big.NewInt(-1)},
	}
	require.NoError(t, s.WriteEvents(ctx, batch))
	require.NoError(t, s.WriteEvents(ctx, batch))

	n, err := s.Count(ctx, pool.Hex())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}
