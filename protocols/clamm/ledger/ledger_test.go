package ledger

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	token = common.HexToAddress("0x00000000000000000000000000000000000000a0")
	alice = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob   = common.HexToAddress("0x00000000000000000000000000000000000000b0")
)

func TestTransfer(t *testing.T) {
	l := New()
	require.NoError(t, l.Mint(token, alice, big.NewInt(100)))

	require.NoError(t, l.Transfer(token, alice, bob, big.NewInt(40)))
	assert.Equal(t, int64(60), l.BalanceOf(token, alice).Int64())
	assert.Equal(t, int64(40), l.BalanceOf(token, bob).Int64())

	err := l.Transfer(token, bob, alice, big.NewInt(41))
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Equal(t, int64(40), l.BalanceOf(token, bob).Int64())

	assert.ErrorIs(t, l.Transfer(token, bob, alice, big.NewInt(-1)), ErrNegativeAmount)
	assert.ErrorIs(t, l.Mint(token, bob, big.NewInt(-1)), ErrNegativeAmount)

	assert.Equal(t, []common.Address{alice, bob}, l.Accounts(token))
}

func TestSnapshots(t *testing.T) {
	t.Run("revert restores balances", func(t *testing.T) {
		l := New()
		require.NoError(t, l.Mint(token, alice, big.NewInt(100)))

		id := l.Snapshot()
		require.NoError(t, l.Transfer(token, alice, bob, big.NewInt(30)))
		require.NoError(t, l.Mint(token, bob, big.NewInt(5)))
		require.NoError(t, l.RevertToSnapshot(id))

		assert.Equal(t, int64(100), l.BalanceOf(token, alice).Int64())
		assert.Zero(t, l.BalanceOf(token, bob).Sign())
		assert.Empty(t, l.journal)
	})

	t.Run("nested snapshots", func(t *testing.T) {
		l := New()
		require.NoError(t, l.Mint(token, alice, big.NewInt(100)))

		outer := l.Snapshot()
		require.NoError(t, l.Transfer(token, alice, bob, big.NewInt(10)))
		inner := l.Snapshot()
		require.NoError(t, l.Transfer(token, alice, bob, big.NewInt(20)))

		require.NoError(t, l.RevertToSnapshot(inner))
		assert.Equal(t, int64(10), l.BalanceOf(token, bob).Int64())

		require.NoError(t, l.RevertToSnapshot(outer))
		assert.Zero(t, l.BalanceOf(token, bob).Sign())
	})

	t.Run("discard keeps changes", func(t *testing.T) {
		l := New()
		require.NoError(t, l.Mint(token, alice, big.NewInt(100)))

		id := l.Snapshot()
		require.NoError(t, l.Transfer(token, alice, bob, big.NewInt(10)))
		require.NoError(t, l.DiscardSnapshot(id))

		assert.Equal(t, int64(10), l.BalanceOf(token, bob).Int64())
		assert.ErrorIs(t, l.RevertToSnapshot(id), ErrInvalidSnapshot)
		assert.Empty(t, l.journal)
	})

	t.Run("reverting an outer snapshot invalidates inner ones", func(t *testing.T) {
		l := New()
		outer := l.Snapshot()
		inner := l.Snapshot()
		require.NoError(t, l.RevertToSnapshot(outer))
		assert.ErrorIs(t, l.RevertToSnapshot(inner), ErrInvalidSnapshot)
	})
}
