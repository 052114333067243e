package quoter

import (
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/defistate/clamm-go/protocols/clamm"
	"github.com/defistate/clamm-go/protocols/clamm/events"
	"github.com/defistate/clamm-go/protocols/clamm/ledger"
	"github.com/defistate/clamm-go/protocols/clamm/math/tickmath"
	"github.com/defistate/clamm-go/protocols/clamm/pool"
)

var (
	poolAddress = common.HexToAddress("0x00000000000000000000000000000000000000f0")
	token0      = common.HexToAddress("0x00000000000000000000000000000000000000a0")
	token1      = common.HexToAddress("0x00000000000000000000000000000000000000b0")
	trader      = common.HexToAddress("0x03")
	e18         = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
)

// newPool returns a pool at price 1 with three overlapping positions, and its bank.
func newPool(t *testing.T) (*pool.Pool, *ledger.Ledger) {
	t.Helper()
	bank := ledger.New()
	p, err := pool.New(&pool.Config{
		Address:     poolAddress,
		Token0:      token0,
		Token1:      token1,
		Fee:         3000,
		TickSpacing: 60,
		Bank:        bank,
		Clock:       pool.NewManualClock(1),
		Events:      events.Discard,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		Registry:    prometheus.NewRegistry(),
	})
	require.NoError(t, err)
	require.NoError(t, p.Initialize(q96))

	funding := new(big.Int).Exp(big.NewInt(10), big.NewInt(30), nil)
	require.NoError(t, bank.Mint(token0, trader, funding))
	require.NoError(t, bank.Mint(token1, trader, funding))

	pay := func(amount0, amount1 *big.Int, _ []byte) error {
		if err := bank.Transfer(token0, trader, poolAddress, amount0); err != nil {
			return err
		}
		return bank.Transfer(token1, trader, poolAddress, amount1)
	}
	for _, r := range [][2]int32{{-60, 60}, {-240, -60}, {-240, 60}, {120, 600}} {
		_, _, err := p.Mint(pool.MintParams{Owner: trader, TickLower: r[0], TickUpper: r[1], Amount: e18, Callback: pay})
		require.NoError(t, err)
	}
	return p, bank
}

func swap(t *testing.T, p *pool.Pool, bank *ledger.Ledger, zeroForOne bool, amount *big.Int) (*big.Int, *big.Int) {
	t.Helper()
	limit := new(big.Int).Sub(tickmath.MaxSqrtRatio, big.NewInt(1))
	if zeroForOne {
		limit = new(big.Int).Add(tickmath.MinSqrtRatio, big.NewInt(1))
	}
	amount0, amount1, err := p.Swap(pool.SwapParams{
		Recipient:         trader,
		ZeroForOne:        zeroForOne,
		AmountSpecified:   amount,
		SqrtPriceLimitX96: limit,
		Callback: func(amount0Delta, amount1Delta *big.Int, _ []byte) error {
			if amount0Delta.Sign() > 0 {
				return bank.Transfer(token0, trader, poolAddress, amount0Delta)
			}
			return bank.Transfer(token1, trader, poolAddress, amount1Delta)
		},
	})
	require.NoError(t, err)
	return amount0, amount1
}

func assertSameState(t *testing.T, want, got clamm.Pool) {
	t.Helper()
	assert.Equal(t, want.Tick, got.Tick)
	assert.Equal(t, 0, want.SqrtPriceX96.Cmp(got.SqrtPriceX96), "price %s, want %s", got.SqrtPriceX96, want.SqrtPriceX96)
	assert.Equal(t, 0, want.Liquidity.Cmp(got.Liquidity), "liquidity %s, want %s", got.Liquidity, want.Liquidity)
}

func TestQuoteExactInputMatchesSwap(t *testing.T) {
	p, bank := newPool(t)
	view := p.Snapshot()

	// far enough to cross -60
	amountIn := new(big.Int).Mul(big.NewInt(8), new(big.Int).Exp(big.NewInt(10), big.NewInt(15), nil))
	quoted, after, err := QuoteExactInput(amountIn, nil, token0, view)
	require.NoError(t, err)

	amount0, amount1 := swap(t, p, bank, true, amountIn)
	assert.Equal(t, amountIn, amount0)
	assert.Equal(t, new(big.Int).Neg(amount1), quoted)
	assertSameState(t, p.Snapshot(), after)
	assert.Less(t, after.Tick, int64(-60))

	// the input view is untouched
	assert.Equal(t, int64(0), view.Tick)
	assert.Equal(t, 0, view.SqrtPriceX96.Cmp(q96))
}

func TestQuoteExactOutputMatchesSwap(t *testing.T) {
	p, bank := newPool(t)
	view := p.Snapshot()

	amountOut := new(big.Int).Mul(big.NewInt(5), new(big.Int).Exp(big.NewInt(10), big.NewInt(15), nil))
	quoted, after, err := QuoteExactOutput(amountOut, nil, token1, view)
	require.NoError(t, err)

	amount0, amount1 := swap(t, p, bank, false, new(big.Int).Neg(amountOut))
	assert.Equal(t, new(big.Int).Neg(amountOut), amount0)
	assert.Equal(t, amount1, quoted)
	assertSameState(t, p.Snapshot(), after)
}

func TestQuoteUnsortedTicks(t *testing.T) {
	p, _ := newPool(t)
	view := p.Snapshot()
	amountIn := big.NewInt(1_000_000_000)
	want, _, err := QuoteExactInput(amountIn, nil, token1, view)
	require.NoError(t, err)

	shuffled := view.Clone()
	for i, j := 0, len(shuffled.Ticks)-1; i < j; i, j = i+1, j-1 {
		shuffled.Ticks[i], shuffled.Ticks[j] = shuffled.Ticks[j], shuffled.Ticks[i]
	}
	got, _, err := QuoteExactInput(amountIn, nil, token1, shuffled)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestQuoteErrors(t *testing.T) {
	p, _ := newPool(t)
	view := p.Snapshot()

	_, _, err := QuoteExactInput(big.NewInt(0), nil, token0, view)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, _, err = QuoteExactOutput(big.NewInt(-1), nil, token0, view)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, _, err = QuoteExactInput(big.NewInt(1), nil, common.HexToAddress("0x99"), view)
	assert.ErrorIs(t, err, ErrTokenMismatch)
	_, _, err = QuoteExactInput(big.NewInt(1), new(big.Int).Add(q96, big.NewInt(1)), token0, view)
	assert.ErrorIs(t, err, ErrInvalidPriceLimit)
	_, _, err = QuoteExactInput(big.NewInt(1), q96, token1, view)
	assert.ErrorIs(t, err, ErrInvalidPriceLimit)
	_, _, err = QuoteExactInput(big.NewInt(1), nil, token0, clamm.Pool{})
	assert.ErrorIs(t, err, ErrUninitializedPool)
}

func TestNextInitializedTick(t *testing.T) {
	ticks := []clamm.TickInfo{{Index: -60}, {Index: 0}, {Index: 120}}
	testCases := []struct {
		tick  int64
		lte   bool
		want  int64
		found bool
	}{
		{0, true, 0, true},
		{-1, true, -60, true},
		{-61, true, 0, false},
		{500, true, 120, true},
		{0, false, 120, true},
		{-100, false, -60, true},
		{120, false, 0, false},
	}
	for _, tc := range testCases {
		next, _, found := nextInitializedTick(ticks, tc.tick, tc.lte)
		assert.Equal(t, tc.found, found, "tick %d lte %v", tc.tick, tc.lte)
		if tc.found {
			assert.Equal(t, tc.want, next, "tick %d lte %v", tc.tick, tc.lte)
		}
	}
}

func TestSpotPriceAndReserves(t *testing.T) {
	view := clamm.Pool{PoolViewMinimal: clamm.PoolViewMinimal{
		Token0:       token0,
		Token1:       token1,
		SqrtPriceX96: new(big.Int).Set(q96),
		Liquidity:    new(big.Int).Set(e18),
	}}

	price, err := SpotPrice(token0, 18, 6, view)
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.New(1, 12)), price.String())

	price, err = SpotPrice(token1, 6, 18, view)
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.New(1, -12)), price.String())

	// price 4: sqrt is 2
	view.SqrtPriceX96 = new(big.Int).Lsh(big.NewInt(2), 96)
	price, err = SpotPrice(token0, 0, 0, view)
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.NewFromInt(4)), price.String())

	reserveIn, reserveOut, err := VirtualReserves(token1, view)
	require.NoError(t, err)
	assert.Equal(t, new(big.Int).Mul(e18, big.NewInt(2)), reserveIn)
	assert.Equal(t, new(big.Int).Quo(e18, big.NewInt(2)), reserveOut)

	_, err = SpotPrice(common.Address{}, 0, 0, view)
	assert.ErrorIs(t, err, ErrTokenMismatch)
}
