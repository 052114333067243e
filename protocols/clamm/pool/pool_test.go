package pool

import (
	"errors"
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/defistate/clamm-go/protocols/clamm/events"
	"github.com/defistate/clamm-go/protocols/clamm/ledger"
	"github.com/defistate/clamm-go/protocols/clamm/math/sqrtpricemath"
	"github.com/defistate/clamm-go/protocols/clamm/math/tickmath"
	"github.com/defistate/clamm-go/protocols/clamm/tickbitmap"
)

var (
	poolAddress = common.HexToAddress("0x00000000000000000000000000000000000000f0")
	token0      = common.HexToAddress("0x00000000000000000000000000000000000000a0")
	token1      = common.HexToAddress("0x00000000000000000000000000000000000000b0")
	owner       = common.HexToAddress("0x0000000000000000000000000000000000000001")
	lp          = common.HexToAddress("0x0000000000000000000000000000000000000002")
	trader      = common.HexToAddress("0x0000000000000000000000000000000000000003")
	other       = common.HexToAddress("0x0000000000000000000000000000000000000004")

	q96       = new(big.Int).Lsh(big.NewInt(1), 96)
	e18       = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	funding   = new(big.Int).Exp(big.NewInt(10), big.NewInt(30), nil)
	minLimit  = new(big.Int).Add(tickmath.MinSqrtRatio, big.NewInt(1))
	maxLimit  = new(big.Int).Sub(tickmath.MaxSqrtRatio, big.NewInt(1))
	startTime = uint32(1_000)
)

type testingT interface {
	require.TestingT
	Helper()
}

type fixture struct {
	pool   *Pool
	bank   *ledger.Ledger
	clock  *ManualClock
	events *events.Recorder
}

func newFixture(t testingT, mutate ...func(*Config)) *fixture {
	t.Helper()
	f := &fixture{
		bank:   ledger.New(),
		clock:  NewManualClock(startTime),
		events: events.NewRecorder(),
	}
	cfg := &Config{
		Address:     poolAddress,
		Token0:      token0,
		Token1:      token1,
		Fee:         3000,
		TickSpacing: 60,
		Owner:       owner,
		Bank:        f.bank,
		Clock:       f.clock,
		Events:      f.events,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		Registry:    prometheus.NewRegistry(),
	}
	for _, m := range mutate {
		m(cfg)
	}

	p, err := New(cfg)
	require.NoError(t, err)
	f.pool = p

	for _, account := range []common.Address{lp, trader, other} {
		require.NoError(t, f.bank.Mint(token0, account, funding))
		require.NoError(t, f.bank.Mint(token1, account, funding))
	}
	return f
}

// newInitializedFixture returns a pool at price 1 (tick 0).
func newInitializedFixture(t testingT, mutate ...func(*Config)) *fixture {
	t.Helper()
	f := newFixture(t, mutate...)
	require.NoError(t, f.pool.Initialize(q96))
	return f
}

// pay returns a mint callback that pays exactly what is owed from payer.
func (f *fixture) pay(payer common.Address) MintCallback {
	return func(amount0Owed, amount1Owed *big.Int, _ []byte) error {
		if err := f.bank.Transfer(token0, payer, poolAddress, amount0Owed); err != nil {
			return err
		}
		return f.bank.Transfer(token1, payer, poolAddress, amount1Owed)
	}
}

// payDelta returns a swap callback that pays the positive delta from payer.
func (f *fixture) payDelta(payer common.Address) SwapCallback {
	return func(amount0Delta, amount1Delta *big.Int, _ []byte) error {
		if amount0Delta.Sign() > 0 {
			if err := f.bank.Transfer(token0, payer, poolAddress, amount0Delta); err != nil {
				return err
			}
		}
		if amount1Delta.Sign() > 0 {
			return f.bank.Transfer(token1, payer, poolAddress, amount1Delta)
		}
		return nil
	}
}

func (f *fixture) mint(t testingT, who common.Address, tickLower, tickUpper int32, amount *big.Int) (*big.Int, *big.Int) {
	t.Helper()
	amount0, amount1, err := f.pool.Mint(MintParams{
		Sender:    who,
		Owner:     who,
		TickLower: tickLower,
		TickUpper: tickUpper,
		Amount:    amount,
		Callback:  f.pay(who),
	})
	require.NoError(t, err)
	return amount0, amount1
}

func (f *fixture) swap(zeroForOne bool, amountSpecified *big.Int) (*big.Int, *big.Int, error) {
	limit := maxLimit
	if zeroForOne {
		limit = minLimit
	}
	return f.pool.Swap(SwapParams{
		Sender:            trader,
		Recipient:         trader,
		ZeroForOne:        zeroForOne,
		AmountSpecified:   amountSpecified,
		SqrtPriceLimitX96: limit,
		Callback:          f.payDelta(trader),
	})
}

func (f *fixture) poolBalances() (*big.Int, *big.Int) {
	return f.bank.BalanceOf(token0, poolAddress), f.bank.BalanceOf(token1, poolAddress)
}

func sqrtAt(t testingT, tick int32) *big.Int {
	t.Helper()
	r := new(big.Int)
	require.NoError(t, tickmath.GetSqrtRatioAtTick(r, tick))
	return r
}

func TestNew(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"tokens out of order", func(c *Config) { c.Token0, c.Token1 = c.Token1, c.Token0 }},
		{"fee too large", func(c *Config) { c.Fee = 1_000_000 }},
		{"zero tick spacing", func(c *Config) { c.TickSpacing = 0 }},
		{"tick spacing too large", func(c *Config) { c.TickSpacing = 16384 }},
		{"invalid fee protocol", func(c *Config) { c.FeeProtocol0 = 3 }},
		{"non-positive max liquidity", func(c *Config) { c.MaxLiquidityPerTick = new(big.Int) }},
		{"nil bank", func(c *Config) { c.Bank = nil }},
		{"nil clock", func(c *Config) { c.Clock = nil }},
		{"nil logger", func(c *Config) { c.Logger = nil }},
		{"nil registry", func(c *Config) { c.Registry = nil }},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &Config{
				Address:     poolAddress,
				Token0:      token0,
				Token1:      token1,
				Fee:         3000,
				TickSpacing: 60,
				Bank:        ledger.New(),
				Clock:       NewManualClock(0),
				Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
				Registry:    prometheus.NewRegistry(),
			}
			tc.mutate(cfg)
			_, err := New(cfg)
			assert.Error(t, err)
		})
	}

	t.Run("pools can share a registry", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		share := func(c *Config) { c.Registry = reg }
		a := newFixture(t, share)
		b := newFixture(t, share, func(c *Config) { c.Address = other })
		require.NoError(t, a.pool.Initialize(q96))
		require.NoError(t, b.pool.Initialize(q96))
		assert.Equal(t, 2, testutil.CollectAndCount(a.pool.metrics.operations))
	})

	t.Run("max liquidity per tick defaults from spacing", func(t *testing.T) {
		f := newFixture(t)
		assert.Equal(t, "11505743598341114571880798222544994", f.pool.MaxLiquidityPerTick().String())
	})
}

func TestInitialize(t *testing.T) {
	t.Run("sets price, tick and the first observation", func(t *testing.T) {
		f := newFixture(t)
		price := sqrtAt(t, -120)
		require.NoError(t, f.pool.Initialize(price))

		slot0 := f.pool.Slot0()
		assert.Equal(t, 0, slot0.SqrtPriceX96.Cmp(price))
		assert.Equal(t, int32(-120), slot0.Tick)
		assert.Equal(t, uint16(0), slot0.ObservationIndex)
		assert.Equal(t, uint16(1), slot0.ObservationCardinality)
		assert.Equal(t, uint16(1), slot0.ObservationCardinalityNext)
		assert.Zero(t, f.pool.Liquidity().Sign())
		assert.True(t, f.pool.Initialized())

		obs := f.pool.Observation(0)
		assert.True(t, obs.Initialized)
		assert.Equal(t, startTime, obs.BlockTimestamp)

		got := f.events.Events()
		require.Len(t, got, 1)
		assert.Equal(t, events.KindInitialize, got[0].Kind())
		assert.Equal(t, uint64(1), got[0].EventHeader().Seq)
	})

	t.Run("fails twice", func(t *testing.T) {
		f := newInitializedFixture(t)
		assert.ErrorIs(t, f.pool.Initialize(q96), ErrAlreadyInitialized)
	})

	t.Run("rejects prices outside the ratio bounds", func(t *testing.T) {
		f := newFixture(t)
		assert.ErrorIs(t, f.pool.Initialize(new(big.Int).Sub(tickmath.MinSqrtRatio, big.NewInt(1))), ErrInvalidSqrtPrice)
		assert.ErrorIs(t, f.pool.Initialize(tickmath.MaxSqrtRatio), ErrInvalidSqrtPrice)
		assert.ErrorIs(t, f.pool.Initialize(nil), ErrInvalidSqrtPrice)
		assert.False(t, f.pool.Initialized())
	})

	t.Run("accepts the minimum ratio", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.pool.Initialize(tickmath.MinSqrtRatio))
		assert.Equal(t, tickmath.MinTick, f.pool.Slot0().Tick)
	})

	t.Run("applies the configured fee protocol", func(t *testing.T) {
		f := newInitializedFixture(t, func(c *Config) { c.FeeProtocol0, c.FeeProtocol1 = 4, 5 })
		assert.Equal(t, uint8(4+5<<4), f.pool.Slot0().FeeProtocol)
	})

	t.Run("other operations require initialization", func(t *testing.T) {
		f := newFixture(t)
		_, _, err := f.pool.Mint(MintParams{Owner: lp, TickLower: -60, TickUpper: 60, Amount: big.NewInt(1), Callback: f.pay(lp)})
		assert.ErrorIs(t, err, ErrNotInitialized)
		_, _, err = f.pool.Burn(lp, -60, 60, big.NewInt(1))
		assert.ErrorIs(t, err, ErrNotInitialized)
		_, _, err = f.swap(true, big.NewInt(1))
		assert.ErrorIs(t, err, ErrNotInitialized)
		assert.ErrorIs(t, f.pool.Flash(FlashParams{Amount0: big.NewInt(1), Amount1: new(big.Int), Callback: func(_, _ *big.Int, _ []byte) error { return nil }}), ErrNotInitialized)
		_, _, err = f.pool.Observe([]uint32{0})
		assert.ErrorIs(t, err, ErrNotInitialized)
		assert.ErrorIs(t, f.pool.IncreaseObservationCardinalityNext(2), ErrNotInitialized)
		assert.Equal(t, ClassState, Classify(err))
	})
}

func TestMint(t *testing.T) {
	t.Run("validates parameters", func(t *testing.T) {
		f := newInitializedFixture(t)
		testCases := []struct {
			name   string
			params MintParams
			want   error
		}{
			{"zero amount", MintParams{TickLower: -60, TickUpper: 60, Amount: new(big.Int)}, ErrZeroLiquidity},
			{"nil amount", MintParams{TickLower: -60, TickUpper: 60}, ErrZeroLiquidity},
			{"lower not below upper", MintParams{TickLower: 60, TickUpper: 60, Amount: big.NewInt(1)}, ErrInvalidTickRange},
			{"lower below min", MintParams{TickLower: -887280, TickUpper: 60, Amount: big.NewInt(1)}, ErrTickOutOfBounds},
			{"upper above max", MintParams{TickLower: -60, TickUpper: 887280, Amount: big.NewInt(1)}, ErrTickOutOfBounds},
			{"misaligned", MintParams{TickLower: -50, TickUpper: 60, Amount: big.NewInt(1)}, ErrTickMisaligned},
		}
		for _, tc := range testCases {
			t.Run(tc.name, func(t *testing.T) {
				tc.params.Owner = lp
				tc.params.Callback = f.pay(lp)
				_, _, err := f.pool.Mint(tc.params)
				assert.ErrorIs(t, err, tc.want)
				assert.Equal(t, ClassValidation, Classify(err))
			})
		}

		_, _, err := f.pool.Mint(MintParams{Owner: lp, TickLower: -60, TickUpper: 60, Amount: big.NewInt(1)})
		assert.ErrorIs(t, err, ErrNilCallback)
		assert.Zero(t, f.pool.ticks.Len())
	})

	t.Run("in range uses both tokens and activates liquidity", func(t *testing.T) {
		f := newInitializedFixture(t)
		amount0, amount1 := f.mint(t, lp, -60, 60, e18)

		want0, want1 := new(big.Int), new(big.Int)
		require.NoError(t, sqrtpricemath.GetAmount0Delta(want0, q96, sqrtAt(t, 60), e18, true))
		require.NoError(t, sqrtpricemath.GetAmount1Delta(want1, sqrtAt(t, -60), q96, e18, true))
		assert.Equal(t, want0, amount0)
		assert.Equal(t, want1, amount1)

		balance0, balance1 := f.poolBalances()
		assert.Equal(t, want0, balance0)
		assert.Equal(t, want1, balance1)
		assert.Equal(t, e18, f.pool.Liquidity())

		lower, ok := f.pool.Tick(-60)
		require.True(t, ok)
		assert.Equal(t, e18, lower.LiquidityGross)
		assert.Equal(t, e18, lower.LiquidityNet)
		upper, ok := f.pool.Tick(60)
		require.True(t, ok)
		assert.Equal(t, new(big.Int).Neg(e18), upper.LiquidityNet)

		assert.True(t, f.pool.bitmap.IsInitialized(-60, 60))
		assert.True(t, f.pool.bitmap.IsInitialized(60, 60))

		pos, ok := f.pool.Position(lp, -60, 60)
		require.True(t, ok)
		assert.Equal(t, e18, pos.Liquidity)

		got := f.events.Events()
		require.Len(t, got, 2)
		mint, ok := got[1].(events.Mint)
		require.True(t, ok)
		assert.Equal(t, want0, mint.Amount0)
		assert.Equal(t, uint64(2), mint.Seq)
	})

	t.Run("above the price uses only token0", func(t *testing.T) {
		f := newInitializedFixture(t)
		amount0, amount1 := f.mint(t, lp, 60, 120, e18)
		assert.Positive(t, amount0.Sign())
		assert.Zero(t, amount1.Sign())
		assert.Zero(t, f.pool.Liquidity().Sign())
	})

	t.Run("below the price uses only token1", func(t *testing.T) {
		f := newInitializedFixture(t)
		amount0, amount1 := f.mint(t, lp, -120, -60, e18)
		assert.Zero(t, amount0.Sign())
		assert.Positive(t, amount1.Sign())
		assert.Zero(t, f.pool.Liquidity().Sign())
	})

	t.Run("lower tick at the current tick is in range", func(t *testing.T) {
		f := newInitializedFixture(t)
		f.mint(t, lp, 0, 60, e18)
		assert.Equal(t, e18, f.pool.Liquidity())
	})

	t.Run("rejects an under-paying callback without side effects", func(t *testing.T) {
		f := newInitializedFixture(t)
		before0 := f.bank.BalanceOf(token0, lp)

		_, _, err := f.pool.Mint(MintParams{
			Owner:     lp,
			TickLower: -60,
			TickUpper: 60,
			Amount:    e18,
			Callback: func(amount0Owed, amount1Owed *big.Int, _ []byte) error {
				// pays token0 only
				return f.bank.Transfer(token0, lp, poolAddress, amount0Owed)
			},
		})
		assert.ErrorIs(t, err, ErrInsufficientPayment)
		assert.Equal(t, ClassInvariant, Classify(err))

		assert.Equal(t, before0, f.bank.BalanceOf(token0, lp))
		balance0, _ := f.poolBalances()
		assert.Zero(t, balance0.Sign())
		assert.Zero(t, f.pool.Liquidity().Sign())
		assert.Zero(t, f.pool.ticks.Len())
		assert.Zero(t, f.pool.positions.Len())
		assert.Equal(t, 1, f.events.Len())
	})

	t.Run("callback errors are returned", func(t *testing.T) {
		f := newInitializedFixture(t)
		boom := errors.New("boom")
		_, _, err := f.pool.Mint(MintParams{
			Owner:     lp,
			TickLower: -60,
			TickUpper: 60,
			Amount:    e18,
			Callback:  func(_, _ *big.Int, _ []byte) error { return boom },
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, ClassUnknown, Classify(err))
	})

	t.Run("enforces the per-tick cap", func(t *testing.T) {
		f := newInitializedFixture(t, func(c *Config) { c.MaxLiquidityPerTick = big.NewInt(1000) })
		f.mint(t, lp, -60, 60, big.NewInt(600))

		_, _, err := f.pool.Mint(MintParams{Owner: lp, TickLower: -60, TickUpper: 120, Amount: big.NewInt(401), Callback: f.pay(lp)})
		assert.ErrorIs(t, err, ErrInvalidLiquidityDelta)
		_, ok := f.pool.Tick(120)
		assert.False(t, ok)

		f.mint(t, lp, -60, 120, big.NewInt(400))
	})

	t.Run("rejects reentry and allows reads from the callback", func(t *testing.T) {
		f := newInitializedFixture(t)
		var reentry error
		var seenTick int32 = 1
		_, _, err := f.pool.Mint(MintParams{
			Owner:     lp,
			TickLower: -60,
			TickUpper: 60,
			Amount:    e18,
			Callback: func(amount0Owed, amount1Owed *big.Int, data []byte) error {
				seenTick = f.pool.Slot0().Tick
				_, _, reentry = f.pool.Mint(MintParams{Owner: lp, TickLower: -60, TickUpper: 60, Amount: e18, Callback: f.pay(lp)})
				return f.pay(lp)(amount0Owed, amount1Owed, data)
			},
		})
		require.NoError(t, err)
		assert.ErrorIs(t, reentry, ErrLocked)
		assert.Equal(t, int32(0), seenTick)
		assert.Equal(t, e18, f.pool.Liquidity())
	})

	t.Run("adding to a position accrues its fees first", func(t *testing.T) {
		f := newInitializedFixture(t)
		f.mint(t, lp, -60, 60, e18)
		_, _, err := f.swap(true, big.NewInt(1_000_000_000))
		require.NoError(t, err)

		f.mint(t, lp, -60, 60, e18)
		pos, _ := f.pool.Position(lp, -60, 60)
		assert.Positive(t, pos.TokensOwed0.Sign())
		assert.Equal(t, new(big.Int).Mul(e18, big.NewInt(2)), pos.Liquidity)
	})
}

func TestBurn(t *testing.T) {
	t.Run("validates parameters", func(t *testing.T) {
		f := newInitializedFixture(t)
		_, _, err := f.pool.Burn(lp, -60, 60, big.NewInt(-1))
		assert.ErrorIs(t, err, ErrNegativeAmount)
		_, _, err = f.pool.Burn(lp, 60, -60, big.NewInt(1))
		assert.ErrorIs(t, err, ErrInvalidTickRange)
	})

	t.Run("cannot burn more than the position holds", func(t *testing.T) {
		f := newInitializedFixture(t)
		f.mint(t, lp, -60, 60, big.NewInt(1000))

		_, _, err := f.pool.Burn(lp, -60, 60, big.NewInt(1001))
		assert.ErrorIs(t, err, ErrInsufficientLiquidity)
		assert.Equal(t, ClassInvariant, Classify(err))

		_, _, err = f.pool.Burn(other, -60, 60, big.NewInt(1))
		assert.ErrorIs(t, err, ErrInsufficientLiquidity)
		assert.Equal(t, big.NewInt(1000), f.pool.Liquidity())
	})

	t.Run("poking an empty position fails", func(t *testing.T) {
		f := newInitializedFixture(t)
		_, _, err := f.pool.Burn(lp, -60, 60, new(big.Int))
		assert.ErrorIs(t, err, ErrPositionNotFound)
	})

	t.Run("full burn clears the ticks and credits principal", func(t *testing.T) {
		f := newInitializedFixture(t)
		minted0, minted1 := f.mint(t, lp, -60, 60, e18)

		amount0, amount1, err := f.pool.Burn(lp, -60, 60, e18)
		require.NoError(t, err)

		// minting rounds up and burning rounds down
		assert.Equal(t, new(big.Int).Sub(minted0, big.NewInt(1)), amount0)
		assert.Equal(t, new(big.Int).Sub(minted1, big.NewInt(1)), amount1)

		assert.Zero(t, f.pool.Liquidity().Sign())
		assert.Zero(t, f.pool.ticks.Len())
		assert.Zero(t, f.pool.bitmap.Len())

		pos, ok := f.pool.Position(lp, -60, 60)
		require.True(t, ok, "the position persists with owed tokens")
		assert.Zero(t, pos.Liquidity.Sign())
		assert.Equal(t, amount0, pos.TokensOwed0)
		assert.Equal(t, amount1, pos.TokensOwed1)

		// nothing is transferred until collect
		balance0, _ := f.poolBalances()
		assert.Equal(t, minted0, balance0)
	})

	t.Run("partial burn keeps shared ticks", func(t *testing.T) {
		f := newInitializedFixture(t)
		f.mint(t, lp, -60, 60, big.NewInt(1000))
		f.mint(t, other, -60, 120, big.NewInt(500))

		_, _, err := f.pool.Burn(lp, -60, 60, big.NewInt(1000))
		require.NoError(t, err)

		lower, ok := f.pool.Tick(-60)
		require.True(t, ok)
		assert.Equal(t, big.NewInt(500), lower.LiquidityGross)
		_, ok = f.pool.Tick(60)
		assert.False(t, ok)
		assert.False(t, f.pool.bitmap.IsInitialized(60, 60))
		assert.True(t, f.pool.bitmap.IsInitialized(-60, 60))
		assert.Equal(t, big.NewInt(500), f.pool.Liquidity())
	})
}

func TestCollect(t *testing.T) {
	t.Run("unknown position", func(t *testing.T) {
		f := newInitializedFixture(t)
		_, _, err := f.pool.Collect(lp, lp, -60, 60, big.NewInt(1), big.NewInt(1))
		assert.ErrorIs(t, err, ErrPositionNotFound)

		_, _, err = f.pool.Collect(lp, lp, -60, 60, big.NewInt(-1), big.NewInt(1))
		assert.ErrorIs(t, err, ErrNegativeAmount)
	})

	t.Run("pays at most what is owed", func(t *testing.T) {
		f := newInitializedFixture(t)
		f.mint(t, lp, -60, 60, e18)
		burned0, burned1, err := f.pool.Burn(lp, -60, 60, e18)
		require.NoError(t, err)

		before0 := f.bank.BalanceOf(token0, other)
		amount0, amount1, err := f.pool.Collect(lp, other, -60, 60, big.NewInt(10), funding)
		require.NoError(t, err)
		assert.Equal(t, big.NewInt(10), amount0)
		assert.Equal(t, burned1, amount1)
		assert.Equal(t, new(big.Int).Add(before0, big.NewInt(10)), f.bank.BalanceOf(token0, other))

		pos, _ := f.pool.Position(lp, -60, 60)
		assert.Equal(t, new(big.Int).Sub(burned0, big.NewInt(10)), pos.TokensOwed0)
		assert.Zero(t, pos.TokensOwed1.Sign())

		amount0, amount1, err = f.pool.Collect(lp, other, -60, 60, funding, funding)
		require.NoError(t, err)
		assert.Equal(t, new(big.Int).Sub(burned0, big.NewInt(10)), amount0)
		assert.Zero(t, amount1.Sign())

		// nothing left: a documented clamp, not an error
		amount0, _, err = f.pool.Collect(lp, other, -60, 60, funding, funding)
		require.NoError(t, err)
		assert.Zero(t, amount0.Sign())

		last, ok := f.events.Events()[len(f.events.Events())-1].(events.Collect)
		require.True(t, ok)
		assert.Equal(t, other, last.Recipient)
	})

	t.Run("brings fees up to date for a live position", func(t *testing.T) {
		f := newInitializedFixture(t)
		f.mint(t, lp, -60, 60, e18)
		_, _, err := f.swap(true, big.NewInt(1_000_000_000))
		require.NoError(t, err)

		amount0, amount1, err := f.pool.Collect(lp, lp, -60, 60, funding, funding)
		require.NoError(t, err)
		assert.Positive(t, amount0.Sign())
		assert.Zero(t, amount1.Sign())

		pos, _ := f.pool.Position(lp, -60, 60)
		assert.Equal(t, f.pool.FeeGrowthGlobal0X128(), pos.FeeGrowthInside0LastX128.ToBig())
		assert.Zero(t, pos.TokensOwed0.Sign())
	})
}

func TestTickBitmapWord(t *testing.T) {
	f := newInitializedFixture(t)
	f.mint(t, lp, -60, 60, big.NewInt(1))

	wordPos, bitPos := tickbitmap.Position(tickbitmap.Compress(60, 60))
	word := f.pool.TickBitmapWord(wordPos)
	assert.Equal(t, uint(1), word.Bit(int(bitPos)))
}

func TestSnapshot(t *testing.T) {
	f := newInitializedFixture(t)
	f.mint(t, lp, -60, 60, e18)
	f.mint(t, other, -180, 120, e18)

	view := f.pool.Snapshot()
	assert.Equal(t, poolAddress, view.Address)
	assert.Equal(t, uint64(3000), view.Fee)
	assert.Equal(t, uint64(60), view.TickSpacing)
	assert.Equal(t, int64(0), view.Tick)
	assert.Equal(t, new(big.Int).Mul(e18, big.NewInt(2)), view.Liquidity)

	require.Len(t, view.Ticks, 4)
	indexes := make([]int64, len(view.Ticks))
	for i, ti := range view.Ticks {
		indexes[i] = ti.Index
	}
	assert.Equal(t, []int64{-180, -60, 60, 120}, indexes)

	// the view is a copy
	view.Liquidity.SetInt64(0)
	assert.Equal(t, new(big.Int).Mul(e18, big.NewInt(2)), f.pool.Liquidity())
}
