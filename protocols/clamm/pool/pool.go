// Package pool implements a concentrated-liquidity pool: a single token pair and fee tier whose
// liquidity is supplied over tick ranges.
//
// Every mutating operation is atomic. Changes are staged while callbacks run and balances are
// checked, then committed in one step; token movements are made through a Bank that is reverted
// to a snapshot when an operation fails. A callback that calls back into a mutating operation of
// the same pool gets ErrLocked.
package pool

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/defistate/clamm-go/protocols/clamm/events"
	"github.com/defistate/clamm-go/protocols/clamm/math/swapmath"
	"github.com/defistate/clamm-go/protocols/clamm/math/tickmath"
	"github.com/defistate/clamm-go/protocols/clamm/oracle"
	"github.com/defistate/clamm-go/protocols/clamm/position"
	"github.com/defistate/clamm-go/protocols/clamm/tick"
	"github.com/defistate/clamm-go/protocols/clamm/tickbitmap"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Bank holds token balances. The pool moves tokens only through Transfer and verifies payments
// by reading its own balance. Snapshots must nest.
type Bank interface {
	BalanceOf(token, account common.Address) *big.Int
	Transfer(token, from, to common.Address, amount *big.Int) error
	Snapshot() int
	RevertToSnapshot(id int) error
	DiscardSnapshot(id int) error
}

// MintCallback must pay amount0Owed of token0 and amount1Owed of token1 to the pool.
type MintCallback func(amount0Owed, amount1Owed *big.Int, data []byte) error

// SwapCallback must pay the positive delta to the pool. Deltas are signed from the pool's side:
// positive amounts are owed to the pool, negative amounts were already sent to the recipient.
type SwapCallback func(amount0Delta, amount1Delta *big.Int, data []byte) error

// FlashCallback must return the borrowed amounts plus fee0 and fee1 to the pool.
type FlashCallback func(fee0, fee1 *big.Int, data []byte) error

// Config holds the immutable parameters of a pool and its collaborators.
type Config struct {
	Address     common.Address
	Token0      common.Address // must sort below Token1
	Token1      common.Address
	Fee         uint32 // in hundredths of a bip
	TickSpacing int32
	// MaxLiquidityPerTick caps the gross liquidity of a tick. Nil derives it from TickSpacing.
	MaxLiquidityPerTick *big.Int

	// Owner may set and collect the protocol fee.
	Owner common.Address
	// FeeProtocol0 and FeeProtocol1 are applied at initialization; see SetFeeProtocol.
	FeeProtocol0 uint8
	FeeProtocol1 uint8

	Bank     Bank
	Clock    Clock
	Events   events.Sink // optional
	Logger   Logger
	Registry prometheus.Registerer
}

func (c *Config) validate() error {
	if bytes.Compare(c.Token0.Bytes(), c.Token1.Bytes()) >= 0 {
		return errors.New("config: Token0 must sort below Token1")
	}
	if c.Fee >= swapmath.FeeDenominator {
		return fmt.Errorf("config: Fee %d must be below %d", c.Fee, swapmath.FeeDenominator)
	}
	if c.TickSpacing <= 0 || c.TickSpacing >= 16384 {
		return fmt.Errorf("config: TickSpacing %d out of range", c.TickSpacing)
	}
	if c.MaxLiquidityPerTick != nil && c.MaxLiquidityPerTick.Sign() <= 0 {
		return errors.New("config: MaxLiquidityPerTick must be positive")
	}
	if !validFeeProtocol(c.FeeProtocol0) || !validFeeProtocol(c.FeeProtocol1) {
		return ErrInvalidFeeProtocol
	}
	if c.Bank == nil {
		return errors.New("config: Bank cannot be nil")
	}
	if c.Clock == nil {
		return errors.New("config: Clock cannot be nil")
	}
	if c.Logger == nil {
		return errors.New("config: Logger cannot be nil")
	}
	if c.Registry == nil {
		return errors.New("config: Registry cannot be nil")
	}
	return nil
}

func validFeeProtocol(fp uint8) bool {
	return fp == 0 || (fp >= 4 && fp <= 10)
}

// Slot0 is the frequently accessed part of the pool state.
type Slot0 struct {
	SqrtPriceX96 *big.Int
	Tick         int32
	// Most recently written observation.
	ObservationIndex uint16
	// Number of observations in use.
	ObservationCardinality uint16
	// Cardinality the buffer grows to on the next write at the end of the buffer.
	ObservationCardinalityNext uint16
	// FeeProtocol packs the token0 denominator in the low 4 bits and token1 in the high 4 bits.
	FeeProtocol uint8
}

func (s Slot0) clone() Slot0 {
	c := s
	if s.SqrtPriceX96 != nil {
		c.SqrtPriceX96 = new(big.Int).Set(s.SqrtPriceX96)
	}
	return c
}

// Pool is a single concentrated-liquidity pool.
type Pool struct {
	address             common.Address
	label               string
	token0, token1      common.Address
	fee                 uint32
	tickSpacing         int32
	maxLiquidityPerTick *big.Int
	owner               common.Address
	initFeeProtocol     uint8

	bank    Bank
	clock   Clock
	sink    events.Sink
	logger  Logger
	metrics *Metrics

	// op is held for the whole of a mutating operation, callbacks included.
	op sync.Mutex
	// mu guards the state below. Writers hold it only while committing.
	mu sync.RWMutex

	initialized          bool
	slot0                Slot0
	feeGrowthGlobal0X128 uint256.Int
	feeGrowthGlobal1X128 uint256.Int
	protocolFees0        *big.Int
	protocolFees1        *big.Int
	liquidity            *big.Int
	ticks                *tick.Registry
	bitmap               *tickbitmap.Bitmap
	positions            *position.Ledger
	observations         *oracle.Oracle
	seq                  uint64
}

// New creates an uninitialized pool.
func New(cfg *Config) (*Pool, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	metrics, err := NewMetrics(cfg.Registry)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	maxLiquidity := cfg.MaxLiquidityPerTick
	if maxLiquidity == nil {
		maxLiquidity = tick.TickSpacingToMaxLiquidityPerTick(cfg.TickSpacing)
	}

	sink := cfg.Events
	if sink == nil {
		sink = events.Discard
	}

	return &Pool{
		address:             cfg.Address,
		label:               cfg.Address.Hex(),
		token0:              cfg.Token0,
		token1:              cfg.Token1,
		fee:                 cfg.Fee,
		tickSpacing:         cfg.TickSpacing,
		maxLiquidityPerTick: new(big.Int).Set(maxLiquidity),
		owner:               cfg.Owner,
		initFeeProtocol:     cfg.FeeProtocol0 + cfg.FeeProtocol1<<4,
		bank:                cfg.Bank,
		clock:               cfg.Clock,
		sink:                sink,
		logger:              cfg.Logger,
		metrics:             metrics,
		slot0:               Slot0{SqrtPriceX96: new(big.Int)},
		protocolFees0:       new(big.Int),
		protocolFees1:       new(big.Int),
		liquidity:           new(big.Int),
		ticks:               tick.NewRegistry(),
		bitmap:              tickbitmap.New(),
		positions:           position.NewLedger(),
		observations:        oracle.New(),
	}, nil
}

func (p *Pool) lock() error {
	if !p.op.TryLock() {
		return ErrLocked
	}
	return nil
}

func (p *Pool) unlock() {
	p.op.Unlock()
}

// commit applies staged changes while holding the state lock.
func (p *Pool) commit(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn()
}

// withBankSnapshot runs fn and reverts every bank change it made if it fails.
func (p *Pool) withBankSnapshot(fn func() error) error {
	id := p.bank.Snapshot()
	if err := fn(); err != nil {
		if rerr := p.bank.RevertToSnapshot(id); rerr != nil {
			p.logger.Error("failed to revert bank snapshot", "pool", p.label, "snapshot", id, "error", rerr)
			return errors.Join(err, rerr)
		}
		return err
	}
	return p.bank.DiscardSnapshot(id)
}

// header allocates the next event sequence number. Call only from a commit.
func (p *Pool) header(blockTimestamp uint32) events.Header {
	p.seq++
	return events.Header{Pool: p.address, Seq: p.seq, BlockTimestamp: blockTimestamp}
}

func (p *Pool) emit(e events.Event) {
	if e != nil {
		p.sink.Emit(e)
	}
}

func (p *Pool) checkInitialized() error {
	if !p.initialized {
		return ErrNotInitialized
	}
	return nil
}

func (p *Pool) checkTicks(tickLower, tickUpper int32) error {
	if tickLower >= tickUpper {
		return fmt.Errorf("%w: [%d, %d)", ErrInvalidTickRange, tickLower, tickUpper)
	}
	if tickLower < tickmath.MinTick || tickUpper > tickmath.MaxTick {
		return fmt.Errorf("%w: [%d, %d)", ErrTickOutOfBounds, tickLower, tickUpper)
	}
	if tickLower%p.tickSpacing != 0 || tickUpper%p.tickSpacing != 0 {
		return fmt.Errorf("%w: [%d, %d) with spacing %d", ErrTickMisaligned, tickLower, tickUpper, p.tickSpacing)
	}
	return nil
}

func (p *Pool) balance0() *big.Int {
	return p.bank.BalanceOf(p.token0, p.address)
}

func (p *Pool) balance1() *big.Int {
	return p.bank.BalanceOf(p.token1, p.address)
}

// Initialize sets the starting price and writes the first oracle observation.
func (p *Pool) Initialize(sqrtPriceX96 *big.Int) (err error) {
	start := time.Now()
	defer func() { p.metrics.observe(p.label, "initialize", start, err) }()

	if err = p.lock(); err != nil {
		return err
	}
	defer p.unlock()

	if p.initialized {
		return ErrAlreadyInitialized
	}
	if sqrtPriceX96 == nil {
		return ErrInvalidSqrtPrice
	}
	currentTick, err := tickmath.GetTickAtSqrtRatio(sqrtPriceX96)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSqrtPrice, err)
	}

	blockTimestamp := p.clock.BlockTimestamp()
	var ev events.Event
	p.commit(func() {
		cardinality, cardinalityNext := p.observations.Initialize(blockTimestamp)
		p.slot0 = Slot0{
			SqrtPriceX96:               new(big.Int).Set(sqrtPriceX96),
			Tick:                       currentTick,
			ObservationIndex:           0,
			ObservationCardinality:     cardinality,
			ObservationCardinalityNext: cardinalityNext,
			FeeProtocol:                p.initFeeProtocol,
		}
		p.initialized = true
		ev = events.Initialize{
			Header:       p.header(blockTimestamp),
			SqrtPriceX96: new(big.Int).Set(sqrtPriceX96),
			Tick:         currentTick,
		}
	})
	p.metrics.setState(p.label, currentTick, p.liquidity)
	p.logger.Info("pool initialized", "pool", p.label, "sqrtPriceX96", sqrtPriceX96, "tick", currentTick)
	p.emit(ev)
	return nil
}
