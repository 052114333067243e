package scenario

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/defistate/clamm-go/engine"
	"github.com/defistate/clamm-go/protocols/clamm"
	"github.com/defistate/clamm-go/protocols/clamm/events"
	"github.com/defistate/clamm-go/protocols/clamm/ledger"
	"github.com/defistate/clamm-go/protocols/clamm/math/liquiditymath"
	"github.com/defistate/clamm-go/protocols/clamm/math/tickmath"
	"github.com/defistate/clamm-go/protocols/clamm/pool"
)

var (
	ErrExpectationFailed = errors.New("scenario: step did not fail as expected")
	ErrUnknownAccount    = errors.New("scenario: unknown account")
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// StepResult is the outcome of one step. Err is set when the pool rejected the operation.
type StepResult struct {
	Index          int
	Op             string
	BlockTimestamp uint32
	Err            error
	Class          pool.Class

	// Amounts moved by the step, signed from the pool's side for swaps.
	Amount0 *big.Int
	Amount1 *big.Int

	TickCumulatives                    []int64
	SecondsPerLiquidityCumulativeX128s []*big.Int
}

// Options configures a Runner.
type Options struct {
	Logger   Logger
	Registry prometheus.Registerer
	// Events receives pool events in addition to the runner's own recorder. Optional.
	Events events.Sink
	// ChainID overrides the scenario's chain id in produced states when non-zero.
	ChainID uint64
	// OnStep runs after every step. An error stops the run.
	OnStep func(ctx context.Context, res StepResult) error
}

func (o *Options) validate() error {
	if o.Logger == nil {
		return errors.New("logger cannot be nil")
	}
	if o.Registry == nil {
		return errors.New("registry cannot be nil")
	}
	return nil
}

// Runner replays a scenario against a pool backed by an in-memory ledger.
type Runner struct {
	sc       *Scenario
	logger   Logger
	onStep   func(ctx context.Context, res StepResult) error
	chainID  uint64
	accounts map[string]common.Address

	bank     *ledger.Ledger
	clock    *pool.ManualClock
	pool     *pool.Pool
	recorder *events.Recorder

	next  int
	block uint64
}

// NewRunner creates the pool, funds the accounts and, when the scenario gives a starting price,
// initializes the pool.
func NewRunner(sc *Scenario, opts Options) (*Runner, error) {
	if err := opts.validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}

	r := &Runner{
		sc:       sc,
		logger:   opts.Logger,
		onStep:   opts.OnStep,
		chainID:  opts.ChainID,
		accounts: make(map[string]common.Address, len(sc.Accounts)),
		bank:     ledger.New(),
		clock:    pool.NewManualClock(sc.Pool.StartTime),
		recorder: events.NewRecorder(),
	}
	if r.chainID == 0 {
		r.chainID = sc.ChainID
	}
	if r.chainID == 0 {
		r.chainID = 1
	}

	token0 := common.HexToAddress(sc.Pool.Token0)
	token1 := common.HexToAddress(sc.Pool.Token1)
	for _, acc := range sc.Accounts {
		addr := common.HexToAddress(acc.Address)
		if acc.Name != "" {
			r.accounts[acc.Name] = addr
		}
		if err := r.bank.Mint(token0, addr, acc.Token0.Int(new(big.Int))); err != nil {
			return nil, fmt.Errorf("fund %s: %w", acc.Address, err)
		}
		if err := r.bank.Mint(token1, addr, acc.Token1.Int(new(big.Int))); err != nil {
			return nil, fmt.Errorf("fund %s: %w", acc.Address, err)
		}
	}

	owner := common.Address{}
	if sc.Pool.Owner != "" {
		var err error
		if owner, err = r.resolve(sc.Pool.Owner); err != nil {
			return nil, err
		}
	}

	var sink events.Sink = r.recorder
	if opts.Events != nil {
		sink = events.Multi{r.recorder, opts.Events}
	}

	p, err := pool.New(&pool.Config{
		Address:             common.HexToAddress(sc.Pool.Address),
		Token0:              token0,
		Token1:              token1,
		Fee:                 sc.Pool.Fee,
		TickSpacing:         sc.Pool.TickSpacing,
		MaxLiquidityPerTick: sc.Pool.MaxLiquidityPerTick.Int(nil),
		Owner:               owner,
		FeeProtocol0:        sc.Pool.FeeProtocol0,
		FeeProtocol1:        sc.Pool.FeeProtocol1,
		Bank:                r.bank,
		Clock:               r.clock,
		Events:              sink,
		Logger:              opts.Logger,
		Registry:            opts.Registry,
	})
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	r.pool = p

	price, err := sqrtPrice(sc.Pool.SqrtPriceX96, sc.Pool.Tick)
	if err != nil {
		return nil, fmt.Errorf("pool price: %w", err)
	}
	if price != nil {
		if err := p.Initialize(price); err != nil {
			return nil, fmt.Errorf("initialize pool: %w", err)
		}
		if sc.Pool.ObservationCardinality > 1 {
			if err := p.IncreaseObservationCardinalityNext(sc.Pool.ObservationCardinality); err != nil {
				return nil, fmt.Errorf("grow observations: %w", err)
			}
		}
	}
	return r, nil
}

func (r *Runner) Pool() *pool.Pool         { return r.pool }
func (r *Runner) Bank() *ledger.Ledger     { return r.bank }
func (r *Runner) Clock() *pool.ManualClock { return r.clock }

// Events returns every event the pool emitted so far.
func (r *Runner) Events() []events.Event { return r.recorder.Events() }

// Account resolves a scenario account name or hex address.
func (r *Runner) Account(ref string) (common.Address, error) { return r.resolve(ref) }

// Done reports whether every step has run.
func (r *Runner) Done() bool { return r.next >= len(r.sc.Steps) }

// State returns the current pool as a single-pool state. Every call advances the block number.
func (r *Runner) State() *engine.State {
	r.block++
	ts := uint64(r.clock.BlockTimestamp())
	var pools []clamm.Pool
	if r.pool.Initialized() {
		pools = []clamm.Pool{r.pool.Snapshot()}
	}
	return &engine.State{
		ChainID:   r.chainID,
		Timestamp: uint64(time.Now().UnixNano()),
		Schema:    engine.Schema,
		Block: engine.BlockSummary{
			Number:     r.block,
			Timestamp:  ts,
			ReceivedAt: time.Now().UnixNano(),
		},
		Pools: pools,
	}
}

// Run executes the remaining steps in order. Step failures are reported in the results; the run
// stops only on an unmet expectation, an unknown account, a failed OnStep or ctx.
func (r *Runner) Run(ctx context.Context) ([]StepResult, error) {
	results := make([]StepResult, 0, len(r.sc.Steps)-r.next)
	for !r.Done() {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := r.Step()
		results = append(results, res)
		if err != nil {
			return results, err
		}
		if r.onStep != nil {
			if err := r.onStep(ctx, res); err != nil {
				return results, err
			}
		}
	}
	return results, nil
}

// Step executes the next step.
func (r *Runner) Step() (StepResult, error) {
	if r.Done() {
		return StepResult{}, errors.New("scenario: no steps left")
	}
	i := r.next
	r.next++
	step := r.sc.Steps[i]

	res := StepResult{Index: i, Op: step.Op}
	err := r.exec(&step, &res)
	res.BlockTimestamp = r.clock.BlockTimestamp()

	var refErr *refError
	if errors.As(err, &refErr) {
		return res, fmt.Errorf("step %d (%s): %w", i, step.Op, err)
	}
	if err != nil {
		res.Err = err
		res.Class = pool.Classify(err)
	}
	if err := checkExpectation(&step, &res); err != nil {
		return res, fmt.Errorf("step %d (%s): %w", i, step.Op, err)
	}

	if res.Err != nil {
		r.logger.Warn("step failed", "index", i, "op", step.Op, "class", res.Class.String(), "error", res.Err)
	} else {
		r.logger.Debug("step done", "index", i, "op", step.Op, "amount0", res.Amount0, "amount1", res.Amount1)
	}
	return res, nil
}

func checkExpectation(step *Step, res *StepResult) error {
	switch {
	case step.ExpectError == "":
		return nil
	case res.Err == nil:
		return fmt.Errorf("%w: wanted %s error, step succeeded", ErrExpectationFailed, step.ExpectError)
	case step.ExpectError == "any":
		return nil
	case step.ExpectError != res.Class.String():
		return fmt.Errorf("%w: wanted %s error, got %s: %v", ErrExpectationFailed, step.ExpectError, res.Class, res.Err)
	}
	return nil
}

// refError marks a scenario mistake rather than a pool failure.
type refError struct{ err error }

func (e *refError) Error() string { return e.err.Error() }
func (e *refError) Unwrap() error { return e.err }

func (r *Runner) resolve(ref string) (common.Address, error) {
	if addr, ok := r.accounts[ref]; ok {
		return addr, nil
	}
	if common.IsHexAddress(ref) {
		return common.HexToAddress(ref), nil
	}
	return common.Address{}, &refError{fmt.Errorf("%w: %q", ErrUnknownAccount, ref)}
}

// resolveOr resolves ref, falling back to def when ref is empty.
func (r *Runner) resolveOr(ref string, def common.Address) (common.Address, error) {
	if ref == "" {
		return def, nil
	}
	return r.resolve(ref)
}

func (r *Runner) exec(step *Step, res *StepResult) error {
	if step.Op == OpAdvance {
		r.clock.Advance(step.Seconds)
		return nil
	}

	sender, err := r.resolveOr(step.Sender, common.Address{})
	if err != nil {
		return err
	}
	recipient, err := r.resolveOr(step.Recipient, sender)
	if err != nil {
		return err
	}
	owner, err := r.resolveOr(step.Owner, sender)
	if err != nil {
		return err
	}

	switch step.Op {
	case OpInitialize:
		price, err := sqrtPrice(step.SqrtPriceX96, step.Tick)
		if err != nil {
			return err
		}
		if price == nil {
			return pool.ErrInvalidSqrtPrice
		}
		return r.pool.Initialize(price)

	case OpMint:
		res.Amount0, res.Amount1, err = r.pool.Mint(pool.MintParams{
			Sender:    sender,
			Owner:     owner,
			TickLower: step.TickLower,
			TickUpper: step.TickUpper,
			Amount:    step.Amount.Int(new(big.Int)),
			Callback: func(amount0Owed, amount1Owed *big.Int, _ []byte) error {
				return r.pay(sender, amount0Owed, amount1Owed, step.Underpay)
			},
		})
		return err

	case OpBurn:
		res.Amount0, res.Amount1, err = r.pool.Burn(sender, step.TickLower, step.TickUpper, step.Amount.Int(new(big.Int)))
		return err

	case OpCollect:
		res.Amount0, res.Amount1, err = r.pool.Collect(
			sender, recipient, step.TickLower, step.TickUpper,
			step.Amount0.Int(liquiditymath.MaxUint128), step.Amount1.Int(liquiditymath.MaxUint128),
		)
		return err

	case OpSwap:
		limit, err := r.priceLimit(step)
		if err != nil {
			return err
		}
		res.Amount0, res.Amount1, err = r.pool.Swap(pool.SwapParams{
			Sender:            sender,
			Recipient:         recipient,
			ZeroForOne:        step.ZeroForOne,
			AmountSpecified:   step.Amount.Int(new(big.Int)),
			SqrtPriceLimitX96: limit,
			Callback: func(amount0Delta, amount1Delta *big.Int, _ []byte) error {
				return r.pay(sender, positive(amount0Delta), positive(amount1Delta), step.Underpay)
			},
		})
		return err

	case OpFlash:
		amount0 := step.Amount0.Int(new(big.Int))
		amount1 := step.Amount1.Int(new(big.Int))
		err = r.pool.Flash(pool.FlashParams{
			Sender:    sender,
			Recipient: recipient,
			Amount0:   amount0,
			Amount1:   amount1,
			Callback: func(fee0, fee1 *big.Int, _ []byte) error {
				owed0 := new(big.Int).Add(amount0, fee0)
				owed0.Add(owed0, step.Extra0.Int(new(big.Int)))
				owed1 := new(big.Int).Add(amount1, fee1)
				owed1.Add(owed1, step.Extra1.Int(new(big.Int)))
				return r.pay(recipient, owed0, owed1, step.Underpay)
			},
		})
		if err == nil {
			res.Amount0, res.Amount1 = amount0, amount1
		}
		return err

	case OpObserve:
		res.TickCumulatives, res.SecondsPerLiquidityCumulativeX128s, err = r.pool.Observe(step.SecondsAgos)
		return err

	case OpGrow:
		return r.pool.IncreaseObservationCardinalityNext(step.Cardinality)

	case OpSetFeeProtocol:
		return r.pool.SetFeeProtocol(sender, step.FeeProtocol0, step.FeeProtocol1)

	case OpCollectProtocol:
		res.Amount0, res.Amount1, err = r.pool.CollectProtocol(
			sender, recipient, step.Amount0.Int(liquiditymath.MaxUint128), step.Amount1.Int(liquiditymath.MaxUint128),
		)
		return err
	}
	return &refError{fmt.Errorf("%w: unknown op %q", ErrInvalidScenario, step.Op)}
}

var (
	minLimit = new(big.Int).Add(tickmath.MinSqrtRatio, big.NewInt(1))
	maxLimit = new(big.Int).Sub(tickmath.MaxSqrtRatio, big.NewInt(1))
)

func (r *Runner) priceLimit(step *Step) (*big.Int, error) {
	if step.SqrtPriceLimitX96.IsSet() || step.LimitTick != nil {
		return sqrtPrice(step.SqrtPriceLimitX96, step.LimitTick)
	}
	if step.ZeroForOne {
		return new(big.Int).Set(minLimit), nil
	}
	return new(big.Int).Set(maxLimit), nil
}

// sqrtPrice returns the explicit price, the price at tick, or nil when neither is given.
func sqrtPrice(explicit Amount, tick *int32) (*big.Int, error) {
	if explicit.IsSet() {
		return explicit.Int(nil), nil
	}
	if tick == nil {
		return nil, nil
	}
	price := new(big.Int)
	if err := tickmath.GetSqrtRatioAtTick(price, *tick); err != nil {
		return nil, err
	}
	return price, nil
}

// pay moves what a callback owes from payer to the pool.
func (r *Runner) pay(payer common.Address, amount0, amount1 *big.Int, underpay bool) error {
	amount0 = new(big.Int).Set(amount0)
	amount1 = new(big.Int).Set(amount1)
	if underpay {
		if amount0.Sign() > 0 {
			amount0.Sub(amount0, big.NewInt(1))
		} else if amount1.Sign() > 0 {
			amount1.Sub(amount1, big.NewInt(1))
		}
	}

	addr := r.pool.Address()
	if amount0.Sign() > 0 {
		if err := r.bank.Transfer(r.pool.Token0(), payer, addr, amount0); err != nil {
			return err
		}
	}
	if amount1.Sign() > 0 {
		if err := r.bank.Transfer(r.pool.Token1(), payer, addr, amount1); err != nil {
			return err
		}
	}
	return nil
}

func positive(x *big.Int) *big.Int {
	if x.Sign() > 0 {
		return x
	}
	return new(big.Int)
}
