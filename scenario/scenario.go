// Package scenario describes pool simulations in YAML and replays them against an in-memory
// ledger.
//
// A scenario file names a pool, funds a set of accounts and lists the operations to run in
// order:
//
//	pool:
//	  address: "0x00000000000000000000000000000000000000f0"
//	  token0: "0x00000000000000000000000000000000000000a0"
//	  token1: "0x00000000000000000000000000000000000000b0"
//	  fee: 3000
//	  tickSpacing: 60
//	  tick: 0
//	accounts:
//	  - name: lp
//	    address: "0x0000000000000000000000000000000000000002"
//	    token0: 1e24
//	    token1: 1e24
//	steps:
//	  - op: mint
//	    sender: lp
//	    tickLower: -60
//	    tickUpper: 60
//	    amount: 1e18
//	  - op: advance
//	    seconds: 10
package scenario

import (
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/defistate/clamm-go/protocols/clamm/math/liquiditymath"
)

// Operation names accepted in Step.Op.
const (
	OpAdvance         = "advance"
	OpInitialize      = "initialize"
	OpMint            = "mint"
	OpBurn            = "burn"
	OpCollect         = "collect"
	OpSwap            = "swap"
	OpFlash           = "flash"
	OpObserve         = "observe"
	OpGrow            = "grow"
	OpSetFeeProtocol  = "setFeeProtocol"
	OpCollectProtocol = "collectProtocol"
)

var ErrInvalidScenario = errors.New("scenario: invalid")

// Amount is an integer token or liquidity amount. It accepts plain integers, scientific
// notation such as 1e18, and the keyword max for 2^128-1.
type Amount struct {
	v *big.Int
}

// NewAmount wraps v.
func NewAmount(v *big.Int) Amount {
	return Amount{v: new(big.Int).Set(v)}
}

// IsSet reports whether the amount was given.
func (a Amount) IsSet() bool { return a.v != nil }

// Int returns a copy of the amount, or def when it was not given.
func (a Amount) Int(def *big.Int) *big.Int {
	if a.v == nil {
		if def == nil {
			return nil
		}
		return new(big.Int).Set(def)
	}
	return new(big.Int).Set(a.v)
}

func (a *Amount) UnmarshalYAML(node *yaml.Node) error {
	v, err := parseAmount(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	a.v = v
	return nil
}

func parseAmount(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "max") {
		return new(big.Int).Set(liquiditymath.MaxUint128), nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if !d.IsInteger() {
		return nil, fmt.Errorf("amount %q is not an integer", s)
	}
	return d.BigInt(), nil
}

// Scenario is a complete simulation.
type Scenario struct {
	Name     string    `yaml:"name"`
	ChainID  uint64    `yaml:"chainId"`
	Pool     PoolSpec  `yaml:"pool"`
	Accounts []Account `yaml:"accounts"`
	Steps    []Step    `yaml:"steps"`
}

// PoolSpec holds the pool parameters. When SqrtPriceX96 or Tick is given the pool is initialized
// before the first step.
type PoolSpec struct {
	Address             string `yaml:"address"`
	Token0              string `yaml:"token0"`
	Token1              string `yaml:"token1"`
	Owner               string `yaml:"owner"`
	Fee                 uint32 `yaml:"fee"`
	TickSpacing         int32  `yaml:"tickSpacing"`
	MaxLiquidityPerTick Amount `yaml:"maxLiquidityPerTick"`
	FeeProtocol0        uint8  `yaml:"feeProtocol0"`
	FeeProtocol1        uint8  `yaml:"feeProtocol1"`
	SqrtPriceX96        Amount `yaml:"sqrtPriceX96"`
	Tick                *int32 `yaml:"tick"`
	StartTime           uint32 `yaml:"startTime"`
	// ObservationCardinality grows the oracle buffer right after initialization.
	ObservationCardinality uint16 `yaml:"observationCardinality"`
}

// Account is funded with Token0 and Token1 before the first step. Steps may refer to it by name
// or by address.
type Account struct {
	Name    string `yaml:"name"`
	Address string `yaml:"address"`
	Token0  Amount `yaml:"token0"`
	Token1  Amount `yaml:"token1"`
}

// Step is one operation. Fields that do not apply to Op are ignored.
type Step struct {
	Op        string `yaml:"op"`
	Sender    string `yaml:"sender"`
	Owner     string `yaml:"owner"`
	Recipient string `yaml:"recipient"`

	TickLower int32  `yaml:"tickLower"`
	TickUpper int32  `yaml:"tickUpper"`
	Amount    Amount `yaml:"amount"`
	Amount0   Amount `yaml:"amount0"`
	Amount1   Amount `yaml:"amount1"`

	// swap
	ZeroForOne        bool   `yaml:"zeroForOne"`
	SqrtPriceLimitX96 Amount `yaml:"sqrtPriceLimitX96"`
	LimitTick         *int32 `yaml:"limitTick"`

	// flash: paid on top of amount plus fee
	Extra0 Amount `yaml:"extra0"`
	Extra1 Amount `yaml:"extra1"`

	// initialize
	SqrtPriceX96 Amount `yaml:"sqrtPriceX96"`
	Tick         *int32 `yaml:"tick"`

	Seconds      uint32   `yaml:"seconds"`
	SecondsAgos  []uint32 `yaml:"secondsAgos"`
	Cardinality  uint16   `yaml:"cardinality"`
	FeeProtocol0 uint8    `yaml:"feeProtocol0"`
	FeeProtocol1 uint8    `yaml:"feeProtocol1"`

	// Underpay makes the callback pay one unit less than owed.
	Underpay bool `yaml:"underpay"`
	// ExpectError is the error class the step must fail with: validation, invariant, state,
	// unknown, or any.
	ExpectError string `yaml:"expectError"`
}

// Load reads and validates a scenario file.
func Load(path string) (*Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open scenario: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode parses and validates a scenario. Unknown fields are rejected.
func Decode(r io.Reader) (*Scenario, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var sc Scenario
	if err := dec.Decode(&sc); err != nil {
		return nil, fmt.Errorf("decode scenario: %w", err)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

var validOps = map[string]bool{
	OpAdvance: true, OpInitialize: true, OpMint: true, OpBurn: true, OpCollect: true,
	OpSwap: true, OpFlash: true, OpObserve: true, OpGrow: true, OpSetFeeProtocol: true,
	OpCollectProtocol: true,
}

var validExpectations = map[string]bool{
	"": true, "any": true, "validation": true, "invariant": true, "state": true, "unknown": true,
}

// Validate checks what can be checked without running the scenario.
func (sc *Scenario) Validate() error {
	for _, addr := range []struct{ field, value string }{
		{"pool.address", sc.Pool.Address},
		{"pool.token0", sc.Pool.Token0},
		{"pool.token1", sc.Pool.Token1},
	} {
		if !common.IsHexAddress(addr.value) {
			return fmt.Errorf("%w: %s %q is not an address", ErrInvalidScenario, addr.field, addr.value)
		}
	}
	if sc.Pool.SqrtPriceX96.IsSet() && sc.Pool.Tick != nil {
		return fmt.Errorf("%w: pool sets both sqrtPriceX96 and tick", ErrInvalidScenario)
	}

	names := make(map[string]bool, len(sc.Accounts))
	for i, acc := range sc.Accounts {
		if !common.IsHexAddress(acc.Address) {
			return fmt.Errorf("%w: account %d address %q", ErrInvalidScenario, i, acc.Address)
		}
		if acc.Name == "" {
			continue
		}
		if names[acc.Name] {
			return fmt.Errorf("%w: duplicate account name %q", ErrInvalidScenario, acc.Name)
		}
		names[acc.Name] = true
	}

	for i, step := range sc.Steps {
		if !validOps[step.Op] {
			return fmt.Errorf("%w: step %d has unknown op %q", ErrInvalidScenario, i, step.Op)
		}
		if !validExpectations[step.ExpectError] {
			return fmt.Errorf("%w: step %d has unknown expectError %q", ErrInvalidScenario, i, step.ExpectError)
		}
		if step.SqrtPriceLimitX96.IsSet() && step.LimitTick != nil {
			return fmt.Errorf("%w: step %d sets both sqrtPriceLimitX96 and limitTick", ErrInvalidScenario, i)
		}
	}
	return nil
}
