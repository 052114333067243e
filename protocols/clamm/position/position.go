// Package position tracks liquidity positions and the fees owed to them.
package position

import (
	"bytes"
	"errors"
	"math/big"
	"slices"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/defistate/clamm-go/protocols/clamm/math/liquiditymath"
)

var (
	// ErrPositionNotFound is returned for a position that does not exist or holds no liquidity
	// when liquidity is required.
	ErrPositionNotFound = errors.New("position: not found")
	// ErrInsufficientLiquidity is returned when removing more liquidity than the position holds.
	ErrInsufficientLiquidity = errors.New("position: insufficient liquidity")
)

var (
	q128       = new(uint256.Int).Lsh(uint256.NewInt(1), 128)
	maxUint128 = new(big.Int).Set(liquiditymath.MaxUint128)
)

// Key identifies a position: keccak256(owner ‖ int24 tickLower ‖ int24 tickUpper).
func Key(owner common.Address, tickLower, tickUpper int32) common.Hash {
	buf := make([]byte, 0, common.AddressLength+6)
	buf = append(buf, owner.Bytes()...)
	buf = appendInt24(buf, tickLower)
	buf = appendInt24(buf, tickUpper)
	return crypto.Keccak256Hash(buf)
}

func appendInt24(buf []byte, v int32) []byte {
	u := uint32(v)
	return append(buf, byte(u>>16), byte(u>>8), byte(u))
}

// Info is the state of a single position.
type Info struct {
	Owner     common.Address
	TickLower int32
	TickUpper int32

	// Liquidity is the amount of liquidity owned by this position.
	Liquidity *big.Int
	// Fee growth per unit of liquidity inside the range as of the last update.
	FeeGrowthInside0LastX128 uint256.Int
	FeeGrowthInside1LastX128 uint256.Int
	// Fees and withdrawn principal that can be collected.
	TokensOwed0 *big.Int
	TokensOwed1 *big.Int
}

// NewInfo returns an empty position for the given key parts.
func NewInfo(owner common.Address, tickLower, tickUpper int32) Info {
	return Info{
		Owner:       owner,
		TickLower:   tickLower,
		TickUpper:   tickUpper,
		Liquidity:   new(big.Int),
		TokensOwed0: new(big.Int),
		TokensOwed1: new(big.Int),
	}
}

// Key returns the ledger key of the position.
func (info Info) Key() common.Hash {
	return Key(info.Owner, info.TickLower, info.TickUpper)
}

// Clone returns a deep copy of the position.
func (info Info) Clone() Info {
	c := info
	c.Liquidity = cloneOrZero(info.Liquidity)
	c.TokensOwed0 = cloneOrZero(info.TokensOwed0)
	c.TokensOwed1 = cloneOrZero(info.TokensOwed1)
	return c
}

func cloneOrZero(x *big.Int) *big.Int {
	if x == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(x)
}

// Update credits the fees accumulated since the last update and applies liquidityDelta.
// A zero delta only checkpoints fees and requires the position to hold liquidity.
func (info *Info) Update(liquidityDelta *big.Int, feeGrowthInside0X128, feeGrowthInside1X128 *uint256.Int) error {
	if info.Liquidity == nil {
		info.Liquidity = new(big.Int)
	}

	liquidityNext := new(big.Int)
	if liquidityDelta.Sign() == 0 {
		if info.Liquidity.Sign() == 0 {
			return ErrPositionNotFound
		}
		liquidityNext.Set(info.Liquidity)
	} else if err := liquiditymath.AddDelta(liquidityNext, info.Liquidity, liquidityDelta); err != nil {
		if errors.Is(err, liquiditymath.ErrLiquidityUnderflow) {
			return ErrInsufficientLiquidity
		}
		return err
	}

	owed0 := owedSince(feeGrowthInside0X128, &info.FeeGrowthInside0LastX128, info.Liquidity)
	owed1 := owedSince(feeGrowthInside1X128, &info.FeeGrowthInside1LastX128, info.Liquidity)

	if liquidityDelta.Sign() != 0 {
		info.Liquidity = liquidityNext
	}
	info.FeeGrowthInside0LastX128 = *feeGrowthInside0X128
	info.FeeGrowthInside1LastX128 = *feeGrowthInside1X128
	info.TokensOwed0 = addOwed(info.TokensOwed0, owed0)
	info.TokensOwed1 = addOwed(info.TokensOwed1, owed1)
	return nil
}

// Credit adds amounts to the tokens owed, such as principal released by a burn.
func (info *Info) Credit(amount0, amount1 *big.Int) {
	info.TokensOwed0 = addOwed(info.TokensOwed0, amount0)
	info.TokensOwed1 = addOwed(info.TokensOwed1, amount1)
}

// owedSince returns (inside - last) * liquidity / 2^128 truncated to 128 bits.
func owedSince(inside, last *uint256.Int, liquidity *big.Int) *big.Int {
	var delta, owed uint256.Int
	delta.Sub(inside, last)
	l, overflow := uint256.FromBig(liquidity)
	if overflow {
		return new(big.Int)
	}
	owed.MulDivOverflow(&delta, l, q128)
	b := owed.ToBig()
	return b.And(b, maxUint128)
}

// addOwed adds with uint128 wraparound; owed amounts are expected to be collected
// long before they could overflow.
func addOwed(owed, delta *big.Int) *big.Int {
	sum := cloneOrZero(owed)
	sum.Add(sum, delta)
	return sum.And(sum, maxUint128)
}

// Ledger is the set of positions of a pool, keyed by Key.
type Ledger struct {
	positions map[common.Hash]*Info
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{positions: make(map[common.Hash]*Info)}
}

// Get returns a copy of the position for owner and range, and whether it exists.
func (l *Ledger) Get(owner common.Address, tickLower, tickUpper int32) (Info, bool) {
	info, ok := l.positions[Key(owner, tickLower, tickUpper)]
	if !ok {
		return NewInfo(owner, tickLower, tickUpper), false
	}
	return info.Clone(), true
}

// Lookup returns a copy of the position stored under key.
func (l *Ledger) Lookup(key common.Hash) (Info, bool) {
	info, ok := l.positions[key]
	if !ok {
		return Info{}, false
	}
	return info.Clone(), true
}

// Set stores the position under its key.
func (l *Ledger) Set(info Info) {
	c := info.Clone()
	l.positions[c.Key()] = &c
}

// Len returns the number of positions.
func (l *Ledger) Len() int {
	return len(l.positions)
}

// Collect pays out up to the requested amounts from what the position is owed and returns the
// amounts paid. It only fails for an unknown position.
func (l *Ledger) Collect(key common.Hash, amount0Requested, amount1Requested *big.Int) (amount0, amount1 *big.Int, err error) {
	info, ok := l.positions[key]
	if !ok {
		return nil, nil, ErrPositionNotFound
	}

	amount0 = minBig(amount0Requested, info.TokensOwed0)
	amount1 = minBig(amount1Requested, info.TokensOwed1)

	info.TokensOwed0 = new(big.Int).Sub(info.TokensOwed0, amount0)
	info.TokensOwed1 = new(big.Int).Sub(info.TokensOwed1, amount1)
	return amount0, amount1, nil
}

func minBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) < 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

// Range calls fn for every position ordered by key until fn returns false.
func (l *Ledger) Range(fn func(key common.Hash, info Info) bool) {
	keys := make([]common.Hash, 0, len(l.positions))
	for k := range l.positions {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b common.Hash) int { return bytes.Compare(a[:], b[:]) })
	for _, k := range keys {
		if !fn(k, l.positions[k].Clone()) {
			return
		}
	}
}
