package pool

import (
	"errors"

	"github.com/defistate/clamm-go/protocols/clamm/math/liquiditymath"
	"github.com/defistate/clamm-go/protocols/clamm/math/tickmath"
	"github.com/defistate/clamm-go/protocols/clamm/oracle"
	"github.com/defistate/clamm-go/protocols/clamm/position"
	"github.com/defistate/clamm-go/protocols/clamm/tick"
	"github.com/defistate/clamm-go/protocols/clamm/tickbitmap"
)

// Parameter validation errors. They are returned before any state is touched.
var (
	ErrInvalidSqrtPrice        = errors.New("pool: sqrt price out of bounds")
	ErrZeroLiquidity           = errors.New("pool: liquidity amount must be positive")
	ErrInvalidTickRange        = errors.New("pool: lower tick must be below upper tick")
	ErrTickOutOfBounds         = tickmath.ErrTickOutOfBounds
	ErrTickMisaligned          = tickbitmap.ErrTickMisaligned
	ErrZeroAmountSpecified     = errors.New("pool: amount specified is zero")
	ErrInvalidPriceLimit       = errors.New("pool: price limit on the wrong side of the current price")
	ErrNegativeAmount          = errors.New("pool: amount must not be negative")
	ErrNilCallback             = errors.New("pool: callback is required")
	ErrUnauthorized            = errors.New("pool: caller is not the owner")
	ErrInvalidFeeProtocol      = errors.New("pool: fee protocol must be 0 or between 4 and 10")
	ErrInvalidLiquidityDelta   = tick.ErrInvalidLiquidityDelta
	ErrInsufficientLiquidity   = position.ErrInsufficientLiquidity
	ErrTickNotInitialized      = errors.New("pool: tick not initialized")
	ErrLiquidityOverflow       = liquiditymath.ErrLiquidityOverflow
	ErrInsufficientPayment     = errors.New("pool: callback did not pay the owed amount")
	ErrInsufficientInputAmount = errors.New("pool: callback did not pay the input amount")
	ErrInsufficientRepayment   = errors.New("pool: flash loan not repaid with fee")
	ErrNoLiquidity             = errors.New("pool: no active liquidity")
)

// State errors.
var (
	ErrNotInitialized         = errors.New("pool: not initialized")
	ErrAlreadyInitialized     = errors.New("pool: already initialized")
	ErrLocked                 = errors.New("pool: locked")
	ErrPositionNotFound       = position.ErrPositionNotFound
	ErrObservationUnavailable = oracle.ErrObservationUnavailable
)

// Class groups errors by what a caller can do about them.
type Class int

const (
	// ClassUnknown is any error the pool did not produce, such as a callback's own failure.
	ClassUnknown Class = iota
	// ClassValidation errors are fixed by calling again with different parameters.
	ClassValidation
	// ClassInvariant errors mean the operation would have broken an accounting rule, usually
	// because a callback under-paid or a position does not hold enough.
	ClassInvariant
	// ClassState errors depend on the pool's lifecycle or retained history.
	ClassState
)

func (c Class) String() string {
	switch c {
	case ClassValidation:
		return "validation"
	case ClassInvariant:
		return "invariant"
	case ClassState:
		return "state"
	default:
		return "unknown"
	}
}

var classes = []struct {
	err   error
	class Class
}{
	{ErrInvalidSqrtPrice, ClassValidation},
	{ErrZeroLiquidity, ClassValidation},
	{ErrInvalidTickRange, ClassValidation},
	{ErrTickOutOfBounds, ClassValidation},
	{ErrTickMisaligned, ClassValidation},
	{ErrZeroAmountSpecified, ClassValidation},
	{ErrInvalidPriceLimit, ClassValidation},
	{ErrNegativeAmount, ClassValidation},
	{ErrNilCallback, ClassValidation},
	{ErrUnauthorized, ClassValidation},
	{ErrInvalidFeeProtocol, ClassValidation},
	{ErrInvalidLiquidityDelta, ClassValidation},

	{ErrInsufficientLiquidity, ClassInvariant},
	{ErrTickNotInitialized, ClassInvariant},
	{ErrLiquidityOverflow, ClassInvariant},
	{ErrInsufficientPayment, ClassInvariant},
	{ErrInsufficientInputAmount, ClassInvariant},
	{ErrInsufficientRepayment, ClassInvariant},
	{ErrNoLiquidity, ClassInvariant},

	{ErrNotInitialized, ClassState},
	{ErrAlreadyInitialized, ClassState},
	{ErrLocked, ClassState},
	{ErrPositionNotFound, ClassState},
	{ErrObservationUnavailable, ClassState},
}

// Classify returns the class of the first pool error found in err's chain.
func Classify(err error) Class {
	if err == nil {
		return ClassUnknown
	}
	for _, c := range classes {
		if errors.Is(err, c.err) {
			return c.class
		}
	}
	return ClassUnknown
}
