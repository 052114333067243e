package pool

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/defistate/clamm-go/protocols/clamm/events"
	"github.com/defistate/clamm-go/protocols/clamm/position"
)

// Collect transfers up to the requested amounts of what the owner's position is owed to
// recipient. A position that still holds liquidity has its fees brought up to date first.
// Requests larger than what is owed are clamped.
func (p *Pool) Collect(
	owner, recipient common.Address,
	tickLower, tickUpper int32,
	amount0Requested, amount1Requested *big.Int,
) (amount0, amount1 *big.Int, err error) {
	start := time.Now()
	defer func() { p.metrics.observe(p.label, "collect", start, err) }()

	if err = p.lock(); err != nil {
		return nil, nil, err
	}
	defer p.unlock()

	if err = p.checkInitialized(); err != nil {
		return nil, nil, err
	}
	if err = checkNonNegative(amount0Requested, amount1Requested); err != nil {
		return nil, nil, err
	}

	key := position.Key(owner, tickLower, tickUpper)
	before, ok := p.positions.Lookup(key)
	if !ok {
		return nil, nil, ErrPositionNotFound
	}

	blockTimestamp := p.clock.BlockTimestamp()
	var poke *positionChange
	if before.Liquidity.Sign() > 0 {
		if poke, err = p.modifyPosition(owner, tickLower, tickUpper, new(big.Int), blockTimestamp); err != nil {
			return nil, nil, err
		}
	}

	var ev events.Event
	err = p.withBankSnapshot(func() (err error) {
		// transfers run inside the commit: they call no user code
		p.commit(func() {
			if poke != nil {
				p.apply(poke)
			}
			defer func() {
				if err != nil {
					p.positions.Set(before)
				}
			}()

			if amount0, amount1, err = p.positions.Collect(key, amount0Requested, amount1Requested); err != nil {
				return
			}
			if err = p.pay(p.token0, recipient, amount0); err != nil {
				return
			}
			if err = p.pay(p.token1, recipient, amount1); err != nil {
				return
			}
			ev = events.Collect{
				Header:    p.header(blockTimestamp),
				Owner:     owner,
				Recipient: recipient,
				TickLower: tickLower,
				TickUpper: tickUpper,
				Amount0:   new(big.Int).Set(amount0),
				Amount1:   new(big.Int).Set(amount1),
			}
		})
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	p.logger.Debug("collected", "pool", p.label, "owner", owner, "recipient", recipient,
		"amount0", amount0, "amount1", amount1)
	p.emit(ev)
	return amount0, amount1, nil
}

// pay sends amount of token from the pool to recipient.
func (p *Pool) pay(token, recipient common.Address, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	if err := p.bank.Transfer(token, p.address, recipient, amount); err != nil {
		return fmt.Errorf("transfer %s to %s: %w", amount, recipient.Hex(), err)
	}
	return nil
}

func checkNonNegative(amounts ...*big.Int) error {
	for _, a := range amounts {
		if a == nil || a.Sign() < 0 {
			return ErrNegativeAmount
		}
	}
	return nil
}

// SetFeeProtocol sets the share of swap and flash fees kept by the protocol: 1/feeProtocol of
// each fee, or nothing when feeProtocol is 0. Only the owner may call it.
func (p *Pool) SetFeeProtocol(caller common.Address, feeProtocol0, feeProtocol1 uint8) (err error) {
	start := time.Now()
	defer func() { p.metrics.observe(p.label, "setFeeProtocol", start, err) }()

	if err = p.lock(); err != nil {
		return err
	}
	defer p.unlock()

	if err = p.checkInitialized(); err != nil {
		return err
	}
	if caller != p.owner {
		return ErrUnauthorized
	}
	if !validFeeProtocol(feeProtocol0) || !validFeeProtocol(feeProtocol1) {
		return fmt.Errorf("%w: %d/%d", ErrInvalidFeeProtocol, feeProtocol0, feeProtocol1)
	}

	blockTimestamp := p.clock.BlockTimestamp()
	var ev events.Event
	p.commit(func() {
		old := p.slot0.FeeProtocol
		p.slot0.FeeProtocol = feeProtocol0 + feeProtocol1<<4
		ev = events.SetFeeProtocol{
			Header:          p.header(blockTimestamp),
			FeeProtocol0Old: old % 16,
			FeeProtocol1Old: old >> 4,
			FeeProtocol0New: feeProtocol0,
			FeeProtocol1New: feeProtocol1,
		}
	})
	p.logger.Info("fee protocol set", "pool", p.label, "feeProtocol0", feeProtocol0, "feeProtocol1", feeProtocol1)
	p.emit(ev)
	return nil
}

// CollectProtocol transfers up to the requested amounts of accrued protocol fees to recipient.
// Only the owner may call it.
func (p *Pool) CollectProtocol(
	caller, recipient common.Address,
	amount0Requested, amount1Requested *big.Int,
) (amount0, amount1 *big.Int, err error) {
	start := time.Now()
	defer func() { p.metrics.observe(p.label, "collectProtocol", start, err) }()

	if err = p.lock(); err != nil {
		return nil, nil, err
	}
	defer p.unlock()

	if err = p.checkInitialized(); err != nil {
		return nil, nil, err
	}
	if caller != p.owner {
		return nil, nil, ErrUnauthorized
	}
	if err = checkNonNegative(amount0Requested, amount1Requested); err != nil {
		return nil, nil, err
	}

	amount0 = minBig(amount0Requested, p.protocolFees0)
	amount1 = minBig(amount1Requested, p.protocolFees1)

	blockTimestamp := p.clock.BlockTimestamp()
	var ev events.Event
	err = p.withBankSnapshot(func() error {
		if err := p.pay(p.token0, recipient, amount0); err != nil {
			return err
		}
		if err := p.pay(p.token1, recipient, amount1); err != nil {
			return err
		}
		p.commit(func() {
			p.protocolFees0 = new(big.Int).Sub(p.protocolFees0, amount0)
			p.protocolFees1 = new(big.Int).Sub(p.protocolFees1, amount1)
			ev = events.CollectProtocol{
				Header:    p.header(blockTimestamp),
				Sender:    caller,
				Recipient: recipient,
				Amount0:   new(big.Int).Set(amount0),
				Amount1:   new(big.Int).Set(amount1),
			}
		})
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	p.logger.Info("protocol fees collected", "pool", p.label, "recipient", recipient, "amount0", amount0, "amount1", amount1)
	p.emit(ev)
	return amount0, amount1, nil
}

func minBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) < 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}
