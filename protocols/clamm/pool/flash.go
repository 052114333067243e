package pool

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/defistate/clamm-go/protocols/clamm/events"
	"github.com/defistate/clamm-go/protocols/clamm/math/fullmath"
	"github.com/defistate/clamm-go/protocols/clamm/math/swapmath"
)

var feeDenominator = big.NewInt(swapmath.FeeDenominator)

// FlashParams describes a flash loan of Amount0 and Amount1 to Recipient.
type FlashParams struct {
	Sender    common.Address
	Recipient common.Address
	Amount0   *big.Int
	Amount1   *big.Int
	Callback  FlashCallback
	Data      []byte
}

// Flash lends tokens for the duration of the callback. The callback must return each amount
// plus a fee of amount * fee / 1e6 rounded up. Everything paid above the borrowed amounts is
// distributed to in-range liquidity as fees, less the protocol's share.
func (p *Pool) Flash(params FlashParams) (err error) {
	start := time.Now()
	defer func() { p.metrics.observe(p.label, "flash", start, err) }()

	if err = p.lock(); err != nil {
		return err
	}
	defer p.unlock()

	if err = p.checkInitialized(); err != nil {
		return err
	}
	if err = checkNonNegative(params.Amount0, params.Amount1); err != nil {
		return err
	}
	if params.Callback == nil {
		return ErrNilCallback
	}
	if p.liquidity.Sign() <= 0 {
		return ErrNoLiquidity
	}

	fee := big.NewInt(int64(p.fee))
	fee0, fee1 := new(big.Int), new(big.Int)
	if err = fullmath.MulDivRoundingUp(fee0, params.Amount0, fee, feeDenominator); err != nil {
		return err
	}
	if err = fullmath.MulDivRoundingUp(fee1, params.Amount1, fee, feeDenominator); err != nil {
		return err
	}

	blockTimestamp := p.clock.BlockTimestamp()
	var ev events.Event
	err = p.withBankSnapshot(func() error {
		balance0Before := p.balance0()
		balance1Before := p.balance1()

		if err := p.pay(p.token0, params.Recipient, params.Amount0); err != nil {
			return err
		}
		if err := p.pay(p.token1, params.Recipient, params.Amount1); err != nil {
			return err
		}

		if err := params.Callback(new(big.Int).Set(fee0), new(big.Int).Set(fee1), params.Data); err != nil {
			return fmt.Errorf("flash callback: %w", err)
		}

		balance0After := p.balance0()
		balance1After := p.balance1()
		if new(big.Int).Add(balance0Before, fee0).Cmp(balance0After) > 0 {
			return fmt.Errorf("%w: token0 fee %s", ErrInsufficientRepayment, fee0)
		}
		if new(big.Int).Add(balance1Before, fee1).Cmp(balance1After) > 0 {
			return fmt.Errorf("%w: token1 fee %s", ErrInsufficientRepayment, fee1)
		}

		// the callback may pay more than the fee; the whole surplus counts
		paid0 := new(big.Int).Sub(balance0After, balance0Before)
		paid1 := new(big.Int).Sub(balance1After, balance1Before)

		growth0, protocol0, err := p.splitFee(paid0, p.slot0.FeeProtocol%16)
		if err != nil {
			return err
		}
		growth1, protocol1, err := p.splitFee(paid1, p.slot0.FeeProtocol>>4)
		if err != nil {
			return err
		}

		p.commit(func() {
			p.feeGrowthGlobal0X128.Add(&p.feeGrowthGlobal0X128, &growth0)
			p.feeGrowthGlobal1X128.Add(&p.feeGrowthGlobal1X128, &growth1)
			if protocol0.Sign() > 0 {
				p.protocolFees0 = new(big.Int).Add(p.protocolFees0, protocol0)
			}
			if protocol1.Sign() > 0 {
				p.protocolFees1 = new(big.Int).Add(p.protocolFees1, protocol1)
			}
			ev = events.Flash{
				Header:    p.header(blockTimestamp),
				Sender:    params.Sender,
				Recipient: params.Recipient,
				Amount0:   new(big.Int).Set(params.Amount0),
				Amount1:   new(big.Int).Set(params.Amount1),
				Paid0:     paid0,
				Paid1:     paid1,
			}
		})
		return nil
	})
	if err != nil {
		return err
	}

	p.logger.Debug("flash", "pool", p.label, "recipient", params.Recipient, "amount0", params.Amount0,
		"amount1", params.Amount1, "fee0", fee0, "fee1", fee1)
	p.emit(ev)
	return nil
}

// splitFee takes the protocol share out of paid and returns the fee growth per unit of
// liquidity the remainder adds.
func (p *Pool) splitFee(paid *big.Int, feeProtocol uint8) (growth uint256.Int, protocolFee *big.Int, err error) {
	protocolFee = new(big.Int)
	if paid.Sign() == 0 {
		return growth, protocolFee, nil
	}
	if feeProtocol > 0 {
		protocolFee.Quo(paid, big.NewInt(int64(feeProtocol)))
	}

	g := new(big.Int)
	if err = fullmath.MulDiv(g, new(big.Int).Sub(paid, protocolFee), q128, p.liquidity); err != nil {
		return growth, nil, err
	}
	if growth.SetFromBig(g) {
		return growth, nil, fullmath.ErrMulDivOverflow
	}
	return growth, protocolFee, nil
}
