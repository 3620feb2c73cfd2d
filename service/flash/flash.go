package flash

import (
	"context"
	"fmt"

	"pledge/core"
	"pledge/internal/atomic"
	"pledge/pkg/id"
	"pledge/pkg/number"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fox-one/pkg/logger"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type pool struct {
	address common.Address
	exec    *atomic.Executor
	bank    core.Bank
	feeBps  uint64
	active  bool
}

// New new flash pool, liquidity is the pool's own balance in bank
func New(exec *atomic.Executor, bank core.Bank, feeBps uint64) core.FlashService {
	return &pool{
		address: id.Address("flash"),
		exec:    exec,
		bank:    bank,
		feeBps:  feeBps,
	}
}

func (p *pool) Address() common.Address {
	return p.address
}

func (p *pool) FlashFee(amount decimal.Decimal) decimal.Decimal {
	return number.Bps(amount, p.feeBps)
}

func (p *pool) MaxFlashLoan(ctx context.Context, currency common.Address) decimal.Decimal {
	return p.bank.BalanceOf(ctx, currency, p.address)
}

func (p *pool) FlashLoan(ctx context.Context, receiver core.FlashBorrower, currency common.Address, amount decimal.Decimal, data []byte) error {
	if !amount.IsPositive() {
		return core.ErrInvalidAmount
	}

	log := logger.FromContext(ctx).WithFields(logrus.Fields{
		"receiver": receiver.Address().Hex(),
		"currency": currency.Hex(),
		"amount":   amount,
	})

	return p.exec.Run(ctx, func(ctx context.Context) error {
		if p.active {
			return core.ErrFlashLoanActive
		}

		p.active = true
		defer func() { p.active = false }()

		before := p.bank.BalanceOf(ctx, currency, p.address)
		if before.LessThan(amount) {
			return fmt.Errorf("%w: pool has %s", core.ErrInsufficientLiquidity, before)
		}

		fee := p.FlashFee(amount)
		if err := p.bank.Transfer(ctx, currency, p.address, receiver.Address(), amount); err != nil {
			return err
		}

		if err := receiver.OnFlashLoan(ctx, p.address, currency, amount, fee, data); err != nil {
			log.WithError(err).Infoln("flash: callback failed")
			return err
		}

		if err := p.bank.Transfer(ctx, currency, receiver.Address(), p.address, amount.Add(fee)); err != nil {
			return fmt.Errorf("%w: %v", core.ErrFlashLoanNotRepaid, err)
		}

		if after := p.bank.BalanceOf(ctx, currency, p.address); !after.Equal(before.Add(fee)) {
			return fmt.Errorf("%w: pool balance %s, expected %s", core.ErrFlashLoanNotRepaid, after, before.Add(fee))
		}

		log.WithField("fee", fee).Debugln("flash: repaid")
		return nil
	})
}
