package rollover

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

// operation the rollover waiting for its flash loan callback
type operation struct {
	caller common.Address
	req    core.RolloverRequest
	old    *core.Loan
	result *core.RolloverResult
}

type rollover struct {
	address     common.Address
	exec        *atomic.Executor
	assets      core.AssetService
	ledger      core.LedgerService
	repayments  core.RepaymentService
	origination core.OriginationService
	flash       core.FlashService
	fees        core.FeeService
	vaults      core.VaultService
	events      core.EventPublisher

	pending *operation
}

// New new rollover service, vaults may be nil when collateral migration is
// not supported, events may be nil
func New(
	exec *atomic.Executor,
	assets core.AssetService,
	ledger core.LedgerService,
	repayments core.RepaymentService,
	origination core.OriginationService,
	flash core.FlashService,
	fees core.FeeService,
	vaults core.VaultService,
	events core.EventPublisher,
) core.RolloverService {
	return &rollover{
		address:     id.Address("rollover"),
		exec:        exec,
		assets:      assets,
		ledger:      ledger,
		repayments:  repayments,
		origination: origination,
		flash:       flash,
		fees:        fees,
		vaults:      vaults,
		events:      events,
	}
}

func (s *rollover) Address() common.Address {
	return s.address
}

// quote the flash amount and how the new principal settles against it
func (s *rollover) quote(ctx context.Context, loanID uint64, newPrincipal decimal.Decimal) (*core.RolloverResult, decimal.Decimal, error) {
	payoff, err := s.repayments.PayoffAmount(ctx, loanID)
	if err != nil {
		return nil, decimal.Zero, err
	}

	fee := s.flash.FlashFee(payoff)
	due := payoff.Add(fee)
	willReceive := newPrincipal.Sub(number.Bps(newPrincipal, s.fees.OriginationFee(ctx)))

	result := &core.RolloverResult{
		NeedFromBorrower:  decimal.Zero,
		LeftoverPrincipal: decimal.Zero,
		FlashFee:          fee,
	}

	if due.GreaterThan(willReceive) {
		result.NeedFromBorrower = due.Sub(willReceive)
	} else {
		result.LeftoverPrincipal = willReceive.Sub(due)
	}

	return result, payoff, nil
}

func (s *rollover) Quote(ctx context.Context, loanID uint64, newPrincipal decimal.Decimal) (*core.RolloverResult, error) {
	result, _, err := s.quote(ctx, loanID, newPrincipal)
	return result, err
}

func (s *rollover) validate(ctx context.Context, caller common.Address, req core.RolloverRequest) (*core.Loan, error) {
	old, err := s.ledger.Loan(ctx, req.LoanID)
	if err != nil {
		return nil, err
	}

	if !old.IsActive() {
		return nil, fmt.Errorf("%w: loan %d is %s", core.ErrInvalidLoanState, old.ID, old.State)
	}

	holder, err := s.ledger.BorrowerNotes().OwnerOf(ctx, old.BorrowerNoteID)
	if err != nil {
		return nil, err
	}

	if holder != caller {
		return nil, fmt.Errorf("%w: %s", core.ErrNotBorrower, caller.Hex())
	}

	if req.NewTerms.PayableCurrency != old.Terms.PayableCurrency {
		return nil, fmt.Errorf("%w: %s != %s", core.ErrCurrencyMismatch, req.NewTerms.PayableCurrency.Hex(), old.Terms.PayableCurrency.Hex())
	}

	if !req.Migrate {
		if req.NewTerms.Collateral() != old.Terms.Collateral() {
			return nil, fmt.Errorf("%w: %s != %s", core.ErrCollateralMismatch, req.NewTerms.Collateral(), old.Terms.Collateral())
		}

		return old, nil
	}

	if s.vaults == nil {
		return nil, fmt.Errorf("%w: migration not supported", core.ErrCollateralMismatch)
	}

	target := core.CollateralKey{Address: s.vaults.Address(), ID: s.vaults.NextID(ctx)}
	if req.NewTerms.Collateral() != target {
		return nil, fmt.Errorf("%w: new vault is %s", core.ErrCollateralMismatch, target)
	}

	return old, nil
}

func (s *rollover) RolloverLoan(ctx context.Context, caller common.Address, req core.RolloverRequest) (*core.RolloverResult, error) {
	var result *core.RolloverResult

	err := s.exec.Run(ctx, func(ctx context.Context) error {
		if s.pending != nil {
			return core.ErrReentrantCall
		}

		old, err := s.validate(ctx, caller, req)
		if err != nil {
			return err
		}

		quote, payoff, err := s.quote(ctx, req.LoanID, req.NewTerms.Principal)
		if err != nil {
			return err
		}

		s.pending = &operation{caller: caller, req: req, old: old, result: quote}
		defer func() { s.pending = nil }()

		currency := old.Terms.PayableCurrency
		if err := s.flash.FlashLoan(ctx, s, currency, payoff, nil); err != nil {
			return err
		}

		if left := s.assets.BalanceOf(ctx, currency, s.address); !left.IsZero() {
			return fmt.Errorf("%w: %s", core.ErrFundsLeftOver, left)
		}

		result = s.pending.result
		logger.FromContext(ctx).WithFields(logrus.Fields{
			"loan":     old.ID,
			"new_loan": result.NewLoanID,
			"need":     result.NeedFromBorrower,
			"leftover": result.LeftoverPrincipal,
		}).Infoln("rollover: done")

		if s.events != nil {
			event := core.Event{Kind: core.EventLoanRolledOver, LoanID: old.ID, Actor: caller, Amount: payoff}
			atomic.AfterCommit(ctx, func() {
				s.events.Publish(context.Background(), event)
			})
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	return result, nil
}

// OnFlashLoan is only honoured inside the operation started by RolloverLoan,
// pending is read under the executor so a call from outside any operation
// is rejected before touching it
func (s *rollover) OnFlashLoan(ctx context.Context, lender, currency common.Address, amount, fee decimal.Decimal, data []byte) error {
	if !atomic.InTx(ctx) {
		return fmt.Errorf("%w: outside rollover", core.ErrUnexpectedCallback)
	}

	op := s.pending
	if op == nil || lender != s.flash.Address() {
		return fmt.Errorf("%w: from %s", core.ErrUnexpectedCallback, lender.Hex())
	}

	if currency != op.old.Terms.PayableCurrency {
		return fmt.Errorf("%w: %s", core.ErrCurrencyMismatch, currency.Hex())
	}

	result := op.result
	if result.NeedFromBorrower.IsPositive() && result.LeftoverPrincipal.IsPositive() {
		return core.ErrFundsConflict
	}

	if err := s.closeOld(ctx, op); err != nil {
		return err
	}

	if op.req.Migrate {
		vaultID, err := s.migrate(ctx, op)
		if err != nil {
			return err
		}

		result.NewVaultID = vaultID
	}

	newLoanID, err := s.origination.InitializeLoan(ctx, s.address, op.req.NewTerms, s.address, op.req.Lender, op.req.Signature)
	if err != nil {
		return err
	}

	result.NewLoanID = newLoanID
	if err := s.ledger.BorrowerNotes().Transfer(ctx, s.address, op.caller, newLoanID); err != nil {
		return err
	}

	if result.NeedFromBorrower.IsPositive() {
		if err := s.assets.Transfer(ctx, currency, op.caller, s.address, result.NeedFromBorrower); err != nil {
			return err
		}
	}

	if result.LeftoverPrincipal.IsPositive() {
		if err := s.assets.Transfer(ctx, currency, s.address, op.caller, result.LeftoverPrincipal); err != nil {
			return err
		}
	}

	return nil
}

// closeOld takes the borrower note and repays the old loan with the flash funds,
// the collateral is released to the rollover address
func (s *rollover) closeOld(ctx context.Context, op *operation) error {
	old := op.old
	if err := s.ledger.BorrowerNotes().Transfer(ctx, op.caller, s.address, old.BorrowerNoteID); err != nil {
		return err
	}

	var err error
	if old.Terms.IsInstallment() {
		err = s.repayments.CloseLoan(ctx, s.address, old.ID)
	} else {
		err = s.repayments.Repay(ctx, s.address, old.ID)
	}

	if err != nil {
		return err
	}

	owner, err := s.assets.OwnerOf(ctx, old.Terms.Collateral())
	if err != nil {
		return err
	}

	if owner != s.address {
		return fmt.Errorf("%w: %s held by %s", core.ErrCollateralNotReceived, old.Terms.Collateral(), owner.Hex())
	}

	return nil
}

// migrate re-houses the old collateral into a new vault owned by the rollover.
// A vault is emptied item by item and returned to the borrower, a plain item
// is deposited as is.
func (s *rollover) migrate(ctx context.Context, op *operation) (uint64, error) {
	collateral := op.old.Terms.Collateral()

	var items []core.VaultItem
	fromVault := s.vaults.IsVault(ctx, collateral)
	if fromVault {
		contents, err := s.vaults.Contents(ctx, collateral.ID)
		if err != nil {
			return 0, err
		}

		for _, item := range contents {
			if item.Class == core.AssetOther {
				return 0, fmt.Errorf("%w: %s in vault %d", core.ErrUnsupportedAsset, item.Key(), collateral.ID)
			}
		}

		items = contents
	} else {
		items = []core.VaultItem{{Class: core.AssetUnique, Asset: collateral.Address, ID: collateral.ID}}
	}

	vaultID, err := s.vaults.Create(ctx, s.address)
	if err != nil {
		return 0, err
	}

	for _, item := range items {
		if fromVault {
			if err := s.vaults.Withdraw(ctx, s.address, collateral.ID, item, s.address); err != nil {
				return 0, err
			}
		}

		if err := s.vaults.Deposit(ctx, s.address, vaultID, item); err != nil {
			return 0, err
		}
	}

	if fromVault {
		if err := s.assets.TransferItem(ctx, collateral, s.address, op.caller); err != nil {
			return 0, err
		}
	}

	logger.FromContext(ctx).WithFields(logrus.Fields{
		"from":  collateral.String(),
		"vault": vaultID,
		"items": len(items),
	}).Infoln("rollover: collateral migrated")

	return vaultID, nil
}
