package repayment

import (
	"context"
	"fmt"

	"pledge/core"
	"pledge/internal/atomic"
	"pledge/internal/installment"
	"pledge/pkg/id"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fox-one/pkg/logger"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Clock unix seconds source
type Clock func() int64

type controller struct {
	address common.Address
	exec    *atomic.Executor
	ledger  core.LedgerService
	bank    core.Bank
	now     Clock
}

// New new repayment controller. The controller address must hold the
// repayer and claimer roles on the ledger.
func New(exec *atomic.Executor, ledger core.LedgerService, bank core.Bank, clock Clock) core.RepaymentService {
	return &controller{
		address: id.Address("repayment"),
		exec:    exec,
		ledger:  ledger,
		bank:    bank,
		now:     clock,
	}
}

func (s *controller) Address() common.Address {
	return s.address
}

func (s *controller) activeLoan(ctx context.Context, loanID uint64) (*core.Loan, error) {
	loan, err := s.ledger.Loan(ctx, loanID)
	if err != nil {
		return nil, err
	}

	if !loan.IsActive() {
		return nil, fmt.Errorf("%w: loan %d is %s", core.ErrInvalidLoanState, loanID, loan.State)
	}

	return loan, nil
}

func (s *controller) due(loan *core.Loan) core.AmountsDue {
	if !loan.Terms.IsInstallment() {
		return core.AmountsDue{
			Interest: installment.Interest(loan.Terms.Principal, loan.Terms.InterestRate),
			LateFees: decimal.Zero,
		}
	}

	return installment.FromLoan(loan).AmountsDue(s.now())
}

// AmountsDue quotes from a copy of the loan, the schedule is computed
// without holding the executor
func (s *controller) AmountsDue(ctx context.Context, loanID uint64) (core.AmountsDue, error) {
	loan, err := s.activeLoan(ctx, loanID)
	if err != nil {
		return core.AmountsDue{}, err
	}

	return s.due(loan), nil
}

func (s *controller) PayoffAmount(ctx context.Context, loanID uint64) (decimal.Decimal, error) {
	loan, err := s.activeLoan(ctx, loanID)
	if err != nil {
		return decimal.Zero, err
	}

	if !loan.Terms.IsInstallment() {
		return installment.FullInterestAmount(loan.Terms.Principal, loan.Terms.InterestRate), nil
	}

	return loan.Balance.Add(s.due(loan).Total()), nil
}

func (s *controller) Repay(ctx context.Context, payer common.Address, loanID uint64) error {
	return s.exec.Run(ctx, func(ctx context.Context) error {
		loan, err := s.activeLoan(ctx, loanID)
		if err != nil {
			return err
		}

		if loan.Terms.IsInstallment() {
			return fmt.Errorf("%w: loan %d pays by installments", core.ErrWrongRepaymentMethod, loanID)
		}

		total := installment.FullInterestAmount(loan.Terms.Principal, loan.Terms.InterestRate)
		if err := s.bank.Transfer(ctx, loan.Terms.PayableCurrency, payer, s.address, total); err != nil {
			return err
		}

		return s.ledger.Repay(ctx, s.address, loanID)
	})
}

// repayPart pulls principal + due from payer and forwards the split to the ledger
func (s *controller) repayPart(ctx context.Context, payer common.Address, loan *core.Loan, due core.AmountsDue, toPrincipal decimal.Decimal) error {
	total := toPrincipal.Add(due.Total())
	if err := s.bank.Transfer(ctx, loan.Terms.PayableCurrency, payer, s.address, total); err != nil {
		return err
	}

	logger.FromContext(ctx).WithFields(logrus.Fields{
		"loan":      loan.ID,
		"payer":     payer.Hex(),
		"principal": toPrincipal,
		"interest":  due.Interest,
		"late_fees": due.LateFees,
		"missed":    due.Missed,
	}).Debugln("repayment: installment")

	return s.ledger.RepayPart(ctx, s.address, loan.ID, due.Missed, toPrincipal, due.Interest, due.LateFees)
}

func (s *controller) installmentLoan(ctx context.Context, loanID uint64) (*core.Loan, error) {
	loan, err := s.activeLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}

	if !loan.Terms.IsInstallment() {
		return nil, fmt.Errorf("%w: loan %d is a single payment loan", core.ErrWrongRepaymentMethod, loanID)
	}

	return loan, nil
}

func (s *controller) RepayPart(ctx context.Context, payer common.Address, loanID uint64, amount decimal.Decimal) error {
	return s.exec.Run(ctx, func(ctx context.Context) error {
		loan, err := s.installmentLoan(ctx, loanID)
		if err != nil {
			return err
		}

		due := s.due(loan)
		if due.Interest.IsZero() {
			return fmt.Errorf("%w: loan %d", core.ErrNoPaymentDue, loanID)
		}

		if amount.LessThan(due.Total()) {
			return fmt.Errorf("%w: %s due, got %s", core.ErrInsufficientPayment, due.Total(), amount)
		}

		return s.repayPart(ctx, payer, loan, due, amount.Sub(due.Total()))
	})
}

func (s *controller) RepayPartMinimum(ctx context.Context, payer common.Address, loanID uint64) error {
	return s.exec.Run(ctx, func(ctx context.Context) error {
		loan, err := s.installmentLoan(ctx, loanID)
		if err != nil {
			return err
		}

		due := s.due(loan)
		if due.Interest.IsZero() {
			return fmt.Errorf("%w: loan %d", core.ErrNoPaymentDue, loanID)
		}

		return s.repayPart(ctx, payer, loan, due, decimal.Zero)
	})
}

func (s *controller) CloseLoan(ctx context.Context, payer common.Address, loanID uint64) error {
	return s.exec.Run(ctx, func(ctx context.Context) error {
		loan, err := s.installmentLoan(ctx, loanID)
		if err != nil {
			return err
		}

		return s.repayPart(ctx, payer, loan, s.due(loan), loan.Balance)
	})
}

func (s *controller) Claim(ctx context.Context, caller common.Address, loanID uint64) error {
	return s.exec.Run(ctx, func(ctx context.Context) error {
		loan, err := s.activeLoan(ctx, loanID)
		if err != nil {
			return err
		}

		holder, err := s.ledger.LenderNotes().OwnerOf(ctx, loan.LenderNoteID)
		if err != nil {
			return err
		}

		if holder != caller {
			return fmt.Errorf("%w: %s does not hold lender note %d", core.ErrNotLender, caller.Hex(), loan.LenderNoteID)
		}

		return s.ledger.Claim(ctx, s.address, loanID)
	})
}
