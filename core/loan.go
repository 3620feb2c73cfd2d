package core

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jmoiron/sqlx/types"
	"github.com/shopspring/decimal"
)

const (
	// MinLoanDuration one hour
	MinLoanDuration uint64 = 3600
	// MaxLoanDuration three years
	MaxLoanDuration uint64 = 94_608_000
	// MaxInstallments upper bound of installment periods
	MaxInstallments uint64 = 1_000_000
	// LateFeeBps late fee per missed installment, in bps of the running balance
	LateFeeBps uint64 = 50
)

var (
	// InterestRateDenominator fixed point scale of LoanTerms.InterestRate,
	// one unit of the denominator equals one basis point
	InterestRateDenominator = decimal.New(1, 18)
)

// LoanState loan lifecycle state
type LoanState int

const (
	_ LoanState = iota
	// LoanStateActive loan is open and accruing
	LoanStateActive
	// LoanStateRepaid terminal, paid back
	LoanStateRepaid
	// LoanStateDefaulted terminal, collateral claimed by the lender
	LoanStateDefaulted
)

func (s LoanState) String() string {
	switch s {
	case LoanStateActive:
		return "active"
	case LoanStateRepaid:
		return "repaid"
	case LoanStateDefaulted:
		return "defaulted"
	default:
		return "unknown"
	}
}

// ParseLoanState parse state name, returns zero state if unknown
func ParseLoanState(s string) LoanState {
	for _, state := range []LoanState{LoanStateActive, LoanStateRepaid, LoanStateDefaulted} {
		if state.String() == s {
			return state
		}
	}

	return 0
}

// LoanTerms the terms both counterparties agreed on, immutable per loan
type LoanTerms struct {
	Principal         decimal.Decimal `json:"principal"`
	InterestRate      decimal.Decimal `json:"interest_rate"`
	DurationSecs      uint64          `json:"duration_secs"`
	NumInstallments   uint64          `json:"num_installments"`
	CollateralAddress common.Address  `json:"collateral_address"`
	CollateralID      uint64          `json:"collateral_id"`
	PayableCurrency   common.Address  `json:"payable_currency"`
	Deadline          int64           `json:"deadline"`
	Nonce             uint64          `json:"nonce"`
}

// Collateral the pledged asset referenced by the terms
func (t LoanTerms) Collateral() CollateralKey {
	return CollateralKey{Address: t.CollateralAddress, ID: t.CollateralID}
}

// IsInstallment reports whether the terms use an installment schedule
func (t LoanTerms) IsInstallment() bool {
	return t.NumInstallments > 0
}

// Validate check duration, installment and interest rate bounds
func (t LoanTerms) Validate() error {
	if t.DurationSecs < MinLoanDuration || t.DurationSecs > MaxLoanDuration {
		return ErrDurationInvalid
	}

	if t.InterestRate.LessThan(InterestRateDenominator) {
		return ErrInterestRateTooLow
	}

	if t.NumInstallments%2 != 0 || t.NumInstallments > MaxInstallments {
		return ErrInstallmentCountInvalid
	}

	if t.Principal.IsNegative() {
		return ErrInvalidAmount
	}

	return nil
}

// Loan the ledger record of a single loan
type Loan struct {
	ID                  uint64          `json:"id"`
	Terms               LoanTerms       `json:"terms"`
	State               LoanState       `json:"state"`
	StartDate           int64           `json:"start_date"`
	DueDate             int64           `json:"due_date"`
	Balance             decimal.Decimal `json:"balance"`
	BalancePaid         decimal.Decimal `json:"balance_paid"`
	LateFeesAccrued     decimal.Decimal `json:"late_fees_accrued"`
	NumInstallmentsPaid uint64          `json:"num_installments_paid"`
	BorrowerNoteID      uint64          `json:"borrower_note_id"`
	LenderNoteID        uint64          `json:"lender_note_id"`
	// Borrower and Lender are the note holders as of the last settlement,
	// rights always follow the notes while the loan is active
	Borrower common.Address `json:"borrower"`
	Lender   common.Address `json:"lender"`
}

// Clone copy of the loan, decimals are immutable values
func (l *Loan) Clone() *Loan {
	if l == nil {
		return nil
	}

	clone := *l
	return &clone
}

// IsActive loan is still open
func (l *Loan) IsActive() bool {
	return l.State == LoanStateActive
}

// LoanFilter ledger query filter
type LoanFilter struct {
	State    LoanState
	Borrower common.Address
	Lender   common.Address
	Offset   uint64
	Limit    int
}

// LoanArchive persisted snapshot of a loan, written after each committed change
type LoanArchive struct {
	ID              int64           `sql:"PRIMARY_KEY;AUTO_INCREMENT" json:"-"`
	LoanID          uint64          `sql:"unique_index:idx_loan_archives_loan_id" json:"loan_id"`
	State           LoanState       `sql:"index:idx_loan_archives_state" json:"state"`
	Borrower        string          `sql:"size:42;index:idx_loan_archives_borrower" json:"borrower"`
	Lender          string          `sql:"size:42;index:idx_loan_archives_lender" json:"lender"`
	Currency        string          `sql:"size:42" json:"currency"`
	Principal       decimal.Decimal `sql:"type:decimal(65,0)" json:"principal"`
	Balance         decimal.Decimal `sql:"type:decimal(65,0)" json:"balance"`
	BalancePaid     decimal.Decimal `sql:"type:decimal(65,0)" json:"balance_paid"`
	LateFeesAccrued decimal.Decimal `sql:"type:decimal(65,0)" json:"late_fees_accrued"`
	Terms           types.JSONText  `sql:"type:TEXT" json:"terms"`
	StartDate       int64           `json:"start_date"`
	DueDate         int64           `sql:"index:idx_loan_archives_due_date" json:"due_date"`
	Version         int64           `sql:"default:0" json:"version"`
	CreatedAt       time.Time       `sql:"default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt       time.Time       `sql:"default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// LoanStore loan archive store
type LoanStore interface {
	Save(ctx context.Context, archive *LoanArchive) error
	Find(ctx context.Context, loanID uint64) (*LoanArchive, error)
	List(ctx context.Context, filter LoanFilter) ([]*LoanArchive, error)
}

// LedgerService loan ledger
type LedgerService interface {
	OpenLoan(ctx context.Context, caller, lender, borrower common.Address, terms LoanTerms) (uint64, error)
	Repay(ctx context.Context, caller common.Address, loanID uint64) error
	RepayPart(ctx context.Context, caller common.Address, loanID uint64, missed uint64, toPrincipal, toInterest, toLateFees decimal.Decimal) error
	Claim(ctx context.Context, caller common.Address, loanID uint64) error
	ConsumeNonce(ctx context.Context, caller, signer common.Address, nonce uint64) error
	CancelNonce(ctx context.Context, caller common.Address, nonce uint64) error
	IsNonceUsed(ctx context.Context, signer common.Address, nonce uint64) bool
	IsCollateralLocked(ctx context.Context, key CollateralKey) bool
	CollectedFees(ctx context.Context, currency common.Address) decimal.Decimal
	WithdrawFees(ctx context.Context, caller, currency, to common.Address) (decimal.Decimal, error)
	Loan(ctx context.Context, loanID uint64) (*Loan, error)
	Loans(ctx context.Context, filter LoanFilter) ([]*Loan, error)
	Address() common.Address
	BorrowerNotes() NoteRegistry
	LenderNotes() NoteRegistry
	// Restore load the stored state, once before the first operation
	Restore(ctx context.Context) error
}

// AmountsDue installment quote
type AmountsDue struct {
	Interest decimal.Decimal `json:"interest"`
	LateFees decimal.Decimal `json:"late_fees"`
	Missed   uint64          `json:"missed"`
}

// Total interest plus late fees
func (a AmountsDue) Total() decimal.Decimal {
	return a.Interest.Add(a.LateFees)
}

// RepaymentService user facing repayment entry point
type RepaymentService interface {
	Repay(ctx context.Context, payer common.Address, loanID uint64) error
	RepayPart(ctx context.Context, payer common.Address, loanID uint64, amount decimal.Decimal) error
	RepayPartMinimum(ctx context.Context, payer common.Address, loanID uint64) error
	CloseLoan(ctx context.Context, payer common.Address, loanID uint64) error
	Claim(ctx context.Context, caller common.Address, loanID uint64) error
	AmountsDue(ctx context.Context, loanID uint64) (AmountsDue, error)
	PayoffAmount(ctx context.Context, loanID uint64) (decimal.Decimal, error)
	Address() common.Address
}
