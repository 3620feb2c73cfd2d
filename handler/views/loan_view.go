package views

import (
	"encoding/json"

	"pledge/core"

	"github.com/shopspring/decimal"
)

// Loan loan view
type Loan struct {
	ID                  uint64           `json:"id"`
	State               string           `json:"state"`
	Borrower            string           `json:"borrower"`
	Lender              string           `json:"lender"`
	Terms               core.LoanTerms   `json:"terms"`
	StartDate           int64            `json:"start_date"`
	DueDate             int64            `json:"due_date"`
	Balance             decimal.Decimal  `json:"balance"`
	BalancePaid         decimal.Decimal  `json:"balance_paid"`
	LateFeesAccrued     decimal.Decimal  `json:"late_fees_accrued"`
	NumInstallmentsPaid uint64           `json:"num_installments_paid"`
	Due                 *core.AmountsDue `json:"due,omitempty"`
	Payoff              *decimal.Decimal `json:"payoff,omitempty"`
}

// LoanView view of a live loan
func LoanView(loan *core.Loan) Loan {
	return Loan{
		ID:                  loan.ID,
		State:               loan.State.String(),
		Borrower:            loan.Borrower.Hex(),
		Lender:              loan.Lender.Hex(),
		Terms:               loan.Terms,
		StartDate:           loan.StartDate,
		DueDate:             loan.DueDate,
		Balance:             loan.Balance,
		BalancePaid:         loan.BalancePaid,
		LateFeesAccrued:     loan.LateFeesAccrued,
		NumInstallmentsPaid: loan.NumInstallmentsPaid,
	}
}

// ArchiveView view of an archived loan
func ArchiveView(archive *core.LoanArchive) Loan {
	view := Loan{
		ID:              archive.LoanID,
		State:           archive.State.String(),
		Borrower:        archive.Borrower,
		Lender:          archive.Lender,
		StartDate:       archive.StartDate,
		DueDate:         archive.DueDate,
		Balance:         archive.Balance,
		BalancePaid:     archive.BalancePaid,
		LateFeesAccrued: archive.LateFeesAccrued,
	}

	_ = json.Unmarshal(archive.Terms, &view.Terms)
	return view
}
