package core

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// EventKind ledger event kind
type EventKind string

const (
	// EventLoanStarted loan opened
	EventLoanStarted EventKind = "loan_started"
	// EventLoanRepaid loan closed by repayment
	EventLoanRepaid EventKind = "loan_repaid"
	// EventInstallmentPaid partial repayment, loan still active
	EventInstallmentPaid EventKind = "installment_paid"
	// EventLoanClaimed collateral claimed by the lender
	EventLoanClaimed EventKind = "loan_claimed"
	// EventNonceUsed nonce consumed or cancelled
	EventNonceUsed EventKind = "nonce_used"
	// EventFeesWithdrawn protocol fees withdrawn
	EventFeesWithdrawn EventKind = "fees_withdrawn"
	// EventLoanRolledOver loan refinanced into a new one
	EventLoanRolledOver EventKind = "loan_rolled_over"
)

// Event committed state change
type Event struct {
	Kind      EventKind       `json:"kind"`
	LoanID    uint64          `json:"loan_id,omitempty"`
	Actor     common.Address  `json:"actor"`
	Amount    decimal.Decimal `json:"amount"`
	Nonce     uint64          `json:"nonce,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// EventPublisher delivers committed events
type EventPublisher interface {
	Publish(ctx context.Context, event Event)
}
