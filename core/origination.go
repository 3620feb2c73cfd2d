package core

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// OriginationService consent checks and loan origination
type OriginationService interface {
	Address() common.Address
	InitializeLoan(ctx context.Context, caller common.Address, terms LoanTerms, borrower, lender common.Address, sig []byte) (uint64, error)
	InitializeLoanWithItems(ctx context.Context, caller common.Address, terms LoanTerms, borrower, lender common.Address, sig []byte, predicates []Predicate) (uint64, error)
	Approve(ctx context.Context, owner, signer common.Address, approved bool) error
	IsApproved(ctx context.Context, owner, signer common.Address) bool
	IsSelfOrApproved(ctx context.Context, target, signer common.Address) bool
	SetAllowedVerifier(ctx context.Context, caller, verifier common.Address, allowed bool) error
	IsAllowedVerifier(ctx context.Context, verifier common.Address) bool
	Restore(ctx context.Context) error
}

// RolloverRequest refinance an active loan into new terms
type RolloverRequest struct {
	LoanID    uint64         `json:"loan_id"`
	NewTerms  LoanTerms      `json:"new_terms"`
	Lender    common.Address `json:"lender"`
	Signature []byte         `json:"signature"`
	// Migrate moves the collateral contents into a newly created vault,
	// NewTerms must reference that vault
	Migrate bool `json:"migrate"`
}

// RolloverResult settlement of a rollover
type RolloverResult struct {
	NewLoanID         uint64          `json:"new_loan_id"`
	NeedFromBorrower  decimal.Decimal `json:"need_from_borrower"`
	LeftoverPrincipal decimal.Decimal `json:"leftover_principal"`
	FlashFee          decimal.Decimal `json:"flash_fee"`
	NewVaultID        uint64          `json:"new_vault_id,omitempty"`
}

// RolloverService atomic refinance
type RolloverService interface {
	Address() common.Address
	RolloverLoan(ctx context.Context, caller common.Address, req RolloverRequest) (*RolloverResult, error)
	Quote(ctx context.Context, loanID uint64, newPrincipal decimal.Decimal) (*RolloverResult, error)
}
