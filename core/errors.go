package core

import "strconv"

// ErrorCode int
type ErrorCode int

// ErrorKind groups error codes for transport mapping
type ErrorKind int

const (
	// KindInternal unexpected
	KindInternal ErrorKind = iota
	// KindInvalidArgument malformed input or terms out of bounds
	KindInvalidArgument
	// KindState operation not allowed in the current state
	KindState
	// KindPermission caller is not authorized
	KindPermission
	// KindEconomic balances or payments do not add up
	KindEconomic
	// KindNotFound missing object
	KindNotFound
)

const (
	// ErrUnknown unkown
	ErrUnknown ErrorCode = 100000
	// ErrOperationForbidden operation forbidden
	ErrOperationForbidden ErrorCode = 100001
	// ErrReentrantCall re-entrant call
	ErrReentrantCall ErrorCode = 100002

	// ErrInvalidAmount invalid amount
	ErrInvalidAmount ErrorCode = 100101
	// ErrDurationInvalid loan duration out of range
	ErrDurationInvalid ErrorCode = 100102
	// ErrInterestRateTooLow interest rate below 1 bps
	ErrInterestRateTooLow ErrorCode = 100103
	// ErrInstallmentCountInvalid odd or too many installments
	ErrInstallmentCountInvalid ErrorCode = 100104
	// ErrCollateralAlreadyLocked collateral backs another active loan
	ErrCollateralAlreadyLocked ErrorCode = 100105
	// ErrInvalidLoanState loan is not active
	ErrInvalidLoanState ErrorCode = 100106
	// ErrNoPaymentDue nothing to pay
	ErrNoPaymentDue ErrorCode = 100107
	// ErrNotYetExpired loan is not claimable yet
	ErrNotYetExpired ErrorCode = 100108
	// ErrNonceAlreadyUsed nonce consumed or cancelled
	ErrNonceAlreadyUsed ErrorCode = 100109
	// ErrLoanNotFound no loan
	ErrLoanNotFound ErrorCode = 100110
	// ErrWrongRepaymentMethod single payment and installment repay mismatch
	ErrWrongRepaymentMethod ErrorCode = 100111
	// ErrInsufficientPayment payment below interest and late fees due
	ErrInsufficientPayment ErrorCode = 100112
	// ErrNotLender caller does not hold the lender note
	ErrNotLender ErrorCode = 100113

	// ErrSelfApproval borrower and lender are the same
	ErrSelfApproval ErrorCode = 100200
	// ErrApprovedOwnLoan caller signed the terms it submits
	ErrApprovedOwnLoan ErrorCode = 100201
	// ErrInvalidSignature signature does not belong to the counterparty
	ErrInvalidSignature ErrorCode = 100202
	// ErrSignatureExpired signature deadline passed
	ErrSignatureExpired ErrorCode = 100203
	// ErrCallerNotParticipant caller is neither side nor approved by them
	ErrCallerNotParticipant ErrorCode = 100204
	// ErrPredicateFailed collateral does not satisfy an item predicate
	ErrPredicateFailed ErrorCode = 100205
	// ErrInvalidVerifier verifier is not allowed
	ErrInvalidVerifier ErrorCode = 100206
	// ErrSelfApprove account approves itself
	ErrSelfApprove ErrorCode = 100207

	// ErrNotBorrower caller does not hold the borrower note
	ErrNotBorrower ErrorCode = 100300
	// ErrCurrencyMismatch new terms use another currency
	ErrCurrencyMismatch ErrorCode = 100301
	// ErrCollateralMismatch new terms reference other collateral
	ErrCollateralMismatch ErrorCode = 100302
	// ErrFundsConflict shortfall and leftover at once
	ErrFundsConflict ErrorCode = 100303
	// ErrCollateralNotReceived collateral not returned to the rollover
	ErrCollateralNotReceived ErrorCode = 100304
	// ErrUnsupportedAsset asset class can not be migrated
	ErrUnsupportedAsset ErrorCode = 100305
	// ErrFundsLeftOver rollover kept a balance
	ErrFundsLeftOver ErrorCode = 100306
	// ErrUnexpectedCallback flash callback out of an operation
	ErrUnexpectedCallback ErrorCode = 100307

	// ErrInsufficientBalance not enough fungible balance
	ErrInsufficientBalance ErrorCode = 100400
	// ErrNotOwner item is not owned by the sender
	ErrNotOwner ErrorCode = 100401
	// ErrItemNotFound unknown unique item
	ErrItemNotFound ErrorCode = 100402
	// ErrNoteNotFound unknown note
	ErrNoteNotFound ErrorCode = 100403
	// ErrVaultNotFound unknown vault
	ErrVaultNotFound ErrorCode = 100404
	// ErrFlashLoanActive flash loans can not nest
	ErrFlashLoanActive ErrorCode = 100405
	// ErrFlashLoanNotRepaid receiver did not leave amount plus fee
	ErrFlashLoanNotRepaid ErrorCode = 100406
	// ErrInsufficientLiquidity flash pool too shallow
	ErrInsufficientLiquidity ErrorCode = 100407
	// ErrAccountNotFound unknown programmable account
	ErrAccountNotFound ErrorCode = 100408
)

var errorMessages = map[ErrorCode]string{
	ErrUnknown:                 "unknown",
	ErrOperationForbidden:      "operation forbidden",
	ErrReentrantCall:           "re-entrant call",
	ErrInvalidAmount:           "invalid amount",
	ErrDurationInvalid:         "loan duration invalid",
	ErrInterestRateTooLow:      "interest rate too low",
	ErrInstallmentCountInvalid: "installment count invalid",
	ErrCollateralAlreadyLocked: "collateral already locked",
	ErrInvalidLoanState:        "invalid loan state",
	ErrNoPaymentDue:            "no payment due",
	ErrNotYetExpired:           "loan not yet expired",
	ErrNonceAlreadyUsed:        "nonce already used",
	ErrLoanNotFound:            "loan not found",
	ErrWrongRepaymentMethod:    "wrong repayment method",
	ErrInsufficientPayment:     "insufficient payment",
	ErrNotLender:               "not lender",
	ErrSelfApproval:            "borrower and lender are the same",
	ErrApprovedOwnLoan:         "caller signed its own loan",
	ErrInvalidSignature:        "invalid signature",
	ErrSignatureExpired:        "signature expired",
	ErrCallerNotParticipant:    "caller not participant",
	ErrPredicateFailed:         "predicate failed",
	ErrInvalidVerifier:         "invalid verifier",
	ErrSelfApprove:             "can not approve self",
	ErrNotBorrower:             "not borrower",
	ErrCurrencyMismatch:        "currency mismatch",
	ErrCollateralMismatch:      "collateral mismatch",
	ErrFundsConflict:           "funds conflict",
	ErrCollateralNotReceived:   "collateral not received",
	ErrUnsupportedAsset:        "unsupported asset",
	ErrFundsLeftOver:           "funds left over",
	ErrUnexpectedCallback:      "unexpected callback",
	ErrInsufficientBalance:     "insufficient balance",
	ErrNotOwner:                "not owner",
	ErrItemNotFound:            "item not found",
	ErrNoteNotFound:            "note not found",
	ErrVaultNotFound:           "vault not found",
	ErrFlashLoanActive:         "flash loan active",
	ErrFlashLoanNotRepaid:      "flash loan not repaid",
	ErrInsufficientLiquidity:   "insufficient liquidity",
	ErrAccountNotFound:         "account not found",
}

func (e ErrorCode) String() string {
	return strconv.Itoa(int(e))
}

func (e ErrorCode) Error() string {
	if msg, ok := errorMessages[e]; ok {
		return msg
	}

	return e.String()
}

// Kind transport category of the code
func (e ErrorCode) Kind() ErrorKind {
	switch e {
	case ErrInvalidAmount, ErrDurationInvalid, ErrInterestRateTooLow, ErrInstallmentCountInvalid,
		ErrSelfApproval, ErrSelfApprove, ErrCurrencyMismatch, ErrCollateralMismatch, ErrUnsupportedAsset:
		return KindInvalidArgument
	case ErrOperationForbidden, ErrApprovedOwnLoan, ErrInvalidSignature, ErrSignatureExpired,
		ErrCallerNotParticipant, ErrInvalidVerifier, ErrNotBorrower, ErrNotLender, ErrNotOwner,
		ErrUnexpectedCallback:
		return KindPermission
	case ErrInsufficientPayment, ErrInsufficientBalance, ErrInsufficientLiquidity, ErrFundsConflict,
		ErrFundsLeftOver, ErrFlashLoanNotRepaid, ErrCollateralNotReceived, ErrPredicateFailed:
		return KindEconomic
	case ErrLoanNotFound, ErrItemNotFound, ErrNoteNotFound, ErrVaultNotFound, ErrAccountNotFound:
		return KindNotFound
	case ErrReentrantCall, ErrCollateralAlreadyLocked, ErrInvalidLoanState, ErrNoPaymentDue,
		ErrNotYetExpired, ErrNonceAlreadyUsed, ErrWrongRepaymentMethod, ErrFlashLoanActive:
		return KindState
	default:
		return KindInternal
	}
}
