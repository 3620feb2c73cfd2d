package core

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// FlashBorrower receives flash loaned funds and must hold amount + fee
// when OnFlashLoan returns
type FlashBorrower interface {
	Address() common.Address
	OnFlashLoan(ctx context.Context, lender, currency common.Address, amount, fee decimal.Decimal, data []byte) error
}

// FlashService bridge capital source
type FlashService interface {
	Address() common.Address
	FlashFee(amount decimal.Decimal) decimal.Decimal
	MaxFlashLoan(ctx context.Context, currency common.Address) decimal.Decimal
	FlashLoan(ctx context.Context, receiver FlashBorrower, currency common.Address, amount decimal.Decimal, data []byte) error
}
