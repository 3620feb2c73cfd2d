package core

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// MaxOriginationFeeBps 10%
const MaxOriginationFeeBps uint64 = 1000

// FeeService origination fee source
type FeeService interface {
	OriginationFee(ctx context.Context) uint64
	SetOriginationFee(ctx context.Context, caller common.Address, bps uint64) error
}
