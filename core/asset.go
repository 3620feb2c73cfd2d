package core

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// AssetClass kind of asset
type AssetClass int

const (
	_ AssetClass = iota
	// AssetFungible interchangeable balances, payable currencies included
	AssetFungible
	// AssetUnique single items identified by (address, id)
	AssetUnique
	// AssetSemiFungible balances per (address, id)
	AssetSemiFungible
	// AssetOther items without a standard transfer interface, never migrated
	AssetOther
)

func (c AssetClass) String() string {
	switch c {
	case AssetFungible:
		return "fungible"
	case AssetUnique:
		return "unique"
	case AssetSemiFungible:
		return "semi-fungible"
	case AssetOther:
		return "other"
	default:
		return "unknown"
	}
}

// ParseAssetClass parse class name, returns zero class if unknown
func ParseAssetClass(s string) AssetClass {
	for _, c := range []AssetClass{AssetFungible, AssetUnique, AssetSemiFungible, AssetOther} {
		if c.String() == s {
			return c
		}
	}

	return 0
}

// CollateralKey identifies a pledged item
type CollateralKey struct {
	Address common.Address `json:"address"`
	ID      uint64         `json:"id"`
}

func (k CollateralKey) String() string {
	return fmt.Sprintf("%s:%d", k.Address.Hex(), k.ID)
}

// ItemReceiver called when a unique item lands on a registered address
type ItemReceiver func(ctx context.Context, key CollateralKey, from common.Address) error

// Bank fungible balances
type Bank interface {
	BalanceOf(ctx context.Context, currency, owner common.Address) decimal.Decimal
	Transfer(ctx context.Context, currency, from, to common.Address, amount decimal.Decimal) error
	Mint(ctx context.Context, currency, to common.Address, amount decimal.Decimal) error
}

// Custody unique and semi-fungible items
type Custody interface {
	OwnerOf(ctx context.Context, key CollateralKey) (common.Address, error)
	TransferItem(ctx context.Context, key CollateralKey, from, to common.Address) error
	MintItem(ctx context.Context, key CollateralKey, to common.Address) error
	BalanceOfSemi(ctx context.Context, key CollateralKey, owner common.Address) decimal.Decimal
	TransferSemi(ctx context.Context, key CollateralKey, from, to common.Address, amount decimal.Decimal) error
	MintSemi(ctx context.Context, key CollateralKey, to common.Address, amount decimal.Decimal) error
}

// AssetService asset registry
type AssetService interface {
	Bank
	Custody
	SetReceiver(addr common.Address, receiver ItemReceiver)
	// Restore load stored balances and owners, reports whether any existed
	Restore(ctx context.Context) (bool, error)
}

// Allocation genesis balance or item
type Allocation struct {
	Class  AssetClass      `json:"class"`
	Asset  common.Address  `json:"asset"`
	ID     uint64          `json:"id"`
	Owner  common.Address  `json:"owner"`
	Amount decimal.Decimal `json:"amount"`
}
