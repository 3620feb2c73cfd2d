package core

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// VaultItem a sub-asset held by a vault
type VaultItem struct {
	Class  AssetClass      `json:"class"`
	Asset  common.Address  `json:"asset"`
	ID     uint64          `json:"id,omitempty"`
	Amount decimal.Decimal `json:"amount"`
}

// Key (asset, id) of the item
func (i VaultItem) Key() CollateralKey {
	return CollateralKey{Address: i.Asset, ID: i.ID}
}

// VaultService collateral bundles, a vault is the unique item (factory, vaultID)
type VaultService interface {
	Address() common.Address
	IsVault(ctx context.Context, key CollateralKey) bool
	NextID(ctx context.Context) uint64
	Create(ctx context.Context, owner common.Address) (uint64, error)
	Deposit(ctx context.Context, caller common.Address, vaultID uint64, item VaultItem) error
	Withdraw(ctx context.Context, caller common.Address, vaultID uint64, item VaultItem, to common.Address) error
	Contents(ctx context.Context, vaultID uint64) ([]VaultItem, error)
	Restore(ctx context.Context) error
}
