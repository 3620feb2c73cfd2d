package predicate

import (
	"context"
	"fmt"

	"pledge/core"
	"pledge/pkg/id"
	"pledge/pkg/number"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fox-one/msgpack"
	"github.com/shopspring/decimal"
)

// Encode msgpack encode a predicate item list
func Encode(items []core.PredicateItem) ([]byte, error) {
	return msgpack.Marshal(items)
}

// Decode msgpack decode a predicate item list
func Decode(data []byte) ([]core.PredicateItem, error) {
	var items []core.PredicateItem
	if err := msgpack.Unmarshal(data, &items); err != nil {
		return nil, err
	}

	return items, nil
}

type itemsVerifier struct {
	address common.Address
	vaults  core.VaultService
}

// New new item predicate verifier over vaults of the given factory
func New(vaults core.VaultService) core.PredicateVerifier {
	return &itemsVerifier{
		address: id.Address("verifier:items:" + vaults.Address().Hex()),
		vaults:  vaults,
	}
}

func (v *itemsVerifier) Address() common.Address {
	return v.address
}

func (v *itemsVerifier) Verify(ctx context.Context, data []byte, collateral core.CollateralKey) (bool, error) {
	items, err := Decode(data)
	if err != nil {
		return false, fmt.Errorf("decode predicate items: %w", err)
	}

	if len(items) == 0 {
		return false, fmt.Errorf("empty predicate items")
	}

	if !v.vaults.IsVault(ctx, collateral) {
		return false, nil
	}

	contents, err := v.vaults.Contents(ctx, collateral.ID)
	if err != nil {
		return false, err
	}

	for _, item := range items {
		if !contains(contents, item) {
			return false, nil
		}
	}

	return true, nil
}

func minAmount(item core.PredicateItem) decimal.Decimal {
	amount := number.Decimal(item.Amount)
	if !amount.IsPositive() {
		return decimal.New(1, 0)
	}

	return amount
}

func contains(contents []core.VaultItem, item core.PredicateItem) bool {
	asset := common.HexToAddress(item.Asset)
	for _, c := range contents {
		if c.Asset != asset || c.Class != item.Class {
			continue
		}

		switch item.Kind {
		case core.PredicateExact:
			if c.Class == core.AssetFungible || c.ID == item.ID {
				if c.Amount.GreaterThanOrEqual(minAmount(item)) {
					return true
				}
			}
		case core.PredicateRange:
			if c.ID >= item.MinID && c.ID <= item.MaxID && c.Amount.GreaterThanOrEqual(minAmount(item)) {
				return true
			}
		case core.PredicateBalance:
			if (c.Class == core.AssetFungible || c.ID == item.ID) && c.Amount.GreaterThanOrEqual(minAmount(item)) {
				return true
			}
		}
	}

	return false
}
