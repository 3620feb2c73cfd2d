package vault

import (
	"context"
	"encoding/json"
	"fmt"

	"pledge/core"
	"pledge/internal/atomic"
	"pledge/pkg/id"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fox-one/pkg/logger"
	"github.com/fox-one/pkg/store/db"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type factory struct {
	name     string
	address  common.Address
	exec     *atomic.Executor
	store    core.VaultStore
	assets   core.AssetService
	lastID   uint64
	contents map[uint64][]core.VaultItem
}

// New new vault factory, name makes factories distinct. store may be nil.
func New(exec *atomic.Executor, store core.VaultStore, assets core.AssetService, name string) core.VaultService {
	return &factory{
		name:     name,
		address:  id.Address("vault:" + name),
		exec:     exec,
		store:    store,
		assets:   assets,
		contents: make(map[uint64][]core.VaultItem),
	}
}

// Account the address holding the contents of a vault
func Account(factoryAddr common.Address, vaultID uint64) common.Address {
	return id.SubAddress(factoryAddr, "vault", vaultID)
}

func (f *factory) Address() common.Address {
	return f.address
}

func (f *factory) IsVault(ctx context.Context, key core.CollateralKey) bool {
	if key.Address != f.address {
		return false
	}

	var ok bool
	_ = f.exec.View(ctx, func(ctx context.Context) error {
		_, ok = f.contents[key.ID]
		return nil
	})

	return ok
}

func (f *factory) NextID(ctx context.Context) uint64 {
	var next uint64
	_ = f.exec.View(ctx, func(ctx context.Context) error {
		next = f.lastID + 1
		return nil
	})

	return next
}

func (f *factory) Create(ctx context.Context, owner common.Address) (uint64, error) {
	var vaultID uint64
	err := f.exec.Run(ctx, func(ctx context.Context) error {
		prev := f.lastID
		f.lastID++
		vaultID = f.lastID
		f.contents[vaultID] = []core.VaultItem{}
		atomic.Record(ctx, func() {
			f.lastID = prev
			delete(f.contents, vaultID)
		})
		f.save(ctx, vaultID)

		return f.assets.MintItem(ctx, core.CollateralKey{Address: f.address, ID: vaultID}, owner)
	})

	if err == nil {
		logger.FromContext(ctx).WithField("factory", f.name).Debugf("vault %d created for %s", vaultID, owner.Hex())
	}

	return vaultID, err
}

func (f *factory) move(ctx context.Context, item core.VaultItem, from, to common.Address) error {
	switch item.Class {
	case core.AssetFungible:
		return f.assets.Transfer(ctx, item.Asset, from, to, item.Amount)
	case core.AssetUnique, core.AssetOther:
		return f.assets.TransferItem(ctx, item.Key(), from, to)
	case core.AssetSemiFungible:
		return f.assets.TransferSemi(ctx, item.Key(), from, to, item.Amount)
	default:
		return fmt.Errorf("%w: asset class %d", core.ErrUnsupportedAsset, item.Class)
	}
}

func (f *factory) setContents(ctx context.Context, vaultID uint64, items []core.VaultItem) {
	prev := f.contents[vaultID]
	f.contents[vaultID] = items
	atomic.Record(ctx, func() { f.contents[vaultID] = prev })
	f.save(ctx, vaultID)
}

func (f *factory) save(ctx context.Context, vaultID uint64) {
	if f.store == nil {
		return
	}

	atomic.Persist(ctx, fmt.Sprintf("vault:%s:%d", f.name, vaultID), func(tx *db.DB) error {
		contents, err := json.Marshal(f.contents[vaultID])
		if err != nil {
			return err
		}

		return f.store.SaveVault(ctx, tx, &core.VaultRecord{
			Factory:  f.address.Hex(),
			VaultID:  vaultID,
			Contents: contents,
		})
	})
}

// Restore load stored vaults, the next vault id follows the largest one
func (f *factory) Restore(ctx context.Context) error {
	if f.store == nil {
		return nil
	}

	vaults, err := f.store.ListVaults(ctx, f.address)
	if err != nil {
		return err
	}

	return f.exec.Run(ctx, func(ctx context.Context) error {
		for _, v := range vaults {
			items := []core.VaultItem{}
			if err := json.Unmarshal(v.Contents, &items); err != nil {
				return fmt.Errorf("vault %d: %w", v.VaultID, err)
			}

			f.contents[v.VaultID] = items
			if v.VaultID > f.lastID {
				f.lastID = v.VaultID
			}
		}

		logger.FromContext(ctx).WithField("factory", f.name).Infof("vault: %d vaults restored", len(vaults))
		return nil
	})
}

func normalize(item core.VaultItem) (core.VaultItem, error) {
	switch item.Class {
	case core.AssetUnique, core.AssetOther:
		item.Amount = decimal.New(1, 0)
	case core.AssetFungible:
		item.ID = 0
		fallthrough
	default:
		if !item.Amount.IsPositive() {
			return item, core.ErrInvalidAmount
		}
	}

	return item, nil
}

func sameItem(a, b core.VaultItem) bool {
	return a.Class == b.Class && a.Asset == b.Asset && a.ID == b.ID
}

func (f *factory) Deposit(ctx context.Context, caller common.Address, vaultID uint64, item core.VaultItem) error {
	item, err := normalize(item)
	if err != nil {
		return err
	}

	return f.exec.Run(ctx, func(ctx context.Context) error {
		items, ok := f.contents[vaultID]
		if !ok {
			return fmt.Errorf("%w: %d", core.ErrVaultNotFound, vaultID)
		}

		if err := f.move(ctx, item, caller, Account(f.address, vaultID)); err != nil {
			return err
		}

		next := make([]core.VaultItem, 0, len(items)+1)
		merged := false
		for _, it := range items {
			if sameItem(it, item) {
				it.Amount = it.Amount.Add(item.Amount)
				merged = true
			}

			next = append(next, it)
		}

		if !merged {
			next = append(next, item)
		}

		f.setContents(ctx, vaultID, next)

		logger.FromContext(ctx).WithFields(logrus.Fields{
			"vault": vaultID,
			"class": item.Class,
			"asset": item.Asset.Hex(),
		}).Debugln("vault: deposit")
		return nil
	})
}

func (f *factory) Withdraw(ctx context.Context, caller common.Address, vaultID uint64, item core.VaultItem, to common.Address) error {
	item, err := normalize(item)
	if err != nil {
		return err
	}

	return f.exec.Run(ctx, func(ctx context.Context) error {
		items, ok := f.contents[vaultID]
		if !ok {
			return fmt.Errorf("%w: %d", core.ErrVaultNotFound, vaultID)
		}

		owner, err := f.assets.OwnerOf(ctx, core.CollateralKey{Address: f.address, ID: vaultID})
		if err != nil {
			return err
		}

		if owner != caller {
			return fmt.Errorf("%w: vault %d", core.ErrNotOwner, vaultID)
		}

		next := make([]core.VaultItem, 0, len(items))
		found := false
		for _, it := range items {
			if sameItem(it, item) {
				if it.Amount.LessThan(item.Amount) {
					return fmt.Errorf("%w: vault %d holds %s", core.ErrInsufficientBalance, vaultID, it.Amount)
				}

				found = true
				it.Amount = it.Amount.Sub(item.Amount)
				if it.Amount.IsZero() {
					continue
				}
			}

			next = append(next, it)
		}

		if !found {
			return fmt.Errorf("%w: %s not in vault %d", core.ErrItemNotFound, item.Key(), vaultID)
		}

		if err := f.move(ctx, item, Account(f.address, vaultID), to); err != nil {
			return err
		}

		f.setContents(ctx, vaultID, next)
		return nil
	})
}

func (f *factory) Contents(ctx context.Context, vaultID uint64) ([]core.VaultItem, error) {
	var (
		items []core.VaultItem
		ok    bool
	)

	_ = f.exec.View(ctx, func(ctx context.Context) error {
		var src []core.VaultItem
		src, ok = f.contents[vaultID]
		items = append(items, src...)
		return nil
	})

	if !ok {
		return nil, fmt.Errorf("%w: %d", core.ErrVaultNotFound, vaultID)
	}

	return items, nil
}
