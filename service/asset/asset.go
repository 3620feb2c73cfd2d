package asset

import (
	"context"
	"fmt"

	"pledge/core"
	"pledge/internal/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fox-one/pkg/logger"
	"github.com/fox-one/pkg/store/db"
	"github.com/shopspring/decimal"
)

type balanceKey struct {
	asset common.Address
	id    uint64
	owner common.Address
}

type registry struct {
	exec      *atomic.Executor
	store     core.AssetStore
	balances  map[balanceKey]decimal.Decimal
	owners    map[core.CollateralKey]common.Address
	receivers map[common.Address]core.ItemReceiver
}

// New new asset registry, balances stay in memory when store is nil
func New(exec *atomic.Executor, store core.AssetStore) core.AssetService {
	return &registry{
		exec:      exec,
		store:     store,
		balances:  make(map[balanceKey]decimal.Decimal),
		owners:    make(map[core.CollateralKey]common.Address),
		receivers: make(map[common.Address]core.ItemReceiver),
	}
}

// Genesis apply allocations
func Genesis(ctx context.Context, s core.AssetService, allocations []core.Allocation) error {
	for _, a := range allocations {
		var err error
		switch a.Class {
		case core.AssetFungible:
			err = s.Mint(ctx, a.Asset, a.Owner, a.Amount)
		case core.AssetUnique, core.AssetOther:
			err = s.MintItem(ctx, core.CollateralKey{Address: a.Asset, ID: a.ID}, a.Owner)
		case core.AssetSemiFungible:
			err = s.MintSemi(ctx, core.CollateralKey{Address: a.Asset, ID: a.ID}, a.Owner, a.Amount)
		default:
			err = fmt.Errorf("genesis: unknown asset class %d", a.Class)
		}

		if err != nil {
			return err
		}
	}

	return nil
}

// Restore load stored balances and item owners, reports whether the store
// held any state so genesis allocations are applied on first boot only
func (s *registry) Restore(ctx context.Context) (bool, error) {
	if s.store == nil {
		return false, nil
	}

	balances, err := s.store.ListBalances(ctx)
	if err != nil {
		return false, err
	}

	items, err := s.store.ListItems(ctx)
	if err != nil {
		return false, err
	}

	err = s.exec.Run(ctx, func(ctx context.Context) error {
		for _, b := range balances {
			k := balanceKey{asset: common.HexToAddress(b.Asset), id: b.TokenID, owner: common.HexToAddress(b.Owner)}
			s.balances[k] = b.Amount
		}

		for _, item := range items {
			s.owners[core.CollateralKey{Address: common.HexToAddress(item.Asset), ID: item.TokenID}] = common.HexToAddress(item.Owner)
		}

		logger.FromContext(ctx).Infof("asset: %d balances, %d items restored", len(balances), len(items))
		return nil
	})

	return len(balances)+len(items) > 0, err
}

func (s *registry) SetReceiver(addr common.Address, receiver core.ItemReceiver) {
	if receiver == nil {
		delete(s.receivers, addr)
		return
	}

	s.receivers[addr] = receiver
}

func (s *registry) balance(k balanceKey) decimal.Decimal {
	if v, ok := s.balances[k]; ok {
		return v
	}

	return decimal.Zero
}

func (s *registry) setBalance(ctx context.Context, k balanceKey, v decimal.Decimal) {
	prev, existed := s.balances[k]
	atomic.Record(ctx, func() {
		if existed {
			s.balances[k] = prev
		} else {
			delete(s.balances, k)
		}
	})

	if v.IsZero() {
		delete(s.balances, k)
	} else {
		s.balances[k] = v
	}

	if s.store != nil {
		atomic.Persist(ctx, fmt.Sprintf("asset:balance:%s:%d:%s", k.asset.Hex(), k.id, k.owner.Hex()), func(tx *db.DB) error {
			return s.store.SaveBalance(ctx, tx, &core.BalanceRecord{
				Asset:   k.asset.Hex(),
				TokenID: k.id,
				Owner:   k.owner.Hex(),
				Amount:  s.balance(k),
			})
		})
	}
}

func (s *registry) move(ctx context.Context, from, to balanceKey, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return core.ErrInvalidAmount
	}

	if amount.IsZero() || from == to {
		return nil
	}

	bal := s.balance(from)
	if bal.LessThan(amount) {
		return fmt.Errorf("%w: %s has %s, needs %s", core.ErrInsufficientBalance, from.owner.Hex(), bal, amount)
	}

	s.setBalance(ctx, from, bal.Sub(amount))
	s.setBalance(ctx, to, s.balance(to).Add(amount))
	return nil
}

func (s *registry) BalanceOf(ctx context.Context, currency, owner common.Address) decimal.Decimal {
	var v decimal.Decimal
	_ = s.exec.View(ctx, func(ctx context.Context) error {
		v = s.balance(balanceKey{asset: currency, owner: owner})
		return nil
	})

	return v
}

func (s *registry) Transfer(ctx context.Context, currency, from, to common.Address, amount decimal.Decimal) error {
	return s.exec.Run(ctx, func(ctx context.Context) error {
		return s.move(ctx,
			balanceKey{asset: currency, owner: from},
			balanceKey{asset: currency, owner: to},
			amount,
		)
	})
}

func (s *registry) Mint(ctx context.Context, currency, to common.Address, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return core.ErrInvalidAmount
	}

	return s.exec.Run(ctx, func(ctx context.Context) error {
		k := balanceKey{asset: currency, owner: to}
		s.setBalance(ctx, k, s.balance(k).Add(amount))
		return nil
	})
}

func (s *registry) OwnerOf(ctx context.Context, key core.CollateralKey) (common.Address, error) {
	var (
		owner common.Address
		ok    bool
	)

	_ = s.exec.View(ctx, func(ctx context.Context) error {
		owner, ok = s.owners[key]
		return nil
	})

	if !ok {
		return common.Address{}, fmt.Errorf("%w: %s", core.ErrItemNotFound, key)
	}

	return owner, nil
}

func (s *registry) setOwner(ctx context.Context, key core.CollateralKey, owner common.Address) {
	prev, existed := s.owners[key]
	atomic.Record(ctx, func() {
		if existed {
			s.owners[key] = prev
		} else {
			delete(s.owners, key)
		}
	})

	s.owners[key] = owner

	if s.store != nil {
		atomic.Persist(ctx, "asset:item:"+key.String(), func(tx *db.DB) error {
			return s.store.SaveItem(ctx, tx, &core.ItemRecord{
				Asset:   key.Address.Hex(),
				TokenID: key.ID,
				Owner:   s.owners[key].Hex(),
			})
		})
	}
}

func (s *registry) TransferItem(ctx context.Context, key core.CollateralKey, from, to common.Address) error {
	return s.exec.Run(ctx, func(ctx context.Context) error {
		owner, ok := s.owners[key]
		if !ok {
			return fmt.Errorf("%w: %s", core.ErrItemNotFound, key)
		}

		if owner != from {
			return fmt.Errorf("%w: %s owned by %s", core.ErrNotOwner, key, owner.Hex())
		}

		s.setOwner(ctx, key, to)

		if receiver, ok := s.receivers[to]; ok {
			if err := receiver(ctx, key, from); err != nil {
				logger.FromContext(ctx).WithError(err).Infoln("asset: receiver rejected", key)
				return err
			}
		}

		return nil
	})
}

func (s *registry) MintItem(ctx context.Context, key core.CollateralKey, to common.Address) error {
	return s.exec.Run(ctx, func(ctx context.Context) error {
		if owner, ok := s.owners[key]; ok {
			return fmt.Errorf("%w: %s already minted to %s", core.ErrOperationForbidden, key, owner.Hex())
		}

		s.setOwner(ctx, key, to)
		return nil
	})
}

func (s *registry) BalanceOfSemi(ctx context.Context, key core.CollateralKey, owner common.Address) decimal.Decimal {
	var v decimal.Decimal
	_ = s.exec.View(ctx, func(ctx context.Context) error {
		v = s.balance(balanceKey{asset: key.Address, id: key.ID, owner: owner})
		return nil
	})

	return v
}

func (s *registry) TransferSemi(ctx context.Context, key core.CollateralKey, from, to common.Address, amount decimal.Decimal) error {
	return s.exec.Run(ctx, func(ctx context.Context) error {
		return s.move(ctx,
			balanceKey{asset: key.Address, id: key.ID, owner: from},
			balanceKey{asset: key.Address, id: key.ID, owner: to},
			amount,
		)
	})
}

func (s *registry) MintSemi(ctx context.Context, key core.CollateralKey, to common.Address, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return core.ErrInvalidAmount
	}

	return s.exec.Run(ctx, func(ctx context.Context) error {
		k := balanceKey{asset: key.Address, id: key.ID, owner: to}
		s.setBalance(ctx, k, s.balance(k).Add(amount))
		return nil
	})
}
