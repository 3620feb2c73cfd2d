package asset

import (
	"context"

	"pledge/core"

	"github.com/fox-one/pkg/store/db"
)

type assetStore struct {
	db *db.DB
}

// New new asset store
func New(db *db.DB) core.AssetStore {
	return &assetStore{db: db}
}

func init() {
	db.RegisterMigrate(func(db *db.DB) error {
		for _, model := range []interface{}{core.BalanceRecord{}, core.ItemRecord{}} {
			tx := db.Update().Model(model)
			if err := tx.AutoMigrate(model).Error; err != nil {
				return err
			}
		}

		return nil
	})
}

func (s *assetStore) use(tx *db.DB) *db.DB {
	if tx == nil {
		return s.db
	}

	return tx
}

func (s *assetStore) SaveBalance(ctx context.Context, tx *db.DB, balance *core.BalanceRecord) error {
	query := s.use(tx).Update().Where("asset = ? and token_id = ? and owner = ?", balance.Asset, balance.TokenID, balance.Owner)
	if balance.Amount.IsZero() {
		return query.Delete(core.BalanceRecord{}).Error
	}

	record := core.BalanceRecord{Asset: balance.Asset, TokenID: balance.TokenID, Owner: balance.Owner}
	return query.Assign(map[string]interface{}{"amount": balance.Amount}).FirstOrCreate(&record).Error
}

func (s *assetStore) ListBalances(ctx context.Context) ([]*core.BalanceRecord, error) {
	var balances []*core.BalanceRecord
	if err := s.db.View().Find(&balances).Error; err != nil {
		return nil, err
	}

	return balances, nil
}

func (s *assetStore) SaveItem(ctx context.Context, tx *db.DB, item *core.ItemRecord) error {
	record := core.ItemRecord{Asset: item.Asset, TokenID: item.TokenID}
	return s.use(tx).Update().
		Where("asset = ? and token_id = ?", item.Asset, item.TokenID).
		Assign(map[string]interface{}{"owner": item.Owner}).
		FirstOrCreate(&record).Error
}

func (s *assetStore) ListItems(ctx context.Context) ([]*core.ItemRecord, error) {
	var items []*core.ItemRecord
	if err := s.db.View().Find(&items).Error; err != nil {
		return nil, err
	}

	return items, nil
}
