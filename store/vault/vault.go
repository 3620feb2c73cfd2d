package vault

import (
	"context"

	"pledge/core"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fox-one/pkg/store/db"
)

type vaultStore struct {
	db *db.DB
}

// New new vault store
func New(db *db.DB) core.VaultStore {
	return &vaultStore{db: db}
}

func init() {
	db.RegisterMigrate(func(db *db.DB) error {
		tx := db.Update().Model(core.VaultRecord{})
		if err := tx.AutoMigrate(core.VaultRecord{}).Error; err != nil {
			return err
		}

		return nil
	})
}

func (s *vaultStore) SaveVault(ctx context.Context, tx *db.DB, vault *core.VaultRecord) error {
	if tx == nil {
		tx = s.db
	}

	record := core.VaultRecord{Factory: vault.Factory, VaultID: vault.VaultID}
	return tx.Update().
		Where("factory = ? and vault_id = ?", vault.Factory, vault.VaultID).
		Assign(map[string]interface{}{"contents": string(vault.Contents)}).
		FirstOrCreate(&record).Error
}

func (s *vaultStore) ListVaults(ctx context.Context, factory common.Address) ([]*core.VaultRecord, error) {
	var vaults []*core.VaultRecord
	if err := s.db.View().Where("factory = ?", factory.Hex()).Order("vault_id").Find(&vaults).Error; err != nil {
		return nil, err
	}

	return vaults, nil
}
