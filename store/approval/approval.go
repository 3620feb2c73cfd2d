package approval

import (
	"context"

	"pledge/core"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fox-one/pkg/store/db"
)

type approvalStore struct {
	db *db.DB
}

// New new approval store
func New(db *db.DB) core.ApprovalStore {
	return &approvalStore{db: db}
}

func init() {
	db.RegisterMigrate(func(db *db.DB) error {
		tx := db.Update().Model(core.ApprovalRecord{})
		if err := tx.AutoMigrate(core.ApprovalRecord{}).Error; err != nil {
			return err
		}

		return nil
	})
}

func (s *approvalStore) SaveApproval(ctx context.Context, tx *db.DB, owner, signer common.Address, approved bool) error {
	if tx == nil {
		tx = s.db
	}

	record := core.ApprovalRecord{Owner: owner.Hex(), Signer: signer.Hex()}
	query := tx.Update().Where("owner = ? and signer = ?", record.Owner, record.Signer)
	if !approved {
		return query.Delete(core.ApprovalRecord{}).Error
	}

	return query.FirstOrCreate(&record).Error
}

func (s *approvalStore) ListApprovals(ctx context.Context) ([]*core.ApprovalRecord, error) {
	var approvals []*core.ApprovalRecord
	if err := s.db.View().Find(&approvals).Error; err != nil {
		return nil, err
	}

	return approvals, nil
}
