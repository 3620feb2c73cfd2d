package loan

import (
	"context"
	"fmt"
	"time"

	"pledge/core"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fox-one/pkg/store"
	"github.com/fox-one/pkg/store/db"
	"github.com/jinzhu/gorm"
)

type loanStore struct {
	db *db.DB
}

// New new loan archive store
func New(db *db.DB) core.LoanStore {
	return &loanStore{db: db}
}

func init() {
	db.RegisterMigrate(func(db *db.DB) error {
		tx := db.Update().Model(core.LoanArchive{})
		if err := tx.AutoMigrate(core.LoanArchive{}).Error; err != nil {
			return err
		}

		return nil
	})
}

// Save insert the archive or update the stored one with a bumped version
func (s *loanStore) Save(ctx context.Context, archive *core.LoanArchive) error {
	return s.db.Tx(func(tx *db.DB) error {
		var existing core.LoanArchive
		err := tx.Update().Where("loan_id = ?", archive.LoanID).First(&existing).Error
		if store.IsErrNotFound(err) {
			return tx.Update().Create(archive).Error
		}

		if err != nil {
			return err
		}

		archive.ID = existing.ID
		archive.Version = existing.Version + 1
		archive.CreatedAt = existing.CreatedAt
		archive.UpdatedAt = time.Now()

		update := tx.Update().Model(core.LoanArchive{}).
			Where("loan_id = ? and version = ?", archive.LoanID, existing.Version).
			Updates(map[string]interface{}{
				"state":             archive.State,
				"borrower":          archive.Borrower,
				"lender":            archive.Lender,
				"balance":           archive.Balance,
				"balance_paid":      archive.BalancePaid,
				"late_fees_accrued": archive.LateFeesAccrued,
				"version":           gorm.Expr("version + 1"),
				"updated_at":        archive.UpdatedAt,
			})
		if update.Error != nil {
			return update.Error
		}

		if update.RowsAffected == 0 {
			return fmt.Errorf("loan archive %d: version %d changed", archive.LoanID, existing.Version)
		}

		return nil
	})
}

// Find returns an empty archive when the loan was never archived
func (s *loanStore) Find(ctx context.Context, loanID uint64) (*core.LoanArchive, error) {
	var archive core.LoanArchive
	if err := s.db.View().Where("loan_id = ?", loanID).First(&archive).Error; err != nil {
		if store.IsErrNotFound(err) {
			return &core.LoanArchive{}, nil
		}

		return nil, err
	}

	return &archive, nil
}

func (s *loanStore) List(ctx context.Context, filter core.LoanFilter) ([]*core.LoanArchive, error) {
	query := s.db.View().Where("loan_id > ?", filter.Offset)
	if filter.State > 0 {
		query = query.Where("state = ?", filter.State)
	}

	if filter.Borrower != (common.Address{}) {
		query = query.Where("borrower = ?", filter.Borrower.Hex())
	}

	if filter.Lender != (common.Address{}) {
		query = query.Where("lender = ?", filter.Lender.Hex())
	}

	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var archives []*core.LoanArchive
	if err := query.Order("loan_id").Find(&archives).Error; err != nil {
		return nil, err
	}

	return archives, nil
}
