package ledger

import (
	"context"
	"encoding/json"
	"time"

	"pledge/core"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fox-one/pkg/store"
	"github.com/fox-one/pkg/store/db"
	"github.com/shopspring/decimal"
)

type ledgerStore struct {
	db *db.DB
}

// New new ledger state store
func New(db *db.DB) core.LedgerStore {
	return &ledgerStore{db: db}
}

func init() {
	db.RegisterMigrate(func(db *db.DB) error {
		for _, model := range []interface{}{core.LoanRecord{}, core.NonceRecord{}, core.FeeRecord{}} {
			tx := db.Update().Model(model)
			if err := tx.AutoMigrate(model).Error; err != nil {
				return err
			}
		}

		return nil
	})
}

// use tx when the write joins a commit, the store's own handle otherwise
func (s *ledgerStore) use(tx *db.DB) *db.DB {
	if tx == nil {
		return s.db
	}

	return tx
}

func (s *ledgerStore) SaveLoan(ctx context.Context, tx *db.DB, loan *core.Loan) error {
	data, err := json.Marshal(loan)
	if err != nil {
		return err
	}

	tx = s.use(tx)

	var existing core.LoanRecord
	err = tx.Update().Where("loan_id = ?", loan.ID).First(&existing).Error
	if store.IsErrNotFound(err) {
		return tx.Update().Create(&core.LoanRecord{
			LoanID: loan.ID,
			State:  loan.State,
			Data:   data,
		}).Error
	}

	if err != nil {
		return err
	}

	return tx.Update().Model(&existing).Updates(map[string]interface{}{
		"state":      loan.State,
		"data":       string(data),
		"version":    existing.Version + 1,
		"updated_at": time.Now(),
	}).Error
}

func (s *ledgerStore) ListLoans(ctx context.Context) ([]*core.Loan, error) {
	var records []*core.LoanRecord
	if err := s.db.View().Order("loan_id").Find(&records).Error; err != nil {
		return nil, err
	}

	loans := make([]*core.Loan, 0, len(records))
	for _, r := range records {
		var loan core.Loan
		if err := json.Unmarshal(r.Data, &loan); err != nil {
			return nil, err
		}

		loans = append(loans, &loan)
	}

	return loans, nil
}

func (s *ledgerStore) SaveNonce(ctx context.Context, tx *db.DB, signer common.Address, nonce uint64) error {
	record := core.NonceRecord{Signer: signer.Hex(), Nonce: nonce}
	return s.use(tx).Update().Where("signer = ? and nonce = ?", record.Signer, nonce).FirstOrCreate(&record).Error
}

func (s *ledgerStore) ListNonces(ctx context.Context) ([]*core.NonceRecord, error) {
	var records []*core.NonceRecord
	if err := s.db.View().Find(&records).Error; err != nil {
		return nil, err
	}

	return records, nil
}

func (s *ledgerStore) SaveFee(ctx context.Context, tx *db.DB, currency common.Address, amount decimal.Decimal) error {
	query := s.use(tx).Update().Where("currency = ?", currency.Hex())
	if amount.IsZero() {
		return query.Delete(core.FeeRecord{}).Error
	}

	record := core.FeeRecord{Currency: currency.Hex()}
	return query.Assign(map[string]interface{}{
		"amount":     amount,
		"updated_at": time.Now(),
	}).FirstOrCreate(&record).Error
}

func (s *ledgerStore) ListFees(ctx context.Context) ([]*core.FeeRecord, error) {
	var records []*core.FeeRecord
	if err := s.db.View().Find(&records).Error; err != nil {
		return nil, err
	}

	return records, nil
}
