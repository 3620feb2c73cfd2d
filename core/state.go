package core

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fox-one/pkg/store/db"
	"github.com/jmoiron/sqlx/types"
	"github.com/shopspring/decimal"
)

// Durable protocol state. Services keep their working set in memory and
// queue writes on the executor, the stores below receive them inside the
// commit transaction and are read back once at startup.

// LoanRecord ledger record of a loan, Data is the json encoded Loan
type LoanRecord struct {
	ID        int64          `sql:"PRIMARY_KEY;AUTO_INCREMENT" json:"-"`
	LoanID    uint64         `sql:"unique_index:idx_loan_records_loan_id" json:"loan_id"`
	State     LoanState      `sql:"index:idx_loan_records_state" json:"state"`
	Data      types.JSONText `sql:"type:TEXT" json:"data"`
	Version   int64          `sql:"default:0" json:"version"`
	CreatedAt time.Time      `sql:"default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time      `sql:"default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// NonceRecord a used signer nonce
type NonceRecord struct {
	ID        int64     `sql:"PRIMARY_KEY;AUTO_INCREMENT" json:"-"`
	Signer    string    `sql:"size:42;unique_index:idx_nonce_records_signer_nonce" json:"signer"`
	Nonce     uint64    `sql:"unique_index:idx_nonce_records_signer_nonce" json:"nonce"`
	CreatedAt time.Time `sql:"default:CURRENT_TIMESTAMP" json:"created_at"`
}

// FeeRecord origination fees collected in a currency and not yet withdrawn
type FeeRecord struct {
	ID        int64           `sql:"PRIMARY_KEY;AUTO_INCREMENT" json:"-"`
	Currency  string          `sql:"size:42;unique_index:idx_fee_records_currency" json:"currency"`
	Amount    decimal.Decimal `sql:"type:decimal(65,0)" json:"amount"`
	UpdatedAt time.Time       `sql:"default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// LedgerStore durable ledger state
type LedgerStore interface {
	SaveLoan(ctx context.Context, tx *db.DB, loan *Loan) error
	ListLoans(ctx context.Context) ([]*Loan, error)
	SaveNonce(ctx context.Context, tx *db.DB, signer common.Address, nonce uint64) error
	ListNonces(ctx context.Context) ([]*NonceRecord, error)
	// SaveFee zero amount deletes the record
	SaveFee(ctx context.Context, tx *db.DB, currency common.Address, amount decimal.Decimal) error
	ListFees(ctx context.Context) ([]*FeeRecord, error)
}

// NoteRecord holder of a promissory note
type NoteRecord struct {
	ID       int64  `sql:"PRIMARY_KEY;AUTO_INCREMENT" json:"-"`
	Registry string `sql:"size:64;unique_index:idx_note_records_registry_note" json:"registry"`
	NoteID   uint64 `sql:"unique_index:idx_note_records_registry_note" json:"note_id"`
	LoanID   uint64 `json:"loan_id"`
	Owner    string `sql:"size:42;index:idx_note_records_owner" json:"owner"`
}

// NoteStore durable note registries, notes are keyed by registry name
type NoteStore interface {
	SaveNote(ctx context.Context, tx *db.DB, note *NoteRecord) error
	DeleteNote(ctx context.Context, tx *db.DB, registry string, noteID uint64) error
	ListNotes(ctx context.Context, registry string) ([]*NoteRecord, error)
}

// BalanceRecord fungible balance, TokenID is zero for currencies
type BalanceRecord struct {
	ID      int64           `sql:"PRIMARY_KEY;AUTO_INCREMENT" json:"-"`
	Asset   string          `sql:"size:42;unique_index:idx_balance_records_key" json:"asset"`
	TokenID uint64          `sql:"unique_index:idx_balance_records_key" json:"token_id"`
	Owner   string          `sql:"size:42;unique_index:idx_balance_records_key" json:"owner"`
	Amount  decimal.Decimal `sql:"type:decimal(65,0)" json:"amount"`
}

// ItemRecord owner of a unique item
type ItemRecord struct {
	ID      int64  `sql:"PRIMARY_KEY;AUTO_INCREMENT" json:"-"`
	Asset   string `sql:"size:42;unique_index:idx_item_records_key" json:"asset"`
	TokenID uint64 `sql:"unique_index:idx_item_records_key" json:"token_id"`
	Owner   string `sql:"size:42;index:idx_item_records_owner" json:"owner"`
}

// AssetStore durable balances and item owners
type AssetStore interface {
	// SaveBalance zero amount deletes the record
	SaveBalance(ctx context.Context, tx *db.DB, balance *BalanceRecord) error
	ListBalances(ctx context.Context) ([]*BalanceRecord, error)
	SaveItem(ctx context.Context, tx *db.DB, item *ItemRecord) error
	ListItems(ctx context.Context) ([]*ItemRecord, error)
}

// VaultRecord contents of a vault, json encoded []VaultItem
type VaultRecord struct {
	ID       int64          `sql:"PRIMARY_KEY;AUTO_INCREMENT" json:"-"`
	Factory  string         `sql:"size:42;unique_index:idx_vault_records_key" json:"factory"`
	VaultID  uint64         `sql:"unique_index:idx_vault_records_key" json:"vault_id"`
	Contents types.JSONText `sql:"type:TEXT" json:"contents"`
}

// VaultStore durable vault contents
type VaultStore interface {
	SaveVault(ctx context.Context, tx *db.DB, vault *VaultRecord) error
	ListVaults(ctx context.Context, factory common.Address) ([]*VaultRecord, error)
}

// ApprovalRecord signer approved to act for owner
type ApprovalRecord struct {
	ID     int64  `sql:"PRIMARY_KEY;AUTO_INCREMENT" json:"-"`
	Owner  string `sql:"size:42;unique_index:idx_approval_records_pair" json:"owner"`
	Signer string `sql:"size:42;unique_index:idx_approval_records_pair" json:"signer"`
}

// ApprovalStore durable approvals
type ApprovalStore interface {
	SaveApproval(ctx context.Context, tx *db.DB, owner, signer common.Address, approved bool) error
	ListApprovals(ctx context.Context) ([]*ApprovalRecord, error)
}
