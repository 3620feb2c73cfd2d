package cmd

import (
	"time"

	"pledge/core"
	"pledge/store/approval"
	assetstore "pledge/store/asset"
	ledgerstore "pledge/store/ledger"
	"pledge/store/loan"
	notestore "pledge/store/note"
	vaultstore "pledge/store/vault"

	"github.com/fox-one/pkg/property"
	"github.com/fox-one/pkg/store/db"
	propertystore "github.com/fox-one/pkg/store/property"
	"github.com/shopspring/decimal"
)

func provideDatabase() *db.DB {
	return db.MustOpen(cfg.DB)
}

func provideConfig() *core.Config {
	return &cfg
}

// ---------------store-----------------------------------------

func providePropertyStore(db *db.DB) property.Store {
	return propertystore.New(db)
}

func provideLoanStore(db *db.DB) core.LoanStore {
	return loan.Cache(loan.New(db), time.Minute)
}

func provideLedgerStore(db *db.DB) core.LedgerStore {
	return ledgerstore.New(db)
}

func provideNoteStore(db *db.DB) core.NoteStore {
	return notestore.New(db)
}

func provideAssetStore(db *db.DB) core.AssetStore {
	return assetstore.New(db)
}

func provideVaultStore(db *db.DB) core.VaultStore {
	return vaultstore.New(db)
}

func provideApprovalStore(db *db.DB) core.ApprovalStore {
	return approval.New(db)
}

// ---------------genesis---------------------------------------

func provideGenesis() []core.Allocation {
	allocations := make([]core.Allocation, 0, len(cfg.Genesis))
	for _, g := range cfg.Genesis {
		allocations = append(allocations, g.Allocation())
	}

	return allocations
}

func provideFlashLiquidity() map[string]decimal.Decimal {
	liquidity := make(map[string]decimal.Decimal, len(cfg.Flash.Liquidity))
	for _, l := range cfg.Flash.Liquidity {
		amount, err := decimal.NewFromString(l.Amount)
		if err != nil {
			panic(err)
		}

		liquidity[l.Currency] = amount
	}

	return liquidity
}
