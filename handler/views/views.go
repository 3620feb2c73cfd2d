package views

import (
	"github.com/shopspring/decimal"
)

// Default default view
type Default struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// DefaultSuccess default success view
var DefaultSuccess = Default{
	Code:    0,
	Message: "success",
}

// Created id of a new loan
type Created struct {
	LoanID uint64 `json:"loan_id"`
}

// Nonce nonce state of a signer
type Nonce struct {
	Signer string `json:"signer"`
	Nonce  uint64 `json:"nonce"`
	Used   bool   `json:"used"`
}

// Collateral lock state of an item
type Collateral struct {
	Address string `json:"address"`
	ID      uint64 `json:"id"`
	Locked  bool   `json:"locked"`
}

// Fee origination fee and collected fees of a currency
type Fee struct {
	OriginationFeeBps uint64           `json:"origination_fee_bps"`
	Currency          string           `json:"currency,omitempty"`
	Collected         *decimal.Decimal `json:"collected,omitempty"`
}
