package core

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// Domain typed data signing domain
type Domain struct {
	Name              string         `json:"name"`
	Version           string         `json:"version"`
	ChainID           uint64         `json:"chain_id"`
	VerifyingContract common.Address `json:"verifying_contract"`
}

// SignatureService typed hashing and signer recovery
type SignatureService interface {
	// Digest typed data digest of the terms, predicates are bound into the
	// digest when present
	Digest(terms LoanTerms, predicates []Predicate) common.Hash
	Recover(digest common.Hash, sig []byte) (common.Address, error)
	// IsValidSignature contract signature check for programmable accounts
	IsValidSignature(ctx context.Context, account common.Address, digest common.Hash, sig []byte) bool
}
