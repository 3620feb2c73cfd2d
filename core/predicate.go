package core

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// PredicateKind item predicate kind
type PredicateKind int

const (
	_ PredicateKind = iota
	// PredicateExact a specific item
	PredicateExact
	// PredicateRange any item of the asset with an id in [MinID, MaxID]
	PredicateRange
	// PredicateBalance at least Amount of the asset
	PredicateBalance
)

// Predicate verifier address and its encoded item list
type Predicate struct {
	Verifier common.Address `json:"verifier"`
	Data     []byte         `json:"data"`
}

// PredicateItem an item the collateral bundle must contain
type PredicateItem struct {
	Kind   PredicateKind `msgpack:"k" json:"kind"`
	Class  AssetClass    `msgpack:"c" json:"class"`
	Asset  string        `msgpack:"a" json:"asset"`
	ID     uint64        `msgpack:"i" json:"id,omitempty"`
	MinID  uint64        `msgpack:"l" json:"min_id,omitempty"`
	MaxID  uint64        `msgpack:"u" json:"max_id,omitempty"`
	Amount string        `msgpack:"m" json:"amount,omitempty"`
}

// PredicateVerifier checks predicate data against a collateral bundle
type PredicateVerifier interface {
	Address() common.Address
	Verify(ctx context.Context, data []byte, collateral CollateralKey) (bool, error)
}
