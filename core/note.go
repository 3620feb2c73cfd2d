package core

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// NoteRegistry promissory notes, the holder of a note is the current
// borrower or lender of record
type NoteRegistry interface {
	Address() common.Address
	Mint(ctx context.Context, owner common.Address, loanID uint64) (uint64, error)
	Burn(ctx context.Context, noteID uint64) error
	OwnerOf(ctx context.Context, noteID uint64) (common.Address, error)
	LoanIDByNoteID(ctx context.Context, noteID uint64) (uint64, error)
	Transfer(ctx context.Context, from, to common.Address, noteID uint64) error
	NotesOf(ctx context.Context, owner common.Address) []uint64
	Restore(ctx context.Context) error
}
