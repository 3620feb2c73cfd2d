package note

import (
	"context"
	"fmt"
	"sort"

	"pledge/core"
	"pledge/internal/atomic"
	"pledge/pkg/id"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fox-one/pkg/logger"
	"github.com/fox-one/pkg/store/db"
)

type registry struct {
	name    string
	address common.Address
	exec    *atomic.Executor
	store   core.NoteStore
	owners  map[uint64]common.Address
	loans   map[uint64]uint64
}

// New new note registry, note ids equal the loan ids they were minted for.
// Notes are kept in memory only when store is nil.
func New(exec *atomic.Executor, store core.NoteStore, name string) core.NoteRegistry {
	return &registry{
		name:    name,
		address: id.Address("note:" + name),
		exec:    exec,
		store:   store,
		owners:  make(map[uint64]common.Address),
		loans:   make(map[uint64]uint64),
	}
}

func (s *registry) Address() common.Address {
	return s.address
}

// save queue the note's final state, a burned note is deleted
func (s *registry) save(ctx context.Context, noteID uint64) {
	if s.store == nil {
		return
	}

	atomic.Persist(ctx, fmt.Sprintf("note:%s:%d", s.name, noteID), func(tx *db.DB) error {
		owner, ok := s.owners[noteID]
		if !ok {
			return s.store.DeleteNote(ctx, tx, s.name, noteID)
		}

		return s.store.SaveNote(ctx, tx, &core.NoteRecord{
			Registry: s.name,
			NoteID:   noteID,
			LoanID:   s.loans[noteID],
			Owner:    owner.Hex(),
		})
	})
}

func (s *registry) Restore(ctx context.Context) error {
	if s.store == nil {
		return nil
	}

	notes, err := s.store.ListNotes(ctx, s.name)
	if err != nil {
		return err
	}

	return s.exec.Run(ctx, func(ctx context.Context) error {
		for _, n := range notes {
			s.owners[n.NoteID] = common.HexToAddress(n.Owner)
			s.loans[n.NoteID] = n.LoanID
		}

		logger.FromContext(ctx).WithField("registry", s.name).Infof("note: %d notes restored", len(notes))
		return nil
	})
}

func (s *registry) Mint(ctx context.Context, owner common.Address, loanID uint64) (uint64, error) {
	noteID := loanID
	err := s.exec.Run(ctx, func(ctx context.Context) error {
		if _, ok := s.owners[noteID]; ok {
			return fmt.Errorf("%w: %s note %d exists", core.ErrOperationForbidden, s.name, noteID)
		}

		s.owners[noteID] = owner
		s.loans[noteID] = loanID
		atomic.Record(ctx, func() {
			delete(s.owners, noteID)
			delete(s.loans, noteID)
		})

		s.save(ctx, noteID)
		return nil
	})

	return noteID, err
}

func (s *registry) Burn(ctx context.Context, noteID uint64) error {
	return s.exec.Run(ctx, func(ctx context.Context) error {
		owner, ok := s.owners[noteID]
		if !ok {
			return fmt.Errorf("%w: %s note %d", core.ErrNoteNotFound, s.name, noteID)
		}

		loanID := s.loans[noteID]
		delete(s.owners, noteID)
		delete(s.loans, noteID)
		atomic.Record(ctx, func() {
			s.owners[noteID] = owner
			s.loans[noteID] = loanID
		})

		s.save(ctx, noteID)
		return nil
	})
}

func (s *registry) OwnerOf(ctx context.Context, noteID uint64) (common.Address, error) {
	var (
		owner common.Address
		ok    bool
	)

	_ = s.exec.View(ctx, func(ctx context.Context) error {
		owner, ok = s.owners[noteID]
		return nil
	})

	if !ok {
		return common.Address{}, fmt.Errorf("%w: %s note %d", core.ErrNoteNotFound, s.name, noteID)
	}

	return owner, nil
}

func (s *registry) LoanIDByNoteID(ctx context.Context, noteID uint64) (uint64, error) {
	var (
		loanID uint64
		ok     bool
	)

	_ = s.exec.View(ctx, func(ctx context.Context) error {
		loanID, ok = s.loans[noteID]
		return nil
	})

	if !ok {
		return 0, fmt.Errorf("%w: %s note %d", core.ErrNoteNotFound, s.name, noteID)
	}

	return loanID, nil
}

func (s *registry) Transfer(ctx context.Context, from, to common.Address, noteID uint64) error {
	return s.exec.Run(ctx, func(ctx context.Context) error {
		owner, ok := s.owners[noteID]
		if !ok {
			return fmt.Errorf("%w: %s note %d", core.ErrNoteNotFound, s.name, noteID)
		}

		if owner != from {
			return fmt.Errorf("%w: %s note %d", core.ErrNotOwner, s.name, noteID)
		}

		s.owners[noteID] = to
		atomic.Record(ctx, func() { s.owners[noteID] = owner })
		s.save(ctx, noteID)
		return nil
	})
}

func (s *registry) NotesOf(ctx context.Context, owner common.Address) []uint64 {
	var ids []uint64
	_ = s.exec.View(ctx, func(ctx context.Context) error {
		for noteID, o := range s.owners {
			if o == owner {
				ids = append(ids, noteID)
			}
		}

		return nil
	})

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
