package note

import (
	"context"

	"pledge/core"

	"github.com/fox-one/pkg/store/db"
)

type noteStore struct {
	db *db.DB
}

// New new note store
func New(db *db.DB) core.NoteStore {
	return &noteStore{db: db}
}

func init() {
	db.RegisterMigrate(func(db *db.DB) error {
		tx := db.Update().Model(core.NoteRecord{})
		if err := tx.AutoMigrate(core.NoteRecord{}).Error; err != nil {
			return err
		}

		return nil
	})
}

func (s *noteStore) use(tx *db.DB) *db.DB {
	if tx == nil {
		return s.db
	}

	return tx
}

func (s *noteStore) SaveNote(ctx context.Context, tx *db.DB, note *core.NoteRecord) error {
	record := core.NoteRecord{Registry: note.Registry, NoteID: note.NoteID}
	return s.use(tx).Update().
		Where("registry = ? and note_id = ?", note.Registry, note.NoteID).
		Assign(map[string]interface{}{
			"loan_id": note.LoanID,
			"owner":   note.Owner,
		}).
		FirstOrCreate(&record).Error
}

func (s *noteStore) DeleteNote(ctx context.Context, tx *db.DB, registry string, noteID uint64) error {
	return s.use(tx).Update().
		Where("registry = ? and note_id = ?", registry, noteID).
		Delete(core.NoteRecord{}).Error
}

func (s *noteStore) ListNotes(ctx context.Context, registry string) ([]*core.NoteRecord, error) {
	var notes []*core.NoteRecord
	if err := s.db.View().Where("registry = ?", registry).Order("note_id").Find(&notes).Error; err != nil {
		return nil, err
	}

	return notes, nil
}
