package atomic

import (
	"context"
	"errors"
	"sync"

	"github.com/fox-one/pkg/store/db"
)

// ErrReadOnly Run called from inside View
var ErrReadOnly = errors.New("atomic: write inside view")

type txKey struct{}

type write struct {
	key string
	fn  func(tx *db.DB) error
}

type tx struct {
	journal  []func()
	hooks    []func()
	writes   []write
	readOnly bool
}

func (t *tx) revert(snapshot int) {
	for i := len(t.journal) - 1; i >= snapshot; i-- {
		t.journal[i]()
	}

	t.journal = t.journal[:snapshot]
}

// Executor serializes state changing operations. Every mutation made inside
// Run records an undo entry; a failed Run reverts its own entries only, so
// a nested failure does not discard the effects of the enclosing operation
// unless the enclosing operation fails as well.
//
// Writes queued with Persist run when the outermost Run commits, inside one
// database transaction when the executor has a database. A failed write
// reverts the whole operation.
type Executor struct {
	mu sync.Mutex
	db *db.DB
}

// New new executor
func New() *Executor {
	return &Executor{}
}

// WithDB commit persisted writes through database
func (e *Executor) WithDB(database *db.DB) *Executor {
	e.db = database
	return e
}

// commit run each key once in queue order, the write reads the final state
func (e *Executor) commit(writes []write) error {
	if len(writes) == 0 {
		return nil
	}

	run := func(tx *db.DB) error {
		done := make(map[string]bool, len(writes))
		for _, w := range writes {
			if done[w.key] {
				continue
			}

			done[w.key] = true
			if err := w.fn(tx); err != nil {
				return err
			}
		}

		return nil
	}

	if e.db == nil {
		return run(nil)
	}

	return e.db.Tx(run)
}

// Run execute fn atomically
func (e *Executor) Run(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if t, ok := ctx.Value(txKey{}).(*tx); ok {
		if t.readOnly {
			return ErrReadOnly
		}

		snapshot, hooks, writes := len(t.journal), len(t.hooks), len(t.writes)
		defer func() {
			if r := recover(); r != nil {
				t.revert(snapshot)
				t.hooks = t.hooks[:hooks]
				t.writes = t.writes[:writes]
				panic(r)
			}

			if err != nil {
				t.revert(snapshot)
				t.hooks = t.hooks[:hooks]
				t.writes = t.writes[:writes]
			}
		}()

		return fn(ctx)
	}

	e.mu.Lock()
	t := &tx{}
	func() {
		defer func() {
			if r := recover(); r != nil {
				t.revert(0)
				e.mu.Unlock()
				panic(r)
			}
		}()

		err = fn(context.WithValue(ctx, txKey{}, t))
	}()

	if err == nil {
		err = e.commit(t.writes)
	}

	if err != nil {
		t.revert(0)
		e.mu.Unlock()
		return err
	}

	hooks := t.hooks
	e.mu.Unlock()

	for _, hook := range hooks {
		hook()
	}

	return nil
}

// View run fn under the executor lock, or directly when ctx already carries
// a running transaction. Views nest, Run inside a view fails with ErrReadOnly.
func (e *Executor) View(ctx context.Context, fn func(ctx context.Context) error) error {
	if InTx(ctx) {
		return fn(ctx)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(context.WithValue(ctx, txKey{}, &tx{readOnly: true}))
}

// InTx reports whether ctx carries a running transaction or view
func InTx(ctx context.Context) bool {
	_, ok := ctx.Value(txKey{}).(*tx)
	return ok
}

// Record append an undo entry to the running transaction, ignored outside Run
func Record(ctx context.Context, undo func()) {
	if t, ok := ctx.Value(txKey{}).(*tx); ok {
		t.journal = append(t.journal, undo)
	}
}

// Persist queue a write for key, run once at commit with the database
// transaction, or a nil tx when the executor has no database. Writes of a
// failed nested Run are dropped. Ignored outside Run.
func Persist(ctx context.Context, key string, fn func(tx *db.DB) error) {
	if t, ok := ctx.Value(txKey{}).(*tx); ok && !t.readOnly {
		t.writes = append(t.writes, write{key: key, fn: fn})
	}
}

// AfterCommit queue fn to run once the outermost transaction commits,
// outside Run fn is called immediately
func AfterCommit(ctx context.Context, fn func()) {
	if t, ok := ctx.Value(txKey{}).(*tx); ok {
		t.hooks = append(t.hooks, fn)
		return
	}

	fn()
}
