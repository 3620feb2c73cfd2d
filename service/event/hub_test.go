package event

import (
	"context"
	"testing"

	"pledge/core"

	"github.com/stretchr/testify/assert"
)

func TestHub(t *testing.T) {
	ctx := context.Background()
	hub := New(1)

	a := hub.Subscribe()
	b := hub.Subscribe()
	defer b.Cancel()

	hub.Publish(ctx, core.Event{Kind: core.EventLoanStarted, LoanID: 1})
	assert.Equal(t, uint64(1), (<-a.C).LoanID)
	assert.Equal(t, uint64(1), (<-b.C).LoanID)
	assert.Equal(t, int64(0), a.Dropped())

	// buffers are full after event 2, events 3 and 4 are dropped
	hub.Publish(ctx, core.Event{Kind: core.EventLoanRepaid, LoanID: 2})
	hub.Publish(ctx, core.Event{Kind: core.EventLoanRepaid, LoanID: 3})
	hub.Publish(ctx, core.Event{Kind: core.EventLoanRepaid, LoanID: 4})
	assert.Equal(t, uint64(2), (<-a.C).LoanID)
	assert.Equal(t, uint64(2), (<-b.C).LoanID)
	assert.Len(t, a.C, 0)
	assert.Len(t, b.C, 0)

	assert.Equal(t, int64(2), a.Dropped())
	assert.Equal(t, int64(0), a.Dropped())
	assert.Equal(t, int64(2), b.Dropped())

	a.Cancel()
	a.Cancel()
	_, open := <-a.C
	assert.False(t, open)

	hub.Publish(ctx, core.Event{Kind: core.EventLoanClaimed, LoanID: 5})
	assert.Equal(t, uint64(5), (<-b.C).LoanID)
}
