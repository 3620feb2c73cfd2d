package archiver

import (
	"context"
	"encoding/json"

	"pledge/core"
	"pledge/service/event"

	"github.com/fox-one/pkg/logger"
	"github.com/jmoiron/sqlx/types"
)

// Worker archive loan snapshots after each committed change
type Worker struct {
	hub    *event.Hub
	ledger core.LedgerService
	loans  core.LoanStore
}

// New new archiver
func New(hub *event.Hub, ledger core.LedgerService, loans core.LoanStore) *Worker {
	return &Worker{
		hub:    hub,
		ledger: ledger,
		loans:  loans,
	}
}

// Archive snapshot of loan for the archive store
func Archive(loan *core.Loan) (*core.LoanArchive, error) {
	terms, err := json.Marshal(loan.Terms)
	if err != nil {
		return nil, err
	}

	return &core.LoanArchive{
		LoanID:          loan.ID,
		State:           loan.State,
		Borrower:        loan.Borrower.Hex(),
		Lender:          loan.Lender.Hex(),
		Currency:        loan.Terms.PayableCurrency.Hex(),
		Principal:       loan.Terms.Principal,
		Balance:         loan.Balance,
		BalancePaid:     loan.BalancePaid,
		LateFeesAccrued: loan.LateFeesAccrued,
		Terms:           types.JSONText(terms),
		StartDate:       loan.StartDate,
		DueDate:         loan.DueDate,
	}, nil
}

// Run subscribe to ledger events, archive every loan once on start. When
// the hub dropped events for the subscription every loan is archived again.
func (w *Worker) Run(ctx context.Context) error {
	log := logger.FromContext(ctx).WithField("worker", "archiver")

	sub := w.hub.Subscribe()
	defer sub.Cancel()

	stale := false
	if err := w.SyncAll(ctx); err != nil {
		log.WithError(err).Errorln("sync all")
		stale = true
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-sub.C:
			if !ok {
				return nil
			}

			if e.LoanID > 0 {
				if err := w.archive(ctx, e.LoanID); err != nil {
					log.WithError(err).Errorln("archive loan", e.LoanID)
				}
			}

			if n := sub.Dropped(); n > 0 {
				log.Warnf("%d events dropped, sync all", n)
				stale = true
			}

			if stale {
				if err := w.SyncAll(ctx); err != nil {
					log.WithError(err).Errorln("sync all")
					continue
				}

				stale = false
			}
		}
	}
}

// SyncAll archive all loans known by the ledger
func (w *Worker) SyncAll(ctx context.Context) error {
	loans, err := w.ledger.Loans(ctx, core.LoanFilter{})
	if err != nil {
		return err
	}

	for _, loan := range loans {
		if err := w.save(ctx, loan); err != nil {
			return err
		}
	}

	return nil
}

func (w *Worker) archive(ctx context.Context, loanID uint64) error {
	loan, err := w.ledger.Loan(ctx, loanID)
	if err != nil {
		return err
	}

	return w.save(ctx, loan)
}

func (w *Worker) save(ctx context.Context, loan *core.Loan) error {
	archive, err := Archive(loan)
	if err != nil {
		return err
	}

	if err := w.loans.Save(ctx, archive); err != nil {
		logger.FromContext(ctx).WithError(err).Errorln("loans.Save")
		return err
	}

	return nil
}
