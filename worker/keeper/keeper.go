package keeper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"pledge/core"
	"pledge/internal/installment"
	"pledge/worker"

	"github.com/fox-one/pkg/logger"
	"github.com/robfig/cron/v3"
)

// Report result of the last scan
type Report struct {
	CheckedAt int64    `json:"checked_at"`
	Active    int      `json:"active"`
	Overdue   []uint64 `json:"overdue"`
	Claimable []uint64 `json:"claimable"`
}

// Worker scans active loans for missed installments and expired terms
type Worker struct {
	worker.BaseJob
	ledger core.LedgerService
	now    func() int64

	mux    sync.RWMutex
	report Report
}

// New new keeper, interval like 1m
func New(ledger core.LedgerService, location string, interval time.Duration, clock func() int64) *Worker {
	job := &Worker{
		ledger: ledger,
		now:    clock,
	}

	l, err := time.LoadLocation(location)
	if err != nil {
		l = time.Local
	}

	job.Cron = cron.New(cron.WithLocation(l))
	_, _ = job.Cron.AddFunc(fmt.Sprintf("@every %s", interval), job.BaseJob.Run)
	job.OnWork = func() error {
		_, err := job.Scan(context.Background())
		return err
	}

	return job
}

// Run implements worker.Worker
func (w *Worker) Run(ctx context.Context) error {
	return w.RunUntil(ctx)
}

// Report last scan result
func (w *Worker) Report() Report {
	w.mux.RLock()
	defer w.mux.RUnlock()
	return w.report
}

// Scan classify active loans
func (w *Worker) Scan(ctx context.Context) (Report, error) {
	log := logger.FromContext(ctx).WithField("worker", "keeper")

	loans, err := w.ledger.Loans(ctx, core.LoanFilter{State: core.LoanStateActive})
	if err != nil {
		log.WithError(err).Errorln("ledger.Loans")
		return Report{}, err
	}

	now := w.now()
	report := Report{CheckedAt: now, Active: len(loans)}

	for _, loan := range loans {
		if now >= loan.DueDate {
			report.Claimable = append(report.Claimable, loan.ID)
			continue
		}

		if !loan.Terms.IsInstallment() {
			continue
		}

		current := installment.CurrentPeriod(loan.StartDate, loan.Terms.DurationSecs, loan.Terms.NumInstallments, now)
		switch {
		case installment.Defaulted(loan.Terms.NumInstallments, loan.NumInstallmentsPaid, current):
			report.Claimable = append(report.Claimable, loan.ID)
		case current > loan.NumInstallmentsPaid+1:
			report.Overdue = append(report.Overdue, loan.ID)
		}
	}

	if len(report.Claimable) > 0 || len(report.Overdue) > 0 {
		log.Infof("%d active, overdue %v, claimable %v", report.Active, report.Overdue, report.Claimable)
	}

	w.mux.Lock()
	w.report = report
	w.mux.Unlock()

	return report, nil
}
