package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"pledge/core"
	"pledge/internal/atomic"
	"pledge/internal/installment"
	"pledge/pkg/id"
	"pledge/pkg/number"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fox-one/pkg/logger"
	"github.com/fox-one/pkg/store/db"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type nonceKey struct {
	signer common.Address
	nonce  uint64
}

type ledger struct {
	address       common.Address
	exec          *atomic.Executor
	store         core.LedgerStore
	assets        core.AssetService
	permissions   core.PermissionService
	fees          core.FeeService
	borrowerNotes core.NoteRegistry
	lenderNotes   core.NoteRegistry
	events        core.EventPublisher
	now           func() int64

	entered   bool
	lastID    uint64
	loans     map[uint64]*core.Loan
	locks     map[core.CollateralKey]uint64
	nonces    map[nonceKey]bool
	collected map[common.Address]decimal.Decimal
}

// Clock unix seconds source
type Clock func() int64

// SystemClock wall clock
func SystemClock() int64 {
	return time.Now().Unix()
}

// New new loan ledger, store may be nil to keep the ledger in memory
func New(
	exec *atomic.Executor,
	store core.LedgerStore,
	assets core.AssetService,
	permissions core.PermissionService,
	fees core.FeeService,
	borrowerNotes core.NoteRegistry,
	lenderNotes core.NoteRegistry,
	events core.EventPublisher,
	clock Clock,
) core.LedgerService {
	if clock == nil {
		clock = SystemClock
	}

	return &ledger{
		address:       id.Address("ledger"),
		exec:          exec,
		store:         store,
		assets:        assets,
		permissions:   permissions,
		fees:          fees,
		borrowerNotes: borrowerNotes,
		lenderNotes:   lenderNotes,
		events:        events,
		now:           clock,
		loans:         make(map[uint64]*core.Loan),
		locks:         make(map[core.CollateralKey]uint64),
		nonces:        make(map[nonceKey]bool),
		collected:     make(map[common.Address]decimal.Decimal),
	}
}

func (s *ledger) Address() common.Address {
	return s.address
}

func (s *ledger) BorrowerNotes() core.NoteRegistry {
	return s.borrowerNotes
}

func (s *ledger) LenderNotes() core.NoteRegistry {
	return s.lenderNotes
}

// guard runs fn atomically and rejects re-entrant calls
func (s *ledger) guard(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.exec.Run(ctx, func(ctx context.Context) error {
		if s.entered {
			return core.ErrReentrantCall
		}

		s.entered = true
		defer func() { s.entered = false }()

		return fn(ctx)
	})
}

func (s *ledger) requireRole(ctx context.Context, role core.Role, caller common.Address) error {
	if !s.permissions.HasRole(ctx, role, caller) {
		return fmt.Errorf("%w: %s lacks %s", core.ErrOperationForbidden, caller.Hex(), role)
	}

	return nil
}

func (s *ledger) publish(ctx context.Context, event core.Event) {
	if s.events == nil {
		return
	}

	event.Timestamp = s.now()
	atomic.AfterCommit(ctx, func() {
		s.events.Publish(context.Background(), event)
	})
}

func (s *ledger) persist(ctx context.Context, key string, fn func(tx *db.DB) error) {
	if s.store != nil {
		atomic.Persist(ctx, "ledger:"+key, fn)
	}
}

func (s *ledger) saveLoan(ctx context.Context, loanID uint64) {
	s.persist(ctx, fmt.Sprintf("loan:%d", loanID), func(tx *db.DB) error {
		return s.store.SaveLoan(ctx, tx, s.loans[loanID])
	})
}

// activeLoan loan in Active state, journals the loan so it can be mutated
func (s *ledger) activeLoan(ctx context.Context, loanID uint64) (*core.Loan, error) {
	loan, ok := s.loans[loanID]
	if !ok {
		return nil, fmt.Errorf("%w: loan %d not found", core.ErrInvalidLoanState, loanID)
	}

	if !loan.IsActive() {
		return nil, fmt.Errorf("%w: loan %d is %s", core.ErrInvalidLoanState, loanID, loan.State)
	}

	prev := loan.Clone()
	atomic.Record(ctx, func() { s.loans[loanID] = prev })
	s.saveLoan(ctx, loanID)
	return loan, nil
}

func (s *ledger) lock(ctx context.Context, key core.CollateralKey, loanID uint64) {
	s.locks[key] = loanID
	atomic.Record(ctx, func() { delete(s.locks, key) })
}

func (s *ledger) unlock(ctx context.Context, key core.CollateralKey) {
	loanID, ok := s.locks[key]
	if !ok {
		return
	}

	delete(s.locks, key)
	atomic.Record(ctx, func() { s.locks[key] = loanID })
}

func (s *ledger) holders(ctx context.Context, loan *core.Loan) (borrower, lender common.Address, err error) {
	if borrower, err = s.borrowerNotes.OwnerOf(ctx, loan.BorrowerNoteID); err != nil {
		return
	}

	lender, err = s.lenderNotes.OwnerOf(ctx, loan.LenderNoteID)
	return
}

// settle terminal transition, state changes and note burns happen here,
// asset movements are left to the caller
func (s *ledger) settle(ctx context.Context, loan *core.Loan, state core.LoanState) error {
	loan.State = state
	s.unlock(ctx, loan.Terms.Collateral())

	if err := s.borrowerNotes.Burn(ctx, loan.BorrowerNoteID); err != nil {
		return err
	}

	return s.lenderNotes.Burn(ctx, loan.LenderNoteID)
}

func (s *ledger) OpenLoan(ctx context.Context, caller, lender, borrower common.Address, terms core.LoanTerms) (uint64, error) {
	var loanID uint64

	err := s.guard(ctx, func(ctx context.Context) error {
		if err := s.requireRole(ctx, core.RoleOriginator, caller); err != nil {
			return err
		}

		if err := terms.Validate(); err != nil {
			return err
		}

		collateral := terms.Collateral()
		if lockedBy, ok := s.locks[collateral]; ok {
			return fmt.Errorf("%w: %s backs loan %d", core.ErrCollateralAlreadyLocked, collateral, lockedBy)
		}

		prevID := s.lastID
		s.lastID++
		loanID = s.lastID
		atomic.Record(ctx, func() { s.lastID = prevID })

		start := s.now()
		loan := &core.Loan{
			ID:              loanID,
			Terms:           terms,
			State:           core.LoanStateActive,
			StartDate:       start,
			DueDate:         start + int64(terms.DurationSecs),
			Balance:         terms.Principal,
			BalancePaid:     decimal.Zero,
			LateFeesAccrued: decimal.Zero,
			Borrower:        borrower,
			Lender:          lender,
		}

		s.loans[loanID] = loan
		atomic.Record(ctx, func() { delete(s.loans, loanID) })
		s.saveLoan(ctx, loanID)
		s.lock(ctx, collateral, loanID)

		var err error
		if loan.BorrowerNoteID, err = s.borrowerNotes.Mint(ctx, borrower, loanID); err != nil {
			return err
		}

		if loan.LenderNoteID, err = s.lenderNotes.Mint(ctx, lender, loanID); err != nil {
			return err
		}

		if err := s.assets.TransferItem(ctx, collateral, borrower, s.address); err != nil {
			return err
		}

		if err := s.assets.Transfer(ctx, terms.PayableCurrency, lender, s.address, terms.Principal); err != nil {
			return err
		}

		fee := number.Bps(terms.Principal, s.fees.OriginationFee(ctx))
		s.addCollected(ctx, terms.PayableCurrency, fee)

		if err := s.assets.Transfer(ctx, terms.PayableCurrency, s.address, borrower, terms.Principal.Sub(fee)); err != nil {
			return err
		}

		logger.FromContext(ctx).WithFields(logrus.Fields{
			"loan":       loanID,
			"borrower":   borrower.Hex(),
			"lender":     lender.Hex(),
			"principal":  terms.Principal,
			"collateral": collateral.String(),
		}).Infoln("ledger: loan started")

		s.publish(ctx, core.Event{Kind: core.EventLoanStarted, LoanID: loanID, Actor: caller, Amount: terms.Principal})
		return nil
	})

	if err != nil {
		return 0, err
	}

	return loanID, nil
}

func (s *ledger) Repay(ctx context.Context, caller common.Address, loanID uint64) error {
	return s.guard(ctx, func(ctx context.Context) error {
		if err := s.requireRole(ctx, core.RoleRepayer, caller); err != nil {
			return err
		}

		loan, err := s.activeLoan(ctx, loanID)
		if err != nil {
			return err
		}

		total := installment.FullInterestAmount(loan.Terms.Principal, loan.Terms.InterestRate)
		if total.IsZero() {
			return fmt.Errorf("%w: loan %d", core.ErrNoPaymentDue, loanID)
		}

		borrower, lender, err := s.holders(ctx, loan)
		if err != nil {
			return err
		}

		if err := s.assets.Transfer(ctx, loan.Terms.PayableCurrency, caller, s.address, total); err != nil {
			return err
		}

		loan.Balance = decimal.Zero
		loan.BalancePaid = loan.BalancePaid.Add(total)
		loan.Borrower, loan.Lender = borrower, lender
		if err := s.settle(ctx, loan, core.LoanStateRepaid); err != nil {
			return err
		}

		if err := s.assets.Transfer(ctx, loan.Terms.PayableCurrency, s.address, lender, total); err != nil {
			return err
		}

		if err := s.assets.TransferItem(ctx, loan.Terms.Collateral(), s.address, borrower); err != nil {
			return err
		}

		logger.FromContext(ctx).WithField("loan", loanID).Infoln("ledger: loan repaid", total)
		s.publish(ctx, core.Event{Kind: core.EventLoanRepaid, LoanID: loanID, Actor: caller, Amount: total})
		return nil
	})
}

func (s *ledger) RepayPart(
	ctx context.Context,
	caller common.Address,
	loanID uint64,
	missed uint64,
	toPrincipal, toInterest, toLateFees decimal.Decimal,
) error {
	if toPrincipal.IsNegative() || toInterest.IsNegative() || toLateFees.IsNegative() {
		return core.ErrInvalidAmount
	}

	return s.guard(ctx, func(ctx context.Context) error {
		if err := s.requireRole(ctx, core.RoleRepayer, caller); err != nil {
			return err
		}

		loan, err := s.activeLoan(ctx, loanID)
		if err != nil {
			return err
		}

		borrower, lender, err := s.holders(ctx, loan)
		if err != nil {
			return err
		}

		currency := loan.Terms.PayableCurrency
		pulled := toPrincipal.Add(toInterest).Add(toLateFees)
		if err := s.assets.Transfer(ctx, currency, caller, s.address, pulled); err != nil {
			return err
		}

		bounded := number.Min(toPrincipal, loan.Balance)
		closing := bounded.Equal(loan.Balance)

		loan.LateFeesAccrued = loan.LateFeesAccrued.Add(toLateFees)
		loan.NumInstallmentsPaid += missed + 1
		loan.Balance = loan.Balance.Sub(bounded)
		loan.BalancePaid = loan.BalancePaid.Add(bounded).Add(toInterest).Add(toLateFees)

		if closing {
			loan.Borrower, loan.Lender = borrower, lender
			if err := s.settle(ctx, loan, core.LoanStateRepaid); err != nil {
				return err
			}
		}

		if refund := toPrincipal.Sub(bounded); refund.IsPositive() {
			if err := s.assets.Transfer(ctx, currency, s.address, borrower, refund); err != nil {
				return err
			}
		}

		paid := bounded.Add(toInterest).Add(toLateFees)
		if err := s.assets.Transfer(ctx, currency, s.address, lender, paid); err != nil {
			return err
		}

		log := logger.FromContext(ctx).WithFields(logrus.Fields{
			"loan":    loanID,
			"missed":  missed,
			"paid":    paid,
			"balance": loan.Balance,
		})

		if closing {
			if err := s.assets.TransferItem(ctx, loan.Terms.Collateral(), s.address, borrower); err != nil {
				return err
			}

			log.Infoln("ledger: loan repaid by installments")
			s.publish(ctx, core.Event{Kind: core.EventLoanRepaid, LoanID: loanID, Actor: caller, Amount: paid})
			return nil
		}

		log.Infoln("ledger: installment paid")
		s.publish(ctx, core.Event{Kind: core.EventInstallmentPaid, LoanID: loanID, Actor: caller, Amount: paid})
		return nil
	})
}

func (s *ledger) Claim(ctx context.Context, caller common.Address, loanID uint64) error {
	return s.guard(ctx, func(ctx context.Context) error {
		if err := s.requireRole(ctx, core.RoleClaimer, caller); err != nil {
			return err
		}

		loan, err := s.activeLoan(ctx, loanID)
		if err != nil {
			return err
		}

		now := s.now()
		if now < loan.DueDate {
			current := installment.CurrentPeriod(loan.StartDate, loan.Terms.DurationSecs, loan.Terms.NumInstallments, now)
			if !installment.Defaulted(loan.Terms.NumInstallments, loan.NumInstallmentsPaid, current) {
				return fmt.Errorf("%w: loan %d due at %d", core.ErrNotYetExpired, loanID, loan.DueDate)
			}
		}

		borrower, lender, err := s.holders(ctx, loan)
		if err != nil {
			return err
		}

		loan.Borrower, loan.Lender = borrower, lender
		if err := s.settle(ctx, loan, core.LoanStateDefaulted); err != nil {
			return err
		}

		if err := s.assets.TransferItem(ctx, loan.Terms.Collateral(), s.address, lender); err != nil {
			return err
		}

		logger.FromContext(ctx).WithField("loan", loanID).Infoln("ledger: collateral claimed by", lender.Hex())
		s.publish(ctx, core.Event{Kind: core.EventLoanClaimed, LoanID: loanID, Actor: caller})
		return nil
	})
}

func (s *ledger) useNonce(ctx context.Context, signer common.Address, nonce uint64) error {
	k := nonceKey{signer: signer, nonce: nonce}
	if s.nonces[k] {
		return fmt.Errorf("%w: %s #%d", core.ErrNonceAlreadyUsed, signer.Hex(), nonce)
	}

	s.nonces[k] = true
	atomic.Record(ctx, func() { delete(s.nonces, k) })
	s.persist(ctx, fmt.Sprintf("nonce:%s:%d", signer.Hex(), nonce), func(tx *db.DB) error {
		return s.store.SaveNonce(ctx, tx, signer, nonce)
	})
	s.publish(ctx, core.Event{Kind: core.EventNonceUsed, Actor: signer, Nonce: nonce})
	return nil
}

func (s *ledger) ConsumeNonce(ctx context.Context, caller, signer common.Address, nonce uint64) error {
	return s.guard(ctx, func(ctx context.Context) error {
		if err := s.requireRole(ctx, core.RoleOriginator, caller); err != nil {
			return err
		}

		return s.useNonce(ctx, signer, nonce)
	})
}

func (s *ledger) CancelNonce(ctx context.Context, caller common.Address, nonce uint64) error {
	return s.guard(ctx, func(ctx context.Context) error {
		return s.useNonce(ctx, caller, nonce)
	})
}

func (s *ledger) IsNonceUsed(ctx context.Context, signer common.Address, nonce uint64) bool {
	var used bool
	_ = s.exec.View(ctx, func(ctx context.Context) error {
		used = s.nonces[nonceKey{signer: signer, nonce: nonce}]
		return nil
	})

	return used
}

func (s *ledger) IsCollateralLocked(ctx context.Context, key core.CollateralKey) bool {
	var locked bool
	_ = s.exec.View(ctx, func(ctx context.Context) error {
		_, locked = s.locks[key]
		return nil
	})

	return locked
}

func (s *ledger) addCollected(ctx context.Context, currency common.Address, amount decimal.Decimal) {
	prev, existed := s.collected[currency]
	s.collected[currency] = prev.Add(amount)
	atomic.Record(ctx, func() {
		if existed {
			s.collected[currency] = prev
		} else {
			delete(s.collected, currency)
		}
	})

	s.persist(ctx, "fee:"+currency.Hex(), func(tx *db.DB) error {
		return s.store.SaveFee(ctx, tx, currency, s.collected[currency])
	})
}

func (s *ledger) CollectedFees(ctx context.Context, currency common.Address) decimal.Decimal {
	var v decimal.Decimal
	_ = s.exec.View(ctx, func(ctx context.Context) error {
		v = s.collected[currency]
		return nil
	})

	return v
}

func (s *ledger) WithdrawFees(ctx context.Context, caller, currency, to common.Address) (decimal.Decimal, error) {
	var amount decimal.Decimal

	err := s.guard(ctx, func(ctx context.Context) error {
		if err := s.requireRole(ctx, core.RoleFeeClaimer, caller); err != nil {
			return err
		}

		amount = s.collected[currency]
		if !amount.IsPositive() {
			return nil
		}

		s.addCollected(ctx, currency, amount.Neg())
		if err := s.assets.Transfer(ctx, currency, s.address, to, amount); err != nil {
			return err
		}

		logger.FromContext(ctx).WithField("currency", currency.Hex()).Infoln("ledger: fees withdrawn", amount)
		s.publish(ctx, core.Event{Kind: core.EventFeesWithdrawn, Actor: caller, Amount: amount})
		return nil
	})

	return amount, err
}

// view resolves current note holders of active loans
func (s *ledger) view(ctx context.Context, loan *core.Loan) *core.Loan {
	v := loan.Clone()
	if v.IsActive() {
		if borrower, lender, err := s.holders(ctx, v); err == nil {
			v.Borrower, v.Lender = borrower, lender
		}
	}

	return v
}

func (s *ledger) Loan(ctx context.Context, loanID uint64) (*core.Loan, error) {
	var loan *core.Loan
	_ = s.exec.View(ctx, func(ctx context.Context) error {
		if l, ok := s.loans[loanID]; ok {
			loan = s.view(ctx, l)
		}

		return nil
	})

	if loan == nil {
		return nil, fmt.Errorf("%w: %d", core.ErrLoanNotFound, loanID)
	}

	return loan, nil
}

func (s *ledger) Loans(ctx context.Context, filter core.LoanFilter) ([]*core.Loan, error) {
	var loans []*core.Loan

	_ = s.exec.View(ctx, func(ctx context.Context) error {
		ids := make([]uint64, 0, len(s.loans))
		for loanID := range s.loans {
			if loanID > filter.Offset {
				ids = append(ids, loanID)
			}
		}

		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

		for _, loanID := range ids {
			loan := s.view(ctx, s.loans[loanID])
			if filter.State != 0 && loan.State != filter.State {
				continue
			}

			if filter.Borrower != (common.Address{}) && loan.Borrower != filter.Borrower {
				continue
			}

			if filter.Lender != (common.Address{}) && loan.Lender != filter.Lender {
				continue
			}

			loans = append(loans, loan)
			if filter.Limit > 0 && len(loans) >= filter.Limit {
				break
			}
		}

		return nil
	})

	return loans, nil
}

// Restore rebuild the working set from the store: loans, the next loan id,
// collateral locks of active loans, used nonces and collected fees
func (s *ledger) Restore(ctx context.Context) error {
	if s.store == nil {
		return nil
	}

	loans, err := s.store.ListLoans(ctx)
	if err != nil {
		return err
	}

	nonces, err := s.store.ListNonces(ctx)
	if err != nil {
		return err
	}

	fees, err := s.store.ListFees(ctx)
	if err != nil {
		return err
	}

	return s.exec.Run(ctx, func(ctx context.Context) error {
		for _, loan := range loans {
			s.loans[loan.ID] = loan
			if loan.ID > s.lastID {
				s.lastID = loan.ID
			}

			if loan.IsActive() {
				s.locks[loan.Terms.Collateral()] = loan.ID
			}
		}

		for _, n := range nonces {
			s.nonces[nonceKey{signer: common.HexToAddress(n.Signer), nonce: n.Nonce}] = true
		}

		for _, f := range fees {
			s.collected[common.HexToAddress(f.Currency)] = f.Amount
		}

		logger.FromContext(ctx).WithFields(logrus.Fields{
			"loans":  len(loans),
			"nonces": len(nonces),
			"last":   s.lastID,
		}).Infoln("ledger: restored")
		return nil
	})
}
