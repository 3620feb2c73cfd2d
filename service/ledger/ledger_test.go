package ledger

import (
	"context"
	"testing"

	"pledge/core"
	"pledge/internal/atomic"
	"pledge/service/asset"
	"pledge/service/note"
	"pledge/service/permission"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	usd      = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	punks    = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	admin    = common.HexToAddress("0x0000000000000000000000000000000000000a00")
	operator = common.HexToAddress("0x0000000000000000000000000000000000000a01")
	alice    = common.HexToAddress("0x0000000000000000000000000000000000000001")
	bob      = common.HexToAddress("0x0000000000000000000000000000000000000002")
	carol    = common.HexToAddress("0x0000000000000000000000000000000000000003")
)

type fixedFee uint64

func (f fixedFee) OriginationFee(ctx context.Context) uint64 {
	return uint64(f)
}

func (f fixedFee) SetOriginationFee(ctx context.Context, caller common.Address, bps uint64) error {
	return core.ErrOperationForbidden
}

type recorder struct {
	events []core.Event
}

func (r *recorder) Publish(ctx context.Context, event core.Event) {
	r.events = append(r.events, event)
}

func (r *recorder) kinds() []core.EventKind {
	kinds := make([]core.EventKind, 0, len(r.events))
	for _, e := range r.events {
		kinds = append(kinds, e.Kind)
	}

	return kinds
}

type fixture struct {
	ctx    context.Context
	now    int64
	assets core.AssetService
	ledger core.LedgerService
	events *recorder
}

func newFixture(t *testing.T, feeBps uint64) *fixture {
	ctx := context.Background()
	exec := atomic.New()
	f := &fixture{ctx: ctx, now: 1_000_000, events: &recorder{}}

	f.assets = asset.New(exec, nil)
	perms := permission.New(exec, admin)
	for _, role := range []core.Role{core.RoleOriginator, core.RoleRepayer, core.RoleClaimer, core.RoleFeeClaimer} {
		require.Nil(t, perms.Grant(ctx, admin, role, operator))
	}

	f.ledger = New(
		exec,
		nil,
		f.assets,
		perms,
		fixedFee(feeBps),
		note.New(exec, nil, "borrower"),
		note.New(exec, nil, "lender"),
		f.events,
		func() int64 { return f.now },
	)

	require.Nil(t, f.assets.Mint(ctx, usd, bob, decimal.NewFromInt(100_000)))
	require.Nil(t, f.assets.Mint(ctx, usd, operator, decimal.NewFromInt(100_000)))
	for i := uint64(1); i <= 3; i++ {
		require.Nil(t, f.assets.MintItem(ctx, core.CollateralKey{Address: punks, ID: i}, alice))
	}

	return f
}

func (f *fixture) balance(owner common.Address) string {
	return f.assets.BalanceOf(f.ctx, usd, owner).String()
}

func (f *fixture) owner(t *testing.T, id uint64) common.Address {
	owner, err := f.assets.OwnerOf(f.ctx, core.CollateralKey{Address: punks, ID: id})
	require.Nil(t, err)
	return owner
}

func terms(collateralID uint64) core.LoanTerms {
	return core.LoanTerms{
		Principal:         decimal.NewFromInt(1000),
		InterestRate:      decimal.New(500, 18),
		DurationSecs:      86400,
		CollateralAddress: punks,
		CollateralID:      collateralID,
		PayableCurrency:   usd,
	}
}

func installmentTerms(collateralID uint64) core.LoanTerms {
	t := terms(collateralID)
	t.InterestRate = decimal.New(1000, 18)
	t.DurationSecs = 36000
	t.NumInstallments = 10
	return t
}

func TestOpenAndRepay(t *testing.T) {
	f := newFixture(t, 0)

	loanID, err := f.ledger.OpenLoan(f.ctx, operator, bob, alice, terms(1))
	require.Nil(t, err)
	assert.Equal(t, uint64(1), loanID)

	loan, err := f.ledger.Loan(f.ctx, loanID)
	require.Nil(t, err)
	assert.Equal(t, core.LoanStateActive, loan.State)
	assert.Equal(t, f.now+86400, loan.DueDate)
	assert.Equal(t, "1000", loan.Balance.String())
	assert.Equal(t, alice, loan.Borrower)
	assert.Equal(t, bob, loan.Lender)

	assert.Equal(t, "1000", f.balance(alice))
	assert.Equal(t, "99000", f.balance(bob))
	assert.Equal(t, f.ledger.Address(), f.owner(t, 1))
	assert.True(t, f.ledger.IsCollateralLocked(f.ctx, terms(1).Collateral()))

	ledgerBefore := f.balance(f.ledger.Address())
	require.Nil(t, f.ledger.Repay(f.ctx, operator, loanID))

	assert.Equal(t, "98950", f.balance(operator))
	assert.Equal(t, "100050", f.balance(bob))
	assert.Equal(t, ledgerBefore, f.balance(f.ledger.Address()))
	assert.Equal(t, alice, f.owner(t, 1))
	assert.False(t, f.ledger.IsCollateralLocked(f.ctx, terms(1).Collateral()))

	loan, err = f.ledger.Loan(f.ctx, loanID)
	require.Nil(t, err)
	assert.Equal(t, core.LoanStateRepaid, loan.State)
	assert.True(t, loan.Balance.IsZero())
	assert.Equal(t, "1050", loan.BalancePaid.String())

	_, err = f.ledger.BorrowerNotes().OwnerOf(f.ctx, loan.BorrowerNoteID)
	assert.ErrorIs(t, err, core.ErrNoteNotFound)
	_, err = f.ledger.LenderNotes().OwnerOf(f.ctx, loan.LenderNoteID)
	assert.ErrorIs(t, err, core.ErrNoteNotFound)

	assert.ErrorIs(t, f.ledger.Repay(f.ctx, operator, loanID), core.ErrInvalidLoanState)
	assert.ErrorIs(t, f.ledger.Repay(f.ctx, operator, 99), core.ErrInvalidLoanState)
	assert.Equal(t, []core.EventKind{core.EventLoanStarted, core.EventLoanRepaid}, f.events.kinds())
}

func TestOriginationFee(t *testing.T) {
	f := newFixture(t, 50)

	_, err := f.ledger.OpenLoan(f.ctx, operator, bob, alice, terms(1))
	require.Nil(t, err)

	assert.Equal(t, "995", f.balance(alice))
	assert.Equal(t, "5", f.ledger.CollectedFees(f.ctx, usd).String())
	assert.Equal(t, "5", f.balance(f.ledger.Address()))

	_, err = f.ledger.WithdrawFees(f.ctx, alice, usd, alice)
	assert.ErrorIs(t, err, core.ErrOperationForbidden)

	amount, err := f.ledger.WithdrawFees(f.ctx, operator, usd, carol)
	require.Nil(t, err)
	assert.Equal(t, "5", amount.String())
	assert.Equal(t, "5", f.balance(carol))
	assert.True(t, f.ledger.CollectedFees(f.ctx, usd).IsZero())

	amount, err = f.ledger.WithdrawFees(f.ctx, operator, usd, carol)
	require.Nil(t, err)
	assert.True(t, amount.IsZero())
}

func TestOpenLoanValidation(t *testing.T) {
	f := newFixture(t, 0)

	_, err := f.ledger.OpenLoan(f.ctx, alice, bob, alice, terms(1))
	assert.ErrorIs(t, err, core.ErrOperationForbidden)

	bad := terms(1)
	bad.DurationSecs = 3599
	_, err = f.ledger.OpenLoan(f.ctx, operator, bob, alice, bad)
	assert.ErrorIs(t, err, core.ErrDurationInvalid)

	bad = terms(1)
	bad.DurationSecs = core.MaxLoanDuration + 1
	_, err = f.ledger.OpenLoan(f.ctx, operator, bob, alice, bad)
	assert.ErrorIs(t, err, core.ErrDurationInvalid)

	bad = terms(1)
	bad.InterestRate = decimal.New(1, 17)
	_, err = f.ledger.OpenLoan(f.ctx, operator, bob, alice, bad)
	assert.ErrorIs(t, err, core.ErrInterestRateTooLow)

	bad = terms(1)
	bad.NumInstallments = 3
	_, err = f.ledger.OpenLoan(f.ctx, operator, bob, alice, bad)
	assert.ErrorIs(t, err, core.ErrInstallmentCountInvalid)

	bad.NumInstallments = core.MaxInstallments + 2
	_, err = f.ledger.OpenLoan(f.ctx, operator, bob, alice, bad)
	assert.ErrorIs(t, err, core.ErrInstallmentCountInvalid)
}

func TestCollateralLock(t *testing.T) {
	f := newFixture(t, 0)

	_, err := f.ledger.OpenLoan(f.ctx, operator, bob, alice, terms(1))
	require.Nil(t, err)

	_, err = f.ledger.OpenLoan(f.ctx, operator, bob, alice, terms(1))
	assert.ErrorIs(t, err, core.ErrCollateralAlreadyLocked)

	loanID, err := f.ledger.OpenLoan(f.ctx, operator, bob, alice, terms(2))
	require.Nil(t, err)
	assert.Equal(t, uint64(2), loanID)
}

func TestOpenLoanIsAtomic(t *testing.T) {
	f := newFixture(t, 0)

	big := terms(1)
	big.Principal = decimal.NewFromInt(1_000_000)
	_, err := f.ledger.OpenLoan(f.ctx, operator, bob, alice, big)
	assert.ErrorIs(t, err, core.ErrInsufficientBalance)

	assert.Equal(t, alice, f.owner(t, 1))
	assert.False(t, f.ledger.IsCollateralLocked(f.ctx, big.Collateral()))
	assert.Empty(t, f.ledger.BorrowerNotes().NotesOf(f.ctx, alice))
	assert.Empty(t, f.events.events)

	_, err = f.ledger.Loan(f.ctx, 1)
	assert.ErrorIs(t, err, core.ErrLoanNotFound)

	// the failed attempt did not burn an id
	loanID, err := f.ledger.OpenLoan(f.ctx, operator, bob, alice, terms(1))
	require.Nil(t, err)
	assert.Equal(t, uint64(1), loanID)
}

func TestNonces(t *testing.T) {
	f := newFixture(t, 0)

	require.Nil(t, f.ledger.ConsumeNonce(f.ctx, operator, alice, 1))
	assert.True(t, f.ledger.IsNonceUsed(f.ctx, alice, 1))
	assert.False(t, f.ledger.IsNonceUsed(f.ctx, bob, 1))
	assert.ErrorIs(t, f.ledger.ConsumeNonce(f.ctx, operator, alice, 1), core.ErrNonceAlreadyUsed)
	assert.ErrorIs(t, f.ledger.ConsumeNonce(f.ctx, alice, alice, 2), core.ErrOperationForbidden)

	require.Nil(t, f.ledger.CancelNonce(f.ctx, bob, 7))
	assert.ErrorIs(t, f.ledger.ConsumeNonce(f.ctx, operator, bob, 7), core.ErrNonceAlreadyUsed)
	assert.ErrorIs(t, f.ledger.CancelNonce(f.ctx, bob, 7), core.ErrNonceAlreadyUsed)
}

func TestClaim(t *testing.T) {
	f := newFixture(t, 0)

	loanID, err := f.ledger.OpenLoan(f.ctx, operator, bob, alice, terms(1))
	require.Nil(t, err)

	assert.ErrorIs(t, f.ledger.Claim(f.ctx, operator, loanID), core.ErrNotYetExpired)
	assert.ErrorIs(t, f.ledger.Claim(f.ctx, bob, loanID), core.ErrOperationForbidden)

	// rights follow the lender note
	require.Nil(t, f.ledger.LenderNotes().Transfer(f.ctx, bob, carol, loanID))

	f.now += 86400
	require.Nil(t, f.ledger.Claim(f.ctx, operator, loanID))
	assert.Equal(t, carol, f.owner(t, 1))

	loan, err := f.ledger.Loan(f.ctx, loanID)
	require.Nil(t, err)
	assert.Equal(t, core.LoanStateDefaulted, loan.State)
	assert.Equal(t, carol, loan.Lender)
	assert.False(t, f.ledger.IsCollateralLocked(f.ctx, terms(1).Collateral()))

	assert.ErrorIs(t, f.ledger.Claim(f.ctx, operator, loanID), core.ErrInvalidLoanState)
	assert.ErrorIs(t, f.ledger.Repay(f.ctx, operator, loanID), core.ErrInvalidLoanState)
}

func TestClaimInstallmentDefault(t *testing.T) {
	f := newFixture(t, 0)
	start := f.now

	loanID, err := f.ledger.OpenLoan(f.ctx, operator, bob, alice, installmentTerms(1))
	require.Nil(t, err)

	// period 5, four missed
	f.now = start + 4*3600 + 1
	assert.ErrorIs(t, f.ledger.Claim(f.ctx, operator, loanID), core.ErrNotYetExpired)

	// period 6, five of ten missed
	f.now = start + 5*3600 + 1
	require.Nil(t, f.ledger.Claim(f.ctx, operator, loanID))
	assert.Equal(t, bob, f.owner(t, 1))
}

func TestRepayPart(t *testing.T) {
	f := newFixture(t, 0)

	loanID, err := f.ledger.OpenLoan(f.ctx, operator, bob, alice, installmentTerms(1))
	require.Nil(t, err)

	require.Nil(t, f.ledger.RepayPart(f.ctx, operator, loanID, 0, decimal.NewFromInt(100), decimal.NewFromInt(10), decimal.Zero))
	assert.Equal(t, "99890", f.balance(operator))
	assert.Equal(t, "99110", f.balance(bob))

	loan, err := f.ledger.Loan(f.ctx, loanID)
	require.Nil(t, err)
	assert.Equal(t, core.LoanStateActive, loan.State)
	assert.Equal(t, "900", loan.Balance.String())
	assert.Equal(t, "110", loan.BalancePaid.String())
	assert.Equal(t, uint64(1), loan.NumInstallmentsPaid)

	// late fees are accrued, excess principal is refunded to the borrower note holder
	require.Nil(t, f.ledger.BorrowerNotes().Transfer(f.ctx, alice, carol, loanID))
	require.Nil(t, f.ledger.RepayPart(f.ctx, operator, loanID, 2, decimal.NewFromInt(1000), decimal.NewFromInt(30), decimal.NewFromInt(9)))

	assert.Equal(t, "100", f.balance(carol))
	assert.Equal(t, "100049", f.balance(bob))
	assert.Equal(t, carol, f.owner(t, 1))
	assert.Equal(t, "0", f.balance(f.ledger.Address()))

	loan, err = f.ledger.Loan(f.ctx, loanID)
	require.Nil(t, err)
	assert.Equal(t, core.LoanStateRepaid, loan.State)
	assert.True(t, loan.Balance.IsZero())
	assert.Equal(t, "9", loan.LateFeesAccrued.String())
	assert.Equal(t, uint64(4), loan.NumInstallmentsPaid)
	assert.Equal(t, "1049", loan.BalancePaid.String())

	assert.Equal(t, []core.EventKind{core.EventLoanStarted, core.EventInstallmentPaid, core.EventLoanRepaid}, f.events.kinds())
	assert.ErrorIs(t, f.ledger.RepayPart(f.ctx, operator, loanID, 0, decimal.Zero, decimal.NewFromInt(1), decimal.Zero), core.ErrInvalidLoanState)
}

func TestRepayPartIsAtomic(t *testing.T) {
	f := newFixture(t, 0)

	loanID, err := f.ledger.OpenLoan(f.ctx, operator, bob, alice, installmentTerms(1))
	require.Nil(t, err)

	err = f.ledger.RepayPart(f.ctx, operator, loanID, 0, decimal.NewFromInt(200_000), decimal.Zero, decimal.Zero)
	assert.ErrorIs(t, err, core.ErrInsufficientBalance)

	loan, err := f.ledger.Loan(f.ctx, loanID)
	require.Nil(t, err)
	assert.Equal(t, "1000", loan.Balance.String())
	assert.Equal(t, uint64(0), loan.NumInstallmentsPaid)

	assert.ErrorIs(t, f.ledger.RepayPart(f.ctx, operator, loanID, 0, decimal.NewFromInt(-1), decimal.Zero, decimal.Zero), core.ErrInvalidAmount)
}

func TestNoPaymentDue(t *testing.T) {
	f := newFixture(t, 0)

	free := terms(1)
	free.Principal = decimal.Zero
	loanID, err := f.ledger.OpenLoan(f.ctx, operator, bob, alice, free)
	require.Nil(t, err)

	assert.ErrorIs(t, f.ledger.Repay(f.ctx, operator, loanID), core.ErrNoPaymentDue)
}

func TestReentrantCallRejected(t *testing.T) {
	f := newFixture(t, 0)

	loanID, err := f.ledger.OpenLoan(f.ctx, operator, bob, alice, terms(1))
	require.Nil(t, err)

	var reentered error
	f.assets.SetReceiver(alice, func(ctx context.Context, key core.CollateralKey, from common.Address) error {
		loan, err := f.ledger.Loan(ctx, loanID)
		require.Nil(t, err)
		assert.Equal(t, core.LoanStateRepaid, loan.State)

		reentered = f.ledger.CancelNonce(ctx, alice, 5)
		return nil
	})

	require.Nil(t, f.ledger.Repay(f.ctx, operator, loanID))
	assert.ErrorIs(t, reentered, core.ErrReentrantCall)
	assert.False(t, f.ledger.IsNonceUsed(f.ctx, alice, 5))
}

func TestLoansFilter(t *testing.T) {
	f := newFixture(t, 0)

	for i := uint64(1); i <= 3; i++ {
		_, err := f.ledger.OpenLoan(f.ctx, operator, bob, alice, terms(i))
		require.Nil(t, err)
	}

	require.Nil(t, f.ledger.Repay(f.ctx, operator, 2))
	require.Nil(t, f.ledger.LenderNotes().Transfer(f.ctx, bob, carol, 3))

	all, err := f.ledger.Loans(f.ctx, core.LoanFilter{})
	require.Nil(t, err)
	assert.Len(t, all, 3)

	active, err := f.ledger.Loans(f.ctx, core.LoanFilter{State: core.LoanStateActive})
	require.Nil(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, uint64(1), active[0].ID)
	assert.Equal(t, uint64(3), active[1].ID)

	byLender, err := f.ledger.Loans(f.ctx, core.LoanFilter{Lender: carol})
	require.Nil(t, err)
	require.Len(t, byLender, 1)
	assert.Equal(t, uint64(3), byLender[0].ID)

	page, err := f.ledger.Loans(f.ctx, core.LoanFilter{Offset: 1, Limit: 1})
	require.Nil(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, uint64(2), page[0].ID)
}
