package rollover

import (
	"context"
	"crypto/ecdsa"
	"testing"

	"pledge/core"
	"pledge/internal/atomic"
	"pledge/service/asset"
	"pledge/service/flash"
	"pledge/service/ledger"
	"pledge/service/note"
	"pledge/service/origination"
	"pledge/service/permission"
	"pledge/service/repayment"
	"pledge/service/signature"
	"pledge/service/vault"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	usd      = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	eur      = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	punks    = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	relics   = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	admin    = common.HexToAddress("0x0000000000000000000000000000000000000a00")
	operator = common.HexToAddress("0x0000000000000000000000000000000000000a01")
	alice    = common.HexToAddress("0x0000000000000000000000000000000000000001")
	carol    = common.HexToAddress("0x0000000000000000000000000000000000000003")

	domain = core.Domain{Name: "pledge", Version: "1", ChainID: 1}
)

type noFee struct{}

func (noFee) OriginationFee(ctx context.Context) uint64 { return 0 }

func (noFee) SetOriginationFee(ctx context.Context, caller common.Address, bps uint64) error {
	return core.ErrOperationForbidden
}

type recorder struct {
	events []core.Event
}

func (r *recorder) Publish(ctx context.Context, event core.Event) {
	r.events = append(r.events, event)
}

type fixture struct {
	ctx        context.Context
	now        int64
	start      int64
	assets     core.AssetService
	ledger     core.LedgerService
	vaults     core.VaultService
	flash      core.FlashService
	signatures core.SignatureService
	service    core.RolloverService
	events     *recorder

	lenderKey *ecdsa.PrivateKey
	lender    common.Address
}

func newFixture(t *testing.T, flashFeeBps uint64) *fixture {
	ctx := context.Background()
	exec := atomic.New()
	f := &fixture{ctx: ctx, now: 1_000_000, start: 1_000_000, events: &recorder{}}
	clock := func() int64 { return f.now }

	f.assets = asset.New(exec, nil)
	perms := permission.New(exec, admin)
	f.ledger = ledger.New(exec, nil, f.assets, perms, noFee{}, note.New(exec, nil, "borrower"), note.New(exec, nil, "lender"), nil, clock)
	repayments := repayment.New(exec, f.ledger, f.assets, clock)
	f.signatures = signature.New(domain, nil)
	originations := origination.New(exec, nil, f.ledger, f.signatures, perms, clock)
	f.vaults = vault.New(exec, nil, f.assets, "v2")
	f.flash = flash.New(exec, f.assets, flashFeeBps)
	f.service = New(exec, f.assets, f.ledger, repayments, originations, f.flash, noFee{}, f.vaults, f.events)

	for _, grant := range []struct {
		role    core.Role
		account common.Address
	}{
		{core.RoleOriginator, operator},
		{core.RoleOriginator, originations.Address()},
		{core.RoleRepayer, repayments.Address()},
		{core.RoleClaimer, repayments.Address()},
	} {
		require.Nil(t, perms.Grant(ctx, admin, grant.role, grant.account))
	}

	key, err := crypto.GenerateKey()
	require.Nil(t, err)
	f.lenderKey, f.lender = key, crypto.PubkeyToAddress(key.PublicKey)

	require.Nil(t, f.assets.Mint(ctx, usd, f.lender, decimal.NewFromInt(10_000)))
	require.Nil(t, f.assets.Mint(ctx, usd, alice, decimal.NewFromInt(10_000)))
	require.Nil(t, f.assets.Mint(ctx, usd, f.flash.Address(), decimal.NewFromInt(100_000)))
	require.Nil(t, f.assets.MintItem(ctx, core.CollateralKey{Address: punks, ID: 1}, alice))
	require.Nil(t, f.assets.MintItem(ctx, core.CollateralKey{Address: punks, ID: 2}, alice))

	return f
}

func singleTerms(collateral core.CollateralKey, principal int64) core.LoanTerms {
	return core.LoanTerms{
		Principal:         decimal.NewFromInt(principal),
		InterestRate:      decimal.New(500, 18),
		DurationSecs:      86400,
		CollateralAddress: collateral.Address,
		CollateralID:      collateral.ID,
		PayableCurrency:   usd,
	}
}

func (f *fixture) open(t *testing.T, terms core.LoanTerms) uint64 {
	loanID, err := f.ledger.OpenLoan(f.ctx, operator, f.lender, alice, terms)
	require.Nil(t, err)
	return loanID
}

// request new terms signed by the lender
func (f *fixture) request(t *testing.T, loanID uint64, terms core.LoanTerms, nonce uint64) core.RolloverRequest {
	terms.Deadline = f.now + 3600
	terms.Nonce = nonce

	sig, err := signature.Sign(f.signatures.Digest(terms, nil), f.lenderKey)
	require.Nil(t, err)

	return core.RolloverRequest{LoanID: loanID, NewTerms: terms, Lender: f.lender, Signature: sig}
}

func (f *fixture) balance(owner common.Address) string {
	return f.assets.BalanceOf(f.ctx, usd, owner).String()
}

func (f *fixture) state(t *testing.T, loanID uint64) core.LoanState {
	loan, err := f.ledger.Loan(f.ctx, loanID)
	require.Nil(t, err)
	return loan.State
}

func TestRolloverRoundTrip(t *testing.T) {
	f := newFixture(t, 0)
	punk := core.CollateralKey{Address: punks, ID: 1}
	loanID := f.open(t, singleTerms(punk, 1000))

	quote, err := f.service.Quote(f.ctx, loanID, decimal.NewFromInt(1050))
	require.Nil(t, err)
	assert.True(t, quote.NeedFromBorrower.IsZero())
	assert.True(t, quote.LeftoverPrincipal.IsZero())

	result, err := f.service.RolloverLoan(f.ctx, alice, f.request(t, loanID, singleTerms(punk, 1050), 1))
	require.Nil(t, err)
	assert.Equal(t, uint64(2), result.NewLoanID)
	assert.True(t, result.NeedFromBorrower.IsZero())
	assert.True(t, result.LeftoverPrincipal.IsZero())

	assert.Equal(t, core.LoanStateRepaid, f.state(t, loanID))
	assert.Equal(t, core.LoanStateActive, f.state(t, result.NewLoanID))

	loan, err := f.ledger.Loan(f.ctx, result.NewLoanID)
	require.Nil(t, err)
	assert.Equal(t, alice, loan.Borrower)
	assert.Equal(t, f.lender, loan.Lender)
	assert.Equal(t, "1050", loan.Balance.String())

	assert.Equal(t, "11000", f.balance(alice))
	assert.Equal(t, "9000", f.balance(f.lender))
	assert.Equal(t, "0", f.balance(f.service.Address()))
	assert.Equal(t, "100000", f.balance(f.flash.Address()))
	assert.True(t, f.ledger.IsCollateralLocked(f.ctx, punk))

	owner, err := f.assets.OwnerOf(f.ctx, punk)
	require.Nil(t, err)
	assert.Equal(t, f.ledger.Address(), owner)

	require.Len(t, f.events.events, 1)
	assert.Equal(t, core.EventLoanRolledOver, f.events.events[0].Kind)
}

func TestRolloverSettlement(t *testing.T) {
	f := newFixture(t, 100)
	punk := core.CollateralKey{Address: punks, ID: 1}
	loanID := f.open(t, singleTerms(punk, 1000))

	// payoff 1050, flash fee 10
	result, err := f.service.RolloverLoan(f.ctx, alice, f.request(t, loanID, singleTerms(punk, 1000), 1))
	require.Nil(t, err)
	assert.Equal(t, "60", result.NeedFromBorrower.String())
	assert.True(t, result.LeftoverPrincipal.IsZero())
	assert.Equal(t, "10", result.FlashFee.String())
	assert.Equal(t, "10940", f.balance(alice))
	assert.Equal(t, "100010", f.balance(f.flash.Address()))

	quote, err := f.service.Quote(f.ctx, result.NewLoanID, decimal.NewFromInt(2000))
	require.Nil(t, err)
	assert.True(t, quote.NeedFromBorrower.IsZero())
	assert.Equal(t, "940", quote.LeftoverPrincipal.String())

	result, err = f.service.RolloverLoan(f.ctx, alice, f.request(t, result.NewLoanID, singleTerms(punk, 2000), 2))
	require.Nil(t, err)
	assert.Equal(t, "940", result.LeftoverPrincipal.String())
	assert.Equal(t, "11880", f.balance(alice))
	assert.Equal(t, "0", f.balance(f.service.Address()))
}

func TestRolloverInstallmentLoan(t *testing.T) {
	f := newFixture(t, 0)
	punk := core.CollateralKey{Address: punks, ID: 1}

	terms := singleTerms(punk, 1000)
	terms.InterestRate = decimal.New(1000, 18)
	terms.DurationSecs = 36000
	terms.NumInstallments = 10
	loanID := f.open(t, terms)

	// balance 1000 plus one period of interest
	f.now = f.start + 1
	result, err := f.service.RolloverLoan(f.ctx, alice, f.request(t, loanID, singleTerms(punk, 1010), 1))
	require.Nil(t, err)
	assert.True(t, result.NeedFromBorrower.IsZero())
	assert.True(t, result.LeftoverPrincipal.IsZero())
	assert.Equal(t, core.LoanStateRepaid, f.state(t, loanID))
	assert.Equal(t, core.LoanStateActive, f.state(t, result.NewLoanID))
}

func TestRolloverRejected(t *testing.T) {
	f := newFixture(t, 0)
	punk := core.CollateralKey{Address: punks, ID: 1}
	loanID := f.open(t, singleTerms(punk, 1000))

	_, err := f.service.RolloverLoan(f.ctx, carol, f.request(t, loanID, singleTerms(punk, 1050), 1))
	assert.ErrorIs(t, err, core.ErrNotBorrower)

	euros := singleTerms(punk, 1050)
	euros.PayableCurrency = eur
	_, err = f.service.RolloverLoan(f.ctx, alice, f.request(t, loanID, euros, 1))
	assert.ErrorIs(t, err, core.ErrCurrencyMismatch)

	_, err = f.service.RolloverLoan(f.ctx, alice, f.request(t, loanID, singleTerms(core.CollateralKey{Address: punks, ID: 2}, 1050), 1))
	assert.ErrorIs(t, err, core.ErrCollateralMismatch)

	req := f.request(t, loanID, singleTerms(punk, 1050), 1)
	req.Migrate = true
	_, err = f.service.RolloverLoan(f.ctx, alice, req)
	assert.ErrorIs(t, err, core.ErrCollateralMismatch)

	// a bad signature aborts after the old loan was repaid inside the callback
	req = f.request(t, loanID, singleTerms(punk, 1050), 1)
	req.Signature[10] ^= 0xff
	_, err = f.service.RolloverLoan(f.ctx, alice, req)
	assert.ErrorIs(t, err, core.ErrInvalidSignature)

	assert.Equal(t, core.LoanStateActive, f.state(t, loanID))
	holder, err := f.ledger.BorrowerNotes().OwnerOf(f.ctx, loanID)
	require.Nil(t, err)
	assert.Equal(t, alice, holder)
	assert.Equal(t, "0", f.balance(f.service.Address()))
	assert.Equal(t, "100000", f.balance(f.flash.Address()))
	assert.Empty(t, f.events.events)

	// new principal short of the payoff, borrower cannot cover the gap
	require.Nil(t, f.assets.Transfer(f.ctx, usd, alice, carol, decimal.NewFromInt(11_000)))
	_, err = f.service.RolloverLoan(f.ctx, alice, f.request(t, loanID, singleTerms(punk, 100), 1))
	assert.ErrorIs(t, err, core.ErrInsufficientBalance)
	assert.Equal(t, core.LoanStateActive, f.state(t, loanID))
}

func TestUnexpectedCallback(t *testing.T) {
	f := newFixture(t, 0)
	borrower, ok := f.service.(core.FlashBorrower)
	require.True(t, ok)

	err := borrower.OnFlashLoan(f.ctx, f.flash.Address(), usd, decimal.NewFromInt(1), decimal.Zero, nil)
	assert.ErrorIs(t, err, core.ErrUnexpectedCallback)
}

func TestCallbackOutsideOperation(t *testing.T) {
	f := newFixture(t, 0)
	punk := core.CollateralKey{Address: punks, ID: 1}
	loanID := f.open(t, singleTerms(punk, 1000))

	borrower, ok := f.service.(core.FlashBorrower)
	require.True(t, ok)

	// fires while the rollover waits on its flash loan
	var callbackErr error
	f.assets.SetReceiver(f.service.Address(), func(ctx context.Context, key core.CollateralKey, from common.Address) error {
		callbackErr = borrower.OnFlashLoan(context.Background(), f.flash.Address(), usd, decimal.NewFromInt(1), decimal.Zero, nil)
		return nil
	})

	_, err := f.service.RolloverLoan(f.ctx, alice, f.request(t, loanID, singleTerms(punk, 1050), 1))
	require.Nil(t, err)
	assert.ErrorIs(t, callbackErr, core.ErrUnexpectedCallback)
}

func TestRolloverMigrateItem(t *testing.T) {
	f := newFixture(t, 0)
	punk := core.CollateralKey{Address: punks, ID: 1}
	loanID := f.open(t, singleTerms(punk, 1000))

	target := core.CollateralKey{Address: f.vaults.Address(), ID: f.vaults.NextID(f.ctx)}
	req := f.request(t, loanID, singleTerms(target, 1050), 1)
	req.Migrate = true

	result, err := f.service.RolloverLoan(f.ctx, alice, req)
	require.Nil(t, err)
	assert.Equal(t, target.ID, result.NewVaultID)

	contents, err := f.vaults.Contents(f.ctx, target.ID)
	require.Nil(t, err)
	require.Len(t, contents, 1)
	assert.Equal(t, punk, contents[0].Key())

	assert.True(t, f.ledger.IsCollateralLocked(f.ctx, target))
	assert.False(t, f.ledger.IsCollateralLocked(f.ctx, punk))
}

func TestRolloverMigrateVault(t *testing.T) {
	f := newFixture(t, 0)

	oldID, err := f.vaults.Create(f.ctx, alice)
	require.Nil(t, err)
	require.Nil(t, f.vaults.Deposit(f.ctx, alice, oldID, core.VaultItem{Class: core.AssetUnique, Asset: punks, ID: 2}))
	require.Nil(t, f.vaults.Deposit(f.ctx, alice, oldID, core.VaultItem{Class: core.AssetFungible, Asset: usd, Amount: decimal.NewFromInt(500)}))

	old := core.CollateralKey{Address: f.vaults.Address(), ID: oldID}
	loanID := f.open(t, singleTerms(old, 1000))

	target := core.CollateralKey{Address: f.vaults.Address(), ID: f.vaults.NextID(f.ctx)}
	req := f.request(t, loanID, singleTerms(target, 1050), 1)
	req.Migrate = true

	_, err = f.service.RolloverLoan(f.ctx, alice, req)
	require.Nil(t, err)

	contents, err := f.vaults.Contents(f.ctx, target.ID)
	require.Nil(t, err)
	assert.Len(t, contents, 2)

	emptied, err := f.vaults.Contents(f.ctx, oldID)
	require.Nil(t, err)
	assert.Empty(t, emptied)

	owner, err := f.assets.OwnerOf(f.ctx, old)
	require.Nil(t, err)
	assert.Equal(t, alice, owner)
}

func TestRolloverMigrateUnsupported(t *testing.T) {
	f := newFixture(t, 0)
	relic := core.CollateralKey{Address: relics, ID: 5}
	require.Nil(t, f.assets.MintItem(f.ctx, relic, alice))

	oldID, err := f.vaults.Create(f.ctx, alice)
	require.Nil(t, err)
	require.Nil(t, f.vaults.Deposit(f.ctx, alice, oldID, core.VaultItem{Class: core.AssetUnique, Asset: punks, ID: 2}))
	require.Nil(t, f.vaults.Deposit(f.ctx, alice, oldID, core.VaultItem{Class: core.AssetOther, Asset: relics, ID: 5}))

	loanID := f.open(t, singleTerms(core.CollateralKey{Address: f.vaults.Address(), ID: oldID}, 1000))

	target := core.CollateralKey{Address: f.vaults.Address(), ID: f.vaults.NextID(f.ctx)}
	req := f.request(t, loanID, singleTerms(target, 1050), 1)
	req.Migrate = true

	_, err = f.service.RolloverLoan(f.ctx, alice, req)
	assert.ErrorIs(t, err, core.ErrUnsupportedAsset)

	assert.Equal(t, core.LoanStateActive, f.state(t, loanID))
	contents, err := f.vaults.Contents(f.ctx, oldID)
	require.Nil(t, err)
	assert.Len(t, contents, 2)
	assert.Equal(t, target.ID, f.vaults.NextID(f.ctx))
}
