package handler

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"pledge/core"
	"pledge/handler/auth"
	"pledge/internal/atomic"
	"pledge/service/asset"
	"pledge/service/ledger"
	"pledge/service/note"
	"pledge/service/origination"
	"pledge/service/permission"
	"pledge/service/repayment"
	"pledge/service/signature"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const token = "secret"

var (
	usd   = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	punks = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	admin = common.HexToAddress("0x0000000000000000000000000000000000000a00")
)

type noFee struct{}

func (noFee) OriginationFee(ctx context.Context) uint64 { return 0 }

func (noFee) SetOriginationFee(ctx context.Context, caller common.Address, bps uint64) error {
	return core.ErrOperationForbidden
}

type envelope struct {
	Data json.RawMessage `json:"data"`
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Hint string          `json:"hint"`
}

type fixture struct {
	t          *testing.T
	now        int64
	assets     core.AssetService
	signatures core.SignatureService
	handler    http.Handler

	borrower    common.Address
	lender      common.Address
	lenderKey   *ecdsa.PrivateKey
	borrowerKey *ecdsa.PrivateKey
}

func newFixture(t *testing.T) *fixture {
	ctx := context.Background()
	exec := atomic.New()
	f := &fixture{t: t, now: 1_000_000}
	clock := func() int64 { return f.now }

	f.assets = asset.New(exec, nil)
	perms := permission.New(exec, admin)
	l := ledger.New(exec, nil, f.assets, perms, noFee{}, note.New(exec, nil, "borrower"), note.New(exec, nil, "lender"), nil, clock)
	repayments := repayment.New(exec, l, f.assets, clock)
	f.signatures = signature.New(core.Domain{Name: "pledge", Version: "1", ChainID: 1}, nil)
	originator := origination.New(exec, nil, l, f.signatures, perms, clock)

	require.Nil(t, perms.Grant(ctx, admin, core.RoleOriginator, originator.Address()))
	require.Nil(t, perms.Grant(ctx, admin, core.RoleRepayer, repayments.Address()))
	require.Nil(t, perms.Grant(ctx, admin, core.RoleClaimer, repayments.Address()))

	var err error
	f.borrowerKey, err = crypto.GenerateKey()
	require.Nil(t, err)
	f.lenderKey, err = crypto.GenerateKey()
	require.Nil(t, err)
	f.borrower = crypto.PubkeyToAddress(f.borrowerKey.PublicKey)
	f.lender = crypto.PubkeyToAddress(f.lenderKey.PublicKey)

	require.Nil(t, f.assets.Mint(ctx, usd, f.lender, decimal.NewFromInt(10_000)))
	require.Nil(t, f.assets.Mint(ctx, usd, f.borrower, decimal.NewFromInt(10_000)))
	require.Nil(t, f.assets.MintItem(ctx, core.CollateralKey{Address: punks, ID: 1}, f.borrower))

	cfg := &core.Config{APITokens: []string{token}}
	f.handler = New(cfg, l, repayments, originator, nil, noFee{}, nil).HandleRestAPI()
	return f
}

func (f *fixture) do(method, path string, caller *common.Address, body interface{}) (int, envelope) {
	var buf bytes.Buffer
	if body != nil {
		require.Nil(f.t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	if caller != nil {
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set(auth.HeaderCaller, caller.Hex())
	}

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	var resp envelope
	require.Nil(f.t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return rec.Code, resp
}

func (f *fixture) originateBody() interface{} {
	terms := core.LoanTerms{
		Principal:         decimal.NewFromInt(1000),
		InterestRate:      decimal.New(500, 18),
		DurationSecs:      86400,
		CollateralAddress: punks,
		CollateralID:      1,
		PayableCurrency:   usd,
		Deadline:          f.now + 3600,
		Nonce:             1,
	}

	sig, err := signature.Sign(f.signatures.Digest(terms, nil), f.lenderKey)
	require.Nil(f.t, err)

	return map[string]interface{}{
		"terms":     terms,
		"borrower":  f.borrower.Hex(),
		"lender":    f.lender.Hex(),
		"signature": hexutil.Encode(sig),
	}
}

func TestOriginateAndRepay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	status, resp := f.do(http.MethodPost, "/loans", nil, f.originateBody())
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "authentication required", resp.Msg)

	status, resp = f.do(http.MethodPost, "/loans", &f.borrower, f.originateBody())
	require.Equal(t, http.StatusOK, status, resp.Msg)
	var created struct {
		LoanID uint64 `json:"loan_id"`
	}
	require.Nil(t, json.Unmarshal(resp.Data, &created))
	assert.Equal(t, uint64(1), created.LoanID)

	status, resp = f.do(http.MethodGet, "/loans/1", nil, nil)
	require.Equal(t, http.StatusOK, status)
	var loan struct {
		State  string `json:"state"`
		Payoff string `json:"payoff"`
	}
	require.Nil(t, json.Unmarshal(resp.Data, &loan))
	assert.Equal(t, "active", loan.State)
	assert.Equal(t, "1050", loan.Payoff)

	// nonce consumed, same signature can not be replayed
	status, resp = f.do(http.MethodPost, "/loans", &f.borrower, f.originateBody())
	assert.Equal(t, http.StatusPreconditionFailed, status)
	assert.Equal(t, int(core.ErrNonceAlreadyUsed), resp.Code)

	status, _ = f.do(http.MethodPost, "/loans/1/repay", &f.borrower, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "9950", f.assets.BalanceOf(ctx, usd, f.borrower).String())

	status, resp = f.do(http.MethodPost, "/loans/1/repay", &f.borrower, nil)
	assert.Equal(t, http.StatusPreconditionFailed, status)
	assert.Equal(t, int(core.ErrInvalidLoanState), resp.Code)

	status, resp = f.do(http.MethodGet, "/loans?state=repaid", nil, nil)
	require.Equal(t, http.StatusOK, status)
	var loans []json.RawMessage
	require.Nil(t, json.Unmarshal(resp.Data, &loans))
	assert.Len(t, loans, 1)
}

func TestRequestErrors(t *testing.T) {
	f := newFixture(t)

	status, resp := f.do(http.MethodGet, "/loans?borrower=nope", nil, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, 100001, resp.Code)

	status, _ = f.do(http.MethodGet, "/loans?state=lost", nil, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = f.do(http.MethodGet, "/loans/abc", nil, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, resp = f.do(http.MethodGet, "/loans/7", nil, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, int(core.ErrLoanNotFound), resp.Code)

	status, resp = f.do(http.MethodPost, "/loans/7/claim", &f.lender, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, resp = f.do(http.MethodPut, "/fees", &f.lender, map[string]interface{}{"bps": 10})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, int(core.ErrOperationForbidden), resp.Code)
}

func TestNonceAndCollateral(t *testing.T) {
	f := newFixture(t)

	status, resp := f.do(http.MethodGet, "/nonces/"+f.lender.Hex()+"/1", nil, nil)
	require.Equal(t, http.StatusOK, status)
	var nonce struct {
		Used bool `json:"used"`
	}
	require.Nil(t, json.Unmarshal(resp.Data, &nonce))
	assert.False(t, nonce.Used)

	status, _ = f.do(http.MethodPost, "/nonces/cancel", &f.lender, map[string]interface{}{"nonce": 1})
	require.Equal(t, http.StatusOK, status)

	_, resp = f.do(http.MethodGet, "/nonces/"+f.lender.Hex()+"/1", nil, nil)
	require.Nil(t, json.Unmarshal(resp.Data, &nonce))
	assert.True(t, nonce.Used)

	// the lender's signature on nonce 1 is void now
	status, resp = f.do(http.MethodPost, "/loans", &f.borrower, f.originateBody())
	assert.Equal(t, http.StatusPreconditionFailed, status)
	assert.Equal(t, int(core.ErrNonceAlreadyUsed), resp.Code)

	status, resp = f.do(http.MethodGet, "/collateral/"+punks.Hex()+"/1", nil, nil)
	require.Equal(t, http.StatusOK, status)
	var collateral struct {
		Locked bool `json:"locked"`
	}
	require.Nil(t, json.Unmarshal(resp.Data, &collateral))
	assert.False(t, collateral.Locked)
}
