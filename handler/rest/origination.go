package rest

import (
	"errors"
	"net/http"

	"pledge/core"
	"pledge/handler/param"
	"pledge/handler/render"
	"pledge/handler/views"
	"pledge/pkg/id"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-chi/chi"
)

func originateHandler(origination core.OriginationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var body struct {
			Terms      core.LoanTerms   `json:"terms" valid:"-"`
			Borrower   string           `json:"borrower" valid:"address,required"`
			Lender     string           `json:"lender" valid:"address,required"`
			Signature  hexutil.Bytes    `json:"signature" valid:"-"`
			Predicates []core.Predicate `json:"predicates" valid:"-"`
		}
		if err := param.Binding(r, &body); err != nil {
			render.BadRequest(w, err)
			return
		}

		if len(body.Signature) == 0 {
			render.BadRequest(w, errors.New("signature required"))
			return
		}

		var (
			borrower = common.HexToAddress(body.Borrower)
			lender   = common.HexToAddress(body.Lender)
			loanID   uint64
			err      error
		)

		if len(body.Predicates) > 0 {
			loanID, err = origination.InitializeLoanWithItems(ctx, caller(r), body.Terms, borrower, lender, body.Signature, body.Predicates)
		} else {
			loanID, err = origination.InitializeLoan(ctx, caller(r), body.Terms, borrower, lender, body.Signature)
		}

		if err != nil {
			render.Error(w, err)
			return
		}

		render.JSON(w, views.Created{LoanID: loanID})
	}
}

func approveHandler(origination core.OriginationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Signer   string `json:"signer" valid:"address,required"`
			Approved bool   `json:"approved"`
		}
		if err := param.Binding(r, &body); err != nil {
			render.BadRequest(w, err)
			return
		}

		if err := origination.Approve(r.Context(), caller(r), common.HexToAddress(body.Signer), body.Approved); err != nil {
			render.Error(w, err)
			return
		}

		render.JSON(w, views.DefaultSuccess)
	}
}

func nonceHandler(ledger core.LedgerService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		signer := chi.URLParam(r, "signer")
		if !common.IsHexAddress(signer) {
			render.BadRequest(w, errors.New("invalid signer"))
			return
		}

		view := views.Nonce{
			Signer: common.HexToAddress(signer).Hex(),
			Nonce:  id.Str2Num(chi.URLParam(r, "nonce")),
		}
		view.Used = ledger.IsNonceUsed(r.Context(), common.HexToAddress(signer), view.Nonce)
		render.JSON(w, view)
	}
}

func cancelNonceHandler(ledger core.LedgerService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Nonce uint64 `json:"nonce"`
		}
		if err := param.Binding(r, &body); err != nil {
			render.BadRequest(w, err)
			return
		}

		if err := ledger.CancelNonce(r.Context(), caller(r), body.Nonce); err != nil {
			render.Error(w, err)
			return
		}

		render.JSON(w, views.DefaultSuccess)
	}
}

func collateralHandler(ledger core.LedgerService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		addr := chi.URLParam(r, "address")
		if !common.IsHexAddress(addr) {
			render.BadRequest(w, errors.New("invalid collateral address"))
			return
		}

		key := core.CollateralKey{
			Address: common.HexToAddress(addr),
			ID:      id.Str2Num(chi.URLParam(r, "id")),
		}

		render.JSON(w, views.Collateral{
			Address: key.Address.Hex(),
			ID:      key.ID,
			Locked:  ledger.IsCollateralLocked(r.Context(), key),
		})
	}
}
