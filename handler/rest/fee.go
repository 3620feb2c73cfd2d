package rest

import (
	"net/http"

	"pledge/core"
	"pledge/handler/param"
	"pledge/handler/render"
	"pledge/handler/views"

	"github.com/ethereum/go-ethereum/common"
)

func feeHandler(ledger core.LedgerService, fees core.FeeService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var params struct {
			Currency string `json:"currency" valid:"address"`
		}
		if err := param.Binding(r, &params); err != nil {
			render.BadRequest(w, err)
			return
		}

		view := views.Fee{OriginationFeeBps: fees.OriginationFee(ctx)}
		if params.Currency != "" {
			currency := common.HexToAddress(params.Currency)
			collected := ledger.CollectedFees(ctx, currency)
			view.Currency = currency.Hex()
			view.Collected = &collected
		}

		render.JSON(w, view)
	}
}

func setFeeHandler(fees core.FeeService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Bps uint64 `json:"bps"`
		}
		if err := param.Binding(r, &body); err != nil {
			render.BadRequest(w, err)
			return
		}

		if err := fees.SetOriginationFee(r.Context(), caller(r), body.Bps); err != nil {
			render.Error(w, err)
			return
		}

		render.JSON(w, views.DefaultSuccess)
	}
}

func withdrawFeesHandler(ledger core.LedgerService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Currency string `json:"currency" valid:"address,required"`
			To       string `json:"to" valid:"address,required"`
		}
		if err := param.Binding(r, &body); err != nil {
			render.BadRequest(w, err)
			return
		}

		amount, err := ledger.WithdrawFees(r.Context(), caller(r), common.HexToAddress(body.Currency), common.HexToAddress(body.To))
		if err != nil {
			render.Error(w, err)
			return
		}

		render.JSON(w, render.H{"amount": amount})
	}
}
