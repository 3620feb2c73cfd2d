package rest

import (
	"errors"
	"net/http"

	"pledge/core"
	"pledge/handler/auth"
	"pledge/handler/render"
	"pledge/handler/request"
	"pledge/pkg/id"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi"
)

const (
	defaultLimit = 100
	maxLimit     = 500
)

var errInvalidLoanID = errors.New("invalid loan id")

// Handle handle rest api request
func Handle(
	ledger core.LedgerService,
	repayments core.RepaymentService,
	origination core.OriginationService,
	rollovers core.RolloverService,
	fees core.FeeService,
	archives core.LoanStore,
) http.Handler {
	router := chi.NewRouter()

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		render.NotFoundRequest(w, errors.New("not found"))
	})

	router.Get("/loans", listLoansHandler(ledger))
	router.Get("/loans/{id}", loanHandler(ledger, repayments))
	router.Get("/loans/{id}/due", amountsDueHandler(repayments))
	router.Get("/loans/{id}/payoff", payoffHandler(repayments))
	router.Get("/loans/{id}/rollover-quote", rolloverQuoteHandler(rollovers))
	router.Get("/archives", listArchivesHandler(archives))
	router.Get("/archives/{id}", archiveHandler(archives))
	router.Get("/nonces/{signer}/{nonce}", nonceHandler(ledger))
	router.Get("/collateral/{address}/{id}", collateralHandler(ledger))
	router.Get("/fees", feeHandler(ledger, fees))

	router.Group(func(r chi.Router) {
		r.Use(auth.LoginRequired)

		r.Post("/loans", originateHandler(origination))
		r.Post("/loans/{id}/repay", repayHandler(repayments))
		r.Post("/loans/{id}/repay-part", repayPartHandler(repayments))
		r.Post("/loans/{id}/close", closeLoanHandler(repayments))
		r.Post("/loans/{id}/claim", claimHandler(repayments))
		r.Post("/loans/{id}/rollover", rolloverHandler(rollovers))
		r.Post("/approvals", approveHandler(origination))
		r.Post("/nonces/cancel", cancelNonceHandler(ledger))
		r.Put("/fees", setFeeHandler(fees))
		r.Post("/fees/withdraw", withdrawFeesHandler(ledger))
	})

	return router
}

func loanID(r *http.Request) (uint64, error) {
	loanID := id.Str2Num(chi.URLParam(r, "id"))
	if loanID == 0 {
		return 0, errInvalidLoanID
	}

	return loanID, nil
}

// caller is set by auth.LoginRequired
func caller(r *http.Request) common.Address {
	addr, _ := request.NewContext(r.Context()).GetCaller()
	return addr
}

func limitOf(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}

	if limit > maxLimit {
		return maxLimit
	}

	return limit
}
