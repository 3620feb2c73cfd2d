package rest

import (
	"errors"
	"fmt"
	"net/http"

	"pledge/core"
	"pledge/handler/param"
	"pledge/handler/render"
	"pledge/handler/views"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/fox-one/pkg/logger"
	"github.com/shopspring/decimal"
)

type loanFilterParams struct {
	State    string `json:"state"`
	Borrower string `json:"borrower" valid:"address"`
	Lender   string `json:"lender" valid:"address"`
	Offset   uint64 `json:"offset"`
	Limit    int    `json:"limit"`
}

func (p loanFilterParams) filter() (core.LoanFilter, error) {
	filter := core.LoanFilter{
		Offset: p.Offset,
		Limit:  limitOf(p.Limit),
	}

	if p.State != "" {
		if filter.State = core.ParseLoanState(p.State); filter.State == 0 {
			return filter, fmt.Errorf("unknown state %q", p.State)
		}
	}

	if p.Borrower != "" {
		filter.Borrower = common.HexToAddress(p.Borrower)
	}

	if p.Lender != "" {
		filter.Lender = common.HexToAddress(p.Lender)
	}

	return filter, nil
}

func listLoansHandler(ledger core.LedgerService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var params loanFilterParams
		if err := param.Binding(r, &params); err != nil {
			render.BadRequest(w, err)
			return
		}

		filter, err := params.filter()
		if err != nil {
			render.BadRequest(w, err)
			return
		}

		loans, err := ledger.Loans(r.Context(), filter)
		if err != nil {
			render.Error(w, err)
			return
		}

		items := make([]views.Loan, 0, len(loans))
		for _, loan := range loans {
			items = append(items, views.LoanView(loan))
		}

		render.JSON(w, items)
	}
}

func loanHandler(ledger core.LedgerService, repayments core.RepaymentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		loanID, err := loanID(r)
		if err != nil {
			render.BadRequest(w, err)
			return
		}

		loan, err := ledger.Loan(ctx, loanID)
		if err != nil {
			render.Error(w, err)
			return
		}

		view := views.LoanView(loan)
		if loan.IsActive() {
			if due, err := repayments.AmountsDue(ctx, loanID); err == nil {
				view.Due = &due
			}

			if payoff, err := repayments.PayoffAmount(ctx, loanID); err == nil {
				view.Payoff = &payoff
			}
		}

		render.JSON(w, view)
	}
}

func amountsDueHandler(repayments core.RepaymentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		loanID, err := loanID(r)
		if err != nil {
			render.BadRequest(w, err)
			return
		}

		due, err := repayments.AmountsDue(r.Context(), loanID)
		if err != nil {
			render.Error(w, err)
			return
		}

		render.JSON(w, render.H{
			"interest":  due.Interest,
			"late_fees": due.LateFees,
			"missed":    due.Missed,
			"total":     due.Total(),
		})
	}
}

func payoffHandler(repayments core.RepaymentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		loanID, err := loanID(r)
		if err != nil {
			render.BadRequest(w, err)
			return
		}

		payoff, err := repayments.PayoffAmount(r.Context(), loanID)
		if err != nil {
			render.Error(w, err)
			return
		}

		render.JSON(w, render.H{"loan_id": loanID, "payoff": payoff})
	}
}

func listArchivesHandler(archives core.LoanStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var params loanFilterParams
		if err := param.Binding(r, &params); err != nil {
			render.BadRequest(w, err)
			return
		}

		filter, err := params.filter()
		if err != nil {
			render.BadRequest(w, err)
			return
		}

		list, err := archives.List(r.Context(), filter)
		if err != nil {
			logger.FromContext(r.Context()).WithError(err).Errorln("archives.List")
			render.Error(w, err)
			return
		}

		items := make([]views.Loan, 0, len(list))
		for _, archive := range list {
			items = append(items, views.ArchiveView(archive))
		}

		render.JSON(w, items)
	}
}

func archiveHandler(archives core.LoanStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		loanID, err := loanID(r)
		if err != nil {
			render.BadRequest(w, err)
			return
		}

		archive, err := archives.Find(r.Context(), loanID)
		if err != nil {
			logger.FromContext(r.Context()).WithError(err).Errorln("archives.Find")
			render.Error(w, err)
			return
		}

		if archive.ID == 0 {
			render.Error(w, core.ErrLoanNotFound)
			return
		}

		render.JSON(w, views.ArchiveView(archive))
	}
}

func repayHandler(repayments core.RepaymentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		loanID, err := loanID(r)
		if err != nil {
			render.BadRequest(w, err)
			return
		}

		if err := repayments.Repay(r.Context(), caller(r), loanID); err != nil {
			render.Error(w, err)
			return
		}

		render.JSON(w, views.DefaultSuccess)
	}
}

func repayPartHandler(repayments core.RepaymentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		loanID, err := loanID(r)
		if err != nil {
			render.BadRequest(w, err)
			return
		}

		var body struct {
			// empty pays the minimum due
			Amount string `json:"amount" valid:"amount"`
		}
		if err := param.Binding(r, &body); err != nil {
			render.BadRequest(w, err)
			return
		}

		if body.Amount == "" {
			err = repayments.RepayPartMinimum(ctx, caller(r), loanID)
		} else {
			err = repayments.RepayPart(ctx, caller(r), loanID, decimal.RequireFromString(body.Amount))
		}

		if err != nil {
			render.Error(w, err)
			return
		}

		render.JSON(w, views.DefaultSuccess)
	}
}

func closeLoanHandler(repayments core.RepaymentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		loanID, err := loanID(r)
		if err != nil {
			render.BadRequest(w, err)
			return
		}

		if err := repayments.CloseLoan(r.Context(), caller(r), loanID); err != nil {
			render.Error(w, err)
			return
		}

		render.JSON(w, views.DefaultSuccess)
	}
}

func claimHandler(repayments core.RepaymentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		loanID, err := loanID(r)
		if err != nil {
			render.BadRequest(w, err)
			return
		}

		if err := repayments.Claim(r.Context(), caller(r), loanID); err != nil {
			render.Error(w, err)
			return
		}

		render.JSON(w, views.DefaultSuccess)
	}
}

func rolloverQuoteHandler(rollovers core.RolloverService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		loanID, err := loanID(r)
		if err != nil {
			render.BadRequest(w, err)
			return
		}

		var params struct {
			Principal string `json:"principal" valid:"amount,required"`
		}
		if err := param.Binding(r, &params); err != nil {
			render.BadRequest(w, err)
			return
		}

		quote, err := rollovers.Quote(r.Context(), loanID, decimal.RequireFromString(params.Principal))
		if err != nil {
			render.Error(w, err)
			return
		}

		render.JSON(w, quote)
	}
}

func rolloverHandler(rollovers core.RolloverService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		loanID, err := loanID(r)
		if err != nil {
			render.BadRequest(w, err)
			return
		}

		var body struct {
			NewTerms  core.LoanTerms `json:"new_terms" valid:"-"`
			Lender    string         `json:"lender" valid:"address,required"`
			Signature hexutil.Bytes  `json:"signature" valid:"-"`
			Migrate   bool           `json:"migrate"`
		}
		if err := param.Binding(r, &body); err != nil {
			render.BadRequest(w, err)
			return
		}

		if len(body.Signature) == 0 {
			render.BadRequest(w, errors.New("signature required"))
			return
		}

		result, err := rollovers.RolloverLoan(r.Context(), caller(r), core.RolloverRequest{
			LoanID:    loanID,
			NewTerms:  body.NewTerms,
			Lender:    common.HexToAddress(body.Lender),
			Signature: body.Signature,
			Migrate:   body.Migrate,
		})
		if err != nil {
			render.Error(w, err)
			return
		}

		render.JSON(w, result)
	}
}
