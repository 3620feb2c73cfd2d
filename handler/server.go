package handler

import (
	"net/http"

	"pledge/core"
	"pledge/handler/auth"
	"pledge/handler/render"
	"pledge/handler/rest"

	"github.com/go-chi/chi"
	"github.com/twitchtv/twirp"
)

// Server server
type Server struct {
	cfg         *core.Config
	ledger      core.LedgerService
	repayments  core.RepaymentService
	origination core.OriginationService
	rollovers   core.RolloverService
	fees        core.FeeService
	archives    core.LoanStore
}

// New new server function
func New(
	cfg *core.Config,
	ledger core.LedgerService,
	repayments core.RepaymentService,
	origination core.OriginationService,
	rollovers core.RolloverService,
	fees core.FeeService,
	archives core.LoanStore,
) Server {
	return Server{
		cfg:         cfg,
		ledger:      ledger,
		repayments:  repayments,
		origination: origination,
		rollovers:   rollovers,
		fees:        fees,
		archives:    archives,
	}
}

// HandleRestAPI handle restful apis
func (s Server) HandleRestAPI() http.Handler {
	r := chi.NewRouter()
	r.Use(resetRoutePath)
	r.Use(render.WrapResponse(false))
	r.Use(auth.HandleAuthentication(s.cfg.APITokens))
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		render.Error(w, twirp.NotFoundError("not found"))
	})

	r.Mount("/", rest.Handle(
		s.ledger,
		s.repayments,
		s.origination,
		s.rollovers,
		s.fees,
		s.archives,
	))

	return r
}

func resetRoutePath(next http.Handler) http.Handler {
	fn := func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if c := chi.RouteContext(ctx); c != nil {
			c.RoutePath = r.URL.Path
		}

		next.ServeHTTP(w, r)
	}

	return http.HandlerFunc(fn)
}
