package auth

import (
	"net/http"
	"strings"

	"pledge/handler/render"
	"pledge/handler/request"

	"github.com/asaskevich/govalidator"
	"github.com/ethereum/go-ethereum/common"
	"github.com/fox-one/pkg/logger"
	"github.com/twitchtv/twirp"
)

// HeaderCaller address the token holder acts for
const HeaderCaller = "X-Pledge-Caller"

// HandleAuthentication accepts requests carrying one of tokens as bearer
// token and binds the caller address from HeaderCaller to the context
func HandleAuthentication(tokens []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := logger.FromContext(ctx)

			accessToken := getBearerToken(r)
			if accessToken == "" || !govalidator.IsIn(accessToken, tokens...) {
				next.ServeHTTP(w, r)
				return
			}

			caller := r.Header.Get(HeaderCaller)
			if !common.IsHexAddress(caller) {
				log.Debugln("invalid caller header", caller)
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(request.NewContext(ctx).WithCaller(common.HexToAddress(caller))))
		}

		return http.HandlerFunc(fn)
	}
}

// LoginRequired rejects requests without an authenticated caller
func LoginRequired(next http.Handler) http.Handler {
	fn := func(w http.ResponseWriter, r *http.Request) {
		if _, ok := request.NewContext(r.Context()).GetCaller(); !ok {
			render.Error(w, twirp.NewError(twirp.Unauthenticated, "authentication required"))
			return
		}

		next.ServeHTTP(w, r)
	}

	return http.HandlerFunc(fn)
}

func getBearerToken(r *http.Request) string {
	s := r.Header.Get("Authorization")
	return strings.TrimPrefix(s, "Bearer ")
}
