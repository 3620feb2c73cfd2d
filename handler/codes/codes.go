package codes

import (
	"errors"
	"net/http"
	"strconv"

	"pledge/core"

	"github.com/twitchtv/twirp"
)

const (
	// CustomCodeKey code key
	CustomCodeKey = "custom_code"

	// InvalidArguments invalid arguments
	InvalidArguments = 100001
)

// With with specified error
func With(err error, code int) error {
	twerr, ok := err.(twirp.Error)
	if !ok {
		twerr = twirp.InternalErrorWith(err)
	}

	return twerr.WithMeta(CustomCodeKey, strconv.Itoa(code))
}

// Get get error code
func Get(code twirp.ErrorCode) int {
	switch code {
	case twirp.InvalidArgument:
		return InvalidArguments
	default:
		return twirp.ServerHTTPStatusFromErrorCode(code)
	}
}

// FromKind twirp code of an error kind
func FromKind(kind core.ErrorKind) twirp.ErrorCode {
	switch kind {
	case core.KindInvalidArgument:
		return twirp.InvalidArgument
	case core.KindState:
		return twirp.FailedPrecondition
	case core.KindPermission:
		return twirp.PermissionDenied
	case core.KindEconomic:
		return twirp.Aborted
	case core.KindNotFound:
		return twirp.NotFound
	default:
		return twirp.Internal
	}
}

// Of http status, custom code and message of err. Unknown errors are
// reported as internal with a generic message.
func Of(err error) (status int, code int, msg string) {
	var ec core.ErrorCode
	if errors.As(err, &ec) {
		return twirp.ServerHTTPStatusFromErrorCode(FromKind(ec.Kind())), int(ec), err.Error()
	}

	if twerr, ok := err.(twirp.Error); ok {
		code := Get(twerr.Code())
		if c, err := strconv.Atoi(twerr.Meta(CustomCodeKey)); err == nil {
			code = c
		}

		return twirp.ServerHTTPStatusFromErrorCode(twerr.Code()), code, twerr.Msg()
	}

	return http.StatusInternalServerError, Get(twirp.Internal), "internal error"
}
