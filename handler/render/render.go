package render

import (
	"encoding/json"
	"net/http"

	"pledge/handler/codes"

	"github.com/sirupsen/logrus"
	"github.com/twitchtv/twirp"
)

type H map[string]interface{}

// JSON render with json
func JSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	enc := json.NewEncoder(w)
	if err := enc.Encode(v); err != nil {
		logrus.WithError(err).Errorln("render.JSON")
	}
}

// Text render with text
func Text(w http.ResponseWriter, t string) {
	w.Header().Set("Content-Type", "application/text")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(t)); err != nil {
		logrus.WithError(err).Errorln("render.Text")
	}
}

// Error write error, status and code are resolved by codes.Of
func Error(w http.ResponseWriter, err error) {
	status, code, msg := codes.Of(err)
	resp := errorResponse{Code: code, Msg: msg}
	if status >= http.StatusInternalServerError {
		resp.Hint = err.Error()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	enc := json.NewEncoder(w)
	if err := enc.Encode(resp); err != nil {
		logrus.WithError(err).Errorln("render.Error")
	}
}

// BadRequest bad request error
func BadRequest(w http.ResponseWriter, err error) {
	Error(w, codes.With(twirp.InvalidArgumentError("request", err.Error()), codes.InvalidArguments))
}

// NotFoundRequest not found request error
func NotFoundRequest(w http.ResponseWriter, err error) {
	Error(w, twirp.NotFoundError(err.Error()))
}
