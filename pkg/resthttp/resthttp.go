package resthttp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"pledge/pkg/id"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

const (
	// HeaderKeyRequestID request id header key
	headerKeyRequestID = "X-Request-Id"
)

var runOnce sync.Once
var restyClient *resty.Client

// Client resty client
func Client() *resty.Client {
	runOnce.Do(func() {
		restyClient = resty.New().
			SetHeader("Content-Type", "application/json").
			SetHeader("Charset", "utf-8").
			SetTimeout(10 * time.Second)
	})

	return restyClient
}

// Request new resty request with a fresh request id
func Request(ctx context.Context) *resty.Request {
	return WithRequestID(ctx, id.GenTraceID())
}

// WithRequestID resty request with request id
func WithRequestID(ctx context.Context, requestID string) *resty.Request {
	return Client().R().SetContext(ctx).SetHeader(headerKeyRequestID, requestID)
}

// Error error response of the api
type Error struct {
	Status int    `json:"-"`
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
	Hint   string `json:"hint,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("[%d] %d %s", e.Status, e.Code, e.Msg)
}

// Execute do network request
func Execute(request *resty.Request, method, url string, body interface{}, resp interface{}) (int, error) {
	logrus.Debugln("request", method, url)

	if body != nil {
		request = request.SetBody(body)
	}

	r, err := request.Execute(strings.ToUpper(method), url)
	if err != nil {
		return 0, err
	}

	logrus.Debugln("response", r.Status())

	return r.StatusCode(), ParseResponse(r.StatusCode(), r.Body(), resp)
}

// ParseResponse unwrap the {"data": ...} envelope into obj, non 2xx
// responses are returned as *Error
func ParseResponse(status int, body []byte, obj interface{}) error {
	//fail
	if status < 200 || status > 299 {
		e := &Error{Status: status}
		if err := json.Unmarshal(body, e); err != nil {
			e.Msg = string(body)
		}

		return e
	}

	//success
	if obj == nil {
		return nil
	}

	var data struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &data); err != nil {
		return err
	}

	return json.Unmarshal(data.Data, obj)
}
