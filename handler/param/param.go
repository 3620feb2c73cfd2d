package param

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/asaskevich/govalidator"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/schema"
	"github.com/shopspring/decimal"
)

var decoder = schema.NewDecoder()

func init() {
	decoder.SetAliasTag("json")
	decoder.IgnoreUnknownKeys(true)

	govalidator.TagMap["address"] = govalidator.Validator(common.IsHexAddress)
	govalidator.TagMap["amount"] = govalidator.Validator(func(str string) bool {
		d, err := decimal.NewFromString(str)
		return err == nil && d.IsPositive() && d.IsInteger()
	})
}

// Binding decode query parameters for GET requests and the json body
// otherwise, then validate the `valid` tags of v
func Binding(r *http.Request, v interface{}) error {
	if r.Method == http.MethodGet {
		if err := decoder.Decode(v, r.URL.Query()); err != nil {
			return err
		}
	} else if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
			return err
		}
	}

	_, err := govalidator.ValidateStruct(v)
	return err
}
