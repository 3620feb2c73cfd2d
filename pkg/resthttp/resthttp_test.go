package resthttp

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecute(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get(headerKeyRequestID))
		w.Header().Set("Content-Type", "application/json")

		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"code":100110,"msg":"loan not found"}`))
			return
		}

		_, _ = w.Write([]byte(`{"data":{"id":7}}`))
	}))
	defer srv.Close()

	ctx := context.Background()

	var resp struct {
		ID int `json:"id"`
	}
	status, err := Execute(Request(ctx), "get", srv.URL+"/loans/7", nil, &resp)
	require.Nil(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 7, resp.ID)

	status, err = Execute(Request(ctx), "get", srv.URL+"/missing", nil, &resp)
	assert.Equal(t, http.StatusNotFound, status)

	var apiErr *Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 100110, apiErr.Code)
	assert.Equal(t, "loan not found", apiErr.Msg)
}
