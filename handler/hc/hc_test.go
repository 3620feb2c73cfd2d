package hc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type report struct {
	Version string            `json:"version"`
	Checks  map[string]string `json:"checks"`
}

func get(t *testing.T, h http.Handler) (int, report) {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	var r report
	require.Nil(t, json.NewDecoder(w.Body).Decode(&r))
	return w.Code, r
}

func TestHealthy(t *testing.T) {
	code, r := get(t, Handle("1.0.0", map[string]Check{
		"ledger": func(ctx context.Context) error { return nil },
	}))

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "1.0.0", r.Version)
	assert.Equal(t, map[string]string{"ledger": "ok"}, r.Checks)
}

func TestFailedCheck(t *testing.T) {
	code, r := get(t, Handle("1.0.0", map[string]Check{
		"ledger":  func(ctx context.Context) error { return nil },
		"archive": func(ctx context.Context) error { return errors.New("connection refused") },
	}))

	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "ok", r.Checks["ledger"])
	assert.Equal(t, "connection refused", r.Checks["archive"])
}

func TestStuckCheck(t *testing.T) {
	// a lock nobody releases during the request
	var mu sync.Mutex
	mu.Lock()
	defer mu.Unlock()

	h := handle("1.0.0", map[string]Check{
		"ledger": func(ctx context.Context) error {
			mu.Lock()
			mu.Unlock()
			return nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var r report
	require.Nil(t, json.NewDecoder(w.Body).Decode(&r))
	assert.Equal(t, context.Canceled.Error(), r.Checks["ledger"])
}
