package hc

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"pledge/handler/render"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/sirupsen/logrus"
)

// Check reports whether a component answers, nil when healthy
type Check func(ctx context.Context) error

// Timeout bound of a single check
const Timeout = 3 * time.Second

// Handle health report of the running server, 503 when any check fails
func Handle(version string, checks map[string]Check) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.NoCache)
	r.Handle("/", handle(version, checks))
	return r
}

// run fn with a deadline, a check stuck behind a held lock counts as failed
func run(ctx context.Context, fn Check) error {
	ctx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn(ctx) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func handle(version string, checks map[string]Check) http.HandlerFunc {
	b := time.Now()

	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		results := make(map[string]string, len(names))
		for _, name := range names {
			results[name] = "ok"
			if err := run(r.Context(), checks[name]); err != nil {
				logrus.WithError(err).Warnln("hc: check failed", name)
				results[name] = err.Error()
				status = http.StatusServiceUnavailable
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)

		uptime := time.Since(b).Truncate(time.Millisecond)
		if err := json.NewEncoder(w).Encode(render.H{
			"uptime":  uptime.String(),
			"version": version,
			"checks":  results,
		}); err != nil {
			logrus.WithError(err).Errorln("hc: render")
		}
	}
}
