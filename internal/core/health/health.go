// Package health serves liveness and readiness probes.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"
)

func Liveness() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}

// Check reports nil when its dependency can serve traffic
type Check func(ctx context.Context) error

// ReadinessReporter is implemented by the invalidation runner
type ReadinessReporter interface {
	Readiness() (ready bool, partitions []int32)
}

// ReporterCheck adapts a ReadinessReporter
func ReporterCheck(rr ReadinessReporter) Check {
	return func(context.Context) error {
		if ok, _ := rr.Readiness(); !ok {
			return errNotAssigned
		}
		return nil
	}
}

type notReady string

func (e notReady) Error() string { return string(e) }

const errNotAssigned = notReady("no partitions assigned")

// Readiness runs every check with a shared timeout. Any failing check answers 503.
func Readiness(checks map[string]Check, timeout time.Duration) http.HandlerFunc {
	if timeout <= 0 {
		timeout = time.Second
	}
	names := make([]string, 0, len(checks))
	for n := range checks {
		names = append(names, n)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		type resp struct {
			Status string            `json:"status"`
			Checks map[string]string `json:"checks,omitempty"`
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		out := resp{Status: "ready", Checks: map[string]string{}}
		for _, n := range names {
			if err := checks[n](ctx); err != nil {
				out.Status = "not_ready"
				out.Checks[n] = err.Error()
				continue
			}
			out.Checks[n] = "ok"
		}

		w.Header().Set("Content-Type", "application/json")
		if out.Status != "ready" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(out)
	}
}
