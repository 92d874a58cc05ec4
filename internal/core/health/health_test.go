package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestLiveness_Handler(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()

	Liveness()(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d want 200", rr.Code)
	}
	ct := rr.Header().Get("Content-Type")
	if !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("content-type=%q want text/plain", ct)
	}
	if got := strings.TrimSpace(rr.Body.String()); got != "ok" {
		t.Fatalf("body=%q want ok", got)
	}
}

type reporter struct{ ready bool }

func (r reporter) Readiness() (bool, []int32) { return r.ready, []int32{0} }

func TestReadiness(t *testing.T) {
	okCheck := func(context.Context) error { return nil }
	cases := []struct {
		name   string
		checks map[string]Check
		want   int
	}{
		{"all ok", map[string]Check{"index": okCheck, "kafka": ReporterCheck(reporter{true})}, http.StatusOK},
		{"redis down", map[string]Check{
			"index": okCheck,
			"redis": func(context.Context) error { return errors.New("dial tcp: refused") },
		}, http.StatusServiceUnavailable},
		{"kafka unassigned", map[string]Check{"kafka": ReporterCheck(reporter{false})}, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		Readiness(tc.checks, 0)(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		if rr.Code != tc.want {
			t.Fatalf("%s: status=%d want %d", tc.name, rr.Code, tc.want)
		}
		var body struct {
			Status string            `json:"status"`
			Checks map[string]string `json:"checks"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
			t.Fatalf("%s: decode: %v", tc.name, err)
		}
		if len(body.Checks) != len(tc.checks) {
			t.Fatalf("%s: checks=%v", tc.name, body.Checks)
		}
	}
}
