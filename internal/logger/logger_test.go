package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &m); err != nil {
		t.Fatalf("not a JSON line: %q: %v", buf.String(), err)
	}
	return m
}

func TestSlogBridge_ContextFieldsAndAttrs(t *testing.T) {
	var buf bytes.Buffer
	zl := Build(Config{Level: "debug", Service: "discovery", Component: "test"}, &buf)
	log := NewSlog(&zl).With("kind", "venue")

	ctx := WithScope(WithRequestID(context.Background(), "req-1"), "austin")
	log.InfoContext(ctx, "retrieved", "count", 3, "took", 25*time.Millisecond, "err", errors.New("x"))

	m := decodeLine(t, &buf)
	want := map[string]any{
		"msg": "retrieved", "level": "info", "service": "discovery", "component": "test",
		"request_id": "req-1", "scope": "austin", "kind": "venue", "err": "x",
	}
	for k, v := range want {
		if m[k] != v {
			t.Errorf("%s=%v want %v", k, m[k], v)
		}
	}
	if m["count"] != float64(3) {
		t.Errorf("count=%v", m["count"])
	}
}

func TestSlogBridge_GroupsFlatten(t *testing.T) {
	var buf bytes.Buffer
	zl := Build(Config{Level: "info"}, &buf)
	NewSlog(&zl).WithGroup("search").Info("done", "total", 10)

	m := decodeLine(t, &buf)
	if m["search.total"] != float64(10) {
		t.Fatalf("grouped key missing: %v", m)
	}
}

func TestSlogBridge_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	zl := Build(Config{Level: "warn"}, &buf)
	log := NewSlog(&zl)
	log.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info written at warn level: %s", buf.String())
	}
	log.Warn("kept")
	if m := decodeLine(t, &buf); m["level"] != "warn" {
		t.Fatalf("level=%v", m["level"])
	}
}

func TestBuild_UnknownLevelIsInfo(t *testing.T) {
	var buf bytes.Buffer
	zl := Build(Config{Level: "loud"}, &buf)
	NewSlog(&zl).Debug("dropped")
	if buf.Len() != 0 {
		t.Fatalf("debug written at default level: %s", buf.String())
	}
}

func TestBuild_SamplingSparesWarnings(t *testing.T) {
	var buf bytes.Buffer
	zl := Build(Config{Level: "info", SampleN: 1000}, &buf)
	log := NewSlog(&zl)
	for range 3 {
		log.Warn("kept")
	}
	if n := bytes.Count(buf.Bytes(), []byte("\n")); n != 3 {
		t.Fatalf("warn lines=%d want 3", n)
	}
}

func TestRequestID_GeneratedWhenEmpty(t *testing.T) {
	ctx := WithRequestID(context.Background(), "")
	if len(RequestID(ctx)) != 16 {
		t.Fatalf("request id=%q", RequestID(ctx))
	}
}
