package invalidation

import (
	"testing"
	"time"
)

func mustTS() time.Time { return time.Date(2025, 10, 26, 12, 30, 45, 0, time.UTC) }

func TestEvent_Validate(t *testing.T) {
	ok := Event{Version: 1, Op: OpRefresh, Scope: "austin", TS: mustTS(), Seq: 1}
	if err := ok.Validate(); err != nil {
		t.Fatalf("unexpected: %v", err)
	}

	cases := map[string]func(*Event){
		"version":  func(e *Event) { e.Version = 2 },
		"op":       func(e *Event) { e.Op = "update" },
		"scope":    func(e *Event) { e.Scope = "  " },
		"ts":       func(e *Event) { e.TS = time.Time{} },
		"zero seq": func(e *Event) { e.Seq = 0 },
	}
	for name, mutate := range cases {
		ev := ok
		mutate(&ev)
		if err := ev.Validate(); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestSeqDedupe(t *testing.T) {
	d := newSeqDedupe(2)
	if d.applied("a", 1) {
		t.Fatal("fresh scope reported applied")
	}
	d.record("a", 5)
	if !d.applied("a", 5) || !d.applied("a", 3) {
		t.Fatal("seq at or below last must be applied")
	}
	if d.applied("a", 6) {
		t.Fatal("higher seq must not be applied")
	}
	d.record("a", 2)
	if d.applied("a", 6) || !d.applied("a", 5) {
		t.Fatal("record must not move seq backwards")
	}
}
