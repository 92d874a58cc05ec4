package invalidation

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

type seqDedupe struct {
	mu  sync.Mutex
	lru *lru.Cache[string, uint64]
}

func newSeqDedupe(size int) *seqDedupe {
	if size <= 0 {
		size = 4096
	}
	c, _ := lru.New[string, uint64](size)
	return &seqDedupe{lru: c}
}

// applied reports whether seq is at or below the last recorded seq for scope
func (d *seqDedupe) applied(scope string, seq uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	last, ok := d.lru.Get(scope)
	return ok && seq <= last
}

func (d *seqDedupe) record(scope string, seq uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if last, ok := d.lru.Get(scope); ok && last >= seq {
		return
	}
	d.lru.Add(scope, seq)
}
