// Package invalidation consumes "scope changed" events from Kafka and applies each one
// once to the registered sinks.
package invalidation

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	OpRefresh = "refresh"
	OpDelete  = "delete"
)

// Event says the listings of one scope (an area id) changed. Seq increases per scope;
// an event whose Seq is not above the last applied one for its scope is a duplicate.
type Event struct {
	Version int       `json:"version"`
	Op      string    `json:"op"`
	Scope   string    `json:"scope"`
	TS      time.Time `json:"ts"`
	Seq     uint64    `json:"seq"`
}

func (e Event) Validate() error {
	if e.Version != 1 {
		return errors.New("version must be 1")
	}
	switch e.Op {
	case OpRefresh, OpDelete:
	default:
		return fmt.Errorf("op must be %s|%s", OpRefresh, OpDelete)
	}
	if strings.TrimSpace(e.Scope) == "" {
		return errors.New("scope is required")
	}
	if e.TS.IsZero() {
		return errors.New("ts is required")
	}
	if e.Seq == 0 {
		return errors.New("seq must be > 0")
	}
	return nil
}
