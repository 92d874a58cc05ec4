package search

import (
	"context"
	"sync"
	"time"
)

type Searcher interface {
	Search(ctx context.Context, req Request) (Envelope, error)
}

// Result is what a Session delivers. Generation increases with every Submit.
type Result struct {
	Generation uint64
	Request    Request
	Envelope   Envelope
	Err        error
}

// Session serves one interactive client: Submit debounces input, and a newer Submit cancels
// whatever is in flight. Only the newest generation is ever delivered, and generations are
// delivered in increasing order. The deliver callback may Submit but must not Close.
//
// Session is a helper for UI and API clients that embed the engine (type-ahead boxes, SDKs);
// the HTTP server is stateless per request and does not use it.
type Session struct {
	searcher Searcher
	debounce time.Duration
	deliver  func(Result)
	parent   context.Context

	mu       sync.Mutex
	gen      uint64
	timer    *time.Timer
	cancel   context.CancelFunc
	closed   bool
	inflight sync.WaitGroup

	deliverMu sync.Mutex
	delivered uint64
}

func NewSession(ctx context.Context, s Searcher, debounce time.Duration, deliver func(Result)) *Session {
	return &Session{
		searcher: s,
		debounce: debounce,
		deliver:  deliver,
		parent:   ctx,
	}
}

// Submit schedules req and returns its generation
func (s *Session) Submit(req Request) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return s.gen
	}
	s.gen++
	g := s.gen
	s.stopLocked()

	s.inflight.Add(1)
	s.timer = time.AfterFunc(s.debounce, func() {
		defer s.inflight.Done()
		s.run(g, req)
	})
	return g
}

// Generation returns the newest submitted generation
func (s *Session) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// Close cancels pending work and waits for running searches to return
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	s.stopLocked()
	s.mu.Unlock()
	s.inflight.Wait()
}

func (s *Session) stopLocked() {
	if s.timer != nil && s.timer.Stop() {
		// timer never fired, its callback will not run
		s.inflight.Done()
	}
	s.timer = nil
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *Session) run(g uint64, req Request) {
	s.mu.Lock()
	if s.closed || g != s.gen {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(s.parent)
	s.cancel = cancel
	s.mu.Unlock()
	defer cancel()

	env, err := s.searcher.Search(ctx, req)

	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()
	if !s.current(g) || g <= s.delivered {
		return
	}
	s.delivered = g
	s.deliver(Result{Generation: g, Request: req, Envelope: env, Err: err})
}

func (s *Session) current(g uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && g == s.gen
}

// NextPage returns the request for the page after r, pinned to the index snapshot r was
// served from. ok is false when r failed or has no further page.
func NextPage(r Result) (req Request, ok bool) {
	if r.Err != nil || !r.Envelope.HasMore {
		return Request{}, false
	}
	req = r.Request
	req.Offset = r.Envelope.NextOffset
	req.Snapshot = r.Envelope.Snapshot
	return req, true
}
