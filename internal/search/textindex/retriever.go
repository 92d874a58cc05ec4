package textindex

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	ac "github.com/petar-dambovaliev/aho-corasick"

	"github.com/mohammed-shakir/listing-discovery/internal/core/model"
	"github.com/mohammed-shakir/listing-discovery/internal/core/observability"
	"github.com/mohammed-shakir/listing-discovery/internal/search"
)

var ErrNotReady = errors.New("text index not built")

const (
	nameWeight    = 3.0
	tagWeight     = 1.5
	addressWeight = 1.0
	areaWeight    = 0.5

	// added to venues inside a place whose full multi-word name appears in the query
	phraseBoost = 2.0

	// snapshots kept addressable by generation for callers paging through an older build
	DefaultRetain = 8
)

var _ search.Retriever = (*Retriever)(nil)

// Snapshot is one immutable build of every kind's index
type Snapshot struct {
	Generation uint64

	venues   []model.Listing
	venueIdx *Index

	places   map[model.PlaceKind][]model.Place
	placeIdx map[model.PlaceKind]*Index

	phrases     *ac.AhoCorasick
	phrasePlace map[string][]string
}

func (s *Snapshot) Count(kind model.PlaceKind) int {
	if kind == model.KindVenue {
		return len(s.venues)
	}
	return len(s.places[kind])
}

// Retriever serves search.Retriever from the current snapshot. Rebuild swaps snapshots
// atomically; readers in flight keep the snapshot they started with. The last few
// snapshots stay reachable by generation so a paged listing can finish on the build it
// started with.
type Retriever struct {
	log    *slog.Logger
	snap   atomic.Pointer[Snapshot]
	gen    atomic.Uint64
	retain int

	histMu  sync.RWMutex
	history []*Snapshot
}

type RetrieverOption func(*Retriever)

// WithRetain sets how many snapshots, current included, stay addressable by generation
func WithRetain(n int) RetrieverOption {
	return func(r *Retriever) {
		if n > 0 {
			r.retain = n
		}
	}
}

func NewRetriever(log *slog.Logger, opts ...RetrieverOption) *Retriever {
	if log == nil {
		log = slog.Default()
	}
	r := &Retriever{log: log.With("component", "textindex"), retain: DefaultRetain}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *Retriever) Snapshot() *Snapshot { return r.snap.Load() }

// snapshotAt returns the retained snapshot with generation gen, or the current one when gen
// is 0 or has aged out
func (r *Retriever) snapshotAt(gen uint64) *Snapshot {
	cur := r.snap.Load()
	if gen == 0 || cur == nil || cur.Generation == gen {
		return cur
	}
	r.histMu.RLock()
	defer r.histMu.RUnlock()
	for _, s := range r.history {
		if s.Generation == gen {
			return s
		}
	}
	return cur
}

// Rebuild indexes venues and places and publishes the result
func (r *Retriever) Rebuild(venues []model.Listing, places []model.Place) *Snapshot {
	s := build(venues, places)
	r.histMu.Lock()
	s.Generation = r.gen.Add(1)
	r.history = append(r.history, s)
	if extra := len(r.history) - r.retain; extra > 0 {
		clear(r.history[:extra])
		r.history = r.history[extra:]
	}
	r.snap.Store(s)
	r.histMu.Unlock()

	for _, kind := range []model.PlaceKind{model.KindVenue, model.KindArea, model.KindSubArea} {
		observability.SetIndexDocuments(string(kind), s.Count(kind))
	}
	r.log.Info("text index rebuilt",
		"generation", s.Generation,
		"venues", s.Count(model.KindVenue),
		"areas", s.Count(model.KindArea),
		"sub_areas", s.Count(model.KindSubArea))
	return s
}

// Venues ranks venues against the snapshot with the given generation (0 for current) and
// reports the generation it actually served.
func (r *Retriever) Venues(ctx context.Context, query string, gen uint64) ([]model.Listing, uint64, error) {
	s := r.snapshotAt(gen)
	if s == nil {
		return nil, 0, ErrNotReady
	}
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	if gen != 0 && s.Generation != gen {
		r.log.DebugContext(ctx, "pinned snapshot aged out", "pinned", gen, "serving", s.Generation)
	}

	hits := s.venueIdx.Search(query, 0)
	if boosted := s.placesInQuery(query); len(boosted) > 0 && len(hits) > 0 {
		for i := range hits {
			l := s.venues[hits[i].Doc]
			if boosted[l.AreaID] || (l.SubAreaID != "" && boosted[l.SubAreaID]) {
				hits[i].Score += phraseBoost
			}
		}
		SortHits(hits)
	}

	out := make([]model.Listing, len(hits))
	for i, h := range hits {
		out[i] = s.venues[h.Doc]
	}
	return out, s.Generation, nil
}

func (r *Retriever) Places(ctx context.Context, kind model.PlaceKind, query string, limit int) ([]model.Place, error) {
	s := r.snap.Load()
	if s == nil {
		return nil, ErrNotReady
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	idx, ok := s.placeIdx[kind]
	if !ok {
		return []model.Place{}, nil
	}
	hits := idx.Search(query, limit)
	out := make([]model.Place, len(hits))
	for i, h := range hits {
		out[i] = s.places[kind][h.Doc]
	}
	return out, nil
}

func build(venues []model.Listing, places []model.Place) *Snapshot {
	s := &Snapshot{
		venues:      append([]model.Listing(nil), venues...),
		places:      map[model.PlaceKind][]model.Place{},
		placeIdx:    map[model.PlaceKind]*Index{},
		phrasePlace: map[string][]string{},
	}

	names := map[string]string{}
	builders := map[model.PlaceKind]*Builder{}
	var patterns []string
	for _, p := range places {
		if p.Kind != model.KindArea && p.Kind != model.KindSubArea {
			continue
		}
		b, ok := builders[p.Kind]
		if !ok {
			b = NewBuilder()
			builders[p.Kind] = b
		}
		b.Add(Field{Text: p.Name, Weight: nameWeight}, Field{Text: p.Slug, Weight: 1})
		s.places[p.Kind] = append(s.places[p.Kind], p)
		names[p.ID] = p.Name

		phrase := strings.Join(Tokenize(p.Name), " ")
		if strings.Contains(phrase, " ") {
			if _, seen := s.phrasePlace[phrase]; !seen {
				patterns = append(patterns, phrase)
			}
			s.phrasePlace[phrase] = append(s.phrasePlace[phrase], p.ID)
		}
	}
	for kind, b := range builders {
		s.placeIdx[kind] = b.Build()
	}

	vb := NewBuilder()
	for _, l := range s.venues {
		vb.Add(
			Field{Text: l.Name, Weight: nameWeight},
			Field{Text: strings.Join(l.Tags, " "), Weight: tagWeight},
			Field{Text: l.Address, Weight: addressWeight},
			Field{Text: names[l.AreaID] + " " + names[l.SubAreaID], Weight: areaWeight},
		)
	}
	s.venueIdx = vb.Build()

	if len(patterns) > 0 {
		builder := ac.NewAhoCorasickBuilder(ac.Opts{
			AsciiCaseInsensitive: true,
			MatchOnlyWholeWords:  true,
		})
		m := builder.Build(patterns)
		s.phrases = &m
	}
	return s
}

// placesInQuery returns ids of places whose multi-word name occurs in the query
func (s *Snapshot) placesInQuery(query string) map[string]bool {
	if s.phrases == nil {
		return nil
	}
	folded := strings.Join(Tokenize(query), " ")
	matches := s.phrases.FindAll(folded)
	if len(matches) == 0 {
		return nil
	}
	out := map[string]bool{}
	for _, m := range matches {
		for _, id := range s.phrasePlace[folded[m.Start():m.End()]] {
			out[id] = true
		}
	}
	return out
}
