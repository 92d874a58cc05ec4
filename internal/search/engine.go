// Package search runs ranked multi-entity retrieval (venues, areas, sub-areas), applies
// structured filters to venues and pages the result.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/mohammed-shakir/listing-discovery/internal/core/model"
	"github.com/mohammed-shakir/listing-discovery/internal/core/observability"
	"github.com/mohammed-shakir/listing-discovery/internal/facet/aggregate"
	"github.com/mohammed-shakir/listing-discovery/internal/facet/selection"
)

// MinQueryLength is the shortest query, in runes, that triggers ranked retrieval
const MinQueryLength = 2

const (
	DefaultPlaceLimit   = 5
	DefaultPopularLimit = 8
)

// Retriever performs ranked retrieval per entity kind. Venues returns every candidate in
// rank order; the engine filters, sorts and pages. snapshot pins an index generation (0 for
// current) and Venues reports the generation it served, so consecutive pages rank against
// the same data.
type Retriever interface {
	Venues(ctx context.Context, query string, snapshot uint64) ([]model.Listing, uint64, error)
	Places(ctx context.Context, kind model.PlaceKind, query string, limit int) ([]model.Place, error)
}

type PopularPlaces interface {
	PopularPlaces(ctx context.Context, n int) ([]model.Place, error)
}

type Request struct {
	Query     string
	Selection selection.FilterSelection
	PageSize  int
	Offset    int
	// WithFacets asks for counts over the unfiltered venue candidates
	WithFacets bool
	// Snapshot is the Envelope.Snapshot of an earlier page; 0 starts a new listing
	Snapshot uint64
}

type Envelope struct {
	Query      string                      `json:"query"`
	Areas      []model.Place               `json:"areas"`
	SubAreas   []model.Place               `json:"sub_areas"`
	Venues     []model.Listing             `json:"venues"`
	Total      int                         `json:"total"`
	Offset     int                         `json:"offset"`
	PageSize   int                         `json:"page_size"`
	HasMore    bool                        `json:"has_more"`
	NextOffset int                         `json:"next_offset"`
	Snapshot   uint64                      `json:"snapshot,omitempty"`
	Suggested  bool                        `json:"suggested,omitempty"`
	Partial    bool                        `json:"partial,omitempty"`
	Degraded   []model.PlaceKind           `json:"degraded,omitempty"`
	Facets     *aggregate.AggregatedFacets `json:"facets,omitempty"`
}

type Options struct {
	Logger       *slog.Logger
	Popular      PopularPlaces
	KindTimeout  time.Duration
	MaxPageSize  int
	PlaceLimit   int
	PopularLimit int
}

type Engine struct {
	log          *slog.Logger
	retriever    Retriever
	popular      PopularPlaces
	kindTimeout  time.Duration
	maxPageSize  int
	placeLimit   int
	popularLimit int
}

func New(r Retriever, opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.PlaceLimit <= 0 {
		opts.PlaceLimit = DefaultPlaceLimit
	}
	if opts.PopularLimit <= 0 {
		opts.PopularLimit = DefaultPopularLimit
	}
	return &Engine{
		log:          opts.Logger.With("component", "search"),
		retriever:    r,
		popular:      opts.Popular,
		kindTimeout:  opts.KindTimeout,
		maxPageSize:  opts.MaxPageSize,
		placeLimit:   opts.PlaceLimit,
		popularLimit: opts.PopularLimit,
	}
}

// Search never fails for empty queries, zero matches or degraded area groups. The only
// errors are ErrInvalidPage (negative offset, or a page size outside 1..MaxPageSize) and a
// *RetrievalError for the venue group.
func (e *Engine) Search(ctx context.Context, req Request) (Envelope, error) {
	ctx, span := otel.Tracer("SearchEngine").Start(ctx, "Search")
	defer span.End()

	if req.Offset < 0 || req.PageSize <= 0 || (e.maxPageSize > 0 && req.PageSize > e.maxPageSize) {
		observability.IncSearch("invalid")
		err := fmt.Errorf("%w: offset=%d page_size=%d", ErrInvalidPage, req.Offset, req.PageSize)
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid page")
		return Envelope{}, err
	}
	pageSize := req.PageSize

	q := strings.TrimSpace(req.Query)
	if q == "" {
		q = req.Selection.Query()
	}
	env := Envelope{
		Query:      q,
		Areas:      []model.Place{},
		SubAreas:   []model.Place{},
		Venues:     []model.Listing{},
		Offset:     req.Offset,
		PageSize:   pageSize,
		NextOffset: req.Offset,
	}
	span.SetAttributes(
		attribute.Int("search.query_len", utf8.RuneCountInString(q)),
		attribute.Int("search.offset", req.Offset),
		attribute.Int("search.page_size", pageSize),
	)

	if utf8.RuneCountInString(q) < MinQueryLength {
		env.Areas = e.suggest(ctx)
		env.Suggested = true
		observability.IncSearch("empty_query")
		return env, nil
	}

	res, cancelled := e.fanOut(ctx, q, req.Snapshot)

	for _, kind := range []model.PlaceKind{model.KindArea, model.KindSubArea} {
		g := res.group(kind)
		switch {
		case g.err != nil:
			e.log.WarnContext(ctx, "retrieval degraded", "kind", kind, "err", g.err)
			observability.IncDegradedGroup(string(kind))
			env.Degraded = append(env.Degraded, kind)
		case !g.done:
			env.Degraded = append(env.Degraded, kind)
		case kind == model.KindArea:
			env.Areas = g.places
		default:
			env.SubAreas = g.places
		}
	}

	v := res.group(model.KindVenue)
	switch {
	case !v.done || (v.err != nil && cancelled):
		// caller gave up before venues resolved
		env.Partial = true
		observability.IncSearch("partial")
		return env, nil
	case v.err != nil:
		err := &RetrievalError{Kind: model.KindVenue, Err: v.err}
		e.log.ErrorContext(ctx, "venue retrieval failed", "err", v.err)
		observability.IncSearch("unavailable")
		span.RecordError(err)
		span.SetStatus(codes.Error, "venue retrieval failed")
		return Envelope{}, err
	}

	if req.WithFacets {
		start := time.Now()
		env.Facets = aggregate.Compute(v.venues, req.Selection)
		observability.ObserveFacetCompute(time.Since(start).Seconds())
	}

	filtered := Filter(v.venues, req.Selection)
	SortVenues(filtered, req.Selection.Sort())
	page, hasMore := Page(filtered, req.Offset, pageSize)

	env.Snapshot = v.snapshot
	if req.Snapshot != 0 && v.snapshot != req.Snapshot {
		e.log.InfoContext(ctx, "listing snapshot replaced", "pinned", req.Snapshot, "serving", v.snapshot)
	}
	env.Venues = page
	env.Total = len(filtered)
	env.HasMore = hasMore
	env.NextOffset = req.Offset + len(page)
	if len(env.Degraded) > 0 {
		observability.IncSearch("degraded")
	} else {
		observability.IncSearch("ok")
	}
	span.SetAttributes(attribute.Int("search.total", env.Total), attribute.Int("search.returned", len(page)))
	return env, nil
}

// Filter keeps venues that satisfy the selection, in their original order
func Filter(venues []model.Listing, sel selection.FilterSelection) []model.Listing {
	out := make([]model.Listing, 0, len(venues))
	for _, l := range venues {
		if sel.Matches(l) {
			out = append(out, l)
		}
	}
	return out
}

// Page slices [offset, offset+size). hasMore is true iff the page is full and more remain.
func Page(all []model.Listing, offset, size int) ([]model.Listing, bool) {
	if offset >= len(all) || size <= 0 {
		return []model.Listing{}, false
	}
	end := min(offset+size, len(all))
	page := append([]model.Listing(nil), all[offset:end]...)
	return page, len(page) == size && end < len(all)
}

func (e *Engine) suggest(ctx context.Context) []model.Place {
	if e.popular == nil {
		return []model.Place{}
	}
	ctx, span := otel.Tracer("SearchEngine").Start(ctx, "PopularPlaces")
	defer span.End()

	ctx, cancel := e.withKindTimeout(ctx)
	defer cancel()

	start := time.Now()
	places, err := e.popular.PopularPlaces(ctx, e.popularLimit)
	observability.ObserveRetrieval("popular", err, time.Since(start).Seconds())
	if err != nil {
		e.log.WarnContext(ctx, "popular places unavailable", "err", err)
		observability.IncDegradedGroup("popular")
		span.RecordError(err)
		return []model.Place{}
	}
	if places == nil {
		places = []model.Place{}
	}
	return places
}

type groupResult struct {
	done     bool
	err      error
	venues   []model.Listing
	snapshot uint64
	places   []model.Place
}

type fanOutResult struct {
	mu     sync.Mutex
	sealed bool
	groups map[model.PlaceKind]groupResult
}

func (r *fanOutResult) set(kind model.PlaceKind, g groupResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return
	}
	g.done = true
	r.groups[kind] = g
}

func (r *fanOutResult) seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

func (r *fanOutResult) group(kind model.PlaceKind) groupResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.groups[kind]
}

// fanOut issues the three retrievals concurrently and joins them. If ctx ends first the
// groups resolved so far are kept and late results are discarded.
func (e *Engine) fanOut(ctx context.Context, q string, snapshot uint64) (*fanOutResult, bool) {
	res := &fanOutResult{groups: make(map[model.PlaceKind]groupResult, 3)}

	var g errgroup.Group
	g.Go(func() error {
		kctx, cancel := e.withKindTimeout(ctx)
		defer cancel()
		venues, served, err := e.retrieveVenues(kctx, q, snapshot)
		res.set(model.KindVenue, groupResult{venues: venues, snapshot: served, err: err})
		return nil
	})
	for _, kind := range []model.PlaceKind{model.KindArea, model.KindSubArea} {
		g.Go(func() error {
			kctx, cancel := e.withKindTimeout(ctx)
			defer cancel()
			places, err := e.retrievePlaces(kctx, kind, q)
			res.set(kind, groupResult{places: places, err: err})
			return nil
		})
	}

	joined := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(joined)
	}()

	select {
	case <-joined:
		res.seal()
		return res, ctx.Err() != nil
	case <-ctx.Done():
		res.seal()
		return res, true
	}
}

func (e *Engine) retrieveVenues(ctx context.Context, q string, snapshot uint64) ([]model.Listing, uint64, error) {
	ctx, span := otel.Tracer("SearchEngine").Start(ctx, "RetrieveVenues")
	defer span.End()

	start := time.Now()
	venues, served, err := e.retriever.Venues(ctx, q, snapshot)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	observability.ObserveRetrieval(string(model.KindVenue), err, time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "venue retrieval failed")
		return nil, 0, fmt.Errorf("venues for %q: %w", q, err)
	}
	span.SetAttributes(attribute.Int("venues.count", len(venues)), attribute.Int64("venues.snapshot", int64(served)))
	return venues, served, nil
}

func (e *Engine) retrievePlaces(ctx context.Context, kind model.PlaceKind, q string) ([]model.Place, error) {
	ctx, span := otel.Tracer("SearchEngine").Start(ctx, "RetrievePlaces")
	defer span.End()
	span.SetAttributes(attribute.String("places.kind", string(kind)))

	start := time.Now()
	places, err := e.retriever.Places(ctx, kind, q, e.placeLimit)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	observability.ObserveRetrieval(string(kind), err, time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "place retrieval failed")
		return nil, fmt.Errorf("%s for %q: %w", kind, q, err)
	}
	if len(places) > e.placeLimit {
		places = places[:e.placeLimit]
	}
	if places == nil {
		places = []model.Place{}
	}
	return places, nil
}

func (e *Engine) withKindTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.kindTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.kindTimeout)
}
