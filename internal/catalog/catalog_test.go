package catalog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/mohammed-shakir/listing-discovery/internal/core/model"
	"github.com/mohammed-shakir/listing-discovery/internal/facet/selection"
	"github.com/mohammed-shakir/listing-discovery/internal/facet/taxonomy"
	"github.com/mohammed-shakir/listing-discovery/internal/invalidation"
	"github.com/mohammed-shakir/listing-discovery/internal/search/textindex"
	"github.com/mohammed-shakir/listing-discovery/internal/store/redisstore"
)

type fakeSource struct {
	mu       sync.Mutex
	listings map[string][]model.Listing
	places   []model.Place
	calls    map[string]int
	err      error
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		listings: map[string][]model.Listing{
			"austin": {
				{ID: "a1", Name: "Taco Joint", AreaID: "austin", Price: model.PriceInexpensive},
				{ID: "a2", Name: "Congress Tacos", AreaID: "austin", SubAreaID: "soco", Price: model.PriceModerate},
			},
			"dallas": {
				{ID: "d1", Name: "Pecan Lodge", AreaID: "dallas", Price: model.PriceModerate},
			},
		},
		places: []model.Place{
			{ID: "austin", Name: "Austin", Kind: model.KindArea},
			{ID: "dallas", Name: "Dallas", Kind: model.KindArea},
			{ID: "soco", Name: "South Congress", Kind: model.KindSubArea, ParentID: "austin"},
		},
		calls: map[string]int{},
	}
}

func (f *fakeSource) set(area string, ls []model.Listing) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listings[area] = ls
}

func (f *fakeSource) ListingsByArea(_ context.Context, areaID string) ([]model.Listing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[areaID]++
	if f.err != nil {
		return nil, f.err
	}
	if areaID != "" {
		return append([]model.Listing(nil), f.listings[areaID]...), nil
	}
	var out []model.Listing
	for _, id := range []string{"austin", "dallas"} {
		out = append(out, f.listings[id]...)
	}
	return out, nil
}

func (f *fakeSource) addPlaces(ps ...model.Place) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.places = append(f.places, ps...)
}

func (f *fakeSource) Areas(context.Context) ([]model.Place, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["areas"]++
	var out []model.Place
	for _, p := range f.places {
		if p.Kind == model.KindArea {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeSource) SubAreas(_ context.Context, parent string) ([]model.Place, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Place
	for _, p := range f.places {
		if p.Kind == model.KindSubArea && (parent == "" || p.ParentID == parent) {
			out = append(out, p)
		}
	}
	return out, nil
}

type fakeVersions struct {
	mu sync.Mutex
	v  map[string]int64
}

func (f *fakeVersions) Version(_ context.Context, id string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.v[id], nil
}

func (f *fakeVersions) BumpVersion(_ context.Context, id string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.v == nil {
		f.v = map[string]int64{}
	}
	f.v[id]++
	return f.v[id], nil
}

type countingAnnotator struct{ n int }

func (a *countingAnnotator) Annotate(ls []model.Listing) (int, error) {
	a.n += len(ls)
	return len(ls), nil
}

func loaded(t *testing.T, src Source, opts Options) *Catalog {
	t.Helper()
	c := New(src, opts)
	require.NoError(t, c.Load(context.Background()))
	return c
}

func TestLoad_GroupsByAreaAndCounts(t *testing.T) {
	ann := &countingAnnotator{}
	idx := textindex.NewRetriever(nil)
	c := loaded(t, newFakeSource(), Options{Annotator: ann, Indexer: idx})

	require.True(t, c.Ready())
	ls, ok := c.Listings("austin")
	require.True(t, ok)
	require.Len(t, ls, 2)

	all, _ := c.Listings(AllAreas)
	require.Equal(t, []string{"a1", "a2", "d1"}, ids(all))
	require.Equal(t, 3, ann.n)

	counts := map[string]int{}
	for _, p := range c.Places() {
		counts[p.ID] = p.ListingCount
	}
	require.Equal(t, map[string]int{"austin": 2, "dallas": 1, "soco": 1}, counts)

	venues, _, err := idx.Venues(context.Background(), "pecan", 0)
	require.NoError(t, err)
	require.Equal(t, []string{"d1"}, ids(venues))
}

func TestLoad_SourceError(t *testing.T) {
	src := newFakeSource()
	src.err = errors.New("db down")
	c := New(src, Options{})
	require.Error(t, c.Load(context.Background()))
	require.False(t, c.Ready())
}

func TestFacets_CachedUntilAreaChanges(t *testing.T) {
	src := newFakeSource()
	c := loaded(t, src, Options{})
	ctx := context.Background()
	sel := selection.New()

	f1, err := c.Facets(ctx, "austin", sel)
	require.NoError(t, err)
	require.Equal(t, 2, f1.Total())
	f2, _ := c.Facets(ctx, "austin", sel)
	require.Same(t, f1, f2)

	src.set("austin", append(src.listings["austin"],
		model.Listing{ID: "a3", AreaID: "austin", Price: model.PriceInexpensive}))
	require.NoError(t, c.Apply(ctx, invalidation.Event{Version: 1, Op: invalidation.OpRefresh, Scope: "austin", Seq: 1}))

	f3, err := c.Facets(ctx, "austin", sel)
	require.NoError(t, err)
	require.NotSame(t, f1, f3)
	require.Equal(t, 3, f3.Total())
	require.Equal(t, 2, f3.Count(taxonomy.Price, taxonomy.Price1))

	all, err := c.Facets(ctx, AllAreas, sel)
	require.NoError(t, err)
	require.Equal(t, 4, all.Total())
}

func TestFacets_UnknownArea(t *testing.T) {
	c := loaded(t, newFakeSource(), Options{})
	_, err := c.Facets(context.Background(), "houston", selection.New())
	require.ErrorIs(t, err, ErrUnknownArea)
}

func TestApply_DeleteRemovesArea(t *testing.T) {
	vers := &fakeVersions{}
	c := loaded(t, newFakeSource(), Options{Versions: vers})
	ctx := context.Background()

	require.NoError(t, c.Apply(ctx, invalidation.Event{Version: 1, Op: invalidation.OpDelete, Scope: "dallas", Seq: 1}))
	_, ok := c.Listings("dallas")
	require.False(t, ok)
	v, _ := vers.Version(ctx, "dallas")
	require.EqualValues(t, 1, v)

	all, _ := c.Listings(AllAreas)
	require.Equal(t, []string{"a1", "a2"}, ids(all))
}

func TestApply_RefreshNewAreaLoadsItsPlaces(t *testing.T) {
	src := newFakeSource()
	idx := textindex.NewRetriever(nil)
	c := loaded(t, src, Options{Indexer: idx})
	ctx := context.Background()

	src.addPlaces(
		model.Place{ID: "houston", Name: "Houston", Kind: model.KindArea},
		model.Place{ID: "montrose", Name: "Montrose", Kind: model.KindSubArea, ParentID: "houston"},
	)
	src.set("houston", []model.Listing{{ID: "h1", Name: "Bayou Grill", AreaID: "houston", SubAreaID: "montrose"}})

	require.NoError(t, c.Apply(ctx, invalidation.Event{Version: 1, Op: invalidation.OpRefresh, Scope: "houston", Seq: 1}))

	counts := map[string]int{}
	for _, p := range c.Places() {
		counts[p.ID] = p.ListingCount
	}
	require.Equal(t, map[string]int{"austin": 2, "dallas": 1, "soco": 1, "houston": 1, "montrose": 1}, counts)

	areas, err := idx.Places(ctx, model.KindArea, "hous", 5)
	require.NoError(t, err)
	require.Len(t, areas, 1)
	subs, err := idx.Places(ctx, model.KindSubArea, "montr", 5)
	require.NoError(t, err)
	require.Len(t, subs, 1)

	// known area: places are not re-read
	before := src.calls["areas"]
	require.NoError(t, c.Apply(ctx, invalidation.Event{Version: 1, Op: invalidation.OpRefresh, Scope: "austin", Seq: 1}))
	require.Equal(t, before, src.calls["areas"])
}

func TestApply_RefreshFailureKeepsArea(t *testing.T) {
	src := newFakeSource()
	c := loaded(t, src, Options{})
	gen := c.Generation()

	src.err = errors.New("db down")
	err := c.Apply(context.Background(), invalidation.Event{Version: 1, Op: invalidation.OpRefresh, Scope: "austin", Seq: 2})
	require.Error(t, err)
	ls, ok := c.Listings("austin")
	require.True(t, ok)
	require.Len(t, ls, 2)
	require.Equal(t, gen, c.Generation())
}

func TestFacets_CatchesUpWithSharedVersion(t *testing.T) {
	src := newFakeSource()
	vers := &fakeVersions{}
	c := loaded(t, src, Options{Versions: vers})
	ctx := context.Background()

	src.set("dallas", nil)
	_, _ = vers.BumpVersion(ctx, "dallas")

	before := src.calls["dallas"]
	_, err := c.Facets(ctx, "dallas", selection.New())
	require.ErrorIs(t, err, ErrUnknownArea)
	require.Equal(t, before+1, src.calls["dallas"])

	// already caught up: no further reload
	_, _ = c.Facets(ctx, "dallas", selection.New())
	require.Equal(t, before+1, src.calls["dallas"])
}

func TestMirror_RoundTripThroughRedis(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	ctx := context.Background()
	rc, err := redisstore.New(ctx, mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rc.Close() })

	loaded(t, newFakeSource(), Options{Mirror: rc, Versions: rc, ListingsTTL: time.Minute})

	fromMirror := loaded(t, NewMirrorSource(rc), Options{})
	all, _ := fromMirror.Listings(AllAreas)
	require.Equal(t, []string{"a1", "a2", "d1"}, ids(all))

	subs, err := NewMirrorSource(rc).SubAreas(ctx, "dallas")
	require.NoError(t, err)
	require.Empty(t, subs)

	ls, err := NewMirrorSource(rc).ListingsByArea(ctx, "houston")
	require.NoError(t, err)
	require.Empty(t, ls)
}

func ids(ls []model.Listing) []string {
	out := make([]string, len(ls))
	for i, l := range ls {
		out[i] = l.ID
	}
	return out
}
