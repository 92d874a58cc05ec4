package search

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/mohammed-shakir/listing-discovery/internal/core/model"
	"github.com/mohammed-shakir/listing-discovery/internal/facet/selection"
	"github.com/mohammed-shakir/listing-discovery/internal/facet/taxonomy"
)

type fakeRetriever struct {
	venues    []model.Listing
	places    map[model.PlaceKind][]model.Place
	venueErr  error
	placeErr  map[model.PlaceKind]error
	delay     map[model.PlaceKind]time.Duration
	venueCall int
}

func (f *fakeRetriever) wait(ctx context.Context, kind model.PlaceKind) error {
	d := f.delay[kind]
	if d == 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeRetriever) Venues(ctx context.Context, _ string, _ uint64) ([]model.Listing, uint64, error) {
	f.venueCall++
	if err := f.wait(ctx, model.KindVenue); err != nil {
		return nil, 0, err
	}
	if f.venueErr != nil {
		return nil, 0, f.venueErr
	}
	return append([]model.Listing(nil), f.venues...), 1, nil
}

func (f *fakeRetriever) Places(ctx context.Context, kind model.PlaceKind, _ string, _ int) ([]model.Place, error) {
	if err := f.wait(ctx, kind); err != nil {
		return nil, err
	}
	if err := f.placeErr[kind]; err != nil {
		return nil, err
	}
	return f.places[kind], nil
}

type fakePopular struct {
	places []model.Place
	err    error
}

func (p fakePopular) PopularPlaces(_ context.Context, n int) ([]model.Place, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.places[:min(n, len(p.places))], nil
}

func venues(n int) []model.Listing {
	out := make([]model.Listing, n)
	for i := range out {
		out[i] = model.Listing{
			ID:          fmt.Sprintf("v%02d", i),
			Name:        fmt.Sprintf("Venue %d", i),
			Rating:      model.Float(float64(i%5) + 0.5),
			ReviewCount: model.Int(i * 7 % 30),
			Price:       model.PriceTier(i%4 + 1),
		}
		if i%3 == 0 {
			out[i].Amenities = map[model.Amenity]bool{model.AmenityWiFi: true}
		}
	}
	return out
}

func ids(ls []model.Listing) []string {
	out := make([]string, len(ls))
	for i, l := range ls {
		out[i] = l.ID
	}
	return out
}

func defaultRetriever() *fakeRetriever {
	return &fakeRetriever{
		venues: venues(25),
		places: map[model.PlaceKind][]model.Place{
			model.KindArea:    {{ID: "austin", Name: "Austin", Kind: model.KindArea}},
			model.KindSubArea: {{ID: "soco", Name: "South Congress", Kind: model.KindSubArea, ParentID: "austin"}},
		},
	}
}

func TestSearch_InvalidPage(t *testing.T) {
	r := defaultRetriever()
	e := New(r, Options{})
	for _, req := range []Request{
		{Query: "venue", PageSize: 0},
		{Query: "venue", PageSize: -1},
		{Query: "venue", PageSize: 10, Offset: -1},
	} {
		_, err := e.Search(context.Background(), req)
		if !errors.Is(err, ErrInvalidPage) {
			t.Fatalf("%+v: want ErrInvalidPage, got %v", req, err)
		}
	}
	if r.venueCall != 0 {
		t.Fatal("retrieval attempted for an invalid page request")
	}
}

func TestSearch_EmptyQueryReturnsPopularPlaces(t *testing.T) {
	r := defaultRetriever()
	pop := fakePopular{places: []model.Place{{ID: "austin", Kind: model.KindArea}, {ID: "dallas", Kind: model.KindArea}}}
	e := New(r, Options{Popular: pop})

	for _, q := range []string{"", " ", "a"} {
		env, err := e.Search(context.Background(), Request{Query: q, PageSize: 24})
		if err != nil {
			t.Fatalf("q=%q: %v", q, err)
		}
		if len(env.Venues) != 0 || !env.Suggested {
			t.Fatalf("q=%q: venues=%d suggested=%v", q, len(env.Venues), env.Suggested)
		}
		if len(env.Areas) != 2 {
			t.Fatalf("q=%q: areas=%v", q, env.Areas)
		}
	}
	if r.venueCall != 0 {
		t.Fatal("short query must not hit venue retrieval")
	}
}

func TestSearch_EmptyQueryPopularFailureDegrades(t *testing.T) {
	e := New(defaultRetriever(), Options{Popular: fakePopular{err: errors.New("redis down")}})
	env, err := e.Search(context.Background(), Request{PageSize: 24})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env.Areas == nil || len(env.Areas) != 0 {
		t.Fatalf("areas=%v want empty non-nil", env.Areas)
	}
}

func TestSearch_GroupsKeptSeparate(t *testing.T) {
	e := New(defaultRetriever(), Options{})
	env, err := e.Search(context.Background(), Request{Query: "venue", PageSize: 5})
	if err != nil {
		t.Fatal(err)
	}
	if len(env.Areas) != 1 || len(env.SubAreas) != 1 || len(env.Venues) != 5 {
		t.Fatalf("areas=%d sub_areas=%d venues=%d", len(env.Areas), len(env.SubAreas), len(env.Venues))
	}
	if env.Total != 25 || !env.HasMore || env.NextOffset != 5 {
		t.Fatalf("total=%d has_more=%v next=%d", env.Total, env.HasMore, env.NextOffset)
	}
}

func TestSearch_IdempotentPagination(t *testing.T) {
	sels := []selection.FilterSelection{
		selection.New(),
		selection.New().WithSort(selection.SortRatingDesc),
		selection.New().WithSort(selection.SortPriceAsc).MustWith(taxonomy.Price, taxonomy.Price2).MustWith(taxonomy.Price, taxonomy.Price3),
		selection.New().WithSort(selection.SortReviewCountDesc),
	}
	e := New(defaultRetriever(), Options{})
	ctx := context.Background()
	for _, sel := range sels {
		for _, n := range []int{1, 3, 4, 7} {
			first, err := e.Search(ctx, Request{Query: "venue", Selection: sel, PageSize: n})
			if err != nil {
				t.Fatal(err)
			}
			second, err := e.Search(ctx, Request{Query: "venue", Selection: sel, PageSize: n, Offset: first.NextOffset})
			if err != nil {
				t.Fatal(err)
			}
			both, err := e.Search(ctx, Request{Query: "venue", Selection: sel, PageSize: 2 * n})
			if err != nil {
				t.Fatal(err)
			}
			got := append(ids(first.Venues), ids(second.Venues)...)
			if !slices.Equal(got, ids(both.Venues)) {
				t.Fatalf("%s n=%d: pages %v != single %v", sel, n, got, ids(both.Venues))
			}
		}
	}
}

func TestSearch_HasMore(t *testing.T) {
	e := New(defaultRetriever(), Options{})
	ctx := context.Background()
	cases := []struct {
		size, offset int
		wantLen      int
		wantMore     bool
	}{
		{10, 0, 10, true},
		{10, 15, 10, false},
		{10, 20, 5, false},
		{25, 0, 25, false},
		{10, 30, 0, false},
	}
	for _, tc := range cases {
		env, err := e.Search(ctx, Request{Query: "venue", PageSize: tc.size, Offset: tc.offset})
		if err != nil {
			t.Fatal(err)
		}
		if len(env.Venues) != tc.wantLen || env.HasMore != tc.wantMore {
			t.Errorf("size=%d offset=%d: len=%d more=%v want %d %v",
				tc.size, tc.offset, len(env.Venues), env.HasMore, tc.wantLen, tc.wantMore)
		}
		if env.NextOffset != tc.offset+len(env.Venues) {
			t.Errorf("next=%d", env.NextOffset)
		}
	}
}

func TestSearch_OversizePageRejected(t *testing.T) {
	e := New(defaultRetriever(), Options{MaxPageSize: 4})
	ctx := context.Background()
	if _, err := e.Search(ctx, Request{Query: "venue", PageSize: 5}); !errors.Is(err, ErrInvalidPage) {
		t.Fatalf("page size above max: want ErrInvalidPage, got %v", err)
	}
	env, err := e.Search(ctx, Request{Query: "venue", PageSize: 4})
	if err != nil {
		t.Fatal(err)
	}
	if len(env.Venues) != 4 || env.PageSize != 4 || !env.HasMore {
		t.Fatalf("len=%d page_size=%d more=%v", len(env.Venues), env.PageSize, env.HasMore)
	}
}

func TestSearch_MonotonicNarrowing(t *testing.T) {
	e := New(defaultRetriever(), Options{})
	ctx := context.Background()
	a := selection.New().MustWith(taxonomy.Price, taxonomy.Price1)
	count := func(s selection.FilterSelection) int {
		env, err := e.Search(ctx, Request{Query: "venue", Selection: s, PageSize: 100})
		if err != nil {
			t.Fatal(err)
		}
		return env.Total
	}
	base := count(a)
	for _, d := range taxonomy.All() {
		if d.Mode != taxonomy.Multi {
			continue
		}
		for _, k := range d.Keys() {
			if a.Has(d.ID, k) {
				continue
			}
			b := a.MustWith(d.ID, k)
			if d.ID != taxonomy.Price && count(b) > base {
				t.Fatalf("adding %s/%s widened %d -> %d", d.ID, k, base, count(b))
			}
		}
	}
}

func TestSearch_FiltersApplyToVenuesOnly(t *testing.T) {
	e := New(defaultRetriever(), Options{})
	sel := selection.New().MustWith(taxonomy.Amenities, taxonomy.AmenityWiFi)
	env, err := e.Search(context.Background(), Request{Query: "venue", Selection: sel, PageSize: 100})
	if err != nil {
		t.Fatal(err)
	}
	if env.Total != 9 {
		t.Fatalf("wifi venues=%d want 9", env.Total)
	}
	if len(env.Areas) != 1 || len(env.SubAreas) != 1 {
		t.Fatal("place groups must not be filtered")
	}
}

func TestSearch_SortStability(t *testing.T) {
	r := &fakeRetriever{venues: []model.Listing{
		{ID: "low", Rating: model.Float(3.0)},
		{ID: "first45", Rating: model.Float(4.5)},
		{ID: "none"},
		{ID: "second45", Rating: model.Float(4.5)},
		{ID: "top", Rating: model.Float(4.9)},
	}}
	e := New(r, Options{})
	env, err := e.Search(context.Background(), Request{
		Query: "venue", Selection: selection.New().WithSort(selection.SortRatingDesc), PageSize: 10,
	})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"top", "first45", "second45", "low", "none"}
	if got := ids(env.Venues); !slices.Equal(got, want) {
		t.Fatalf("order=%v want %v", got, want)
	}
}

func TestSearch_DegradeNotFail(t *testing.T) {
	r := defaultRetriever()
	r.placeErr = map[model.PlaceKind]error{model.KindArea: errors.New("area index down")}
	e := New(r, Options{})

	env, err := e.Search(context.Background(), Request{Query: "venue", PageSize: 5})
	if err != nil {
		t.Fatalf("area failure must not fail the call: %v", err)
	}
	if len(env.Areas) != 0 || len(env.SubAreas) != 1 || len(env.Venues) != 5 {
		t.Fatalf("areas=%d sub_areas=%d venues=%d", len(env.Areas), len(env.SubAreas), len(env.Venues))
	}
	if !slices.Equal(env.Degraded, []model.PlaceKind{model.KindArea}) {
		t.Fatalf("degraded=%v", env.Degraded)
	}
}

func TestSearch_SlowPlacesTimeOut(t *testing.T) {
	r := defaultRetriever()
	r.delay = map[model.PlaceKind]time.Duration{model.KindSubArea: time.Second}
	e := New(r, Options{KindTimeout: 20 * time.Millisecond})

	start := time.Now()
	env, err := e.Search(context.Background(), Request{Query: "venue", PageSize: 5})
	if err != nil {
		t.Fatal(err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Fatal("slow sub-area retrieval blocked the call")
	}
	if len(env.SubAreas) != 0 || len(env.Venues) != 5 {
		t.Fatalf("sub_areas=%d venues=%d", len(env.SubAreas), len(env.Venues))
	}
}

func TestSearch_VenueFailureIsDistinct(t *testing.T) {
	r := defaultRetriever()
	cause := errors.New("index unavailable")
	r.venueErr = cause
	e := New(r, Options{})

	_, err := e.Search(context.Background(), Request{Query: "venue", PageSize: 5})
	if !errors.Is(err, ErrRetrievalUnavailable) || !errors.Is(err, cause) {
		t.Fatalf("want unavailable wrapping cause, got %v", err)
	}
	var re *RetrievalError
	if !errors.As(err, &re) || re.Kind != model.KindVenue {
		t.Fatalf("want *RetrievalError for venues, got %T", err)
	}

	// zero matches is not an error
	r.venueErr = nil
	r.venues = nil
	env, err := e.Search(context.Background(), Request{Query: "venue", PageSize: 5})
	if err != nil || env.Total != 0 {
		t.Fatalf("zero matches: env=%+v err=%v", env, err)
	}
}

func TestSearch_CancelledReturnsResolvedGroups(t *testing.T) {
	r := defaultRetriever()
	r.delay = map[model.PlaceKind]time.Duration{model.KindVenue: 2 * time.Second}
	e := New(r, Options{})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	env, err := e.Search(ctx, Request{Query: "venue", PageSize: 5})
	if err != nil {
		t.Fatalf("cancellation must not raise: %v", err)
	}
	if !env.Partial {
		t.Fatal("expected partial envelope")
	}
	if len(env.Areas) != 1 || len(env.SubAreas) != 1 || len(env.Venues) != 0 {
		t.Fatalf("areas=%d sub_areas=%d venues=%d", len(env.Areas), len(env.SubAreas), len(env.Venues))
	}
}

func TestSearch_WithFacets(t *testing.T) {
	e := New(defaultRetriever(), Options{})
	sel := selection.New().MustWith(taxonomy.Amenities, taxonomy.AmenityWiFi)
	env, err := e.Search(context.Background(), Request{Query: "venue", Selection: sel, PageSize: 5, WithFacets: true})
	if err != nil {
		t.Fatal(err)
	}
	if env.Facets == nil {
		t.Fatal("facets missing")
	}
	if env.Facets.Total() != 25 || env.Facets.Matching() != env.Total {
		t.Fatalf("facets total=%d matching=%d envelope total=%d", env.Facets.Total(), env.Facets.Matching(), env.Total)
	}
}
