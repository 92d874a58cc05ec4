package codec

import (
	"math/rand"
	"net/url"
	"slices"
	"testing"

	"github.com/mohammed-shakir/listing-discovery/internal/core/model"
	"github.com/mohammed-shakir/listing-discovery/internal/facet/selection"
	"github.com/mohammed-shakir/listing-discovery/internal/facet/taxonomy"
)

func TestEncode_WireShape(t *testing.T) {
	sel := selection.New().
		MustWith(taxonomy.Price, taxonomy.Price3).
		MustWith(taxonomy.Price, taxonomy.Price1).
		MustWith(taxonomy.Rating, taxonomy.Rating45).
		MustWith(taxonomy.Near, taxonomy.ProximityKey(model.POITransit, taxonomy.BandHalf)).
		WithSort(selection.SortRatingDesc).
		WithQuery("  ramen ")

	got := Encode(sel)
	want := Params{
		"price":  "price_1,price_3",
		"rating": "rating_45",
		"near":   "transit:half",
		"sort":   "rating-desc",
		"q":      "ramen",
	}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s=%q want %q", k, got[k], v)
		}
	}
}

func TestEncode_OmitsDefaults(t *testing.T) {
	got := Encode(selection.New().WithQuery("   "))
	if len(got) != 0 {
		t.Fatalf("empty selection encoded to %v", got)
	}
	got = Encode(selection.New().WithSort(selection.SortRelevance))
	if _, ok := got[ParamSort]; ok {
		t.Fatal("relevance sort must be omitted")
	}
}

func TestDecode_UnknownKeyDropped(t *testing.T) {
	sel, anomalies := DecodeWithAnomalies(Params{"price": "price_1,price_9"})
	if got := sel.Active(taxonomy.Price); !slices.Equal(got, []taxonomy.BucketKey{taxonomy.Price1}) {
		t.Fatalf("price=%v want [price_1]", got)
	}
	if len(anomalies) != 1 || anomalies[0].Value != "price_9" {
		t.Fatalf("anomalies=%v", anomalies)
	}
}

func TestDecode_Total(t *testing.T) {
	cases := []struct {
		name string
		in   Params
		want selection.FilterSelection
	}{
		{"empty", Params{}, selection.New()},
		{"unknown params ignored", Params{"cuisine": "thai", "page": "2"}, selection.New()},
		{"duplicates collapse", Params{"amenities": "wifi,wifi, wifi"},
			selection.New().MustWith(taxonomy.Amenities, taxonomy.AmenityWiFi)},
		{"empty tokens skipped", Params{"service": ",,takeout,"},
			selection.New().MustWith(taxonomy.Service, taxonomy.ServiceTakeout)},
		{"case folded", Params{"price": "PRICE_2"},
			selection.New().MustWith(taxonomy.Price, taxonomy.Price2)},
		{"malformed proximity dropped individually", Params{"near": "park,park:,:qtr,moon:qtr,park:far,park:qtr"},
			selection.New().MustWith(taxonomy.Near, taxonomy.ProximityKey(model.POIPark, taxonomy.BandQuarter))},
		{"single keeps first valid", Params{"rating": "rating_9,rating_4,rating_45"},
			selection.New().MustWith(taxonomy.Rating, taxonomy.Rating4)},
		{"unknown sort falls back", Params{"sort": "cheapest"}, selection.New()},
		{"query trimmed", Params{"q": "  dim sum "}, selection.New().WithQuery("dim sum")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Decode(tc.in)
			if !got.Equal(tc.want) {
				t.Fatalf("Decode(%v)=%s want %s", tc.in, got, tc.want)
			}
		})
	}
}

func TestDecodeValues_RepeatedParams(t *testing.T) {
	v := url.Values{
		"price":  {"price_2", "price_1,price_2"},
		"rating": {"rating_35", "rating_4"},
		"q":      {"tacos", "burgers"},
	}
	sel := DecodeValues(v)
	if got := sel.Active(taxonomy.Price); !slices.Equal(got, []taxonomy.BucketKey{taxonomy.Price1, taxonomy.Price2}) {
		t.Fatalf("price=%v", got)
	}
	if got := sel.Active(taxonomy.Rating); !slices.Equal(got, []taxonomy.BucketKey{taxonomy.Rating35}) {
		t.Fatalf("rating=%v", got)
	}
	if sel.Query() != "tacos" {
		t.Fatalf("q=%q", sel.Query())
	}
}

func TestRoundTrip_FixedCases(t *testing.T) {
	cases := []selection.FilterSelection{
		selection.New(),
		selection.New().WithQuery("pho"),
		selection.New().WithSort(selection.SortPriceDesc),
		selection.New().MustWith(taxonomy.Reviews, taxonomy.Reviews500),
		selection.New().
			MustWith(taxonomy.Hours, taxonomy.HoursOpenLate).
			MustWith(taxonomy.Hours, taxonomy.HoursOpenWeekends).
			MustWith(taxonomy.Near, taxonomy.ProximityKey(model.POIUniversity, taxonomy.BandMile)).
			MustWith(taxonomy.Near, taxonomy.ProximityKey(model.POIHotel, taxonomy.BandQuarter)),
	}
	for _, s := range cases {
		if got := Decode(Encode(s)); !got.Equal(s) {
			t.Errorf("round trip: %s -> %v -> %s", s, Encode(s), got)
		}
		if got := DecodeValues(EncodeValues(s)); !got.Equal(s) {
			t.Errorf("url round trip: %s -> %s", s, got)
		}
	}
}

// random reachable selections built from taxonomy keys only
func TestRoundTrip_Random(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	sorts := []selection.SortOrder{
		selection.SortRelevance, selection.SortRatingDesc, selection.SortReviewCountDesc,
		selection.SortPriceAsc, selection.SortPriceDesc,
	}
	queries := []string{"", "pizza", "san antonio", "café olé"}

	for i := 0; i < 500; i++ {
		s := selection.New().
			WithSort(sorts[rng.Intn(len(sorts))]).
			WithQuery(queries[rng.Intn(len(queries))])
		for _, d := range taxonomy.All() {
			for _, k := range d.Keys() {
				if rng.Intn(6) == 0 {
					s = s.MustWith(d.ID, k)
				}
			}
		}
		enc := Encode(s)
		if got := Decode(enc); !got.Equal(s) {
			t.Fatalf("iteration %d: %s -> %v -> %s", i, s, enc, got)
		}
		qs := QueryString(s)
		parsed, err := url.ParseQuery(qs)
		if err != nil {
			t.Fatalf("parse %q: %v", qs, err)
		}
		if got := DecodeValues(parsed); !got.Equal(s) {
			t.Fatalf("iteration %d: query string %q decoded to %s", i, qs, got)
		}
	}
}
