// Package selection holds the in-memory filter state: active buckets, query text and sort order.
package selection

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/mohammed-shakir/listing-discovery/internal/core/model"
	"github.com/mohammed-shakir/listing-discovery/internal/facet/taxonomy"
)

type SortOrder string

const (
	SortRelevance       SortOrder = "relevance"
	SortRatingDesc      SortOrder = "rating-desc"
	SortReviewCountDesc SortOrder = "review-count-desc"
	SortPriceAsc        SortOrder = "price-asc"
	SortPriceDesc       SortOrder = "price-desc"
)

const DefaultSort = SortRelevance

var sortOrders = []SortOrder{SortRelevance, SortRatingDesc, SortReviewCountDesc, SortPriceAsc, SortPriceDesc}

// ParseSort maps a wire value to a SortOrder, falling back to relevance
func ParseSort(s string) (SortOrder, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, o := range sortOrders {
		if string(o) == s {
			return o, true
		}
	}
	return DefaultSort, false
}

var (
	ErrUnknownDimension = errors.New("unknown dimension")
	ErrUnknownBucket    = errors.New("unknown bucket key")
)

// FilterSelection is a value: every modifier returns a new selection and leaves the receiver alone.
// The zero value is an empty selection with relevance sort.
type FilterSelection struct {
	query  string
	sort   SortOrder
	active map[taxonomy.DimensionID][]taxonomy.BucketKey
}

func New() FilterSelection {
	return FilterSelection{sort: DefaultSort}
}

func (s FilterSelection) Query() string { return s.query }

func (s FilterSelection) Sort() SortOrder {
	if s.sort == "" {
		return DefaultSort
	}
	return s.sort
}

func (s FilterSelection) WithQuery(q string) FilterSelection {
	out := s.clone()
	out.query = strings.TrimSpace(q)
	return out
}

func (s FilterSelection) WithSort(o SortOrder) FilterSelection {
	out := s.clone()
	if _, ok := ParseSort(string(o)); !ok {
		o = DefaultSort
	}
	out.sort = o
	return out
}

// With activates key in dim. Single-select dimensions replace their current key.
func (s FilterSelection) With(dim taxonomy.DimensionID, key taxonomy.BucketKey) (FilterSelection, error) {
	d, err := validate(dim, key)
	if err != nil {
		return s, err
	}
	out := s.clone()
	if d.Mode == taxonomy.Single {
		out.active[dim] = []taxonomy.BucketKey{key}
		return out, nil
	}
	cur := out.active[dim]
	if slices.Contains(cur, key) {
		return out, nil
	}
	next := append(slices.Clone(cur), key)
	slices.Sort(next)
	out.active[dim] = next
	return out, nil
}

// MustWith is With for keys known at compile time
func (s FilterSelection) MustWith(dim taxonomy.DimensionID, key taxonomy.BucketKey) FilterSelection {
	out, err := s.With(dim, key)
	if err != nil {
		panic(err)
	}
	return out
}

func (s FilterSelection) Without(dim taxonomy.DimensionID, key taxonomy.BucketKey) FilterSelection {
	cur := s.active[dim]
	i := slices.Index(cur, key)
	if i < 0 {
		return s
	}
	out := s.clone()
	next := slices.Delete(slices.Clone(cur), i, i+1)
	if len(next) == 0 {
		delete(out.active, dim)
	} else {
		out.active[dim] = next
	}
	return out
}

func (s FilterSelection) Toggle(dim taxonomy.DimensionID, key taxonomy.BucketKey) (FilterSelection, error) {
	if s.Has(dim, key) {
		return s.Without(dim, key), nil
	}
	return s.With(dim, key)
}

func (s FilterSelection) Clear(dim taxonomy.DimensionID) FilterSelection {
	if _, ok := s.active[dim]; !ok {
		return s
	}
	out := s.clone()
	delete(out.active, dim)
	return out
}

// Active returns the sorted active keys for dim. The slice must not be modified.
func (s FilterSelection) Active(dim taxonomy.DimensionID) []taxonomy.BucketKey {
	return s.active[dim]
}

func (s FilterSelection) Has(dim taxonomy.DimensionID, key taxonomy.BucketKey) bool {
	return slices.Contains(s.active[dim], key)
}

// Dimensions returns dimensions with at least one active key, in taxonomy order
func (s FilterSelection) Dimensions() []taxonomy.DimensionID {
	var out []taxonomy.DimensionID
	for _, d := range taxonomy.All() {
		if len(s.active[d.ID]) > 0 {
			out = append(out, d.ID)
		}
	}
	return out
}

// IsEmpty reports whether no bucket is active (query and sort are ignored)
func (s FilterSelection) IsEmpty() bool { return len(s.active) == 0 }

func (s FilterSelection) Equal(o FilterSelection) bool {
	if s.query != o.query || s.Sort() != o.Sort() {
		return false
	}
	if len(s.active) != len(o.active) {
		return false
	}
	for dim, keys := range s.active {
		if !slices.Equal(keys, o.active[dim]) {
			return false
		}
	}
	return true
}

// Matches reports whether l satisfies every active dimension (OR within a dimension)
func (s FilterSelection) Matches(l model.Listing) bool {
	return s.MatchesExcept(l, "")
}

// MatchesExcept is Matches with one dimension's selection ignored
func (s FilterSelection) MatchesExcept(l model.Listing, skip taxonomy.DimensionID) bool {
	for dim, keys := range s.active {
		if dim == skip || len(keys) == 0 {
			continue
		}
		d, ok := taxonomy.Lookup(dim)
		if !ok {
			continue
		}
		if !matchesAny(d, keys, l) {
			return false
		}
	}
	return true
}

func matchesAny(d *taxonomy.Dimension, keys []taxonomy.BucketKey, l model.Listing) bool {
	for _, k := range keys {
		if b, ok := d.Bucket(k); ok && b.Match(l) {
			return true
		}
	}
	return false
}

// Canonical renders only the active buckets, dimensions in taxonomy order and keys sorted.
// Equal bucket sets always render the same string.
func (s FilterSelection) Canonical() string {
	var b strings.Builder
	for i, dim := range s.Dimensions() {
		if i > 0 {
			b.WriteByte(';')
		}
		b.WriteString(string(dim))
		b.WriteByte('=')
		for j, k := range s.active[dim] {
			if j > 0 {
				b.WriteByte(',')
			}
			b.WriteString(string(k))
		}
	}
	return b.String()
}

func (s FilterSelection) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "q=%q sort=%s", s.query, s.Sort())
	for _, dim := range s.Dimensions() {
		keys := make([]string, len(s.active[dim]))
		for i, k := range s.active[dim] {
			keys[i] = string(k)
		}
		fmt.Fprintf(&b, " %s=%s", dim, strings.Join(keys, ","))
	}
	return b.String()
}

func (s FilterSelection) clone() FilterSelection {
	out := FilterSelection{
		query:  s.query,
		sort:   s.Sort(),
		active: make(map[taxonomy.DimensionID][]taxonomy.BucketKey, len(s.active)+1),
	}
	for k, v := range s.active {
		out.active[k] = v
	}
	return out
}

func validate(dim taxonomy.DimensionID, key taxonomy.BucketKey) (*taxonomy.Dimension, error) {
	d, ok := taxonomy.Lookup(dim)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDimension, dim)
	}
	if !d.Has(key) {
		return nil, fmt.Errorf("%w: %q in %s", ErrUnknownBucket, key, dim)
	}
	return d, nil
}
