// Package taxonomy declares every filterable dimension, its buckets and their stable keys.
//
// Bucket keys end up in shared links. A key, once shipped, is never renamed, removed or
// pointed at a different predicate; adding buckets is always safe.
package taxonomy

import (
	"github.com/mohammed-shakir/listing-discovery/internal/core/model"
)

type DimensionID string

const (
	Price     DimensionID = "price"
	Rating    DimensionID = "rating"
	Reviews   DimensionID = "reviews"
	Amenities DimensionID = "amenities"
	Service   DimensionID = "service"
	Hours     DimensionID = "hours"
	Near      DimensionID = "near"
)

type Mode int

const (
	Multi Mode = iota
	Single
)

func (m Mode) String() string {
	if m == Single {
		return "single"
	}
	return "multi"
}

type BucketKey string

type Predicate func(model.Listing) bool

type Bucket struct {
	Key   BucketKey
	Label string
	Match Predicate
}

type Dimension struct {
	ID      DimensionID
	Param   string
	Label   string
	Mode    Mode
	Buckets []Bucket

	index map[BucketKey]int
}

func newDimension(id DimensionID, label string, mode Mode, buckets []Bucket) *Dimension {
	d := &Dimension{
		ID:      id,
		Param:   string(id),
		Label:   label,
		Mode:    mode,
		Buckets: buckets,
		index:   make(map[BucketKey]int, len(buckets)),
	}
	for i, b := range buckets {
		if _, dup := d.index[b.Key]; dup {
			panic("taxonomy: duplicate bucket key " + string(b.Key) + " in " + string(id))
		}
		d.index[b.Key] = i
	}
	return d
}

func (d *Dimension) Has(key BucketKey) bool {
	_, ok := d.index[key]
	return ok
}

func (d *Dimension) Bucket(key BucketKey) (Bucket, bool) {
	i, ok := d.index[key]
	if !ok {
		return Bucket{}, false
	}
	return d.Buckets[i], true
}

// Position is the bucket's display order within the dimension, -1 when unknown
func (d *Dimension) Position(key BucketKey) int {
	i, ok := d.index[key]
	if !ok {
		return -1
	}
	return i
}

// Keys returns bucket keys in display order
func (d *Dimension) Keys() []BucketKey {
	out := make([]BucketKey, len(d.Buckets))
	for i, b := range d.Buckets {
		out[i] = b.Key
	}
	return out
}

var (
	dims    []*Dimension
	byID    map[DimensionID]*Dimension
	byParam map[string]*Dimension
)

func init() {
	dims = []*Dimension{
		newDimension(Price, "Price", Multi, priceBuckets()),
		newDimension(Rating, "Rating", Single, ratingBuckets()),
		newDimension(Reviews, "Reviews", Single, reviewBuckets()),
		newDimension(Amenities, "Amenities", Multi, amenityBuckets()),
		newDimension(Service, "Service", Multi, serviceBuckets()),
		newDimension(Hours, "Hours", Multi, hoursBuckets()),
		newDimension(Near, "Nearby", Multi, proximityBuckets()),
	}
	byID = make(map[DimensionID]*Dimension, len(dims))
	byParam = make(map[string]*Dimension, len(dims))
	for _, d := range dims {
		byID[d.ID] = d
		byParam[d.Param] = d
	}
}

// All returns dimensions in display order. Callers must not modify them.
func All() []*Dimension { return dims }

func Lookup(id DimensionID) (*Dimension, bool) {
	d, ok := byID[id]
	return d, ok
}

// MustLookup is for dimension constants declared in this package
func MustLookup(id DimensionID) *Dimension {
	d, ok := byID[id]
	if !ok {
		panic("taxonomy: unknown dimension " + string(id))
	}
	return d
}

func ByParam(param string) (*Dimension, bool) {
	d, ok := byParam[param]
	return d, ok
}

// RequiresSchedule reports whether the dimension only makes sense when some listing in scope has hours
func RequiresSchedule(id DimensionID) bool { return id == Hours }

// RequiresProximity reports whether the dimension only makes sense when some listing in scope has POI distances
func RequiresProximity(id DimensionID) bool { return id == Near }
