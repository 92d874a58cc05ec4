// Package aggregate computes per-bucket facet counts over one listing scope.
package aggregate

import (
	"encoding/json"

	"github.com/mohammed-shakir/listing-discovery/internal/core/model"
	"github.com/mohammed-shakir/listing-discovery/internal/facet/selection"
	"github.com/mohammed-shakir/listing-discovery/internal/facet/taxonomy"
)

type BucketCount struct {
	Key    taxonomy.BucketKey `json:"key"`
	Label  string             `json:"label"`
	Count  int                `json:"count"`
	Active bool               `json:"active,omitempty"`
}

type DimensionCounts struct {
	ID      taxonomy.DimensionID `json:"id"`
	Param   string               `json:"param"`
	Label   string               `json:"label"`
	Mode    string               `json:"mode"`
	Visible bool                 `json:"visible"`
	Buckets []BucketCount        `json:"buckets"`
}

// AggregatedFacets is an immutable snapshot. Accessors return copies.
type AggregatedFacets struct {
	total        int
	matching     int
	hasSchedule  bool
	hasProximity bool
	dims         []DimensionCounts
	byID         map[taxonomy.DimensionID]int
}

func (a *AggregatedFacets) Total() int { return a.total }

// Matching is the number of listings that satisfy the whole selection
func (a *AggregatedFacets) Matching() int { return a.matching }

func (a *AggregatedFacets) HasSchedule() bool { return a.hasSchedule }

func (a *AggregatedFacets) HasProximity() bool { return a.hasProximity }

func (a *AggregatedFacets) Count(dim taxonomy.DimensionID, key taxonomy.BucketKey) int {
	i, ok := a.byID[dim]
	if !ok {
		return 0
	}
	for _, b := range a.dims[i].Buckets {
		if b.Key == key {
			return b.Count
		}
	}
	return 0
}

func (a *AggregatedFacets) Dimension(dim taxonomy.DimensionID) (DimensionCounts, bool) {
	i, ok := a.byID[dim]
	if !ok {
		return DimensionCounts{}, false
	}
	return copyDim(a.dims[i]), true
}

// Dimensions returns every dimension, zero counts included, in taxonomy order
func (a *AggregatedFacets) Dimensions() []DimensionCounts {
	out := make([]DimensionCounts, len(a.dims))
	for i, d := range a.dims {
		out[i] = copyDim(d)
	}
	return out
}

// Visible reports whether the dimension should be rendered at all
func (a *AggregatedFacets) Visible(dim taxonomy.DimensionID) bool {
	i, ok := a.byID[dim]
	return ok && a.dims[i].Visible
}

func (a *AggregatedFacets) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Total        int               `json:"total"`
		Matching     int               `json:"matching"`
		HasSchedule  bool              `json:"has_schedule"`
		HasProximity bool              `json:"has_proximity"`
		Dimensions   []DimensionCounts `json:"dimensions"`
	}{a.total, a.matching, a.hasSchedule, a.hasProximity, a.dims})
}

func copyDim(d DimensionCounts) DimensionCounts {
	d.Buckets = append([]BucketCount(nil), d.Buckets...)
	return d
}

// Compute counts, for every bucket, the listings that satisfy the bucket predicate and the
// active selection of every other dimension. A dimension's own selection never narrows its
// own counts, so sibling buckets are not OR'd in either.
func Compute(listings []model.Listing, sel selection.FilterSelection) *AggregatedFacets {
	dims := taxonomy.All()
	out := &AggregatedFacets{
		total: len(listings),
		dims:  make([]DimensionCounts, len(dims)),
		byID:  make(map[taxonomy.DimensionID]int, len(dims)),
	}
	for i, d := range dims {
		dc := DimensionCounts{
			ID:      d.ID,
			Param:   d.Param,
			Label:   d.Label,
			Mode:    d.Mode.String(),
			Buckets: make([]BucketCount, len(d.Buckets)),
		}
		for j, b := range d.Buckets {
			dc.Buckets[j] = BucketCount{Key: b.Key, Label: b.Label, Active: sel.Has(d.ID, b.Key)}
		}
		out.dims[i] = dc
		out.byID[d.ID] = i
	}

	active := sel.Dimensions()

	for _, l := range listings {
		if len(l.Hours) > 0 {
			out.hasSchedule = true
		}
		if len(l.Nearest) > 0 {
			out.hasProximity = true
		}

		// which active dimensions reject this listing
		misses := 0
		missAt := -1
		for _, id := range active {
			if !matchesDim(sel, id, l) {
				misses++
				missAt = out.byID[id]
			}
		}
		if misses == 0 {
			out.matching++
		}
		if misses > 1 {
			continue
		}

		for i, d := range dims {
			if misses == 1 && missAt != i {
				continue
			}
			buckets := out.dims[i].Buckets
			for j, b := range d.Buckets {
				if b.Match(l) {
					buckets[j].Count++
				}
			}
		}
	}

	for i, d := range dims {
		out.dims[i].Visible = visible(out, d.ID, out.dims[i].Buckets)
	}
	return out
}

func matchesDim(sel selection.FilterSelection, id taxonomy.DimensionID, l model.Listing) bool {
	d, ok := taxonomy.Lookup(id)
	if !ok {
		return true
	}
	for _, k := range sel.Active(id) {
		if b, ok := d.Bucket(k); ok && b.Match(l) {
			return true
		}
	}
	return false
}

func visible(a *AggregatedFacets, id taxonomy.DimensionID, buckets []BucketCount) bool {
	if taxonomy.RequiresSchedule(id) && !a.hasSchedule {
		return false
	}
	if taxonomy.RequiresProximity(id) && !a.hasProximity {
		return false
	}
	for _, b := range buckets {
		if b.Count > 0 {
			return true
		}
	}
	return false
}
