package search

import (
	"cmp"
	"slices"

	"github.com/mohammed-shakir/listing-discovery/internal/core/model"
	"github.com/mohammed-shakir/listing-discovery/internal/facet/selection"
)

// SortVenues orders venues in place. Relevance keeps retrieval order. Numeric orders are
// stable, so equal keys keep relevance order, and a missing value always sorts last.
func SortVenues(venues []model.Listing, order selection.SortOrder) {
	var key func(model.Listing) (float64, bool)
	desc := true

	switch order {
	case selection.SortRatingDesc:
		key = func(l model.Listing) (float64, bool) {
			if l.Rating == nil {
				return 0, false
			}
			return *l.Rating, true
		}
	case selection.SortReviewCountDesc:
		key = func(l model.Listing) (float64, bool) {
			if l.ReviewCount == nil {
				return 0, false
			}
			return float64(*l.ReviewCount), true
		}
	case selection.SortPriceAsc, selection.SortPriceDesc:
		desc = order == selection.SortPriceDesc
		key = func(l model.Listing) (float64, bool) {
			if l.Price == model.PriceUnknown {
				return 0, false
			}
			return float64(l.Price), true
		}
	default:
		return
	}

	slices.SortStableFunc(venues, func(a, b model.Listing) int {
		va, okA := key(a)
		vb, okB := key(b)
		switch {
		case !okA && !okB:
			return 0
		case !okA:
			return 1
		case !okB:
			return -1
		}
		if desc {
			return cmp.Compare(vb, va)
		}
		return cmp.Compare(va, vb)
	})
}
