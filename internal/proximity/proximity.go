// Package proximity computes distances from listings to the nearest point of interest
// of each category. POIs are bucketed by H3 cell and searched over grid disks.
package proximity

import (
	"errors"
	"fmt"
	"math"

	h3 "github.com/uber/h3-go/v4"

	"github.com/mohammed-shakir/listing-discovery/internal/core/model"
)

const (
	// ReachMiles is the widest distance the proximity buckets distinguish
	ReachMiles = 1.0

	DefaultResolution = 8

	kmPerMile = 1.609344
)

// average hexagon edge length in km per resolution
var edgeKm = map[int]float64{
	6:  3.724532667,
	7:  1.406475763,
	8:  0.531414010,
	9:  0.200786148,
	10: 0.075863783,
}

type POI struct {
	ID       string
	Category model.POICategory
	Position model.Position
}

type Index struct {
	res   int
	k     int
	cells map[h3.Cell][]POI
}

// NewIndex buckets pois at the given resolution (6..10; 0 picks the default)
func NewIndex(pois []POI, res int) (*Index, error) {
	if res == 0 {
		res = DefaultResolution
	}
	edge, ok := edgeKm[res]
	if !ok {
		return nil, fmt.Errorf("unsupported proximity resolution %d (must be 6..10)", res)
	}
	// cell centres in a ring are about edge*sqrt(3) apart; one extra ring covers
	// points near the edge of the origin cell
	k := int(math.Ceil(ReachMiles*kmPerMile/(edge*math.Sqrt(3)))) + 1

	x := &Index{res: res, k: k, cells: map[h3.Cell][]POI{}}
	for _, p := range pois {
		if p.Position.IsZero() {
			continue
		}
		c, err := h3.LatLngToCell(latLng(p.Position), res)
		if err != nil {
			return nil, fmt.Errorf("h3 cell for poi %q: %w", p.ID, err)
		}
		x.cells[c] = append(x.cells[c], p)
	}
	return x, nil
}

func latLng(p model.Position) h3.LatLng { return h3.LatLng{Lat: p.Lat, Lng: p.Lng} }

// Nearest returns the distance in miles to the closest POI of cat within ReachMiles
func (x *Index) Nearest(pos model.Position, cat model.POICategory) (float64, bool, error) {
	origin, err := h3.LatLngToCell(latLng(pos), x.res)
	if err != nil {
		return 0, false, fmt.Errorf("h3 cell: %w", err)
	}
	disk, err := h3.GridDisk(origin, x.k)
	if err != nil {
		return 0, false, fmt.Errorf("h3 grid disk: %w", err)
	}

	best := math.Inf(1)
	from := latLng(pos)
	for _, c := range disk {
		for _, p := range x.cells[c] {
			if p.Category != cat {
				continue
			}
			if d := h3.GreatCircleDistanceKm(from, latLng(p.Position)) / kmPerMile; d < best {
				best = d
			}
		}
	}
	if best > ReachMiles {
		return 0, false, nil
	}
	return best, true, nil
}

var categories = []model.POICategory{
	model.POITransit, model.POIPark, model.POIHotel,
	model.POIAttraction, model.POIShopping, model.POIUniversity,
}

// Annotate fills Nearest entries a listing does not already carry. Listings without a
// position are left alone. Returns the number of entries added.
func (x *Index) Annotate(ls []model.Listing) (int, error) {
	added := 0
	var errs []error
	for i := range ls {
		l := &ls[i]
		if l.Position.IsZero() {
			continue
		}
		for _, cat := range categories {
			if _, ok := l.Nearest[cat]; ok {
				continue
			}
			d, ok, err := x.Nearest(l.Position, cat)
			if err != nil {
				errs = append(errs, fmt.Errorf("listing %q: %w", l.ID, err))
				break
			}
			if !ok {
				continue
			}
			if l.Nearest == nil {
				l.Nearest = map[model.POICategory]float64{}
			}
			l.Nearest[cat] = d
			added++
		}
	}
	return added, errors.Join(errs...)
}
