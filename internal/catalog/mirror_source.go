package catalog

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/mohammed-shakir/listing-discovery/internal/core/model"
	"github.com/mohammed-shakir/listing-discovery/internal/store/redisstore"
)

// MirrorReader is the read side of the Redis mirror
type MirrorReader interface {
	Listings(ctx context.Context, areaID string) ([]model.Listing, error)
	Places(ctx context.Context, kind model.PlaceKind) ([]model.Place, error)
}

// MirrorSource serves Source from the Redis mirror when no database is configured.
// Areas without a mirrored listing set are treated as empty.
type MirrorSource struct {
	r MirrorReader
}

func NewMirrorSource(r MirrorReader) *MirrorSource { return &MirrorSource{r: r} }

func (m *MirrorSource) Areas(ctx context.Context) ([]model.Place, error) {
	return m.r.Places(ctx, model.KindArea)
}

func (m *MirrorSource) SubAreas(ctx context.Context, areaID string) ([]model.Place, error) {
	subs, err := m.r.Places(ctx, model.KindSubArea)
	if err != nil || areaID == "" {
		return subs, err
	}
	return slices.DeleteFunc(subs, func(p model.Place) bool { return p.ParentID != areaID }), nil
}

func (m *MirrorSource) ListingsByArea(ctx context.Context, areaID string) ([]model.Listing, error) {
	if areaID != "" {
		ls, err := m.r.Listings(ctx, areaID)
		if errors.Is(err, redisstore.ErrNotFound) {
			return nil, nil
		}
		return ls, err
	}
	areas, err := m.Areas(ctx)
	if err != nil {
		return nil, err
	}
	var all []model.Listing
	for _, a := range areas {
		ls, err := m.ListingsByArea(ctx, a.ID)
		if err != nil {
			return nil, err
		}
		all = append(all, ls...)
	}
	slices.SortFunc(all, func(a, b model.Listing) int { return strings.Compare(a.ID, b.ID) })
	return all, nil
}
