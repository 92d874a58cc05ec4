// Package catalog owns the in-memory listing catalog. It loads listings and places from
// the source of record, annotates proximity, mirrors them to Redis, rebuilds the text
// index and serves cached facet snapshots per area.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mohammed-shakir/listing-discovery/internal/core/model"
	"github.com/mohammed-shakir/listing-discovery/internal/core/observability"
	"github.com/mohammed-shakir/listing-discovery/internal/facet/aggregate"
	"github.com/mohammed-shakir/listing-discovery/internal/facet/selection"
	"github.com/mohammed-shakir/listing-discovery/internal/invalidation"
	"github.com/mohammed-shakir/listing-discovery/internal/search/textindex"
)

// AllAreas is the scope covering every area
const AllAreas = ""

var ErrUnknownArea = errors.New("unknown area")

type Source interface {
	ListingsByArea(ctx context.Context, areaID string) ([]model.Listing, error)
	Areas(ctx context.Context) ([]model.Place, error)
	SubAreas(ctx context.Context, areaID string) ([]model.Place, error)
}

// Versions is the shared per-area version counter instances use to notice changes
// applied elsewhere
type Versions interface {
	Version(ctx context.Context, areaID string) (int64, error)
	BumpVersion(ctx context.Context, areaID string) (int64, error)
}

type Mirror interface {
	PutListings(ctx context.Context, areaID string, ls []model.Listing, ttl time.Duration) error
	PutPlaces(ctx context.Context, places []model.Place) error
}

type Annotator interface {
	Annotate(ls []model.Listing) (int, error)
}

type Indexer interface {
	Rebuild(venues []model.Listing, places []model.Place) *textindex.Snapshot
}

type Options struct {
	Logger      *slog.Logger
	Versions    Versions
	Mirror      Mirror
	Annotator   Annotator
	Indexer     Indexer
	Cache       *aggregate.Cache
	ListingsTTL time.Duration
}

type Catalog struct {
	src  Source
	opts Options
	log  *slog.Logger

	mu     sync.RWMutex
	areas  map[string][]model.Listing
	places []model.Place
	loaded map[string]int64

	// gen changes on every catalog mutation and keys the facet snapshots
	gen   atomic.Int64
	ready atomic.Bool
}

func New(src Source, opts Options) *Catalog {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Cache == nil {
		opts.Cache = aggregate.NewCache(0)
	}
	return &Catalog{
		src:    src,
		opts:   opts,
		log:    opts.Logger.With("component", "catalog"),
		areas:  map[string][]model.Listing{},
		loaded: map[string]int64{},
	}
}

func (c *Catalog) Ready() bool { return c.ready.Load() }

func (c *Catalog) Generation() int64 { return c.gen.Load() }

// Load replaces the whole catalog from the source
func (c *Catalog) Load(ctx context.Context) error {
	start := time.Now()
	areas, err := c.src.Areas(ctx)
	if err != nil {
		return fmt.Errorf("load areas: %w", err)
	}
	subs, err := c.src.SubAreas(ctx, "")
	if err != nil {
		return fmt.Errorf("load sub areas: %w", err)
	}
	all, err := c.src.ListingsByArea(ctx, "")
	if err != nil {
		return fmt.Errorf("load listings: %w", err)
	}
	c.annotate(all)

	byArea := map[string][]model.Listing{}
	for _, l := range all {
		byArea[l.AreaID] = append(byArea[l.AreaID], l)
	}
	places := append(slices.Clone(areas), subs...)
	countListings(places, all)

	versions := map[string]int64{}
	if c.opts.Versions != nil {
		for id := range byArea {
			v, err := c.opts.Versions.Version(ctx, id)
			if err != nil {
				c.log.WarnContext(ctx, "read area version", "area", id, "err", err)
				continue
			}
			versions[id] = v
		}
	}

	c.mu.Lock()
	c.areas = byArea
	c.places = places
	c.loaded = versions
	c.mu.Unlock()

	c.mirror(ctx, byArea, places)
	c.gen.Add(1)
	c.reindex()
	c.opts.Cache.Purge()
	c.ready.Store(true)

	c.log.InfoContext(ctx, "catalog loaded",
		"areas", len(areas), "sub_areas", len(subs), "listings", len(all),
		"duration", time.Since(start))
	return nil
}

// Apply handles one invalidation event: refresh reloads the area, delete drops it.
// The shared version is bumped afterwards so other instances reload too.
func (c *Catalog) Apply(ctx context.Context, ev invalidation.Event) error {
	var err error
	switch ev.Op {
	case invalidation.OpDelete:
		c.remove(ev.Scope)
	default:
		err = c.refresh(ctx, ev.Scope)
	}
	if err != nil {
		return err
	}
	if c.opts.Versions != nil {
		v, err := c.opts.Versions.BumpVersion(ctx, ev.Scope)
		if err != nil {
			return fmt.Errorf("bump version of %q: %w", ev.Scope, err)
		}
		c.mu.Lock()
		c.loaded[ev.Scope] = v
		c.mu.Unlock()
	}
	return nil
}

func (c *Catalog) refresh(ctx context.Context, areaID string) error {
	ls, err := c.src.ListingsByArea(ctx, areaID)
	if err != nil {
		return fmt.Errorf("reload %q: %w", areaID, err)
	}
	c.annotate(ls)

	c.mu.RLock()
	missing := len(ls) > 0 && c.missingPlacesLocked(areaID, ls)
	c.mu.RUnlock()
	var fresh []model.Place
	if missing {
		if fresh, err = c.loadAreaPlaces(ctx, areaID); err != nil {
			c.log.WarnContext(ctx, "reload places for refreshed area", "area", areaID, "err", err)
		}
	}

	c.mu.Lock()
	if len(ls) == 0 {
		delete(c.areas, areaID)
	} else {
		c.areas[areaID] = ls
	}
	if fresh != nil {
		c.places = mergePlaces(c.places, areaID, fresh)
	}
	c.recountLocked()
	places := slices.Clone(c.places)
	c.mu.Unlock()

	c.mirror(ctx, map[string][]model.Listing{areaID: ls}, places)
	c.changed(areaID)
	c.log.InfoContext(ctx, "area refreshed", "area", areaID, "listings", len(ls))
	return nil
}

// missingPlacesLocked reports whether the area or a sub-area its listings reference has no
// place doc yet
func (c *Catalog) missingPlacesLocked(areaID string, ls []model.Listing) bool {
	known := make(map[string]bool, len(c.places))
	for _, p := range c.places {
		known[p.ID] = true
	}
	if !known[areaID] {
		return true
	}
	for _, l := range ls {
		if l.SubAreaID != "" && !known[l.SubAreaID] {
			return true
		}
	}
	return false
}

// loadAreaPlaces reads the area's own place doc and its sub-areas from the source
func (c *Catalog) loadAreaPlaces(ctx context.Context, areaID string) ([]model.Place, error) {
	areas, err := c.src.Areas(ctx)
	if err != nil {
		return nil, fmt.Errorf("load areas: %w", err)
	}
	subs, err := c.src.SubAreas(ctx, areaID)
	if err != nil {
		return nil, fmt.Errorf("load sub areas of %q: %w", areaID, err)
	}
	out := make([]model.Place, 0, len(subs)+1)
	for _, a := range areas {
		if a.ID == areaID {
			out = append(out, a)
		}
	}
	return append(out, subs...), nil
}

// mergePlaces swaps the area's place doc and sub-areas in places for fresh
func mergePlaces(places []model.Place, areaID string, fresh []model.Place) []model.Place {
	out := make([]model.Place, 0, len(places)+len(fresh))
	for _, p := range places {
		if p.ID == areaID || (p.Kind == model.KindSubArea && p.ParentID == areaID) {
			continue
		}
		out = append(out, p)
	}
	return append(out, fresh...)
}

func (c *Catalog) remove(areaID string) {
	c.mu.Lock()
	delete(c.areas, areaID)
	delete(c.loaded, areaID)
	c.recountLocked()
	c.mu.Unlock()
	c.changed(areaID)
	c.log.Info("area removed", "area", areaID)
}

func (c *Catalog) changed(areaID string) {
	c.gen.Add(1)
	c.reindex()
	c.opts.Cache.Invalidate(areaID)
	c.opts.Cache.Invalidate(AllAreas)
}

// Listings returns the listings of an area, or of every area for AllAreas, ordered by id
func (c *Catalog) Listings(areaID string) ([]model.Listing, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if areaID != AllAreas {
		ls, ok := c.areas[areaID]
		return ls, ok
	}
	return c.allLocked(), true
}

func (c *Catalog) Places() []model.Place {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.places)
}

func (c *Catalog) allLocked() []model.Listing {
	n := 0
	for _, ls := range c.areas {
		n += len(ls)
	}
	out := make([]model.Listing, 0, n)
	for _, ls := range c.areas {
		out = append(out, ls...)
	}
	slices.SortFunc(out, func(a, b model.Listing) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// Facets returns the facet snapshot of an area under sel. When the shared version of
// the area moved past the one loaded here, the area is reloaded first.
func (c *Catalog) Facets(ctx context.Context, areaID string, sel selection.FilterSelection) (*aggregate.AggregatedFacets, error) {
	if areaID != AllAreas {
		if err := c.catchUp(ctx, areaID); err != nil {
			c.log.WarnContext(ctx, "serving possibly stale area", "area", areaID, "err", err)
		}
	}

	start := time.Now()
	snap, hit, err := c.opts.Cache.GetOrCompute(areaID, c.gen.Load(), sel, func() ([]model.Listing, error) {
		ls, ok := c.Listings(areaID)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownArea, areaID)
		}
		return ls, nil
	})
	observability.IncFacetCache(hit)
	if !hit && err == nil {
		observability.ObserveFacetCompute(time.Since(start).Seconds())
	}
	return snap, err
}

func (c *Catalog) catchUp(ctx context.Context, areaID string) error {
	if c.opts.Versions == nil {
		return nil
	}
	v, err := c.opts.Versions.Version(ctx, areaID)
	if err != nil {
		return err
	}
	c.mu.RLock()
	have := c.loaded[areaID]
	c.mu.RUnlock()
	if v <= have {
		return nil
	}
	if err := c.refresh(ctx, areaID); err != nil {
		return err
	}
	c.mu.Lock()
	c.loaded[areaID] = v
	c.mu.Unlock()
	return nil
}

func (c *Catalog) annotate(ls []model.Listing) {
	if c.opts.Annotator == nil {
		return
	}
	if _, err := c.opts.Annotator.Annotate(ls); err != nil {
		c.log.Warn("proximity annotation incomplete", "err", err)
	}
}

func (c *Catalog) mirror(ctx context.Context, byArea map[string][]model.Listing, places []model.Place) {
	if c.opts.Mirror == nil {
		return
	}
	for id, ls := range byArea {
		if err := c.opts.Mirror.PutListings(ctx, id, ls, c.opts.ListingsTTL); err != nil {
			c.log.WarnContext(ctx, "mirror listings", "area", id, "err", err)
		}
	}
	if err := c.opts.Mirror.PutPlaces(ctx, places); err != nil {
		c.log.WarnContext(ctx, "mirror places", "err", err)
	}
}

func (c *Catalog) reindex() {
	if c.opts.Indexer == nil {
		return
	}
	c.mu.RLock()
	all := c.allLocked()
	places := slices.Clone(c.places)
	c.mu.RUnlock()
	_ = c.opts.Indexer.Rebuild(all, places)
}

func (c *Catalog) recountLocked() {
	countListings(c.places, c.allLocked())
}

func countListings(places []model.Place, ls []model.Listing) {
	counts := map[string]int{}
	for _, l := range ls {
		counts[l.AreaID]++
		if l.SubAreaID != "" {
			counts[l.SubAreaID]++
		}
	}
	for i := range places {
		places[i].ListingCount = counts[places[i].ID]
	}
}
