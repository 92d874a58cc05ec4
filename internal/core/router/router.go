// Package router holds the HTTP handlers for search, facets and suggestions.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/mohammed-shakir/listing-discovery/internal/catalog"
	"github.com/mohammed-shakir/listing-discovery/internal/core/model"
	"github.com/mohammed-shakir/listing-discovery/internal/core/observability"
	"github.com/mohammed-shakir/listing-discovery/internal/facet/aggregate"
	"github.com/mohammed-shakir/listing-discovery/internal/facet/codec"
	"github.com/mohammed-shakir/listing-discovery/internal/facet/selection"
	"github.com/mohammed-shakir/listing-discovery/internal/search"
	"github.com/mohammed-shakir/listing-discovery/internal/searchevents"
)

const (
	ParamOffset = "offset"
	ParamLimit  = "limit"
	ParamFacets = "facets"
	ParamArea   = "area"
	// ParamSnapshot carries Envelope.Snapshot from the previous page
	ParamSnapshot = "snapshot"

	suggestVenues = 5
)

type Searcher interface {
	Search(ctx context.Context, req search.Request) (search.Envelope, error)
}

type FacetSource interface {
	Facets(ctx context.Context, areaID string, sel selection.FilterSelection) (*aggregate.AggregatedFacets, error)
}

type EventPublisher interface {
	Publish(ev searchevents.Event)
}

type PopularityRecorder interface {
	BumpPopularity(ctx context.Context, kind model.PlaceKind, id string, by float64) error
}

type Options struct {
	Logger          *slog.Logger
	Facets          FacetSource
	Events          EventPublisher
	Popularity      PopularityRecorder
	DefaultPageSize int
}

type Handlers struct {
	log             *slog.Logger
	search          Searcher
	facets          FacetSource
	events          EventPublisher
	popularity      PopularityRecorder
	defaultPageSize int
}

func New(s Searcher, opts Options) *Handlers {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.DefaultPageSize <= 0 {
		opts.DefaultPageSize = 20
	}
	return &Handlers{
		log:             opts.Logger,
		search:          s,
		facets:          opts.Facets,
		events:          opts.Events,
		popularity:      opts.Popularity,
		defaultPageSize: opts.DefaultPageSize,
	}
}

type searchResponse struct {
	search.Envelope
	// Filters is the canonical query string of the applied selection
	Filters string `json:"filters"`
}

// Search serves GET /search
func (h *Handlers) Search(w http.ResponseWriter, r *http.Request) {
	sel := h.decode(r)
	offset, size, snap, err := h.page(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_page")
		return
	}

	env, err := h.search.Search(r.Context(), search.Request{
		Query:      r.URL.Query().Get(codec.ParamQuery),
		Selection:  sel,
		PageSize:   size,
		Offset:     offset,
		Snapshot:   snap,
		WithFacets: truthy(r.URL.Query().Get(ParamFacets)),
	})
	if err != nil {
		h.searchError(w, r, err)
		return
	}

	filters := codec.QueryString(sel)
	h.publish(env, filters)
	writeJSON(w, http.StatusOK, searchResponse{Envelope: env, Filters: filters})
}

type suggestResponse struct {
	Query     string            `json:"query"`
	Areas     []model.Place     `json:"areas"`
	SubAreas  []model.Place     `json:"sub_areas"`
	Venues    []model.Listing   `json:"venues"`
	Suggested bool              `json:"suggested,omitempty"`
	Degraded  []model.PlaceKind `json:"degraded,omitempty"`
}

// Suggest serves GET /suggest: the type-ahead view, a few venues plus the place groups
func (h *Handlers) Suggest(w http.ResponseWriter, r *http.Request) {
	env, err := h.search.Search(r.Context(), search.Request{
		Query:     r.URL.Query().Get(codec.ParamQuery),
		Selection: selection.New(),
		PageSize:  suggestVenues,
	})
	if err != nil {
		h.searchError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, suggestResponse{
		Query:     env.Query,
		Areas:     env.Areas,
		SubAreas:  env.SubAreas,
		Venues:    env.Venues,
		Suggested: env.Suggested,
		Degraded:  env.Degraded,
	})
}

type facetsResponse struct {
	Area    string                      `json:"area,omitempty"`
	Filters string                      `json:"filters"`
	Facets  *aggregate.AggregatedFacets `json:"facets"`
}

// Facets serves GET /facets: counts over every listing of an area, or of all areas
func (h *Handlers) Facets(w http.ResponseWriter, r *http.Request) {
	if h.facets == nil {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	sel := h.decode(r)
	area := strings.TrimSpace(r.URL.Query().Get(ParamArea))

	f, err := h.facets.Facets(r.Context(), area, sel)
	switch {
	case errors.Is(err, catalog.ErrUnknownArea):
		writeError(w, http.StatusNotFound, "unknown_area")
		return
	case err != nil:
		h.log.ErrorContext(r.Context(), "facets failed", "area", area, "err", err)
		w.Header().Set("Cache-Control", "no-store")
		writeError(w, http.StatusServiceUnavailable, "facets_unavailable")
		return
	}
	writeJSON(w, http.StatusOK, facetsResponse{Area: area, Filters: codec.QueryString(sel), Facets: f})
}

type selectRequest struct {
	Kind model.PlaceKind `json:"kind"`
	ID   string          `json:"id"`
}

// Select serves POST /suggest/select: records that a suggested place was picked
func (h *Handlers) Select(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<10)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body")
		return
	}
	if (req.Kind != model.KindArea && req.Kind != model.KindSubArea) || strings.TrimSpace(req.ID) == "" {
		writeError(w, http.StatusBadRequest, "invalid_place")
		return
	}
	if h.popularity != nil {
		if err := h.popularity.BumpPopularity(r.Context(), req.Kind, req.ID, 1); err != nil {
			h.log.WarnContext(r.Context(), "bump popularity", "kind", req.Kind, "id", req.ID, "err", err)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) decode(r *http.Request) selection.FilterSelection {
	sel, anomalies := codec.DecodeValuesWithAnomalies(r.URL.Query())
	for _, a := range anomalies {
		observability.AddDecodeAnomaly(a.Param)
	}
	if len(anomalies) > 0 {
		h.log.DebugContext(r.Context(), "dropped filter values", "count", len(anomalies), "first_param", anomalies[0].Param)
	}
	return sel
}

func (h *Handlers) page(r *http.Request) (offset, size int, snap uint64, err error) {
	q := r.URL.Query()
	size = h.defaultPageSize
	if v := q.Get(ParamOffset); v != "" {
		if offset, err = strconv.Atoi(v); err != nil {
			return 0, 0, 0, err
		}
	}
	if v := q.Get(ParamLimit); v != "" {
		if size, err = strconv.Atoi(v); err != nil {
			return 0, 0, 0, err
		}
	}
	if v := q.Get(ParamSnapshot); v != "" {
		if snap, err = strconv.ParseUint(v, 10, 64); err != nil {
			return 0, 0, 0, err
		}
	}
	return offset, size, snap, nil
}

func (h *Handlers) searchError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, search.ErrInvalidPage):
		writeError(w, http.StatusBadRequest, "invalid_page")
	case search.IsUnavailable(err):
		w.Header().Set("Cache-Control", "no-store")
		writeError(w, http.StatusServiceUnavailable, "search_unavailable")
	default:
		h.log.ErrorContext(r.Context(), "search failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal")
	}
}

func (h *Handlers) publish(env search.Envelope, filters string) {
	if h.events == nil || env.Suggested {
		return
	}
	h.events.Publish(searchevents.Event{
		Query:    env.Query,
		Areas:    len(env.Areas),
		SubAreas: len(env.SubAreas),
		Venues:   env.Total,
		Filters:  filters,
		Partial:  env.Partial,
	})
}

func truthy(v string) bool {
	b, err := strconv.ParseBool(v)
	return err == nil && b
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
