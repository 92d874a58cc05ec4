// Package pgstore reads listings and places from Postgres.
package pgstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mohammed-shakir/listing-discovery/internal/core/model"
	"github.com/mohammed-shakir/listing-discovery/internal/core/observability"
	"github.com/mohammed-shakir/listing-discovery/internal/proximity"
)

const storeName = "postgres"

// Querier is the subset of pgxpool.Pool the repository uses
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Ping(ctx context.Context) error
}

var listingColumns = []string{
	"id", "slug", "name", "address", "area_id", "sub_area_id",
	"rating", "review_count", "price", "amenities", "services", "tags",
	"lat", "lng", "hours",
}

var placeColumns = []string{"id", "slug", "name", "kind", "parent_id", "listing_count"}

var poiColumns = []string{"id", "category", "lat", "lng"}

type Repository struct {
	db     Querier
	logger *slog.Logger
	psql   squirrel.StatementBuilderType
}

func New(db Querier, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		db:     db,
		logger: logger.With("component", "pgstore"),
		psql:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Connect opens a pool and verifies it answers
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return pool, nil
}

func (r *Repository) Ping(ctx context.Context) error {
	start := time.Now()
	err := r.db.Ping(ctx)
	observability.ObserveStoreOp(storeName, "ping", err, time.Since(start).Seconds())
	return err
}

// ListingsByArea returns the listings of one area ordered by id. An empty area id
// returns every listing.
func (r *Repository) ListingsByArea(ctx context.Context, areaID string) ([]model.Listing, error) {
	ctx, span := otel.Tracer("ListingRepo").Start(ctx, "ListingsByArea", trace.WithAttributes(
		attribute.String("area.id", areaID),
	))
	defer span.End()

	q := r.psql.Select(listingColumns...).From("listings").OrderBy("id")
	if areaID != "" {
		q = q.Where(squirrel.Eq{"area_id": areaID})
	}
	query, args, err := q.ToSql()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "build query failed")
		return nil, fmt.Errorf("build listings query: %w", err)
	}

	start := time.Now()
	out, err := r.queryListings(ctx, query, args)
	observability.ObserveStoreOp(storeName, "listings", err, time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB query failed")
		r.logger.ErrorContext(ctx, "listings query failed", "area", areaID, "error", err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("listings.count", len(out)))
	span.SetStatus(codes.Ok, "listings fetched")
	return out, nil
}

func (r *Repository) queryListings(ctx context.Context, query string, args []any) ([]model.Listing, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query listings: %w", err)
	}
	defer rows.Close()

	var out []model.Listing
	for rows.Next() {
		var (
			l                         model.Listing
			address, subArea          *string
			price                     int
			amenities, services, tags []string
			hours                     []byte
		)
		if err := rows.Scan(
			&l.ID, &l.Slug, &l.Name, &address, &l.AreaID, &subArea,
			&l.Rating, &l.ReviewCount, &price, &amenities, &services, &tags,
			&l.Position.Lat, &l.Position.Lng, &hours,
		); err != nil {
			return nil, fmt.Errorf("scan listing: %w", err)
		}
		if address != nil {
			l.Address = *address
		}
		if subArea != nil {
			l.SubAreaID = *subArea
		}
		if price >= int(model.PriceInexpensive) && price <= int(model.PriceVeryExpensive) {
			l.Price = model.PriceTier(price)
		}
		if len(amenities) > 0 {
			l.Amenities = make(map[model.Amenity]bool, len(amenities))
			for _, a := range amenities {
				l.Amenities[model.Amenity(a)] = true
			}
		}
		if len(services) > 0 {
			l.Services = make(map[model.ServiceMode]bool, len(services))
			for _, s := range services {
				l.Services[model.ServiceMode(s)] = true
			}
		}
		l.Tags = tags
		if len(hours) > 0 {
			if err := json.Unmarshal(hours, &l.Hours); err != nil {
				return nil, fmt.Errorf("decode hours of %q: %w", l.ID, err)
			}
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate listings: %w", err)
	}
	return out, nil
}

func (r *Repository) Areas(ctx context.Context) ([]model.Place, error) {
	return r.places(ctx, model.KindArea, "")
}

// SubAreas returns the sub-areas of an area, or all of them for an empty id
func (r *Repository) SubAreas(ctx context.Context, areaID string) ([]model.Place, error) {
	return r.places(ctx, model.KindSubArea, areaID)
}

func (r *Repository) places(ctx context.Context, kind model.PlaceKind, parentID string) ([]model.Place, error) {
	ctx, span := otel.Tracer("ListingRepo").Start(ctx, "Places", trace.WithAttributes(
		attribute.String("place.kind", string(kind)),
		attribute.String("place.parent", parentID),
	))
	defer span.End()

	q := r.psql.Select(placeColumns...).From("places").
		Where(squirrel.Eq{"kind": string(kind)}).
		OrderBy("id")
	if parentID != "" {
		q = q.Where(squirrel.Eq{"parent_id": parentID})
	}
	query, args, err := q.ToSql()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "build query failed")
		return nil, fmt.Errorf("build places query: %w", err)
	}

	start := time.Now()
	out, err := r.queryPlaces(ctx, query, args)
	observability.ObserveStoreOp(storeName, "places", err, time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB query failed")
		return nil, err
	}
	span.SetStatus(codes.Ok, "places fetched")
	return out, nil
}

func (r *Repository) queryPlaces(ctx context.Context, query string, args []any) ([]model.Place, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query places: %w", err)
	}
	defer rows.Close()

	out := []model.Place{}
	for rows.Next() {
		var (
			p      model.Place
			kind   string
			parent *string
		)
		if err := rows.Scan(&p.ID, &p.Slug, &p.Name, &kind, &parent, &p.ListingCount); err != nil {
			return nil, fmt.Errorf("scan place: %w", err)
		}
		p.Kind = model.PlaceKind(kind)
		if parent != nil {
			p.ParentID = *parent
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate places: %w", err)
	}
	return out, nil
}

// POIs returns every point of interest used for proximity annotation
func (r *Repository) POIs(ctx context.Context) ([]proximity.POI, error) {
	ctx, span := otel.Tracer("ListingRepo").Start(ctx, "POIs")
	defer span.End()

	query, args, err := r.psql.Select(poiColumns...).From("pois").OrderBy("id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build pois query: %w", err)
	}

	start := time.Now()
	out, err := r.queryPOIs(ctx, query, args)
	observability.ObserveStoreOp(storeName, "pois", err, time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB query failed")
		return nil, err
	}
	span.SetAttributes(attribute.Int("pois.count", len(out)))
	return out, nil
}

func (r *Repository) queryPOIs(ctx context.Context, query string, args []any) ([]proximity.POI, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query pois: %w", err)
	}
	defer rows.Close()

	out := []proximity.POI{}
	for rows.Next() {
		var (
			p   proximity.POI
			cat string
		)
		if err := rows.Scan(&p.ID, &cat, &p.Position.Lat, &p.Position.Lng); err != nil {
			return nil, fmt.Errorf("scan poi: %w", err)
		}
		p.Category = model.POICategory(cat)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pois: %w", err)
	}
	return out, nil
}
