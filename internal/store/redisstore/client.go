// Package redisstore is the Redis read layer: listings per area, places per kind,
// popular places and per-area version counters.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	maintnotifications "github.com/redis/go-redis/v9/maintnotifications"

	"github.com/mohammed-shakir/listing-discovery/internal/core/model"
	"github.com/mohammed-shakir/listing-discovery/internal/core/observability"
	"github.com/mohammed-shakir/listing-discovery/internal/store/keys"
)

const storeName = "redis"

// ErrNotFound is returned when an area has no listings stored
var ErrNotFound = errors.New("redisstore: not found")

type Option func(*redis.Options)

func WithPoolSize(n int) Option {
	return func(o *redis.Options) { o.PoolSize = n }
}

func WithMinIdleConns(n int) Option {
	return func(o *redis.Options) { o.MinIdleConns = n }
}

func WithDialTimeout(d time.Duration) Option {
	return func(o *redis.Options) { o.DialTimeout = d }
}

func WithReadTimeout(d time.Duration) Option {
	return func(o *redis.Options) { o.ReadTimeout = d }
}

func WithWriteTimeout(d time.Duration) Option {
	return func(o *redis.Options) { o.WriteTimeout = d }
}

type Client struct {
	rdb *redis.Client
}

func New(ctx context.Context, addr string, opts ...Option) (*Client, error) {
	if addr == "" {
		return nil, errors.New("redis address is required")
	}

	ro := &redis.Options{
		Addr:         addr,
		PoolSize:     64,
		MinIdleConns: 4,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
		MaintNotificationsConfig: &maintnotifications.Config{
			Mode: maintnotifications.ModeDisabled,
		},
	}
	for _, f := range opts {
		f(ro)
	}

	rdb := redis.NewClient(ro)
	c := &Client{rdb: rdb}
	if err := c.Ping(ctx); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) Ping(ctx context.Context) error {
	start := time.Now()
	err := c.rdb.Ping(ctx).Err()
	observability.ObserveStoreOp(storeName, "ping", err, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (c *Client) Close() error {
	if err := c.rdb.Close(); err != nil {
		return fmt.Errorf("redis close: %w", err)
	}
	return nil
}

// PutListings replaces the listings stored for an area. ttl 0 keeps them until replaced.
func (c *Client) PutListings(ctx context.Context, areaID string, ls []model.Listing, ttl time.Duration) error {
	b, err := json.Marshal(ls)
	if err != nil {
		return fmt.Errorf("encode listings for %q: %w", areaID, err)
	}
	key := keys.ListingsKey(areaID)
	start := time.Now()
	err = c.rdb.Set(ctx, key, b, ttl).Err()
	observability.ObserveStoreOp(storeName, "put_listings", err, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("redis SET %q: %w", key, err)
	}
	return nil
}

func (c *Client) Listings(ctx context.Context, areaID string) ([]model.Listing, error) {
	key := keys.ListingsKey(areaID)
	start := time.Now()
	b, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		observability.ObserveStoreOp(storeName, "listings", nil, time.Since(start).Seconds())
		return nil, fmt.Errorf("listings for %q: %w", areaID, ErrNotFound)
	}
	observability.ObserveStoreOp(storeName, "listings", err, time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("redis GET %q: %w", key, err)
	}
	var out []model.Listing
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode listings for %q: %w", areaID, err)
	}
	return out, nil
}

// PutPlaces upserts places into the hash of their kind
func (c *Client) PutPlaces(ctx context.Context, places []model.Place) error {
	if len(places) == 0 {
		return nil
	}
	start := time.Now()
	_, err := c.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for _, pl := range places {
			b, err := json.Marshal(pl)
			if err != nil {
				return fmt.Errorf("encode place %q: %w", pl.ID, err)
			}
			p.HSet(ctx, keys.PlacesKey(pl.Kind), pl.ID, b)
		}
		return nil
	})
	observability.ObserveStoreOp(storeName, "put_places", err, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("redis HSET %d places (pipeline): %w", len(places), err)
	}
	return nil
}

// Places returns every place of a kind ordered by id
func (c *Client) Places(ctx context.Context, kind model.PlaceKind) ([]model.Place, error) {
	key := keys.PlacesKey(kind)
	start := time.Now()
	vals, err := c.rdb.HGetAll(ctx, key).Result()
	observability.ObserveStoreOp(storeName, "places", err, time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("redis HGETALL %q: %w", key, err)
	}
	out := make([]model.Place, 0, len(vals))
	for id, v := range vals {
		var p model.Place
		if err := json.Unmarshal([]byte(v), &p); err != nil {
			return nil, fmt.Errorf("decode place %q: %w", id, err)
		}
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b model.Place) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

func popularMember(kind model.PlaceKind, id string) string {
	return string(kind) + "|" + id
}

// BumpPopularity adds by to a place's popularity score
func (c *Client) BumpPopularity(ctx context.Context, kind model.PlaceKind, id string, by float64) error {
	start := time.Now()
	err := c.rdb.ZIncrBy(ctx, keys.PopularKey(), by, popularMember(kind, id)).Err()
	observability.ObserveStoreOp(storeName, "bump_popularity", err, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("redis ZINCRBY %q: %w", id, err)
	}
	return nil
}

// PopularPlaces returns up to n places by descending popularity. Members whose place
// record is gone are skipped.
func (c *Client) PopularPlaces(ctx context.Context, n int) ([]model.Place, error) {
	if n <= 0 {
		return []model.Place{}, nil
	}
	start := time.Now()
	members, err := c.rdb.ZRevRange(ctx, keys.PopularKey(), 0, int64(n-1)).Result()
	if err != nil {
		observability.ObserveStoreOp(storeName, "popular", err, time.Since(start).Seconds())
		return nil, fmt.Errorf("redis ZREVRANGE popular: %w", err)
	}

	cmds := make([]*redis.StringCmd, len(members))
	_, err = c.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, m := range members {
			kind, id, ok := strings.Cut(m, "|")
			if !ok {
				continue
			}
			cmds[i] = p.HGet(ctx, keys.PlacesKey(model.PlaceKind(kind)), id)
		}
		return nil
	})
	if errors.Is(err, redis.Nil) {
		err = nil
	}
	observability.ObserveStoreOp(storeName, "popular", err, time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("redis HGET popular places: %w", err)
	}

	out := make([]model.Place, 0, len(members))
	for _, cmd := range cmds {
		if cmd == nil {
			continue
		}
		b, err := cmd.Bytes()
		if err != nil {
			continue
		}
		var p model.Place
		if err := json.Unmarshal(b, &p); err != nil {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// BumpVersion increments an area's version and returns the new value
func (c *Client) BumpVersion(ctx context.Context, areaID string) (int64, error) {
	key := keys.VersionKey(areaID)
	start := time.Now()
	v, err := c.rdb.Incr(ctx, key).Result()
	observability.ObserveStoreOp(storeName, "bump_version", err, time.Since(start).Seconds())
	if err != nil {
		return 0, fmt.Errorf("redis INCR %q: %w", key, err)
	}
	return v, nil
}

// Version returns an area's version, 0 if it was never bumped
func (c *Client) Version(ctx context.Context, areaID string) (int64, error) {
	key := keys.VersionKey(areaID)
	start := time.Now()
	v, err := c.rdb.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		observability.ObserveStoreOp(storeName, "version", nil, time.Since(start).Seconds())
		return 0, nil
	}
	observability.ObserveStoreOp(storeName, "version", err, time.Since(start).Seconds())
	if err != nil {
		return 0, fmt.Errorf("redis GET %q: %w", key, err)
	}
	return v, nil
}
