package redisstore

import (
	"context"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/mohammed-shakir/listing-discovery/internal/core/model"
	"github.com/mohammed-shakir/listing-discovery/internal/core/observability"
)

type PopularSource interface {
	PopularPlaces(ctx context.Context, n int) ([]model.Place, error)
}

// PopularCache reads popular places through a short-lived in-process cache keyed by n.
// Errors from the source are not cached.
type PopularCache struct {
	src   PopularSource
	cache *cache.Cache
}

func NewPopularCache(src PopularSource, ttl time.Duration) *PopularCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &PopularCache{src: src, cache: cache.New(ttl, 10*time.Minute)}
}

func (p *PopularCache) PopularPlaces(ctx context.Context, n int) ([]model.Place, error) {
	key := strconv.Itoa(n)
	if v, ok := p.cache.Get(key); ok {
		observability.IncPopularCache(true)
		return append([]model.Place(nil), v.([]model.Place)...), nil
	}
	observability.IncPopularCache(false)

	places, err := p.src.PopularPlaces(ctx, n)
	if err != nil {
		return nil, err
	}
	p.cache.Set(key, append([]model.Place(nil), places...), cache.DefaultExpiration)
	return places, nil
}

// Flush drops every cached answer
func (p *PopularCache) Flush() { p.cache.Flush() }
