// Package config reads service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/mohammed-shakir/listing-discovery/internal/invalidation"
)

type SearchCfg struct {
	DefaultPageSize int
	MaxPageSize     int
	KindTimeout     time.Duration
	PlaceLimit      int
	PopularLimit    int
	// RetainSnapshots is how many index builds stay addressable for paging
	RetainSnapshots int
}

type EventsCfg struct {
	Enabled   bool
	Topic     string
	QueueSize int
}

type Config struct {
	Addr       string
	LogLevel   string
	LogConsole bool
	LogSampleN int

	RedisAddr     string
	RedisTimeout  time.Duration
	PostgresDSN   string
	KafkaBrokers  []string
	ProximityRes  int
	ListingsTTL   time.Duration
	ReloadTimeout time.Duration

	Search          SearchCfg
	FacetCacheSize  int
	PopularCacheTTL time.Duration

	RateLimitRPS   float64
	RateLimitBurst int
	CORSOrigin     string

	Invalidation invalidation.Config
	Events       EventsCfg
}

// Load reads the given .env files, if present, and then the environment.
// Variables already set in the environment win over the files.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return FromEnv(), nil
}

func FromEnv() Config {
	brokers := splitCSV(getenv("KAFKA_BROKERS", "localhost:9092"))

	maxPage := getint("SEARCH_MAX_PAGE_SIZE", 50)
	if maxPage <= 0 {
		maxPage = 50
	}
	defPage := getint("SEARCH_DEFAULT_PAGE_SIZE", 20)
	if defPage <= 0 || defPage > maxPage {
		defPage = min(20, maxPage)
	}

	inv := invalidation.DefaultConfig()
	inv.Enabled = getbool("INVALIDATION_ENABLED", false)
	inv.Brokers = brokers
	inv.Topic = getenv("KAFKA_INVALIDATION_TOPIC", inv.Topic)
	inv.GroupID = getenv("KAFKA_GROUP_ID", inv.GroupID)
	inv.DedupeSize = getint("INVALIDATION_DEDUPE_SIZE", inv.DedupeSize)

	return Config{
		Addr:       getenv("ADDR", ":8090"),
		LogLevel:   getenv("LOG_LEVEL", "info"),
		LogConsole: getbool("LOG_CONSOLE", false),
		LogSampleN: getint("LOG_SAMPLE_N", 0),

		RedisAddr:     getenv("REDIS_ADDR", "localhost:6379"),
		RedisTimeout:  getduration("REDIS_TIMEOUT", 250*time.Millisecond),
		PostgresDSN:   getenv("POSTGRES_DSN", ""),
		KafkaBrokers:  brokers,
		ProximityRes:  getint("PROXIMITY_H3_RES", 8),
		ListingsTTL:   getduration("LISTINGS_TTL", 0),
		ReloadTimeout: getduration("RELOAD_TIMEOUT", 30*time.Second),

		Search: SearchCfg{
			DefaultPageSize: defPage,
			MaxPageSize:     maxPage,
			KindTimeout:     getduration("SEARCH_KIND_TIMEOUT", 800*time.Millisecond),
			PlaceLimit:      getint("SEARCH_PLACE_LIMIT", 5),
			PopularLimit:    getint("SEARCH_POPULAR_LIMIT", 8),
			RetainSnapshots: getint("SEARCH_RETAIN_SNAPSHOTS", 8),
		},
		FacetCacheSize:  getint("FACET_CACHE_SIZE", 2048),
		PopularCacheTTL: getduration("POPULAR_CACHE_TTL", 30*time.Second),

		RateLimitRPS:   getfloat("RATE_LIMIT_RPS", 0),
		RateLimitBurst: getint("RATE_LIMIT_BURST", 20),
		CORSOrigin:     getenv("CORS_ORIGIN", "*"),

		Invalidation: inv,
		Events: EventsCfg{
			Enabled:   getbool("EVENTS_ENABLED", false),
			Topic:     getenv("KAFKA_EVENTS_TOPIC", "search-events"),
			QueueSize: getint("EVENTS_QUEUE_SIZE", 1024),
		},
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	var out []string
	for p := range strings.SplitSeq(s, ",") {
		if x := strings.TrimSpace(p); x != "" {
			out = append(out, x)
		}
	}
	return out
}
