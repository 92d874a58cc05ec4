package main

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mohammed-shakir/listing-discovery/internal/facet/codec"
	"github.com/mohammed-shakir/listing-discovery/internal/facet/selection"
	"github.com/mohammed-shakir/listing-discovery/internal/facet/taxonomy"
)

type Config struct {
	BaseURL         string
	Concurrency     int
	Duration        time.Duration
	ZipfS           float64
	ZipfV           float64
	PoolSize        int
	FacetShare      float64
	SuggestShare    float64
	Areas           string
	QueryFile       string
	OutputPrefix    string
	RequestTimeout  time.Duration
	AppendTimestamp bool
}

func loadConfig() Config {
	var cfg Config
	flag.StringVar(&cfg.BaseURL, "target", "http://localhost:8090", "Discovery server base URL")
	flag.IntVar(&cfg.Concurrency, "concurrency", 32, "Concurrent workers")
	flag.DurationVar(&cfg.Duration, "duration", 60*time.Second, "Test duration")
	flag.Float64Var(&cfg.ZipfS, "zipf-s", 1.3, "Zipf parameter s (>1)")
	flag.Float64Var(&cfg.ZipfV, "zipf-v", 1.0, "Zipf parameter v (>=1)")
	flag.IntVar(&cfg.PoolSize, "pool", 256, "Distinct requests in pool")
	flag.Float64Var(&cfg.FacetShare, "facets", 0.2, "Share of /facets requests")
	flag.Float64Var(&cfg.SuggestShare, "suggest", 0.3, "Share of /suggest requests")
	flag.StringVar(&cfg.Areas, "areas", "", "Comma-separated area ids for /facets")
	flag.StringVar(&cfg.QueryFile, "queries", "", "Optional file with one query per line")
	flag.StringVar(&cfg.OutputPrefix, "out", "results/discovery", "Output file prefix (JSON/CSV)")
	flag.DurationVar(&cfg.RequestTimeout, "timeout", 5*time.Second, "Per-request timeout")
	flag.BoolVar(&cfg.AppendTimestamp, "append-ts", true, "Append timestamp to output prefix")
	flag.Parse()
	return cfg
}

var defaultQueries = []string{
	"tacos", "pizza", "sushi", "coffee", "bbq", "brunch", "thai", "burgers",
	"vegan", "ramen", "bakery", "wine bar", "south congress", "downtown", "pho", "tac",
}

func loadQueries(path string) ([]string, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open queries: %w", err)
	}
	defer func() { _ = f.Close() }()

	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if q := strings.TrimSpace(sc.Text()); q != "" {
			out = append(out, q)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read queries: %w", err)
	}
	return out, nil
}

// randomSelection picks up to two dimensions and one bucket in each
func randomSelection(r *rand.Rand) selection.FilterSelection {
	sel := selection.New()
	dims := taxonomy.All()
	for range r.Intn(3) {
		d := dims[r.Intn(len(dims))]
		keys := d.Keys()
		if next, err := sel.With(d.ID, keys[r.Intn(len(keys))]); err == nil {
			sel = next
		}
	}
	return sel
}

type target struct {
	Route string
	URL   string
}

// makePool builds the request pool. Lower indexes are drawn more often by the zipf sampler.
func makePool(cfg Config, queries, areas []string, r *rand.Rand) ([]target, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("bad target: %w", err)
	}
	build := func(path string, v url.Values) string {
		u := *base
		u.Path += path
		u.RawQuery = v.Encode()
		return u.String()
	}

	pool := make([]target, 0, cfg.PoolSize)
	for len(pool) < cfg.PoolSize {
		sel := randomSelection(r)
		p := r.Float64()
		switch {
		case p < cfg.FacetShare:
			v := codec.EncodeValues(sel)
			if len(areas) > 0 {
				v.Set("area", areas[r.Intn(len(areas))])
			}
			pool = append(pool, target{Route: "/facets", URL: build("/facets", v)})
		case p < cfg.FacetShare+cfg.SuggestShare:
			q := queries[r.Intn(len(queries))]
			q = q[:1+r.Intn(len(q))]
			pool = append(pool, target{Route: "/suggest", URL: build("/suggest", url.Values{codec.ParamQuery: {q}})})
		default:
			v := codec.EncodeValues(sel.WithQuery(queries[r.Intn(len(queries))]))
			if r.Intn(4) == 0 {
				v.Set("offset", "20")
			}
			pool = append(pool, target{Route: "/search", URL: build("/search", v)})
		}
	}
	return pool, nil
}

type sample struct {
	Timestamp time.Time
	Latency   time.Duration
	Status    int
	ErrorMsg  string
	Route     string
	Index     int
}

type summary struct {
	StartTime     time.Time          `json:"start"`
	EndTime       time.Time          `json:"end"`
	DurationSec   float64            `json:"duration_sec"`
	TotalRequests int64              `json:"total"`
	SuccessCount  int64              `json:"success"`
	ErrorCount    int64              `json:"errors"`
	ThroughputRPS float64            `json:"throughput_rps"`
	P50Ms         float64            `json:"p50_ms"`
	P95Ms         float64            `json:"p95_ms"`
	P99Ms         float64            `json:"p99_ms"`
	PerRouteP95Ms map[string]float64 `json:"per_route_p95_ms"`
	Concurrency   int                `json:"concurrency"`
	ZipfS         float64            `json:"zipf_s"`
	ZipfV         float64            `json:"zipf_v"`
	PoolSize      int                `json:"pool"`
	Target        string             `json:"target"`
}

type aggregatedResult struct {
	total   int64
	success int64
	errors  int64
	latMs   []float64
	byRoute map[string][]float64
}

func main() {
	cfg := loadConfig()
	if err := os.MkdirAll(filepath.Dir(cfg.OutputPrefix), 0o750); err != nil {
		log.Fatalf("mkdir results: %v", err)
	}
	prefix := cfg.OutputPrefix
	if cfg.AppendTimestamp {
		prefix = fmt.Sprintf("%s_%s", prefix, time.Now().UTC().Format("20060102_150405Z"))
	}

	queries := defaultQueries
	if cfg.QueryFile != "" {
		qs, err := loadQueries(cfg.QueryFile)
		if err != nil || len(qs) == 0 {
			log.Printf("WARN: no queries from %q (%v); using built-in list", cfg.QueryFile, err)
		} else {
			queries = qs
		}
	}
	var areas []string
	for a := range strings.SplitSeq(cfg.Areas, ",") {
		if a = strings.TrimSpace(a); a != "" {
			areas = append(areas, a)
		}
	}

	seed := time.Now().UnixNano()
	pool, err := makePool(cfg, queries, areas, rand.New(rand.NewSource(seed)))
	if err != nil {
		log.Fatalf("%v", err)
	}
	if len(pool) == 0 {
		log.Fatalf("empty request pool")
	}
	imax := uint64(len(pool)) - 1

	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           (&net.Dialer{Timeout: 4 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
			MaxIdleConns:          1024,
			MaxIdleConnsPerHost:   256,
			IdleConnTimeout:       90 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
		Timeout: cfg.RequestTimeout,
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	csvPath := prefix + "_samples.csv"
	jsonPath := prefix + "_summary.json"
	csvFile, err := os.Create(filepath.Clean(csvPath))
	if err != nil {
		log.Printf("open csv: %v", err)
		return
	}
	defer func() { _ = csvFile.Close() }()

	samplesChan := make(chan sample, 4096)
	resultsChan := make(chan aggregatedResult, 1)
	go collect(csv.NewWriter(csvFile), samplesChan, resultsChan)

	startTime := time.Now()
	log.Printf("loadgen start target=%s dur=%s conc=%d zipf(s=%.2f,v=%.2f) pool=%d",
		cfg.BaseURL, cfg.Duration, cfg.Concurrency, cfg.ZipfS, cfg.ZipfV, len(pool))

	g, gctx := errgroup.WithContext(ctx)
	for workerID := range cfg.Concurrency {
		g.Go(func() error {
			rWorker := rand.New(rand.NewSource(seed + int64(workerID) + 1))
			zipfDist := rand.NewZipf(rWorker, cfg.ZipfS, cfg.ZipfV, imax)
			for gctx.Err() == nil {
				idx := int(zipfDist.Uint64())
				s := fire(gctx, httpClient, pool[idx])
				s.Index = idx
				select {
				case samplesChan <- s:
				case <-gctx.Done():
				}
			}
			return nil
		})
	}
	_ = g.Wait()
	close(samplesChan)

	agg := <-resultsChan
	endTime := time.Now()
	elapsed := endTime.Sub(startTime).Seconds()

	sort.Float64s(agg.latMs)
	perRoute := map[string]float64{}
	for route, lat := range agg.byRoute {
		sort.Float64s(lat)
		perRoute[route] = percentile(lat, 95)
	}
	runSummary := summary{
		StartTime:     startTime.UTC(),
		EndTime:       endTime.UTC(),
		DurationSec:   elapsed,
		TotalRequests: agg.total,
		SuccessCount:  agg.success,
		ErrorCount:    agg.errors,
		ThroughputRPS: float64(agg.total) / elapsed,
		P50Ms:         percentile(agg.latMs, 50),
		P95Ms:         percentile(agg.latMs, 95),
		P99Ms:         percentile(agg.latMs, 99),
		PerRouteP95Ms: perRoute,
		Concurrency:   cfg.Concurrency,
		ZipfS:         cfg.ZipfS,
		ZipfV:         cfg.ZipfV,
		PoolSize:      len(pool),
		Target:        cfg.BaseURL,
	}

	if jsonFile, err := os.Create(filepath.Clean(jsonPath)); err == nil {
		enc := json.NewEncoder(jsonFile)
		enc.SetIndent("", "  ")
		_ = enc.Encode(runSummary)
		_ = jsonFile.Close()
	}

	log.Printf("done: total=%d succ=%d err=%d thr=%.2f rps p50=%.1fms p95=%.1fms p99=%.1fms",
		agg.total, agg.success, agg.errors, runSummary.ThroughputRPS,
		runSummary.P50Ms, runSummary.P95Ms, runSummary.P99Ms)
	log.Printf("wrote %s and %s", jsonPath, csvPath)
}

func fire(ctx context.Context, c *http.Client, t target) sample {
	start := time.Now()
	s := sample{Timestamp: start, Route: t.Route}
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, t.URL, nil)
	req.Header.Set("Accept", "application/json")
	resp, err := c.Do(req)
	s.Latency = time.Since(start)
	if err != nil {
		s.ErrorMsg = err.Error()
		return s
	}
	s.Status = resp.StatusCode
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		s.ErrorMsg = fmt.Sprintf("status=%d", resp.StatusCode)
	}
	return s
}

func collect(w *csv.Writer, in <-chan sample, out chan<- aggregatedResult) {
	_ = w.Write([]string{"timestamp", "latency_ms", "status", "error", "route", "idx"})
	res := aggregatedResult{byRoute: map[string][]float64{}}
	for s := range in {
		res.total++
		ms := float64(s.Latency.Microseconds()) / 1000.0
		if s.ErrorMsg == "" {
			res.success++
			res.latMs = append(res.latMs, ms)
			res.byRoute[s.Route] = append(res.byRoute[s.Route], ms)
		} else {
			res.errors++
		}
		_ = w.Write([]string{
			s.Timestamp.UTC().Format(time.RFC3339Nano),
			fmt.Sprintf("%.3f", ms),
			fmt.Sprintf("%d", s.Status),
			s.ErrorMsg,
			s.Route,
			fmt.Sprintf("%d", s.Index),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		log.Printf("csv flush error: %v", err)
	}
	out <- res
}

func percentile(sortedValues []float64, p float64) float64 {
	if len(sortedValues) == 0 {
		return math.NaN()
	}
	if p <= 0 {
		return sortedValues[0]
	}
	if p >= 100 {
		return sortedValues[len(sortedValues)-1]
	}
	k := (p / 100.0) * float64(len(sortedValues)-1)
	f := math.Floor(k)
	i := int(f)
	if i >= len(sortedValues)-1 {
		return sortedValues[len(sortedValues)-1]
	}
	d := k - f
	return sortedValues[i]*(1-d) + sortedValues[i+1]*d
}
