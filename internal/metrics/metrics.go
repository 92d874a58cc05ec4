// Package metrics owns the Prometheus registry the service exposes on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "discovery"

type BuildInfo struct {
	Version   string
	Revision  string
	BuildDate string
}

type Config struct {
	Build BuildInfo
	// Service becomes a constant label on every discovery_* collector
	Service string
}

// CatalogState is what the catalog gauges read on each scrape
type CatalogState interface {
	Generation() int64
	Ready() bool
}

// Provider is a private registry; nothing here touches prometheus.DefaultRegisterer.
type Provider struct {
	reg    *prometheus.Registry
	labels prometheus.Labels
}

func Init(cfg Config) *Provider {
	p := &Provider{reg: prometheus.NewRegistry()}
	if cfg.Service != "" {
		p.labels = prometheus.Labels{"service": cfg.Service}
	}
	p.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	b := cfg.Build
	if b.Version == "" {
		b.Version = "dev"
	}
	info := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "build_info",
		Help:        "Build info for this binary (value is always 1).",
		ConstLabels: p.labels,
	}, []string{"version", "revision", "build_date"})
	info.WithLabelValues(b.Version, b.Revision, b.BuildDate).Set(1)
	p.reg.MustRegister(info)
	return p
}

// RegisterCatalog exports the catalog generation and readiness as scrape-time gauges
func (p *Provider) RegisterCatalog(c CatalogState) {
	p.reg.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "catalog",
			Name:        "generation",
			Help:        "Catalog generation; bumps on every load and applied change.",
			ConstLabels: p.labels,
		}, func() float64 { return float64(c.Generation()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "catalog",
			Name:        "ready",
			Help:        "1 once the catalog has loaded.",
			ConstLabels: p.labels,
		}, func() float64 {
			if c.Ready() {
				return 1
			}
			return 0
		}),
	)
}

func (p *Provider) Handler() http.Handler {
	return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{Registry: p.reg})
}

func (p *Provider) Register(cs ...prometheus.Collector) { p.reg.MustRegister(cs...) }

func (p *Provider) Registerer() prometheus.Registerer { return p.reg }
