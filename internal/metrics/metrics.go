// Package metrics exposes gateway counters through prometheus. The
// Provider interface keeps callers decoupled so tests can swap in the
// mock.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metric names registered by the gateway.
const (
	ActiveConnections = "converse_active_connections"
	ActiveRooms       = "converse_active_rooms"
	MessagesDelivered = "converse_messages_delivered"
	EvictedUsers      = "converse_evicted_users"
)

type Provider interface {
	RegisterMetric(name string)
	Incr(name string)
	Decr(name string)
}

type PromUpdater struct {
	registry *prometheus.Registry
	mu       sync.Mutex
	gauges   map[string]prometheus.Gauge
}

func NewPromUpdater() *PromUpdater {
	return &PromUpdater{
		registry: prometheus.NewRegistry(),
		gauges:   make(map[string]prometheus.Gauge),
	}
}

func (p *PromUpdater) RegisterMetric(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.gauges[name]; ok {
		return
	}

	g := prometheus.NewGauge(prometheus.GaugeOpts{Name: name})
	p.registry.MustRegister(g)
	p.gauges[name] = g
}

func (p *PromUpdater) Incr(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if g, ok := p.gauges[name]; ok {
		g.Inc()
	}
}

func (p *PromUpdater) Decr(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if g, ok := p.gauges[name]; ok {
		g.Dec()
	}
}

// Handler serves the scrape endpoint for this updater's registry only.
func (p *PromUpdater) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
