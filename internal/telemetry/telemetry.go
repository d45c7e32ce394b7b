package telemetry

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector captures telemetry events emitted by the quote and account loops.
//
// Hooks run inline with response handling and heartbeat ticks, so
// implementations must be cheap and must not block.
type Collector interface {
	IncQuoteApplied(origin, status string)
	IncQuoteStale(origin string)
	ObserveQuoteLatency(origin string, seconds float64)
	IncHeartbeat(name, outcome string)
	IncErrorFlash(category string)
}

// Heartbeat outcomes.
const (
	OutcomeRun     = "run"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

type noopCollector struct{}

// Noop returns a collector that discards all metrics.
func Noop() Collector {
	return noopCollector{}
}

func (noopCollector) IncQuoteApplied(string, string)      {}
func (noopCollector) IncQuoteStale(string)                {}
func (noopCollector) ObserveQuoteLatency(string, float64) {}
func (noopCollector) IncHeartbeat(string, string)         {}
func (noopCollector) IncErrorFlash(string)                {}

// PrometheusCollector exposes telemetry via Prometheus.
type PrometheusCollector struct {
	applied    *prometheus.CounterVec
	stale      *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	heartbeats *prometheus.CounterVec
	flashes    *prometheus.CounterVec
}

// NewPrometheusCollector registers the metrics with reg, reusing collectors
// that are already registered under the same name.
func NewPrometheusCollector(reg prometheus.Registerer) (*PrometheusCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	applied, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "instantbuy_quote_responses_applied_total",
		Help: "Quote responses that became the current quote state, by origin and resulting status.",
	}, []string{"origin", "status"}))
	if err != nil {
		return nil, err
	}
	stale, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "instantbuy_quote_responses_stale_total",
		Help: "Quote responses discarded because a newer request had already been applied.",
	}, []string{"origin"}))
	if err != nil {
		return nil, err
	}
	latency, err := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "instantbuy_quote_fetch_seconds",
		Help:    "Latency of quote source fetches.",
		Buckets: prometheus.DefBuckets,
	}, []string{"origin"}))
	if err != nil {
		return nil, err
	}
	heartbeats, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "instantbuy_heartbeat_ticks_total",
		Help: "Heartbeat ticks by heartbeater name and outcome (run, skipped, failed).",
	}, []string{"name", "outcome"}))
	if err != nil {
		return nil, err
	}
	flashes, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "instantbuy_error_flashes_total",
		Help: "Error messages flashed to the user by category.",
	}, []string{"category"}))
	if err != nil {
		return nil, err
	}
	return &PrometheusCollector{
		applied:    applied,
		stale:      stale,
		latency:    latency,
		heartbeats: heartbeats,
		flashes:    flashes,
	}, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		var zero C
		return zero, err
	}
	return c, nil
}

func (p *PrometheusCollector) IncQuoteApplied(origin, status string) {
	if p == nil {
		return
	}
	p.applied.WithLabelValues(origin, status).Inc()
}

func (p *PrometheusCollector) IncQuoteStale(origin string) {
	if p == nil {
		return
	}
	p.stale.WithLabelValues(origin).Inc()
}

func (p *PrometheusCollector) ObserveQuoteLatency(origin string, seconds float64) {
	if p == nil {
		return
	}
	p.latency.WithLabelValues(origin).Observe(seconds)
}

func (p *PrometheusCollector) IncHeartbeat(name, outcome string) {
	if p == nil {
		return
	}
	p.heartbeats.WithLabelValues(name, outcome).Inc()
}

func (p *PrometheusCollector) IncErrorFlash(category string) {
	if p == nil {
		return
	}
	p.flashes.WithLabelValues(category).Inc()
}
