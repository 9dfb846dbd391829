// Package metrics exposes mutation outcomes and cache size to Prometheus.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"orderdesk/internal/cache"
)

const namespace = "orderdesk"

// Recorder counts settled mutations. It is a cache.Journal so the store
// reports into it like any other journal.
type Recorder struct {
	registry  *prometheus.Registry
	mutations *prometheus.CounterVec
	duration  *prometheus.HistogramVec
}

var _ cache.Journal = (*Recorder)(nil)

// New registers the collectors on a fresh registry. cached reports the
// current number of cached orders.
func New(cached func() int) *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mutations_total",
			Help:      "Settled order mutations by kind and outcome.",
		}, []string{"kind", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "mutation_duration_seconds",
			Help:      "Time from optimistic apply to remote settlement.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 15},
		}, []string{"kind"}),
	}
	r.registry.MustRegister(
		r.mutations,
		r.duration,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cached_orders",
			Help:      "Orders currently held in the local cache.",
		}, func() float64 { return float64(cached()) }),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

func (r *Recorder) Record(_ context.Context, rec cache.Record) {
	r.mutations.WithLabelValues(string(rec.Kind), string(rec.Outcome)).Inc()
	if d := rec.Duration(); d >= 0 {
		r.duration.WithLabelValues(string(rec.Kind)).Observe(d.Seconds())
	}
}

func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
