// Package metrics exports the binding pipeline to prometheus.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/jobhost/bindings"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type (
	// Config names the exported metrics.
	Config struct {
		Namespace string            `path:"namespace"`
		Subsystem string            `path:"subsystem"`
		Labels    map[string]string `path:"labels"`
	}

	// Collector records binding metrics in a prometheus registry.
	Collector struct {
		registry    *prometheus.Registry
		bindCounter *prometheus.CounterVec
		invocations *prometheus.CounterVec
		duration    *prometheus.HistogramVec
		disposals   *prometheus.CounterVec
		transferred *prometheus.CounterVec
	}
)

var _ bindings.Metrics = (*Collector)(nil)

// NewCollector creates a Collector with its own registry.
func NewCollector(config Config) (*Collector, error) {
	if config.Namespace == "" {
		config.Namespace = "bindings"
	}
	opts := func(name, help string) prometheus.Opts {
		return prometheus.Opts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: config.Labels,
		}
	}
	c := &Collector{
		registry: prometheus.NewRegistry(),
		bindCounter: prometheus.NewCounterVec(prometheus.CounterOpts(
			opts("parameters_bound_total", "Parameters bound by binding kind and status.")),
			[]string{"kind", "status"}),
		invocations: prometheus.NewCounterVec(prometheus.CounterOpts(
			opts("invocations_total", "Function invocations by status.")),
			[]string{"function", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "invocation_duration_seconds",
			Help:        "Duration of function invocations.",
			ConstLabels: config.Labels,
			Buckets:     prometheus.DefBuckets,
		}, []string{"function"}),
		disposals: prometheus.NewCounterVec(prometheus.CounterOpts(
			opts("scopes_disposed_total", "Invocation scopes disposed by status.")),
			[]string{"status"}),
		transferred: prometheus.NewCounterVec(prometheus.CounterOpts(
			opts("bytes_transferred_total", "Bytes transferred by watched streams.")),
			[]string{"direction"}),
	}
	for _, collector := range []prometheus.Collector{
		c.bindCounter, c.invocations, c.duration, c.disposals, c.transferred,
	} {
		if err := c.registry.Register(collector); err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}
	return c, nil
}

// Registry returns the registry holding the metrics.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func (c *Collector) Bound(kind string, err error) {
	c.bindCounter.With(prometheus.Labels{"kind": kind, "status": status(err)}).Inc()
}

func (c *Collector) Invoked(function string, elapsed time.Duration, err error) {
	c.invocations.With(prometheus.Labels{"function": function, "status": status(err)}).Inc()
	c.duration.With(prometheus.Labels{"function": function}).Observe(elapsed.Seconds())
}

func (c *Collector) Disposed(err error) {
	c.disposals.With(prometheus.Labels{"status": status(err)}).Inc()
}

func (c *Collector) Transferred(direction string, bytes int64) {
	if bytes > 0 {
		c.transferred.With(prometheus.Labels{"direction": direction}).Add(float64(bytes))
	}
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
