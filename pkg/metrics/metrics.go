// Package metrics provides Prometheus-text metrics for the tracer pipeline
// without pulling in a client library. Counters and gauges only; the
// pipeline has no latency distributions worth bucketing.
package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// Metric is implemented by every metric type in the registry.
type Metric interface {
	Name() string
	Help() string
	Type() string
	Collect() []Sample
}

// Sample is one exposition line: a metric name, labels, and a value.
type Sample struct {
	Name   string
	Labels map[string]string
	Value  int64
}

// Counter is a monotonically increasing metric with optional labels.
type Counter struct {
	name       string
	help       string
	labelNames []string

	mu     sync.Mutex
	values map[string]*counterValue
}

type counterValue struct {
	labels map[string]string
	value  atomic.Int64
}

// Name returns the metric name.
func (c *Counter) Name() string { return c.name }

// Help returns the help text.
func (c *Counter) Help() string { return c.help }

// Type returns "counter".
func (c *Counter) Type() string { return "counter" }

// Inc adds one to the series identified by labelValues. Mismatched label
// counts are a programming error and panic, matching registration-time
// misuse elsewhere in this package.
func (c *Counter) Inc(labelValues ...string) {
	c.Add(1, labelValues...)
}

// Add adds delta to the series identified by labelValues.
func (c *Counter) Add(delta int64, labelValues ...string) {
	c.series(labelValues).value.Add(delta)
}

func (c *Counter) series(labelValues []string) *counterValue {
	if len(labelValues) != len(c.labelNames) {
		panic(fmt.Sprintf("metrics: counter %s expects %d labels, got %d", c.name, len(c.labelNames), len(labelValues)))
	}
	key := strings.Join(labelValues, "\x00")

	c.mu.Lock()
	defer c.mu.Unlock()
	cv, ok := c.values[key]
	if !ok {
		labels := make(map[string]string, len(c.labelNames))
		for i, name := range c.labelNames {
			labels[name] = labelValues[i]
		}
		cv = &counterValue{labels: labels}
		c.values[key] = cv
	}
	return cv
}

// Collect returns all series of the counter.
func (c *Counter) Collect() []Sample {
	c.mu.Lock()
	defer c.mu.Unlock()
	samples := make([]Sample, 0, len(c.values))
	for _, cv := range c.values {
		samples = append(samples, Sample{Name: c.name, Labels: cv.labels, Value: cv.value.Load()})
	}
	return samples
}

// Gauge is a metric that can go up and down. Gauges carry no labels here;
// nothing in the pipeline needs labeled gauges yet.
type Gauge struct {
	name  string
	help  string
	value atomic.Int64
}

// Name returns the metric name.
func (g *Gauge) Name() string { return g.name }

// Help returns the help text.
func (g *Gauge) Help() string { return g.help }

// Type returns "gauge".
func (g *Gauge) Type() string { return "gauge" }

// Set stores the current value.
func (g *Gauge) Set(v int64) { g.value.Store(v) }

// Collect returns the gauge's single sample.
func (g *Gauge) Collect() []Sample {
	return []Sample{{Name: g.name, Value: g.value.Load()}}
}

// Registry holds registered metrics and serves them in Prometheus text
// exposition format.
type Registry struct {
	mu      sync.Mutex
	metrics []Metric
	names   map[string]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{names: make(map[string]struct{})}
}

// NewCounter creates and registers a counter. Duplicate names panic:
// duplicate metric names produce invalid exposition output.
func (r *Registry) NewCounter(name, help string, labelNames ...string) *Counter {
	c := &Counter{
		name:       name,
		help:       help,
		labelNames: labelNames,
		values:     make(map[string]*counterValue),
	}
	r.register(c)
	return c
}

// NewGauge creates and registers a gauge.
func (r *Registry) NewGauge(name, help string) *Gauge {
	g := &Gauge{name: name, help: help}
	r.register(g)
	return g
}

func (r *Registry) register(m Metric) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.names[m.Name()]; exists {
		panic("metrics: duplicate metric name " + m.Name())
	}
	r.names[m.Name()] = struct{}{}
	r.metrics = append(r.metrics, m)
}

// Handler returns an http.Handler serving the /metrics endpoint.
func (r *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(r.Render()))
	})
}

// Render produces the full exposition document.
func (r *Registry) Render() string {
	r.mu.Lock()
	metrics := make([]Metric, len(r.metrics))
	copy(metrics, r.metrics)
	r.mu.Unlock()

	var b strings.Builder
	for _, m := range metrics {
		samples := m.Collect()
		if len(samples) == 0 {
			continue
		}
		fmt.Fprintf(&b, "# HELP %s %s\n", m.Name(), escapeHelp(m.Help()))
		fmt.Fprintf(&b, "# TYPE %s %s\n", m.Name(), m.Type())
		for _, s := range samples {
			if len(s.Labels) == 0 {
				fmt.Fprintf(&b, "%s %d\n", s.Name, s.Value)
			} else {
				fmt.Fprintf(&b, "%s{%s} %d\n", s.Name, formatLabels(s.Labels), s.Value)
			}
		}
	}
	return b.String()
}

// formatLabels renders labels as key="value",key="value" in sorted order.
func formatLabels(labels map[string]string) string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=\"%s\"", k, escapeLabelValue(labels[k]))
	}
	return strings.Join(parts, ",")
}

func escapeHelp(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	return strings.ReplaceAll(s, "\n", "\\n")
}

func escapeLabelValue(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	return strings.ReplaceAll(s, "\n", "\\n")
}
