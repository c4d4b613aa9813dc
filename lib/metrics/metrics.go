// Package metrics provides metrics collection for connpool.
// Metrics are backed by the Prometheus client library and exposed in the
// Prometheus exposition format for monitoring integration.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

// DefaultLatencyBuckets are histogram buckets, in seconds, suited to
// connection setup and request latencies.
var DefaultLatencyBuckets = []float64{
	0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// Counter is a monotonically increasing counter.
type Counter struct {
	c prometheus.Counter
}

// Inc increments the counter by 1.
func (c *Counter) Inc() {
	c.c.Inc()
}

// Add adds the given value to the counter.
func (c *Counter) Add(v uint64) {
	c.c.Add(float64(v))
}

// Value returns the current counter value.
func (c *Counter) Value() uint64 {
	m := &dto.Metric{}
	if err := c.c.Write(m); err != nil {
		return 0
	}
	return uint64(m.GetCounter().GetValue())
}

// Gauge is a metric that can go up and down.
type Gauge struct {
	g prometheus.Gauge
}

// Set sets the gauge to the given value.
func (g *Gauge) Set(v int64) {
	g.g.Set(float64(v))
}

// Inc increments the gauge by 1.
func (g *Gauge) Inc() {
	g.g.Inc()
}

// Dec decrements the gauge by 1.
func (g *Gauge) Dec() {
	g.g.Dec()
}

// Add adds the given value to the gauge.
func (g *Gauge) Add(v int64) {
	g.g.Add(float64(v))
}

// Value returns the current gauge value.
func (g *Gauge) Value() int64 {
	m := &dto.Metric{}
	if err := g.g.Write(m); err != nil {
		return 0
	}
	return int64(m.GetGauge().GetValue())
}

// Histogram tracks the distribution of values.
type Histogram struct {
	h prometheus.Histogram
}

// Observe records a value in the histogram.
func (h *Histogram) Observe(v float64) {
	h.h.Observe(v)
}

// Count returns the number of observations recorded so far.
func (h *Histogram) Count() uint64 {
	m := &dto.Metric{}
	if err := h.h.Write(m); err != nil {
		return 0
	}
	return m.GetHistogram().GetSampleCount()
}

// Timer measures the duration of a single operation into a histogram.
type Timer struct {
	h     *Histogram
	start time.Time
}

// NewTimer starts a timer that reports into h.
func NewTimer(h *Histogram) *Timer {
	return &Timer{h: h, start: time.Now()}
}

// ObserveDuration records the elapsed time in seconds and returns it.
func (t *Timer) ObserveDuration() time.Duration {
	d := time.Since(t.start)
	t.h.Observe(d.Seconds())
	return d
}

// CounterVec is a family of counters partitioned by label values.
type CounterVec struct {
	v *prometheus.CounterVec
}

// With returns the counter for the given label values.
func (cv *CounterVec) With(values ...string) *Counter {
	return &Counter{c: cv.v.WithLabelValues(values...)}
}

// Delete removes the counter for the given label values.
func (cv *CounterVec) Delete(values ...string) bool {
	return cv.v.DeleteLabelValues(values...)
}

// GaugeVec is a family of gauges partitioned by label values.
type GaugeVec struct {
	v *prometheus.GaugeVec
}

// With returns the gauge for the given label values.
func (gv *GaugeVec) With(values ...string) *Gauge {
	return &Gauge{g: gv.v.WithLabelValues(values...)}
}

// Delete removes the gauge for the given label values.
func (gv *GaugeVec) Delete(values ...string) bool {
	return gv.v.DeleteLabelValues(values...)
}

// Registry holds registered metrics.
type Registry struct {
	reg *prometheus.Registry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{reg: prometheus.NewRegistry()}
}

// defaultRegistry is the global metric registry.
var defaultRegistry = newDefaultRegistry()

func newDefaultRegistry() *Registry {
	r := NewRegistry()
	r.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// NewCounter creates and registers a counter.
func (r *Registry) NewCounter(name, help string) *Counter {
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: help})
	r.reg.MustRegister(c)
	return &Counter{c: c}
}

// NewGauge creates and registers a gauge.
func (r *Registry) NewGauge(name, help string) *Gauge {
	g := prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: help})
	r.reg.MustRegister(g)
	return &Gauge{g: g}
}

// NewHistogram creates and registers a histogram.
func (r *Registry) NewHistogram(name, help string, buckets []float64) *Histogram {
	h := prometheus.NewHistogram(prometheus.HistogramOpts{Name: name, Help: help, Buckets: buckets})
	r.reg.MustRegister(h)
	return &Histogram{h: h}
}

// NewCounterVec creates and registers a labelled counter family.
func (r *Registry) NewCounterVec(name, help string, labels ...string) *CounterVec {
	v := prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help}, labels)
	r.reg.MustRegister(v)
	return &CounterVec{v: v}
}

// NewGaugeVec creates and registers a labelled gauge family.
func (r *Registry) NewGaugeVec(name, help string, labels ...string) *GaugeVec {
	v := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: help}, labels)
	r.reg.MustRegister(v)
	return &GaugeVec{v: v}
}

// Handler returns an http.Handler that exposes the registry.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// NewCounter creates a new counter metric in the default registry.
func NewCounter(name, help string) *Counter {
	return defaultRegistry.NewCounter(name, help)
}

// NewGauge creates a new gauge metric in the default registry.
func NewGauge(name, help string) *Gauge {
	return defaultRegistry.NewGauge(name, help)
}

// NewHistogram creates a new histogram metric in the default registry.
func NewHistogram(name, help string, buckets []float64) *Histogram {
	return defaultRegistry.NewHistogram(name, help, buckets)
}

// NewCounterVec creates a labelled counter family in the default registry.
func NewCounterVec(name, help string, labels ...string) *CounterVec {
	return defaultRegistry.NewCounterVec(name, help, labels...)
}

// NewGaugeVec creates a labelled gauge family in the default registry.
func NewGaugeVec(name, help string, labels ...string) *GaugeVec {
	return defaultRegistry.NewGaugeVec(name, help, labels...)
}

// Handler returns an http.Handler that exposes metrics.
func Handler() http.Handler {
	return defaultRegistry.Handler()
}

// Process-wide metrics for connpool
var (
	// StartTime is when the process started serving.
	StartTime = NewGauge("connpool_start_time_seconds", "Unix timestamp when the process started")

	// RateLimitRejections counts connection creations refused by rate limiting.
	RateLimitRejections = NewCounterVec(
		"connpool_ratelimit_rejections_total",
		"Total connection creations rejected by rate limiting",
		"endpoint",
	)
)

// RecordStartTime records the current time as the start time.
func RecordStartTime() {
	StartTime.Set(time.Now().Unix())
}
