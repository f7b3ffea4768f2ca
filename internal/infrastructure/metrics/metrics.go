// Package metrics implements the metrics collector (spec C17): an
// append-only metrics.jsonl writer plus in-memory aggregation, grounded on
// the teacher's monitoring.Monitor (atomic counters guarded by a
// sync.RWMutex-protected history ring), generalized from fixed request/tool
// counters to an open record(name, value, tags) surface with a Prometheus
// exporter registered alongside the JSONL sink.
package metrics

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Record is one metrics.jsonl line (spec §6 persistent state layout).
type Record struct {
	Timestamp time.Time         `json:"timestamp"`
	Name      string            `json:"name"`
	Value     float64           `json:"value"`
	Tags      map[string]string `json:"tags,omitempty"`
}

// aggregate accumulates count/sum/min/max for one metric name (or
// name+model pair).
type aggregate struct {
	Count int64
	Sum   float64
	Min   float64
	Max   float64
}

func (a *aggregate) observe(v float64) {
	if a.Count == 0 {
		a.Min, a.Max = v, v
	} else {
		if v < a.Min {
			a.Min = v
		}
		if v > a.Max {
			a.Max = v
		}
	}
	a.Count++
	a.Sum += v
}

// Avg returns the running mean.
func (a aggregate) Avg() float64 {
	if a.Count == 0 {
		return 0
	}
	return a.Sum / float64(a.Count)
}

// Collector records metrics in memory, optionally appending each record to
// a JSONL file and exposing Prometheus collectors for the same values.
type Collector struct {
	mu         sync.RWMutex
	logger     *zap.Logger
	byMetric   map[string]*aggregate
	byModel    map[string]*aggregate // key: metric|model
	path       string
	buf        []Record
	flushEvery int

	promCounters   map[string]prometheus.Counter
	promHistograms map[string]prometheus.Histogram
	registerer     prometheus.Registerer
}

// Config tunes the collector.
type Config struct {
	Path       string // metrics.jsonl path; "" disables the sink
	FlushEvery int    // records buffered before a flush; default 20
	Registerer prometheus.Registerer
}

// New creates a Collector. If cfg.Registerer is nil, prometheus metrics are
// not registered (spec.md's Non-goals exclude a metrics HTTP surface, but
// SPEC_FULL keeps the exporter available for callers that want one).
func New(logger *zap.Logger, cfg Config) *Collector {
	if cfg.FlushEvery <= 0 {
		cfg.FlushEvery = 20
	}
	return &Collector{
		logger:         logger,
		byMetric:       make(map[string]*aggregate),
		byModel:        make(map[string]*aggregate),
		path:           cfg.Path,
		flushEvery:     cfg.FlushEvery,
		promCounters:   make(map[string]prometheus.Counter),
		promHistograms: make(map[string]prometheus.Histogram),
		registerer:     cfg.Registerer,
	}
}

// Record logs one observation under name, with optional tags. A "model" tag
// also feeds the per-model aggregate table (spec §4.17: "aggregates per
// metric name and per model").
func (c *Collector) Record(name string, value float64, tags map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.byMetric[name]; !ok {
		c.byMetric[name] = &aggregate{}
	}
	c.byMetric[name].observe(value)

	if model, ok := tags["model"]; ok && model != "" {
		key := name + "|" + model
		if _, ok := c.byModel[key]; !ok {
			c.byModel[key] = &aggregate{}
		}
		c.byModel[key].observe(value)
	}

	c.recordPrometheusLocked(name, value, tags)

	c.buf = append(c.buf, Record{Timestamp: time.Now(), Name: name, Value: value, Tags: tags})
	if len(c.buf) >= c.flushEvery {
		c.flushLocked()
	}
}

func (c *Collector) recordPrometheusLocked(name string, value float64, tags map[string]string) {
	if c.registerer == nil {
		return
	}
	// Prometheus names may not contain dots ("router.latency_ms").
	promName := "zenus_" + strings.ReplaceAll(name, ".", "_")
	switch {
	case len(name) > 7 && name[len(name)-7:] == "_errors", len(name) > 6 && name[len(name)-6:] == "_total":
		ctr, ok := c.promCounters[name]
		if !ok {
			ctr = prometheus.NewCounter(prometheus.CounterOpts{Name: promName, Help: name})
			if err := c.registerer.Register(ctr); err != nil {
				return
			}
			c.promCounters[name] = ctr
		}
		ctr.Add(value)
	default:
		h, ok := c.promHistograms[name]
		if !ok {
			h = prometheus.NewHistogram(prometheus.HistogramOpts{Name: promName, Help: name})
			if err := c.registerer.Register(h); err != nil {
				return
			}
			c.promHistograms[name] = h
		}
		h.Observe(value)
	}
}

// flushLocked appends buffered records to path. Caller must hold mu.
func (c *Collector) flushLocked() {
	if c.path == "" {
		c.buf = c.buf[:0]
		return
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		c.logger.Warn("metrics: could not create state dir", zap.Error(err))
		c.buf = c.buf[:0]
		return
	}
	f, err := os.OpenFile(c.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		c.logger.Warn("metrics: could not open metrics.jsonl", zap.Error(err))
		c.buf = c.buf[:0]
		return
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, rec := range c.buf {
		if err := enc.Encode(rec); err != nil {
			c.logger.Warn("metrics: write failed", zap.Error(err))
			break
		}
	}
	c.buf = c.buf[:0]
}

// Flush forces any buffered records to disk (used at shutdown).
func (c *Collector) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flushLocked()
}

// Snapshot is a point-in-time view of the by-metric aggregate table.
type Snapshot struct {
	Count int64
	Sum   float64
	Min   float64
	Max   float64
	Avg   float64
}

// MetricSnapshot returns the current aggregate for name.
func (c *Collector) MetricSnapshot(name string) (Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.byMetric[name]
	if !ok {
		return Snapshot{}, false
	}
	return Snapshot{Count: a.Count, Sum: a.Sum, Min: a.Min, Max: a.Max, Avg: a.Avg()}, true
}

// ModelSnapshot returns the current aggregate for (name, model).
func (c *Collector) ModelSnapshot(name, model string) (Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.byModel[name+"|"+model]
	if !ok {
		return Snapshot{}, false
	}
	return Snapshot{Count: a.Count, Sum: a.Sum, Min: a.Min, Max: a.Max, Avg: a.Avg()}, true
}
