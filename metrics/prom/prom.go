// Package prom adapts the cache server's Metrics hooks to Prometheus
// collectors, the way the teacher library's prom adapter does for its
// cache.Metrics interface.
package prom

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/afinago/kvsrv/executor"
	"github.com/afinago/kvsrv/storage"
)

// StorageAdapter implements storage.Metrics and exports Prometheus
// counters/gauges for hit/miss/eviction/size. Safe for concurrent use;
// all Prometheus metric types are goroutine-safe.
type StorageAdapter struct {
	hits     prometheus.Counter
	misses   prometheus.Counter
	evicts   *prometheus.CounterVec
	sizeEnt  prometheus.Gauge
	sizeCost prometheus.Gauge
}

// NewStorageAdapter constructs a Prometheus metrics adapter for the
// storage engine.
//   - reg:         registry to register metrics with (nil => prometheus.DefaultRegisterer)
//   - ns, sub:      Prometheus namespace and subsystem
//   - constLabels:  static labels applied to all metrics (may be nil)
func NewStorageAdapter(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *StorageAdapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	a := &StorageAdapter{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "hits_total",
			Help:        "Cache hits",
			ConstLabels: constLabels,
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "misses_total",
			Help:        "Cache misses",
			ConstLabels: constLabels,
		}),
		evicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "evictions_total",
				Help:        "Cache evictions by reason",
				ConstLabels: constLabels,
			},
			[]string{"reason"},
		),
		sizeEnt: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "size_entries",
			Help:        "Number of resident entries",
			ConstLabels: constLabels,
		}),
		sizeCost: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "size_bytes",
			Help:        "Total resident bytes",
			ConstLabels: constLabels,
		}),
	}
	reg.MustRegister(a.hits, a.misses, a.evicts, a.sizeEnt, a.sizeCost)
	return a
}

// Hit implements storage.Metrics.
func (a *StorageAdapter) Hit() { a.hits.Inc() }

// Miss implements storage.Metrics.
func (a *StorageAdapter) Miss() { a.misses.Inc() }

// Evict implements storage.Metrics.
func (a *StorageAdapter) Evict(r storage.EvictReason) {
	a.evicts.WithLabelValues(reason(r)).Inc()
}

// Size implements storage.Metrics.
func (a *StorageAdapter) Size(entries int, bytes int64) {
	a.sizeEnt.Set(float64(entries))
	a.sizeCost.Set(float64(bytes))
}

func reason(r storage.EvictReason) string {
	switch r {
	case storage.EvictLRU:
		return "lru"
	default:
		return "unknown"
	}
}

var _ storage.Metrics = (*StorageAdapter)(nil)

// ExecutorCollector exports an Executor's pool counters as gauges on
// every Collect — the pool itself stays the source of truth, this is a
// thin read-through the way a prometheus.Collector is meant to be used
// for values that already live somewhere else.
type ExecutorCollector struct {
	exec        *executor.Executor
	threads     *prometheus.Desc
	freeThreads *prometheus.Desc
	queueLen    *prometheus.Desc
}

// NewExecutorCollector builds a collector over exec's live Stats().
func NewExecutorCollector(exec *executor.Executor, ns, sub string) *ExecutorCollector {
	return &ExecutorCollector{
		exec:        exec,
		threads:     prometheus.NewDesc(prometheus.BuildFQName(ns, sub, "threads"), "Live worker goroutines", nil, nil),
		freeThreads: prometheus.NewDesc(prometheus.BuildFQName(ns, sub, "free_threads"), "Idle worker goroutines", nil, nil),
		queueLen:    prometheus.NewDesc(prometheus.BuildFQName(ns, sub, "queue_length"), "Queued tasks awaiting a worker", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *ExecutorCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.threads
	ch <- c.freeThreads
	ch <- c.queueLen
}

// Collect implements prometheus.Collector.
func (c *ExecutorCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.exec.Stats()
	ch <- prometheus.MustNewConstMetric(c.threads, prometheus.GaugeValue, float64(s.Threads))
	ch <- prometheus.MustNewConstMetric(c.freeThreads, prometheus.GaugeValue, float64(s.FreeThreads))
	ch <- prometheus.MustNewConstMetric(c.queueLen, prometheus.GaugeValue, float64(s.QueueLen))
}

var _ prometheus.Collector = (*ExecutorCollector)(nil)

// Reactor is the subset of network.Reactor a ConnCollector reads from.
type Reactor interface {
	ActiveConns() int
}

// ConnCollector exports the number of live connections a Reactor is
// currently serving.
type ConnCollector struct {
	r      Reactor
	active *prometheus.Desc
}

// NewConnCollector builds a collector over r's live connection count.
func NewConnCollector(r Reactor, ns, sub string) *ConnCollector {
	return &ConnCollector{
		r:      r,
		active: prometheus.NewDesc(prometheus.BuildFQName(ns, sub, "active_connections"), "Currently open connections", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *ConnCollector) Describe(ch chan<- *prometheus.Desc) { ch <- c.active }

// Collect implements prometheus.Collector.
func (c *ConnCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.active, prometheus.GaugeValue, float64(c.r.ActiveConns()))
}

var _ prometheus.Collector = (*ConnCollector)(nil)
