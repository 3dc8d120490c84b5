package observability

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "flowboard"

// Prometheus implements StoreHooks, StorageHooks and HTTPHooks by recording
// Prometheus metrics.
type Prometheus struct {
	mutations   *prometheus.CounterVec
	replaces    *prometheus.CounterVec
	graphNodes  prometheus.Gauge
	graphEdges  prometheus.Gauge
	storageOps  *prometheus.CounterVec
	storageTime *prometheus.HistogramVec
	storageSize *prometheus.HistogramVec
	httpTotal   *prometheus.CounterVec
	httpTime    *prometheus.HistogramVec
}

// NewPrometheus creates the collectors and registers them with reg.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	p := &Prometheus{
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_mutations_total",
			Help:      "Graph mutations by operation and result",
		}, []string{"op", "result"}),
		replaces: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_replacements_total",
			Help:      "Whole-graph replacements (imports) by result",
		}, []string{"result"}),
		graphNodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "store_imported_nodes",
			Help:      "Node count of the last accepted import",
		}),
		graphEdges: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "store_imported_edges",
			Help:      "Edge count of the last accepted import",
		}),
		storageOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_operations_total",
			Help:      "Document storage operations by backend, op and result",
		}, []string{"backend", "op", "result"}),
		storageTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "storage_operation_duration_seconds",
			Help:      "Document storage latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"backend", "op"}),
		storageSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "storage_document_bytes",
			Help:      "Size of stored and loaded documents",
			Buckets:   prometheus.ExponentialBuckets(256, 4, 8),
		}, []string{"backend", "op"}),
		httpTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),
		httpTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	reg.MustRegister(
		p.mutations, p.replaces, p.graphNodes, p.graphEdges,
		p.storageOps, p.storageTime, p.storageSize,
		p.httpTotal, p.httpTime,
	)
	return p
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// OnMutation implements StoreHooks.
func (p *Prometheus) OnMutation(op string, err error) {
	p.mutations.WithLabelValues(op, result(err)).Inc()
}

// OnReplace implements StoreHooks.
func (p *Prometheus) OnReplace(nodeCount, edgeCount int, err error) {
	p.replaces.WithLabelValues(result(err)).Inc()
	if err == nil {
		p.graphNodes.Set(float64(nodeCount))
		p.graphEdges.Set(float64(edgeCount))
	}
}

// OnLoad implements StorageHooks.
func (p *Prometheus) OnLoad(_ context.Context, backend, _ string, size int, d time.Duration, err error) {
	p.observeStorage(backend, "load", size, d, err)
}

// OnSave implements StorageHooks.
func (p *Prometheus) OnSave(_ context.Context, backend, _ string, size int, d time.Duration, err error) {
	p.observeStorage(backend, "save", size, d, err)
}

func (p *Prometheus) observeStorage(backend, op string, size int, d time.Duration, err error) {
	p.storageOps.WithLabelValues(backend, op, result(err)).Inc()
	p.storageTime.WithLabelValues(backend, op).Observe(d.Seconds())
	if err == nil {
		p.storageSize.WithLabelValues(backend, op).Observe(float64(size))
	}
}

// OnRequest implements HTTPHooks.
func (p *Prometheus) OnRequest(_ context.Context, method, route string, status int, d time.Duration) {
	p.httpTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	p.httpTime.WithLabelValues(method, route).Observe(d.Seconds())
}

var (
	_ StoreHooks   = (*Prometheus)(nil)
	_ StorageHooks = (*Prometheus)(nil)
	_ HTTPHooks    = (*Prometheus)(nil)
)
