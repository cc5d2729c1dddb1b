// Package metrics wires each node's load signal into Prometheus.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry bundles the collectors a running mesh exposes. Each Registry is
// backed by its own prometheus.Registry rather than the global default, so
// parallel tests and multiple driver instances in one process never
// collide.
type Registry struct {
	reg *prometheus.Registry

	queueDepth       *prometheus.GaugeVec
	tasksProcessed   *prometheus.CounterVec
	offloadsSent     *prometheus.CounterVec
	offloadsReceived *prometheus.CounterVec
	gossipTick       *prometheus.HistogramVec
}

// New constructs a Registry with all collectors registered.
func New() *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{
		reg: reg,
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "taskmesh_queue_depth",
			Help: "Current local task queue depth, per node.",
		}, []string{"node"}),
		tasksProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskmesh_tasks_processed_total",
			Help: "Total tasks completed by this node's workers.",
		}, []string{"node"}),
		offloadsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskmesh_offloads_sent_total",
			Help: "Total tasks this node shed to a peer.",
		}, []string{"node"}),
		offloadsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskmesh_offloads_received_total",
			Help: "Total tasks this node accepted via TASK_TRANSFER.",
		}, []string{"node"}),
		gossipTick: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "taskmesh_gossip_tick_seconds",
			Help:    "Wall-clock time between successive gossip ticks.",
			Buckets: prometheus.DefBuckets,
		}, []string{"node"}),
	}
	reg.MustRegister(r.queueDepth, r.tasksProcessed, r.offloadsSent, r.offloadsReceived, r.gossipTick)
	return r
}

// Gatherer exposes the underlying prometheus.Gatherer for an HTTP handler.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

// ObserveDepth records a node's current queue depth.
func (r *Registry) ObserveDepth(nodeID, depth int) {
	r.queueDepth.WithLabelValues(nodeLabel(nodeID)).Set(float64(depth))
}

// IncTasksProcessed records one completed task on nodeID.
func (r *Registry) IncTasksProcessed(nodeID int) {
	r.tasksProcessed.WithLabelValues(nodeLabel(nodeID)).Inc()
}

// IncOffloadSent records one task shed from nodeID to a peer.
func (r *Registry) IncOffloadSent(nodeID int) {
	r.offloadsSent.WithLabelValues(nodeLabel(nodeID)).Inc()
}

// IncOffloadReceived records one task accepted by nodeID via TASK_TRANSFER.
func (r *Registry) IncOffloadReceived(nodeID int) {
	r.offloadsReceived.WithLabelValues(nodeLabel(nodeID)).Inc()
}

// ObserveGossipTick records the wall-clock time since nodeID's previous
// gossip/offload tick.
func (r *Registry) ObserveGossipTick(nodeID int, seconds float64) {
	r.gossipTick.WithLabelValues(nodeLabel(nodeID)).Observe(seconds)
}

func nodeLabel(nodeID int) string {
	return strconv.Itoa(nodeID)
}
