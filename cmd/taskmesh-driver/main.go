// Command taskmesh-driver is a reference harness for internal/node: it
// wires up a mesh of in-memory-transported PeerNodes, feeds them a
// synthetic task stream, and exposes a small debug HTTP surface for
// inspecting the run.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"taskmesh/internal/config"
	"taskmesh/internal/hoststats"
	"taskmesh/internal/logging"
	"taskmesh/internal/metrics"
	"taskmesh/internal/node"
	"taskmesh/internal/task"
	"taskmesh/internal/transport"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "optional YAML config file overlaying the defaults")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("taskmesh-driver: %v", err)
	}

	var logger *logging.StdLogger
	if cfg.LogFilePath != "" {
		logger = logging.NewFileLogger(cfg.LogFilePath)
	} else {
		logger = logging.New(os.Stdout)
	}
	reg := metrics.New()
	tr := transport.NewInMemory()

	nodes := make([]*node.PeerNode, cfg.NumNodes)
	for i := range nodes {
		n := node.New(i, cfg.LoadThreshold, tr,
			node.WithLogger(logger),
			node.WithMetrics(reg),
			node.WithWorkers(cfg.Workers),
			node.WithGossipPeriod(time.Duration(cfg.GossipPeriodMS)*time.Millisecond),
		)
		nodes[i] = n
	}
	for _, n := range nodes {
		for _, peer := range nodes {
			if peer.ID() != n.ID() {
				n.AddPeer(peer.ID())
			}
		}
	}
	for _, n := range nodes {
		n.Start()
	}
	logger.Log("mesh started")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go injectTasks(ctx, cfg, nodes, logger)
	go sampleHost(ctx, logger, time.Duration(cfg.GossipPeriodMS)*time.Millisecond*4)

	if cfg.MetricsAddr != "" {
		go serveDebugHTTP(cfg.MetricsAddr, reg, nodes)
	}

	time.Sleep(time.Duration(cfg.SimDurationMS) * time.Millisecond)
	cancel()

	for _, n := range nodes {
		n.Stop()
	}
	logger.Log("mesh stopped")
}

// injectTasks seeds a pseudo-random stream of tasks onto a pseudo-random
// node every TaskIntervalMS, with cost drawn uniformly from
// [MinCostMS, MaxCostMS].
func injectTasks(ctx context.Context, cfg config.Config, nodes []*node.PeerNode, logger logging.Logger) {
	ticker := time.NewTicker(time.Duration(cfg.TaskIntervalMS) * time.Millisecond)
	defer ticker.Stop()
	rng := rand.New(rand.NewSource(1))
	nextID := 0
	span := cfg.MaxCostMS - cfg.MinCostMS + 1
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cost := cfg.MinCostMS
			if span > 0 {
				cost += rng.Intn(span)
			}
			t := task.New(nextID, cost)
			nextID++
			target := nodes[rng.Intn(len(nodes))]
			target.AddTask(t)
			logger.LogNodeEvent(target.ID(), fmt.Sprintf("injected task %d (cost=%dms)", t.ID(), t.CostMS()))
		}
	}
}

// sampleHost logs host CPU/memory alongside node metrics, strictly for
// side-by-side observability (internal/hoststats never feeds the offload
// decision).
func sampleHost(ctx context.Context, logger logging.Logger, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap, err := hoststats.Sample()
			if err != nil {
				logger.Log("hoststats: " + err.Error())
				continue
			}
			logger.Log(snap.String())
		}
	}
}

type nodeSnapshot struct {
	ID             int   `json:"id"`
	CurrentLoad    int   `json:"currentLoad"`
	TasksProcessed int   `json:"tasksProcessed"`
	Peers          []int `json:"peers"`
}

func serveDebugHTTP(addr string, reg *metrics.Registry, nodes []*node.PeerNode) {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(reg.Gatherer(), promhttp.HandlerOpts{}))
	r.HandleFunc("/nodes", func(w http.ResponseWriter, req *http.Request) {
		snaps := make([]nodeSnapshot, len(nodes))
		for i, n := range nodes {
			snaps[i] = nodeSnapshot{
				ID:             n.ID(),
				CurrentLoad:    n.CurrentLoad(),
				TasksProcessed: n.TasksProcessed(),
				Peers:          n.Peers(),
			}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(snaps)
	})
	log.Printf("taskmesh-driver: debug HTTP listening on %s", addr)
	if err := http.ListenAndServe(addr, r); err != nil {
		log.Printf("taskmesh-driver: debug HTTP server exited: %v", err)
	}
}
