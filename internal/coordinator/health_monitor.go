package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/dreamware/mandelgrid/internal/cluster"
	"github.com/dreamware/mandelgrid/internal/logging"
)

// Node health states.
const (
	StatusUnknown   = "unknown"
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// NodeHealth is the last known health of a worker node.
type NodeHealth struct {
	LastCheck        time.Time // Timestamp of the last health check attempt
	LastHealthy      time.Time // Timestamp of the last successful health check
	NodeID           string    // Unique identifier of the node
	Status           string    // Current status: "healthy", "unhealthy", "unknown"
	LastError        string    // Error of the last failed check, if any
	ConsecutiveFails int       // Number of consecutive failed health checks
}

// HealthMonitor gates the remote transport on node health.
//
// Before a compute phase the remote dispatcher calls Check with the
// configured nodes. Every node is probed once, concurrently, with a short
// per-check timeout; a node that fails is left out of that phase. There is
// no retry within a phase. History (consecutive failures, last healthy
// time) is kept across phases so an orchestrator reused for several runs
// can report flapping nodes.
//
// Thread Safety:
// All methods are safe for concurrent use. Returned NodeHealth values are
// copies.
type HealthMonitor struct {
	nodes     map[string]*NodeHealth                       // Current health status per node
	checkFunc func(ctx context.Context, addr string) error // Function to perform health check
	log       logging.Logger
	timeout   time.Duration // Timeout for a single health check
	mu        sync.RWMutex  // Protects nodes map
}

// NewHealthMonitor creates a monitor whose checks time out after timeout.
// Checks use GET /health unless SetCheckFunction replaces them.
func NewHealthMonitor(timeout time.Duration, log logging.Logger) *HealthMonitor {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if log == nil {
		log = logging.Nop{}
	}
	return &HealthMonitor{
		nodes:     make(map[string]*NodeHealth),
		checkFunc: cluster.CheckHealth,
		log:       log.With("component", "health"),
		timeout:   timeout,
	}
}

// SetCheckFunction replaces the health probe, mainly for tests.
func (h *HealthMonitor) SetCheckFunction(checkFunc func(ctx context.Context, addr string) error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkFunc = checkFunc
}

// Check probes every node once and returns the healthy ones, in the order
// given. Nodes no longer listed are forgotten.
func (h *HealthMonitor) Check(ctx context.Context, nodes []cluster.NodeInfo) []cluster.NodeInfo {
	current := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		current[n.ID] = true
	}

	h.mu.Lock()
	for id := range h.nodes {
		if !current[id] {
			delete(h.nodes, id)
			h.log.Debug("removed node from health monitoring", "node", id)
		}
	}
	check := h.checkFunc
	h.mu.Unlock()

	var wg sync.WaitGroup
	for _, n := range nodes {
		wg.Add(1)
		go func(n cluster.NodeInfo) {
			defer wg.Done()
			h.checkNode(ctx, check, n)
		}(n)
	}
	wg.Wait()

	var healthy []cluster.NodeInfo
	for _, n := range nodes {
		if h.IsHealthy(n.ID) {
			healthy = append(healthy, n)
		}
	}
	return healthy
}

func (h *HealthMonitor) checkNode(ctx context.Context, check func(context.Context, string) error, node cluster.NodeInfo) {
	h.mu.Lock()
	health, exists := h.nodes[node.ID]
	if !exists {
		health = &NodeHealth{NodeID: node.ID, Status: StatusUnknown}
		h.nodes[node.ID] = health
	}
	h.mu.Unlock()

	cctx, cancel := context.WithTimeout(ctx, h.timeout)
	err := check(cctx, node.Addr)
	cancel()

	h.mu.Lock()
	defer h.mu.Unlock()

	health.LastCheck = time.Now()
	if err != nil {
		health.ConsecutiveFails++
		health.Status = StatusUnhealthy
		health.LastError = err.Error()
		h.log.Warn("health check failed", "node", node.ID, "fails", health.ConsecutiveFails, "error", err)
		return
	}
	if health.Status == StatusUnhealthy {
		h.log.Info("node recovered", "node", node.ID)
	}
	health.Status = StatusHealthy
	health.ConsecutiveFails = 0
	health.LastError = ""
	health.LastHealthy = health.LastCheck
}

// GetNodeHealth returns a copy of a node's health, or nil if unknown.
func (h *HealthMonitor) GetNodeHealth(nodeID string) *NodeHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()

	health, exists := h.nodes[nodeID]
	if !exists {
		return nil
	}
	cp := *health
	return &cp
}

// GetAllNodeHealth returns a copy of every tracked node's health.
func (h *HealthMonitor) GetAllNodeHealth() map[string]*NodeHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()

	result := make(map[string]*NodeHealth, len(h.nodes))
	for id, health := range h.nodes {
		cp := *health
		result[id] = &cp
	}
	return result
}

// IsHealthy reports whether the node's last check succeeded.
func (h *HealthMonitor) IsHealthy(nodeID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	health, exists := h.nodes[nodeID]
	return exists && health.Status == StatusHealthy
}
