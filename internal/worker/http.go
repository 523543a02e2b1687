package worker

import (
	"encoding/json"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/dreamware/mandelgrid/internal/cluster"
	"github.com/dreamware/mandelgrid/internal/grid"
	"github.com/dreamware/mandelgrid/internal/logging"
	"github.com/dreamware/mandelgrid/internal/storage"
	"github.com/dreamware/mandelgrid/internal/transport"
)

// Node serves chunk computations over HTTP for the remote transport.
type Node struct {
	ID      string
	log     logging.Logger
	started time.Time
	served  atomic.Int64
	store   storage.Store
}

// NewNode creates a node that identifies itself as id.
func NewNode(id string, log logging.Logger) *Node {
	if log == nil {
		log = logging.Nop{}
	}
	return &Node{ID: id, log: log.With("node", id), started: time.Now()}
}

// WithStore makes the node keep computed chunks in s, keyed by their
// assignment record. Call it before serving.
func (n *Node) WithStore(s storage.Store) *Node {
	n.store = s
	return n
}

// Served returns the number of chunks computed so far.
func (n *Node) Served() int64 {
	return n.served.Load()
}

// Handler routes /health, /info and /compute.
func (n *Node) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(cluster.PathHealth, n.handleHealth)
	mux.HandleFunc(cluster.PathInfo, n.handleInfo)
	mux.HandleFunc(cluster.PathCompute, n.handleCompute)
	return mux
}

func (n *Node) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, cluster.HealthResponse{ID: n.ID, Status: "ok"})
}

func (n *Node) handleInfo(w http.ResponseWriter, r *http.Request) {
	host, _ := os.Hostname()
	info := cluster.InfoResponse{
		ID:       n.ID,
		Version:  transport.Version,
		Served:   n.served.Load(),
		Uptime:   time.Since(n.started),
		Hostname: host,
	}
	if n.store != nil {
		stats := n.store.Stats()
		info.Cache = &stats
	}
	writeJSON(w, info)
}

func (n *Node) handleCompute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h, err := transport.ReceiveAssignment(r.Body)
	if err != nil {
		n.log.Warn("rejecting assignment", "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	start := time.Now()
	out, err := n.compute(h)
	if err != nil {
		n.log.Error("compute failed", "chunk", h.Assignment.String(), "error", err)
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	n.served.Add(1)

	w.Header().Set("Content-Type", cluster.ContentType)
	if err := transport.SendResult(w, h, out); err != nil {
		n.log.Error("send result", "chunk", h.Assignment.String(), "error", err)
		return
	}
	n.log.Debug("chunk served", "chunk", h.Assignment.String(), "elapsed", time.Since(start))
}

// compute answers h from the store when possible and fills it otherwise.
func (n *Node) compute(h transport.Header) (grid.IterationField, error) {
	if n.store == nil {
		return Handle(h)
	}
	key, err := h.MarshalBinary()
	if err != nil {
		return nil, err
	}
	if b, err := n.store.Get(string(key)); err == nil {
		out := make(grid.IterationField, h.Assignment.Length*h.Width)
		if err := transport.DecodeIterations(b, out); err == nil {
			n.log.Debug("chunk from cache", "chunk", h.Assignment.String())
			return out, nil
		}
		n.store.Delete(string(key))
	}

	out, err := Handle(h)
	if err != nil {
		return nil, err
	}
	n.store.Put(string(key), transport.EncodeIterations(out))
	return out, nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
