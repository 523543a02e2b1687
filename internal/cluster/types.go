package cluster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dreamware/mandelgrid/internal/storage"
)

// NodeInfo identifies a worker node reachable over HTTP.
type NodeInfo struct {
	ID   string `json:"id"`
	Addr string `json:"addr"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// InfoResponse is the body of GET /info.
type InfoResponse struct {
	ID       string        `json:"id"`
	Version  uint16        `json:"protocol_version"`
	Served   int64         `json:"chunks_served"`
	Uptime   time.Duration `json:"uptime_ns"`
	Hostname string        `json:"hostname"`
	// Cache is present when the node keeps computed chunks.
	Cache *storage.StoreStats `json:"cache,omitempty"`
}

// Paths served by a worker node.
const (
	PathHealth  = "/health"
	PathInfo    = "/info"
	PathCompute = "/compute"
)

// ContentType of /compute request and response bodies.
const ContentType = "application/octet-stream"

var httpClient = &http.Client{Timeout: 5 * time.Second}

// computeClient has no overall timeout; a compute call is bounded by the
// run context instead.
var computeClient = &http.Client{}

// NodesFromAddrs turns configured addresses into NodeInfo values. The
// address doubles as the node ID.
func NodesFromAddrs(addrs []string) []NodeInfo {
	nodes := make([]NodeInfo, 0, len(addrs))
	for _, a := range addrs {
		nodes = append(nodes, NodeInfo{ID: a, Addr: a})
	}
	return nodes
}

// URL joins a node address and a path, adding http:// when no scheme is
// present.
func URL(addr, path string) string {
	if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
		addr = "http://" + addr
	}
	return strings.TrimRight(addr, "/") + path
}

// GetJSON fetches url and decodes the JSON response into out.
func GetJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("http %s: %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// PostBinary posts body to url and returns the response body for the
// caller to stream and close.
func PostBinary(ctx context.Context, url string, body []byte) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", ContentType)
	resp, err := computeClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("http %s: %d: %s", url, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return resp.Body, nil
}

// CheckHealth returns nil when the node at addr answers GET /health with
// status "ok".
func CheckHealth(ctx context.Context, addr string) error {
	var h HealthResponse
	if err := GetJSON(ctx, URL(addr, PathHealth), &h); err != nil {
		return fmt.Errorf("health check request failed: %w", err)
	}
	if h.Status != "ok" {
		return fmt.Errorf("node %s reports status %q", h.ID, h.Status)
	}
	return nil
}
