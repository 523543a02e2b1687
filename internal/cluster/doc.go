// Package cluster holds the client side of the worker-node protocol used by
// the remote transport.
//
// # Overview
//
// A worker node (cmd/mandel-node in http mode) is a long-running process
// that computes chunks on request. The orchestrator never registers nodes;
// it is given their addresses up front (MANDEL_NODES), gates on their
// health, and posts one assignment per chunk.
//
// # Architecture
//
//	              ┌──────────────┐
//	              │ Orchestrator │
//	              │              │
//	              │ - Partition  │
//	              │ - Health gate│
//	              │ - Collect    │
//	              └──────┬───────┘
//	                     │  POST /compute
//	      ┌──────────────┼──────────────┐
//	      │              │              │
//	┌─────▼─────┐ ┌─────▼─────┐ ┌─────▼─────┐
//	│  Node 1   │ │  Node 2   │ │  Node 3   │
//	│ rows      │ │ rows      │ │ rows      │
//	│ [0,250)   │ │ [250,500) │ │ [500,1000)│
//	└───────────┘ └───────────┘ └───────────┘
//
// # Communication Protocol
//
// Health Checking (GET /health):
//   - Returns {"id": ..., "status": "ok"}
//   - Any other status or a transport error marks the node unhealthy
//
// Node Information (GET /info):
//   - Protocol version, chunks served, uptime
//
// Chunk Computation (POST /compute):
//   - Request body: one 64-byte assignment record
//   - Response body: the result record followed by the chunk payload,
//     exactly as a pipe or socket worker would write it
//   - Content-Type: application/octet-stream
//
// JSON endpoints go through GetJSON with a short client timeout. Compute
// calls go through PostBinary, which is bounded only by the caller's
// context since a chunk may legitimately take minutes.
//
// # Error Handling
//
// Non-2xx responses become errors carrying the URL and status code. The
// caller decides whether a failure is fatal; the orchestrator never retries.
package cluster
