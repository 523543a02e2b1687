// Package coordinator implements the compute phase of a run: partitioning
// the grid, dispatching chunks to workers over one of several transports,
// and assembling their results into a single ordered IterationField.
//
// # Overview
//
// The Orchestrator owns the IterationField. Whatever mechanism does the
// work, the field it returns is the same: every row in an assignment was
// written exactly once, by exactly one worker, at its row-major position.
// Only after every worker has been joined is the field handed out.
//
// # Architecture
//
//	┌───────────────────────────────────────────┐
//	│               ORCHESTRATOR                │
//	├───────────────────────────────────────────┤
//	│                                           │
//	│  Idle ─▶ Partitioned ─▶ Dispatched        │
//	│                 ─▶ Collecting ─▶ Complete │
//	│          (any step may end in Failed)     │
//	│                                           │
//	│  ┌─────────────────────────────────────┐  │
//	│  │   Phase                             │  │
//	│  │   - IterationField (unlocked)       │  │
//	│  │   - ChunkRegistry  (mutex)          │  │
//	│  └─────────────────────────────────────┘  │
//	│                    │                      │
//	│         Dispatcher.Start / WaitFunc       │
//	└────────────────────┼──────────────────────┘
//	       ┌─────────────┼───────────────┐
//	  in process     worker processes   worker nodes
//	  shared         pipe               remote
//	  parallel-for   socket
//
// # Transports
//
// shared: one goroutine per chunk writes its rows straight into the field.
// Chunks are disjoint, so no lock is needed around the writes.
//
// parallel-for: every row becomes a task on a work-stealing goroutine pool
// sized to the worker count.
//
// pipe: one process per chunk, started from WorkerCommand with
// MANDEL_WORKER_MODE=stdio. The assignment record goes down the child's
// stdin; the result record and payload come back on its stdout.
//
// socket: the orchestrator listens on a Unix socket in a fresh temporary
// directory and starts one process per chunk with MANDEL_WORKER_MODE=socket.
// Each connection that comes in gets the next unserved chunk.
//
// remote: nodes given in MANDEL_NODES are health-checked, then each chunk is
// posted to a healthy node's /compute endpoint.
//
// Out-of-process workers never share memory with the orchestrator. They
// rebuild their constants from the grid carried in the assignment record
// and reply with a record echoing the assignment followed by
// Length*Width little-endian int32 values (see package transport).
//
// # Collection
//
// Phase.Deliver checks the echoed record against the run's grid and claims
// the matching chunk in the ChunkRegistry before a single cell is written.
// An unknown, duplicated or foreign chunk is a worker failure. The payload
// is then decoded directly into the chunk's slice of the field.
//
// After the WaitFunc returns the orchestrator verifies that every chunk was
// collected and that no assigned cell still holds grid.Unwritten.
//
// # Error Handling
//
// Run failures wrap one sentinel each:
//
//	ErrChannelSetup    pipe, listener or node health gate could not be set up
//	ErrWorkerFailed    panic, non-zero exit, short payload, malformed record
//	ErrWorkerTimeout   Job.Timeout elapsed before all workers were joined
//	ErrIncomplete      a chunk was never collected
//
// plus grid.ErrAllocation and partition.ErrInvalidWorkerCount from the
// packages that detect them. Nothing is retried. When one worker fails the
// others are cancelled and the partial field is discarded.
//
// # Example
//
//	d, _ := coordinator.NewDispatcher(config.TransportPipe, coordinator.Options{
//	    Command: coordinator.WorkerCommand{Path: "/usr/local/bin/mandel-node"},
//	})
//	o := coordinator.New(d, log)
//	res, err := o.Run(ctx, coordinator.Job{
//	    Grid:      g,
//	    MaxIter:   5000,
//	    Workers:   4,
//	    Remainder: partition.RemainderLast,
//	    Timeout:   2 * time.Minute,
//	})
package coordinator
