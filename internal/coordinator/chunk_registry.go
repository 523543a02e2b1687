package coordinator

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/exp/slices"

	"github.com/dreamware/mandelgrid/internal/partition"
)

var (
	// ErrUnknownChunk is returned when a worker echoes an assignment that
	// was never issued.
	ErrUnknownChunk = errors.New("coordinator: unknown chunk")
	// ErrDuplicateChunk is returned when a chunk is delivered twice.
	ErrDuplicateChunk = errors.New("coordinator: chunk already collected")
)

// ChunkStatus is the collection state of one chunk.
type ChunkStatus string

const (
	ChunkPending   ChunkStatus = "pending"
	ChunkReceiving ChunkStatus = "receiving"
	ChunkCollected ChunkStatus = "collected"
)

// ChunkRecord tracks one issued assignment through collection.
//
// Thread Safety:
// ChunkRecord values returned by the registry are copies; mutating them has
// no effect on the registry.
type ChunkRecord struct {
	// CollectedAt is zero until the chunk's cells are all written.
	CollectedAt time.Time `json:"collected_at"`

	// WorkerID names the worker that claimed the chunk: a generated UUID for
	// goroutines and processes, the node ID for remote workers.
	WorkerID string `json:"worker_id"`

	Status ChunkStatus `json:"status"`

	Assignment partition.Assignment `json:"assignment"`

	// ID is the chunk's position in the partition, [0, workers).
	ID int `json:"id"`
}

// ChunkRegistry is the orchestrator's record of which chunks have been
// issued and which have come back. It is the only state shared between
// collecting goroutines and therefore the only thing behind a lock; the
// IterationField itself is written without locking because claimed chunks
// never overlap.
//
// Lifecycle of a chunk:
//
//	pending ──Claim──▶ receiving ──Complete──▶ collected
//
// Claim matches the assignment echoed by a worker against the issued ones,
// so a garbled or replayed header is caught before any cell is written.
//
// Concurrency Model:
//   - Every method takes the mutex for the duration of a map or slice access
//   - No lock is held while a payload is read or a chunk computed
//   - All returned records are copies
type ChunkRegistry struct {
	chunks  []*ChunkRecord
	byStart map[int]int // assignment start row -> chunk ID
	mu      sync.Mutex
}

// NewChunkRegistry registers one pending chunk per assignment, in order.
//
// Example:
//
//	assignments, _ := partition.Split(1000, 4, partition.RemainderLast)
//	registry := NewChunkRegistry(assignments)
//	id, err := registry.Claim(assignments[2], "worker-3")
func NewChunkRegistry(assignments []partition.Assignment) *ChunkRegistry {
	r := &ChunkRegistry{
		chunks:  make([]*ChunkRecord, len(assignments)),
		byStart: make(map[int]int, len(assignments)),
	}
	for i, a := range assignments {
		r.chunks[i] = &ChunkRecord{ID: i, Assignment: a, Status: ChunkPending}
		r.byStart[a.Start] = i
	}
	return r
}

// Claim marks the chunk matching a as being received from workerID.
//
// Returns:
//   - the chunk ID on success
//   - ErrUnknownChunk if no issued chunk has exactly this start and length
//   - ErrDuplicateChunk if the chunk was already claimed
func (r *ChunkRegistry) Claim(a partition.Assignment, workerID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byStart[a.Start]
	if !ok || r.chunks[id].Assignment != a {
		return -1, fmt.Errorf("%w: %s", ErrUnknownChunk, a)
	}
	c := r.chunks[id]
	if c.Status != ChunkPending {
		return -1, fmt.Errorf("%w: %s claimed by %s", ErrDuplicateChunk, a, c.WorkerID)
	}
	c.Status = ChunkReceiving
	c.WorkerID = workerID
	return id, nil
}

// Complete marks a claimed chunk as fully written.
func (r *ChunkRegistry) Complete(id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id < 0 || id >= len(r.chunks) {
		return fmt.Errorf("%w: id %d", ErrUnknownChunk, id)
	}
	c := r.chunks[id]
	if c.Status != ChunkReceiving {
		return fmt.Errorf("coordinator: chunk %d is %s, not receiving", id, c.Status)
	}
	c.Status = ChunkCollected
	c.CollectedAt = time.Now()
	return nil
}

// Get returns a copy of the chunk record, or nil for an unknown ID.
func (r *ChunkRegistry) Get(id int) *ChunkRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id < 0 || id >= len(r.chunks) {
		return nil
	}
	c := *r.chunks[id]
	return &c
}

// All returns copies of every record ordered by ID.
func (r *ChunkRegistry) All() []*ChunkRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*ChunkRecord, 0, len(r.chunks))
	for _, c := range r.chunks {
		cp := *c
		out = append(out, &cp)
	}
	slices.SortFunc(out, func(a, b *ChunkRecord) int { return a.ID - b.ID })
	return out
}

// WorkerChunks returns the IDs of the chunks claimed by workerID.
func (r *ChunkRegistry) WorkerChunks(workerID string) []int {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ids []int
	for _, c := range r.chunks {
		if c.WorkerID == workerID {
			ids = append(ids, c.ID)
		}
	}
	return ids
}

// Outstanding returns the IDs of chunks not yet collected.
func (r *ChunkRegistry) Outstanding() []int {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ids []int
	for _, c := range r.chunks {
		if c.Status != ChunkCollected {
			ids = append(ids, c.ID)
		}
	}
	return ids
}

// NumChunks returns the number of registered chunks.
func (r *ChunkRegistry) NumChunks() int {
	return len(r.chunks)
}

// Verify returns ErrIncomplete unless every chunk has been collected.
func (r *ChunkRegistry) Verify() error {
	missing := r.Outstanding()
	if len(missing) == 0 {
		return nil
	}
	rows := make([]string, 0, len(missing))
	for _, id := range missing {
		rows = append(rows, r.Get(id).Assignment.String())
	}
	return fmt.Errorf("%w: %d of %d chunks missing %v", ErrIncomplete, len(missing), r.NumChunks(), rows)
}
