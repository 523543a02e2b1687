// Package storage provides the byte store worker nodes use to keep computed
// chunk results.
//
// # Overview
//
// A chunk's escape times depend only on its assignment record: the grid,
// the iteration limit and the rows. A node that is asked for the same
// record twice, as happens when a view is rendered again or a sweep revisits
// a region, can answer from memory. The node keys the store by the encoded
// assignment record and stores the encoded payload.
//
// # Architecture
//
//	┌─────────────────────────────────────┐
//	│        worker.Node /compute         │
//	└─────────────────────────────────────┘
//	                 │ Get / Put
//	                 ▼
//	┌─────────────────────────────────────┐
//	│          Store interface            │
//	└─────────────────────────────────────┘
//	                 │
//	                 ▼
//	┌─────────────────────────────────────┐
//	│   MemoryStore (LRU, byte budget)    │
//	└─────────────────────────────────────┘
//
// # Eviction
//
// MemoryStore bounds the total size of its values. Put evicts from the
// least recently used end until the new value fits. Get refreshes a key.
// A single value larger than the budget is silently dropped, so a tiny
// budget degrades to no caching rather than to an error.
//
// # Statistics
//
// Stats reports keys, bytes, hits, misses and evictions. Nodes expose them
// on /info.
//
// # Example
//
//	s := storage.NewMemoryStore(64 << 20)
//	if v, err := s.Get(key); err == nil {
//	    return v
//	}
//	s.Put(key, payload)
package storage
