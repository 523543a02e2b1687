package storage

import (
	"container/list"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrKeyNotFound is returned by Get for a key that is not stored, either
// because it was never put or because it has been evicted.
var ErrKeyNotFound = errors.New("storage: key not found")

// DefaultMaxBytes is the budget used when NewMemoryStore is given zero.
const DefaultMaxBytes = 64 << 20

// Store holds opaque values under string keys.
type Store interface {
	Get(key string) ([]byte, error)
	Put(key string, value []byte) error
	Delete(key string) error
	List() []string
	Stats() StoreStats
}

// StoreStats is a snapshot of a store's contents and traffic.
type StoreStats struct {
	Keys      int   `json:"keys"`
	Bytes     int   `json:"bytes"`
	MaxBytes  int   `json:"max_bytes"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
}

type entry struct {
	key   string
	value []byte
}

// MemoryStore is an in-memory Store bounded by total value size. When a
// Put would exceed the budget the least recently used values are evicted.
// A value larger than the whole budget is not stored.
//
// Thread Safety: all methods are safe for concurrent use. Values are copied
// on the way in and out.
type MemoryStore struct {
	mu       sync.Mutex
	items    map[string]*list.Element
	lru      *list.List // front = most recent
	bytes    int
	maxBytes int

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// NewMemoryStore creates a store holding at most maxBytes of values.
// maxBytes <= 0 selects DefaultMaxBytes.
func NewMemoryStore(maxBytes int) *MemoryStore {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &MemoryStore{
		items:    make(map[string]*list.Element),
		lru:      list.New(),
		maxBytes: maxBytes,
	}
}

// Get returns a copy of the value stored under key and marks it as
// recently used.
func (m *MemoryStore) Get(key string) ([]byte, error) {
	m.mu.Lock()
	el, ok := m.items[key]
	if !ok {
		m.mu.Unlock()
		m.misses.Add(1)
		return nil, ErrKeyNotFound
	}
	m.lru.MoveToFront(el)
	value := el.Value.(*entry).value
	result := make([]byte, len(value))
	copy(result, value)
	m.mu.Unlock()

	m.hits.Add(1)
	return result, nil
}

// Put stores a copy of value under key, replacing any previous value.
func (m *MemoryStore) Put(key string, value []byte) error {
	if len(value) > m.maxBytes {
		return nil
	}
	stored := make([]byte, len(value))
	copy(stored, value)

	m.mu.Lock()
	defer m.mu.Unlock()

	if el, ok := m.items[key]; ok {
		m.remove(el)
	}
	m.evictUntil(m.maxBytes - len(stored))
	m.items[key] = m.lru.PushFront(&entry{key: key, value: stored})
	m.bytes += len(stored)
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (m *MemoryStore) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if el, ok := m.items[key]; ok {
		m.remove(el)
	}
	return nil
}

// List returns the stored keys, most recently used first.
func (m *MemoryStore) List() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.items))
	for el := m.lru.Front(); el != nil; el = el.Next() {
		keys = append(keys, el.Value.(*entry).key)
	}
	return keys
}

// Stats returns the current key count, byte usage and hit counters.
func (m *MemoryStore) Stats() StoreStats {
	m.mu.Lock()
	keys, bytes := len(m.items), m.bytes
	m.mu.Unlock()
	return StoreStats{
		Keys:      keys,
		Bytes:     bytes,
		MaxBytes:  m.maxBytes,
		Hits:      m.hits.Load(),
		Misses:    m.misses.Load(),
		Evictions: m.evictions.Load(),
	}
}

func (m *MemoryStore) remove(el *list.Element) {
	e := m.lru.Remove(el).(*entry)
	delete(m.items, e.key)
	m.bytes -= len(e.value)
}

// evictUntil drops least recently used values until at most target bytes
// remain. Caller holds mu.
func (m *MemoryStore) evictUntil(target int) {
	for m.bytes > target && m.lru.Len() > 0 {
		m.remove(m.lru.Back())
		m.evictions.Add(1)
	}
}
