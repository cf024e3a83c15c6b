package lump

import (
	"fmt"
	"sync"

	"github.com/cuemby/hearthd/pkg/hearth"
	"github.com/cuemby/hearthd/pkg/log"
	"github.com/cuemby/hearthd/pkg/metrics"
	"lukechampine.com/blake3"
)

// Backing is an optional persistent store consulted on a cache miss and
// written through on every Add. A Store with no Backing is purely
// in-memory and loses its contents on process exit.
type Backing interface {
	Put(id hearth.LumpId, data []byte) error
	Get(id hearth.LumpId) ([]byte, bool, error)
}

// Store is a concurrency-safe content-addressed byte store. The zero value is not usable; construct with New.
type Store struct {
	mu      sync.RWMutex
	blobs   map[hearth.LumpId][]byte
	backing Backing
}

// Option configures a Store at construction.
type Option func(*Store)

// WithBacking attaches a persistent backing store. Lumps already in b
// are not eagerly loaded into memory; they are picked up lazily on Get.
func WithBacking(b Backing) Option {
	return func(s *Store) { s.backing = b }
}

// New creates an empty lump store.
func New(opts ...Option) *Store {
	s := &Store{blobs: make(map[hearth.LumpId][]byte)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add hashes data with BLAKE3, inserting it if absent, and returns its
// id. Idempotent on content: two calls with equal bytes return equal
// ids, and neither double-stores.
func (s *Store) Add(data []byte) (hearth.LumpId, error) {
	id := hearth.LumpId(blake3.Sum256(data))

	s.mu.RLock()
	_, exists := s.blobs[id]
	s.mu.RUnlock()
	if exists {
		return id, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.blobs[id]; exists {
		return id, nil
	}

	owned := make([]byte, len(data))
	copy(owned, data)
	s.blobs[id] = owned
	metrics.LumpStoreEntries.Set(float64(len(s.blobs)))
	metrics.LumpStoreBytes.Add(float64(len(owned)))

	if s.backing != nil {
		if err := s.backing.Put(id, owned); err != nil {
			log.WithComponent("lump").Warn().Err(err).Str("lump_id", id.String()).
				Msg("failed to persist lump to backing store")
		}
	}
	return id, nil
}

// Get returns a shared handle to the buffer named by id, consulting the
// backing store on a memory miss. The returned slice must be treated as
// read-only by callers; it is the same backing array every caller of Get
// receives.
func (s *Store) Get(id hearth.LumpId) ([]byte, bool) {
	s.mu.RLock()
	data, ok := s.blobs[id]
	s.mu.RUnlock()
	if ok {
		return data, true
	}

	if s.backing == nil {
		return nil, false
	}

	data, ok, err := s.backing.Get(id)
	if err != nil {
		log.WithComponent("lump").Warn().Err(err).Str("lump_id", id.String()).
			Msg("backing store lookup failed")
		return nil, false
	}
	if !ok {
		return nil, false
	}

	s.mu.Lock()
	if _, exists := s.blobs[id]; !exists {
		s.blobs[id] = data
		metrics.LumpStoreEntries.Set(float64(len(s.blobs)))
		metrics.LumpStoreBytes.Add(float64(len(data)))
	}
	s.mu.Unlock()
	return data, true
}

// Len reports the number of lumps currently held in memory, for metrics.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}

// MustAdd is a test and bootstrap convenience that panics on error. Add
// never actually fails today, but callers should still prefer Add in
// production code paths.
func MustAdd(s *Store, data []byte) hearth.LumpId {
	id, err := s.Add(data)
	if err != nil {
		panic(fmt.Sprintf("lump: Add: %v", err))
	}
	return id
}
