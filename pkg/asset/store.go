package asset

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/cuemby/hearthd/pkg/hearth"
	"github.com/cuemby/hearthd/pkg/log"
	"github.com/cuemby/hearthd/pkg/lump"
	"github.com/cuemby/hearthd/pkg/metrics"
	"golang.org/x/sync/singleflight"
)

// Loader builds a typed asset from a lump's raw bytes.
type Loader func(data []byte) (any, error)

type registration struct {
	loader Loader

	mu    sync.RWMutex
	cache map[hearth.LumpId]any
}

// Store holds a set of named loaders and, per loader, a LumpId→asset
// cache.
type Store struct {
	lumps *lump.Store

	mu      sync.RWMutex
	loaders map[string]*registration

	group singleflight.Group
}

// New creates an asset store backed by lumps.
func New(lumps *lump.Store) *Store {
	return &Store{
		lumps:   lumps,
		loaders: make(map[string]*registration),
	}
}

// Register adds a named loader. Registering the same name twice is a
// non-fatal warning; the first registration wins.
func (s *Store) Register(name string, loader Loader) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.loaders[name]; exists {
		log.WithComponent("asset").Warn().Str("loader", name).
			Msg("loader already registered, ignoring duplicate registration")
		return
	}
	s.loaders[name] = &registration{loader: loader, cache: make(map[hearth.LumpId]any)}
}

// Load returns the cached asset for (name, id), building it via the
// registered loader on a cache miss. Concurrent Load calls for the same
// (name, id) invoke the loader at most once; a failed build
// is not cached and the next call retries.
func (s *Store) Load(name string, id hearth.LumpId) (any, error) {
	s.mu.RLock()
	reg, ok := s.loaders[name]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("asset: load %s/%s: %w", name, id, hearth.ErrLoaderNotRegistered)
	}

	reg.mu.RLock()
	if v, hit := reg.cache[id]; hit {
		reg.mu.RUnlock()
		metrics.AssetCacheHitsTotal.WithLabelValues(name).Inc()
		return v, nil
	}
	reg.mu.RUnlock()

	key := name + "/" + id.String()
	v, err, _ := s.group.Do(key, func() (any, error) {
		// Re-check under the singleflight key: another caller's Do may
		// have completed and populated the cache between our RUnlock
		// above and this closure running.
		reg.mu.RLock()
		if v, hit := reg.cache[id]; hit {
			reg.mu.RUnlock()
			metrics.AssetCacheHitsTotal.WithLabelValues(name).Inc()
			return v, nil
		}
		reg.mu.RUnlock()

		metrics.AssetCacheMissesTotal.WithLabelValues(name).Inc()
		timer := metrics.NewTimer()

		data, ok := s.lumps.Get(id)
		if !ok {
			return nil, fmt.Errorf("asset: load %s/%s: %w", name, id, hearth.ErrLumpNotFound)
		}
		val, err := reg.loader(data)
		timer.ObserveDurationVec(metrics.AssetBuildDuration, name)
		if err != nil {
			return nil, fmt.Errorf("asset: load %s/%s: %w", name, id, err)
		}

		reg.mu.Lock()
		reg.cache[id] = val
		reg.mu.Unlock()
		return val, nil
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

// JSONLoader builds a Loader that decodes a lump's bytes as JSON into a
// fresh *T.
func JSONLoader[T any]() Loader {
	return func(data []byte) (any, error) {
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("asset: json decode: %w", err)
		}
		return &v, nil
	}
}
