package pokeclient

import (
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"
)

const storeShards = 16

// Freshness is the lifecycle state of a CacheEntry at a point in time.
type Freshness int

const (
	// Fresh entries are served without touching the network.
	Fresh Freshness = iota
	// Stale entries may be served while a revalidation runs.
	Stale
	// Expired entries are treated as absent.
	Expired
)

func (f Freshness) String() string {
	switch f {
	case Fresh:
		return "fresh"
	case Stale:
		return "stale"
	default:
		return "expired"
	}
}

// CacheEntry is an immutable cached value with its lifecycle timestamps.
// FetchedAt <= ExpiresAt <= StaleAt always holds for entries built by NewEntry.
type CacheEntry struct {
	Data      interface{}
	FetchedAt time.Time
	ExpiresAt time.Time
	StaleAt   time.Time
}

// NewEntry builds an entry fetched at fetchedAt. Negative TTLs count as zero.
func NewEntry(data interface{}, fetchedAt time.Time, cacheTTL, staleTTL time.Duration) CacheEntry {
	if cacheTTL < 0 {
		cacheTTL = 0
	}
	if staleTTL < 0 {
		staleTTL = 0
	}
	expiresAt := fetchedAt.Add(cacheTTL)
	return CacheEntry{
		Data:      data,
		FetchedAt: fetchedAt,
		ExpiresAt: expiresAt,
		StaleAt:   expiresAt.Add(staleTTL),
	}
}

// State reports the entry's freshness at now.
func (e CacheEntry) State(now time.Time) Freshness {
	switch {
	case now.Before(e.ExpiresAt):
		return Fresh
	case now.Before(e.StaleAt):
		return Stale
	default:
		return Expired
	}
}

// Listener receives every entry written to the key it subscribed to.
type Listener func(entry CacheEntry)

// Store is an in-memory keyed cache with per-key subscribers. It applies no
// TTL logic of its own; callers interpret entries with CacheEntry.State.
// Store is safe for concurrent use.
type Store struct {
	shards []*storeShard
	nextID atomic.Uint64
}

type storeShard struct {
	mu        sync.RWMutex
	entries   map[string]CacheEntry
	listeners map[string]map[uint64]Listener
}

// NewStore creates an empty Store.
func NewStore() *Store {
	shards := make([]*storeShard, storeShards)
	for i := range shards {
		shards[i] = &storeShard{
			entries:   make(map[string]CacheEntry),
			listeners: make(map[string]map[uint64]Listener),
		}
	}
	return &Store{shards: shards}
}

func (s *Store) shard(key string) *storeShard {
	hash := fnv.New32a()
	hash.Write([]byte(key))
	return s.shards[hash.Sum32()%storeShards]
}

// Get returns the entry stored under key, whatever its freshness.
func (s *Store) Get(key string) (CacheEntry, bool) {
	sh := s.shard(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	entry, ok := sh.entries[key]
	return entry, ok
}

// Set replaces the entry under key, then calls every listener of key
// synchronously on the calling goroutine.
func (s *Store) Set(key string, entry CacheEntry) {
	sh := s.shard(key)
	sh.mu.Lock()
	sh.entries[key] = entry
	var notify []Listener
	if set := sh.listeners[key]; len(set) > 0 {
		notify = make([]Listener, 0, len(set))
		for _, l := range set {
			notify = append(notify, l)
		}
	}
	sh.mu.Unlock()

	for _, l := range notify {
		l(entry)
	}
}

// Delete removes the entry under key along with its listeners.
func (s *Store) Delete(key string) {
	sh := s.shard(key)
	sh.mu.Lock()
	delete(sh.entries, key)
	delete(sh.listeners, key)
	sh.mu.Unlock()
}

// Clear removes every entry and every listener.
func (s *Store) Clear() {
	for _, sh := range s.shards {
		sh.mu.Lock()
		sh.entries = make(map[string]CacheEntry)
		sh.listeners = make(map[string]map[uint64]Listener)
		sh.mu.Unlock()
	}
}

// Subscribe registers listener for writes to key. The returned function
// removes it and may be called any number of times.
func (s *Store) Subscribe(key string, listener Listener) (unsubscribe func()) {
	id := s.nextID.Add(1)
	sh := s.shard(key)

	sh.mu.Lock()
	set, ok := sh.listeners[key]
	if !ok {
		set = make(map[uint64]Listener)
		sh.listeners[key] = set
	}
	set[id] = listener
	sh.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			sh.mu.Lock()
			defer sh.mu.Unlock()
			set, ok := sh.listeners[key]
			if !ok {
				return
			}
			delete(set, id)
			if len(set) == 0 {
				delete(sh.listeners, key)
			}
		})
	}
}

// Len returns the number of stored entries.
func (s *Store) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		n += len(sh.entries)
		sh.mu.RUnlock()
	}
	return n
}

// Keys returns the stored keys in no particular order.
func (s *Store) Keys() []string {
	keys := make([]string, 0, s.Len())
	for _, sh := range s.shards {
		sh.mu.RLock()
		for k := range sh.entries {
			keys = append(keys, k)
		}
		sh.mu.RUnlock()
	}
	return keys
}

func (s *Store) listenerCount(key string) int {
	sh := s.shard(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	return len(sh.listeners[key])
}
