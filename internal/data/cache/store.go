// Package cache holds the last known result per request key with a
// two-window staleness policy.
//
// An entry is fresh until its staleness window elapses, then usable
// but stale until its eviction window elapses, then gone. Stale
// entries let a caller render last-known data while a background
// refresh runs; evicted entries force a blocking fetch.
package cache

import (
	"sync"
	"time"
)

// Freshness describes how usable a cached entry is.
type Freshness int

const (
	Absent Freshness = iota // no entry, or the entry passed its eviction window
	Fresh                   // usable as-is
	Stale                   // usable, but a background refresh is warranted
)

func (f Freshness) String() string {
	switch f {
	case Fresh:
		return "fresh"
	case Stale:
		return "stale"
	default:
		return "absent"
	}
}

// Options are the per-resource staleness and eviction windows,
// supplied by the caller at registration time. Reference data such as
// plan catalogs uses long windows; monitoring data uses short ones.
type Options struct {
	StaleAfter time.Duration `yaml:"stale_after"`
	EvictAfter time.Duration `yaml:"evict_after"`
}

// Entry is the stored result of one successful read.
type Entry struct {
	Key        string
	Data       any
	FetchedAt  time.Time
	StaleAfter time.Duration
	EvictAfter time.Duration

	forcedStale bool
}

func (e *Entry) freshness(now time.Time) Freshness {
	age := now.Sub(e.FetchedAt)
	if age >= e.EvictAfter {
		return Absent
	}
	if e.forcedStale || age >= e.StaleAfter {
		return Stale
	}
	return Fresh
}

// Stats is a snapshot of store activity, exposed on the ops endpoint.
type Stats struct {
	Entries   int    `json:"entries"`
	Hits      uint64 `json:"hits"`
	StaleHits uint64 `json:"stale_hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
}

// Store owns every cache entry. Executors read entries through Lookup
// and never mutate them directly; all mutation goes through Put,
// MarkStale, and Evict.
type Store struct {
	mu       sync.RWMutex
	entries  map[string]*Entry
	defaults Options

	hits      uint64
	staleHits uint64
	misses    uint64
	evictions uint64
}

// NewStore creates an empty store. The defaults apply to entries put
// without explicit windows.
func NewStore(defaults Options) *Store {
	if defaults.StaleAfter <= 0 {
		defaults.StaleAfter = 30 * time.Second
	}
	if defaults.EvictAfter <= 0 {
		defaults.EvictAfter = 5 * time.Minute
	}
	return &Store{
		entries:  make(map[string]*Entry),
		defaults: defaults,
	}
}

// Lookup returns a copy of the entry for key and its freshness.
// Entries past their eviction window are treated as absent and
// removed.
func (s *Store) Lookup(key string) (Entry, Freshness) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.entries[key]
	if !ok {
		s.misses++
		return Entry{}, Absent
	}

	switch fr := ent.freshness(time.Now()); fr {
	case Fresh:
		s.hits++
		return *ent, Fresh
	case Stale:
		s.staleHits++
		return *ent, Stale
	default:
		delete(s.entries, key)
		s.misses++
		s.evictions++
		return Entry{}, Absent
	}
}

// Put stores the result of a successful read. Zero windows in opts
// fall back to the store defaults.
func (s *Store) Put(key string, data any, opts Options) {
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = s.defaults.StaleAfter
	}
	if opts.EvictAfter <= 0 {
		opts.EvictAfter = s.defaults.EvictAfter
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = &Entry{
		Key:        key,
		Data:       data,
		FetchedAt:  time.Now(),
		StaleAfter: opts.StaleAfter,
		EvictAfter: opts.EvictAfter,
	}
}

// MarkStale keeps the entry's data but zeroes its effective freshness,
// so the next lookup reports Stale and triggers a refresh.
func (s *Store) MarkStale(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ent, ok := s.entries[key]; ok {
		ent.forcedStale = true
	}
}

// Evict removes the entry outright, forcing the next read to the
// transport.
func (s *Store) Evict(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[key]; ok {
		delete(s.entries, key)
		s.evictions++
	}
}

// EvictMatching removes every entry whose key falls under one of the
// patterns and returns how many were removed.
func (s *Store) EvictMatching(patterns ...string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key := range s.entries {
		for _, pattern := range patterns {
			if Matches(key, pattern) {
				delete(s.entries, key)
				s.evictions++
				removed++
				break
			}
		}
	}
	return removed
}

// IsFresh reports whether the entry for key exists and is within its
// staleness window.
func (s *Store) IsFresh(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ent, ok := s.entries[key]
	return ok && ent.freshness(time.Now()) == Fresh
}

// Stats returns a snapshot of store activity.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Stats{
		Entries:   len(s.entries),
		Hits:      s.hits,
		StaleHits: s.staleHits,
		Misses:    s.misses,
		Evictions: s.evictions,
	}
}

// Reset drops every entry and counter. Used by tests only.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[string]*Entry)
	s.hits, s.staleHits, s.misses, s.evictions = 0, 0, 0, 0
}
