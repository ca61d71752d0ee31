// Package cache provides the two-tier read-through cache used by the
// business engine: a small in-process TTL cache fronting a shared Redis
// cache. Writes invalidate by key prefix so a customer update clears every
// derived entry at once.
package cache

import (
	"strings"
	"sync"
	"time"
)

// localEntry is one cached value with its expiry.
type localEntry struct {
	value     string
	expiresAt time.Time
}

// Local is a bounded in-process cache with per-entry TTL. When full, the
// entry closest to expiry is evicted. Safe for concurrent use.
type Local struct {
	mu      sync.Mutex
	entries map[string]localEntry
	max     int
	now     func() time.Time
}

// NewLocal creates a Local cache holding at most max entries.
func NewLocal(max int) *Local {
	if max <= 0 {
		max = 100
	}
	return &Local{
		entries: make(map[string]localEntry, max),
		max:     max,
		now:     time.Now,
	}
}

// Get returns the cached value for key, if present and not expired.
func (l *Local) Get(key string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[key]
	if !ok {
		return "", false
	}
	if l.now().After(e.expiresAt) {
		delete(l.entries, key)
		return "", false
	}
	return e.value, true
}

// Set stores value under key for ttl.
func (l *Local) Set(key, value string, ttl time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.entries[key]; !exists && len(l.entries) >= l.max {
		l.evictLocked()
	}
	l.entries[key] = localEntry{value: value, expiresAt: l.now().Add(ttl)}
}

// DeletePrefix removes every entry whose key starts with prefix.
func (l *Local) DeletePrefix(prefix string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for k := range l.entries {
		if strings.HasPrefix(k, prefix) {
			delete(l.entries, k)
		}
	}
}

// Len returns the current number of entries, expired ones included.
func (l *Local) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// evictLocked drops the entry closest to expiry. Expired entries go first
// for free.
func (l *Local) evictLocked() {
	var (
		victim string
		oldest time.Time
	)
	for k, e := range l.entries {
		if victim == "" || e.expiresAt.Before(oldest) {
			victim = k
			oldest = e.expiresAt
		}
	}
	if victim != "" {
		delete(l.entries, victim)
	}
}
