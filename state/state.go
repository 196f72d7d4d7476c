// Package state provides the shared key/value store orchestrator sessions
// use for cross-agent scratch data. Entries are scoped so independent runs
// can share one store without collisions.
package state

import (
	"strings"
	"sync"
	"time"
)

// Entry is one stored value with its metadata.
type Entry struct {
	Value       any       `json:"value"`
	Scope       string    `json:"scope,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	Description string    `json:"description,omitempty"`
}

// Store is the shared-state contract consumed by the core. The core only
// reads and writes; ownership and persistence belong to the caller.
type Store interface {
	// Set stores an entry under the id within the entry's scope.
	Set(id string, e Entry)

	// Get retrieves an entry by id and scope.
	Get(id, scope string) (Entry, bool)

	// Delete removes an entry.
	Delete(id, scope string)

	// Keys lists all ids within a scope.
	Keys(scope string) []string
}

// InMemoryStore is a mutex-guarded map implementation of Store.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{entries: make(map[string]Entry)}
}

func key(id, scope string) string {
	if scope == "" {
		return id
	}

	return scope + "/" + id
}

// Set stores an entry, stamping CreatedAt if unset.
func (s *InMemoryStore) Set(id string, e Entry) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key(id, e.Scope)] = e
}

// Get retrieves an entry by id and scope.
func (s *InMemoryStore) Get(id, scope string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[key(id, scope)]

	return e, ok
}

// Delete removes an entry.
func (s *InMemoryStore) Delete(id, scope string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key(id, scope))
}

// Keys lists all ids within a scope.
func (s *InMemoryStore) Keys(scope string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	prefix := ""
	if scope != "" {
		prefix = scope + "/"
	}

	var keys []string
	for k := range s.entries {
		if prefix == "" {
			if !strings.Contains(k, "/") {
				keys = append(keys, k)
			}
			continue
		}
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, strings.TrimPrefix(k, prefix))
		}
	}

	return keys
}
