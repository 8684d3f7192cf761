package session

import (
	"sort"
	"sync"
)

// entry guards one user's session. Every operation on the state holds mu.
// Once the session is finalized the entry is marked closed and removed from
// the registry; a caller that was waiting on mu sees closed and gives up.
type entry struct {
	mu     sync.Mutex
	state  *State
	closed bool
}

// registry maps user IDs to entries. Its own mutex only protects the map and
// is never held while an entry lock is taken.
type registry struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func newRegistry() *registry {
	return &registry{entries: make(map[string]*entry)}
}

func (r *registry) get(userID string) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries[userID]
}

// add registers e for userID. It returns false when the user already has an
// entry.
func (r *registry) add(userID string, e *entry) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[userID]; exists {
		return false
	}
	r.entries[userID] = e
	return true
}

// remove deletes userID only if it still maps to e.
func (r *registry) remove(userID string, e *entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.entries[userID] == e {
		delete(r.entries, userID)
	}
}

// userIDs returns the registered user IDs in sorted order.
func (r *registry) userIDs() []string {
	r.mu.Lock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	sort.Strings(ids)
	return ids
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
