package collab

import "sync"

// lockRegistry hands out per-document mutexes. Entries are created lazily
// and removed when the last referencing cycle releases them, so the table
// does not grow with the total number of documents ever touched.
type lockRegistry struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newLockRegistry() *lockRegistry {
	return &lockRegistry{
		entries: make(map[string]*lockEntry),
	}
}

// acquire returns the lock entry for a document id, creating it if needed.
// The caller must pair this with release. Acquiring does not lock the entry.
func (r *lockRegistry) acquire(id string) *lockEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[id]
	if !ok {
		entry = &lockEntry{}
		r.entries[id] = entry
	}
	entry.refs++
	return entry
}

// release drops one reference to the document's lock entry and removes the
// entry when no cycle references it anymore.
func (r *lockRegistry) release(id string, entry *lockEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry.refs--
	if entry.refs <= 0 {
		delete(r.entries, id)
	}
}

// size returns the number of live entries. It exists for tests.
func (r *lockRegistry) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
