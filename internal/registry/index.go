package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/svcreg-labs/svcreg/internal/service"
)

// entry is the index's bookkeeping for one definition. The matcher is
// compiled once per entry so lookups never pay regexp compilation under
// the read lock.
type entry struct {
	def          *service.Definition
	matcher      service.Matcher
	sourcePath   string
	lastModified time.Time
	fingerprint  string
}

func newEntry(def *service.Definition, path string, modTime time.Time, fingerprint string) *entry {
	return &entry{
		def:          def,
		matcher:      service.CompileMatcher(def.ServiceIDPattern),
		sourcePath:   path,
		lastModified: modTime,
		fingerprint:  fingerprint,
	}
}

// index is the in-memory mapping from definition id to entry, with a
// path side-index for watcher-driven removals. All methods hold the lock
// only for the map operation itself; callers do parsing and file I/O
// before calling in.
type index struct {
	mu     sync.RWMutex
	byID   map[int64]*entry
	byPath map[string]int64
}

func newIndex() *index {
	return &index{
		byID:   make(map[int64]*entry),
		byPath: make(map[string]int64),
	}
}

// put inserts or replaces the entry for e.def.ID and returns the previous
// source path when the definition moved to a different file.
func (ix *index) put(e *entry) (previousPath string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if prev, ok := ix.byID[e.def.ID]; ok && prev.sourcePath != e.sourcePath {
		delete(ix.byPath, prev.sourcePath)
		previousPath = prev.sourcePath
	}
	// A file that changed its definition id leaves a stale id behind.
	if oldID, ok := ix.byPath[e.sourcePath]; ok && oldID != e.def.ID {
		delete(ix.byID, oldID)
	}
	ix.byID[e.def.ID] = e
	ix.byPath[e.sourcePath] = e.def.ID
	return previousPath
}

// remove deletes the entry for id, returning it if present.
func (ix *index) remove(id int64) (*entry, bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	e, ok := ix.byID[id]
	if !ok {
		return nil, false
	}
	delete(ix.byID, id)
	delete(ix.byPath, e.sourcePath)
	return e, true
}

// removeByPath deletes the entry backed by path, returning it if present.
func (ix *index) removeByPath(path string) (*entry, bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	id, ok := ix.byPath[path]
	if !ok {
		return nil, false
	}
	e := ix.byID[id]
	delete(ix.byID, id)
	delete(ix.byPath, path)
	return e, true
}

// replace swaps the whole index contents in one critical section. Used by
// full scans, which build the new entry set outside the lock.
func (ix *index) replace(entries []*entry) {
	byID := make(map[int64]*entry, len(entries))
	byPath := make(map[string]int64, len(entries))
	for _, e := range entries {
		byID[e.def.ID] = e
		byPath[e.sourcePath] = e.def.ID
	}

	ix.mu.Lock()
	ix.byID = byID
	ix.byPath = byPath
	ix.mu.Unlock()
}

// get returns a clone of the definition for id.
func (ix *index) get(id int64) (*service.Definition, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	e, ok := ix.byID[id]
	if !ok {
		return nil, false
	}
	return e.def.Clone(), true
}

// fingerprintFor returns the stored content fingerprint for a path, used
// by the watcher to discard no-op events.
func (ix *index) fingerprintFor(path string) (string, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	id, ok := ix.byPath[path]
	if !ok {
		return "", false
	}
	return ix.byID[id].fingerprint, true
}

// pathFor returns the source path currently backing id.
func (ix *index) pathFor(id int64) (string, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	e, ok := ix.byID[id]
	if !ok {
		return "", false
	}
	return e.sourcePath, true
}

// idFor returns the id currently backed by path.
func (ix *index) idFor(path string) (int64, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	id, ok := ix.byPath[path]
	return id, ok
}

// match returns a clone of the best definition whose pattern matches the
// service identifier: lowest evaluation order wins, ties broken by id.
func (ix *index) match(serviceID string) (*service.Definition, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	var best *entry
	for _, e := range ix.byID {
		if !e.matcher.Match(serviceID) {
			continue
		}
		if best == nil || service.Less(e.def, best.def) {
			best = e
		}
	}
	if best == nil {
		return nil, false
	}
	return best.def.Clone(), true
}

// all returns clones of every definition, ordered by id.
func (ix *index) all() []*service.Definition {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	out := make([]*service.Definition, 0, len(ix.byID))
	for _, e := range ix.byID {
		out = append(out, e.def.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// size returns the number of indexed definitions.
func (ix *index) size() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.byID)
}
