// Package preview keeps uploaded receipt images addressable while a review
// session shows them, and releases them when the session no longer does.
package preview

import (
	"sync"

	"github.com/google/uuid"

	"gagyebu/internal/core"
)

// PathPrefix is where the HTTP layer serves preview bytes.
const PathPrefix = "/api/v1/previews/"

type entry struct {
	contentType string
	data        []byte
}

// Store holds preview bytes for every live handle.
type Store struct {
	mu      sync.RWMutex
	entries map[string]entry
}

func NewStore() *Store {
	return &Store{entries: make(map[string]entry)}
}

// Handle owns one preview. Release it when the file leaves the session.
type Handle struct {
	id    string
	store *Store
	once  sync.Once
}

// Acquire registers the file's bytes and returns a handle for them.
func (s *Store) Acquire(file core.ReceiptFile) *Handle {
	id := uuid.NewString()
	ct := file.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	s.mu.Lock()
	s.entries[id] = entry{contentType: ct, data: file.Data}
	s.mu.Unlock()
	return &Handle{id: id, store: s}
}

// Get returns the preview bytes and content type for an id.
func (s *Store) Get(id string) ([]byte, string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, "", false
	}
	return e.data, e.contentType, true
}

// Len reports the number of live previews.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (h *Handle) ID() string { return h.id }

func (h *Handle) URI() string { return PathPrefix + h.id }

// Release drops the preview. Safe to call more than once.
func (h *Handle) Release() {
	h.once.Do(func() {
		h.store.mu.Lock()
		delete(h.store.entries, h.id)
		h.store.mu.Unlock()
	})
}
