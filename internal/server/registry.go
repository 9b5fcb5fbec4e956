package server

import (
	"sync"

	"github.com/google/uuid"

	"github.com/vcsawant/bughouse-sub000/internal/game"
)

// Entry pairs a live session with its observer hub.
type Entry struct {
	Session *game.Session
	Hub     *Hub
}

// Registry is the process-wide map of live sessions. It is owned by the
// transport layer; the game package itself holds no global state.
type Registry struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]*Entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[uuid.UUID]*Entry)}
}

// Add registers a session under its id.
func (r *Registry) Add(e *Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[e.Session.ID()] = e
}

// Get looks a session up by id.
func (r *Registry) Get(id uuid.UUID) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e, ok
}

// Remove drops a session from the registry. The caller is responsible for
// closing the session itself.
func (r *Registry) Remove(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// CloseAll tears down every live session; used on shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	entries := make([]*Entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.entries = make(map[uuid.UUID]*Entry)
	r.mu.Unlock()

	for _, e := range entries {
		e.Session.Close()
		e.Hub.Close()
	}
}
