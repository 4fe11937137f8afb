// Package realtime tracks live push connections per user and fans events out
// to them. All state is in memory and starts empty on every process start.
package realtime

import (
	"sync"

	"github.com/google/uuid"

	"github.com/moving-hub/moving-hub/internal/domain/notification"
)

// Registry maps users to their live connections.
type Registry struct {
	mu    sync.RWMutex
	conns map[uuid.UUID]map[string]notification.Connection
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[uuid.UUID]map[string]notification.Connection),
	}
}

func (r *Registry) Register(userID uuid.UUID, conn notification.Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.conns[userID]
	if !ok {
		set = make(map[string]notification.Connection)
		r.conns[userID] = set
	}
	set[conn.ID()] = conn
}

// Unregister removes and closes conn. It reports whether conn was registered,
// so only one of several concurrent callers closes it.
func (r *Registry) Unregister(userID uuid.UUID, conn notification.Connection) bool {
	r.mu.Lock()
	set := r.conns[userID]
	_, ok := set[conn.ID()]
	if ok {
		delete(set, conn.ID())
		if len(set) == 0 {
			delete(r.conns, userID)
		}
	}
	r.mu.Unlock()

	if ok {
		conn.Close()
	}
	return ok
}

// ConnectionsFor returns a snapshot of userID's live connections.
func (r *Registry) ConnectionsFor(userID uuid.UUID) []notification.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.conns[userID]
	out := make([]notification.Connection, 0, len(set))
	for _, c := range set {
		out = append(out, c)
	}
	return out
}

// Count returns the number of live connections across all users.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, set := range r.conns {
		n += len(set)
	}
	return n
}

// Stop closes every connection and empties the registry.
func (r *Registry) Stop() {
	r.mu.Lock()
	all := r.conns
	r.conns = make(map[uuid.UUID]map[string]notification.Connection)
	r.mu.Unlock()

	for _, set := range all {
		for _, c := range set {
			c.Close()
		}
	}
}
