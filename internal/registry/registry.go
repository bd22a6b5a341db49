package registry

import "sync"

// Connection is the capability surface the registry needs from a live
// transport handle.
type Connection interface {
	SendJSON(v any) error
	Close(code int, reason string)
}

// Registry maps an authenticated user id to their single live
// connection. The newest registration always wins.
type Registry struct {
	mu    sync.RWMutex
	conns map[int64]Connection
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{conns: make(map[int64]Connection)}
}

// Register stores conn as the user's live connection and returns the
// connection it displaced, if any. The caller is responsible for
// closing the displaced connection.
func (r *Registry) Register(userID int64, conn Connection) Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.conns[userID]
	r.conns[userID] = conn
	if prev == conn {
		return nil
	}
	return prev
}

// Unregister removes the user's entry only if it still refers to conn.
// A teardown racing a fresh registration must never evict the newer
// connection.
func (r *Registry) Unregister(userID int64, conn Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conns[userID] == conn {
		delete(r.conns, userID)
	}
}

// Lookup returns the user's live connection, if one is registered.
func (r *Registry) Lookup(userID int64) (Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[userID]
	return conn, ok
}

// Len reports the number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
