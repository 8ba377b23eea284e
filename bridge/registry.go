package bridge

import "sync"

// Registry is the collection of connection handles currently eligible for
// event dispatch. Entries are identified by handle pointer; Add is
// membership-checked so a reopen never duplicates an entry, and Remove is
// idempotent so retirement may race a user-initiated close without harm.
type Registry struct {
	mu    sync.Mutex
	conns []*Conn
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Add inserts the handle unless it is already present.
func (r *Registry) Add(conn *Conn) {
	if conn == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.conns {
		if existing == conn {
			return
		}
	}
	r.conns = append(r.conns, conn)
}

// Remove retires the handle. Removing an absent handle is a no-op.
func (r *Registry) Remove(conn *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.conns {
		if existing == conn {
			r.conns = append(r.conns[:i], r.conns[i+1:]...)
			return
		}
	}
}

// Snapshot returns the current entries in insertion order.
func (r *Registry) Snapshot() []*Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Conn, len(r.conns))
	copy(out, r.conns)
	return out
}

// Len reports the number of registered handles.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}
