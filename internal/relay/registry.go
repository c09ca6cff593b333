package relay

import "sync"

// Registry maps identities to their live connection and connection IDs back
// to identities. The two tables are kept mutually inverse: every mutation
// happens under one lock, so a Lookup never observes a half-applied change.
type Registry struct {
	mu         sync.RWMutex
	byIdentity map[string]Conn
	byConn     map[string]string
}

func NewRegistry() *Registry {
	return &Registry{
		byIdentity: make(map[string]Conn),
		byConn:     make(map[string]string),
	}
}

// RegisterResult describes what a Register call displaced.
type RegisterResult struct {
	// SupersededConnID is the connection that previously owned the identity,
	// if it was a different connection. That connection is not closed.
	SupersededConnID string
	// PreviousIdentity is the identity this connection was registered under
	// before, if it differs from the new one.
	PreviousIdentity string
}

// Register binds identity to conn. A later registration of the same identity
// wins; the earlier connection simply stops being addressable.
func (r *Registry) Register(identity string, conn Conn) (RegisterResult, error) {
	if identity == "" {
		return RegisterResult{}, ErrEmptyIdentity
	}
	connID := conn.ID()

	r.mu.Lock()
	defer r.mu.Unlock()

	var res RegisterResult
	if old, ok := r.byIdentity[identity]; ok && old.ID() != connID {
		delete(r.byConn, old.ID())
		res.SupersededConnID = old.ID()
	}
	if prev, ok := r.byConn[connID]; ok && prev != identity {
		delete(r.byIdentity, prev)
		res.PreviousIdentity = prev
	}

	r.byIdentity[identity] = conn
	r.byConn[connID] = identity
	return res, nil
}

func (r *Registry) Lookup(identity string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.byIdentity[identity]
	return conn, ok
}

// Unregister removes whatever identity currently owns connID. It is
// idempotent: unknown or already-superseded connections return ok=false.
func (r *Registry) Unregister(connID string) (identity string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	identity, ok = r.byConn[connID]
	if !ok {
		return "", false
	}
	delete(r.byConn, connID)
	if conn, present := r.byIdentity[identity]; present && conn.ID() == connID {
		delete(r.byIdentity, identity)
	}
	return identity, true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byIdentity)
}

// Snapshot returns a copy of the identity -> connection ID table.
func (r *Registry) Snapshot() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(r.byIdentity))
	for identity, conn := range r.byIdentity {
		out[identity] = conn.ID()
	}
	return out
}
