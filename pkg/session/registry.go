package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// ErrDraining is returned when a new session is requested while draining.
var ErrDraining = errors.New("session registry is draining")

// Factory builds the Conn for a newly seen session id.
type Factory func(id, deviceID string) *Conn

type Registry struct {
	sessions sync.Map
	count    atomic.Int64
	factory  Factory
	draining atomic.Bool

	// refs counts live connections per session id.
	mu   sync.Mutex
	refs map[string]int
}

func NewRegistry(factory Factory) *Registry {
	if factory == nil {
		factory = func(id, deviceID string) *Conn {
			return NewConn(id, Options{DeviceID: deviceID})
		}
	}
	return &Registry{factory: factory, refs: make(map[string]int)}
}

// NewID returns a fresh session id.
func NewID() string {
	return uuid.NewString()
}

// GetOrCreate returns the session for id, creating it when absent. An empty
// id allocates a new one. The bool reports whether the session was created.
func (r *Registry) GetOrCreate(id, deviceID string) (*Conn, bool) {
	if id == "" {
		id = NewID()
	}
	if v, ok := r.sessions.Load(id); ok {
		return v.(*Conn), false
	}
	conn := r.factory(id, deviceID)
	actual, loaded := r.sessions.LoadOrStore(id, conn)
	if loaded {
		return actual.(*Conn), false
	}
	r.count.Add(1)
	return conn, true
}

// Open is GetOrCreate for outer surfaces: while draining, existing sessions
// are still returned but new ones are refused with ErrDraining.
func (r *Registry) Open(id, deviceID string) (*Conn, bool, error) {
	if r.Draining() {
		if conn, ok := r.Get(id); ok {
			return conn, false, nil
		}
		return nil, false, ErrDraining
	}
	conn, created := r.GetOrCreate(id, deviceID)
	return conn, created, nil
}

// Attach opens the session for a live connection. The session stays
// registered until every attached connection has called Detach.
func (r *Registry) Attach(id, deviceID string) (*Conn, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, created, err := r.Open(id, deviceID)
	if err != nil {
		return nil, false, err
	}
	r.refs[conn.ID]++
	return conn, created, nil
}

// Detach releases one attachment and removes the session with the last
// one. It reports whether the session was removed.
func (r *Registry) Detach(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := r.refs[id]
	if n <= 0 {
		return false
	}
	if n > 1 {
		r.refs[id] = n - 1
		return false
	}
	delete(r.refs, id)
	r.remove(id)
	return true
}

// Attached returns the number of sessions held by live connections.
func (r *Registry) Attached() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.refs)
}

func (r *Registry) Get(id string) (*Conn, bool) {
	if v, ok := r.sessions.Load(id); ok {
		return v.(*Conn), true
	}
	return nil, false
}

func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.refs, id)
	r.remove(id)
}

func (r *Registry) remove(id string) {
	if _, ok := r.sessions.LoadAndDelete(id); ok {
		r.count.Add(-1)
	}
}

func (r *Registry) CloseAll() {
	r.sessions.Range(func(key, value any) bool {
		id, ok := key.(string)
		if ok {
			r.Remove(id)
		}
		return true
	})
}

func (r *Registry) Count() int64 {
	return r.count.Load()
}

func (r *Registry) SetDraining(v bool) {
	r.draining.Store(v)
}

func (r *Registry) Draining() bool {
	return r.draining.Load()
}

// WaitForEmpty waits until no session is registered.
func (r *Registry) WaitForEmpty(ctx context.Context, interval time.Duration) bool {
	return r.waitFor(ctx, interval, func() bool { return r.Count() == 0 })
}

// WaitForDetached waits until no live connection holds a session. Sessions
// without a connection (HTTP, CLI) do not hold it up.
func (r *Registry) WaitForDetached(ctx context.Context, interval time.Duration) bool {
	return r.waitFor(ctx, interval, func() bool { return r.Attached() == 0 })
}

func (r *Registry) waitFor(ctx context.Context, interval time.Duration, done func() bool) bool {
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if done() {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}
