package stream

import (
	"log/slog"
	"sync"
)

// Conn is the minimal transport capability the subsystem depends on. Any
// concrete socket implementation is adapted to these three operations at the
// boundary.
type Conn interface {
	// Send queues a serialized message for delivery. Best effort; an error
	// means the message was not queued.
	Send(payload []byte) error
	// Close closes the transport with the given close code and reason.
	// Safe to call more than once.
	Close(code int, reason string) error
	// IsOpen reports whether the transport can still deliver messages.
	IsOpen() bool
}

// Close code sent to a connection that was replaced by a newer one for the
// same subscriber.
const closeCodeSuperseded = 4003

type registryEntry struct {
	conn       Conn
	subscribed bool
}

// Registry maps subscriber identity to at most one live connection. A second
// connection for the same identity synchronously closes and replaces the
// first. All operations are best-effort and non-throwing: a missing or stale
// target is a silent no-op, never a fault, because connections come and go
// asynchronously underneath the broadcaster.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*registryEntry
	log     *slog.Logger
}

func NewRegistry(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		entries: make(map[string]*registryEntry),
		log:     log,
	}
}

// Add stores conn for identity, closing any different connection already
// held for that identity. The new entry always starts unsubscribed.
func (r *Registry) Add(identity string, conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.entries[identity]; ok && prev.conn != conn {
		if prev.conn.IsOpen() {
			// Best effort; may race a socket that is already closing.
			_ = prev.conn.Close(closeCodeSuperseded, "superseded by newer connection")
		}
		r.log.Debug("connection superseded", "subscriber", identity)
	}
	r.entries[identity] = &registryEntry{conn: conn}
}

// Remove deletes the entry for identity. If expected is non-nil and does not
// match the stored connection the call is ignored: a just-superseded socket's
// delayed close callback must not delete the new, live entry.
func (r *Registry) Remove(identity string, expected Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[identity]
	if !ok {
		return
	}
	if expected != nil && entry.conn != expected {
		return
	}
	delete(r.entries, identity)
}

// MarkSubscribed flips the subscribed flag for identity, subject to the same
// staleness guard as Remove.
func (r *Registry) MarkSubscribed(identity string, expected Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[identity]
	if !ok {
		return
	}
	if expected != nil && entry.conn != expected {
		return
	}
	entry.subscribed = true
}

// SendTo delivers payload to identity's connection if it is open. Silently
// drops otherwise; no retry, no queuing.
func (r *Registry) SendTo(identity string, payload []byte) {
	r.mu.RLock()
	entry, ok := r.entries[identity]
	r.mu.RUnlock()

	if !ok || !entry.conn.IsOpen() {
		return
	}
	if err := entry.conn.Send(payload); err != nil {
		r.log.Debug("send failed", "subscriber", identity, "error", err)
	}
}

// BroadcastSubscribed delivers payload to every subscribed entry with an
// open transport.
func (r *Registry) BroadcastSubscribed(payload []byte) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for identity, entry := range r.entries {
		if !entry.subscribed || !entry.conn.IsOpen() {
			continue
		}
		if err := entry.conn.Send(payload); err != nil {
			r.log.Debug("broadcast send failed", "subscriber", identity, "error", err)
		}
	}
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// SubscribedCount returns the number of subscribed connections.
func (r *Registry) SubscribedCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, entry := range r.entries {
		if entry.subscribed {
			n++
		}
	}
	return n
}

// get returns the stored connection for identity, for intra-package use.
func (r *Registry) get(identity string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[identity]
	if !ok {
		return nil, false
	}
	return entry.conn, true
}
