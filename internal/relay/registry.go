// Package relay tracks live transport sessions in the connection registry,
// the owner of every Client for the duration of its lifetime.
package relay

import (
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Registry is the single owner of all live connections, keyed by session id.
// Presence and room state reference connections through session ids only and
// never hold a Client beyond a single delivery.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

// NewRegistry creates an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[string]*Client),
	}
}

func newSessionID() string {
	return uuid.NewString()
}

// Add admits a connection into the registry.
func (r *Registry) Add(c *Client) {
	r.mu.Lock()
	c.closed = false
	r.clients[c.sessionID] = c
	total := len(r.clients)
	r.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"session_id": c.sessionID,
		"remote":     c.addr,
		"total":      total,
	}).Info("Connection registered")
}

// Remove marks the connection terminated and releases registry memory.
// It reports whether the connection was still registered; the caller closes
// the send channel exactly once based on that.
func (r *Registry) Remove(sessionID string) (*Client, bool) {
	r.mu.Lock()
	c, ok := r.clients[sessionID]
	if ok {
		delete(r.clients, sessionID)
		c.closed = true
	}
	total := len(r.clients)
	r.mu.Unlock()

	if ok {
		logrus.WithFields(logrus.Fields{
			"session_id": sessionID,
			"total":      total,
		}).Info("Connection unregistered")
	}
	return c, ok
}

// Get returns the live connection for a session id, if any.
func (r *Registry) Get(sessionID string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[sessionID]
	return c, ok
}

// All returns a point-in-time snapshot of every registered connection.
func (r *Registry) All() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	clients := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		clients = append(clients, c)
	}
	return clients
}

// Len returns the number of live connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Send queues a frame on the connection's outbound channel without blocking.
// It returns false if the session is no longer registered, already closed, or
// its queue is full; a slow or dead peer never stalls delivery to others.
func (r *Registry) Send(c *Client, frame []byte) bool {
	defer func() {
		if rec := recover(); rec != nil {
			logrus.WithField("session_id", c.sessionID).Warnf("Recovered from panic in Send: %v", rec)
		}
	}()

	// Hold the lock for the whole attempt so teardown cannot close the send
	// channel mid-send.
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.clients[c.sessionID]; !ok || c.closed {
		return false
	}

	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// BindIdentity associates a user id with a connection. A connection keeps its
// first identity for life: rebinding to the same user id is a no-op, rebinding
// to a different one is ignored so a misbehaving client cannot corrupt the
// presence directory.
func (r *Registry) BindIdentity(c *Client, userID string) bool {
	current := c.UserID()
	if current == userID {
		return true
	}
	if current != "" {
		logrus.WithFields(logrus.Fields{
			"session_id": c.sessionID,
			"bound_user": current,
			"user_id":    userID,
		}).Warn("Ignoring identity rebind on already-identified connection")
		return false
	}
	c.setUserID(userID)
	return true
}
