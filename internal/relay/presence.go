// Package relay maintains the presence directory, the single source of truth
// for which users are currently online and through which session.
package relay

import (
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type presenceEntry struct {
	sessionID   string
	connectedAt time.Time
}

// Presence maps a user id to its single current session. A later Declare for
// the same user replaces the previous entry outright; the directory never
// checks whether the superseded connection is still alive.
type Presence struct {
	mu      sync.RWMutex
	entries map[string]presenceEntry
}

// NewPresence creates an empty presence directory.
func NewPresence() *Presence {
	return &Presence{
		entries: make(map[string]presenceEntry),
	}
}

// Declare upserts the presence entry for userID, last writer wins. It reports
// whether a previous session was replaced.
func (p *Presence) Declare(userID, sessionID string) bool {
	p.mu.Lock()
	prev, existed := p.entries[userID]
	p.entries[userID] = presenceEntry{
		sessionID:   sessionID,
		connectedAt: time.Now(),
	}
	p.mu.Unlock()

	replaced := existed && prev.sessionID != sessionID
	if replaced {
		logrus.WithFields(logrus.Fields{
			"user_id":      userID,
			"session_id":   sessionID,
			"replaced_sid": prev.sessionID,
		}).Info("Presence entry replaced by newer session")
	}
	return replaced
}

// Retire removes the entry for userID only if sessionID still owns it. A close
// event from a superseded connection arriving late must not retire the newer
// session's entry.
func (p *Presence) Retire(userID, sessionID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.entries[userID]
	if !ok || entry.sessionID != sessionID {
		return false
	}
	delete(p.entries, userID)
	return true
}

// SessionOf returns the session id currently bound to userID, if any.
func (p *Presence) SessionOf(userID string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	entry, ok := p.entries[userID]
	return entry.sessionID, ok
}

// Snapshot returns the current online user ids, sorted for stable output.
func (p *Presence) Snapshot() []string {
	p.mu.RLock()
	users := make([]string, 0, len(p.entries))
	for userID := range p.entries {
		users = append(users, userID)
	}
	p.mu.RUnlock()

	sort.Strings(users)
	return users
}

// Count returns the number of online users.
func (p *Presence) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries)
}
