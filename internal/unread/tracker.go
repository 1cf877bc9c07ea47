// Package unread derives per-session unread counts from roster snapshots,
// without server support.
package unread

import (
	"sync"

	"support-console/internal/model"
)

// Tracker remembers the last observed message count per session and
// accumulates the growth of every session that is not currently open.
type Tracker struct {
	mu       sync.RWMutex
	lastSeen map[string]int
	unread   map[string]int
	open     string
}

func NewTracker() *Tracker {
	return &Tracker{
		lastSeen: make(map[string]int),
		unread:   make(map[string]int),
	}
}

// Observe folds one roster update into the counters. A session seen for the
// first time only sets its baseline. A decrease is treated as a stale read:
// nothing is subtracted but the baseline follows it down.
func (t *Tracker) Observe(sessions []model.Session) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, s := range sessions {
		prev, seen := t.lastSeen[s.ID]
		t.lastSeen[s.ID] = s.MessageCount
		if !seen || s.ID == t.open {
			continue
		}
		if delta := s.MessageCount - prev; delta > 0 {
			t.unread[s.ID] += delta
		}
	}
}

// Open marks id as the session on screen and clears its counter at once.
func (t *Tracker) Open(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.open = id
	delete(t.unread, id)
}

// Close forgets which session is open. Its counter starts from zero again.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.open = ""
}

// SeenOpen raises the baseline of the open session to count, for messages
// delivered over its channel ahead of the next poll.
func (t *Tracker) SeenOpen(id string, count int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id != t.open {
		return
	}
	if count > t.lastSeen[id] {
		t.lastSeen[id] = count
	}
}

func (t *Tracker) OpenID() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.open
}

func (t *Tracker) Count(id string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.unread[id]
}

// Counts returns a copy of every non-zero counter.
func (t *Tracker) Counts() map[string]int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]int, len(t.unread))
	for id, n := range t.unread {
		out[id] = n
	}
	return out
}

func (t *Tracker) Total() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	total := 0
	for _, n := range t.unread {
		total += n
	}
	return total
}
