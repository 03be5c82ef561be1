// Package session holds uploaded calendars between requests. The store is an
// explicit dependency passed into handlers by reference; expiration is a
// field checked by the store itself, never ambient global state.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	appLog "meetsched/internal/log"
	"meetsched/internal/model"
)

// DefaultTTL is how long an uploaded calendar stays retrievable.
const DefaultTTL = 30 * time.Minute

type entry struct {
	calendar  model.ParticipantCalendar
	expiresAt time.Time
}

// Store is an in-memory TTL store of participant calendars keyed by session
// id. Safe for concurrent use.
type Store struct {
	mu  sync.RWMutex
	ttl time.Duration
	now func() time.Time

	entries map[string]entry
}

// NewStore creates a store with the given TTL; ttl <= 0 uses DefaultTTL.
func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]entry),
	}
}

// Put stores a calendar and returns its session id.
func (s *Store) Put(cal model.ParticipantCalendar) string {
	id := uuid.NewString()
	s.mu.Lock()
	s.entries[id] = entry{calendar: cal, expiresAt: s.now().Add(s.ttl)}
	s.mu.Unlock()
	return id
}

// Get returns the calendar for id. Expired entries are treated as absent;
// the read itself checks expiry so a missed sweep never resurrects data.
func (s *Store) Get(id string) (model.ParticipantCalendar, bool) {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok || s.now().After(e.expiresAt) {
		return model.ParticipantCalendar{}, false
	}
	return e.calendar, true
}

// Delete removes the entry for id, if present.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	delete(s.entries, id)
	s.mu.Unlock()
}

// Len reports the number of stored entries, including not-yet-swept expired
// ones.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Sweep drops every expired entry and returns how many were removed. The
// serve loop runs this on a cron schedule.
func (s *Store) Sweep() int {
	now := s.now()
	s.mu.Lock()
	removed := 0
	for id, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, id)
			removed++
		}
	}
	s.mu.Unlock()

	if removed > 0 {
		appLog.Info("session sweep completed", "removed", removed)
	}
	return removed
}
