// Package sessionstore holds the in-memory, TTL-and-capacity-bounded
// conversation store (spec §4.D). It is grounded on
// original_source/llama-agent/src/session.rs for the expiry/capacity
// semantics and on the teacher's RWMutex-guarded-map idiom used throughout
// its domain layer (e.g. internal/domain/entity usage across the gateway).
package sessionstore

import (
	"sync"
	"time"

	"github.com/localagent/runtime/internal/domain/entity"
	pkgerrors "github.com/localagent/runtime/pkg/errors"
)

// Config bounds the store's size and entry lifetime.
type Config struct {
	MaxSessions    int
	SessionTimeout time.Duration
}

// DefaultConfig matches spec §6's documented defaults.
func DefaultConfig() Config {
	return Config{MaxSessions: 1000, SessionTimeout: time.Hour}
}

// Stats summarizes the store's current contents.
type Stats struct {
	Total         int
	Active        int
	Expired       int
	TotalMessages int
}

// Store is a map[SessionID]*Session behind a readers-writer lock. Expiry is
// computed on read; eviction is opportunistic on CleanupExpired and on
// Create when at capacity (no silent LRU — a caller at capacity sees
// LimitExceeded, per spec §4.D).
type Store struct {
	mu       sync.RWMutex
	sessions map[entity.SessionID]*entity.Session
	cfg      Config
	now      func() time.Time
}

// New builds an empty store.
func New(cfg Config) *Store {
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = DefaultConfig().MaxSessions
	}
	if cfg.SessionTimeout <= 0 {
		cfg.SessionTimeout = DefaultConfig().SessionTimeout
	}
	return &Store{
		sessions: make(map[entity.SessionID]*entity.Session),
		cfg:      cfg,
		now:      time.Now,
	}
}

// Create mints a new empty session. At MaxSessions it first removes expired
// sessions, and fails with LimitExceeded if the store is still full.
func (s *Store) Create() (*entity.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.sessions) >= s.cfg.MaxSessions {
		for id, existing := range s.sessions {
			if s.isExpired(existing) {
				delete(s.sessions, id)
			}
		}
	}
	if len(s.sessions) >= s.cfg.MaxSessions {
		return nil, pkgerrors.NewSessionLimitExceededError("session store is at capacity")
	}
	session := entity.NewSession()
	s.sessions[session.ID] = session
	return session.Clone(), nil
}

// Get returns a cloned snapshot of the session, or (nil, false) if it does
// not exist or has expired (updated_at older than SessionTimeout).
func (s *Store) Get(id entity.SessionID) (*entity.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	if s.isExpired(session) {
		return nil, false
	}
	return session.Clone(), true
}

func (s *Store) isExpired(session *entity.Session) bool {
	return s.now().Sub(session.UpdatedAt) >= s.cfg.SessionTimeout
}

// Update replaces the stored session wholesale, failing NotFound if the id
// is unknown. UpdatedAt is set to now regardless of the caller's value.
func (s *Store) Update(session *entity.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[session.ID]; !ok {
		return pkgerrors.NewSessionNotFoundError("session not found: " + string(session.ID))
	}
	clone := session.Clone()
	clone.UpdatedAt = s.now()
	s.sessions[session.ID] = clone
	return nil
}

// AddMessage appends msg to the session's history and touches UpdatedAt.
func (s *Store) AddMessage(id entity.SessionID, msg entity.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return pkgerrors.NewSessionNotFoundError("session not found: " + string(id))
	}
	session.AddMessage(msg)
	return nil
}

// CleanupExpired removes every session whose UpdatedAt is older than
// SessionTimeout. Idempotent: a second call with no new sessions removes
// nothing further.
func (s *Store) CleanupExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, session := range s.sessions {
		if s.isExpired(session) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// Stats reports store-wide counts.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{Total: len(s.sessions)}
	for _, session := range s.sessions {
		if s.isExpired(session) {
			stats.Expired++
		} else {
			stats.Active++
		}
		stats.TotalMessages += len(session.Messages)
	}
	return stats
}
