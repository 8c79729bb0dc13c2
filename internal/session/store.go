// Package session keeps per-conversation message histories in memory.
//
// Sessions are created lazily on first reference and held in an LRU cache
// capped at a configured number of keys; the least recently used session is
// evicted when the cap is reached. Histories are not persisted.
package session

import (
	"errors"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	DefaultMaxSessions = 10000
	DefaultMaxMessages = 200
)

// ErrEmptyKey is returned for an empty session key.
var ErrEmptyKey = errors.New("session key must not be empty")

// Options configures a Store.
type Options struct {
	SystemPrompt string
	MaxSessions  int
	// MaxMessages caps each history after a completed turn. Zero disables it.
	MaxMessages int
}

// Store maps session keys to sessions. It is safe for concurrent use.
type Store struct {
	systemPrompt string
	maxMessages  int
	cache        *lru.Cache[string, *Session]
}

// NewStore creates a Store.
func NewStore(opts Options) (*Store, error) {
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = DefaultMaxSessions
	}
	cache, err := lru.NewWithEvict(opts.MaxSessions, func(key string, s *Session) {
		slog.Info("session evicted", "key", key, "messages", s.Len(), "idle", time.Since(s.UpdatedAt()).Round(time.Second))
	})
	if err != nil {
		return nil, err
	}
	return &Store{
		systemPrompt: opts.SystemPrompt,
		maxMessages:  opts.MaxMessages,
		cache:        cache,
	}, nil
}

// GetOrCreate returns the session for key, creating it with the system
// prompt when the key is unseen. Exactly one Session exists per cached key.
func (st *Store) GetOrCreate(key string) (*Session, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	if s, ok := st.cache.Get(key); ok {
		return s, nil
	}
	s := newSession(key, st.systemPrompt)
	if prev, found, _ := st.cache.PeekOrAdd(key, s); found {
		st.cache.Get(key)
		return prev, nil
	}
	slog.Debug("session created", "key", key)
	return s, nil
}

// Get returns the session for key without creating it.
func (st *Store) Get(key string) (*Session, bool) {
	return st.cache.Get(key)
}

// Len returns the number of cached sessions.
func (st *Store) Len() int { return st.cache.Len() }

// Keys returns cached keys from oldest to newest use.
func (st *Store) Keys() []string { return st.cache.Keys() }

// Enforce applies the message cap to s.
func (st *Store) Enforce(s *Session) {
	if st.maxMessages <= 0 {
		return
	}
	if dropped := s.Trim(st.maxMessages); dropped > 0 {
		slog.Debug("session trimmed", "key", s.Key, "dropped", dropped)
	}
}

// SystemPrompt returns the prompt new sessions start with.
func (st *Store) SystemPrompt() string { return st.systemPrompt }
