package session

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/crystaldolphin/toolstream/internal/schema"
)

// Session holds one conversation's messages. Message 0 is always the system
// prompt and is never removed.
type Session struct {
	Key       string
	CreatedAt time.Time

	// turn serializes whole chat turns on this session.
	turn *semaphore.Weighted

	mu        sync.Mutex
	messages  schema.Messages
	updatedAt time.Time
}

func newSession(key, systemPrompt string) *Session {
	now := time.Now()
	return &Session{
		Key:       key,
		CreatedAt: now,
		turn:      semaphore.NewWeighted(1),
		messages:  schema.NewMessages(schema.NewSystemMessage(systemPrompt)),
		updatedAt: now,
	}
}

// Lock acquires the session's turn lock, waiting until any other turn on the
// same session has finished or ctx is done.
func (s *Session) Lock(ctx context.Context) error {
	return s.turn.Acquire(ctx, 1)
}

// Unlock releases the turn lock taken by Lock.
func (s *Session) Unlock() { s.turn.Release(1) }

// Append adds msgs to the end of the history.
func (s *Session) Append(msgs ...schema.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range msgs {
		s.messages.Add(m)
	}
	s.updatedAt = time.Now()
}

// History returns a snapshot of the full message list.
func (s *Session) History() schema.Messages {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messages.Clone()
}

// Len returns the number of messages in the session.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messages.Len()
}

// UpdatedAt returns the time of the last mutation.
func (s *Session) UpdatedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updatedAt
}

// Truncate drops every message at index n and beyond. It is used to roll a
// session back to its length before an aborted turn. The system message is
// always kept.
func (s *Session) Truncate(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n < 1 {
		n = 1
	}
	if n >= len(s.messages.Messages) {
		return
	}
	clear(s.messages.Messages[n:])
	s.messages.Messages = s.messages.Messages[:n]
	s.updatedAt = time.Now()
}

// Trim keeps the history within maxMessages by dropping the oldest messages
// after the system prompt. Dropping continues until the first retained
// message is a user message, so the model never sees a reply without its
// prompt. It returns the number of messages removed.
func (s *Session) Trim(maxMessages int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := s.messages.Messages
	if maxMessages <= 1 || len(msgs) <= maxMessages {
		return 0
	}

	cut := 1 + len(msgs) - maxMessages
	for cut < len(msgs) && msgs[cut].Role != schema.RoleUser {
		cut++
	}

	kept := make([]schema.Message, 0, 1+len(msgs)-cut)
	kept = append(kept, msgs[0])
	kept = append(kept, msgs[cut:]...)
	s.messages.Messages = kept
	s.updatedAt = time.Now()
	return cut - 1
}
