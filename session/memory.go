package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/creastat/chatguard"
)

type memorySession struct {
	record   Record
	messages []chatguard.Message
}

// inMemoryStore implements Store using an in-memory map.
type inMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*memorySession
	now      func() time.Time
}

func newInMemoryStore(now func() time.Time) *inMemoryStore {
	return &inMemoryStore{
		sessions: make(map[string]*memorySession),
		now:      now,
	}
}

func (s *memorySession) snapshot() *Record {
	rec := s.record
	rec.MessageCount = len(s.messages)
	return &rec
}

// UpsertSession implements Store.
func (s *inMemoryStore) UpsertSession(ctx context.Context, id, subject string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sessions == nil {
		return nil, chatguard.ErrStoreClosed
	}

	now := s.now()
	sess, exists := s.sessions[id]
	if !exists {
		sess = &memorySession{record: Record{
			ID:           id,
			Subject:      subject,
			CreatedAt:    now,
			LastActivity: now,
		}}
		s.sessions[id] = sess
		return sess.snapshot(), nil
	}

	sess.record.LastActivity = laterOf(sess.record.LastActivity, now)
	return sess.snapshot(), nil
}

// GetSession implements Store.
func (s *inMemoryStore) GetSession(ctx context.Context, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, exists := s.sessions[id]
	if !exists {
		return nil, nil
	}
	return sess.snapshot(), nil
}

// ListSessions implements Store.
func (s *inMemoryStore) ListSessions(ctx context.Context, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]Record, 0, len(s.sessions))
	for _, sess := range s.sessions {
		records = append(records, *sess.snapshot())
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].LastActivity.After(records[j].LastActivity)
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// DeleteSession implements Store.
func (s *inMemoryStore) DeleteSession(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[id]; !exists {
		return false, nil
	}
	delete(s.sessions, id)
	return true, nil
}

// CountSessions implements Store.
func (s *inMemoryStore) CountSessions(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.sessions), nil
}

// AddMessage implements Store.
func (s *inMemoryStore) AddMessage(ctx context.Context, id string, msg chatguard.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, exists := s.sessions[id]
	if !exists {
		return fmt.Errorf("%w: %s", chatguard.ErrNotFound, id)
	}

	now := s.now()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = now
	}
	sess.messages = append(sess.messages, msg)
	sess.record.LastActivity = laterOf(sess.record.LastActivity, now)
	return nil
}

// ListMessages implements Store.
func (s *inMemoryStore) ListMessages(ctx context.Context, id string, limit int) ([]chatguard.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, exists := s.sessions[id]
	if !exists {
		return []chatguard.Message{}, nil
	}

	msgs := sess.messages
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]chatguard.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

// CountMessages implements Store.
func (s *inMemoryStore) CountMessages(ctx context.Context, id string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, exists := s.sessions[id]
	if !exists {
		return 0, nil
	}
	return len(sess.messages), nil
}

// TrimMessages implements Store.
func (s *inMemoryStore) TrimMessages(ctx context.Context, id string, keep int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, exists := s.sessions[id]
	if !exists {
		return 0, nil
	}

	before := len(sess.messages)
	sess.messages = chatguard.TrimHistory(sess.messages, keep)
	return before - len(sess.messages), nil
}

// DeleteInactiveSessions implements Store.
func (s *inMemoryStore) DeleteInactiveSessions(ctx context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for id, sess := range s.sessions {
		if sess.record.LastActivity.Before(before) {
			delete(s.sessions, id)
			deleted++
		}
	}
	return deleted, nil
}

// DeleteMessagesBefore implements Store.
func (s *inMemoryStore) DeleteMessagesBefore(ctx context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for _, sess := range s.sessions {
		kept := sess.messages[:0]
		for _, msg := range sess.messages {
			if msg.CreatedAt.Before(before) {
				deleted++
				continue
			}
			kept = append(kept, msg)
		}
		sess.messages = kept
	}
	return deleted, nil
}

// Close implements Store.
func (s *inMemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions = nil
	return nil
}

var _ Store = (*inMemoryStore)(nil)
