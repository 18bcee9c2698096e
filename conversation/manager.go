// Package conversation owns session state: an in-memory shadow kept in
// front of an optional durable session.Store.
//
// Writes go to the durable store first (best effort) and then to the
// shadow. Reads go through one ordered strategy per operation. Durable
// failures are logged and never returned; the shadow keeps serving. The
// shadow is process local and may lag the durable store by whatever other
// processes wrote since this process loaded a session.
package conversation

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/creastat/chatguard"
	"github.com/creastat/chatguard/metrics"
	"github.com/creastat/chatguard/session"
)

// Session is a snapshot of a session's shadow.
type Session struct {
	ID           string              `json:"session_id"`
	Subject      string              `json:"subject"`
	Messages     []chatguard.Message `json:"messages"`
	Tokens       int                 `json:"tokens"`
	CreatedAt    time.Time           `json:"created_at"`
	LastActivity time.Time           `json:"last_activity"`
}

// APIMessage is the provider-facing form of a message.
type APIMessage struct {
	Role    chatguard.Role `json:"role"`
	Content string         `json:"content"`
}

// entry is the shadow of one session. mu serializes appends.
type entry struct {
	mu        sync.Mutex
	id        string
	subject   string
	createdAt time.Time
	messages  []chatguard.Message
	// unix nanos, readable without mu
	lastActivity atomic.Int64
}

func (e *entry) touch(at time.Time) {
	n := at.UnixNano()
	for {
		cur := e.lastActivity.Load()
		if n <= cur || e.lastActivity.CompareAndSwap(cur, n) {
			return
		}
	}
}

func (e *entry) lastActive() time.Time {
	return time.Unix(0, e.lastActivity.Load())
}

// snapshot must be called with mu held.
func (e *entry) snapshot() *Session {
	msgs := make([]chatguard.Message, len(e.messages))
	copy(msgs, e.messages)
	return &Session{
		ID:           e.id,
		Subject:      e.subject,
		Messages:     msgs,
		Tokens:       chatguard.HistoryTokens(msgs),
		CreatedAt:    e.createdAt,
		LastActivity: e.lastActive(),
	}
}

func (e *entry) record() session.Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	return session.Record{
		ID:           e.id,
		Subject:      e.subject,
		CreatedAt:    e.createdAt,
		LastActivity: e.lastActive(),
		MessageCount: len(e.messages),
	}
}

// Manager is the conversation store. It is safe for concurrent use.
type Manager struct {
	durable      session.Store
	maxMessages  int
	listLimit    int
	storeTimeout time.Duration
	log          zerolog.Logger
	metrics      *metrics.Metrics
	now          func() time.Time

	mu       sync.RWMutex
	sessions map[string]*entry
}

// New creates a Manager. A nil durable store runs the manager memory only.
func New(durable session.Store, opts ...Option) *Manager {
	m := &Manager{
		durable:      durable,
		maxMessages:  DefaultMaxMessages,
		listLimit:    DefaultListLimit,
		storeTimeout: DefaultStoreTimeout,
		log:          zerolog.Nop(),
		now:          time.Now,
		sessions:     make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// MaxMessages returns the per-session message cap.
func (m *Manager) MaxMessages() int {
	return m.maxMessages
}

func (m *Manager) lookup(id string) (*entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.sessions[id]
	return e, ok
}

func (m *Manager) entries() []*entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*entry, 0, len(m.sessions))
	for _, e := range m.sessions {
		out = append(out, e)
	}
	return out
}

// GetOrCreateSession upserts the durable record and makes sure a shadow
// exists, loading the retained history from the durable store when the
// shadow is cold. The returned snapshot's Messages is empty only for a
// session that has no history yet.
func (m *Manager) GetOrCreateSession(ctx context.Context, id, subject string) (*Session, error) {
	if id == "" {
		return nil, chatguard.ErrInvalidSessionID
	}

	if m.durable != nil {
		_ = m.observe(ctx, "upsert_session", id, func(ctx context.Context) error {
			_, err := m.durable.UpsertSession(ctx, id, subject)
			return err
		})
	}

	e, ok := m.lookup(id)
	if !ok {
		e = m.createEntry(ctx, id, subject)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.touch(m.now())
	return e.snapshot(), nil
}

func (m *Manager) createEntry(ctx context.Context, id, subject string) *entry {
	now := m.now()
	fresh := &entry{id: id, subject: subject, createdAt: now}
	fresh.touch(now)

	if m.durable != nil {
		_ = m.observe(ctx, "list_messages", id, func(ctx context.Context) error {
			msgs, err := m.loadHistory(ctx, id)
			if err != nil {
				return err
			}
			fresh.messages = msgs
			return nil
		})
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.sessions[id]; ok {
		return existing
	}
	m.sessions[id] = fresh
	return fresh
}

// loadHistory reads the full durable history and trims it locally. The
// durable store may hold more than the cap, and a limited read would drop
// the leading system message.
func (m *Manager) loadHistory(ctx context.Context, id string) ([]chatguard.Message, error) {
	msgs, err := m.durable.ListMessages(ctx, id, 0)
	if err != nil {
		return nil, err
	}
	return chatguard.TrimHistory(msgs, m.maxMessages), nil
}

// AddMessage appends a message to a session. It fails with ErrNotFound
// when the session has no shadow, and with ErrInvalidRole for a system
// message on a session that already has history. The message is written
// to the durable store first, which is then trimmed to the cap; the
// shadow is trimmed independently.
func (m *Manager) AddMessage(ctx context.Context, id string, role chatguard.Role, content string, metadata chatguard.Metadata) error {
	if !role.Valid() {
		return fmt.Errorf("%w: %q", chatguard.ErrInvalidRole, role)
	}

	e, ok := m.lookup(id)
	if !ok {
		return fmt.Errorf("%w: %s", chatguard.ErrNotFound, id)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if role == chatguard.RoleSystem && len(e.messages) > 0 {
		return fmt.Errorf("%w: system message must be the first in session %s", chatguard.ErrInvalidRole, id)
	}

	now := m.now()
	msg := chatguard.NewMessage(role, content, metadata, now)

	if m.durable != nil {
		m.persist(ctx, id, msg)
	}

	e.messages = chatguard.TrimHistory(append(e.messages, msg), m.maxMessages)
	e.touch(now)
	return nil
}

func (m *Manager) persist(ctx context.Context, id string, msg chatguard.Message) {
	err := m.observe(ctx, "add_message", id, func(ctx context.Context) error {
		return m.durable.AddMessage(ctx, id, msg)
	})
	if err != nil {
		return
	}

	var count int
	err = m.observe(ctx, "count_messages", id, func(ctx context.Context) error {
		var err error
		count, err = m.durable.CountMessages(ctx, id)
		return err
	})
	if err != nil || count <= m.maxMessages {
		return
	}

	_ = m.observe(ctx, "trim_messages", id, func(ctx context.Context) error {
		_, err := m.durable.TrimMessages(ctx, id, m.maxMessages)
		return err
	})
}

// MessagesForAPI returns the session history oldest first, from the shadow
// when it holds messages and from the durable store otherwise.
func (m *Manager) MessagesForAPI(ctx context.Context, id string, includeSystem bool) []APIMessage {
	msgs, _ := resolve(ctx, m, "list_messages", id, memoryFirst,
		func() ([]chatguard.Message, bool) {
			e, ok := m.lookup(id)
			if !ok {
				return nil, false
			}
			e.mu.Lock()
			defer e.mu.Unlock()
			if len(e.messages) == 0 {
				return nil, false
			}
			return e.snapshot().Messages, true
		},
		func(ctx context.Context) ([]chatguard.Message, bool, error) {
			msgs, err := m.loadHistory(ctx, id)
			return msgs, err == nil, err
		},
	)

	if !includeSystem {
		msgs = chatguard.FilterSystem(msgs)
	}
	out := make([]APIMessage, 0, len(msgs))
	for _, msg := range msgs {
		out = append(out, APIMessage{Role: msg.Role, Content: msg.Content})
	}
	return out
}

// SessionInfo describes a session, preferring the durable record for its
// authoritative message count. Returns nil when neither tier knows it.
func (m *Manager) SessionInfo(ctx context.Context, id string) *session.Record {
	rec, _ := resolve(ctx, m, "get_session", id, durableFirst,
		func() (*session.Record, bool) {
			e, ok := m.lookup(id)
			if !ok {
				return nil, false
			}
			r := e.record()
			return &r, true
		},
		func(ctx context.Context) (*session.Record, bool, error) {
			r, err := m.durable.GetSession(ctx, id)
			return r, r != nil, err
		},
	)
	return rec
}

// ListSessions lists sessions, most recently active first.
func (m *Manager) ListSessions(ctx context.Context) []session.Record {
	records, _ := resolve(ctx, m, "list_sessions", "", durableFirst,
		func() ([]session.Record, bool) {
			entries := m.entries()
			out := make([]session.Record, 0, len(entries))
			for _, e := range entries {
				out = append(out, e.record())
			}
			sort.Slice(out, func(i, j int) bool {
				return out[i].LastActivity.After(out[j].LastActivity)
			})
			return out, true
		},
		func(ctx context.Context) ([]session.Record, bool, error) {
			r, err := m.durable.ListSessions(ctx, m.listLimit)
			return r, err == nil, err
		},
	)
	return records
}

// DeleteSession removes a session from both tiers. Reports whether either
// tier had it.
func (m *Manager) DeleteSession(ctx context.Context, id string) bool {
	durableDeleted := false
	if m.durable != nil {
		_ = m.observe(ctx, "delete_session", id, func(ctx context.Context) error {
			var err error
			durableDeleted, err = m.durable.DeleteSession(ctx, id)
			return err
		})
	}

	m.mu.Lock()
	_, memoryDeleted := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	return durableDeleted || memoryDeleted
}

// ActiveSessionCount counts sessions, preferring the durable store.
func (m *Manager) ActiveSessionCount(ctx context.Context) int {
	n, _ := resolve(ctx, m, "count_sessions", "", durableFirst,
		func() (int, bool) {
			m.mu.RLock()
			defer m.mu.RUnlock()
			return len(m.sessions), true
		},
		func(ctx context.Context) (int, bool, error) {
			n, err := m.durable.CountSessions(ctx)
			return n, err == nil, err
		},
	)
	m.metrics.SetActiveSessions(n)
	return n
}

// ClearAllSessions drops every shadow and returns how many were dropped.
// The durable store is left untouched.
func (m *Manager) ClearAllSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.sessions)
	m.sessions = make(map[string]*entry)
	return n
}

// EvictInactive drops shadows idle for longer than timeout.
func (m *Manager) EvictInactive(timeout time.Duration) int {
	cutoff := m.now().Add(-timeout)

	m.mu.Lock()
	defer m.mu.Unlock()

	evicted := 0
	for id, e := range m.sessions {
		if e.lastActive().Before(cutoff) {
			delete(m.sessions, id)
			evicted++
		}
	}
	if evicted > 0 {
		m.log.Debug().Int("evicted", evicted).Msg("evicted inactive sessions from memory")
	}
	return evicted
}
