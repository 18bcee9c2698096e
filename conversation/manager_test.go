package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creastat/chatguard"
	"github.com/creastat/chatguard/session"
)

var errUnavailable = errors.New("store unavailable")

// failingStore fails every call.
type failingStore struct{}

var _ session.Store = failingStore{}

func (failingStore) UpsertSession(context.Context, string, string) (*session.Record, error) {
	return nil, errUnavailable
}
func (failingStore) GetSession(context.Context, string) (*session.Record, error) {
	return nil, errUnavailable
}
func (failingStore) ListSessions(context.Context, int) ([]session.Record, error) {
	return nil, errUnavailable
}
func (failingStore) DeleteSession(context.Context, string) (bool, error) {
	return false, errUnavailable
}
func (failingStore) CountSessions(context.Context) (int, error) { return 0, errUnavailable }
func (failingStore) AddMessage(context.Context, string, chatguard.Message) error {
	return errUnavailable
}
func (failingStore) ListMessages(context.Context, string, int) ([]chatguard.Message, error) {
	return nil, errUnavailable
}
func (failingStore) CountMessages(context.Context, string) (int, error) { return 0, errUnavailable }
func (failingStore) TrimMessages(context.Context, string, int) (int, error) {
	return 0, errUnavailable
}
func (failingStore) DeleteInactiveSessions(context.Context, time.Time) (int, error) {
	return 0, errUnavailable
}
func (failingStore) DeleteMessagesBefore(context.Context, time.Time) (int, error) {
	return 0, errUnavailable
}
func (failingStore) Close() error { return nil }

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock {
	return &clock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Millisecond)
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newDurable(t *testing.T, c *clock) session.Store {
	t.Helper()
	s, err := session.NewStore(session.StoreTypeMemory, session.WithClock(c.Now))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func roles(msgs []APIMessage) []chatguard.Role {
	out := make([]chatguard.Role, len(msgs))
	for i, m := range msgs {
		out[i] = m.Role
	}
	return out
}

func TestGetOrCreateSession(t *testing.T) {
	ctx := context.Background()
	c := newClock()
	durable := newDurable(t, c)
	m := New(durable, WithClock(c.Now))

	_, err := m.GetOrCreateSession(ctx, "", "codigo")
	assert.ErrorIs(t, err, chatguard.ErrInvalidSessionID)

	s, err := m.GetOrCreateSession(ctx, "s1", "codigo")
	require.NoError(t, err)
	assert.Equal(t, "s1", s.ID)
	assert.Equal(t, "codigo", s.Subject)
	assert.Empty(t, s.Messages)

	rec, err := durable.GetSession(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "codigo", rec.Subject)

	again, err := m.GetOrCreateSession(ctx, "s1", "dados")
	require.NoError(t, err)
	assert.Equal(t, "codigo", again.Subject)
	assert.True(t, again.LastActivity.After(s.LastActivity))
}

func TestSystemThenUser(t *testing.T) {
	ctx := context.Background()
	c := newClock()
	m := New(newDurable(t, c), WithClock(c.Now))

	s, err := m.GetOrCreateSession(ctx, "s1", "codigo")
	require.NoError(t, err)
	require.Empty(t, s.Messages)

	require.NoError(t, m.AddMessage(ctx, "s1", chatguard.RoleSystem, "prompt", nil))
	require.NoError(t, m.AddMessage(ctx, "s1", chatguard.RoleUser, "como usar git rebase?", nil))

	msgs := m.MessagesForAPI(ctx, "s1", true)
	assert.Equal(t, []chatguard.Role{chatguard.RoleSystem, chatguard.RoleUser}, roles(msgs))

	msgs = m.MessagesForAPI(ctx, "s1", false)
	assert.Equal(t, []chatguard.Role{chatguard.RoleUser}, roles(msgs))
}

func TestAddMessageErrors(t *testing.T) {
	ctx := context.Background()
	m := New(nil)

	err := m.AddMessage(ctx, "missing", chatguard.RoleUser, "hi", nil)
	assert.ErrorIs(t, err, chatguard.ErrNotFound)

	_, err = m.GetOrCreateSession(ctx, "s1", "codigo")
	require.NoError(t, err)
	err = m.AddMessage(ctx, "s1", chatguard.Role("tool"), "hi", nil)
	assert.ErrorIs(t, err, chatguard.ErrInvalidRole)
}

func TestSystemMessageOnlyFirst(t *testing.T) {
	ctx := context.Background()
	c := newClock()
	durable := newDurable(t, c)
	m := New(durable, WithClock(c.Now), WithMaxMessages(3))

	_, err := m.GetOrCreateSession(ctx, "s1", "codigo")
	require.NoError(t, err)
	require.NoError(t, m.AddMessage(ctx, "s1", chatguard.RoleUser, "pergunta", nil))

	err = m.AddMessage(ctx, "s1", chatguard.RoleSystem, "prompt", nil)
	assert.ErrorIs(t, err, chatguard.ErrInvalidRole)
	err = m.AddMessage(ctx, "s1", chatguard.RoleSystem, "prompt", nil)
	assert.ErrorIs(t, err, chatguard.ErrInvalidRole)

	assert.Equal(t, []chatguard.Role{chatguard.RoleUser}, roles(m.MessagesForAPI(ctx, "s1", true)))

	count, err := durable.CountMessages(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, err = m.GetOrCreateSession(ctx, "s2", "codigo")
	require.NoError(t, err)
	require.NoError(t, m.AddMessage(ctx, "s2", chatguard.RoleSystem, "prompt", nil))
	err = m.AddMessage(ctx, "s2", chatguard.RoleSystem, "again", nil)
	assert.ErrorIs(t, err, chatguard.ErrInvalidRole)
}

func TestRetentionCap(t *testing.T) {
	const limit = 5
	ctx := context.Background()
	c := newClock()
	durable := newDurable(t, c)
	m := New(durable, WithClock(c.Now), WithMaxMessages(limit))

	_, err := m.GetOrCreateSession(ctx, "s1", "codigo")
	require.NoError(t, err)
	require.NoError(t, m.AddMessage(ctx, "s1", chatguard.RoleSystem, "prompt", nil))
	for i := 0; i < limit+7; i++ {
		role := chatguard.RoleUser
		if i%2 == 1 {
			role = chatguard.RoleAssistant
		}
		require.NoError(t, m.AddMessage(ctx, "s1", role, fmt.Sprintf("m%d", i), nil))
	}

	msgs := m.MessagesForAPI(ctx, "s1", true)
	require.Len(t, msgs, limit)
	assert.Equal(t, chatguard.RoleSystem, msgs[0].Role)
	assert.Equal(t, fmt.Sprintf("m%d", limit+6), msgs[limit-1].Content)

	count, err := durable.CountMessages(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, limit, count)

	stored, err := durable.ListMessages(ctx, "s1", 0)
	require.NoError(t, err)
	assert.Equal(t, chatguard.RoleSystem, stored[0].Role)
}

func TestMetadataRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := New(nil)

	_, err := m.GetOrCreateSession(ctx, "s1", "codigo")
	require.NoError(t, err)
	require.NoError(t, m.AddMessage(ctx, "s1", chatguard.RoleAssistant, "resposta",
		chatguard.Metadata{"citations": []string{"https://go.dev"}}))

	s, err := m.GetOrCreateSession(ctx, "s1", "codigo")
	require.NoError(t, err)
	require.Len(t, s.Messages, 1)
	assert.Equal(t, []string{"https://go.dev"}, s.Messages[0].Metadata["citations"])
	assert.Equal(t, chatguard.EstimateTokens("resposta"), s.Tokens)
}

func TestColdShadowReadsThrough(t *testing.T) {
	ctx := context.Background()
	c := newClock()
	durable := newDurable(t, c)

	first := New(durable, WithClock(c.Now))
	_, err := first.GetOrCreateSession(ctx, "s1", "codigo")
	require.NoError(t, err)
	require.NoError(t, first.AddMessage(ctx, "s1", chatguard.RoleSystem, "prompt", nil))
	require.NoError(t, first.AddMessage(ctx, "s1", chatguard.RoleUser, "pergunta", nil))

	second := New(durable, WithClock(c.Now))
	msgs := second.MessagesForAPI(ctx, "s1", true)
	assert.Equal(t, []chatguard.Role{chatguard.RoleSystem, chatguard.RoleUser}, roles(msgs))

	s, err := second.GetOrCreateSession(ctx, "s1", "codigo")
	require.NoError(t, err)
	assert.Len(t, s.Messages, 2)

	require.NoError(t, second.AddMessage(ctx, "s1", chatguard.RoleAssistant, "resposta", nil))
	assert.Len(t, second.MessagesForAPI(ctx, "s1", true), 3)
}

func TestColdShadowKeepsSystemOverCap(t *testing.T) {
	const limit = 20
	ctx := context.Background()
	c := newClock()
	durable := newDurable(t, c)

	_, err := durable.UpsertSession(ctx, "s1", "codigo")
	require.NoError(t, err)
	require.NoError(t, durable.AddMessage(ctx, "s1",
		chatguard.NewMessage(chatguard.RoleSystem, "prompt", nil, c.Now())))
	for i := 0; i < limit+2; i++ {
		require.NoError(t, durable.AddMessage(ctx, "s1",
			chatguard.NewMessage(chatguard.RoleUser, fmt.Sprintf("m%d", i), nil, c.Now())))
	}

	m := New(durable, WithClock(c.Now), WithMaxMessages(limit))
	msgs := m.MessagesForAPI(ctx, "s1", true)
	require.Len(t, msgs, limit)
	assert.Equal(t, chatguard.RoleSystem, msgs[0].Role)
	assert.Equal(t, fmt.Sprintf("m%d", limit+1), msgs[limit-1].Content)

	s, err := m.GetOrCreateSession(ctx, "s1", "codigo")
	require.NoError(t, err)
	require.Len(t, s.Messages, limit)
	assert.Equal(t, chatguard.RoleSystem, s.Messages[0].Role)

	require.NoError(t, m.AddMessage(ctx, "s1", chatguard.RoleUser, "nova", nil))

	msgs = m.MessagesForAPI(ctx, "s1", true)
	require.Len(t, msgs, limit)
	assert.Equal(t, chatguard.RoleSystem, msgs[0].Role)
	assert.Equal(t, "nova", msgs[limit-1].Content)

	stored, err := durable.ListMessages(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, stored, limit)
	assert.Equal(t, chatguard.RoleSystem, stored[0].Role)
	assert.Equal(t, "nova", stored[limit-1].Content)
}

func TestDeleteSession(t *testing.T) {
	ctx := context.Background()
	c := newClock()
	m := New(newDurable(t, c), WithClock(c.Now))

	assert.False(t, m.DeleteSession(ctx, "missing"))

	_, err := m.GetOrCreateSession(ctx, "s1", "codigo")
	require.NoError(t, err)
	require.NotNil(t, m.SessionInfo(ctx, "s1"))

	assert.True(t, m.DeleteSession(ctx, "s1"))
	assert.Nil(t, m.SessionInfo(ctx, "s1"))
	assert.Empty(t, m.MessagesForAPI(ctx, "s1", true))
	assert.False(t, m.DeleteSession(ctx, "s1"))
}

func TestSessionInfoPrefersDurable(t *testing.T) {
	ctx := context.Background()
	c := newClock()
	durable := newDurable(t, c)
	m := New(durable, WithClock(c.Now))

	_, err := m.GetOrCreateSession(ctx, "s1", "codigo")
	require.NoError(t, err)
	require.NoError(t, m.AddMessage(ctx, "s1", chatguard.RoleUser, "pergunta", nil))

	// written by another process
	require.NoError(t, durable.AddMessage(ctx, "s1", chatguard.NewMessage(chatguard.RoleAssistant, "resposta", nil, time.Time{})))

	rec := m.SessionInfo(ctx, "s1")
	require.NotNil(t, rec)
	assert.Equal(t, 2, rec.MessageCount)
}

func TestListSessionsAndCount(t *testing.T) {
	ctx := context.Background()
	c := newClock()
	m := New(newDurable(t, c), WithClock(c.Now))

	for _, id := range []string{"a", "b", "c"} {
		_, err := m.GetOrCreateSession(ctx, id, "codigo")
		require.NoError(t, err)
	}
	require.NoError(t, m.AddMessage(ctx, "a", chatguard.RoleUser, "pergunta", nil))

	list := m.ListSessions(ctx)
	require.Len(t, list, 3)
	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, 3, m.ActiveSessionCount(ctx))
}

func TestDegradesWhenDurableFails(t *testing.T) {
	ctx := context.Background()
	c := newClock()
	m := New(failingStore{}, WithClock(c.Now))

	s, err := m.GetOrCreateSession(ctx, "s1", "codigo")
	require.NoError(t, err)
	assert.Empty(t, s.Messages)

	require.NoError(t, m.AddMessage(ctx, "s1", chatguard.RoleSystem, "prompt", nil))
	require.NoError(t, m.AddMessage(ctx, "s1", chatguard.RoleUser, "pergunta", nil))

	assert.Len(t, m.MessagesForAPI(ctx, "s1", true), 2)

	rec := m.SessionInfo(ctx, "s1")
	require.NotNil(t, rec)
	assert.Equal(t, 2, rec.MessageCount)

	assert.Len(t, m.ListSessions(ctx), 1)
	assert.Equal(t, 1, m.ActiveSessionCount(ctx))
	assert.True(t, m.DeleteSession(ctx, "s1"))
	assert.Nil(t, m.SessionInfo(ctx, "s1"))
}

func TestEvictInactive(t *testing.T) {
	ctx := context.Background()
	c := newClock()
	m := New(nil, WithClock(c.Now))

	_, err := m.GetOrCreateSession(ctx, "old", "codigo")
	require.NoError(t, err)
	c.Advance(time.Hour)
	_, err = m.GetOrCreateSession(ctx, "fresh", "codigo")
	require.NoError(t, err)

	assert.Equal(t, 1, m.EvictInactive(30*time.Minute))
	assert.Nil(t, m.SessionInfo(ctx, "old"))
	assert.NotNil(t, m.SessionInfo(ctx, "fresh"))
	assert.Equal(t, 0, m.EvictInactive(30*time.Minute))
}

func TestClearAllSessions(t *testing.T) {
	ctx := context.Background()
	c := newClock()
	durable := newDurable(t, c)
	m := New(durable, WithClock(c.Now))

	for _, id := range []string{"a", "b"} {
		_, err := m.GetOrCreateSession(ctx, id, "codigo")
		require.NoError(t, err)
	}

	assert.Equal(t, 2, m.ClearAllSessions())
	assert.Equal(t, 0, m.ClearAllSessions())

	n, err := durable.CountSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	m := New(newDurable(t, newClock()), WithMaxMessages(1000))

	_, err := m.GetOrCreateSession(ctx, "s1", "codigo")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, m.AddMessage(ctx, "s1", chatguard.RoleUser, fmt.Sprintf("m%d", i), nil))
		}(i)
	}
	wg.Wait()

	assert.Len(t, m.MessagesForAPI(ctx, "s1", true), 50)
	rec := m.SessionInfo(ctx, "s1")
	require.NotNil(t, rec)
	assert.Equal(t, 50, rec.MessageCount)
}
