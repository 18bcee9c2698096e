package reaper

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creastat/chatguard"
	"github.com/creastat/chatguard/conversation"
	"github.com/creastat/chatguard/metrics"
	"github.com/creastat/chatguard/session"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// brokenStore fails sweeps, optionally by panicking.
type brokenStore struct {
	session.Store
	panics bool

	mu    sync.Mutex
	calls int
}

func (b *brokenStore) DeleteInactiveSessions(context.Context, time.Time) (int, error) {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()
	if b.panics {
		panic("boom")
	}
	return 0, errors.New("connection refused")
}

func (b *brokenStore) DeleteMessagesBefore(context.Context, time.Time) (int, error) {
	return 0, errors.New("connection refused")
}

func (b *brokenStore) Calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

func setup(t *testing.T) (*clock, session.Store, *conversation.Manager) {
	t.Helper()
	c := &clock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	durable, err := session.NewStore(session.StoreTypeMemory, session.WithClock(c.Now))
	require.NoError(t, err)
	t.Cleanup(func() { _ = durable.Close() })
	return c, durable, conversation.New(durable, conversation.WithClock(c.Now))
}

func TestSweep(t *testing.T) {
	ctx := context.Background()
	c, durable, mgr := setup(t)

	_, err := mgr.GetOrCreateSession(ctx, "stale", "codigo")
	require.NoError(t, err)
	require.NoError(t, mgr.AddMessage(ctx, "stale", chatguard.RoleUser, "pergunta", nil))

	c.Advance(time.Hour)
	_, err = mgr.GetOrCreateSession(ctx, "active", "dados")
	require.NoError(t, err)
	require.NoError(t, mgr.AddMessage(ctx, "active", chatguard.RoleUser, "pergunta", nil))

	r := New(durable, mgr, WithClock(c.Now))
	res := r.Sweep(ctx, 30*time.Minute)

	require.NoError(t, res.Err)
	assert.True(t, res.Success())
	assert.Equal(t, 1, res.DeletedSessions)
	assert.Equal(t, 0, res.DeletedMessages)
	assert.Equal(t, 1, res.EvictedShadow)
	assert.Equal(t, c.Now(), res.Timestamp)

	assert.Nil(t, mgr.SessionInfo(ctx, "stale"))
	assert.NotNil(t, mgr.SessionInfo(ctx, "active"))
}

func TestSweepRetention(t *testing.T) {
	ctx := context.Background()
	c, durable, mgr := setup(t)

	_, err := mgr.GetOrCreateSession(ctx, "s1", "codigo")
	require.NoError(t, err)
	require.NoError(t, mgr.AddMessage(ctx, "s1", chatguard.RoleUser, "antiga", nil))

	c.Advance(8 * 24 * time.Hour)
	require.NoError(t, mgr.AddMessage(ctx, "s1", chatguard.RoleUser, "nova", nil))

	r := New(durable, nil, WithClock(c.Now))
	res := r.Sweep(ctx, 30*time.Minute)

	require.NoError(t, res.Err)
	assert.Equal(t, 0, res.DeletedSessions)
	assert.Equal(t, 1, res.DeletedMessages)

	msgs, err := durable.ListMessages(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "nova", msgs[0].Content)
}

func TestSweepIsolatesDurableFailure(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	mgr := conversation.New(nil, conversation.WithClock(c.Now))

	_, err := mgr.GetOrCreateSession(ctx, "s1", "codigo")
	require.NoError(t, err)
	c.Advance(time.Hour)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	r := New(&brokenStore{}, mgr, WithClock(c.Now), WithMetrics(m))
	res := r.Sweep(ctx, 30*time.Minute)

	require.Error(t, res.Err)
	assert.False(t, res.Success())
	assert.Contains(t, res.Err.Error(), "failed to delete inactive sessions")
	assert.Contains(t, res.Err.Error(), "failed to delete expired messages")
	assert.Equal(t, 1, res.EvictedShadow)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SweepsTotal.WithLabelValues("error")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.DeletedTotal.WithLabelValues("shadow")))
}

func TestRunContinuesAfterFailures(t *testing.T) {
	for _, panics := range []bool{false, true} {
		name := "error"
		if panics {
			name = "panic"
		}
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			store := &brokenStore{panics: panics}
			r := New(store, nil,
				WithInterval(5*time.Millisecond),
				WithRunOnStart(),
				WithLogger(zerolog.New(&syncWriter{w: &buf})),
			)

			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan struct{})
			go func() {
				r.Run(ctx)
				close(done)
			}()

			require.Eventually(t, func() bool { return store.Calls() >= 3 }, time.Second, time.Millisecond)
			cancel()

			select {
			case <-done:
			case <-time.After(time.Second):
				t.Fatal("reaper did not stop")
			}
		})
	}
}

type syncWriter struct {
	mu sync.Mutex
	w  *bytes.Buffer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
