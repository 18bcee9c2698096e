package conversation

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/creastat/chatguard/metrics"
)

const (
	DefaultMaxMessages  = 20
	DefaultListLimit    = 100
	DefaultStoreTimeout = 5 * time.Second
)

// Option is a functional option for configuring a Manager.
type Option func(*Manager)

// WithMaxMessages sets the per-session message cap. The cap includes the
// system message.
func WithMaxMessages(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxMessages = n
		}
	}
}

// WithListLimit sets how many sessions ListSessions returns from the
// durable store.
func WithListLimit(n int) Option {
	return func(m *Manager) {
		m.listLimit = n
	}
}

// WithStoreTimeout bounds every durable store call.
func WithStoreTimeout(d time.Duration) Option {
	return func(m *Manager) {
		m.storeTimeout = d
	}
}

// WithLogger sets the logger used for degraded durable operations.
func WithLogger(log zerolog.Logger) Option {
	return func(m *Manager) {
		m.log = log
	}
}

// WithMetrics records durable store operations on mt.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) {
		m.metrics = mt
	}
}

// WithClock overrides the clock used for shadow timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}
