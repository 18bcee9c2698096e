package conversation

import (
	"context"
	"time"
)

// source is one tier a read can be answered from.
type source int

const (
	fromMemory source = iota
	fromDurable
)

func (s source) String() string {
	if s == fromDurable {
		return "durable"
	}
	return "memory"
}

// strategy is the order in which a read consults the tiers.
type strategy []source

var (
	// memoryFirst serves from the shadow and reads through to the durable
	// store when the shadow is cold.
	memoryFirst = strategy{fromMemory, fromDurable}
	// durableFirst prefers the authoritative store and falls back to the
	// shadow when it is missing or failing.
	durableFirst = strategy{fromDurable, fromMemory}
)

// tier answers a read. ok is false on a miss.
type (
	memoryRead[T any]  func() (value T, ok bool)
	durableRead[T any] func(ctx context.Context) (value T, ok bool, err error)
)

// resolve consults the tiers in order and returns the first hit. Durable
// failures are logged and treated as a miss.
func resolve[T any](ctx context.Context, m *Manager, op, sessionID string, order strategy, memory memoryRead[T], durable durableRead[T]) (T, bool) {
	var zero T
	for _, src := range order {
		switch src {
		case fromMemory:
			if v, ok := memory(); ok {
				return v, true
			}
		case fromDurable:
			if m.durable == nil {
				continue
			}
			var (
				v  T
				ok bool
			)
			err := m.observe(ctx, op, sessionID, func(ctx context.Context) error {
				var err error
				v, ok, err = durable(ctx)
				return err
			})
			if err == nil && ok {
				return v, true
			}
		}
	}
	return zero, false
}

// observe runs a durable call with the store timeout, records it and logs
// a failure. The error is returned for callers that branch on it, never
// for propagation.
func (m *Manager) observe(ctx context.Context, op, sessionID string, fn func(ctx context.Context) error) error {
	if m.storeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.storeTimeout)
		defer cancel()
	}

	start := time.Now()
	err := fn(ctx)
	m.metrics.RecordStoreOperation(op, err, time.Since(start))
	if err != nil {
		m.log.Error().
			Err(err).
			Str("operation", op).
			Str("session_id", sessionID).
			Msg("durable store operation failed, continuing in memory")
	}
	return err
}
