// Package reaper periodically evicts inactive sessions and expired messages
// from the durable store and the conversation shadow.
package reaper

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"

	"github.com/creastat/chatguard/conversation"
	"github.com/creastat/chatguard/metrics"
	"github.com/creastat/chatguard/session"
)

const (
	DefaultInterval  = 30 * time.Minute
	DefaultTimeout   = 30 * time.Minute
	DefaultRetention = 7 * 24 * time.Hour
)

// Result summarizes one sweep.
type Result struct {
	DeletedSessions int       `json:"deleted_sessions"`
	DeletedMessages int       `json:"deleted_messages"`
	EvictedShadow   int       `json:"evicted_shadow"`
	Err             error     `json:"-"`
	Timestamp       time.Time `json:"timestamp"`
}

// Success reports whether the durable half of the sweep completed.
func (r Result) Success() bool {
	return r.Err == nil
}

// Reaper sweeps a durable store and a conversation manager.
// Either may be nil.
type Reaper struct {
	durable    session.Store
	manager    *conversation.Manager
	interval   time.Duration
	timeout    time.Duration
	retention  time.Duration
	runOnStart bool
	log        zerolog.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
}

// Option is a functional option for configuring a Reaper.
type Option func(*Reaper)

// WithInterval sets the time between scheduled sweeps.
func WithInterval(d time.Duration) Option {
	return func(r *Reaper) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithTimeout sets the inactivity timeout used by scheduled sweeps.
func WithTimeout(d time.Duration) Option {
	return func(r *Reaper) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithRetention sets how long durable messages are kept regardless of
// session activity.
func WithRetention(d time.Duration) Option {
	return func(r *Reaper) {
		if d > 0 {
			r.retention = d
		}
	}
}

// WithRunOnStart makes Run sweep once before the first tick.
func WithRunOnStart() Option {
	return func(r *Reaper) {
		r.runOnStart = true
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(r *Reaper) {
		r.log = log
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Reaper) {
		r.metrics = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Reaper) {
		r.now = now
	}
}

// New creates a Reaper.
func New(durable session.Store, manager *conversation.Manager, opts ...Option) *Reaper {
	r := &Reaper{
		durable:   durable,
		manager:   manager,
		interval:  DefaultInterval,
		timeout:   DefaultTimeout,
		retention: DefaultRetention,
		log:       zerolog.Nop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Sweep deletes durable sessions idle for longer than timeout, durable
// messages older than the retention window, and shadow sessions idle for
// longer than timeout. The shadow is swept even when the durable store
// fails; the durable error is reported in Result.Err.
func (r *Reaper) Sweep(ctx context.Context, timeout time.Duration) Result {
	now := r.now()
	res := Result{Timestamp: now}

	if r.durable != nil {
		var errs []error

		n, err := r.durable.DeleteInactiveSessions(ctx, now.Add(-timeout))
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to delete inactive sessions: %w", err))
		}
		res.DeletedSessions = n

		n, err = r.durable.DeleteMessagesBefore(ctx, now.Add(-r.retention))
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to delete expired messages: %w", err))
		}
		res.DeletedMessages = n

		res.Err = errors.Join(errs...)
	}

	if r.manager != nil {
		res.EvictedShadow = r.manager.EvictInactive(timeout)
	}

	r.metrics.RecordSweep(res.Err, res.DeletedSessions, res.DeletedMessages, res.EvictedShadow)
	return res
}

// Run sweeps on every interval until ctx is done. A failing or panicking
// sweep is logged and the schedule continues.
func (r *Reaper) Run(ctx context.Context) {
	r.log.Info().
		Dur("interval", r.interval).
		Dur("timeout", r.timeout).
		Dur("retention", r.retention).
		Msg("reaper started")

	if r.runOnStart {
		r.safeSweep(ctx)
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("reaper stopped")
			return
		case <-ticker.C:
			r.safeSweep(ctx)
		}
	}
}

func (r *Reaper) safeSweep(ctx context.Context) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error().
				Interface("panic", p).
				Str("stack", string(debug.Stack())).
				Msg("panic recovered in sweep")
		}
	}()

	res := r.Sweep(ctx, r.timeout)
	if res.Err != nil {
		r.log.Error().Err(res.Err).Msg("sweep failed")
		return
	}
	r.log.Info().
		Int("deleted_sessions", res.DeletedSessions).
		Int("deleted_messages", res.DeletedMessages).
		Int("evicted_shadow", res.EvictedShadow).
		Msg("sweep completed")
}
