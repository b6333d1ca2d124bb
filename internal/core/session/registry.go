// Package session holds authenticated messenger handles in memory.
//
// Every session is keyed by an opaque random id and expires once it has not
// been used for longer than the configured idle timeout. Idleness is measured
// from the last successful Get or lease release. Each session carries a one-shot timer that is
// rearmed on every Get, and a periodic sweep (Run) removes anything the
// timers missed. A pinned session (see Pin) never expires. Removal always
// attempts a best-effort logout on the handle.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/duynhne/group-admin-service/internal/core/domain"
	"github.com/duynhne/group-admin-service/internal/metrics"
)

var (
	// ErrNotFound is returned for ids that were never issued, were logged
	// out, or have expired.
	ErrNotFound = domain.ErrSessionNotFound

	// ErrClosed is returned by Create once Close has been called.
	ErrClosed = errors.New("session registry closed")
)

const (
	DefaultIdleTimeout   = 30 * time.Minute
	DefaultSweepInterval = 5 * time.Minute
	DefaultLogoutTimeout = 10 * time.Second
)

// Removal reasons, used as metric labels and in logs.
const (
	ReasonLogout   = "logout"
	ReasonIdle     = "idle"
	ReasonShutdown = "shutdown"
)

// Config tunes expiry. Zero values fall back to the defaults.
type Config struct {
	IdleTimeout   time.Duration
	SweepInterval time.Duration
	LogoutTimeout time.Duration
}

type entry struct {
	handle      domain.MessengerHandle
	fingerprint string
	createdAt   time.Time
	lastUsedAt  time.Time
	timer       clockwork.Timer
	pins        int
}

var _ domain.SessionStore = (*Registry)(nil)

// Registry is the concurrency-safe session store.
type Registry struct {
	clock         clockwork.Clock
	idleTimeout   time.Duration
	sweepInterval time.Duration
	logoutTimeout time.Duration

	mu      sync.Mutex
	entries map[string]*entry
	hooks   []func(id, reason string)
	closed  bool

	// background removals started by Get
	wg sync.WaitGroup
}

func NewRegistry(clock clockwork.Clock, cfg Config) *Registry {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if cfg.LogoutTimeout <= 0 {
		cfg.LogoutTimeout = DefaultLogoutTimeout
	}
	return &Registry{
		clock:         clock,
		idleTimeout:   cfg.IdleTimeout,
		sweepInterval: cfg.SweepInterval,
		logoutTimeout: cfg.LogoutTimeout,
		entries:       make(map[string]*entry),
	}
}

// OnRemove registers fn to run after a session leaves the registry,
// whatever the reason. Hooks run outside the registry lock.
func (r *Registry) OnRemove(fn func(id, reason string)) {
	r.mu.Lock()
	r.hooks = append(r.hooks, fn)
	r.mu.Unlock()
}

// Create stores handle under a fresh id and arms its idle timer.
func (r *Registry) Create(handle domain.MessengerHandle, fingerprint string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return "", ErrClosed
	}

	id := uuid.NewString()
	for r.entries[id] != nil {
		id = uuid.NewString()
	}

	now := r.clock.Now()
	e := &entry{
		handle:      handle,
		fingerprint: fingerprint,
		createdAt:   now,
		lastUsedAt:  now,
	}
	e.timer = r.clock.AfterFunc(r.idleTimeout, func() { r.expire(id) })
	r.entries[id] = e

	metrics.SessionsActive.Set(float64(len(r.entries)))
	return id, nil
}

// Get returns the handle for id and marks the session as used.
// An idle-expired session that has not been swept yet is treated as absent.
func (r *Registry) Get(id string) (domain.MessengerHandle, error) {
	e, err := r.use(id, false)
	if err != nil {
		return nil, err
	}
	return e.handle, nil
}

// Info returns the session timestamps without marking it as used.
func (r *Registry) Info(id string) (domain.SessionInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok || r.idle(e, r.clock.Now()) {
		return domain.SessionInfo{}, ErrNotFound
	}

	return domain.SessionInfo{
		ID:          id,
		Fingerprint: e.fingerprint,
		CreatedAt:   e.createdAt,
		LastUsedAt:  e.lastUsedAt,
	}, nil
}

// Pin checks the session out for a long-running operation. It cannot expire
// until the returned lease is released; release counts as a use. An explicit
// Remove or Close still ends a pinned session.
func (r *Registry) Pin(id string) (domain.SessionLease, error) {
	e, err := r.use(id, true)
	if err != nil {
		return domain.SessionLease{}, err
	}

	var once sync.Once
	return domain.SessionLease{
		ID:          id,
		Handle:      e.handle,
		Fingerprint: e.fingerprint,
		Release: func() {
			once.Do(func() { r.unpin(id, e) })
		},
	}, nil
}

// use refreshes the entry for id and optionally pins it, in one critical section.
func (r *Registry) use(id string, pin bool) (*entry, error) {
	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok {
		r.mu.Unlock()
		return nil, ErrNotFound
	}

	now := r.clock.Now()
	if r.idle(e, now) {
		r.deleteLocked(id)
		r.mu.Unlock()

		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.finalize(context.Background(), id, e, ReasonIdle)
		}()
		return nil, ErrNotFound
	}

	e.lastUsedAt = now
	e.timer.Reset(r.idleTimeout)
	if pin {
		e.pins++
	}
	r.mu.Unlock()

	return e, nil
}

func (r *Registry) unpin(id string, e *entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e.pins--
	if r.entries[id] != e {
		return
	}
	e.lastUsedAt = r.clock.Now()
	e.timer.Reset(r.idleTimeout)
}

// Remove logs the session out and deletes it. Removing an absent id is a no-op.
func (r *Registry) Remove(ctx context.Context, id string) {
	r.mu.Lock()
	e, ok := r.entries[id]
	if ok {
		r.deleteLocked(id)
	}
	r.mu.Unlock()

	if ok {
		r.finalize(ctx, id, e, ReasonLogout)
	}
}

// Size returns the number of live sessions.
func (r *Registry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Run sweeps idle sessions every sweep interval until ctx is cancelled.
func (r *Registry) Run(ctx context.Context) {
	ticker := r.clock.NewTicker(r.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if n := r.sweep(ctx); n > 0 {
				log.Info().Int("removed", n).Int("active", r.Size()).Msg("Session sweep removed idle sessions")
			}
		}
	}
}

// Close removes every session, logging each one out, and rejects further
// Creates. It waits for removals started by Get to finish.
func (r *Registry) Close(ctx context.Context) {
	r.mu.Lock()
	r.closed = true
	drained := r.entries
	r.entries = make(map[string]*entry)
	for _, e := range drained {
		e.timer.Stop()
	}
	metrics.SessionsActive.Set(0)
	r.mu.Unlock()

	for id, e := range drained {
		r.finalize(ctx, id, e, ReasonShutdown)
	}
	r.wg.Wait()
}

func (r *Registry) sweep(ctx context.Context) int {
	now := r.clock.Now()

	r.mu.Lock()
	expired := make(map[string]*entry)
	for id, e := range r.entries {
		if r.idle(e, now) {
			expired[id] = e
			r.deleteLocked(id)
		}
	}
	r.mu.Unlock()

	for id, e := range expired {
		r.finalize(ctx, id, e, ReasonIdle)
	}
	return len(expired)
}

// expire is the per-session timer callback.
func (r *Registry) expire(id string) {
	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok {
		r.mu.Unlock()
		return
	}

	now := r.clock.Now()
	if !r.idle(e, now) {
		// Pinned, or used after the timer had already fired.
		wait := r.idleTimeout
		if e.pins == 0 {
			// Expiry is strictly after the deadline.
			wait = max(e.lastUsedAt.Add(r.idleTimeout).Sub(now), 0) + time.Nanosecond
		}
		e.timer.Reset(wait)
		r.mu.Unlock()
		return
	}
	r.deleteLocked(id)
	r.mu.Unlock()

	r.finalize(context.Background(), id, e, ReasonIdle)
}

// idle reports whether e has gone unused for longer than the idle timeout.
func (r *Registry) idle(e *entry, now time.Time) bool {
	return e.pins == 0 && now.Sub(e.lastUsedAt) > r.idleTimeout
}

func (r *Registry) deleteLocked(id string) {
	if e, ok := r.entries[id]; ok {
		e.timer.Stop()
		delete(r.entries, id)
	}
	metrics.SessionsActive.Set(float64(len(r.entries)))
}

// finalize runs after an entry has left the map: best-effort logout, then hooks.
func (r *Registry) finalize(ctx context.Context, id string, e *entry, reason string) {
	logoutCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.logoutTimeout)
	defer cancel()

	if err := e.handle.Logout(logoutCtx); err != nil {
		metrics.SessionLogoutErrors.Inc()
		log.Warn().Err(err).
			Str("account", e.fingerprint).
			Str("reason", reason).
			Msg("Session logout failed, removing anyway")
	}
	metrics.SessionsRemovedTotal.WithLabelValues(reason).Inc()

	log.Info().
		Str("account", e.fingerprint).
		Str("reason", reason).
		Dur("age", r.clock.Since(e.createdAt)).
		Msg("Session removed")

	r.mu.Lock()
	hooks := append([]func(string, string){}, r.hooks...)
	r.mu.Unlock()

	for _, fn := range hooks {
		fn(id, reason)
	}
}
