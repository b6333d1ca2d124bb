package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duynhne/group-admin-service/internal/core/domain"
)

type mockHandle struct {
	mu          sync.Mutex
	logoutCalls int
	logoutErr   error
}

func (m *mockHandle) GetThreadList(context.Context, int, string, []string) ([]domain.Thread, error) {
	return nil, nil
}

func (m *mockHandle) GetThreadInfo(context.Context, string) (*domain.ThreadInfo, error) {
	return &domain.ThreadInfo{}, nil
}

func (m *mockHandle) SetTitle(context.Context, string, string) error { return nil }

func (m *mockHandle) ChangeNickname(context.Context, string, string, string) error { return nil }

func (m *mockHandle) Logout(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logoutCalls++
	return m.logoutErr
}

func (m *mockHandle) logouts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.logoutCalls
}

func newTestRegistry(t *testing.T) (*Registry, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	r := NewRegistry(clock, Config{
		IdleTimeout:   30 * time.Minute,
		SweepInterval: 5 * time.Minute,
	})
	t.Cleanup(func() { r.Close(context.Background()) })
	return r, clock
}

// backdate marks a session as last used ago before now without moving the clock,
// so that only the sweep (and not the per-session timer) can observe it as idle.
func backdate(r *Registry, id string, ago time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[id].lastUsedAt = r.clock.Now().Add(-ago)
}

func TestRegistry_CreateAndGet(t *testing.T) {
	r, _ := newTestRegistry(t)
	h := &mockHandle{}

	id, err := r.Create(h, "fp")
	require.NoError(t, err)

	got, err := r.Get(id)
	require.NoError(t, err)
	assert.Same(t, h, got)
	assert.Equal(t, 1, r.Size())
}

func TestRegistry_IDsAreUnique(t *testing.T) {
	r, _ := newTestRegistry(t)

	seen := make(map[string]bool)
	for range 100 {
		id, err := r.Create(&mockHandle{}, "fp")
		require.NoError(t, err)
		require.False(t, seen[id], "id %s issued twice", id)
		seen[id] = true
	}
	assert.Equal(t, 100, r.Size())
}

func TestRegistry_GetUnknown(t *testing.T) {
	r, _ := newTestRegistry(t)

	_, err := r.Get("does-not-exist")

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistry_GetRefreshesLastUsed(t *testing.T) {
	r, clock := newTestRegistry(t)
	id, _ := r.Create(&mockHandle{}, "fp")
	created := clock.Now()

	clock.Advance(10 * time.Minute)
	_, err := r.Get(id)
	require.NoError(t, err)

	info, err := r.Info(id)
	require.NoError(t, err)
	assert.Equal(t, created, info.CreatedAt)
	assert.Equal(t, created.Add(10*time.Minute), info.LastUsedAt)
}

func TestRegistry_InfoDoesNotRefresh(t *testing.T) {
	r, clock := newTestRegistry(t)
	id, _ := r.Create(&mockHandle{}, "fp")
	created := clock.Now()

	clock.Advance(5 * time.Minute)
	info, err := r.Info(id)

	require.NoError(t, err)
	assert.Equal(t, created, info.LastUsedAt)
}

func TestRegistry_RemoveIsIdempotent(t *testing.T) {
	r, _ := newTestRegistry(t)
	h := &mockHandle{}
	id, _ := r.Create(h, "fp")

	r.Remove(context.Background(), id)
	r.Remove(context.Background(), id)

	_, err := r.Get(id)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, h.logouts())
	assert.Equal(t, 0, r.Size())
}

func TestRegistry_ConcurrentRemoveLogsOutOnce(t *testing.T) {
	r, _ := newTestRegistry(t)
	h := &mockHandle{}
	id, _ := r.Create(h, "fp")

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Remove(context.Background(), id)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, h.logouts())
}

func TestRegistry_LogoutFailureStillRemoves(t *testing.T) {
	r, _ := newTestRegistry(t)
	h := &mockHandle{logoutErr: errors.New("network down")}
	id, _ := r.Create(h, "fp")

	r.Remove(context.Background(), id)

	_, err := r.Get(id)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, h.logouts())
}

func TestRegistry_IdleTimerExpiresSession(t *testing.T) {
	r, clock := newTestRegistry(t)
	h := &mockHandle{}
	_, _ = r.Create(h, "fp")

	clock.Advance(31 * time.Minute)

	assert.Eventually(t, func() bool {
		return r.Size() == 0 && h.logouts() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestRegistry_UseRearmsIdleTimer(t *testing.T) {
	r, clock := newTestRegistry(t)
	id, _ := r.Create(&mockHandle{}, "fp")

	clock.Advance(20 * time.Minute)
	_, err := r.Get(id)
	require.NoError(t, err)

	// 40 minutes after creation, 20 minutes after last use.
	clock.Advance(20 * time.Minute)
	_, err = r.Get(id)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Size())
}

func TestRegistry_GetOnIdleSessionIsNotFound(t *testing.T) {
	r, clock := newTestRegistry(t)
	h := &mockHandle{}
	id, _ := r.Create(h, "fp")

	clock.Advance(45 * time.Minute)
	_, err := r.Get(id)

	assert.ErrorIs(t, err, ErrNotFound)
	assert.Eventually(t, func() bool { return h.logouts() == 1 }, time.Second, 5*time.Millisecond)
}

func TestRegistry_SweepRemovesIdleSessions(t *testing.T) {
	r, _ := newTestRegistry(t)
	idle := &mockHandle{}
	fresh := &mockHandle{}
	idleID, _ := r.Create(idle, "fp-idle")
	freshID, _ := r.Create(fresh, "fp-fresh")

	backdate(r, idleID, 31*time.Minute)
	removed := r.sweep(context.Background())

	assert.Equal(t, 1, removed)
	_, err := r.Get(idleID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = r.Get(freshID)
	assert.NoError(t, err)
	assert.Equal(t, 1, idle.logouts())
	assert.Equal(t, 0, fresh.logouts())
}

func TestRegistry_RunSweepsOnTick(t *testing.T) {
	r, clock := newTestRegistry(t)
	id, _ := r.Create(&mockHandle{}, "fp")
	backdate(r, id, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	// one idle timer plus the sweep ticker
	require.NoError(t, clock.BlockUntilContext(ctx, 2))
	clock.Advance(5 * time.Minute)

	assert.Eventually(t, func() bool { return r.Size() == 0 }, time.Second, 5*time.Millisecond)
}

func TestRegistry_OnRemoveHook(t *testing.T) {
	r, _ := newTestRegistry(t)

	var mu sync.Mutex
	var removed []string
	r.OnRemove(func(id, reason string) {
		mu.Lock()
		defer mu.Unlock()
		removed = append(removed, id+":"+reason)
	})

	id, _ := r.Create(&mockHandle{}, "fp")
	r.Remove(context.Background(), id)
	r.Remove(context.Background(), id)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{id + ":" + ReasonLogout}, removed)
}

func TestRegistry_CloseLogsOutEverything(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r := NewRegistry(clock, Config{})
	handles := []*mockHandle{{}, {}, {}}
	for _, h := range handles {
		_, err := r.Create(h, "fp")
		require.NoError(t, err)
	}

	r.Close(context.Background())

	assert.Equal(t, 0, r.Size())
	for _, h := range handles {
		assert.Equal(t, 1, h.logouts())
	}
	_, err := r.Create(&mockHandle{}, "fp")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestRegistry_ExpiresOnlyPastIdleTimeout(t *testing.T) {
	r, clock := newTestRegistry(t)
	h := &mockHandle{}
	id, _ := r.Create(h, "fp")

	clock.Advance(30 * time.Minute)
	_, err := r.Info(id)
	require.NoError(t, err)

	clock.Advance(time.Nanosecond)
	_, err = r.Info(id)
	require.ErrorIs(t, err, ErrNotFound)
	assert.Eventually(t, func() bool { return h.logouts() == 1 }, time.Second, 5*time.Millisecond)
}

func TestRegistry_PinnedSessionDoesNotIdleOut(t *testing.T) {
	r, clock := newTestRegistry(t)
	h := &mockHandle{}
	id, _ := r.Create(h, "fp")

	lease, err := r.Pin(id)
	require.NoError(t, err)
	assert.Equal(t, h, lease.Handle)
	assert.Equal(t, "fp", lease.Fingerprint)

	clock.Advance(2 * time.Hour)
	backdate(r, id, 2*time.Hour)
	assert.Zero(t, r.sweep(context.Background()))

	_, err = r.Info(id)
	require.NoError(t, err)
	assert.Equal(t, 0, h.logouts())

	lease.Release()
	lease.Release()

	// Releasing counts as a use.
	clock.Advance(20 * time.Minute)
	_, err = r.Info(id)
	require.NoError(t, err)

	clock.Advance(11 * time.Minute)
	assert.Eventually(t, func() bool {
		return r.Size() == 0 && h.logouts() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestRegistry_RemoveEndsPinnedSession(t *testing.T) {
	r, _ := newTestRegistry(t)
	h := &mockHandle{}
	id, _ := r.Create(h, "fp")

	lease, err := r.Pin(id)
	require.NoError(t, err)

	r.Remove(context.Background(), id)
	lease.Release()

	_, err = r.Get(id)
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, h.logouts())
}

func TestRegistry_PinUnknownSession(t *testing.T) {
	r, _ := newTestRegistry(t)

	_, err := r.Pin("missing")
	require.ErrorIs(t, err, ErrNotFound)
}
