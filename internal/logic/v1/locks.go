package v1

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// GroupLocks serialises batch runs per (session, group) pair. Runs for
// other sessions or other groups never wait on each other.
type GroupLocks struct {
	mu    sync.Mutex
	locks map[groupKey]*groupLock
}

type groupKey struct {
	sessionID string
	groupID   string
}

type groupLock struct {
	sem  *semaphore.Weighted
	refs int
}

func NewGroupLocks() *GroupLocks {
	return &GroupLocks{locks: make(map[groupKey]*groupLock)}
}

// Acquire blocks until the lock for (sessionID, groupID) is held or ctx ends.
// On success the returned func releases the lock and must be called exactly once.
func (g *GroupLocks) Acquire(ctx context.Context, sessionID, groupID string) (func(), error) {
	key := groupKey{sessionID: sessionID, groupID: groupID}

	g.mu.Lock()
	l, ok := g.locks[key]
	if !ok {
		l = &groupLock{sem: semaphore.NewWeighted(1)}
		g.locks[key] = l
	}
	l.refs++
	g.mu.Unlock()

	if err := l.sem.Acquire(ctx, 1); err != nil {
		g.unref(key, l)
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.sem.Release(1)
			g.unref(key, l)
		})
	}, nil
}

func (g *GroupLocks) unref(key groupKey, l *groupLock) {
	g.mu.Lock()
	defer g.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(g.locks, key)
	}
}

func (g *GroupLocks) size() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.locks)
}

// holders counts the runs holding or waiting for the (sessionID, groupID) lock.
func (g *GroupLocks) holders(sessionID, groupID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if l, ok := g.locks[groupKey{sessionID: sessionID, groupID: groupID}]; ok {
		return l.refs
	}
	return 0
}
