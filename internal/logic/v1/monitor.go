package v1

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/duynhne/group-admin-service/internal/core/domain"
	"github.com/duynhne/group-admin-service/internal/metrics"
)

const (
	DefaultMonitorInterval = time.Minute
	maxRecentChanges       = 20
)

// Monitor periodically re-reads watched groups and records how they drift:
// renames, nickname edits, members joining or leaving. It only observes.
//
// Watches do not keep their session alive; when the session is removed the
// registry hook calls StopSession.
type Monitor struct {
	clock       clockwork.Clock
	interval    time.Duration
	callTimeout time.Duration

	mu      sync.Mutex
	watches map[groupKey]*watch
	wg      sync.WaitGroup
}

type watch struct {
	cancel   context.CancelFunc
	status   domain.MonitorStatus
	baseline *domain.ThreadInfo
}

func NewMonitor(clock clockwork.Clock, interval, callTimeout time.Duration) *Monitor {
	if interval <= 0 {
		interval = DefaultMonitorInterval
	}
	if callTimeout <= 0 {
		callTimeout = DefaultCallTimeout
	}
	return &Monitor{
		clock:       clock,
		interval:    interval,
		callTimeout: callTimeout,
		watches:     make(map[groupKey]*watch),
	}
}

// Start begins watching groupID through handle. It reports false when the
// group was already being watched for this session.
func (m *Monitor) Start(sessionID, groupID string, handle domain.MessengerHandle) bool {
	key := groupKey{sessionID: sessionID, groupID: groupID}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.watches[key]; ok {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	started := m.clock.Now()
	w := &watch{
		cancel: cancel,
		status: domain.MonitorStatus{
			SessionID:     sessionID,
			GroupID:       groupID,
			Monitoring:    true,
			StartedAt:     &started,
			RecentChanges: []domain.GroupChange{},
		},
	}
	m.watches[key] = w

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.run(ctx, key, w, handle)
	}()

	log.Info().Str("group_id", groupID).Msg("Group monitoring started")
	return true
}

// Stop ends the watch on groupID. It reports whether a watch was running.
func (m *Monitor) Stop(sessionID, groupID string) bool {
	key := groupKey{sessionID: sessionID, groupID: groupID}

	m.mu.Lock()
	w, ok := m.watches[key]
	delete(m.watches, key)
	m.mu.Unlock()

	if ok {
		w.cancel()
		log.Info().Str("group_id", groupID).Msg("Group monitoring stopped")
	}
	return ok
}

// StopSession ends every watch owned by sessionID.
func (m *Monitor) StopSession(sessionID string) {
	m.mu.Lock()
	var stopped []*watch
	for key, w := range m.watches {
		if key.sessionID == sessionID {
			stopped = append(stopped, w)
			delete(m.watches, key)
		}
	}
	m.mu.Unlock()

	for _, w := range stopped {
		w.cancel()
	}
}

// Status returns the current observations for groupID. A group that is not
// watched reports Monitoring=false.
func (m *Monitor) Status(sessionID, groupID string) domain.MonitorStatus {
	key := groupKey{sessionID: sessionID, groupID: groupID}

	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.watches[key]
	if !ok {
		return domain.MonitorStatus{
			SessionID:     sessionID,
			GroupID:       groupID,
			RecentChanges: []domain.GroupChange{},
		}
	}

	status := w.status
	status.RecentChanges = append([]domain.GroupChange{}, w.status.RecentChanges...)
	return status
}

// Close stops every watch and waits for the watch loops to exit.
func (m *Monitor) Close() {
	m.mu.Lock()
	for key, w := range m.watches {
		w.cancel()
		delete(m.watches, key)
	}
	m.mu.Unlock()

	m.wg.Wait()
}

func (m *Monitor) run(ctx context.Context, key groupKey, w *watch, handle domain.MessengerHandle) {
	ticker := m.clock.NewTicker(m.interval)
	defer ticker.Stop()

	m.check(ctx, key, w, handle)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			m.check(ctx, key, w, handle)
		}
	}
}

func (m *Monitor) check(ctx context.Context, key groupKey, w *watch, handle domain.MessengerHandle) {
	callCtx, cancel := context.WithTimeout(ctx, m.callTimeout)
	info, err := handle.GetThreadInfo(callCtx, key.groupID)
	cancel()

	if ctx.Err() != nil {
		return
	}

	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	w.status.Checks++
	w.status.LastCheckAt = &now

	if err != nil {
		w.status.LastError = err.Error()
		metrics.MonitorChecksTotal.WithLabelValues("error").Inc()
		log.Warn().Err(err).Str("group_id", key.groupID).Msg("Group monitor check failed")
		return
	}

	w.status.LastError = ""
	w.status.GroupName = info.Name
	w.status.MemberCount = len(info.ParticipantIDs)

	var changes []domain.GroupChange
	if w.baseline != nil {
		changes = diffGroup(w.baseline, info, now)
	}
	w.baseline = info

	if len(changes) == 0 {
		metrics.MonitorChecksTotal.WithLabelValues("ok").Inc()
		return
	}

	metrics.MonitorChecksTotal.WithLabelValues("changed").Inc()
	w.status.ChangesDetected += len(changes)
	w.status.RecentChanges = append(w.status.RecentChanges, changes...)
	if n := len(w.status.RecentChanges); n > maxRecentChanges {
		w.status.RecentChanges = append([]domain.GroupChange{}, w.status.RecentChanges[n-maxRecentChanges:]...)
	}

	log.Info().
		Str("group_id", key.groupID).
		Int("changes", len(changes)).
		Msg("Group monitor detected changes")
}

// diffGroup lists what changed from prev to next, in member order.
func diffGroup(prev, next *domain.ThreadInfo, at time.Time) []domain.GroupChange {
	var changes []domain.GroupChange

	if prev.Name != next.Name {
		changes = append(changes, domain.GroupChange{At: at, Kind: domain.ChangeGroupName, Old: prev.Name, New: next.Name})
	}

	before := make(map[string]bool, len(prev.ParticipantIDs))
	for _, id := range prev.ParticipantIDs {
		before[id] = true
	}
	after := make(map[string]bool, len(next.ParticipantIDs))
	for _, id := range next.ParticipantIDs {
		after[id] = true
	}

	for _, id := range next.ParticipantIDs {
		if !before[id] {
			changes = append(changes, domain.GroupChange{At: at, Kind: domain.ChangeMemberJoined, UserID: id})
			continue
		}
		if old, cur := prev.Nicknames[id], next.Nicknames[id]; old != cur {
			changes = append(changes, domain.GroupChange{At: at, Kind: domain.ChangeNickname, UserID: id, Old: old, New: cur})
		}
	}
	for _, id := range prev.ParticipantIDs {
		if !after[id] {
			changes = append(changes, domain.GroupChange{At: at, Kind: domain.ChangeMemberLeft, UserID: id})
		}
	}

	return changes
}
