package v1

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duynhne/group-admin-service/internal/core/domain"
)

func TestMonitor_DetectsChanges(t *testing.T) {
	clock := clockwork.NewFakeClock()
	m := NewMonitor(clock, time.Minute, time.Second)
	defer m.Close()

	h := &mockHandle{info: groupInfo("Math", "u1", "u2")}
	require.True(t, m.Start("s1", "g1", h))
	assert.False(t, m.Start("s1", "g1", h), "already monitoring")

	require.Eventually(t, func() bool { return m.Status("s1", "g1").Checks == 1 }, time.Second, 5*time.Millisecond)

	next := groupInfo("Physics", "u1", "u2", "u3")
	next.Nicknames["u1"] = "X"
	h.setInfo(next)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(time.Minute)

	require.Eventually(t, func() bool { return m.Status("s1", "g1").Checks == 2 }, time.Second, 5*time.Millisecond)

	status := m.Status("s1", "g1")
	assert.True(t, status.Monitoring)
	assert.Equal(t, "Physics", status.GroupName)
	assert.Equal(t, 3, status.MemberCount)
	assert.Equal(t, 3, status.ChangesDetected)

	kinds := make([]string, 0, len(status.RecentChanges))
	for _, c := range status.RecentChanges {
		kinds = append(kinds, c.Kind)
	}
	assert.Equal(t, []string{domain.ChangeGroupName, domain.ChangeNickname, domain.ChangeMemberJoined}, kinds)
}

func TestMonitor_RecordsCheckErrors(t *testing.T) {
	m := NewMonitor(clockwork.NewFakeClock(), time.Minute, time.Second)
	defer m.Close()

	m.Start("s1", "g1", &mockHandle{infoErr: errUpstream})

	require.Eventually(t, func() bool { return m.Status("s1", "g1").Checks == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, errUpstream.Error(), m.Status("s1", "g1").LastError)
}

func TestMonitor_StopAndStopSession(t *testing.T) {
	m := NewMonitor(clockwork.NewFakeClock(), time.Minute, time.Second)
	defer m.Close()
	h := &mockHandle{info: groupInfo("Math", "u1")}

	m.Start("s1", "g1", h)
	m.Start("s1", "g2", h)
	m.Start("s2", "g1", h)

	assert.True(t, m.Stop("s1", "g1"))
	assert.False(t, m.Stop("s1", "g1"))
	assert.False(t, m.Status("s1", "g1").Monitoring)

	m.StopSession("s1")
	assert.False(t, m.Status("s1", "g2").Monitoring)
	assert.True(t, m.Status("s2", "g1").Monitoring)
}

func TestDiffGroup_MemberLeft(t *testing.T) {
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	changes := diffGroup(groupInfo("G", "u1", "u2"), groupInfo("G", "u2"), at)

	assert.Equal(t, []domain.GroupChange{{At: at, Kind: domain.ChangeMemberLeft, UserID: "u1"}}, changes)
}
