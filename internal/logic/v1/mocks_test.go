package v1

import (
	"context"
	"errors"
	"sync"

	"github.com/duynhne/group-admin-service/internal/core/domain"
)

var errUpstream = errors.New("upstream said no")

type mockHandle struct {
	mu sync.Mutex

	threads    []domain.Thread
	threadsErr error
	info       *domain.ThreadInfo
	infoErr    error
	titleErr   error

	failNickname  map[string]bool
	blockNickname map[string]bool
	onNickname    func(userID string)

	titleCalls    []string
	nicknameCalls []string
	infoCalls     int
	threadCalls   int
	logoutCalls   int
}

func (m *mockHandle) GetThreadList(_ context.Context, _ int, _ string, _ []string) ([]domain.Thread, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.threadCalls++
	return m.threads, m.threadsErr
}

func (m *mockHandle) GetThreadInfo(_ context.Context, threadID string) (*domain.ThreadInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infoCalls++
	if m.infoErr != nil {
		return nil, m.infoErr
	}
	if m.info == nil {
		return &domain.ThreadInfo{ID: threadID, IsGroup: true}, nil
	}
	cp := *m.info
	cp.ParticipantIDs = append([]string(nil), m.info.ParticipantIDs...)
	cp.Nicknames = make(map[string]string, len(m.info.Nicknames))
	for k, v := range m.info.Nicknames {
		cp.Nicknames[k] = v
	}
	return &cp, nil
}

func (m *mockHandle) setInfo(info *domain.ThreadInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.info = info
}

func (m *mockHandle) SetTitle(_ context.Context, title, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.titleCalls = append(m.titleCalls, title)
	return m.titleErr
}

func (m *mockHandle) ChangeNickname(ctx context.Context, _, _, userID string) error {
	m.mu.Lock()
	m.nicknameCalls = append(m.nicknameCalls, userID)
	block := m.blockNickname[userID]
	fail := m.failNickname[userID]
	hook := m.onNickname
	m.mu.Unlock()

	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if hook != nil {
		hook(userID)
	}
	if fail {
		return errUpstream
	}
	return nil
}

func (m *mockHandle) Logout(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logoutCalls++
	return nil
}

func (m *mockHandle) calls() (titles, nicknames []string, infos int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.titleCalls...), append([]string(nil), m.nicknameCalls...), m.infoCalls
}

type mockAuth struct {
	mu     sync.Mutex
	handle domain.MessengerHandle
	err    error
	logins []domain.AppState
}

func (m *mockAuth) Login(_ context.Context, state domain.AppState) (domain.MessengerHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logins = append(m.logins, state)
	if m.err != nil {
		return nil, m.err
	}
	return m.handle, nil
}

func (m *mockAuth) loginCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.logins)
}

type mockRuns struct {
	mu   sync.Mutex
	runs []domain.BatchRun
	err  error
}

func (m *mockRuns) Record(_ context.Context, run domain.BatchRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, run)
	return m.err
}

func (m *mockRuns) recorded() []domain.BatchRun {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.BatchRun(nil), m.runs...)
}

func ptr(s string) *string { return &s }

func groupInfo(name string, members ...string) *domain.ThreadInfo {
	return &domain.ThreadInfo{
		ID:             "g1",
		Name:           name,
		IsGroup:        true,
		ParticipantIDs: members,
		Nicknames:      map[string]string{},
	}
}
