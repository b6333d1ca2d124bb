package v1

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/duynhne/group-admin-service/internal/core/domain"
	"github.com/duynhne/group-admin-service/internal/logger"
	"github.com/duynhne/group-admin-service/middleware"
)

const (
	threadListLimit  = 100
	unnamedGroupName = "Unnamed Group"
)

var threadListTags = []string{"INBOX"}

// AdminService implements the group administration business rules.
// It depends on the session store, authenticator and audit repository
// interfaces and never talks to the bridge or the database directly.
type AdminService struct {
	auth     domain.Authenticator
	sessions domain.SessionStore
	runs     domain.BatchRunRepository
	batches  *Orchestrator
	monitor  *Monitor
	locks    *GroupLocks
	clock    clockwork.Clock
}

// NewAdminService creates a new AdminService with the given dependencies.
func NewAdminService(
	auth domain.Authenticator,
	sessions domain.SessionStore,
	runs domain.BatchRunRepository,
	batches *Orchestrator,
	monitor *Monitor,
	clock clockwork.Clock,
) *AdminService {
	return &AdminService{
		auth:     auth,
		sessions: sessions,
		runs:     runs,
		batches:  batches,
		monitor:  monitor,
		locks:    NewGroupLocks(),
		clock:    clock,
	}
}

// Login validates the raw appState, authenticates it and stores the new session.
func (s *AdminService) Login(ctx context.Context, rawAppState []byte) (*domain.LoginResponse, error) {
	ctx, span := middleware.StartSpan(ctx, "admin.login", trace.WithAttributes(
		attribute.String("layer", "logic"),
	))
	defer span.End()

	state, err := ParseAppState(rawAppState)
	if err != nil {
		span.SetAttributes(attribute.Bool("request.valid", false))
		return nil, err
	}

	account := Fingerprint(state)
	span.SetAttributes(attribute.String("account", account))

	var handle domain.MessengerHandle
	err = s.batches.call(ctx, func(ctx context.Context) error {
		var err error
		handle, err = s.auth.Login(ctx, state)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.Bool("auth.success", false))
		return nil, fmt.Errorf("login account %s: %w", account, err)
	}

	sessionID, err := s.sessions.Create(handle, account)
	if err != nil {
		span.RecordError(err)
		_ = handle.Logout(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("store session for account %s: %w", account, err)
	}

	span.SetAttributes(attribute.Bool("auth.success", true))
	span.AddEvent("session.created")
	logger.FromContext(ctx).Info().Str("account", account).Int("active", s.sessions.Size()).Msg("Session created")

	return &domain.LoginResponse{
		Success:   true,
		SessionID: sessionID,
		Message:   "Login successful",
	}, nil
}

// ListGroups returns the group threads visible to the session.
func (s *AdminService) ListGroups(ctx context.Context, sessionID string) ([]domain.Group, error) {
	ctx, span := middleware.StartSpan(ctx, "admin.list_groups", trace.WithAttributes(
		attribute.String("layer", "logic"),
	))
	defer span.End()

	handle, err := s.resolve(sessionID)
	if err != nil {
		span.SetAttributes(attribute.Bool("session.valid", false))
		return nil, err
	}

	var threads []domain.Thread
	err = s.batches.call(ctx, func(ctx context.Context) error {
		var err error
		threads, err = handle.GetThreadList(ctx, threadListLimit, "", threadListTags)
		return err
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("list threads: %w", err)
	}

	groups := make([]domain.Group, 0, len(threads))
	for _, t := range threads {
		if !t.IsGroup {
			continue
		}
		name := t.Name
		if name == "" {
			name = unnamedGroupName
		}
		groups = append(groups, domain.Group{
			ID:          t.ID,
			Name:        name,
			MemberCount: len(t.ParticipantIDs),
		})
	}

	span.SetAttributes(
		attribute.Int("threads.total", len(threads)),
		attribute.Int("threads.groups", len(groups)),
	)
	return groups, nil
}

// ChangeAll renames a group and/or forces a nickname on all of its members.
// Concurrent requests for the same session and group run one after another,
// and the session cannot idle out while its run is in progress.
func (s *AdminService) ChangeAll(ctx context.Context, req domain.ChangeAllRequest) (*domain.ChangeAllResponse, error) {
	ctx, span := middleware.StartSpan(ctx, "admin.change_all", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.String("group.id", req.GroupID),
	))
	defer span.End()

	if req.SessionID == "" || req.GroupID == "" {
		return nil, fmt.Errorf("sessionId and groupId: %w", ErrMissingFields)
	}
	mutation := domain.Mutation{
		GroupName: nonBlank(req.GroupName),
		Nickname:  nonBlank(req.Nickname),
	}
	if mutation.IsEmpty() {
		return nil, fmt.Errorf("change group %s: %w", req.GroupID, ErrEmptyMutation)
	}

	release, err := s.locks.Acquire(ctx, req.SessionID, req.GroupID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("wait for running batch on group %s: %w", req.GroupID, err)
	}
	defer release()

	// Resolved under the lock: a queued run must not start on a session
	// that was logged out while it waited.
	lease, err := s.sessions.Pin(req.SessionID)
	if err != nil {
		span.SetAttributes(attribute.Bool("session.valid", false))
		return nil, fmt.Errorf("lookup session: %w", ErrSessionNotFound)
	}
	defer lease.Release()

	started := s.clock.Now()
	result, runErr := s.batches.Apply(ctx, lease.Handle, req.GroupID, mutation)

	run := domain.BatchRun{
		SessionID:            req.SessionID,
		AccountFingerprint:   lease.Fingerprint,
		GroupID:              req.GroupID,
		RequestedGroupName:   mutation.GroupName,
		RequestedNickname:    mutation.Nickname,
		GroupNameChanged:     result.GroupNameChanged,
		NicknameSuccessCount: result.NicknameSuccessCount,
		NicknameFailureCount: result.NicknameFailureCount,
		MembersTargeted:      result.MembersTargeted,
		Cancelled:            result.Cancelled,
		StartedAt:            started,
		FinishedAt:           s.clock.Now(),
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}
	if err := s.runs.Record(context.WithoutCancel(ctx), run); err != nil {
		span.RecordError(fmt.Errorf("record batch run: %w", err))
		logger.FromContext(ctx).Warn().Err(err).Msg("Failed to record batch run")
	}

	if runErr != nil && !errors.Is(runErr, ErrRunCancelled) {
		span.RecordError(runErr)
		return nil, runErr
	}

	return &domain.ChangeAllResponse{
		Success: true,
		Message: summarize(mutation, result),
		NicknameChanges: domain.NicknameChanges{
			Success: result.NicknameSuccessCount,
			Failed:  result.NicknameFailureCount,
		},
		GroupNameChanged: result.GroupNameChanged,
		Cancelled:        result.Cancelled,
	}, nil
}

// StartMonitoring begins watching a group for drift.
func (s *AdminService) StartMonitoring(ctx context.Context, sessionID, groupID string) error {
	_, span := middleware.StartSpan(ctx, "admin.start_monitoring", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.String("group.id", groupID),
	))
	defer span.End()

	if sessionID == "" || groupID == "" {
		return fmt.Errorf("sessionId and groupId: %w", ErrMissingFields)
	}
	handle, err := s.resolve(sessionID)
	if err != nil {
		return err
	}

	started := s.monitor.Start(sessionID, groupID, handle)
	span.SetAttributes(attribute.Bool("monitor.started", started))
	return nil
}

// StopMonitoring stops watching a group. Stopping an unwatched group is not an error.
func (s *AdminService) StopMonitoring(ctx context.Context, sessionID, groupID string) error {
	_, span := middleware.StartSpan(ctx, "admin.stop_monitoring", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.String("group.id", groupID),
	))
	defer span.End()

	if sessionID == "" || groupID == "" {
		return fmt.Errorf("sessionId and groupId: %w", ErrMissingFields)
	}
	if _, err := s.SessionStatus(ctx, sessionID); err != nil {
		return err
	}

	stopped := s.monitor.Stop(sessionID, groupID)
	span.SetAttributes(attribute.Bool("monitor.stopped", stopped))
	return nil
}

// MonitoringStatus reports what the monitor has seen for a group.
func (s *AdminService) MonitoringStatus(ctx context.Context, sessionID, groupID string) (domain.MonitorStatus, error) {
	if _, err := s.SessionStatus(ctx, sessionID); err != nil {
		return domain.MonitorStatus{}, err
	}
	return s.monitor.Status(sessionID, groupID), nil
}

// SessionStatus reports a live session's timestamps without refreshing it.
func (s *AdminService) SessionStatus(_ context.Context, sessionID string) (*domain.SessionStatus, error) {
	info, err := s.sessions.Info(sessionID)
	if err != nil {
		return nil, fmt.Errorf("lookup session: %w", ErrSessionNotFound)
	}
	return &domain.SessionStatus{
		Active:    true,
		CreatedAt: info.CreatedAt,
		LastUsed:  info.LastUsedAt,
	}, nil
}

// Logout ends a session. Unknown ids are ignored.
func (s *AdminService) Logout(ctx context.Context, sessionID string) {
	ctx, span := middleware.StartSpan(ctx, "admin.logout", trace.WithAttributes(
		attribute.String("layer", "logic"),
	))
	defer span.End()

	s.sessions.Remove(ctx, sessionID)
}

// Health reports liveness and the number of live sessions.
func (s *AdminService) Health() domain.HealthResponse {
	return domain.HealthResponse{
		Status:            "ok",
		ActiveConnections: s.sessions.Size(),
		Timestamp:         s.clock.Now().UTC(),
	}
}

func (s *AdminService) resolve(sessionID string) (domain.MessengerHandle, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("sessionId: %w", ErrMissingFields)
	}
	handle, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, fmt.Errorf("lookup session: %w", ErrSessionNotFound)
	}
	return handle, nil
}

func nonBlank(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func summarize(m domain.Mutation, r domain.MutationBatchResult) string {
	var parts []string
	if m.GroupName != nil {
		if r.GroupNameChanged {
			parts = append(parts, "Group name changed")
		} else {
			parts = append(parts, "Group name change failed")
		}
	}
	if m.Nickname != nil {
		parts = append(parts, fmt.Sprintf("Nicknames changed for %d member(s), %d failed",
			r.NicknameSuccessCount, r.NicknameFailureCount))
	}
	msg := strings.Join(parts, ". ")
	if r.Cancelled {
		msg += ". Run cancelled before completion"
	}
	return msg
}
