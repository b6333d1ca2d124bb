package v1

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/duynhne/group-admin-service/internal/core/domain"
	"github.com/duynhne/group-admin-service/internal/logger"
	"github.com/duynhne/group-admin-service/internal/metrics"
	"github.com/duynhne/group-admin-service/middleware"
)

const (
	DefaultCallDelay   = time.Second
	DefaultCallTimeout = 30 * time.Second
)

// OrchestratorConfig tunes the pacing of batch runs.
type OrchestratorConfig struct {
	// CallDelay is the pause between two consecutive nickname calls.
	// Zero disables the pause.
	CallDelay time.Duration
	// CallTimeout bounds every single platform call.
	CallTimeout time.Duration
}

// Orchestrator applies a Mutation to one group through one handle.
// Nickname changes are issued one member at a time, in the order the
// platform listed the members, with CallDelay between calls.
type Orchestrator struct {
	clock       clockwork.Clock
	callDelay   time.Duration
	callTimeout time.Duration
}

func NewOrchestrator(clock clockwork.Clock, cfg OrchestratorConfig) *Orchestrator {
	if cfg.CallDelay < 0 {
		cfg.CallDelay = 0
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	return &Orchestrator{
		clock:       clock,
		callDelay:   cfg.CallDelay,
		callTimeout: cfg.CallTimeout,
	}
}

// Apply renames the group (if requested) and then forces the nickname onto
// every member of a single membership snapshot (if requested).
//
// A failed rename or a failed member never stops the run. If ctx ends, no
// further calls are made and the partial result is returned together with an
// error wrapping ErrRunCancelled. A failed member snapshot returns the result
// so far with an error wrapping ErrMemberListUnavailable.
func (o *Orchestrator) Apply(ctx context.Context, handle domain.MessengerHandle, groupID string, m domain.Mutation) (domain.MutationBatchResult, error) {
	ctx, span := middleware.StartSpan(ctx, "batch.apply", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.String("group.id", groupID),
		attribute.Bool("mutation.group_name", m.GroupName != nil),
		attribute.Bool("mutation.nickname", m.Nickname != nil),
	))
	defer span.End()

	var result domain.MutationBatchResult
	if m.IsEmpty() {
		return result, fmt.Errorf("apply to group %s: %w", groupID, ErrEmptyMutation)
	}

	start := o.clock.Now()
	defer func() {
		metrics.BatchRunDuration.Observe(o.clock.Since(start).Seconds())
		span.SetAttributes(
			attribute.Bool("result.group_name_changed", result.GroupNameChanged),
			attribute.Int("result.nickname_success", result.NicknameSuccessCount),
			attribute.Int("result.nickname_failed", result.NicknameFailureCount),
			attribute.Bool("result.cancelled", result.Cancelled),
		)
	}()

	log := logger.FromContext(ctx)

	if m.GroupName != nil {
		if err := ctx.Err(); err != nil {
			result.Cancelled = true
			return result, fmt.Errorf("rename group %s: %w: %w", groupID, ErrRunCancelled, err)
		}

		err := o.call(ctx, func(ctx context.Context) error {
			return handle.SetTitle(ctx, *m.GroupName, groupID)
		})
		if err != nil {
			span.RecordError(err)
			metrics.GroupRenamesTotal.WithLabelValues("failure").Inc()
			log.Warn().Err(err).Str("group_id", groupID).Msg("Group rename failed")
		} else {
			result.GroupNameChanged = true
			metrics.GroupRenamesTotal.WithLabelValues("success").Inc()
		}
	}

	if m.Nickname == nil {
		return result, nil
	}

	var info *domain.ThreadInfo
	err := o.call(ctx, func(ctx context.Context) error {
		var err error
		info, err = handle.GetThreadInfo(ctx, groupID)
		return err
	})
	if err != nil {
		span.RecordError(err)
		if ctx.Err() != nil {
			result.Cancelled = true
			return result, fmt.Errorf("snapshot members of %s: %w: %w", groupID, ErrRunCancelled, ctx.Err())
		}
		return result, fmt.Errorf("snapshot members of %s: %w: %w", groupID, ErrMemberListUnavailable, err)
	}

	members := info.ParticipantIDs
	result.MembersTargeted = len(members)
	span.AddEvent("members.snapshot", trace.WithAttributes(attribute.Int("members", len(members))))

	for i, userID := range members {
		if i > 0 {
			if err := o.pause(ctx); err != nil {
				result.Cancelled = true
				return result, fmt.Errorf("change nicknames in %s after %d of %d: %w: %w", groupID, i, len(members), ErrRunCancelled, err)
			}
		} else if err := ctx.Err(); err != nil {
			result.Cancelled = true
			return result, fmt.Errorf("change nicknames in %s: %w: %w", groupID, ErrRunCancelled, err)
		}

		err := o.call(ctx, func(ctx context.Context) error {
			return handle.ChangeNickname(ctx, *m.Nickname, groupID, userID)
		})
		if err != nil {
			result.NicknameFailureCount++
			metrics.NicknameChangesTotal.WithLabelValues("failure").Inc()
			log.Warn().Err(err).Str("group_id", groupID).Str("user_id", userID).Msg("Nickname change failed")
			continue
		}
		result.NicknameSuccessCount++
		metrics.NicknameChangesTotal.WithLabelValues("success").Inc()
	}

	return result, nil
}

// call runs one platform call under its own timeout.
func (o *Orchestrator) call(ctx context.Context, fn func(context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
	defer cancel()
	return fn(callCtx)
}

// pause waits CallDelay on the orchestrator clock, returning early if ctx ends.
func (o *Orchestrator) pause(ctx context.Context) error {
	if o.callDelay == 0 {
		return ctx.Err()
	}
	select {
	case <-o.clock.After(o.callDelay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
