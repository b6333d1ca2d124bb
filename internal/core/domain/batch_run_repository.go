package domain

import (
	"context"
	"time"
)

// BatchRun is the audit record of one orchestrator run.
type BatchRun struct {
	SessionID            string
	AccountFingerprint   string
	GroupID              string
	RequestedGroupName   *string
	RequestedNickname    *string
	GroupNameChanged     bool
	NicknameSuccessCount int
	NicknameFailureCount int
	MembersTargeted      int
	Cancelled            bool
	Error                string
	StartedAt            time.Time
	FinishedAt           time.Time
}

// BatchRunRepository defines the data-access contract for the batch run audit log.
// Implementations live in internal/core/repository (Core layer).
type BatchRunRepository interface {
	// Record appends one run to the audit log.
	Record(ctx context.Context, run BatchRun) error
}
