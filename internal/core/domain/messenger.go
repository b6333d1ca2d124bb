package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrAuthRejected indicates the platform refused the supplied credentials.
var ErrAuthRejected = errors.New("authentication rejected")

// AppState is the cookie array exported from an authenticated browser
// session. Elements are kept as raw JSON so the bridge receives them
// exactly as uploaded.
type AppState []json.RawMessage

// Thread is one conversation as listed by the platform.
type Thread struct {
	ID             string   `json:"threadID"`
	Name           string   `json:"name"`
	IsGroup        bool     `json:"isGroup"`
	ParticipantIDs []string `json:"participantIDs"`
}

// ThreadInfo is the detailed view of a single conversation.
type ThreadInfo struct {
	ID             string            `json:"threadID"`
	Name           string            `json:"threadName"`
	IsGroup        bool              `json:"isGroup"`
	ParticipantIDs []string          `json:"participantIDs"`
	Nicknames      map[string]string `json:"nicknames"`
}

// MessengerHandle is an authenticated connection to the messaging platform.
// Every method is a blocking call that may fail independently of the others.
type MessengerHandle interface {
	// GetThreadList returns up to limit threads older than the before cursor
	// (empty for the newest), restricted to the given folder tags.
	GetThreadList(ctx context.Context, limit int, before string, tags []string) ([]Thread, error)

	// GetThreadInfo returns the current details of one thread.
	GetThreadInfo(ctx context.Context, threadID string) (*ThreadInfo, error)

	// SetTitle renames a group thread.
	SetTitle(ctx context.Context, title, threadID string) error

	// ChangeNickname sets the nickname of userID inside threadID.
	ChangeNickname(ctx context.Context, nickname, threadID, userID string) error

	// Logout ends the platform session. The handle is unusable afterwards.
	Logout(ctx context.Context) error
}

// Authenticator exchanges credentials for a MessengerHandle.
type Authenticator interface {
	// Login returns ErrAuthRejected (possibly wrapped in an *UpstreamError)
	// when the platform refuses the credentials.
	Login(ctx context.Context, appState AppState) (MessengerHandle, error)
}

// UpstreamError is a non-success answer from the messaging bridge.
type UpstreamError struct {
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *UpstreamError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: upstream status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: upstream status %d: %s", e.Op, e.Status, e.Message)
}

func (e *UpstreamError) Unwrap() error { return e.Err }
