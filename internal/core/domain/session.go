package domain

import (
	"context"
	"errors"
	"time"
)

// ErrSessionNotFound is returned for session ids that were never issued,
// were logged out, or have expired.
var ErrSessionNotFound = errors.New("session not found")

// SessionInfo is a read-only view of a stored session.
type SessionInfo struct {
	ID          string
	Fingerprint string
	CreatedAt   time.Time
	LastUsedAt  time.Time
}

// SessionLease is a session checked out by a long-running operation.
// The session does not expire while the lease is held. Release must be
// called once the operation is over; extra calls are no-ops.
type SessionLease struct {
	ID          string
	Handle      MessengerHandle
	Fingerprint string
	Release     func()
}

// SessionStore defines the contract of the in-memory session registry.
// The implementation lives in internal/core/session.
type SessionStore interface {
	// Create stores handle under a fresh unique id.
	Create(handle MessengerHandle, fingerprint string) (string, error)

	// Get returns the handle and marks the session as used.
	// Returns ErrSessionNotFound for unknown or expired ids.
	Get(id string) (MessengerHandle, error)

	// Pin marks the session as used and keeps it from expiring until the
	// lease is released. Returns ErrSessionNotFound for unknown or expired ids.
	Pin(id string) (SessionLease, error)

	// Info returns the session timestamps without marking it as used.
	Info(id string) (SessionInfo, error)

	// Remove logs the handle out (best effort) and forgets the session.
	// It is a no-op for unknown ids.
	Remove(ctx context.Context, id string)

	// Size returns the number of live sessions.
	Size() int
}
