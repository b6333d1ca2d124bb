// Package v1 provides the group administration business logic for API version 1.
//
// Error Handling:
// This package defines sentinel errors for the request failures a handler must
// tell apart. They are wrapped with context using fmt.Errorf("%w") when
// returned from business logic methods.
//
// Example Usage:
//
//	if _, err := s.sessions.Get(sessionID); err != nil {
//	    return nil, fmt.Errorf("resolve session: %w", ErrSessionNotFound)
//	}
//
// Error Checking (in handlers):
//
//	switch {
//	case errors.Is(err, logicv1.ErrSessionNotFound):
//	    c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired session"})
//	case errors.Is(err, logicv1.ErrEmptyMutation):
//	    c.JSON(http.StatusBadRequest, gin.H{"error": "At least one of nickname or groupName is required"})
//	default:
//	    c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
//	}
//
// Per-member nickname failures are not errors at this level: the orchestrator
// counts them and keeps going.
package v1

import "errors"

// Sentinel errors for group administration operations.
var (
	// ErrInvalidAppState indicates the uploaded appState is not a non-empty JSON array.
	// HTTP Status: 400 Bad Request
	ErrInvalidAppState = errors.New("invalid appState format")

	// ErrMissingFields indicates a required request field is absent.
	// HTTP Status: 400 Bad Request
	ErrMissingFields = errors.New("missing required fields")

	// ErrEmptyMutation indicates neither a group name nor a nickname was requested.
	// HTTP Status: 400 Bad Request
	ErrEmptyMutation = errors.New("nothing to change")

	// ErrSessionNotFound indicates the session id is unknown, logged out or expired.
	// HTTP Status: 401 Unauthorized
	ErrSessionNotFound = errors.New("session not found")

	// ErrMemberListUnavailable indicates the group member snapshot could not be fetched.
	// HTTP Status: 500 Internal Server Error
	ErrMemberListUnavailable = errors.New("member list unavailable")

	// ErrRunCancelled indicates a batch run stopped early because its context ended.
	// The partial result is still returned alongside it.
	ErrRunCancelled = errors.New("batch run cancelled")
)
