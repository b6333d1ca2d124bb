package domain

import (
	"encoding/json"
	"time"
)

// LoginRequest is the JSON form of POST /api/login. AppState may be the
// cookie array itself or a string holding that array.
type LoginRequest struct {
	AppState json.RawMessage `json:"appState"`
}

type LoginResponse struct {
	Success   bool   `json:"success"`
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

// Group is a group thread as shown to the user.
type Group struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	MemberCount int    `json:"memberCount"`
}

type GroupsResponse struct {
	Groups []Group `json:"groups"`
}

// ChangeAllRequest asks for a batch mutation. At least one of Nickname and
// GroupName must be non-empty.
type ChangeAllRequest struct {
	SessionID string  `json:"sessionId" binding:"required"`
	GroupID   string  `json:"groupId" binding:"required"`
	Nickname  *string `json:"nickname"`
	GroupName *string `json:"groupName"`
}

type NicknameChanges struct {
	Success int `json:"success"`
	Failed  int `json:"failed"`
}

type ChangeAllResponse struct {
	Success          bool            `json:"success"`
	Message          string          `json:"message"`
	NicknameChanges  NicknameChanges `json:"nicknameChanges"`
	GroupNameChanged bool            `json:"groupNameChanged"`
	Cancelled        bool            `json:"cancelled,omitempty"`
}

type MonitoringRequest struct {
	SessionID string `json:"sessionId" binding:"required"`
	GroupID   string `json:"groupId" binding:"required"`
}

type MonitoringResponse struct {
	Success    bool `json:"success"`
	Monitoring bool `json:"monitoring"`
}

type SessionStatus struct {
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
	LastUsed  time.Time `json:"lastUsed"`
}

type HealthResponse struct {
	Status            string    `json:"status"`
	ActiveConnections int       `json:"activeConnections"`
	Timestamp         time.Time `json:"timestamp"`
}

// GroupChange is one difference observed by the group monitor between two checks.
type GroupChange struct {
	At     time.Time `json:"at"`
	Kind   string    `json:"kind"`
	UserID string    `json:"userId,omitempty"`
	Old    string    `json:"old,omitempty"`
	New    string    `json:"new,omitempty"`
}

// Group change kinds.
const (
	ChangeGroupName    = "group_name"
	ChangeNickname     = "nickname"
	ChangeMemberJoined = "member_joined"
	ChangeMemberLeft   = "member_left"
)

// MonitorStatus reports what the group monitor has observed so far.
type MonitorStatus struct {
	SessionID       string        `json:"sessionId"`
	GroupID         string        `json:"groupId"`
	Monitoring      bool          `json:"monitoring"`
	StartedAt       *time.Time    `json:"startedAt,omitempty"`
	LastCheckAt     *time.Time    `json:"lastCheckAt,omitempty"`
	Checks          int           `json:"checks"`
	GroupName       string        `json:"groupName,omitempty"`
	MemberCount     int           `json:"memberCount"`
	ChangesDetected int           `json:"changesDetected"`
	RecentChanges   []GroupChange `json:"recentChanges"`
	LastError       string        `json:"lastError,omitempty"`
}
