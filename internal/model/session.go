package model

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrUnknownStatus     = errors.New("model: unknown session status")
	ErrUnknownSenderType = errors.New("model: unknown sender type")
)

type SessionStatus string

const (
	SessionStatusBotHandling   SessionStatus = "bot_handling"
	SessionStatusWaitingAdmin  SessionStatus = "waiting_admin"
	SessionStatusAdminHandling SessionStatus = "admin_handling"
	SessionStatusResolved      SessionStatus = "resolved"
)

// ParseSessionStatus narrows a wire value. Anything outside the four known
// states is an error, never passed through.
func ParseSessionStatus(raw string) (SessionStatus, error) {
	switch s := SessionStatus(raw); s {
	case SessionStatusBotHandling, SessionStatusWaitingAdmin, SessionStatusAdminHandling, SessionStatusResolved:
		return s, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStatus, raw)
}

// CanTakeover reports whether an admin may take the session over from s.
func (s SessionStatus) CanTakeover() bool {
	return s == SessionStatusWaitingAdmin || s == SessionStatusBotHandling
}

func (s SessionStatus) CanResolve() bool {
	return s == SessionStatusAdminHandling
}

// CanSend is the only gate for admin messages.
func (s SessionStatus) CanSend() bool {
	return s == SessionStatusAdminHandling
}

func (s SessionStatus) IsTerminal() bool {
	return s == SessionStatusResolved
}

type UserRef struct {
	ID         string `json:"id"`
	Nickname   string `json:"nickname,omitempty"`
	University string `json:"university,omitempty"`
	Phone      string `json:"phone,omitempty"`
}

type Session struct {
	ID              string            `json:"sessionId"`
	Status          SessionStatus     `json:"status"`
	Language        string            `json:"language,omitempty"`
	Domain          string            `json:"domain,omitempty"`
	User            UserRef           `json:"user"`
	CollectedInfo   map[string]string `json:"collectedInfo,omitempty"`
	CreatedAt       time.Time         `json:"createdAt"`
	MessageCount    int               `json:"messageCount"`
	LastMessage     string            `json:"lastMessage,omitempty"`
	AssignedAdminID string            `json:"assignedAdminId,omitempty"`
}

// StatusChange is a server-confirmed or server-pushed status transition.
type StatusChange struct {
	SessionID       string
	OldStatus       SessionStatus
	NewStatus       SessionStatus
	AssignedAdminID string
}

type Pagination struct {
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

// SessionPage is one page of a status-filtered roster query.
type SessionPage struct {
	Sessions   []Session
	Pagination Pagination
}
