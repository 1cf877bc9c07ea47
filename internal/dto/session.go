package dto

import "encoding/json"

type UserPayload struct {
	ID         string `json:"id"`
	Nickname   string `json:"nickname,omitempty"`
	University string `json:"university,omitempty"`
	Phone      string `json:"phone,omitempty"`
}

// SessionPayload is a session as the support backend sends it, before
// narrowing.
type SessionPayload struct {
	SessionID       string            `json:"sessionId"`
	Status          string            `json:"status"`
	Language        string            `json:"language,omitempty"`
	Domain          string            `json:"domain,omitempty"`
	User            *UserPayload      `json:"user,omitempty"`
	CollectedInfo   map[string]string `json:"collectedInfo,omitempty"`
	CreatedAt       string            `json:"createdAt"`
	MessageCount    int               `json:"messageCount"`
	LastMessage     string            `json:"lastMessage,omitempty"`
	AssignedAdminID string            `json:"assignedAdminId,omitempty"`
}

type MessagePayload struct {
	ID         string          `json:"id"`
	SessionID  string          `json:"sessionId,omitempty"`
	SenderType string          `json:"senderType"`
	Content    string          `json:"content"`
	CreatedAt  string          `json:"createdAt"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
}

type MetadataPayload struct {
	Confidence *float64 `json:"confidence,omitempty"`
	Phase      string   `json:"phase,omitempty"`
}

type PaginationPayload struct {
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

type ListSessionsResponse struct {
	Sessions   []SessionPayload  `json:"sessions"`
	Pagination PaginationPayload `json:"pagination"`
}

type SessionDetailResponse struct {
	SessionPayload
	Messages []MessagePayload `json:"messages"`
}

type ResolveSessionRequest struct {
	ClosingMessage string `json:"closingMessage,omitempty"`
}

// SessionActionResponse is returned by takeover and resolve.
type SessionActionResponse struct {
	SessionID       string `json:"sessionId"`
	Status          string `json:"status"`
	AssignedAdminID string `json:"assignedAdminId,omitempty"`
}

type BackendErrorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}
