package dto

type SelectSessionRequest struct {
	SessionID string `json:"sessionId"`
}

// ClearNewSessionsRequest clears every new flag when IDs is empty.
type ClearNewSessionsRequest struct {
	IDs []string `json:"ids,omitempty"`
}

type ResolvedPageRequest struct {
	Page int `json:"page"`
}

type SendMessageBody struct {
	Content string `json:"content"`
}

type SendMessageResponse struct {
	Sent   bool   `json:"sent"`
	Status string `json:"status"`
}

type DraftRequest struct {
	Body string `json:"body"`
}

type DraftResponse struct {
	SessionID string `json:"sessionId"`
	Body      string `json:"body"`
}

type TypingRequest struct {
	IsTyping bool `json:"isTyping"`
}
