package dto

import "encoding/json"

// Realtime event names on the admin chat namespace.
const (
	EventJoinSession          = "join_session"
	EventSendMessage          = "send_message"
	EventTyping               = "typing"
	EventAck                  = "ack"
	EventNewMessage           = "new_message"
	EventSessionStatusChanged = "session_status_changed"
)

// Envelope frames every realtime message in both directions.
type Envelope struct {
	Event string          `json:"event"`
	AckID string          `json:"ackId,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type JoinSessionRequest struct {
	SessionID string `json:"sessionId"`
}

type SendMessageRequest struct {
	SessionID string `json:"sessionId"`
	Content   string `json:"content"`
}

type TypingPayload struct {
	SessionID  string `json:"sessionId"`
	SenderType string `json:"senderType,omitempty"`
	IsTyping   bool   `json:"isTyping"`
}

type Ack struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type NewMessageEvent struct {
	SessionID string         `json:"sessionId"`
	Message   MessagePayload `json:"message"`
}

type StatusChangedEvent struct {
	SessionID       string `json:"sessionId"`
	OldStatus       string `json:"oldStatus"`
	NewStatus       string `json:"newStatus"`
	AssignedAdminID string `json:"assignedAdminId,omitempty"`
}
