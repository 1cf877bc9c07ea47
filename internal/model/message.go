package model

import (
	"fmt"
	"time"
)

type SenderType string

const (
	SenderTypeUser  SenderType = "user"
	SenderTypeBot   SenderType = "bot"
	SenderTypeAdmin SenderType = "admin"
)

func ParseSenderType(raw string) (SenderType, error) {
	switch s := SenderType(raw); s {
	case SenderTypeUser, SenderTypeBot, SenderTypeAdmin:
		return s, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSenderType, raw)
}

type MessageMetadata struct {
	Confidence *float64 `json:"confidence,omitempty"`
	Phase      string   `json:"phase,omitempty"`
}

type Message struct {
	ID         string           `json:"id"`
	SessionID  string           `json:"sessionId"`
	SenderType SenderType       `json:"senderType"`
	Content    string           `json:"content"`
	CreatedAt  time.Time        `json:"createdAt"`
	Metadata   *MessageMetadata `json:"metadata,omitempty"`
}

// Typing is a best-effort indicator from the other side of a session.
type Typing struct {
	SessionID  string     `json:"sessionId"`
	SenderType SenderType `json:"senderType,omitempty"`
	IsTyping   bool       `json:"isTyping"`
}

// SessionDetail is a session together with its full message history.
type SessionDetail struct {
	Session  Session
	Messages []Message
}
