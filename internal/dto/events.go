package dto

// Console event types pushed to browsers.
const (
	ConsoleRosterUpdated   = "roster.updated"
	ConsoleRosterError     = "roster.error"
	ConsoleSessionSelected = "session.selected"
	ConsoleSessionMessage  = "session.message"
	ConsoleSessionStatus   = "session.status"
	ConsoleSessionTyping   = "session.typing"
	ConsoleChannelState    = "channel.state"
)

// ConsoleEvent is one projection change. Data holds the event-specific view.
type ConsoleEvent struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}
