package websocket

import "encoding/json"

// Rooms a browser can follow. RoomAll receives every event.
const (
	RoomAll     = "console"
	RoomRoster  = "console:roster"
	RoomSession = "console:session"
)

type Room struct {
	Id      string               `json:"id"`
	Clients map[string]*WSClient `json:"clients"`
}

type WSMessage struct {
	Content   json.RawMessage `json:"content"`
	RoomID    string          `json:"roomId"`
	Timestamp int64           `json:"timestamp"`
}

type RoomRes struct {
	ID      string `json:"id"`
	Clients int    `json:"clients"`
}
