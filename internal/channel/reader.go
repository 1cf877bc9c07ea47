package channel

import (
	"encoding/json"
	"fmt"
	"time"

	"support-console/internal/dto"

	"github.com/gorilla/websocket"
)

const maxFrameSize = 512 * 1024

// readLoop consumes frames until the transport fails and returns the cause.
func (c *Channel) readLoop(conn *websocket.Conn) error {
	defer func() {
		if r := recover(); r != nil {
			c.cfg.Logger.Error("recovered from panic in channel read loop", "session_id", c.sessionID, "panic", r)
		}
	}()

	readWait := 2 * c.cfg.PingInterval
	conn.SetReadLimit(maxFrameSize)
	conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ce, ok := err.(*websocket.CloseError); ok {
				return fmt.Errorf("closed by server: %d %s", ce.Code, ce.Text)
			}
			return err
		}
		conn.SetReadDeadline(time.Now().Add(readWait))

		var env dto.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.cfg.Logger.Warn("dropping malformed realtime frame", "session_id", c.sessionID, "error", err)
			continue
		}
		c.dispatch(env)
	}
}

func (c *Channel) dispatch(env dto.Envelope) {
	switch env.Event {
	case dto.EventAck:
		var ack dto.Ack
		if err := json.Unmarshal(env.Data, &ack); err != nil {
			ack = dto.Ack{Error: "malformed acknowledgement"}
		}
		c.resolveAck(env.AckID, ack)

	case dto.EventNewMessage:
		var ev dto.NewMessageEvent
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			c.cfg.Logger.Warn("dropping malformed new_message", "session_id", c.sessionID, "error", err)
			return
		}
		if !c.forThisSession(ev.SessionID) {
			return
		}
		msg, err := dto.ToMessage(ev.Message, c.sessionID)
		if err != nil {
			c.cfg.Logger.Warn("dropping invalid message", "session_id", c.sessionID, "error", err)
			return
		}
		if msg.SessionID != c.sessionID {
			return
		}
		if h := c.handlers.OnNewMessage; h != nil {
			c.deliver(func() { h(msg) })
		}

	case dto.EventSessionStatusChanged:
		var ev dto.StatusChangedEvent
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			c.cfg.Logger.Warn("dropping malformed status change", "session_id", c.sessionID, "error", err)
			return
		}
		if !c.forThisSession(ev.SessionID) {
			return
		}
		change, err := dto.ToStatusChange(ev)
		if err != nil {
			c.cfg.Logger.Warn("dropping invalid status change", "session_id", c.sessionID, "error", err)
			return
		}
		change.SessionID = c.sessionID
		if h := c.handlers.OnStatusChanged; h != nil {
			c.deliver(func() { h(change) })
		}

	case dto.EventTyping:
		var ev dto.TypingPayload
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return
		}
		if !c.forThisSession(ev.SessionID) {
			return
		}
		typing := dto.ToTyping(ev)
		typing.SessionID = c.sessionID
		if h := c.handlers.OnTyping; h != nil {
			c.deliver(func() { h(typing) })
		}

	default:
		c.cfg.Logger.Debug("ignoring realtime event", "session_id", c.sessionID, "event", env.Event)
	}
}

// forThisSession accepts events that omit the session id, since the server
// only routes the joined room to us.
func (c *Channel) forThisSession(id string) bool {
	return id == "" || id == c.sessionID
}

func (c *Channel) resolveAck(id string, ack dto.Ack) {
	if id == "" {
		return
	}
	c.mu.Lock()
	wait, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	select {
	case wait <- ackResult{ack: ack}:
	default:
	}
}
