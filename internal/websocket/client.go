package websocket

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	pingInterval = 30 * time.Second
	readWait     = 2 * pingInterval
	writeWait    = 10 * time.Second
)

// WSClient is one browser following a room. Browsers only listen; anything
// they send is discarded.
type WSClient struct {
	Conn     *websocket.Conn
	Message  chan *WSMessage
	ID       string
	RoomID   string
	logger   *slog.Logger
	done     chan struct{}
	mu       sync.Mutex
	isClosed bool
}

func (cl *WSClient) keepAlive() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-cl.done:
			return
		case <-ticker.C:
			cl.mu.Lock()
			if cl.isClosed {
				cl.mu.Unlock()
				return
			}
			err := cl.Conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			cl.mu.Unlock()

			if err != nil {
				cl.logger.Debug("ping failed", "client_id", cl.ID, "error", err)
				return
			}
		}
	}
}

func (cl *WSClient) writeMessage() {
	defer func() {
		cl.mu.Lock()
		cl.isClosed = true
		cl.Conn.Close()
		cl.mu.Unlock()
	}()

	for {
		select {
		case <-cl.done:
			return
		case msg, ok := <-cl.Message:
			if !ok {
				cl.mu.Lock()
				if !cl.isClosed {
					cl.Conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
						time.Now().Add(writeWait))
				}
				cl.mu.Unlock()
				return
			}

			cl.mu.Lock()
			if cl.isClosed {
				cl.mu.Unlock()
				return
			}
			cl.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := cl.Conn.WriteJSON(msg)
			cl.mu.Unlock()

			if err != nil {
				cl.logger.Warn("event write failed", "client_id", cl.ID, "error", err)
				return
			}
		}
	}
}

func (cl *WSClient) readMessage(hub *Hub) {
	defer func() {
		if r := recover(); r != nil {
			cl.logger.Error("recovered from panic in readMessage", "panic", r)
		}
		close(cl.done)
		select {
		case hub.Unregister <- cl:
		case <-hub.Stopped():
		}
		cl.logger.Info("event client disconnected", "client_id", cl.ID, "room", cl.RoomID)
	}()

	cl.Conn.SetReadLimit(4 * 1024)
	cl.Conn.SetReadDeadline(time.Now().Add(readWait))
	cl.Conn.SetPongHandler(func(string) error {
		return cl.Conn.SetReadDeadline(time.Now().Add(readWait))
	})

	for {
		if _, _, err := cl.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived) {
				cl.logger.Warn("event client read failed", "client_id", cl.ID, "error", err)
			}
			return
		}
	}
}
