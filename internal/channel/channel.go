// Package channel keeps one realtime link to the support backend for the
// session an admin has open.
package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"support-console/internal/dto"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type ackResult struct {
	ack dto.Ack
	err error
}

// Channel is bound to a single session for its whole life. A different
// session needs a new Channel.
type Channel struct {
	cfg       Config
	sessionID string
	handlers  Handlers

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	state    State
	conn     *websocket.Conn
	pending  map[string]chan ackResult
	closed   bool
	terminal error
	changed  chan struct{}

	writeMu sync.Mutex
	// deliverMu serializes handler calls and lets Close wait them out.
	deliverMu sync.Mutex
}

// Open starts connecting to sessionID and returns immediately. Progress is
// reported through Handlers.OnStateChange and Ready.
func Open(ctx context.Context, cfg Config, sessionID string, handlers Handlers) (*Channel, error) {
	if sessionID == "" {
		return nil, errors.New("channel: session id required")
	}
	if cfg.URL == "" {
		return nil, errors.New("channel: endpoint url required")
	}
	if cfg.Tokens == nil {
		return nil, fmt.Errorf("%w: no token source", ErrUnauthorized)
	}
	cfg = cfg.withDefaults()

	runCtx, cancel := context.WithCancel(ctx)
	c := &Channel{
		cfg:       cfg,
		sessionID: sessionID,
		handlers:  handlers,
		ctx:       runCtx,
		cancel:    cancel,
		done:      make(chan struct{}),
		pending:   make(map[string]chan ackResult),
		changed:   make(chan struct{}),
	}
	openChannels.Inc()
	go c.run()
	return c, nil
}

func (c *Channel) SessionID() string {
	return c.sessionID
}

func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Done is closed once the connection loop has exited.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// Ready blocks until the session is joined, the channel gives up, or ctx ends.
func (c *Channel) Ready(ctx context.Context) error {
	for {
		c.mu.Lock()
		switch {
		case c.state.SessionJoined:
			c.mu.Unlock()
			return nil
		case c.closed:
			c.mu.Unlock()
			return ErrClosed
		case c.terminal != nil:
			err := c.terminal
			c.mu.Unlock()
			return err
		}
		changed := c.changed
		c.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close tears the link down and resets state to its initial values. A handler
// already running is waited for, and none starts after Close returns. It does
// not wait for the loop to exit.
func (c *Channel) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.state = State{}
	conn := c.conn
	c.conn = nil
	c.failPendingLocked(ErrClosed)
	c.broadcastLocked()
	c.mu.Unlock()

	c.cancel()
	if conn != nil {
		c.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		conn.Close()
	}
	openChannels.Dec()

	c.deliverMu.Lock()
	c.deliverMu.Unlock()
}

// Send emits an admin message and waits for the server's acknowledgement.
// Without a joined session nothing is transmitted.
func (c *Channel) Send(ctx context.Context, content string) error {
	conn, err := c.joinedConn()
	if err != nil {
		return err
	}
	ack, err := c.request(ctx, conn, dto.EventSendMessage, dto.SendMessageRequest{
		SessionID: c.sessionID,
		Content:   content,
	})
	if err != nil {
		return err
	}
	if !ack.Success {
		return fmt.Errorf("%w: %s", ErrRejected, ack.Error)
	}
	return nil
}

// Typing is best-effort and unacknowledged.
func (c *Channel) Typing(isTyping bool) error {
	conn, err := c.joinedConn()
	if err != nil {
		return err
	}
	return c.write(conn, dto.EventTyping, "", dto.TypingPayload{SessionID: c.sessionID, IsTyping: isTyping})
}

func (c *Channel) joinedConn() (*websocket.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	if !c.state.Connected || !c.state.SessionJoined || c.conn == nil {
		return nil, ErrNotJoined
	}
	return c.conn, nil
}

func (c *Channel) run() {
	defer close(c.done)

	failures := 0
	for {
		if c.ctx.Err() != nil {
			return
		}

		err := c.connectOnce()
		if c.ctx.Err() != nil {
			return
		}
		if errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrJoinRejected) {
			c.stop(err)
			return
		}
		if errors.Is(err, errSessionEnded) {
			failures = 1
		} else {
			failures++
		}
		if failures > c.cfg.MaxRetries {
			c.stop(fmt.Errorf("%w: %v", ErrRetriesExhausted, err))
			return
		}

		c.update(func(s *State) {
			s.Connected = false
			s.SessionJoined = false
			s.Retrying = true
			s.Error = err.Error()
		})
		c.cfg.Logger.Warn("realtime channel retrying", "session_id", c.sessionID, "attempt", failures, "error", err)

		select {
		case <-c.ctx.Done():
			return
		case <-time.After(c.cfg.RetryDelay):
		}
	}
}

// errSessionEnded marks a drop after a successful join. The retry budget
// restarts from the first attempt.
var errSessionEnded = errors.New("channel: connection lost")

// connectOnce dials, joins and then reads until the transport drops.
func (c *Channel) connectOnce() error {
	// Read fresh on every attempt so a rotated token is picked up.
	token, err := c.cfg.Tokens.Token(c.ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	conn, resp, err := c.cfg.Dialer.DialContext(c.ctx, c.cfg.URL, header)
	if err != nil {
		observeConnect("failure")
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return fmt.Errorf("%w: handshake status %d", ErrUnauthorized, resp.StatusCode)
		}
		return fmt.Errorf("connect: %w", err)
	}
	observeConnect("success")

	if !c.attach(conn) {
		conn.Close()
		return ErrClosed
	}

	readDone := make(chan error, 1)
	go func() {
		err := c.readLoop(conn)
		c.detach(conn, err)
		readDone <- err
	}()
	stopPing := make(chan struct{})
	go c.keepAlive(conn, stopPing)
	defer close(stopPing)

	if err := c.join(conn); err != nil {
		conn.Close()
		<-readDone
		return err
	}

	err = <-readDone
	return fmt.Errorf("%w: %v", errSessionEnded, err)
}

func (c *Channel) join(conn *websocket.Conn) error {
	ctx, cancel := context.WithTimeout(c.ctx, c.cfg.AckTimeout)
	defer cancel()

	ack, err := c.request(ctx, conn, dto.EventJoinSession, dto.JoinSessionRequest{SessionID: c.sessionID})
	if err != nil {
		observeJoin("error")
		return fmt.Errorf("join %s: %w", c.sessionID, err)
	}
	if !ack.Success {
		observeJoin("rejected")
		c.update(func(s *State) {
			s.SessionJoined = false
			s.Error = fmt.Sprintf("join rejected: %s", ack.Error)
		})
		return fmt.Errorf("%w: %s", ErrJoinRejected, ack.Error)
	}
	observeJoin("success")
	c.update(func(s *State) {
		s.SessionJoined = true
		s.Retrying = false
		s.Error = ""
	})
	c.cfg.Logger.Info("joined session channel", "session_id", c.sessionID)
	return nil
}

func (c *Channel) request(ctx context.Context, conn *websocket.Conn, event string, payload any) (dto.Ack, error) {
	id := uuid.NewString()
	wait := make(chan ackResult, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return dto.Ack{}, ErrClosed
	}
	c.pending[id] = wait
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.write(conn, event, id, payload); err != nil {
		observeAck(event, "write_error")
		return dto.Ack{}, err
	}

	timer := time.NewTimer(c.cfg.AckTimeout)
	defer timer.Stop()

	select {
	case res := <-wait:
		if res.err != nil {
			observeAck(event, "error")
			return dto.Ack{}, res.err
		}
		if res.ack.Success {
			observeAck(event, "success")
		} else {
			observeAck(event, "rejected")
		}
		return res.ack, nil
	case <-timer.C:
		observeAck(event, "timeout")
		return dto.Ack{}, ErrAckTimeout
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			observeAck(event, "timeout")
			return dto.Ack{}, ErrAckTimeout
		}
		return dto.Ack{}, ctx.Err()
	case <-c.ctx.Done():
		return dto.Ack{}, ErrClosed
	}
}

func (c *Channel) write(conn *websocket.Conn, event, ackID string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("channel: marshal %s: %w", event, err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.WriteJSON(dto.Envelope{Event: event, AckID: ackID, Data: data}); err != nil {
		return fmt.Errorf("channel: write %s: %w", event, err)
	}
	return nil
}

func (c *Channel) keepAlive(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				c.cfg.Logger.Debug("channel ping failed", "session_id", c.sessionID, "error", err)
				return
			}
		}
	}
}

func (c *Channel) attach(conn *websocket.Conn) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	c.conn = conn
	c.mu.Unlock()

	c.update(func(s *State) {
		s.Connected = true
		s.SessionJoined = false
	})
	return true
}

// detach fails every in-flight request on conn. Membership does not survive
// a transport drop, so joined is cleared too.
func (c *Channel) detach(conn *websocket.Conn, cause error) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.failPendingLocked(fmt.Errorf("%w: %v", ErrDisconnected, cause))
	c.mu.Unlock()

	c.update(func(s *State) {
		s.Connected = false
		s.SessionJoined = false
	})
}

func (c *Channel) stop(err error) {
	c.mu.Lock()
	c.terminal = err
	c.mu.Unlock()

	c.update(func(s *State) {
		s.Connected = false
		s.SessionJoined = false
		s.Retrying = false
		s.Error = err.Error()
	})
	c.cfg.Logger.Error("realtime channel stopped", "session_id", c.sessionID, "error", err)
}

// update mutates state and reports it, unless the channel is closed.
func (c *Channel) update(fn func(*State)) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	fn(&c.state)
	snapshot := c.state
	c.broadcastLocked()
	c.mu.Unlock()

	if h := c.handlers.OnStateChange; h != nil {
		c.deliver(func() { h(snapshot) })
	}
}

// deliver runs a handler call unless the channel is closed.
func (c *Channel) deliver(fn func()) {
	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()
	if c.isClosed() {
		return
	}
	fn()
}

func (c *Channel) broadcastLocked() {
	close(c.changed)
	c.changed = make(chan struct{})
}

func (c *Channel) failPendingLocked(err error) {
	for id, wait := range c.pending {
		select {
		case wait <- ackResult{err: err}:
		default:
		}
		delete(c.pending, id)
	}
}

func (c *Channel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
