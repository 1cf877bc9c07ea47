package channel

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"support-console/internal/dto"
	"support-console/internal/jwt"
	"support-console/internal/model"

	"github.com/gorilla/websocket"
)

type serverConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (sc *serverConn) send(t *testing.T, event, ackID string, payload any) {
	t.Helper()
	data, _ := json.Marshal(payload)
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if err := sc.conn.WriteJSON(dto.Envelope{Event: event, AckID: ackID, Data: data}); err != nil {
		t.Logf("server write failed: %v", err)
	}
}

// fakeRealtime plays the admin namespace of the support backend.
type fakeRealtime struct {
	t   *testing.T
	srv *httptest.Server

	denyHandshake bool
	rejectJoin    bool
	silentJoin    bool
	rejectSend    bool
	silentSend    bool

	mu        sync.Mutex
	handshake int
	auth      []string
	sent      []string
	typing    []bool

	joined chan *serverConn
}

func newFakeRealtime(t *testing.T, configure func(*fakeRealtime)) *fakeRealtime {
	t.Helper()
	f := &fakeRealtime{t: t, joined: make(chan *serverConn, 8)}
	if configure != nil {
		configure(f)
	}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.handshake++
		f.auth = append(f.auth, r.Header.Get("Authorization"))
		f.mu.Unlock()

		if r.URL.Path != Namespace {
			http.NotFound(w, r)
			return
		}
		if f.denyHandshake {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		f.serve(&serverConn{conn: conn})
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeRealtime) serve(sc *serverConn) {
	defer sc.conn.Close()
	for {
		var env dto.Envelope
		if err := sc.conn.ReadJSON(&env); err != nil {
			return
		}
		switch env.Event {
		case dto.EventJoinSession:
			if f.silentJoin {
				continue
			}
			if f.rejectJoin {
				sc.send(f.t, dto.EventAck, env.AckID, dto.Ack{Error: "session not assigned"})
				continue
			}
			sc.send(f.t, dto.EventAck, env.AckID, dto.Ack{Success: true})
			f.joined <- sc
		case dto.EventSendMessage:
			var req dto.SendMessageRequest
			json.Unmarshal(env.Data, &req)
			f.mu.Lock()
			f.sent = append(f.sent, req.Content)
			f.mu.Unlock()
			switch {
			case f.silentSend:
			case f.rejectSend:
				sc.send(f.t, dto.EventAck, env.AckID, dto.Ack{Error: "session resolved"})
			default:
				sc.send(f.t, dto.EventAck, env.AckID, dto.Ack{Success: true})
			}
		case dto.EventTyping:
			var p dto.TypingPayload
			json.Unmarshal(env.Data, &p)
			f.mu.Lock()
			f.typing = append(f.typing, p.IsTyping)
			f.mu.Unlock()
		}
	}
}

func (f *fakeRealtime) url(t *testing.T) string {
	t.Helper()
	u, err := EndpointURL(f.srv.URL)
	if err != nil {
		t.Fatalf("EndpointURL: %v", err)
	}
	return u
}

func (f *fakeRealtime) sentMessages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func (f *fakeRealtime) handshakes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handshake
}

func (f *fakeRealtime) waitJoin(t *testing.T) *serverConn {
	t.Helper()
	select {
	case sc := <-f.joined:
		return sc
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for join")
		return nil
	}
}

func testConfig(url string) Config {
	return Config{
		URL:        url,
		Tokens:     jwt.StaticTokenSource("admin-token"),
		MaxRetries: 3,
		RetryDelay: 10 * time.Millisecond,
		AckTimeout: time.Second,
	}
}

func openReady(t *testing.T, cfg Config, sessionID string, h Handlers) *Channel {
	t.Helper()
	c, err := Open(context.Background(), cfg, sessionID, h)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	t.Cleanup(c.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Ready(ctx); err != nil {
		t.Fatalf("Ready returned error: %v", err)
	}
	return c
}

func TestJoinSendsBearerAndSendIsAcknowledged(t *testing.T) {
	f := newFakeRealtime(t, nil)
	c := openReady(t, testConfig(f.url(t)), "s-1", Handlers{})

	if st := c.State(); !st.Connected || !st.SessionJoined || st.Retrying || st.Error != "" {
		t.Fatalf("unexpected state %+v", st)
	}
	if err := c.Send(context.Background(), "hello"); err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	if got := f.sentMessages(); len(got) != 1 || got[0] != "hello" {
		t.Fatalf("unexpected sent messages %v", got)
	}
	f.mu.Lock()
	auth := f.auth[0]
	f.mu.Unlock()
	if auth != "Bearer admin-token" {
		t.Fatalf("unexpected authorization header %q", auth)
	}
}

func TestSendBeforeJoinTransmitsNothing(t *testing.T) {
	f := newFakeRealtime(t, func(f *fakeRealtime) { f.silentJoin = true })
	cfg := testConfig(f.url(t))
	cfg.AckTimeout = time.Minute
	c, err := Open(context.Background(), cfg, "s-1", Handlers{})
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	defer c.Close()

	if err := c.Send(context.Background(), "too early"); !errors.Is(err, ErrNotJoined) {
		t.Fatalf("expected ErrNotJoined, got %v", err)
	}
	if err := c.Typing(true); !errors.Is(err, ErrNotJoined) {
		t.Fatalf("expected ErrNotJoined for typing, got %v", err)
	}
	if got := f.sentMessages(); len(got) != 0 {
		t.Fatalf("nothing should reach the server, got %v", got)
	}
}

func TestSendRejectedByServer(t *testing.T) {
	f := newFakeRealtime(t, func(f *fakeRealtime) { f.rejectSend = true })
	c := openReady(t, testConfig(f.url(t)), "s-1", Handlers{})

	err := c.Send(context.Background(), "hello")
	if !errors.Is(err, ErrRejected) || !strings.Contains(err.Error(), "session resolved") {
		t.Fatalf("expected ErrRejected with server reason, got %v", err)
	}
}

func TestSendAckTimeout(t *testing.T) {
	f := newFakeRealtime(t, func(f *fakeRealtime) { f.silentSend = true })
	cfg := testConfig(f.url(t))
	cfg.AckTimeout = 50 * time.Millisecond
	c := openReady(t, cfg, "s-1", Handlers{})

	if err := c.Send(context.Background(), "hello"); !errors.Is(err, ErrAckTimeout) {
		t.Fatalf("expected ErrAckTimeout, got %v", err)
	}
	if !c.State().SessionJoined {
		t.Fatal("an ack timeout must not drop the session")
	}
}

func TestInboundEventsAreFilteredBySession(t *testing.T) {
	f := newFakeRealtime(t, nil)
	messages := make(chan model.Message, 4)
	statuses := make(chan model.StatusChange, 4)
	openReady(t, testConfig(f.url(t)), "s-1", Handlers{
		OnNewMessage:    func(m model.Message) { messages <- m },
		OnStatusChanged: func(ch model.StatusChange) { statuses <- ch },
	})
	sc := f.waitJoin(t)

	sc.send(t, dto.EventNewMessage, "", dto.NewMessageEvent{
		SessionID: "s-other",
		Message:   dto.MessagePayload{ID: "x", SenderType: "user", Content: "wrong room"},
	})
	sc.send(t, dto.EventNewMessage, "", dto.NewMessageEvent{
		SessionID: "s-1",
		Message:   dto.MessagePayload{ID: "m1", SenderType: "user", Content: "hi"},
	})
	sc.send(t, dto.EventSessionStatusChanged, "", dto.StatusChangedEvent{
		SessionID: "s-1", OldStatus: "admin_handling", NewStatus: "resolved",
	})

	select {
	case m := <-messages:
		if m.ID != "m1" || m.SessionID != "s-1" {
			t.Fatalf("unexpected message %+v", m)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
	select {
	case ch := <-statuses:
		if ch.NewStatus != model.SessionStatusResolved {
			t.Fatalf("unexpected status change %+v", ch)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for status change")
	}
	select {
	case m := <-messages:
		t.Fatalf("message for another session delivered: %+v", m)
	default:
	}
}

func TestMissingCredentialNeverConnects(t *testing.T) {
	f := newFakeRealtime(t, nil)
	cfg := testConfig(f.url(t))
	cfg.Tokens = jwt.StaticTokenSource("")
	c, err := Open(context.Background(), cfg, "s-1", Handlers{})
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Ready(ctx); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if f.handshakes() != 0 {
		t.Fatalf("no handshake expected, got %d", f.handshakes())
	}
}

func TestHandshakeRejectionIsFatal(t *testing.T) {
	f := newFakeRealtime(t, func(f *fakeRealtime) { f.denyHandshake = true })
	c, _ := Open(context.Background(), testConfig(f.url(t)), "s-1", Handlers{})
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Ready(ctx); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	<-c.Done()
	if f.handshakes() != 1 {
		t.Fatalf("an auth rejection must not be retried, got %d handshakes", f.handshakes())
	}
}

func TestJoinRejectionStopsChannel(t *testing.T) {
	f := newFakeRealtime(t, func(f *fakeRealtime) { f.rejectJoin = true })
	c, _ := Open(context.Background(), testConfig(f.url(t)), "s-1", Handlers{})
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Ready(ctx); !errors.Is(err, ErrJoinRejected) {
		t.Fatalf("expected ErrJoinRejected, got %v", err)
	}
	<-c.Done()
	st := c.State()
	if st.SessionJoined || st.Retrying || !strings.Contains(st.Error, "session not assigned") {
		t.Fatalf("unexpected state %+v", st)
	}
}

func TestReconnectRejoinsSession(t *testing.T) {
	f := newFakeRealtime(t, nil)
	c := openReady(t, testConfig(f.url(t)), "s-1", Handlers{})

	first := f.waitJoin(t)
	first.conn.Close()

	f.waitJoin(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Ready(ctx); err != nil {
		t.Fatalf("Ready after reconnect returned error: %v", err)
	}
	if f.handshakes() < 2 {
		t.Fatalf("expected a second handshake, got %d", f.handshakes())
	}
}

func TestRetriesExhausted(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url, _ := EndpointURL(srv.URL)
	srv.Close()

	cfg := testConfig(url)
	cfg.MaxRetries = 2
	var mu sync.Mutex
	var sawRetrying bool
	c, _ := Open(context.Background(), cfg, "s-1", Handlers{
		OnStateChange: func(s State) {
			mu.Lock()
			sawRetrying = sawRetrying || s.Retrying
			mu.Unlock()
		},
	})
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Ready(ctx); !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("expected ErrRetriesExhausted, got %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if !sawRetrying {
		t.Fatal("expected a retrying state before giving up")
	}
}

func TestCloseResetsStateAndSilencesHandlers(t *testing.T) {
	f := newFakeRealtime(t, nil)
	messages := make(chan model.Message, 4)
	c := openReady(t, testConfig(f.url(t)), "s-1", Handlers{
		OnNewMessage: func(m model.Message) { messages <- m },
	})
	sc := f.waitJoin(t)

	c.Close()
	c.Close()
	if st := c.State(); st != (State{}) {
		t.Fatalf("expected zero state after close, got %+v", st)
	}
	if err := c.Send(context.Background(), "late"); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := c.Ready(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed from Ready, got %v", err)
	}

	sc.send(t, dto.EventNewMessage, "", dto.NewMessageEvent{
		SessionID: "s-1",
		Message:   dto.MessagePayload{ID: "m1", SenderType: "user", Content: "after close"},
	})
	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not exit after close")
	}
	select {
	case m := <-messages:
		t.Fatalf("handler ran after close: %+v", m)
	default:
	}
}

func TestEndpointURL(t *testing.T) {
	tests := map[string]string{
		"http://localhost:3000":      "ws://localhost:3000/admin-chat",
		"https://api.example.com/":   "wss://api.example.com/admin-chat",
		"wss://rt.example.com/base/": "wss://rt.example.com/base/admin-chat",
	}
	for in, want := range tests {
		got, err := EndpointURL(in)
		if err != nil {
			t.Fatalf("EndpointURL(%q) returned error: %v", in, err)
		}
		if got != want {
			t.Errorf("EndpointURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCloseWaitsForRunningHandler(t *testing.T) {
	f := newFakeRealtime(t, nil)
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	var closeReturned atomic.Bool
	var late atomic.Int32
	c := openReady(t, testConfig(f.url(t)), "s-1", Handlers{
		OnNewMessage: func(model.Message) {
			entered <- struct{}{}
			<-release
			if closeReturned.Load() {
				late.Add(1)
			}
		},
		OnStateChange: func(State) {
			if closeReturned.Load() {
				late.Add(1)
			}
		},
	})
	sc := f.waitJoin(t)
	sc.send(t, dto.EventNewMessage, "", dto.NewMessageEvent{
		SessionID: "s-1",
		Message:   dto.MessagePayload{ID: "m1", SenderType: "user", Content: "hi"},
	})
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for handler")
	}

	closed := make(chan struct{})
	go func() {
		c.Close()
		closeReturned.Store(true)
		close(closed)
	}()
	select {
	case <-closed:
		t.Fatal("Close returned while a handler was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return after the handler finished")
	}
	<-c.Done()
	if n := late.Load(); n != 0 {
		t.Fatalf("%d handler calls ran after Close returned", n)
	}
}

func TestOpenRequiresTokenSource(t *testing.T) {
	cfg := testConfig("ws://127.0.0.1:1" + Namespace)
	cfg.Tokens = nil
	c, err := Open(context.Background(), cfg, "s-1", Handlers{})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if c != nil {
		t.Fatal("no channel may be returned without a token source")
	}
}
