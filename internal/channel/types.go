package channel

import (
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"support-console/internal/jwt"
	"support-console/internal/model"

	"github.com/gorilla/websocket"
)

// Namespace is the realtime path admin chat channels live under.
const Namespace = "/admin-chat"

var (
	ErrNotJoined        = errors.New("channel: session not joined")
	ErrAckTimeout       = errors.New("channel: acknowledgement timed out")
	ErrClosed           = errors.New("channel: closed")
	ErrDisconnected     = errors.New("channel: transport disconnected")
	ErrUnauthorized     = errors.New("channel: unauthorized")
	ErrJoinRejected     = errors.New("channel: join rejected")
	ErrRejected         = errors.New("channel: request rejected")
	ErrRetriesExhausted = errors.New("channel: reconnect attempts exhausted")
)

// State mirrors what the admin sees about the open session's link.
type State struct {
	Connected     bool   `json:"connected"`
	SessionJoined bool   `json:"sessionJoined"`
	Retrying      bool   `json:"retrying"`
	Error         string `json:"error,omitempty"`
}

// Handlers receive inbound events for the channel's session. Calls never
// overlap and none runs after Close returns, so a handler must not call Close
// on its own channel.
type Handlers struct {
	OnNewMessage    func(model.Message)
	OnStatusChanged func(model.StatusChange)
	OnTyping        func(model.Typing)
	OnStateChange   func(State)
}

type Config struct {
	// URL is the full websocket endpoint, namespace included.
	URL          string
	Tokens       jwt.TokenSource
	Dialer       *websocket.Dialer
	MaxRetries   int
	RetryDelay   time.Duration
	AckTimeout   time.Duration
	PingInterval time.Duration
	Logger       *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.Dialer == nil {
		c.Dialer = &websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = time.Second
	}
	if c.AckTimeout <= 0 {
		c.AckTimeout = 10 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// EndpointURL joins the realtime base URL with the admin namespace, mapping
// http(s) to ws(s).
func EndpointURL(base string) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = strings.TrimRight(u.Path, "/") + Namespace
	return u.String(), nil
}
