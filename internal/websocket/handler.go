package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type Handler struct {
	hub         *Hub
	redisClient *redis.Client
	upgrader    websocket.Upgrader
	logger      *slog.Logger
}

// NewRedisClient connects the event fan-out. An empty addr disables Redis.
func NewRedisClient(addr, password string) *redis.Client {
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})
}

// NewHandler serves browser event streams. With a nil redisClient events are
// only broadcast inside this process.
func NewHandler(h *Hub, redisClient *redis.Client, allowedOrigins []string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		hub:         h,
		redisClient: redisClient,
		logger:      logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		for _, o := range allowed {
			if o == origin {
				return true
			}
		}
		return false
	}
}

// Publisher returns the publisher matching how this handler receives events.
func (h *Handler) Publisher() Publisher {
	if h.redisClient != nil {
		return NewRedisPublisher(h.redisClient)
	}
	return NewLocalPublisher(h.hub)
}

func (h *Handler) subscribeToRoomChannel(ctx context.Context, roomID string) {
	if _, exists := h.hub.room(roomID); !exists {
		h.logger.Warn("room not found for subscription", "room", roomID)
		return
	}

	h.logger.Info("subscribing to redis channel", "room", roomID)
	subscriber := h.redisClient.Subscribe(ctx, roomID)
	defer subscriber.Close()

	ch := subscriber.Channel()
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("unsubscribed from redis channel", "room", roomID)
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			select {
			case h.hub.Broadcast <- &WSMessage{
				Content:   json.RawMessage(msg.Payload),
				RoomID:    roomID,
				Timestamp: time.Now().Unix(),
			}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// CreateRoom registers id and, with Redis configured, starts its
// subscription. Creating an existing room is a no-op.
func (h *Handler) CreateRoom(ctx context.Context, id string) {
	if !h.hub.addRoom(id) {
		return
	}
	if h.redisClient != nil {
		go h.subscribeToRoomChannel(ctx, id)
	}
}

// CreateConsoleRooms sets up every room console events are routed to.
func (h *Handler) CreateConsoleRooms(ctx context.Context) {
	for _, id := range []string{RoomAll, RoomRoster, RoomSession} {
		h.CreateRoom(ctx, id)
	}
}

func (h *Handler) JoinRoom(w http.ResponseWriter, r *http.Request, roomID, clientID string) {
	if _, ok := h.hub.room(roomID); !ok {
		http.Error(w, "unknown room", http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("event stream upgrade failed", "error", err)
		return
	}

	cl := &WSClient{
		Conn:    conn,
		Message: make(chan *WSMessage, 16),
		ID:      clientID,
		RoomID:  roomID,
		logger:  h.logger,
		done:    make(chan struct{}),
	}

	select {
	case h.hub.Register <- cl:
	case <-h.hub.Stopped():
		conn.Close()
		return
	}

	go cl.keepAlive()
	go cl.writeMessage()
	go cl.readMessage(h.hub)
	h.logger.Info("event client connected", "client_id", clientID, "room", roomID)
}

// ServeEvents upgrades a browser onto ?room=roster, ?room=session, or every
// event when room is omitted.
func (h *Handler) ServeEvents(w http.ResponseWriter, r *http.Request) {
	room := RoomAll
	switch r.URL.Query().Get("room") {
	case "roster":
		room = RoomRoster
	case "session":
		room = RoomSession
	case "", "all":
	default:
		http.Error(w, "unknown room", http.StatusBadRequest)
		return
	}
	h.JoinRoom(w, r, room, uuid.NewString())
}

func (h *Handler) GetRooms(w http.ResponseWriter, r *http.Request) {
	h.hub.mu.RLock()
	ids := make([]string, 0, len(h.hub.Rooms))
	for id := range h.hub.Rooms {
		ids = append(ids, id)
	}
	h.hub.mu.RUnlock()

	rooms := make([]RoomRes, 0, len(ids))
	for _, id := range ids {
		rooms = append(rooms, RoomRes{ID: id, Clients: h.hub.clientCount(id)})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(rooms)
}
