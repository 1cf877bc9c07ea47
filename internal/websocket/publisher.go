package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"support-console/internal/dto"

	"github.com/go-redis/redis/v8"
)

var ErrHubStopped = errors.New("websocket publish: hub stopped")

// Publisher moves a payload to every browser following roomID.
type Publisher interface {
	Publish(ctx context.Context, roomID string, payload any) error
}

// RedisPublisher fans events out through Redis so every console replica
// behind a load balancer reaches its own browsers.
type RedisPublisher struct {
	client *redis.Client
}

func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

func (p *RedisPublisher) Publish(ctx context.Context, roomID string, payload any) error {
	if roomID == "" {
		return fmt.Errorf("websocket publish: roomID required")
	}
	if p.client == nil {
		return fmt.Errorf("websocket publish: redis client not initialised")
	}

	messageJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("websocket publish: marshal payload: %w", err)
	}

	if err := p.client.Publish(ctx, roomID, string(messageJSON)).Err(); err != nil {
		return fmt.Errorf("websocket publish: redis publish: %w", err)
	}
	return nil
}

// LocalPublisher hands events straight to the in-process hub.
type LocalPublisher struct {
	hub *Hub
}

func NewLocalPublisher(hub *Hub) *LocalPublisher {
	return &LocalPublisher{hub: hub}
}

func (p *LocalPublisher) Publish(ctx context.Context, roomID string, payload any) error {
	if roomID == "" {
		return fmt.Errorf("websocket publish: roomID required")
	}
	messageJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("websocket publish: marshal payload: %w", err)
	}
	msg := &WSMessage{
		Content:   messageJSON,
		RoomID:    roomID,
		Timestamp: time.Now().Unix(),
	}
	select {
	case p.hub.Broadcast <- msg:
		return nil
	case <-p.hub.Stopped():
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RoomFor routes a console event type to the room that carries it.
func RoomFor(eventType string) string {
	if strings.HasPrefix(eventType, "roster.") {
		return RoomRoster
	}
	return RoomSession
}

// EventNotifier publishes console events. Failures are logged and counted;
// a browser that misses one catches up from the next full projection.
type EventNotifier struct {
	pub     Publisher
	logger  *slog.Logger
	timeout time.Duration
}

func NewEventNotifier(pub Publisher, logger *slog.Logger) *EventNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventNotifier{pub: pub, logger: logger, timeout: 2 * time.Second}
}

func (n *EventNotifier) Notify(event dto.ConsoleEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
	defer cancel()

	room := RoomFor(event.Type)
	if err := n.pub.Publish(ctx, room, event); err != nil {
		incPublishFailures()
		n.logger.Warn("console event not published", "type", event.Type, "room", room, "error", err)
	}
}
