package websocket

import (
	"context"
	"sync"
)

type Hub struct {
	mu         sync.RWMutex
	Rooms      map[string]*Room
	Register   chan *WSClient
	Unregister chan *WSClient
	Broadcast  chan *WSMessage
	stopped    chan struct{}
}

func NewHub() *Hub {
	return &Hub{
		Rooms:      make(map[string]*Room),
		Register:   make(chan *WSClient),
		Unregister: make(chan *WSClient),
		Broadcast:  make(chan *WSMessage, 64),
		stopped:    make(chan struct{}),
	}
}

// addRoom reports whether id was created by this call.
func (h *Hub) addRoom(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.Rooms[id]; exists {
		return false
	}
	h.Rooms[id] = &Room{
		Id:      id,
		Clients: make(map[string]*WSClient),
	}
	setRooms(len(h.Rooms))
	return true
}

func (h *Hub) room(id string) (*Room, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	room, ok := h.Rooms[id]
	return room, ok
}

// Run owns room membership. Client maps are only touched from here.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.stopped)
			h.mu.Lock()
			for _, room := range h.Rooms {
				for id, client := range room.Clients {
					close(client.Message)
					delete(room.Clients, id)
					decConnections()
				}
			}
			h.mu.Unlock()
			return

		case client := <-h.Register:
			room, ok := h.room(client.RoomID)
			if !ok {
				close(client.Message)
				continue
			}
			h.mu.Lock()
			room.Clients[client.ID] = client
			h.mu.Unlock()
			incConnections()

		case client := <-h.Unregister:
			room, ok := h.room(client.RoomID)
			if !ok {
				continue
			}
			h.mu.Lock()
			if _, ok := room.Clients[client.ID]; ok {
				delete(room.Clients, client.ID)
				close(client.Message)
				decConnections()
			}
			h.mu.Unlock()

		case message := <-h.Broadcast:
			targets := []string{message.RoomID}
			if message.RoomID != RoomAll {
				targets = append(targets, RoomAll)
			}
			delivered := 0
			h.mu.Lock()
			for _, id := range targets {
				room, ok := h.Rooms[id]
				if !ok {
					continue
				}
				for _, client := range room.Clients {
					select {
					case client.Message <- message:
						delivered++
					default:
						// Slow reader: drop it rather than stall every other browser.
						close(client.Message)
						delete(room.Clients, client.ID)
						decConnections()
					}
				}
			}
			h.mu.Unlock()
			if delivered > 0 {
				addDelivered(delivered)
			}
		}
	}
}

func (h *Hub) clientCount(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if room, ok := h.Rooms[roomID]; ok {
		return len(room.Clients)
	}
	return 0
}

// Stopped is closed once Run has returned.
func (h *Hub) Stopped() <-chan struct{} {
	return h.stopped
}
