package endpoints

import (
	"net/http"
)

// EventStream is the browser-facing websocket fan-out.
type EventStream interface {
	ServeEvents(w http.ResponseWriter, r *http.Request)
	GetRooms(w http.ResponseWriter, r *http.Request)
}

type EventsEndpoints interface {
	Events(http.ResponseWriter, *http.Request) error
	Rooms(http.ResponseWriter, *http.Request) error
}

type eventsEndpoints struct {
	stream EventStream
}

func NewEventsEndpoints(stream EventStream) EventsEndpoints {
	return &eventsEndpoints{stream: stream}
}

func (h *eventsEndpoints) Events(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, handlerMap{
		http.MethodGet: func(w http.ResponseWriter, r *http.Request) error {
			h.stream.ServeEvents(w, r)
			return nil
		},
	})
}

func (h *eventsEndpoints) Rooms(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, handlerMap{
		http.MethodGet: func(w http.ResponseWriter, r *http.Request) error {
			h.stream.GetRooms(w, r)
			return nil
		},
	})
}
