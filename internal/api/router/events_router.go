package router

import (
	"net/http"

	"support-console/internal/api"
	"support-console/internal/api/endpoints"
)

func EventsRoutes(prefix string) api.RouteRegistrar {
	return func(mux *http.ServeMux, s *api.APIServer) {
		h := endpoints.NewEventsEndpoints(s.Events())

		mux.HandleFunc(prefix+"/events", s.MakeHTTPHandleFunc(h.Events))
		mux.HandleFunc(prefix+"/events/rooms", s.MakeHTTPHandleFunc(h.Rooms))
	}
}
