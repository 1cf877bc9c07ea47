package router

import (
	"net/http"

	"support-console/internal/api"
	"support-console/internal/api/endpoints"
)

func ConsoleRoutes(prefix string) api.RouteRegistrar {
	return func(mux *http.ServeMux, s *api.APIServer) {
		h := endpoints.NewConsoleEndpoints(s.Console())

		mux.HandleFunc(prefix+"/queue", s.MakeHTTPHandleFunc(h.Queue))
		mux.HandleFunc(prefix+"/queue/refresh", s.MakeHTTPHandleFunc(h.RefreshQueue))
		mux.HandleFunc(prefix+"/queue/new/clear", s.MakeHTTPHandleFunc(h.ClearNewSessions))
		mux.HandleFunc(prefix+"/queue/resolved-page", s.MakeHTTPHandleFunc(h.ResolvedPage))

		mux.HandleFunc(prefix+"/session", s.MakeHTTPHandleFunc(h.Session))
		mux.HandleFunc(prefix+"/session/select", s.MakeHTTPHandleFunc(h.SelectSession))
		mux.HandleFunc(prefix+"/session/deselect", s.MakeHTTPHandleFunc(h.DeselectSession))
		mux.HandleFunc(prefix+"/session/takeover", s.MakeHTTPHandleFunc(h.Takeover))
		mux.HandleFunc(prefix+"/session/resolve", s.MakeHTTPHandleFunc(h.Resolve))
		mux.HandleFunc(prefix+"/session/messages", s.MakeHTTPHandleFunc(h.SendMessage))
		mux.HandleFunc(prefix+"/session/draft", s.MakeHTTPHandleFunc(h.Draft))
		mux.HandleFunc(prefix+"/session/typing", s.MakeHTTPHandleFunc(h.Typing))
	}
}
