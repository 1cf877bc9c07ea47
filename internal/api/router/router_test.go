package router

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"support-console/internal/api"
	"support-console/internal/queue"
	"support-console/internal/websocket"

	gorillaws "github.com/gorilla/websocket"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	queueManager := queue.NewRequestQueueManager(10, 2, logger)
	t.Cleanup(queueManager.Shutdown)

	hub := websocket.NewHub()
	go hub.Run(ctx)
	events := websocket.NewHandler(hub, nil, nil, logger)
	events.CreateConsoleRooms(ctx)

	server := api.NewAPIServer(
		api.Options{ListenAddr: ":0", Queue: queueManager, Events: events, Logger: logger},
		UtilsRoutes("/api/console/v1"),
		EventsRoutes("/api/console/v1"),
	)

	srv := httptest.NewServer(server.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func TestHealthRoute(t *testing.T) {
	srv := newTestServer(t)

	res, err := http.Get(srv.URL + "/api/console/v1/health")
	if err != nil {
		t.Fatalf("get health: %v", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.StatusCode)
	}
	if res.Header.Get("X-Request-ID") == "" {
		t.Fatal("expected request id header")
	}
}

func TestMetricsRoute(t *testing.T) {
	srv := newTestServer(t)

	if _, err := http.Get(srv.URL + "/api/console/v1/health"); err != nil {
		t.Fatalf("get health: %v", err)
	}
	res, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer res.Body.Close()

	body, _ := io.ReadAll(res.Body)
	if !strings.Contains(string(body), "support_console_http_requests_total") {
		t.Fatal("expected http request counter in metrics output")
	}
}

func TestEventRoomsRoute(t *testing.T) {
	srv := newTestServer(t)

	res, err := http.Get(srv.URL + "/api/console/v1/events/rooms")
	if err != nil {
		t.Fatalf("get rooms: %v", err)
	}
	defer res.Body.Close()

	var rooms []websocket.RoomRes
	if err := json.NewDecoder(res.Body).Decode(&rooms); err != nil {
		t.Fatalf("decode rooms: %v", err)
	}
	if len(rooms) != 3 {
		t.Fatalf("expected three console rooms, got %+v", rooms)
	}
}

func TestEventsRouteUpgradesThroughMiddleware(t *testing.T) {
	srv := newTestServer(t)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/console/v1/events?room=roster"
	conn, res, err := gorillaws.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial events: %v", err)
	}
	defer conn.Close()

	if res.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("expected 101, got %d", res.StatusCode)
	}
}
