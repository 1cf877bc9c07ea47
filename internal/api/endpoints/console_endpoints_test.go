package endpoints

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"support-console/internal/api"
	"support-console/internal/backend"
	"support-console/internal/channel"
	"support-console/internal/console"
	"support-console/internal/lifecycle"
	"support-console/internal/model"
	"support-console/internal/queue"
)

type fakeConsole struct {
	queue     console.QueueView
	detail    *console.DetailView
	draft     string
	cleared   []string
	page      int
	refreshes int
	sent      []string
	typing    []bool

	selectErr   error
	takeoverErr error
	sendErr     error
	sendRefused bool
}

func (f *fakeConsole) Queue() console.QueueView { return f.queue }

func (f *fakeConsole) Refresh(ctx context.Context) error {
	f.refreshes++
	return nil
}

func (f *fakeConsole) SetResolvedPage(ctx context.Context, page int) error {
	f.page = page
	f.refreshes++
	return nil
}

func (f *fakeConsole) ClearNewSessions(ids ...string) {
	f.cleared = append(f.cleared, ids...)
}

func (f *fakeConsole) Detail() (console.DetailView, error) {
	if f.detail == nil {
		return console.DetailView{}, console.ErrNoSelection
	}
	v := *f.detail
	v.Draft = f.draft
	return v, nil
}

func (f *fakeConsole) Select(ctx context.Context, sessionID string) (console.DetailView, error) {
	if sessionID == "" {
		return console.DetailView{}, console.ErrSessionIDRequired
	}
	if f.selectErr != nil {
		return console.DetailView{}, f.selectErr
	}
	f.detail = &console.DetailView{
		Session: model.Session{ID: sessionID, Status: model.SessionStatusWaitingAdmin},
		Status:  model.SessionStatusWaitingAdmin,
	}
	return *f.detail, nil
}

func (f *fakeConsole) Deselect() { f.detail = nil }

func (f *fakeConsole) Takeover(ctx context.Context) error {
	if f.detail == nil {
		return console.ErrNoSelection
	}
	if f.takeoverErr != nil {
		return f.takeoverErr
	}
	f.detail.Status = model.SessionStatusAdminHandling
	f.detail.CanSend = true
	return nil
}

func (f *fakeConsole) Resolve(ctx context.Context, closingMessage string) error {
	if f.detail == nil {
		return console.ErrNoSelection
	}
	f.detail.Status = model.SessionStatusResolved
	f.detail.CanSend = false
	return nil
}

func (f *fakeConsole) SendMessage(ctx context.Context, content string) (bool, error) {
	if f.detail == nil {
		return false, console.ErrNoSelection
	}
	if f.sendErr != nil {
		return false, f.sendErr
	}
	if f.sendRefused {
		return false, nil
	}
	f.sent = append(f.sent, content)
	return true, nil
}

func (f *fakeConsole) SetDraft(ctx context.Context, body string) error {
	if f.detail == nil {
		return console.ErrNoSelection
	}
	f.draft = body
	return nil
}

func (f *fakeConsole) Draft() string { return f.draft }

func (f *fakeConsole) Typing(isTyping bool) error {
	if f.detail == nil {
		return console.ErrNoSelection
	}
	f.typing = append(f.typing, isTyping)
	return nil
}

const testPrefix = "/api/console/v1"

func setupConsoleHandler(t *testing.T, fake *fakeConsole) http.Handler {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	queueManager := queue.NewRequestQueueManager(10, 1, logger)
	t.Cleanup(queueManager.Shutdown)

	server := api.NewAPIServer(api.Options{ListenAddr: ":0", Queue: queueManager, Logger: logger})
	h := NewConsoleEndpoints(fake)

	mux := http.NewServeMux()
	mux.HandleFunc(testPrefix+"/queue", server.MakeHTTPHandleFunc(h.Queue))
	mux.HandleFunc(testPrefix+"/queue/refresh", server.MakeHTTPHandleFunc(h.RefreshQueue))
	mux.HandleFunc(testPrefix+"/queue/new/clear", server.MakeHTTPHandleFunc(h.ClearNewSessions))
	mux.HandleFunc(testPrefix+"/queue/resolved-page", server.MakeHTTPHandleFunc(h.ResolvedPage))
	mux.HandleFunc(testPrefix+"/session", server.MakeHTTPHandleFunc(h.Session))
	mux.HandleFunc(testPrefix+"/session/select", server.MakeHTTPHandleFunc(h.SelectSession))
	mux.HandleFunc(testPrefix+"/session/takeover", server.MakeHTTPHandleFunc(h.Takeover))
	mux.HandleFunc(testPrefix+"/session/resolve", server.MakeHTTPHandleFunc(h.Resolve))
	mux.HandleFunc(testPrefix+"/session/messages", server.MakeHTTPHandleFunc(h.SendMessage))
	mux.HandleFunc(testPrefix+"/session/draft", server.MakeHTTPHandleFunc(h.Draft))
	mux.HandleFunc(testPrefix+"/session/typing", server.MakeHTTPHandleFunc(h.Typing))
	return mux
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, testPrefix+path, reader)
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	return res
}

func decodeError(t *testing.T, res *httptest.ResponseRecorder) string {
	t.Helper()
	var body api.ApiError
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body.Error
}

func TestConsoleQueueReturnsView(t *testing.T) {
	fake := &fakeConsole{queue: console.QueueView{
		Loaded: true,
		Active: []console.QueueRow{{Session: model.Session{ID: "s-1", Status: model.SessionStatusWaitingAdmin}, IsNew: true, Unread: 2}},
		NewIDs: []string{"s-1"},
	}}
	handler := setupConsoleHandler(t, fake)

	res := doJSON(t, handler, http.MethodGet, "/queue", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}

	var view console.QueueView
	if err := json.NewDecoder(res.Body).Decode(&view); err != nil {
		t.Fatalf("decode queue: %v", err)
	}
	if len(view.Active) != 1 || view.Active[0].ID != "s-1" || !view.Active[0].IsNew || view.Active[0].Unread != 2 {
		t.Fatalf("unexpected queue view: %+v", view)
	}
}

func TestConsoleQueueRejectsWrongMethod(t *testing.T) {
	handler := setupConsoleHandler(t, &fakeConsole{})

	res := doJSON(t, handler, http.MethodDelete, "/queue", nil)
	if res.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", res.Code)
	}
}

func TestConsoleResolvedPageValidatesAndRefreshes(t *testing.T) {
	fake := &fakeConsole{}
	handler := setupConsoleHandler(t, fake)

	res := doJSON(t, handler, http.MethodPut, "/queue/resolved-page", map[string]int{"page": 0})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for page 0, got %d", res.Code)
	}

	res = doJSON(t, handler, http.MethodPut, "/queue/resolved-page", map[string]int{"page": 3})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if fake.page != 3 || fake.refreshes != 1 {
		t.Fatalf("expected page 3 with one refresh, got page=%d refreshes=%d", fake.page, fake.refreshes)
	}
}

func TestConsoleClearNewSessions(t *testing.T) {
	fake := &fakeConsole{}
	handler := setupConsoleHandler(t, fake)

	res := doJSON(t, handler, http.MethodPost, "/queue/new/clear", map[string][]string{"ids": {"s-1", "s-2"}})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if len(fake.cleared) != 2 {
		t.Fatalf("expected two cleared ids, got %v", fake.cleared)
	}
}

func TestConsoleSessionWithoutSelection(t *testing.T) {
	handler := setupConsoleHandler(t, &fakeConsole{})

	res := doJSON(t, handler, http.MethodGet, "/session", nil)
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
	if msg := decodeError(t, res); msg != "No session is open." {
		t.Fatalf("unexpected message %q", msg)
	}
}

func TestConsoleSelectRequiresID(t *testing.T) {
	handler := setupConsoleHandler(t, &fakeConsole{})

	res := doJSON(t, handler, http.MethodPost, "/session/select", map[string]string{"sessionId": "  "})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestConsoleSelectMalformedBody(t *testing.T) {
	handler := setupConsoleHandler(t, &fakeConsole{})

	req := httptest.NewRequest(http.MethodPost, testPrefix+"/session/select", bytes.NewBufferString("{"))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestConsoleSelectBackendNotFound(t *testing.T) {
	fake := &fakeConsole{selectErr: &backend.Error{Code: backend.ErrorCodeNotFound, StatusCode: http.StatusNotFound, Message: "missing"}}
	handler := setupConsoleHandler(t, fake)

	res := doJSON(t, handler, http.MethodPost, "/session/select", map[string]string{"sessionId": "s-9"})
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestConsoleSelectBackendUnavailable(t *testing.T) {
	fake := &fakeConsole{selectErr: fmt.Errorf("load: %w", &backend.Error{Code: backend.ErrorCodeUnavailable, StatusCode: http.StatusServiceUnavailable})}
	handler := setupConsoleHandler(t, fake)

	res := doJSON(t, handler, http.MethodPost, "/session/select", map[string]string{"sessionId": "s-9"})
	if res.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", res.Code)
	}
}

func TestConsoleTakeoverThenSend(t *testing.T) {
	fake := &fakeConsole{}
	handler := setupConsoleHandler(t, fake)

	if res := doJSON(t, handler, http.MethodPost, "/session/select", map[string]string{"sessionId": "s-1"}); res.Code != http.StatusOK {
		t.Fatalf("select: expected 200, got %d", res.Code)
	}

	res := doJSON(t, handler, http.MethodPost, "/session/takeover", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("takeover: expected 200, got %d", res.Code)
	}
	var view console.DetailView
	if err := json.NewDecoder(res.Body).Decode(&view); err != nil {
		t.Fatalf("decode detail: %v", err)
	}
	if view.Status != model.SessionStatusAdminHandling || !view.CanSend {
		t.Fatalf("unexpected detail after takeover: %+v", view)
	}

	res = doJSON(t, handler, http.MethodPost, "/session/messages", map[string]string{"content": "hello"})
	if res.Code != http.StatusOK {
		t.Fatalf("send: expected 200, got %d", res.Code)
	}
	var sent struct {
		Sent   bool   `json:"sent"`
		Status string `json:"status"`
	}
	if err := json.NewDecoder(res.Body).Decode(&sent); err != nil {
		t.Fatalf("decode send: %v", err)
	}
	if !sent.Sent || sent.Status != string(model.SessionStatusAdminHandling) {
		t.Fatalf("unexpected send response: %+v", sent)
	}
	if len(fake.sent) != 1 || fake.sent[0] != "hello" {
		t.Fatalf("unexpected sent messages: %v", fake.sent)
	}
}

func TestConsoleSendRefusedIsNotAnError(t *testing.T) {
	fake := &fakeConsole{sendRefused: true}
	handler := setupConsoleHandler(t, fake)
	doJSON(t, handler, http.MethodPost, "/session/select", map[string]string{"sessionId": "s-1"})

	res := doJSON(t, handler, http.MethodPost, "/session/messages", map[string]string{"content": "hello"})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var sent struct {
		Sent bool `json:"sent"`
	}
	json.NewDecoder(res.Body).Decode(&sent)
	if sent.Sent {
		t.Fatal("expected sent=false")
	}
}

func TestConsoleErrorStatuses(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"transition", lifecycle.ErrTransitionNotAllowed, http.StatusConflict},
		{"in flight", lifecycle.ErrActionInFlight, http.StatusConflict},
		{"not joined", channel.ErrNotJoined, http.StatusConflict},
		{"ack timeout", fmt.Errorf("send: %w", channel.ErrAckTimeout), http.StatusGatewayTimeout},
		{"rejected", fmt.Errorf("%w: spam", channel.ErrRejected), http.StatusBadGateway},
		{"empty", console.ErrEmptyMessage, http.StatusBadRequest},
		{"conflict", &backend.Error{Code: backend.ErrorCodeConflict, StatusCode: http.StatusConflict}, http.StatusConflict},
		{"unknown", fmt.Errorf("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fake := &fakeConsole{sendErr: tc.err}
			handler := setupConsoleHandler(t, fake)
			doJSON(t, handler, http.MethodPost, "/session/select", map[string]string{"sessionId": "s-1"})

			res := doJSON(t, handler, http.MethodPost, "/session/messages", map[string]string{"content": "hi"})
			if res.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, res.Code)
			}
		})
	}
}

func TestConsoleDraftRoundTrip(t *testing.T) {
	fake := &fakeConsole{}
	handler := setupConsoleHandler(t, fake)
	doJSON(t, handler, http.MethodPost, "/session/select", map[string]string{"sessionId": "s-1"})

	res := doJSON(t, handler, http.MethodPut, "/session/draft", map[string]string{"body": "half a reply"})
	if res.Code != http.StatusOK {
		t.Fatalf("put draft: expected 200, got %d", res.Code)
	}

	res = doJSON(t, handler, http.MethodGet, "/session/draft", nil)
	var draft struct {
		SessionID string `json:"sessionId"`
		Body      string `json:"body"`
	}
	if err := json.NewDecoder(res.Body).Decode(&draft); err != nil {
		t.Fatalf("decode draft: %v", err)
	}
	if draft.SessionID != "s-1" || draft.Body != "half a reply" {
		t.Fatalf("unexpected draft: %+v", draft)
	}
}

func TestConsoleTyping(t *testing.T) {
	fake := &fakeConsole{}
	handler := setupConsoleHandler(t, fake)

	res := doJSON(t, handler, http.MethodPost, "/session/typing", map[string]bool{"isTyping": true})
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without selection, got %d", res.Code)
	}

	doJSON(t, handler, http.MethodPost, "/session/select", map[string]string{"sessionId": "s-1"})
	res = doJSON(t, handler, http.MethodPost, "/session/typing", map[string]bool{"isTyping": true})
	if res.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", res.Code)
	}
	if len(fake.typing) != 1 || !fake.typing[0] {
		t.Fatalf("unexpected typing calls: %v", fake.typing)
	}
}
