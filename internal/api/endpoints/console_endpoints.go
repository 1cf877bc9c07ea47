package endpoints

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"support-console/internal/backend"
	"support-console/internal/channel"
	"support-console/internal/console"
	"support-console/internal/dto"
	"support-console/internal/lifecycle"
)

// ConsoleService is the part of the console the HTTP surface drives.
type ConsoleService interface {
	Queue() console.QueueView
	Refresh(ctx context.Context) error
	SetResolvedPage(ctx context.Context, page int) error
	ClearNewSessions(ids ...string)
	Detail() (console.DetailView, error)
	Select(ctx context.Context, sessionID string) (console.DetailView, error)
	Deselect()
	Takeover(ctx context.Context) error
	Resolve(ctx context.Context, closingMessage string) error
	SendMessage(ctx context.Context, content string) (bool, error)
	SetDraft(ctx context.Context, body string) error
	Draft() string
	Typing(isTyping bool) error
}

type ConsoleEndpoints interface {
	Queue(http.ResponseWriter, *http.Request) error
	RefreshQueue(http.ResponseWriter, *http.Request) error
	ClearNewSessions(http.ResponseWriter, *http.Request) error
	ResolvedPage(http.ResponseWriter, *http.Request) error
	Session(http.ResponseWriter, *http.Request) error
	SelectSession(http.ResponseWriter, *http.Request) error
	DeselectSession(http.ResponseWriter, *http.Request) error
	Takeover(http.ResponseWriter, *http.Request) error
	Resolve(http.ResponseWriter, *http.Request) error
	SendMessage(http.ResponseWriter, *http.Request) error
	Draft(http.ResponseWriter, *http.Request) error
	Typing(http.ResponseWriter, *http.Request) error
}

type consoleEndpoints struct {
	console ConsoleService
}

func NewConsoleEndpoints(c ConsoleService) ConsoleEndpoints {
	return &consoleEndpoints{console: c}
}

type handlerMap = map[string]func(http.ResponseWriter, *http.Request) error

func (h *consoleEndpoints) Queue(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, handlerMap{
		http.MethodGet: func(w http.ResponseWriter, r *http.Request) error {
			return WriteJSON(w, http.StatusOK, h.console.Queue())
		},
	})
}

func (h *consoleEndpoints) RefreshQueue(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, handlerMap{
		http.MethodPost: func(w http.ResponseWriter, r *http.Request) error {
			if err := h.console.Refresh(r.Context()); err != nil {
				return consoleError(err)
			}
			return WriteJSON(w, http.StatusOK, h.console.Queue())
		},
	})
}

func (h *consoleEndpoints) ClearNewSessions(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, handlerMap{
		http.MethodPost: func(w http.ResponseWriter, r *http.Request) error {
			var req dto.ClearNewSessionsRequest
			if err := decodeBody(r, &req); err != nil {
				return err
			}
			h.console.ClearNewSessions(req.IDs...)
			return WriteJSON(w, http.StatusOK, h.console.Queue())
		},
	})
}

func (h *consoleEndpoints) ResolvedPage(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, handlerMap{
		http.MethodPut: func(w http.ResponseWriter, r *http.Request) error {
			var req dto.ResolvedPageRequest
			if err := decodeBody(r, &req); err != nil {
				return err
			}
			if req.Page < 1 {
				return &HTTPError{
					StatusCode: http.StatusBadRequest,
					Message:    "Page must be at least 1.",
					ErrorLog:   errors.New("resolved page out of range"),
				}
			}
			if err := h.console.SetResolvedPage(r.Context(), req.Page); err != nil {
				return consoleError(err)
			}
			return WriteJSON(w, http.StatusOK, h.console.Queue())
		},
	})
}

func (h *consoleEndpoints) Session(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, handlerMap{
		http.MethodGet: func(w http.ResponseWriter, r *http.Request) error {
			return h.writeDetail(w)
		},
	})
}

func (h *consoleEndpoints) SelectSession(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, handlerMap{
		http.MethodPost: func(w http.ResponseWriter, r *http.Request) error {
			var req dto.SelectSessionRequest
			if err := decodeBody(r, &req); err != nil {
				return err
			}
			view, err := h.console.Select(r.Context(), strings.TrimSpace(req.SessionID))
			if err != nil {
				return consoleError(err)
			}
			return WriteJSON(w, http.StatusOK, view)
		},
	})
}

func (h *consoleEndpoints) DeselectSession(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, handlerMap{
		http.MethodPost: func(w http.ResponseWriter, r *http.Request) error {
			h.console.Deselect()
			return WriteJSON(w, http.StatusOK, ApiMessageResponse{Message: "Session closed."})
		},
	})
}

func (h *consoleEndpoints) Takeover(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, handlerMap{
		http.MethodPost: func(w http.ResponseWriter, r *http.Request) error {
			if err := h.console.Takeover(r.Context()); err != nil {
				return consoleError(err)
			}
			return h.writeDetail(w)
		},
	})
}

func (h *consoleEndpoints) Resolve(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, handlerMap{
		http.MethodPost: func(w http.ResponseWriter, r *http.Request) error {
			var req dto.ResolveSessionRequest
			if err := decodeBody(r, &req); err != nil {
				return err
			}
			if err := h.console.Resolve(r.Context(), strings.TrimSpace(req.ClosingMessage)); err != nil {
				return consoleError(err)
			}
			return h.writeDetail(w)
		},
	})
}

// SendMessage answers 200 with sent=false when the session is not in a
// sendable state; nothing reaches the channel in that case.
func (h *consoleEndpoints) SendMessage(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, handlerMap{
		http.MethodPost: func(w http.ResponseWriter, r *http.Request) error {
			var req dto.SendMessageBody
			if err := decodeBody(r, &req); err != nil {
				return err
			}
			sent, err := h.console.SendMessage(r.Context(), req.Content)
			if err != nil {
				return consoleError(err)
			}
			res := dto.SendMessageResponse{Sent: sent}
			if view, err := h.console.Detail(); err == nil {
				res.Status = string(view.Status)
			}
			return WriteJSON(w, http.StatusOK, res)
		},
	})
}

func (h *consoleEndpoints) Draft(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, handlerMap{
		http.MethodGet: func(w http.ResponseWriter, r *http.Request) error {
			view, err := h.console.Detail()
			if err != nil {
				return consoleError(err)
			}
			return WriteJSON(w, http.StatusOK, dto.DraftResponse{SessionID: view.Session.ID, Body: view.Draft})
		},
		http.MethodPut: func(w http.ResponseWriter, r *http.Request) error {
			var req dto.DraftRequest
			if err := decodeBody(r, &req); err != nil {
				return err
			}
			if err := h.console.SetDraft(r.Context(), req.Body); err != nil {
				return consoleError(err)
			}
			view, err := h.console.Detail()
			if err != nil {
				return consoleError(err)
			}
			return WriteJSON(w, http.StatusOK, dto.DraftResponse{SessionID: view.Session.ID, Body: h.console.Draft()})
		},
	})
}

func (h *consoleEndpoints) Typing(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, handlerMap{
		http.MethodPost: func(w http.ResponseWriter, r *http.Request) error {
			var req dto.TypingRequest
			if err := decodeBody(r, &req); err != nil {
				return err
			}
			if err := h.console.Typing(req.IsTyping); err != nil {
				return consoleError(err)
			}
			w.WriteHeader(http.StatusNoContent)
			return nil
		},
	})
}

func (h *consoleEndpoints) writeDetail(w http.ResponseWriter) error {
	view, err := h.console.Detail()
	if err != nil {
		return consoleError(err)
	}
	return WriteJSON(w, http.StatusOK, view)
}

// consoleError maps console, lifecycle, channel and backend failures onto
// HTTP statuses.
func consoleError(err error) error {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return err
	}

	status, message := http.StatusInternalServerError, "Internal server error"

	var backendErr *backend.Error
	switch {
	case errors.Is(err, console.ErrNoSelection):
		status, message = http.StatusNotFound, "No session is open."
	case errors.Is(err, console.ErrSessionIDRequired):
		status, message = http.StatusBadRequest, "Session id is required."
	case errors.Is(err, console.ErrEmptyMessage):
		status, message = http.StatusBadRequest, "Message content is required."
	case errors.Is(err, console.ErrSelectionChanged):
		status, message = http.StatusConflict, "Another session was opened meanwhile."
	case errors.Is(err, lifecycle.ErrTransitionNotAllowed):
		status, message = http.StatusConflict, "Action not allowed in the current status."
	case errors.Is(err, lifecycle.ErrActionInFlight):
		status, message = http.StatusConflict, "Another action is in progress."
	case errors.Is(err, channel.ErrNotJoined), errors.Is(err, channel.ErrClosed):
		status, message = http.StatusConflict, "Live channel is not connected."
	case errors.Is(err, channel.ErrAckTimeout):
		status, message = http.StatusGatewayTimeout, "The chat server did not confirm the message."
	case errors.Is(err, channel.ErrRejected):
		status, message = http.StatusBadGateway, "The chat server rejected the message."
	case errors.As(err, &backendErr):
		switch backendErr.Code {
		case backend.ErrorCodeNotFound:
			status, message = http.StatusNotFound, "Session not found."
		case backend.ErrorCodeConflict:
			status, message = http.StatusConflict, "Session was changed by someone else."
		default:
			status, message = http.StatusBadGateway, "Support backend request failed."
		}
	}

	return &HTTPError{StatusCode: status, Message: message, ErrorLog: err}
}
