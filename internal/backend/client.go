package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"support-console/internal/dto"
	"support-console/internal/jwt"
	"support-console/internal/model"
)

const defaultHTTPTimeout = 15 * time.Second

// Client talks to the support backend's admin session API.
type Client struct {
	baseURL string
	tokens  jwt.TokenSource
	http    *http.Client
	logger  *slog.Logger
}

type Config struct {
	BaseURL    string
	Tokens     jwt.TokenSource
	HTTPClient *http.Client
	Logger     *slog.Logger
}

func NewClient(cfg Config) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		tokens:  cfg.Tokens,
		http:    cfg.HTTPClient,
		logger:  cfg.Logger,
	}
}

// ListSessions fetches one page of sessions in the given status.
func (c *Client) ListSessions(ctx context.Context, status model.SessionStatus, page, limit int) (model.SessionPage, error) {
	q := url.Values{}
	q.Set("status", string(status))
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))

	var resp dto.ListSessionsResponse
	if err := c.do(ctx, http.MethodGet, "/sessions?"+q.Encode(), nil, &resp); err != nil {
		return model.SessionPage{}, err
	}
	result, err := dto.ToSessionPage(resp)
	if err != nil {
		return model.SessionPage{}, newError(ErrorCodeInvalid, 0, "list sessions", err)
	}
	return result, nil
}

// GetSession fetches a session with its full message history.
func (c *Client) GetSession(ctx context.Context, sessionID string) (model.SessionDetail, error) {
	var resp dto.SessionDetailResponse
	if err := c.do(ctx, http.MethodGet, "/sessions/"+url.PathEscape(sessionID), nil, &resp); err != nil {
		return model.SessionDetail{}, err
	}
	detail, err := dto.ToSessionDetail(resp)
	if err != nil {
		return model.SessionDetail{}, newError(ErrorCodeInvalid, 0, "get session", err)
	}
	if detail.Session.ID != sessionID {
		return model.SessionDetail{}, newError(ErrorCodeInvalid, 0, "get session",
			fmt.Errorf("asked for %s, got %s", sessionID, detail.Session.ID))
	}
	return detail, nil
}

func (c *Client) Takeover(ctx context.Context, sessionID string) (model.StatusChange, error) {
	var resp dto.SessionActionResponse
	if err := c.do(ctx, http.MethodPost, "/sessions/"+url.PathEscape(sessionID)+"/takeover", nil, &resp); err != nil {
		return model.StatusChange{}, err
	}
	return c.actionResult(resp, sessionID, "takeover")
}

func (c *Client) Resolve(ctx context.Context, sessionID, closingMessage string) (model.StatusChange, error) {
	var resp dto.SessionActionResponse
	body := dto.ResolveSessionRequest{ClosingMessage: strings.TrimSpace(closingMessage)}
	if err := c.do(ctx, http.MethodPost, "/sessions/"+url.PathEscape(sessionID)+"/resolve", body, &resp); err != nil {
		return model.StatusChange{}, err
	}
	return c.actionResult(resp, sessionID, "resolve")
}

func (c *Client) actionResult(resp dto.SessionActionResponse, sessionID, action string) (model.StatusChange, error) {
	change, err := dto.ToActionResult(resp, sessionID)
	if err != nil {
		return model.StatusChange{}, newError(ErrorCodeInvalid, 0, action, err)
	}
	return change, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("backend: marshal %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("backend: build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return newError(ErrorCodeUnauthorized, 0, "admin credential unavailable", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	res, err := c.http.Do(req)
	if err != nil {
		return newError(ErrorCodeUnavailable, 0, method+" "+path, err)
	}
	defer res.Body.Close()
	c.logger.Debug("backend request", "method", method, "path", path, "status", res.StatusCode, "duration", time.Since(start))

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		var apiErr dto.BackendErrorResponse
		raw, _ := io.ReadAll(io.LimitReader(res.Body, 64*1024))
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &apiErr) == nil {
			if apiErr.Message != "" {
				msg = apiErr.Message
			} else if apiErr.Error != "" {
				msg = apiErr.Error
			}
		}
		if msg == "" {
			msg = http.StatusText(res.StatusCode)
		}
		return newError(codeForStatus(res.StatusCode), res.StatusCode, msg, nil)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return newError(ErrorCodeInvalid, res.StatusCode, "decode "+method+" "+path, err)
	}
	return nil
}
