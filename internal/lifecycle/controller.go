// Package lifecycle runs admin-initiated session transitions and reconciles
// the local status with what the server confirms or pushes.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"support-console/internal/model"
)

var (
	ErrTransitionNotAllowed = errors.New("lifecycle: transition not allowed")
	ErrActionInFlight       = errors.New("lifecycle: another action is in flight")
	ErrSessionMismatch      = errors.New("lifecycle: status change for another session")
)

// Actions is the slice of the backend API that changes session status.
type Actions interface {
	Takeover(ctx context.Context, sessionID string) (model.StatusChange, error)
	Resolve(ctx context.Context, sessionID, closingMessage string) (model.StatusChange, error)
}

// Refresher re-syncs roster counts after a transition.
type Refresher interface {
	Refresh(ctx context.Context) error
}

type Config struct {
	Actions   Actions
	Refresher Refresher
	Logger    *slog.Logger
	// OnChange is called after every applied status change, outside the lock.
	OnChange func(model.StatusChange)
}

// Controller owns the status of one open session.
type Controller struct {
	sessionID string
	cfg       Config

	mu       sync.Mutex
	status   model.SessionStatus
	assignee string
	busy     bool
	// pushes counts applied pushes so a slower action response cannot
	// overwrite one.
	pushes uint64
}

func New(sessionID string, initial model.SessionStatus, cfg Config) *Controller {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Controller{
		sessionID: sessionID,
		cfg:       cfg,
		status:    initial,
	}
}

func (c *Controller) SessionID() string {
	return c.sessionID
}

func (c *Controller) Status() model.SessionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Controller) AssignedAdminID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.assignee
}

// CanSend is derived from the current status only.
func (c *Controller) CanSend() bool {
	return c.Status().CanSend()
}

// Takeover moves a waiting or bot-handled session to admin handling. Nothing
// changes locally until the server confirms.
func (c *Controller) Takeover(ctx context.Context) error {
	return c.run(ctx, "takeover", model.SessionStatus.CanTakeover, func(ctx context.Context) (model.StatusChange, error) {
		return c.cfg.Actions.Takeover(ctx, c.sessionID)
	})
}

// Resolve closes an admin-handled session, optionally with a closing message.
func (c *Controller) Resolve(ctx context.Context, closingMessage string) error {
	return c.run(ctx, "resolve", model.SessionStatus.CanResolve, func(ctx context.Context) (model.StatusChange, error) {
		return c.cfg.Actions.Resolve(ctx, c.sessionID, closingMessage)
	})
}

func (c *Controller) run(ctx context.Context, action string, guard func(model.SessionStatus) bool, call func(context.Context) (model.StatusChange, error)) error {
	c.mu.Lock()
	from := c.status
	if !guard(from) {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s from %s", ErrTransitionNotAllowed, action, from)
	}
	if c.busy {
		c.mu.Unlock()
		return ErrActionInFlight
	}
	c.busy = true
	pushesAtStart := c.pushes
	c.mu.Unlock()

	change, err := call(ctx)

	c.mu.Lock()
	c.busy = false
	if err != nil {
		c.mu.Unlock()
		c.cfg.Logger.Warn("session action failed", "action", action, "session_id", c.sessionID, "error", err)
		return fmt.Errorf("lifecycle: %s %s: %w", action, c.sessionID, err)
	}
	if c.pushes != pushesAtStart || c.status.IsTerminal() {
		current := c.status
		c.mu.Unlock()
		c.cfg.Logger.Info("action response superseded by pushed status",
			"action", action, "session_id", c.sessionID, "status", current, "response", change.NewStatus)
		c.refresh(ctx)
		return nil
	}
	change.SessionID = c.sessionID
	change.OldStatus = c.status
	c.status = change.NewStatus
	c.assignee = change.AssignedAdminID
	c.mu.Unlock()

	c.cfg.Logger.Info("session transition", "action", action, "session_id", c.sessionID, "from", change.OldStatus, "to", change.NewStatus)
	c.notify(change)
	c.refresh(ctx)
	return nil
}

// ApplyStatus applies a pushed status unconditionally. The push is
// authoritative over whatever the controller assumed locally.
func (c *Controller) ApplyStatus(change model.StatusChange) error {
	if change.SessionID != "" && change.SessionID != c.sessionID {
		return fmt.Errorf("%w: %s", ErrSessionMismatch, change.SessionID)
	}
	if _, err := model.ParseSessionStatus(string(change.NewStatus)); err != nil {
		return err
	}

	c.mu.Lock()
	c.pushes++
	change.SessionID = c.sessionID
	change.OldStatus = c.status
	c.status = change.NewStatus
	c.assignee = change.AssignedAdminID
	c.mu.Unlock()

	c.notify(change)
	return nil
}

func (c *Controller) notify(change model.StatusChange) {
	if c.cfg.OnChange != nil {
		c.cfg.OnChange(change)
	}
}

func (c *Controller) refresh(ctx context.Context) {
	if c.cfg.Refresher == nil {
		return
	}
	if err := c.cfg.Refresher.Refresh(context.WithoutCancel(ctx)); err != nil {
		c.cfg.Logger.Warn("roster refresh after transition failed", "session_id", c.sessionID, "error", err)
	}
}
