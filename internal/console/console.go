// Package console composes the roster, the unread tracker and the open
// session into the projection the admin UI renders.
package console

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"support-console/internal/channel"
	"support-console/internal/dto"
	"support-console/internal/lifecycle"
	"support-console/internal/model"
	"support-console/internal/roster"
	"support-console/internal/unread"
)

var (
	ErrNoSelection       = errors.New("console: no session selected")
	ErrSelectionChanged  = errors.New("console: selection changed while loading")
	ErrEmptyMessage      = errors.New("console: message is empty")
	ErrSessionIDRequired = errors.New("console: session id required")
)

// Backend is every support API call the console makes over REST.
type Backend interface {
	roster.Fetcher
	lifecycle.Actions
	GetSession(ctx context.Context, sessionID string) (model.SessionDetail, error)
}

// SessionChannel is the realtime link of the open session.
type SessionChannel interface {
	Send(ctx context.Context, content string) error
	Typing(isTyping bool) error
	State() channel.State
	Ready(ctx context.Context) error
	Close()
}

const (
	defaultJoinTimeout = 5 * time.Second
	resyncTimeout      = 15 * time.Second
)

type ChannelOpener func(ctx context.Context, sessionID string, handlers channel.Handlers) (SessionChannel, error)

type DraftStore interface {
	Get(sessionID string) string
	Set(ctx context.Context, sessionID, body string) error
	Clear(ctx context.Context, sessionID string) error
}

type Notifier interface {
	Notify(event dto.ConsoleEvent)
}

type NotifierFunc func(dto.ConsoleEvent)

func (f NotifierFunc) Notify(event dto.ConsoleEvent) { f(event) }

type Config struct {
	Backend     Backend
	OpenChannel ChannelOpener
	// Roster configures the poller. OnUpdate and OnError are owned by the
	// console and overwritten.
	Roster   roster.Config
	Drafts   DraftStore
	Notifier Notifier
	Logger   *slog.Logger
	Now      func() time.Time
	// JoinTimeout bounds how long Select waits for the channel to join
	// before loading history.
	JoinTimeout time.Duration
}

// selection is one open session. It is replaced, never reused, when the
// admin opens another session; callbacks holding a stale one are ignored.
type selection struct {
	id      string
	session model.Session
	log     *MessageLog
	ctrl    *lifecycle.Controller
	ch      SessionChannel
	state   channel.State
	typing  bool
	loading bool
	// pending holds a pushed status that arrived before the controller.
	pending *model.StatusChange
}

type Console struct {
	cfg     Config
	poller  *roster.Poller
	tracker *unread.Tracker

	mu  sync.Mutex
	sel *selection

	runMu  sync.Mutex
	runCtx context.Context
	cancel context.CancelFunc
}

func New(cfg Config) *Console {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.JoinTimeout <= 0 {
		cfg.JoinTimeout = defaultJoinTimeout
	}
	if cfg.Notifier == nil {
		cfg.Notifier = NotifierFunc(func(dto.ConsoleEvent) {})
	}
	c := &Console{
		cfg:     cfg,
		tracker: unread.NewTracker(),
		runCtx:  context.Background(),
	}
	rc := cfg.Roster
	if rc.Logger == nil {
		rc.Logger = cfg.Logger
	}
	rc.OnUpdate = c.onRoster
	rc.OnError = c.onRosterError
	c.poller = roster.NewPoller(cfg.Backend, rc)
	return c
}

// Start begins polling. Channels opened later live until Stop.
func (c *Console) Start(ctx context.Context) {
	c.runMu.Lock()
	c.runCtx, c.cancel = context.WithCancel(ctx)
	runCtx := c.runCtx
	c.runMu.Unlock()

	c.poller.Start(runCtx)
}

// Stop closes the open channel and clears the poll interval.
func (c *Console) Stop() {
	c.closeSelection(nil)
	c.poller.Stop()

	c.runMu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.runMu.Unlock()
}

func (c *Console) Refresh(ctx context.Context) error {
	return c.poller.Refresh(ctx)
}

// SetResolvedPage switches the resolved page and loads it right away.
func (c *Console) SetResolvedPage(ctx context.Context, page int) error {
	c.poller.SetResolvedPage(page)
	return c.poller.Refresh(ctx)
}

// ClearNewSessions drops the given ids from the new set, or all of them.
func (c *Console) ClearNewSessions(ids ...string) {
	c.poller.ClearNewIDs(ids...)
	c.emit(dto.ConsoleRosterUpdated, "", c.Queue())
}

// Select opens sessionID. Its unread count is cleared before anything
// else happens, and the previous channel is closed before the new one opens.
// The channel joins before history is fetched so nothing sent in between is
// lost; both feed one log deduplicated by message id.
func (c *Console) Select(ctx context.Context, sessionID string) (DetailView, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return DetailView{}, ErrSessionIDRequired
	}

	sel := &selection{id: sessionID, log: NewMessageLog(nil), loading: true}
	c.closeSelection(sel)

	ch, chErr := c.cfg.OpenChannel(c.channelContext(), sessionID, channel.Handlers{
		OnNewMessage:    func(m model.Message) { c.onMessage(sel, m) },
		OnStatusChanged: func(change model.StatusChange) { c.onPushedStatus(sel, change) },
		OnTyping:        func(t model.Typing) { c.onTyping(sel, t) },
		OnStateChange:   func(st channel.State) { c.onChannelState(sel, st) },
	})
	if chErr != nil {
		c.cfg.Logger.Error("open session channel failed", "session_id", sessionID, "error", chErr)
	} else {
		c.mu.Lock()
		stale := c.sel != sel
		if !stale {
			sel.ch = ch
		}
		c.mu.Unlock()
		if stale {
			ch.Close()
			return DetailView{}, ErrSelectionChanged
		}
		c.awaitJoin(ctx, sessionID, ch)
	}

	detail, err := c.cfg.Backend.GetSession(ctx, sessionID)
	if err != nil {
		c.mu.Lock()
		owned := c.sel == sel
		if owned {
			c.sel = nil
			c.tracker.Close()
		}
		c.mu.Unlock()
		if owned && chErr == nil {
			ch.Close()
		}
		return DetailView{}, fmt.Errorf("console: load session %s: %w", sessionID, err)
	}

	ctrl := lifecycle.New(sessionID, detail.Session.Status, lifecycle.Config{
		Actions:   c.cfg.Backend,
		Refresher: c.poller,
		Logger:    c.cfg.Logger,
		OnChange:  func(change model.StatusChange) { c.onStatus(sel, change) },
	})

	c.mu.Lock()
	if c.sel != sel {
		c.mu.Unlock()
		return DetailView{}, ErrSelectionChanged
	}
	sel.session = detail.Session
	sel.log.Merge(detail.Messages)
	sel.ctrl = ctrl
	pending := sel.pending
	sel.pending = nil
	seen := detail.Session.MessageCount
	if n := sel.log.Len(); n > seen {
		seen = n
	}
	c.mu.Unlock()

	// A push that landed while history loaded is newer than the REST status.
	if pending != nil {
		if err := ctrl.ApplyStatus(*pending); err != nil {
			c.cfg.Logger.Warn("ignoring pushed status", "session_id", sessionID, "error", err)
		}
	}
	c.tracker.SeenOpen(sessionID, seen)

	c.mu.Lock()
	if c.sel != sel {
		c.mu.Unlock()
		return DetailView{}, ErrSelectionChanged
	}
	sel.loading = false
	if chErr != nil {
		sel.state = channel.State{Error: chErr.Error()}
	}
	view := c.detailLocked(sel)
	c.mu.Unlock()

	c.emit(dto.ConsoleSessionSelected, sessionID, view)
	c.emit(dto.ConsoleRosterUpdated, "", c.Queue())
	return view, nil
}

// awaitJoin gives the channel a bounded wait to join. A channel that is slow
// or gone does not block the history load; a later join resyncs it.
func (c *Console) awaitJoin(ctx context.Context, sessionID string, ch SessionChannel) {
	joinCtx, cancel := context.WithTimeout(ctx, c.cfg.JoinTimeout)
	defer cancel()
	if err := ch.Ready(joinCtx); err != nil {
		c.cfg.Logger.Warn("session channel not joined before history load", "session_id", sessionID, "error", err)
	}
}

// Deselect closes the open session, if any.
func (c *Console) Deselect() {
	if c.closeSelection(nil) {
		c.emit(dto.ConsoleSessionSelected, "", nil)
	}
}

// closeSelection swaps in next and closes the previous session's channel
// before returning. The unread tracker follows the swap under the same lock,
// so the open id never names a session other than the selected one. It
// reports whether a session was open.
func (c *Console) closeSelection(next *selection) bool {
	c.mu.Lock()
	old := c.sel
	c.sel = next
	if next != nil {
		c.tracker.Open(next.id)
	} else {
		c.tracker.Close()
	}
	var ch SessionChannel
	if old != nil {
		ch = old.ch
	}
	c.mu.Unlock()

	if ch != nil {
		ch.Close()
	}
	return old != nil
}

func (c *Console) Takeover(ctx context.Context) error {
	ctrl, err := c.controller()
	if err != nil {
		return err
	}
	return ctrl.Takeover(ctx)
}

func (c *Console) Resolve(ctx context.Context, closingMessage string) error {
	ctrl, err := c.controller()
	if err != nil {
		return err
	}
	return ctrl.Resolve(ctx, closingMessage)
}

// SendMessage sends content on the open session's channel. It reports false
// without any network traffic unless the admin is handling the session. The
// draft is cleared only after the server acknowledges the message.
func (c *Console) SendMessage(ctx context.Context, content string) (bool, error) {
	c.mu.Lock()
	sel := c.sel
	if sel == nil || sel.ctrl == nil {
		c.mu.Unlock()
		return false, ErrNoSelection
	}
	id, ctrl, ch := sel.id, sel.ctrl, sel.ch
	c.mu.Unlock()

	if strings.TrimSpace(content) == "" {
		return false, ErrEmptyMessage
	}
	if !ctrl.CanSend() {
		return false, nil
	}
	if ch == nil {
		return false, channel.ErrNotJoined
	}
	if err := ch.Send(ctx, content); err != nil {
		c.cfg.Logger.Warn("admin message not sent", "session_id", id, "error", err)
		return false, err
	}
	if c.cfg.Drafts != nil {
		if err := c.cfg.Drafts.Clear(ctx, id); err != nil {
			c.cfg.Logger.Warn("clear draft failed", "session_id", id, "error", err)
		}
	}
	return true, nil
}

func (c *Console) SetDraft(ctx context.Context, body string) error {
	id, err := c.selectedID()
	if err != nil {
		return err
	}
	if c.cfg.Drafts == nil {
		return nil
	}
	return c.cfg.Drafts.Set(ctx, id, body)
}

func (c *Console) Draft() string {
	id, err := c.selectedID()
	if err != nil || c.cfg.Drafts == nil {
		return ""
	}
	return c.cfg.Drafts.Get(id)
}

// Typing forwards the admin's typing indicator. Best-effort.
func (c *Console) Typing(isTyping bool) error {
	c.mu.Lock()
	sel := c.sel
	if sel == nil {
		c.mu.Unlock()
		return ErrNoSelection
	}
	ch := sel.ch
	c.mu.Unlock()

	if ch == nil {
		return channel.ErrNotJoined
	}
	return ch.Typing(isTyping)
}

func (c *Console) Queue() QueueView {
	snap, ok := c.poller.Snapshot()
	selected := c.tracker.OpenID()

	view := QueueView{
		Loaded:       ok,
		Active:       []QueueRow{},
		Resolved:     []QueueRow{},
		ResolvedPage: snap.ResolvedPage,
		Counts:       snap.Counts,
		NewIDs:       c.poller.NewIDs(),
		TotalUnread:  c.tracker.Total(),
		SelectedID:   selected,
		FetchedAt:    snap.FetchedAt,
	}
	if err := c.poller.LastError(); err != nil {
		view.Error = err.Error()
	}

	row := func(s model.Session) QueueRow {
		return QueueRow{
			Session:  s,
			IsNew:    c.poller.IsNew(s.ID),
			Unread:   c.tracker.Count(s.ID),
			Selected: s.ID == selected,
		}
	}
	for _, s := range snap.Active() {
		view.Active = append(view.Active, row(s))
	}
	for _, s := range snap.Resolved {
		view.Resolved = append(view.Resolved, row(s))
	}
	return view
}

func (c *Console) Detail() (DetailView, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sel == nil || c.sel.loading {
		return DetailView{}, ErrNoSelection
	}
	return c.detailLocked(c.sel), nil
}

func (c *Console) detailLocked(sel *selection) DetailView {
	status := sel.ctrl.Status()
	session := sel.session
	session.Status = status
	session.AssignedAdminID = sel.ctrl.AssignedAdminID()

	state := sel.state
	if sel.ch != nil {
		state = sel.ch.State()
	}
	view := DetailView{
		Session:         session,
		Status:          status,
		AssignedAdminID: session.AssignedAdminID,
		Messages:        sel.log.Messages(),
		Channel:         state,
		PeerTyping:      sel.typing,
		CanSend:         status.CanSend(),
		CanTakeover:     status.CanTakeover(),
		CanResolve:      status.CanResolve(),
	}
	if c.cfg.Drafts != nil {
		view.Draft = c.cfg.Drafts.Get(sel.id)
	}
	return view
}

func (c *Console) controller() (*lifecycle.Controller, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sel == nil || c.sel.ctrl == nil {
		return nil, ErrNoSelection
	}
	return c.sel.ctrl, nil
}

func (c *Console) selectedID() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sel == nil {
		return "", ErrNoSelection
	}
	return c.sel.id, nil
}

func (c *Console) channelContext() context.Context {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	return c.runCtx
}

func (c *Console) current(sel *selection) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sel == sel
}

func (c *Console) onRoster(snap roster.Snapshot) {
	c.tracker.Observe(snap.All())
	c.emit(dto.ConsoleRosterUpdated, "", c.Queue())
}

func (c *Console) onRosterError(err error) {
	c.emit(dto.ConsoleRosterError, "", RosterErrorView{Error: err.Error(), Queue: c.Queue()})
}

func (c *Console) onMessage(sel *selection, m model.Message) {
	c.mu.Lock()
	if c.sel != sel {
		c.mu.Unlock()
		return
	}
	added := sel.log.Append(m)
	n := sel.log.Len()
	if m.SenderType != model.SenderTypeAdmin {
		sel.typing = false
	}
	c.mu.Unlock()

	if !added {
		return
	}
	c.tracker.SeenOpen(sel.id, n)
	c.emit(dto.ConsoleSessionMessage, sel.id, m)
}

func (c *Console) onPushedStatus(sel *selection, change model.StatusChange) {
	c.mu.Lock()
	if c.sel != sel {
		c.mu.Unlock()
		return
	}
	if sel.ctrl == nil {
		sel.pending = &change
		c.mu.Unlock()
		return
	}
	ctrl := sel.ctrl
	c.mu.Unlock()

	if err := ctrl.ApplyStatus(change); err != nil {
		c.cfg.Logger.Warn("ignoring pushed status", "session_id", sel.id, "error", err)
	}
}

// onStatus fires for both confirmed actions and pushes.
func (c *Console) onStatus(sel *selection, change model.StatusChange) {
	if !c.current(sel) {
		return
	}
	c.emit(dto.ConsoleSessionStatus, sel.id, StatusView{
		Status:          change.NewStatus,
		OldStatus:       change.OldStatus,
		AssignedAdminID: change.AssignedAdminID,
		CanSend:         change.NewStatus.CanSend(),
	})
}

func (c *Console) onTyping(sel *selection, t model.Typing) {
	if t.SenderType == model.SenderTypeAdmin {
		return
	}
	c.mu.Lock()
	if c.sel != sel {
		c.mu.Unlock()
		return
	}
	sel.typing = t.IsTyping
	c.mu.Unlock()
	c.emit(dto.ConsoleSessionTyping, sel.id, t)
}

func (c *Console) onChannelState(sel *selection, st channel.State) {
	c.mu.Lock()
	if c.sel != sel {
		c.mu.Unlock()
		return
	}
	wasJoined := sel.state.SessionJoined
	sel.state = st
	rejoined := st.SessionJoined && !wasJoined && !sel.loading
	c.mu.Unlock()
	c.emit(dto.ConsoleChannelState, sel.id, st)
	if rejoined {
		go c.resync(sel)
	}
}

// resync merges the server history after the channel rejoins, picking up
// messages sent while it was down.
func (c *Console) resync(sel *selection) {
	ctx, cancel := context.WithTimeout(c.channelContext(), resyncTimeout)
	defer cancel()
	detail, err := c.cfg.Backend.GetSession(ctx, sel.id)
	if err != nil {
		c.cfg.Logger.Warn("history resync failed", "session_id", sel.id, "error", err)
		return
	}

	c.mu.Lock()
	if c.sel != sel {
		c.mu.Unlock()
		return
	}
	added := sel.log.Merge(detail.Messages)
	seen := detail.Session.MessageCount
	if n := sel.log.Len(); n > seen {
		seen = n
	}
	c.mu.Unlock()

	c.tracker.SeenOpen(sel.id, seen)
	for _, m := range added {
		c.emit(dto.ConsoleSessionMessage, sel.id, m)
	}
	if len(added) > 0 {
		c.cfg.Logger.Info("history resynced after rejoin", "session_id", sel.id, "added", len(added))
	}
}

func (c *Console) emit(eventType, sessionID string, data any) {
	c.cfg.Notifier.Notify(dto.ConsoleEvent{
		Type:      eventType,
		SessionID: sessionID,
		Data:      data,
		Timestamp: c.cfg.Now().UnixMilli(),
	})
}
