// Package roster keeps the authoritative session roster fresh by polling the
// support backend.
package roster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"support-console/internal/model"
	"support-console/internal/queue"
)

var ErrStopped = errors.New("roster: poller stopped")

// Fetcher is the slice of the backend API the poller needs.
type Fetcher interface {
	ListSessions(ctx context.Context, status model.SessionStatus, page, limit int) (model.SessionPage, error)
}

type Counts struct {
	Waiting       int `json:"waiting"`
	AdminHandling int `json:"adminHandling"`
	Resolved      int `json:"resolved"`
}

// Snapshot is one successful fetch cycle. Its slices are never mutated after
// publication; callers must treat them as read-only.
type Snapshot struct {
	Waiting       []model.Session
	AdminHandling []model.Session
	Resolved      []model.Session
	ResolvedPage  model.Pagination
	Counts        Counts
	FetchedAt     time.Time
}

// Active is the waiting partition followed by the admin-handling partition.
func (s Snapshot) Active() []model.Session {
	out := make([]model.Session, 0, len(s.Waiting)+len(s.AdminHandling))
	out = append(out, s.Waiting...)
	return append(out, s.AdminHandling...)
}

// All returns every session in the snapshot.
func (s Snapshot) All() []model.Session {
	return append(s.Active(), s.Resolved...)
}

type Config struct {
	Interval      time.Duration
	ActiveLimit   int
	ResolvedLimit int
	// Queue runs the three roster queries concurrently. Nil runs them inline.
	Queue    *queue.RequestQueueManager
	Logger   *slog.Logger
	OnUpdate func(Snapshot)
	OnError  func(error)
	Now      func() time.Time
}

type Poller struct {
	fetcher Fetcher
	cfg     Config

	cycleMu sync.Mutex

	mu           sync.RWMutex
	snapshot     Snapshot
	hasSnapshot  bool
	arrivals     ArrivalDetector
	newIDs       map[string]struct{}
	resolvedPage int
	lastErr      error

	runMu   sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewPoller(fetcher Fetcher, cfg Config) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.ActiveLimit <= 0 {
		cfg.ActiveLimit = 50
	}
	if cfg.ResolvedLimit <= 0 {
		cfg.ResolvedLimit = 20
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Poller{
		fetcher:      fetcher,
		cfg:          cfg,
		newIDs:       make(map[string]struct{}),
		resolvedPage: 1,
	}
}

// Start performs one cycle immediately and then one per interval until Stop
// or until ctx ends. Failed cycles never stop the interval.
func (p *Poller) Start(ctx context.Context) {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	if p.running {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	p.running = true
	p.cancel = cancel
	p.done = make(chan struct{})

	go p.loop(ctx, p.done)
}

func (p *Poller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	p.cycle(ctx)

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.cycle(ctx)
		}
	}
}

// Stop clears the interval and waits for an in-flight cycle to return.
func (p *Poller) Stop() {
	p.runMu.Lock()
	if !p.running {
		p.runMu.Unlock()
		return
	}
	p.running = false
	cancel, done := p.cancel, p.done
	p.runMu.Unlock()

	cancel()
	<-done
}

// Refresh runs an out-of-band cycle without touching the tick schedule.
func (p *Poller) Refresh(ctx context.Context) error {
	return p.cycle(ctx)
}

// SetResolvedPage selects the resolved page fetched from the next cycle on.
func (p *Poller) SetResolvedPage(n int) {
	if n < 1 {
		n = 1
	}
	p.mu.Lock()
	p.resolvedPage = n
	p.mu.Unlock()
}

func (p *Poller) ResolvedPage() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.resolvedPage
}

// Snapshot returns the last successful cycle. ok is false before the first.
func (p *Poller) Snapshot() (Snapshot, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snapshot, p.hasSnapshot
}

// NewIDs returns the cumulative set of newly arrived waiting sessions, sorted.
func (p *Poller) NewIDs() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, 0, len(p.newIDs))
	for id := range p.newIDs {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (p *Poller) IsNew(id string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.newIDs[id]
	return ok
}

// ClearNewIDs removes the given ids from the new set, or all of them when
// none are given.
func (p *Poller) ClearNewIDs(ids ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(ids) == 0 {
		p.newIDs = make(map[string]struct{})
		return
	}
	for _, id := range ids {
		delete(p.newIDs, id)
	}
}

// LastError is the error of the most recent cycle, nil after a success.
func (p *Poller) LastError() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastErr
}

func (p *Poller) cycle(ctx context.Context) error {
	p.cycleMu.Lock()
	defer p.cycleMu.Unlock()

	if ctx.Err() != nil {
		return ErrStopped
	}

	p.mu.RLock()
	resolvedPage := p.resolvedPage
	p.mu.RUnlock()

	start := p.cfg.Now()
	waiting, handling, resolved, err := p.fetch(ctx, resolvedPage)
	observeCycle(err == nil, time.Since(start).Seconds())
	if err != nil {
		if ctx.Err() != nil {
			return ErrStopped
		}
		// The previous snapshot and new-id set stay in place.
		p.mu.Lock()
		p.lastErr = err
		p.mu.Unlock()
		p.cfg.Logger.Warn("roster cycle failed", "error", err)
		if p.cfg.OnError != nil {
			p.cfg.OnError(err)
		}
		return err
	}

	snap := Snapshot{
		Waiting:       waiting.Sessions,
		AdminHandling: handling.Sessions,
		Resolved:      resolved.Sessions,
		ResolvedPage:  resolved.Pagination,
		Counts: Counts{
			Waiting:       waiting.Pagination.Total,
			AdminHandling: handling.Pagination.Total,
			Resolved:      resolved.Pagination.Total,
		},
		FetchedAt: p.cfg.Now(),
	}

	ids := make([]string, 0, len(snap.Waiting))
	for _, s := range snap.Waiting {
		ids = append(ids, s.ID)
	}

	p.mu.Lock()
	arrived := p.arrivals.Observe(ids)
	for _, id := range arrived {
		p.newIDs[id] = struct{}{}
	}
	p.snapshot = snap
	p.hasSnapshot = true
	p.lastErr = nil
	p.mu.Unlock()

	setCounts(snap.Counts)
	if len(arrived) > 0 {
		addArrivals(len(arrived))
		p.cfg.Logger.Info("new waiting sessions", "ids", arrived)
	}
	if p.cfg.OnUpdate != nil {
		p.cfg.OnUpdate(snap)
	}
	return nil
}

// fetch issues the three roster queries. Any single failure fails the cycle.
func (p *Poller) fetch(ctx context.Context, resolvedPage int) (waiting, handling, resolved model.SessionPage, err error) {
	q := func(status model.SessionStatus, page, limit int, out *model.SessionPage) func() error {
		return func() error {
			res, err := p.fetcher.ListSessions(ctx, status, page, limit)
			if err != nil {
				return fmt.Errorf("roster: list %s: %w", status, err)
			}
			*out = res
			return nil
		}
	}
	jobs := []func() error{
		q(model.SessionStatusWaitingAdmin, 1, p.cfg.ActiveLimit, &waiting),
		q(model.SessionStatusAdminHandling, 1, p.cfg.ActiveLimit, &handling),
		q(model.SessionStatusResolved, resolvedPage, p.cfg.ResolvedLimit, &resolved),
	}

	if p.cfg.Queue == nil {
		for _, job := range jobs {
			if err = job(); err != nil {
				return
			}
		}
		return
	}

	results := make([]<-chan error, 0, len(jobs))
	for _, job := range jobs {
		results = append(results, p.cfg.Queue.Go(job))
	}
	// Every job must finish before its output slot is read, so wait without
	// ctx here; the fetcher itself honours ctx.
	err = queue.Wait(context.Background(), results...)
	return
}
