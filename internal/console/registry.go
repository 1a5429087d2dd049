package console

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tajious/bmconsole/internal/login"
	"github.com/tajious/bmconsole/internal/models"
	"github.com/tajious/bmconsole/internal/session"
	"github.com/tajious/bmconsole/internal/storage"
)

var (
	ErrClosed = errors.New("console registry is closed")
	ErrFull   = errors.New("console session limit reached")
)

// Entry is everything the console holds for one browser session.
type Entry struct {
	ID      string
	Session *session.State
	Flow    *login.Controller

	nav *navigation

	mu       sync.Mutex
	lastSeen time.Time
}

// TakeRedirect returns the last navigation the session asked for and forgets
// it.
func (e *Entry) TakeRedirect() string {
	return e.nav.take()
}

func (e *Entry) touch(now time.Time) {
	e.mu.Lock()
	e.lastSeen = now
	e.mu.Unlock()
}

func (e *Entry) idleSince() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSeen
}

// navigation records navigation intents until the HTTP layer picks them up.
// Being sent to the login entry also restarts the sign-in flow, whoever ended
// the session.
type navigation struct {
	mu      sync.Mutex
	pending string
	restart func()
}

func (n *navigation) Navigate(path string) {
	n.mu.Lock()
	n.pending = path
	restart := n.restart
	n.mu.Unlock()

	if path == models.LoginPath && restart != nil {
		restart()
	}
}

func (n *navigation) take() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	path := n.pending
	n.pending = ""
	return path
}

type Options struct {
	IdleTimeout   time.Duration
	ResendSeconds int
	Ticker        login.Ticker
	// MaxEntries caps live entries; zero means no cap. Known sessions are
	// still served when the cap is reached.
	MaxEntries int
}

// Registry owns the per-session entries. Tokens live in the backend, so an
// entry dropped for idleness comes back signed in on the next request.
type Registry struct {
	backend  storage.Backend
	accounts login.Accounts
	opts     Options
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	entries map[string]*Entry
	closed  bool
}

func NewRegistry(backend storage.Backend, accounts login.Accounts, opts Options, logger *slog.Logger) *Registry {
	return &Registry{
		backend:  backend,
		accounts: accounts,
		opts:     opts,
		logger:   logger,
		now:      time.Now,
		entries:  make(map[string]*Entry),
	}
}

// Open returns the entry for id, creating it when needed. An id that is not
// a UUID is replaced by a fresh one; callers read the result's ID. A fresh id
// has nothing stored under it, so its entry starts signed out without a store
// read.
func (r *Registry) Open(ctx context.Context, id string) (*Entry, error) {
	fresh := false
	if _, err := uuid.Parse(id); err != nil {
		id = uuid.NewString()
		fresh = true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrClosed
	}

	now := r.now()
	if entry, ok := r.entries[id]; ok {
		entry.touch(now)
		return entry, nil
	}
	if r.opts.MaxEntries > 0 && len(r.entries) >= r.opts.MaxEntries {
		r.logger.Warn("console session limit reached", "limit", r.opts.MaxEntries)
		return nil, ErrFull
	}

	logger := r.logger.With("session", id)
	nav := &navigation{}
	st := session.New(r.backend.Store(id), nav, logger)
	flow := login.NewController(r.accounts, st, login.Options{
		ResendSeconds: r.opts.ResendSeconds,
		Ticker:        r.opts.Ticker,
		Logger:        logger,
	})
	nav.restart = flow.Reset
	if fresh {
		st.StartEmpty()
	} else {
		st.Start(context.WithoutCancel(ctx))
	}

	entry := &Entry{
		ID:       id,
		Session:  st,
		Flow:     flow,
		nav:      nav,
		lastSeen: now,
	}
	r.entries[id] = entry
	logger.Debug("console session opened")
	return entry, nil
}

func (r *Registry) Get(id string) (*Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[id]
	return entry, ok
}

// Drop tears down the entry for id.
func (r *Registry) Drop(id string) {
	r.mu.Lock()
	entry, ok := r.entries[id]
	delete(r.entries, id)
	r.mu.Unlock()

	if ok {
		entry.Flow.Close()
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Sweep drops entries idle for longer than the idle timeout and returns how
// many it dropped.
func (r *Registry) Sweep(now time.Time) int {
	if r.opts.IdleTimeout <= 0 {
		return 0
	}

	r.mu.Lock()
	var idle []*Entry
	for id, entry := range r.entries {
		if now.Sub(entry.idleSince()) > r.opts.IdleTimeout {
			idle = append(idle, entry)
			delete(r.entries, id)
		}
	}
	r.mu.Unlock()

	for _, entry := range idle {
		entry.Flow.Close()
	}
	if len(idle) > 0 {
		r.logger.Info("dropped idle console sessions", "count", len(idle))
	}
	return len(idle)
}

// Run sweeps idle entries until ctx is done.
func (r *Registry) Run(ctx context.Context) {
	if r.opts.IdleTimeout <= 0 {
		return
	}

	interval := r.opts.IdleTimeout / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(r.now())
		}
	}
}

// Close tears down every entry. Open fails afterwards.
func (r *Registry) Close() {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*Entry)
	r.closed = true
	r.mu.Unlock()

	for _, entry := range entries {
		entry.Flow.Close()
	}
}
