package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tajious/bmconsole/internal/models"
	"github.com/tajious/bmconsole/internal/storage"
)

var (
	ErrMissingAccess = errors.New("access token is required")
	ErrInvalidRole   = errors.New("role must be staff or renter")
)

// Navigator receives the area the user should be taken to after a login or
// logout.
type Navigator interface {
	Navigate(path string)
}

type NavigatorFunc func(path string)

func (f NavigatorFunc) Navigate(path string) { f(path) }

type Status struct {
	Authenticated bool        `json:"isAuthenticated"`
	Role          models.Role `json:"role,omitempty"`
	Loading       bool        `json:"loading"`
}

// State mirrors the token store for one console session. The store stays the
// source of truth: the mirror only changes when this State reads or writes it.
type State struct {
	store  storage.TokenStore
	nav    Navigator
	logger *slog.Logger

	mu      sync.RWMutex
	status  Status
	version uint64

	loaded   chan struct{}
	loadOnce sync.Once
}

func New(store storage.TokenStore, nav Navigator, logger *slog.Logger) *State {
	if nav == nil {
		nav = NavigatorFunc(func(string) {})
	}
	return &State{
		store:  store,
		nav:    nav,
		logger: logger,
		status: Status{Loading: true},
		loaded: make(chan struct{}),
	}
}

// Start loads the store in the background.
func (s *State) Start(ctx context.Context) {
	go s.Load(ctx)
}

// StartEmpty settles a session known to have nothing stored as signed out,
// without reading the store.
func (s *State) StartEmpty() {
	s.mu.Lock()
	s.status.Loading = false
	s.mu.Unlock()

	s.markLoaded()
}

// Load re-reads the store. Loading is false afterwards even when nothing is
// stored. A Login or Logout that lands while the read is in flight wins.
func (s *State) Load(ctx context.Context) {
	s.mu.RLock()
	version := s.version
	s.mu.RUnlock()

	tokens := s.store.Read(ctx)

	s.mu.Lock()
	if s.version == version {
		s.status.Authenticated = tokens.Authenticated()
		s.status.Role = ""
		if s.status.Authenticated {
			s.status.Role = tokens.Role
		}
	}
	s.status.Loading = false
	s.mu.Unlock()

	s.markLoaded()
}

// Wait blocks until the first load finishes or ctx is done.
func (s *State) Wait(ctx context.Context) bool {
	select {
	case <-s.loaded:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *State) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Tokens reads the store directly.
func (s *State) Tokens(ctx context.Context) models.Tokens {
	return s.store.Read(ctx)
}

// Login persists the issued tokens and sends the user to the role's area.
func (s *State) Login(ctx context.Context, access, refresh string, role models.Role) error {
	if access == "" {
		return ErrMissingAccess
	}
	if !role.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	if err := s.store.Write(ctx, access, refresh, role); err != nil {
		return fmt.Errorf("store tokens: %w", err)
	}

	s.set(Status{Authenticated: true, Role: role})
	s.logger.Info("session established", "role", role)
	s.nav.Navigate(role.HomePath())
	return nil
}

// Logout clears the store and sends the user to the login entry. When the
// store cannot be cleared the session is left as it was.
func (s *State) Logout(ctx context.Context) error {
	if err := s.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear tokens: %w", err)
	}

	s.set(Status{})
	s.logger.Info("session ended")
	s.nav.Navigate(models.LoginPath)
	return nil
}

// UpdateAccess swaps in a refreshed access token.
func (s *State) UpdateAccess(ctx context.Context, access string) error {
	if access == "" {
		return ErrMissingAccess
	}
	return s.store.UpdateAccess(ctx, access)
}

func (s *State) set(status Status) {
	s.mu.Lock()
	s.version++
	s.status = status
	s.mu.Unlock()

	s.markLoaded()
}

func (s *State) markLoaded() {
	s.loadOnce.Do(func() { close(s.loaded) })
}
