package storage

import (
	"context"
	"sync"

	"github.com/tajious/bmconsole/internal/models"
)

type MemoryBackend struct {
	mu    sync.RWMutex
	slots map[string]models.Tokens
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		slots: make(map[string]models.Tokens),
	}
}

// NewMemoryTokenStore returns a standalone in-memory store.
func NewMemoryTokenStore() TokenStore {
	return NewMemoryBackend().Store("default")
}

func (b *MemoryBackend) Store(namespace string) TokenStore {
	return &MemoryTokenStore{backend: b, namespace: namespace}
}

func (b *MemoryBackend) Close() error {
	return nil
}

type MemoryTokenStore struct {
	backend   *MemoryBackend
	namespace string
}

func (s *MemoryTokenStore) Read(ctx context.Context) models.Tokens {
	s.backend.mu.RLock()
	defer s.backend.mu.RUnlock()

	return sanitize(s.backend.slots[s.namespace])
}

func (s *MemoryTokenStore) Write(ctx context.Context, access, refresh string, role models.Role) error {
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()

	s.backend.slots[s.namespace] = models.Tokens{Access: access, Refresh: refresh, Role: role}
	return nil
}

func (s *MemoryTokenStore) UpdateAccess(ctx context.Context, access string) error {
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()

	tokens, exists := s.backend.slots[s.namespace]
	if !exists || tokens.Access == "" {
		return ErrNoSession
	}
	tokens.Access = access
	s.backend.slots[s.namespace] = tokens
	return nil
}

func (s *MemoryTokenStore) Clear(ctx context.Context) error {
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()

	delete(s.backend.slots, s.namespace)
	return nil
}
