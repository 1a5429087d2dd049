package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/tajious/bmconsole/internal/models"
	"gopkg.in/yaml.v3"
)

// DefaultFilePath returns $XDG_CONFIG_HOME/bm/session.yaml, falling back to
// ~/.config/bm/session.yaml.
func DefaultFilePath() (string, error) {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "bm", "session.yaml"), nil
}

// FileTokenStore keeps one session in a YAML document, replaced atomically
// by rename on every write.
type FileTokenStore struct {
	mu     sync.Mutex
	path   string
	logger *slog.Logger
}

func NewFileTokenStore(path string, logger *slog.Logger) *FileTokenStore {
	return &FileTokenStore{path: path, logger: logger}
}

func (s *FileTokenStore) Path() string {
	return s.path
}

func (s *FileTokenStore) Read(ctx context.Context) models.Tokens {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.read()
}

func (s *FileTokenStore) Write(ctx context.Context, access, refresh string, role models.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.write(models.Tokens{Access: access, Refresh: refresh, Role: role})
}

func (s *FileTokenStore) UpdateAccess(ctx context.Context, access string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tokens := s.read()
	if tokens.Access == "" {
		return ErrNoSession
	}
	tokens.Access = access
	return s.write(tokens)
}

func (s *FileTokenStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("clear session file: %w", err)
	}
	return nil
}

func (s *FileTokenStore) read() models.Tokens {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("read session file", "path", s.path, "error", err)
		}
		return models.Tokens{}
	}

	var tokens models.Tokens
	if err := yaml.Unmarshal(data, &tokens); err != nil {
		s.logger.Warn("session file is corrupt, ignoring it", "path", s.path, "error", err)
		return models.Tokens{}
	}
	return sanitize(tokens)
}

func (s *FileTokenStore) write(tokens models.Tokens) error {
	data, err := yaml.Marshal(tokens)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".session-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp session file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp session file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace session file: %w", err)
	}
	return nil
}
