package api

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// TokenStore persists the API auth token on disk so restarts keep the
// authenticated session. The stream and REST clients only ever see the token
// string; this is the single place that touches the file.
type TokenStore struct {
	path string
}

// NewTokenStore creates a token store at path. An empty path disables
// persistence.
func NewTokenStore(path string) *TokenStore {
	return &TokenStore{path: path}
}

// Load reads the persisted token. A missing file is not an error; it simply
// yields an empty token.
func (s *TokenStore) Load() (string, error) {
	if s == nil || s.path == "" {
		return "", nil
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read token file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Save writes the token with owner-only permissions.
func (s *TokenStore) Save(token string) error {
	if s == nil || s.path == "" {
		return nil
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create token dir: %w", err)
		}
	}
	if err := os.WriteFile(s.path, []byte(token+"\n"), 0o600); err != nil {
		return fmt.Errorf("write token file: %w", err)
	}
	return nil
}

// Clear removes the persisted token.
func (s *TokenStore) Clear() error {
	if s == nil || s.path == "" {
		return nil
	}
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove token file: %w", err)
	}
	return nil
}
