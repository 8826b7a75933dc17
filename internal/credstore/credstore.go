// Package credstore persists the Gmail OAuth token set as a JSON file with
// owner-only permissions, written atomically via a temp file and rename.
package credstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"capsulemail/internal/model"
)

type Store struct {
	path string
}

// New returns a store backed by tokens.json under dir.
func New(dir string) *Store {
	return &Store{path: filepath.Join(dir, "tokens.json")}
}

// Load returns the stored token set, or (nil, nil) when none is stored.
// A record with an empty access token is treated as absent.
func (s *Store) Load() (*model.TokenSet, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read token file: %w", err)
	}
	var tok model.TokenSet
	if err := json.Unmarshal(b, &tok); err != nil {
		return nil, fmt.Errorf("parse token file: %w", err)
	}
	if tok.AccessToken == "" {
		return nil, nil
	}
	return &tok, nil
}

// Save replaces the stored token set.
func (s *Store) Save(tok *model.TokenSet) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create token directory: %w", err)
	}
	b, err := json.Marshal(tok)
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return fmt.Errorf("write token file: %w", err)
	}
	return os.Rename(tmp, s.path)
}

// Clear removes the stored token set. Clearing an empty store is not an error.
func (s *Store) Clear() error {
	err := os.Remove(s.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove token file: %w", err)
	}
	return nil
}
