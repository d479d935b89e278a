package l1

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// TrackedKeyStore persists the set of trade keys (display form) the
// coordinator is responsible for watching, across restarts. It is read
// once at construction and rewritten atomically on every change — there is
// no incremental append format, matching spec.md §4.2's "whole-file,
// read-at-construction, atomic-rewrite" persistence contract.
type TrackedKeyStore struct {
	path string
	mu   sync.Mutex
	keys map[string]struct{}
}

// NewTrackedKeyStore loads path if it exists, or starts with an empty set
// if it doesn't.
func NewTrackedKeyStore(path string) (*TrackedKeyStore, error) {
	s := &TrackedKeyStore{path: path, keys: make(map[string]struct{})}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("l1: reading tracked key store %s: %w", path, err)
	}
	if len(raw) == 0 {
		return s, nil
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("l1: parsing tracked key store %s: %w", path, err)
	}
	for _, k := range list {
		s.keys[k] = struct{}{}
	}
	return s, nil
}

// Keys returns a snapshot of every tracked display-form key.
func (s *TrackedKeyStore) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.keys))
	for k := range s.keys {
		out = append(out, k)
	}
	return out
}

// RegisterTrade adds display to the tracked set and rewrites the store, a
// no-op if display is already present.
func (s *TrackedKeyStore) RegisterTrade(display string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.keys[display]; ok {
		return nil
	}
	s.keys[display] = struct{}{}
	return s.persistLocked()
}

// UnregisterTrade removes display from the tracked set and rewrites the
// store, a no-op if display was not present.
func (s *TrackedKeyStore) UnregisterTrade(display string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.keys[display]; !ok {
		return nil
	}
	delete(s.keys, display)
	return s.persistLocked()
}

// persistLocked rewrites the whole file via a temp-file-then-rename so a
// crash mid-write never leaves a truncated store behind. Caller must hold
// s.mu.
func (s *TrackedKeyStore) persistLocked() error {
	list := make([]string, 0, len(s.keys))
	for k := range s.keys {
		list = append(list, k)
	}

	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return fmt.Errorf("l1: encoding tracked key store: %w", err)
	}

	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("l1: creating tracked key store directory: %w", err)
		}
	}

	tmp, err := os.CreateTemp(dir, ".trackedkeys-*.tmp")
	if err != nil {
		return fmt.Errorf("l1: creating tracked key store temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("l1: writing tracked key store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("l1: closing tracked key store temp file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("l1: committing tracked key store: %w", err)
	}
	return nil
}
