// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// FileStore keeps all entries in a single JSON object on disk, rewritten
// atomically (temp file then rename) on every Put.
type FileStore struct {
	path   string
	policy Policy
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]fileEntry
}

type fileEntry struct {
	Body        []byte    `json:"body"`
	RetrievedAt time.Time `json:"retrieved_at"`
}

// NewFileStore opens the cache file at path, creating parent directories.
// A missing file starts an empty cache; an unparseable one is an error.
func NewFileStore(path string, policy Policy) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	s := &FileStore{
		path:    path,
		policy:  policy,
		now:     time.Now,
		entries: make(map[string]fileEntry),
	}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("reading cache %s: %w", path, err)
	}
	if len(data) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, &s.entries); err != nil {
		return nil, fmt.Errorf("parsing cache %s: %w", path, err)
	}
	return s, nil
}

// Get returns the entry for key unless it is missing or expired.
func (s *FileStore) Get(_ context.Context, key string) (Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fe, ok := s.entries[key]
	if !ok {
		return Entry{}, false, nil
	}
	e := Entry{Body: append([]byte(nil), fe.Body...), RetrievedAt: fe.RetrievedAt}
	if s.policy.Expired(e, s.now()) {
		return Entry{}, false, nil
	}
	return e, true, nil
}

// Put stores e under key, applies the eviction policy, and persists.
func (s *FileStore) Put(_ context.Context, key string, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = fileEntry{Body: append([]byte(nil), e.Body...), RetrievedAt: e.RetrievedAt}
	s.evictLocked()
	return s.flushLocked()
}

// Len returns the number of stored entries, expired ones included.
func (s *FileStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *FileStore) evictLocked() {
	now := s.now()
	for k, fe := range s.entries {
		if s.policy.Expired(Entry{RetrievedAt: fe.RetrievedAt}, now) {
			delete(s.entries, k)
		}
	}

	excess := len(s.entries) - s.policy.MaxEntries
	if s.policy.MaxEntries <= 0 || excess <= 0 {
		return
	}
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return s.entries[keys[i]].RetrievedAt.Before(s.entries[keys[j]].RetrievedAt)
	})
	for _, k := range keys[:excess] {
		delete(s.entries, k)
	}
}

func (s *FileStore) flushLocked() error {
	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling cache: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".cache-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()
	if writeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing cache: %w", writeErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", closeErr)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
