// Package storage keeps shared analysis snapshots on disk with a bounded
// lifetime.
package storage

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// shareIDAlphabet excludes the characters that read ambiguously in a short
// link: 0, o, l, 1.
const shareIDAlphabet = "abcdefghijkmnpqrstuvwxyz23456789"

const shareIDLength = 8

var (
	ErrShareNotFound = errors.New("share not found")
	ErrShareExpired  = errors.New("share expired")
)

// ShareTTLs are the retention choices offered when creating a share.
var ShareTTLs = map[string]time.Duration{
	"24h": 24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
	"1m":  30 * 24 * time.Hour,
}

// SharedAnalysis is one stored snapshot. Results are held as raw JSON so the
// store stays independent of the view layer's types.
type SharedAnalysis struct {
	ID        string          `json:"id"`
	Filename  string          `json:"filename"`
	Results   json.RawMessage `json:"results"`
	CreatedAt time.Time       `json:"created_at"`
	ExpiresAt time.Time       `json:"expires_at"`
}

func (s *SharedAnalysis) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// ShareStore persists one JSON file per share under its directory. Expired
// shares are dropped lazily on access and in bulk by CleanupExpired; a file
// that no longer parses is deleted rather than failing the request.
type ShareStore struct {
	mu         sync.Mutex
	dir        string
	defaultTTL time.Duration
	logger     *zap.Logger
}

// NewShareStore creates the share directory if needed. The default TTL label
// applies when a create request carries no (or an unknown) TTL.
func NewShareStore(dir string, defaultTTLLabel string, logger *zap.Logger) (*ShareStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create share directory %s: %w", dir, err)
	}
	defaultTTL, ok := ShareTTLs[defaultTTLLabel]
	if !ok {
		defaultTTL = ShareTTLs["24h"]
	}
	return &ShareStore{
		dir:        dir,
		defaultTTL: defaultTTL,
		logger:     logger,
	}, nil
}

func (s *ShareStore) ttlFor(label string) time.Duration {
	if ttl, ok := ShareTTLs[label]; ok {
		return ttl
	}
	return s.defaultTTL
}

func (s *ShareStore) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// Create stores a snapshot under a fresh id.
func (s *ShareStore) Create(filename string, results json.RawMessage, ttlLabel string) (*SharedAnalysis, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.newID()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	share := &SharedAnalysis{
		ID:        id,
		Filename:  filename,
		Results:   results,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttlFor(ttlLabel)),
	}

	data, err := json.Marshal(share)
	if err != nil {
		return nil, fmt.Errorf("failed to encode share %s: %w", id, err)
	}
	if err := os.WriteFile(s.path(id), data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write share %s: %w", id, err)
	}

	s.logger.Info("Created share",
		zap.String("share_id", id),
		zap.Time("expires_at", share.ExpiresAt),
	)
	return share, nil
}

// Get returns the share or an error; an expired share is deleted on the spot.
func (s *ShareStore) Get(id string) (*SharedAnalysis, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(id, time.Now().UTC())
}

// load reads and validates one share file. Caller holds the lock.
func (s *ShareStore) load(id string, now time.Time) (*SharedAnalysis, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrShareNotFound
		}
		return nil, fmt.Errorf("failed to read share %s: %w", id, err)
	}

	var share SharedAnalysis
	if err := json.Unmarshal(data, &share); err != nil {
		s.logger.Warn("Deleting corrupted share file",
			zap.String("share_id", id),
			zap.Error(err),
		)
		s.remove(id)
		return nil, ErrShareNotFound
	}
	if share.Expired(now) {
		s.remove(id)
		return nil, ErrShareExpired
	}
	return &share, nil
}

func (s *ShareStore) remove(id string) {
	if err := os.Remove(s.path(id)); err != nil && !os.IsNotExist(err) {
		s.logger.Error("Failed to remove share file",
			zap.String("share_id", id),
			zap.Error(err),
		)
	}
}

func (s *ShareStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.path(id)); os.IsNotExist(err) {
		return ErrShareNotFound
	}
	s.remove(id)
	return nil
}

// List returns the live shares; expired and corrupted ones are dropped as
// they are seen.
func (s *ShareStore) List() []*SharedAnalysis {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	result := make([]*SharedAnalysis, 0)
	for _, id := range s.ids() {
		share, err := s.load(id, now)
		if err != nil {
			continue
		}
		result = append(result, share)
	}
	return result
}

// CleanupExpired drops every expired share and returns how many were removed.
func (s *ShareStore) CleanupExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	removed := 0
	for _, id := range s.ids() {
		if _, err := s.load(id, now); errors.Is(err, ErrShareExpired) {
			removed++
		}
	}
	if removed > 0 {
		s.logger.Info("Cleaned up expired shares", zap.Int("removed", removed))
	}
	return removed
}

// Count returns the number of share files currently held, expired or not.
func (s *ShareStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids())
}

// ids lists the share ids present on disk. Caller holds the lock.
func (s *ShareStore) ids() []string {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.logger.Error("Failed to read share directory", zap.Error(err))
		return nil
	}
	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	return ids
}

// newID draws random ids until one is unused. Caller holds the lock.
func (s *ShareStore) newID() (string, error) {
	for attempt := 0; attempt < 10; attempt++ {
		buf := make([]byte, shareIDLength)
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to generate share id: %w", err)
		}
		id := make([]byte, shareIDLength)
		for i, b := range buf {
			id[i] = shareIDAlphabet[int(b)%len(shareIDAlphabet)]
		}
		if _, err := os.Stat(s.path(string(id))); os.IsNotExist(err) {
			return string(id), nil
		}
	}
	return "", errors.New("failed to generate unique share id")
}
