// Package store persists stream configurations to a JSON file so monitored
// streams survive restarts.
package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/streamwatch/streamwatch/internal/models"
	"github.com/streamwatch/streamwatch/internal/observability"
)

// StreamStore holds the persisted stream configuration set. The file is an
// array of StreamConfig, rewritten on every mutation.
type StreamStore struct {
	mu      sync.RWMutex
	streams map[string]*models.StreamConfig
	path    string
	logger  *slog.Logger
}

// New creates a StreamStore persisting to path and loads any existing file.
func New(path string, logger *slog.Logger) (*StreamStore, error) {
	s := &StreamStore{
		streams: make(map[string]*models.StreamConfig),
		path:    path,
		logger:  observability.WithComponent(logger, "store"),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *StreamStore) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read stream config: %w", err)
	}

	var configs []*models.StreamConfig
	if err := json.Unmarshal(data, &configs); err != nil {
		return fmt.Errorf("parse stream config: %w", err)
	}
	for _, cfg := range configs {
		s.streams[cfg.ID] = cfg
	}
	return nil
}

func (s *StreamStore) persist() error {
	configs := s.sortedLocked()

	data, err := json.MarshalIndent(configs, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal stream config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create stream config directory: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write stream config: %w", err)
	}
	return nil
}

func (s *StreamStore) sortedLocked() []*models.StreamConfig {
	configs := make([]*models.StreamConfig, 0, len(s.streams))
	for _, cfg := range s.streams {
		configs = append(configs, cfg)
	}
	sort.Slice(configs, func(i, j int) bool {
		return configs[i].CreatedAt.Before(configs[j].CreatedAt)
	})
	return configs
}

// Add registers a stream config. A missing ID is generated; a zero creation
// time is stamped.
func (s *StreamStore) Add(cfg *models.StreamConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = time.Now().UTC()
	}
	if _, exists := s.streams[cfg.ID]; exists {
		return fmt.Errorf("stream %q already exists", cfg.ID)
	}

	s.streams[cfg.ID] = cfg
	return s.persist()
}

// Remove deletes a stream config.
func (s *StreamStore) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.streams[id]; !ok {
		return fmt.Errorf("stream %q not found", id)
	}
	delete(s.streams, id)
	return s.persist()
}

// Get returns one stream config.
func (s *StreamStore) Get(id string) (*models.StreamConfig, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.streams[id]
	return cfg, ok
}

// List returns all stream configs, oldest first.
func (s *StreamStore) List() []*models.StreamConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedLocked()
}
