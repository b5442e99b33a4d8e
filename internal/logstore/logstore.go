// Package logstore implements the append-only event log: per-stream daily
// files plus a global daily file, with age-based gzip compression, expiry,
// and time-range reads across plain and compressed files.
package logstore

import (
	"bufio"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/streamwatch/streamwatch/internal/config"
	"github.com/streamwatch/streamwatch/internal/models"
	"github.com/streamwatch/streamwatch/internal/observability"
)

const dayFormat = "2006-01-02"

// Store writes events to daily log files under a root directory. Every
// event goes to the global daily file; events carrying a stream ID also go
// to that stream's subdirectory.
type Store struct {
	root         string
	compressDays int
	deleteDays   int
	logger       *slog.Logger

	mu        sync.Mutex
	pathLocks map[string]*sync.Mutex

	cron *cron.Cron
}

// New creates a Store rooted at root. Rotation does not run until Start.
func New(root string, cfg config.LogStoreConfig, logger *slog.Logger) *Store {
	return &Store{
		root:         root,
		compressDays: cfg.CompressDays,
		deleteDays:   cfg.DeleteDays,
		logger:       observability.WithComponent(logger, "logstore"),
		pathLocks:    make(map[string]*sync.Mutex),
	}
}

// Start schedules hourly rotation. Safe to call once.
func (s *Store) Start() error {
	s.cron = cron.New()
	if _, err := s.cron.AddFunc("@hourly", func() {
		if err := s.Rotate(); err != nil {
			s.logger.Error("log rotation failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("schedule log rotation: %w", err)
	}
	s.cron.Start()
	return nil
}

// Stop halts scheduled rotation and waits for a running rotation to finish.
func (s *Store) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// WriteEvent appends one event to the global daily file and, when the event
// names a stream, to that stream's daily file.
func (s *Store) WriteEvent(event models.StreamEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	line = append(line, '\n')

	day := event.Timestamp.UTC().Format(dayFormat)

	globalPath := filepath.Join(s.root, day+".log")
	if err := s.appendLine(globalPath, line); err != nil {
		return err
	}

	if event.StreamID != "" {
		streamPath := filepath.Join(s.root, event.StreamID, day+".log")
		if err := s.appendLine(streamPath, line); err != nil {
			return err
		}
	}

	return nil
}

func (s *Store) appendLine(path string, line []byte) error {
	lock := s.lockFor(path)
	lock.Lock()
	defer lock.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("append log line: %w", err)
	}
	return nil
}

func (s *Store) lockFor(path string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.pathLocks[path]
	if !ok {
		lock = &sync.Mutex{}
		s.pathLocks[path] = lock
	}
	return lock
}

// ReadEvents returns events whose timestamp falls in [start, end], iterating
// day files in order and honoring optional stream and event-type filters.
// limit <= 0 means no limit. Malformed lines are skipped.
func (s *Store) ReadEvents(start, end time.Time, streamID string, eventType models.EventType, limit int) ([]models.StreamEvent, error) {
	start = start.UTC()
	end = end.UTC()

	var events []models.StreamEvent

	for day := startOfDay(start); !day.After(end); day = day.AddDate(0, 0, 1) {
		dir := s.root
		if streamID != "" {
			dir = filepath.Join(s.root, streamID)
		}

		base := filepath.Join(dir, day.Format(dayFormat)+".log")
		path := base
		if _, err := os.Stat(path); err != nil {
			path = base + ".gz"
			if _, err := os.Stat(path); err != nil {
				continue
			}
		}

		dayEvents, err := s.readFile(path, start, end, streamID, eventType, limit-len(events))
		if err != nil {
			s.logger.Warn("skipping unreadable log file", "path", path, "error", err)
			continue
		}
		events = append(events, dayEvents...)

		if limit > 0 && len(events) >= limit {
			return events[:limit], nil
		}
	}

	return events, nil
}

func (s *Store) readFile(path string, start, end time.Time, streamID string, eventType models.EventType, limit int) ([]models.StreamEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		r = gz
	}

	var events []models.StreamEvent
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var event models.StreamEvent
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			continue
		}
		if event.Timestamp.Before(start) || event.Timestamp.After(end) {
			continue
		}
		if streamID != "" && event.StreamID != streamID {
			continue
		}
		if eventType != "" && event.EventType != eventType {
			continue
		}
		events = append(events, event)
		if limit > 0 && len(events) >= limit {
			break
		}
	}
	return events, scanner.Err()
}

// Rotate compresses day files older than the compression age and deletes
// files older than the deletion age. Empty stream directories are removed.
func (s *Store) Rotate() error {
	now := time.Now().UTC()
	compressBefore := startOfDay(now).AddDate(0, 0, -s.compressDays)
	deleteBefore := startOfDay(now).AddDate(0, 0, -s.deleteDays)

	dirs := []string{s.root}
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read log root: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			dirs = append(dirs, filepath.Join(s.root, entry.Name()))
		}
	}

	for _, dir := range dirs {
		if err := s.rotateDir(dir, compressBefore, deleteBefore); err != nil {
			return err
		}
	}

	// Drop stream directories left empty by deletion.
	for _, dir := range dirs[1:] {
		remaining, err := os.ReadDir(dir)
		if err == nil && len(remaining) == 0 {
			if err := os.Remove(dir); err != nil {
				s.logger.Warn("could not remove empty log directory", "path", dir, "error", err)
			}
		}
	}

	return nil
}

func (s *Store) rotateDir(dir string, compressBefore, deleteBefore time.Time) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read log directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()

		dayStr := strings.TrimSuffix(strings.TrimSuffix(name, ".gz"), ".log")
		day, err := time.Parse(dayFormat, dayStr)
		if err != nil {
			continue // not a daily log file
		}

		path := filepath.Join(dir, name)

		if day.Before(deleteBefore) {
			lock := s.lockFor(strings.TrimSuffix(path, ".gz"))
			lock.Lock()
			err := os.Remove(path)
			lock.Unlock()
			if err != nil {
				s.logger.Warn("could not delete expired log", "path", path, "error", err)
			} else {
				s.logger.Info("deleted expired log", "path", path)
			}
			continue
		}

		if strings.HasSuffix(name, ".log") && day.Before(compressBefore) {
			if err := s.compressFile(path); err != nil {
				s.logger.Warn("could not compress log", "path", path, "error", err)
			} else {
				s.logger.Info("compressed log", "path", path)
			}
		}
	}

	return nil
}

func (s *Store) compressFile(path string) error {
	lock := s.lockFor(path)
	lock.Lock()
	defer lock.Unlock()

	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(path + ".gz")
	if err != nil {
		return err
	}

	gz := gzip.NewWriter(dst)
	if _, err := io.Copy(gz, src); err != nil {
		dst.Close()
		os.Remove(path + ".gz")
		return err
	}
	if err := gz.Close(); err != nil {
		dst.Close()
		os.Remove(path + ".gz")
		return err
	}
	if err := dst.Close(); err != nil {
		os.Remove(path + ".gz")
		return err
	}

	return os.Remove(path)
}

// CleanupStream removes a stream's entire log directory.
func (s *Store) CleanupStream(streamID string) error {
	if streamID == "" {
		return nil
	}
	dir := filepath.Join(s.root, streamID)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove stream logs: %w", err)
	}
	return nil
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
