// Package monitor implements the per-stream monitoring pipeline: manifest
// polling, variant selection, segment download with timing measurement, and
// fan-out to the TS, loudness and thumbnail analyzers. The Engine owns all
// per-stream mutable state; collaborators are injected.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/streamwatch/streamwatch/internal/alerting"
	"github.com/streamwatch/streamwatch/internal/bus"
	"github.com/streamwatch/streamwatch/internal/config"
	"github.com/streamwatch/streamwatch/internal/httpclient"
	"github.com/streamwatch/streamwatch/internal/logstore"
	"github.com/streamwatch/streamwatch/internal/mediatool"
	"github.com/streamwatch/streamwatch/internal/metrics"
	"github.com/streamwatch/streamwatch/internal/models"
	"github.com/streamwatch/streamwatch/internal/observability"
	"github.com/streamwatch/streamwatch/internal/sprite"
	"github.com/streamwatch/streamwatch/internal/store"
	"github.com/streamwatch/streamwatch/internal/thumbnail"
	"github.com/streamwatch/streamwatch/internal/tsanalyzer"
)

// Deps are the collaborators the Engine is composed from.
type Deps struct {
	Config     config.Config
	Client     *httpclient.Client
	Alerts     *alerting.Engine
	Bus        *bus.Bus
	Logs       *logstore.Store
	Media      *mediatool.Tool
	Thumbnails *thumbnail.Generator
	Sprites    *sprite.Composer
	Streams    *store.StreamStore
	Logger     *slog.Logger
}

// Engine supervises one pipeline per stream.
type Engine struct {
	cfg        config.Config
	client     *httpclient.Client
	alerts     *alerting.Engine
	bus        *bus.Bus
	logs       *logstore.Store
	media      *mediatool.Tool
	thumbnails *thumbnail.Generator
	sprites    *sprite.Composer
	streams    *store.StreamStore
	logger     *slog.Logger

	ctx context.Context

	mu    sync.Mutex
	slots map[string]*streamState
	wg    sync.WaitGroup
}

// New creates an Engine. ctx bounds the lifetime of every pipeline.
func New(ctx context.Context, d Deps) *Engine {
	return &Engine{
		cfg:        d.Config,
		client:     d.Client,
		alerts:     d.Alerts,
		bus:        d.Bus,
		logs:       d.Logs,
		media:      d.Media,
		thumbnails: d.Thumbnails,
		sprites:    d.Sprites,
		streams:    d.Streams,
		logger:     observability.WithComponent(d.Logger, "monitor"),
		ctx:        ctx,
		slots:      make(map[string]*streamState),
	}
}

// Start re-adds every enabled persisted stream.
func (e *Engine) Start() {
	for _, cfg := range e.streams.List() {
		if !cfg.Enabled {
			continue
		}
		if err := e.AddStream(*cfg); err != nil {
			e.logger.Error("could not resume stream",
				"stream_id", cfg.ID, "error", err)
		}
	}
}

// Wait blocks until every pipeline has exited. Call after canceling the
// engine context.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// AddStream registers a stream and spawns its pipeline. Adding an already
// monitored ID is a warned no-op.
func (e *Engine) AddStream(cfg models.StreamConfig) error {
	if cfg.ID == "" || cfg.ManifestURL == "" {
		return fmt.Errorf("stream config requires id and manifest_url")
	}

	e.mu.Lock()
	if _, exists := e.slots[cfg.ID]; exists {
		e.mu.Unlock()
		e.logger.Warn("stream already monitored, ignoring add", "stream_id", cfg.ID)
		return nil
	}

	ctx, cancel := context.WithCancel(e.ctx)
	mon := e.cfg.Monitor
	st := &streamState{
		config:        cfg,
		cancel:        cancel,
		status:        models.StreamStatusStarting,
		startTime:     time.Now().UTC(),
		currentURL:    cfg.ManifestURL,
		seen:          make(map[string]struct{}),
		seenLimit:     mon.SeenURILimit,
		sem:           make(chan struct{}, mon.MaxInflightDownloads),
		historyLimit:  mon.MetricsHistory,
		loudnessLimit: mon.LoudnessHistory,
		scte35Limit:   mon.SCTE35History,
		rolling:       metrics.NewRolling(),
		analyzer:      tsanalyzer.New(),
		health:        models.PerfectHealth(),
	}
	e.slots[cfg.ID] = st
	e.mu.Unlock()

	observability.ActiveStreams.Inc()
	e.logger.Info("stream added",
		"stream_id", cfg.ID, "name", cfg.Name, "url", cfg.ManifestURL)

	e.logEvent(cfg.ID, models.EventStreamAdded, "stream added", nil)
	e.bus.Broadcast(cfg.ID, bus.Message{Type: string(models.EventStreamAdded)})

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.run(ctx, st)
	}()

	return nil
}

// RemoveStream cancels a stream's pipeline and evicts all of its keyed
// state. It returns immediately without waiting for in-flight downloads.
func (e *Engine) RemoveStream(id string) error {
	e.mu.Lock()
	st, ok := e.slots[id]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("stream %q not monitored", id)
	}
	delete(e.slots, id)
	e.mu.Unlock()

	st.cancel()

	e.alerts.CleanupStream(id)
	e.thumbnails.CleanupStream(id)
	e.sprites.CleanupStream(id)
	if err := e.logs.CleanupStream(id); err != nil {
		e.logger.Warn("could not clean stream logs", "stream_id", id, "error", err)
	}
	observability.ActiveStreams.Dec()
	observability.RemoveStreamMetrics(id)

	e.logger.Info("stream removed", "stream_id", id)
	e.logEvent("", models.EventStreamRemoved, fmt.Sprintf("stream %s removed", id), nil)

	return nil
}

// slot returns the live state for a stream.
func (e *Engine) slot(id string) (*streamState, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.slots[id]
	return st, ok
}

// IsMonitored reports whether the stream has an active pipeline.
func (e *Engine) IsMonitored(id string) bool {
	_, ok := e.slot(id)
	return ok
}

// GetHealth returns the stream's aggregated health snapshot.
func (e *Engine) GetHealth(id string) (models.StreamHealth, error) {
	st, ok := e.slot(id)
	if !ok {
		return models.StreamHealth{}, fmt.Errorf("stream %q not monitored", id)
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	return models.StreamHealth{
		Status:         st.status,
		HealthScore:    st.health,
		ActiveAlerts:   e.alerts.ActiveAlerts(id),
		TSMetrics:      st.tsMetrics,
		ManifestErrors: append([]models.ManifestError(nil), st.manifestErrors...),
		LastUpdated:    time.Now().UTC(),
	}, nil
}

// GetDetails returns the API-facing snapshot of a stream.
func (e *Engine) GetDetails(id string) (models.StreamDetails, error) {
	st, ok := e.slot(id)
	if !ok {
		return models.StreamDetails{}, fmt.Errorf("stream %q not monitored", id)
	}

	health, _ := e.GetHealth(id)

	st.mu.Lock()
	defer st.mu.Unlock()

	return models.StreamDetails{
		ID:             st.config.ID,
		Name:           st.config.Name,
		Status:         st.status,
		StartTime:      st.startTime,
		ManifestURL:    st.config.ManifestURL,
		Tags:           st.config.Tags,
		VariantStreams: append([]models.VariantStream(nil), st.variants...),
		CurrentMetrics: st.current,
		Health:         health,
	}, nil
}

// ListDetails returns snapshots for every monitored stream.
func (e *Engine) ListDetails() []models.StreamDetails {
	e.mu.Lock()
	ids := make([]string, 0, len(e.slots))
	for id := range e.slots {
		ids = append(ids, id)
	}
	e.mu.Unlock()

	out := make([]models.StreamDetails, 0, len(ids))
	for _, id := range ids {
		if details, err := e.GetDetails(id); err == nil {
			out = append(out, details)
		}
	}
	return out
}

// GetMetricsHistory returns up to limit of the stream's most recent segment
// metrics, oldest first. limit <= 0 returns everything.
func (e *Engine) GetMetricsHistory(id string, limit int) ([]models.SegmentMetrics, error) {
	st, ok := e.slot(id)
	if !ok {
		return nil, fmt.Errorf("stream %q not monitored", id)
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	history := st.history
	if limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}
	return append([]models.SegmentMetrics(nil), history...), nil
}

// GetMetricsSince returns the segment metrics recorded at or after the
// threshold, oldest first.
func (e *Engine) GetMetricsSince(id string, threshold time.Time) ([]models.SegmentMetrics, error) {
	st, ok := e.slot(id)
	if !ok {
		return nil, fmt.Errorf("stream %q not monitored", id)
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	var out []models.SegmentMetrics
	for _, m := range st.history {
		if !m.Timestamp.Before(threshold) {
			out = append(out, m)
		}
	}
	return out, nil
}

// GetSegments returns a newest-first page of segment metrics and the total
// history length.
func (e *Engine) GetSegments(id string, limit, offset int) ([]models.SegmentMetrics, int, error) {
	st, ok := e.slot(id)
	if !ok {
		return nil, 0, fmt.Errorf("stream %q not monitored", id)
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	total := len(st.history)
	if limit <= 0 {
		limit = total
	}

	var page []models.SegmentMetrics
	for i := total - 1 - offset; i >= 0 && len(page) < limit; i-- {
		page = append(page, st.history[i])
	}
	return page, total, nil
}

// GetLoudnessHistory returns the stream's loudness measurements, oldest
// first.
func (e *Engine) GetLoudnessHistory(id string) ([]models.LoudnessData, error) {
	st, ok := e.slot(id)
	if !ok {
		return nil, fmt.Errorf("stream %q not monitored", id)
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	return append([]models.LoudnessData(nil), st.loudness...), nil
}

// GetSCTE35Events returns the stream's recorded splice events, oldest first.
func (e *Engine) GetSCTE35Events(id string) ([]models.SCTE35Event, error) {
	st, ok := e.slot(id)
	if !ok {
		return nil, fmt.Errorf("stream %q not monitored", id)
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	return append([]models.SCTE35Event(nil), st.scte35...), nil
}

// logEvent writes an event to the log store and reports write failures.
func (e *Engine) logEvent(streamID string, eventType models.EventType, message string, metadata map[string]any) {
	event := models.StreamEvent{
		EventID:   ulid.Make().String(),
		StreamID:  streamID,
		EventType: eventType,
		Timestamp: time.Now().UTC(),
		Message:   message,
		Metadata:  metadata,
		Severity:  severityFor(eventType),
	}
	if err := e.logs.WriteEvent(event); err != nil {
		e.logger.Warn("could not write event log",
			"stream_id", streamID, "event_type", string(eventType), "error", err)
	}
}

func severityFor(eventType models.EventType) string {
	switch eventType {
	case models.EventError:
		return "error"
	case models.EventWarning, models.EventAlarm:
		return "warning"
	default:
		return "info"
	}
}
