// Package webhook delivers monitoring events to registered HTTP endpoints.
// Configs persist to a JSON file on every mutation; deliveries are
// best-effort with no retry.
package webhook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/streamwatch/streamwatch/internal/models"
	"github.com/streamwatch/streamwatch/internal/observability"
)

// payload is the body POSTed to every receiver.
type payload struct {
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// configFile is the on-disk shape of the persisted webhook set.
type configFile struct {
	Webhooks []*models.WebhookConfig `json:"webhooks"`
}

// Dispatcher manages webhook configs and fans events out to them.
type Dispatcher struct {
	mu       sync.RWMutex
	webhooks map[string]*models.WebhookConfig
	path     string
	client   *http.Client
	logger   *slog.Logger
}

// New creates a Dispatcher persisting to path and loads any existing
// configs from it.
func New(path string, timeout time.Duration, logger *slog.Logger) (*Dispatcher, error) {
	d := &Dispatcher{
		webhooks: make(map[string]*models.WebhookConfig),
		path:     path,
		client:   &http.Client{Timeout: timeout},
		logger:   observability.WithComponent(logger, "webhook"),
	}
	if err := d.load(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Dispatcher) load() error {
	data, err := os.ReadFile(d.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read webhook config: %w", err)
	}

	var file configFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse webhook config: %w", err)
	}
	for _, w := range file.Webhooks {
		d.webhooks[w.ID] = w
	}
	return nil
}

// persist writes the current set to disk. Caller holds at least a read lock.
func (d *Dispatcher) persist() error {
	file := configFile{Webhooks: make([]*models.WebhookConfig, 0, len(d.webhooks))}
	for _, w := range d.webhooks {
		file.Webhooks = append(file.Webhooks, w)
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal webhook config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(d.path), 0o755); err != nil {
		return fmt.Errorf("create webhook config directory: %w", err)
	}
	if err := os.WriteFile(d.path, data, 0o644); err != nil {
		return fmt.Errorf("write webhook config: %w", err)
	}
	return nil
}

// Add registers a webhook. A missing ID is generated; a zero creation time
// is stamped.
func (d *Dispatcher) Add(w *models.WebhookConfig) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now().UTC()
	}
	if _, exists := d.webhooks[w.ID]; exists {
		return fmt.Errorf("webhook %q already exists", w.ID)
	}

	d.webhooks[w.ID] = w
	return d.persist()
}

// Update replaces the config with the given ID.
func (d *Dispatcher) Update(w *models.WebhookConfig) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	existing, ok := d.webhooks[w.ID]
	if !ok {
		return fmt.Errorf("webhook %q not found", w.ID)
	}
	w.CreatedAt = existing.CreatedAt
	d.webhooks[w.ID] = w
	return d.persist()
}

// Remove deletes the config with the given ID.
func (d *Dispatcher) Remove(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.webhooks[id]; !ok {
		return fmt.Errorf("webhook %q not found", id)
	}
	delete(d.webhooks, id)
	return d.persist()
}

// Get returns the config with the given ID.
func (d *Dispatcher) Get(id string) (*models.WebhookConfig, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	w, ok := d.webhooks[id]
	return w, ok
}

// List returns all configs.
func (d *Dispatcher) List() []*models.WebhookConfig {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*models.WebhookConfig, 0, len(d.webhooks))
	for _, w := range d.webhooks {
		out = append(out, w)
	}
	return out
}

// SendEvent POSTs the event to every enabled webhook subscribed to its
// type. Failures are logged, not retried.
func (d *Dispatcher) SendEvent(eventType string, eventPayload any) {
	d.mu.RLock()
	var targets []*models.WebhookConfig
	for _, w := range d.webhooks {
		if w.Enabled && w.WantsEvent(eventType) {
			targets = append(targets, w)
		}
	}
	d.mu.RUnlock()

	if len(targets) == 0 {
		return
	}

	body, err := json.Marshal(payload{
		EventType: eventType,
		Timestamp: time.Now().UTC(),
		Payload:   eventPayload,
	})
	if err != nil {
		d.logger.Error("webhook payload marshal failed", "event_type", eventType, "error", err)
		return
	}

	for _, w := range targets {
		d.deliver(w, eventType, body)
	}
}

func (d *Dispatcher) deliver(w *models.WebhookConfig, eventType string, body []byte) {
	req, err := http.NewRequest(http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		d.logger.Error("webhook request build failed", "webhook_id", w.ID, "error", err)
		observability.WebhookDeliveriesTotal.WithLabelValues("error").Inc()
		return
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.Headers {
		req.Header.Set(k, v)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		d.logger.Warn("webhook delivery failed",
			"webhook_id", w.ID, "url", w.URL, "event_type", eventType, "error", err)
		observability.WebhookDeliveriesTotal.WithLabelValues("error").Inc()
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		d.logger.Warn("webhook delivery rejected",
			"webhook_id", w.ID, "url", w.URL, "event_type", eventType, "status", resp.StatusCode)
		observability.WebhookDeliveriesTotal.WithLabelValues("rejected").Inc()
		return
	}

	observability.WebhookDeliveriesTotal.WithLabelValues("ok").Inc()
	d.logger.Debug("webhook delivered",
		"webhook_id", w.ID, "event_type", eventType, "status", resp.StatusCode)
}

// Test sends a synthetic event to one webhook regardless of its filters,
// returning the delivery error if any.
func (d *Dispatcher) Test(id string) error {
	d.mu.RLock()
	w, ok := d.webhooks[id]
	d.mu.RUnlock()
	if !ok {
		return fmt.Errorf("webhook %q not found", id)
	}

	body, err := json.Marshal(payload{
		EventType: "test",
		Timestamp: time.Now().UTC(),
		Payload:   map[string]any{"message": "streamwatch webhook test"},
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.Headers {
		req.Header.Set(k, v)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook test delivery: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook test rejected with status %d", resp.StatusCode)
	}
	return nil
}
