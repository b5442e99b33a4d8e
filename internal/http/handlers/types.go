// Package handlers provides the HTTP API handlers for streamwatch.
package handlers

import (
	"fmt"
	"time"

	"github.com/streamwatch/streamwatch/internal/models"
)

// CreateStreamRequest is the request body for registering a stream.
type CreateStreamRequest struct {
	ID          string   `json:"id,omitempty" doc:"Stream ID; generated when omitted" maxLength:"128"`
	Name        string   `json:"name,omitempty" doc:"Display name" maxLength:"255"`
	ManifestURL string   `json:"manifest_url" doc:"HLS master or media playlist URL" minLength:"1" maxLength:"2048"`
	Enabled     *bool    `json:"enabled,omitempty" doc:"Whether monitoring starts immediately (default: true)"`
	Tags        []string `json:"tags,omitempty" doc:"Free-form labels"`
}

// ToModel converts the request to a stream config.
func (r *CreateStreamRequest) ToModel() *models.StreamConfig {
	cfg := &models.StreamConfig{
		ID:          r.ID,
		Name:        r.Name,
		ManifestURL: r.ManifestURL,
		Enabled:     true,
		Tags:        r.Tags,
	}
	if r.Enabled != nil {
		cfg.Enabled = *r.Enabled
	}
	return cfg
}

// CreateWebhookRequest is the request body for registering a webhook.
type CreateWebhookRequest struct {
	Name    string            `json:"name,omitempty" doc:"Display name" maxLength:"255"`
	URL     string            `json:"url" doc:"Target URL for event POSTs" minLength:"1" maxLength:"2048"`
	Enabled *bool             `json:"enabled,omitempty" doc:"Whether the webhook receives events (default: true)"`
	Events  []string          `json:"events,omitempty" doc:"Event types to deliver; empty means all"`
	Headers map[string]string `json:"headers,omitempty" doc:"Extra headers sent with each delivery"`
}

// ToModel converts the request to a webhook config.
func (r *CreateWebhookRequest) ToModel() *models.WebhookConfig {
	cfg := &models.WebhookConfig{
		Name:    r.Name,
		URL:     r.URL,
		Enabled: true,
		Events:  r.Events,
		Headers: r.Headers,
	}
	if r.Enabled != nil {
		cfg.Enabled = *r.Enabled
	}
	return cfg
}

// UpdateWebhookRequest is the request body for updating a webhook.
type UpdateWebhookRequest struct {
	Name    *string            `json:"name,omitempty" maxLength:"255"`
	URL     *string            `json:"url,omitempty" maxLength:"2048"`
	Enabled *bool              `json:"enabled,omitempty"`
	Events  *[]string          `json:"events,omitempty"`
	Headers *map[string]string `json:"headers,omitempty"`
}

// ApplyToModel applies the update request to an existing webhook config.
func (r *UpdateWebhookRequest) ApplyToModel(w *models.WebhookConfig) {
	if r.Name != nil {
		w.Name = *r.Name
	}
	if r.URL != nil {
		w.URL = *r.URL
	}
	if r.Enabled != nil {
		w.Enabled = *r.Enabled
	}
	if r.Events != nil {
		w.Events = *r.Events
	}
	if r.Headers != nil {
		w.Headers = *r.Headers
	}
}

// metricsRanges maps the supported ?range= values to durations.
var metricsRanges = map[string]time.Duration{
	"3min":  3 * time.Minute,
	"30min": 30 * time.Minute,
	"3h":    3 * time.Hour,
	"8h":    8 * time.Hour,
	"2d":    48 * time.Hour,
	"4d":    96 * time.Hour,
}

// parseRange resolves a ?range= value; empty defaults to 3h.
func parseRange(value string) (time.Duration, error) {
	if value == "" {
		value = "3h"
	}
	d, ok := metricsRanges[value]
	if !ok {
		return 0, fmt.Errorf("unsupported range %q", value)
	}
	return d, nil
}
