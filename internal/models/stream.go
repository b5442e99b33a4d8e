// Package models defines the domain types shared across streamwatch.
package models

import "time"

// StreamStatus represents the lifecycle state of a monitored stream.
type StreamStatus string

const (
	StreamStatusOnline   StreamStatus = "online"
	StreamStatusOffline  StreamStatus = "offline"
	StreamStatusError    StreamStatus = "error"
	StreamStatusStarting StreamStatus = "starting"
)

// StreamConfig is the persisted identity of a monitored stream.
// Created by the API facade, owned by the monitor engine until removal.
type StreamConfig struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	ManifestURL string    `json:"manifest_url"`
	Enabled     bool      `json:"enabled"`
	Tags        []string  `json:"tags"`
	CreatedAt   time.Time `json:"created_at"`
}

// VariantStream describes one variant entry from a master playlist.
type VariantStream struct {
	URI        string  `json:"uri"`
	Resolution string  `json:"resolution,omitempty"`
	Bandwidth  int     `json:"bandwidth,omitempty"`
	Codecs     string  `json:"codecs,omitempty"`
	FrameRate  float64 `json:"frame_rate,omitempty"`
}

// StreamDetails is the API-facing snapshot of a stream and its latest state.
type StreamDetails struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Status         StreamStatus    `json:"status"`
	Version        string          `json:"version"`
	StartTime      time.Time       `json:"start_time"`
	ManifestURL    string          `json:"manifest_url"`
	Tags           []string        `json:"tags"`
	VariantStreams []VariantStream `json:"variant_streams"`
	CurrentMetrics *SegmentMetrics `json:"current_metrics,omitempty"`
	Health         StreamHealth    `json:"health"`
	ThumbnailURL   string          `json:"thumbnail_url,omitempty"`
}

// StreamHealth aggregates the health view of a stream.
type StreamHealth struct {
	Status         StreamStatus    `json:"status"`
	HealthScore    HealthScore     `json:"health_score"`
	ActiveAlerts   []*Alert        `json:"active_alerts"`
	TSMetrics      TSMetrics       `json:"tr101290_metrics"`
	ManifestErrors []ManifestError `json:"manifest_errors"`
	AudioMetrics   *AudioMetrics   `json:"audio_metrics,omitempty"`
	VideoMetrics   *VideoMetrics   `json:"video_metrics,omitempty"`
	LastUpdated    time.Time       `json:"last_updated"`
}

// ManifestError records one failed manifest fetch or parse.
type ManifestError struct {
	ErrorType string    `json:"error_type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Severity  string    `json:"severity"`
}
