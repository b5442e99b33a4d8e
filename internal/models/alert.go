package models

import "time"

// AlertSeverity grades an alert.
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarning  AlertSeverity = "warning"
	SeverityError    AlertSeverity = "error"
	SeverityCritical AlertSeverity = "critical"
)

// AlertType identifies the condition an alert reports on.
type AlertType string

const (
	// Health alerts
	AlertHealthDegraded AlertType = "health_degraded"
	AlertHealthCritical AlertType = "health_critical"

	// Error alerts
	AlertHighErrorRate    AlertType = "high_error_rate"
	AlertContinuityErrors AlertType = "continuity_errors"
	AlertSyncErrors       AlertType = "sync_errors"
	AlertTransportErrors  AlertType = "transport_errors"

	// Performance alerts
	AlertSlowDownload   AlertType = "slow_download"
	AlertHighTTFB       AlertType = "high_ttfb"
	AlertSegmentTimeout AlertType = "segment_timeout"

	// Manifest alerts
	AlertManifestError AlertType = "manifest_error"
	AlertVariantLost   AlertType = "variant_lost"

	// Stream alerts
	AlertStreamOffline  AlertType = "stream_offline"
	AlertSCTE35Detected AlertType = "scte35_detected"
)

// Alert is a threshold-based notification with hysteresis semantics: at most
// one unresolved alert exists per (stream, type) pair at any time.
type Alert struct {
	AlertID      string         `json:"alert_id"`
	StreamID     string         `json:"stream_id"`
	AlertType    AlertType      `json:"alert_type"`
	Severity     AlertSeverity  `json:"severity"`
	Message      string         `json:"message"`
	Timestamp    time.Time      `json:"timestamp"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Acknowledged bool           `json:"acknowledged"`
	Resolved     bool           `json:"resolved"`
	ResolvedAt   *time.Time     `json:"resolved_at,omitempty"`
}
