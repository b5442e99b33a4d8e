package models

import "time"

// EventType labels entries in the event log and on the event bus.
type EventType string

const (
	EventStreamAdded          EventType = "stream_added"
	EventStreamRemoved        EventType = "stream_removed"
	EventVariantSelected      EventType = "variant_selected"
	EventSegmentDownloaded    EventType = "segment_downloaded"
	EventManifestUpdated      EventType = "manifest_updated"
	EventThumbnailGenerated   EventType = "thumbnail_generated"
	EventSpriteGenerated      EventType = "sprite_generated"
	EventError                EventType = "error"
	EventWarning              EventType = "warning"
	EventAdDetected           EventType = "ad_detected"
	EventSCTE35Detected       EventType = "scte35_detected"
	EventSpliceDetected       EventType = "splice_detected"
	EventBandwidthReservation EventType = "bandwidth_reservation"
	EventLoudnessData         EventType = "loudness_data"
	EventAlarm                EventType = "alarm"
	EventHealthUpdate         EventType = "health_update"
	EventAlertRaised          EventType = "alert_raised"
	EventAlertResolved        EventType = "alert_resolved"
	EventConnected            EventType = "connected"
	EventPong                 EventType = "pong"
)

// StreamEvent is one entry in a stream's event log.
type StreamEvent struct {
	EventID   string         `json:"event_id"`
	StreamID  string         `json:"stream_id"`
	EventType EventType      `json:"event_type"`
	Timestamp time.Time      `json:"timestamp"`
	Message   string         `json:"message"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Severity  string         `json:"severity"`
}

// SCTE35Event records one detected ad-insertion marker.
type SCTE35Event struct {
	Timestamp         time.Time `json:"timestamp"`
	EventType         string    `json:"event_type"`
	SegmentSequence   int64     `json:"segment_sequence"`
	Duration          float64   `json:"duration,omitempty"`
	SpliceCommandType string    `json:"splice_command_type,omitempty"`
}

// AdMarker records a manifest-level ad signal (DATERANGE, CUE-OUT/IN).
type AdMarker struct {
	Timestamp time.Time      `json:"timestamp"`
	Type      string         `json:"type"`
	Duration  float64        `json:"duration,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}
