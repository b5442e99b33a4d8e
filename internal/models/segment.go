package models

import "time"

// SegmentMetrics captures transport-level measurements for one downloaded
// media segment. Bitrates are in Mbps, times in milliseconds.
type SegmentMetrics struct {
	URI              string    `json:"uri"`
	Filename         string    `json:"filename"`
	Resolution       string    `json:"resolution,omitempty"`
	Bandwidth        int       `json:"bandwidth,omitempty"`
	ActualBitrate    float64   `json:"actual_bitrate"`
	DownloadSpeed    float64   `json:"download_speed"`
	SegmentDuration  float64   `json:"segment_duration"`
	TTFB             float64   `json:"ttfb"`
	DownloadTime     float64   `json:"download_time"`
	SegmentSizeBytes int64     `json:"segment_size_bytes"`
	SegmentSizeMB    float64   `json:"segment_size_mb"`
	Timestamp        time.Time `json:"timestamp"`
	SequenceNumber   int64     `json:"sequence_number,omitempty"`
}

// AudioMetrics holds audio-side measurements for a stream.
type AudioMetrics struct {
	Timestamp       time.Time `json:"timestamp"`
	BitrateKbps     float64   `json:"bitrate_kbps,omitempty"`
	SampleRate      int       `json:"sample_rate,omitempty"`
	Channels        int       `json:"channels,omitempty"`
	Codec           string    `json:"codec,omitempty"`
	PeakLevelDB     *float64  `json:"peak_level_db,omitempty"`
	AverageLevelDB  *float64  `json:"average_level_db,omitempty"`
	SilenceDetected bool      `json:"silence_detected"`
	LoudnessLUFS    *float64  `json:"loudness_lufs,omitempty"`
}

// VideoMetrics holds video-side measurements for a stream.
type VideoMetrics struct {
	Timestamp      time.Time `json:"timestamp"`
	BitrateKbps    float64   `json:"bitrate_kbps,omitempty"`
	Resolution     string    `json:"resolution,omitempty"`
	FrameRate      float64   `json:"frame_rate,omitempty"`
	Codec          string    `json:"codec,omitempty"`
	SCTE35Detected bool      `json:"scte35_detected"`
	SCTE35Count    int       `json:"scte35_count"`
}
