package models

import "time"

// ThumbnailInfo describes one extracted (or placeholder) thumbnail on disk.
type ThumbnailInfo struct {
	SegmentURI    string    `json:"segment_uri"`
	Timestamp     time.Time `json:"timestamp"`
	ThumbnailPath string    `json:"thumbnail_path"`
	Width         int       `json:"width"`
	Height        int       `json:"height"`
	IsError       bool      `json:"is_error"` // gray placeholder
}

// SpriteInfo describes one composed sprite sheet.
type SpriteInfo struct {
	SpriteID       string    `json:"sprite_id"`
	SpritePath     string    `json:"sprite_path"`
	SpriteMapPath  string    `json:"sprite_map_path"`
	StartTimestamp time.Time `json:"start_timestamp"`
	EndTimestamp   time.Time `json:"end_timestamp"`
	ThumbnailCount int       `json:"thumbnail_count"`
	GridWidth      int       `json:"grid_width"`
	GridHeight     int       `json:"grid_height"`
	CreatedAt      time.Time `json:"created_at"`
}

// SpriteCell locates one thumbnail within a sprite sheet.
type SpriteCell struct {
	Timestamp time.Time `json:"timestamp"`
	X         int       `json:"x"`
	Y         int       `json:"y"`
	W         int       `json:"w"`
	H         int       `json:"h"`
}

// SpriteMap is the JSON sidecar written next to a sprite sheet.
type SpriteMap struct {
	SpriteID   string       `json:"sprite_id"`
	SpriteURL  string       `json:"sprite_url"`
	Thumbnails []SpriteCell `json:"thumbnails"`
}

// LoudnessData holds one EBU R128 loudness measurement. When the loudness
// filter is unavailable the RMS fallback populates RMSDB and
// IsApproximation is set.
type LoudnessData struct {
	Timestamp       time.Time `json:"timestamp"`
	MomentaryLUFS   *float64  `json:"momentary_lufs,omitempty"`
	ShorttermLUFS   *float64  `json:"shortterm_lufs,omitempty"`
	IntegratedLUFS  *float64  `json:"integrated_lufs,omitempty"`
	RMSDB           *float64  `json:"rms_db,omitempty"`
	IsApproximation bool      `json:"is_approximation"`
}
