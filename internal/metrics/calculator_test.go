package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/streamwatch/streamwatch/internal/models"
)

func TestBitrate(t *testing.T) {
	tests := []struct {
		name     string
		size     int64
		duration float64
		want     float64
	}{
		{"six second segment", 3_000_000, 6.0, 4.0},
		{"fractional result rounds to 3dp", 1_000_000, 6.0, 1.333},
		{"zero duration", 1_000_000, 0, 0},
		{"negative duration", 1_000_000, -1, 0},
		{"zero size", 0, 6.0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Bitrate(tt.size, tt.duration), 1e-9)
		})
	}
}

func TestDownloadSpeed(t *testing.T) {
	tests := []struct {
		name       string
		size       int64
		downloadMS float64
		want       float64
	}{
		{"one second download", 3_000_000, 1000, 24.0},
		{"half second download", 1_000_000, 500, 16.0},
		{"zero time", 1_000_000, 0, 0},
		{"negative time", 1_000_000, -5, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, DownloadSpeed(tt.size, tt.downloadMS), 1e-9)
		})
	}
}

func TestBytesToMB(t *testing.T) {
	assert.InDelta(t, 1.0, BytesToMB(1024*1024), 1e-9)
	assert.InDelta(t, 2.5, BytesToMB(2621440), 1e-9)
	assert.InDelta(t, 0.0, BytesToMB(0), 1e-9)
}

func TestRollingWindow_Empty(t *testing.T) {
	r := NewRolling()
	w := r.Window()

	assert.Equal(t, 0, w.SegmentCount)
	assert.InDelta(t, 1.0, w.DownloadRatio, 1e-9)
	assert.InDelta(t, 0.0, w.TTFBAvg, 1e-9)
}

func TestRollingWindow_Averages(t *testing.T) {
	r := NewRolling()
	r.Observe(models.SegmentMetrics{TTFB: 100, DownloadSpeed: 8, ActualBitrate: 4})
	r.Observe(models.SegmentMetrics{TTFB: 300, DownloadSpeed: 4, ActualBitrate: 4})

	w := r.Window()
	assert.Equal(t, 2, w.SegmentCount)
	assert.InDelta(t, 200.0, w.TTFBAvg, 1e-9)
	// mean speed 6 / mean bitrate 4
	assert.InDelta(t, 1.5, w.DownloadRatio, 1e-9)
}

func TestRollingWindow_RatioCapped(t *testing.T) {
	r := NewRolling()
	r.Observe(models.SegmentMetrics{TTFB: 50, DownloadSpeed: 40, ActualBitrate: 4})

	w := r.Window()
	assert.InDelta(t, 2.0, w.DownloadRatio, 1e-9)
}

func TestRollingWindow_SlidesAfterTwenty(t *testing.T) {
	r := NewRolling()
	// 20 slow segments then 20 fast ones: the window must only see the fast ones.
	for i := 0; i < WindowSize; i++ {
		r.Observe(models.SegmentMetrics{TTFB: 1000, DownloadSpeed: 1, ActualBitrate: 4})
	}
	for i := 0; i < WindowSize; i++ {
		r.Observe(models.SegmentMetrics{TTFB: 100, DownloadSpeed: 4, ActualBitrate: 4})
	}

	w := r.Window()
	assert.Equal(t, WindowSize, w.SegmentCount)
	assert.InDelta(t, 100.0, w.TTFBAvg, 1e-9)
	assert.InDelta(t, 1.0, w.DownloadRatio, 1e-9)
}

func TestRollingQuantiles(t *testing.T) {
	r := NewRolling()
	assert.InDelta(t, 0.0, r.TTFBQuantile(0.95), 1e-9)

	for i := 1; i <= 100; i++ {
		r.Observe(models.SegmentMetrics{TTFB: float64(i), DownloadSpeed: float64(i), ActualBitrate: 4})
	}

	p95 := r.TTFBQuantile(0.95)
	assert.Greater(t, p95, 90.0)
	assert.LessOrEqual(t, p95, 100.0)

	median := r.SpeedQuantile(0.5)
	assert.Greater(t, median, 40.0)
	assert.Less(t, median, 60.0)
}
