package metrics

import (
	"sync"

	"github.com/influxdata/tdigest"

	"github.com/streamwatch/streamwatch/internal/models"
)

// WindowSize is the number of recent segments the rolling statistics cover.
const WindowSize = 20

// ratioCap bounds the download ratio so a burst of fast downloads cannot
// mask later slowness.
const ratioCap = 2.0

// Window summarizes the recent segment window for the health scorer and
// alert engine.
type Window struct {
	TTFBAvg       float64 // milliseconds
	DownloadRatio float64 // mean throughput / mean bitrate, capped at 2.0
	SegmentCount  int
}

// Rolling maintains per-stream rolling statistics over the last WindowSize
// segments, plus full-history latency digests for percentile queries.
// Safe for concurrent use.
type Rolling struct {
	mu     sync.Mutex
	recent []models.SegmentMetrics

	ttfbDigest  *tdigest.TDigest
	speedDigest *tdigest.TDigest
}

// NewRolling creates an empty rolling statistics tracker.
func NewRolling() *Rolling {
	return &Rolling{
		ttfbDigest:  tdigest.NewWithCompression(100), // ~100 centroids, ~10KB
		speedDigest: tdigest.NewWithCompression(100),
	}
}

// Observe records one completed segment.
func (r *Rolling) Observe(m models.SegmentMetrics) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.recent = append(r.recent, m)
	if len(r.recent) > WindowSize {
		r.recent = r.recent[len(r.recent)-WindowSize:]
	}

	r.ttfbDigest.Add(m.TTFB, 1)
	if m.DownloadSpeed > 0 {
		r.speedDigest.Add(m.DownloadSpeed, 1)
	}
}

// Window computes the current rolling window summary. An empty window
// reports a neutral ratio of 1.0.
func (r *Rolling) Window() Window {
	r.mu.Lock()
	defer r.mu.Unlock()

	w := Window{DownloadRatio: 1.0, SegmentCount: len(r.recent)}
	if len(r.recent) == 0 {
		return w
	}

	var ttfbSum, speedSum, bitrateSum float64
	for _, m := range r.recent {
		ttfbSum += m.TTFB
		speedSum += m.DownloadSpeed
		bitrateSum += m.ActualBitrate
	}
	n := float64(len(r.recent))
	w.TTFBAvg = ttfbSum / n

	avgBitrate := bitrateSum / n
	if avgBitrate > 0 {
		w.DownloadRatio = speedSum / n / avgBitrate
		if w.DownloadRatio > ratioCap {
			w.DownloadRatio = ratioCap
		}
	}
	return w
}

// TTFBQuantile returns the q-quantile (0..1) of all observed TTFB values in
// milliseconds, or 0 before any observation.
func (r *Rolling) TTFBQuantile(q float64) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	v := r.ttfbDigest.Quantile(q)
	if v != v { // NaN before first observation
		return 0
	}
	return v
}

// SpeedQuantile returns the q-quantile (0..1) of all observed download
// speeds in Mbps, or 0 before any observation.
func (r *Rolling) SpeedQuantile(q float64) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	v := r.speedDigest.Quantile(q)
	if v != v {
		return 0
	}
	return v
}
