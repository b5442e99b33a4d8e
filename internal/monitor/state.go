package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/streamwatch/streamwatch/internal/metrics"
	"github.com/streamwatch/streamwatch/internal/models"
	"github.com/streamwatch/streamwatch/internal/tsanalyzer"
)

// streamState is the mutable per-stream slot. The engine map lock guards the
// slot's existence; the slot's own mutex guards its fields. Pipeline
// goroutines hold a reference to the slot, so a slot evicted from the map
// stays safe to touch until those goroutines notice cancellation.
type streamState struct {
	mu sync.Mutex

	config    models.StreamConfig
	cancel    context.CancelFunc
	status    models.StreamStatus
	startTime time.Time

	// currentURL is the media playlist being polled; starts at the
	// configured URL and hops to the chosen variant of a master playlist.
	currentURL string
	variants   []models.VariantStream

	// seen is the segment dedup set, FIFO-bounded by seenOrder.
	seen      map[string]struct{}
	seenOrder []string
	seenLimit int

	// sem bounds concurrent segment downloads for this stream.
	sem chan struct{}

	seq            int64
	current        *models.SegmentMetrics
	history        []models.SegmentMetrics
	historyLimit   int
	loudness       []models.LoudnessData
	loudnessLimit  int
	scte35         []models.SCTE35Event
	scte35Limit    int
	manifestErrors []models.ManifestError

	tsMetrics models.TSMetrics
	rolling   *metrics.Rolling
	analyzer  *tsanalyzer.Analyzer
	health    models.HealthScore

	spriteBuffer []models.ThumbnailInfo

	segmentAttempts int64
	segmentFailures int64
}

const manifestErrorWindow = time.Hour

// markSeen records a segment URI, evicting the oldest once the bound is
// reached. Returns false when the URI was already known.
func (st *streamState) markSeen(uri string) bool {
	if _, ok := st.seen[uri]; ok {
		return false
	}
	st.seen[uri] = struct{}{}
	st.seenOrder = append(st.seenOrder, uri)
	if st.seenLimit > 0 && len(st.seenOrder) > st.seenLimit {
		oldest := st.seenOrder[0]
		st.seenOrder = st.seenOrder[1:]
		delete(st.seen, oldest)
	}
	return true
}

// nextSeq assigns the next monotonic segment sequence number.
func (st *streamState) nextSeq() int64 {
	st.seq++
	return st.seq
}

// recordMetrics stores a segment's metrics as current and appends to the
// bounded history.
func (st *streamState) recordMetrics(m models.SegmentMetrics) {
	st.current = &m
	st.history = append(st.history, m)
	if st.historyLimit > 0 && len(st.history) > st.historyLimit {
		st.history = st.history[len(st.history)-st.historyLimit:]
	}
}

// recordLoudness appends to the bounded loudness history.
func (st *streamState) recordLoudness(d models.LoudnessData) {
	st.loudness = append(st.loudness, d)
	if st.loudnessLimit > 0 && len(st.loudness) > st.loudnessLimit {
		st.loudness = st.loudness[len(st.loudness)-st.loudnessLimit:]
	}
}

// recordSCTE35 appends to the bounded splice event history.
func (st *streamState) recordSCTE35(ev models.SCTE35Event) {
	st.scte35 = append(st.scte35, ev)
	if st.scte35Limit > 0 && len(st.scte35) > st.scte35Limit {
		st.scte35 = st.scte35[len(st.scte35)-st.scte35Limit:]
	}
}

// recordManifestError appends a manifest error and prunes entries outside
// the rolling window.
func (st *streamState) recordManifestError(errType, message string, now time.Time) {
	st.manifestErrors = append(st.manifestErrors, models.ManifestError{
		ErrorType: errType,
		Message:   message,
		Timestamp: now,
		Severity:  "error",
	})
	st.pruneManifestErrors(now)
}

func (st *streamState) pruneManifestErrors(now time.Time) {
	cutoff := now.Add(-manifestErrorWindow)
	kept := st.manifestErrors[:0]
	for _, e := range st.manifestErrors {
		if e.Timestamp.After(cutoff) {
			kept = append(kept, e)
		}
	}
	st.manifestErrors = kept
}

// errorRate returns the segment download failure percentage.
func (st *streamState) errorRate() float64 {
	if st.segmentAttempts == 0 {
		return 0
	}
	return float64(st.segmentFailures) / float64(st.segmentAttempts) * 100
}
