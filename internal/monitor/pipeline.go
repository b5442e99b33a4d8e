package monitor

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/streamwatch/streamwatch/internal/bus"
	"github.com/streamwatch/streamwatch/internal/health"
	"github.com/streamwatch/streamwatch/internal/hls"
	"github.com/streamwatch/streamwatch/internal/metrics"
	"github.com/streamwatch/streamwatch/internal/models"
	"github.com/streamwatch/streamwatch/internal/observability"
	"github.com/streamwatch/streamwatch/internal/tsanalyzer"
)

const (
	// fallbackSegmentDuration is assumed when the probe tool is missing
	// or fails; six seconds matches the common HLS target duration.
	fallbackSegmentDuration = 6.0

	// maxVariantHops bounds master-playlist indirection per poll.
	maxVariantHops = 4
)

// run is the supervisor loop for one stream. It exits only on cancellation.
func (e *Engine) run(ctx context.Context, st *streamState) {
	logger := observability.WithStream(e.logger, st.config.ID)
	logger.Info("pipeline started", "url", st.config.ManifestURL)

	for {
		e.poll(ctx, st)

		select {
		case <-ctx.Done():
			st.mu.Lock()
			st.status = models.StreamStatusOffline
			st.mu.Unlock()
			logger.Info("pipeline stopped")
			return
		case <-time.After(e.cfg.Monitor.PollInterval):
		}
	}
}

// poll fetches and processes the current playlist. A master playlist hops
// to its best variant and re-fetches immediately, without sleeping.
func (e *Engine) poll(ctx context.Context, st *streamState) {
	streamID := st.config.ID

	for hop := 0; hop < maxVariantHops; hop++ {
		st.mu.Lock()
		url := st.currentURL
		st.mu.Unlock()

		content, err := e.fetchManifest(ctx, url)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			observability.ManifestPollsTotal.WithLabelValues("error").Inc()

			now := time.Now().UTC()
			st.mu.Lock()
			st.status = models.StreamStatusError
			st.recordManifestError("fetch", err.Error(), now)
			st.mu.Unlock()

			e.logger.Warn("manifest fetch failed", "stream_id", streamID, "error", err)
			e.logEvent(streamID, models.EventError, fmt.Sprintf("manifest fetch failed: %v", err), nil)
			e.bus.Broadcast(streamID, bus.Message{
				Type: string(models.EventError),
				Data: map[string]any{"error": err.Error()},
			})
			e.updateHealth(st)
			return
		}
		observability.ManifestPollsTotal.WithLabelValues("ok").Inc()

		if err := hls.Validate([]byte(content)); err != nil {
			st.mu.Lock()
			st.recordManifestError("validation", err.Error(), time.Now().UTC())
			st.mu.Unlock()
		}

		manifest := hls.Parse(content, url)

		if manifest.IsMaster() {
			e.handleMaster(st, manifest)
			continue // re-fetch the selected variant without sleeping
		}

		e.handleMedia(ctx, st, content, manifest)
		return
	}

	e.logger.Warn("too many master playlist hops", "stream_id", streamID)
}

func (e *Engine) fetchManifest(ctx context.Context, url string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Monitor.ManifestTimeout)
	defer cancel()

	resp, err := e.client.Get(ctx, url)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return "", fmt.Errorf("manifest fetch returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read manifest body: %w", err)
	}
	return string(body), nil
}

// handleMaster records the variant set, alarms on a variant-count change,
// and points the pipeline at the highest-bandwidth variant.
func (e *Engine) handleMaster(st *streamState, manifest hls.Manifest) {
	streamID := st.config.ID
	best := manifest.BestVariant()

	st.mu.Lock()
	previousCount := len(st.variants)
	st.variants = manifest.Variants
	if best != nil {
		st.currentURL = best.URI
	}
	st.mu.Unlock()

	if previousCount > 0 && previousCount != len(manifest.Variants) {
		e.logger.Warn("variant count changed",
			"stream_id", streamID, "was", previousCount, "now", len(manifest.Variants))
		e.alerts.Raise(streamID, models.AlertVariantLost, models.SeverityWarning,
			fmt.Sprintf("Variant count changed from %d to %d", previousCount, len(manifest.Variants)),
			map[string]any{"previous": previousCount, "current": len(manifest.Variants)})
		e.bus.Broadcast(streamID, bus.Message{
			Type: string(models.EventAlarm),
			Data: map[string]any{"reason": "variant_count_changed"},
		})
	}

	if best == nil {
		return
	}

	e.logger.Info("variant selected",
		"stream_id", streamID, "bandwidth", best.Bandwidth, "resolution", best.Resolution)
	e.logEvent(streamID, models.EventVariantSelected,
		fmt.Sprintf("selected variant %s (%d bps)", best.Resolution, best.Bandwidth), nil)
	e.bus.Broadcast(streamID, bus.Message{
		Type: string(models.EventVariantSelected),
		Data: best,
	})
}

// handleMedia processes a media playlist: ad markers, new segments, and the
// manifest_updated event.
func (e *Engine) handleMedia(ctx context.Context, st *streamState, content string, manifest hls.Manifest) {
	streamID := st.config.ID
	now := time.Now().UTC()

	st.mu.Lock()
	st.status = models.StreamStatusOnline
	currentSeq := st.seq
	st.mu.Unlock()

	for _, marker := range hls.DetectAdMarkers(content, now) {
		e.recordAdMarker(st, marker, currentSeq)
	}

	var fresh []struct {
		uri string
		seq int64
	}
	st.mu.Lock()
	for _, uri := range manifest.Segments {
		if st.markSeen(uri) {
			fresh = append(fresh, struct {
				uri string
				seq int64
			}{uri, st.nextSeq()})
		}
	}
	st.mu.Unlock()

	for _, seg := range fresh {
		seg := seg
		go e.processSegment(ctx, st, seg.uri, seg.seq)
	}

	e.bus.Broadcast(streamID, bus.Message{
		Type: string(models.EventManifestUpdated),
		Data: map[string]any{
			"segments":     len(manifest.Segments),
			"new_segments": len(fresh),
		},
	})
}

func (e *Engine) recordAdMarker(st *streamState, marker models.AdMarker, seq int64) {
	streamID := st.config.ID

	spliceCommand := "splice_insert"
	if marker.Type == "ad_insertion" {
		spliceCommand = "time_signal"
	}

	st.mu.Lock()
	st.recordSCTE35(models.SCTE35Event{
		Timestamp:         marker.Timestamp,
		EventType:         marker.Type,
		SegmentSequence:   seq,
		Duration:          marker.Duration,
		SpliceCommandType: spliceCommand,
	})
	st.mu.Unlock()

	e.logEvent(streamID, models.EventAdDetected,
		fmt.Sprintf("ad marker %s detected", marker.Type), marker.Metadata)
	e.bus.Broadcast(streamID, bus.Message{
		Type: string(models.EventAdDetected),
		Data: marker,
	})
}

// processSegment downloads one segment, records its metrics, refreshes
// health, and fans out the analyzers. Failures are isolated: the pipeline
// keeps running regardless of the outcome.
func (e *Engine) processSegment(ctx context.Context, st *streamState, uri string, seq int64) {
	select {
	case st.sem <- struct{}{}:
		defer func() { <-st.sem }()
	case <-ctx.Done():
		return
	}

	streamID := st.config.ID

	st.mu.Lock()
	st.segmentAttempts++
	st.mu.Unlock()

	data, ttfb, downloadTime, err := e.downloadSegment(ctx, uri)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		observability.SegmentsDownloadedTotal.WithLabelValues("error").Inc()

		st.mu.Lock()
		st.segmentFailures++
		st.mu.Unlock()

		e.logger.Warn("segment download failed",
			"stream_id", streamID, "uri", uri, "error", err)
		e.logEvent(streamID, models.EventError,
			fmt.Sprintf("segment download failed: %v", err), map[string]any{"uri": uri})
		e.bus.Broadcast(streamID, bus.Message{
			Type: string(models.EventError),
			Data: map[string]any{"uri": uri, "error": err.Error()},
		})
		e.updateHealth(st)
		return
	}

	filename := fmt.Sprintf("%s_%d.ts", streamID, seq)
	segmentPath := filepath.Join(e.cfg.Storage.SegmentsPath(), filename)
	if err := os.MkdirAll(e.cfg.Storage.SegmentsPath(), 0o755); err == nil {
		if err := os.WriteFile(segmentPath, data, 0o644); err != nil {
			e.logger.Warn("could not persist segment",
				"stream_id", streamID, "path", segmentPath, "error", err)
		}
	}

	duration := fallbackSegmentDuration
	if probed, err := e.media.ProbeDuration(ctx, segmentPath); err == nil {
		duration = probed
	}

	st.mu.Lock()
	var resolution string
	var bandwidth int
	for _, v := range st.variants {
		if v.URI == st.currentURL {
			resolution = v.Resolution
			bandwidth = v.Bandwidth
		}
	}
	st.mu.Unlock()

	m := models.SegmentMetrics{
		URI:              uri,
		Filename:         filename,
		Resolution:       resolution,
		Bandwidth:        bandwidth,
		ActualBitrate:    metrics.Bitrate(int64(len(data)), duration),
		DownloadSpeed:    metrics.DownloadSpeed(int64(len(data)), float64(downloadTime.Milliseconds())),
		SegmentDuration:  duration,
		TTFB:             float64(ttfb.Milliseconds()),
		DownloadTime:     float64(downloadTime.Milliseconds()),
		SegmentSizeBytes: int64(len(data)),
		SegmentSizeMB:    metrics.BytesToMB(int64(len(data))),
		Timestamp:        time.Now().UTC(),
		SequenceNumber:   seq,
	}

	st.mu.Lock()
	st.recordMetrics(m)
	st.rolling.Observe(m)
	st.mu.Unlock()

	observability.ObserveSegmentDownload(m.SegmentSizeBytes, ttfb, downloadTime)

	// Health is refreshed synchronously so observers always see the
	// metrics before the derived health update.
	e.updateHealth(st)

	e.logEvent(streamID, models.EventSegmentDownloaded,
		fmt.Sprintf("segment %d downloaded (%.2f MB)", seq, m.SegmentSizeMB),
		map[string]any{"sequence_number": seq, "uri": uri})
	e.bus.Broadcast(streamID, bus.Message{
		Type: string(models.EventSegmentDownloaded),
		Data: m,
	})

	e.runAnalyzers(ctx, st, segmentPath, uri, seq, duration)
}

// downloadSegment fetches the segment body, measuring time to first byte
// and total download time separately.
func (e *Engine) downloadSegment(ctx context.Context, uri string) ([]byte, time.Duration, time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Monitor.DownloadTimeout)
	defer cancel()

	start := time.Now()
	resp, err := e.client.Get(ctx, uri)
	if err != nil {
		return nil, 0, 0, err
	}
	defer resp.Body.Close()
	ttfb := time.Since(start)

	if resp.StatusCode != 200 {
		return nil, 0, 0, fmt.Errorf("segment fetch returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("read segment body: %w", err)
	}
	return data, ttfb, time.Since(start), nil
}

// runAnalyzers fans out the TS, loudness and thumbnail analyzers. Each
// failure is logged and contained; the segment still counts as downloaded.
func (e *Engine) runAnalyzers(ctx context.Context, st *streamState, segmentPath, uri string, seq int64, duration float64) {
	var g errgroup.Group

	g.Go(func() error {
		e.analyzeTS(st, segmentPath, seq)
		return nil
	})

	g.Go(func() error {
		e.analyzeLoudness(ctx, st, segmentPath)
		return nil
	})

	g.Go(func() error {
		e.generateThumbnail(ctx, st, segmentPath, uri, duration)
		return nil
	})

	g.Wait()
}

func (e *Engine) analyzeTS(st *streamState, segmentPath string, seq int64) {
	streamID := st.config.ID

	segMetrics := st.analyzer.AnalyzeFile(segmentPath)
	if info, err := tsanalyzer.InspectFile(e.ctx, segmentPath); err == nil {
		segMetrics.VideoPID = info.VideoPID
		segMetrics.AudioPIDs = info.AudioPIDs
		for _, pid := range info.SCTE35PIDs {
			found := false
			for _, have := range segMetrics.SCTE35PIDs {
				if have == pid {
					found = true
					break
				}
			}
			if !found {
				segMetrics.SCTE35PIDs = append(segMetrics.SCTE35PIDs, pid)
			}
		}
	}

	st.mu.Lock()
	st.tsMetrics.Merge(segMetrics)
	st.mu.Unlock()

	if segMetrics.SCTE35Messages > 0 {
		st.mu.Lock()
		st.recordSCTE35(models.SCTE35Event{
			Timestamp:         time.Now().UTC(),
			EventType:         string(models.EventSCTE35Detected),
			SegmentSequence:   seq,
			SpliceCommandType: "splice_insert",
		})
		st.mu.Unlock()

		e.logEvent(streamID, models.EventSCTE35Detected,
			fmt.Sprintf("SCTE-35 message in segment %d", seq),
			map[string]any{"messages": segMetrics.SCTE35Messages, "pids": segMetrics.SCTE35PIDs})
		e.bus.Broadcast(streamID, bus.Message{
			Type: string(models.EventSCTE35Detected),
			Data: map[string]any{"segment_sequence": seq, "messages": segMetrics.SCTE35Messages},
		})
	}

	e.updateHealth(st)
}

func (e *Engine) analyzeLoudness(ctx context.Context, st *streamState, segmentPath string) {
	data, err := e.media.MeasureLoudness(ctx, segmentPath)
	if err != nil {
		e.logger.Debug("loudness measurement unavailable",
			"stream_id", st.config.ID, "error", err)
		return
	}

	st.mu.Lock()
	st.recordLoudness(*data)
	st.mu.Unlock()

	e.bus.Broadcast(st.config.ID, bus.Message{
		Type: string(models.EventLoudnessData),
		Data: data,
	})
}

func (e *Engine) generateThumbnail(ctx context.Context, st *streamState, segmentPath, uri string, duration float64) {
	streamID := st.config.ID

	info, err := e.thumbnails.Generate(ctx, streamID, segmentPath, uri, duration)
	if err != nil {
		e.logger.Warn("thumbnail generation failed",
			"stream_id", streamID, "error", err)
		return
	}

	e.bus.Broadcast(streamID, bus.Message{
		Type: string(models.EventThumbnailGenerated),
		Data: info,
	})

	st.mu.Lock()
	st.spriteBuffer = append(st.spriteBuffer, info)
	var batch []models.ThumbnailInfo
	if len(st.spriteBuffer) >= e.cfg.Sprite.SegmentCount {
		batch = st.spriteBuffer
		st.spriteBuffer = nil
	}
	st.mu.Unlock()

	if batch == nil {
		return
	}

	spriteInfo, err := e.sprites.Compose(streamID, batch)
	if err != nil {
		e.logger.Warn("sprite composition failed",
			"stream_id", streamID, "error", err)
		return
	}

	e.logEvent(streamID, models.EventSpriteGenerated,
		fmt.Sprintf("sprite %s composed", spriteInfo.SpriteID), nil)
	e.bus.Broadcast(streamID, bus.Message{
		Type: string(models.EventSpriteGenerated),
		Data: spriteInfo,
	})
}

// updateHealth recomputes the stream's health score from the current
// counters and drives the alert threshold machines.
func (e *Engine) updateHealth(st *streamState) {
	streamID := st.config.ID

	st.mu.Lock()
	window := st.rolling.Window()
	in := health.Inputs{
		ErrorRate:        st.errorRate(),
		ContinuityErrors: st.tsMetrics.ContinuityErrors,
		SyncErrors:       st.tsMetrics.SyncByteErrors,
		TransportErrors:  st.tsMetrics.TransportErrors,
		TTFBAvg:          window.TTFBAvg,
		DownloadRatio:    window.DownloadRatio,
		ManifestErrors:   len(st.manifestErrors),
	}
	score := health.Compute(in)
	st.health = score
	st.mu.Unlock()

	observability.HealthScore.WithLabelValues(streamID).Set(float64(score.Score))

	e.alerts.CheckThresholds(streamID, score.Score, in)

	e.bus.Broadcast(streamID, bus.Message{
		Type: string(models.EventHealthUpdate),
		Data: score,
	})
}
