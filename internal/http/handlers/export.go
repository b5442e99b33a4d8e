package handlers

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/streamwatch/streamwatch/internal/alerting"
	"github.com/streamwatch/streamwatch/internal/monitor"
)

// ExportHandler serves CSV exports of per-stream histories. These are raw
// chi routes: the payloads are text/csv, not JSON.
type ExportHandler struct {
	monitor *monitor.Engine
	alerts  *alerting.Engine
}

// NewExportHandler creates a new export handler.
func NewExportHandler(m *monitor.Engine, a *alerting.Engine) *ExportHandler {
	return &ExportHandler{monitor: m, alerts: a}
}

// RegisterRoutes registers the export routes on the router.
func (h *ExportHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/export/{id}/metrics.csv", h.Metrics)
	r.Get("/api/export/{id}/alerts.csv", h.Alerts)
	r.Get("/api/export/{id}/scte35.csv", h.SCTE35)
	r.Get("/api/export/{id}/loudness.csv", h.Loudness)
}

func beginCSV(w http.ResponseWriter, streamID, kind string) *csv.Writer {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%s_%s.csv", streamID, kind))
	return csv.NewWriter(w)
}

// Metrics exports the segment metrics history.
func (h *ExportHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	history, err := h.monitor.GetMetricsHistory(id, 0)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	cw := beginCSV(w, id, "metrics")
	_ = cw.Write([]string{"timestamp", "sequence_number", "segment_duration",
		"segment_size_mb", "actual_bitrate", "declared_bitrate", "download_time",
		"download_speed", "ttfb", "resolution", "filename"})
	for _, m := range history {
		_ = cw.Write([]string{
			m.Timestamp.UTC().Format(time.RFC3339),
			strconv.FormatInt(m.SequenceNumber, 10),
			formatFloat(m.SegmentDuration),
			formatFloat(m.SegmentSizeMB),
			formatFloat(m.ActualBitrate),
			strconv.Itoa(m.Bandwidth),
			formatFloat(m.DownloadTime),
			formatFloat(m.DownloadSpeed),
			formatFloat(m.TTFB),
			m.Resolution,
			m.Filename,
		})
	}
	cw.Flush()
}

// Alerts exports the alert history including resolved alerts.
func (h *ExportHandler) Alerts(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	cw := beginCSV(w, id, "alerts")
	_ = cw.Write([]string{"id", "timestamp", "alert_type", "severity", "message",
		"threshold_value", "actual_value", "resolved", "resolved_at", "acknowledged"})
	for _, a := range h.alerts.Alerts(id, true) {
		resolvedAt := ""
		if a.ResolvedAt != nil {
			resolvedAt = a.ResolvedAt.UTC().Format(time.RFC3339)
		}
		_ = cw.Write([]string{
			a.AlertID,
			a.Timestamp.UTC().Format(time.RFC3339),
			string(a.AlertType),
			string(a.Severity),
			a.Message,
			metadataValue(a.Metadata, "threshold_value"),
			metadataValue(a.Metadata, "actual_value"),
			strconv.FormatBool(a.Resolved),
			resolvedAt,
			strconv.FormatBool(a.Acknowledged),
		})
	}
	cw.Flush()
}

// SCTE35 exports the splice event history.
func (h *ExportHandler) SCTE35(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	events, err := h.monitor.GetSCTE35Events(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	cw := beginCSV(w, id, "scte35")
	_ = cw.Write([]string{"timestamp", "event_type", "segment_sequence",
		"duration", "splice_command_type"})
	for _, e := range events {
		_ = cw.Write([]string{
			e.Timestamp.UTC().Format(time.RFC3339),
			e.EventType,
			strconv.FormatInt(e.SegmentSequence, 10),
			formatFloat(e.Duration),
			e.SpliceCommandType,
		})
	}
	cw.Flush()
}

// Loudness exports the loudness measurement history.
func (h *ExportHandler) Loudness(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	history, err := h.monitor.GetLoudnessHistory(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	cw := beginCSV(w, id, "loudness")
	_ = cw.Write([]string{"timestamp", "momentary_lufs", "shortterm_lufs",
		"integrated_lufs", "rms_db", "is_approximation"})
	for _, d := range history {
		_ = cw.Write([]string{
			d.Timestamp.UTC().Format(time.RFC3339),
			formatFloatPtr(d.MomentaryLUFS),
			formatFloatPtr(d.ShorttermLUFS),
			formatFloatPtr(d.IntegratedLUFS),
			formatFloatPtr(d.RMSDB),
			strconv.FormatBool(d.IsApproximation),
		})
	}
	cw.Flush()
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func formatFloatPtr(f *float64) string {
	if f == nil {
		return ""
	}
	return formatFloat(*f)
}

func metadataValue(metadata map[string]any, key string) string {
	v, ok := metadata[key]
	if !ok {
		return ""
	}
	return fmt.Sprintf("%v", v)
}
