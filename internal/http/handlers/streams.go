package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/streamwatch/streamwatch/internal/alerting"
	"github.com/streamwatch/streamwatch/internal/logstore"
	"github.com/streamwatch/streamwatch/internal/models"
	"github.com/streamwatch/streamwatch/internal/monitor"
	"github.com/streamwatch/streamwatch/internal/sprite"
	"github.com/streamwatch/streamwatch/internal/store"
	"github.com/streamwatch/streamwatch/internal/thumbnail"
)

// StreamHandler handles the stream API endpoints.
type StreamHandler struct {
	monitor    *monitor.Engine
	streams    *store.StreamStore
	alerts     *alerting.Engine
	logs       *logstore.Store
	thumbnails *thumbnail.Generator
	sprites    *sprite.Composer
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(m *monitor.Engine, s *store.StreamStore, a *alerting.Engine,
	l *logstore.Store, t *thumbnail.Generator, sp *sprite.Composer) *StreamHandler {
	return &StreamHandler{
		monitor:    m,
		streams:    s,
		alerts:     a,
		logs:       l,
		thumbnails: t,
		sprites:    sp,
	}
}

// Register registers the stream routes with the API.
func (h *StreamHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listStreams",
		Method:      "GET",
		Path:        "/api/streams",
		Summary:     "List streams",
		Tags:        []string{"Streams"},
	}, h.List)

	huma.Register(api, huma.Operation{
		OperationID:   "createStream",
		Method:        "POST",
		Path:          "/api/streams",
		Summary:       "Register a stream",
		DefaultStatus: 201,
		Tags:          []string{"Streams"},
	}, h.Create)

	huma.Register(api, huma.Operation{
		OperationID: "getStream",
		Method:      "GET",
		Path:        "/api/streams/{id}",
		Summary:     "Get stream details",
		Tags:        []string{"Streams"},
	}, h.Get)

	huma.Register(api, huma.Operation{
		OperationID: "deleteStream",
		Method:      "DELETE",
		Path:        "/api/streams/{id}",
		Summary:     "Remove a stream",
		Tags:        []string{"Streams"},
	}, h.Delete)

	huma.Register(api, huma.Operation{
		OperationID: "getStreamMetrics",
		Method:      "GET",
		Path:        "/api/streams/{id}/metrics",
		Summary:     "Get segment metrics within a time range",
		Tags:        []string{"Streams"},
	}, h.Metrics)

	huma.Register(api, huma.Operation{
		OperationID: "getStreamSegments",
		Method:      "GET",
		Path:        "/api/streams/{id}/segments",
		Summary:     "Page through recorded segments, newest first",
		Tags:        []string{"Streams"},
	}, h.Segments)

	huma.Register(api, huma.Operation{
		OperationID: "getStreamHealth",
		Method:      "GET",
		Path:        "/api/streams/{id}/health",
		Summary:     "Get aggregated stream health",
		Tags:        []string{"Streams"},
	}, h.Health)

	huma.Register(api, huma.Operation{
		OperationID: "getStreamAudioMetrics",
		Method:      "GET",
		Path:        "/api/streams/{id}/audio-metrics",
		Summary:     "Get loudness history",
		Tags:        []string{"Streams"},
	}, h.AudioMetrics)

	huma.Register(api, huma.Operation{
		OperationID: "getStreamVideoMetrics",
		Method:      "GET",
		Path:        "/api/streams/{id}/video-metrics",
		Summary:     "Get video-side metrics",
		Tags:        []string{"Streams"},
	}, h.VideoMetrics)

	huma.Register(api, huma.Operation{
		OperationID: "getStreamEvents",
		Method:      "GET",
		Path:        "/api/streams/{id}/events",
		Summary:     "Get recent events",
		Tags:        []string{"Streams"},
	}, h.Events)

	huma.Register(api, huma.Operation{
		OperationID: "getStreamLogs",
		Method:      "GET",
		Path:        "/api/streams/{id}/logs",
		Summary:     "Query the event log",
		Tags:        []string{"Streams"},
	}, h.Logs)

	huma.Register(api, huma.Operation{
		OperationID: "getStreamSprites",
		Method:      "GET",
		Path:        "/api/streams/{id}/sprites",
		Summary:     "List sprite sheets",
		Tags:        []string{"Streams"},
	}, h.Sprites)

	huma.Register(api, huma.Operation{
		OperationID: "getStreamThumbnail",
		Method:      "GET",
		Path:        "/api/streams/{id}/thumbnail",
		Summary:     "Get latest thumbnail metadata",
		Tags:        []string{"Streams"},
	}, h.Thumbnail)

	huma.Register(api, huma.Operation{
		OperationID: "getStreamSCTE35Events",
		Method:      "GET",
		Path:        "/api/streams/{id}/scte35-events",
		Summary:     "Get detected splice events",
		Tags:        []string{"Streams"},
	}, h.SCTE35Events)

	huma.Register(api, huma.Operation{
		OperationID: "getStreamAlerts",
		Method:      "GET",
		Path:        "/api/streams/{id}/alerts",
		Summary:     "List alerts",
		Tags:        []string{"Streams"},
	}, h.Alerts)

	huma.Register(api, huma.Operation{
		OperationID: "acknowledgeAlert",
		Method:      "POST",
		Path:        "/api/streams/{id}/alerts/{alertId}/acknowledge",
		Summary:     "Acknowledge an alert",
		Tags:        []string{"Streams"},
	}, h.AcknowledgeAlert)
}

// ListStreamsInput is the input for listing streams.
type ListStreamsInput struct{}

// ListStreamsOutput is the output for listing streams.
type ListStreamsOutput struct {
	Body struct {
		Streams []models.StreamDetails `json:"streams"`
	}
}

// List returns details for every monitored stream.
func (h *StreamHandler) List(ctx context.Context, input *ListStreamsInput) (*ListStreamsOutput, error) {
	resp := &ListStreamsOutput{}
	resp.Body.Streams = h.monitor.ListDetails()
	if resp.Body.Streams == nil {
		resp.Body.Streams = []models.StreamDetails{}
	}
	return resp, nil
}

// CreateStreamInput is the input for registering a stream.
type CreateStreamInput struct {
	Body CreateStreamRequest
}

// CreateStreamOutput is the output for registering a stream.
type CreateStreamOutput struct {
	Body models.StreamConfig
}

// Create persists a stream config and starts monitoring it when enabled.
func (h *StreamHandler) Create(ctx context.Context, input *CreateStreamInput) (*CreateStreamOutput, error) {
	cfg := input.Body.ToModel()
	if err := h.streams.Add(cfg); err != nil {
		return nil, huma.Error409Conflict("stream already exists", err)
	}

	if cfg.Enabled {
		if err := h.monitor.AddStream(*cfg); err != nil {
			_ = h.streams.Remove(cfg.ID)
			return nil, huma.Error400BadRequest("invalid stream config", err)
		}
	}

	return &CreateStreamOutput{Body: *cfg}, nil
}

// StreamIDInput identifies a stream by path parameter.
type StreamIDInput struct {
	ID string `path:"id" doc:"Stream ID"`
}

// GetStreamOutput is the output for getting stream details.
type GetStreamOutput struct {
	Body models.StreamDetails
}

// Get returns a live snapshot of a stream, falling back to the persisted
// config for streams that are not currently monitored.
func (h *StreamHandler) Get(ctx context.Context, input *StreamIDInput) (*GetStreamOutput, error) {
	if details, err := h.monitor.GetDetails(input.ID); err == nil {
		return &GetStreamOutput{Body: details}, nil
	}

	cfg, ok := h.streams.Get(input.ID)
	if !ok {
		return nil, huma.Error404NotFound(fmt.Sprintf("stream %q not found", input.ID))
	}
	return &GetStreamOutput{Body: models.StreamDetails{
		ID:          cfg.ID,
		Name:        cfg.Name,
		Status:      models.StreamStatusOffline,
		ManifestURL: cfg.ManifestURL,
		Tags:        cfg.Tags,
		Health:      models.StreamHealth{Status: models.StreamStatusOffline},
	}}, nil
}

// DeleteStreamOutput is the output for removing a stream.
type DeleteStreamOutput struct {
	Body struct {
		Removed bool `json:"removed"`
	}
}

// Delete stops monitoring and removes the persisted config.
func (h *StreamHandler) Delete(ctx context.Context, input *StreamIDInput) (*DeleteStreamOutput, error) {
	monitored := h.monitor.RemoveStream(input.ID) == nil
	persisted := h.streams.Remove(input.ID) == nil
	if !monitored && !persisted {
		return nil, huma.Error404NotFound(fmt.Sprintf("stream %q not found", input.ID))
	}

	resp := &DeleteStreamOutput{}
	resp.Body.Removed = true
	return resp, nil
}

// StreamMetricsInput selects a time range of segment metrics.
type StreamMetricsInput struct {
	ID    string `path:"id" doc:"Stream ID"`
	Range string `query:"range" doc:"Time range: 3min, 30min, 3h, 8h, 2d or 4d" enum:"3min,30min,3h,8h,2d,4d"`
}

// StreamMetricsOutput is the output for the metrics endpoint.
type StreamMetricsOutput struct {
	Body struct {
		Metrics []models.SegmentMetrics `json:"metrics"`
	}
}

// Metrics returns the in-memory segment metrics recorded within the range.
func (h *StreamHandler) Metrics(ctx context.Context, input *StreamMetricsInput) (*StreamMetricsOutput, error) {
	window, err := parseRange(input.Range)
	if err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}

	metrics, err := h.monitor.GetMetricsSince(input.ID, time.Now().UTC().Add(-window))
	if err != nil {
		return nil, huma.Error404NotFound(err.Error())
	}

	resp := &StreamMetricsOutput{}
	resp.Body.Metrics = metrics
	if resp.Body.Metrics == nil {
		resp.Body.Metrics = []models.SegmentMetrics{}
	}
	return resp, nil
}

// StreamSegmentsInput pages through recorded segments.
type StreamSegmentsInput struct {
	ID     string `path:"id" doc:"Stream ID"`
	Limit  int    `query:"limit" default:"50" minimum:"1" maximum:"1000" doc:"Segments per page"`
	Offset int    `query:"offset" default:"0" minimum:"0" doc:"Segments to skip from the newest"`
}

// StreamSegmentsOutput is the output for the segments endpoint.
type StreamSegmentsOutput struct {
	Body struct {
		Segments []models.SegmentMetrics `json:"segments"`
		Total    int                     `json:"total"`
	}
}

// Segments returns a newest-first page of segment metrics.
func (h *StreamHandler) Segments(ctx context.Context, input *StreamSegmentsInput) (*StreamSegmentsOutput, error) {
	page, total, err := h.monitor.GetSegments(input.ID, input.Limit, input.Offset)
	if err != nil {
		return nil, huma.Error404NotFound(err.Error())
	}

	resp := &StreamSegmentsOutput{}
	resp.Body.Segments = page
	if resp.Body.Segments == nil {
		resp.Body.Segments = []models.SegmentMetrics{}
	}
	resp.Body.Total = total
	return resp, nil
}

// StreamHealthOutput is the output for the health endpoint.
type StreamHealthOutput struct {
	Body models.StreamHealth
}

// Health returns the aggregated health snapshot of a stream.
func (h *StreamHandler) Health(ctx context.Context, input *StreamIDInput) (*StreamHealthOutput, error) {
	health, err := h.monitor.GetHealth(input.ID)
	if err != nil {
		return nil, huma.Error404NotFound(err.Error())
	}
	return &StreamHealthOutput{Body: health}, nil
}

// AudioMetricsOutput is the output for the audio-metrics endpoint.
type AudioMetricsOutput struct {
	Body struct {
		Loudness []models.LoudnessData `json:"loudness"`
	}
}

// AudioMetrics returns the stream's loudness history.
func (h *StreamHandler) AudioMetrics(ctx context.Context, input *StreamIDInput) (*AudioMetricsOutput, error) {
	loudness, err := h.monitor.GetLoudnessHistory(input.ID)
	if err != nil {
		return nil, huma.Error404NotFound(err.Error())
	}

	resp := &AudioMetricsOutput{}
	resp.Body.Loudness = loudness
	if resp.Body.Loudness == nil {
		resp.Body.Loudness = []models.LoudnessData{}
	}
	return resp, nil
}

// VideoMetricsOutput is the output for the video-metrics endpoint.
type VideoMetricsOutput struct {
	Body models.VideoMetrics
}

// VideoMetrics derives video-side metrics from the latest stream state.
func (h *StreamHandler) VideoMetrics(ctx context.Context, input *StreamIDInput) (*VideoMetricsOutput, error) {
	details, err := h.monitor.GetDetails(input.ID)
	if err != nil {
		return nil, huma.Error404NotFound(err.Error())
	}

	out := models.VideoMetrics{
		Timestamp:      time.Now().UTC(),
		SCTE35Detected: details.Health.TSMetrics.SCTE35Messages > 0,
		SCTE35Count:    int(details.Health.TSMetrics.SCTE35Messages),
	}
	if details.CurrentMetrics != nil {
		out.BitrateKbps = details.CurrentMetrics.ActualBitrate * 1000
		out.Resolution = details.CurrentMetrics.Resolution
	}
	for _, v := range details.VariantStreams {
		if v.Resolution == out.Resolution && v.FrameRate > 0 {
			out.FrameRate = v.FrameRate
		}
	}
	return &VideoMetricsOutput{Body: out}, nil
}

// StreamEventsInput selects recent events for a stream.
type StreamEventsInput struct {
	ID    string `path:"id" doc:"Stream ID"`
	Limit int    `query:"limit" default:"100" minimum:"1" maximum:"1000" doc:"Maximum events returned"`
}

// StreamEventsOutput is the output for the events endpoint.
type StreamEventsOutput struct {
	Body struct {
		Events []models.StreamEvent `json:"events"`
	}
}

// Events returns the stream's events from the last 24 hours.
func (h *StreamHandler) Events(ctx context.Context, input *StreamEventsInput) (*StreamEventsOutput, error) {
	now := time.Now().UTC()
	events, err := h.logs.ReadEvents(now.Add(-24*time.Hour), now, input.ID, "", input.Limit)
	if err != nil {
		return nil, huma.Error500InternalServerError("could not read events", err)
	}

	resp := &StreamEventsOutput{}
	resp.Body.Events = events
	if resp.Body.Events == nil {
		resp.Body.Events = []models.StreamEvent{}
	}
	return resp, nil
}

// StreamLogsInput queries the event log with filters.
type StreamLogsInput struct {
	ID    string    `path:"id" doc:"Stream ID"`
	Start time.Time `query:"start" doc:"Window start (RFC3339); default 24h ago"`
	End   time.Time `query:"end" doc:"Window end (RFC3339); default now"`
	Type  string    `query:"type" doc:"Filter by event type"`
	Limit int       `query:"limit" default:"500" minimum:"1" maximum:"5000" doc:"Maximum entries returned"`
}

// StreamLogsOutput is the output for the logs endpoint.
type StreamLogsOutput struct {
	Body struct {
		Events []models.StreamEvent `json:"events"`
	}
}

// Logs queries the stream's event log within a window.
func (h *StreamHandler) Logs(ctx context.Context, input *StreamLogsInput) (*StreamLogsOutput, error) {
	start, end := input.Start, input.End
	if end.IsZero() {
		end = time.Now().UTC()
	}
	if start.IsZero() {
		start = end.Add(-24 * time.Hour)
	}

	events, err := h.logs.ReadEvents(start, end, input.ID, models.EventType(input.Type), input.Limit)
	if err != nil {
		return nil, huma.Error500InternalServerError("could not read logs", err)
	}

	resp := &StreamLogsOutput{}
	resp.Body.Events = events
	if resp.Body.Events == nil {
		resp.Body.Events = []models.StreamEvent{}
	}
	return resp, nil
}

// StreamSpritesOutput is the output for the sprites endpoint.
type StreamSpritesOutput struct {
	Body struct {
		Sprites []models.SpriteInfo `json:"sprites"`
	}
}

// Sprites lists the stream's composed sprite sheets.
func (h *StreamHandler) Sprites(ctx context.Context, input *StreamIDInput) (*StreamSpritesOutput, error) {
	if !h.monitor.IsMonitored(input.ID) {
		return nil, huma.Error404NotFound(fmt.Sprintf("stream %q not monitored", input.ID))
	}

	resp := &StreamSpritesOutput{}
	resp.Body.Sprites = h.sprites.List(input.ID)
	if resp.Body.Sprites == nil {
		resp.Body.Sprites = []models.SpriteInfo{}
	}
	return resp, nil
}

// StreamThumbnailOutput is the output for the thumbnail metadata endpoint.
type StreamThumbnailOutput struct {
	Body models.ThumbnailInfo
}

// Thumbnail returns metadata for the stream's most recent thumbnail.
func (h *StreamHandler) Thumbnail(ctx context.Context, input *StreamIDInput) (*StreamThumbnailOutput, error) {
	info, ok := h.thumbnails.Latest(input.ID)
	if !ok {
		return nil, huma.Error404NotFound(fmt.Sprintf("no thumbnail for stream %q", input.ID))
	}
	return &StreamThumbnailOutput{Body: info}, nil
}

// SCTE35EventsOutput is the output for the scte35-events endpoint.
type SCTE35EventsOutput struct {
	Body struct {
		Events []models.SCTE35Event `json:"events"`
	}
}

// SCTE35Events returns the stream's recorded splice events.
func (h *StreamHandler) SCTE35Events(ctx context.Context, input *StreamIDInput) (*SCTE35EventsOutput, error) {
	events, err := h.monitor.GetSCTE35Events(input.ID)
	if err != nil {
		return nil, huma.Error404NotFound(err.Error())
	}

	resp := &SCTE35EventsOutput{}
	resp.Body.Events = events
	if resp.Body.Events == nil {
		resp.Body.Events = []models.SCTE35Event{}
	}
	return resp, nil
}

// StreamAlertsInput lists alerts for a stream.
type StreamAlertsInput struct {
	ID              string `path:"id" doc:"Stream ID"`
	IncludeResolved bool   `query:"include_resolved" doc:"Also return resolved alerts"`
}

// StreamAlertsOutput is the output for the alerts endpoint.
type StreamAlertsOutput struct {
	Body struct {
		Alerts []*models.Alert `json:"alerts"`
	}
}

// Alerts returns the stream's alerts, newest first.
func (h *StreamHandler) Alerts(ctx context.Context, input *StreamAlertsInput) (*StreamAlertsOutput, error) {
	resp := &StreamAlertsOutput{}
	resp.Body.Alerts = h.alerts.Alerts(input.ID, input.IncludeResolved)
	if resp.Body.Alerts == nil {
		resp.Body.Alerts = []*models.Alert{}
	}
	return resp, nil
}

// AcknowledgeAlertInput identifies an alert on a stream.
type AcknowledgeAlertInput struct {
	ID      string `path:"id" doc:"Stream ID"`
	AlertID string `path:"alertId" doc:"Alert ID"`
}

// AcknowledgeAlertOutput is the output for acknowledging an alert.
type AcknowledgeAlertOutput struct {
	Body struct {
		Acknowledged bool `json:"acknowledged"`
	}
}

// AcknowledgeAlert marks an alert as acknowledged.
func (h *StreamHandler) AcknowledgeAlert(ctx context.Context, input *AcknowledgeAlertInput) (*AcknowledgeAlertOutput, error) {
	if !h.alerts.Acknowledge(input.AlertID) {
		return nil, huma.Error404NotFound(fmt.Sprintf("alert %q not found", input.AlertID))
	}

	resp := &AcknowledgeAlertOutput{}
	resp.Body.Acknowledged = true
	return resp, nil
}
