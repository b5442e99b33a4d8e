package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"

	"github.com/streamwatch/streamwatch/internal/alerting"
	"github.com/streamwatch/streamwatch/internal/bus"
	"github.com/streamwatch/streamwatch/internal/config"
	"github.com/streamwatch/streamwatch/internal/httpclient"
	"github.com/streamwatch/streamwatch/internal/logstore"
	"github.com/streamwatch/streamwatch/internal/mediatool"
	"github.com/streamwatch/streamwatch/internal/models"
	"github.com/streamwatch/streamwatch/internal/monitor"
	"github.com/streamwatch/streamwatch/internal/sprite"
	"github.com/streamwatch/streamwatch/internal/store"
	"github.com/streamwatch/streamwatch/internal/thumbnail"
	"github.com/streamwatch/streamwatch/internal/webhook"
)

type testStack struct {
	api      *httptest.Server
	engine   *monitor.Engine
	alerts   *alerting.Engine
	webhooks *webhook.Dispatcher
	origin   *httptest.Server
}

// newTestOrigin serves a three-segment media playlist and the segments.
func newTestOrigin(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/media.m3u8", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "#EXTM3U\n#EXT-X-VERSION:3\n#EXT-X-TARGETDURATION:6\n#EXT-X-MEDIA-SEQUENCE:1\n"+
			"#EXTINF:6.000,\nseg1.ts\n#EXTINF:6.000,\nseg2.ts\n#EXTINF:6.000,\nseg3.ts\n")
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 188*10))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestStack(t *testing.T) *testStack {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	base := t.TempDir()

	cfg := config.Config{
		Server: config.ServerConfig{
			Host: "127.0.0.1", Port: 0,
			ReadTimeout: 5 * time.Second, WriteTimeout: 5 * time.Second,
			ShutdownTimeout: time.Second,
			CORSOrigins:     []string{"*"},
		},
		Storage: config.StorageConfig{
			BaseDir: base, SegmentsDir: "segments", ThumbnailsDir: "thumbnails",
			SpritesDir: "sprites", LogsDir: "logs",
		},
		Monitor: config.MonitorConfig{
			PollInterval: 50 * time.Millisecond, ManifestTimeout: 2 * time.Second,
			DownloadTimeout: 2 * time.Second, MaxInflightDownloads: 2,
			SeenURILimit: 100, MetricsHistory: 50, LoudnessHistory: 10, SCTE35History: 10,
		},
		LogStore:  config.LogStoreConfig{CompressDays: 1, DeleteDays: 7},
		Thumbnail: config.ThumbnailConfig{Width: 64, Height: 36, Keep: 10, CacheTTL: time.Second},
		Sprite:    config.SpriteConfig{GridWidth: 2, GridHeight: 2, SegmentCount: 100, JPEGQuality: 85},
		Webhook:   config.WebhookConfig{Timeout: time.Second},
		Media: config.MediaConfig{
			FFmpegPath: "/nonexistent/ffmpeg", FFprobePath: "/nonexistent/ffprobe",
			ProbeTimeout: time.Second, LoudnessTimeout: time.Second,
		},
	}

	clientCfg := httpclient.DefaultConfig()
	clientCfg.RetryAttempts = 0
	clientCfg.Logger = logger
	client := httpclient.New(clientCfg)

	dispatcher, err := webhook.New(filepath.Join(base, "webhooks.json"), cfg.Webhook.Timeout, logger)
	require.NoError(t, err)

	streamStore, err := store.New(cfg.Storage.StreamsFile(), logger)
	require.NoError(t, err)

	mediaTool := mediatool.New(cfg.Media, logger)
	thumbnails := thumbnail.New(cfg.Storage.ThumbnailsPath(), cfg.Thumbnail, mediaTool.FFmpegPath(), logger)
	sprites := sprite.New(cfg.Storage.SpritesPath(), cfg.Sprite, logger)
	logs := logstore.New(cfg.Storage.LogsPath(), cfg.LogStore, logger)
	eventBus := bus.New(logger)
	alerts := alerting.New(logger, dispatcher)

	ctx, cancel := context.WithCancel(context.Background())
	engine := monitor.New(ctx, monitor.Deps{
		Config: cfg, Client: client, Alerts: alerts, Bus: eventBus, Logs: logs,
		Media: mediaTool, Thumbnails: thumbnails, Sprites: sprites,
		Streams: streamStore, Logger: logger,
	})
	t.Cleanup(func() {
		cancel()
		engine.Wait()
	})

	server := NewServer(cfg.Server, logger, "test")
	server.RegisterAPI(APIDeps{
		Monitor: engine, Streams: streamStore, Alerts: alerts, Logs: logs,
		Webhooks: dispatcher, Thumbnails: thumbnails, Sprites: sprites,
		Bus: eventBus, Client: client,
		ThumbnailTTL: cfg.Thumbnail.CacheTTL, Version: "test", Logger: logger,
	})

	api := httptest.NewServer(server.Router())
	t.Cleanup(api.Close)

	return &testStack{
		api:      api,
		engine:   engine,
		alerts:   alerts,
		webhooks: dispatcher,
		origin:   newTestOrigin(t),
	}
}

func (s *testStack) postJSON(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(s.api.URL+path, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func TestServer_StreamCRUD(t *testing.T) {
	s := newTestStack(t)

	resp := s.postJSON(t, "/api/streams", map[string]any{
		"id":           "s1",
		"name":         "channel one",
		"manifest_url": s.origin.URL + "/media.m3u8",
		"enabled":      false,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created models.StreamConfig
	decodeBody(t, resp, &created)
	assert.Equal(t, "s1", created.ID)
	assert.False(t, created.Enabled)
	assert.False(t, s.engine.IsMonitored("s1"))

	// Disabled streams are still visible from the persisted store.
	get, err := http.Get(s.api.URL + "/api/streams/s1")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, get.StatusCode)
	var details models.StreamDetails
	decodeBody(t, get, &details)
	assert.Equal(t, models.StreamStatusOffline, details.Status)

	// Duplicate IDs conflict.
	dup := s.postJSON(t, "/api/streams", map[string]any{
		"id": "s1", "manifest_url": s.origin.URL + "/media.m3u8",
	})
	dup.Body.Close()
	assert.Equal(t, http.StatusConflict, dup.StatusCode)

	req, err := http.NewRequest(http.MethodDelete, s.api.URL+"/api/streams/s1", nil)
	require.NoError(t, err)
	del, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	del.Body.Close()
	require.Equal(t, http.StatusOK, del.StatusCode)

	gone, err := http.Get(s.api.URL + "/api/streams/s1")
	require.NoError(t, err)
	gone.Body.Close()
	assert.Equal(t, http.StatusNotFound, gone.StatusCode)
}

func TestServer_ListStreams(t *testing.T) {
	s := newTestStack(t)

	resp := s.postJSON(t, "/api/streams", map[string]any{
		"id": "s1", "manifest_url": s.origin.URL + "/media.m3u8",
	})
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	list, err := http.Get(s.api.URL + "/api/streams")
	require.NoError(t, err)
	var body struct {
		Streams []models.StreamDetails `json:"streams"`
	}
	decodeBody(t, list, &body)
	require.Len(t, body.Streams, 1)
	assert.Equal(t, "s1", body.Streams[0].ID)
}

func waitForSegments(t *testing.T, s *testStack, id string, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		history, err := s.engine.GetMetricsHistory(id, 0)
		return err == nil && len(history) >= n
	}, 5*time.Second, 20*time.Millisecond)
}

func TestServer_MetricsCSVExport(t *testing.T) {
	s := newTestStack(t)

	resp := s.postJSON(t, "/api/streams", map[string]any{
		"id": "s1", "manifest_url": s.origin.URL + "/media.m3u8",
	})
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	waitForSegments(t, s, "s1", 3)

	csvResp, err := http.Get(s.api.URL + "/api/export/s1/metrics.csv")
	require.NoError(t, err)
	defer csvResp.Body.Close()
	require.Equal(t, http.StatusOK, csvResp.StatusCode)
	assert.Equal(t, "text/csv", csvResp.Header.Get("Content-Type"))

	data, err := io.ReadAll(csvResp.Body)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Len(t, lines, 4) // header + 3 segments
	assert.Equal(t,
		"timestamp,sequence_number,segment_duration,segment_size_mb,actual_bitrate,declared_bitrate,download_time,download_speed,ttfb,resolution,filename",
		lines[0])
	assert.Contains(t, lines[1], "s1_")
}

func TestServer_MetricsRange(t *testing.T) {
	s := newTestStack(t)

	resp := s.postJSON(t, "/api/streams", map[string]any{
		"id": "s1", "manifest_url": s.origin.URL + "/media.m3u8",
	})
	resp.Body.Close()
	waitForSegments(t, s, "s1", 1)

	ok, err := http.Get(s.api.URL + "/api/streams/s1/metrics?range=3min")
	require.NoError(t, err)
	var body struct {
		Metrics []models.SegmentMetrics `json:"metrics"`
	}
	decodeBody(t, ok, &body)
	assert.NotEmpty(t, body.Metrics)

	bad, err := http.Get(s.api.URL + "/api/streams/s1/metrics?range=1y")
	require.NoError(t, err)
	bad.Body.Close()
	assert.GreaterOrEqual(t, bad.StatusCode, 400)
}

func TestServer_AlertsAndAcknowledge(t *testing.T) {
	s := newTestStack(t)

	resp := s.postJSON(t, "/api/streams", map[string]any{
		"id": "s1", "manifest_url": s.origin.URL + "/media.m3u8",
	})
	resp.Body.Close()

	alert := s.alerts.Raise("s1", models.AlertHighTTFB, models.SeverityWarning, "slow", nil)
	require.NotNil(t, alert)

	list, err := http.Get(s.api.URL + "/api/streams/s1/alerts")
	require.NoError(t, err)
	var body struct {
		Alerts []models.Alert `json:"alerts"`
	}
	decodeBody(t, list, &body)
	require.Len(t, body.Alerts, 1)

	ack := s.postJSON(t, "/api/streams/s1/alerts/"+alert.AlertID+"/acknowledge", struct{}{})
	ack.Body.Close()
	require.Equal(t, http.StatusOK, ack.StatusCode)

	missing := s.postJSON(t, "/api/streams/s1/alerts/nope/acknowledge", struct{}{})
	missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestServer_WebhookCRUD(t *testing.T) {
	s := newTestStack(t)

	received := make(chan struct{}, 1)
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case received <- struct{}{}:
		default:
		}
	}))
	defer target.Close()

	resp := s.postJSON(t, "/api/webhooks", map[string]any{
		"name": "ops", "url": target.URL, "events": []string{"alert_raised"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created models.WebhookConfig
	decodeBody(t, resp, &created)
	require.NotEmpty(t, created.ID)

	// Update the name.
	data, _ := json.Marshal(map[string]any{"name": "ops-primary"})
	req, err := http.NewRequest(http.MethodPut, s.api.URL+"/api/webhooks/"+created.ID, bytes.NewReader(data))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	put, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	var updated models.WebhookConfig
	decodeBody(t, put, &updated)
	assert.Equal(t, "ops-primary", updated.Name)

	// Test delivery bypasses the event filter.
	testResp := s.postJSON(t, "/api/webhooks/"+created.ID+"/test", struct{}{})
	testResp.Body.Close()
	require.Equal(t, http.StatusOK, testResp.StatusCode)
	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("test delivery never arrived")
	}

	req, err = http.NewRequest(http.MethodDelete, s.api.URL+"/api/webhooks/"+created.ID, nil)
	require.NoError(t, err)
	del, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	del.Body.Close()
	require.Equal(t, http.StatusOK, del.StatusCode)
}

func TestServer_SystemHealth(t *testing.T) {
	s := newTestStack(t)

	resp, err := http.Get(s.api.URL + "/health")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Status  string `json:"status"`
		Version string `json:"version"`
	}
	decodeBody(t, resp, &body)
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "test", body.Version)
}

func TestServer_PrometheusMetrics(t *testing.T) {
	s := newTestStack(t)

	resp, err := http.Get(s.api.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(data), "go_goroutines")
}

func TestServer_Websocket(t *testing.T) {
	s := newTestStack(t)

	resp := s.postJSON(t, "/api/streams", map[string]any{
		"id": "s1", "manifest_url": s.origin.URL + "/media.m3u8",
	})
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	wsURL := "ws" + strings.TrimPrefix(s.api.URL, "http") + "/ws/streams/s1"
	conn, err := websocket.Dial(wsURL, "", "http://localhost/")
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))

	readMessage := func() bus.Message {
		var raw string
		require.NoError(t, websocket.Message.Receive(conn, &raw))
		var msg bus.Message
		require.NoError(t, json.Unmarshal([]byte(raw), &msg))
		return msg
	}

	first := readMessage()
	assert.Equal(t, string(models.EventConnected), first.Type)
	assert.Equal(t, "s1", first.StreamID)

	require.NoError(t, websocket.Message.Send(conn, "ping"))
	for {
		msg := readMessage()
		if msg.Type == string(models.EventPong) {
			assert.Equal(t, "s1", msg.StreamID)
			break
		}
	}
}

func TestServer_WebsocketUnknownStream(t *testing.T) {
	s := newTestStack(t)

	wsURL := "ws" + strings.TrimPrefix(s.api.URL, "http") + "/ws/streams/ghost"
	_, err := websocket.Dial(wsURL, "", "http://localhost/")
	assert.Error(t, err)
}
