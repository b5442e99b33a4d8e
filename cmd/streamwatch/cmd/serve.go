package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/streamwatch/streamwatch/internal/alerting"
	"github.com/streamwatch/streamwatch/internal/bus"
	"github.com/streamwatch/streamwatch/internal/config"
	internalhttp "github.com/streamwatch/streamwatch/internal/http"
	"github.com/streamwatch/streamwatch/internal/httpclient"
	"github.com/streamwatch/streamwatch/internal/logstore"
	"github.com/streamwatch/streamwatch/internal/mediatool"
	"github.com/streamwatch/streamwatch/internal/monitor"
	"github.com/streamwatch/streamwatch/internal/sprite"
	"github.com/streamwatch/streamwatch/internal/store"
	"github.com/streamwatch/streamwatch/internal/thumbnail"
	"github.com/streamwatch/streamwatch/internal/version"
	"github.com/streamwatch/streamwatch/internal/webhook"
)

// alertRetention is how long resolved and stale alerts are kept before the
// daily cleanup discards them.
const alertRetention = 7 * 24 * time.Hour

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the monitoring engine and API server",
	Long: `Starts the stream monitoring engine, resumes all enabled streams from
the stream store, and serves the REST API, websocket feeds, and CSV
exports until interrupted.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "0.0.0.0", "listen address")
	serveCmd.Flags().Int("port", 8080, "listen port")
	serveCmd.Flags().String("data-dir", "./data", "base data directory")

	mustBindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	mustBindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	mustBindPFlag("storage.base_dir", serveCmd.Flags().Lookup("data-dir"))
}

func runServe(_ *cobra.Command, _ []string) error {
	var cfg config.Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	logger := slog.Default()
	logger.Info("starting streamwatch",
		"version", version.String(),
		"address", cfg.Server.Address(),
		"data_dir", cfg.Storage.BaseDir)

	for _, dir := range []string{
		cfg.Storage.SegmentsPath(),
		cfg.Storage.ThumbnailsPath(),
		cfg.Storage.SpritesPath(),
		cfg.Storage.LogsPath(),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating data directory %s: %w", dir, err)
		}
	}

	clientCfg := httpclient.DefaultConfig()
	clientCfg.Timeout = cfg.Monitor.DownloadTimeout
	clientCfg.UserAgent = version.UserAgent()
	clientCfg.Logger = logger
	client := httpclient.New(clientCfg)

	dispatcher, err := webhook.New(cfg.Storage.WebhooksFile(), cfg.Webhook.Timeout, logger)
	if err != nil {
		return fmt.Errorf("initializing webhook dispatcher: %w", err)
	}

	streamStore, err := store.New(cfg.Storage.StreamsFile(), logger)
	if err != nil {
		return fmt.Errorf("initializing stream store: %w", err)
	}

	alerts := alerting.New(logger, dispatcher)
	eventBus := bus.New(logger)
	logs := logstore.New(cfg.Storage.LogsPath(), cfg.LogStore, logger)
	mediaTool := mediatool.New(cfg.Media, logger)
	thumbnails := thumbnail.New(cfg.Storage.ThumbnailsPath(), cfg.Thumbnail, mediaTool.FFmpegPath(), logger)
	sprites := sprite.New(cfg.Storage.SpritesPath(), cfg.Sprite, logger)

	if err := logs.Start(); err != nil {
		return fmt.Errorf("starting log rotation: %w", err)
	}
	defer logs.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine := monitor.New(ctx, monitor.Deps{
		Config:     cfg,
		Client:     client,
		Alerts:     alerts,
		Bus:        eventBus,
		Logs:       logs,
		Media:      mediaTool,
		Thumbnails: thumbnails,
		Sprites:    sprites,
		Streams:    streamStore,
		Logger:     logger,
	})
	engine.Start()

	housekeeping := cron.New()
	if _, err := housekeeping.AddFunc("@daily", func() {
		removed := alerts.CleanupOldAlerts(alertRetention)
		if removed > 0 {
			logger.Info("purged old alerts", "count", removed)
		}
	}); err != nil {
		return fmt.Errorf("scheduling alert cleanup: %w", err)
	}
	housekeeping.Start()
	defer func() { <-housekeeping.Stop().Done() }()

	server := internalhttp.NewServer(cfg.Server, logger, version.Version)
	server.RegisterAPI(internalhttp.APIDeps{
		Monitor:      engine,
		Streams:      streamStore,
		Alerts:       alerts,
		Logs:         logs,
		Webhooks:     dispatcher,
		Thumbnails:   thumbnails,
		Sprites:      sprites,
		Bus:          eventBus,
		Client:       client,
		ThumbnailTTL: cfg.Thumbnail.CacheTTL,
		Version:      version.Version,
		Logger:       logger,
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig.String())
		cancel()
	}()

	err = server.ListenAndServe(ctx)

	// Stop accepting work before waiting out in-flight downloads.
	cancel()
	engine.Wait()

	if err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}
