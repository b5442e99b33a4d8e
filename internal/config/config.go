// Package config provides configuration management for streamwatch using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultServerPort        = 8080
	defaultServerTimeout     = 30 * time.Second
	defaultShutdownTimeout   = 10 * time.Second
	defaultPollInterval      = 10 * time.Second
	defaultManifestTimeout   = 10 * time.Second
	defaultDownloadTimeout   = 30 * time.Second
	defaultMaxInflight       = 4
	defaultSeenURILimit      = 2048
	defaultMetricsHistory    = 500
	defaultLoudnessHistory   = 200
	defaultSCTE35History     = 100
	defaultLogCompressDays   = 1
	defaultLogDeleteDays     = 7
	defaultThumbnailWidth    = 320
	defaultThumbnailHeight   = 180
	defaultThumbnailKeep     = 50
	defaultThumbnailCacheTTL = 45 * time.Second
	defaultSpriteGridWidth   = 5
	defaultSpriteGridHeight  = 2
	defaultSpriteCount       = 10
	defaultSpriteJPEGQuality = 85
	defaultWebhookTimeout    = 10 * time.Second
	defaultProbeTimeout      = 5 * time.Second
	defaultLoudnessTimeout   = 30 * time.Second
)

// Config holds all configuration for the application.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Monitor   MonitorConfig   `mapstructure:"monitor"`
	LogStore  LogStoreConfig  `mapstructure:"logstore"`
	Thumbnail ThumbnailConfig `mapstructure:"thumbnail"`
	Sprite    SpriteConfig    `mapstructure:"sprite"`
	Webhook   WebhookConfig   `mapstructure:"webhook"`
	Media     MediaConfig     `mapstructure:"media"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

// StorageConfig holds on-disk layout configuration. All directories except
// BaseDir are resolved relative to BaseDir.
type StorageConfig struct {
	BaseDir       string `mapstructure:"base_dir"`
	SegmentsDir   string `mapstructure:"segments_dir"`
	ThumbnailsDir string `mapstructure:"thumbnails_dir"`
	SpritesDir    string `mapstructure:"sprites_dir"`
	LogsDir       string `mapstructure:"logs_dir"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// MonitorConfig holds per-stream pipeline configuration.
type MonitorConfig struct {
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	ManifestTimeout time.Duration `mapstructure:"manifest_timeout"`
	DownloadTimeout time.Duration `mapstructure:"download_timeout"`
	// MaxInflightDownloads bounds concurrent segment downloads per stream.
	MaxInflightDownloads int `mapstructure:"max_inflight_downloads"`
	// SeenURILimit bounds the per-stream segment dedup set (FIFO eviction).
	SeenURILimit    int `mapstructure:"seen_uri_limit"`
	MetricsHistory  int `mapstructure:"metrics_history"`
	LoudnessHistory int `mapstructure:"loudness_history"`
	SCTE35History   int `mapstructure:"scte35_history"`
}

// LogStoreConfig holds event-log rotation configuration.
type LogStoreConfig struct {
	CompressDays int `mapstructure:"compress_days"` // gzip .log files older than this many days
	DeleteDays   int `mapstructure:"delete_days"`   // delete log files older than this many days
}

// ThumbnailConfig holds thumbnail extraction configuration.
type ThumbnailConfig struct {
	Width    int           `mapstructure:"width"`
	Height   int           `mapstructure:"height"`
	Keep     int           `mapstructure:"keep"` // thumbnails retained per stream on disk
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// SpriteConfig holds sprite-sheet composition configuration.
type SpriteConfig struct {
	GridWidth    int `mapstructure:"grid_width"`
	GridHeight   int `mapstructure:"grid_height"`
	SegmentCount int `mapstructure:"segment_count"` // thumbnails buffered before a sheet is composed
	JPEGQuality  int `mapstructure:"jpeg_quality"`
}

// WebhookConfig holds outbound webhook dispatch configuration.
type WebhookConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// MediaConfig holds external multimedia tool configuration.
type MediaConfig struct {
	FFmpegPath      string        `mapstructure:"ffmpeg_path"`  // empty = look up in PATH
	FFprobePath     string        `mapstructure:"ffprobe_path"` // empty = look up in PATH
	ProbeTimeout    time.Duration `mapstructure:"probe_timeout"`
	LoudnessTimeout time.Duration `mapstructure:"loudness_timeout"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with STREAMWATCH_ and use underscores
// for nesting. Example: STREAMWATCH_SERVER_PORT=8080.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	SetDefaults(v)

	// Config file settings
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/streamwatch")
		v.AddConfigPath("$HOME/.streamwatch")
	}

	// Environment variable settings
	v.SetEnvPrefix("STREAMWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Config file not found is OK - we'll use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file to ensure defaults are in place.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.write_timeout", defaultServerTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)
	v.SetDefault("server.cors_origins", []string{"*"})

	// Storage defaults
	v.SetDefault("storage.base_dir", "./data")
	v.SetDefault("storage.segments_dir", "segments")
	v.SetDefault("storage.thumbnails_dir", "thumbnails")
	v.SetDefault("storage.sprites_dir", "sprites")
	v.SetDefault("storage.logs_dir", "logs")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Monitor defaults
	v.SetDefault("monitor.poll_interval", defaultPollInterval)
	v.SetDefault("monitor.manifest_timeout", defaultManifestTimeout)
	v.SetDefault("monitor.download_timeout", defaultDownloadTimeout)
	v.SetDefault("monitor.max_inflight_downloads", defaultMaxInflight)
	v.SetDefault("monitor.seen_uri_limit", defaultSeenURILimit)
	v.SetDefault("monitor.metrics_history", defaultMetricsHistory)
	v.SetDefault("monitor.loudness_history", defaultLoudnessHistory)
	v.SetDefault("monitor.scte35_history", defaultSCTE35History)

	// Log store defaults
	v.SetDefault("logstore.compress_days", defaultLogCompressDays)
	v.SetDefault("logstore.delete_days", defaultLogDeleteDays)

	// Thumbnail defaults
	v.SetDefault("thumbnail.width", defaultThumbnailWidth)
	v.SetDefault("thumbnail.height", defaultThumbnailHeight)
	v.SetDefault("thumbnail.keep", defaultThumbnailKeep)
	v.SetDefault("thumbnail.cache_ttl", defaultThumbnailCacheTTL)

	// Sprite defaults
	v.SetDefault("sprite.grid_width", defaultSpriteGridWidth)
	v.SetDefault("sprite.grid_height", defaultSpriteGridHeight)
	v.SetDefault("sprite.segment_count", defaultSpriteCount)
	v.SetDefault("sprite.jpeg_quality", defaultSpriteJPEGQuality)

	// Webhook defaults
	v.SetDefault("webhook.timeout", defaultWebhookTimeout)

	// Media tool defaults
	v.SetDefault("media.ffmpeg_path", "")
	v.SetDefault("media.ffprobe_path", "")
	v.SetDefault("media.probe_timeout", defaultProbeTimeout)
	v.SetDefault("media.loudness_timeout", defaultLoudnessTimeout)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	// Server validation
	const maxPort = 65535
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("server.port must be between 1 and %d", maxPort)
	}

	// Storage validation
	if c.Storage.BaseDir == "" {
		return fmt.Errorf("storage.base_dir is required")
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	// Monitor validation
	if c.Monitor.PollInterval <= 0 {
		return fmt.Errorf("monitor.poll_interval must be positive")
	}
	if c.Monitor.MaxInflightDownloads < 1 {
		return fmt.Errorf("monitor.max_inflight_downloads must be at least 1")
	}
	if c.Monitor.SeenURILimit < 1 {
		return fmt.Errorf("monitor.seen_uri_limit must be at least 1")
	}

	// Log store validation
	if c.LogStore.CompressDays < 0 {
		return fmt.Errorf("logstore.compress_days must not be negative")
	}
	if c.LogStore.DeleteDays < c.LogStore.CompressDays {
		return fmt.Errorf("logstore.delete_days must not be less than logstore.compress_days")
	}

	// Thumbnail validation
	if c.Thumbnail.Width < 1 || c.Thumbnail.Height < 1 {
		return fmt.Errorf("thumbnail dimensions must be positive")
	}

	// Sprite validation
	if c.Sprite.GridWidth < 1 || c.Sprite.GridHeight < 1 {
		return fmt.Errorf("sprite grid dimensions must be positive")
	}
	if c.Sprite.SegmentCount < 1 {
		return fmt.Errorf("sprite.segment_count must be at least 1")
	}
	if c.Sprite.JPEGQuality < 1 || c.Sprite.JPEGQuality > 100 {
		return fmt.Errorf("sprite.jpeg_quality must be between 1 and 100")
	}

	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// SegmentsPath returns the full path to the segments directory.
func (c *StorageConfig) SegmentsPath() string {
	return filepath.Join(c.BaseDir, c.SegmentsDir)
}

// ThumbnailsPath returns the full path to the thumbnails directory.
func (c *StorageConfig) ThumbnailsPath() string {
	return filepath.Join(c.BaseDir, c.ThumbnailsDir)
}

// SpritesPath returns the full path to the sprites directory.
func (c *StorageConfig) SpritesPath() string {
	return filepath.Join(c.BaseDir, c.SpritesDir)
}

// LogsPath returns the full path to the event-log directory.
func (c *StorageConfig) LogsPath() string {
	return filepath.Join(c.BaseDir, c.LogsDir)
}

// StreamsFile returns the path of the persisted stream config file.
func (c *StorageConfig) StreamsFile() string {
	return filepath.Join(c.BaseDir, "streams.json")
}

// WebhooksFile returns the path of the persisted webhook config file.
func (c *StorageConfig) WebhooksFile() string {
	return filepath.Join(c.BaseDir, "webhooks.json")
}
