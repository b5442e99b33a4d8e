package http

import (
	"log/slog"
	"time"

	"github.com/streamwatch/streamwatch/internal/alerting"
	"github.com/streamwatch/streamwatch/internal/bus"
	"github.com/streamwatch/streamwatch/internal/http/handlers"
	"github.com/streamwatch/streamwatch/internal/httpclient"
	"github.com/streamwatch/streamwatch/internal/logstore"
	"github.com/streamwatch/streamwatch/internal/monitor"
	"github.com/streamwatch/streamwatch/internal/sprite"
	"github.com/streamwatch/streamwatch/internal/store"
	"github.com/streamwatch/streamwatch/internal/thumbnail"
	"github.com/streamwatch/streamwatch/internal/webhook"
)

// APIDeps are the collaborators the API handlers are composed from.
type APIDeps struct {
	Monitor    *monitor.Engine
	Streams    *store.StreamStore
	Alerts     *alerting.Engine
	Logs       *logstore.Store
	Webhooks   *webhook.Dispatcher
	Thumbnails *thumbnail.Generator
	Sprites    *sprite.Composer
	Bus        *bus.Bus
	Client     *httpclient.Client

	ThumbnailTTL time.Duration
	Version      string
	Logger       *slog.Logger
}

// RegisterAPI mounts every handler on the server.
func (s *Server) RegisterAPI(d APIDeps) {
	handlers.NewStreamHandler(d.Monitor, d.Streams, d.Alerts, d.Logs,
		d.Thumbnails, d.Sprites).Register(s.api)
	handlers.NewWebhookHandler(d.Webhooks).Register(s.api)
	handlers.NewSystemHandler(d.Version, d.Client).Register(s.api)

	handlers.NewExportHandler(d.Monitor, d.Alerts).RegisterRoutes(s.router)
	handlers.NewFileHandler(d.Thumbnails, d.Sprites, d.ThumbnailTTL).RegisterRoutes(s.router)
	handlers.NewWSHandler(d.Monitor, d.Bus, d.Logger).RegisterRoutes(s.router)
}
