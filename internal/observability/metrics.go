package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveStreams tracks the number of streams currently under monitoring.
	ActiveStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "streamwatch_active_streams",
		Help: "Number of streams currently monitored",
	})

	// ManifestPollsTotal tracks manifest fetch attempts by result.
	ManifestPollsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamwatch_manifest_polls_total",
		Help: "Total manifest poll attempts by result",
	}, []string{"result"})

	// SegmentsDownloadedTotal tracks downloaded media segments by result.
	SegmentsDownloadedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamwatch_segments_downloaded_total",
		Help: "Total media segment downloads by result",
	}, []string{"result"})

	// SegmentBytesTotal tracks total bytes of downloaded media segments.
	SegmentBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streamwatch_segment_bytes_total",
		Help: "Total bytes of downloaded media segments",
	})

	// SegmentTTFB tracks time to first byte for segment downloads.
	SegmentTTFB = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "streamwatch_segment_ttfb_seconds",
		Help:    "Time to first byte for segment downloads",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	})

	// SegmentDownloadDuration tracks wall time of segment downloads.
	SegmentDownloadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "streamwatch_segment_download_duration_seconds",
		Help:    "Wall time of segment downloads",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	})

	// AlertsRaisedTotal tracks raised alerts by type and severity.
	AlertsRaisedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamwatch_alerts_raised_total",
		Help: "Total alerts raised by type and severity",
	}, []string{"type", "severity"})

	// AlertsResolvedTotal tracks resolved alerts by type.
	AlertsResolvedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamwatch_alerts_resolved_total",
		Help: "Total alerts resolved by type",
	}, []string{"type"})

	// WebhookDeliveriesTotal tracks webhook POST attempts by result.
	WebhookDeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamwatch_webhook_deliveries_total",
		Help: "Total webhook delivery attempts by result",
	}, []string{"result"})

	// BusSubscribers tracks currently connected bus subscribers.
	BusSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "streamwatch_bus_subscribers",
		Help: "Number of connected event bus subscribers",
	})

	// HealthScore exposes the latest health score per stream.
	HealthScore = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "streamwatch_health_score",
		Help: "Latest health score per stream (0-100)",
	}, []string{"stream_id"})
)

// ObserveSegmentDownload records the metrics of one completed segment download.
func ObserveSegmentDownload(bytes int64, ttfb, total time.Duration) {
	SegmentsDownloadedTotal.WithLabelValues("ok").Inc()
	SegmentBytesTotal.Add(float64(bytes))
	SegmentTTFB.Observe(ttfb.Seconds())
	SegmentDownloadDuration.Observe(total.Seconds())
}

// AddBusSubscribers adjusts the bus subscriber gauge by delta.
func AddBusSubscribers(delta int) {
	BusSubscribers.Add(float64(delta))
}

// RemoveStreamMetrics drops per-stream label series after stream removal.
func RemoveStreamMetrics(streamID string) {
	HealthScore.DeleteLabelValues(streamID)
}
