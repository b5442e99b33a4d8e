// Package alerting implements threshold state machines over stream health
// inputs: hysteresis-based raise/resolve, deduplication of active alerts,
// and webhook notification on new raises.
package alerting

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/streamwatch/streamwatch/internal/health"
	"github.com/streamwatch/streamwatch/internal/models"
	"github.com/streamwatch/streamwatch/internal/observability"
)

// Thresholds for the built-in state machines. Raise fires at or past the
// value; resolve fires when the input recovers past the warning bound.
const (
	healthDegradedBelow = 60
	healthCriticalBelow = 40

	errorRateWarn  = 1.0 // percent
	errorRateError = 5.0

	continuityWarn  = 5
	continuityError = 20

	ttfbWarnMs  = 500.0
	ttfbErrorMs = 1000.0

	ratioWarn  = 0.8
	ratioError = 0.5
)

// Notifier delivers alert events to external receivers. Delivery is
// fire-and-forget from the engine's point of view.
type Notifier interface {
	SendEvent(eventType string, payload any)
}

type alertKey struct {
	streamID  string
	alertType models.AlertType
}

// Engine owns all alert state. At most one unresolved alert exists per
// (stream, alert type) pair; re-raising an active alert merges into it.
type Engine struct {
	mu       sync.Mutex
	active   map[alertKey]*models.Alert
	history  []*models.Alert
	counter  int64
	notifier Notifier
	logger   *slog.Logger
}

// New creates an Engine. notifier may be nil.
func New(logger *slog.Logger, notifier Notifier) *Engine {
	return &Engine{
		active:   make(map[alertKey]*models.Alert),
		notifier: notifier,
		logger:   observability.WithComponent(logger, "alerting"),
	}
}

// Raise creates a new alert, or merges into the active one of the same type.
// It returns the new alert, or nil when the raise deduplicated into an
// existing record. Only a new alert produces a webhook event.
func (e *Engine) Raise(streamID string, alertType models.AlertType, severity models.AlertSeverity, message string, metadata map[string]any) *models.Alert {
	e.mu.Lock()

	key := alertKey{streamID, alertType}
	now := time.Now().UTC()

	if existing, ok := e.active[key]; ok {
		// Dedup: refresh the active record instead of creating another.
		// Severity and message track the latest observation so an
		// escalated condition is visible without a second alert.
		existing.Timestamp = now
		existing.Severity = severity
		existing.Message = message
		if existing.Metadata == nil {
			existing.Metadata = make(map[string]any, len(metadata))
		}
		for k, v := range metadata {
			existing.Metadata[k] = v
		}
		e.mu.Unlock()
		return nil
	}

	e.counter++
	alert := &models.Alert{
		AlertID:   fmt.Sprintf("alert_%s_%d", now.Format("20060102_150405"), e.counter),
		StreamID:  streamID,
		AlertType: alertType,
		Severity:  severity,
		Message:   message,
		Timestamp: now,
		Metadata:  metadata,
	}
	e.active[key] = alert
	e.history = append(e.history, alert)
	e.mu.Unlock()

	observability.AlertsRaisedTotal.WithLabelValues(string(alertType), string(severity)).Inc()
	e.logger.Warn("alert raised",
		"stream_id", streamID,
		"alert_type", string(alertType),
		"severity", string(severity),
		"alert_id", alert.AlertID)

	if e.notifier != nil {
		go e.notifier.SendEvent(string(models.EventAlertRaised), alert)
	}

	return alert
}

// Resolve marks the active alert of the given type as resolved. The record
// stays in history. Returns false when no such alert is active.
func (e *Engine) Resolve(streamID string, alertType models.AlertType) bool {
	e.mu.Lock()

	key := alertKey{streamID, alertType}
	alert, ok := e.active[key]
	if !ok {
		e.mu.Unlock()
		return false
	}

	now := time.Now().UTC()
	alert.Resolved = true
	alert.ResolvedAt = &now
	delete(e.active, key)
	e.mu.Unlock()

	observability.AlertsResolvedTotal.WithLabelValues(string(alertType)).Inc()
	e.logger.Info("alert resolved",
		"stream_id", streamID,
		"alert_type", string(alertType),
		"alert_id", alert.AlertID)

	if e.notifier != nil {
		go e.notifier.SendEvent(string(models.EventAlertResolved), alert)
	}

	return true
}

// CheckThresholds drives every state machine from one health observation.
func (e *Engine) CheckThresholds(streamID string, score int, in health.Inputs) {
	// Health score, two bands with hysteresis between them.
	if score < healthCriticalBelow {
		e.Raise(streamID, models.AlertHealthCritical, models.SeverityCritical,
			fmt.Sprintf("Stream health critical: score %d", score),
			map[string]any{"threshold_value": healthCriticalBelow, "actual_value": score})
	} else {
		e.Resolve(streamID, models.AlertHealthCritical)
	}

	if score < healthDegradedBelow {
		e.Raise(streamID, models.AlertHealthDegraded, models.SeverityWarning,
			fmt.Sprintf("Stream health degraded: score %d", score),
			map[string]any{"threshold_value": healthDegradedBelow, "actual_value": score})
	} else {
		e.Resolve(streamID, models.AlertHealthDegraded)
		e.Resolve(streamID, models.AlertHealthCritical)
	}

	// Error rate.
	switch {
	case in.ErrorRate >= errorRateError:
		e.Raise(streamID, models.AlertHighErrorRate, models.SeverityError,
			fmt.Sprintf("High error rate: %.1f%%", in.ErrorRate),
			map[string]any{"threshold_value": errorRateError, "actual_value": in.ErrorRate})
	case in.ErrorRate >= errorRateWarn:
		e.Raise(streamID, models.AlertHighErrorRate, models.SeverityWarning,
			fmt.Sprintf("Elevated error rate: %.1f%%", in.ErrorRate),
			map[string]any{"threshold_value": errorRateWarn, "actual_value": in.ErrorRate})
	default:
		e.Resolve(streamID, models.AlertHighErrorRate)
	}

	// Continuity errors.
	switch {
	case in.ContinuityErrors >= continuityError:
		e.Raise(streamID, models.AlertContinuityErrors, models.SeverityError,
			fmt.Sprintf("Continuity errors: %d", in.ContinuityErrors),
			map[string]any{"threshold_value": continuityError, "actual_value": in.ContinuityErrors})
	case in.ContinuityErrors >= continuityWarn:
		e.Raise(streamID, models.AlertContinuityErrors, models.SeverityWarning,
			fmt.Sprintf("Continuity errors: %d", in.ContinuityErrors),
			map[string]any{"threshold_value": continuityWarn, "actual_value": in.ContinuityErrors})
	default:
		e.Resolve(streamID, models.AlertContinuityErrors)
	}

	// Time to first byte.
	switch {
	case in.TTFBAvg >= ttfbErrorMs:
		e.Raise(streamID, models.AlertHighTTFB, models.SeverityError,
			fmt.Sprintf("High TTFB: %.0fms", in.TTFBAvg),
			map[string]any{"threshold_value": ttfbErrorMs, "actual_value": in.TTFBAvg})
	case in.TTFBAvg >= ttfbWarnMs:
		e.Raise(streamID, models.AlertHighTTFB, models.SeverityWarning,
			fmt.Sprintf("Elevated TTFB: %.0fms", in.TTFBAvg),
			map[string]any{"threshold_value": ttfbWarnMs, "actual_value": in.TTFBAvg})
	default:
		e.Resolve(streamID, models.AlertHighTTFB)
	}

	// Download throughput ratio. A neutral 1.0 (no observations yet) never
	// trips the machine.
	switch {
	case in.DownloadRatio <= ratioError:
		e.Raise(streamID, models.AlertSlowDownload, models.SeverityError,
			fmt.Sprintf("Slow download: %.2fx realtime", in.DownloadRatio),
			map[string]any{"threshold_value": ratioError, "actual_value": in.DownloadRatio})
	case in.DownloadRatio <= ratioWarn:
		e.Raise(streamID, models.AlertSlowDownload, models.SeverityWarning,
			fmt.Sprintf("Slow download: %.2fx realtime", in.DownloadRatio),
			map[string]any{"threshold_value": ratioWarn, "actual_value": in.DownloadRatio})
	default:
		e.Resolve(streamID, models.AlertSlowDownload)
	}
}

// Acknowledge flips the acknowledged flag on the alert with the given ID.
// Returns whether an alert matched.
func (e *Engine) Acknowledge(alertID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, alert := range e.history {
		if alert.AlertID == alertID {
			alert.Acknowledged = true
			return true
		}
	}
	return false
}

// ActiveAlerts returns the unresolved alerts for one stream, in raise order.
func (e *Engine) ActiveAlerts(streamID string) []*models.Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	var alerts []*models.Alert
	for _, alert := range e.history {
		if alert.StreamID == streamID && !alert.Resolved {
			alerts = append(alerts, alert)
		}
	}
	return alerts
}

// Alerts returns a stream's alert history, optionally including resolved
// records, newest first.
func (e *Engine) Alerts(streamID string, includeResolved bool) []*models.Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	var alerts []*models.Alert
	for i := len(e.history) - 1; i >= 0; i-- {
		alert := e.history[i]
		if alert.StreamID != streamID {
			continue
		}
		if alert.Resolved && !includeResolved {
			continue
		}
		alerts = append(alerts, alert)
	}
	return alerts
}

// CleanupStream drops all alert state for a removed stream.
func (e *Engine) CleanupStream(streamID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for key := range e.active {
		if key.streamID == streamID {
			delete(e.active, key)
		}
	}

	kept := e.history[:0]
	for _, alert := range e.history {
		if alert.StreamID != streamID {
			kept = append(kept, alert)
		}
	}
	e.history = kept
}

// CleanupOldAlerts drops resolved alerts whose resolution time is older than
// maxAge. Returns the number removed.
func (e *Engine) CleanupOldAlerts(maxAge time.Duration) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := time.Now().UTC().Add(-maxAge)
	kept := e.history[:0]
	removed := 0
	for _, alert := range e.history {
		if alert.Resolved && alert.ResolvedAt != nil && alert.ResolvedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, alert)
	}
	e.history = kept
	return removed
}
