package models

import "time"

// WebhookConfig is a persisted outbound notification target. An empty
// Events list subscribes the webhook to every event type.
type WebhookConfig struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	URL       string            `json:"url"`
	Enabled   bool              `json:"enabled"`
	Events    []string          `json:"events"`
	Headers   map[string]string `json:"headers,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// WantsEvent reports whether the webhook subscribes to the given event type.
func (w *WebhookConfig) WantsEvent(eventType string) bool {
	if len(w.Events) == 0 {
		return true
	}
	for _, e := range w.Events {
		if e == eventType {
			return true
		}
	}
	return false
}
