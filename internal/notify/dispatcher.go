// Package notify delivers session alerts to desktop and webhook channels.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gen2brain/beeep"

	"github.com/martymcenroe/unleashed/internal/model"
)

// EventType represents a notification event type.
type EventType string

const (
	// EventBlocked fires when an operation is denied and the dialog is
	// left for the operator.
	EventBlocked EventType = "blocked"
	// EventConfirmRequired fires when an escalated operation awaits a
	// typed confirmation.
	EventConfirmRequired EventType = "confirm_required"
	// EventFailOpen fires when the judge failed and the operation was
	// approved anyway.
	EventFailOpen EventType = "fail_open"
	// EventSessionEnded fires when the agent process exits.
	EventSessionEnded EventType = "session_ended"
)

// Event describes a notification event.
type Event struct {
	SessionID string
	Type      EventType
	Title     string
	Message   string
	Timestamp time.Time
}

// Dispatcher sends notifications to configured channels.
type Dispatcher struct {
	client *http.Client
}

// NewDispatcher creates a Dispatcher with sensible defaults.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		client: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// Dispatch sends a notification event using the given config. Failures
// are swallowed: alerting must never disturb the supervised session.
func (d *Dispatcher) Dispatch(ctx context.Context, cfg model.NotificationConfig, event Event) {
	title := strings.TrimSpace(event.Title)
	if title == "" {
		title = "Unleashed"
	}
	message := strings.TrimSpace(event.Message)
	if message == "" {
		message = string(event.Type)
	}
	if len(message) > 800 {
		message = message[:800] + "..."
	}

	if cfg.Desktop {
		_ = beeep.Notify(title, message, "")
	}

	if cfg.WebhookURL != "" {
		payload := map[string]any{
			"session":   event.SessionID,
			"event":     event.Type,
			"title":     title,
			"message":   message,
			"timestamp": event.Timestamp.Unix(),
		}
		body, err := json.Marshal(payload)
		if err != nil {
			return
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.WebhookURL, bytes.NewReader(body))
		if err != nil {
			return
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := d.client.Do(req)
		if err != nil {
			return
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}
}
