package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/martymcenroe/unleashed/internal/model"
)

func TestDispatchWebhook(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	d := NewDispatcher()
	d.Dispatch(context.Background(), model.NotificationConfig{WebhookURL: srv.URL}, Event{
		SessionID: "s-1",
		Type:      EventBlocked,
		Message:   "rm -rf / denied",
		Timestamp: time.Now(),
	})

	assert.Equal(t, "s-1", got["session"])
	assert.Equal(t, string(EventBlocked), got["event"])
	assert.Equal(t, "Unleashed", got["title"])
	assert.Equal(t, "rm -rf / denied", got["message"])
}

func TestDispatchNoChannelsConfigured(t *testing.T) {
	d := NewDispatcher()
	// Nothing configured: must be a no-op, not an error or panic.
	d.Dispatch(context.Background(), model.NotificationConfig{}, Event{Type: EventFailOpen})
}

func TestDispatchWebhookFailureIsSilent(t *testing.T) {
	d := NewDispatcher()
	d.Dispatch(context.Background(), model.NotificationConfig{WebhookURL: "http://127.0.0.1:1/x"}, Event{
		Type: EventSessionEnded,
	})
}
