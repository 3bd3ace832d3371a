package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestWebhookNotifier_Send verifies the payload shape and happy path.
func TestWebhookNotifier_Send(t *testing.T) {
	// Setup
	var received webhookPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n, err := NewWebhookNotifier(server.URL, "secret-key", zerolog.Nop())
	require.NoError(t, err)

	// Execute
	err = n.Send(context.Background(), "ops-room", "device down")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "secret-key", received.APIKey)
	assert.Equal(t, "ops-room", received.Recipient)
	assert.Equal(t, "device down", received.Message)
}

// TestWebhookNotifier_Send_GatewayError verifies non-2xx responses are
// delivery failures.
func TestWebhookNotifier_Send_GatewayError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	n, err := NewWebhookNotifier(server.URL, "secret-key", zerolog.Nop())
	require.NoError(t, err)

	err = n.Send(context.Background(), "ops-room", "device down")
	assert.ErrorContains(t, err, "429")
}

// TestWebhookNotifier_Send_ConnectionRefused verifies transport errors are
// surfaced.
func TestWebhookNotifier_Send_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	server.Close()

	n, err := NewWebhookNotifier(server.URL, "secret-key", zerolog.Nop())
	require.NoError(t, err)

	assert.Error(t, n.Send(context.Background(), "ops-room", "device down"))
}

// TestNewWebhookNotifier_EmptyURL verifies URL validation.
func TestNewWebhookNotifier_EmptyURL(t *testing.T) {
	_, err := NewWebhookNotifier("", "key", zerolog.Nop())
	assert.Error(t, err)
}
