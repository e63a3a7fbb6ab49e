package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mealorder-service/pkg/config"
)

func TestWebhookNotifierPostsPayload(t *testing.T) {
	var got Notification
	var contentType string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		contentType = r.Header.Get("Content-Type")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := Notification{OrderID: 42, RecipientContact: "ravi@example.com", StatusMessage: "Your order has been approved"}
	err := NewWebhookNotifier(srv.URL).Notify(context.Background(), n)
	require.NoError(t, err)

	assert.Equal(t, "application/json", contentType)
	assert.Equal(t, n, got)
}

func TestWebhookNotifierNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := NewWebhookNotifier(srv.URL).Notify(context.Background(), Notification{OrderID: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 500")
}

func TestWebhookNotifierUnreachable(t *testing.T) {
	err := NewWebhookNotifier("http://127.0.0.1:1/never").Notify(context.Background(), Notification{OrderID: 1})
	assert.Error(t, err)
}

func TestNewSelectsBackend(t *testing.T) {
	log := zap.NewNop()

	n := New(&config.NotifierConfig{Backend: "webhook", WebhookURL: "http://localhost:9/hook"}, log)
	assert.IsType(t, &WebhookNotifier{}, n)

	n = New(&config.NotifierConfig{Backend: "kafka", KafkaBroker: "localhost:9092", KafkaTopic: "orders"}, log)
	assert.IsType(t, &KafkaNotifier{}, n)

	// Missing webhook URL and unknown backends degrade to a no-op rather
	// than failing startup.
	n = New(&config.NotifierConfig{Backend: "webhook"}, log)
	assert.IsType(t, NopNotifier{}, n)

	n = New(&config.NotifierConfig{Backend: "carrier-pigeon"}, log)
	assert.IsType(t, NopNotifier{}, n)
}
