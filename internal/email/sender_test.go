package email

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogSender(t *testing.T) {
	var buf bytes.Buffer
	s := NewLogSender(zerolog.New(&buf))

	err := s.Send(context.Background(), Message{To: "a@example.com", Subject: "Hi", Body: "<p>x</p>", IsHTML: true, Attachments: []string{"r.pdf"}})
	require.NoError(t, err)

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)
	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "a@example.com", entry["to"])
	assert.Equal(t, "Hi", entry["subject"])
	assert.Equal(t, float64(1), entry["attachments"])
}

func TestLogSenderCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, NewLogSender(zerolog.Nop()).Send(ctx, Message{}), context.Canceled)
}

func TestWebhookSender(t *testing.T) {
	var got webhookPayload
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	s := NewWebhookSender(srv.URL, time.Second, zerolog.Nop())
	s.Headers = map[string]string{"Authorization": "Bearer relay"}
	err := s.Send(context.Background(), Message{To: "a@example.com", Subject: "Report", Body: "<p>x</p>", IsHTML: true, Attachments: []string{"r.pdf"}})
	require.NoError(t, err)

	assert.Equal(t, "Bearer relay", auth)
	assert.Equal(t, webhookPayload{To: "a@example.com", Subject: "Report", Body: "<p>x</p>", IsHTML: true, Attachments: []string{"r.pdf"}}, got)
}

func TestWebhookSenderRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "mailbox unavailable", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhookSender(srv.URL, time.Second, zerolog.Nop()).Send(context.Background(), Message{To: "a@example.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Contains(t, err.Error(), "mailbox unavailable")
}

func TestWebhookSenderRequiresURL(t *testing.T) {
	assert.Error(t, NewWebhookSender("", 0, zerolog.Nop()).Send(context.Background(), Message{}))
}
