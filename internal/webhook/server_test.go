package webhook

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/soulxhy/tubewatch/internal/config"
	"github.com/soulxhy/tubewatch/internal/feed"
	"github.com/soulxhy/tubewatch/internal/queue"
)

// mockSink is a mock implementation of EventSink for testing.
type mockSink struct {
	enqueueFn func(ctx context.Context, ev feed.Event) (string, error)
	events    []feed.Event
}

func (m *mockSink) Enqueue(ctx context.Context, ev feed.Event) (string, error) {
	m.events = append(m.events, ev)
	if m.enqueueFn != nil {
		return m.enqueueFn(ctx, ev)
	}
	return "test-delivery-id", nil
}

func testConfig(secret string) config.WebhookConfig {
	return config.WebhookConfig{
		Listen:          "127.0.0.1:0",
		Path:            "/youtube-webhook",
		Secret:          secret,
		SignatureHeader: "X-Hub-Signature",
		MaxBodySize:     1048576,
	}
}

const notificationXML = `<feed xmlns="http://www.w3.org/2005/Atom" xmlns:yt="http://www.youtube.com/xml/schemas/2015">
  <entry>
    <yt:videoId>dQw4w9WgXcQ</yt:videoId>
    <yt:channelId>UCuAXFkgsw1L7xaCfnd5JJOw</yt:channelId>
    <title>A new video</title>
    <author><name>Rick Astley</name></author>
    <published>2024-05-01T10:00:00+00:00</published>
  </entry>
</feed>`

func postNotification(t *testing.T, s *Server, body []byte, signature string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", "/youtube-webhook", bytes.NewReader(body))
	if signature != "" {
		req.Header.Set("X-Hub-Signature", signature)
	}
	rec := httptest.NewRecorder()
	s.handleNotification(rec, req)
	return rec
}

func TestHandleNotificationValid(t *testing.T) {
	secret := "test-secret"
	body := []byte(notificationXML)
	sig := formatHubSignature(computeExpectedSignature(body, secret))

	sink := &mockSink{}
	s := New(testConfig(secret), sink, nil)

	rec := postNotification(t, s, body, sig)

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("body = %q, want empty", rec.Body.String())
	}
	if len(sink.events) != 1 {
		t.Fatalf("got %d enqueued events, want 1", len(sink.events))
	}
	ev := sink.events[0]
	if ev.VideoID != "dQw4w9WgXcQ" {
		t.Errorf("VideoID = %q", ev.VideoID)
	}
	if ev.VideoURL != feed.WatchURLPrefix+"dQw4w9WgXcQ" {
		t.Errorf("VideoURL = %q", ev.VideoURL)
	}
}

func TestHandleNotificationInvalidSignature(t *testing.T) {
	sink := &mockSink{
		enqueueFn: func(ctx context.Context, ev feed.Event) (string, error) {
			t.Fatal("Enqueue should not be called with invalid signature")
			return "", nil
		},
	}
	s := New(testConfig("test-secret"), sink, nil)

	rec := postNotification(t, s, []byte(notificationXML), "sha1=0000000000000000000000000000000000000000")

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
	if got := rec.Body.String(); got != "Signature mismatch\n" {
		t.Errorf("body = %q, want %q", got, "Signature mismatch\n")
	}
}

func TestHandleNotificationMissingSignature(t *testing.T) {
	s := New(testConfig("test-secret"), &mockSink{}, nil)

	rec := postNotification(t, s, []byte(notificationXML), "")

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
}

func TestHandleNotificationInvalidXML(t *testing.T) {
	secret := "test-secret"
	body := []byte(`<feed xmlns="http://www.w3.org/2005/Atom"><entry>`)
	sig := formatHubSignature(computeExpectedSignature(body, secret))

	s := New(testConfig(secret), &mockSink{}, nil)

	rec := postNotification(t, s, body, sig)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if got := rec.Body.String(); got != "Invalid XML\n" {
		t.Errorf("body = %q, want %q", got, "Invalid XML\n")
	}
}

func TestHandleNotificationEnqueueFailureStillPreVerified(t *testing.T) {
	// A storage failure before the 204 commitment point is a 500 so the hub
	// redelivers.
	secret := "test-secret"
	body := []byte(notificationXML)
	sig := formatHubSignature(computeExpectedSignature(body, secret))

	sink := &mockSink{
		enqueueFn: func(ctx context.Context, ev feed.Event) (string, error) {
			return "", errors.New("database is locked")
		},
	}
	s := New(testConfig(secret), sink, nil)

	rec := postNotification(t, s, body, sig)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
}

func TestHandleNotificationDuplicate(t *testing.T) {
	secret := "test-secret"
	body := []byte(notificationXML)
	sig := formatHubSignature(computeExpectedSignature(body, secret))

	sink := &mockSink{
		enqueueFn: func(ctx context.Context, ev feed.Event) (string, error) {
			return "", queue.ErrDuplicateDelivery
		},
	}
	s := New(testConfig(secret), sink, nil)

	rec := postNotification(t, s, body, sig)

	// Redeliveries are acknowledged, not errors.
	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}
}

func TestHandleNotificationPayloadTooLarge(t *testing.T) {
	cfg := testConfig("test-secret")
	cfg.MaxBodySize = 64
	s := New(cfg, &mockSink{}, nil)

	rec := postNotification(t, s, bytes.Repeat([]byte("x"), 128), "sha1=00")

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusRequestEntityTooLarge)
	}
}

func TestHandleChallenge(t *testing.T) {
	s := New(testConfig("test-secret"), &mockSink{}, nil)

	tests := []struct {
		name     string
		target   string
		wantBody string
	}{
		{name: "challenge echoed", target: "/youtube-webhook?hub.challenge=abc123", wantBody: "abc123"},
		{name: "absent challenge", target: "/youtube-webhook", wantBody: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tt.target, nil)
			rec := httptest.NewRecorder()
			s.handleChallenge(rec, req)

			if rec.Code != http.StatusOK {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
			}
			if rec.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestRoutesEndToEnd(t *testing.T) {
	secret := "test-secret"
	sink := &mockSink{}
	s := New(testConfig(secret), sink, nil)
	router := s.setupRoutes()

	// GET handshake through the router.
	req := httptest.NewRequest("GET", "/youtube-webhook?hub.challenge=xyz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "xyz" {
		t.Fatalf("handshake: status=%d body=%q", rec.Code, rec.Body.String())
	}

	// POST notification through the router.
	body := []byte(notificationXML)
	req = httptest.NewRequest("POST", "/youtube-webhook", bytes.NewReader(body))
	req.Header.Set("X-Hub-Signature", formatHubSignature(computeExpectedSignature(body, secret)))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("notification: status=%d body=%q", rec.Code, rec.Body.String())
	}
	if len(sink.events) != 1 {
		t.Fatalf("got %d events, want 1", len(sink.events))
	}
}
