package forwarder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/soulxhy/tubewatch/internal/config"
	"github.com/soulxhy/tubewatch/internal/feed"
)

func TestForward(t *testing.T) {
	var got workflowPayload
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		_, _ = w.Write([]byte(`{"status":"succeeded"}`))
	}))
	defer srv.Close()

	c := New(config.ForwardConfig{
		URL:     srv.URL,
		APIKey:  "wf-key",
		User:    "tubewatch",
		Timeout: 5 * time.Second,
	})

	ev := feed.Event{
		VideoID:     "dQw4w9WgXcQ",
		ChannelID:   "UCchannel",
		Title:       "A title",
		PublishedAt: "2024-05-01T10:00:00+00:00",
		Author:      "Someone",
		VideoURL:    feed.WatchURLPrefix + "dQw4w9WgXcQ",
	}
	if err := c.Forward(context.Background(), ev); err != nil {
		t.Fatalf("Forward: %v", err)
	}

	if auth != "Bearer wf-key" {
		t.Errorf("Authorization = %q", auth)
	}
	if got.ResponseMode != "blocking" || got.User != "tubewatch" {
		t.Errorf("unexpected payload envelope: %#v", got)
	}
	if got.Inputs["video_id"] != "dQw4w9WgXcQ" || got.Inputs["video_url"] != ev.VideoURL {
		t.Errorf("unexpected inputs: %#v", got.Inputs)
	}
}

func TestForwardServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "workflow not found", http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(config.ForwardConfig{URL: srv.URL, APIKey: "k", Timeout: 5 * time.Second})
	if err := c.Forward(context.Background(), feed.Event{VideoID: "x"}); err == nil {
		t.Fatal("expected error for 404 response")
	}
}
