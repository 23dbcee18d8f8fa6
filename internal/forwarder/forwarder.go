// Package forwarder posts extracted video metadata to a configured workflow
// endpoint (a Dify-style automation API) with bearer authentication.
package forwarder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/soulxhy/tubewatch/internal/config"
	"github.com/soulxhy/tubewatch/internal/feed"
	"github.com/soulxhy/tubewatch/internal/log"
)

// Forwarder abstracts metadata forwarding for the dispatcher.
type Forwarder interface {
	Forward(ctx context.Context, ev feed.Event) error
}

type workflowPayload struct {
	Inputs       map[string]string `json:"inputs"`
	ResponseMode string            `json:"response_mode"`
	User         string            `json:"user"`
}

// Client forwards events to the workflow endpoint.
type Client struct {
	cfg    config.ForwardConfig
	http   *http.Client
	logger *slog.Logger
}

func New(cfg config.ForwardConfig) *Client {
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: log.WithComponent("forwarder"),
	}
}

// Forward posts the event's fields as workflow inputs. Failures are returned
// to the caller for logging only; forwarding never gates the rest of the
// dispatch pipeline.
func (c *Client) Forward(ctx context.Context, ev feed.Event) error {
	payload := workflowPayload{
		Inputs: map[string]string{
			"video_id":     ev.VideoID,
			"channel_id":   ev.ChannelID,
			"title":        ev.Title,
			"description":  ev.Description,
			"thumbnail":    ev.ThumbnailURL,
			"published_at": ev.PublishedAt,
			"author":       ev.Author,
			"video_url":    ev.VideoURL,
		},
		ResponseMode: "blocking",
		User:         c.cfg.User,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal workflow payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build workflow request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("workflow request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("workflow endpoint returned %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}

	c.logger.Debug("metadata forwarded", "video_id", ev.VideoID, "status", resp.StatusCode)
	return nil
}
