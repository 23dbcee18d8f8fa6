// Package downloader is the HTTP client for the external download manager
// API that fetches and transcodes videos.
package downloader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/soulxhy/tubewatch/internal/config"
	"github.com/soulxhy/tubewatch/internal/log"
)

// Request describes one download job.
type Request struct {
	URL        string `json:"url"`
	Resolution string `json:"resolution"`
	Format     string `json:"format"`
	Rename     string `json:"rename,omitempty"`
}

// Task is the download manager's acknowledgement of an accepted job.
type Task struct {
	TaskID     string `json:"task_id"`
	OutputPath string `json:"output_path"`
	Filename   string `json:"filename"`
}

// Service abstracts the download manager for the dispatcher.
type Service interface {
	Download(ctx context.Context, req Request) (*Task, error)
}

// Client talks to the download manager over HTTP.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
	logger   *slog.Logger
}

func NewClient(cfg config.DownloadConfig) *Client {
	return &Client{
		endpoint: cfg.URL,
		apiKey:   cfg.APIKey,
		http:     &http.Client{Timeout: cfg.Timeout},
		logger:   log.WithComponent("downloader"),
	}
}

// Download submits a job and returns the accepted task. Any non-2xx response
// or transport failure is an opaque error; the dispatcher treats it as fatal
// for the delivery.
func (c *Client) Download(ctx context.Context, req Request) (*Task, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal download request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("download request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("download manager returned %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}

	var task Task
	if err := json.NewDecoder(resp.Body).Decode(&task); err != nil {
		return nil, fmt.Errorf("decode download response: %w", err)
	}
	if task.TaskID == "" {
		return nil, fmt.Errorf("download manager response missing task_id")
	}

	c.logger.Debug("download accepted",
		"task_id", task.TaskID,
		"output_path", task.OutputPath,
	)
	return &task, nil
}
