package config

import "time"

// Config represents the complete tubewatch configuration.
type Config struct {
	Service  ServiceConfig  `yaml:"service"`
	State    StateConfig    `yaml:"state"`
	Webhook  WebhookConfig  `yaml:"webhook"`
	Download DownloadConfig `yaml:"download"`
	Forward  ForwardConfig  `yaml:"forward,omitempty"`
	SMTP     SMTPConfig     `yaml:"smtp"`
	Metrics  MetricsConfig  `yaml:"metrics,omitempty"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name         string        `yaml:"name"`
	LogLevel     string        `yaml:"log_level"`
	DispatchTick time.Duration `yaml:"dispatch_tick"`
	DedupeTTL    time.Duration `yaml:"dedupe_ttl"`
}

// StateConfig defines delivery state storage settings.
type StateConfig struct {
	Path string `yaml:"path"`
}

// WebhookConfig defines the inbound notification endpoint.
type WebhookConfig struct {
	Listen string `yaml:"listen"`

	// Path is the URL path the hub pushes to (default: "/youtube-webhook").
	Path string `yaml:"path"`

	// Secret is the shared HMAC secret registered with the hub.
	Secret string `yaml:"secret"`

	// SignatureHeader carries the hub's HMAC-SHA1 signature
	// (default: "X-Hub-Signature").
	SignatureHeader string `yaml:"signature_header"`

	// MaxBodySize is the maximum allowed request body size in bytes.
	MaxBodySize int64 `yaml:"max_body_size"`
}

// DownloadConfig defines the download manager API client settings.
type DownloadConfig struct {
	URL        string        `yaml:"url"`
	APIKey     string        `yaml:"api_key"`
	Resolution string        `yaml:"resolution"`
	Format     string        `yaml:"format"`
	Timeout    time.Duration `yaml:"timeout"`
}

// ForwardConfig defines the optional metadata forwarding target
// (a Dify-style workflow endpoint). Forwarding is enabled when URL is set.
type ForwardConfig struct {
	URL     string        `yaml:"url"`
	APIKey  string        `yaml:"api_key"`
	User    string        `yaml:"user"`
	Timeout time.Duration `yaml:"timeout"`
}

// Enabled reports whether metadata forwarding is configured.
func (f ForwardConfig) Enabled() bool { return f.URL != "" }

// SMTPConfig defines the notification email transport.
type SMTPConfig struct {
	Host     string        `yaml:"host"`
	Port     int           `yaml:"port"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
	From     string        `yaml:"from"`
	To       string        `yaml:"to"`
	Timeout  time.Duration `yaml:"timeout"`
}

// MetricsConfig defines Prometheus metrics exposure.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:         "tubewatch",
			LogLevel:     "info",
			DispatchTick: 1 * time.Second,
			DedupeTTL:    24 * time.Hour,
		},
		State: StateConfig{
			Path: "./data/deliveries.db",
		},
		Webhook: WebhookConfig{
			Listen:          "127.0.0.1:8080",
			Path:            "/youtube-webhook",
			SignatureHeader: "X-Hub-Signature",
			MaxBodySize:     1048576, // 1 MB
		},
		Download: DownloadConfig{
			Resolution: "1080p",
			Format:     "mp4",
			Timeout:    30 * time.Second,
		},
		Forward: ForwardConfig{
			User:    "tubewatch",
			Timeout: 30 * time.Second,
		},
		SMTP: SMTPConfig{
			Port:    587,
			Timeout: 15 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}
