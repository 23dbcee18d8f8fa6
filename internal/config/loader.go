package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// overrides are environment-first settings applied on top of the YAML file.
// Secrets are usually supplied this way rather than written into config.yaml.
type overrides struct {
	Listen         string `env:"TUBEWATCH_LISTEN"`
	LogLevel       string `env:"TUBEWATCH_LOG_LEVEL"`
	StatePath      string `env:"TUBEWATCH_STATE_PATH"`
	WebhookSecret  string `env:"WEBHOOK_SECRET"`
	DownloadAPIKey string `env:"DOWNLOAD_API_KEY"`
	ForwardURL     string `env:"DIFY_URL"`
	ForwardAPIKey  string `env:"DIFY_API_KEY"`
	SMTPPassword   string `env:"SMTP_PASSWORD"`
	EmailRecipient string `env:"NOTIFY_EMAIL_TO"`
}

// Load reads and parses configuration from a YAML file. ${VAR} placeholders
// in the file are interpolated from the environment before parsing, and a
// small set of environment variables override the parsed values afterwards.
// Validation failures are returned here so the process can refuse to start.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}

	cfg := Defaults()
	interpolated := interpolateEnv(string(data))
	if err := yaml.Unmarshal([]byte(interpolated), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", absPath, err)
	}

	if err := applyOverrides(cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyOverrides merges environment variables over the YAML-derived config.
func applyOverrides(cfg *Config) error {
	ov, err := env.ParseAs[overrides]()
	if err != nil {
		return fmt.Errorf("failed to parse environment overrides: %w", err)
	}

	if ov.Listen != "" {
		cfg.Webhook.Listen = ov.Listen
	}
	if ov.LogLevel != "" {
		cfg.Service.LogLevel = ov.LogLevel
	}
	if ov.StatePath != "" {
		cfg.State.Path = ov.StatePath
	}
	if ov.WebhookSecret != "" {
		cfg.Webhook.Secret = ov.WebhookSecret
	}
	if ov.DownloadAPIKey != "" {
		cfg.Download.APIKey = ov.DownloadAPIKey
	}
	if ov.ForwardURL != "" {
		cfg.Forward.URL = ov.ForwardURL
	}
	if ov.ForwardAPIKey != "" {
		cfg.Forward.APIKey = ov.ForwardAPIKey
	}
	if ov.SMTPPassword != "" {
		cfg.SMTP.Password = ov.SMTPPassword
	}
	if ov.EmailRecipient != "" {
		cfg.SMTP.To = ov.EmailRecipient
	}
	return nil
}

// applyDefaults fills zero values left by partial YAML documents.
func applyDefaults(cfg *Config) {
	d := Defaults()
	if cfg.Service.Name == "" {
		cfg.Service.Name = d.Service.Name
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = d.Service.LogLevel
	}
	if cfg.Service.DispatchTick <= 0 {
		cfg.Service.DispatchTick = d.Service.DispatchTick
	}
	if cfg.Service.DedupeTTL <= 0 {
		cfg.Service.DedupeTTL = d.Service.DedupeTTL
	}
	if cfg.State.Path == "" {
		cfg.State.Path = d.State.Path
	}
	if cfg.Webhook.Listen == "" {
		cfg.Webhook.Listen = d.Webhook.Listen
	}
	if cfg.Webhook.Path == "" {
		cfg.Webhook.Path = d.Webhook.Path
	}
	if cfg.Webhook.SignatureHeader == "" {
		cfg.Webhook.SignatureHeader = d.Webhook.SignatureHeader
	}
	if cfg.Webhook.MaxBodySize <= 0 {
		cfg.Webhook.MaxBodySize = d.Webhook.MaxBodySize
	}
	if cfg.Download.Resolution == "" {
		cfg.Download.Resolution = d.Download.Resolution
	}
	if cfg.Download.Format == "" {
		cfg.Download.Format = d.Download.Format
	}
	if cfg.Download.Timeout <= 0 {
		cfg.Download.Timeout = d.Download.Timeout
	}
	if cfg.Forward.User == "" {
		cfg.Forward.User = d.Forward.User
	}
	if cfg.Forward.Timeout <= 0 {
		cfg.Forward.Timeout = d.Forward.Timeout
	}
	if cfg.SMTP.Port == 0 {
		cfg.SMTP.Port = d.SMTP.Port
	}
	if cfg.SMTP.Timeout <= 0 {
		cfg.SMTP.Timeout = d.SMTP.Timeout
	}
}

// Validate checks that all required configuration is present. The process
// must fail fast at startup rather than at first request.
func (c *Config) Validate() error {
	if c.Webhook.Secret == "" {
		return fmt.Errorf("webhook.secret is required (or set WEBHOOK_SECRET)")
	}
	if unresolvedPlaceholder(c.Webhook.Secret) {
		return fmt.Errorf("webhook.secret references an unset environment variable: %s", c.Webhook.Secret)
	}
	if c.Download.URL == "" {
		return fmt.Errorf("download.url is required")
	}
	if c.SMTP.Host == "" {
		return fmt.Errorf("smtp.host is required")
	}
	if c.SMTP.Port <= 0 || c.SMTP.Port > 65535 {
		return fmt.Errorf("smtp.port %d is out of range", c.SMTP.Port)
	}
	if c.SMTP.From == "" {
		return fmt.Errorf("smtp.from is required")
	}
	if c.SMTP.To == "" {
		return fmt.Errorf("smtp.to is required (or set NOTIFY_EMAIL_TO)")
	}
	if c.Forward.Enabled() && c.Forward.APIKey == "" {
		return fmt.Errorf("forward.api_key is required when forward.url is set")
	}
	if c.Service.DispatchTick < 100*time.Millisecond {
		return fmt.Errorf("service.dispatch_tick %s is too small", c.Service.DispatchTick)
	}
	return nil
}

// interpolateEnv replaces ${VAR} placeholders with environment values.
// Unset variables are left as-is so validation can report them.
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}

func unresolvedPlaceholder(s string) bool {
	return envVarPattern.MatchString(s)
}
