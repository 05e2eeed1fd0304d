package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models taskdesk.yml.
type Config struct {
	Server struct {
		Port     int    `yaml:"port"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Auth struct {
		JWTSecret     string `yaml:"jwt_secret"`
		TokenTTLHours int    `yaml:"token_ttl_hours"`
	} `yaml:"auth"`
	Uploads  UploadConfig    `yaml:"uploads"`
	Autosave AutosaveConfig  `yaml:"autosave"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// UploadConfig caps attachment sizes. All sizes are bytes.
type UploadConfig struct {
	MaxFilesPerCompletion int   `yaml:"max_files_per_completion"`
	MaxAggregateBytes     int64 `yaml:"max_aggregate_bytes"`
	MaxImageBytes         int64 `yaml:"max_image_bytes"`
	MaxPDFBytes           int64 `yaml:"max_pdf_bytes"`
	MaxVideoBytes         int64 `yaml:"max_video_bytes"`
	MaxProposalFileBytes  int64 `yaml:"max_proposal_file_bytes"`
}

type AutosaveConfig struct {
	MaxRetries     int `yaml:"max_retries"`
	BackoffSeconds int `yaml:"backoff_seconds"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Enabled        *bool    `yaml:"enabled,omitempty"`
	Events         []string `yaml:"events,omitempty"`
	Secret         string   `yaml:"secret,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds,omitempty"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config.server.port must be 1-65535")
	}
	if c.Auth.TokenTTLHours <= 0 {
		return fmt.Errorf("config.auth.token_ttl_hours must be positive")
	}
	u := c.Uploads
	if u.MaxFilesPerCompletion <= 0 {
		return fmt.Errorf("config.uploads.max_files_per_completion must be positive")
	}
	for name, v := range map[string]int64{
		"max_aggregate_bytes":     u.MaxAggregateBytes,
		"max_image_bytes":         u.MaxImageBytes,
		"max_pdf_bytes":           u.MaxPDFBytes,
		"max_video_bytes":         u.MaxVideoBytes,
		"max_proposal_file_bytes": u.MaxProposalFileBytes,
	} {
		if v <= 0 {
			return fmt.Errorf("config.uploads.%s must be positive", name)
		}
	}
	if c.Autosave.MaxRetries < 0 {
		return fmt.Errorf("config.autosave.max_retries must not be negative")
	}
	for i, hook := range c.Webhooks {
		if hook.URL == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "taskdesk.yml")
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Omitted
// sections fall back to defaults before validation.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `server:
  port: 8000
  base_path: /v1

auth:
  jwt_secret: ""
  token_ttl_hours: 24

uploads:
  max_files_per_completion: 10
  max_aggregate_bytes: 52428800   # 50MB
  max_image_bytes: 10485760       # 10MB
  max_pdf_bytes: 26214400         # 25MB
  max_video_bytes: 104857600      # 100MB
  max_proposal_file_bytes: 26214400

autosave:
  max_retries: 5
  backoff_seconds: 2
`
