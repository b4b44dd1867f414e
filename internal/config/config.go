// Package config provides YAML-based configuration loading for Docket.
// Environment variables prefixed with DOCKET_ override file values.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/zulandar/docket/internal/blob"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "DOCKET_"

// Config is the top-level Docket configuration, loaded from docket.yaml.
type Config struct {
	Database DatabaseConfig `yaml:"database" envPrefix:"DB_"`
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage" envPrefix:"STORAGE_"`
	Janitor  JanitorConfig  `yaml:"janitor"`
	Notify   NotifyConfig   `yaml:"notify"`
	Tracing  TracingConfig  `yaml:"tracing"`
	Locale   string         `yaml:"locale" env:"LOCALE"`

	Users    []UserSeed    `yaml:"users"`
	Groups   []GroupSeed   `yaml:"groups"`
	Projects []ProjectSeed `yaml:"projects"`
}

// DatabaseConfig selects the store. DSN wins over the discrete fields.
type DatabaseConfig struct {
	Driver   string `yaml:"driver" env:"DRIVER"`
	DSN      string `yaml:"dsn" env:"DSN"`
	Host     string `yaml:"host" env:"HOST"`
	Port     int    `yaml:"port" env:"PORT"`
	Name     string `yaml:"name" env:"NAME"`
	User     string `yaml:"user" env:"USER"`
	Password string `yaml:"password" env:"PASSWORD"`
	Debug    bool   `yaml:"debug" env:"DEBUG"`
}

// ServerConfig holds HTTP settings.
type ServerConfig struct {
	Port int `yaml:"port" env:"PORT"`
}

// StorageConfig holds attachment storage settings.
type StorageConfig struct {
	Path          string `yaml:"path" env:"PATH"`
	MaxUploadSize int64  `yaml:"max_upload_size" env:"MAX_UPLOAD_SIZE"`
}

// JanitorConfig schedules the sweep of removed attachments.
type JanitorConfig struct {
	Schedule string `yaml:"schedule" env:"JANITOR_SCHEDULE"`
	Disabled bool   `yaml:"disabled" env:"JANITOR_DISABLED"`
}

// NotifyConfig holds the webhook sinks for issue events.
type NotifyConfig struct {
	SlackWebhook        string `yaml:"slack_webhook" env:"SLACK_WEBHOOK"`
	DiscordWebhookID    string `yaml:"discord_webhook_id" env:"DISCORD_WEBHOOK_ID"`
	DiscordWebhookToken string `yaml:"discord_webhook_token" env:"DISCORD_WEBHOOK_TOKEN"`
}

// TracingConfig holds the OTLP exporter endpoint. Empty disables export.
type TracingConfig struct {
	Endpoint string `yaml:"endpoint" env:"OTEL_ENDPOINT"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config, applying overrides
// from the process environment.
func Parse(data []byte) (*Config, error) {
	return parse(data, nil)
}

// parse reads overrides from environ, or from the process when nil.
func parse(data []byte, environ map[string]string) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	opts := env.Options{Prefix: EnvPrefix}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, fmt.Errorf("config: parse env: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Driver == "sqlite" && c.Database.DSN == "" {
		c.Database.DSN = "docket.db"
	}
	if c.Database.Driver == "mysql" {
		if c.Database.Host == "" {
			c.Database.Host = "127.0.0.1"
		}
		if c.Database.Port == 0 {
			c.Database.Port = 3306
		}
		if c.Database.User == "" {
			c.Database.User = "root"
		}
		if c.Database.Name == "" {
			c.Database.Name = "docket"
		}
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "var/files"
	}
	if c.Storage.MaxUploadSize == 0 {
		c.Storage.MaxUploadSize = 2 << 20
	}
	if c.Janitor.Schedule == "" {
		c.Janitor.Schedule = "@hourly"
	}
	if c.Locale == "" {
		c.Locale = "en-US"
	}
	for i := range c.Users {
		if c.Users[i].Timezone == "" {
			c.Users[i].Timezone = "UTC"
		}
		if c.Users[i].Locale == "" {
			c.Users[i].Locale = c.Locale
		}
	}
	for i := range c.Projects {
		for j := range c.Projects[i].Templates {
			for k := range c.Projects[i].Templates[j].States {
				st := &c.Projects[i].Templates[j].States[k]
				if st.Responsible == "" {
					st.Responsible = "keep"
				}
			}
		}
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	switch c.Database.Driver {
	case "sqlite", "mysql":
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q must be sqlite or mysql", c.Database.Driver))
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}
	if c.Storage.MaxUploadSize < 0 {
		errs = append(errs, "storage.max_upload_size must not be negative")
	}
	if err := blob.ValidSchedule(c.Janitor.Schedule); err != nil {
		errs = append(errs, "janitor.schedule: "+err.Error())
	}
	if (c.Notify.DiscordWebhookID == "") != (c.Notify.DiscordWebhookToken == "") {
		errs = append(errs, "notify.discord_webhook_id and notify.discord_webhook_token go together")
	}
	errs = append(errs, c.validateSeed()...)
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
