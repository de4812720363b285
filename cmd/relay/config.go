package main

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/illmade-knight/go-mail-relay/pkg/rules"
)

// MailboxConfig holds IMAP source configuration.
type MailboxConfig struct {
	Addr         string `toml:"addr"`
	Username     string `toml:"username"`
	Password     string `toml:"password"`
	Mailbox      string `toml:"mailbox"`
	TLS          bool   `toml:"tls"`
	PollInterval string `toml:"poll_interval"`
}

// TransportConfig holds outbound SMTP configuration.
type TransportConfig struct {
	Addr               string `toml:"addr"`
	Username           string `toml:"username"`
	Password           string `toml:"password"`
	TLS                bool   `toml:"tls"`
	StartTLS           bool   `toml:"starttls"`
	InsecureSkipVerify bool   `toml:"insecure_skip_verify"`
	From               string `toml:"from"`
}

// ForwardConfig holds the forwarding policy.
type ForwardConfig struct {
	SubjectPrefix string             `toml:"subject_prefix"`
	MaxAttempts   int                `toml:"max_attempts"`
	RetryBackoff  string             `toml:"retry_backoff"`
	AllowFrom     []string           `toml:"allow_from"`
	Rules         []rules.ForwardRule `toml:"rules"`
}

// RedisDedupConfig holds Redis dedup backend configuration.
type RedisDedupConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

// FirestoreDedupConfig holds Firestore dedup backend configuration.
type FirestoreDedupConfig struct {
	ProjectID       string `toml:"project_id"`
	CredentialsFile string `toml:"credentials_file"`
	Collection      string `toml:"collection"`
}

// DedupConfig selects and configures the dedup store backend.
type DedupConfig struct {
	// Backend is one of "file", "redis", "firestore". Defaults to "file".
	Backend   string               `toml:"backend"`
	Path      string               `toml:"path"`
	Redis     RedisDedupConfig     `toml:"redis"`
	Firestore FirestoreDedupConfig `toml:"firestore"`
}

// HTTPConfig holds the dashboard server configuration.
type HTTPConfig struct {
	Start bool   `toml:"start"`
	Addr  string `toml:"addr"`
}

// Config is the full relay configuration.
type Config struct {
	LogLevel  string          `toml:"log_level"`
	Mailbox   MailboxConfig   `toml:"mailbox"`
	Transport TransportConfig `toml:"transport"`
	Forward   ForwardConfig   `toml:"forward"`
	Dedup     DedupConfig     `toml:"dedup"`
	HTTP      HTTPConfig      `toml:"http"`
}

// LoadConfig reads, defaults, and validates the TOML configuration at path.
// Any validation failure is fatal at startup: the process must not run with
// missing or invalid configuration.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Mailbox.Mailbox == "" {
		c.Mailbox.Mailbox = "INBOX"
	}
	if c.Mailbox.PollInterval == "" {
		c.Mailbox.PollInterval = "30s"
	}
	if c.Forward.MaxAttempts <= 0 {
		c.Forward.MaxAttempts = 3
	}
	if c.Forward.RetryBackoff == "" {
		c.Forward.RetryBackoff = "1s"
	}
	if c.Dedup.Backend == "" {
		c.Dedup.Backend = "file"
	}
	if c.Dedup.Path == "" {
		c.Dedup.Path = "processed.txt"
	}
	if c.Dedup.Firestore.Collection == "" {
		c.Dedup.Firestore.Collection = "processed-messages"
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
}

// Validate checks the configuration for startup-fatal problems.
func (c *Config) Validate() error {
	if c.Mailbox.Addr == "" {
		return fmt.Errorf("mailbox.addr is required")
	}
	if c.Mailbox.Username == "" {
		return fmt.Errorf("mailbox.username is required")
	}
	if _, err := time.ParseDuration(c.Mailbox.PollInterval); err != nil {
		return fmt.Errorf("mailbox.poll_interval: %w", err)
	}
	if c.Transport.Addr == "" {
		return fmt.Errorf("transport.addr is required")
	}
	if c.Transport.From == "" {
		return fmt.Errorf("transport.from is required")
	}
	if _, err := time.ParseDuration(c.Forward.RetryBackoff); err != nil {
		return fmt.Errorf("forward.retry_backoff: %w", err)
	}
	if len(c.Forward.Rules) == 0 {
		return fmt.Errorf("at least one [[forward.rules]] entry is required")
	}
	switch c.Dedup.Backend {
	case "file":
		if c.Dedup.Path == "" {
			return fmt.Errorf("dedup.path is required for the file backend")
		}
	case "redis":
		if c.Dedup.Redis.Addr == "" {
			return fmt.Errorf("dedup.redis.addr is required for the redis backend")
		}
	case "firestore":
		if c.Dedup.Firestore.ProjectID == "" {
			return fmt.Errorf("dedup.firestore.project_id is required for the firestore backend")
		}
	default:
		return fmt.Errorf("unknown dedup backend %q", c.Dedup.Backend)
	}
	return nil
}

// PollInterval returns the parsed mailbox poll interval. Validate has already
// confirmed it parses.
func (c *Config) PollInterval() time.Duration {
	d, _ := time.ParseDuration(c.Mailbox.PollInterval)
	return d
}

// RetryBackoff returns the parsed delivery retry backoff base.
func (c *Config) RetryBackoff() time.Duration {
	d, _ := time.ParseDuration(c.Forward.RetryBackoff)
	return d
}
