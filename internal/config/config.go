// Package config handles ticketgate configuration loading and validation.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultCloseComment is posted on merge requests closed for lacking a ticket reference.
const DefaultCloseComment = "This merge request has been closed automatically because it does not contain a valid JIRA ticket in the branch name or description."

// Config is the root configuration for ticketgate.
// It is built once at startup and treated as read-only afterwards.
type Config struct {
	Server ServerConfig `yaml:"server"`
	GitLab GitLabConfig `yaml:"gitlab"`
	Jira   JiraConfig   `yaml:"jira"`
	Log    LogConfig    `yaml:"log"`
}

// ServerConfig defines the webhook listener.
type ServerConfig struct {
	Listen            string        `yaml:"listen"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

// GitLabConfig defines the source-control connection.
type GitLabConfig struct {
	Host         string        `yaml:"host"`   // e.g. "gitlab.example.com"
	Scheme       string        `yaml:"scheme"` // "https" unless testing against plain http
	Token        string        `yaml:"token"`
	Timeout      time.Duration `yaml:"timeout"`
	CloseComment string        `yaml:"close_comment"`
}

// JiraConfig defines the issue tracker connection.
// Token takes precedence over Username/Password when both are set.
type JiraConfig struct {
	Host     string        `yaml:"host"` // full base URL, e.g. "https://jira.example.com"
	Token    string        `yaml:"token"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
	Timeout  time.Duration `yaml:"timeout"`
}

// LogConfig defines logging and error reporting.
type LogConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"` // "text" or "json"
	File      string `yaml:"file"`
	SentryDSN string `yaml:"sentry_dsn"`
	Env       string `yaml:"env"`
}

// AuthScheme identifies which Jira credential is in use.
type AuthScheme string

const (
	AuthNone   AuthScheme = ""
	AuthAPIKey AuthScheme = "api_key"
	AuthBasic  AuthScheme = "basic"
)

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:            "0.0.0.0:3000",
			ReadHeaderTimeout: 10 * time.Second,
			ShutdownTimeout:   30 * time.Second,
		},
		GitLab: GitLabConfig{
			Scheme:       "https",
			Timeout:      10 * time.Second,
			CloseComment: DefaultCloseComment,
		},
		Jira: JiraConfig{
			Timeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			Env:    "development",
		},
	}
}

// Load reads the config file (if any) and applies environment overrides.
// It does not validate; callers that need a runnable config call Validate.
func Load() (*Config, error) {
	return LoadFile(DefaultConfigPath())
}

// LoadFile is Load with an explicit path. A missing file yields the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
		cfg.expandEnvVars()
	}

	cfg.applyEnv()
	return cfg, nil
}

// DefaultConfigPath returns the default configuration file path.
func DefaultConfigPath() string {
	if p := os.Getenv("TICKETGATE_CONFIG"); p != "" {
		return p
	}
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".config/ticketgate/config.yaml")
}

func (c *Config) expandEnvVars() {
	c.GitLab.Token = os.ExpandEnv(c.GitLab.Token)
	c.Jira.Token = os.ExpandEnv(c.Jira.Token)
	c.Jira.Password = os.ExpandEnv(c.Jira.Password)
	c.Log.SentryDSN = os.ExpandEnv(c.Log.SentryDSN)
}

// applyEnv overlays the environment variables the service has always been deployed with.
func (c *Config) applyEnv() {
	setFromEnv(&c.GitLab.Host, "GITLAB_HOST")
	setFromEnv(&c.GitLab.Token, "GITLAB_TOKEN")
	setFromEnv(&c.Jira.Host, "JIRA_HOST")
	setFromEnv(&c.Jira.Token, "JIRA_TOKEN")
	setFromEnv(&c.Jira.Username, "JIRA_USERNAME")
	setFromEnv(&c.Jira.Password, "JIRA_PASSWORD")
	setFromEnv(&c.Server.Listen, "TICKETGATE_LISTEN")
	setFromEnv(&c.Log.Level, "TICKETGATE_LOG_LEVEL")
	setFromEnv(&c.Log.Format, "TICKETGATE_LOG_FORMAT")
	setFromEnv(&c.Log.Env, "TICKETGATE_ENV")
	setFromEnv(&c.Log.SentryDSN, "SENTRY_DSN")
}

func setFromEnv(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Validate reports every missing setting the daemon cannot run without.
func (c *Config) Validate() error {
	var errs []error
	if c.GitLab.Host == "" {
		errs = append(errs, errors.New("gitlab host is required (GITLAB_HOST)"))
	}
	if c.GitLab.Token == "" {
		errs = append(errs, errors.New("gitlab token is required (GITLAB_TOKEN)"))
	}
	if c.Jira.Host == "" {
		errs = append(errs, errors.New("jira host is required (JIRA_HOST)"))
	}
	if c.Jira.AuthScheme() == AuthNone {
		// Token alone, or both username and password; a lone username is not enough.
		errs = append(errs, errors.New("jira credentials are required (JIRA_TOKEN or JIRA_USERNAME and JIRA_PASSWORD)"))
	}
	if c.Server.Listen == "" {
		errs = append(errs, errors.New("server listen address is required"))
	}
	return errors.Join(errs...)
}

// AuthScheme returns the single credential scheme in effect.
func (j JiraConfig) AuthScheme() AuthScheme {
	switch {
	case j.Token != "":
		return AuthAPIKey
	case j.Username != "" && j.Password != "":
		return AuthBasic
	default:
		return AuthNone
	}
}

// GitLabBaseURL returns the scheme-qualified GitLab root, without trailing slash.
func (c *Config) GitLabBaseURL() string {
	host := strings.TrimSuffix(c.GitLab.Host, "/")
	if strings.Contains(host, "://") {
		return host
	}
	scheme := c.GitLab.Scheme
	if scheme == "" {
		scheme = "https"
	}
	return scheme + "://" + host
}

// Redacted returns a copy safe to print.
func (c *Config) Redacted() *Config {
	cp := *c
	cp.GitLab.Token = redact(cp.GitLab.Token)
	cp.Jira.Token = redact(cp.Jira.Token)
	cp.Jira.Password = redact(cp.Jira.Password)
	cp.Log.SentryDSN = redact(cp.Log.SentryDSN)
	return &cp
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "********"
}
