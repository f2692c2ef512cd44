// Package config handles configuration loading and management for carechat.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// RCFileEnv overrides the configuration file path.
const RCFileEnv = "CARECHATRC"

// Endpoints holds the server paths for every connection kind.
type Endpoints struct {
	// Expert is the path experts connect to.
	Expert string
	// PatientExpert is the path patients use to talk to a human expert.
	PatientExpert string
	// PatientAutomated is the path patients use to talk to the automated responder.
	PatientAutomated string
	// Upload is the path of the one-shot document upload.
	Upload string
}

// ServerConfig describes the remote chat server.
type ServerConfig struct {
	// BaseURL is the HTTP(S) address of the server (e.g. "http://127.0.0.1:8000").
	// Websocket URLs are derived from it by switching the scheme.
	BaseURL string
	// IdentityParam is the query/form parameter carrying the user identity.
	IdentityParam string
	// Endpoints holds the per-connection paths.
	Endpoints Endpoints
}

// SessionConfig tunes the persistent connection.
type SessionConfig struct {
	// DialTimeout bounds the websocket handshake.
	DialTimeout time.Duration
	// WriteTimeout bounds each outbound frame.
	WriteTimeout time.Duration
	// MaxReconnects is the number of consecutive reconnect attempts after an
	// unexpected drop. Zero disables reconnecting.
	MaxReconnects int
	// ReconnectInterval is the minimum spacing between reconnect attempts.
	ReconnectInterval time.Duration
}

// UploadConfig tunes the document upload channel.
type UploadConfig struct {
	Timeout  time.Duration
	MaxBytes int64
}

// LoggingConfig holds file-level logging defaults. Command-line flags win.
type LoggingConfig struct {
	Level string
	File  string
	JSON  bool
}

// Config represents the complete carechat configuration.
type Config struct {
	Server  ServerConfig
	Session SessionConfig
	Upload  UploadConfig
	Logging LoggingConfig
}

// ConfigSource indicates where the configuration was loaded from.
type ConfigSource int

const (
	// ConfigSourceDefaults indicates built-in defaults were used.
	ConfigSourceDefaults ConfigSource = iota
	// ConfigSourceRCFile indicates the default RC file was loaded.
	ConfigSourceRCFile
	// ConfigSourceCustomFile indicates configuration was loaded from --config.
	ConfigSourceCustomFile
)

// String returns a human-readable name for the source.
func (s ConfigSource) String() string {
	switch s {
	case ConfigSourceRCFile:
		return "rc file"
	case ConfigSourceCustomFile:
		return "custom file"
	default:
		return "defaults"
	}
}

// LoadResult contains the loaded configuration and metadata about its source.
type LoadResult struct {
	Config     *Config
	Source     ConfigSource
	SourcePath string
}

// rawConfig mirrors the YAML layout. Durations are strings ("10s").
type rawConfig struct {
	Server struct {
		BaseURL       string `yaml:"base_url,omitempty"`
		IdentityParam string `yaml:"identity_param,omitempty"`
		Endpoints     struct {
			Expert           string `yaml:"expert,omitempty"`
			PatientExpert    string `yaml:"patient_expert,omitempty"`
			PatientAutomated string `yaml:"patient_automated,omitempty"`
			Upload           string `yaml:"upload,omitempty"`
		} `yaml:"endpoints"`
	} `yaml:"server"`
	Session struct {
		DialTimeout       string `yaml:"dial_timeout,omitempty"`
		WriteTimeout      string `yaml:"write_timeout,omitempty"`
		MaxReconnects     *int   `yaml:"max_reconnects,omitempty"`
		ReconnectInterval string `yaml:"reconnect_interval,omitempty"`
	} `yaml:"session"`
	Upload struct {
		Timeout  string `yaml:"timeout,omitempty"`
		MaxBytes int64  `yaml:"max_bytes,omitempty"`
	} `yaml:"upload"`
	Logging struct {
		Level string `yaml:"level,omitempty"`
		File  string `yaml:"file,omitempty"`
		JSON  bool   `yaml:"json,omitempty"`
	} `yaml:"logging"`
}

// Default returns the built-in configuration, matching the reference server
// layout.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			BaseURL:       "http://127.0.0.1:8000",
			IdentityParam: "user_id",
			Endpoints: Endpoints{
				Expert:           "/ws/expert",
				PatientExpert:    "/ws/patient",
				PatientAutomated: "/ws/llm",
				Upload:           "/upload-note",
			},
		},
		Session: SessionConfig{
			DialTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			MaxReconnects:     1,
			ReconnectInterval: 2 * time.Second,
		},
		Upload: UploadConfig{
			Timeout:  30 * time.Second,
			MaxBytes: 10 << 20,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// DefaultConfigPath returns the default configuration file path for the current platform.
func DefaultConfigPath() string {
	if envPath := os.Getenv(RCFileEnv); envPath != "" {
		return envPath
	}

	var configDir string
	switch runtime.GOOS {
	case "windows":
		configDir = os.Getenv("APPDATA")
		if configDir == "" {
			configDir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
	case "darwin":
		home, _ := os.UserHomeDir()
		configDir = home
	default: // linux and others
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			configDir = xdgConfig
		} else {
			home, _ := os.UserHomeDir()
			configDir = home
		}
	}

	return filepath.Join(configDir, ".carechatrc")
}

// Load reads and parses the configuration file from the given path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return Parse(data)
}

// LoadWithFallback loads path when given, otherwise the default RC file if
// it exists, otherwise the built-in defaults.
func LoadWithFallback(path string) (*LoadResult, error) {
	if path != "" {
		cfg, err := Load(path)
		if err != nil {
			return nil, err
		}
		return &LoadResult{Config: cfg, Source: ConfigSourceCustomFile, SourcePath: path}, nil
	}

	rcPath := DefaultConfigPath()
	if _, err := os.Stat(rcPath); err == nil {
		cfg, err := Load(rcPath)
		if err != nil {
			return nil, err
		}
		return &LoadResult{Config: cfg, Source: ConfigSourceRCFile, SourcePath: rcPath}, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to stat config file %s: %w", rcPath, err)
	}

	return &LoadResult{Config: Default(), Source: ConfigSourceDefaults}, nil
}

// Parse parses YAML configuration data into a Config struct. Missing values
// take their defaults.
func Parse(data []byte) (*Config, error) {
	var raw rawConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg := Default()

	setString(&cfg.Server.BaseURL, raw.Server.BaseURL)
	setString(&cfg.Server.IdentityParam, raw.Server.IdentityParam)
	setString(&cfg.Server.Endpoints.Expert, raw.Server.Endpoints.Expert)
	setString(&cfg.Server.Endpoints.PatientExpert, raw.Server.Endpoints.PatientExpert)
	setString(&cfg.Server.Endpoints.PatientAutomated, raw.Server.Endpoints.PatientAutomated)
	setString(&cfg.Server.Endpoints.Upload, raw.Server.Endpoints.Upload)

	durations := []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"session.dial_timeout", raw.Session.DialTimeout, &cfg.Session.DialTimeout},
		{"session.write_timeout", raw.Session.WriteTimeout, &cfg.Session.WriteTimeout},
		{"session.reconnect_interval", raw.Session.ReconnectInterval, &cfg.Session.ReconnectInterval},
		{"upload.timeout", raw.Upload.Timeout, &cfg.Upload.Timeout},
	}
	for _, d := range durations {
		if d.value == "" {
			continue
		}
		v, err := time.ParseDuration(d.value)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", d.name, d.value, err)
		}
		*d.dst = v
	}

	if raw.Session.MaxReconnects != nil {
		cfg.Session.MaxReconnects = *raw.Session.MaxReconnects
	}
	if raw.Upload.MaxBytes != 0 {
		cfg.Upload.MaxBytes = raw.Upload.MaxBytes
	}

	setString(&cfg.Logging.Level, raw.Logging.Level)
	setString(&cfg.Logging.File, raw.Logging.File)
	cfg.Logging.JSON = raw.Logging.JSON

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

// Validate checks the configuration for values the client cannot work with.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Server.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid server.base_url %q: %w", c.Server.BaseURL, err)
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return fmt.Errorf("invalid server.base_url %q: unsupported scheme %q", c.Server.BaseURL, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid server.base_url %q: missing host", c.Server.BaseURL)
	}

	if c.Server.IdentityParam == "" {
		return fmt.Errorf("server.identity_param must not be empty")
	}

	paths := map[string]string{
		"expert":            c.Server.Endpoints.Expert,
		"patient_expert":    c.Server.Endpoints.PatientExpert,
		"patient_automated": c.Server.Endpoints.PatientAutomated,
		"upload":            c.Server.Endpoints.Upload,
	}
	for name, p := range paths {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("server.endpoints.%s must start with '/', got %q", name, p)
		}
	}

	if c.Session.MaxReconnects < 0 {
		return fmt.Errorf("session.max_reconnects must not be negative")
	}
	if c.Upload.MaxBytes < 0 {
		return fmt.Errorf("upload.max_bytes must not be negative")
	}
	return nil
}

// YAML renders the configuration in the file format Parse accepts.
func (c *Config) YAML() ([]byte, error) {
	var raw rawConfig
	raw.Server.BaseURL = c.Server.BaseURL
	raw.Server.IdentityParam = c.Server.IdentityParam
	raw.Server.Endpoints.Expert = c.Server.Endpoints.Expert
	raw.Server.Endpoints.PatientExpert = c.Server.Endpoints.PatientExpert
	raw.Server.Endpoints.PatientAutomated = c.Server.Endpoints.PatientAutomated
	raw.Server.Endpoints.Upload = c.Server.Endpoints.Upload
	raw.Session.DialTimeout = c.Session.DialTimeout.String()
	raw.Session.WriteTimeout = c.Session.WriteTimeout.String()
	maxReconnects := c.Session.MaxReconnects
	raw.Session.MaxReconnects = &maxReconnects
	raw.Session.ReconnectInterval = c.Session.ReconnectInterval.String()
	raw.Upload.Timeout = c.Upload.Timeout.String()
	raw.Upload.MaxBytes = c.Upload.MaxBytes
	raw.Logging.Level = c.Logging.Level
	raw.Logging.File = c.Logging.File
	raw.Logging.JSON = c.Logging.JSON

	return yaml.Marshal(&raw)
}

// UploadURL returns the absolute URL of the upload endpoint.
func (c *Config) UploadURL() string {
	return withScheme(c.Server.BaseURL, map[string]string{"ws": "http", "wss": "https"}) + c.Server.Endpoints.Upload
}

// WebsocketBaseURL returns the base URL with a ws/wss scheme.
func (c *Config) WebsocketBaseURL() string {
	return withScheme(c.Server.BaseURL, map[string]string{"http": "ws", "https": "wss"})
}

// withScheme swaps the URL scheme according to mapping and drops any
// trailing slash.
func withScheme(base string, mapping map[string]string) string {
	base = strings.TrimSuffix(base, "/")
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	if to, ok := mapping[u.Scheme]; ok {
		u.Scheme = to
	}
	return u.String()
}
