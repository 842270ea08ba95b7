package app

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/user"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/townspark/townspark/internal/apiclient"
	"github.com/townspark/townspark/internal/gateway"
	"github.com/townspark/townspark/internal/observability"
	"github.com/townspark/townspark/internal/session"
	"github.com/townspark/townspark/internal/tokensource"
	"github.com/townspark/townspark/internal/tokenstore"
)

// LogFormat represents the logging output format.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// TokenStorageType represents the different storage types supported for the CLI session.
type TokenStorageType string

const (
	TokenStorageTypeFile    TokenStorageType = "file"
	TokenStorageTypeEnv     TokenStorageType = "env"
	TokenStorageTypeKeyring TokenStorageType = "keyring"
	TokenStorageTypeMemory  TokenStorageType = "memory"
)

// keyringService names the keyring entries of the CLI session.
const keyringService = "townspark"

// Default configuration values
const (
	DefaultConfigLogFormat           = LogFormatText
	DefaultConfigLogExporter         = observability.ExporterNone
	DefaultConfigServerHost          = "127.0.0.1"
	DefaultConfigServerPort          = 4000
	DefaultConfigShutdownTimeout     = 5 * time.Second
	DefaultConfigAPITimeout          = apiclient.DefaultTimeout
	DefaultConfigAPIRefreshTimeout   = apiclient.DefaultRefreshTimeout
	DefaultConfigAPILoginField       = tokensource.DefaultLoginField
	DefaultConfigSessionLoginPath    = gateway.DefaultLoginPath
	DefaultConfigSessionCookiePrefix = tokenstore.DefaultCookiePrefix
	DefaultConfigSessionRefreshAge   = 7 * 24 * time.Hour
	DefaultConfigAuthStorage         = TokenStorageTypeFile
	DefaultConfigAuthEnvPrefix       = "TOWNSPARK_TOKEN_"
)

// LogFileConfig enables a rotating copy of the logs on disk.
type LogFileConfig struct {
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `json:"max_backups" validate:"gte=0"`
	MaxAgeDays int    `json:"max_age_days" validate:"gte=0"`
	Compress   bool   `json:"compress"`
}

// TelemetryConfig controls OpenTelemetry log export.
type TelemetryConfig struct {
	Exporter observability.Exporter `json:"exporter" validate:"oneof=none stdout otlp-grpc otlp-http"`
}

// ServerConfig holds gateway listener configuration.
type ServerConfig struct {
	Host string `json:"host" validate:"hostname_rfc1123|ip"`
	Port uint16 `json:"port"` // Port range 0-65535 handled by uint16 type
}

// ShutdownConfig holds shutdown behavior configuration.
type ShutdownConfig struct {
	// Timeout for graceful shutdown.
	Timeout time.Duration `json:"timeout"`
}

// APIConfig describes the TownSpark API.
type APIConfig struct {
	BaseURL        string        `json:"base_url" validate:"required,url"`
	Timeout        time.Duration `json:"timeout" validate:"gte=0"`
	RefreshTimeout time.Duration `json:"refresh_timeout" validate:"gte=0"`
	// LoginField is the JSON field the login identifier is sent in.
	LoginField string `json:"login_field" validate:"oneof=email username"`
}

// SessionConfig configures the gateway's cookie session.
type SessionConfig struct {
	CookiePrefix string `json:"cookie_prefix"`
	LoginPath    string `json:"login_path" validate:"startswith=/"`
	// RefreshMaxAge is the lifetime of the refresh cookie. Zero makes it a session cookie.
	RefreshMaxAge time.Duration `json:"refresh_max_age" validate:"gte=0"`
}

// AuthConfig describes where the CLI keeps its token pair.
type AuthConfig struct {
	Storage TokenStorageType `json:"storage" validate:"required,oneof=file env keyring memory"`

	// Storage-specific settings (mutually exclusive based on Storage type)
	File        string `json:"file,omitempty"`         // For file storage: path to token file
	EnvPrefix   string `json:"env_prefix,omitempty"`   // For env storage: variable prefix
	KeyringUser string `json:"keyring_user,omitempty"` // For keyring storage: user identifier
}

// NewTokenStore creates a TokenStore from the storage configuration.
func (a *AuthConfig) NewTokenStore() (tokenstore.TokenStore, error) {
	switch a.Storage {
	case TokenStorageTypeFile:
		return tokenstore.NewFileStore(a.File)
	case TokenStorageTypeEnv:
		return tokenstore.NewEnvStore(a.EnvPrefix)
	case TokenStorageTypeKeyring:
		return tokenstore.NewKeyringStore(keyringService, a.KeyringUser)
	case TokenStorageTypeMemory:
		return tokenstore.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", a.Storage)
	}
}

// NewSession creates the session store of the CLI.
func (a *AuthConfig) NewSession() (*session.Store, error) {
	backend, err := a.NewTokenStore()
	if err != nil {
		return nil, fmt.Errorf("failed to create token store: %w", err)
	}
	return session.NewStore(backend)
}

// Config holds the application's configuration.
type Config struct {
	// LogLevel for logging output (defaults to Info if unset).
	LogLevel  slog.Level      `json:"log_level"`
	LogFormat LogFormat       `json:"log_format" validate:"oneof=text json"`
	LogFile   LogFileConfig   `json:"log_file"`
	Telemetry TelemetryConfig `json:"telemetry"`
	Server    ServerConfig    `json:"server"`
	Shutdown  ShutdownConfig  `json:"shutdown"`
	API       APIConfig       `json:"api"`
	Session   SessionConfig   `json:"session"`
	Auth      AuthConfig      `json:"auth"`
}

// Default creates a new Config with default values applied.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}
	return cfg, nil
}

// ApplyDefaults fills unset config fields with sensible defaults.
// The API base URL has no default and must be configured.
func (c *Config) ApplyDefaults() error {
	if c.LogFormat == "" {
		c.LogFormat = DefaultConfigLogFormat
	}
	if c.Telemetry.Exporter == "" {
		c.Telemetry.Exporter = DefaultConfigLogExporter
	}
	if c.Server.Host == "" {
		c.Server.Host = DefaultConfigServerHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultConfigServerPort
	}
	if c.Shutdown.Timeout == 0 {
		c.Shutdown.Timeout = DefaultConfigShutdownTimeout
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultConfigAPITimeout
	}
	if c.API.RefreshTimeout == 0 {
		c.API.RefreshTimeout = DefaultConfigAPIRefreshTimeout
	}
	if c.API.LoginField == "" {
		c.API.LoginField = DefaultConfigAPILoginField
	}
	if c.Session.CookiePrefix == "" {
		c.Session.CookiePrefix = DefaultConfigSessionCookiePrefix
	}
	if c.Session.LoginPath == "" {
		c.Session.LoginPath = DefaultConfigSessionLoginPath
	}
	if c.Session.RefreshMaxAge == 0 {
		c.Session.RefreshMaxAge = DefaultConfigSessionRefreshAge
	}
	if c.Auth.Storage == "" {
		c.Auth.Storage = DefaultConfigAuthStorage
	}

	// Dynamic defaults based on storage type
	switch c.Auth.Storage {
	case TokenStorageTypeFile:
		if c.Auth.File == "" {
			configDir, err := os.UserConfigDir()
			if err != nil {
				return fmt.Errorf("auth.file required (auto-detect failed: %w)", err)
			}
			c.Auth.File = filepath.Join(configDir, "townspark", "session.json")
		}
	case TokenStorageTypeKeyring:
		if c.Auth.KeyringUser == "" {
			currentUser, err := user.Current()
			if err != nil {
				return fmt.Errorf("auth.keyring_user required (auto-detect failed: %w)", err)
			}
			c.Auth.KeyringUser = currentUser.Username
		}
	case TokenStorageTypeEnv:
		if c.Auth.EnvPrefix == "" {
			c.Auth.EnvPrefix = DefaultConfigAuthEnvPrefix
		}
	}

	return nil
}

// Validate validates the configuration using struct tags and enum values.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	probe := &http.Cookie{Name: c.Session.CookiePrefix + session.AccessTokenKey, Value: "x"}
	if err := probe.Valid(); err != nil {
		return fmt.Errorf("invalid session.cookie_prefix: %w", err)
	}

	switch c.Auth.Storage {
	case TokenStorageTypeFile:
		if c.Auth.File == "" {
			return errors.New("file path required for file storage")
		}
	case TokenStorageTypeEnv:
		if c.Auth.EnvPrefix == "" {
			return errors.New("env_prefix required for env storage")
		}
	case TokenStorageTypeKeyring:
		if c.Auth.KeyringUser == "" {
			return errors.New("keyring_user required for keyring storage")
		}
	}

	return nil
}

// ObservabilityOptions derives the logging setup from the configuration.
func (c *Config) ObservabilityOptions() observability.Options {
	return observability.Options{
		Level:  c.LogLevel,
		Format: observability.Format(c.LogFormat),
		File: observability.FileOptions{
			Path:       c.LogFile.Path,
			MaxSizeMB:  c.LogFile.MaxSizeMB,
			MaxBackups: c.LogFile.MaxBackups,
			MaxAgeDays: c.LogFile.MaxAgeDays,
			Compress:   c.LogFile.Compress,
		},
		Exporter: c.Telemetry.Exporter,
	}
}

// NewClient creates an API client for the given session.
func (c *Config) NewClient(store *session.Store, opts ...apiclient.Option) (*apiclient.Client, error) {
	opts = append([]apiclient.Option{
		apiclient.WithTimeout(c.API.Timeout),
		apiclient.WithRefreshTimeout(c.API.RefreshTimeout),
		apiclient.WithLoginField(c.API.LoginField),
	}, opts...)
	return apiclient.New(c.API.BaseURL, store, opts...)
}
