package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"github.com/townspark/townspark/internal/session"
	"github.com/townspark/townspark/internal/tokenstore"
)

func validConfig(t *testing.T) *Config {
	t.Helper()
	cfg := &Config{
		API:  APIConfig{BaseURL: "https://api.townspark.example"},
		Auth: AuthConfig{Storage: TokenStorageTypeMemory},
	}
	require.NoError(t, cfg.ApplyDefaults())
	return cfg
}

func TestConfig_ApplyDefaults(t *testing.T) {
	cfg := validConfig(t)

	assert.Equal(t, LogFormatText, cfg.LogFormat)
	assert.Equal(t, DefaultConfigServerHost, cfg.Server.Host)
	assert.Equal(t, uint16(DefaultConfigServerPort), cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.API.Timeout)
	assert.Equal(t, 15*time.Second, cfg.API.RefreshTimeout)
	assert.Equal(t, "email", cfg.API.LoginField)
	assert.Equal(t, "townspark_", cfg.Session.CookiePrefix)
	assert.Equal(t, "/login", cfg.Session.LoginPath)
	assert.Equal(t, 7*24*time.Hour, cfg.Session.RefreshMaxAge)
	require.NoError(t, cfg.Validate())
}

func TestConfig_StorageDefaults(t *testing.T) {
	cfg := &Config{API: APIConfig{BaseURL: "https://api.townspark.example"}}
	require.NoError(t, cfg.ApplyDefaults())
	assert.Equal(t, TokenStorageTypeFile, cfg.Auth.Storage)
	assert.Equal(t, "session.json", filepath.Base(cfg.Auth.File))

	cfg = &Config{Auth: AuthConfig{Storage: TokenStorageTypeEnv}}
	require.NoError(t, cfg.ApplyDefaults())
	assert.Equal(t, DefaultConfigAuthEnvPrefix, cfg.Auth.EnvPrefix)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "missing base url", mutate: func(c *Config) { c.API.BaseURL = "" }},
		{name: "malformed base url", mutate: func(c *Config) { c.API.BaseURL = "not a url" }},
		{name: "unknown log format", mutate: func(c *Config) { c.LogFormat = "xml" }},
		{name: "unknown exporter", mutate: func(c *Config) { c.Telemetry.Exporter = "zipkin" }},
		{name: "unknown storage", mutate: func(c *Config) { c.Auth.Storage = "cloud" }},
		{name: "unknown login field", mutate: func(c *Config) { c.API.LoginField = "phone" }},
		{name: "relative login path", mutate: func(c *Config) { c.Session.LoginPath = "login" }},
		{name: "invalid cookie prefix", mutate: func(c *Config) { c.Session.CookiePrefix = "bad prefix;" }},
		{name: "negative timeout", mutate: func(c *Config) { c.API.Timeout = -time.Second }},
		{name: "file storage without path", mutate: func(c *Config) {
			c.Auth.Storage = TokenStorageTypeFile
			c.Auth.File = ""
		}},
		{name: "keyring storage without user", mutate: func(c *Config) {
			c.Auth.Storage = TokenStorageTypeKeyring
			c.Auth.KeyringUser = ""
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestAuthConfig_NewTokenStore(t *testing.T) {
	keyring.MockInit()

	tests := []struct {
		name string
		cfg  AuthConfig
		want tokenstore.TokenStore
	}{
		{name: "file", cfg: AuthConfig{Storage: TokenStorageTypeFile, File: filepath.Join(t.TempDir(), "session.json")}, want: &tokenstore.FileStore{}},
		{name: "env", cfg: AuthConfig{Storage: TokenStorageTypeEnv, EnvPrefix: "TS_"}, want: &tokenstore.EnvStore{}},
		{name: "keyring", cfg: AuthConfig{Storage: TokenStorageTypeKeyring, KeyringUser: "ana"}, want: &tokenstore.KeyringStore{}},
		{name: "memory", cfg: AuthConfig{Storage: TokenStorageTypeMemory}, want: &tokenstore.MemoryStore{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := tt.cfg.NewTokenStore()
			require.NoError(t, err)
			assert.IsType(t, tt.want, store)
		})
	}

	_, err := (&AuthConfig{Storage: "cloud"}).NewTokenStore()
	assert.Error(t, err)
}

func TestAuthConfig_NewSession(t *testing.T) {
	cfg := AuthConfig{Storage: TokenStorageTypeFile, File: filepath.Join(t.TempDir(), "session.json")}

	store, err := cfg.NewSession()
	require.NoError(t, err)
	require.NoError(t, store.StoreTokens(context.Background(), session.TokenPair{Access: "a", Refresh: "r"}))

	// A second session over the same file sees the tokens.
	again, err := cfg.NewSession()
	require.NoError(t, err)
	assert.Equal(t, session.Authenticated, again.State(context.Background()))
}

func TestConfig_NewClient(t *testing.T) {
	cfg := validConfig(t)
	store, err := cfg.Auth.NewSession()
	require.NoError(t, err)

	client, err := cfg.NewClient(store)
	require.NoError(t, err)
	assert.Same(t, store, client.Session())
}

func TestNew(t *testing.T) {
	cfg := validConfig(t)
	cfg.Server.Port = 0

	a, err := New(cfg)
	require.NoError(t, err)
	assert.NotNil(t, a.gateway)

	_, err = New(&Config{})
	assert.Error(t, err)
}
