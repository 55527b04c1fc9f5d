package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
)

var validate = validator.New()

// Config holds the client configuration
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Reconnect ReconnectConfig `toml:"reconnect"`
	LogFile   string          `toml:"log_file"`
	Debug     bool            `toml:"debug"`
}

// ServerConfig holds the remote service settings
type ServerConfig struct {
	Address               string `toml:"address" validate:"required,url"`
	HistoryGroup          string `toml:"history_group"`
	HistoryTimeoutSeconds int    `toml:"history_timeout_seconds" validate:"gte=1,lte=300"`
	HandshakeTimeoutSecs  int    `toml:"handshake_timeout_seconds" validate:"gte=1,lte=300"`
}

// ReconnectConfig configures the optional reconnect policy
type ReconnectConfig struct {
	Enabled        bool    `toml:"enabled"`
	MaxRetries     int     `toml:"max_retries" validate:"gte=0"`
	InitialDelayMs int     `toml:"initial_delay_ms" validate:"gte=0"`
	MaxDelayMs     int     `toml:"max_delay_ms" validate:"gtefield=InitialDelayMs"`
	BackoffFactor  float64 `toml:"backoff_factor" validate:"gte=1"`
	JitterPercent  int     `toml:"jitter_percent" validate:"gte=0,lte=100"`
}

// EnvOverrides are read from MESSAGERIE_* environment variables
type EnvOverrides struct {
	ServerAddress string `envconfig:"SERVER_ADDRESS"`
	Token         string `envconfig:"TOKEN"`
	Debug         bool   `envconfig:"DEBUG"`
}

// DefaultConfig returns the default client configuration
func DefaultConfig() *Config {
	def := DefaultReconnectStrategy()
	return &Config{
		Server: ServerConfig{
			Address:               "http://localhost:5000",
			HistoryTimeoutSeconds: 10,
			HandshakeTimeoutSecs:  10,
		},
		Reconnect: ReconnectConfig{
			Enabled:        false,
			MaxRetries:     def.MaxRetries,
			InitialDelayMs: int(def.InitialDelay / time.Millisecond),
			MaxDelayMs:     int(def.MaxDelay / time.Millisecond),
			BackoffFactor:  def.BackoffFactor,
			JitterPercent:  int(def.Jitter * 100),
		},
	}
}

// LoadConfig reads a TOML file over the defaults. A missing path yields the defaults.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()
	if path == "" {
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return config, nil
}

// FindConfig returns the first existing default config path, or ""
func FindConfig() string {
	paths := []string{
		"./messagerie.toml",
		"./config/client.toml",
		os.ExpandEnv("$HOME/.config/messagerie/client.toml"),
	}
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// ApplyEnv overlays MESSAGERIE_* environment variables and returns the token override
func (c *Config) ApplyEnv() (string, error) {
	var env EnvOverrides
	if err := envconfig.Process("messagerie", &env); err != nil {
		return "", fmt.Errorf("failed to read environment: %w", err)
	}
	if env.ServerAddress != "" {
		c.Server.Address = env.ServerAddress
	}
	if env.Debug {
		c.Debug = true
	}
	return env.Token, nil
}

// Validate checks the configuration
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// HistoryTimeout returns the history request timeout
func (c *Config) HistoryTimeout() time.Duration {
	return time.Duration(c.Server.HistoryTimeoutSeconds) * time.Second
}

// HandshakeTimeout returns the WebSocket handshake timeout
func (c *Config) HandshakeTimeout() time.Duration {
	return time.Duration(c.Server.HandshakeTimeoutSecs) * time.Second
}

// ReconnectStrategy returns the configured policy, or nil when reconnection is off
func (c *Config) ReconnectStrategy() *ReconnectStrategy {
	if !c.Reconnect.Enabled {
		return nil
	}
	return &ReconnectStrategy{
		MaxRetries:    c.Reconnect.MaxRetries,
		InitialDelay:  time.Duration(c.Reconnect.InitialDelayMs) * time.Millisecond,
		MaxDelay:      time.Duration(c.Reconnect.MaxDelayMs) * time.Millisecond,
		BackoffFactor: c.Reconnect.BackoffFactor,
		Jitter:        float64(c.Reconnect.JitterPercent) / 100,
	}
}

// CredentialStore persists the credential between runs
type CredentialStore struct {
	path string
	mu   sync.RWMutex
}

// NewCredentialStore creates a store writing credential.json inside dir
func NewCredentialStore(dir string) (*CredentialStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}
	return &CredentialStore{path: filepath.Join(dir, "credential.json")}, nil
}

// DefaultConfigDir returns ~/.messagerie
func DefaultConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".messagerie"), nil
}

// Load returns the saved credential, or an absent one if nothing was saved
func (cs *CredentialStore) Load() (Credential, error) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	data, err := os.ReadFile(cs.path)
	if errors.Is(err, os.ErrNotExist) {
		return Credential{}, nil
	}
	if err != nil {
		return Credential{}, fmt.Errorf("failed to read credential: %w", err)
	}

	var cred Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return Credential{}, fmt.Errorf("failed to parse credential: %w", err)
	}
	return cred, nil
}

// Save writes the credential atomically
func (cs *CredentialStore) Save(cred Credential) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	data, err := json.MarshalIndent(cred, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal credential: %w", err)
	}

	// Write to temp file first (atomic write)
	tempFile := cs.path + ".tmp"
	if err := os.WriteFile(tempFile, data, 0600); err != nil {
		return fmt.Errorf("failed to write credential: %w", err)
	}
	if err := os.Rename(tempFile, cs.path); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to save credential: %w", err)
	}
	return nil
}

// Clear removes the saved credential
func (cs *CredentialStore) Clear() error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if err := os.Remove(cs.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove credential: %w", err)
	}
	return nil
}
