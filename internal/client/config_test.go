package client

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/depmaths/messagerie/internal/models"
)

func TestDefaultConfigIsValid(t *testing.T) {
	req := require.New(t)
	config := DefaultConfig()

	req.NoError(config.Validate())
	req.Equal(10*time.Second, config.HistoryTimeout())
	req.Equal(10*time.Second, config.HandshakeTimeout())
	req.Nil(config.ReconnectStrategy())
}

func TestLoadConfig(t *testing.T) {
	req := require.New(t)
	path := filepath.Join(t.TempDir(), "client.toml")
	req.NoError(os.WriteFile(path, []byte(`
log_file = "/tmp/messagerie.log"

[server]
address = "https://chat.example.org"
history_group = "Professeurs"
history_timeout_seconds = 3

[reconnect]
enabled = true
max_retries = 4
initial_delay_ms = 250
max_delay_ms = 4000
backoff_factor = 1.5
jitter_percent = 0
`), 0644))

	config, err := LoadConfig(path)
	req.NoError(err)
	req.NoError(config.Validate())

	req.Equal("https://chat.example.org", config.Server.Address)
	req.Equal("Professeurs", config.Server.HistoryGroup)
	req.Equal(3*time.Second, config.HistoryTimeout())
	// Unset keys keep their defaults
	req.Equal(10*time.Second, config.HandshakeTimeout())
	req.Equal("/tmp/messagerie.log", config.LogFile)

	strategy := config.ReconnectStrategy()
	req.NotNil(strategy)
	req.Equal(4, strategy.MaxRetries)
	req.Equal(250*time.Millisecond, strategy.InitialDelay)
	req.Equal(4*time.Second, strategy.MaxDelay)
	req.Equal(1.5, strategy.BackoffFactor)
	req.Zero(strategy.Jitter)
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "broken.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server\naddress ="), 0644))
	_, err = LoadConfig(path)
	require.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{name: "empty address", mutate: func(c *Config) { c.Server.Address = "" }},
		{name: "not a url", mutate: func(c *Config) { c.Server.Address = "localhost" }},
		{name: "zero timeout", mutate: func(c *Config) { c.Server.HistoryTimeoutSeconds = 0 }},
		{name: "max below initial", mutate: func(c *Config) { c.Reconnect.MaxDelayMs = c.Reconnect.InitialDelayMs - 1 }},
		{name: "shrinking backoff", mutate: func(c *Config) { c.Reconnect.BackoffFactor = 0.5 }},
		{name: "jitter above 100", mutate: func(c *Config) { c.Reconnect.JitterPercent = 150 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)
			require.Error(t, config.Validate())
		})
	}
}

func TestConfig_ApplyEnv(t *testing.T) {
	req := require.New(t)
	t.Setenv("MESSAGERIE_SERVER_ADDRESS", "http://relay.local:9000")
	t.Setenv("MESSAGERIE_TOKEN", "from-env")
	t.Setenv("MESSAGERIE_DEBUG", "true")

	config := DefaultConfig()
	token, err := config.ApplyEnv()

	req.NoError(err)
	req.Equal("from-env", token)
	req.Equal("http://relay.local:9000", config.Server.Address)
	req.True(config.Debug)
}

func TestConfig_ApplyEnvRejectsBadValues(t *testing.T) {
	t.Setenv("MESSAGERIE_DEBUG", "maybe")

	_, err := DefaultConfig().ApplyEnv()

	require.Error(t, err)
}

func TestCredentialStore_RoundTrip(t *testing.T) {
	req := require.New(t)
	dir := filepath.Join(t.TempDir(), "nested")
	store, err := NewCredentialStore(dir)
	req.NoError(err)

	// Nothing saved yet
	cred, err := store.Load()
	req.NoError(err)
	req.False(cred.Present())

	user := models.NewUser("Alice", "alice@example.org", models.RoleStudent)
	req.NoError(store.Save(Credential{Token: "tok", User: user}))

	info, err := os.Stat(filepath.Join(dir, "credential.json"))
	req.NoError(err)
	req.Equal(os.FileMode(0600), info.Mode().Perm())

	cred, err = store.Load()
	req.NoError(err)
	req.Equal("tok", cred.Token)
	req.Equal(user.ID, cred.User.ID)
	req.Equal("Alice", cred.DisplayName())

	req.NoError(store.Clear())
	req.NoError(store.Clear())
	cred, err = store.Load()
	req.NoError(err)
	req.False(cred.Present())
}

func TestCredentialStore_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	store, err := NewCredentialStore(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "credential.json"), []byte("{"), 0600))

	_, err = store.Load()
	require.Error(t, err)
}

func TestReconnectStrategy(t *testing.T) {
	req := require.New(t)
	rs := &ReconnectStrategy{MaxRetries: 3, InitialDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond, BackoffFactor: 2}

	req.Equal(100*time.Millisecond, rs.NextDelay(0))
	req.Equal(200*time.Millisecond, rs.NextDelay(1))
	req.Equal(300*time.Millisecond, rs.NextDelay(2))
	req.Equal(300*time.Millisecond, rs.NextDelay(10))

	req.True(rs.ShouldRetry(2))
	req.False(rs.ShouldRetry(3))

	delay, ok := rs.Schedule(1)
	req.True(ok)
	req.Equal(200*time.Millisecond, delay)
	_, ok = rs.Schedule(3)
	req.False(ok)

	var disabled *ReconnectStrategy
	req.False(disabled.ShouldRetry(0))
	_, ok = disabled.Schedule(0)
	req.False(ok)
}

func TestReconnectStrategy_JitterShortensDelay(t *testing.T) {
	req := require.New(t)
	rs := &ReconnectStrategy{MaxRetries: 3, InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, BackoffFactor: 2, Jitter: 0.5}

	for i := 0; i < 50; i++ {
		delay := rs.NextDelay(1)
		req.GreaterOrEqual(delay, 100*time.Millisecond)
		req.LessOrEqual(delay, 200*time.Millisecond)
	}

	// Out of range jitter is clamped
	rs.Jitter = 3
	req.GreaterOrEqual(rs.NextDelay(0), time.Duration(0))
}
