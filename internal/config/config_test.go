package config

import (
	"os"
	"path/filepath"
	"testing"

	"smsbridge/internal/constants"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

const minimalConfig = `{
	"matrix": {
		"homeserver_url": "https://matrix.example.org",
		"server_name": "example.org",
		"bot_username": "smsbot"
	},
	"database": {
		"path": "/tmp/bridge.db"
	}
}`

func TestLoadConfig_Minimal(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, "https://matrix.example.org", cfg.Matrix.HomeserverURL)
	assert.Equal(t, "example.org", cfg.Matrix.ServerName)
	assert.Equal(t, "smsbot", cfg.Matrix.BotUsername)
	assert.Equal(t, "/tmp/bridge.db", cfg.Database.Path)

	// Optional settings fall back to defaults.
	assert.Equal(t, "UTC", cfg.Bridge.DefaultTimeZone)
	assert.Equal(t, constants.DefaultDrainIntervalSec, cfg.Bridge.DrainIntervalSec)
	assert.Equal(t, constants.DefaultHTTPTimeoutSec, cfg.Matrix.HTTPTimeoutSec)
	assert.Equal(t, constants.DefaultServerPort, cfg.Server.Port)
	assert.Equal(t, constants.DefaultRetryBackoffMs, cfg.Retry.InitialBackoffMs)
	assert.Equal(t, constants.DefaultMaxBackoffMs, cfg.Retry.MaxBackoffMs)
	assert.False(t, cfg.Bridge.AllowSupersetMatch)
}

func TestLoadConfig_FullOverrides(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `{
		"matrix": {
			"homeserver_url": "https://matrix.example.org",
			"server_name": "example.org",
			"bot_username": "smsbot",
			"httpTimeoutSec": 10
		},
		"bridge": {
			"defaultRoomId": "!default:example.org",
			"defaultTimeZone": "Europe/Berlin",
			"allowSupersetMatch": true,
			"drainIntervalSec": 5
		},
		"database": {"path": "/tmp/bridge.db"},
		"server": {"port": 9090, "readTimeoutSec": 5, "writeTimeoutSec": 5}
	}`))
	require.NoError(t, err)

	assert.Equal(t, "!default:example.org", cfg.Bridge.DefaultRoomID)
	assert.Equal(t, "Europe/Berlin", cfg.Bridge.DefaultTimeZone)
	assert.True(t, cfg.Bridge.AllowSupersetMatch)
	assert.Equal(t, 5, cfg.Bridge.DrainIntervalSec)
	assert.Equal(t, 10, cfg.Matrix.HTTPTimeoutSec)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestLoadConfig_MissingRequiredFields(t *testing.T) {
	tests := []struct {
		name    string
		config  string
		wantErr error
	}{
		{
			name:    "missing homeserver",
			config:  `{"matrix": {"server_name": "example.org", "bot_username": "smsbot"}, "database": {"path": "/tmp/x.db"}}`,
			wantErr: ErrMissingHomeserverURL,
		},
		{
			name:    "missing server name",
			config:  `{"matrix": {"homeserver_url": "https://m.example.org", "bot_username": "smsbot"}, "database": {"path": "/tmp/x.db"}}`,
			wantErr: ErrMissingServerName,
		},
		{
			name:    "missing bot username",
			config:  `{"matrix": {"homeserver_url": "https://m.example.org", "server_name": "example.org"}, "database": {"path": "/tmp/x.db"}}`,
			wantErr: ErrMissingBotUsername,
		},
		{
			name:    "missing database path",
			config:  `{"matrix": {"homeserver_url": "https://m.example.org", "server_name": "example.org", "bot_username": "smsbot"}}`,
			wantErr: ErrMissingDBPath,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tc.config))
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestLoadConfig_InvalidTimeZone(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, `{
		"matrix": {"homeserver_url": "https://m.example.org", "server_name": "example.org", "bot_username": "smsbot"},
		"bridge": {"defaultTimeZone": "Mars/Olympus_Mons"},
		"database": {"path": "/tmp/x.db"}
	}`))
	assert.Error(t, err)
}

func TestLoadConfig_InvalidJSON(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, `{not json`))
	assert.Error(t, err)
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestLoadConfig_PathTraversalRejected(t *testing.T) {
	_, err := LoadConfig("../../etc/passwd")
	assert.Error(t, err)
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	t.Setenv("MATRIX_HOMESERVER_URL", "https://other.example.org")
	t.Setenv("DB_PATH", "/tmp/env.db")
	t.Setenv("SMSBRIDGE_DEFAULT_ROOM_ID", "!env:example.org")
	t.Setenv("SMSBRIDGE_WEBHOOK_SECRET", "env-secret")

	cfg, err := LoadConfig(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, "https://other.example.org", cfg.Matrix.HomeserverURL)
	assert.Equal(t, "/tmp/env.db", cfg.Database.Path)
	assert.Equal(t, "!env:example.org", cfg.Bridge.DefaultRoomID)
	assert.Equal(t, "env-secret", cfg.Server.WebhookSecret)
}
