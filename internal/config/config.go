package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"smsbridge/internal/constants"
	"smsbridge/internal/models"
	"smsbridge/internal/validation"
)

var (
	ErrMissingHomeserverURL = models.ConfigError{Message: "missing Matrix homeserver URL"}
	ErrMissingServerName    = models.ConfigError{Message: "missing Matrix server name"}
	ErrMissingBotUsername   = models.ConfigError{Message: "missing bridge bot username"}
	ErrMissingDBPath        = models.ConfigError{Message: "missing database path"}
)

func LoadConfig(path string) (*models.Config, error) {
	// Validate config file path to prevent directory traversal
	if err := validation.ValidateFilePath(path); err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	file, err := os.ReadFile(path) // #nosec G304 - Path validated above
	if err != nil {
		return nil, err
	}

	var config models.Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, err
	}

	applyEnvironmentOverrides(&config)

	if err := validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func validate(c *models.Config) error {
	if c.Matrix.HomeserverURL == "" {
		return ErrMissingHomeserverURL
	}
	if c.Matrix.ServerName == "" {
		return ErrMissingServerName
	}
	if c.Matrix.BotUsername == "" {
		return ErrMissingBotUsername
	}
	if c.Database.Path == "" {
		return ErrMissingDBPath
	}

	if c.Bridge.DefaultTimeZone == "" {
		c.Bridge.DefaultTimeZone = "UTC"
	}
	if _, err := time.LoadLocation(c.Bridge.DefaultTimeZone); err != nil {
		return models.ConfigError{Message: fmt.Sprintf("invalid default time zone %q", c.Bridge.DefaultTimeZone)}
	}

	if c.Bridge.DrainIntervalSec <= 0 {
		c.Bridge.DrainIntervalSec = constants.DefaultDrainIntervalSec
	}
	if c.Matrix.HTTPTimeoutSec <= 0 {
		c.Matrix.HTTPTimeoutSec = constants.DefaultHTTPTimeoutSec
	}
	if c.Server.Port <= 0 {
		c.Server.Port = constants.DefaultServerPort
	}
	if c.Server.ReadTimeoutSec <= 0 {
		c.Server.ReadTimeoutSec = constants.DefaultServerReadTimeoutSec
	}
	if c.Server.WriteTimeoutSec <= 0 {
		c.Server.WriteTimeoutSec = constants.DefaultServerWriteTimeoutSec
	}
	if c.Retry.InitialBackoffMs <= 0 {
		c.Retry.InitialBackoffMs = constants.DefaultRetryBackoffMs
	}
	if c.Retry.MaxBackoffMs <= 0 {
		c.Retry.MaxBackoffMs = constants.DefaultMaxBackoffMs
	}

	return nil
}

func applyEnvironmentOverrides(c *models.Config) {
	if url := os.Getenv("MATRIX_HOMESERVER_URL"); url != "" {
		c.Matrix.HomeserverURL = url
	}
	if path := os.Getenv("DB_PATH"); path != "" {
		c.Database.Path = path
	}
	if roomID := os.Getenv("SMSBRIDGE_DEFAULT_ROOM_ID"); roomID != "" {
		c.Bridge.DefaultRoomID = roomID
	}

	// SECURITY: webhook secrets should come from the environment
	if secret := os.Getenv("SMSBRIDGE_WEBHOOK_SECRET"); secret != "" {
		c.Server.WebhookSecret = secret
	}
}
