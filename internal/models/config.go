package models

// Config holds the application configuration
type Config struct {
	Matrix    MatrixConfig   `json:"matrix"`
	Bridge    BridgeConfig   `json:"bridge"`
	Database  DatabaseConfig `json:"database"`
	Server    ServerConfig   `json:"server"`
	Retry     RetryConfig    `json:"retry"`
	Templates Templates      `json:"templates"`
	LogLevel  string         `json:"log_level"`
}

// MatrixConfig holds homeserver related configuration
type MatrixConfig struct {
	HomeserverURL  string `json:"homeserver_url"`
	ServerName     string `json:"server_name"`
	BotUsername    string `json:"bot_username"`
	HTTPTimeoutSec int    `json:"httpTimeoutSec"`
}

// BridgeConfig holds bridge behavior configuration
type BridgeConfig struct {
	// DefaultRoomID receives inbound SMS that carry no resolvable mapping
	// token. Empty disables the fallback.
	DefaultRoomID   string `json:"defaultRoomId"`
	DefaultTimeZone string `json:"defaultTimeZone"`
	// AllowSupersetMatch widens room matching to rooms whose membership
	// is a superset of the desired participants. The default is an exact
	// match on the non-bot membership.
	AllowSupersetMatch bool `json:"allowSupersetMatch"`
	DrainIntervalSec   int  `json:"drainIntervalSec"`
}

// DatabaseConfig holds database related configurations
type DatabaseConfig struct {
	Path string `json:"path"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int    `json:"port"`
	WebhookSecret   string `json:"webhook_secret"`
	ReadTimeoutSec  int    `json:"readTimeoutSec"`
	WriteTimeoutSec int    `json:"writeTimeoutSec"`
}

// RetryConfig holds retry related configurations
type RetryConfig struct {
	InitialBackoffMs int `json:"initialBackoffMs"`
	MaxBackoffMs     int `json:"maxBackoffMs"`
	MaxAttempts      int `json:"maxAttempts"`
}

type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}
