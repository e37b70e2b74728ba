package appconfig

import (
	"os"
	"path/filepath"
)

// Config is the top-level application configuration.
type Config struct {
	ConfigVersion int             `mapstructure:"config_version" yaml:"config_version"`
	StateDir      string          `mapstructure:"state_dir" yaml:"state_dir"`
	HTTP          HTTPConfig      `mapstructure:"http" yaml:"http"`
	WebSocket     WebSocketConfig `mapstructure:"websocket" yaml:"websocket"`
	Pipeline      PipelineConfig  `mapstructure:"pipeline" yaml:"pipeline"`
	Presence      PresenceConfig  `mapstructure:"presence" yaml:"presence"`
	Catalog       CatalogConfig   `mapstructure:"catalog" yaml:"catalog"`
	Auth          AuthConfig      `mapstructure:"auth" yaml:"auth"`
	Logging       LoggingConfig   `mapstructure:"logging" yaml:"logging"`
}

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// HTTPConfig configures the HTTP server.
type HTTPConfig struct {
	Addr            string `mapstructure:"addr" yaml:"addr"`
	SessionCookie   string `mapstructure:"session_cookie" yaml:"session_cookie"`
	SessionTTLHours int    `mapstructure:"session_ttl_hours" yaml:"session_ttl_hours"`
	BaseURL         string `mapstructure:"base_url" yaml:"base_url"`
	BasePath        string `mapstructure:"base_path" yaml:"base_path"`
}

// WebSocketConfig tunes the edit socket transport.
type WebSocketConfig struct {
	SendQueue         int      `mapstructure:"send_queue" yaml:"send_queue"`
	MaxMessageBytes   int64    `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	WriteWaitSeconds  int      `mapstructure:"write_wait_seconds" yaml:"write_wait_seconds"`
	PongWaitSeconds   int      `mapstructure:"pong_wait_seconds" yaml:"pong_wait_seconds"`
	PingPeriodSeconds int      `mapstructure:"ping_period_seconds" yaml:"ping_period_seconds"`
	AllowedOrigins    []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

// PipelineConfig sizes the edit event pipeline. Zero workers means one per CPU.
type PipelineConfig struct {
	Capacity int    `mapstructure:"capacity" yaml:"capacity"`
	Workers  int    `mapstructure:"workers" yaml:"workers"`
	Overflow string `mapstructure:"overflow" yaml:"overflow"`
}

// PresenceConfig sizes the presence stream history.
type PresenceConfig struct {
	History int `mapstructure:"history" yaml:"history"`
}

// CatalogConfig selects the picture catalog backend.
type CatalogConfig struct {
	Driver   string `mapstructure:"driver" yaml:"driver"`
	Path     string `mapstructure:"path" yaml:"path"`
	DSN      string `mapstructure:"dsn" yaml:"dsn"`
	MaxConns int    `mapstructure:"max_conns" yaml:"max_conns"`
}

// AuthConfig configures auth storage and seed users.
type AuthConfig struct {
	UserFile  string     `mapstructure:"user_file" yaml:"user_file"`
	SeedUsers []SeedUser `mapstructure:"seed_users" yaml:"seed_users"`
}

// LoggingConfig controls audit logging behavior.
type LoggingConfig struct {
	DisableAuditTrails bool `mapstructure:"disable_audit_trails" yaml:"disable_audit_trails"`
}

// SeedUser seeds a user record in the auth store.
type SeedUser struct {
	ID           int64  `mapstructure:"id" yaml:"id"`
	Username     string `mapstructure:"username" yaml:"username"`
	Name         string `mapstructure:"name" yaml:"name"`
	Role         string `mapstructure:"role" yaml:"role"`
	PasswordHash string `mapstructure:"password_hash" yaml:"password_hash"`
	TOTPSecret   string `mapstructure:"totp_secret" yaml:"totp_secret"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, err
	}
	root := filepath.Join(home, ".easelx")
	return Config{
		ConfigVersion: CurrentConfigVersion,
		StateDir:      filepath.Join(root, "state"),
		HTTP: HTTPConfig{
			Addr:            ":27580",
			SessionCookie:   "easelx_session",
			SessionTTLHours: 720,
			BaseURL:         "",
			BasePath:        "",
		},
		WebSocket: WebSocketConfig{
			SendQueue:         64,
			MaxMessageBytes:   4096,
			WriteWaitSeconds:  10,
			PongWaitSeconds:   60,
			PingPeriodSeconds: 54,
			AllowedOrigins:    []string{},
		},
		Pipeline: PipelineConfig{
			Capacity: 1024,
			Workers:  0,
			Overflow: "block",
		},
		Presence: PresenceConfig{
			History: 128,
		},
		Catalog: CatalogConfig{
			Driver:   "file",
			Path:     filepath.Join(root, "catalog.yaml"),
			DSN:      "",
			MaxConns: 4,
		},
		Auth: AuthConfig{
			UserFile: filepath.Join(root, "users.json"),
			SeedUsers: []SeedUser{
				{
					ID:           1,
					Username:     "admin",
					Name:         "Administrator",
					Role:         "admin",
					PasswordHash: "$2a$12$PyjGUD8qnJie1MULQVHJdu9zuS/juh5W5RtDUVHv5HFb.62gNnY/q",
					TOTPSecret:   "JBSWY3DPEHPK3PXP",
				},
			},
		},
		Logging: LoggingConfig{
			DisableAuditTrails: false,
		},
	}, nil
}

// DefaultConfigPath returns the standard config path.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".easelx", "config.yaml"), nil
}
