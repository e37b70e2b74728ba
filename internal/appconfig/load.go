package appconfig

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"pkt.systems/easelx/internal/catalog"
	"pkt.systems/easelx/internal/pipeline"
)

// Load reads configuration from the provided path. If path is empty, uses DefaultConfigPath.
func Load(path string) (Config, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return Config{}, err
		}
		path = defaultPath
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetDefault("config_version", cfg.ConfigVersion)
	v.SetDefault("state_dir", cfg.StateDir)
	v.SetDefault("http.addr", cfg.HTTP.Addr)
	v.SetDefault("http.session_cookie", cfg.HTTP.SessionCookie)
	v.SetDefault("http.session_ttl_hours", cfg.HTTP.SessionTTLHours)
	v.SetDefault("http.base_url", cfg.HTTP.BaseURL)
	v.SetDefault("http.base_path", cfg.HTTP.BasePath)
	v.SetDefault("websocket.send_queue", cfg.WebSocket.SendQueue)
	v.SetDefault("websocket.max_message_bytes", cfg.WebSocket.MaxMessageBytes)
	v.SetDefault("websocket.write_wait_seconds", cfg.WebSocket.WriteWaitSeconds)
	v.SetDefault("websocket.pong_wait_seconds", cfg.WebSocket.PongWaitSeconds)
	v.SetDefault("websocket.ping_period_seconds", cfg.WebSocket.PingPeriodSeconds)
	v.SetDefault("websocket.allowed_origins", cfg.WebSocket.AllowedOrigins)
	v.SetDefault("pipeline.capacity", cfg.Pipeline.Capacity)
	v.SetDefault("pipeline.workers", cfg.Pipeline.Workers)
	v.SetDefault("pipeline.overflow", cfg.Pipeline.Overflow)
	v.SetDefault("presence.history", cfg.Presence.History)
	v.SetDefault("catalog.driver", cfg.Catalog.Driver)
	v.SetDefault("catalog.path", cfg.Catalog.Path)
	v.SetDefault("catalog.dsn", cfg.Catalog.DSN)
	v.SetDefault("catalog.max_conns", cfg.Catalog.MaxConns)
	v.SetDefault("auth.user_file", cfg.Auth.UserFile)
	v.SetDefault("auth.seed_users", cfg.Auth.SeedUsers)
	v.SetDefault("logging.disable_audit_trails", cfg.Logging.DisableAuditTrails)

	configLoaded := false
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return Config{}, err
		}
	} else {
		configLoaded = true
	}

	if configLoaded {
		if !v.InConfig("config_version") {
			return Config{}, fmt.Errorf("config_version is required; expected %d", CurrentConfigVersion)
		}
		if v.GetInt("config_version") != CurrentConfigVersion {
			return Config{}, fmt.Errorf("unsupported config_version %d; expected %d", v.GetInt("config_version"), CurrentConfigVersion)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	expandConfigEnv(&cfg)
	if err := validateHTTPConfig(cfg.HTTP); err != nil {
		return Config{}, err
	}
	if err := validateWebSocketConfig(cfg.WebSocket); err != nil {
		return Config{}, err
	}
	if err := validatePipelineConfig(cfg.Pipeline); err != nil {
		return Config{}, err
	}
	if err := validateCatalogConfig(cfg.Catalog); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validateWebSocketConfig(cfg WebSocketConfig) error {
	if cfg.SendQueue <= 0 {
		return fmt.Errorf("websocket.send_queue must be positive")
	}
	if cfg.MaxMessageBytes <= 0 {
		return fmt.Errorf("websocket.max_message_bytes must be positive")
	}
	if cfg.WriteWaitSeconds <= 0 || cfg.PongWaitSeconds <= 0 || cfg.PingPeriodSeconds <= 0 {
		return fmt.Errorf("websocket timings must be positive")
	}
	if cfg.PingPeriodSeconds >= cfg.PongWaitSeconds {
		return fmt.Errorf("websocket.ping_period_seconds must be shorter than websocket.pong_wait_seconds")
	}
	return nil
}

func validatePipelineConfig(cfg PipelineConfig) error {
	if cfg.Capacity <= 0 {
		return fmt.Errorf("pipeline.capacity must be positive")
	}
	if cfg.Workers < 0 {
		return fmt.Errorf("pipeline.workers must not be negative")
	}
	if _, err := pipeline.ParseOverflow(cfg.Overflow); err != nil {
		return fmt.Errorf("pipeline.overflow: %w", err)
	}
	return nil
}

func validateCatalogConfig(cfg CatalogConfig) error {
	switch catalog.Driver(strings.ToLower(strings.TrimSpace(cfg.Driver))) {
	case catalog.DriverFile:
		if strings.TrimSpace(cfg.Path) == "" {
			return fmt.Errorf("catalog.path is required for the file driver")
		}
	case catalog.DriverPostgres:
		if strings.TrimSpace(cfg.DSN) == "" {
			return fmt.Errorf("catalog.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unsupported catalog.driver %q", cfg.Driver)
	}
	return nil
}

func validateHTTPConfig(cfg HTTPConfig) error {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL != "" {
		parsed, err := url.Parse(baseURL)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("http.base_url must include scheme and host (e.g. https://example.com)")
		}
	}
	basePath := strings.TrimSpace(cfg.BasePath)
	if basePath != "" {
		if strings.Contains(basePath, "://") {
			return fmt.Errorf("http.base_path must be a path prefix, not a URL")
		}
		if strings.ContainsAny(basePath, "?#") {
			return fmt.Errorf("http.base_path must not include query or fragment")
		}
	}
	return nil
}

func expandConfigEnv(cfg *Config) {
	if cfg == nil {
		return
	}
	cfg.StateDir = expandEnv(cfg.StateDir)
	cfg.Catalog.Path = expandEnv(cfg.Catalog.Path)
	cfg.Catalog.DSN = expandEnv(cfg.Catalog.DSN)
	cfg.Auth.UserFile = expandEnv(cfg.Auth.UserFile)
}

func expandEnv(value string) string {
	if value == "" {
		return value
	}
	return os.Expand(value, func(key string) string {
		if key == "" {
			return ""
		}
		if val, ok := lookupEnv(key); ok {
			return val
		}
		return "$" + key
	})
}

func lookupEnv(key string) (string, bool) {
	if val, ok := os.LookupEnv(key); ok {
		return val, true
	}
	switch key {
	case "UID":
		return fmt.Sprintf("%d", os.Getuid()), true
	case "GID":
		return fmt.Sprintf("%d", os.Getgid()), true
	}
	return "", false
}

// WriteDefault writes the default config to the target path.
func WriteDefault(path string, overwrite bool) (string, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return "", err
		}
		path = defaultPath
	}

	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config already exists at %s", path)
		}
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return "", err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}
