package httpapi

import "time"

// Config defines HTTP API and edit socket settings.
type Config struct {
	Addr            string
	SessionCookie   string
	SessionTTLHours int
	SessionFile     string
	BaseURL         string
	BasePath        string
	WebSocket       WebSocketConfig
}

// WebSocketConfig tunes each edit socket.
type WebSocketConfig struct {
	SendQueue       int
	MaxMessageBytes int64
	WriteWait       time.Duration
	PongWait        time.Duration
	PingPeriod      time.Duration
	AllowedOrigins  []string
}

func (c WebSocketConfig) withDefaults() WebSocketConfig {
	if c.SendQueue <= 0 {
		c.SendQueue = 64
	}
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = 4096
	}
	if c.WriteWait <= 0 {
		c.WriteWait = 10 * time.Second
	}
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
	if c.PingPeriod <= 0 || c.PingPeriod >= c.PongWait {
		c.PingPeriod = c.PongWait * 9 / 10
	}
	return c
}
