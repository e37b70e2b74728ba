package main

import (
	"path/filepath"
	"testing"
	"time"

	"pkt.systems/easelx/internal/appconfig"
	"pkt.systems/easelx/internal/catalog"
	"pkt.systems/easelx/internal/pipeline"
)

func TestToServerConfigConvertsUnits(t *testing.T) {
	cfg, err := appconfig.DefaultConfig()
	if err != nil {
		t.Fatalf("default config: %v", err)
	}
	cfg.StateDir = "/var/lib/easelx"
	cfg.WebSocket.WriteWaitSeconds = 3
	cfg.WebSocket.PongWaitSeconds = 30
	cfg.WebSocket.PingPeriodSeconds = 20
	cfg.Pipeline.Overflow = "reject"
	cfg.Catalog.Driver = "postgres"
	cfg.Catalog.MaxConns = 7

	serverCfg, err := toServerConfig(cfg)
	if err != nil {
		t.Fatalf("toServerConfig: %v", err)
	}
	ws := serverCfg.HTTP.WebSocket
	if ws.WriteWait != 3*time.Second || ws.PongWait != 30*time.Second || ws.PingPeriod != 20*time.Second {
		t.Fatalf("unexpected websocket timings: %+v", ws)
	}
	if serverCfg.HTTP.SessionFile != filepath.Join("/var/lib/easelx", "sessions.json") {
		t.Fatalf("unexpected session file %q", serverCfg.HTTP.SessionFile)
	}
	if serverCfg.Pipeline.Overflow != pipeline.OverflowReject {
		t.Fatalf("expected reject overflow, got %q", serverCfg.Pipeline.Overflow)
	}
	if serverCfg.Catalog.Driver != catalog.DriverPostgres || serverCfg.Catalog.MaxConns != 7 {
		t.Fatalf("unexpected catalog config %+v", serverCfg.Catalog)
	}
	if len(serverCfg.Auth.SeedUsers) != 1 || serverCfg.Auth.SeedUsers[0].ID != 1 || serverCfg.Auth.SeedUsers[0].Role != "admin" {
		t.Fatalf("unexpected seed users %+v", serverCfg.Auth.SeedUsers)
	}
}

func TestToServerConfigRejectsUnknownOverflow(t *testing.T) {
	cfg, err := appconfig.DefaultConfig()
	if err != nil {
		t.Fatalf("default config: %v", err)
	}
	cfg.Pipeline.Overflow = "drop"
	if _, err := toServerConfig(cfg); err == nil {
		t.Fatalf("expected error for unknown overflow policy")
	}
}
