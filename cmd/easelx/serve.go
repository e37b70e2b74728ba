package main

import (
	"context"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/easelx"
	"pkt.systems/easelx/httpapi"
	"pkt.systems/easelx/internal/appconfig"
	"pkt.systems/easelx/internal/catalog"
	"pkt.systems/easelx/internal/pipeline"
	"pkt.systems/pslog"
)

const stopTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	var cfgPath string
	var disableAuditTrails bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the easelx server",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			if disableAuditTrails {
				cfg.Logging.DisableAuditTrails = true
			}
			serverCfg, err := toServerConfig(cfg)
			if err != nil {
				return err
			}
			server, err := easelx.New(cmd.Context(), serverCfg, easelx.ServerDeps{Logger: logger})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
				defer cancel()
				if err := server.Stop(stopCtx); err != nil {
					logger.Warn("server stop failed", "err", err)
				}
			}()
			logger.Info("http server listening", "addr", serverCfg.HTTP.Addr)
			if err := server.Start(ctx); err != nil {
				return err
			}
			return server.Wait()
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().BoolVar(&disableAuditTrails, "disable-audit-trails", false, "disable audit trail logging for presence changes")
	return cmd
}

func toServerConfig(cfg appconfig.Config) (easelx.ServerConfig, error) {
	overflow, err := pipeline.ParseOverflow(cfg.Pipeline.Overflow)
	if err != nil {
		return easelx.ServerConfig{}, err
	}
	return easelx.ServerConfig{
		HTTP: toHTTPConfig(cfg),
		Pipeline: pipeline.Config{
			Capacity: cfg.Pipeline.Capacity,
			Workers:  cfg.Pipeline.Workers,
			Overflow: overflow,
		},
		Catalog: catalog.Config{
			Driver:   catalog.Driver(cfg.Catalog.Driver),
			Path:     cfg.Catalog.Path,
			DSN:      cfg.Catalog.DSN,
			MaxConns: int32(cfg.Catalog.MaxConns),
		},
		Auth:                toAuthConfig(cfg.Auth),
		PresenceHistory:     cfg.Presence.History,
		DisableAuditLogging: cfg.Logging.DisableAuditTrails,
	}, nil
}

func toHTTPConfig(cfg appconfig.Config) httpapi.Config {
	ws := cfg.WebSocket
	return httpapi.Config{
		Addr:            cfg.HTTP.Addr,
		SessionCookie:   cfg.HTTP.SessionCookie,
		SessionTTLHours: cfg.HTTP.SessionTTLHours,
		SessionFile:     filepath.Join(cfg.StateDir, "sessions.json"),
		BaseURL:         cfg.HTTP.BaseURL,
		BasePath:        cfg.HTTP.BasePath,
		WebSocket: httpapi.WebSocketConfig{
			SendQueue:       ws.SendQueue,
			MaxMessageBytes: ws.MaxMessageBytes,
			WriteWait:       time.Duration(ws.WriteWaitSeconds) * time.Second,
			PongWait:        time.Duration(ws.PongWaitSeconds) * time.Second,
			PingPeriod:      time.Duration(ws.PingPeriodSeconds) * time.Second,
			AllowedOrigins:  ws.AllowedOrigins,
		},
	}
}

func toAuthConfig(cfg appconfig.AuthConfig) easelx.AuthConfig {
	seeds := make([]easelx.SeedUser, 0, len(cfg.SeedUsers))
	for _, seed := range cfg.SeedUsers {
		seeds = append(seeds, easelx.SeedUser{
			ID:           seed.ID,
			Username:     seed.Username,
			Name:         seed.Name,
			Role:         seed.Role,
			PasswordHash: seed.PasswordHash,
			TOTPSecret:   seed.TOTPSecret,
		})
	}
	return easelx.AuthConfig{
		UserFile:  cfg.UserFile,
		SeedUsers: seeds,
	}
}
