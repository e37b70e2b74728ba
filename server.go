package easelx

import (
	"context"
	"errors"
	"sync"

	"pkt.systems/easelx/core"
	"pkt.systems/easelx/httpapi"
	"pkt.systems/easelx/internal/access"
	"pkt.systems/easelx/internal/appconfig"
	"pkt.systems/easelx/internal/auth"
	"pkt.systems/easelx/internal/catalog"
	"pkt.systems/easelx/internal/eventbus"
	"pkt.systems/easelx/internal/pipeline"
	"pkt.systems/pslog"
)

// Server composes the HTTP API, the edit coordinator and its event pipeline.
type Server interface {
	Start(ctx context.Context) error
	Wait() error
	Stop(ctx context.Context) error
}

// ServerConfig configures the compositor.
type ServerConfig struct {
	HTTP                httpapi.Config
	Pipeline            pipeline.Config
	Catalog             catalog.Config
	Auth                AuthConfig
	PresenceHistory     int
	DisableAuditLogging bool
}

// AuthConfig defines authentication storage settings.
type AuthConfig struct {
	UserFile  string
	SeedUsers []SeedUser
}

// SeedUser seeds an initial user record.
type SeedUser struct {
	ID           int64
	Username     string
	Name         string
	Role         string
	PasswordHash string
	TOTPSecret   string
}

// ServerDeps captures optional dependencies. A nil Catalog opens the one
// described by ServerConfig.Catalog.
type ServerDeps struct {
	Logger   pslog.Logger
	Catalog  catalog.Store
	Presence core.PresenceSink
}

// New constructs a composable easelx server.
func New(ctx context.Context, cfg ServerConfig, deps ServerDeps) (Server, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(ctx)
	}

	authStore, err := auth.NewStoreWithLogger(cfg.Auth.UserFile, toSeedUsers(cfg.Auth.SeedUsers), logger)
	if err != nil {
		return nil, err
	}

	store := deps.Catalog
	ownsCatalog := false
	if store == nil {
		store, err = catalog.Open(ctx, cfg.Catalog, logger)
		if err != nil {
			return nil, err
		}
		ownsCatalog = true
	}

	bus := eventbus.New(logger, cfg.PresenceHistory)
	var audit core.PresenceSink
	if !cfg.DisableAuditLogging {
		audit = auditTrail{log: logger.With("component", "audit")}
	}
	coord := core.NewCoordinator(core.Deps{
		Presence: newPresenceSink(bus, audit, deps.Presence),
		Logger:   logger,
	})

	pipeCfg := cfg.Pipeline
	if pipeCfg.Logger == nil {
		pipeCfg.Logger = logger
	}
	events, err := pipeline.New[core.Event](pipeCfg, coord.HandleEvent)
	if err != nil {
		if ownsCatalog {
			_ = store.Close()
		}
		return nil, err
	}

	httpSrv, err := httpapi.NewServer(cfg.HTTP, httpapi.Deps{
		Auth:        authStore,
		Catalog:     store,
		Access:      access.New(store),
		Events:      events,
		Presence:    bus,
		Coordinator: coord,
	})
	if err != nil {
		if ownsCatalog {
			_ = store.Close()
		}
		return nil, err
	}

	return &compositeServer{
		cfg:         cfg,
		httpSrv:     httpSrv,
		events:      events,
		catalog:     store,
		ownsCatalog: ownsCatalog,
	}, nil
}

type compositeServer struct {
	cfg         ServerConfig
	httpSrv     *httpapi.Server
	events      *pipeline.Pipeline[core.Event]
	catalog     catalog.Store
	ownsCatalog bool
	logger      pslog.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	errCh   chan error
	started bool
	stopped bool
}

func (s *compositeServer) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		pslog.Ctx(ctx).Warn("server start rejected", "reason", "already started")
		return errors.New("server already started")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.errCh = make(chan error, 1)
	s.started = true
	s.logger = pslog.Ctx(s.ctx)
	s.mu.Unlock()

	log := s.logger
	log.Info(
		"server start",
		"http_addr", s.cfg.HTTP.Addr,
		"http_base_url", s.cfg.HTTP.BaseURL,
		"http_base_path", s.cfg.HTTP.BasePath,
		"catalog", string(s.cfg.Catalog.Driver),
		"pipeline_capacity", s.cfg.Pipeline.Capacity,
		"pipeline_workers", s.cfg.Pipeline.Workers,
		"pipeline_overflow", string(s.cfg.Pipeline.Overflow),
	)
	if s.events != nil {
		if err := s.events.Start(s.ctx); err != nil {
			s.cancel()
			return err
		}
	}
	if s.httpSrv != nil {
		s.httpSrv.SetBaseContext(s.ctx)
		go func() {
			if err := httpapi.ListenAndServe(s.ctx, s.cfg.HTTP.Addr, s.httpSrv.Handler()); err != nil {
				log.Error("http server failed", "err", err)
				s.errCh <- err
			}
		}()
	}
	return nil
}

func (s *compositeServer) Wait() error {
	s.mu.Lock()
	ctx := s.ctx
	errCh := s.errCh
	started := s.started
	s.mu.Unlock()
	if !started {
		return errors.New("server not started")
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if err != nil {
			pslog.Ctx(ctx).Error("server stopped", "err", err)
			_ = s.Stop(context.Background())
			return err
		}
		return nil
	}
}

func (s *compositeServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	started := s.started
	stopped := s.stopped
	s.stopped = true
	log := s.logger
	s.mu.Unlock()
	if !started || stopped {
		return nil
	}
	if log == nil {
		log = pslog.Ctx(context.Background())
	}
	log.Info("server stop requested")
	if cancel != nil {
		cancel()
	}
	if ctx == nil {
		ctx = context.Background()
	}
	var stopErr error
	if s.events != nil {
		if err := s.events.Stop(ctx); err != nil {
			log.Warn("server pipeline stop failed", "err", err)
			stopErr = err
		} else {
			stats := s.events.Stats()
			log.Info("server pipeline stop ok", "handled", stats.Handled, "rejected", stats.Rejected, "panics", stats.Panics)
		}
	}
	if s.ownsCatalog && s.catalog != nil {
		if err := s.catalog.Close(); err != nil {
			log.Warn("server catalog close failed", "err", err)
		}
	}
	if stopErr != nil {
		return stopErr
	}
	log.Info("server stopped")
	return nil
}

func toSeedUsers(users []SeedUser) []appconfig.SeedUser {
	if len(users) == 0 {
		return nil
	}
	out := make([]appconfig.SeedUser, 0, len(users))
	for _, user := range users {
		out = append(out, appconfig.SeedUser{
			ID:           user.ID,
			Username:     user.Username,
			Name:         user.Name,
			Role:         user.Role,
			PasswordHash: user.PasswordHash,
			TOTPSecret:   user.TOTPSecret,
		})
	}
	return out
}
