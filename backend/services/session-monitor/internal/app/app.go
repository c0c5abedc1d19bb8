package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"sparx/backend/libs/db"
	libredis "sparx/backend/libs/redis"
	"sparx/backend/services/session-monitor/internal/auth"
	"sparx/backend/services/session-monitor/internal/clients"
	"sparx/backend/services/session-monitor/internal/config"
	httpserver "sparx/backend/services/session-monitor/internal/http"
	"sparx/backend/services/session-monitor/internal/http/handlers"
	"sparx/backend/services/session-monitor/internal/monitor"
	redisstore "sparx/backend/services/session-monitor/internal/redis"
	"sparx/backend/services/session-monitor/internal/repository"
	"sparx/backend/services/session-monitor/internal/ws"
)

// App wires session-monitor dependencies.
type App struct {
	server      *httpserver.Server
	hub         *ws.Hub
	manager     *monitor.Manager
	journal     *monitor.AsyncJournal
	db          *sql.DB
	redisClient *redis.Client
	logger      *zap.Logger
}

// New constructs the application graph. Redis and the journal are optional.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	rules, err := cfg.PauseRules()
	if err != nil {
		return nil, err
	}

	a := &App{logger: logger}

	tokens := auth.NewTokenStore(cfg.Backend.Token, cfg.Backend.TokenFile)
	sessions := clients.NewSessionsClient(cfg.Backend.BaseURL, clients.NewDefaultHTTPClient(cfg.Backend.Timeout), tokens)

	var snapshots monitor.SnapshotStore
	redisClient, err := libredis.NewRedisClient(libredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		Optional: true,
	})
	switch {
	case errors.Is(err, libredis.ErrDisabled):
		logger.Info("redis disabled, snapshots off")
	case err != nil:
		return nil, fmt.Errorf("app: redis: %w", err)
	default:
		a.redisClient = redisClient
		snapshots = redisstore.NewStore(redisClient, cfg.Redis.TTL)
	}

	var (
		journal monitor.Journal
		events  handlers.EventLister
	)
	if cfg.Journal.DSN != "" {
		sqlDB, err := db.Open(cfg.Journal.Driver, cfg.Journal.DSN)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("app: journal: %w", err)
		}
		a.db = sqlDB
		repo := repository.NewEventRepository(sqlDB)
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Backend.Timeout)
		err = repo.EnsureSchema(ctx)
		cancel()
		if err != nil {
			a.Close()
			return nil, err
		}
		a.journal = monitor.NewAsyncJournal(repo, cfg.Journal.Buffer, cfg.Backend.Timeout, logger)
		journal, events = a.journal, repo
	} else {
		logger.Info("journal disabled")
	}

	hub := ws.NewHub(0, logger)
	opts := monitor.Options{
		PollInterval:       cfg.Monitor.PollInterval,
		StaleCheckInterval: cfg.Monitor.StaleCheckInterval,
		DeadTime:           cfg.Monitor.DeadTime,
		CountdownSeconds:   cfg.Monitor.CountdownSeconds,
		NoiseTolerance:     cfg.Monitor.NoiseTolerance,
		ResetTolerance:     cfg.Monitor.ResetTolerance,
		Thresholds:         cfg.Thresholds(),
		Rules:              rules,
		RequestTimeout:     cfg.Backend.Timeout,
	}
	deps := monitor.Deps{
		Sessions:    sessions,
		Credentials: tokens,
		Sink:        monitor.MultiSink{hub, monitor.SinkFunc(logTerminal(logger))},
		Snapshots:   snapshots,
		Journal:     journal,
		Logger:      logger,
	}
	manager := monitor.NewManager(func(sc monitor.SessionContext) *monitor.Controller {
		return monitor.NewController(sc, opts, deps)
	}, logger)

	wsServer := ws.NewServer(hub, ws.NewCommandProcessor(manager, cfg.Backend.Timeout), func() (monitor.State, bool) {
		c, err := manager.Current()
		if err != nil {
			return monitor.State{}, false
		}
		return c.Snapshot(), true
	}, 0, logger)

	router := httpserver.NewRouter(httpserver.RouterDeps{
		Monitor:       handlers.NewMonitorHandlers(manager, events, logger),
		WebSocket:     wsServer.HandleWS,
		HealthHandler: handlers.Health,
	}, auth.Middleware(cfg.HTTP.JWTSecret))

	a.server = httpserver.NewServer(cfg.HTTPAddress(), router, logger)
	a.hub = hub
	a.manager = manager
	return a, nil
}

// Addr returns the address the HTTP server is bound to.
func (a *App) Addr() string {
	return a.server.Addr()
}

// Ready is closed once the HTTP listener is bound.
func (a *App) Ready() <-chan struct{} {
	return a.server.Ready()
}

// Run serves HTTP and the renderer hub until ctx is done, then unmounts the session view.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.server.Run(ctx) })
	g.Go(func() error { return a.hub.Run(ctx) })
	g.Go(func() error { return a.manager.Run(ctx) })
	if a.journal != nil {
		g.Go(func() error { return a.journal.Run(ctx) })
	}
	return g.Wait()
}

// logTerminal records where each terminated view was sent, whether or not a renderer is attached.
func logTerminal(logger *zap.Logger) func(monitor.Event) {
	return func(e monitor.Event) {
		switch e.Type {
		case monitor.EventNavigate:
			logger.Info("renderer navigated",
				zap.String("session_id", e.SessionID),
				zap.String("target", string(e.Target)),
				zap.String("reason", e.Reason))
		case monitor.EventAlert:
			logger.Warn("renderer alert", zap.String("session_id", e.SessionID), zap.String("message", e.Message))
		}
	}
}

// Close releases resources.
func (a *App) Close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close db", zap.Error(err))
		}
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("failed to close redis", zap.Error(err))
		}
	}
}
