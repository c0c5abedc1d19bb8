package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"sparx/backend/libs/logging"
	httpserver "sparx/backend/services/session-monitor/internal/http"
	"sparx/backend/services/session-monitor/internal/simulator"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := simulator.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, err := logging.NewLogger(logging.Options{Service: "session-simulator"})
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	meter := simulator.NewMeter(cfg.MeterOptions())
	if as := cfg.AutoStart; as.SessionID != "" {
		meter.StartSession(simulator.Session{
			SessionID:      as.SessionID,
			DeviceID:       as.DeviceID,
			AmountPaid:     as.AmountPaid,
			EnergySelected: as.EnergySelected,
		})
		logger.Info("simulated session started", zap.String("session_id", as.SessionID))
	}

	server := httpserver.NewServer(cfg.HTTPAddress(), simulator.NewHandlers(meter, cfg.Token, logger).Router(), logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(ctx) })
	g.Go(func() error { return meter.Run(ctx, cfg.Tick) })
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("simulator stopped with error", zap.Error(err))
	}
}
