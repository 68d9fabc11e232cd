package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/judgegodwins/chess-relay/api"
	"github.com/judgegodwins/chess-relay/engine"
	"github.com/judgegodwins/chess-relay/room"
	"github.com/judgegodwins/chess-relay/rules"
	"github.com/judgegodwins/chess-relay/store"
	"github.com/judgegodwins/chess-relay/util"
	"go.uber.org/zap"
)

func main() {
	config, err := util.LoadConfig()

	if err != nil {
		log.Fatal(err)
	}

	logger, err := util.NewLogger(config.LogLevel)

	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := util.SetupTracing(ctx, "chess-relay", config.OTelEndpoint)

	if err != nil {
		logger.Fatal("could not set up tracing", zap.Error(err))
	}

	positions, err := store.Open(ctx, config.StoreURL, config.StoreTTL)

	if err != nil {
		logger.Fatal("could not open store", zap.Error(err))
	}
	defer positions.Close()

	engineSide, err := rules.ParseSide(config.EngineSide)

	if err != nil {
		logger.Fatal("invalid engine side", zap.Error(err))
	}

	opts := room.Options{
		Store:      positions,
		Rules:      rules.New(),
		EngineSide: engineSide,
		MoveTime:   config.EngineMoveTime,
		Logger:     logger,
	}

	if config.EngineEnabled() {
		opts.Engine = engine.NewUCI(engine.UCIOptions{Path: config.EnginePath})
		logger.Info("engine enabled",
			zap.String("path", config.EnginePath),
			zap.String("side", string(engineSide)),
			zap.Duration("move_time", config.EngineMoveTime),
		)
	}

	registry := room.NewRegistry(opts)

	janitor := room.NewJanitor(room.JanitorOptions{
		Registry: registry,
		Interval: config.JanitorInterval,
		IdleTTL:  config.RoomIdleTTL,
		Logger:   logger,
	})
	go janitor.Start(ctx)

	server := api.NewServer(config, registry, logger)

	go func() {
		if err := server.Start(); err != nil {
			logger.Error("server stopped", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", zap.Error(err))
	}

	registry.Close()

	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("tracing shutdown", zap.Error(err))
	}
}
