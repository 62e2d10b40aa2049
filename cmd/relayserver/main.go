// Package main provides the relay server binary: a WebSocket endpoint
// that fans scene and presence events out to collaborating editor clients
// in the same room.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/atelier3d/relay/internal/config"
	"github.com/atelier3d/relay/internal/observability"
	"github.com/atelier3d/relay/internal/relay"
	"github.com/atelier3d/relay/internal/server"
	"github.com/atelier3d/relay/internal/ws"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting relay server",
		zap.String("addr", cfg.WebSocket.Addr()),
	)

	registry := relay.NewRegistry()
	store := relay.NewStore()
	dispatcher := relay.NewDispatcher(registry, logger)
	handler := relay.NewHandler(registry, store, dispatcher, logger)

	status := func() ws.Status {
		return ws.Status{
			Connections: registry.ConnectionCount(),
			Rooms:       store.RoomCount(),
		}
	}
	acceptor := ws.NewAcceptor(cfg.WebSocket, handler, status, logger)

	lifecycle := server.NewLifecycle(logger, cfg.Server.ShutdownTimeout)
	lifecycle.Add("websocket", &server.FuncService{
		StartFn: acceptor.ListenAndServe,
		StopFn:  acceptor.Stop,
	})

	logger.Info("relay server initialized",
		zap.Duration("startup", time.Since(start)),
		zap.String("addr", cfg.WebSocket.Addr()),
	)

	if err := lifecycle.Run(context.Background()); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
