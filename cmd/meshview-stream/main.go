package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"meshview/internal/config"
	"meshview/internal/identity"
	"meshview/internal/ingest"
	"meshview/internal/logging"
	"meshview/internal/stream"
	"meshview/internal/world"
	worldmongo "meshview/internal/world/mongo"
)

func main() {
	configPath := flag.String("config", "", "path to a config file (overrides the config/ directory)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "configuration error:", err)
		os.Exit(1)
	}

	log, err := logging.Initialize(cfg.Logging)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logging error:", err)
		os.Exit(1)
	}
	log.Info("starting meshview stream service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	projector, cleanup, err := buildProjector(ctx, cfg, log)
	if err != nil {
		log.Error("failed to initialize world projector", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	// Warm the model cache so the first subscribers get a snapshot without
	// waiting on a fetch. A failure here is not fatal; the detector retries
	// on its diff tick.
	warmCtx, warmCancel := context.WithTimeout(ctx, 15*time.Second)
	if _, err := projector.FetchModel(warmCtx); err != nil {
		log.Warn("initial model fetch failed", "error", err)
	}
	warmCancel()

	hub, err := stream.NewHub(cfg.Stream, log)
	if err != nil {
		log.Error("failed to initialize hub", "error", err)
		os.Exit(1)
	}

	detector := stream.NewDetector(hub, projector, cfg.Stream, log)
	detector.Start(ctx)
	defer detector.Stop()

	if cfg.Ingest.Enabled {
		bridge := ingest.NewBridge(cfg.Ingest, hub, log)
		if err := bridge.Start(ctx); err != nil {
			log.Error("failed to start ingest bridge", "error", err)
			os.Exit(1)
		}
		defer bridge.Stop()
	}

	verifier := identity.NewJWTVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	streamServer := stream.NewServer(hub, projector, verifier, cfg.Stream, log)

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           streamServer,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	go func() {
		log.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("forced shutdown", "error", err)
	}
	log.Info("server exited")
}

func buildProjector(ctx context.Context, cfg *config.Config, log *slog.Logger) (world.Projector, func(), error) {
	switch cfg.World.Source {
	case config.WorldSourceMongo:
		connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()

		p, err := worldmongo.NewProjector(connectCtx, cfg.World.Mongo.URI, cfg.World.Mongo.Database)
		if err != nil {
			return nil, nil, err
		}
		log.Info("world projector", "source", "mongo", "database", cfg.World.Mongo.Database)
		cleanup := func() {
			closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer closeCancel()
			_ = p.Close(closeCtx)
		}
		return p, cleanup, nil

	case config.WorldSourceFile:
		log.Info("world projector", "source", "file", "path", cfg.World.ModelFile)
		return world.NewFileProjector(cfg.World.ModelFile), func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown world source %q", cfg.World.Source)
	}
}
