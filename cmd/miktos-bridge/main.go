package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/miktos/bridge/internal/bridge"
	"github.com/miktos/bridge/internal/bridge/api"
	"github.com/miktos/bridge/internal/common/config"
	"github.com/miktos/bridge/internal/common/logger"
	"github.com/miktos/bridge/internal/connector"
	"github.com/miktos/bridge/internal/connector/docker"
	"github.com/miktos/bridge/internal/events/bus"
	"github.com/miktos/bridge/internal/generation"
	"github.com/miktos/bridge/internal/texture"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize logger
	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetDefault(log)

	log.Info("Starting Miktos bridge...")

	// 3. Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 4. Event bus: NATS when configured, in-process otherwise
	var eventBus bus.EventBus
	if cfg.NATS.URL != "" {
		natsBus, err := bus.NewNATSEventBus(cfg.NATS, log)
		if err != nil {
			log.Fatal("Failed to connect to NATS", zap.Error(err))
		}
		eventBus = natsBus
		log.Info("Connected to NATS event bus", zap.String("url", cfg.NATS.URL))
	} else {
		eventBus = bus.NewMemoryEventBus(log)
		log.Info("Using in-memory event bus")
	}
	defer eventBus.Close()

	// 5. Connectors
	var tools []connector.SceneTool
	if blenderCfg := cfg.Connectors.Blender; blenderCfg.Enabled {
		var runner connector.ContainerRunner
		if blenderCfg.LaunchMode == "docker" {
			dockerClient, err := docker.NewClient(cfg.Docker, log)
			if err != nil {
				log.Fatal("Failed to initialize Docker client", zap.Error(err))
			}
			defer dockerClient.Close()

			if err := dockerClient.Ping(ctx); err != nil {
				log.Fatal("Failed to connect to Docker daemon", zap.Error(err))
			}
			log.Info("Connected to Docker daemon")

			go func() {
				if err := dockerClient.PullImage(ctx, blenderCfg.DockerImage); err != nil {
					log.Warn("Failed to pull Blender image", zap.Error(err))
				}
			}()
			runner = dockerClient
		}
		tools = append(tools, connector.NewBlender(blenderCfg, runner, log))
		log.Info("Registered connector",
			zap.String("connector", connector.BlenderName),
			zap.String("launch_mode", blenderCfg.LaunchMode))
	}

	// 6. Generation engine and texture pipeline
	engine := generation.New(cfg.Generation, log)
	textures := texture.NewGenerator(engine, cfg.Generation, log)

	// 7. Bridge
	b := bridge.New(bridge.Options{
		Generation: engine,
		Textures:   textures,
		Connectors: tools,
		EventBus:   eventBus,
		Logger:     log,
	})
	if err := b.Initialize(ctx); err != nil {
		log.Error("Bridge initialization failed, serving in error state", zap.Error(err))
	} else {
		log.Info("Bridge ready", zap.String("mode", cfg.Generation.Mode))
	}

	// 8. Progress hub for websocket subscribers
	hub := api.NewHub(log)
	go hub.Run(ctx)
	progressSub := api.ForwardProgress(b, hub)
	defer b.UnsubscribeProgress(progressSub)

	// 9. Setup HTTP server with Gin
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(b, hub, log)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
	}

	// 10. Start server in goroutine
	go func() {
		log.Info("HTTP server listening", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	// 11. Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down Miktos bridge...")

	// 12. Graceful shutdown
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}

	if err := b.Shutdown(shutdownCtx); err != nil {
		log.Error("Bridge shutdown error", zap.Error(err))
	}

	log.Info("Miktos bridge stopped")
}
