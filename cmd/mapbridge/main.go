package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/open-teleop/mapbridge/domain/command"
	"github.com/open-teleop/mapbridge/domain/console"
	"github.com/open-teleop/mapbridge/domain/diagnostic"
	"github.com/open-teleop/mapbridge/domain/telemetry"
	"github.com/open-teleop/mapbridge/pkg/api"
	"github.com/open-teleop/mapbridge/pkg/config"
	customlog "github.com/open-teleop/mapbridge/pkg/log"
	"github.com/open-teleop/mapbridge/pkg/slot"
	"github.com/open-teleop/mapbridge/pkg/wamp"
	"github.com/open-teleop/mapbridge/services"
)

func main() {
	// Load bootstrap configuration; an unset path runs on defaults
	cfg, err := config.LoadBootstrapConfig(os.Getenv("MAPBRIDGE_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Get port from environment variable, falling back to the config
	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid PORT %q: %v\n", port, err)
			os.Exit(1)
		}
		cfg.Server.HTTPPort = p
	}

	logger, err := customlog.NewLogrusLogger(cfg.Logging.Level, cfg.Logging.LogPath, customlog.FileOptions{
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger.Infof("Map bridge starting: router=%s realm=%s", cfg.Router.URL, cfg.Router.Realm)

	// Shared slots between the session and the console
	samples := slot.New[telemetry.Sample]()
	commands := slot.New[command.Command]()

	// Initialize domain services
	diagnosticService := diagnostic.NewDiagnosticService()
	ingestor := telemetry.NewIngestor(samples, diagnosticService, logger.WithField("component", "telemetry"))
	dispatcher := command.NewDispatcher(commands, command.Topics{
		Position: cfg.Topics.Position,
		PID:      cfg.Topics.PID,
	}, diagnosticService, logger.WithField("component", "dispatcher"))
	mapConsole := console.NewConsole(samples, commands, logger.WithField("component", "console"))

	sessionLogger := logger.WithField("component", "session")
	lifecycle := services.NewSessionLifecycle(
		&services.WAMPDialer{
			Config: wamp.Config{
				URL:              cfg.Router.URL,
				Realm:            cfg.Router.Realm,
				HandshakeTimeout: cfg.HandshakeTimeout(),
				RequestTimeout:   cfg.RequestTimeout(),
				KeepAlive:        cfg.KeepAlive(),
				EventBuffer:      cfg.Session.EventBuffer,
			},
			Logger: sessionLogger,
		},
		ingestor,
		dispatcher,
		diagnosticService,
		services.LifecycleOptions{
			Procedure:      cfg.Session.Procedure,
			TelemetryTopic: cfg.Topics.Telemetry,
			TickInterval:   cfg.TickInterval(),
			SetupTimeout:   cfg.SetupTimeout(),
		},
		sessionLogger,
	)
	supervisor := services.NewReconnectSupervisor(lifecycle, services.RetryPolicy{
		Interval:    cfg.ReconnectInterval(),
		MaxInterval: cfg.MaxReconnectInterval(),
	}, diagnosticService, logger.WithField("component", "supervisor"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	supervisorDone := make(chan struct{})
	go func() {
		defer close(supervisorDone)
		if err := supervisor.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Errorf("Reconnect supervisor exited: %v", err)
		}
	}()

	// Console API
	app := api.NewServer("UAV Sim Map Bridge", cfg.Logging.Level == "debug")
	api.RegisterMapRoutes(app, mapConsole, diagnosticService, logger.WithField("component", "api"))
	api.RegisterConfigRoutes(app, cfg, logger.WithField("component", "api"))

	if !cfg.Server.Disabled {
		go func() {
			logger.Infof("Server starting on port %d", cfg.Server.HTTPPort)
			if err := app.Listen(fmt.Sprintf(":%d", cfg.Server.HTTPPort)); err != nil {
				logger.Fatalf("Failed to start server: %v", err)
			}
		}()
	} else {
		logger.Infof("Console server disabled")
	}

	// Set up graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Infof("Shutting down...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if !cfg.Server.Disabled {
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			logger.Errorf("Server forced to shutdown: %v", err)
		}
	}

	select {
	case <-supervisorDone:
	case <-shutdownCtx.Done():
		logger.Warnf("Session did not stop before the shutdown deadline")
	}

	logger.Infof("Map bridge exited properly")
}
