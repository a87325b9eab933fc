package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/hashicorp/go-hclog"
	"github.com/urfave/cli/v2"

	"github.com/Tyrowin/gochat/internal/auth"
	"github.com/Tyrowin/gochat/internal/server"
	"github.com/Tyrowin/gochat/internal/store"
)

// Build information, set via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "gochat",
		Usage:   "Real-time chat with cookie sessions",
		Version: fmt.Sprintf("%s (commit: %s)", version, commit),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML configuration file",
				EnvVars: []string{"GOCHAT_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "port",
				Usage: "Listen address, e.g. :4000",
			},
			&cli.StringFlag{
				Name:  "state-backend",
				Usage: "State backend: file or badger",
			},
			&cli.StringFlag{
				Name:  "state-path",
				Usage: "State file (file backend) or directory (badger backend)",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level: trace, debug, info, warn, error",
			},
		},
		Action: run,
	}
}

func loadConfig(c *cli.Context) (*server.Config, error) {
	cfg, err := server.LoadConfig(c.String("config"))
	if err != nil {
		return nil, err
	}
	if c.IsSet("port") {
		cfg.Server.Port = c.String("port")
	}
	if c.IsSet("state-backend") {
		cfg.State.Backend = c.String("state-backend")
	}
	if c.IsSet("state-path") {
		cfg.State.Path = c.String("state-path")
	}
	if c.IsSet("log-level") {
		cfg.Log.Level = c.String("log-level")
	}
	return cfg, nil
}

func run(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := server.NewLogger(cfg.Log, nil)
	logger.Info("starting gochat", "version", version, "commit", commit)

	var metrics *server.Metrics
	if cfg.Metrics.Enabled {
		metrics = server.NewMetrics()
	}

	backend, err := store.Open(cfg.State.Backend, cfg.State.Path, logger.Named("store"))
	if err != nil {
		return fmt.Errorf("open state backend: %w", err)
	}

	hasher, err := auth.NewHasher(cfg.Auth.Hasher)
	if err != nil {
		_ = backend.Close()
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	authService := auth.New(ctx, server.InstrumentBackend(backend, metrics), auth.Options{
		Hasher:     hasher,
		SessionTTL: cfg.Auth.SessionTTL,
		Logger:     logger.Named("auth"),
	})

	srv := server.New(cfg, authService, metrics, logger)
	srv.StartHub()

	httpServer := server.CreateServer(cfg.Server.Port, srv.SetupRoutes())

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.StartServer(httpServer, logger)
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	return shutdown(cfg, httpServer, srv, authService, logger)
}

func shutdown(cfg *server.Config, httpServer *http.Server, srv *server.Server, authService *auth.Service, logger hclog.Logger) error {
	var errs []error

	if err := server.ShutdownServer(httpServer, cfg.Shutdown.Timeout, logger); err != nil {
		errs = append(errs, err)
	}
	if err := srv.Hub().Shutdown(cfg.Shutdown.Timeout); err != nil {
		errs = append(errs, fmt.Errorf("hub shutdown: %w", err))
	}
	if err := authService.Close(context.Background()); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	logger.Info("server stopped")
	return nil
}
