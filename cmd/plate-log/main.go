// cmd/plate-log/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"mcp-plate-log/internal/auth"
	"mcp-plate-log/internal/config"
	"mcp-plate-log/internal/logging"
	"mcp-plate-log/internal/metrics"
	"mcp-plate-log/internal/nutrition"
	"mcp-plate-log/internal/server"
	"mcp-plate-log/internal/storage"
)

var (
	configPath  = flag.String("config", "", "Path to a YAML config file")
	port        = flag.Int("port", 0, "Port for HTTP transport (overrides config)")
	host        = flag.String("host", "", "Host address (overrides config)")
	address     = flag.String("address", "", "Address (alias for host)")
	dbPath      = flag.String("db-path", "", "Database path (overrides config)")
	analyzerURL = flag.String("analyzer-url", "", "Nutrition analyzer upload endpoint (overrides config)")
	version     = flag.Bool("version", false, "Show version")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Println("plate-log version 1.0.0")
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	applyFlags(cfg)

	logger, err := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format}, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("invalid configuration")
	}

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Error("plate-log stopped")
		stop()
		os.Exit(1)
	}
}

// run wires the service and serves until ctx is cancelled or the server
// fails. Resources opened here are released before it returns.
func run(ctx context.Context, cfg *config.Config, logger *logrus.Logger) error {
	credentials, session, err := newCredentials(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to set up credentials: %w", err)
	}

	stor, err := storage.NewSQLiteStorage(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer stor.Close()

	collectors := metrics.New()
	client, err := nutrition.NewClient(nutrition.Config{
		Endpoint:        cfg.Analyzer.URL,
		Timeout:         cfg.Analyzer.Timeout,
		ExpectedWeights: cfg.Analyzer.ExpectedWeights,
	}, credentials,
		nutrition.WithLogger(logger.WithField("component", "nutrition")),
		nutrition.WithRecorder(collectors),
	)
	if err != nil {
		return fmt.Errorf("failed to create analyzer client: %w", err)
	}

	opts := []server.Option{
		server.WithLogger(logger.WithField("component", "server")),
		server.WithMetrics(collectors),
	}
	if session != nil {
		opts = append(opts, server.WithUsers(session))
	}

	srv, err := server.NewMealLogServer(&server.Config{
		Host:   cfg.Server.Host,
		Port:   cfg.Server.Port,
		UserID: cfg.Session.UserID,
	}, stor, client, opts...)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case serveErr = <-errCh:
		if serveErr != nil {
			logger.WithError(serveErr).Error("server error")
		}
	}

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Error("error during shutdown")
	}
	return serveErr
}

func applyFlags(cfg *config.Config) {
	if *host != "" {
		cfg.Server.Host = *host
	}
	// Use address if provided, otherwise use host
	if *address != "" {
		cfg.Server.Host = *address
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if *analyzerURL != "" {
		cfg.Analyzer.URL = *analyzerURL
	}
}

// newCredentials prefers a static token; otherwise it signs tokens for the
// configured user.
func newCredentials(cfg *config.Config, logger logrus.FieldLogger) (auth.CredentialProvider, *auth.Session, error) {
	if cfg.Session.StaticToken != "" {
		return auth.StaticToken(cfg.Session.StaticToken), nil, nil
	}

	session, err := auth.NewSession(cfg.Session.Secret, cfg.Session.TokenTTL)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Session.UserID != "" {
		if err := session.SignIn(cfg.Session.UserID); err != nil {
			return nil, nil, err
		}
	} else {
		logger.Warn("no user configured; uploads will fail until a user signs in")
	}
	return session, session, nil
}
