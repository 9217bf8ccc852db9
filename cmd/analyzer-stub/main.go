// cmd/analyzer-stub/main.go
package main

import (
	"flag"
	"fmt"
	"os"

	"mcp-plate-log/internal/analyzer"
	"mcp-plate-log/internal/auth"
	"mcp-plate-log/internal/config"
	"mcp-plate-log/internal/logging"
)

var (
	configPath = flag.String("config", "", "Path to a YAML config file")
	listen     = flag.String("listen", "127.0.0.1:5001", "Listen address")
)

// analyzer-stub serves a local stand-in for the nutrition analyzer so the
// plate-log service can be exercised without the remote model.
func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format}, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		os.Exit(1)
	}

	session, err := auth.NewSession(cfg.Session.Secret, cfg.Session.TokenTTL)
	if err != nil {
		logger.WithError(err).Fatal("analyzer stub needs PLATE_SESSION_SECRET to verify tokens")
	}

	svc, err := analyzer.NewService(session, logger.WithField("component", "analyzer"))
	if err != nil {
		logger.WithError(err).Fatal("failed to create analyzer")
	}

	logger.WithField("addr", *listen).Info("starting analyzer stub")
	if err := analyzer.NewRouter(svc).Run(*listen); err != nil {
		logger.WithError(err).Fatal("analyzer stub stopped")
	}
}
