// Meraki - marketplace API server
package main

import (
	"context"
	"os"

	"github.com/merakimarket/meraki/internal/config"
	"github.com/merakimarket/meraki/internal/logging"
	"github.com/merakimarket/meraki/internal/server"
)

// Build info - set by ldflags
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	bootLogger := logging.New("info", "text")

	cfg, err := config.Load()
	if err != nil {
		bootLogger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.NewWithFile(cfg.LogLevel, cfg.LogFormat, cfg.LogFile)
	logger.Info("starting meraki",
		"version", Version,
		"commit", Commit,
		"build_time", BuildTime,
		"env", cfg.Env,
	)

	srv, err := server.New(cfg, server.WithLogger(logger))
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	if err := srv.Run(context.Background()); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
