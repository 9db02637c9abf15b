// Package main is the entry point for the CORDAL server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cordal/cordal/internal/config"
	"github.com/cordal/cordal/internal/engine"
	"github.com/cordal/cordal/internal/logging"
	"github.com/cordal/cordal/internal/procconfig"
)

const (
	serviceName    = "cordal"
	serviceVersion = "0.1.0"
)

// Exit codes per the process' external contract: 0 normal, 2 validation
// failure on startup, 3 a fatal configuration load error.
const (
	exitValidationFailed = 2
	exitConfigLoadFailed = 3
)

func main() {
	var showVersion = flag.Bool("version", false, "Show version information")
	var showHelp = flag.Bool("help", false, "Show help information")
	var configPath = flag.String("config", "", "Path to configuration file")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s version %s\n", serviceName, serviceVersion)
		os.Exit(0)
	}
	if *showHelp {
		fmt.Printf("CORDAL - Configuration-Orchestrated REST Dynamic API Layer\n\n")
		fmt.Printf("Usage: %s [options]\n\n", os.Args[0])
		fmt.Printf("Options:\n")
		fmt.Printf("  -config     Path to configuration file\n")
		fmt.Printf("  -version    Show version information\n")
		fmt.Printf("  -help       Show this help message\n\n")
		fmt.Printf("Environment variables:\n")
		fmt.Printf("  CORDAL_SERVER_PORT, CORDAL_CONFIG_SOURCE, CORDAL_STORE_DSN, ...\n\n")
		os.Exit(0)
	}

	cfg, err := procconfig.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(exitConfigLoadFailed)
	}

	logger := logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})

	logger.Info("starting CORDAL", "service", serviceName, "version", serviceVersion,
		"config_source", cfg.Config.Source, "addr", cfg.Addr())

	ctx := context.Background()
	e, err := engine.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build engine", "error", err)
		if errors.Is(err, config.ErrValidationFailed) {
			os.Exit(exitValidationFailed)
		}
		os.Exit(exitConfigLoadFailed)
	}

	if cfg.Validation.ValidateOnly {
		valid := e.LastReport != nil && e.LastReport.Valid()
		logger.Info("validate-only run complete", "valid", valid,
			"errors", len(e.LastReport.Errors), "warnings", len(e.LastReport.Warnings))
		if !valid {
			os.Exit(exitValidationFailed)
		}
		os.Exit(0)
	}

	server := &http.Server{
		Addr:    cfg.Addr(),
		Handler: e.Router,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("HTTP server starting", "addr", cfg.Addr())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-quit
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("engine shutdown did not complete cleanly", "error", err)
	}

	logger.Info("server exited")
}
