package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/localagent/runtime/internal/application"
	"github.com/localagent/runtime/internal/infrastructure/config"
	"github.com/localagent/runtime/internal/infrastructure/logger"
)

const (
	appName    = "agent-runtime"
	appVersion = "0.1.0"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   appName,
		Short: "Local LLM agent runtime — model loading, tool dispatch, and the ReAct loop over HTTP/WebSocket",
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Load the configured model and start the HTTP/WebSocket server",
		RunE:  runServe,
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s v%s\n", appName, appVersion)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	// A bootstrap logger exists only to report a config load failure; the
	// real logger below is rebuilt from the loaded config's own Level/Format.
	bootstrap, err := logger.NewLogger(logger.Config{Level: "info", Format: "json"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		bootstrap.Fatal("failed to load configuration", zap.Error(err))
	}

	log, err := logger.NewLogger(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		bootstrap.Fatal("failed to initialize logger from config", zap.Error(err))
	}
	defer log.Sync()

	log.Info("starting "+appName, zap.String("version", appVersion))

	app, err := application.NewApp(cfg, log)
	if err != nil {
		log.Fatal("failed to initialize application", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := app.Start(ctx); err != nil {
		log.Fatal("failed to start application", zap.Error(err))
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info("received shutdown signal", zap.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := app.Stop(shutdownCtx); err != nil {
		log.Error("error during shutdown", zap.Error(err))
		os.Exit(1)
	}
	log.Info("application stopped successfully")
	return nil
}
