// Package main provides the entry point for the media relay service.
// @title Media Relay API
// @version 1.0
// @description Resolves media pages into downloadable options and relays the bytes through rotating client identities.

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /

// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
// @description Shared secret authentication

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	_ "github.com/denisAlshanov/mediarelay/docs" // Import for swagger docs
	"github.com/denisAlshanov/mediarelay/internal/api/handlers"
	"github.com/denisAlshanov/mediarelay/internal/api/router"
	"github.com/denisAlshanov/mediarelay/internal/config"
	"github.com/denisAlshanov/mediarelay/internal/models"
	"github.com/denisAlshanov/mediarelay/internal/services/auth"
	"github.com/denisAlshanov/mediarelay/internal/services/downloader"
	"github.com/denisAlshanov/mediarelay/internal/services/storage"
	"github.com/denisAlshanov/mediarelay/internal/services/streamer"
	"github.com/denisAlshanov/mediarelay/internal/utils"
)

var rootCmd = &cobra.Command{
	Use:           "mediarelay",
	Short:         "Media retrieval gateway",
	Long:          "Resolves media pages into downloadable options and relays the bytes through rotating client identities.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <url>",
	Short: "Resolve a page URL and print the extraction result as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, _ := cmd.Flags().GetString("mode")
		timeout, _ := cmd.Flags().GetDuration("timeout")
		return resolve(cmd, args[0], mode, timeout)
	},
}

func init() {
	resolveCmd.Flags().StringP("mode", "m", string(models.ModeAuto), "Media mode: auto, video or audio")
	resolveCmd.Flags().Duration("timeout", 60*time.Second, "Overall deadline for the extraction chain")
	rootCmd.AddCommand(serveCmd, resolveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func serve() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.RequireSharedSecret(); err != nil {
		return err
	}
	utils.ConfigureLogger(cfg.Log.Level, cfg.Log.Format)

	logger := utils.GetLogger()
	logger.Info("Starting media relay service")

	a, err := newApp(context.Background(), cfg, true)
	if err != nil {
		return err
	}

	relayStreamer, err := streamer.New(a.table, cfg.Stream)
	if err != nil {
		return fmt.Errorf("failed to initialize streamer: %w", err)
	}

	// Initialize S3 archive storage (optional)
	s3Storage, err := storage.NewStorage(&cfg.S3)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	tickets := auth.NewTicketService(auth.TicketConfig{
		SecretKey: cfg.API.SharedSecret,
		TTL:       cfg.API.TicketTTL,
	})
	archiver := downloader.NewArchiver(relayStreamer, s3Storage, &cfg.S3)

	// Initialize handlers; nil interfaces keep optional dependencies disabled
	var cachePinger, storagePinger handlers.Pinger
	if a.db != nil {
		cachePinger = a.db
	}
	if s3Storage != nil {
		storagePinger = s3Storage
	}

	r := router.NewRouter(cfg, router.Handlers{
		Extract: handlers.NewExtractHandler(a.resolver, tickets, cfg.API.PublicBaseURL),
		Stream:  handlers.NewStreamHandler(relayStreamer),
		Archive: handlers.NewArchiveHandler(archiver),
		Health:  handlers.NewHealthHandler(cachePinger, storagePinger, a.pool),
	}, tickets)

	// Start server
	serverErr := make(chan error, 1)
	go func() {
		logger.Infof("Starting server on %s:%s", cfg.Server.Host, cfg.Server.Port)
		serverErr <- r.Start()
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-quit:
	}

	logger.Info("Shutting down server...")

	// Create a deadline for shutdown
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := r.Shutdown(ctx); err != nil {
		logger.Errorf("Failed to shut down HTTP server: %v", err)
	}

	a.close(ctx)

	logger.Info("Server shutdown complete")
	return nil
}

func resolve(cmd *cobra.Command, rawURL, mode string, timeout time.Duration) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	// keep stdout clean for the JSON result
	utils.ConfigureLogger(cfg.Log.Level, "text")
	utils.GetLogger().SetOutput(os.Stderr)

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	a, err := newApp(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	result, err := a.resolver.Resolve(ctx, models.MediaRequest{SourceURL: rawURL, Mode: models.Mode(mode)})
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(struct {
		Source string `json:"source"`
		*models.ExtractionResult
	}{Source: result.Source, ExtractionResult: result})
}
