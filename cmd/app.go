package main

import (
	"context"
	"fmt"

	"github.com/denisAlshanov/mediarelay/internal/config"
	"github.com/denisAlshanov/mediarelay/internal/database"
	"github.com/denisAlshanov/mediarelay/internal/services/dispatcher"
	"github.com/denisAlshanov/mediarelay/internal/services/extractor"
	"github.com/denisAlshanov/mediarelay/internal/services/identity"
	"github.com/denisAlshanov/mediarelay/internal/services/relay"
	"github.com/denisAlshanov/mediarelay/internal/services/relaypool"
	"github.com/denisAlshanov/mediarelay/internal/services/scraper"
	"github.com/denisAlshanov/mediarelay/internal/services/youtube"
	"github.com/denisAlshanov/mediarelay/internal/utils"
)

// app holds the extraction side of the service, shared by serve and resolve.
type app struct {
	cfg      *config.Config
	table    *identity.Table
	pool     *relaypool.Pool
	db       *database.MongoDB
	resolver dispatcher.Resolver
}

func newApp(ctx context.Context, cfg *config.Config, withCache bool) (*app, error) {
	logger := utils.GetLogger()

	table, err := identity.NewTable(cfg.Identity)
	if err != nil {
		return nil, fmt.Errorf("invalid identity configuration: %w", err)
	}

	// Structured extractor: the native YouTube client first, yt-dlp for
	// everything else it understands.
	ytdlpBackend := extractor.NewYtdlpBackend(cfg.Extract)
	if err := ytdlpBackend.Prepare(ctx); err != nil {
		logger.Warnf("yt-dlp is unavailable: %v", err)
	}
	structured := extractor.NewAdapter(youtube.NewClient(cfg.Extract.Timeout), ytdlpBackend)

	pool := relaypool.New(cfg.Relay)
	relays := relay.NewAdapter(pool, cfg.Extract, cfg.Relay)
	pages := scraper.New(table, cfg.Extract.ScraperTimeout)

	a := &app{
		cfg:      cfg,
		table:    table,
		pool:     pool,
		resolver: dispatcher.New(cfg.Extract.Timeout, dispatcher.Chain(structured, relays, pages)...),
	}

	if withCache && cfg.MongoDB.Enabled() {
		db, err := database.NewMongoDB(&cfg.MongoDB)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
		}
		a.db = db
		a.resolver = database.NewCachedResolver(a.resolver, db.ResultStore())
		logger.Info("Extraction cache enabled")
	}

	logger.WithField("relay_instances", len(cfg.Relay.Instances)).Info("Extraction chain ready")
	return a, nil
}

func (a *app) close(ctx context.Context) {
	if a.db == nil {
		return
	}
	if err := a.db.Close(ctx); err != nil {
		utils.GetLogger().Errorf("Failed to close database connection: %v", err)
	}
}
