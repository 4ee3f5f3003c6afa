// Package common provides shared dependency wiring for command
// implementations.
package common

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/curation-engine/internal/config"
	"github.com/jonesrussell/curation-engine/internal/crawl"
	"github.com/jonesrussell/curation-engine/internal/database"
	"github.com/jonesrussell/curation-engine/internal/events"
	"github.com/jonesrussell/curation-engine/internal/extractor"
	"github.com/jonesrussell/curation-engine/internal/logger"
	"github.com/jonesrussell/curation-engine/internal/pipeline"
	"github.com/jonesrussell/curation-engine/internal/reconcile"
)

// Deps holds the process-level dependencies shared by all commands.
type Deps struct {
	Config    *config.Config
	Logger    logger.Logger
	DB        *sqlx.DB
	Redis     *redis.Client
	Publisher *events.Publisher
}

// NewDeps loads configuration, builds the logger, and connects to Postgres
// and (when enabled) Redis.
func NewDeps(debug bool) (*Deps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if debug {
		cfg.Debug = true
		cfg.LogLevel = "debug"
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Development: cfg.Debug,
	})
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	db, err := database.NewPostgresConnection(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	deps := &Deps{
		Config: cfg,
		Logger: log,
		DB:     db,
	}

	if cfg.Redis.Enabled {
		deps.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		deps.Publisher = events.NewPublisher(deps.Redis, log)
	}

	return deps, nil
}

// Close releases held connections.
func (d *Deps) Close() {
	if d.Redis != nil {
		_ = d.Redis.Close()
	}
	if d.DB != nil {
		_ = d.DB.Close()
	}
	_ = d.Logger.Sync()
}

// Engine bundles the repositories and services every command wires the same
// way.
type Engine struct {
	Agents   *database.AgentRepository
	Runs     *database.RunRepository
	Websites *database.WebsiteRepository
	Jobs     *database.JobRepository
	Snaps    *database.SnapshotRepository
	Listings *database.ListingRepository
	Sync     *database.SyncRepository

	Reconciler *reconcile.Service
	Crawler    *crawl.Service
	Pipeline   *pipeline.Service
}

// BuildEngine constructs the full service graph on top of the dependencies.
func BuildEngine(d *Deps) *Engine {
	agents := database.NewAgentRepository(d.DB)
	runs := database.NewRunRepository(d.DB)
	websites := database.NewWebsiteRepository(d.DB)
	jobs := database.NewJobRepository(d.DB)
	snaps := database.NewSnapshotRepository(d.DB)
	listings := database.NewListingRepository(d.DB)
	syncRepo := database.NewSyncRepository(d.DB)

	client := extractor.NewClient(
		extractor.WithBaseURL(d.Config.Extractor.BaseURL),
		extractor.WithTimeout(d.Config.Extractor.Timeout),
	)

	reconciler := reconcile.NewService(
		syncRepo, snaps, listings, d.Publisher, d.Logger, d.Config.Engine.BatchTTL)
	crawler := crawl.NewService(
		websites, snaps, jobs, reconciler, client, d.Publisher, d.Logger)
	pipelineSvc := pipeline.NewService(
		agents, runs, websites, listings, jobs, crawler, client,
		d.Publisher, d.Logger,
		pipeline.Budgets{
			MaxCrawlRetries:  d.Config.Engine.MaxCrawlRetries,
			MaxPagesPerCrawl: d.Config.Engine.MaxPagesPerCrawl,
		},
	)

	return &Engine{
		Agents:     agents,
		Runs:       runs,
		Websites:   websites,
		Jobs:       jobs,
		Snaps:      snaps,
		Listings:   listings,
		Sync:       syncRepo,
		Reconciler: reconciler,
		Crawler:    crawler,
		Pipeline:   pipelineSvc,
	}
}
