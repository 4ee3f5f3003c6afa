// Package serve implements the HTTP server command.
package serve

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/curation-engine/cmd/common"
	"github.com/jonesrussell/curation-engine/internal/api"
	"github.com/jonesrussell/curation-engine/internal/database"
	"github.com/jonesrussell/curation-engine/internal/handlers"
	"github.com/jonesrussell/curation-engine/internal/logger"
)

const (
	signalChannelBufferSize = 1
	errorChannelBufferSize  = 1
	defaultShutdownTimeout  = 30 * time.Second
)

// Command returns the serve command.
func Command(debug *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long: `Start the HTTP API server. The server exposes agent, website, run,
job, batch, and listing endpoints and runs until interrupted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), *debug)
		},
	}
}

func run(ctx context.Context, debug bool) error {
	deps, err := common.NewDeps(debug)
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	defer deps.Close()

	if err = database.Migrate(ctx, deps.DB); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	engine := common.BuildEngine(deps)
	log := deps.Logger

	router := api.NewRouter(api.Handlers{
		Agents:   handlers.NewAgentHandler(engine.Agents, engine.Pipeline, log),
		Websites: handlers.NewWebsiteHandler(engine.Websites, engine.Crawler, deps.Publisher, log),
		Runs:     handlers.NewRunHandler(engine.Runs, log),
		Jobs:     handlers.NewJobHandler(engine.Jobs, engine.Crawler, log),
		Batches:  handlers.NewBatchHandler(engine.Sync, engine.Reconciler, log),
		Listings: handlers.NewListingHandler(engine.Listings, log),
	}, log)

	addr := fmt.Sprintf("%s:%d", deps.Config.Server.Host, deps.Config.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  deps.Config.Server.ReadTimeout,
		WriteTimeout: deps.Config.Server.WriteTimeout,
	}

	errChan := make(chan error, errorChannelBufferSize)
	go func() {
		log.Info("Starting HTTP server", logger.String("address", addr))
		if serveErr := server.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errChan <- serveErr
		}
	}()

	quit := make(chan os.Signal, signalChannelBufferSize)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case serveErr := <-errChan:
		return fmt.Errorf("server error: %w", serveErr)
	case <-quit:
		log.Info("Shutdown signal received")
	case <-ctx.Done():
		log.Info("Context cancelled")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()

	if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
		return fmt.Errorf("server shutdown: %w", shutdownErr)
	}

	log.Info("Server stopped")
	return nil
}
