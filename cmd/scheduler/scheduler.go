// Package scheduler implements the clock for the engine. The engine itself
// holds no timers; this command ticks, finds agent steps that are due, and
// triggers them through the same entry point manual triggers use.
package scheduler

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/jonesrussell/curation-engine/cmd/common"
	"github.com/jonesrussell/curation-engine/internal/apperrors"
	"github.com/jonesrussell/curation-engine/internal/database"
	"github.com/jonesrussell/curation-engine/internal/logger"
	"github.com/jonesrussell/curation-engine/internal/models"
)

const (
	tickSpec        = "@every 1m"
	sweepSpec       = "@hourly"
	signalBufferLen = 1
)

// Command returns the scheduler command.
func Command(debug *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "scheduler",
		Short: "Run scheduled agent steps and batch expiry sweeps",
		Long: `Run the scheduler. Every minute it checks each active curator agent's
configured step periods and triggers the steps that are due. Every hour
it sweeps review batches whose time-to-live has lapsed.
The scheduler runs continuously until interrupted with Ctrl+C.`,
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

	engine := common.BuildEngine(deps)
	log := deps.Logger

	c := cron.New()

	if _, err = c.AddFunc(tickSpec, func() {
		tick(ctx, engine, log)
	}); err != nil {
		return fmt.Errorf("register tick: %w", err)
	}

	if _, err = c.AddFunc(sweepSpec, func() {
		expired, sweepErr := engine.Reconciler.SweepExpired(ctx)
		if sweepErr != nil {
			log.Error("Batch expiry sweep failed", logger.Error(sweepErr))
			return
		}
		if expired > 0 {
			log.Info("Expired review batches", logger.Int("count", expired))
		}
	}); err != nil {
		return fmt.Errorf("register sweep: %w", err)
	}

	log.Info("Starting scheduler")
	c.Start()

	quit := make(chan os.Signal, signalBufferLen)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case <-ctx.Done():
		log.Info("Context cancelled")
	}

	stopCtx := c.Stop()
	<-stopCtx.Done()
	log.Info("Scheduler stopped")
	return nil
}

// tick triggers each due step of each active curator agent.
func tick(ctx context.Context, engine *common.Engine, log logger.Logger) {
	agents, err := engine.Agents.List(ctx, database.AgentFilter{
		Role:   models.RoleCurator,
		Status: models.AgentActive,
	})
	if err != nil {
		log.Error("Scheduler failed to list agents", logger.Error(err))
		return
	}

	for _, agent := range agents {
		if agent.CuratorConfig == nil {
			continue
		}
		runStep(ctx, engine, log, agent.ID, models.StepDiscover, agent.CuratorConfig.DiscoverPeriod)
		runStep(ctx, engine, log, agent.ID, models.StepMonitor, agent.CuratorConfig.MonitorPeriod)
	}
}

func runStep(ctx context.Context, engine *common.Engine, log logger.Logger, agentID string, step models.AgentStep, period models.StepPeriod) {
	interval, ok := periodInterval(period)
	if !ok {
		return
	}

	due, err := stepDue(ctx, engine.Runs, agentID, step, interval)
	if err != nil {
		log.Error("Scheduler failed to check step",
			logger.String("agent_id", agentID),
			logger.String("step", string(step)),
			logger.Error(err),
		)
		return
	}
	if !due {
		return
	}

	if _, err = engine.Pipeline.RunAgentStep(ctx, agentID, step, models.TriggerScheduled); err != nil {
		// An overlapping run is normal; everything else is not.
		if apperrors.IsConflict(err) {
			log.Debug("Scheduled step skipped",
				logger.String("agent_id", agentID),
				logger.String("step", string(step)),
				logger.Error(err),
			)
			return
		}
		log.Error("Scheduled step failed",
			logger.String("agent_id", agentID),
			logger.String("step", string(step)),
			logger.Error(err),
		)
	}
}

// stepDue reports whether the step's most recent run started longer ago than
// the interval. A step with no history is due immediately.
func stepDue(ctx context.Context, runs *database.RunRepository, agentID string, step models.AgentStep, interval time.Duration) (bool, error) {
	latest, err := runs.List(ctx, database.RunFilter{
		AgentID: agentID,
		Step:    step,
		Limit:   1,
	})
	if err != nil {
		return false, err
	}
	if len(latest) == 0 {
		return true, nil
	}
	return time.Since(latest[0].StartedAt) >= interval, nil
}

func periodInterval(period models.StepPeriod) (time.Duration, bool) {
	switch period {
	case models.PeriodHourly:
		return time.Hour, true
	case models.PeriodDaily:
		return 24 * time.Hour, true
	case models.PeriodWeekly:
		return 7 * 24 * time.Hour, true
	default:
		// Manual or unset periods never fire from the clock.
		return 0, false
	}
}
