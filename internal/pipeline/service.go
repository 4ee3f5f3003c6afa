// Package pipeline sequences agent steps (discover, extract, enrich,
// monitor), enforcing one running run per (agent, step) and recording run
// statistics. The engine holds no clock; steps run only when an external
// trigger calls RunAgentStep.
package pipeline

import (
	"context"
	"fmt"

	"github.com/jonesrussell/curation-engine/internal/apperrors"
	"github.com/jonesrussell/curation-engine/internal/crawl"
	"github.com/jonesrussell/curation-engine/internal/events"
	"github.com/jonesrussell/curation-engine/internal/extractor"
	"github.com/jonesrussell/curation-engine/internal/logger"
	"github.com/jonesrussell/curation-engine/internal/models"
)

const (
	// searchResultLimit bounds candidates requested per search query.
	searchResultLimit = 25
	// stepWebsiteLimit bounds websites processed per extract/monitor run.
	stepWebsiteLimit = 20
)

// AgentStore reads agent configuration for dispatch.
type AgentStore interface {
	GetByID(ctx context.Context, id string) (*models.Agent, error)
	ListQueries(ctx context.Context, agentID string, activeOnly bool) ([]*models.SearchQuery, error)
	ListRules(ctx context.Context, agentID string, activeOnly bool) ([]*models.FilterRule, error)
}

// RunStore tracks run lifecycle.
type RunStore interface {
	TryCreate(ctx context.Context, run *models.AgentRun) error
	Close(ctx context.Context, id string, status models.RunStatus, stats models.RunStats, errMsg *string) error
}

// WebsiteStore is the website persistence the steps need.
type WebsiteStore interface {
	GetByDomain(ctx context.Context, domain string) (*models.Website, error)
	Create(ctx context.Context, w *models.Website) error
	ListForExtraction(ctx context.Context, limit int) ([]*models.Website, error)
	ListForMonitor(ctx context.Context, agentID string, limit int) ([]*models.Website, error)
	ListByAgent(ctx context.Context, agentID string) ([]*models.Website, error)
}

// ListingStore is the listing persistence the enrich step needs.
type ListingStore interface {
	ListByWebsites(ctx context.Context, websiteIDs []string) ([]*models.Listing, error)
	AddTags(ctx context.Context, id string, tags []string) error
}

// JobStore writes the job ledger.
type JobStore interface {
	Create(ctx context.Context, job *models.Job) error
	Complete(ctx context.Context, id string, status models.JobStatus, errMsg *string) error
}

// Crawler drives one website crawl end to end.
type Crawler interface {
	Execute(ctx context.Context, websiteID string, manual bool) (*crawl.Outcome, error)
}

// Budgets are the defaults stamped onto newly discovered websites.
type Budgets struct {
	MaxCrawlRetries  int
	MaxPagesPerCrawl int
}

// Service is the pipeline scheduler and run tracker.
type Service struct {
	agents    AgentStore
	runs      RunStore
	websites  WebsiteStore
	listings  ListingStore
	jobs      JobStore
	crawler   Crawler
	searcher  extractor.Searcher
	publisher *events.Publisher
	logger    logger.Logger
	budgets   Budgets
}

// NewService creates a new pipeline service.
func NewService(
	agents AgentStore,
	runs RunStore,
	websites WebsiteStore,
	listings ListingStore,
	jobs JobStore,
	crawler Crawler,
	searcher extractor.Searcher,
	publisher *events.Publisher,
	log logger.Logger,
	budgets Budgets,
) *Service {
	return &Service{
		agents:    agents,
		runs:      runs,
		websites:  websites,
		listings:  listings,
		jobs:      jobs,
		crawler:   crawler,
		searcher:  searcher,
		publisher: publisher,
		logger:    log,
		budgets:   budgets,
	}
}

// stepWorkflows maps steps to their ledger workflow names.
var stepWorkflows = map[models.AgentStep]string{
	models.StepDiscover: models.WorkflowResearch,
	models.StepExtract:  models.WorkflowExtraction,
	models.StepEnrich:   "enrichment",
	models.StepMonitor:  "monitoring",
}

// RunAgentStep opens a run for (agent, step) and dispatches the step's work
// synchronously. The run closes as completed or failed once the work
// settles; a failed run is surfaced for manual re-trigger, never retried
// automatically.
func (s *Service) RunAgentStep(ctx context.Context, agentID string, step models.AgentStep, trigger models.TriggerType) (*models.AgentRun, error) {
	if !models.ValidStep(step) {
		return nil, apperrors.Validationf("unknown step %q", step)
	}

	agent, err := s.agents.GetByID(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if agent.Status == models.AgentPaused {
		return nil, fmt.Errorf("%w: agent %s", apperrors.ErrAgentPaused, agentID)
	}
	if agent.Role != models.RoleCurator {
		return nil, apperrors.Validationf("agent %s is not a curator", agentID)
	}

	run := &models.AgentRun{
		AgentID:     agentID,
		Step:        step,
		TriggerType: trigger,
		Stats:       models.RunStats{},
	}
	if err = s.runs.TryCreate(ctx, run); err != nil {
		if apperrors.IsConflict(err) {
			return nil, fmt.Errorf("%w: agent %s step %s", apperrors.ErrStepAlreadyRunning, agentID, step)
		}
		return nil, err
	}

	job := &models.Job{
		WorkflowName: stepWorkflows[step],
		Progress:     fmt.Sprintf("%s step for agent %s", step, agent.DisplayName),
	}
	if jobErr := s.jobs.Create(ctx, job); jobErr != nil {
		s.logger.Warn("Failed to open ledger job for run",
			logger.String("run_id", run.ID),
			logger.Error(jobErr),
		)
		job = nil
	}

	dispatchErr := s.dispatch(ctx, agent, step, run.Stats)

	status := models.RunCompleted
	jobStatus := models.JobCompleted
	var errMsg *string
	if dispatchErr != nil {
		status = models.RunFailed
		jobStatus = models.JobFailed
		msg := dispatchErr.Error()
		errMsg = &msg
	}

	if closeErr := s.runs.Close(ctx, run.ID, status, run.Stats, errMsg); closeErr != nil {
		return nil, closeErr
	}
	if job != nil {
		if completeErr := s.jobs.Complete(ctx, job.ID, jobStatus, errMsg); completeErr != nil {
			s.logger.Warn("Failed to close ledger job",
				logger.String("job_id", job.ID),
				logger.Error(completeErr),
			)
		}
	}

	run.Status = status
	run.ErrorMessage = errMsg

	s.publisher.PublishAsync(events.Event{
		EventType: events.EventRunClosed,
		EntityID:  run.ID,
		Detail: map[string]any{
			"agent_id": agentID,
			"step":     string(step),
			"status":   string(status),
		},
	})

	s.logger.Info("Agent step finished",
		logger.String("agent_id", agentID),
		logger.String("step", string(step)),
		logger.String("status", string(status)),
		logger.Any("stats", run.Stats),
	)

	return run, nil
}

func (s *Service) dispatch(ctx context.Context, agent *models.Agent, step models.AgentStep, stats models.RunStats) error {
	switch step {
	case models.StepDiscover:
		return s.discover(ctx, agent, stats)
	case models.StepExtract:
		return s.extract(ctx, agent, stats)
	case models.StepEnrich:
		return s.enrich(ctx, agent, stats)
	case models.StepMonitor:
		return s.monitor(ctx, agent, stats)
	default:
		return apperrors.Validationf("unknown step %q", step)
	}
}
