// Package crawl implements the per-website crawl state machine. It enforces
// mutual exclusion, the retry budget, and the page budget for a single crawl
// lifecycle, and hands extracted drafts to the reconciliation engine.
package crawl

import (
	"context"
	"fmt"

	"github.com/jonesrussell/curation-engine/internal/apperrors"
	"github.com/jonesrussell/curation-engine/internal/events"
	"github.com/jonesrussell/curation-engine/internal/extractor"
	"github.com/jonesrussell/curation-engine/internal/logger"
	"github.com/jonesrussell/curation-engine/internal/models"
)

// WebsiteStore is the persistence the state machine needs for websites.
type WebsiteStore interface {
	GetByID(ctx context.Context, id string) (*models.Website, error)
	BeginCrawl(ctx context.Context, id string, resetAttempts bool) error
	IncrementPages(ctx context.Context, id string) (int, error)
	SetCrawlOutcome(ctx context.Context, id string, status models.CrawlStatus, lastError *string, resetAttempts bool) error
}

// SnapshotStore persists page snapshots and extracted drafts.
type SnapshotStore interface {
	CreateSnapshot(ctx context.Context, snap *models.PageSnapshot, drafts []models.DraftContent) ([]*models.DraftListing, error)
	ListByJob(ctx context.Context, jobID string) ([]*models.PageSnapshot, error)
	ListDraftsByJob(ctx context.Context, jobID string) ([]*models.DraftListing, error)
}

// JobStore writes the job ledger.
type JobStore interface {
	Create(ctx context.Context, job *models.Job) error
	GetByID(ctx context.Context, id string) (*models.Job, error)
	UpdateProgress(ctx context.Context, id, progress string) error
	Complete(ctx context.Context, id string, status models.JobStatus, errMsg *string) error
}

// BatchOpener receives a finished crawl's drafts as a reviewable batch.
// The job id is the idempotency key; replayed handoffs must not create a
// second batch.
type BatchOpener interface {
	OpenCrawlBatch(ctx context.Context, jobID, websiteID string, drafts []*models.DraftListing) (*models.SyncBatch, error)
}

// Service drives the crawl state machine.
type Service struct {
	websites   WebsiteStore
	snapshots  SnapshotStore
	jobs       JobStore
	reconciler BatchOpener
	fetcher    extractor.Fetcher
	publisher  *events.Publisher
	logger     logger.Logger
}

// NewService creates a new crawl service.
func NewService(
	websites WebsiteStore,
	snapshots SnapshotStore,
	jobs JobStore,
	reconciler BatchOpener,
	fetcher extractor.Fetcher,
	publisher *events.Publisher,
	log logger.Logger,
) *Service {
	return &Service{
		websites:   websites,
		snapshots:  snapshots,
		jobs:       jobs,
		reconciler: reconciler,
		fetcher:    fetcher,
		publisher:  publisher,
		logger:     log,
	}
}

// InitiateCrawl claims the per-website crawl exclusion and opens a ledger
// job. A manual trigger resets the attempt counter, re-arming a website whose
// automatic retry budget is spent.
func (s *Service) InitiateCrawl(ctx context.Context, websiteID string, manual bool) (*models.Job, error) {
	website, err := s.websites.GetByID(ctx, websiteID)
	if err != nil {
		return nil, err
	}

	if website.ModerationStatus != models.ModerationApproved {
		return nil, fmt.Errorf("%w: website %s has moderation status %s",
			apperrors.ErrNotApproved, websiteID, website.ModerationStatus)
	}
	if website.CrawlStatus == models.CrawlCrawling {
		return nil, fmt.Errorf("%w: website %s", apperrors.ErrAlreadyCrawling, websiteID)
	}
	if !manual && website.RetryBudgetSpent() {
		return nil, fmt.Errorf("%w: website %s used %d attempts",
			apperrors.ErrExhaustedRetries, websiteID, website.CrawlAttemptCount)
	}

	// The conditional update closes the check-then-act race with a
	// concurrent initiator.
	if err = s.websites.BeginCrawl(ctx, websiteID, manual); err != nil {
		return nil, err
	}

	job := &models.Job{
		WorkflowName: models.WorkflowCrawl,
		WebsiteID:    &websiteID,
		Progress:     "crawl started",
	}
	if err = s.jobs.Create(ctx, job); err != nil {
		// Release the claim so the website is not stuck in crawling.
		releaseErr := fmt.Sprintf("failed to open crawl job: %v", err)
		_ = s.websites.SetCrawlOutcome(ctx, websiteID, models.CrawlPending, &releaseErr, false)
		return nil, fmt.Errorf("open crawl job: %w", err)
	}

	s.logger.Info("Crawl initiated",
		logger.String("website_id", websiteID),
		logger.String("job_id", job.ID),
		logger.Bool("manual", manual),
	)

	return job, nil
}

// RecordPageResult appends a page snapshot with any extracted drafts and
// advances the page counter. The returned flag reports whether the page
// budget is reached; callers stop scheduling new pages but in-flight work may
// still land.
func (s *Service) RecordPageResult(
	ctx context.Context,
	websiteID, jobID, pageURL string,
	outcome models.PageOutcome,
	errMsg *string,
	drafts []models.DraftContent,
) (bool, error) {
	website, err := s.websites.GetByID(ctx, websiteID)
	if err != nil {
		return false, err
	}
	if website.CrawlStatus != models.CrawlCrawling {
		return false, apperrors.Validationf("website %s is not crawling", websiteID)
	}

	snap := &models.PageSnapshot{
		WebsiteID:    websiteID,
		JobID:        jobID,
		PageURL:      pageURL,
		Outcome:      outcome,
		ErrorMessage: errMsg,
	}
	if _, err = s.snapshots.CreateSnapshot(ctx, snap, drafts); err != nil {
		return false, err
	}

	count, err := s.websites.IncrementPages(ctx, websiteID)
	if err != nil {
		return false, err
	}

	progress := fmt.Sprintf("crawled %d/%d pages", count, website.MaxPagesPerCrawl)
	if progressErr := s.jobs.UpdateProgress(ctx, jobID, progress); progressErr != nil {
		s.logger.Warn("Failed to update job progress",
			logger.String("job_id", jobID),
			logger.Error(progressErr),
		)
	}

	return count >= website.MaxPagesPerCrawl, nil
}

// FinalizeCrawl computes the terminal crawl status, closes the ledger job,
// and hands any extracted drafts to the reconciliation engine keyed by the
// job id.
func (s *Service) FinalizeCrawl(ctx context.Context, websiteID, jobID string) (*models.Website, error) {
	snaps, err := s.snapshots.ListByJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	var succeeded int
	var lastPageError *string
	for _, snap := range snaps {
		if snap.Outcome == models.PageFetched {
			succeeded++
		} else if snap.ErrorMessage != nil {
			lastPageError = snap.ErrorMessage
		}
	}

	drafts, err := s.snapshots.ListDraftsByJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	status, jobStatus, crawlErr := s.terminalStatus(ctx, websiteID, succeeded, len(drafts), lastPageError)

	if err = s.websites.SetCrawlOutcome(ctx, websiteID, status, crawlErr, crawlSucceeded(status)); err != nil {
		return nil, err
	}
	if err = s.jobs.Complete(ctx, jobID, jobStatus, crawlErr); err != nil {
		return nil, err
	}

	if len(drafts) > 0 {
		if _, handoffErr := s.reconciler.OpenCrawlBatch(ctx, jobID, websiteID, drafts); handoffErr != nil {
			return nil, fmt.Errorf("open sync batch: %w", handoffErr)
		}
	}

	s.publisher.PublishAsync(events.Event{
		EventType: events.EventCrawlFinished,
		EntityID:  websiteID,
		Detail: map[string]any{
			"job_id":       jobID,
			"crawl_status": string(status),
			"drafts":       len(drafts),
		},
	})

	s.logger.Info("Crawl finalized",
		logger.String("website_id", websiteID),
		logger.String("job_id", jobID),
		logger.String("crawl_status", string(status)),
		logger.Int("pages_succeeded", succeeded),
		logger.Int("drafts", len(drafts)),
	)

	return s.websites.GetByID(ctx, websiteID)
}

// terminalStatus maps page/draft counts to the crawl outcome. A failure
// within the retry budget returns the website to pending for an automatic
// re-attempt; past the budget it stays failed until manually re-armed.
func (s *Service) terminalStatus(ctx context.Context, websiteID string, succeeded, draftCount int, lastPageError *string) (models.CrawlStatus, models.JobStatus, *string) {
	if succeeded > 0 {
		if draftCount == 0 {
			return models.CrawlNoListingsFound, models.JobCompleted, nil
		}
		return models.CrawlCompleted, models.JobCompleted, nil
	}

	msg := "no page fetched successfully"
	if lastPageError != nil {
		msg = *lastPageError
	}

	website, err := s.websites.GetByID(ctx, websiteID)
	if err == nil && !website.RetryBudgetSpent() {
		return models.CrawlPending, models.JobFailed, &msg
	}
	return models.CrawlFailed, models.JobFailed, &msg
}

func crawlSucceeded(status models.CrawlStatus) bool {
	return status == models.CrawlCompleted || status == models.CrawlNoListingsFound
}

// CancelCrawl closes a running crawl job as failed and releases the
// per-website exclusion so a future crawl can be initiated.
func (s *Service) CancelCrawl(ctx context.Context, jobID string) error {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return err
	}
	if job.WorkflowName != models.WorkflowCrawl || job.WebsiteID == nil {
		return apperrors.Validationf("job %s is not a crawl job", jobID)
	}
	if job.Status != models.JobRunning {
		return apperrors.Validationf("job %s is not running", jobID)
	}

	msg := "cancelled by operator"
	if err = s.jobs.Complete(ctx, jobID, models.JobFailed, &msg); err != nil {
		return err
	}
	return s.websites.SetCrawlOutcome(ctx, *job.WebsiteID, models.CrawlFailed, &msg, false)
}

// abortCrawl releases the per-website claim and closes the ledger job after
// a mid-crawl store failure, so the website does not sit in crawling with no
// crawl behind it. Best effort; the caller reports the cause. State that
// already settled (a terminal crawl status, a closed job) is left alone.
func (s *Service) abortCrawl(ctx context.Context, websiteID, jobID string, cause error) {
	msg := cause.Error()

	website, err := s.websites.GetByID(ctx, websiteID)
	if err == nil && website.CrawlStatus == models.CrawlCrawling {
		status := models.CrawlPending
		if website.RetryBudgetSpent() {
			status = models.CrawlFailed
		}
		if outcomeErr := s.websites.SetCrawlOutcome(ctx, websiteID, status, &msg, false); outcomeErr != nil {
			s.logger.Error("Failed to release crawl claim after error",
				logger.String("website_id", websiteID),
				logger.Error(outcomeErr),
			)
		}
	}

	job, err := s.jobs.GetByID(ctx, jobID)
	if err == nil && job.Status == models.JobRunning {
		if closeErr := s.jobs.Complete(ctx, jobID, models.JobFailed, &msg); closeErr != nil {
			s.logger.Error("Failed to close crawl job after error",
				logger.String("job_id", jobID),
				logger.Error(closeErr),
			)
		}
	}
}

// Outcome summarizes one driven crawl for run statistics.
type Outcome struct {
	JobID        string
	Status       models.CrawlStatus
	PagesCrawled int
	Drafts       int
}

// Execute runs a full crawl: claim the website, walk pages through the
// extractor until the frontier or the page budget is exhausted, then
// finalize. The page budget is cooperative; the loop checks it between
// fetches rather than killing in-flight work.
func (s *Service) Execute(ctx context.Context, websiteID string, manual bool) (*Outcome, error) {
	website, err := s.websites.GetByID(ctx, websiteID)
	if err != nil {
		return nil, err
	}

	job, err := s.InitiateCrawl(ctx, websiteID, manual)
	if err != nil {
		return nil, err
	}

	queue := []string{website.URL}
	visited := make(map[string]bool)
	pages := 0
	draftTotal := 0

	for len(queue) > 0 {
		pageURL := queue[0]
		queue = queue[1:]
		if visited[pageURL] {
			continue
		}
		visited[pageURL] = true

		outcome := models.PageFetched
		var pageErr *string
		var draftContents []models.DraftContent

		result, fetchErr := s.fetcher.FetchPage(ctx, pageURL)
		if fetchErr != nil {
			outcome = models.PageErrored
			msg := fetchErr.Error()
			pageErr = &msg
		} else {
			draftContents = result.Drafts
			for _, link := range result.Links {
				if !visited[link] {
					queue = append(queue, link)
				}
			}
		}

		budgetReached, recordErr := s.RecordPageResult(
			ctx, websiteID, job.ID, pageURL, outcome, pageErr, draftContents)
		if recordErr != nil {
			s.abortCrawl(ctx, websiteID, job.ID, recordErr)
			return nil, recordErr
		}
		pages++
		draftTotal += len(draftContents)

		if budgetReached {
			break
		}
	}

	finalized, err := s.FinalizeCrawl(ctx, websiteID, job.ID)
	if err != nil {
		s.abortCrawl(ctx, websiteID, job.ID, err)
		return nil, err
	}

	return &Outcome{
		JobID:        job.ID,
		Status:       finalized.CrawlStatus,
		PagesCrawled: pages,
		Drafts:       draftTotal,
	}, nil
}
