package crawl_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/curation-engine/internal/apperrors"
	"github.com/jonesrussell/curation-engine/internal/crawl"
	"github.com/jonesrussell/curation-engine/internal/extractor"
	"github.com/jonesrussell/curation-engine/internal/models"
	"github.com/jonesrussell/curation-engine/internal/testhelpers"
)

type fakeWebsiteStore struct {
	website *models.Website
}

func (f *fakeWebsiteStore) GetByID(_ context.Context, id string) (*models.Website, error) {
	if f.website == nil || f.website.ID != id {
		return nil, apperrors.NotFoundf("website %s", id)
	}
	copied := *f.website
	return &copied, nil
}

func (f *fakeWebsiteStore) BeginCrawl(_ context.Context, id string, resetAttempts bool) error {
	if f.website == nil || f.website.ID != id {
		return apperrors.NotFoundf("website %s", id)
	}
	if f.website.ModerationStatus != models.ModerationApproved || f.website.CrawlStatus == models.CrawlCrawling {
		return fmt.Errorf("%w: website %s", apperrors.ErrAlreadyCrawling, id)
	}
	f.website.CrawlStatus = models.CrawlCrawling
	if resetAttempts {
		f.website.CrawlAttemptCount = 1
	} else {
		f.website.CrawlAttemptCount++
	}
	f.website.PagesCrawledCount = 0
	f.website.LastCrawlError = nil
	return nil
}

func (f *fakeWebsiteStore) IncrementPages(_ context.Context, id string) (int, error) {
	if f.website == nil || f.website.ID != id {
		return 0, apperrors.NotFoundf("website %s", id)
	}
	f.website.PagesCrawledCount++
	return f.website.PagesCrawledCount, nil
}

func (f *fakeWebsiteStore) SetCrawlOutcome(_ context.Context, id string, status models.CrawlStatus, lastError *string, resetAttempts bool) error {
	if f.website == nil || f.website.ID != id {
		return apperrors.NotFoundf("website %s", id)
	}
	f.website.CrawlStatus = status
	f.website.LastCrawlError = lastError
	if resetAttempts {
		f.website.CrawlAttemptCount = 0
	}
	return nil
}

type fakeSnapshotStore struct {
	snapshots     []*models.PageSnapshot
	drafts        []*models.DraftListing
	createErr     error
	listDraftsErr error
}

func (f *fakeSnapshotStore) CreateSnapshot(_ context.Context, snap *models.PageSnapshot, drafts []models.DraftContent) ([]*models.DraftListing, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	snap.ID = fmt.Sprintf("snap-%d", len(f.snapshots)+1)
	snap.DraftCount = len(drafts)
	f.snapshots = append(f.snapshots, snap)

	created := make([]*models.DraftListing, 0, len(drafts))
	for _, content := range drafts {
		draft := &models.DraftListing{
			ID:         fmt.Sprintf("draft-%d", len(f.drafts)+1),
			SnapshotID: snap.ID,
			WebsiteID:  snap.WebsiteID,
			Content:    content,
		}
		f.drafts = append(f.drafts, draft)
		created = append(created, draft)
	}
	return created, nil
}

func (f *fakeSnapshotStore) ListByJob(_ context.Context, jobID string) ([]*models.PageSnapshot, error) {
	var out []*models.PageSnapshot
	for _, snap := range f.snapshots {
		if snap.JobID == jobID {
			out = append(out, snap)
		}
	}
	return out, nil
}

func (f *fakeSnapshotStore) ListDraftsByJob(_ context.Context, jobID string) ([]*models.DraftListing, error) {
	if f.listDraftsErr != nil {
		return nil, f.listDraftsErr
	}
	bySnapshot := make(map[string]bool)
	for _, snap := range f.snapshots {
		if snap.JobID == jobID {
			bySnapshot[snap.ID] = true
		}
	}
	var out []*models.DraftListing
	for _, draft := range f.drafts {
		if bySnapshot[draft.SnapshotID] {
			out = append(out, draft)
		}
	}
	return out, nil
}

type fakeJobStore struct {
	jobs map[string]*models.Job
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{jobs: make(map[string]*models.Job)}
}

func (f *fakeJobStore) Create(_ context.Context, job *models.Job) error {
	job.ID = fmt.Sprintf("job-%d", len(f.jobs)+1)
	job.Status = models.JobRunning
	f.jobs[job.ID] = job
	return nil
}

func (f *fakeJobStore) GetByID(_ context.Context, id string) (*models.Job, error) {
	job, ok := f.jobs[id]
	if !ok {
		return nil, apperrors.NotFoundf("job %s", id)
	}
	copied := *job
	return &copied, nil
}

func (f *fakeJobStore) UpdateProgress(_ context.Context, id, progress string) error {
	job, ok := f.jobs[id]
	if !ok {
		return apperrors.NotFoundf("job %s", id)
	}
	job.Progress = progress
	return nil
}

func (f *fakeJobStore) Complete(_ context.Context, id string, status models.JobStatus, errMsg *string) error {
	job, ok := f.jobs[id]
	if !ok {
		return apperrors.NotFoundf("job %s", id)
	}
	job.Status = status
	job.ErrorMessage = errMsg
	return nil
}

type fakeBatchOpener struct {
	opened map[string][]*models.DraftListing
}

func newFakeBatchOpener() *fakeBatchOpener {
	return &fakeBatchOpener{opened: make(map[string][]*models.DraftListing)}
}

func (f *fakeBatchOpener) OpenCrawlBatch(_ context.Context, jobID, websiteID string, drafts []*models.DraftListing) (*models.SyncBatch, error) {
	f.opened[jobID] = drafts
	return &models.SyncBatch{ID: "batch-" + jobID, WebsiteID: &websiteID, DedupKey: jobID}, nil
}

// fakeFetcher serves canned page results keyed by URL. Unknown URLs error.
type fakeFetcher struct {
	pages map[string]*extractor.PageResult
}

func (f *fakeFetcher) FetchPage(_ context.Context, pageURL string) (*extractor.PageResult, error) {
	result, ok := f.pages[pageURL]
	if !ok {
		return nil, fmt.Errorf("connection refused: %s", pageURL)
	}
	return result, nil
}

type crawlFixture struct {
	websites  *fakeWebsiteStore
	snapshots *fakeSnapshotStore
	jobs      *fakeJobStore
	batches   *fakeBatchOpener
	fetcher   *fakeFetcher
	service   *crawl.Service
}

func newCrawlFixture(website *models.Website, pages map[string]*extractor.PageResult) *crawlFixture {
	f := &crawlFixture{
		websites:  &fakeWebsiteStore{website: website},
		snapshots: &fakeSnapshotStore{},
		jobs:      newFakeJobStore(),
		batches:   newFakeBatchOpener(),
		fetcher:   &fakeFetcher{pages: pages},
	}
	f.service = crawl.NewService(
		f.websites, f.snapshots, f.jobs, f.batches, f.fetcher,
		nil, testhelpers.NewTestLogger())
	return f
}

func approvedWebsite() *models.Website {
	return &models.Website{
		ID:               "site-1",
		Domain:           "example.org",
		URL:              "https://example.org",
		ModerationStatus: models.ModerationApproved,
		CrawlStatus:      models.CrawlNone,
		MaxCrawlRetries:  3,
		MaxPagesPerCrawl: 5,
	}
}

func TestExecuteCompletedWithDrafts(t *testing.T) {
	pages := map[string]*extractor.PageResult{
		"https://example.org": {
			Links: []string{"https://example.org/programs"},
		},
		"https://example.org/programs": {
			Drafts: []models.DraftContent{
				{Title: "Youth Soccer League", Summary: "Weekly games"},
				{Title: "Seniors Book Club"},
			},
		},
	}
	f := newCrawlFixture(approvedWebsite(), pages)

	outcome, err := f.service.Execute(context.Background(), "site-1", false)
	require.NoError(t, err)

	assert.Equal(t, models.CrawlCompleted, outcome.Status)
	assert.Equal(t, 2, outcome.PagesCrawled)
	assert.Equal(t, 2, outcome.Drafts)

	assert.Equal(t, models.CrawlCompleted, f.websites.website.CrawlStatus)
	// Success re-arms the automatic retry budget.
	assert.Equal(t, 0, f.websites.website.CrawlAttemptCount)

	job := f.jobs.jobs[outcome.JobID]
	require.NotNil(t, job)
	assert.Equal(t, models.JobCompleted, job.Status)

	// Drafts are handed to review keyed by the job id.
	require.Contains(t, f.batches.opened, outcome.JobID)
	assert.Len(t, f.batches.opened[outcome.JobID], 2)
}

func TestExecuteNoListingsFound(t *testing.T) {
	pages := map[string]*extractor.PageResult{
		"https://example.org": {
			Links: []string{
				"https://example.org/a",
				"https://example.org/b",
			},
		},
		"https://example.org/a": {},
		"https://example.org/b": {},
	}
	f := newCrawlFixture(approvedWebsite(), pages)

	outcome, err := f.service.Execute(context.Background(), "site-1", false)
	require.NoError(t, err)

	assert.Equal(t, models.CrawlNoListingsFound, outcome.Status)
	assert.Equal(t, 3, outcome.PagesCrawled)
	assert.Zero(t, outcome.Drafts)
	assert.Empty(t, f.batches.opened, "no drafts means no review batch")
}

func TestExecutePageBudgetCooperative(t *testing.T) {
	// Every page links onward forever; the budget must stop the walk.
	pages := make(map[string]*extractor.PageResult)
	pages["https://example.org"] = &extractor.PageResult{Links: []string{"https://example.org/p1"}}
	for i := 1; i <= 20; i++ {
		pages[fmt.Sprintf("https://example.org/p%d", i)] = &extractor.PageResult{
			Links: []string{fmt.Sprintf("https://example.org/p%d", i+1)},
		}
	}

	website := approvedWebsite()
	website.MaxPagesPerCrawl = 5
	f := newCrawlFixture(website, pages)

	outcome, err := f.service.Execute(context.Background(), "site-1", false)
	require.NoError(t, err)

	assert.Equal(t, 5, outcome.PagesCrawled)
	assert.Equal(t, 5, f.websites.website.PagesCrawledCount)
	assert.Equal(t, models.CrawlNoListingsFound, outcome.Status)
}

func TestExecuteFailureWithinBudgetReturnsToPending(t *testing.T) {
	f := newCrawlFixture(approvedWebsite(), map[string]*extractor.PageResult{})

	outcome, err := f.service.Execute(context.Background(), "site-1", false)
	require.NoError(t, err)

	assert.Equal(t, models.CrawlPending, outcome.Status)
	assert.Equal(t, 1, f.websites.website.CrawlAttemptCount)
	require.NotNil(t, f.websites.website.LastCrawlError)

	job := f.jobs.jobs[outcome.JobID]
	assert.Equal(t, models.JobFailed, job.Status)
}

func TestExecuteRetryBudgetExhaustion(t *testing.T) {
	website := approvedWebsite()
	website.MaxCrawlRetries = 2
	f := newCrawlFixture(website, map[string]*extractor.PageResult{})

	// Attempts 1 and 2 fail back to pending; attempt 3 exhausts the budget.
	for i := 0; i < 2; i++ {
		outcome, err := f.service.Execute(context.Background(), "site-1", false)
		require.NoError(t, err)
		assert.Equal(t, models.CrawlPending, outcome.Status)
	}

	outcome, err := f.service.Execute(context.Background(), "site-1", false)
	require.NoError(t, err)
	assert.Equal(t, models.CrawlFailed, outcome.Status)
	assert.Equal(t, website.MaxCrawlRetries+1, f.websites.website.CrawlAttemptCount)

	// Automatic initiation is now refused.
	_, err = f.service.Execute(context.Background(), "site-1", false)
	assert.ErrorIs(t, err, apperrors.ErrExhaustedRetries)
}

func TestExecuteManualReArmsExhaustedWebsite(t *testing.T) {
	website := approvedWebsite()
	website.CrawlStatus = models.CrawlFailed
	website.CrawlAttemptCount = website.MaxCrawlRetries + 1

	pages := map[string]*extractor.PageResult{
		"https://example.org": {
			Drafts: []models.DraftContent{{Title: "Community Garden"}},
		},
	}
	f := newCrawlFixture(website, pages)

	_, err := f.service.Execute(context.Background(), "site-1", false)
	require.ErrorIs(t, err, apperrors.ErrExhaustedRetries)

	outcome, err := f.service.Execute(context.Background(), "site-1", true)
	require.NoError(t, err)
	assert.Equal(t, models.CrawlCompleted, outcome.Status)
}

func TestExecuteSnapshotFailureReleasesClaim(t *testing.T) {
	pages := map[string]*extractor.PageResult{"https://example.org": {}}
	f := newCrawlFixture(approvedWebsite(), pages)
	f.snapshots.createErr = fmt.Errorf("db connection reset")

	_, err := f.service.Execute(context.Background(), "site-1", false)
	require.Error(t, err)

	// The claim is released; the failure counts as a spent attempt and the
	// website returns to pending for an automatic retry.
	assert.Equal(t, models.CrawlPending, f.websites.website.CrawlStatus)
	assert.Equal(t, 1, f.websites.website.CrawlAttemptCount)
	require.NotNil(t, f.websites.website.LastCrawlError)

	job := f.jobs.jobs["job-1"]
	require.NotNil(t, job)
	assert.Equal(t, models.JobFailed, job.Status)

	// A fresh crawl can start without an operator cancelling anything.
	f.snapshots.createErr = nil
	outcome, err := f.service.Execute(context.Background(), "site-1", false)
	require.NoError(t, err)
	assert.Equal(t, models.CrawlNoListingsFound, outcome.Status)
}

func TestExecuteSnapshotFailureSpentBudgetStaysFailed(t *testing.T) {
	website := approvedWebsite()
	website.MaxCrawlRetries = 0
	f := newCrawlFixture(website, map[string]*extractor.PageResult{"https://example.org": {}})
	f.snapshots.createErr = fmt.Errorf("db connection reset")

	_, err := f.service.Execute(context.Background(), "site-1", false)
	require.Error(t, err)
	assert.Equal(t, models.CrawlFailed, f.websites.website.CrawlStatus)
	assert.Equal(t, models.JobFailed, f.jobs.jobs["job-1"].Status)
}

func TestExecuteFinalizeFailureClosesJob(t *testing.T) {
	pages := map[string]*extractor.PageResult{
		"https://example.org": {Drafts: []models.DraftContent{{Title: "Garden Club"}}},
	}
	f := newCrawlFixture(approvedWebsite(), pages)
	f.snapshots.listDraftsErr = fmt.Errorf("db connection reset")

	_, err := f.service.Execute(context.Background(), "site-1", false)
	require.Error(t, err)

	assert.Equal(t, models.CrawlPending, f.websites.website.CrawlStatus)
	assert.Equal(t, models.JobFailed, f.jobs.jobs["job-1"].Status)
	assert.Empty(t, f.batches.opened)
}

func TestInitiateCrawlGuards(t *testing.T) {
	t.Run("not approved", func(t *testing.T) {
		website := approvedWebsite()
		website.ModerationStatus = models.ModerationPendingReview
		f := newCrawlFixture(website, nil)

		_, err := f.service.InitiateCrawl(context.Background(), "site-1", false)
		assert.ErrorIs(t, err, apperrors.ErrNotApproved)
	})

	t.Run("suspended", func(t *testing.T) {
		website := approvedWebsite()
		website.ModerationStatus = models.ModerationSuspended
		f := newCrawlFixture(website, nil)

		_, err := f.service.InitiateCrawl(context.Background(), "site-1", false)
		assert.ErrorIs(t, err, apperrors.ErrNotApproved)
	})

	t.Run("already crawling", func(t *testing.T) {
		website := approvedWebsite()
		website.CrawlStatus = models.CrawlCrawling
		f := newCrawlFixture(website, nil)

		_, err := f.service.InitiateCrawl(context.Background(), "site-1", false)
		assert.ErrorIs(t, err, apperrors.ErrAlreadyCrawling)
	})

	t.Run("unknown website", func(t *testing.T) {
		f := newCrawlFixture(approvedWebsite(), nil)

		_, err := f.service.InitiateCrawl(context.Background(), "missing", false)
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})
}

func TestRecordPageResultRequiresCrawling(t *testing.T) {
	f := newCrawlFixture(approvedWebsite(), nil)

	_, err := f.service.RecordPageResult(
		context.Background(), "site-1", "job-1", "https://example.org",
		models.PageFetched, nil, nil)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestCancelCrawl(t *testing.T) {
	f := newCrawlFixture(approvedWebsite(), nil)

	job, err := f.service.InitiateCrawl(context.Background(), "site-1", false)
	require.NoError(t, err)
	assert.Equal(t, models.CrawlCrawling, f.websites.website.CrawlStatus)

	require.NoError(t, f.service.CancelCrawl(context.Background(), job.ID))

	assert.Equal(t, models.JobFailed, f.jobs.jobs[job.ID].Status)
	assert.Equal(t, models.CrawlFailed, f.websites.website.CrawlStatus)

	// Cancelling a job that is no longer running is rejected.
	err = f.service.CancelCrawl(context.Background(), job.ID)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestCancelCrawlRejectsNonCrawlJob(t *testing.T) {
	f := newCrawlFixture(approvedWebsite(), nil)

	job := &models.Job{WorkflowName: models.WorkflowExtraction}
	require.NoError(t, f.jobs.Create(context.Background(), job))

	err := f.service.CancelCrawl(context.Background(), job.ID)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}
