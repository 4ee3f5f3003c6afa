package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/curation-engine/internal/apperrors"
	"github.com/jonesrussell/curation-engine/internal/models"
)

// JobRepository handles database operations for the job ledger.
type JobRepository struct {
	db *sqlx.DB
}

// NewJobRepository creates a new job repository.
func NewJobRepository(db *sqlx.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create opens a new ledger job in running state.
func (r *JobRepository) Create(ctx context.Context, job *models.Job) error {
	job.ID = uuid.New().String()
	job.Status = models.JobRunning
	job.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO jobs (id, workflow_name, website_id, status, progress, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.ExecContext(ctx, query,
		job.ID, job.WorkflowName, job.WebsiteID, job.Status, job.Progress, job.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}

	return nil
}

// GetByID retrieves a job by its ID.
func (r *JobRepository) GetByID(ctx context.Context, id string) (*models.Job, error) {
	var job models.Job
	query := `
		SELECT id, workflow_name, website_id, status, progress, error_message, created_at, completed_at
		FROM jobs
		WHERE id = $1
	`

	err := r.db.GetContext(ctx, &job, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFoundf("job %s", id)
		}
		return nil, fmt.Errorf("get job: %w", err)
	}

	return &job, nil
}

// JobFilter holds filters for listing jobs.
type JobFilter struct {
	WorkflowName string
	WebsiteID    string
	Status       models.JobStatus
	Limit        int
	Offset       int
}

// List retrieves ledger jobs with optional filtering, newest first.
func (r *JobRepository) List(ctx context.Context, filter JobFilter) ([]*models.Job, error) {
	query := `
		SELECT id, workflow_name, website_id, status, progress, error_message, created_at, completed_at
		FROM jobs
		WHERE ($1 = '' OR workflow_name = $1)
		  AND ($2 = '' OR website_id::text = $2)
		  AND ($3 = '' OR status = $3)
		ORDER BY created_at DESC
		LIMIT $4 OFFSET $5
	`

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	var jobs []*models.Job
	err := r.db.SelectContext(ctx, &jobs, query,
		filter.WorkflowName, filter.WebsiteID, string(filter.Status), limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}

	if jobs == nil {
		jobs = []*models.Job{}
	}

	return jobs, nil
}

// UpdateProgress replaces the free-text progress of a running job.
func (r *JobRepository) UpdateProgress(ctx context.Context, id, progress string) error {
	query := `UPDATE jobs SET progress = $1 WHERE id = $2 AND status = 'running'`

	result, err := r.db.ExecContext(ctx, query, progress, id)
	return execRequireRows(result, err, apperrors.NotFoundf("running job %s", id))
}

// Complete closes a job with a terminal status.
func (r *JobRepository) Complete(ctx context.Context, id string, status models.JobStatus, errMsg *string) error {
	query := `
		UPDATE jobs
		SET status = $1, error_message = $2, completed_at = NOW()
		WHERE id = $3 AND status IN ('running', 'suspended')
	`

	result, err := r.db.ExecContext(ctx, query, status, errMsg, id)
	return execRequireRows(result, err, apperrors.NotFoundf("open job %s", id))
}

// CountRunningForWebsite returns the number of running jobs of a workflow
// referencing a website. Used to assert the one-running-crawl invariant.
func (r *JobRepository) CountRunningForWebsite(ctx context.Context, workflow, websiteID string) (int, error) {
	var count int
	query := `
		SELECT COUNT(*) FROM jobs
		WHERE workflow_name = $1 AND website_id = $2 AND status = 'running'
	`

	err := r.db.GetContext(ctx, &count, query, workflow, websiteID)
	if err != nil {
		return 0, fmt.Errorf("count running jobs: %w", err)
	}

	return count, nil
}
