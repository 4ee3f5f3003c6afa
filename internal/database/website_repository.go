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

const websiteColumns = `
	id, domain, url, discovered_by_agent, moderation_status, crawl_status,
	crawl_attempt_count, max_crawl_retries, pages_crawled_count, max_pages_per_crawl,
	last_crawl_error, created_at, updated_at
`

// WebsiteRepository handles database operations for websites.
type WebsiteRepository struct {
	db *sqlx.DB
}

// NewWebsiteRepository creates a new website repository.
func NewWebsiteRepository(db *sqlx.DB) *WebsiteRepository {
	return &WebsiteRepository{db: db}
}

// Create inserts a new website.
func (r *WebsiteRepository) Create(ctx context.Context, w *models.Website) error {
	w.ID = uuid.New().String()
	w.CreatedAt = time.Now().UTC()
	w.UpdatedAt = w.CreatedAt

	query := `
		INSERT INTO websites (
			id, domain, url, discovered_by_agent, moderation_status, crawl_status,
			crawl_attempt_count, max_crawl_retries, pages_crawled_count, max_pages_per_crawl,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.db.ExecContext(ctx, query,
		w.ID, w.Domain, w.URL, w.DiscoveredByAgent, w.ModerationStatus, w.CrawlStatus,
		w.CrawlAttemptCount, w.MaxCrawlRetries, w.PagesCrawledCount, w.MaxPagesPerCrawl,
		w.CreatedAt, w.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert website: %w", err)
	}

	return nil
}

// GetByID retrieves a website by its ID.
func (r *WebsiteRepository) GetByID(ctx context.Context, id string) (*models.Website, error) {
	var w models.Website
	query := `SELECT ` + websiteColumns + ` FROM websites WHERE id = $1`

	err := r.db.GetContext(ctx, &w, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFoundf("website %s", id)
		}
		return nil, fmt.Errorf("get website: %w", err)
	}

	return &w, nil
}

// GetByDomain retrieves a website by its domain.
func (r *WebsiteRepository) GetByDomain(ctx context.Context, domain string) (*models.Website, error) {
	var w models.Website
	query := `SELECT ` + websiteColumns + ` FROM websites WHERE domain = $1`

	err := r.db.GetContext(ctx, &w, query, domain)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFoundf("website domain %s", domain)
		}
		return nil, fmt.Errorf("get website by domain: %w", err)
	}

	return &w, nil
}

// WebsiteFilter holds filters for listing websites.
type WebsiteFilter struct {
	ModerationStatus models.ModerationStatus
	CrawlStatus      models.CrawlStatus
	AgentID          string
	Limit            int
	Offset           int
}

// List retrieves websites with optional filtering, newest first.
func (r *WebsiteRepository) List(ctx context.Context, filter WebsiteFilter) ([]*models.Website, error) {
	query := `
		SELECT ` + websiteColumns + `
		FROM websites
		WHERE ($1 = '' OR moderation_status = $1)
		  AND ($2 = '' OR crawl_status = $2)
		  AND ($3 = '' OR discovered_by_agent::text = $3)
		ORDER BY created_at DESC
		LIMIT $4 OFFSET $5
	`

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	var websites []*models.Website
	err := r.db.SelectContext(ctx, &websites, query,
		string(filter.ModerationStatus), string(filter.CrawlStatus), filter.AgentID, limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("list websites: %w", err)
	}

	if websites == nil {
		websites = []*models.Website{}
	}

	return websites, nil
}

// SetModerationStatus records an operator moderation decision.
func (r *WebsiteRepository) SetModerationStatus(ctx context.Context, id string, status models.ModerationStatus) error {
	query := `UPDATE websites SET moderation_status = $1, updated_at = NOW() WHERE id = $2`

	result, err := r.db.ExecContext(ctx, query, status, id)
	return execRequireRows(result, err, apperrors.NotFoundf("website %s", id))
}

// BeginCrawl atomically claims the per-website crawl exclusion: it moves the
// website to crawling and bumps the attempt counter only if moderation passed
// and no crawl is in progress. resetAttempts clears the counter first, which
// is how a manual re-trigger re-arms an exhausted website.
// Returns apperrors.ErrAlreadyCrawling when another crawl holds the claim.
func (r *WebsiteRepository) BeginCrawl(ctx context.Context, id string, resetAttempts bool) error {
	query := `
		UPDATE websites
		SET crawl_status = 'crawling',
		    crawl_attempt_count = CASE WHEN $2 THEN 1 ELSE crawl_attempt_count + 1 END,
		    pages_crawled_count = 0,
		    last_crawl_error = NULL,
		    updated_at = NOW()
		WHERE id = $1
		  AND moderation_status = 'approved'
		  AND crawl_status <> 'crawling'
	`

	result, err := r.db.ExecContext(ctx, query, id, resetAttempts)
	return execRequireRows(result, err, apperrors.ErrAlreadyCrawling)
}

// IncrementPages bumps pages_crawled_count and returns the new count.
func (r *WebsiteRepository) IncrementPages(ctx context.Context, id string) (int, error) {
	var count int
	query := `
		UPDATE websites
		SET pages_crawled_count = pages_crawled_count + 1, updated_at = NOW()
		WHERE id = $1
		RETURNING pages_crawled_count
	`

	err := r.db.GetContext(ctx, &count, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, apperrors.NotFoundf("website %s", id)
		}
		return 0, fmt.Errorf("increment pages: %w", err)
	}

	return count, nil
}

// SetCrawlOutcome releases the crawl exclusion with a terminal (or pending,
// for an automatic retry) status. resetAttempts clears the attempt counter on
// successful outcomes so future monitor re-crawls start with a fresh budget.
func (r *WebsiteRepository) SetCrawlOutcome(ctx context.Context, id string, status models.CrawlStatus, lastError *string, resetAttempts bool) error {
	query := `
		UPDATE websites
		SET crawl_status = $1,
		    last_crawl_error = $2,
		    crawl_attempt_count = CASE WHEN $3 THEN 0 ELSE crawl_attempt_count END,
		    updated_at = NOW()
		WHERE id = $4
	`

	result, err := r.db.ExecContext(ctx, query, status, lastError, resetAttempts, id)
	return execRequireRows(result, err, apperrors.NotFoundf("website %s", id))
}

// ListByAgent returns websites discovered by an agent.
func (r *WebsiteRepository) ListByAgent(ctx context.Context, agentID string) ([]*models.Website, error) {
	return r.List(ctx, WebsiteFilter{AgentID: agentID})
}

// ListForExtraction returns approved websites that do not yet have a
// completed crawl and are not currently crawling or out of retry budget.
func (r *WebsiteRepository) ListForExtraction(ctx context.Context, limit int) ([]*models.Website, error) {
	query := `
		SELECT ` + websiteColumns + `
		FROM websites
		WHERE moderation_status = 'approved'
		  AND crawl_status IN ('none', 'pending', 'failed')
		  AND crawl_attempt_count <= max_crawl_retries
		ORDER BY updated_at ASC
		LIMIT $1
	`

	if limit <= 0 {
		limit = 50
	}

	var websites []*models.Website
	err := r.db.SelectContext(ctx, &websites, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list websites for extraction: %w", err)
	}
	if websites == nil {
		websites = []*models.Website{}
	}
	return websites, nil
}

// ListForMonitor returns approved websites with a finished crawl that an
// agent's monitor step should revisit.
func (r *WebsiteRepository) ListForMonitor(ctx context.Context, agentID string, limit int) ([]*models.Website, error) {
	query := `
		SELECT ` + websiteColumns + `
		FROM websites
		WHERE moderation_status = 'approved'
		  AND crawl_status IN ('completed', 'no_listings_found')
		  AND ($1 = '' OR discovered_by_agent::text = $1)
		ORDER BY updated_at ASC
		LIMIT $2
	`

	if limit <= 0 {
		limit = 50
	}

	var websites []*models.Website
	err := r.db.SelectContext(ctx, &websites, query, agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("list websites for monitor: %w", err)
	}
	if websites == nil {
		websites = []*models.Website{}
	}
	return websites, nil
}
