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

// SnapshotRepository handles database operations for page snapshots and the
// draft listings extracted from them.
type SnapshotRepository struct {
	db *sqlx.DB
}

// NewSnapshotRepository creates a new snapshot repository.
func NewSnapshotRepository(db *sqlx.DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// CreateSnapshot inserts a page snapshot and its draft listings atomically.
func (r *SnapshotRepository) CreateSnapshot(ctx context.Context, snap *models.PageSnapshot, drafts []models.DraftContent) ([]*models.DraftListing, error) {
	snap.ID = uuid.New().String()
	snap.DraftCount = len(drafts)
	snap.CreatedAt = time.Now().UTC()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	snapQuery := `
		INSERT INTO page_snapshots (id, website_id, job_id, page_url, outcome, error_message, draft_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err = tx.ExecContext(ctx, snapQuery,
		snap.ID, snap.WebsiteID, snap.JobID, snap.PageURL, snap.Outcome,
		snap.ErrorMessage, snap.DraftCount, snap.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert page snapshot: %w", err)
	}

	created := make([]*models.DraftListing, 0, len(drafts))
	draftQuery := `
		INSERT INTO draft_listings (id, snapshot_id, website_id, content, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	for _, content := range drafts {
		draft := &models.DraftListing{
			ID:         uuid.New().String(),
			SnapshotID: snap.ID,
			WebsiteID:  snap.WebsiteID,
			Content:    content,
			CreatedAt:  time.Now().UTC(),
		}
		if _, err = tx.ExecContext(ctx, draftQuery,
			draft.ID, draft.SnapshotID, draft.WebsiteID, draft.Content, draft.CreatedAt); err != nil {
			return nil, fmt.Errorf("insert draft listing: %w", err)
		}
		created = append(created, draft)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit snapshot: %w", err)
	}

	return created, nil
}

// ListByJob returns all page snapshots recorded under a crawl job.
func (r *SnapshotRepository) ListByJob(ctx context.Context, jobID string) ([]*models.PageSnapshot, error) {
	query := `
		SELECT id, website_id, job_id, page_url, outcome, error_message, draft_count, created_at
		FROM page_snapshots
		WHERE job_id = $1
		ORDER BY created_at ASC
	`

	var snaps []*models.PageSnapshot
	err := r.db.SelectContext(ctx, &snaps, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	if snaps == nil {
		snaps = []*models.PageSnapshot{}
	}
	return snaps, nil
}

// ListDraftsByJob returns the draft listings extracted during a crawl job.
func (r *SnapshotRepository) ListDraftsByJob(ctx context.Context, jobID string) ([]*models.DraftListing, error) {
	query := `
		SELECT d.id, d.snapshot_id, d.website_id, d.content, d.created_at
		FROM draft_listings d
		JOIN page_snapshots s ON s.id = d.snapshot_id
		WHERE s.job_id = $1
		ORDER BY d.created_at ASC
	`

	var drafts []*models.DraftListing
	err := r.db.SelectContext(ctx, &drafts, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("list drafts: %w", err)
	}
	if drafts == nil {
		drafts = []*models.DraftListing{}
	}
	return drafts, nil
}

// GetDraft retrieves a single draft listing.
func (r *SnapshotRepository) GetDraft(ctx context.Context, id string) (*models.DraftListing, error) {
	var draft models.DraftListing
	query := `
		SELECT id, snapshot_id, website_id, content, created_at
		FROM draft_listings
		WHERE id = $1
	`

	err := r.db.GetContext(ctx, &draft, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFoundf("draft listing %s", id)
		}
		return nil, fmt.Errorf("get draft listing: %w", err)
	}

	return &draft, nil
}
