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

const batchColumns = `id, website_id, dedup_key, status, expires_at, created_at, updated_at`

const proposalColumns = `
	id, batch_id, operation, target_entity_id, draft_entity_id, merge_source_ids,
	status, reason, created_at, decided_at
`

// SyncRepository handles database operations for sync batches and proposals.
// Batch status is only ever written in the same transaction as the proposal
// statuses it derives from.
type SyncRepository struct {
	db *sqlx.DB
}

// NewSyncRepository creates a new sync repository.
func NewSyncRepository(db *sqlx.DB) *SyncRepository {
	return &SyncRepository{db: db}
}

// CreateBatchWithProposals inserts a batch and all its member proposals in
// one transaction: they exist together or not at all.
func (r *SyncRepository) CreateBatchWithProposals(ctx context.Context, batch *models.SyncBatch, proposals []*models.SyncProposal) error {
	batch.ID = uuid.New().String()
	batch.Status = models.BatchPending
	batch.CreatedAt = time.Now().UTC()
	batch.UpdatedAt = batch.CreatedAt

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	batchQuery := `
		INSERT INTO sync_batches (id, website_id, dedup_key, status, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	if _, err = tx.ExecContext(ctx, batchQuery,
		batch.ID, batch.WebsiteID, batch.DedupKey, batch.Status,
		batch.ExpiresAt, batch.CreatedAt, batch.UpdatedAt); err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}

	proposalQuery := `
		INSERT INTO sync_proposals (id, batch_id, operation, target_entity_id, draft_entity_id, merge_source_ids, status, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	for _, p := range proposals {
		p.ID = uuid.New().String()
		p.BatchID = batch.ID
		p.Status = models.ProposalPending
		p.CreatedAt = time.Now().UTC()

		if _, err = tx.ExecContext(ctx, proposalQuery,
			p.ID, p.BatchID, p.OpKind, p.TargetID, p.DraftID,
			p.SourceIDs, p.Status, p.Reason, p.CreatedAt); err != nil {
			return fmt.Errorf("insert proposal: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}

	return nil
}

// GetBatch retrieves a batch by its ID.
func (r *SyncRepository) GetBatch(ctx context.Context, id string) (*models.SyncBatch, error) {
	var batch models.SyncBatch
	query := `SELECT ` + batchColumns + ` FROM sync_batches WHERE id = $1`

	err := r.db.GetContext(ctx, &batch, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFoundf("batch %s", id)
		}
		return nil, fmt.Errorf("get batch: %w", err)
	}

	return &batch, nil
}

// GetBatchByDedupKey retrieves a batch by its idempotency key.
func (r *SyncRepository) GetBatchByDedupKey(ctx context.Context, key string) (*models.SyncBatch, error) {
	var batch models.SyncBatch
	query := `SELECT ` + batchColumns + ` FROM sync_batches WHERE dedup_key = $1`

	err := r.db.GetContext(ctx, &batch, query, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFoundf("batch with dedup key %s", key)
		}
		return nil, fmt.Errorf("get batch by dedup key: %w", err)
	}

	return &batch, nil
}

// BatchFilter holds filters for listing batches.
type BatchFilter struct {
	Status    models.BatchStatus
	WebsiteID string
	Limit     int
	Offset    int
}

// ListBatches retrieves batches with optional filtering, newest first.
func (r *SyncRepository) ListBatches(ctx context.Context, filter BatchFilter) ([]*models.SyncBatch, error) {
	query := `
		SELECT ` + batchColumns + `
		FROM sync_batches
		WHERE ($1 = '' OR status = $1)
		  AND ($2 = '' OR website_id::text = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	var batches []*models.SyncBatch
	err := r.db.SelectContext(ctx, &batches, query,
		string(filter.Status), filter.WebsiteID, limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}

	if batches == nil {
		batches = []*models.SyncBatch{}
	}

	return batches, nil
}

// GetProposal retrieves a proposal by its ID.
func (r *SyncRepository) GetProposal(ctx context.Context, id string) (*models.SyncProposal, error) {
	var p models.SyncProposal
	query := `SELECT ` + proposalColumns + ` FROM sync_proposals WHERE id = $1`

	err := r.db.GetContext(ctx, &p, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFoundf("proposal %s", id)
		}
		return nil, fmt.Errorf("get proposal: %w", err)
	}

	if hydrateErr := hydrateOperation(&p); hydrateErr != nil {
		return nil, hydrateErr
	}

	return &p, nil
}

// ListBatchProposals returns all proposals of a batch in creation order.
func (r *SyncRepository) ListBatchProposals(ctx context.Context, batchID string) ([]*models.SyncProposal, error) {
	query := `SELECT ` + proposalColumns + ` FROM sync_proposals WHERE batch_id = $1 ORDER BY created_at ASC`

	var proposals []*models.SyncProposal
	err := r.db.SelectContext(ctx, &proposals, query, batchID)
	if err != nil {
		return nil, fmt.Errorf("list proposals: %w", err)
	}

	for _, p := range proposals {
		if hydrateErr := hydrateOperation(p); hydrateErr != nil {
			return nil, hydrateErr
		}
	}

	if proposals == nil {
		proposals = []*models.SyncProposal{}
	}

	return proposals, nil
}

// hydrateOperation rebuilds the tagged-union Op from flattened columns.
func hydrateOperation(p *models.SyncProposal) error {
	op, err := models.OperationFromRecord(p.OpKind, p.TargetID, p.DraftID, p.SourceIDs)
	if err != nil {
		return fmt.Errorf("proposal %s: %w", p.ID, err)
	}
	p.Op = op
	return nil
}

// ApplyDecisions writes proposal decisions, the resulting canonical-listing
// mutations, and the derived batch status in a single transaction. Either
// everything lands or nothing does.
func (r *SyncRepository) ApplyDecisions(
	ctx context.Context,
	batchID string,
	batchStatus models.BatchStatus,
	decisions []models.ProposalDecision,
	mutations models.ListingMutations,
) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	decisionQuery := `
		UPDATE sync_proposals SET status = $1, decided_at = NOW()
		WHERE id = $2 AND batch_id = $3 AND status = 'pending'
	`

	for _, d := range decisions {
		result, execErr := tx.ExecContext(ctx, decisionQuery, d.Status, d.ProposalID, batchID)
		if rowsErr := execRequireRows(result, execErr, apperrors.ErrStaleProposal); rowsErr != nil {
			return fmt.Errorf("decide proposal %s: %w", d.ProposalID, rowsErr)
		}
	}

	if err = applyMutations(ctx, tx, mutations); err != nil {
		return err
	}

	batchQuery := `UPDATE sync_batches SET status = $1, updated_at = NOW() WHERE id = $2`
	result, execErr := tx.ExecContext(ctx, batchQuery, batchStatus, batchID)
	if rowsErr := execRequireRows(result, execErr, apperrors.NotFoundf("batch %s", batchID)); rowsErr != nil {
		return rowsErr
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit decisions: %w", err)
	}

	return nil
}

func applyMutations(ctx context.Context, tx *sqlx.Tx, m models.ListingMutations) error {
	createQuery := `
		INSERT INTO listings (id, title, summary, url, website_id, status, tags, has_embedding, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
	`

	for _, l := range m.Creates {
		if l.ID == "" {
			l.ID = uuid.New().String()
		}
		if _, err := tx.ExecContext(ctx, createQuery,
			l.ID, l.Title, l.Summary, l.URL, l.WebsiteID, l.Status, l.Tags, l.HasEmbedding); err != nil {
			return fmt.Errorf("create listing: %w", err)
		}
	}

	updateQuery := `
		UPDATE listings SET title = $1, summary = $2, url = $3, status = $4, tags = $5, updated_at = NOW()
		WHERE id = $6
	`

	for _, l := range m.Updates {
		result, err := tx.ExecContext(ctx, updateQuery,
			l.Title, l.Summary, l.URL, l.Status, l.Tags, l.ID)
		if rowsErr := execRequireRows(result, err, apperrors.NotFoundf("listing %s", l.ID)); rowsErr != nil {
			return rowsErr
		}
	}

	if len(m.ArchiveIDs) > 0 {
		query, args, err := sqlx.In(
			`UPDATE listings SET status = 'archived', updated_at = NOW() WHERE id IN (?)`,
			m.ArchiveIDs)
		if err != nil {
			return fmt.Errorf("build archive query: %w", err)
		}
		query = tx.Rebind(query)
		if _, err = tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("archive listings: %w", err)
		}
	}

	return nil
}

// MarkExpired sets a batch's status to expired. Member proposals keep their
// pending status but are permanently void.
func (r *SyncRepository) MarkExpired(ctx context.Context, batchID string) error {
	query := `
		UPDATE sync_batches SET status = 'expired', updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'partially_reviewed')
	`

	result, err := r.db.ExecContext(ctx, query, batchID)
	return execRequireRows(result, err, apperrors.NotFoundf("expirable batch %s", batchID))
}

// ListExpiredDue returns batches whose TTL elapsed while proposals were still
// pending and whose status does not yet say so.
func (r *SyncRepository) ListExpiredDue(ctx context.Context, now time.Time) ([]*models.SyncBatch, error) {
	query := `
		SELECT ` + batchColumns + `
		FROM sync_batches b
		WHERE b.expires_at < $1
		  AND b.status IN ('pending', 'partially_reviewed')
		  AND EXISTS (SELECT 1 FROM sync_proposals p WHERE p.batch_id = b.id AND p.status = 'pending')
	`

	var batches []*models.SyncBatch
	err := r.db.SelectContext(ctx, &batches, query, now)
	if err != nil {
		return nil, fmt.Errorf("list expired batches: %w", err)
	}
	if batches == nil {
		batches = []*models.SyncBatch{}
	}
	return batches, nil
}
