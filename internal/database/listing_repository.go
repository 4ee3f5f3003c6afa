package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/curation-engine/internal/apperrors"
	"github.com/jonesrussell/curation-engine/internal/models"
)

const listingColumns = `
	id, title, summary, url, website_id, status, tags, has_embedding, created_at, updated_at
`

// ListingRepository handles database operations for canonical listings.
type ListingRepository struct {
	db *sqlx.DB
}

// NewListingRepository creates a new listing repository.
func NewListingRepository(db *sqlx.DB) *ListingRepository {
	return &ListingRepository{db: db}
}

// Create inserts a new listing.
func (r *ListingRepository) Create(ctx context.Context, l *models.Listing) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	l.CreatedAt = time.Now().UTC()
	l.UpdatedAt = l.CreatedAt

	query := `
		INSERT INTO listings (id, title, summary, url, website_id, status, tags, has_embedding, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.ExecContext(ctx, query,
		l.ID, l.Title, l.Summary, l.URL, l.WebsiteID, l.Status, l.Tags, l.HasEmbedding,
		l.CreatedAt, l.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert listing: %w", err)
	}

	return nil
}

// GetByID retrieves a listing by its ID.
func (r *ListingRepository) GetByID(ctx context.Context, id string) (*models.Listing, error) {
	var l models.Listing
	query := `SELECT ` + listingColumns + ` FROM listings WHERE id = $1`

	err := r.db.GetContext(ctx, &l, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFoundf("listing %s", id)
		}
		return nil, fmt.Errorf("get listing: %w", err)
	}

	return &l, nil
}

// GetMany retrieves several listings by ID. Missing IDs are simply absent
// from the result.
func (r *ListingRepository) GetMany(ctx context.Context, ids []string) ([]*models.Listing, error) {
	if len(ids) == 0 {
		return []*models.Listing{}, nil
	}

	query, args, err := sqlx.In(`SELECT `+listingColumns+` FROM listings WHERE id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("build listings query: %w", err)
	}
	query = r.db.Rebind(query)

	var listings []*models.Listing
	if err = r.db.SelectContext(ctx, &listings, query, args...); err != nil {
		return nil, fmt.Errorf("get listings: %w", err)
	}
	if listings == nil {
		listings = []*models.Listing{}
	}
	return listings, nil
}

// ListingFilter holds filters for listing canonical listings.
type ListingFilter struct {
	Status    models.ListingStatus
	WebsiteID string
	Limit     int
	Offset    int
}

// List retrieves listings with optional filtering, newest first.
func (r *ListingRepository) List(ctx context.Context, filter ListingFilter) ([]*models.Listing, error) {
	query := `
		SELECT ` + listingColumns + `
		FROM listings
		WHERE ($1 = '' OR status = $1)
		  AND ($2 = '' OR website_id::text = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	var listings []*models.Listing
	err := r.db.SelectContext(ctx, &listings, query,
		string(filter.Status), filter.WebsiteID, limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("list listings: %w", err)
	}

	if listings == nil {
		listings = []*models.Listing{}
	}

	return listings, nil
}

// Update overwrites a listing's content fields.
func (r *ListingRepository) Update(ctx context.Context, l *models.Listing) error {
	l.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE listings
		SET title = $1, summary = $2, url = $3, status = $4, tags = $5, has_embedding = $6, updated_at = $7
		WHERE id = $8
	`

	result, err := r.db.ExecContext(ctx, query,
		l.Title, l.Summary, l.URL, l.Status, l.Tags, l.HasEmbedding, l.UpdatedAt, l.ID)
	return execRequireRows(result, err, apperrors.NotFoundf("listing %s", l.ID))
}

// AddTags appends tags to a listing without removing existing ones. The
// enrich step is additive-only and bypasses the review gate. The merge and
// dedup happen inside the UPDATE so a concurrent tags write cannot be lost
// to a read-modify-write interleaving.
func (r *ListingRepository) AddTags(ctx context.Context, id string, tags []string) error {
	if len(tags) == 0 {
		return nil
	}

	encoded, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}

	query := `
		UPDATE listings
		SET tags = (
			SELECT COALESCE(jsonb_agg(DISTINCT t), '[]'::jsonb)
			FROM jsonb_array_elements_text(tags || $1::jsonb) AS t
		),
		    updated_at = NOW()
		WHERE id = $2
	`

	result, execErr := r.db.ExecContext(ctx, query, string(encoded), id)
	return execRequireRows(result, execErr, apperrors.NotFoundf("listing %s", id))
}

// ListByWebsites returns active or pending listings belonging to the given
// websites. Used by the enrich step to find an agent's produced listings.
func (r *ListingRepository) ListByWebsites(ctx context.Context, websiteIDs []string) ([]*models.Listing, error) {
	if len(websiteIDs) == 0 {
		return []*models.Listing{}, nil
	}

	query, args, err := sqlx.In(`
		SELECT `+listingColumns+`
		FROM listings
		WHERE website_id IN (?) AND status IN ('pending_approval', 'active')
	`, websiteIDs)
	if err != nil {
		return nil, fmt.Errorf("build listings-by-website query: %w", err)
	}
	query = r.db.Rebind(query)

	var listings []*models.Listing
	if err = r.db.SelectContext(ctx, &listings, query, args...); err != nil {
		return nil, fmt.Errorf("list listings by website: %w", err)
	}
	if listings == nil {
		listings = []*models.Listing{}
	}
	return listings, nil
}
