package database_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/curation-engine/internal/apperrors"
	"github.com/jonesrussell/curation-engine/internal/database"
	"github.com/jonesrussell/curation-engine/internal/models"
)

// websiteColumns lists the columns returned by website SELECT queries.
var websiteColumns = []string{
	"id", "domain", "url", "discovered_by_agent", "moderation_status", "crawl_status",
	"crawl_attempt_count", "max_crawl_retries", "pages_crawled_count", "max_pages_per_crawl",
	"last_crawl_error", "created_at", "updated_at",
}

func newWebsiteRepo(t *testing.T) (*database.WebsiteRepository, sqlmock.Sqlmock, func()) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}

	db := sqlx.NewDb(mockDB, "postgres")
	repo := database.NewWebsiteRepository(db)

	return repo, mock, func() { mockDB.Close() }
}

func expectationsMet(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestWebsite_Create(t *testing.T) {
	repo, mock, cleanup := newWebsiteRepo(t)
	defer cleanup()

	ctx := context.Background()

	mock.ExpectExec("INSERT INTO websites").
		WithArgs(
			sqlmock.AnyArg(), // generated id
			"example.org", "https://example.org", nil, "pending_review", "none",
			0, 3, 0, 25,
			sqlmock.AnyArg(), sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := &models.Website{
		Domain:           "example.org",
		URL:              "https://example.org",
		ModerationStatus: models.ModerationPendingReview,
		CrawlStatus:      models.CrawlNone,
		MaxCrawlRetries:  3,
		MaxPagesPerCrawl: 25,
	}
	if err := repo.Create(ctx, w); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if w.ID == "" {
		t.Error("expected Create() to assign an id")
	}

	expectationsMet(t, mock)
}

func TestWebsite_GetByID(t *testing.T) {
	repo, mock, cleanup := newWebsiteRepo(t)
	defer cleanup()

	ctx := context.Background()
	now := time.Now()

	mock.ExpectQuery("SELECT .+ FROM websites WHERE id").
		WithArgs("w-1").
		WillReturnRows(
			sqlmock.NewRows(websiteColumns).AddRow(
				"w-1", "example.org", "https://example.org", nil, "approved", "pending",
				2, 3, 0, 25,
				nil, now, now,
			),
		)

	w, err := repo.GetByID(ctx, "w-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if w.Domain != "example.org" {
		t.Errorf("expected domain=example.org, got %s", w.Domain)
	}
	if w.CrawlStatus != models.CrawlPending {
		t.Errorf("expected crawl_status=pending, got %s", w.CrawlStatus)
	}
	if w.CrawlAttemptCount != 2 {
		t.Errorf("expected crawl_attempt_count=2, got %d", w.CrawlAttemptCount)
	}

	expectationsMet(t, mock)
}

func TestWebsite_GetByID_NotFound(t *testing.T) {
	repo, mock, cleanup := newWebsiteRepo(t)
	defer cleanup()

	ctx := context.Background()

	mock.ExpectQuery("SELECT .+ FROM websites WHERE id").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(websiteColumns))

	_, err := repo.GetByID(ctx, "missing")
	if !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("GetByID() error = %v, want ErrNotFound", err)
	}

	expectationsMet(t, mock)
}

func TestWebsite_BeginCrawl(t *testing.T) {
	repo, mock, cleanup := newWebsiteRepo(t)
	defer cleanup()

	ctx := context.Background()

	mock.ExpectExec("UPDATE websites").
		WithArgs("w-1", false).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.BeginCrawl(ctx, "w-1", false); err != nil {
		t.Fatalf("BeginCrawl() error = %v", err)
	}

	expectationsMet(t, mock)
}

func TestWebsite_BeginCrawl_AlreadyCrawling(t *testing.T) {
	repo, mock, cleanup := newWebsiteRepo(t)
	defer cleanup()

	ctx := context.Background()

	// The conditional update matches no rows when another crawl holds the claim.
	mock.ExpectExec("UPDATE websites").
		WithArgs("w-1", false).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.BeginCrawl(ctx, "w-1", false)
	if !errors.Is(err, apperrors.ErrAlreadyCrawling) {
		t.Fatalf("BeginCrawl() error = %v, want ErrAlreadyCrawling", err)
	}

	expectationsMet(t, mock)
}

func TestWebsite_BeginCrawl_ManualReset(t *testing.T) {
	repo, mock, cleanup := newWebsiteRepo(t)
	defer cleanup()

	ctx := context.Background()

	mock.ExpectExec("UPDATE websites").
		WithArgs("w-1", true).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.BeginCrawl(ctx, "w-1", true); err != nil {
		t.Fatalf("BeginCrawl() error = %v", err)
	}

	expectationsMet(t, mock)
}

func TestWebsite_IncrementPages(t *testing.T) {
	repo, mock, cleanup := newWebsiteRepo(t)
	defer cleanup()

	ctx := context.Background()

	mock.ExpectQuery("UPDATE websites").
		WithArgs("w-1").
		WillReturnRows(sqlmock.NewRows([]string{"pages_crawled_count"}).AddRow(7))

	count, err := repo.IncrementPages(ctx, "w-1")
	if err != nil {
		t.Fatalf("IncrementPages() error = %v", err)
	}
	if count != 7 {
		t.Errorf("expected count=7, got %d", count)
	}

	expectationsMet(t, mock)
}

func TestWebsite_SetCrawlOutcome_ResetsAttempts(t *testing.T) {
	repo, mock, cleanup := newWebsiteRepo(t)
	defer cleanup()

	ctx := context.Background()

	mock.ExpectExec("UPDATE websites").
		WithArgs("completed", nil, true, "w-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.SetCrawlOutcome(ctx, "w-1", models.CrawlCompleted, nil, true)
	if err != nil {
		t.Fatalf("SetCrawlOutcome() error = %v", err)
	}

	expectationsMet(t, mock)
}

func TestWebsite_SetCrawlOutcome_KeepsAttemptsOnFailure(t *testing.T) {
	repo, mock, cleanup := newWebsiteRepo(t)
	defer cleanup()

	ctx := context.Background()
	lastErr := "fetch timed out"

	mock.ExpectExec("UPDATE websites").
		WithArgs("pending", &lastErr, false, "w-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.SetCrawlOutcome(ctx, "w-1", models.CrawlPending, &lastErr, false)
	if err != nil {
		t.Fatalf("SetCrawlOutcome() error = %v", err)
	}

	expectationsMet(t, mock)
}

func TestWebsite_SetModerationStatus_NotFound(t *testing.T) {
	repo, mock, cleanup := newWebsiteRepo(t)
	defer cleanup()

	ctx := context.Background()

	mock.ExpectExec("UPDATE websites SET moderation_status").
		WithArgs("approved", "missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SetModerationStatus(ctx, "missing", models.ModerationApproved)
	if !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("SetModerationStatus() error = %v, want ErrNotFound", err)
	}

	expectationsMet(t, mock)
}
