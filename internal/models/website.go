package models

import "time"

// ModerationStatus is the operator review state of a website. It is
// independent of crawl progress.
type ModerationStatus string

const (
	ModerationPendingReview ModerationStatus = "pending_review"
	ModerationApproved      ModerationStatus = "approved"
	ModerationRejected      ModerationStatus = "rejected"
	ModerationSuspended     ModerationStatus = "suspended"
)

// CrawlStatus tracks a website through its crawl lifecycle.
type CrawlStatus string

const (
	CrawlNone            CrawlStatus = "none"
	CrawlPending         CrawlStatus = "pending"
	CrawlCrawling        CrawlStatus = "crawling"
	CrawlCompleted       CrawlStatus = "completed"
	CrawlNoListingsFound CrawlStatus = "no_listings_found"
	CrawlFailed          CrawlStatus = "failed"
)

// Website is a discovered candidate site. A crawl may only start when the
// moderation status is approved and no crawl is already in progress.
type Website struct {
	ID                string           `json:"id" db:"id"`
	Domain            string           `json:"domain" db:"domain"`
	URL               string           `json:"url" db:"url"`
	DiscoveredByAgent *string          `json:"discovered_by_agent,omitempty" db:"discovered_by_agent"`
	ModerationStatus  ModerationStatus `json:"moderation_status" db:"moderation_status"`
	CrawlStatus       CrawlStatus      `json:"crawl_status" db:"crawl_status"`
	CrawlAttemptCount int              `json:"crawl_attempt_count" db:"crawl_attempt_count"`
	MaxCrawlRetries   int              `json:"max_crawl_retries" db:"max_crawl_retries"`
	PagesCrawledCount int              `json:"pages_crawled_count" db:"pages_crawled_count"`
	MaxPagesPerCrawl  int              `json:"max_pages_per_crawl" db:"max_pages_per_crawl"`
	LastCrawlError    *string          `json:"last_crawl_error,omitempty" db:"last_crawl_error"`
	CreatedAt         time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at" db:"updated_at"`
}

// RetryBudgetSpent reports whether automatic retries are exhausted.
// The attempt count includes the initial attempt, so the budget is spent once
// attempts exceed the retry count by one.
func (w *Website) RetryBudgetSpent() bool {
	return w.CrawlAttemptCount > w.MaxCrawlRetries
}

// PageBudgetReached reports whether further pages may be scheduled in the
// current crawl. This is a cooperative check; in-flight fetches still land.
func (w *Website) PageBudgetReached() bool {
	return w.PagesCrawledCount >= w.MaxPagesPerCrawl
}
