package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// PageOutcome is the per-page scrape result reported by the extractor.
type PageOutcome string

const (
	PageFetched PageOutcome = "fetched"
	PageErrored PageOutcome = "errored"
	PageSkipped PageOutcome = "skipped"
)

// PageSnapshot records one fetched page of a website crawl, with the scrape
// outcome and any draft listings the extractor produced from it.
type PageSnapshot struct {
	ID           string      `json:"id" db:"id"`
	WebsiteID    string      `json:"website_id" db:"website_id"`
	JobID        string      `json:"job_id" db:"job_id"`
	PageURL      string      `json:"page_url" db:"page_url"`
	Outcome      PageOutcome `json:"outcome" db:"outcome"`
	ErrorMessage *string     `json:"error_message,omitempty" db:"error_message"`
	DraftCount   int         `json:"draft_count" db:"draft_count"`
	CreatedAt    time.Time   `json:"created_at" db:"created_at"`
}

// DraftContent is the extracted listing payload attached to a draft.
type DraftContent struct {
	Title   string   `json:"title"`
	Summary string   `json:"summary,omitempty"`
	URL     string   `json:"url,omitempty"`
	Tags    []string `json:"tags,omitempty"`
}

// Value implements driver.Valuer for JSONB storage.
func (c DraftContent) Value() (driver.Value, error) {
	return json.Marshal(c)
}

// Scan implements sql.Scanner for JSONB retrieval.
func (c *DraftContent) Scan(value any) error {
	if value == nil {
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("cannot scan %T into DraftContent", value)
	}
	return json.Unmarshal(bytes, c)
}

// DraftListing is a machine-extracted candidate listing awaiting
// reconciliation. It never reaches public consumers directly.
type DraftListing struct {
	ID         string       `json:"id" db:"id"`
	SnapshotID string       `json:"snapshot_id" db:"snapshot_id"`
	WebsiteID  string       `json:"website_id" db:"website_id"`
	Content    DraftContent `json:"content" db:"content"`
	CreatedAt  time.Time    `json:"created_at" db:"created_at"`
}
