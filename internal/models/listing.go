package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ListingStatus is the public lifecycle state of a canonical listing.
type ListingStatus string

const (
	ListingPendingApproval ListingStatus = "pending_approval"
	ListingActive          ListingStatus = "active"
	ListingRejected        ListingStatus = "rejected"
	ListingArchived        ListingStatus = "archived"
)

// StringArray is a JSON-encoded string slice column.
type StringArray []string

// Value implements driver.Valuer for database storage.
func (a StringArray) Value() (driver.Value, error) {
	if a == nil {
		return json.Marshal([]string{})
	}
	return json.Marshal(a)
}

// Scan implements sql.Scanner for database retrieval.
func (a *StringArray) Scan(value any) error {
	if value == nil {
		*a = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("cannot scan %T into StringArray", value)
	}
	return json.Unmarshal(bytes, a)
}

// Listing is the canonical public-facing record. It is mutated only through
// approved proposals and direct moderation actions.
type Listing struct {
	ID           string        `json:"id" db:"id"`
	Title        string        `json:"title" db:"title"`
	Summary      string        `json:"summary" db:"summary"`
	URL          string        `json:"url" db:"url"`
	WebsiteID    *string       `json:"website_id,omitempty" db:"website_id"`
	Status       ListingStatus `json:"status" db:"status"`
	Tags         StringArray   `json:"tags" db:"tags"`
	HasEmbedding bool          `json:"has_embedding" db:"has_embedding"`
	CreatedAt    time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at" db:"updated_at"`
}

// ApplyDraft overwrites the listing's content fields from draft content.
func (l *Listing) ApplyDraft(c DraftContent) {
	l.Title = c.Title
	l.Summary = c.Summary
	if c.URL != "" {
		l.URL = c.URL
	}
	if len(c.Tags) > 0 {
		l.Tags = c.Tags
	}
}
