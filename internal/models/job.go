package models

import "time"

// JobStatus is the lifecycle state of a ledger job.
type JobStatus string

const (
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobSuspended JobStatus = "suspended"
)

// Workflow names recorded in the job ledger.
const (
	WorkflowCrawl         = "crawl"
	WorkflowExtraction    = "extraction"
	WorkflowDeduplication = "deduplication"
	WorkflowResearch      = "research"
)

// Job is an observability record of one asynchronous workflow invocation.
// It is write-mostly bookkeeping; it is not authoritative over any other
// entity's state.
type Job struct {
	ID           string     `json:"id" db:"id"`
	WorkflowName string     `json:"workflow_name" db:"workflow_name"`
	WebsiteID    *string    `json:"website_id,omitempty" db:"website_id"`
	Status       JobStatus  `json:"status" db:"status"`
	Progress     string     `json:"progress" db:"progress"`
	ErrorMessage *string    `json:"error_message,omitempty" db:"error_message"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}
