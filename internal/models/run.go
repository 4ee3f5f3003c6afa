package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// AgentStep is one stage of the curation pipeline.
type AgentStep string

const (
	StepDiscover AgentStep = "discover"
	StepExtract  AgentStep = "extract"
	StepEnrich   AgentStep = "enrich"
	StepMonitor  AgentStep = "monitor"
)

// ValidStep reports whether s names a pipeline step.
func ValidStep(s AgentStep) bool {
	switch s {
	case StepDiscover, StepExtract, StepEnrich, StepMonitor:
		return true
	}
	return false
}

// TriggerType records how a run was started.
type TriggerType string

const (
	TriggerManual    TriggerType = "manual"
	TriggerScheduled TriggerType = "scheduled"
)

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// RunStats holds keyed numeric counters for a run, persisted as JSONB.
type RunStats map[string]int64

// Add increments a counter, creating it if absent.
func (s RunStats) Add(key string, delta int64) {
	s[key] += delta
}

// Value implements driver.Valuer for JSONB storage.
func (s RunStats) Value() (driver.Value, error) {
	if s == nil {
		return json.Marshal(RunStats{})
	}
	return json.Marshal(s)
}

// Scan implements sql.Scanner for JSONB retrieval.
func (s *RunStats) Scan(value any) error {
	if value == nil {
		*s = RunStats{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("cannot scan %T into RunStats", value)
	}
	return json.Unmarshal(bytes, s)
}

// AgentRun is one execution of one pipeline step for one agent.
// At most one running run may exist per (agent, step).
type AgentRun struct {
	ID           string      `json:"id" db:"id"`
	AgentID      string      `json:"agent_id" db:"agent_id"`
	Step         AgentStep   `json:"step" db:"step"`
	TriggerType  TriggerType `json:"trigger_type" db:"trigger_type"`
	Status       RunStatus   `json:"status" db:"status"`
	Stats        RunStats    `json:"stats" db:"stats"`
	ErrorMessage *string     `json:"error_message,omitempty" db:"error_message"`
	StartedAt    time.Time   `json:"started_at" db:"started_at"`
	CompletedAt  *time.Time  `json:"completed_at,omitempty" db:"completed_at"`
}
