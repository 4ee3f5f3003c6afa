// Package models provides domain models used across the engine.
package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// AgentRole distinguishes what an agent is configured to do.
type AgentRole string

const (
	// RoleCurator discovers websites and extracts listing content.
	RoleCurator AgentRole = "curator"
	// RoleAssistant is a chat configuration handled outside this engine.
	RoleAssistant AgentRole = "assistant"
)

// AgentStatus is the operator-driven lifecycle state of an agent.
type AgentStatus string

const (
	AgentDraft  AgentStatus = "draft"
	AgentActive AgentStatus = "active"
	AgentPaused AgentStatus = "paused"
)

// StepPeriod is how often a schedulable step runs.
type StepPeriod string

const (
	PeriodManual StepPeriod = "manual"
	PeriodHourly StepPeriod = "hourly"
	PeriodDaily  StepPeriod = "daily"
	PeriodWeekly StepPeriod = "weekly"
)

// CuratorConfig configures a curator agent. Exactly one of CuratorConfig or
// AssistantConfig is populated on an agent, selected by role.
type CuratorConfig struct {
	DiscoverPeriod StepPeriod `json:"discover_period"`
	MonitorPeriod  StepPeriod `json:"monitor_period"`
	DefaultTags    []string   `json:"default_tags,omitempty"`
}

// AssistantConfig configures an assistant agent. The engine stores it but the
// chat runtime that consumes it lives elsewhere.
type AssistantConfig struct {
	SystemPrompt string  `json:"system_prompt,omitempty"`
	Model        string  `json:"model,omitempty"`
	Temperature  float64 `json:"temperature,omitempty"`
}

// Agent is a configured automation unit.
type Agent struct {
	ID              string           `json:"id" db:"id"`
	DisplayName     string           `json:"display_name" db:"display_name"`
	Role            AgentRole        `json:"role" db:"role"`
	Status          AgentStatus      `json:"status" db:"status"`
	CuratorConfig   *CuratorConfig   `json:"curator_config,omitempty" db:"curator_config"`
	AssistantConfig *AssistantConfig `json:"assistant_config,omitempty" db:"assistant_config"`
	CreatedAt       time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at" db:"updated_at"`
}

// Validate checks role/config consistency: exactly one config must be
// populated and it must match the role.
func (a *Agent) Validate() error {
	if a.DisplayName == "" {
		return fmt.Errorf("display_name is required")
	}
	switch a.Role {
	case RoleCurator:
		if a.CuratorConfig == nil || a.AssistantConfig != nil {
			return fmt.Errorf("curator agent requires curator_config and no assistant_config")
		}
	case RoleAssistant:
		if a.AssistantConfig == nil || a.CuratorConfig != nil {
			return fmt.Errorf("assistant agent requires assistant_config and no curator_config")
		}
	default:
		return fmt.Errorf("unknown role: %q", a.Role)
	}
	switch a.Status {
	case AgentDraft, AgentActive, AgentPaused:
	default:
		return fmt.Errorf("unknown status: %q", a.Status)
	}
	return nil
}

// SearchQuery is one discovery query owned by a curator agent.
type SearchQuery struct {
	ID        string    `json:"id" db:"id"`
	AgentID   string    `json:"agent_id" db:"agent_id"`
	Query     string    `json:"query" db:"query"`
	Position  int       `json:"position" db:"position"`
	Active    bool      `json:"active" db:"active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// FilterRule is one discovery filter owned by a curator agent. Rules are
// applied in position order to candidate results.
type FilterRule struct {
	ID        string    `json:"id" db:"id"`
	AgentID   string    `json:"agent_id" db:"agent_id"`
	Kind      string    `json:"kind" db:"kind"` // domain_exclude, keyword_require, keyword_exclude
	Pattern   string    `json:"pattern" db:"pattern"`
	Position  int       `json:"position" db:"position"`
	Active    bool      `json:"active" db:"active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Value implements driver.Valuer so configs persist as JSONB.
func (c CuratorConfig) Value() (driver.Value, error) {
	return json.Marshal(c)
}

// Scan implements sql.Scanner for JSONB retrieval.
func (c *CuratorConfig) Scan(value any) error {
	if value == nil {
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("cannot scan %T into CuratorConfig", value)
	}
	return json.Unmarshal(bytes, c)
}

// Value implements driver.Valuer so configs persist as JSONB.
func (c AssistantConfig) Value() (driver.Value, error) {
	return json.Marshal(c)
}

// Scan implements sql.Scanner for JSONB retrieval.
func (c *AssistantConfig) Scan(value any) error {
	if value == nil {
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("cannot scan %T into AssistantConfig", value)
	}
	return json.Unmarshal(bytes, c)
}
