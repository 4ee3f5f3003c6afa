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

// AgentRepository handles database operations for agents and their owned
// search queries and filter rules.
type AgentRepository struct {
	db *sqlx.DB
}

// NewAgentRepository creates a new agent repository.
func NewAgentRepository(db *sqlx.DB) *AgentRepository {
	return &AgentRepository{db: db}
}

// Create inserts a new agent.
func (r *AgentRepository) Create(ctx context.Context, agent *models.Agent) error {
	agent.ID = uuid.New().String()
	agent.CreatedAt = time.Now().UTC()
	agent.UpdatedAt = agent.CreatedAt

	query := `
		INSERT INTO agents (id, display_name, role, status, curator_config, assistant_config, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.ExecContext(ctx, query,
		agent.ID,
		agent.DisplayName,
		agent.Role,
		agent.Status,
		agent.CuratorConfig,
		agent.AssistantConfig,
		agent.CreatedAt,
		agent.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert agent: %w", err)
	}

	return nil
}

// GetByID retrieves an agent by its ID.
func (r *AgentRepository) GetByID(ctx context.Context, id string) (*models.Agent, error) {
	var agent models.Agent
	query := `
		SELECT id, display_name, role, status, curator_config, assistant_config, created_at, updated_at
		FROM agents
		WHERE id = $1
	`

	err := r.db.GetContext(ctx, &agent, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFoundf("agent %s", id)
		}
		return nil, fmt.Errorf("get agent: %w", err)
	}

	return &agent, nil
}

// AgentFilter holds filters for listing agents.
type AgentFilter struct {
	Role   models.AgentRole
	Status models.AgentStatus
	Limit  int
	Offset int
}

// List retrieves agents with optional role/status filtering.
func (r *AgentRepository) List(ctx context.Context, filter AgentFilter) ([]*models.Agent, error) {
	query := `
		SELECT id, display_name, role, status, curator_config, assistant_config, created_at, updated_at
		FROM agents
		WHERE ($1 = '' OR role = $1)
		  AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	var agents []*models.Agent
	err := r.db.SelectContext(ctx, &agents, query, string(filter.Role), string(filter.Status), limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}

	if agents == nil {
		agents = []*models.Agent{}
	}

	return agents, nil
}

// Update updates an agent's mutable fields.
func (r *AgentRepository) Update(ctx context.Context, agent *models.Agent) error {
	agent.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE agents
		SET display_name = $1, curator_config = $2, assistant_config = $3, updated_at = $4
		WHERE id = $5
	`

	result, err := r.db.ExecContext(ctx, query,
		agent.DisplayName,
		agent.CuratorConfig,
		agent.AssistantConfig,
		agent.UpdatedAt,
		agent.ID,
	)
	return execRequireRows(result, err, apperrors.NotFoundf("agent %s", agent.ID))
}

// UpdateStatus sets an agent's lifecycle status.
func (r *AgentRepository) UpdateStatus(ctx context.Context, id string, status models.AgentStatus) error {
	query := `UPDATE agents SET status = $1, updated_at = NOW() WHERE id = $2`

	result, err := r.db.ExecContext(ctx, query, status, id)
	return execRequireRows(result, err, apperrors.NotFoundf("agent %s", id))
}

// Delete removes an agent. Queries, rules, and runs cascade at the schema
// level.
func (r *AgentRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM agents WHERE id = $1`, id)
	return execRequireRows(result, err, apperrors.NotFoundf("agent %s", id))
}

// CreateQuery inserts a search query for an agent.
func (r *AgentRepository) CreateQuery(ctx context.Context, q *models.SearchQuery) error {
	q.ID = uuid.New().String()
	q.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO search_queries (id, agent_id, query, position, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.ExecContext(ctx, query, q.ID, q.AgentID, q.Query, q.Position, q.Active, q.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert search query: %w", err)
	}
	return nil
}

// ListQueries returns an agent's search queries in position order.
func (r *AgentRepository) ListQueries(ctx context.Context, agentID string, activeOnly bool) ([]*models.SearchQuery, error) {
	query := `
		SELECT id, agent_id, query, position, active, created_at
		FROM search_queries
		WHERE agent_id = $1 AND ($2 = FALSE OR active = TRUE)
		ORDER BY position ASC, created_at ASC
	`

	var queries []*models.SearchQuery
	err := r.db.SelectContext(ctx, &queries, query, agentID, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("list search queries: %w", err)
	}
	if queries == nil {
		queries = []*models.SearchQuery{}
	}
	return queries, nil
}

// UpdateQuery updates a search query.
func (r *AgentRepository) UpdateQuery(ctx context.Context, q *models.SearchQuery) error {
	query := `
		UPDATE search_queries SET query = $1, position = $2, active = $3
		WHERE id = $4 AND agent_id = $5
	`

	result, err := r.db.ExecContext(ctx, query, q.Query, q.Position, q.Active, q.ID, q.AgentID)
	return execRequireRows(result, err, apperrors.NotFoundf("search query %s", q.ID))
}

// DeleteQuery removes a search query.
func (r *AgentRepository) DeleteQuery(ctx context.Context, agentID, id string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM search_queries WHERE id = $1 AND agent_id = $2`, id, agentID)
	return execRequireRows(result, err, apperrors.NotFoundf("search query %s", id))
}

// CreateRule inserts a filter rule for an agent.
func (r *AgentRepository) CreateRule(ctx context.Context, rule *models.FilterRule) error {
	rule.ID = uuid.New().String()
	rule.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO filter_rules (id, agent_id, kind, pattern, position, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.ExecContext(ctx, query,
		rule.ID, rule.AgentID, rule.Kind, rule.Pattern, rule.Position, rule.Active, rule.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert filter rule: %w", err)
	}
	return nil
}

// ListRules returns an agent's filter rules in position order.
func (r *AgentRepository) ListRules(ctx context.Context, agentID string, activeOnly bool) ([]*models.FilterRule, error) {
	query := `
		SELECT id, agent_id, kind, pattern, position, active, created_at
		FROM filter_rules
		WHERE agent_id = $1 AND ($2 = FALSE OR active = TRUE)
		ORDER BY position ASC, created_at ASC
	`

	var rules []*models.FilterRule
	err := r.db.SelectContext(ctx, &rules, query, agentID, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("list filter rules: %w", err)
	}
	if rules == nil {
		rules = []*models.FilterRule{}
	}
	return rules, nil
}

// UpdateRule updates a filter rule.
func (r *AgentRepository) UpdateRule(ctx context.Context, rule *models.FilterRule) error {
	query := `
		UPDATE filter_rules SET kind = $1, pattern = $2, position = $3, active = $4
		WHERE id = $5 AND agent_id = $6
	`

	result, err := r.db.ExecContext(ctx, query,
		rule.Kind, rule.Pattern, rule.Position, rule.Active, rule.ID, rule.AgentID)
	return execRequireRows(result, err, apperrors.NotFoundf("filter rule %s", rule.ID))
}

// DeleteRule removes a filter rule.
func (r *AgentRepository) DeleteRule(ctx context.Context, agentID, id string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM filter_rules WHERE id = $1 AND agent_id = $2`, id, agentID)
	return execRequireRows(result, err, apperrors.NotFoundf("filter rule %s", id))
}
