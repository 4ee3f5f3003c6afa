package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jonesrussell/curation-engine/internal/apperrors"
	"github.com/jonesrussell/curation-engine/internal/models"
)

const uniqueViolation = "23505"

// RunRepository handles database operations for agent runs.
type RunRepository struct {
	db *sqlx.DB
}

// NewRunRepository creates a new run repository.
func NewRunRepository(db *sqlx.DB) *RunRepository {
	return &RunRepository{db: db}
}

// TryCreate opens a run for (agent, step) if none is currently running.
// Returns apperrors.ErrStepAlreadyRunning when the exclusion holds. The
// partial unique index on agent_runs closes the check-then-insert race.
func (r *RunRepository) TryCreate(ctx context.Context, run *models.AgentRun) error {
	run.ID = uuid.New().String()
	run.Status = models.RunRunning
	run.StartedAt = time.Now().UTC()
	if run.Stats == nil {
		run.Stats = models.RunStats{}
	}

	query := `
		INSERT INTO agent_runs (id, agent_id, step, trigger_type, status, stats, started_at)
		SELECT $1, $2, $3, $4, $5, $6, $7
		WHERE NOT EXISTS (
			SELECT 1 FROM agent_runs WHERE agent_id = $2 AND step = $3 AND status = 'running'
		)
	`

	result, err := r.db.ExecContext(ctx, query,
		run.ID, run.AgentID, run.Step, run.TriggerType, run.Status, run.Stats, run.StartedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return apperrors.ErrStepAlreadyRunning
		}
		return fmt.Errorf("insert run: %w", err)
	}

	return execRequireRows(result, nil, apperrors.ErrStepAlreadyRunning)
}

// GetByID retrieves a run by its ID.
func (r *RunRepository) GetByID(ctx context.Context, id string) (*models.AgentRun, error) {
	var run models.AgentRun
	query := `
		SELECT id, agent_id, step, trigger_type, status, stats, error_message, started_at, completed_at
		FROM agent_runs
		WHERE id = $1
	`

	err := r.db.GetContext(ctx, &run, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFoundf("run %s", id)
		}
		return nil, fmt.Errorf("get run: %w", err)
	}

	return &run, nil
}

// RunFilter holds filters for listing runs.
type RunFilter struct {
	AgentID string
	Step    models.AgentStep
	Status  models.RunStatus
	Limit   int
	Offset  int
}

// List retrieves runs with optional filtering, newest first.
func (r *RunRepository) List(ctx context.Context, filter RunFilter) ([]*models.AgentRun, error) {
	query := `
		SELECT id, agent_id, step, trigger_type, status, stats, error_message, started_at, completed_at
		FROM agent_runs
		WHERE ($1 = '' OR agent_id::text = $1)
		  AND ($2 = '' OR step = $2)
		  AND ($3 = '' OR status = $3)
		ORDER BY started_at DESC
		LIMIT $4 OFFSET $5
	`

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	var runs []*models.AgentRun
	err := r.db.SelectContext(ctx, &runs, query,
		filter.AgentID, string(filter.Step), string(filter.Status), limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}

	if runs == nil {
		runs = []*models.AgentRun{}
	}

	return runs, nil
}

// Close finishes a running run with its final status and stats.
func (r *RunRepository) Close(ctx context.Context, id string, status models.RunStatus, stats models.RunStats, errMsg *string) error {
	query := `
		UPDATE agent_runs
		SET status = $1, stats = $2, error_message = $3, completed_at = NOW()
		WHERE id = $4 AND status = 'running'
	`

	result, err := r.db.ExecContext(ctx, query, status, stats, errMsg, id)
	return execRequireRows(result, err, apperrors.NotFoundf("running run %s", id))
}
