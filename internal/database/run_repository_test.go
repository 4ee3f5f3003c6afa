package database_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jonesrussell/curation-engine/internal/apperrors"
	"github.com/jonesrussell/curation-engine/internal/database"
	"github.com/jonesrussell/curation-engine/internal/models"
)

// runColumns lists the columns returned by agent_runs SELECT queries.
var runColumns = []string{
	"id", "agent_id", "step", "trigger_type", "status", "stats",
	"error_message", "started_at", "completed_at",
}

func newRunRepo(t *testing.T) (*database.RunRepository, sqlmock.Sqlmock, func()) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}

	db := sqlx.NewDb(mockDB, "postgres")
	repo := database.NewRunRepository(db)

	return repo, mock, func() { mockDB.Close() }
}

func TestRun_TryCreate(t *testing.T) {
	repo, mock, cleanup := newRunRepo(t)
	defer cleanup()

	ctx := context.Background()

	mock.ExpectExec("INSERT INTO agent_runs").
		WithArgs(
			sqlmock.AnyArg(), // generated id
			"agent-1", "discover", "scheduled", "running",
			sqlmock.AnyArg(), // stats JSONB
			sqlmock.AnyArg(), // started_at
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	run := &models.AgentRun{
		AgentID:     "agent-1",
		Step:        models.StepDiscover,
		TriggerType: models.TriggerScheduled,
	}
	if err := repo.TryCreate(ctx, run); err != nil {
		t.Fatalf("TryCreate() error = %v", err)
	}
	if run.ID == "" {
		t.Error("expected TryCreate() to assign an id")
	}
	if run.Status != models.RunRunning {
		t.Errorf("expected status=running, got %s", run.Status)
	}
	if run.Stats == nil {
		t.Error("expected TryCreate() to initialize stats")
	}

	expectationsMet(t, mock)
}

func TestRun_TryCreate_StepAlreadyRunning(t *testing.T) {
	repo, mock, cleanup := newRunRepo(t)
	defer cleanup()

	ctx := context.Background()

	// The guarded insert matches no rows while a run is open for the step.
	mock.ExpectExec("INSERT INTO agent_runs").
		WillReturnResult(sqlmock.NewResult(0, 0))

	run := &models.AgentRun{
		AgentID:     "agent-1",
		Step:        models.StepExtract,
		TriggerType: models.TriggerManual,
	}
	err := repo.TryCreate(ctx, run)
	if !errors.Is(err, apperrors.ErrStepAlreadyRunning) {
		t.Fatalf("TryCreate() error = %v, want ErrStepAlreadyRunning", err)
	}

	expectationsMet(t, mock)
}

func TestRun_TryCreate_UniqueViolation(t *testing.T) {
	repo, mock, cleanup := newRunRepo(t)
	defer cleanup()

	ctx := context.Background()

	// Two racing inserts can both pass the NOT EXISTS check; the partial
	// unique index rejects the loser.
	mock.ExpectExec("INSERT INTO agent_runs").
		WillReturnError(&pq.Error{Code: "23505"})

	run := &models.AgentRun{
		AgentID:     "agent-1",
		Step:        models.StepMonitor,
		TriggerType: models.TriggerScheduled,
	}
	err := repo.TryCreate(ctx, run)
	if !errors.Is(err, apperrors.ErrStepAlreadyRunning) {
		t.Fatalf("TryCreate() error = %v, want ErrStepAlreadyRunning", err)
	}

	expectationsMet(t, mock)
}

func TestRun_GetByID(t *testing.T) {
	repo, mock, cleanup := newRunRepo(t)
	defer cleanup()

	ctx := context.Background()
	now := time.Now()

	mock.ExpectQuery("SELECT .+ FROM agent_runs").
		WithArgs("run-1").
		WillReturnRows(
			sqlmock.NewRows(runColumns).AddRow(
				"run-1", "agent-1", "discover", "scheduled", "completed",
				[]byte(`{"candidates_seen":12,"websites_discovered":3}`),
				nil, now, &now,
			),
		)

	run, err := repo.GetByID(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if run.Step != models.StepDiscover {
		t.Errorf("expected step=discover, got %s", run.Step)
	}
	if run.Stats["websites_discovered"] != 3 {
		t.Errorf("expected websites_discovered=3, got %d", run.Stats["websites_discovered"])
	}
	if run.CompletedAt == nil {
		t.Error("expected completed_at to be set, got nil")
	}

	expectationsMet(t, mock)
}

func TestRun_Close(t *testing.T) {
	repo, mock, cleanup := newRunRepo(t)
	defer cleanup()

	ctx := context.Background()

	mock.ExpectExec("UPDATE agent_runs").
		WithArgs("completed", sqlmock.AnyArg(), nil, "run-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	stats := models.RunStats{"websites_crawled": 4}
	if err := repo.Close(ctx, "run-1", models.RunCompleted, stats, nil); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	expectationsMet(t, mock)
}

func TestRun_Close_NotRunning(t *testing.T) {
	repo, mock, cleanup := newRunRepo(t)
	defer cleanup()

	ctx := context.Background()
	errMsg := "extractor unreachable"

	mock.ExpectExec("UPDATE agent_runs").
		WithArgs("failed", sqlmock.AnyArg(), &errMsg, "run-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Close(ctx, "run-1", models.RunFailed, models.RunStats{}, &errMsg)
	if !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("Close() error = %v, want ErrNotFound", err)
	}

	expectationsMet(t, mock)
}
