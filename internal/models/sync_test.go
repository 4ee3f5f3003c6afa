package models_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/curation-engine/internal/models"
)

func TestDeriveBatchStatus(t *testing.T) {
	now := time.Now()
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)

	pending := models.ProposalPending
	approved := models.ProposalApproved
	rejected := models.ProposalRejected

	tests := []struct {
		name      string
		statuses  []models.ProposalStatus
		expiresAt time.Time
		want      models.BatchStatus
	}{
		{
			name:      "all pending",
			statuses:  []models.ProposalStatus{pending, pending, pending},
			expiresAt: future,
			want:      models.BatchPending,
		},
		{
			name:      "some decided some pending",
			statuses:  []models.ProposalStatus{approved, pending, rejected},
			expiresAt: future,
			want:      models.BatchPartiallyReviewed,
		},
		{
			name:      "all approved",
			statuses:  []models.ProposalStatus{approved, approved},
			expiresAt: future,
			want:      models.BatchCompleted,
		},
		{
			name:      "all rejected",
			statuses:  []models.ProposalStatus{rejected, rejected},
			expiresAt: future,
			want:      models.BatchRejected,
		},
		{
			name:      "mixed approved and rejected none pending",
			statuses:  []models.ProposalStatus{approved, rejected, rejected},
			expiresAt: future,
			want:      models.BatchCompleted,
		},
		{
			name:      "ttl elapsed with pending members",
			statuses:  []models.ProposalStatus{approved, pending},
			expiresAt: past,
			want:      models.BatchExpired,
		},
		{
			name:      "ttl elapsed but fully decided",
			statuses:  []models.ProposalStatus{approved, rejected},
			expiresAt: past,
			want:      models.BatchCompleted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := models.DeriveBatchStatus(tt.statuses, tt.expiresAt, now)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOperationFromRecord(t *testing.T) {
	target := "target-1"
	draft := "draft-1"

	t.Run("insert", func(t *testing.T) {
		op, err := models.OperationFromRecord(models.OpInsert, nil, &draft, nil)
		require.NoError(t, err)
		assert.Equal(t, models.InsertOp{DraftID: draft}, op)
	})

	t.Run("insert rejects target reference", func(t *testing.T) {
		_, err := models.OperationFromRecord(models.OpInsert, &target, &draft, nil)
		assert.Error(t, err)
	})

	t.Run("update", func(t *testing.T) {
		op, err := models.OperationFromRecord(models.OpUpdate, &target, &draft, nil)
		require.NoError(t, err)
		assert.Equal(t, models.UpdateOp{TargetID: target, DraftID: draft}, op)
	})

	t.Run("update requires draft", func(t *testing.T) {
		_, err := models.OperationFromRecord(models.OpUpdate, &target, nil, nil)
		assert.Error(t, err)
	})

	t.Run("delete", func(t *testing.T) {
		op, err := models.OperationFromRecord(models.OpDelete, &target, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, models.DeleteOp{TargetID: target}, op)
	})

	t.Run("delete rejects draft reference", func(t *testing.T) {
		_, err := models.OperationFromRecord(models.OpDelete, &target, &draft, nil)
		assert.Error(t, err)
	})

	t.Run("merge with optional draft", func(t *testing.T) {
		op, err := models.OperationFromRecord(models.OpMerge, &target, &draft, []string{"a", "b"})
		require.NoError(t, err)
		assert.Equal(t, models.MergeOp{TargetID: target, SourceIDs: []string{"a", "b"}, DraftID: &draft}, op)
	})

	t.Run("merge requires sources", func(t *testing.T) {
		_, err := models.OperationFromRecord(models.OpMerge, &target, nil, nil)
		assert.Error(t, err)
	})

	t.Run("unknown kind", func(t *testing.T) {
		_, err := models.OperationFromRecord("upsert", &target, &draft, nil)
		assert.Error(t, err)
	})
}

func TestFlattenRoundTrip(t *testing.T) {
	draft := "draft-9"
	ops := []models.Operation{
		models.InsertOp{DraftID: "draft-1"},
		models.UpdateOp{TargetID: "target-1", DraftID: "draft-2"},
		models.DeleteOp{TargetID: "target-2"},
		models.MergeOp{TargetID: "target-3", SourceIDs: []string{"s1", "s2"}, DraftID: &draft},
	}

	for _, op := range ops {
		kind, targetID, draftID, sourceIDs := models.Flatten(op)
		rebuilt, err := models.OperationFromRecord(kind, targetID, draftID, sourceIDs)
		require.NoError(t, err)
		assert.Equal(t, op, rebuilt)
	}
}
