package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/curation-engine/internal/apperrors"
	"github.com/jonesrussell/curation-engine/internal/database"
	"github.com/jonesrussell/curation-engine/internal/logger"
	"github.com/jonesrussell/curation-engine/internal/models"
	"github.com/jonesrussell/curation-engine/internal/reconcile"
)

// BatchHandler serves review of sync batches and their proposals.
type BatchHandler struct {
	repo       *database.SyncRepository
	reconciler *reconcile.Service
	logger     logger.Logger
}

// NewBatchHandler creates a new batch handler.
func NewBatchHandler(repo *database.SyncRepository, reconciler *reconcile.Service, log logger.Logger) *BatchHandler {
	return &BatchHandler{
		repo:       repo,
		reconciler: reconciler,
		logger:     log,
	}
}

func (h *BatchHandler) List(c *gin.Context) {
	filter := database.BatchFilter{
		Status:    models.BatchStatus(c.Query("status")),
		WebsiteID: c.Query("website_id"),
		Limit:     queryInt(c, "limit", 50),
		Offset:    queryInt(c, "offset", 0),
	}

	batches, err := h.repo.ListBatches(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list batches", logger.Error(err))
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"batches": batches, "count": len(batches)})
}

// GetByID returns the batch together with its member proposals.
func (h *BatchHandler) GetByID(c *gin.Context) {
	id := c.Param("id")

	batch, err := h.repo.GetBatch(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	proposals, err := h.repo.ListBatchProposals(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"batch": batch, "proposals": proposals})
}

// Approve approves every still-pending proposal in the batch atomically.
func (h *BatchHandler) Approve(c *gin.Context) {
	h.decideBatch(c, h.reconciler.ApproveBatch)
}

// Reject rejects every still-pending proposal in the batch atomically.
func (h *BatchHandler) Reject(c *gin.Context) {
	h.decideBatch(c, h.reconciler.RejectBatch)
}

func (h *BatchHandler) decideBatch(c *gin.Context, decide func(ctx context.Context, batchID string) (*models.SyncBatch, error)) {
	id := c.Param("id")

	batch, err := decide(c.Request.Context(), id)
	if err != nil {
		if !apperrors.IsConflict(err) {
			h.logger.Error("Batch decision failed", logger.String("batch_id", id), logger.Error(err))
		}
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, batch)
}

// ApproveProposal approves one proposal and applies its operation.
func (h *BatchHandler) ApproveProposal(c *gin.Context) {
	h.decideProposal(c, h.reconciler.ApproveProposal)
}

// RejectProposal rejects one proposal.
func (h *BatchHandler) RejectProposal(c *gin.Context) {
	h.decideProposal(c, h.reconciler.RejectProposal)
}

func (h *BatchHandler) decideProposal(c *gin.Context, decide func(ctx context.Context, proposalID string) (*models.SyncProposal, error)) {
	id := c.Param("id")

	proposal, err := decide(c.Request.Context(), id)
	if err != nil {
		if !apperrors.IsConflict(err) {
			h.logger.Error("Proposal decision failed", logger.String("proposal_id", id), logger.Error(err))
		}
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, proposal)
}
