package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/curation-engine/internal/database"
	"github.com/jonesrussell/curation-engine/internal/logger"
	"github.com/jonesrussell/curation-engine/internal/models"
)

// RunHandler serves read access to the agent run history.
type RunHandler struct {
	repo   *database.RunRepository
	logger logger.Logger
}

// NewRunHandler creates a new run handler.
func NewRunHandler(repo *database.RunRepository, log logger.Logger) *RunHandler {
	return &RunHandler{repo: repo, logger: log}
}

func (h *RunHandler) GetByID(c *gin.Context) {
	run, err := h.repo.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

func (h *RunHandler) List(c *gin.Context) {
	filter := database.RunFilter{
		AgentID: c.Query("agent_id"),
		Step:    models.AgentStep(c.Query("step")),
		Status:  models.RunStatus(c.Query("status")),
		Limit:   queryInt(c, "limit", 50),
		Offset:  queryInt(c, "offset", 0),
	}

	runs, err := h.repo.List(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list runs", logger.Error(err))
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"runs": runs, "count": len(runs)})
}
