package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/curation-engine/internal/apperrors"
	"github.com/jonesrussell/curation-engine/internal/database"
	"github.com/jonesrussell/curation-engine/internal/logger"
	"github.com/jonesrussell/curation-engine/internal/models"
	"github.com/jonesrussell/curation-engine/internal/pipeline"
)

// AgentHandler serves agent CRUD, query/rule CRUD, status changes, and step
// triggers.
type AgentHandler struct {
	repo     *database.AgentRepository
	pipeline *pipeline.Service
	logger   logger.Logger
}

// NewAgentHandler creates a new agent handler.
func NewAgentHandler(repo *database.AgentRepository, pipelineSvc *pipeline.Service, log logger.Logger) *AgentHandler {
	return &AgentHandler{
		repo:     repo,
		pipeline: pipelineSvc,
		logger:   log,
	}
}

func (h *AgentHandler) Create(c *gin.Context) {
	var agent models.Agent
	if err := c.ShouldBindJSON(&agent); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	if agent.Status == "" {
		agent.Status = models.AgentDraft
	}
	if err := agent.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.repo.Create(c.Request.Context(), &agent); err != nil {
		h.logger.Error("Failed to create agent",
			logger.String("display_name", agent.DisplayName),
			logger.Error(err),
		)
		respondError(c, err)
		return
	}

	h.logger.Info("Agent created",
		logger.String("agent_id", agent.ID),
		logger.String("role", string(agent.Role)),
	)

	c.JSON(http.StatusCreated, agent)
}

func (h *AgentHandler) GetByID(c *gin.Context) {
	agent, err := h.repo.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, agent)
}

func (h *AgentHandler) List(c *gin.Context) {
	filter := database.AgentFilter{
		Role:   models.AgentRole(c.Query("role")),
		Status: models.AgentStatus(c.Query("status")),
	}

	agents, err := h.repo.List(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list agents", logger.Error(err))
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"agents": agents, "count": len(agents)})
}

func (h *AgentHandler) Update(c *gin.Context) {
	id := c.Param("id")

	existing, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	var agent models.Agent
	if err = c.ShouldBindJSON(&agent); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	agent.ID = id
	agent.Role = existing.Role // role is immutable
	agent.Status = existing.Status
	if err = agent.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err = h.repo.Update(c.Request.Context(), &agent); err != nil {
		h.logger.Error("Failed to update agent", logger.String("agent_id", id), logger.Error(err))
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, agent)
}

func (h *AgentHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.repo.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}

	h.logger.Info("Agent deleted", logger.String("agent_id", id))
	c.JSON(http.StatusOK, gin.H{"message": "Agent deleted"})
}

// SetStatus transitions an agent's lifecycle status. Pausing blocks new runs
// but never cancels one in flight.
func (h *AgentHandler) SetStatus(c *gin.Context) {
	id := c.Param("id")

	var req struct {
		Status models.AgentStatus `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	switch req.Status {
	case models.AgentDraft, models.AgentActive, models.AgentPaused:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status"})
		return
	}

	if err := h.repo.UpdateStatus(c.Request.Context(), id, req.Status); err != nil {
		respondError(c, err)
		return
	}

	h.logger.Info("Agent status changed",
		logger.String("agent_id", id),
		logger.String("status", string(req.Status)),
	)

	c.JSON(http.StatusOK, gin.H{"agent_id": id, "status": req.Status})
}

// RunStep triggers one pipeline step for the agent.
func (h *AgentHandler) RunStep(c *gin.Context) {
	id := c.Param("id")

	var req struct {
		Step models.AgentStep `json:"step" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	run, err := h.pipeline.RunAgentStep(c.Request.Context(), id, req.Step, models.TriggerManual)
	if err != nil {
		if !apperrors.IsConflict(err) {
			h.logger.Error("Agent step failed to start",
				logger.String("agent_id", id),
				logger.String("step", string(req.Step)),
				logger.Error(err),
			)
		}
		respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, run)
}

// CreateQuery adds a search query to the agent.
func (h *AgentHandler) CreateQuery(c *gin.Context) {
	var query models.SearchQuery
	if err := c.ShouldBindJSON(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	query.AgentID = c.Param("id")

	if err := h.repo.CreateQuery(c.Request.Context(), &query); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, query)
}

// ListQueries lists the agent's search queries.
func (h *AgentHandler) ListQueries(c *gin.Context) {
	queries, err := h.repo.ListQueries(c.Request.Context(), c.Param("id"), false)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"queries": queries, "count": len(queries)})
}

// UpdateQuery updates one of the agent's search queries.
func (h *AgentHandler) UpdateQuery(c *gin.Context) {
	var query models.SearchQuery
	if err := c.ShouldBindJSON(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	query.ID = c.Param("queryId")
	query.AgentID = c.Param("id")

	if err := h.repo.UpdateQuery(c.Request.Context(), &query); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, query)
}

// DeleteQuery removes one of the agent's search queries.
func (h *AgentHandler) DeleteQuery(c *gin.Context) {
	if err := h.repo.DeleteQuery(c.Request.Context(), c.Param("id"), c.Param("queryId")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Query deleted"})
}

// CreateRule adds a filter rule to the agent.
func (h *AgentHandler) CreateRule(c *gin.Context) {
	var rule models.FilterRule
	if err := c.ShouldBindJSON(&rule); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	rule.AgentID = c.Param("id")

	if err := h.repo.CreateRule(c.Request.Context(), &rule); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rule)
}

// ListRules lists the agent's filter rules.
func (h *AgentHandler) ListRules(c *gin.Context) {
	rules, err := h.repo.ListRules(c.Request.Context(), c.Param("id"), false)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rules": rules, "count": len(rules)})
}

// UpdateRule updates one of the agent's filter rules.
func (h *AgentHandler) UpdateRule(c *gin.Context) {
	var rule models.FilterRule
	if err := c.ShouldBindJSON(&rule); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	rule.ID = c.Param("ruleId")
	rule.AgentID = c.Param("id")

	if err := h.repo.UpdateRule(c.Request.Context(), &rule); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

// DeleteRule removes one of the agent's filter rules.
func (h *AgentHandler) DeleteRule(c *gin.Context) {
	if err := h.repo.DeleteRule(c.Request.Context(), c.Param("id"), c.Param("ruleId")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Rule deleted"})
}
