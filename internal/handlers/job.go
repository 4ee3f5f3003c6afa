package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/curation-engine/internal/crawl"
	"github.com/jonesrussell/curation-engine/internal/database"
	"github.com/jonesrussell/curation-engine/internal/logger"
	"github.com/jonesrussell/curation-engine/internal/models"
)

// JobHandler serves the job ledger and crawl cancellation.
type JobHandler struct {
	repo    *database.JobRepository
	crawler *crawl.Service
	logger  logger.Logger
}

// NewJobHandler creates a new job handler.
func NewJobHandler(repo *database.JobRepository, crawler *crawl.Service, log logger.Logger) *JobHandler {
	return &JobHandler{repo: repo, crawler: crawler, logger: log}
}

func (h *JobHandler) GetByID(c *gin.Context) {
	job, err := h.repo.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (h *JobHandler) List(c *gin.Context) {
	filter := database.JobFilter{
		WorkflowName: c.Query("workflow"),
		WebsiteID:    c.Query("website_id"),
		Status:       models.JobStatus(c.Query("status")),
		Limit:        queryInt(c, "limit", 50),
		Offset:       queryInt(c, "offset", 0),
	}

	jobs, err := h.repo.List(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list jobs", logger.Error(err))
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"jobs": jobs, "count": len(jobs)})
}

// Cancel stops a running crawl job. The website lands in failed and its
// snapshots are kept for inspection.
func (h *JobHandler) Cancel(c *gin.Context) {
	id := c.Param("id")

	if err := h.crawler.CancelCrawl(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}

	h.logger.Info("Crawl job cancelled", logger.String("job_id", id))
	c.JSON(http.StatusOK, gin.H{"job_id": id, "status": models.JobFailed})
}
