package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/curation-engine/internal/apperrors"
	"github.com/jonesrussell/curation-engine/internal/crawl"
	"github.com/jonesrussell/curation-engine/internal/database"
	"github.com/jonesrussell/curation-engine/internal/events"
	"github.com/jonesrussell/curation-engine/internal/logger"
	"github.com/jonesrussell/curation-engine/internal/models"
)

// WebsiteHandler serves website moderation and crawl triggers.
type WebsiteHandler struct {
	repo      *database.WebsiteRepository
	crawler   *crawl.Service
	publisher *events.Publisher
	logger    logger.Logger
}

// NewWebsiteHandler creates a new website handler.
func NewWebsiteHandler(repo *database.WebsiteRepository, crawler *crawl.Service, publisher *events.Publisher, log logger.Logger) *WebsiteHandler {
	return &WebsiteHandler{
		repo:      repo,
		crawler:   crawler,
		publisher: publisher,
		logger:    log,
	}
}

func (h *WebsiteHandler) GetByID(c *gin.Context) {
	website, err := h.repo.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, website)
}

func (h *WebsiteHandler) List(c *gin.Context) {
	filter := database.WebsiteFilter{
		ModerationStatus: models.ModerationStatus(c.Query("moderation_status")),
		CrawlStatus:      models.CrawlStatus(c.Query("crawl_status")),
		AgentID:          c.Query("agent_id"),
		Limit:            queryInt(c, "limit", 50),
		Offset:           queryInt(c, "offset", 0),
	}

	websites, err := h.repo.List(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list websites", logger.Error(err))
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"websites": websites, "count": len(websites)})
}

// Approve admits a website into the crawlable pool.
func (h *WebsiteHandler) Approve(c *gin.Context) {
	h.moderate(c, models.ModerationApproved)
}

// Reject removes a website from moderation consideration.
func (h *WebsiteHandler) Reject(c *gin.Context) {
	h.moderate(c, models.ModerationRejected)
}

// Suspend pulls an approved website back out of the crawlable pool. Crawls
// already in flight finish; no new ones start.
func (h *WebsiteHandler) Suspend(c *gin.Context) {
	h.moderate(c, models.ModerationSuspended)
}

func (h *WebsiteHandler) moderate(c *gin.Context, status models.ModerationStatus) {
	id := c.Param("id")

	if err := h.repo.SetModerationStatus(c.Request.Context(), id, status); err != nil {
		respondError(c, err)
		return
	}

	h.logger.Info("Website moderated",
		logger.String("website_id", id),
		logger.String("moderation_status", string(status)),
	)
	h.publisher.PublishAsync(events.Event{
		EventType: events.EventWebsiteModerated,
		EntityID:  id,
		Detail:    map[string]any{"moderation_status": string(status)},
	})

	c.JSON(http.StatusOK, gin.H{"website_id": id, "moderation_status": status})
}

// Crawl triggers a manual crawl. Manual initiation re-arms the retry budget,
// so it works even on a website that exhausted its retries. The crawl runs
// synchronously; the page budget bounds how long that takes.
func (h *WebsiteHandler) Crawl(c *gin.Context) {
	id := c.Param("id")

	outcome, err := h.crawler.Execute(c.Request.Context(), id, true)
	if err != nil {
		if !apperrors.IsConflict(err) {
			h.logger.Error("Manual crawl failed",
				logger.String("website_id", id),
				logger.Error(err),
			)
		}
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"job_id":        outcome.JobID,
		"crawl_status":  outcome.Status,
		"pages_crawled": outcome.PagesCrawled,
		"drafts":        outcome.Drafts,
	})
}

// queryInt parses an integer query parameter, falling back to def on absence
// or garbage.
func queryInt(c *gin.Context, name string, def int) int {
	raw := c.Query(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	return v
}
