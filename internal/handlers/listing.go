package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/curation-engine/internal/database"
	"github.com/jonesrussell/curation-engine/internal/logger"
	"github.com/jonesrussell/curation-engine/internal/models"
)

// ListingHandler serves read access to canonical listings. All writes go
// through the review gate, so there is no mutation surface here beyond what
// batch decisions produce.
type ListingHandler struct {
	repo   *database.ListingRepository
	logger logger.Logger
}

// NewListingHandler creates a new listing handler.
func NewListingHandler(repo *database.ListingRepository, log logger.Logger) *ListingHandler {
	return &ListingHandler{repo: repo, logger: log}
}

func (h *ListingHandler) GetByID(c *gin.Context) {
	listing, err := h.repo.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, listing)
}

func (h *ListingHandler) List(c *gin.Context) {
	filter := database.ListingFilter{
		Status:    models.ListingStatus(c.Query("status")),
		WebsiteID: c.Query("website_id"),
		Limit:     queryInt(c, "limit", 50),
		Offset:    queryInt(c, "offset", 0),
	}

	listings, err := h.repo.List(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list listings", logger.Error(err))
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"listings": listings, "count": len(listings)})
}
