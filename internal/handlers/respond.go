// Package handlers implements the HTTP control surface consumed by the
// dashboard and other callers.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/curation-engine/internal/apperrors"
)

// respondError maps a taxonomy error to its HTTP status and a JSON body that
// tells the caller why the operation is blocked.
func respondError(c *gin.Context, err error) {
	status := apperrors.HTTPStatus(err)
	body := gin.H{"error": err.Error()}
	if status == http.StatusInternalServerError {
		// Internals stay in the logs.
		body = gin.H{"error": "internal error"}
	}
	c.JSON(status, body)
}
