// Package api wires the HTTP control surface.
package api

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/curation-engine/internal/handlers"
	"github.com/jonesrussell/curation-engine/internal/logger"
)

const (
	corsMaxAgeHours = 12
)

// Handlers carries the handler set the router mounts.
type Handlers struct {
	Agents   *handlers.AgentHandler
	Websites *handlers.WebsiteHandler
	Runs     *handlers.RunHandler
	Jobs     *handlers.JobHandler
	Batches  *handlers.BatchHandler
	Listings *handlers.ListingHandler
}

func NewRouter(h Handlers, log logger.Logger) *gin.Engine {
	router := gin.New()

	// CORS middleware - must be first
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"http://localhost:3000"},
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders: []string{
			"Origin", "Content-Type", "Content-Length", "Accept-Encoding",
			"X-CSRF-Token", "Authorization", "accept", "origin",
			"Cache-Control", "X-Requested-With",
		},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           corsMaxAgeHours * time.Hour,
	}))

	// Middleware
	router.Use(ginLogger(log))
	router.Use(gin.Recovery())

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// API v1
	v1 := router.Group("/api/v1")

	// Agents endpoints
	agents := v1.Group("/agents")
	agents.POST("", h.Agents.Create)
	agents.GET("", h.Agents.List)
	agents.GET("/:id", h.Agents.GetByID)
	agents.PUT("/:id", h.Agents.Update)
	agents.DELETE("/:id", h.Agents.Delete)
	agents.PUT("/:id/status", h.Agents.SetStatus)
	agents.POST("/:id/run", h.Agents.RunStep)
	agents.POST("/:id/queries", h.Agents.CreateQuery)
	agents.GET("/:id/queries", h.Agents.ListQueries)
	agents.PUT("/:id/queries/:queryId", h.Agents.UpdateQuery)
	agents.DELETE("/:id/queries/:queryId", h.Agents.DeleteQuery)
	agents.POST("/:id/rules", h.Agents.CreateRule)
	agents.GET("/:id/rules", h.Agents.ListRules)
	agents.PUT("/:id/rules/:ruleId", h.Agents.UpdateRule)
	agents.DELETE("/:id/rules/:ruleId", h.Agents.DeleteRule)

	// Websites endpoints
	websites := v1.Group("/websites")
	websites.GET("", h.Websites.List)
	websites.GET("/:id", h.Websites.GetByID)
	websites.POST("/:id/approve", h.Websites.Approve)
	websites.POST("/:id/reject", h.Websites.Reject)
	websites.POST("/:id/suspend", h.Websites.Suspend)
	websites.POST("/:id/crawl", h.Websites.Crawl)

	// Runs endpoints
	runs := v1.Group("/runs")
	runs.GET("", h.Runs.List)
	runs.GET("/:id", h.Runs.GetByID)

	// Jobs endpoints
	jobs := v1.Group("/jobs")
	jobs.GET("", h.Jobs.List)
	jobs.GET("/:id", h.Jobs.GetByID)
	jobs.POST("/:id/cancel", h.Jobs.Cancel)

	// Sync batches and proposals endpoints
	batches := v1.Group("/batches")
	batches.GET("", h.Batches.List)
	batches.GET("/:id", h.Batches.GetByID)
	batches.POST("/:id/approve", h.Batches.Approve)
	batches.POST("/:id/reject", h.Batches.Reject)

	proposals := v1.Group("/proposals")
	proposals.POST("/:id/approve", h.Batches.ApproveProposal)
	proposals.POST("/:id/reject", h.Batches.RejectProposal)

	// Listings endpoints
	listings := v1.Group("/listings")
	listings.GET("", h.Listings.List)
	listings.GET("/:id", h.Listings.GetByID)

	return router
}

func ginLogger(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		duration := time.Since(start)
		statusCode := c.Writer.Status()

		log.Info("HTTP request",
			logger.String("method", method),
			logger.String("path", path),
			logger.Int("status_code", statusCode),
			logger.String("client_ip", c.ClientIP()),
			logger.Duration("duration", duration),
		)
	}
}
