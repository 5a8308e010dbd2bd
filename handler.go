package main

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/juju/clock"
	"github.com/prometheus/client_golang/prometheus"

	"lg/nutrition-ledger-go-api/internal/backup"
	"lg/nutrition-ledger-go-api/internal/catalog"
	"lg/nutrition-ledger-go-api/internal/dayclose"
	"lg/nutrition-ledger-go-api/internal/goals"
	"lg/nutrition-ledger-go-api/internal/metrics"
	"lg/nutrition-ledger-go-api/internal/store"
)

// userIDHeader names the user a request acts on. There is no authentication;
// the caller (the UI layer) is trusted to send it.
const userIDHeader = "X-User-ID"

// foodCatalog is what the host needs from the food table.
type foodCatalog interface {
	catalog.Lookup
	catalog.Searcher
}

// Handler holds shared dependencies for all route handlers.
type Handler struct {
	store   store.Store
	foods   foodCatalog
	closer  *dayclose.Closer
	backup  backup.Service // nil when SYNC_BACKEND=none
	metrics metrics.Recorder
	clock   clock.Clock

	targetMode  goals.Mode
	syncTimeout time.Duration
}

// apiError returns a consistent JSON error response: {"error": "message"}.
func apiError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}

// userMiddleware reads the X-User-ID header and sets user_id on the context.
func userMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader(userIDHeader))
		if userID == "" {
			apiError(c, http.StatusBadRequest, "missing "+userIDHeader+" header")
			c.Abort()
			return
		}
		c.Set("user_id", userID)
		c.Next()
	}
}

// registerRoutes registers all API routes on the router. /metrics is served
// from gatherer when it is non-nil.
func (h *Handler) registerRoutes(router *gin.Engine, gatherer prometheus.Gatherer) {
	if gatherer != nil {
		router.GET("/metrics", gin.WrapH(metrics.Handler(gatherer)))
	}

	// The catalog is shared and read-only, so it needs no user.
	router.GET("/api/foods", h.searchFoods)
	router.GET("/api/foods/:name", h.getFood)

	api := router.Group("/api", userMiddleware())
	api.POST("/ledger/entries", h.registerEntry)
	api.GET("/ledger", h.getLedger)
	api.GET("/ledger/summary", h.getLedgerSummary)
	api.POST("/ledger/close", h.closeDay)
	api.GET("/ledger/export", h.exportLedger)
	api.GET("/archive", h.getArchive)
	api.GET("/archive/export", h.exportArchive)
	api.GET("/profile", h.getProfile)
	api.PUT("/profile", h.putProfile)
	api.GET("/profile/targets", h.getTargets)
	api.POST("/sync/ledger", h.syncLedger)
	api.POST("/sync/ledger/restore", h.restoreLedger)
}
