package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dm-service/internal/telemetry"
)

// RegisterDebugRoutes wires endpoints for exercising the dm audit
// pipeline in non-production environments.
func RegisterDebugRoutes(router *gin.Engine, emitter *telemetry.AuditEmitter, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/dm-audit", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}

		requestID := requestIDFromContext(c)
		emitter.Emit(c.Request.Context(), "INFO", "dm audit pipeline check", requestID, userIDFromContext(c))
		c.JSON(http.StatusOK, gin.H{"status": "ok", "requestId": requestID})
	})
}
