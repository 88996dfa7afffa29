package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"campustap/internal/auth"
	"campustap/internal/httpmiddleware"
)

// NewRouter assembles the gin engine with middleware and routes. /healthz
// and /metrics are attached by the caller, which owns the store handles.
func NewRouter(h *Handler, limiter *httpmiddleware.SimpleTokenBucket) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	if limiter != nil {
		r.Use(limiter.GinMiddleware())
	}

	// Hardware-facing endpoints authenticate with the shared API key
	// inside the handler; readers cannot hold per-user credentials.
	r.POST("/v1/scan", h.Scan)
	r.POST("/v1/lecturers/register", h.RegisterLecturer)
	r.POST("/v1/reminders/dispatch", h.DispatchReminders)

	lecturerGroup := r.Group("/v1", auth.LecturerAuth(h.cfg.JWTSigningKey, h.cfg.JWTIssuer))
	lecturerGroup.POST("/sessions", h.StartSession)
	lecturerGroup.POST("/sessions/:id/end", h.EndSession)
	lecturerGroup.GET("/sessions/active", h.ActiveSession)
	lecturerGroup.GET("/records", h.ListRecords)
	lecturerGroup.POST("/backfill", h.Backfill)

	return r
}

// corsMiddleware keeps the scan endpoint open to reader firmware and the
// dashboard origin alike.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "authorization, x-client-info, apikey, content-type")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	}
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
