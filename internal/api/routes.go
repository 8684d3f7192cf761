package api

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes registers the /v1 endpoints on rg.
//
//	v1 := router.Group("/v1")
//	api.RegisterRoutes(v1, handlers)
func RegisterRoutes(rg *gin.RouterGroup, h *Handlers) {
	sessions := rg.Group("/sessions")
	{
		sessions.POST("", h.HandleStartSession)
		sessions.GET("", h.HandleActiveSessions)
		sessions.POST("/:user/submissions", h.HandleSubmit)
		sessions.DELETE("/:user", h.HandleEndSession)
	}

	rg.POST("/scan", h.HandleScan)

	records := rg.Group("/records")
	{
		records.GET("", h.HandleListRecords)
		records.GET("/:id", h.HandleGetRecord)
	}

	rg.GET("/leaderboard", h.HandleLeaderboard)
}

// NewRouter builds a gin engine with recovery, request logging, health,
// Prometheus metrics and the /v1 routes.
func NewRouter(h *Handlers) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(h.logger))

	r.GET("/healthz", h.HandleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	RegisterRoutes(r.Group("/v1"), h)
	return r
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}
