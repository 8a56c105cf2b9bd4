// Package httptransport wires the admin HTTP surface named in
// SPEC_FULL.md §4.4: a thin gin API over the scheduler core, protected by
// a single shared bearer secret (no per-tenant auth — spec.md Non-goals).
package httptransport

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	sloggin "github.com/samber/slog-gin"

	"github.com/jobrepeat/scheduler/internal/health"
	"github.com/jobrepeat/scheduler/internal/transport/http/handler"
	"github.com/jobrepeat/scheduler/internal/transport/http/middleware"
)

func NewRouter(logger *slog.Logger, schedulerHandler *handler.SchedulerHandler, checker *health.Checker, jwtKey []byte) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(sloggin.New(logger))
	r.Use(middleware.Metrics())

	r.GET("/livez", func(c *gin.Context) {
		c.JSON(200, checker.Liveness(c.Request.Context()))
	})
	r.GET("/readyz", func(c *gin.Context) {
		result := checker.Readiness(c.Request.Context())
		status := 200
		if result.Status != "up" {
			status = 503
		}
		c.JSON(status, result)
	})

	schedulers := r.Group("/schedulers", middleware.Auth(jwtKey))
	schedulers.POST("/:id", schedulerHandler.Upsert)
	schedulers.GET("", schedulerHandler.List)
	schedulers.GET("/count", schedulerHandler.Count)
	schedulers.GET("/:id", schedulerHandler.Get)
	schedulers.DELETE("/:id", schedulerHandler.Delete)

	return r
}
