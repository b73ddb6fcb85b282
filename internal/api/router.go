package api

import (
	"github.com/gin-gonic/gin"

	"reporting-service/internal/logging"
	"reporting-service/internal/models"
)

func NewRouter(h *Handler, auth AuthConfig, logger *logging.Logger, basePath string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLoggingMiddleware(logger))

	r.GET("/health", h.Health)

	api := r.Group(basePath)
	{
		// Public share links
		api.GET("/share/:token", h.GetShare)

		authed := api.Group("", AuthMiddleware(auth))

		// Reports
		authed.POST("/reports/:kind", h.SubmitReport)
		authed.GET("/reports/latest", h.LatestReport)
		authed.GET("/reports/:id", h.GetReport)
		authed.GET("/reports", RequireRole(models.RoleRegulator), h.ListReports)

		// Users
		authed.PUT("/users/me/device-token", h.UpdateDeviceToken)
		authed.PUT("/users/me/location", h.UpdateLocation)
		authed.POST("/users/me/location/share", h.CreateShare)
		authed.DELETE("/share/:token", h.RevokeShare)

		// Realtime regulator feed
		authed.GET("/ws/regulators", RequireRole(models.RoleRegulator), h.RegulatorFeed)
	}
	return r
}
