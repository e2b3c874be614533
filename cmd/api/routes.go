package main

import (
	"database/sql"
	"net/http"
	"time"

	"dialtrack/internal/httpapi"
	"dialtrack/internal/provider"
	"dialtrack/internal/rbac"
	"dialtrack/pkg/utils"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, webhook provider.WebhookHandler, authMW gin.HandlerFunc, db *sql.DB) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		if err := utils.HealthCheck(c.Request.Context(), db, 2*time.Second); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Provider call-report push (public).
	// NOTE: protect with provider signature validation before exposing this
	// outside a trusted network.
	r.POST("/webhooks/provider/call-report", webhook.HandleCallReport)

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(authMW)
	{
		cs := v1.Group("/contacts")
		{
			cs.GET("", h.ListContacts)
			cs.GET("/:id", h.GetContact)
			cs.PUT("/:id", h.UpdateContact)
			cs.PUT("/:id/status-override",
				rbac.RequireAnyRole(rbac.RoleAgent, rbac.RoleSupervisor), h.SetStatusOverride)
			cs.POST("/:id/call", h.StartCall)
		}

		detail := v1.Group("/contact-detail")
		{
			detail.GET("/:id/attempts", h.ListAttempts)
			detail.GET("/:id/notes", h.ListNotes)
			detail.POST("/:id/note", h.AddNote)
			detail.PUT("/:id/note/:line", h.EditNote)
			detail.DELETE("/:id/note/:line",
				rbac.RequireAnyRole(rbac.RoleSupervisor), h.DeleteNote)
			detail.POST("/:id/retry", h.MarkForRetry)
			detail.POST("/:id/resolve", h.Resolve)
		}
	}
}
