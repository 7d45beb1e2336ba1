package api

import (
	"courier/internal/server/auth"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// SetupRouter creates and configures the echo router with all routes and middleware.
func SetupRouter(handler *Handler, tokens *auth.Service, limiter Limiter) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	// Global middleware
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Content-Type", "Authorization"},
	}))
	e.Use(RequestLogger())

	authed := AuthRequired(tokens)
	limited := RateLimit(limiter)

	// Health & stats
	e.GET("/health", handler.HandleHealth)
	e.GET("/api/stats", handler.HandleStats)

	// Auth
	e.POST("/api/auth/register", handler.HandleRegister, limited)
	e.POST("/api/auth/login", handler.HandleLogin, limited)

	// Upload orchestration (authenticated, rate-limited)
	e.POST("/api/upload/create", handler.HandleUploadCreate, authed, limited)
	e.POST("/api/upload/complete", handler.HandleUploadComplete, authed)
	e.POST("/api/upload/abort", handler.HandleUploadAbort, authed)

	// Transfers (authenticated)
	e.POST("/api/transfers/create", handler.HandleTransferCreate, authed, limited)
	e.GET("/api/transfers", handler.HandleTransferList, authed)
	e.DELETE("/api/transfers/:id/delete", handler.HandleTransferDelete, authed)
	e.POST("/api/transfers/:id/notify", handler.HandleNotify, authed)

	// Public share surface
	e.GET("/api/share/:slug", handler.HandleShare, limited)
	e.GET("/api/share/:slug/download", handler.HandleShareDownload, limited)

	// Email tracking
	e.GET("/api/email/track/open/:recipientId", handler.HandleTrackOpen)
	e.POST("/api/email/track/click/:recipientId", handler.HandleTrackClick)

	// Cleanup triggers (guarded by the cron secret when configured)
	e.POST("/api/admin/cleanup", handler.HandleCleanup)
	e.POST("/api/cron/cleanup", handler.HandleCleanup)

	return e
}
