package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"courier/internal/server/database"
	"courier/internal/server/service"
	"courier/internal/server/storage"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// trackingPixel is a transparent 1x1 GIF served by the open-tracking endpoint.
var trackingPixel = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00,
	0x00, 0x00, 0x00, 0x00, 0xff, 0xff, 0xff, 0x21, 0xf9, 0x04, 0x01, 0x00,
	0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00,
	0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

// Handler contains the HTTP handlers for the courier API.
type Handler struct {
	svc        *service.TransferService
	accounts   *service.AccountService
	store      storage.ObjectStore
	db         *database.DB
	cronSecret string
}

// NewHandler creates a new handler with its service dependencies.
func NewHandler(svc *service.TransferService, accounts *service.AccountService, store storage.ObjectStore, db *database.DB, cronSecret string) *Handler {
	return &Handler{
		svc:        svc,
		accounts:   accounts,
		store:      store,
		db:         db,
		cronSecret: cronSecret,
	}
}

// --- Auth ---

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleRegister handles POST /api/auth/register.
func (h *Handler) HandleRegister(c echo.Context) error {
	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	result, err := h.accounts.Register(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusCreated, result)
}

// HandleLogin handles POST /api/auth/login.
func (h *Handler) HandleLogin(c echo.Context) error {
	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	result, err := h.accounts.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// --- Upload orchestration ---

type uploadCreateRequest struct {
	FileName    string `json:"fileName"`
	FileSize    int64  `json:"fileSize"`
	ContentType string `json:"contentType"`
}

// HandleUploadCreate handles POST /api/upload/create.
// Returns the multipart upload plan: key, upload ID and presigned part URLs.
func (h *Handler) HandleUploadCreate(c echo.Context) error {
	var req uploadCreateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if req.FileName == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "fileName is required"})
	}

	init, err := h.store.InitMultipartUpload(c.Request().Context(), req.FileName, req.FileSize, req.ContentType)
	if err != nil {
		if errors.Is(err, storage.ErrInvalidSize) || errors.Is(err, storage.ErrTooManyParts) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
		}
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, init)
}

type uploadCompleteRequest struct {
	UploadID string         `json:"uploadId"`
	Key      string         `json:"key"`
	Parts    []storage.Part `json:"parts"`
}

// HandleUploadComplete handles POST /api/upload/complete.
func (h *Handler) HandleUploadComplete(c echo.Context) error {
	var req uploadCompleteRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if req.UploadID == "" || req.Key == "" || len(req.Parts) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "uploadId, key and parts are required"})
	}

	if err := h.store.CompleteMultipartUpload(c.Request().Context(), req.Key, req.UploadID, req.Parts); err != nil {
		return c.JSON(http.StatusBadGateway, echo.Map{"error": "failed to finalize upload"})
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "key": req.Key})
}

type uploadAbortRequest struct {
	UploadID string `json:"uploadId"`
	Key      string `json:"key"`
}

// HandleUploadAbort handles POST /api/upload/abort.
func (h *Handler) HandleUploadAbort(c echo.Context) error {
	var req uploadAbortRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	if err := h.store.AbortMultipartUpload(c.Request().Context(), req.Key, req.UploadID); err != nil {
		return c.JSON(http.StatusBadGateway, echo.Map{"error": "failed to abort upload"})
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

// --- Transfers ---

type transferCreateRequest struct {
	Files     []service.FileInput `json:"files"`
	ExpiresAt *time.Time          `json:"expiresAt"`
	Password  string              `json:"password"`
}

// HandleTransferCreate handles POST /api/transfers/create.
func (h *Handler) HandleTransferCreate(c echo.Context) error {
	userID, ok := currentUserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	var req transferCreateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	result, err := h.svc.CreateTransfer(c.Request().Context(), userID, req.Files, req.ExpiresAt, req.Password)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusCreated, result)
}

// HandleTransferList handles GET /api/transfers.
func (h *Handler) HandleTransferList(c echo.Context) error {
	userID, ok := currentUserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	transfers, err := h.svc.ListTransfers(c.Request().Context(), userID)
	if err != nil {
		return mapServiceError(c, err)
	}

	out := make([]echo.Map, 0, len(transfers))
	for _, t := range transfers {
		out = append(out, echo.Map{
			"id":          t.ID,
			"slug":        t.Slug,
			"status":      t.Status,
			"expires_at":  t.ExpiresAt,
			"total_bytes": t.TotalBytes,
			"created_at":  t.CreatedAt,
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"transfers": out})
}

// HandleTransferDelete handles DELETE /api/transfers/:id/delete.
func (h *Handler) HandleTransferDelete(c echo.Context) error {
	userID, ok := currentUserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}
	transferID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid transfer id"})
	}

	if err := h.svc.DeleteTransfer(c.Request().Context(), transferID, userID); err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

type notifyRequest struct {
	Recipients []string `json:"recipients"`
	Message    string   `json:"message"`
}

// HandleNotify handles POST /api/transfers/:id/notify.
func (h *Handler) HandleNotify(c echo.Context) error {
	userID, ok := currentUserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}
	transferID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid transfer id"})
	}

	var req notifyRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	result, err := h.svc.Notify(c.Request().Context(), transferID, userID, req.Recipients, req.Message)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// --- Share ---

// HandleShare handles GET /api/share/:slug.
func (h *Handler) HandleShare(c echo.Context) error {
	view, err := h.svc.GetShareView(c.Request().Context(), c.Param("slug"))
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, view)
}

// HandleShareDownload handles GET /api/share/:slug/download?fileId=...
// The optional password travels as a query parameter.
func (h *Handler) HandleShareDownload(c echo.Context) error {
	fileID, err := uuid.Parse(c.QueryParam("fileId"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "fileId is required"})
	}

	result, err := h.svc.DownloadFile(c.Request().Context(), c.Param("slug"), fileID, c.QueryParam("password"))
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// --- Cleanup ---

// HandleCleanup handles POST /api/admin/cleanup and POST /api/cron/cleanup.
// When a cron secret is configured the request must carry it as a bearer token.
func (h *Handler) HandleCleanup(c echo.Context) error {
	if h.cronSecret != "" {
		if c.Request().Header.Get("Authorization") != "Bearer "+h.cronSecret {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid cron secret"})
		}
	}

	result, err := h.svc.Cleanup(c.Request().Context())
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// --- Email tracking ---

// HandleTrackOpen handles GET /api/email/track/open/:recipientId.
// Always serves the pixel; a bad or unknown ID is not worth a broken image.
func (h *Handler) HandleTrackOpen(c echo.Context) error {
	if recipientID, err := uuid.Parse(c.Param("recipientId")); err == nil {
		if err := h.svc.TrackOpen(c.Request().Context(), recipientID); err != nil {
			c.Logger().Error(err)
		}
	}
	c.Response().Header().Set("Cache-Control", "no-store")
	return c.Blob(http.StatusOK, "image/gif", trackingPixel)
}

// HandleTrackClick handles POST /api/email/track/click/:recipientId.
func (h *Handler) HandleTrackClick(c echo.Context) error {
	recipientID, err := uuid.Parse(c.Param("recipientId"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid recipient id"})
	}
	if err := h.svc.TrackClick(c.Request().Context(), recipientID); err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

// --- Health & stats ---

// HandleHealth handles GET /health.
func (h *Handler) HandleHealth(c echo.Context) error {
	status := "healthy"
	dbStatus := "connected"

	if err := h.db.HealthCheck(c.Request().Context()); err != nil {
		status = "degraded"
		dbStatus = fmt.Sprintf("error: %v", err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"status":   status,
		"database": dbStatus,
	})
}

// HandleStats handles GET /api/stats.
func (h *Handler) HandleStats(c echo.Context) error {
	stats, err := h.svc.Stats(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to retrieve stats"})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"total_transfers":    stats.TotalTransfers,
		"active_transfers":   stats.ActiveTransfers,
		"total_downloads":    stats.TotalDownloads,
		"active_bytes":       stats.ActiveBytes,
		"active_bytes_human": humanizeBytes(stats.ActiveBytes),
	})
}

// mapServiceError translates service-layer errors into HTTP responses.
func mapServiceError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "transfer not found"})
	case errors.Is(err, service.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": err.Error()})
	case errors.Is(err, service.ErrPasswordRequired):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "password_required"})
	case errors.Is(err, service.ErrInvalidPassword):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "invalid password"})
	case errors.Is(err, service.ErrTransferTooLarge),
		errors.Is(err, service.ErrMonthlyQuota),
		errors.Is(err, service.ErrPasswordNotAllowed),
		errors.Is(err, service.ErrNoFiles),
		errors.Is(err, service.ErrInvalidExpiry),
		errors.Is(err, service.ErrNoRecipients),
		errors.Is(err, service.ErrTooManyRecipients),
		errors.Is(err, service.ErrWeakPassword),
		errors.Is(err, service.ErrInvalidEmail):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errors.Is(err, service.ErrEmailTaken):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidCredentials):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": err.Error()})
	default:
		c.Logger().Error(err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
	}
}

// humanizeBytes formats a byte count into a human-readable string.
func humanizeBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}
