// Package service contains the transfer lifecycle business logic: plan-gated
// creation, share lookups, download issuance, deletion, cleanup and
// recipient notification.
package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"courier/internal/server/config"
	"courier/internal/server/database"
	"courier/internal/server/mail"
	"courier/internal/server/plan"
	"courier/internal/server/storage"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Sentinel errors for the service layer.
var (
	ErrNotFound           = errors.New("transfer not found")
	ErrForbidden          = errors.New("you do not own this transfer")
	ErrNoFiles            = errors.New("at least one file is required")
	ErrTransferTooLarge   = errors.New("transfer exceeds your plan's size limit; upgrade your plan to send larger transfers")
	ErrMonthlyQuota       = errors.New("monthly transfer limit reached; upgrade your plan to keep sending")
	ErrPasswordNotAllowed = errors.New("password protection requires a paid plan")
	ErrPasswordRequired   = errors.New("password_required")
	ErrInvalidPassword    = errors.New("invalid password")
	ErrInvalidExpiry      = errors.New("expiry must be in the future")
)

// Repository is the persistence surface the service consumes. Implemented by
// *database.Repository; tests substitute a fake.
type Repository interface {
	CreateUser(ctx context.Context, user *database.User) error
	GetUserByID(ctx context.Context, id uuid.UUID) (*database.User, error)
	GetUserByEmail(ctx context.Context, email string) (*database.User, error)

	CreateTransferWithFiles(ctx context.Context, transfer *database.Transfer, files []*database.FileObject) error
	GetTransferByID(ctx context.Context, id uuid.UUID) (*database.Transfer, error)
	GetActiveTransferBySlug(ctx context.Context, slug string) (*database.Transfer, error)
	ListTransfersByOwner(ctx context.Context, ownerID uuid.UUID) ([]*database.Transfer, error)
	CountTransfersCreatedSince(ctx context.Context, ownerID uuid.UUID, since time.Time) (int, error)
	DeleteTransfer(ctx context.Context, id uuid.UUID) error
	GetExpiredTransfers(ctx context.Context) ([]*database.Transfer, error)

	ListFiles(ctx context.Context, transferID uuid.UUID) ([]*database.FileObject, error)
	GetFile(ctx context.Context, transferID, fileID uuid.UUID) (*database.FileObject, error)

	CreateRecipient(ctx context.Context, rec *database.Recipient) error
	MarkRecipientOpened(ctx context.Context, id uuid.UUID) error
	MarkRecipientDownloaded(ctx context.Context, id uuid.UUID) error

	AppendEvent(ctx context.Context, transferID uuid.UUID, eventType string, metadata map[string]string) error
	GetStats(ctx context.Context) (*database.Stats, error)
}

// FileInput describes one already-uploaded object to attach to a transfer.
// The caller obtained the storage key from the upload-plan endpoint; file
// bytes never pass through this service.
type FileInput struct {
	StorageKey  string `json:"storage_key"`
	Name        string `json:"name"`
	SizeBytes   int64  `json:"size_bytes"`
	ContentType string `json:"content_type"`
}

// CreateResult is returned after a successful transfer creation.
type CreateResult struct {
	ID        uuid.UUID `json:"id"`
	Slug      string    `json:"slug"`
	ExpiresAt time.Time `json:"expires_at"`
	ShareURL  string    `json:"share_url"`
}

// ShareFile is one file as shown to recipients.
type ShareFile struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	SizeBytes   int64     `json:"size_bytes"`
	ContentType string    `json:"content_type"`
}

// ShareView is what a recipient sees before downloading. The password hash
// is never part of it.
type ShareView struct {
	ID               uuid.UUID   `json:"id"`
	Slug             string      `json:"slug"`
	ExpiresAt        time.Time   `json:"expires_at"`
	TotalBytes       int64       `json:"total_bytes"`
	RequiresPassword bool        `json:"requires_password"`
	Files            []ShareFile `json:"files"`
}

// DownloadResult carries a presigned URL for one file.
type DownloadResult struct {
	DownloadURL string `json:"downloadUrl"`
	FileName    string `json:"fileName"`
	FileSize    int64  `json:"fileSize"`
	ContentType string `json:"contentType"`
}

// TransferService contains the transfer lifecycle business logic.
type TransferService struct {
	repo        Repository
	store       storage.ObjectStore
	mailer      mail.Mailer
	baseURL     string
	downloadTTL time.Duration
	now         func() time.Time
}

// NewTransferService creates a transfer service.
func NewTransferService(repo Repository, store storage.ObjectStore, mailer mail.Mailer, cfg *config.Config) *TransferService {
	return &TransferService{
		repo:        repo,
		store:       store,
		mailer:      mailer,
		baseURL:     cfg.BaseURL,
		downloadTTL: cfg.DownloadTTL,
		now:         time.Now,
	}
}

// CreateTransfer validates the request against the owner's plan limits and
// persists the transfer with its file metadata in one transaction.
func (s *TransferService) CreateTransfer(ctx context.Context, ownerID uuid.UUID, files []FileInput, expiresAt *time.Time, password string) (*CreateResult, error) {
	if len(files) == 0 {
		return nil, ErrNoFiles
	}

	owner, err := s.repo.GetUserByID(ctx, ownerID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	limits := plan.ForTier(plan.Tier(owner.Plan))

	var totalBytes int64
	for _, f := range files {
		totalBytes += f.SizeBytes
	}
	if totalBytes > limits.MaxTransferBytes {
		return nil, ErrTransferTooLarge
	}

	now := s.now().UTC()

	// Monthly quota is calendar-month-aligned, not rolling 30 days.
	if limits.MonthlyTransfers > 0 {
		monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		count, err := s.repo.CountTransfersCreatedSince(ctx, ownerID, monthStart)
		if err != nil {
			return nil, err
		}
		if count >= limits.MonthlyTransfers {
			return nil, ErrMonthlyQuota
		}
	}

	if password != "" && !limits.AllowPassword {
		return nil, ErrPasswordNotAllowed
	}

	expiry := now.AddDate(0, 0, limits.ExpiryDays)
	if expiresAt != nil {
		if !expiresAt.After(now) {
			return nil, ErrInvalidExpiry
		}
		expiry = expiresAt.UTC()
	}

	var passwordHash *string
	if password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
		h := string(hash)
		passwordHash = &h
	}

	slug, err := newSlug()
	if err != nil {
		return nil, err
	}

	transfer := &database.Transfer{
		ID:           uuid.New(),
		Slug:         slug,
		OwnerID:      ownerID,
		Status:       database.StatusActive,
		ExpiresAt:    expiry,
		TotalBytes:   totalBytes,
		PasswordHash: passwordHash,
		CreatedAt:    now,
	}

	fileObjects := make([]*database.FileObject, 0, len(files))
	for _, f := range files {
		fileObjects = append(fileObjects, &database.FileObject{
			ID:          uuid.New(),
			TransferID:  transfer.ID,
			StorageKey:  f.StorageKey,
			DisplayName: storage.SanitizeFilename(f.Name),
			SizeBytes:   f.SizeBytes,
			ContentType: f.ContentType,
			CreatedAt:   now,
		})
	}

	if err := s.repo.CreateTransferWithFiles(ctx, transfer, fileObjects); err != nil {
		return nil, fmt.Errorf("failed to create transfer: %w", err)
	}

	slog.Info("transfer created",
		"transfer_id", transfer.ID,
		"owner_id", ownerID,
		"files", len(fileObjects),
		"total_bytes", totalBytes,
		"expires_at", expiry,
		"password_protected", passwordHash != nil,
	)

	return &CreateResult{
		ID:        transfer.ID,
		Slug:      transfer.Slug,
		ExpiresAt: transfer.ExpiresAt,
		ShareURL:  fmt.Sprintf("%s/s/%s", s.baseURL, transfer.Slug),
	}, nil
}

// GetShareView returns the recipient-facing view of a transfer. Only ACTIVE
// and unexpired transfers resolve.
func (s *TransferService) GetShareView(ctx context.Context, slug string) (*ShareView, error) {
	transfer, err := s.repo.GetActiveTransferBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	files, err := s.repo.ListFiles(ctx, transfer.ID)
	if err != nil {
		return nil, err
	}

	view := &ShareView{
		ID:               transfer.ID,
		Slug:             transfer.Slug,
		ExpiresAt:        transfer.ExpiresAt,
		TotalBytes:       transfer.TotalBytes,
		RequiresPassword: transfer.PasswordHash != nil,
		Files:            make([]ShareFile, 0, len(files)),
	}
	for _, f := range files {
		view.Files = append(view.Files, ShareFile{
			ID:          f.ID,
			Name:        f.DisplayName,
			SizeBytes:   f.SizeBytes,
			ContentType: f.ContentType,
		})
	}
	return view, nil
}

// DownloadFile re-validates the share gate, checks the password when one is
// set, and returns a presigned download URL. A DOWNLOAD event is appended on
// issuance, whether or not the caller ever fetches the URL.
func (s *TransferService) DownloadFile(ctx context.Context, slug string, fileID uuid.UUID, password string) (*DownloadResult, error) {
	transfer, err := s.repo.GetActiveTransferBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if transfer.PasswordHash != nil {
		if password == "" {
			return nil, ErrPasswordRequired
		}
		if err := bcrypt.CompareHashAndPassword([]byte(*transfer.PasswordHash), []byte(password)); err != nil {
			return nil, ErrInvalidPassword
		}
	}

	file, err := s.repo.GetFile(ctx, transfer.ID, fileID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	url, err := s.store.PresignDownload(ctx, file.StorageKey, s.downloadTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to presign download: %w", err)
	}

	if err := s.repo.AppendEvent(ctx, transfer.ID, database.EventDownload, map[string]string{
		"file_id":   file.ID.String(),
		"file_name": file.DisplayName,
	}); err != nil {
		return nil, fmt.Errorf("failed to record download event: %w", err)
	}

	return &DownloadResult{
		DownloadURL: url,
		FileName:    file.DisplayName,
		FileSize:    file.SizeBytes,
		ContentType: file.ContentType,
	}, nil
}

// DeleteTransfer removes a transfer after verifying ownership. Storage
// deletion is best-effort: a failed object delete is logged and does not
// block the database cleanup.
func (s *TransferService) DeleteTransfer(ctx context.Context, transferID, requesterID uuid.UUID) error {
	transfer, err := s.repo.GetTransferByID(ctx, transferID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	if transfer.OwnerID != requesterID {
		return ErrForbidden
	}

	files, err := s.repo.ListFiles(ctx, transferID)
	if err != nil {
		return err
	}
	for _, f := range files {
		if err := s.store.Delete(ctx, f.StorageKey); err != nil {
			slog.Error("failed to delete stored object",
				"transfer_id", transferID,
				"storage_key", f.StorageKey,
				"error", err,
			)
		}
	}

	if err := s.repo.DeleteTransfer(ctx, transferID); err != nil {
		return fmt.Errorf("failed to delete transfer record: %w", err)
	}

	slog.Info("transfer deleted", "transfer_id", transferID, "owner_id", requesterID)
	return nil
}

// ListTransfers returns an owner's transfers.
func (s *TransferService) ListTransfers(ctx context.Context, ownerID uuid.UUID) ([]*database.Transfer, error) {
	return s.repo.ListTransfersByOwner(ctx, ownerID)
}

// TrackOpen stamps a recipient's opened_at. First open wins; later opens
// are no-ops.
func (s *TransferService) TrackOpen(ctx context.Context, recipientID uuid.UUID) error {
	return s.repo.MarkRecipientOpened(ctx, recipientID)
}

// TrackClick stamps a recipient's downloaded_at. First click wins.
func (s *TransferService) TrackClick(ctx context.Context, recipientID uuid.UUID) error {
	return s.repo.MarkRecipientDownloaded(ctx, recipientID)
}

// Stats returns aggregate server statistics.
func (s *TransferService) Stats(ctx context.Context) (*database.Stats, error) {
	return s.repo.GetStats(ctx)
}

// newSlug generates the public, unguessable share identifier: 16 random
// bytes, URL-safe encoded. Collisions are treated as cryptographically
// negligible and not checked.
func newSlug() (string, error) {
	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("crypto/rand failure: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
