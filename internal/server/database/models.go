package database

import (
	"time"

	"github.com/google/uuid"
)

// Transfer status values. A deleted transfer has no status; the row is gone.
const (
	StatusActive  = "ACTIVE"
	StatusExpired = "EXPIRED"
)

// Transfer event types for the append-only transfer_event log.
const (
	EventDownload = "DOWNLOAD"
)

// User is an account that owns transfers. Plan holds the subscription tier name.
type User struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string
	Plan         string
	CreatedAt    time.Time
}

// Transfer is a shareable, expiring bundle of uploaded files.
type Transfer struct {
	ID           uuid.UUID
	Slug         string
	OwnerID      uuid.UUID
	Status       string
	ExpiresAt    time.Time
	TotalBytes   int64
	PasswordHash *string // nil when no password set
	CreatedAt    time.Time
}

// FileObject is one uploaded file's metadata. Rows are immutable after insert
// and owned exclusively by their transfer (deleted via cascade).
type FileObject struct {
	ID          uuid.UUID
	TransferID  uuid.UUID
	StorageKey  string
	DisplayName string
	SizeBytes   int64
	ContentType string
	CreatedAt   time.Time
}

// Recipient is one notified email address. OpenedAt and DownloadedAt are
// stamped at most once, first write wins.
type Recipient struct {
	ID           uuid.UUID
	TransferID   uuid.UUID
	Email        string
	SentAt       time.Time
	OpenedAt     *time.Time
	DownloadedAt *time.Time
}

// Stats holds aggregate server statistics.
type Stats struct {
	TotalTransfers  int64
	ActiveTransfers int64
	TotalDownloads  int64
	ActiveBytes     int64
}
