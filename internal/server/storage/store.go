// Package storage wraps the remote object store's multipart-upload API.
// Nothing in this package touches the database; it is presign plumbing plus
// part-size arithmetic.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// PartSize is the fixed multipart chunk size clients upload in.
	PartSize = 10 << 20 // 10 MiB

	// maxParts is the backend's per-upload part limit.
	maxParts = 10000
)

var (
	ErrInvalidSize  = errors.New("file size must be positive")
	ErrTooManyParts = errors.New("file exceeds the maximum multipart part count")
)

// Part identifies one uploaded part by number and the ETag the store
// returned for it. Field casing follows the S3 CompleteMultipartUpload wire
// names that clients echo back.
type Part struct {
	PartNumber int    `json:"PartNumber"`
	ETag       string `json:"ETag"`
}

// MultipartInit is the server's answer to an upload-plan request: one
// presigned PUT URL per part, all issued upfront.
type MultipartInit struct {
	UploadID string   `json:"uploadId"`
	Key      string   `json:"key"`
	PartURLs []string `json:"partUrls"`
	PartSize int64    `json:"partSize"`
}

// ObjectStore is the capability interface over the remote object store.
// The real and mock implementations are selected once at startup.
type ObjectStore interface {
	InitMultipartUpload(ctx context.Context, fileName string, fileSize int64, contentType string) (*MultipartInit, error)
	CompleteMultipartUpload(ctx context.Context, key, uploadID string, parts []Part) error
	AbortMultipartUpload(ctx context.Context, key, uploadID string) error
	PresignDownload(ctx context.Context, key string, ttl time.Duration) (string, error)
	Delete(ctx context.Context, key string) error
}

// PartCount returns ceil(fileSize / PartSize).
func PartCount(fileSize int64) int {
	return int((fileSize + PartSize - 1) / PartSize)
}

// NewObjectKey builds a unique storage key for an upload, namespaced by
// month so buckets stay browsable.
func NewObjectKey(fileName string, now time.Time) string {
	return fmt.Sprintf("transfers/%s/%s/%s",
		now.UTC().Format("2006/01"),
		uuid.NewString(),
		SanitizeFilename(fileName),
	)
}

// SanitizeFilename strips directory components and limits length.
func SanitizeFilename(name string) string {
	// Normalize Windows-style backslashes before calling filepath.Base,
	// which is platform-specific.
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)

	if len(name) > 255 {
		ext := filepath.Ext(name)
		name = name[:255-len(ext)] + ext
	}

	if name == "" || name == "." || name == "/" {
		name = "file"
	}
	return name
}

// validateSize rejects non-positive sizes and files that would exceed the
// backend part limit.
func validateSize(fileSize int64) error {
	if fileSize <= 0 {
		return ErrInvalidSize
	}
	if PartCount(fileSize) > maxParts {
		return ErrTooManyParts
	}
	return nil
}
