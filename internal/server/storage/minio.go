package storage

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// presignTTL is how long issued part-upload URLs stay valid.
const presignTTL = 1 * time.Hour

// MinioStore talks to an S3-compatible object store through minio-go.
// The low-level Core client drives the multipart lifecycle.
type MinioStore struct {
	core   *minio.Core
	bucket string
}

// NewMinioStore connects to the object store and ensures the bucket exists.
func NewMinioStore(ctx context.Context, endpoint, accessKey, secretKey, bucket string, useSSL bool) (*MinioStore, error) {
	core, err := minio.NewCore(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object store client: %w", err)
	}

	exists, err := core.Client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %s: %w", bucket, err)
	}
	if !exists {
		if err := core.Client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %s: %w", bucket, err)
		}
	}

	return &MinioStore{core: core, bucket: bucket}, nil
}

// InitMultipartUpload starts a multipart upload and returns one presigned
// PUT URL per 10 MiB part, all issued upfront.
func (s *MinioStore) InitMultipartUpload(ctx context.Context, fileName string, fileSize int64, contentType string) (*MultipartInit, error) {
	if err := validateSize(fileSize); err != nil {
		return nil, err
	}

	key := NewObjectKey(fileName, time.Now())
	uploadID, err := s.core.NewMultipartUpload(ctx, s.bucket, key, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initiate multipart upload: %w", err)
	}

	count := PartCount(fileSize)
	partURLs := make([]string, 0, count)
	for n := 1; n <= count; n++ {
		u, err := s.core.Client.Presign(ctx, http.MethodPut, s.bucket, key, presignTTL, url.Values{
			"uploadId":   []string{uploadID},
			"partNumber": []string{strconv.Itoa(n)},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to presign part %d: %w", n, err)
		}
		partURLs = append(partURLs, u.String())
	}

	return &MultipartInit{
		UploadID: uploadID,
		Key:      key,
		PartURLs: partURLs,
		PartSize: PartSize,
	}, nil
}

// CompleteMultipartUpload finalizes the object from its uploaded parts.
// The store rejects the request if a part is missing or an ETag mismatches.
func (s *MinioStore) CompleteMultipartUpload(ctx context.Context, key, uploadID string, parts []Part) error {
	completeParts := make([]minio.CompletePart, 0, len(parts))
	for _, p := range parts {
		completeParts = append(completeParts, minio.CompletePart{
			PartNumber: p.PartNumber,
			ETag:       p.ETag,
		})
	}
	// The store requires parts in ascending order.
	sort.Slice(completeParts, func(i, j int) bool {
		return completeParts[i].PartNumber < completeParts[j].PartNumber
	})

	_, err := s.core.CompleteMultipartUpload(ctx, s.bucket, key, uploadID, completeParts, minio.PutObjectOptions{})
	if err != nil {
		return fmt.Errorf("failed to complete multipart upload: %w", err)
	}
	return nil
}

// AbortMultipartUpload discards a pending upload's parts.
func (s *MinioStore) AbortMultipartUpload(ctx context.Context, key, uploadID string) error {
	if err := s.core.AbortMultipartUpload(ctx, s.bucket, key, uploadID); err != nil {
		return fmt.Errorf("failed to abort multipart upload: %w", err)
	}
	return nil
}

// PresignDownload issues a time-limited GET URL for a stored object.
func (s *MinioStore) PresignDownload(ctx context.Context, key string, ttl time.Duration) (string, error) {
	u, err := s.core.Client.PresignedGetObject(ctx, s.bucket, key, ttl, url.Values{})
	if err != nil {
		return "", fmt.Errorf("failed to presign download: %w", err)
	}
	return u.String(), nil
}

// Delete removes a stored object.
func (s *MinioStore) Delete(ctx context.Context, key string) error {
	if err := s.core.Client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete object %s: %w", key, err)
	}
	return nil
}
