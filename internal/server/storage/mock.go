package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrUnknownUpload = errors.New("unknown upload id")
	ErrMissingPart   = errors.New("missing or empty part")
	ErrUnknownKey    = errors.New("unknown object key")
)

// MockStore is an in-memory ObjectStore for tests and local development.
// It tracks pending uploads and completed objects but never stores bytes.
type MockStore struct {
	mu       sync.Mutex
	pending  map[string]*pendingUpload // upload ID -> state
	objects  map[string]bool           // completed keys
	deleted  []string
	failKeys map[string]bool // keys whose Delete should fail, for tests
}

type pendingUpload struct {
	key       string
	partCount int
}

// NewMockStore creates an empty mock store.
func NewMockStore() *MockStore {
	return &MockStore{
		pending:  make(map[string]*pendingUpload),
		objects:  make(map[string]bool),
		failKeys: make(map[string]bool),
	}
}

func (s *MockStore) InitMultipartUpload(_ context.Context, fileName string, fileSize int64, _ string) (*MultipartInit, error) {
	if err := validateSize(fileSize); err != nil {
		return nil, err
	}

	key := NewObjectKey(fileName, time.Now())
	uploadID := uuid.NewString()
	count := PartCount(fileSize)

	partURLs := make([]string, 0, count)
	for n := 1; n <= count; n++ {
		partURLs = append(partURLs, fmt.Sprintf("mock://%s/%s/part/%d", uploadID, key, n))
	}

	s.mu.Lock()
	s.pending[uploadID] = &pendingUpload{key: key, partCount: count}
	s.mu.Unlock()

	return &MultipartInit{
		UploadID: uploadID,
		Key:      key,
		PartURLs: partURLs,
		PartSize: PartSize,
	}, nil
}

func (s *MockStore) CompleteMultipartUpload(_ context.Context, key, uploadID string, parts []Part) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	up, ok := s.pending[uploadID]
	if !ok || up.key != key {
		return ErrUnknownUpload
	}

	seen := make(map[int]bool, len(parts))
	for _, p := range parts {
		if p.ETag == "" {
			return fmt.Errorf("%w: part %d has no etag", ErrMissingPart, p.PartNumber)
		}
		seen[p.PartNumber] = true
	}
	for n := 1; n <= up.partCount; n++ {
		if !seen[n] {
			return fmt.Errorf("%w: part %d", ErrMissingPart, n)
		}
	}

	delete(s.pending, uploadID)
	s.objects[key] = true
	return nil
}

func (s *MockStore) AbortMultipartUpload(_ context.Context, key, uploadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	up, ok := s.pending[uploadID]
	if !ok || up.key != key {
		return ErrUnknownUpload
	}
	delete(s.pending, uploadID)
	return nil
}

func (s *MockStore) PresignDownload(_ context.Context, key string, ttl time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.objects[key] {
		return "", ErrUnknownKey
	}
	return fmt.Sprintf("mock://download/%s?ttl=%d", key, int(ttl.Seconds())), nil
}

func (s *MockStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failKeys[key] {
		return fmt.Errorf("simulated delete failure for %s", key)
	}
	delete(s.objects, key)
	s.deleted = append(s.deleted, key)
	return nil
}

// PutObject registers a completed object directly, bypassing multipart.
// Test helper.
func (s *MockStore) PutObject(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = true
}

// Exists reports whether a completed object is present. Test helper.
func (s *MockStore) Exists(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.objects[key]
}

// Deleted returns keys passed to Delete, in order. Test helper.
func (s *MockStore) Deleted() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.deleted...)
}

// FailDeleteFor makes Delete fail for the given key. Test helper.
func (s *MockStore) FailDeleteFor(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failKeys[key] = true
}
