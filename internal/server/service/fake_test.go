package service

import (
	"context"
	"sync"
	"time"

	"courier/internal/server/database"

	"github.com/google/uuid"
)

// fakeRepo is an in-memory Repository for service tests. Expiry comparisons
// use the injected clock so tests can travel in time.
type fakeRepo struct {
	mu         sync.Mutex
	now        func() time.Time
	users      map[uuid.UUID]*database.User
	transfers  map[uuid.UUID]*database.Transfer
	files      map[uuid.UUID][]*database.FileObject
	recipients map[uuid.UUID]*database.Recipient
	events     []fakeEvent

	failCreateRecipient map[string]bool
}

type fakeEvent struct {
	transferID uuid.UUID
	eventType  string
	metadata   map[string]string
}

func newFakeRepo(now func() time.Time) *fakeRepo {
	return &fakeRepo{
		now:                 now,
		users:               make(map[uuid.UUID]*database.User),
		transfers:           make(map[uuid.UUID]*database.Transfer),
		files:               make(map[uuid.UUID][]*database.FileObject),
		recipients:          make(map[uuid.UUID]*database.Recipient),
		failCreateRecipient: make(map[string]bool),
	}
}

func (r *fakeRepo) CreateUser(_ context.Context, user *database.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == user.Email {
			return database.ErrDuplicateEmail
		}
	}
	r.users[user.ID] = user
	return nil
}

func (r *fakeRepo) GetUserByID(_ context.Context, id uuid.UUID) (*database.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return u, nil
}

func (r *fakeRepo) GetUserByEmail(_ context.Context, email string) (*database.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, database.ErrNotFound
}

func (r *fakeRepo) CreateTransferWithFiles(_ context.Context, transfer *database.Transfer, files []*database.FileObject) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transfers[transfer.ID] = transfer
	r.files[transfer.ID] = files
	return nil
}

func (r *fakeRepo) GetTransferByID(_ context.Context, id uuid.UUID) (*database.Transfer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.transfers[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return t, nil
}

func (r *fakeRepo) GetActiveTransferBySlug(_ context.Context, slug string) (*database.Transfer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.transfers {
		if t.Slug == slug && t.Status == database.StatusActive && t.ExpiresAt.After(r.now()) {
			return t, nil
		}
	}
	return nil, database.ErrNotFound
}

func (r *fakeRepo) ListTransfersByOwner(_ context.Context, ownerID uuid.UUID) ([]*database.Transfer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*database.Transfer
	for _, t := range r.transfers {
		if t.OwnerID == ownerID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *fakeRepo) CountTransfersCreatedSince(_ context.Context, ownerID uuid.UUID, since time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, t := range r.transfers {
		if t.OwnerID == ownerID && !t.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (r *fakeRepo) DeleteTransfer(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.transfers[id]; !ok {
		return database.ErrNotFound
	}
	delete(r.transfers, id)
	delete(r.files, id)
	for rid, rec := range r.recipients {
		if rec.TransferID == id {
			delete(r.recipients, rid)
		}
	}
	return nil
}

func (r *fakeRepo) GetExpiredTransfers(_ context.Context) ([]*database.Transfer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*database.Transfer
	for _, t := range r.transfers {
		if t.ExpiresAt.Before(r.now()) || t.Status == database.StatusExpired {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *fakeRepo) ListFiles(_ context.Context, transferID uuid.UUID) ([]*database.FileObject, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.files[transferID], nil
}

func (r *fakeRepo) GetFile(_ context.Context, transferID, fileID uuid.UUID) (*database.FileObject, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range r.files[transferID] {
		if f.ID == fileID {
			return f, nil
		}
	}
	return nil, database.ErrNotFound
}

func (r *fakeRepo) CreateRecipient(_ context.Context, rec *database.Recipient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failCreateRecipient[rec.Email] {
		return database.ErrNotFound
	}
	r.recipients[rec.ID] = rec
	return nil
}

func (r *fakeRepo) MarkRecipientOpened(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.recipients[id]
	if !ok {
		return nil
	}
	if rec.OpenedAt == nil {
		now := r.now()
		rec.OpenedAt = &now
	}
	return nil
}

func (r *fakeRepo) MarkRecipientDownloaded(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.recipients[id]
	if !ok {
		return nil
	}
	if rec.DownloadedAt == nil {
		now := r.now()
		rec.DownloadedAt = &now
	}
	return nil
}

func (r *fakeRepo) AppendEvent(_ context.Context, transferID uuid.UUID, eventType string, metadata map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, fakeEvent{transferID: transferID, eventType: eventType, metadata: metadata})
	return nil
}

func (r *fakeRepo) GetStats(_ context.Context) (*database.Stats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := &database.Stats{TotalDownloads: int64(len(r.events))}
	for _, t := range r.transfers {
		stats.TotalTransfers++
		if t.Status == database.StatusActive && t.ExpiresAt.After(r.now()) {
			stats.ActiveTransfers++
			stats.ActiveBytes += t.TotalBytes
		}
	}
	return stats, nil
}

func (r *fakeRepo) eventCount(transferID uuid.UUID, eventType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, e := range r.events {
		if e.transferID == transferID && e.eventType == eventType {
			count++
		}
	}
	return count
}

// fakeMailer records sends and fails for configured addresses.
type fakeMailer struct {
	mu     sync.Mutex
	sent   []string
	failTo map[string]bool
}

func newFakeMailer() *fakeMailer {
	return &fakeMailer{failTo: make(map[string]bool)}
}

func (m *fakeMailer) Send(_ context.Context, to, _, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failTo[to] {
		return context.DeadlineExceeded
	}
	m.sent = append(m.sent, to)
	return nil
}
