package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var (
	ErrNotFound       = errors.New("row not found")
	ErrDuplicateEmail = errors.New("email already registered")
)

// Repository provides CRUD operations for users, transfers, files,
// recipients and transfer events.
type Repository struct {
	db *DB
}

// NewRepository creates a new Repository.
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// --- Users ---

// CreateUser inserts a new account row.
func (r *Repository) CreateUser(ctx context.Context, user *User) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO app_user (id, email, password_hash, plan, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, user.ID, user.Email, user.PasswordHash, user.Plan, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetUserByID retrieves an account by its ID.
func (r *Repository) GetUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	user := &User{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, email, password_hash, plan, created_at
		FROM app_user WHERE id = $1
	`, id).Scan(&user.ID, &user.Email, &user.PasswordHash, &user.Plan, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetUserByEmail retrieves an account by email address.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	user := &User{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, email, password_hash, plan, created_at
		FROM app_user WHERE email = $1
	`, email).Scan(&user.ID, &user.Email, &user.PasswordHash, &user.Plan, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return user, nil
}

// --- Transfers ---

const transferColumns = `id, slug, owner_id, status, expires_at, total_bytes, password_hash, created_at`

func scanTransfer(row pgx.Row) (*Transfer, error) {
	t := &Transfer{}
	err := row.Scan(
		&t.ID,
		&t.Slug,
		&t.OwnerID,
		&t.Status,
		&t.ExpiresAt,
		&t.TotalBytes,
		&t.PasswordHash,
		&t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// CreateTransferWithFiles inserts a transfer row and all of its file rows in
// a single transaction, so a crash mid-creation cannot leave a transfer with
// fewer file objects than intended.
func (r *Repository) CreateTransferWithFiles(ctx context.Context, transfer *Transfer, files []*FileObject) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO transfer (id, slug, owner_id, status, expires_at, total_bytes, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		transfer.ID,
		transfer.Slug,
		transfer.OwnerID,
		transfer.Status,
		transfer.ExpiresAt,
		transfer.TotalBytes,
		transfer.PasswordHash,
		transfer.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create transfer: %w", err)
	}

	for _, f := range files {
		_, err = tx.Exec(ctx, `
			INSERT INTO file_object (id, transfer_id, storage_key, display_name, size_bytes, content_type, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, f.ID, f.TransferID, f.StorageKey, f.DisplayName, f.SizeBytes, f.ContentType, f.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to create file object %s: %w", f.DisplayName, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transfer creation: %w", err)
	}
	return nil
}

// GetTransferByID retrieves a transfer regardless of status or expiry.
func (r *Repository) GetTransferByID(ctx context.Context, id uuid.UUID) (*Transfer, error) {
	t, err := scanTransfer(r.db.Pool.QueryRow(ctx,
		`SELECT `+transferColumns+` FROM transfer WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get transfer: %w", err)
	}
	return t, nil
}

// GetActiveTransferBySlug retrieves a transfer by slug, restricted to rows
// that are both ACTIVE and unexpired. The two conditions are independent:
// status can lag behind the timestamp until cleanup runs, so both are checked.
func (r *Repository) GetActiveTransferBySlug(ctx context.Context, slug string) (*Transfer, error) {
	t, err := scanTransfer(r.db.Pool.QueryRow(ctx, `
		SELECT `+transferColumns+` FROM transfer
		WHERE slug = $1 AND status = $2 AND expires_at > NOW()
	`, slug, StatusActive))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get transfer by slug: %w", err)
	}
	return t, nil
}

// ListTransfersByOwner returns an owner's transfers, newest first.
func (r *Repository) ListTransfersByOwner(ctx context.Context, ownerID uuid.UUID) ([]*Transfer, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+transferColumns+` FROM transfer
		WHERE owner_id = $1 ORDER BY created_at DESC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transfers: %w", err)
	}
	defer rows.Close()

	var transfers []*Transfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transfer: %w", err)
		}
		transfers = append(transfers, t)
	}
	return transfers, rows.Err()
}

// CountTransfersCreatedSince counts an owner's transfers created at or after
// the given instant. Used for calendar-month quota checks.
func (r *Repository) CountTransfersCreatedSince(ctx context.Context, ownerID uuid.UUID, since time.Time) (int, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM transfer WHERE owner_id = $1 AND created_at >= $2
	`, ownerID, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count transfers: %w", err)
	}
	return count, nil
}

// DeleteTransfer removes a transfer row. File objects, recipients and events
// go with it via cascading deletes.
func (r *Repository) DeleteTransfer(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Pool.Exec(ctx, "DELETE FROM transfer WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete transfer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetExpiredTransfers returns transfers past their expiry timestamp or
// already marked EXPIRED.
func (r *Repository) GetExpiredTransfers(ctx context.Context) ([]*Transfer, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+transferColumns+` FROM transfer
		WHERE expires_at < NOW() OR status = $1
	`, StatusExpired)
	if err != nil {
		return nil, fmt.Errorf("failed to query expired transfers: %w", err)
	}
	defer rows.Close()

	var transfers []*Transfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan expired transfer: %w", err)
		}
		transfers = append(transfers, t)
	}
	return transfers, rows.Err()
}

// --- File objects ---

// ListFiles returns a transfer's file objects in insertion order.
func (r *Repository) ListFiles(ctx context.Context, transferID uuid.UUID) ([]*FileObject, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, transfer_id, storage_key, display_name, size_bytes, content_type, created_at
		FROM file_object WHERE transfer_id = $1 ORDER BY created_at, id
	`, transferID)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	defer rows.Close()

	var files []*FileObject
	for rows.Next() {
		f := &FileObject{}
		if err := rows.Scan(&f.ID, &f.TransferID, &f.StorageKey, &f.DisplayName, &f.SizeBytes, &f.ContentType, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan file object: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// GetFile retrieves one file object scoped to its transfer.
func (r *Repository) GetFile(ctx context.Context, transferID, fileID uuid.UUID) (*FileObject, error) {
	f := &FileObject{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, transfer_id, storage_key, display_name, size_bytes, content_type, created_at
		FROM file_object WHERE transfer_id = $1 AND id = $2
	`, transferID, fileID).Scan(&f.ID, &f.TransferID, &f.StorageKey, &f.DisplayName, &f.SizeBytes, &f.ContentType, &f.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get file object: %w", err)
	}
	return f, nil
}

// --- Recipients ---

// CreateRecipient inserts a recipient row stamped with its sent time.
func (r *Repository) CreateRecipient(ctx context.Context, rec *Recipient) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO recipient (id, transfer_id, email, sent_at)
		VALUES ($1, $2, $3, $4)
	`, rec.ID, rec.TransferID, rec.Email, rec.SentAt)
	if err != nil {
		return fmt.Errorf("failed to create recipient: %w", err)
	}
	return nil
}

// MarkRecipientOpened stamps opened_at if it has not been set yet.
// Repeated opens keep the first timestamp.
func (r *Repository) MarkRecipientOpened(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Pool.Exec(ctx, `
		UPDATE recipient SET opened_at = NOW() WHERE id = $1 AND opened_at IS NULL
	`, id)
	if err != nil {
		return fmt.Errorf("failed to mark recipient opened: %w", err)
	}
	return nil
}

// MarkRecipientDownloaded stamps downloaded_at if it has not been set yet.
func (r *Repository) MarkRecipientDownloaded(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Pool.Exec(ctx, `
		UPDATE recipient SET downloaded_at = NOW() WHERE id = $1 AND downloaded_at IS NULL
	`, id)
	if err != nil {
		return fmt.Errorf("failed to mark recipient downloaded: %w", err)
	}
	return nil
}

// --- Events ---

// AppendEvent adds a row to the append-only transfer event log.
func (r *Repository) AppendEvent(ctx context.Context, transferID uuid.UUID, eventType string, metadata map[string]string) error {
	if metadata == nil {
		metadata = map[string]string{}
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to encode event metadata: %w", err)
	}
	_, err = r.db.Pool.Exec(ctx, `
		INSERT INTO transfer_event (transfer_id, event_type, metadata)
		VALUES ($1, $2, $3)
	`, transferID, eventType, raw)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// --- Stats ---

// GetStats returns aggregate server statistics.
func (r *Repository) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = $1 AND expires_at > NOW()),
			COALESCE(SUM(total_bytes) FILTER (WHERE status = $1 AND expires_at > NOW()), 0)
		FROM transfer
	`, StatusActive).Scan(
		&stats.TotalTransfers,
		&stats.ActiveTransfers,
		&stats.ActiveBytes,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get transfer stats: %w", err)
	}

	err = r.db.Pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM transfer_event WHERE event_type = $1
	`, EventDownload).Scan(&stats.TotalDownloads)
	if err != nil {
		return nil, fmt.Errorf("failed to get download stats: %w", err)
	}
	return stats, nil
}

// isUniqueViolation reports whether err is a Postgres unique constraint error.
func isUniqueViolation(err error) bool {
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == "23505"
	}
	return false
}
