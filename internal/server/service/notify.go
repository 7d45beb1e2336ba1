package service

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"sync"
	"time"

	"courier/internal/server/database"

	"github.com/google/uuid"
)

var (
	ErrNoRecipients      = errors.New("at least one recipient is required")
	ErrTooManyRecipients = errors.New("too many recipients in one request")
)

// maxRecipientsPerNotify bounds a single fan-out.
const maxRecipientsPerNotify = 50

// RecipientResult is the per-recipient outcome of a notification fan-out,
// so callers can retry only the failed subset.
type RecipientResult struct {
	Email       string    `json:"email"`
	RecipientID uuid.UUID `json:"recipient_id,omitempty"`
	Sent        bool      `json:"sent"`
	Error       string    `json:"error,omitempty"`
}

// NotifyResult summarizes a notification fan-out.
type NotifyResult struct {
	Sent    int               `json:"sent"`
	Total   int               `json:"total"`
	Results []RecipientResult `json:"results"`
}

// Notify emails each recipient a share link with per-recipient tracking
// URLs. Sends fan out concurrently and settle independently: one failure
// never prevents the others from being attempted.
func (s *TransferService) Notify(ctx context.Context, transferID, requesterID uuid.UUID, emails []string, message string) (*NotifyResult, error) {
	if len(emails) == 0 {
		return nil, ErrNoRecipients
	}
	if len(emails) > maxRecipientsPerNotify {
		return nil, ErrTooManyRecipients
	}

	transfer, err := s.repo.GetTransferByID(ctx, transferID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if transfer.OwnerID != requesterID {
		return nil, ErrForbidden
	}

	results := make([]RecipientResult, len(emails))
	var wg sync.WaitGroup
	for i, email := range emails {
		wg.Add(1)
		go func(i int, email string) {
			defer wg.Done()
			results[i] = s.notifyOne(ctx, transfer, email, message)
		}(i, strings.TrimSpace(email))
	}
	wg.Wait()

	result := &NotifyResult{Total: len(emails), Results: results}
	for _, r := range results {
		if r.Sent {
			result.Sent++
		}
	}

	slog.Info("notification fan-out complete",
		"transfer_id", transferID,
		"sent", result.Sent,
		"total", result.Total,
	)
	return result, nil
}

func (s *TransferService) notifyOne(ctx context.Context, transfer *database.Transfer, email, message string) RecipientResult {
	out := RecipientResult{Email: email}
	if email == "" || !strings.Contains(email, "@") {
		out.Error = "invalid email address"
		return out
	}

	rec := &database.Recipient{
		ID:         uuid.New(),
		TransferID: transfer.ID,
		Email:      email,
		SentAt:     s.now().UTC(),
	}
	if err := s.repo.CreateRecipient(ctx, rec); err != nil {
		out.Error = fmt.Sprintf("record recipient: %v", err)
		return out
	}
	out.RecipientID = rec.ID

	body := s.buildShareMail(transfer, rec, message)
	if err := s.mailer.Send(ctx, email, "Files have been shared with you", body); err != nil {
		slog.Error("failed to send share mail", "recipient_id", rec.ID, "error", err)
		out.Error = fmt.Sprintf("send mail: %v", err)
		return out
	}

	out.Sent = true
	return out
}

// buildShareMail renders the notification body: share link, expiry, the
// sender's optional message, and the open-tracking pixel. The click link
// routes through the tracking endpoint before the share page.
func (s *TransferService) buildShareMail(transfer *database.Transfer, rec *database.Recipient, message string) string {
	shareURL := fmt.Sprintf("%s/s/%s", s.baseURL, transfer.Slug)
	clickURL := fmt.Sprintf("%s/api/email/track/click/%s", s.baseURL, rec.ID)
	pixelURL := fmt.Sprintf("%s/api/email/track/open/%s", s.baseURL, rec.ID)

	var b strings.Builder
	b.WriteString("<html><body>")
	b.WriteString("<p>Someone sent you files.</p>")
	if message != "" {
		fmt.Fprintf(&b, "<blockquote>%s</blockquote>", html.EscapeString(message))
	}
	fmt.Fprintf(&b, `<p><a href="%s" data-click="%s">Get your files</a></p>`, shareURL, clickURL)
	fmt.Fprintf(&b, "<p>This transfer expires on %s.</p>", transfer.ExpiresAt.UTC().Format(time.RFC1123))
	fmt.Fprintf(&b, `<img src="%s" width="1" height="1" alt="">`, pixelURL)
	b.WriteString("</body></html>")
	return b.String()
}
