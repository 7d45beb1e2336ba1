package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"courier/internal/server/database"
	"courier/internal/server/plan"

	"github.com/google/uuid"
)

func TestNotify(t *testing.T) {
	ctx := context.Background()

	t.Run("notifies all recipients and records rows", func(t *testing.T) {
		env := newTestEnv()
		owner := env.addUser(t, plan.Pro)
		transfer, err := env.svc.CreateTransfer(ctx, owner.ID, testFiles(100), nil, "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		result, err := env.svc.Notify(ctx, transfer.ID, owner.ID, []string{"a@example.com", "b@example.com"}, "enjoy")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Sent != 2 || result.Total != 2 {
			t.Errorf("expected 2/2 sent, got %d/%d", result.Sent, result.Total)
		}
		if len(env.repo.recipients) != 2 {
			t.Errorf("expected 2 recipient rows, got %d", len(env.repo.recipients))
		}
		for _, rec := range env.repo.recipients {
			if rec.SentAt.IsZero() {
				t.Error("sent_at must be stamped")
			}
		}
	})

	t.Run("one failure does not prevent the others", func(t *testing.T) {
		env := newTestEnv()
		owner := env.addUser(t, plan.Pro)
		transfer, err := env.svc.CreateTransfer(ctx, owner.ID, testFiles(100), nil, "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		env.mailer.failTo["bad@example.com"] = true

		result, err := env.svc.Notify(ctx, transfer.ID, owner.ID,
			[]string{"ok1@example.com", "bad@example.com", "ok2@example.com"}, "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Sent != 2 || result.Total != 3 {
			t.Errorf("expected 2/3 sent, got %d/%d", result.Sent, result.Total)
		}

		var failed *RecipientResult
		for i := range result.Results {
			if result.Results[i].Email == "bad@example.com" {
				failed = &result.Results[i]
			}
		}
		if failed == nil || failed.Sent || failed.Error == "" {
			t.Errorf("expected a per-item failure outcome, got %+v", failed)
		}
	})

	t.Run("invalid address is reported per item", func(t *testing.T) {
		env := newTestEnv()
		owner := env.addUser(t, plan.Pro)
		transfer, err := env.svc.CreateTransfer(ctx, owner.ID, testFiles(100), nil, "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		result, err := env.svc.Notify(ctx, transfer.ID, owner.ID, []string{"not-an-email"}, "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Sent != 0 {
			t.Errorf("expected 0 sent, got %d", result.Sent)
		}
		if len(env.repo.recipients) != 0 {
			t.Error("no recipient row for an invalid address")
		}
	})

	t.Run("non-owner may not notify", func(t *testing.T) {
		env := newTestEnv()
		owner := env.addUser(t, plan.Pro)
		stranger := env.addUser(t, plan.Pro)
		transfer, err := env.svc.CreateTransfer(ctx, owner.ID, testFiles(100), nil, "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if _, err := env.svc.Notify(ctx, transfer.ID, stranger.ID, []string{"a@example.com"}, ""); !errors.Is(err, ErrForbidden) {
			t.Errorf("expected ErrForbidden, got %v", err)
		}
	})

	t.Run("empty recipient list is rejected", func(t *testing.T) {
		env := newTestEnv()
		owner := env.addUser(t, plan.Pro)
		transfer, err := env.svc.CreateTransfer(ctx, owner.ID, testFiles(100), nil, "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := env.svc.Notify(ctx, transfer.ID, owner.ID, nil, ""); !errors.Is(err, ErrNoRecipients) {
			t.Errorf("expected ErrNoRecipients, got %v", err)
		}
	})

	t.Run("oversized recipient list is rejected", func(t *testing.T) {
		env := newTestEnv()
		owner := env.addUser(t, plan.Pro)
		transfer, err := env.svc.CreateTransfer(ctx, owner.ID, testFiles(100), nil, "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		emails := make([]string, maxRecipientsPerNotify+1)
		for i := range emails {
			emails[i] = "r@example.com"
		}
		if _, err := env.svc.Notify(ctx, transfer.ID, owner.ID, emails, ""); !errors.Is(err, ErrTooManyRecipients) {
			t.Errorf("expected ErrTooManyRecipients, got %v", err)
		}
	})
}

func TestBuildShareMail(t *testing.T) {
	env := newTestEnv()
	owner := env.addUser(t, plan.Pro)
	transfer, err := env.svc.CreateTransfer(context.Background(), owner.ID, testFiles(100), nil, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored := env.repo.transfers[transfer.ID]

	t.Run("contains share link and tracking urls", func(t *testing.T) {
		recRow := &database.Recipient{ID: uuid.New(), TransferID: stored.ID, Email: "r@example.com", SentAt: env.clock.Now()}
		body := env.svc.buildShareMail(stored, recRow, "hello <script>")

		if !strings.Contains(body, "http://test.local/s/"+stored.Slug) {
			t.Error("share link missing")
		}
		if !strings.Contains(body, "/api/email/track/open/"+recRow.ID.String()) {
			t.Error("open pixel missing")
		}
		if !strings.Contains(body, "/api/email/track/click/"+recRow.ID.String()) {
			t.Error("click URL missing")
		}
		if strings.Contains(body, "<script>") {
			t.Error("message must be HTML-escaped")
		}
	})
}
