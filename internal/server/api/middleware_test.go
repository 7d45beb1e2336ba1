package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"courier/internal/server/auth"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func newTestLimiter(max int, window time.Duration, now *time.Time) *MemoryLimiter {
	return &MemoryLimiter{
		entries: make(map[string]*windowEntry),
		cfg:     LimiterConfig{MaxRequests: max, Window: window},
		now:     func() time.Time { return *now },
	}
}

func TestMemoryLimiterAllow(t *testing.T) {
	ctx := context.Background()

	t.Run("admits up to the limit then rejects", func(t *testing.T) {
		now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
		rl := newTestLimiter(3, time.Minute, &now)

		for i := 0; i < 3; i++ {
			if !rl.Allow(ctx, "1.2.3.4") {
				t.Fatalf("request %d should be admitted", i+1)
			}
		}
		if rl.Allow(ctx, "1.2.3.4") {
			t.Error("4th request in window should be rejected")
		}
	})

	t.Run("counters are per identifier", func(t *testing.T) {
		now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
		rl := newTestLimiter(1, time.Minute, &now)

		if !rl.Allow(ctx, "1.2.3.4") {
			t.Fatal("first client should be admitted")
		}
		if !rl.Allow(ctx, "5.6.7.8") {
			t.Error("second client has its own window")
		}
	})

	t.Run("window expiry resets the counter", func(t *testing.T) {
		now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
		rl := newTestLimiter(1, time.Minute, &now)

		rl.Allow(ctx, "1.2.3.4")
		if rl.Allow(ctx, "1.2.3.4") {
			t.Fatal("second request in window should be rejected")
		}

		now = now.Add(61 * time.Second)
		if !rl.Allow(ctx, "1.2.3.4") {
			t.Error("request after window expiry should start a fresh window")
		}
	})

	t.Run("rejected requests do not extend the window", func(t *testing.T) {
		now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
		rl := newTestLimiter(1, time.Minute, &now)

		rl.Allow(ctx, "1.2.3.4")
		for i := 0; i < 10; i++ {
			rl.Allow(ctx, "1.2.3.4")
		}

		e := rl.entries["1.2.3.4"]
		if e.count != 1 {
			t.Errorf("count should stay at the limit, got %d", e.count)
		}
	})

	t.Run("sweep drops expired entries", func(t *testing.T) {
		now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
		rl := newTestLimiter(5, time.Minute, &now)

		rl.Allow(ctx, "old-client")
		now = now.Add(2 * time.Minute)
		rl.Allow(ctx, "new-client")

		rl.sweep()

		if _, ok := rl.entries["old-client"]; ok {
			t.Error("expired entry should be swept")
		}
		if _, ok := rl.entries["new-client"]; !ok {
			t.Error("live entry should survive the sweep")
		}
	})
}

func TestRateLimitMiddleware(t *testing.T) {
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	rl := newTestLimiter(1, time.Minute, &now)

	e := echo.New()
	handler := RateLimit(rl)(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	do := func() int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Real-Ip", "1.2.3.4")
		rec := httptest.NewRecorder()
		if err := handler(e.NewContext(req, rec)); err != nil {
			t.Fatalf("handler error: %v", err)
		}
		return rec.Code
	}

	if code := do(); code != http.StatusOK {
		t.Fatalf("first request: expected 200, got %d", code)
	}
	if code := do(); code != http.StatusTooManyRequests {
		t.Errorf("second request: expected 429, got %d", code)
	}
}

func TestAuthRequired(t *testing.T) {
	tokens := auth.NewService("test-secret", time.Hour)
	e := echo.New()

	handler := AuthRequired(tokens)(func(c echo.Context) error {
		id, ok := currentUserID(c)
		if !ok {
			t.Error("user ID should be set on the context")
		}
		return c.String(http.StatusOK, id.String())
	})

	do := func(authorization string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if authorization != "" {
			req.Header.Set("Authorization", authorization)
		}
		rec := httptest.NewRecorder()
		if err := handler(e.NewContext(req, rec)); err != nil {
			t.Fatalf("handler error: %v", err)
		}
		return rec
	}

	t.Run("valid token passes and exposes the user", func(t *testing.T) {
		userID := uuid.New()
		token, err := tokens.GenerateToken(userID, "PRO")
		if err != nil {
			t.Fatalf("GenerateToken: %v", err)
		}

		rec := do("Bearer " + token)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if rec.Body.String() != userID.String() {
			t.Errorf("expected user %s on context, got %s", userID, rec.Body.String())
		}
	})

	t.Run("missing header is rejected", func(t *testing.T) {
		if rec := do(""); rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("malformed token is rejected", func(t *testing.T) {
		if rec := do("Bearer not-a-token"); rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("token signed with another secret is rejected", func(t *testing.T) {
		other := auth.NewService("other-secret", time.Hour)
		token, err := other.GenerateToken(uuid.New(), "FREE")
		if err != nil {
			t.Fatalf("GenerateToken: %v", err)
		}
		if rec := do("Bearer " + token); rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
	})
}
