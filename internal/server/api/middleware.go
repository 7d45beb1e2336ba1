package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"courier/internal/server/auth"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

// userIDKey is the echo context key for the authenticated user.
const userIDKey = "auth_user_id"

// Limiter admits or rejects a request for a client identifier.
type Limiter interface {
	Allow(ctx context.Context, identifier string) bool
}

// LimiterConfig holds the fixed-window parameters.
type LimiterConfig struct {
	MaxRequests int
	Window      time.Duration
}

type windowEntry struct {
	count   int
	resetAt time.Time
}

// MemoryLimiter is a mutex-guarded fixed-window counter. Counts are held in
// process memory, so with multiple instances the guarantee is per-instance,
// not global.
type MemoryLimiter struct {
	mu      sync.Mutex
	entries map[string]*windowEntry
	cfg     LimiterConfig
	now     func() time.Time
}

// NewMemoryLimiter creates a limiter and starts a background sweep of
// expired windows to bound memory.
func NewMemoryLimiter(cfg LimiterConfig) *MemoryLimiter {
	rl := &MemoryLimiter{
		entries: make(map[string]*windowEntry),
		cfg:     cfg,
		now:     time.Now,
	}

	go func() {
		for {
			time.Sleep(5 * time.Minute)
			rl.sweep()
		}
	}()

	return rl
}

// Allow admits the request unless the identifier has exhausted the current
// window. At the maximum the count stops incrementing.
func (rl *MemoryLimiter) Allow(_ context.Context, identifier string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	e, ok := rl.entries[identifier]
	if !ok || now.After(e.resetAt) {
		rl.entries[identifier] = &windowEntry{count: 1, resetAt: now.Add(rl.cfg.Window)}
		return true
	}

	if e.count >= rl.cfg.MaxRequests {
		return false
	}
	e.count++
	return true
}

func (rl *MemoryLimiter) sweep() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for id, e := range rl.entries {
		if now.After(e.resetAt) {
			delete(rl.entries, id)
		}
	}
}

// RedisLimiter keeps the fixed-window counters in Redis, so the limit holds
// across instances. INCR creates the key at 1; the first hit in a window
// sets its expiry.
type RedisLimiter struct {
	client *redis.Client
	cfg    LimiterConfig
}

// NewRedisLimiter creates a Redis-backed limiter.
func NewRedisLimiter(client *redis.Client, cfg LimiterConfig) *RedisLimiter {
	return &RedisLimiter{client: client, cfg: cfg}
}

// Allow admits unless the window counter has passed the maximum. Redis
// failures fail open: an unreachable counter should not take uploads down.
func (rl *RedisLimiter) Allow(ctx context.Context, identifier string) bool {
	key := "ratelimit:" + identifier

	count, err := rl.client.Incr(ctx, key).Result()
	if err != nil {
		slog.Error("rate limit counter unavailable", "error", err)
		return true
	}
	if count == 1 {
		if err := rl.client.PExpire(ctx, key, rl.cfg.Window).Err(); err != nil {
			slog.Error("failed to set rate limit window", "error", err)
		}
	}
	return count <= int64(rl.cfg.MaxRequests)
}

// RateLimit returns an echo middleware that enforces the limiter per client
// IP, or per user when the request is authenticated.
func RateLimit(limiter Limiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			identifier := c.RealIP()
			if id, ok := c.Get(userIDKey).(uuid.UUID); ok {
				identifier = id.String()
			}
			if !limiter.Allow(c.Request().Context(), identifier) {
				slog.Warn("rate limit exceeded", "identifier", identifier)
				return c.JSON(http.StatusTooManyRequests, echo.Map{
					"error": "rate limit exceeded, try again later",
				})
			}
			return next(c)
		}
	}
}

// AuthRequired returns an echo middleware that verifies the Bearer token
// and stores the user ID on the context.
func AuthRequired(tokens *auth.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}

			claims, err := tokens.ParseToken(strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}
			userID, err := claims.ParsedUserID()
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}

			c.Set(userIDKey, userID)
			return next(c)
		}
	}
}

// currentUserID returns the authenticated user set by AuthRequired.
func currentUserID(c echo.Context) (uuid.UUID, bool) {
	id, ok := c.Get(userIDKey).(uuid.UUID)
	return id, ok
}

// RequestLogger returns an echo middleware that logs requests using slog.
func RequestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			req := c.Request()
			res := c.Response()

			slog.Info("request",
				"method", req.Method,
				"path", req.URL.Path,
				"status", res.Status,
				"latency_ms", time.Since(start).Milliseconds(),
				"ip", c.RealIP(),
				"user_agent", req.UserAgent(),
				"bytes_out", res.Size,
			)

			return err
		}
	}
}
