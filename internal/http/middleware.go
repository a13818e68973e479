// Package http provides the HTTP server, middleware, and request handlers
// for the vault API.
package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/allisson/go-pwdhash"
	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	apperrors "github.com/allisson/vaultd/internal/errors"
	"github.com/allisson/vaultd/internal/httputil"
	"github.com/allisson/vaultd/internal/policy"
)

// ClientIDHeader carries the caller's client identity.
const ClientIDHeader = "X-Client-Id"

// ClientTokenHeader carries the optional bearer token for clients whose
// policy entry has a token hash.
const ClientTokenHeader = "X-Client-Token"

// clientKey is a context key type for storing the authenticated client id.
type clientKey struct{}

// WithClient stores the authenticated client id in the context.
func WithClient(ctx context.Context, client string) context.Context {
	return context.WithValue(ctx, clientKey{}, client)
}

// GetClient retrieves the authenticated client id from the context.
func GetClient(ctx context.Context) (string, bool) {
	client, ok := ctx.Value(clientKey{}).(string)
	return client, ok
}

// RequestIDMiddleware attaches a UUIDv7 request id to every request and response.
func RequestIDMiddleware() gin.HandlerFunc {
	return requestid.New(requestid.WithGenerator(func() string {
		return uuid.Must(uuid.NewV7()).String()
	}))
}

// CustomLoggerMiddleware logs HTTP requests with the request id for audit correlation.
func CustomLoggerMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		logger.Info("http request",
			slog.String("request_id", requestid.Get(c)),
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("duration", time.Since(start)),
			slog.String("remote_addr", c.ClientIP()),
		)
	}
}

// ClientAuthMiddleware establishes the caller's client identity.
//
// The client id comes from the X-Client-Id header; a missing header is a
// terminal authorization failure. When the client's policy entry carries a
// token hash, the X-Client-Token header must verify against it (Argon2id);
// a mismatch is an authentication failure scored by the intrusion detector
// via the onAuthFailure callback.
func ClientAuthMiddleware(
	pol *policy.Policy,
	hasher *pwdhash.PasswordHasher,
	onAuthFailure func(client string),
	logger *slog.Logger,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		client := c.GetHeader(ClientIDHeader)
		if client == "" {
			logger.Debug("authentication failed: missing client header")
			httputil.HandleErrorGin(
				c,
				apperrors.Wrap(apperrors.ErrForbidden, "client header required"),
				logger,
			)
			c.Abort()
			return
		}

		if rule, ok := pol.Rule(client); ok && rule.TokenHash != "" {
			token := c.GetHeader(ClientTokenHeader)
			verified, err := hasher.Verify([]byte(token), rule.TokenHash)
			if err != nil || !verified {
				logger.Debug("authentication failed: token mismatch",
					slog.String("client_id", client))
				if onAuthFailure != nil {
					onAuthFailure(client)
				}
				httputil.HandleErrorGin(c, apperrors.ErrUnauthorized, logger)
				c.Abort()
				return
			}
		}

		ctx := WithClient(c.Request.Context(), client)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// rateLimiterStore holds per-client rate limiters.
type rateLimiterStore struct {
	limiters sync.Map // map[string]*rateLimiterEntry
	rps      float64
	burst    int
}

// rateLimiterEntry holds a rate limiter and last access time for cleanup.
type rateLimiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
	mu         sync.Mutex
}

// RateLimitMiddleware enforces per-client rate limiting on authenticated
// requests using a token bucket per client id. MUST run after
// ClientAuthMiddleware.
func RateLimitMiddleware(rps float64, burst int, logger *slog.Logger) gin.HandlerFunc {
	store := &rateLimiterStore{
		rps:   rps,
		burst: burst,
	}

	// Cleanup goroutine for stale limiters (every 5 minutes)
	go store.cleanupStale(context.Background(), 5*time.Minute)

	return func(c *gin.Context) {
		client, ok := GetClient(c.Request.Context())
		if !ok || client == "" {
			logger.Error("rate limit middleware: no authenticated client in context")
			httputil.HandleErrorGin(c, apperrors.ErrUnauthorized, logger)
			c.Abort()
			return
		}

		limiter := store.getLimiter(client)

		if !limiter.Allow() {
			reservation := limiter.Reserve()
			retryAfter := int(reservation.Delay().Seconds())
			reservation.Cancel()

			logger.Debug("rate limit exceeded",
				slog.String("client_id", client),
				slog.Int("retry_after", retryAfter))

			c.Header("Retry-After", fmt.Sprintf("%d", retryAfter))
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":   "rate_limit_exceeded",
				"message": "Too many requests. Please retry after the specified delay.",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// getLimiter returns the client's rate limiter, creating one if needed.
func (s *rateLimiterStore) getLimiter(client string) *rate.Limiter {
	now := time.Now()

	if value, ok := s.limiters.Load(client); ok {
		entry := value.(*rateLimiterEntry)
		entry.mu.Lock()
		entry.lastAccess = now
		entry.mu.Unlock()
		return entry.limiter
	}

	entry := &rateLimiterEntry{
		limiter:    rate.NewLimiter(rate.Limit(s.rps), s.burst),
		lastAccess: now,
	}
	actual, _ := s.limiters.LoadOrStore(client, entry)
	return actual.(*rateLimiterEntry).limiter
}

// cleanupStale evicts limiters idle for more than twice the sweep interval.
func (s *rateLimiterStore) cleanupStale(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-2 * interval)
			s.limiters.Range(func(key, value any) bool {
				entry := value.(*rateLimiterEntry)
				entry.mu.Lock()
				stale := entry.lastAccess.Before(cutoff)
				entry.mu.Unlock()
				if stale {
					s.limiters.Delete(key)
				}
				return true
			})
		}
	}
}
