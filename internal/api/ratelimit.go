package api

import (
	"log/slog"
	"net"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/promptvault/promptvault-server/internal/http/response"
	"github.com/promptvault/promptvault-server/internal/ratelimit"
)

const rateLimitMessage = "Too many requests. Please try again later."

// RateLimiter limits requests per client IP.
type RateLimiter = ratelimit.KeyedRateLimiter

// NewRateLimiter creates a limiter allowing rps requests per second per IP
// with the given burst.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return ratelimit.New(rps, burst)
}

// RateLimitMiddleware creates a middleware that rate limits requests by IP.
// Returns 429 Too Many Requests when limit is exceeded.
func RateLimitMiddleware(limiter *RateLimiter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientIP(r.RemoteAddr)

			if !limiter.Allow(key) {
				logger.Warn("Rate limit exceeded",
					"ip", key,
					"path", r.URL.Path,
				)
				response.TooManyRequests(w, rateLimitMessage, logger)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// rateLimitOperation is the huma flavour of RateLimitMiddleware, attached
// to individual operations.
func (s *Server) rateLimitOperation(ctx huma.Context, next func(huma.Context)) {
	key := clientIP(ctx.RemoteAddr())
	if !s.authRateLimiter.Allow(key) {
		s.logger.Warn("Rate limit exceeded",
			"ip", key,
			"path", ctx.URL().Path,
		)
		_ = huma.WriteErr(s.api, ctx, http.StatusTooManyRequests, rateLimitMessage)
		return
	}
	next(ctx)
}

// clientIP strips the port from a remote address. middleware.RealIP has
// already applied X-Forwarded-For and X-Real-IP.
func clientIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
