// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"crypto/subtle"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/jeranaias/readerai/internal/logging"
)

// ============================================================================
// Auth Middleware
// ============================================================================

// AuthConfig contains authentication configuration options.
type AuthConfig struct {
	// BearerToken is the expected token. Empty disables authentication.
	BearerToken string

	// Public lists paths served without a token.
	Public []string
}

func (c *AuthConfig) enabled() bool {
	return c != nil && c.BearerToken != ""
}

func (c *AuthConfig) isPublic(path string) bool {
	for _, p := range c.Public {
		if p == path {
			return true
		}
	}
	return false
}

// AuthMiddleware rejects requests without the configured bearer token with
// 401. Preflight requests pass so CORS can answer them.
func AuthMiddleware(config *AuthConfig, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !config.enabled() || r.Method == http.MethodOptions || config.isPublic(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			reason := ""
			authHeader := r.Header.Get("Authorization")
			switch {
			case authHeader == "":
				reason = "missing_auth_header"
			case !strings.HasPrefix(authHeader, "Bearer "):
				reason = "invalid_auth_format"
			case !ValidateBearerToken(strings.TrimPrefix(authHeader, "Bearer "), config.BearerToken):
				reason = "invalid_token"
			}
			if reason != "" {
				logging.FromContext(r.Context(), logger).Warn("auth denied",
					"ip", GetClientIP(r), "reason", reason)
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ValidateBearerToken compares tokens in constant time. Empty tokens never
// match.
func ValidateBearerToken(token, expected string) bool {
	if token == "" || expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(expected)) == 1
}

// ============================================================================
// CORS Middleware
// ============================================================================

// CORSConfig contains CORS configuration.
type CORSConfig struct {
	// AllowedOrigins lists exact origins, "*" or "*.example.com" patterns.
	AllowedOrigins []string

	AllowedMethods []string
	AllowedHeaders []string

	// MaxAge is the preflight cache lifetime in seconds.
	MaxAge int
}

// DefaultCORSConfig allows the given origins with the methods the bridge
// uses.
func DefaultCORSConfig(origins []string) *CORSConfig {
	return &CORSConfig{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-Request-Id"},
		MaxAge:         86400,
	}
}

// allowedOrigin returns the value for Access-Control-Allow-Origin, or "" if
// origin is not allowed.
func (c *CORSConfig) allowedOrigin(origin string) string {
	if origin == "" {
		return ""
	}
	for _, allowed := range c.AllowedOrigins {
		switch {
		case allowed == "*":
			return "*"
		case allowed == origin:
			return origin
		case strings.HasPrefix(allowed, "*."):
			if strings.HasSuffix(origin, strings.TrimPrefix(allowed, "*")) {
				return origin
			}
		}
	}
	return ""
}

// CORSMiddleware sets Access-Control-* headers for allowed origins and
// answers preflight requests.
func CORSMiddleware(config *CORSConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if allow := config.allowedOrigin(r.Header.Get("Origin")); allow != "" {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", allow)
				h.Set("Access-Control-Allow-Methods", strings.Join(config.AllowedMethods, ", "))
				h.Set("Access-Control-Allow-Headers", strings.Join(config.AllowedHeaders, ", "))
				h.Set("Access-Control-Max-Age", strconv.Itoa(config.MaxAge))
				if allow != "*" {
					h.Set("Access-Control-Allow-Credentials", "true")
					h.Add("Vary", "Origin")
				}
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ============================================================================
// Rate Limiter
// ============================================================================

// limiterIdleTTL is how long an unused client limiter is kept.
const limiterIdleTTL = 10 * time.Minute

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per client IP.
type RateLimiter struct {
	limit rate.Limit
	burst int
	now   func() time.Time

	mu        sync.Mutex
	clients   map[string]*clientLimiter
	lastSweep time.Time
}

// NewRateLimiter allows perSecond requests per client with the given burst.
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		now:     time.Now,
		clients: make(map[string]*clientLimiter),
	}
}

// getLimiter returns the limiter for ip, creating one if needed. Idle
// limiters are swept at most once per TTL.
func (rl *RateLimiter) getLimiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.lastSweep) > limiterIdleTTL {
		for key, c := range rl.clients {
			if now.Sub(c.lastSeen) > limiterIdleTTL {
				delete(rl.clients, key)
			}
		}
		rl.lastSweep = now
	}

	c, ok := rl.clients[ip]
	if !ok {
		c = &clientLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[ip] = c
	}
	c.lastSeen = now
	return c.limiter
}

// Allow reports whether a request from ip may proceed now.
func (rl *RateLimiter) Allow(ip string) bool {
	return rl.getLimiter(ip).AllowN(rl.now(), 1)
}

// Clients returns the number of tracked clients.
func (rl *RateLimiter) Clients() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

// RateLimitMiddleware answers 429 once a client exceeds its bucket.
func RateLimitMiddleware(limiter *RateLimiter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientIP := GetClientIP(r)
			w.Header().Set("X-RateLimit-Limit", strconv.FormatFloat(float64(limiter.limit), 'g', -1, 64))

			if !limiter.Allow(clientIP) {
				retry := 1
				if limiter.limit > 0 {
					retry = max(1, int(1/float64(limiter.limit)+0.5))
				}
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				logging.FromContext(r.Context(), logger).Warn("rate limit exceeded", "ip", clientIP)
				writeError(w, http.StatusTooManyRequests, "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ============================================================================
// Request Logging Middleware
// ============================================================================

// statusWriter captures the status code. It passes Flush through so SSE
// handlers work behind it.
type statusWriter struct {
	http.ResponseWriter
	statusCode int
	written    int64
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.statusCode = code
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	n, err := sw.ResponseWriter.Write(b)
	sw.written += int64(n)
	return n, err
}

func (sw *statusWriter) Flush() {
	if f, ok := sw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sw *statusWriter) Unwrap() http.ResponseWriter {
	return sw.ResponseWriter
}

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-Id"

// LoggingMiddleware assigns every request an ID (reusing a valid incoming
// X-Request-Id), stores it in the context and logs the outcome.
func LoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			id := r.Header.Get(RequestIDHeader)
			if _, err := uuid.Parse(id); err != nil {
				id = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, id)
			r = r.WithContext(logging.WithRequestID(r.Context(), id))

			wrapped := &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			level := slog.LevelInfo
			if wrapped.statusCode >= 500 {
				level = slog.LevelError
			}
			logging.FromContext(r.Context(), logger).Log(r.Context(), level, "request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", wrapped.statusCode,
				"bytes", wrapped.written,
				"duration", time.Since(start),
			)
		})
	}
}

// ============================================================================
// Security Headers Middleware
// ============================================================================

// SecurityHeadersMiddleware sets headers that stop sniffing, framing and
// caching of responses.
func SecurityHeadersMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Cache-Control", "no-store")
			h.Set("Referrer-Policy", "no-referrer")
			next.ServeHTTP(w, r)
		})
	}
}

// ============================================================================
// Recovery Middleware
// ============================================================================

// RecoveryMiddleware turns a handler panic into a 500 and logs the stack.
func RecoveryMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler {
						panic(err)
					}
					logging.FromContext(r.Context(), logger).Error("panic recovered",
						"method", r.Method,
						"path", r.URL.Path,
						"error", err,
						"stack", string(debug.Stack()),
					)
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// ============================================================================
// Middleware Chain Helper
// ============================================================================

// Chain composes middlewares; the first one listed runs first.
func Chain(middlewares ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}

// ============================================================================
// IP Extraction Helper
// ============================================================================

// trustedProxies may set X-Forwarded-For and X-Real-IP.
var trustedProxies = []string{
	"127.0.0.1/32",
	"::1/128",
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"fc00::/7",
}

var (
	parsedTrustedProxies []*net.IPNet
	trustedProxiesOnce   sync.Once
)

func isTrustedProxy(ipStr string) bool {
	trustedProxiesOnce.Do(func() {
		for _, cidr := range trustedProxies {
			if _, ipNet, err := net.ParseCIDR(cidr); err == nil {
				parsedTrustedProxies = append(parsedTrustedProxies, ipNet)
			}
		}
	})

	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	for _, cidr := range parsedTrustedProxies {
		if cidr.Contains(ip) {
			return true
		}
	}
	return false
}

// GetClientIP returns the client address. Forwarding headers are honoured
// only when the connection comes from a trusted proxy, and only when they
// hold a valid IP.
func GetClientIP(r *http.Request) string {
	connIP, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		connIP = r.RemoteAddr
	}
	if !isTrustedProxy(connIP) {
		return connIP
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); net.ParseIP(ip) != nil {
			return ip
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(xri) != nil {
		return xri
	}
	return connIP
}
