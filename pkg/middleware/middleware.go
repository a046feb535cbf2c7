package middleware

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/ksred/astrade-api/pkg/response"
)

const (
	userIDKey    = "userID"
	UserIDHeader = "X-User-ID"
)

// TokenValidator resolves a bearer token to the user it was issued for
type TokenValidator interface {
	UserIDFromToken(token string) (string, error)
}

// UserChecker reports whether a user exists
type UserChecker interface {
	UserExists(ctx context.Context, userID string) (bool, error)
}

// Auth identifies the calling user. A bearer token always wins; the X-User-ID
// header is honoured only when allowHeader is set and names an existing user.
func Auth(tokens TokenValidator, users UserChecker, allowHeader bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if header := c.GetHeader("Authorization"); header != "" {
			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				response.Unauthorized(c, "Invalid authorization header format")
				c.Abort()
				return
			}
			userID, err := tokens.UserIDFromToken(parts[1])
			if err != nil {
				response.Unauthorized(c, "Invalid token")
				c.Abort()
				return
			}
			SetUserID(c, userID)
			c.Next()
			return
		}

		headerID := c.GetHeader(UserIDHeader)
		if headerID == "" || !allowHeader {
			response.Unauthorized(c, "Authorization required")
			c.Abort()
			return
		}
		if _, err := uuid.Parse(headerID); err != nil {
			response.Unauthorized(c, "Invalid user id")
			c.Abort()
			return
		}
		exists, err := users.UserExists(c.Request.Context(), headerID)
		if err != nil {
			log.Error().Err(err).Str("user_id", headerID).Msg("user lookup failed")
			response.InternalError(c, "failed to verify user")
			c.Abort()
			return
		}
		if !exists {
			response.Unauthorized(c, "Unknown user")
			c.Abort()
			return
		}

		SetUserID(c, headerID)
		c.Next()
	}
}

// UserID returns the authenticated user set by Auth
func UserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}

// SetUserID marks the request as authenticated for userID
func SetUserID(c *gin.Context, userID string) {
	c.Set(userIDKey, userID)
}

// RateRule limits requests whose path starts with Prefix
type RateRule struct {
	Prefix string
	Limit  rate.Limit
	Burst  int
}

// DefaultRateRules covers the write-heavy and token endpoints; anything else is unlimited
var DefaultRateRules = []RateRule{
	{Prefix: "/api/v1/auth", Limit: rate.Limit(10.0 / 60.0), Burst: 3},
	{Prefix: "/api/v1/orders", Limit: rate.Limit(100.0 / 60.0), Burst: 10},
	{Prefix: "/api/v1/rewards", Limit: rate.Limit(60.0 / 60.0), Burst: 5},
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per caller and route
type RateLimiter struct {
	rules    []RateRule
	mu       sync.Mutex
	visitors map[string]*visitor
	idleTTL  time.Duration
}

func NewRateLimiter(rules []RateRule) *RateLimiter {
	return &RateLimiter{
		rules:    rules,
		visitors: make(map[string]*visitor),
		idleTTL:  3 * time.Minute,
	}
}

// Run evicts idle visitors until ctx is done
func (l *RateLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.evict(time.Now())
		}
	}
}

func (l *RateLimiter) evict(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, v := range l.visitors {
		if now.Sub(v.lastSeen) > l.idleTTL {
			delete(l.visitors, key)
		}
	}
}

// rule returns the first rule whose prefix matches path
func (l *RateLimiter) rule(path string) (RateRule, bool) {
	for _, rule := range l.rules {
		if strings.HasPrefix(path, rule.Prefix) {
			return rule, true
		}
	}
	return RateRule{}, false
}

func (l *RateLimiter) limiter(rule RateRule, caller string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := caller + ":" + rule.Prefix
	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rule.Limit, rule.Burst)}
		l.visitors[key] = v
	}
	v.lastSeen = time.Now()
	return v.limiter
}

// Middleware rejects callers over their bucket with 429. It runs before
// authentication, so callers are identified by client IP only.
func (l *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		rule, ok := l.rule(path)
		if !ok {
			c.Next()
			return
		}

		if !l.limiter(rule, c.ClientIP()).Allow() {
			c.Header("Retry-After", "1")
			response.TooManyRequests(c, "Rate limit exceeded. Please try again later.")
			c.Abort()
			return
		}

		c.Next()
	}
}

// RequestLogger logs one line per request with zerolog
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		event := log.Info()
		switch {
		case status >= http.StatusInternalServerError:
			event = log.Error()
		case status >= http.StatusBadRequest:
			event = log.Warn()
		}
		if len(c.Errors) > 0 {
			event = event.Err(c.Errors.Last().Err)
		}

		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Int("bytes", c.Writer.Size()).
			Msg("request")
	}
}
