package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

type fakeTokens map[string]string

func (f fakeTokens) UserIDFromToken(token string) (string, error) {
	if id, ok := f[token]; ok {
		return id, nil
	}
	return "", errors.New("bad token")
}

type fakeUsers map[string]bool

func (f fakeUsers) UserExists(_ context.Context, id string) (bool, error) {
	return f[id], nil
}

const knownUser = "4b0c8e6a-5d1f-4a9e-8f3b-2c7d9e1a6b30"

func newAuthRouter(allowHeader bool) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Auth(fakeTokens{"good": knownUser}, fakeUsers{knownUser: true}, allowHeader))
	router.GET("/me", func(c *gin.Context) {
		c.String(http.StatusOK, UserID(c))
	})
	return router
}

func TestAuth(t *testing.T) {
	tests := []struct {
		name        string
		allowHeader bool
		headers     map[string]string
		status      int
	}{
		{"bearer token", false, map[string]string{"Authorization": "Bearer good"}, http.StatusOK},
		{"bad token", true, map[string]string{"Authorization": "Bearer bad"}, http.StatusUnauthorized},
		{"malformed header", true, map[string]string{"Authorization": "good"}, http.StatusUnauthorized},
		{"header auth allowed", true, map[string]string{UserIDHeader: knownUser}, http.StatusOK},
		{"header auth disabled", false, map[string]string{UserIDHeader: knownUser}, http.StatusUnauthorized},
		{"header not uuid", true, map[string]string{UserIDHeader: "alice"}, http.StatusUnauthorized},
		{"header unknown user", true, map[string]string{UserIDHeader: "11111111-1111-4111-8111-111111111111"}, http.StatusUnauthorized},
		{"nothing", true, nil, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newAuthRouter(tt.allowHeader)
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d", w.Code, tt.status)
			}
			if tt.status == http.StatusOK && w.Body.String() != knownUser {
				t.Errorf("user = %q", w.Body.String())
			}
		})
	}
}

func TestRateLimiter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	limiter := NewRateLimiter([]RateRule{{Prefix: "/api/v1/orders", Limit: rate.Every(time.Hour), Burst: 2}})
	router := gin.New()
	router.Use(limiter.Middleware())
	router.GET("/api/v1/orders", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/api/v1/markets", func(c *gin.Context) { c.Status(http.StatusOK) })

	get := func(path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		return w
	}

	for i := 0; i < 2; i++ {
		if w := get("/api/v1/orders"); w.Code != http.StatusOK {
			t.Fatalf("request %d = %d", i, w.Code)
		}
	}
	w := get("/api/v1/orders")
	if w.Code != http.StatusTooManyRequests || w.Header().Get("Retry-After") == "" {
		t.Errorf("over limit = %d", w.Code)
	}
	for i := 0; i < 10; i++ {
		if w := get("/api/v1/markets"); w.Code != http.StatusOK {
			t.Fatalf("unlimited path = %d", w.Code)
		}
	}
}

func TestRateLimiter_IgnoresAssertedUserID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	limiter := NewRateLimiter([]RateRule{{Prefix: "/api/v1/auth", Limit: rate.Every(time.Hour), Burst: 3}})
	router := gin.New()
	router.Use(limiter.Middleware())
	router.POST("/api/v1/auth/token", func(c *gin.Context) { c.Status(http.StatusOK) })

	passed := 0
	for i := 0; i < 50; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/token", nil)
		req.Header.Set(UserIDHeader, uuid.NewString())
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code == http.StatusOK {
			passed++
		}
	}
	if passed != 3 {
		t.Errorf("passed = %d, want 3 for one client rotating %s", passed, UserIDHeader)
	}
	if len(limiter.visitors) != 1 {
		t.Errorf("visitors = %d, want 1", len(limiter.visitors))
	}
}

func TestRateLimiter_UnlimitedPathsKeepNoState(t *testing.T) {
	gin.SetMode(gin.TestMode)
	limiter := NewRateLimiter(DefaultRateRules)
	router := gin.New()
	router.Use(limiter.Middleware())

	for i := 0; i < 20; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/unknown/"+uuid.NewString(), nil))
	}
	if len(limiter.visitors) != 0 {
		t.Errorf("visitors = %d, want 0", len(limiter.visitors))
	}
}

func TestRateLimiter_Evict(t *testing.T) {
	limiter := NewRateLimiter(DefaultRateRules)
	rule, _ := limiter.rule("/api/v1/orders")
	limiter.limiter(rule, "1.2.3.4")
	limiter.evict(time.Now().Add(time.Minute))
	if len(limiter.visitors) != 1 {
		t.Fatal("recent visitor evicted")
	}
	limiter.evict(time.Now().Add(10 * time.Minute))
	if len(limiter.visitors) != 0 {
		t.Error("idle visitor kept")
	}
}

func TestMetrics(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics()
	router := gin.New()
	router.Use(m.Middleware())
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/metrics", m.Handler())

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ping", nil))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(w.Body.String(), `astrade_http_requests_total{method="GET",route="/ping",status="200"} 1`) {
		t.Errorf("metrics output missing request counter:\n%s", w.Body.String())
	}
}
