package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webmail/backend/internal/auth/jwt"
	"webmail/backend/internal/monitoring"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubAuthenticator struct {
	tokens map[string]*jwt.Claims
}

func (s *stubAuthenticator) Authenticate(_ context.Context, token string) (*jwt.Claims, error) {
	if claims, ok := s.tokens[token]; ok {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}

func newAuthRouter() *gin.Engine {
	auth := &stubAuthenticator{tokens: map[string]*jwt.Claims{
		"good": {UserID: "u-1", Email: "alice@example.com"},
	}}
	r := gin.New()
	r.GET("/me", NewJWTAuth(auth, nil).RequireAuth(), func(c *gin.Context) {
		c.String(http.StatusOK, CallerEmail(c))
	})
	return r
}

func TestJWTAuth_RequireAuth(t *testing.T) {
	r := newAuthRouter()

	tests := []struct {
		name   string
		setup  func(req *http.Request)
		status int
		body   string
	}{
		{"无令牌", func(*http.Request) {}, http.StatusUnauthorized, ""},
		{"Bearer 头", func(req *http.Request) { req.Header.Set("Authorization", "Bearer good") }, http.StatusOK, "alice@example.com"},
		{"小写 bearer", func(req *http.Request) { req.Header.Set("Authorization", "bearer good") }, http.StatusOK, "alice@example.com"},
		{"Cookie", func(req *http.Request) { req.AddCookie(&http.Cookie{Name: "access_token", Value: "good"}) }, http.StatusOK, "alice@example.com"},
		{"查询参数", func(req *http.Request) { req.URL.RawQuery = "token=good" }, http.StatusOK, "alice@example.com"},
		{"无效令牌", func(req *http.Request) { req.Header.Set("Authorization", "Bearer bad") }, http.StatusUnauthorized, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			tt.setup(req)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, w.Body.String())
			}
		})
	}
}

func TestRecovery(t *testing.T) {
	metrics := monitoring.NewMetrics()
	r := gin.New()
	r.Use(Recovery(nil, metrics))
	r.GET("/panic", func(*gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.PanicsTotal))
}

func TestHTTPMetrics(t *testing.T) {
	metrics := monitoring.NewMetrics()
	r := gin.New()
	r.Use(HTTPMetrics(metrics))
	r.GET("/mails/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/mails/7", nil))

	got := testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/mails/:id", "204"))
	assert.Equal(t, float64(1), got)
}

func TestSecurityHeaders(t *testing.T) {
	r := gin.New()
	r.Use(SecurityHeaders())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
}

func TestRequestSizeLimit(t *testing.T) {
	r := gin.New()
	r.Use(RequestSizeLimit(4))
	r.POST("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.ContentLength = 10
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestRateLimiter(t *testing.T) {
	metrics := monitoring.NewMetrics()
	rl := NewRateLimiter(1, 2, metrics)
	r := gin.New()
	r.Use(rl.Middleware())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	do := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = ip + ":1234"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, do("10.0.0.1"))
	assert.Equal(t, http.StatusOK, do("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, do("10.0.0.1"))
	// 不同调用者互不影响
	assert.Equal(t, http.StatusOK, do("10.0.0.2"))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.RateLimited))
}

func TestRateLimiter_Disabled(t *testing.T) {
	rl := NewRateLimiter(0, 0, nil)
	r := gin.New()
	r.Use(rl.Middleware())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	for range 5 {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusOK, w.Code)
	}
}

func TestRateLimiter_Sweep(t *testing.T) {
	rl := NewRateLimiter(1, 1, nil)
	now := time.Now()
	rl.allow("ip:a", now.Add(-time.Hour))
	rl.allow("ip:b", now)

	rl.sweep(now)

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.NotContains(t, rl.clients, "ip:a")
	assert.Contains(t, rl.clients, "ip:b")
}

func TestRequireCaller(t *testing.T) {
	auth := &stubAuthenticator{tokens: map[string]*jwt.Claims{
		"admin": {UserID: "u-1", Email: "admin@example.com"},
		"user":  {UserID: "u-2", Email: "user@example.com"},
	}}
	r := gin.New()
	r.POST("/blacklist", NewJWTAuth(auth, nil).RequireAuth(), RequireCaller([]string{"Admin@example.com"}), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	do := func(token string) int {
		req := httptest.NewRequest(http.MethodPost, "/blacklist", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}
	assert.Equal(t, http.StatusOK, do("admin"))
	assert.Equal(t, http.StatusForbidden, do("user"))
}
