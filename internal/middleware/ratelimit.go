package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"webmail/backend/internal/monitoring"
)

// RateLimiter 按调用者限流：已认证请求按邮箱，匿名请求按 IP
type RateLimiter struct {
	limit   rate.Limit
	burst   int
	idle    time.Duration
	metrics *monitoring.Metrics

	mu      sync.Mutex
	clients map[string]*rateClient
}

type rateClient struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter 创建限流器，rps <= 0 时不限流
func NewRateLimiter(rps float64, burst int, metrics *monitoring.Metrics) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		idle:    10 * time.Minute,
		metrics: metrics,
		clients: make(map[string]*rateClient),
	}
}

// Run 定期清理长时间空闲的调用者，直到 ctx 结束
func (rl *RateLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			rl.sweep(now)
		}
	}
}

func (rl *RateLimiter) sweep(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, cl := range rl.clients {
		if now.Sub(cl.lastSeen) > rl.idle {
			delete(rl.clients, key)
		}
	}
}

func (rl *RateLimiter) allow(key string, now time.Time) bool {
	rl.mu.Lock()
	cl, ok := rl.clients[key]
	if !ok {
		cl = &rateClient{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[key] = cl
	}
	cl.lastSeen = now
	rl.mu.Unlock()

	return cl.limiter.AllowN(now, 1)
}

// Middleware 返回 gin 中间件
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.limit <= 0 {
			c.Next()
			return
		}

		key := "ip:" + c.ClientIP()
		if email := CallerEmail(c); email != "" {
			key = "user:" + email
		}

		if !rl.allow(key, time.Now()) {
			rl.metrics.RecordRateLimited()
			retry := time.Duration(float64(time.Second) / float64(rl.limit))
			c.Header("Retry-After", strconv.Itoa(max(1, int(retry.Seconds()))))
			abortJSON(c, http.StatusTooManyRequests, "请求过于频繁，请稍后再试")
			return
		}

		c.Next()
	}
}
