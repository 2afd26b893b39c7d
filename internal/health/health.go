package health

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/heptiolabs/healthcheck"
	"go.uber.org/zap"
)

// Pinger 可探测连通性的依赖，例如 Redis
type Pinger interface {
	Ping(ctx context.Context) error
}

// StoreHealth 存储层健康检查
type StoreHealth interface {
	Health() error
}

// HealthChecker 健康检查器
//
// 存储不可用视为进程失活；黑名单服务或 Redis 不可用只影响就绪状态，
// 此时投递门会拒绝发送，但读取接口仍可使用。
type HealthChecker struct {
	health healthcheck.Handler
	logger *zap.Logger

	mu     sync.Mutex
	checks map[string]healthcheck.Check
}

// NewHealthChecker 创建健康检查器
func NewHealthChecker(store StoreHealth, logger *zap.Logger) *HealthChecker {
	if logger == nil {
		logger = zap.NewNop()
	}
	hc := &HealthChecker{
		health: healthcheck.NewHandler(),
		logger: logger,
		checks: make(map[string]healthcheck.Check),
	}
	hc.addLiveness("database", store.Health)
	hc.addLiveness("goroutines", healthcheck.GoroutineCountCheck(10000))
	return hc
}

func (hc *HealthChecker) addLiveness(name string, check healthcheck.Check) {
	hc.health.AddLivenessCheck(name, check)
	hc.mu.Lock()
	hc.checks[name] = check
	hc.mu.Unlock()
}

func (hc *HealthChecker) addReadiness(name string, check healthcheck.Check) {
	hc.health.AddReadinessCheck(name, check)
	hc.mu.Lock()
	hc.checks[name] = check
	hc.mu.Unlock()
}

// AddBlacklist 添加黑名单服务可达性检查
func (hc *HealthChecker) AddBlacklist(addr string, timeout time.Duration) {
	hc.addReadiness("blacklist", healthcheck.TCPDialCheck(addr, timeout))
}

// AddRedis 添加 Redis 连通性检查
func (hc *HealthChecker) AddRedis(p Pinger) {
	hc.addReadiness("redis", PingCheck(p, 2*time.Second))
}

// Handler 返回健康检查处理器，提供 /live 与 /ready
func (hc *HealthChecker) Handler() http.Handler {
	return hc.health
}

// CheckHealth 执行所有检查并返回每项结果
func (hc *HealthChecker) CheckHealth() map[string]string {
	hc.mu.Lock()
	names := make([]string, 0, len(hc.checks))
	for name := range hc.checks {
		names = append(names, name)
	}
	checks := make(map[string]healthcheck.Check, len(hc.checks))
	for k, v := range hc.checks {
		checks[k] = v
	}
	hc.mu.Unlock()
	sort.Strings(names)

	results := make(map[string]string, len(names)+1)
	for _, name := range names {
		if err := checks[name](); err != nil {
			hc.logger.Warn("health check failed", zap.String("check", name), zap.Error(err))
			results[name] = fmt.Sprintf("ERROR: %v", err)
		} else {
			results[name] = "OK"
		}
	}
	results["timestamp"] = time.Now().Format(time.RFC3339)
	return results
}

// PingCheck 将 Pinger 包装为带超时的检查
func PingCheck(p Pinger, timeout time.Duration) healthcheck.Check {
	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return p.Ping(ctx)
	}
}
