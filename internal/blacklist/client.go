package blacklist

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"go.uber.org/zap"

	"webmail/backend/internal/monitoring"
)

// DefaultTimeout 单次请求的默认上限
const DefaultTimeout = 3 * time.Second

var (
	// ErrTransport 连接失败，或在收到完整响应前连接中断
	ErrTransport = errors.New("blacklist: transport error")
	// ErrTimeout 在时限内未收到完整响应
	ErrTimeout = errors.New("blacklist: timeout")
)

// StatusError POST/DELETE 未返回期望的状态码
type StatusError struct {
	Verb string
	Line string // 原始状态行
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("blacklist: %s failed: %q", e.Verb, e.Line)
}

// Client 黑名单服务客户端
//
// 每次调用建立一条新连接，收到响应或出错后立即关闭，不做连接复用，
// 也不缓存任何判定结果。
type Client struct {
	addr    string
	timeout time.Duration
	dialer  net.Dialer
	log     *zap.Logger
	metrics *monitoring.Metrics
}

// NewClient 创建黑名单客户端
//
// 参数:
//   - addr: 服务地址，格式 "host:port"
//   - timeout: 单次请求上限，<=0 时使用 DefaultTimeout
//   - log: 日志记录器
func NewClient(addr string, timeout time.Duration, log *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		addr:    addr,
		timeout: timeout,
		log:     log.Named("blacklist"),
	}
}

// SetMetrics 设置监控指标
func (c *Client) SetMetrics(m *monitoring.Metrics) {
	c.metrics = m
}

// Addr 返回服务地址
func (c *Client) Addr() string {
	return c.addr
}

// CheckURL 查询 URL 是否在黑名单中。
//
// 模糊的响应一律判定为未命中；传输失败返回 ErrTransport，超时返回 ErrTimeout。
func (c *Client) CheckURL(ctx context.Context, url string) (bool, error) {
	resp, err := c.roundTrip(ctx, VerbGet, url)
	if err != nil {
		return false, err
	}
	blacklisted := ParseVerdict(resp)
	c.log.Debug("url checked", zap.String("url", url), zap.Bool("blacklisted", blacklisted))
	return blacklisted, nil
}

// AddURL 将 URL 加入黑名单，成功时返回状态行
func (c *Client) AddURL(ctx context.Context, url string) (string, error) {
	return c.mutate(ctx, VerbPost, url, "201")
}

// RemoveURL 将 URL 移出黑名单，成功时返回状态行
func (c *Client) RemoveURL(ctx context.Context, url string) (string, error) {
	return c.mutate(ctx, VerbDelete, url, "204")
}

func (c *Client) mutate(ctx context.Context, verb, url, wantCode string) (string, error) {
	resp, err := c.roundTrip(ctx, verb, url)
	if err != nil {
		return "", err
	}
	line, ok := ParseStatus(resp, wantCode)
	if !ok {
		return line, &StatusError{Verb: verb, Line: line}
	}
	c.log.Info("blacklist updated", zap.String("verb", verb), zap.String("url", url), zap.String("status", line))
	return line, nil
}

// roundTrip 发送一行请求并读取到 EOF
func (c *Client) roundTrip(ctx context.Context, verb, payload string) (resp string, err error) {
	start := time.Now()
	defer func() {
		result := "ok"
		switch {
		case errors.Is(err, ErrTimeout):
			result = "timeout"
		case err != nil:
			result = "transport_error"
		}
		c.metrics.RecordOracle(verb, result, time.Since(start))
	}()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	conn, err := c.dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return "", c.classify(ctx, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return "", fmt.Errorf("%w: %w", ErrTransport, err)
		}
	}
	// 调用方取消时立刻中断阻塞中的读写
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	if _, err := io.WriteString(conn, verb+" "+payload+"\n"); err != nil {
		return "", c.classify(ctx, err)
	}

	data, err := io.ReadAll(conn)
	if err != nil {
		return "", c.classify(ctx, err)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("%w: connection closed without response", ErrTransport)
	}
	return string(data), nil
}

// classify 将网络错误归类为超时或传输错误
func (c *Client) classify(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || (errors.Is(err, os.ErrDeadlineExceeded) && ctx.Err() == nil) {
		c.log.Warn("blacklist request timed out", zap.String("addr", c.addr), zap.Error(err))
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	c.log.Warn("blacklist request failed", zap.String("addr", c.addr), zap.Error(err))
	return fmt.Errorf("%w: %w", ErrTransport, err)
}
