package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"webmail/backend/internal/blacklist"
	"webmail/backend/internal/domain"
	"webmail/backend/internal/monitoring"
)

// URLChecker 黑名单查询接口，由 blacklist.Client 实现
type URLChecker interface {
	CheckURL(ctx context.Context, url string) (bool, error)
}

// GateOutcome 投递闸门的三种结果
type GateOutcome int

const (
	GateClear GateOutcome = iota
	GateRejected
	GateFailed
)

func (o GateOutcome) String() string {
	switch o {
	case GateClear:
		return "clear"
	case GateRejected:
		return "rejected"
	case GateFailed:
		return "failed"
	default:
		return fmt.Sprintf("GateOutcome(%d)", int(o))
	}
}

// GateResult 一次闸门检查的结果
type GateResult struct {
	Outcome  GateOutcome
	URL      string           // Rejected 时为第一个命中的 URL
	Cause    error            // Failed 时为底层的传输/超时错误
	Verdicts []domain.Verdict // 本次检查中已得到的判定，按检查顺序
}

// Err 将结果转换为错误，Clear 时返回 nil
func (r GateResult) Err() error {
	switch r.Outcome {
	case GateRejected:
		return &domain.GateRejectedError{URL: r.URL}
	case GateFailed:
		return fmt.Errorf("%w: %w", domain.ErrGateUnavailable, r.Cause)
	default:
		return nil
	}
}

// DeliveryGate 投递闸门：提取候选文本中的 URL，逐个向黑名单服务查询。
//
// 查询严格串行，遇到第一个命中或第一个错误立即停止。任何错误都会阻止投递，
// 判定结果不做缓存。
type DeliveryGate struct {
	checker URLChecker
	log     *zap.Logger
	metrics *monitoring.Metrics
}

// NewDeliveryGate 创建投递闸门
func NewDeliveryGate(checker URLChecker, log *zap.Logger) *DeliveryGate {
	if log == nil {
		log = zap.NewNop()
	}
	return &DeliveryGate{checker: checker, log: log.Named("gate")}
}

// SetMetrics 设置监控指标
func (g *DeliveryGate) SetMetrics(m *monitoring.Metrics) {
	g.metrics = m
}

// Gate 检查所有候选文本（如主题、正文）
//
// 参数:
//   - ctx: 上下文，取消时正在进行的查询会被中断
//   - texts: 候选文本，URL 按文本顺序及文本内出现顺序拼接
//
// 返回值:
//   - GateResult: Clear / Rejected / Failed
func (g *DeliveryGate) Gate(ctx context.Context, texts ...string) GateResult {
	result := g.run(ctx, texts)
	g.metrics.RecordGate(result.Outcome.String())
	return result
}

func (g *DeliveryGate) run(ctx context.Context, texts []string) GateResult {
	var verdicts []domain.Verdict
	for url := range blacklist.URLs(texts...) {
		blacklisted, err := g.checker.CheckURL(ctx, url)
		if err != nil {
			g.log.Warn("blacklist check failed, blocking delivery", zap.String("url", url), zap.Error(err))
			return GateResult{Outcome: GateFailed, Cause: err, Verdicts: verdicts}
		}
		verdicts = append(verdicts, domain.Verdict{URL: url, Blacklisted: blacklisted})
		g.log.Debug("url verdict", zap.String("url", url), zap.Bool("blacklisted", blacklisted))
		if blacklisted {
			return GateResult{Outcome: GateRejected, URL: url, Verdicts: verdicts}
		}
	}
	return GateResult{Outcome: GateClear, Verdicts: verdicts}
}
