package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"webmail/backend/internal/blacklist"
	"webmail/backend/internal/domain"
)

// BlacklistEditor 黑名单维护接口，由 blacklist.Client 实现
type BlacklistEditor interface {
	URLChecker
	AddURL(ctx context.Context, url string) (string, error)
	RemoveURL(ctx context.Context, url string) (string, error)
}

// BlacklistService 黑名单维护服务
type BlacklistService struct {
	client BlacklistEditor
	log    *zap.Logger
}

// NewBlacklistService 创建黑名单维护服务
func NewBlacklistService(client BlacklistEditor, log *zap.Logger) *BlacklistService {
	if log == nil {
		log = zap.NewNop()
	}
	return &BlacklistService{client: client, log: log.Named("blacklist")}
}

// Check 查询单个 URL
func (s *BlacklistService) Check(ctx context.Context, url string) (*domain.Verdict, error) {
	if err := validateURL(url); err != nil {
		return nil, err
	}
	blacklisted, err := s.client.CheckURL(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrGateUnavailable, err)
	}
	return &domain.Verdict{URL: url, Blacklisted: blacklisted}, nil
}

// Add 将 URL 加入黑名单，返回服务端状态行
func (s *BlacklistService) Add(ctx context.Context, url string) (string, error) {
	if err := validateURL(url); err != nil {
		return "", err
	}
	line, err := s.client.AddURL(ctx, url)
	if err != nil {
		return line, s.wrap(err)
	}
	s.log.Info("url added to blacklist", zap.String("url", url))
	return line, nil
}

// Remove 将 URL 移出黑名单，返回服务端状态行
func (s *BlacklistService) Remove(ctx context.Context, url string) (string, error) {
	if err := validateURL(url); err != nil {
		return "", err
	}
	line, err := s.client.RemoveURL(ctx, url)
	if err != nil {
		return line, s.wrap(err)
	}
	s.log.Info("url removed from blacklist", zap.String("url", url))
	return line, nil
}

// wrap 传输错误归为 ErrGateUnavailable，状态错误原样返回
func (s *BlacklistService) wrap(err error) error {
	if errors.Is(err, blacklist.ErrTransport) || errors.Is(err, blacklist.ErrTimeout) {
		return fmt.Errorf("%w: %w", domain.ErrGateUnavailable, err)
	}
	return err
}

// validateURL 要求整个字符串恰好是一个可被提取的 URL，
// 这样请求行中不会出现空白或换行。
func validateURL(url string) error {
	urls := blacklist.ExtractURLs(url)
	if len(urls) != 1 || urls[0] != url {
		return fmt.Errorf("%w: invalid url %q", domain.ErrValidation, url)
	}
	return nil
}
