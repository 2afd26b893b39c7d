package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"webmail/backend/internal/domain"
)

var (
	ErrEmailExists    = fmt.Errorf("email %w", domain.ErrConflict)
	ErrUsernameExists = fmt.Errorf("username %w", domain.ErrConflict)
)

// CreateUser 创建用户，邮箱与用户名均不区分大小写唯一
func (s *Store) CreateUser(_ context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(user.Email)
	username := strings.ToLower(user.Username)
	if _, exists := s.byEmail[email]; exists {
		return ErrEmailExists
	}
	if _, exists := s.byUsername[username]; exists {
		return ErrUsernameExists
	}

	cp := *user
	s.users[user.ID] = &cp
	s.byEmail[email] = user.ID
	s.byUsername[username] = user.ID
	return nil
}

// GetUserByID 根据 ID 获取用户
func (s *Store) GetUserByID(_ context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *user
	return &cp, nil
}

// GetUserByEmail 根据邮箱获取用户
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	s.mu.RLock()
	id, ok := s.byEmail[strings.ToLower(email)]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrNotFound
	}
	return s.GetUserByID(ctx, id)
}

// GetUserByUsername 根据用户名获取用户
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	s.mu.RLock()
	id, ok := s.byUsername[strings.ToLower(username)]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrNotFound
	}
	return s.GetUserByID(ctx, id)
}

// ========== Token Revoker ==========

// Revoke 吊销令牌，直到 ttl 过期
func (s *Store) Revoke(_ context.Context, jti string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for id, expiresAt := range s.revoked {
		if now.After(expiresAt) {
			delete(s.revoked, id)
		}
	}
	s.revoked[jti] = now.Add(ttl)
	return nil
}

// IsRevoked 检查令牌是否已被吊销
func (s *Store) IsRevoked(_ context.Context, jti string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	expiresAt, ok := s.revoked[jti]
	return ok && time.Now().Before(expiresAt), nil
}
