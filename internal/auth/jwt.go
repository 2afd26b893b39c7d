package auth

import (
	"webmail/backend/internal/auth/jwt"
	"webmail/backend/internal/config"
	"webmail/backend/internal/domain"
)

// JWTManager JWT管理器包装
type JWTManager struct {
	manager *jwt.Manager
}

// NewJWTManager 创建JWT管理器
func NewJWTManager(cfg *config.JWTConfig) *JWTManager {
	manager := jwt.NewManager(cfg.Secret, cfg.Issuer, cfg.AccessExpiry, cfg.RefreshExpiry)
	return &JWTManager{manager: manager}
}

// TokenResponse 令牌响应
type TokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	TokenType    string `json:"tokenType"`
	ExpiresIn    int64  `json:"expiresIn"`
}

// GenerateTokens 为用户生成令牌对
func (j *JWTManager) GenerateTokens(user *domain.User) (*TokenResponse, error) {
	tokenPair, err := j.manager.GenerateTokenPair(user.ID, user.Email)
	if err != nil {
		return nil, err
	}

	return &TokenResponse{
		AccessToken:  tokenPair.AccessToken,
		RefreshToken: tokenPair.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    tokenPair.ExpiresIn,
	}, nil
}

// ValidateAccessToken 验证访问令牌
func (j *JWTManager) ValidateAccessToken(token string) (*jwt.Claims, error) {
	return j.manager.ValidateTyped(token, jwt.TypeAccess)
}

// ValidateRefreshToken 验证刷新令牌
func (j *JWTManager) ValidateRefreshToken(token string) (*jwt.Claims, error) {
	return j.manager.ValidateTyped(token, jwt.TypeRefresh)
}
