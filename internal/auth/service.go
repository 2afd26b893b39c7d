package auth

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"webmail/backend/internal/auth/jwt"
	"webmail/backend/internal/domain"
	"webmail/backend/internal/storage"
)

var (
	// ErrInvalidEmail 无效的邮箱格式
	ErrInvalidEmail = fmt.Errorf("%w: invalid email format", domain.ErrValidation)
	// ErrInvalidPassword 密码不满足要求
	ErrInvalidPassword = fmt.Errorf("%w: password must be 8 to 72 characters", domain.ErrValidation)
	// ErrInvalidUsername 用户名不满足要求
	ErrInvalidUsername = fmt.Errorf("%w: username must be 3 to 32 letters, digits, '.', '_' or '-'", domain.ErrValidation)
	// ErrEmailExists 邮箱已存在
	ErrEmailExists = fmt.Errorf("email %w", domain.ErrConflict)
	// ErrUsernameExists 用户名已存在
	ErrUsernameExists = fmt.Errorf("username %w", domain.ErrConflict)
	// ErrInvalidCredentials 凭证无效
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrTokenRevoked 令牌已注销
	ErrTokenRevoked = errors.New("token revoked")
)

var (
	emailRegex    = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9._\-]{3,32}$`)
)

// LabelInitializer 新用户注册后创建默认标签
type LabelInitializer interface {
	CreateDefaultLabels(ctx context.Context, userID string) error
}

// Service 认证服务
type Service struct {
	users   storage.UserRepository
	revoker storage.TokenRevoker
	jwt     *JWTManager
	labels  LabelInitializer
	log     *zap.Logger
}

// NewService 创建认证服务
func NewService(users storage.UserRepository, revoker storage.TokenRevoker, jwtManager *JWTManager, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		users:   users,
		revoker: revoker,
		jwt:     jwtManager,
		log:     log.Named("auth"),
	}
}

// SetLabelInitializer 设置默认标签初始化器
func (s *Service) SetLabelInitializer(labels LabelInitializer) {
	s.labels = labels
}

// RegisterInput 注册输入
type RegisterInput struct {
	Email    string `json:"email" binding:"required,email"`
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginInput 登录输入，Identifier 可以是邮箱或用户名
type LoginInput struct {
	Identifier string `json:"identifier" binding:"required"`
	Password   string `json:"password" binding:"required"`
}

// AuthResponse 认证响应
type AuthResponse struct {
	User *domain.User `json:"user"`
	TokenResponse
}

// Register 用户注册
//
// 注册成功后为用户创建默认标签，并直接返回一组令牌。
//
// 返回值:
//   - *AuthResponse: 用户与令牌
//   - error: ErrInvalidEmail / ErrInvalidUsername / ErrInvalidPassword / ErrEmailExists / ErrUsernameExists
func (s *Service) Register(ctx context.Context, input RegisterInput) (*AuthResponse, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if !ValidateEmail(email) {
		return nil, ErrInvalidEmail
	}
	if !usernameRegex.MatchString(input.Username) {
		return nil, ErrInvalidUsername
	}
	if err := ValidatePassword(input.Password); err != nil {
		return nil, err
	}

	if _, err := s.users.GetUserByEmail(ctx, email); err == nil {
		return nil, ErrEmailExists
	}
	if _, err := s.users.GetUserByUsername(ctx, input.Username); err == nil {
		return nil, ErrUsernameExists
	}

	passwordHash, err := HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now().UTC()
	user := &domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		Username:     input.Username,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	if s.labels != nil {
		if err := s.labels.CreateDefaultLabels(ctx, user.Email); err != nil {
			s.log.Warn("failed to create default labels", zap.String("email", user.Email), zap.Error(err))
		}
	}

	s.log.Info("user registered", zap.String("user_id", user.ID), zap.String("email", user.Email))
	return s.issue(user)
}

// Login 用户登录
func (s *Service) Login(ctx context.Context, input LoginInput) (*AuthResponse, error) {
	identifier := strings.TrimSpace(input.Identifier)

	user, err := s.users.GetUserByEmail(ctx, identifier)
	if err != nil {
		user, err = s.users.GetUserByUsername(ctx, identifier)
		if err != nil {
			return nil, ErrInvalidCredentials
		}
	}

	if !CheckPassword(input.Password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	return s.issue(user)
}

// Refresh 使用刷新令牌换取新的令牌对，旧的刷新令牌随即作废
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*AuthResponse, error) {
	claims, err := s.jwt.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, err
	}
	if err := s.checkRevoked(ctx, claims); err != nil {
		return nil, err
	}

	user, err := s.users.GetUserByID(ctx, claims.UserID)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	if err := s.revoke(ctx, claims); err != nil {
		return nil, err
	}
	return s.issue(user)
}

// Logout 注销访问令牌，若提供刷新令牌则一并注销
func (s *Service) Logout(ctx context.Context, access *jwt.Claims, refreshToken string) error {
	if err := s.revoke(ctx, access); err != nil {
		return err
	}
	if refreshToken == "" {
		return nil
	}
	claims, err := s.jwt.ValidateRefreshToken(refreshToken)
	if err != nil {
		// 无效的刷新令牌本来就不能使用
		return nil
	}
	if claims.UserID != access.UserID {
		return nil
	}
	return s.revoke(ctx, claims)
}

// Authenticate 验证访问令牌，返回调用者声明
func (s *Service) Authenticate(ctx context.Context, accessToken string) (*jwt.Claims, error) {
	claims, err := s.jwt.ValidateAccessToken(accessToken)
	if err != nil {
		return nil, err
	}
	if err := s.checkRevoked(ctx, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// Me 返回当前用户信息
func (s *Service) Me(ctx context.Context, userID string) (*domain.User, error) {
	return s.users.GetUserByID(ctx, userID)
}

func (s *Service) issue(user *domain.User) (*AuthResponse, error) {
	tokens, err := s.jwt.GenerateTokens(user)
	if err != nil {
		return nil, err
	}
	return &AuthResponse{User: user, TokenResponse: *tokens}, nil
}

func (s *Service) revoke(ctx context.Context, claims *jwt.Claims) error {
	ttl := claims.Remaining(time.Now())
	if ttl == 0 {
		return nil
	}
	if err := s.revoker.Revoke(ctx, claims.ID, ttl); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

func (s *Service) checkRevoked(ctx context.Context, claims *jwt.Claims) error {
	revoked, err := s.revoker.IsRevoked(ctx, claims.ID)
	if err != nil {
		return fmt.Errorf("check token revocation: %w", err)
	}
	if revoked {
		return ErrTokenRevoked
	}
	return nil
}

// ValidateEmail 验证邮箱格式
func ValidateEmail(email string) bool {
	return emailRegex.MatchString(email)
}

// ValidatePassword 验证密码强度，bcrypt 最多使用 72 字节
func ValidatePassword(password string) error {
	if len(password) < 8 || len(password) > 72 {
		return ErrInvalidPassword
	}
	return nil
}

// HashPassword 哈希密码
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword 检查密码是否匹配
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
