package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"webmail/backend/internal/auth/jwt"
)

// 上下文键
const (
	ContextUserID = "userID"
	ContextEmail  = "email"
	ContextClaims = "claims"
)

// Authenticator 校验访问令牌（包括吊销检查）
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*jwt.Claims, error)
}

// JWTAuth JWT认证中间件
type JWTAuth struct {
	auth Authenticator
	log  *zap.Logger
}

// NewJWTAuth 创建JWT认证中间件
func NewJWTAuth(auth Authenticator, log *zap.Logger) *JWTAuth {
	if log == nil {
		log = zap.NewNop()
	}
	return &JWTAuth{auth: auth, log: log}
}

// RequireAuth 要求JWT认证
func (ja *JWTAuth) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ExtractToken(c)
		if token == "" {
			abortJSON(c, http.StatusUnauthorized, "需要登录认证")
			return
		}

		claims, err := ja.auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			ja.log.Warn("invalid token",
				zap.Error(err),
				zap.String("ip", c.ClientIP()),
			)
			abortJSON(c, http.StatusUnauthorized, "无效或已过期的访问令牌")
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextEmail, claims.Email)
		c.Set(ContextClaims, claims)

		c.Next()
	}
}

// ExtractToken 从请求中提取JWT token
func ExtractToken(c *gin.Context) string {
	// 1. 从 Authorization header 提取
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}

	// 2. 从 cookie 提取
	if token, err := c.Cookie("access_token"); err == nil && token != "" {
		return token
	}

	// 3. WebSocket 握手无法设置请求头，允许查询参数
	return c.Query("token")
}

// CallerEmail 返回已认证调用者的邮箱
func CallerEmail(c *gin.Context) string {
	return c.GetString(ContextEmail)
}

// CallerClaims 返回已认证调用者的令牌声明
func CallerClaims(c *gin.Context) *jwt.Claims {
	v, ok := c.Get(ContextClaims)
	if !ok {
		return nil
	}
	claims, _ := v.(*jwt.Claims)
	return claims
}

func abortJSON(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"code": status,
		"msg":  msg,
	})
}

// RequireCaller 只允许列表中的用户访问，列表为空时不做限制。必须放在 RequireAuth 之后。
func RequireCaller(allowed []string) gin.HandlerFunc {
	set := make(map[string]struct{}, len(allowed))
	for _, email := range allowed {
		set[strings.ToLower(email)] = struct{}{}
	}
	return func(c *gin.Context) {
		if len(set) == 0 {
			c.Next()
			return
		}
		if _, ok := set[strings.ToLower(CallerEmail(c))]; !ok {
			abortJSON(c, http.StatusForbidden, "权限不足")
			return
		}
		c.Next()
	}
}
