package httptransport

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"webmail/backend/internal/auth"
	"webmail/backend/internal/middleware"
)

// AuthHandler 处理认证相关的 HTTP 请求
type AuthHandler struct {
	authService *auth.Service // 认证业务服务
	log         *zap.Logger   // 结构化日志记录器
}

// NewAuthHandler 创建新的认证处理器实例
func NewAuthHandler(authService *auth.Service, log *zap.Logger) *AuthHandler {
	return &AuthHandler{authService: authService, log: log}
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

type logoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Register 处理用户注册请求
func (h *AuthHandler) Register(c *gin.Context) {
	var req auth.RegisterInput
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	resp, err := h.authService.Register(c.Request.Context(), req)
	if err != nil {
		HandleError(c, h.log, err)
		return
	}

	h.log.Info("user registered",
		zap.String("user_id", resp.User.ID),
		zap.String("email", resp.User.Email),
	)
	Created(c, resp)
}

// Login 处理用户登录请求，identifier 可以是邮箱或用户名
func (h *AuthHandler) Login(c *gin.Context) {
	var req auth.LoginInput
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	resp, err := h.authService.Login(c.Request.Context(), req)
	if err != nil {
		HandleError(c, h.log, err)
		return
	}
	Success(c, resp)
}

// Refresh 使用刷新令牌换取新的令牌对
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	resp, err := h.authService.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		HandleError(c, h.log, err)
		return
	}
	Success(c, resp)
}

// Logout 注销当前访问令牌，请求体中的刷新令牌可选
func (h *AuthHandler) Logout(c *gin.Context) {
	claims := middleware.CallerClaims(c)
	if claims == nil {
		Unauthorized(c, MsgAuthRequired)
		return
	}

	var req logoutRequest
	// 请求体可以为空
	_ = c.ShouldBindJSON(&req)

	if err := h.authService.Logout(c.Request.Context(), claims, req.RefreshToken); err != nil {
		HandleError(c, h.log, err)
		return
	}
	SuccessWithMsg(c, "已退出登录", nil)
}

// Me 返回当前用户信息
func (h *AuthHandler) Me(c *gin.Context) {
	user, err := h.authService.Me(c.Request.Context(), c.GetString(middleware.ContextUserID))
	if err != nil {
		HandleError(c, h.log, err)
		return
	}
	Success(c, user)
}
