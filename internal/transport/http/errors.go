package httptransport

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"webmail/backend/internal/auth"
	"webmail/backend/internal/auth/jwt"
	"webmail/backend/internal/blacklist"
	"webmail/backend/internal/domain"
)

// 通用错误消息
const (
	MsgInvalidRequest     = "请求参数格式错误"
	MsgInvalidID          = "ID 格式无效"
	MsgAuthRequired       = "需要登录认证"
	MsgInvalidCredentials = "用户名或密码错误"
	MsgTokenInvalid       = "无效或已过期的令牌"
	MsgNotFound           = "资源不存在"
	MsgConflict           = "资源已存在"
	MsgGateRejected       = "内容包含被列入黑名单的链接"
	MsgGateUnavailable    = "黑名单服务暂不可用，请稍后重试"
	MsgBlacklistFailed    = "黑名单服务拒绝了请求"
	MsgInconsistent       = "邮件已发送但草稿未能删除，请勿重试"
	MsgInternalError      = "服务器内部错误，请稍后重试"
)

// errorMapping 按顺序匹配，第一个 errors.Is 成立的条目生效
var errorMapping = []struct {
	target error
	status int
	msg    string
}{
	{auth.ErrInvalidCredentials, http.StatusUnauthorized, MsgInvalidCredentials},
	{auth.ErrTokenRevoked, http.StatusUnauthorized, MsgTokenInvalid},
	{jwt.ErrInvalidToken, http.StatusUnauthorized, MsgTokenInvalid},
	{jwt.ErrExpiredToken, http.StatusUnauthorized, MsgTokenInvalid},
	{jwt.ErrWrongTokenType, http.StatusUnauthorized, MsgTokenInvalid},
	{auth.ErrEmailExists, http.StatusConflict, "该邮箱已被注册"},
	{auth.ErrUsernameExists, http.StatusConflict, "该用户名已被使用"},
	{domain.ErrConflict, http.StatusConflict, MsgConflict},
	{domain.ErrNotFound, http.StatusNotFound, MsgNotFound},
	{domain.ErrGateUnavailable, http.StatusServiceUnavailable, MsgGateUnavailable},
	{domain.ErrStoreInconsistency, http.StatusInternalServerError, MsgInconsistent},
}

// HandleError 将业务错误映射为响应。
// 校验错误与黑名单拒绝会把具体原因返回给调用者。
func HandleError(c *gin.Context, log *zap.Logger, err error) {
	_ = c.Error(err)

	var rejected *domain.GateRejectedError
	if errors.As(err, &rejected) {
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, Response{
			Code: http.StatusUnprocessableEntity,
			Msg:  MsgGateRejected,
			Data: gin.H{"url": rejected.URL},
		})
		return
	}
	var statusErr *blacklist.StatusError
	if errors.As(err, &statusErr) {
		c.AbortWithStatusJSON(http.StatusBadGateway, Response{
			Code: http.StatusBadGateway,
			Msg:  MsgBlacklistFailed,
			Data: gin.H{"status": statusErr.Line},
		})
		return
	}
	if errors.Is(err, domain.ErrValidation) {
		BadRequest(c, err.Error())
		return
	}

	for _, m := range errorMapping {
		if errors.Is(err, m.target) {
			if m.status >= http.StatusInternalServerError {
				log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
			}
			Error(c, m.status, m.msg)
			return
		}
	}

	log.Error("unexpected error", zap.String("path", c.FullPath()), zap.Error(err))
	Error(c, http.StatusInternalServerError, MsgInternalError)
}
