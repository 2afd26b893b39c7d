package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound 资源不存在，或存在但对调用者不可见（两者有意不区分）
	ErrNotFound = errors.New("not found")
	// ErrValidation 请求字段不合法
	ErrValidation = errors.New("validation failed")
	// ErrGateRejected 内容中含有已确认的黑名单 URL
	ErrGateRejected = errors.New("content contains a blacklisted url")
	// ErrGateUnavailable 黑名单服务不可用（传输错误或超时）
	ErrGateUnavailable = errors.New("blacklist service unavailable")
	// ErrConflict 唯一约束冲突（邮箱或用户名已被注册）
	ErrConflict = errors.New("already exists")
	// ErrStoreInconsistency 邮件已写入但草稿未能移除，不能自动重试
	ErrStoreInconsistency = errors.New("store inconsistency: mail stored but draft not removed")
)

// GateRejectedError 携带第一个命中黑名单的 URL
type GateRejectedError struct {
	URL string
}

func (e *GateRejectedError) Error() string {
	return fmt.Sprintf("%s: %s", ErrGateRejected.Error(), e.URL)
}

func (e *GateRejectedError) Unwrap() error {
	return ErrGateRejected
}
