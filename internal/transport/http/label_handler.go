package httptransport

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"webmail/backend/internal/middleware"
	"webmail/backend/internal/service"
)

// LabelHandler 处理标签请求
type LabelHandler struct {
	labels *service.LabelService
	log    *zap.Logger
}

// NewLabelHandler 创建标签处理器
func NewLabelHandler(labels *service.LabelService, log *zap.Logger) *LabelHandler {
	return &LabelHandler{labels: labels, log: log}
}

type labelRequest struct {
	Name string `json:"name"`
}

func (h *LabelHandler) ListLabels(c *gin.Context) {
	labels, err := h.labels.GetAllLabels(c.Request.Context(), middleware.CallerEmail(c))
	if err != nil {
		HandleError(c, h.log, err)
		return
	}
	Success(c, labels)
}

// CreateLabel 名称为空时使用默认名称
func (h *LabelHandler) CreateLabel(c *gin.Context) {
	var req labelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}
	label, err := h.labels.CreateLabel(c.Request.Context(), req.Name, middleware.CallerEmail(c))
	if err != nil {
		HandleError(c, h.log, err)
		return
	}
	Created(c, label)
}

func (h *LabelHandler) GetLabel(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	label, err := h.labels.GetLabel(c.Request.Context(), id, middleware.CallerEmail(c))
	if err != nil {
		HandleError(c, h.log, err)
		return
	}
	Success(c, label)
}

func (h *LabelHandler) UpdateLabel(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req labelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}
	label, err := h.labels.UpdateLabel(c.Request.Context(), id, req.Name, middleware.CallerEmail(c))
	if err != nil {
		HandleError(c, h.log, err)
		return
	}
	Success(c, label)
}

// DeleteLabel 返回被删除的标签
func (h *LabelHandler) DeleteLabel(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	label, err := h.labels.DeleteLabel(c.Request.Context(), id, middleware.CallerEmail(c))
	if err != nil {
		HandleError(c, h.log, err)
		return
	}
	SuccessWithMsg(c, "标签已删除", label)
}

// ListLabelMails 列出标签下当前用户仍可见的邮件
func (h *LabelHandler) ListLabelMails(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	mails, err := h.labels.ListMailsByLabel(c.Request.Context(), id, middleware.CallerEmail(c))
	if err != nil {
		HandleError(c, h.log, err)
		return
	}
	Success(c, mails)
}

func (h *LabelHandler) AddMail(c *gin.Context) {
	labelID, ok := parseID(c, "id")
	if !ok {
		return
	}
	mailID, ok := parseID(c, "mailId")
	if !ok {
		return
	}
	label, err := h.labels.AddMailToLabel(c.Request.Context(), labelID, mailID, middleware.CallerEmail(c))
	if err != nil {
		HandleError(c, h.log, err)
		return
	}
	Success(c, label)
}

func (h *LabelHandler) RemoveMail(c *gin.Context) {
	labelID, ok := parseID(c, "id")
	if !ok {
		return
	}
	mailID, ok := parseID(c, "mailId")
	if !ok {
		return
	}
	label, err := h.labels.RemoveMailFromLabel(c.Request.Context(), labelID, mailID, middleware.CallerEmail(c))
	if err != nil {
		HandleError(c, h.log, err)
		return
	}
	Success(c, label)
}
