package httptransport

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"webmail/backend/internal/domain"
	"webmail/backend/internal/middleware"
	"webmail/backend/internal/service"
)

// MailHandler 处理邮件与草稿请求，调用者身份来自 JWT 中的邮箱
type MailHandler struct {
	mails *service.MailService
	log   *zap.Logger
}

// NewMailHandler 创建邮件处理器
func NewMailHandler(mails *service.MailService, log *zap.Logger) *MailHandler {
	return &MailHandler{mails: mails, log: log}
}

type composeRequest struct {
	To      string `json:"to" binding:"required,email"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// draftRequest 草稿的收件人可以暂时为空
type draftRequest struct {
	To      string `json:"to" binding:"omitempty,email"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type draftUpdateResponse struct {
	Sent  bool          `json:"sent"`
	Mail  *domain.Mail  `json:"mail,omitempty"`
	Draft *domain.Draft `json:"draft,omitempty"`
}

// parseID 解析路径中的数字 ID
func parseID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		BadRequest(c, MsgInvalidID)
		return 0, false
	}
	return id, true
}

// ListMails 列出当前用户可见的邮件
func (h *MailHandler) ListMails(c *gin.Context) {
	mails, err := h.mails.GetAll(c.Request.Context(), middleware.CallerEmail(c))
	if err != nil {
		HandleError(c, h.log, err)
		return
	}
	Success(c, mails)
}

// SearchMails 按主题或正文搜索
func (h *MailHandler) SearchMails(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		BadRequest(c, "搜索关键词不能为空")
		return
	}
	mails, err := h.mails.Search(c.Request.Context(), middleware.CallerEmail(c), query)
	if err != nil {
		HandleError(c, h.log, err)
		return
	}
	Success(c, mails)
}

// GetMail 获取单封邮件
func (h *MailHandler) GetMail(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	mail, err := h.mails.GetByID(c.Request.Context(), middleware.CallerEmail(c), id)
	if err != nil {
		HandleError(c, h.log, err)
		return
	}
	Success(c, mail)
}

// SendMail 直接发送邮件，内容先经过黑名单检查
func (h *MailHandler) SendMail(c *gin.Context) {
	var req composeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}
	mail, err := h.mails.CreateMail(c.Request.Context(), middleware.CallerEmail(c), req.To, req.Subject, req.Body)
	if err != nil {
		HandleError(c, h.log, err)
		return
	}
	Created(c, mail)
}

// DeleteMail 从当前用户的视图中删除邮件
func (h *MailHandler) DeleteMail(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	deleted, err := h.mails.DeleteMail(c.Request.Context(), middleware.CallerEmail(c), id)
	if err != nil {
		HandleError(c, h.log, err)
		return
	}
	if !deleted {
		NotFound(c, "邮件不存在")
		return
	}
	NoContent(c)
}

// ListDrafts 列出当前用户的草稿
func (h *MailHandler) ListDrafts(c *gin.Context) {
	drafts, err := h.mails.ListDrafts(c.Request.Context(), middleware.CallerEmail(c))
	if err != nil {
		HandleError(c, h.log, err)
		return
	}
	Success(c, drafts)
}

// CreateDraft 新建草稿
func (h *MailHandler) CreateDraft(c *gin.Context) {
	var req draftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}
	draft, err := h.mails.CreateDraft(c.Request.Context(), middleware.CallerEmail(c), req.To, req.Subject, req.Body)
	if err != nil {
		HandleError(c, h.log, err)
		return
	}
	Created(c, draft)
}

// GetDraft 获取草稿
func (h *MailHandler) GetDraft(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	draft, err := h.mails.GetDraft(c.Request.Context(), middleware.CallerEmail(c), id)
	if err != nil {
		HandleError(c, h.log, err)
		return
	}
	Success(c, draft)
}

// UpdateDraft 修改草稿，send 为 true 时发送
func (h *MailHandler) UpdateDraft(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var patch domain.DraftPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	mail, draft, err := h.mails.UpdateDraft(c.Request.Context(), middleware.CallerEmail(c), id, patch)
	if err != nil {
		HandleError(c, h.log, err)
		return
	}
	if mail != nil {
		SuccessWithMsg(c, "草稿已发送", draftUpdateResponse{Sent: true, Mail: mail})
		return
	}
	Success(c, draftUpdateResponse{Draft: draft})
}

// DeleteDraft 删除草稿
func (h *MailHandler) DeleteDraft(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.mails.DeleteDraft(c.Request.Context(), middleware.CallerEmail(c), id); err != nil {
		HandleError(c, h.log, err)
		return
	}
	NoContent(c)
}
