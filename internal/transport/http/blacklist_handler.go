package httptransport

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"webmail/backend/internal/service"
)

// BlacklistHandler 黑名单查询与维护
type BlacklistHandler struct {
	blacklist *service.BlacklistService
	log       *zap.Logger
}

// NewBlacklistHandler 创建黑名单处理器
func NewBlacklistHandler(blacklist *service.BlacklistService, log *zap.Logger) *BlacklistHandler {
	return &BlacklistHandler{blacklist: blacklist, log: log}
}

type blacklistRequest struct {
	URL string `json:"url" binding:"required"`
}

// Check 查询 URL 是否在黑名单中
func (h *BlacklistHandler) Check(c *gin.Context) {
	url := c.Query("url")
	if url == "" {
		BadRequest(c, MsgInvalidRequest)
		return
	}
	verdict, err := h.blacklist.Check(c.Request.Context(), url)
	if err != nil {
		HandleError(c, h.log, err)
		return
	}
	Success(c, verdict)
}

// Add 将 URL 加入黑名单
func (h *BlacklistHandler) Add(c *gin.Context) {
	var req blacklistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}
	line, err := h.blacklist.Add(c.Request.Context(), req.URL)
	if err != nil {
		HandleError(c, h.log, err)
		return
	}
	Created(c, gin.H{"url": req.URL, "status": line})
}

// Remove 将 URL 移出黑名单
func (h *BlacklistHandler) Remove(c *gin.Context) {
	var req blacklistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}
	line, err := h.blacklist.Remove(c.Request.Context(), req.URL)
	if err != nil {
		HandleError(c, h.log, err)
		return
	}
	Success(c, gin.H{"url": req.URL, "status": line})
}
