package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ronalzhang/lawsker-sub001/internal/membership/application"
	"github.com/ronalzhang/lawsker-sub001/internal/membership/domain"
	"github.com/ronalzhang/lawsker-sub001/pkg/logger"
	"github.com/ronalzhang/lawsker-sub001/pkg/response"
)

// MembershipHandler HTTP 处理器
type MembershipHandler struct {
	service *application.MembershipService
}

// NewMembershipHandler 创建 HTTP 处理器
func NewMembershipHandler(service *application.MembershipService) *MembershipHandler {
	return &MembershipHandler{service: service}
}

// RegisterRoutes 注册路由
func (h *MembershipHandler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api/v1/memberships")
	{
		api.GET("/:id", h.GetMembership)
		api.POST("/:id/upgrade", h.Upgrade)
		api.POST("/:id/renew", h.Renew)
		api.POST("/:id/credits/consume", h.ConsumeCredits)
	}
}

// GetMembership 查询会员关系
func (h *MembershipHandler) GetMembership(c *gin.Context) {
	accountID := c.Param("id")

	m, err := h.service.GetMembership(c.Request.Context(), accountID)
	if err != nil {
		h.writeError(c, "查询会员失败", accountID, err)
		return
	}

	response.Success(c, m)
}

// UpgradeRequest 升级请求
type UpgradeRequest struct {
	Tier   string `json:"tier" binding:"required"`
	Months int    `json:"months"`
}

// Upgrade 会员升级
func (h *MembershipHandler) Upgrade(c *gin.Context) {
	accountID := c.Param("id")
	var req UpgradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), nil)
		return
	}

	m, err := h.service.Upgrade(c.Request.Context(), accountID, domain.TierName(req.Tier), req.Months)
	if err != nil {
		h.writeError(c, "会员升级失败", accountID, err)
		return
	}

	response.Success(c, m)
}

// RenewRequest 续期请求
type RenewRequest struct {
	Months int `json:"months"`
}

// Renew 会员续期
func (h *MembershipHandler) Renew(c *gin.Context) {
	accountID := c.Param("id")
	var req RenewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), nil)
		return
	}

	m, err := h.service.Renew(c.Request.Context(), accountID, req.Months)
	if err != nil {
		h.writeError(c, "会员续期失败", accountID, err)
		return
	}

	response.Success(c, m)
}

// ConsumeCreditsRequest AI 点数扣减请求
type ConsumeCreditsRequest struct {
	Credits int64 `json:"credits" binding:"required,min=1"`
}

// ConsumeCredits 扣减 AI 点数
func (h *MembershipHandler) ConsumeCredits(c *gin.Context) {
	accountID := c.Param("id")
	var req ConsumeCreditsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), nil)
		return
	}

	m, err := h.service.ConsumeCredits(c.Request.Context(), accountID, req.Credits)
	if err != nil {
		h.writeError(c, "AI 点数扣减失败", accountID, err)
		return
	}

	response.Success(c, gin.H{"account_id": accountID, "ai_credits_remaining": m.AICreditsRemaining})
}

func (h *MembershipHandler) writeError(c *gin.Context, msg, accountID string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrMembershipNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrUnknownTier), errors.Is(err, domain.ErrAlreadyOnTier):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrInsufficientCredit):
		status = http.StatusPaymentRequired
	}
	if status == http.StatusInternalServerError {
		logger.Error(c.Request.Context(), msg, "account_id", accountID, "error", err)
	}
	response.ErrorWithStatus(c, status, err.Error(), nil)
}
