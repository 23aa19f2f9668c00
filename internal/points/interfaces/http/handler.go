package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ronalzhang/lawsker-sub001/internal/points/application"
	"github.com/ronalzhang/lawsker-sub001/internal/points/domain"
	"github.com/ronalzhang/lawsker-sub001/pkg/logger"
	"github.com/ronalzhang/lawsker-sub001/pkg/response"
)

// PointsHandler HTTP 处理器
type PointsHandler struct {
	commandService *application.PointsCommandService
	queryService   *application.PointsQueryService
}

// NewPointsHandler 创建 HTTP 处理器
func NewPointsHandler(commandService *application.PointsCommandService, queryService *application.PointsQueryService) *PointsHandler {
	return &PointsHandler{
		commandService: commandService,
		queryService:   queryService,
	}
}

// RegisterRoutes 注册路由
func (h *PointsHandler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api/v1/points")
	{
		api.POST("/accounts", h.CreateAccount)
		api.POST("/activities", h.RecordActivity)
		api.POST("/accounts/:id/downgrade", h.Downgrade)
		api.GET("/accounts/:id/summary", h.GetSummary)
		api.GET("/accounts/:id/transactions", h.ListTransactions)
		api.GET("/accounts/:id/daily", h.ListDailyBuckets)
		api.GET("/accounts/:id/milestones", h.ListMilestones)
		api.GET("/accounts/:id/reconciliation", h.Reconcile)
		api.GET("/leaderboard", h.Leaderboard)
	}
}

// CreateAccountRequest 创建积分账户请求
type CreateAccountRequest struct {
	AccountID string `json:"account_id" binding:"required"`
}

// CreateAccount 创建积分账户（幂等）
func (h *PointsHandler) CreateAccount(c *gin.Context) {
	var req CreateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), nil)
		return
	}

	account, err := h.commandService.CreateAccount(c.Request.Context(), req.AccountID)
	if err != nil {
		logger.Error(c.Request.Context(), "创建积分账户失败", "account_id", req.AccountID, "error", err)
		response.ErrorWithStatus(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}

	response.Success(c, account)
}

// RecordActivity 记录律师行为并结算积分
func (h *PointsHandler) RecordActivity(c *gin.Context) {
	var cmd application.RecordActivityCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if cmd.AccountID == "" || cmd.Action == "" {
		response.ErrorWithStatus(c, http.StatusBadRequest, "account_id and action are required", nil)
		return
	}

	result, err := h.commandService.RecordActivity(c.Request.Context(), cmd)
	if err != nil {
		h.writeError(c, "记录行为失败", cmd.AccountID, err)
		return
	}

	response.Success(c, result)
}

// DowngradeRequest 降级请求
type DowngradeRequest struct {
	ToLevel int `json:"to_level" binding:"required,min=1"`
}

// Downgrade 管理侧降级
func (h *PointsHandler) Downgrade(c *gin.Context) {
	accountID := c.Param("id")
	var req DowngradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), nil)
		return
	}

	if err := h.commandService.Downgrade(c.Request.Context(), accountID, req.ToLevel); err != nil {
		h.writeError(c, "降级失败", accountID, err)
		return
	}

	response.Success(c, gin.H{"account_id": accountID, "level": req.ToLevel})
}

// GetSummary 账户概要
func (h *PointsHandler) GetSummary(c *gin.Context) {
	accountID := c.Param("id")

	summary, err := h.queryService.GetSummary(c.Request.Context(), accountID)
	if err != nil {
		h.writeError(c, "查询账户概要失败", accountID, err)
		return
	}

	response.Success(c, summary)
}

// ListTransactions 流水分页查询
func (h *PointsHandler) ListTransactions(c *gin.Context) {
	accountID := c.Param("id")
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	txns, total, err := h.queryService.ListTransactions(c.Request.Context(), accountID, offset, limit)
	if err != nil {
		h.writeError(c, "查询流水失败", accountID, err)
		return
	}

	response.Success(c, gin.H{"total": total, "transactions": txns})
}

// ListDailyBuckets 日活动查询，默认最近 30 天
func (h *PointsHandler) ListDailyBuckets(c *gin.Context) {
	accountID := c.Param("id")
	now := time.Now()
	from := now.AddDate(0, 0, -30)
	if v := c.Query("from"); v != "" {
		if t, err := time.ParseInLocation("2006-01-02", v, now.Location()); err == nil {
			from = t
		}
	}
	to := now
	if v := c.Query("to"); v != "" {
		if t, err := time.ParseInLocation("2006-01-02", v, now.Location()); err == nil {
			to = t
		}
	}

	buckets, err := h.queryService.ListDailyBuckets(c.Request.Context(), accountID, from, to)
	if err != nil {
		h.writeError(c, "查询日活动失败", accountID, err)
		return
	}

	response.Success(c, buckets)
}

// ListMilestones 里程碑进度查询
func (h *PointsHandler) ListMilestones(c *gin.Context) {
	accountID := c.Param("id")

	milestones, err := h.queryService.ListMilestones(c.Request.Context(), accountID)
	if err != nil {
		h.writeError(c, "查询里程碑失败", accountID, err)
		return
	}

	response.Success(c, milestones)
}

// Reconcile 余额与流水对账
func (h *PointsHandler) Reconcile(c *gin.Context) {
	accountID := c.Param("id")

	result, err := h.queryService.Reconcile(c.Request.Context(), accountID)
	if err != nil {
		h.writeError(c, "对账失败", accountID, err)
		return
	}

	response.Success(c, result)
}

// Leaderboard 排行榜查询
func (h *PointsHandler) Leaderboard(c *gin.Context) {
	n, _ := strconv.ParseInt(c.DefaultQuery("limit", "10"), 10, 64)

	entries, err := h.queryService.Leaderboard(c.Request.Context(), n)
	if err != nil {
		logger.Error(c.Request.Context(), "查询排行榜失败", "error", err)
		response.ErrorWithStatus(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}

	response.Success(c, entries)
}

func (h *PointsHandler) writeError(c *gin.Context, msg, accountID string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrAccountNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrAccountSuspended):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrUnknownActionKind), errors.Is(err, domain.ErrInvalidLevelTable):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrWriteConflict):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		logger.Error(c.Request.Context(), msg, "account_id", accountID, "error", err)
	}
	response.ErrorWithStatus(c, status, err.Error(), nil)
}
