package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/phuslu/log"
	"github.com/shopspring/decimal"

	"ImpactRadar/pkg/database"
	"ImpactRadar/pkg/engine"
	"ImpactRadar/pkg/jobs"
	"ImpactRadar/pkg/model"
	"ImpactRadar/pkg/monitor"
	"ImpactRadar/pkg/portfolio"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// Handlers API处理程序
type Handlers struct {
	store    *database.Store
	pipeline *engine.Pipeline
	analyzer *portfolio.Analyzer
	queue    jobs.Queue
	monitor  *monitor.Monitor
}

// NewHandlers 创建新的API处理程序
func NewHandlers(
	store *database.Store,
	pipeline *engine.Pipeline,
	analyzer *portfolio.Analyzer,
	queue jobs.Queue,
	mon *monitor.Monitor,
) *Handlers {
	return &Handlers{
		store:    store,
		pipeline: pipeline,
		analyzer: analyzer,
		queue:    queue,
		monitor:  mon,
	}
}

// HealthCheck 健康检查处理程序
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ReadinessCheck 数据库可用时就绪
func (h *Handlers) ReadinessCheck(c *gin.Context) {
	if err := h.store.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// Status 各组件健康状态
func (h *Handlers) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     h.monitor.Overall(),
		"components": h.monitor.GetAllStatus(),
	})
}

// IngestArticle 文章入库，重复 URL 返回已有文章
func (h *Handlers) IngestArticle(c *gin.Context) {
	var req engine.IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "无效的请求参数: "+err.Error())
		return
	}
	article, created, err := h.pipeline.Ingest(c.Request.Context(), req)
	if err != nil {
		respondError(c, "文章入库失败", err)
		return
	}
	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{"data": article, "duplicate": !created})
}

// GetArticle 获取文章
func (h *Handlers) GetArticle(c *gin.Context) {
	article, err := h.store.GetArticle(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "获取文章失败", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": article})
}

// GetSignal 获取文章信号，尚未分析时返回 404
func (h *Handlers) GetSignal(c *gin.Context) {
	sig, err := h.store.GetSignal(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "获取文章信号失败", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": sig})
}

// UserRequest 创建用户请求
type UserRequest struct {
	Username    string              `json:"username" binding:"required"`
	Email       string              `json:"email"`
	RiskProfile model.RiskProfile   `json:"risk_profile"`
	CashBuffer  decimal.NullDecimal `json:"cash_buffer"`
}

// CreateUser 创建用户
func (h *Handlers) CreateUser(c *gin.Context) {
	var req UserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "无效的请求参数: "+err.Error())
		return
	}
	if req.RiskProfile != "" && !req.RiskProfile.Valid() {
		badRequest(c, "未知的风险偏好: "+string(req.RiskProfile))
		return
	}
	user := &model.User{
		Username:    strings.TrimSpace(req.Username),
		Email:       req.Email,
		RiskProfile: req.RiskProfile,
		CashBuffer:  req.CashBuffer.Decimal,
	}
	if err := h.store.CreateUser(c.Request.Context(), user); err != nil {
		respondError(c, "创建用户失败", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": user})
}

// GetUser 获取用户
func (h *Handlers) GetUser(c *gin.Context) {
	user, err := h.store.GetUser(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		respondError(c, "获取用户失败", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": user})
}

// HoldingRequest 新建或更新持仓
type HoldingRequest struct {
	Ticker     string              `json:"ticker" binding:"required"`
	Shares     decimal.Decimal     `json:"shares"`
	CostBasis  decimal.NullDecimal `json:"cost_basis"`
	AcquiredAt *time.Time          `json:"acquired_at"`
	Intent     model.HoldingIntent `json:"intent"`
}

func (r HoldingRequest) validate() error {
	switch {
	case strings.TrimSpace(r.Ticker) == "":
		return errors.New("ticker 不能为空")
	case r.Shares.IsNegative():
		return errors.New("shares 不能为负")
	case r.CostBasis.Valid && r.CostBasis.Decimal.IsNegative():
		return errors.New("cost_basis 不能为负")
	case r.Intent != "" && !r.Intent.Valid():
		return errors.New("未知的持仓意图: " + string(r.Intent))
	}
	return nil
}

func (r HoldingRequest) holding(userID string) *model.Holding {
	return &model.Holding{
		UserID:     userID,
		Ticker:     strings.TrimSpace(r.Ticker),
		Shares:     r.Shares,
		CostBasis:  r.CostBasis,
		AcquiredAt: r.AcquiredAt,
		Intent:     r.Intent,
	}
}

// ListHoldings 用户持仓
func (h *Handlers) ListHoldings(c *gin.Context) {
	holdings, err := h.store.ListHoldings(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		respondError(c, "查询持仓失败", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": holdings})
}

// CreateHolding 新建持仓并投递影响分重算
func (h *Handlers) CreateHolding(c *gin.Context) {
	ctx := c.Request.Context()
	userID := c.Param("user_id")
	var req HoldingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "无效的请求参数: "+err.Error())
		return
	}
	if err := req.validate(); err != nil {
		badRequest(c, err.Error())
		return
	}
	if _, err := h.store.GetUser(ctx, userID); err != nil {
		respondError(c, "获取用户失败", err)
		return
	}

	holding := req.holding(userID)
	if err := h.store.CreateHolding(ctx, holding); err != nil {
		respondError(c, "创建持仓失败", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": holding, "job": h.submitUserImpacts(c, userID)})
}

// UpdateHolding 更新持仓并投递影响分重算
func (h *Handlers) UpdateHolding(c *gin.Context) {
	ctx := c.Request.Context()
	userID := c.Param("user_id")
	var req HoldingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "无效的请求参数: "+err.Error())
		return
	}
	if err := req.validate(); err != nil {
		badRequest(c, err.Error())
		return
	}
	current, ok := h.ownedHolding(c, userID, c.Param("holding_id"))
	if !ok {
		return
	}

	holding := req.holding(userID)
	holding.ID = current.ID
	if holding.Intent == "" {
		holding.Intent = current.Intent
	}
	if err := h.store.UpdateHolding(ctx, holding); err != nil {
		respondError(c, "更新持仓失败", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": holding, "job": h.submitUserImpacts(c, userID)})
}

// DeleteHolding 删除持仓，其影响分级联删除
func (h *Handlers) DeleteHolding(c *gin.Context) {
	userID := c.Param("user_id")
	holding, ok := h.ownedHolding(c, userID, c.Param("holding_id"))
	if !ok {
		return
	}
	if err := h.store.DeleteHolding(c.Request.Context(), holding.ID); err != nil {
		respondError(c, "删除持仓失败", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted", "job": h.submitUserImpacts(c, userID)})
}

// ownedHolding 校验持仓属于该用户，不属于时按不存在处理
func (h *Handlers) ownedHolding(c *gin.Context, userID, holdingID string) (*model.Holding, bool) {
	holding, err := h.store.GetHolding(c.Request.Context(), holdingID)
	if err == nil && holding.UserID != userID {
		err = database.ErrNotFound
	}
	if err != nil {
		respondError(c, "获取持仓失败", err)
		return nil, false
	}
	return holding, true
}

// submitUserImpacts 投递重算任务，失败不影响请求本身
func (h *Handlers) submitUserImpacts(c *gin.Context, userID string) *jobs.Handle {
	handle, err := h.queue.Submit(c.Request.Context(), jobs.KindUserImpacts, userID, jobs.UserPayload{UserID: userID})
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("投递影响分重算任务失败")
		return nil
	}
	return &handle
}

// ListImpacts 分页查询影响分，可按最小绝对分数与代码过滤
func (h *Handlers) ListImpacts(c *gin.Context) {
	filter := database.ImpactFilter{
		UserID: c.Param("user_id"),
		Ticker: strings.TrimSpace(c.Query("ticker")),
	}
	var err error
	if v := c.Query("min_impact_score"); v != "" {
		if filter.MinAbsScore, err = strconv.ParseFloat(v, 64); err != nil || filter.MinAbsScore < 0 {
			badRequest(c, "min_impact_score 必须为非负数")
			return
		}
	}
	if filter.Limit, filter.Offset, err = pagination(c); err != nil {
		badRequest(c, err.Error())
		return
	}

	impacts, total, err := h.store.ListImpacts(c.Request.Context(), filter)
	if err != nil {
		respondError(c, "查询影响分失败", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data":   impacts,
		"total":  total,
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

// RecalculateUser 投递单个用户的影响分重算
func (h *Handlers) RecalculateUser(c *gin.Context) {
	userID := c.Param("user_id")
	if _, err := h.store.GetUser(c.Request.Context(), userID); err != nil {
		respondError(c, "获取用户失败", err)
		return
	}
	handle, err := h.queue.Submit(c.Request.Context(), jobs.KindUserImpacts, userID, jobs.UserPayload{UserID: userID})
	if err != nil {
		respondError(c, "投递重算任务失败", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job": handle})
}

// RecalculateAll 投递全量重算
func (h *Handlers) RecalculateAll(c *gin.Context) {
	handle, err := h.queue.Submit(c.Request.Context(), jobs.KindRecalculateAll, "all", struct{}{})
	if err != nil {
		respondError(c, "投递重算任务失败", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job": handle})
}

// Recommendations 组合分析；历史类比不可用时返回部分结果并标记 degraded
func (h *Handlers) Recommendations(c *gin.Context) {
	result, err := h.analyzer.Analyze(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		respondError(c, "组合分析失败", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": result})
}

// ListAlerts 用户最近的提醒
func (h *Handlers) ListAlerts(c *gin.Context) {
	limit, _, err := pagination(c)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	alerts, err := h.store.ListAlerts(c.Request.Context(), c.Param("user_id"), limit)
	if err != nil {
		respondError(c, "查询提醒失败", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": alerts})
}

func pagination(c *gin.Context) (int, int, error) {
	limit, offset := defaultPageSize, 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return 0, 0, errors.New("limit 必须为正整数")
		}
		limit = min(n, maxPageSize)
	}
	if v := c.Query("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return 0, 0, errors.New("offset 必须为非负整数")
		}
		offset = n
	}
	return limit, offset, nil
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

// respondError 按错误类型映射状态码
func respondError(c *gin.Context, msg string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, database.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, engine.ErrInvalidArticle):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.FullPath()).Msg(msg)
	}
	c.JSON(status, gin.H{"error": msg + ": " + err.Error()})
}
