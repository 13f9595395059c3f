// Package http 佣金结算管理 API
package http

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/wyfcoding/commissionhub/internal/commission/application"
	"github.com/wyfcoding/commissionhub/internal/commission/domain"
	settingsapp "github.com/wyfcoding/commissionhub/internal/settings/application"
	settingsdomain "github.com/wyfcoding/commissionhub/internal/settings/domain"
)

// Defaults 请求未指定时使用的参数
type Defaults struct {
	ScheduledMinAmount decimal.Decimal
	StalePendingMonths int
}

// Handler HTTP 处理器
type Handler struct {
	calculator  *application.CalculatorService
	aggregator  *application.AggregatorService
	lifecycle   *application.LifecycleService
	maintenance *application.ReconciliationService
	settings    *settingsapp.Provider
	defaults    Defaults
}

func NewHandler(
	calculator *application.CalculatorService,
	aggregator *application.AggregatorService,
	lifecycle *application.LifecycleService,
	maintenance *application.ReconciliationService,
	settings *settingsapp.Provider,
	defaults Defaults,
) *Handler {
	return &Handler{
		calculator:  calculator,
		aggregator:  aggregator,
		lifecycle:   lifecycle,
		maintenance: maintenance,
		settings:    settings,
		defaults:    defaults,
	}
}

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(router gin.IRouter) {
	api := router.Group("/api/v1")
	api.Use(MaintenanceGuard(h.settings.MaintenanceMode))

	commissions := api.Group("/commissions")
	{
		commissions.POST("/orders/:order_id/calculate", h.CalculateCommission) // 计算订单佣金
	}

	houses := api.Group("/exchange-houses")
	{
		houses.GET("/:id/pending-commissions", h.PreviewPending) // 预览周期内待结算金额
	}

	payments := api.Group("/payment-requests")
	{
		payments.POST("", h.GeneratePaymentRequest)       // 人工生成
		payments.POST("/batch", h.GenerateForPeriod)      // 批量生成
		payments.GET("", h.ListPaymentRequests)           // 分页查询
		payments.GET("/:id", h.GetPaymentRequest)         // 详情
		payments.DELETE("/:id", h.DeletePaymentRequest)   // 删除 pending 请求
		payments.POST("/:id/submit", h.SubmitPaymentInfo) // 交易所提交付款信息
		payments.POST("/:id/confirm", h.ConfirmPayment)   // 管理员确认
		payments.POST("/:id/reject", h.RejectPayment)     // 管理员驳回
	}

	maintenance := api.Group("/maintenance")
	{
		maintenance.POST("/deduplicate", h.DeduplicateOpenRequests)
		maintenance.POST("/purge", h.PurgeInvalidRequests)
		maintenance.POST("/repair-cascades", h.RepairPaidCascades)
	}

	settings := api.Group("/settings")
	{
		settings.GET("", h.ListSettings)
		settings.GET("/:key", h.GetSetting)
		settings.PUT("/:key", h.SetSetting)
		settings.POST("/cache/clear", h.ClearSettingsCache)
	}
}

func parseID(c *gin.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		writeError(c, domain.NewError(domain.KindValidation, "invalid %s %q", name, c.Param(name)))
		return 0, false
	}
	return id, true
}

// CalculateCommission 计算订单佣金，已计算过时返回已有结果
func (h *Handler) CalculateCommission(c *gin.Context) {
	orderID, ok := parseID(c, "order_id")
	if !ok {
		return
	}
	res, err := h.calculator.CalculateCommission(c.Request.Context(), orderID)
	if err != nil {
		writeError(c, err)
		return
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	c.JSON(status, toCalculationResponse(res))
}

// PreviewPending 预览交易所周期内待结算的平台佣金
func (h *Handler) PreviewPending(c *gin.Context) {
	houseID, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req PeriodRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		badRequest(c, err)
		return
	}
	period, err := req.period()
	if err != nil {
		writeError(c, err)
		return
	}
	totals, err := h.aggregator.PreviewPending(c.Request.Context(), houseID, period)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"exchange_house_id": houseID,
		"period_start":      req.PeriodStart,
		"period_end":        req.PeriodEnd,
		"total_amount":      totals.TotalAmount.StringFixed(domain.MoneyScale),
		"order_count":       totals.OrderCount,
		"total_volume":      totals.TotalVolume.StringFixed(domain.MoneyScale),
	})
}

// GeneratePaymentRequest 为单个交易所生成付款请求
func (h *Handler) GeneratePaymentRequest(c *gin.Context) {
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	period, err := req.period()
	if err != nil {
		writeError(c, err)
		return
	}
	p, err := h.aggregator.GeneratePaymentRequest(c.Request.Context(), req.ExchangeHouseID, period)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toPaymentResponse(p))
}

// GenerateForPeriod 批量生成，返回处理报告
func (h *Handler) GenerateForPeriod(c *gin.Context) {
	var req GenerateBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	period, err := req.period()
	if err != nil {
		writeError(c, err)
		return
	}
	minAmount := h.defaults.ScheduledMinAmount
	if req.MinAmount != "" {
		minAmount, err = decimal.NewFromString(req.MinAmount)
		if err != nil {
			writeError(c, domain.WrapError(domain.KindValidation, err, "invalid min_amount %q", req.MinAmount))
			return
		}
	}
	report, err := h.aggregator.GenerateForPeriod(c.Request.Context(), period, minAmount)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// ListPaymentRequests 按交易所和状态分页查询
func (h *Handler) ListPaymentRequests(c *gin.Context) {
	var houseID uint64
	if raw := c.Query("exchange_house_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(c, domain.NewError(domain.KindValidation, "invalid exchange_house_id %q", raw))
			return
		}
		houseID = id
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	rows, pagination, err := h.lifecycle.ListPaymentRequests(c.Request.Context(), houseID, domain.PaymentStatus(c.Query("status")), page, pageSize)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": toPaymentList(rows), "pagination": pagination})
}

// GetPaymentRequest 付款请求详情
func (h *Handler) GetPaymentRequest(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	p, err := h.lifecycle.GetPaymentRequest(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toPaymentResponse(p))
}

// DeletePaymentRequest 只能删除 pending 请求
func (h *Handler) DeletePaymentRequest(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.lifecycle.DeletePaymentRequest(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SubmitPaymentInfo 交易所提交付款方式与凭证
func (h *Handler) SubmitPaymentInfo(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req application.SubmitPaymentCommand
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	p, err := h.lifecycle.SubmitPaymentInfo(c.Request.Context(), id, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toPaymentResponse(p))
}

// ConfirmPayment 确认收款并级联结算平台佣金
func (h *Handler) ConfirmPayment(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req ConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.lifecycle.ConfirmPayment(c.Request.Context(), id, req.AdminID, req.Notes)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"payment":          toPaymentResponse(res.Payment),
		"commissions_paid": res.CommissionsPaid,
	})
}

// RejectPayment 驳回付款信息
func (h *Handler) RejectPayment(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req RejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	p, err := h.lifecycle.RejectPayment(c.Request.Context(), id, req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toPaymentResponse(p))
}

// bindOptional 允许空请求体
func bindOptional(c *gin.Context, v any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(v); err != nil {
		badRequest(c, err)
		return false
	}
	return true
}

func (h *Handler) runReport(c *gin.Context, run func(ctx context.Context) (*application.Report, error)) {
	report, err := run(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// DeduplicateOpenRequests 去重
func (h *Handler) DeduplicateOpenRequests(c *gin.Context) {
	var req DryRunRequest
	if !bindOptional(c, &req) {
		return
	}
	h.runReport(c, func(ctx context.Context) (*application.Report, error) {
		return h.maintenance.DeduplicateOpenRequests(ctx, req.DryRun)
	})
}

// PurgeInvalidRequests 清理无效 pending 请求
func (h *Handler) PurgeInvalidRequests(c *gin.Context) {
	var req PurgeRequest
	if !bindOptional(c, &req) {
		return
	}
	opts := application.PurgeOptions{
		DryRun:       req.DryRun,
		AgeMonths:    h.defaults.StalePendingMonths,
		ConfirmStale: req.ConfirmStale,
	}
	if req.AgeMonths != nil {
		opts.AgeMonths = *req.AgeMonths
	}
	h.runReport(c, func(ctx context.Context) (*application.Report, error) {
		return h.maintenance.PurgeInvalidRequests(ctx, opts)
	})
}

// RepairPaidCascades 补齐已 paid 请求的佣金级联
func (h *Handler) RepairPaidCascades(c *gin.Context) {
	var req DryRunRequest
	if !bindOptional(c, &req) {
		return
	}
	h.runReport(c, func(ctx context.Context) (*application.Report, error) {
		return h.maintenance.RepairPaidCascades(ctx, req.DryRun)
	})
}

// ListSettings 全部平台设置
func (h *Handler) ListSettings(c *gin.Context) {
	rows, err := h.settings.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": rows})
}

// GetSetting 经缓存读取单个设置
func (h *Handler) GetSetting(c *gin.Context) {
	key := c.Param("key")
	value, err := h.settings.Get(c.Request.Context(), key, "")
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "value": value})
}

// SetSetting 写入设置并失效缓存
func (h *Handler) SetSetting(c *gin.Context) {
	var req SetSettingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	s, err := h.settings.Set(c.Request.Context(), c.Param("key"), req.Value, settingsdomain.ValueType(strings.ToLower(req.Type)))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

// ClearSettingsCache 清除设置缓存
func (h *Handler) ClearSettingsCache(c *gin.Context) {
	var req ClearCacheRequest
	if !bindOptional(c, &req) {
		return
	}
	if err := h.settings.ClearCache(c.Request.Context(), req.Keys...); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cleared": len(req.Keys), "all": len(req.Keys) == 0})
}
