// Package metrics 提供 Prometheus 指标定义与暴露
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/wyfcoding/commissionhub/pkg/logger"
)

// Metrics 指标集合，nil 接收者上的记录方法为空操作
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// 佣金计算次数，按佣金类型与是否促销
	CommissionsCalculated *prometheus.CounterVec
	// 付款请求状态迁移次数
	PaymentTransitions *prometheus.CounterVec
	// 对账/清理结果计数
	ReconciliationRows *prometheus.CounterVec
	// 设置缓存命中
	SettingsCacheLookups *prometheus.CounterVec
}

// New 创建指标实例并注册到 registerer
func New(serviceName string, registerer prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "exchange",
			Subsystem: serviceName,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "exchange",
			Subsystem: serviceName,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
		CommissionsCalculated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "exchange",
			Subsystem: serviceName,
			Name:      "commissions_calculated_total",
			Help:      "Commission rows created by the calculator",
		}, []string{"type", "promo"}),
		PaymentTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "exchange",
			Subsystem: serviceName,
			Name:      "payment_transitions_total",
			Help:      "Commission payment request status transitions",
		}, []string{"from", "to"}),
		ReconciliationRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "exchange",
			Subsystem: serviceName,
			Name:      "reconciliation_rows_total",
			Help:      "Rows handled by maintenance operations",
		}, []string{"operation", "outcome"}),
		SettingsCacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "exchange",
			Subsystem: serviceName,
			Name:      "settings_cache_lookups_total",
			Help:      "Settings cache lookups by result",
		}, []string{"result"}),
	}

	collectors := []prometheus.Collector{
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.CommissionsCalculated,
		m.PaymentTransitions,
		m.ReconciliationRows,
		m.SettingsCacheLookups,
	}
	for _, c := range collectors {
		if err := registerer.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metric: %w", err)
		}
	}
	return m, nil
}

// RecordHTTPRequest 记录 HTTP 请求
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordCommission 记录一条佣金行
func (m *Metrics) RecordCommission(commissionType string, promo bool) {
	if m == nil {
		return
	}
	m.CommissionsCalculated.WithLabelValues(commissionType, strconv.FormatBool(promo)).Inc()
}

// RecordTransition 记录状态迁移
func (m *Metrics) RecordTransition(from, to string) {
	if m == nil {
		return
	}
	m.PaymentTransitions.WithLabelValues(from, to).Inc()
}

// RecordReconciliation 记录维护操作结果
func (m *Metrics) RecordReconciliation(operation string, fixed, skipped, failed int) {
	if m == nil {
		return
	}
	m.ReconciliationRows.WithLabelValues(operation, "fixed").Add(float64(fixed))
	m.ReconciliationRows.WithLabelValues(operation, "skipped").Add(float64(skipped))
	m.ReconciliationRows.WithLabelValues(operation, "failed").Add(float64(failed))
}

// RecordCacheLookup 记录缓存命中情况
func (m *Metrics) RecordCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.SettingsCacheLookups.WithLabelValues(result).Inc()
}

// Serve 启动 Prometheus HTTP 服务，阻塞直到 ctx 取消
func Serve(ctx context.Context, port int, path string, gatherer prometheus.Gatherer) error {
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info(ctx, "starting prometheus server", "addr", srv.Addr, "path", path)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
