package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/commissionhub/internal/settings/domain"
	"github.com/wyfcoding/commissionhub/pkg/metrics"
)

// Provider 平台设置读取与写入。读走缓存，未命中回源后仅在缓存为空时回填；
// 写入落库后直接覆盖缓存，回源期间发生的写入不会被旧值盖掉。
type Provider struct {
	store       domain.Store
	cache       domain.Cache
	ttl         time.Duration
	defaultRate decimal.Decimal
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

func NewProvider(store domain.Store, cache domain.Cache, ttl time.Duration, defaultRate decimal.Decimal, m *metrics.Metrics, logger *slog.Logger) *Provider {
	return &Provider{
		store:       store,
		cache:       cache,
		ttl:         ttl,
		defaultRate: defaultRate,
		metrics:     m,
		logger:      logger.With("service", "settings_application"),
	}
}

// Get 读取设置，不存在时返回 def
func (p *Provider) Get(ctx context.Context, key, def string) (string, error) {
	if val, ok := p.fromCache(ctx, key); ok {
		return val, nil
	}

	s, err := p.store.Get(ctx, key)
	if errors.Is(err, domain.ErrNotFound) {
		return def, nil
	}
	if err != nil {
		return def, fmt.Errorf("load setting %s: %w", key, err)
	}

	if _, err := p.cache.Add(ctx, key, s.Value, p.ttl); err != nil {
		p.logger.WarnContext(ctx, "failed to populate settings cache", "key", key, "error", err)
	}
	return s.Value, nil
}

func (p *Provider) fromCache(ctx context.Context, key string) (string, bool) {
	val, found, err := p.cache.Get(ctx, key)
	if err != nil {
		// 缓存不可用按未命中处理，回源读取
		p.logger.WarnContext(ctx, "settings cache read failed", "key", key, "error", err)
		found = false
	}
	p.metrics.RecordCacheLookup(found)
	return val, found
}

// GetDecimal 读取小数设置
func (p *Provider) GetDecimal(ctx context.Context, key string, def decimal.Decimal) (decimal.Decimal, error) {
	raw, err := p.Get(ctx, key, "")
	if err != nil {
		return def, err
	}
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return def, fmt.Errorf("%w: %s=%q: %v", domain.ErrInvalidValue, key, raw, err)
	}
	return d, nil
}

// GetBool 读取布尔设置
func (p *Provider) GetBool(ctx context.Context, key string, def bool) (bool, error) {
	raw, err := p.Get(ctx, key, "")
	if err != nil {
		return def, err
	}
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	b, err := domain.ParseBool(raw)
	if err != nil {
		return def, fmt.Errorf("%w: %s: %v", domain.ErrInvalidValue, key, err)
	}
	return b, nil
}

// Set 写入设置并在返回前刷新缓存
func (p *Provider) Set(ctx context.Context, key, value string, typ domain.ValueType) (*domain.Setting, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("%w: key is required", domain.ErrInvalidValue)
	}
	if typ == "" {
		typ = domain.TypeString
	}
	if err := typ.Check(value); err != nil {
		return nil, err
	}

	s := &domain.Setting{Key: key, Value: value, Type: typ, UpdatedAt: time.Now().UTC()}
	if err := p.store.Save(ctx, s); err != nil {
		return nil, fmt.Errorf("save setting %s: %w", key, err)
	}
	if err := p.cache.Set(ctx, key, value, p.ttl); err != nil {
		if delErr := p.cache.Delete(ctx, key); delErr != nil {
			p.logger.ErrorContext(ctx, "failed to evict settings cache", "key", key, "error", delErr)
		}
		return nil, fmt.Errorf("setting %s saved but cache refresh failed: %w", key, err)
	}

	p.logger.InfoContext(ctx, "setting updated", "key", key, "type", typ)
	return s, nil
}

// ClearCache 清除指定 key 的缓存，不传 key 时清空全部
func (p *Provider) ClearCache(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return p.cache.Clear(ctx)
	}
	return p.cache.Delete(ctx, keys...)
}

// List 列出全部设置，直接读库
func (p *Provider) List(ctx context.Context) ([]*domain.Setting, error) {
	return p.store.List(ctx)
}

// PlatformRate 平台佣金费率（百分比），未配置时取默认值
func (p *Provider) PlatformRate(ctx context.Context) (decimal.Decimal, error) {
	rate, err := p.GetDecimal(ctx, domain.KeyPlatformCommissionRate, p.defaultRate)
	if err != nil {
		return decimal.Zero, err
	}
	return rate, nil
}

// MaintenanceMode 读取失败时按未开启处理
func (p *Provider) MaintenanceMode(ctx context.Context) bool {
	on, err := p.GetBool(ctx, domain.KeyMaintenanceMode, false)
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to read maintenance mode", "error", err)
		return false
	}
	return on
}
