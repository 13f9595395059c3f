package application

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/commissionhub/internal/settings/domain"
	"github.com/wyfcoding/commissionhub/internal/settings/infrastructure/cache"
	"github.com/wyfcoding/commissionhub/internal/settings/infrastructure/persistence/mysql"
	"github.com/wyfcoding/commissionhub/pkg/metrics"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openStore(t *testing.T) (domain.Store, *gorm.DB) {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "settings.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(&mysql.SettingPO{}))
	return mysql.NewSettingStore(gdb), gdb
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type countingStore struct {
	domain.Store
	gets int
}

func (s *countingStore) Get(ctx context.Context, key string) (*domain.Setting, error) {
	s.gets++
	return s.Store.Get(ctx, key)
}

type brokenCache struct{ domain.Cache }

func (brokenCache) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("connection refused")
}

func (brokenCache) Delete(context.Context, ...string) error {
	return errors.New("connection refused")
}

func (brokenCache) Set(context.Context, string, string, time.Duration) error {
	return errors.New("connection refused")
}

func (brokenCache) Add(context.Context, string, string, time.Duration) (bool, error) {
	return false, errors.New("connection refused")
}

// pausingStore 第一次 Get 读到结果后停住，直到 release 关闭
type pausingStore struct {
	domain.Store
	once    sync.Once
	loaded  chan struct{}
	release chan struct{}
}

func (s *pausingStore) Get(ctx context.Context, key string) (*domain.Setting, error) {
	v, err := s.Store.Get(ctx, key)
	s.once.Do(func() {
		close(s.loaded)
		<-s.release
	})
	return v, err
}

func TestProviderReadThrough(t *testing.T) {
	ctx := context.Background()
	base, _ := openStore(t)
	store := &countingStore{Store: base}
	m, err := metrics.New("settings_test", prometheus.NewRegistry())
	require.NoError(t, err)
	p := NewProvider(store, cache.NewMemoryCache(time.Minute), time.Minute, decimal.RequireFromString("1.5"), m, discardLogger())

	rate, err := p.PlatformRate(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1.5", rate.String(), "default when unset")

	_, err = p.Set(ctx, domain.KeyPlatformCommissionRate, "2.25", domain.TypeDecimal)
	require.NoError(t, err)

	rate, err = p.PlatformRate(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2.25", rate.String())
	gets := store.gets

	rate, err = p.PlatformRate(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2.25", rate.String())
	assert.Equal(t, gets, store.gets, "second read served from cache")
	// Set 已刷新缓存，后两次读取都命中
	assert.Equal(t, float64(2), testutil.ToFloat64(m.SettingsCacheLookups.WithLabelValues("hit")))
}

func TestProviderSetDuringReloadKeepsNewValue(t *testing.T) {
	ctx := context.Background()
	base, _ := openStore(t)
	require.NoError(t, base.Save(ctx, &domain.Setting{Key: domain.KeyPlatformCommissionRate, Value: "1", Type: domain.TypeDecimal}))
	store := &pausingStore{Store: base, loaded: make(chan struct{}), release: make(chan struct{})}
	p := NewProvider(store, cache.NewMemoryCache(time.Hour), time.Hour, decimal.Zero, nil, discardLogger())

	stale := make(chan decimal.Decimal, 1)
	go func() {
		rate, err := p.PlatformRate(ctx)
		assert.NoError(t, err)
		stale <- rate
	}()

	// 读取方已拿到旧值但尚未回填缓存
	<-store.loaded
	_, err := p.Set(ctx, domain.KeyPlatformCommissionRate, "5", domain.TypeDecimal)
	require.NoError(t, err)
	close(store.release)
	assert.Equal(t, "1", (<-stale).String())

	rate, err := p.PlatformRate(ctx)
	require.NoError(t, err)
	assert.Equal(t, "5", rate.String(), "late reload must not overwrite a newer write")
}

func TestMemoryCacheAddOnlyWhenAbsent(t *testing.T) {
	ctx := context.Background()
	c := cache.NewMemoryCache(time.Hour)

	added, err := c.Add(ctx, "k", "new", time.Hour)
	require.NoError(t, err)
	assert.True(t, added)

	added, err = c.Add(ctx, "k", "old", time.Hour)
	require.NoError(t, err)
	assert.False(t, added)

	val, found, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "new", val)
}

func TestProviderSetRefreshesCache(t *testing.T) {
	ctx := context.Background()
	store, _ := openStore(t)
	p := NewProvider(store, cache.NewMemoryCache(time.Hour), time.Hour, decimal.Zero, nil, discardLogger())

	_, err := p.Set(ctx, domain.KeyMaintenanceMode, "false", domain.TypeBoolean)
	require.NoError(t, err)
	assert.False(t, p.MaintenanceMode(ctx))

	_, err = p.Set(ctx, domain.KeyMaintenanceMode, "true", domain.TypeBoolean)
	require.NoError(t, err)
	assert.True(t, p.MaintenanceMode(ctx), "write must be visible immediately")

	settings, err := p.List(ctx)
	require.NoError(t, err)
	require.Len(t, settings, 1)
	assert.Equal(t, domain.TypeBoolean, settings[0].Type)
}

func TestProviderSetValidatesType(t *testing.T) {
	ctx := context.Background()
	store, _ := openStore(t)
	p := NewProvider(store, cache.NewMemoryCache(time.Hour), time.Hour, decimal.Zero, nil, discardLogger())

	tests := []struct {
		value string
		typ   domain.ValueType
	}{
		{value: "abc", typ: domain.TypeDecimal},
		{value: "1.5", typ: domain.TypeInteger},
		{value: "maybe", typ: domain.TypeBoolean},
		{value: "{", typ: domain.TypeJSON},
		{value: "x", typ: "blob"},
	}
	for _, tt := range tests {
		_, err := p.Set(ctx, "k", tt.value, tt.typ)
		assert.ErrorIs(t, err, domain.ErrInvalidValue, "%s as %s", tt.value, tt.typ)
	}

	_, err := p.Set(ctx, " ", "1", domain.TypeInteger)
	assert.ErrorIs(t, err, domain.ErrInvalidValue)
}

func TestProviderCacheFailure(t *testing.T) {
	ctx := context.Background()
	store, _ := openStore(t)
	require.NoError(t, store.Save(ctx, &domain.Setting{Key: "greeting", Value: "hola", Type: domain.TypeString}))
	p := NewProvider(store, brokenCache{}, time.Hour, decimal.Zero, nil, discardLogger())

	val, err := p.Get(ctx, "greeting", "hi")
	require.NoError(t, err)
	assert.Equal(t, "hola", val, "cache errors fall back to the store")

	_, err = p.Set(ctx, "greeting", "buenas", domain.TypeString)
	require.Error(t, err, "set must not report success when the cache refresh fails")
}

func TestProviderClearCache(t *testing.T) {
	ctx := context.Background()
	base, gdb := openStore(t)
	store := &countingStore{Store: base}
	p := NewProvider(store, cache.NewMemoryCache(time.Hour), time.Hour, decimal.Zero, nil, discardLogger())

	_, err := p.Set(ctx, "a", "1", domain.TypeInteger)
	require.NoError(t, err)
	_, err = p.Get(ctx, "a", "")
	require.NoError(t, err)

	// 绕过 Provider 直接改库，缓存仍返回旧值
	require.NoError(t, gdb.Model(&mysql.SettingPO{}).Where("`key` = ?", "a").Update("value", "2").Error)
	val, _ := p.Get(ctx, "a", "")
	assert.Equal(t, "1", val)

	require.NoError(t, p.ClearCache(ctx, "a"))
	val, _ = p.Get(ctx, "a", "")
	assert.Equal(t, "2", val)

	require.NoError(t, p.ClearCache(ctx))
	before := store.gets
	_, _ = p.Get(ctx, "a", "")
	assert.Equal(t, before+1, store.gets)
}
