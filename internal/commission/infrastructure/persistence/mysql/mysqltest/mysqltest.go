// Package mysqltest 为上层测试提供基于 sqlite 的佣金库，表结构与 MySQL 迁移一致
package mysqltest

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/commissionhub/internal/commission/domain"
	"github.com/wyfcoding/commissionhub/internal/commission/infrastructure/persistence/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB 已迁移的测试库
type DB struct {
	*gorm.DB
	t testing.TB
}

// Open 在临时目录创建 sqlite 库。单连接使事务串行执行，
// 与 MySQL 行锁下的结果一致。
func Open(t testing.TB, extraModels ...any) *DB {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "commission.db")), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, gdb.AutoMigrate(append(mysql.Models(), extraModels...)...))
	return &DB{DB: gdb, t: t}
}

// AddOrder 写入订单，订单由上游系统维护，这里直接落表
func (d *DB) AddOrder(o domain.Order) uint64 {
	d.t.Helper()
	po := &mysql.OrderPO{
		ID:              o.ID,
		ExchangeHouseID: o.ExchangeHouseID,
		CurrencyPairID:  o.CurrencyPairID,
		BaseAmount:      o.BaseAmount,
		QuoteAmount:     o.QuoteAmount,
		ExchangeRate:    o.ExchangeRate,
		Status:          string(o.Status),
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.CreatedAt,
	}
	require.NoError(d.t, d.Create(po).Error)
	return po.ID
}

func (d *DB) AddCurrencyPair(p domain.CurrencyPair) uint64 {
	d.t.Helper()
	po := &mysql.CurrencyPairPO{
		ID:              p.ID,
		BaseCurrency:    p.BaseCurrency,
		QuoteCurrency:   p.QuoteCurrency,
		Symbol:          p.Symbol,
		CurrentRate:     p.CurrentRate,
		CalculationType: string(p.CalculationType),
	}
	require.NoError(d.t, d.Create(po).Error)
	return po.ID
}

func (d *DB) AddPairConfig(c domain.PairConfig) uint64 {
	d.t.Helper()
	po := &mysql.PairConfigPO{}
	po.FromDomain(&c)
	require.NoError(d.t, d.Create(po).Error)
	// is_active 带 default:true，零值在插入时会被忽略
	if !c.IsActive {
		require.NoError(d.t, d.Model(po).Update("is_active", false).Error)
	}
	return po.ID
}

func (d *DB) AddExchangeHouse(h domain.ExchangeHouse) uint64 {
	d.t.Helper()
	po := &mysql.ExchangeHousePO{
		ID:                  h.ID,
		Name:                h.Name,
		Status:              string(h.Status),
		ZeroCommissionPromo: h.ZeroCommissionPromo,
		PromoExpiresAt:      h.PromoExpiresAt,
	}
	require.NoError(d.t, d.Create(po).Error)
	return po.ID
}

// AddPayment 绕过仓储直接写入付款请求，保留调用方给定的状态、周期与时间
func (d *DB) AddPayment(p domain.CommissionPayment) uint64 {
	d.t.Helper()
	po := &mysql.CommissionPaymentPO{}
	po.FromDomain(&p)
	if p.DeletedAt != nil {
		po.DeletedAt = gorm.DeletedAt{Time: *p.DeletedAt, Valid: true}
	}
	require.NoError(d.t, d.Create(po).Error)
	return po.ID
}

// Commissions 全部佣金行，按 ID 排序
func (d *DB) Commissions() []domain.Commission {
	d.t.Helper()
	var pos []mysql.CommissionPO
	require.NoError(d.t, d.Order("id").Find(&pos).Error)
	out := make([]domain.Commission, 0, len(pos))
	for i := range pos {
		out = append(out, *pos[i].ToDomain())
	}
	return out
}

// Payment 按 ID 读取付款请求，包含已软删除的行
func (d *DB) Payment(id uint64) (domain.CommissionPayment, bool) {
	d.t.Helper()
	var pos []mysql.CommissionPaymentPO
	require.NoError(d.t, d.Unscoped().Where("id = ?", id).Limit(1).Find(&pos).Error)
	if len(pos) == 0 {
		return domain.CommissionPayment{}, false
	}
	return *pos[0].ToDomain(), true
}
