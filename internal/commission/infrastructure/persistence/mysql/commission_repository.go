package mysql

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/commissionhub/internal/commission/domain"
	"github.com/wyfcoding/commissionhub/pkg/db"
	"gorm.io/gorm"
)

type commissionRepository struct {
	db *gorm.DB
}

func NewCommissionRepository(gormDB *gorm.DB) domain.CommissionRepository {
	return &commissionRepository{db: gormDB}
}

func (r *commissionRepository) SaveBatch(ctx context.Context, rows []*domain.Commission) error {
	if len(rows) == 0 {
		return nil
	}
	pos := make([]*CommissionPO, len(rows))
	for i, c := range rows {
		pos[i] = &CommissionPO{}
		pos[i].FromDomain(c)
	}
	if err := db.Conn(ctx, r.db).Create(&pos).Error; err != nil {
		return translate(err, fmt.Sprintf("commissions for order %d", rows[0].OrderID))
	}
	for i := range rows {
		rows[i].ID = pos[i].ID
	}
	return nil
}

func (r *commissionRepository) ListByOrder(ctx context.Context, orderID uint64) ([]*domain.Commission, error) {
	var pos []CommissionPO
	if err := db.Conn(ctx, r.db).Where("order_id = ?", orderID).Order("id").Find(&pos).Error; err != nil {
		return nil, translate(err, "commissions")
	}
	out := make([]*domain.Commission, 0, len(pos))
	for i := range pos {
		out = append(out, pos[i].ToDomain())
	}
	return out, nil
}

// pendingScope 平台佣金、pending、指定交易所、创建时间在周期内
func pendingScope(filter domain.CommissionFilter) func(*gorm.DB) *gorm.DB {
	from, to := filter.Period.Bounds()
	return func(tx *gorm.DB) *gorm.DB {
		return tx.Where("exchange_house_id = ? AND type = ? AND status = ? AND created_at >= ? AND created_at < ?",
			filter.ExchangeHouseID, string(domain.CommissionTypePlatform), string(domain.CommissionStatusPending), from, to)
	}
}

type pendingSumRow struct {
	TotalAmount decimal.Decimal
	OrderCount  int64
	TotalVolume decimal.Decimal
}

func (r *commissionRepository) SumPending(ctx context.Context, filter domain.CommissionFilter) (domain.PendingTotals, error) {
	var row pendingSumRow
	err := db.Conn(ctx, r.db).Model(&CommissionPO{}).
		Scopes(pendingScope(filter)).
		Select("COALESCE(SUM(amount), 0) AS total_amount, COUNT(DISTINCT order_id) AS order_count, COALESCE(SUM(base_amount), 0) AS total_volume").
		Scan(&row).Error
	if err != nil {
		return domain.PendingTotals{}, translate(err, "commissions")
	}
	return domain.PendingTotals{
		TotalAmount: row.TotalAmount,
		OrderCount:  row.OrderCount,
		TotalVolume: row.TotalVolume,
	}, nil
}

func (r *commissionRepository) MarkPaid(ctx context.Context, filter domain.CommissionFilter, paidAt time.Time) (int64, error) {
	res := db.Conn(ctx, r.db).Model(&CommissionPO{}).
		Scopes(pendingScope(filter)).
		Updates(map[string]any{
			"status":  string(domain.CommissionStatusPaid),
			"paid_at": paidAt,
		})
	if res.Error != nil {
		return 0, translate(res.Error, "commissions")
	}
	return res.RowsAffected, nil
}
