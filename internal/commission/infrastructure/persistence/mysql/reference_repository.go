package mysql

import (
	"context"
	"fmt"

	"github.com/wyfcoding/commissionhub/internal/commission/domain"
	"github.com/wyfcoding/commissionhub/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type orderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(gormDB *gorm.DB) domain.OrderRepository {
	return &orderRepository{db: gormDB}
}

func (r *orderRepository) Get(ctx context.Context, id uint64) (*domain.Order, error) {
	var po OrderPO
	if err := db.Conn(ctx, r.db).First(&po, id).Error; err != nil {
		return nil, translate(err, fmt.Sprintf("order %d", id))
	}
	return po.ToDomain(), nil
}

type currencyPairRepository struct {
	db *gorm.DB
}

func NewCurrencyPairRepository(gormDB *gorm.DB) domain.CurrencyPairRepository {
	return &currencyPairRepository{db: gormDB}
}

func (r *currencyPairRepository) Get(ctx context.Context, id uint64) (*domain.CurrencyPair, error) {
	var po CurrencyPairPO
	if err := db.Conn(ctx, r.db).First(&po, id).Error; err != nil {
		return nil, translate(err, fmt.Sprintf("currency pair %d", id))
	}
	return po.ToDomain(), nil
}

type pairConfigRepository struct {
	db *gorm.DB
}

func NewPairConfigRepository(gormDB *gorm.DB) domain.PairConfigRepository {
	return &pairConfigRepository{db: gormDB}
}

func (r *pairConfigRepository) Get(ctx context.Context, exchangeHouseID, currencyPairID uint64) (*domain.PairConfig, error) {
	var po PairConfigPO
	err := db.Conn(ctx, r.db).
		Where("exchange_house_id = ? AND currency_pair_id = ?", exchangeHouseID, currencyPairID).
		First(&po).Error
	if err != nil {
		err = translate(err, fmt.Sprintf("pricing config for exchange house %d pair %d", exchangeHouseID, currencyPairID))
		if domain.KindOf(err) == domain.KindNotFound {
			// 未配置定价即视为配置缺失
			return nil, domain.WrapError(domain.KindInvalidPricingConfig, err, "exchange house %d has no pricing config for pair %d", exchangeHouseID, currencyPairID)
		}
		return nil, err
	}
	return po.ToDomain(), nil
}

type exchangeHouseRepository struct {
	db *gorm.DB
}

func NewExchangeHouseRepository(gormDB *gorm.DB) domain.ExchangeHouseRepository {
	return &exchangeHouseRepository{db: gormDB}
}

func (r *exchangeHouseRepository) Get(ctx context.Context, id uint64) (*domain.ExchangeHouse, error) {
	var po ExchangeHousePO
	if err := db.Conn(ctx, r.db).First(&po, id).Error; err != nil {
		return nil, translate(err, fmt.Sprintf("exchange house %d", id))
	}
	return po.ToDomain(), nil
}

func (r *exchangeHouseRepository) GetForUpdate(ctx context.Context, id uint64) (*domain.ExchangeHouse, error) {
	var po ExchangeHousePO
	err := db.Conn(ctx, r.db).Clauses(clause.Locking{Strength: "UPDATE"}).First(&po, id).Error
	if err != nil {
		return nil, translate(err, fmt.Sprintf("exchange house %d", id))
	}
	return po.ToDomain(), nil
}

func (r *exchangeHouseRepository) ListWithPendingCommissions(ctx context.Context, period domain.Period) ([]uint64, error) {
	from, to := period.Bounds()
	var ids []uint64
	err := db.Conn(ctx, r.db).Model(&CommissionPO{}).
		Where("type = ? AND status = ? AND created_at >= ? AND created_at < ?",
			domain.CommissionTypePlatform, domain.CommissionStatusPending, from, to).
		Distinct("exchange_house_id").
		Order("exchange_house_id").
		Pluck("exchange_house_id", &ids).Error
	if err != nil {
		return nil, translate(err, "commissions")
	}
	return ids, nil
}
