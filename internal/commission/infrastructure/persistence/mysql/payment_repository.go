package mysql

import (
	"context"
	"fmt"
	"time"

	"github.com/wyfcoding/commissionhub/internal/commission/domain"
	"github.com/wyfcoding/commissionhub/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type paymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(gormDB *gorm.DB) domain.PaymentRepository {
	return &paymentRepository{db: gormDB}
}

func (r *paymentRepository) Create(ctx context.Context, p *domain.CommissionPayment) error {
	po := &CommissionPaymentPO{}
	po.FromDomain(p)
	if err := db.Conn(ctx, r.db).Create(po).Error; err != nil {
		return translate(err, "commission payment")
	}
	p.ID = po.ID
	p.CreatedAt = po.CreatedAt.UTC()
	p.UpdatedAt = po.UpdatedAt.UTC()
	return nil
}

func (r *paymentRepository) Get(ctx context.Context, id uint64) (*domain.CommissionPayment, error) {
	var po CommissionPaymentPO
	if err := db.Conn(ctx, r.db).First(&po, id).Error; err != nil {
		return nil, translate(err, fmt.Sprintf("payment request %d", id))
	}
	return po.ToDomain(), nil
}

func (r *paymentRepository) GetForUpdate(ctx context.Context, id uint64) (*domain.CommissionPayment, error) {
	var po CommissionPaymentPO
	err := db.Conn(ctx, r.db).Clauses(clause.Locking{Strength: "UPDATE"}).First(&po, id).Error
	if err != nil {
		return nil, translate(err, fmt.Sprintf("payment request %d", id))
	}
	return po.ToDomain(), nil
}

func (r *paymentRepository) ListByHouseForUpdate(ctx context.Context, exchangeHouseID uint64) ([]*domain.CommissionPayment, error) {
	var pos []CommissionPaymentPO
	err := db.Conn(ctx, r.db).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("exchange_house_id = ?", exchangeHouseID).
		Order("id").
		Find(&pos).Error
	if err != nil {
		return nil, translate(err, "commission payments")
	}
	return toDomainList(pos), nil
}

func (r *paymentRepository) List(ctx context.Context, filter domain.PaymentFilter) ([]*domain.CommissionPayment, int64, error) {
	query := db.Conn(ctx, r.db).Model(&CommissionPaymentPO{})
	if filter.ExchangeHouseID != 0 {
		query = query.Where("exchange_house_id = ?", filter.ExchangeHouseID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", string(filter.Status))
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, translate(err, "commission payments")
	}

	var pos []CommissionPaymentPO
	if filter.Limit > 0 {
		query = query.Offset(filter.Offset).Limit(filter.Limit)
	}
	if err := query.Order("period_start DESC, id DESC").Find(&pos).Error; err != nil {
		return nil, 0, translate(err, "commission payments")
	}
	return toDomainList(pos), total, nil
}

// Update 以 from 状态作为乐观条件写回可变字段
func (r *paymentRepository) Update(ctx context.Context, p *domain.CommissionPayment, from domain.PaymentStatus) error {
	res := db.Conn(ctx, r.db).Model(&CommissionPaymentPO{}).
		Where("id = ? AND status = ?", p.ID, string(from)).
		Updates(map[string]any{
			"status":            string(p.Status),
			"total_commissions": p.TotalCommissions,
			"total_orders":      p.TotalOrders,
			"total_volume":      p.TotalVolume,
			"payment_method":    p.PaymentMethod,
			"payment_reference": p.PaymentReference,
			"payment_proof":     p.PaymentProof,
			"payment_sent_at":   p.PaymentSentAt,
			"confirmed_at":      p.ConfirmedAt,
			"confirmed_by":      p.ConfirmedBy,
			"admin_notes":       p.AdminNotes,
			"rejection_reason":  p.RejectionReason,
			"updated_at":        p.UpdatedAt,
		})
	if res.Error != nil {
		return translate(res.Error, fmt.Sprintf("payment request %d", p.ID))
	}
	if res.RowsAffected == 0 {
		return domain.NewError(domain.KindConcurrencyConflict, "payment request %d is no longer %s", p.ID, from)
	}
	return nil
}

func (r *paymentRepository) SoftDelete(ctx context.Context, p *domain.CommissionPayment, at time.Time) error {
	res := db.Conn(ctx, r.db).Model(&CommissionPaymentPO{}).
		Where("id = ? AND status = ?", p.ID, string(p.Status)).
		Updates(map[string]any{"deleted_at": at, "updated_at": at})
	if res.Error != nil {
		return translate(res.Error, fmt.Sprintf("payment request %d", p.ID))
	}
	if res.RowsAffected == 0 {
		return domain.NewError(domain.KindConcurrencyConflict, "payment request %d changed before deletion", p.ID)
	}
	deletedAt := at
	p.DeletedAt = &deletedAt
	return nil
}

func (r *paymentRepository) ListByStatuses(ctx context.Context, statuses ...domain.PaymentStatus) ([]*domain.CommissionPayment, error) {
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}
	var pos []CommissionPaymentPO
	err := db.Conn(ctx, r.db).
		Where("status IN ?", names).
		Order("exchange_house_id, id").
		Find(&pos).Error
	if err != nil {
		return nil, translate(err, "commission payments")
	}
	return toDomainList(pos), nil
}

func toDomainList(pos []CommissionPaymentPO) []*domain.CommissionPayment {
	out := make([]*domain.CommissionPayment, 0, len(pos))
	for i := range pos {
		out = append(out, pos[i].ToDomain())
	}
	return out
}
