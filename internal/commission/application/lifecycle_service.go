package application

import (
	"context"
	"log/slog"

	"github.com/wyfcoding/commissionhub/internal/commission/domain"
	"github.com/wyfcoding/commissionhub/pkg/metrics"
	"github.com/wyfcoding/commissionhub/pkg/utils"
)

// SubmitPaymentCommand 交易所提交付款信息
type SubmitPaymentCommand struct {
	Method    string `json:"payment_method" binding:"required"`
	Reference string `json:"payment_reference" binding:"required"`
	Proof     string `json:"payment_proof"`
}

// ConfirmResult 确认结果与级联更新的佣金行数
type ConfirmResult struct {
	Payment         *domain.CommissionPayment `json:"payment"`
	CommissionsPaid int64                     `json:"commissions_paid"`
}

// LifecycleService 付款请求状态机
type LifecycleService struct {
	repos     Repositories
	opts      Options
	clock     domain.Clock
	publisher domain.EventPublisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func NewLifecycleService(repos Repositories, opts Options, clock domain.Clock, publisher domain.EventPublisher, m *metrics.Metrics, logger *slog.Logger) *LifecycleService {
	return &LifecycleService{
		repos:     repos,
		opts:      opts,
		clock:     clockOrSystem(clock),
		publisher: publisherOrNoop(publisher),
		metrics:   m,
		logger:    logger.With("service", "payment_lifecycle"),
	}
}

// transition 加锁读取、执行迁移、条件写回；after 在同一事务内执行级联。
// ConcurrencyConflict 自动重试一次。
func (s *LifecycleService) transition(
	ctx context.Context,
	id uint64,
	eventType domain.PaymentEventType,
	apply func(p *domain.CommissionPayment) error,
	after func(ctx context.Context, p *domain.CommissionPayment) error,
) (*domain.CommissionPayment, domain.PaymentStatus, error) {
	var (
		result *domain.CommissionPayment
		from   domain.PaymentStatus
	)
	err := retryOnConflict(ctx, s.opts.ConflictRetryDelay, func() error {
		return s.repos.Tx.Transaction(ctx, func(ctx context.Context) error {
			p, err := s.repos.Payments.GetForUpdate(ctx, id)
			if err != nil {
				return err
			}
			from = p.Status
			if err := apply(p); err != nil {
				return err
			}
			if err := s.repos.Payments.Update(ctx, p, from); err != nil {
				return err
			}
			if after != nil {
				if err := after(ctx, p); err != nil {
					return err
				}
			}
			result = p
			return nil
		})
	})
	if err != nil {
		s.logger.WarnContext(ctx, "payment transition failed",
			"payment_id", id, "event", eventType, "kind", domain.KindOf(err), "error", err)
		return nil, "", err
	}

	s.metrics.RecordTransition(string(from), string(result.Status))
	s.logger.InfoContext(ctx, "payment request transitioned",
		"payment_id", result.ID,
		"exchange_house_id", result.ExchangeHouseID,
		"from", from,
		"to", result.Status)
	publish(ctx, s.publisher, s.logger, domain.NewPaymentRequestEvent(eventType, result, from, s.clock.Now()))
	return result, from, nil
}

// SubmitPaymentInfo pending/rejected -> payment_info_sent
func (s *LifecycleService) SubmitPaymentInfo(ctx context.Context, id uint64, cmd SubmitPaymentCommand) (*domain.CommissionPayment, error) {
	p, _, err := s.transition(ctx, id, domain.EventPaymentInfoSubmitted, func(p *domain.CommissionPayment) error {
		return p.SubmitPayment(cmd.Method, cmd.Reference, cmd.Proof, s.clock.Now())
	}, nil)
	return p, err
}

// ConfirmPayment payment_info_sent -> paid，并在同一事务内把周期内 pending 平台佣金置为 paid
func (s *LifecycleService) ConfirmPayment(ctx context.Context, id, adminID uint64, notes string) (*ConfirmResult, error) {
	var cascaded int64
	p, _, err := s.transition(ctx, id, domain.EventPaymentConfirmed, func(p *domain.CommissionPayment) error {
		return p.Confirm(adminID, notes, s.clock.Now())
	}, func(ctx context.Context, p *domain.CommissionPayment) error {
		n, err := s.repos.Commissions.MarkPaid(ctx, p.CommissionFilter(), p.CascadePaidAt(s.clock.Now()))
		if err != nil {
			return err
		}
		cascaded = n
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "commissions marked paid", "payment_id", p.ID, "rows", cascaded)
	return &ConfirmResult{Payment: p, CommissionsPaid: cascaded}, nil
}

// RejectPayment payment_info_sent -> rejected，不触碰佣金行
func (s *LifecycleService) RejectPayment(ctx context.Context, id uint64, reason string) (*domain.CommissionPayment, error) {
	p, _, err := s.transition(ctx, id, domain.EventPaymentRejected, func(p *domain.CommissionPayment) error {
		return p.Reject(reason, s.clock.Now())
	}, nil)
	return p, err
}

// DeletePaymentRequest 软删除 pending 请求
func (s *LifecycleService) DeletePaymentRequest(ctx context.Context, id uint64) error {
	var deleted *domain.CommissionPayment
	err := retryOnConflict(ctx, s.opts.ConflictRetryDelay, func() error {
		return s.repos.Tx.Transaction(ctx, func(ctx context.Context) error {
			p, err := s.repos.Payments.GetForUpdate(ctx, id)
			if err != nil {
				return err
			}
			if err := p.CanDelete(); err != nil {
				return err
			}
			if err := s.repos.Payments.SoftDelete(ctx, p, s.clock.Now()); err != nil {
				return err
			}
			deleted = p
			return nil
		})
	})
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "payment request deleted", "payment_id", id, "exchange_house_id", deleted.ExchangeHouseID)
	publish(ctx, s.publisher, s.logger, domain.NewPaymentRequestEvent(domain.EventPaymentRequestDeleted, deleted, deleted.Status, s.clock.Now()))
	return nil
}

// GetPaymentRequest 查询单个请求
func (s *LifecycleService) GetPaymentRequest(ctx context.Context, id uint64) (*domain.CommissionPayment, error) {
	return s.repos.Payments.Get(ctx, id)
}

// ListPaymentRequests 分页查询
func (s *LifecycleService) ListPaymentRequests(ctx context.Context, exchangeHouseID uint64, status domain.PaymentStatus, page, pageSize int) ([]*domain.CommissionPayment, *utils.Pagination, error) {
	if status != "" && !status.Valid() {
		return nil, nil, domain.NewError(domain.KindValidation, "unknown status %q", status)
	}
	pg := utils.NewPagination(page, pageSize, 0)
	rows, total, err := s.repos.Payments.List(ctx, domain.PaymentFilter{
		ExchangeHouseID: exchangeHouseID,
		Status:          status,
		Offset:          pg.Offset(),
		Limit:           pg.Limit(),
	})
	if err != nil {
		return nil, nil, err
	}
	return rows, utils.NewPagination(pg.Page, pg.PageSize, total), nil
}
