package application

import (
	"context"
	"errors"
	"log/slog"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/commissionhub/internal/commission/domain"
	"github.com/wyfcoding/commissionhub/pkg/metrics"
)

const operationGenerate = "generate"

// errBelowMinimum 批量生成时金额不足，跳过不落库
var errBelowMinimum = errors.New("below minimum amount")

// AggregatorService 汇总 pending 平台佣金并生成付款请求
type AggregatorService struct {
	repos     Repositories
	opts      Options
	clock     domain.Clock
	publisher domain.EventPublisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func NewAggregatorService(repos Repositories, opts Options, clock domain.Clock, publisher domain.EventPublisher, m *metrics.Metrics, logger *slog.Logger) *AggregatorService {
	return &AggregatorService{
		repos:     repos,
		opts:      opts,
		clock:     clockOrSystem(clock),
		publisher: publisherOrNoop(publisher),
		metrics:   m,
		logger:    logger.With("service", "commission_aggregator"),
	}
}

// PreviewPending 只读汇总，不产生副作用
func (s *AggregatorService) PreviewPending(ctx context.Context, exchangeHouseID uint64, period domain.Period) (domain.PendingTotals, error) {
	if err := period.Validate(); err != nil {
		return domain.PendingTotals{}, err
	}
	totals, err := s.repos.Commissions.SumPending(ctx, domain.CommissionFilter{ExchangeHouseID: exchangeHouseID, Period: period})
	if err != nil {
		return domain.PendingTotals{}, err
	}
	totals.TotalAmount = domain.RoundMoney(totals.TotalAmount)
	totals.TotalVolume = domain.RoundMoney(totals.TotalVolume)
	return totals, nil
}

// GeneratePaymentRequest 管理员手动生成付款请求，0 金额是否允许由配置决定
func (s *AggregatorService) GeneratePaymentRequest(ctx context.Context, exchangeHouseID uint64, period domain.Period) (*domain.CommissionPayment, error) {
	var minAmount *decimal.Decimal
	if !s.opts.AllowZeroManual {
		// 不允许 0 金额时，要求总额为正
		floor := decimal.New(1, -domain.MoneyScale)
		minAmount = &floor
	}
	p, err := s.generate(ctx, exchangeHouseID, period, minAmount)
	if errors.Is(err, errBelowMinimum) {
		return nil, domain.NewError(domain.KindValidation, "exchange house %d has no pending commissions in %s", exchangeHouseID, period)
	}
	return p, err
}

// GenerateForPeriod 批量为周期内有 pending 佣金的交易所生成请求，
// 低于 minAmount 或为 0 的跳过，单个交易所失败不影响其余
func (s *AggregatorService) GenerateForPeriod(ctx context.Context, period domain.Period, minAmount decimal.Decimal) (*Report, error) {
	if err := period.Validate(); err != nil {
		return nil, err
	}
	if !minAmount.IsPositive() {
		minAmount = decimal.New(1, -domain.MoneyScale)
	}

	report := newReport(operationGenerate, false, s.clock.Now())
	houses, err := s.repos.Houses.ListWithPendingCommissions(ctx, period)
	if err != nil {
		return nil, err
	}

	for _, houseID := range houses {
		p, err := s.generate(ctx, houseID, period, &minAmount)
		switch {
		case err == nil:
			report.add(ReportItem{PaymentID: p.ID, ExchangeHouseID: houseID, Outcome: OutcomeFixed})
		case errors.Is(err, errBelowMinimum):
			report.add(ReportItem{ExchangeHouseID: houseID, Outcome: OutcomeSkipped, Reason: "below_minimum"})
		case errors.Is(err, domain.ErrOverlappingPeriod):
			report.add(ReportItem{ExchangeHouseID: houseID, Outcome: OutcomeSkipped, Reason: "overlapping_period"})
		default:
			s.logger.ErrorContext(ctx, "payment request generation failed", "exchange_house_id", houseID, "period", period.String(), "error", err)
			report.add(ReportItem{ExchangeHouseID: houseID, Outcome: OutcomeFailed, Reason: err.Error()})
		}
	}

	report.FinishedAt = s.clock.Now()
	s.metrics.RecordReconciliation(operationGenerate, report.Fixed, report.Skipped, report.Failed)
	s.logger.InfoContext(ctx, "batch generation finished",
		"period", period.String(), "created", report.Fixed, "skipped", report.Skipped, "failed", report.Failed)
	return report, nil
}

// generate 锁定交易所行后检查重叠并创建请求，minAmount 为 nil 时允许 0 金额
func (s *AggregatorService) generate(ctx context.Context, houseID uint64, period domain.Period, minAmount *decimal.Decimal) (*domain.CommissionPayment, error) {
	if err := period.Validate(); err != nil {
		return nil, err
	}

	var created *domain.CommissionPayment
	err := retryOnConflict(ctx, s.opts.ConflictRetryDelay, func() error {
		return s.repos.Tx.Transaction(ctx, func(ctx context.Context) error {
			if _, err := s.repos.Houses.GetForUpdate(ctx, houseID); err != nil {
				return err
			}

			existing, err := s.repos.Payments.ListByHouseForUpdate(ctx, houseID)
			if err != nil {
				return err
			}
			for _, e := range existing {
				if e.Period.Overlaps(period) {
					return domain.NewError(domain.KindOverlappingPeriod,
						"exchange house %d already has request %d (%s, %s) overlapping %s",
						houseID, e.ID, e.Status, e.Period, period)
				}
			}

			totals, err := s.repos.Commissions.SumPending(ctx, domain.CommissionFilter{ExchangeHouseID: houseID, Period: period})
			if err != nil {
				return err
			}
			if minAmount != nil && domain.RoundMoney(totals.TotalAmount).LessThan(*minAmount) {
				return errBelowMinimum
			}

			p, err := domain.NewCommissionPayment(houseID, period, totals, s.clock.Now())
			if err != nil {
				return err
			}
			if err := s.repos.Payments.Create(ctx, p); err != nil {
				return err
			}
			created = p
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordTransition("new", string(created.Status))
	s.logger.InfoContext(ctx, "payment request created",
		"payment_id", created.ID,
		"exchange_house_id", houseID,
		"period", period.String(),
		"total_commissions", created.TotalCommissions.StringFixed(2),
		"total_orders", created.TotalOrders)
	publish(ctx, s.publisher, s.logger, domain.NewPaymentRequestEvent(domain.EventPaymentRequestCreated, created, "", s.clock.Now()))
	return created, nil
}
