package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/commissionhub/internal/commission/domain"
	"github.com/wyfcoding/commissionhub/pkg/metrics"
)

// CalculationResult 单笔订单的佣金计算结果
type CalculationResult struct {
	OrderID uint64 `json:"order_id"`
	// 已存在佣金行时为 nil
	Calculation             *domain.Calculation `json:"calculation,omitempty"`
	ExchangeHouseCommission *domain.Commission  `json:"exchange_house_commission"`
	PlatformCommission      *domain.Commission  `json:"platform_commission"`
	Created                 bool                `json:"created"`
}

// CalculatorService 订单完成后计算并落库两条佣金
type CalculatorService struct {
	repos   Repositories
	opts    Options
	rates   domain.RateProvider
	clock   domain.Clock
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewCalculatorService(repos Repositories, opts Options, rates domain.RateProvider, clock domain.Clock, m *metrics.Metrics, logger *slog.Logger) *CalculatorService {
	return &CalculatorService{
		repos:   repos,
		opts:    opts,
		rates:   rates,
		clock:   clockOrSystem(clock),
		metrics: m,
		logger:  logger.With("service", "commission_calculator"),
	}
}

// CalculateCommission 计算订单佣金，对同一订单幂等
func (s *CalculatorService) CalculateCommission(ctx context.Context, orderID uint64) (*CalculationResult, error) {
	platformRate, err := s.rates.PlatformRate(ctx)
	if err != nil {
		return nil, fmt.Errorf("load platform rate: %w", err)
	}

	var result *CalculationResult
	// 并发计算同一订单时唯一索引冲突，重试一次即可读到已落库的结果
	err = retryOnConflict(ctx, s.opts.ConflictRetryDelay, func() error {
		result = &CalculationResult{OrderID: orderID}
		return s.calculate(ctx, orderID, platformRate, result)
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "commission calculation failed", "order_id", orderID, "error", err)
		return nil, err
	}

	if result.Created {
		s.metrics.RecordCommission(string(domain.CommissionTypeExchangeHouse), false)
		s.metrics.RecordCommission(string(domain.CommissionTypePlatform), result.PlatformCommission.HasPromo)
		s.logger.InfoContext(ctx, "commission calculated",
			"order_id", orderID,
			"exchange_house_margin", result.Calculation.ExchangeHouseMargin.StringFixed(2),
			"platform_commission", result.Calculation.PlatformCommission.StringFixed(2),
			"has_promo", result.Calculation.HasPromo)
	} else {
		s.logger.DebugContext(ctx, "commission already calculated", "order_id", orderID)
	}
	return result, nil
}

func (s *CalculatorService) calculate(ctx context.Context, orderID uint64, platformRate decimal.Decimal, result *CalculationResult) error {
	return s.repos.Tx.Transaction(ctx, func(ctx context.Context) error {
		order, err := s.repos.Orders.Get(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status != domain.OrderStatusCompleted {
			return domain.NewError(domain.KindValidation, "order %d is %s, only completed orders carry commission", orderID, order.Status)
		}

		existing, err := s.repos.Commissions.ListByOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			for _, c := range existing {
				switch c.Type {
				case domain.CommissionTypeExchangeHouse:
					result.ExchangeHouseCommission = c
				case domain.CommissionTypePlatform:
					result.PlatformCommission = c
				}
			}
			return nil
		}

		pair, err := s.repos.Pairs.Get(ctx, order.CurrencyPairID)
		if err != nil {
			return err
		}
		cfg, err := s.repos.Configs.Get(ctx, order.ExchangeHouseID, order.CurrencyPairID)
		if err != nil {
			return err
		}
		house, err := s.repos.Houses.Get(ctx, order.ExchangeHouseID)
		if err != nil {
			return err
		}

		calc, err := domain.Compute(order, pair, cfg, platformRate, house.PromoActiveAt(order.CreatedAt))
		if err != nil {
			return err
		}
		houseRow, platformRow := calc.Commissions(order, s.clock.Now())
		if err := s.repos.Commissions.SaveBatch(ctx, []*domain.Commission{houseRow, platformRow}); err != nil {
			return err
		}

		result.Calculation = calc
		result.ExchangeHouseCommission = houseRow
		result.PlatformCommission = platformRow
		result.Created = true
		return nil
	})
}
