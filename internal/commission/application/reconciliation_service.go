package application

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/wyfcoding/commissionhub/internal/commission/domain"
	"github.com/wyfcoding/commissionhub/pkg/metrics"
)

const (
	operationDedup  = "dedup"
	operationPurge  = "purge"
	operationRepair = "repair"
)

// dedupStatuses 参与去重的状态，paid 为终态不参与
var dedupStatuses = []domain.PaymentStatus{
	domain.PaymentStatusPending,
	domain.PaymentStatusApproved,
	domain.PaymentStatusPaymentInfoSent,
	domain.PaymentStatusRejected,
}

// PurgeOptions 清理无效 pending 请求的参数
type PurgeOptions struct {
	DryRun bool
	// 超过该月数仍为 pending 的请求视为过期，0 表示不检查
	AgeMonths int
	// 过期请求需要操作员显式确认才删除
	ConfirmStale bool
}

// ReconciliationService 幂等的维护操作，单行失败只计入报告
type ReconciliationService struct {
	repos   Repositories
	clock   domain.Clock
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewReconciliationService(repos Repositories, clock domain.Clock, m *metrics.Metrics, logger *slog.Logger) *ReconciliationService {
	return &ReconciliationService{
		repos:   repos,
		clock:   clockOrSystem(clock),
		metrics: m,
		logger:  logger.With("service", "payment_reconciliation"),
	}
}

func (s *ReconciliationService) finish(ctx context.Context, report *Report) *Report {
	report.FinishedAt = s.clock.Now()
	s.metrics.RecordReconciliation(report.Operation, report.Fixed, report.Skipped, report.Failed)
	s.logger.InfoContext(ctx, "maintenance finished",
		"operation", report.Operation,
		"dry_run", report.DryRun,
		"fixed", report.Fixed,
		"skipped", report.Skipped,
		"failed", report.Failed)
	return report
}

// DeduplicateOpenRequests 同一交易所同一周期的重复请求只保留排名最高的一条
func (s *ReconciliationService) DeduplicateOpenRequests(ctx context.Context, dryRun bool) (*Report, error) {
	report := newReport(operationDedup, dryRun, s.clock.Now())
	rows, err := s.repos.Payments.ListByStatuses(ctx, dedupStatuses...)
	if err != nil {
		return nil, err
	}

	for _, group := range domain.GroupDuplicates(rows) {
		if dryRun {
			keep, drop := domain.RankDuplicates(group)
			report.add(ReportItem{PaymentID: keep.ID, ExchangeHouseID: keep.ExchangeHouseID, Outcome: OutcomeKept})
			for _, d := range drop {
				report.add(ReportItem{PaymentID: d.ID, ExchangeHouseID: d.ExchangeHouseID, Outcome: OutcomeWouldFix, Reason: "duplicate_of_" + uitoa(keep.ID)})
			}
			continue
		}

		items, err := s.dedupGroup(ctx, domain.KeyOf(group[0]))
		if err != nil {
			s.logger.ErrorContext(ctx, "dedup group failed",
				"exchange_house_id", group[0].ExchangeHouseID, "period", group[0].Period.String(), "error", err)
			for _, p := range group {
				report.add(ReportItem{PaymentID: p.ID, ExchangeHouseID: p.ExchangeHouseID, Outcome: OutcomeFailed, Reason: err.Error()})
			}
			continue
		}
		for _, item := range items {
			report.add(item)
		}
	}
	return s.finish(ctx, report), nil
}

// dedupGroup 在一个事务内锁定该交易所的请求，重新分组排名后删除多余行
func (s *ReconciliationService) dedupGroup(ctx context.Context, key domain.DuplicateKey) ([]ReportItem, error) {
	var items []ReportItem
	err := s.repos.Tx.Transaction(ctx, func(ctx context.Context) error {
		items = items[:0]
		locked, err := s.repos.Payments.ListByHouseForUpdate(ctx, key.ExchangeHouseID)
		if err != nil {
			return err
		}
		var group []*domain.CommissionPayment
		for _, p := range locked {
			if domain.KeyOf(p) == key && isDedupStatus(p.Status) {
				group = append(group, p)
			}
		}
		if len(group) < 2 {
			return nil
		}

		keep, drop := domain.RankDuplicates(group)
		items = append(items, ReportItem{PaymentID: keep.ID, ExchangeHouseID: keep.ExchangeHouseID, Outcome: OutcomeKept})
		now := s.clock.Now()
		for _, d := range drop {
			if err := s.repos.Payments.SoftDelete(ctx, d, now); err != nil {
				return err
			}
			items = append(items, ReportItem{PaymentID: d.ID, ExchangeHouseID: d.ExchangeHouseID, Outcome: OutcomeFixed, Reason: "duplicate_of_" + uitoa(keep.ID)})
		}
		return nil
	})
	return items, err
}

func isDedupStatus(st domain.PaymentStatus) bool {
	for _, s := range dedupStatuses {
		if s == st {
			return true
		}
	}
	return false
}

// PurgeInvalidRequests 软删除金额非正、周期倒置的 pending 请求；
// 过期请求只有 ConfirmStale 时才删除
func (s *ReconciliationService) PurgeInvalidRequests(ctx context.Context, opts PurgeOptions) (*Report, error) {
	if opts.AgeMonths < 0 {
		return nil, domain.NewError(domain.KindValidation, "age threshold must not be negative")
	}
	now := s.clock.Now()
	report := newReport(operationPurge, opts.DryRun, now)
	rows, err := s.repos.Payments.ListByStatuses(ctx, domain.PaymentStatusPending)
	if err != nil {
		return nil, err
	}

	for _, p := range rows {
		invalid, reason := p.StructurallyInvalid()
		if !invalid {
			if !p.IsStale(opts.AgeMonths, now) {
				continue
			}
			reason = "stale"
			if !opts.ConfirmStale {
				report.add(ReportItem{PaymentID: p.ID, ExchangeHouseID: p.ExchangeHouseID, Outcome: OutcomeSkipped, Reason: "stale_requires_confirmation"})
				continue
			}
		}
		if opts.DryRun {
			report.add(ReportItem{PaymentID: p.ID, ExchangeHouseID: p.ExchangeHouseID, Outcome: OutcomeWouldFix, Reason: reason})
			continue
		}
		report.add(s.purgeOne(ctx, p.ID, reason, now))
	}
	return s.finish(ctx, report), nil
}

func (s *ReconciliationService) purgeOne(ctx context.Context, id uint64, reason string, now time.Time) ReportItem {
	item := ReportItem{PaymentID: id, Outcome: OutcomeFixed, Reason: reason}
	err := s.repos.Tx.Transaction(ctx, func(ctx context.Context) error {
		p, err := s.repos.Payments.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		item.ExchangeHouseID = p.ExchangeHouseID
		if p.Status != domain.PaymentStatusPending {
			item.Outcome = OutcomeSkipped
			item.Reason = "status_changed"
			return nil
		}
		return s.repos.Payments.SoftDelete(ctx, p, now)
	})
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNotFound):
		item.Outcome = OutcomeSkipped
		item.Reason = "already_deleted"
	default:
		s.logger.ErrorContext(ctx, "purge failed", "payment_id", id, "error", err)
		item.Outcome = OutcomeFailed
		item.Reason = err.Error()
	}
	return item
}

// RepairPaidCascades 为已 paid 的请求补齐未级联的平台佣金，无遗留时为空操作
func (s *ReconciliationService) RepairPaidCascades(ctx context.Context, dryRun bool) (*Report, error) {
	now := s.clock.Now()
	report := newReport(operationRepair, dryRun, now)
	rows, err := s.repos.Payments.ListByStatuses(ctx, domain.PaymentStatusPaid)
	if err != nil {
		return nil, err
	}

	for _, p := range rows {
		item := ReportItem{PaymentID: p.ID, ExchangeHouseID: p.ExchangeHouseID}
		if dryRun {
			totals, err := s.repos.Commissions.SumPending(ctx, p.CommissionFilter())
			switch {
			case err != nil:
				item.Outcome, item.Reason = OutcomeFailed, err.Error()
			case totals.OrderCount > 0:
				item.Outcome, item.Reason = OutcomeWouldFix, uitoa(uint64(totals.OrderCount))+"_pending_orders"
			default:
				item.Outcome, item.Reason = OutcomeSkipped, "nothing_pending"
			}
			report.add(item)
			continue
		}

		var n int64
		err := s.repos.Tx.Transaction(ctx, func(ctx context.Context) error {
			var err error
			n, err = s.repos.Commissions.MarkPaid(ctx, p.CommissionFilter(), p.CascadePaidAt(now))
			return err
		})
		switch {
		case err != nil:
			s.logger.ErrorContext(ctx, "repair cascade failed", "payment_id", p.ID, "error", err)
			item.Outcome, item.Reason = OutcomeFailed, err.Error()
		case n > 0:
			s.logger.WarnContext(ctx, "repaired paid cascade", "payment_id", p.ID, "rows", n)
			item.Outcome, item.Reason = OutcomeFixed, uitoa(uint64(n))+"_commissions_marked_paid"
		default:
			item.Outcome, item.Reason = OutcomeSkipped, "nothing_pending"
		}
		report.add(item)
	}
	return s.finish(ctx, report), nil
}

func uitoa(n uint64) string {
	return strconv.FormatUint(n, 10)
}
