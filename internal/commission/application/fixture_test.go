package application

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/commissionhub/internal/commission/domain"
	"github.com/wyfcoding/commissionhub/internal/commission/infrastructure/persistence/mysql"
	"github.com/wyfcoding/commissionhub/internal/commission/infrastructure/persistence/mysql/mysqltest"
	"github.com/wyfcoding/commissionhub/pkg/db"
)

type fixedClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fixedClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type staticRate decimal.Decimal

func (r staticRate) PlatformRate(context.Context) (decimal.Decimal, error) {
	return decimal.Decimal(r), nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.PaymentRequestEvent
}

func (p *recordingPublisher) PublishPaymentEvent(_ context.Context, e domain.PaymentRequestEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []domain.PaymentEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.PaymentEventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	store   *mysqltest.DB
	repos   Repositories
	clock   *fixedClock
	events  *recordingPublisher
	opts    Options
	houseID uint64
	pairID  uint64

	calculator  *CalculatorService
	aggregator  *AggregatorService
	lifecycle   *LifecycleService
	maintenance *ReconciliationService
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func dp(s string) *decimal.Decimal {
	v := d(s)
	return &v
}

func jan(t *testing.T) domain.Period {
	t.Helper()
	p, err := domain.ParsePeriod("2024-01-01", "2024-01-31")
	require.NoError(t, err)
	return p
}

func period(t *testing.T, start, end string) domain.Period {
	t.Helper()
	p, err := domain.ParsePeriod(start, end)
	require.NoError(t, err)
	return p
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := mysqltest.Open(t)
	f := &fixture{
		store:  store,
		clock:  &fixedClock{t: time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)},
		events: &recordingPublisher{},
		opts:   Options{AllowZeroManual: true},
		repos: Repositories{
			Orders:      mysql.NewOrderRepository(store.DB),
			Pairs:       mysql.NewCurrencyPairRepository(store.DB),
			Configs:     mysql.NewPairConfigRepository(store.DB),
			Houses:      mysql.NewExchangeHouseRepository(store.DB),
			Commissions: mysql.NewCommissionRepository(store.DB),
			Payments:    mysql.NewPaymentRepository(store.DB),
			Tx:          db.NewTxManager(store.DB),
		},
	}
	f.houseID = store.AddExchangeHouse(domain.ExchangeHouse{Name: "Casa Central", Status: domain.ExchangeHouseActive})
	f.pairID = store.AddCurrencyPair(domain.CurrencyPair{
		BaseCurrency: "USD", QuoteCurrency: "VES", Symbol: "USD/VES",
		CurrentRate: d("38.5"), CalculationType: domain.CalculationMultiply,
	})
	store.AddPairConfig(domain.PairConfig{
		ExchangeHouseID: f.houseID, CurrencyPairID: f.pairID,
		CommissionModel: domain.ModelPercentage, CommissionPercent: dp("5"), IsActive: true,
	})
	f.build()
	return f
}

func (f *fixture) build() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.calculator = NewCalculatorService(f.repos, f.opts, staticRate(d("2")), f.clock, nil, logger)
	f.aggregator = NewAggregatorService(f.repos, f.opts, f.clock, f.events, nil, logger)
	f.lifecycle = NewLifecycleService(f.repos, f.opts, f.clock, f.events, nil, logger)
	f.maintenance = NewReconciliationService(f.repos, f.clock, nil, logger)
}

// completeOrder 写入一笔已完成订单并计算佣金
func (f *fixture) completeOrder(t *testing.T, houseID uint64, base string) *CalculationResult {
	t.Helper()
	id := f.store.AddOrder(domain.Order{
		ExchangeHouseID: houseID,
		CurrencyPairID:  f.pairID,
		BaseAmount:      d(base),
		ExchangeRate:    d("38.5"),
		Status:          domain.OrderStatusCompleted,
		CreatedAt:       f.clock.Now(),
	})
	res, err := f.calculator.CalculateCommission(context.Background(), id)
	require.NoError(t, err)
	return res
}

func (f *fixture) addHouse(name string) uint64 {
	id := f.store.AddExchangeHouse(domain.ExchangeHouse{Name: name, Status: domain.ExchangeHouseActive})
	f.store.AddPairConfig(domain.PairConfig{
		ExchangeHouseID: id, CurrencyPairID: f.pairID,
		CommissionModel: domain.ModelPercentage, CommissionPercent: dp("5"), IsActive: true,
	})
	return id
}

func (f *fixture) platformCommissions(houseID uint64) []domain.Commission {
	var out []domain.Commission
	for _, c := range f.store.Commissions() {
		if c.ExchangeHouseID == houseID && c.Type == domain.CommissionTypePlatform {
			out = append(out, c)
		}
	}
	return out
}
