package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func testOrder(base, rate string) *Order {
	return &Order{
		ID:              1,
		ExchangeHouseID: 7,
		CurrencyPairID:  3,
		BaseAmount:      dec(base),
		ExchangeRate:    dec(rate),
		Status:          OrderStatusCompleted,
		CreatedAt:       time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC),
	}
}

func multiplyPair() *CurrencyPair {
	return &CurrencyPair{ID: 3, BaseCurrency: "USD", QuoteCurrency: "VES", CurrentRate: dec("38.5"), CalculationType: CalculationMultiply}
}

func percentageConfig(pct string) *PairConfig {
	return &PairConfig{ExchangeHouseID: 7, CurrencyPairID: 3, CommissionModel: ModelPercentage, CommissionPercent: decPtr(pct), IsActive: true}
}

func TestComputePercentageScenario(t *testing.T) {
	calc, err := Compute(testOrder("1000", "38.5"), multiplyPair(), percentageConfig("5"), dec("2"), false)
	require.NoError(t, err)

	assert.Equal(t, "50.00", calc.ExchangeHouseMargin.StringFixed(2))
	assert.Equal(t, "38500.00", calc.QuoteAmount.StringFixed(2))
	assert.Equal(t, "20.00", calc.PlatformCommission.StringFixed(2))
	assert.Equal(t, "5.000000", calc.MarginPercent.StringFixed(6))
	assert.False(t, calc.HasPromo)
}

func TestQuoteAmount(t *testing.T) {
	tests := []struct {
		name     string
		base     string
		rate     string
		calcType CalculationType
		want     string
		kind     ErrorKind
	}{
		{name: "multiply", base: "1000", rate: "38.5", calcType: CalculationMultiply, want: "38500"},
		{name: "divide", base: "1000", rate: "4", calcType: CalculationDivide, want: "250"},
		{name: "divide keeps precision", base: "100", rate: "3", calcType: CalculationDivide, want: "33.3333333333333333"},
		{name: "zero base", base: "0", rate: "4", calcType: CalculationMultiply, kind: KindInvalidRate},
		{name: "negative rate", base: "10", rate: "-1", calcType: CalculationDivide, kind: KindInvalidRate},
		{name: "unknown type", base: "10", rate: "1", calcType: "pow", kind: KindInvalidPricingConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := QuoteAmount(dec(tt.base), dec(tt.rate), tt.calcType)
			if tt.kind != "" {
				require.Error(t, err)
				assert.Equal(t, tt.kind, KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.True(t, got.Equal(dec(tt.want)), "got %s want %s", got, tt.want)
		})
	}
}

func TestComputeSpreadAndMixed(t *testing.T) {
	spread := &PairConfig{CommissionModel: ModelSpread, BuyRate: decPtr("38"), SellRate: decPtr("38.5"), IsActive: true}
	calc, err := Compute(testOrder("1000", "38.5"), multiplyPair(), spread, decimal.Zero, false)
	require.NoError(t, err)
	// 0.5 * (1000 / 38) = 13.1578...
	assert.Equal(t, "13.16", calc.ExchangeHouseMargin.StringFixed(2))

	mixed := &PairConfig{CommissionModel: ModelMixed, BuyRate: decPtr("38"), SellRate: decPtr("38.5"), CommissionPercent: decPtr("5"), IsActive: true}
	calc, err = Compute(testOrder("1000", "38.5"), multiplyPair(), mixed, decimal.Zero, false)
	require.NoError(t, err)
	assert.Equal(t, "63.16", calc.ExchangeHouseMargin.StringFixed(2))
}

func TestComputeSpreadFallsBackToOrderRate(t *testing.T) {
	cfg := &PairConfig{CommissionModel: ModelSpread, BuyRate: decPtr("38"), IsActive: true}
	calc, err := Compute(testOrder("380", "39"), multiplyPair(), cfg, decimal.Zero, false)
	require.NoError(t, err)
	// (39 - 38) * (380 / 38) = 10
	assert.Equal(t, "10.00", calc.ExchangeHouseMargin.StringFixed(2))
}

func TestComputeUsesPairRateWhenOrderRateMissing(t *testing.T) {
	calc, err := Compute(testOrder("10", "0"), multiplyPair(), percentageConfig("1"), decimal.Zero, false)
	require.NoError(t, err)
	assert.Equal(t, "385.00", calc.QuoteAmount.StringFixed(2))
	assert.Equal(t, "38.500000", calc.Rate.StringFixed(6))
}

func TestComputePromoKeepsPlatformRow(t *testing.T) {
	order := testOrder("1000", "38.5")
	calc, err := Compute(order, multiplyPair(), percentageConfig("5"), dec("2"), true)
	require.NoError(t, err)
	assert.True(t, calc.PlatformCommission.IsZero())
	assert.True(t, calc.HasPromo)
	assert.Equal(t, "50.00", calc.ExchangeHouseMargin.StringFixed(2))

	house, platform := calc.Commissions(order, order.CreatedAt)
	require.NotNil(t, platform)
	assert.Equal(t, CommissionTypePlatform, platform.Type)
	assert.True(t, platform.Amount.IsZero())
	assert.True(t, platform.HasPromo)
	assert.Equal(t, CommissionStatusPending, platform.Status)
	assert.Equal(t, CommissionTypeExchangeHouse, house.Type)
	assert.False(t, house.HasPromo)
}

func TestCommissionsAccrueAtOrderTime(t *testing.T) {
	order := testOrder("1000", "38.5")
	calc, err := Compute(order, multiplyPair(), percentageConfig("5"), dec("2"), false)
	require.NoError(t, err)

	later := time.Date(2024, 2, 3, 8, 0, 0, 0, time.UTC)
	house, platform := calc.Commissions(order, later)
	assert.True(t, house.CreatedAt.Equal(order.CreatedAt))
	assert.True(t, platform.CreatedAt.Equal(order.CreatedAt))

	undated := *order
	undated.CreatedAt = time.Time{}
	_, platform = calc.Commissions(&undated, later)
	assert.True(t, platform.CreatedAt.Equal(later))
}

func TestComputeErrors(t *testing.T) {
	tests := []struct {
		name  string
		order *Order
		cfg   *PairConfig
		rate  string
		want  error
	}{
		{name: "zero base", order: testOrder("0", "38.5"), cfg: percentageConfig("5"), rate: "1", want: ErrInvalidRate},
		{name: "negative platform rate", order: testOrder("10", "38.5"), cfg: percentageConfig("5"), rate: "-1", want: ErrInvalidRate},
		{name: "percentage without percent", order: testOrder("10", "38.5"), cfg: &PairConfig{CommissionModel: ModelPercentage, IsActive: true}, rate: "1", want: ErrInvalidPricingConfig},
		{name: "spread without buy rate", order: testOrder("10", "38.5"), cfg: &PairConfig{CommissionModel: ModelSpread, IsActive: true}, rate: "1", want: ErrInvalidPricingConfig},
		{name: "mixed without percent", order: testOrder("10", "38.5"), cfg: &PairConfig{CommissionModel: ModelMixed, BuyRate: decPtr("38"), IsActive: true}, rate: "1", want: ErrInvalidPricingConfig},
		{name: "sell below buy", order: testOrder("10", "38.5"), cfg: &PairConfig{CommissionModel: ModelSpread, BuyRate: decPtr("38"), SellRate: decPtr("37"), IsActive: true}, rate: "1", want: ErrInvalidPricingConfig},
		{name: "order rate below buy", order: testOrder("10", "37"), cfg: &PairConfig{CommissionModel: ModelSpread, BuyRate: decPtr("38"), IsActive: true}, rate: "1", want: ErrInvalidPricingConfig},
		{name: "inactive", order: testOrder("10", "38.5"), cfg: &PairConfig{CommissionModel: ModelPercentage, CommissionPercent: decPtr("1")}, rate: "1", want: ErrInvalidPricingConfig},
		{name: "below minimum", order: testOrder("10", "38.5"), cfg: &PairConfig{CommissionModel: ModelPercentage, CommissionPercent: decPtr("1"), MinAmount: dec("50"), IsActive: true}, rate: "1", want: ErrValidation},
		{name: "above maximum", order: testOrder("100", "38.5"), cfg: &PairConfig{CommissionModel: ModelPercentage, CommissionPercent: decPtr("1"), MaxAmount: dec("50"), IsActive: true}, rate: "1", want: ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compute(tt.order, multiplyPair(), tt.cfg, dec(tt.rate), false)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "unexpected error %v", err)
		})
	}
}

func TestComputeTotalMonotonicInBase(t *testing.T) {
	models := map[string]*PairConfig{
		"percentage": percentageConfig("3.75"),
		"spread":     {CommissionModel: ModelSpread, BuyRate: decPtr("38.1"), SellRate: decPtr("38.5"), IsActive: true},
		"mixed":      {CommissionModel: ModelMixed, BuyRate: decPtr("38.1"), SellRate: decPtr("38.5"), CommissionPercent: decPtr("0.35"), IsActive: true},
	}
	for name, cfg := range models {
		t.Run(name, func(t *testing.T) {
			prev := decimal.Zero
			base := dec("0.01")
			step := dec("7.33")
			for i := 0; i < 400; i++ {
				order := testOrder(base.String(), "38.5")
				calc, err := Compute(order, multiplyPair(), cfg, dec("1.25"), false)
				require.NoError(t, err)
				house, platform := calc.Commissions(order, order.CreatedAt)
				total := house.Amount.Add(platform.Amount)
				require.False(t, total.LessThan(prev), "total decreased at base %s", base)
				prev = total
				base = base.Add(step)
			}
		})
	}
}

func TestRoundMoneyHalfUp(t *testing.T) {
	assert.Equal(t, "0.13", RoundMoney(dec("0.125")).StringFixed(2))
	assert.Equal(t, "0.12", RoundMoney(dec("0.1249")).StringFixed(2))
	assert.Equal(t, "2.50", RoundMoney(dec("2.495")).StringFixed(2))
}
