package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/commissionhub/internal/commission/domain"
)

func (f *fixture) pendingRequest(t *testing.T, orders int) *domain.CommissionPayment {
	t.Helper()
	for i := 0; i < orders; i++ {
		f.completeOrder(t, f.houseID, "100")
	}
	p, err := f.aggregator.GeneratePaymentRequest(context.Background(), f.houseID, jan(t))
	require.NoError(t, err)
	return p
}

func TestConfirmPaymentCascadesCommissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.pendingRequest(t, 10)
	assert.Equal(t, "20.00", p.TotalCommissions.StringFixed(2))

	sentAt := time.Date(2024, 2, 2, 9, 30, 0, 0, time.UTC)
	f.clock.Set(sentAt)
	_, err := f.lifecycle.SubmitPaymentInfo(ctx, p.ID, SubmitPaymentCommand{Method: "bank_transfer", Reference: "TRX-1"})
	require.NoError(t, err)

	f.clock.Set(sentAt.Add(48 * time.Hour))
	res, err := f.lifecycle.ConfirmPayment(ctx, p.ID, 1, "received")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPaid, res.Payment.Status)
	assert.Equal(t, int64(10), res.CommissionsPaid)

	rows := f.platformCommissions(f.houseID)
	require.Len(t, rows, 10)
	for _, c := range rows {
		assert.Equal(t, domain.CommissionStatusPaid, c.Status)
		require.NotNil(t, c.PaidAt)
		assert.True(t, c.PaidAt.Equal(sentAt), "paid_at follows payment_sent_at")
	}

	_, err = f.lifecycle.ConfirmPayment(ctx, p.ID, 1, "again")
	assert.True(t, errors.Is(err, domain.ErrInvalidTransition))
	after := f.platformCommissions(f.houseID)
	assert.Equal(t, rows, after, "second confirm leaves commissions unchanged")

	assert.Equal(t, []domain.PaymentEventType{
		domain.EventPaymentRequestCreated,
		domain.EventPaymentInfoSubmitted,
		domain.EventPaymentConfirmed,
	}, f.events.types())
}

func TestConfirmOnlyCascadesOwnPeriod(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.pendingRequest(t, 2)

	f.clock.Set(time.Date(2024, 2, 5, 0, 0, 0, 0, time.UTC))
	f.completeOrder(t, f.houseID, "100")

	_, err := f.lifecycle.SubmitPaymentInfo(ctx, p.ID, SubmitPaymentCommand{Method: "cash", Reference: "R"})
	require.NoError(t, err)
	res, err := f.lifecycle.ConfirmPayment(ctx, p.ID, 1, "")
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.CommissionsPaid)

	var pending int
	for _, c := range f.platformCommissions(f.houseID) {
		if c.Status == domain.CommissionStatusPending {
			pending++
		}
	}
	assert.Equal(t, 1, pending, "February commission stays pending")
}

func TestRejectAndResubmit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.pendingRequest(t, 1)

	_, err := f.lifecycle.RejectPayment(ctx, p.ID, "no proof")
	assert.True(t, errors.Is(err, domain.ErrInvalidTransition), "nothing to reject yet")

	_, err = f.lifecycle.SubmitPaymentInfo(ctx, p.ID, SubmitPaymentCommand{Method: "zelle", Reference: "Z-1"})
	require.NoError(t, err)

	_, err = f.lifecycle.SubmitPaymentInfo(ctx, p.ID, SubmitPaymentCommand{Method: "zelle", Reference: "Z-2"})
	assert.True(t, errors.Is(err, domain.ErrInvalidTransition))

	_, err = f.lifecycle.RejectPayment(ctx, p.ID, "")
	assert.True(t, errors.Is(err, domain.ErrValidation))

	rejected, err := f.lifecycle.RejectPayment(ctx, p.ID, "reference not found")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusRejected, rejected.Status)
	for _, c := range f.platformCommissions(f.houseID) {
		assert.Equal(t, domain.CommissionStatusPending, c.Status, "rejection never touches commissions")
	}

	resent, err := f.lifecycle.SubmitPaymentInfo(ctx, p.ID, SubmitPaymentCommand{Method: "zelle", Reference: "Z-3"})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPaymentInfoSent, resent.Status)
	assert.Equal(t, "Z-3", resent.PaymentReference)
	assert.Empty(t, resent.RejectionReason)
}

func TestDeletePaymentRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.pendingRequest(t, 1)

	require.NoError(t, f.lifecycle.DeletePaymentRequest(ctx, p.ID))
	_, err := f.lifecycle.GetPaymentRequest(ctx, p.ID)
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	// 删除后可以重新生成同一周期
	again, err := f.aggregator.GeneratePaymentRequest(ctx, f.houseID, jan(t))
	require.NoError(t, err)

	_, err = f.lifecycle.SubmitPaymentInfo(ctx, again.ID, SubmitPaymentCommand{Method: "cash", Reference: "R"})
	require.NoError(t, err)
	err = f.lifecycle.DeletePaymentRequest(ctx, again.ID)
	assert.True(t, errors.Is(err, domain.ErrInvalidTransition))
}

func TestListPaymentRequests(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, pr := range [][2]string{{"2024-01-01", "2024-01-31"}, {"2024-02-01", "2024-02-29"}, {"2024-03-01", "2024-03-31"}} {
		_, err := f.aggregator.GeneratePaymentRequest(ctx, f.houseID, period(t, pr[0], pr[1]))
		require.NoError(t, err)
	}

	rows, page, err := f.lifecycle.ListPaymentRequests(ctx, f.houseID, domain.PaymentStatusPending, 1, 2)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(3), page.Total)
	assert.Equal(t, int64(2), page.Pages)
	assert.Equal(t, "2024-03-01..2024-03-31", rows[0].Period.String())

	_, _, err = f.lifecycle.ListPaymentRequests(ctx, 0, "archived", 1, 20)
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

// flakyPayments 前 failures 次 Update 返回并发冲突
type flakyPayments struct {
	domain.PaymentRepository
	failures int
	calls    int
}

func (r *flakyPayments) Update(ctx context.Context, p *domain.CommissionPayment, from domain.PaymentStatus) error {
	r.calls++
	if r.calls <= r.failures {
		return domain.NewError(domain.KindConcurrencyConflict, "row changed")
	}
	return r.PaymentRepository.Update(ctx, p, from)
}

func TestTransitionRetriesConflictOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.pendingRequest(t, 1)

	flaky := &flakyPayments{PaymentRepository: f.repos.Payments, failures: 1}
	f.repos.Payments = flaky
	f.build()

	got, err := f.lifecycle.SubmitPaymentInfo(ctx, p.ID, SubmitPaymentCommand{Method: "cash", Reference: "R"})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPaymentInfoSent, got.Status)
	assert.Equal(t, 2, flaky.calls)

	flaky.failures, flaky.calls = 2, 0
	_, err = f.lifecycle.RejectPayment(ctx, p.ID, "wrong amount")
	assert.True(t, errors.Is(err, domain.ErrConcurrencyConflict), "surfaces after one retry")
	assert.Equal(t, 2, flaky.calls)

	stored, err := f.lifecycle.GetPaymentRequest(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPaymentInfoSent, stored.Status)
}
