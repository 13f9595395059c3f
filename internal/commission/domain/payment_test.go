package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var january = Period{
	Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	End:   time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
}

func newPayment(t *testing.T, total string) *CommissionPayment {
	t.Helper()
	now := time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)
	p, err := NewCommissionPayment(7, january, PendingTotals{TotalAmount: dec(total), OrderCount: 3, TotalVolume: dec("3000")}, now)
	require.NoError(t, err)
	p.ID = 11
	return p
}

func TestNewCommissionPayment(t *testing.T) {
	p := newPayment(t, "12.345")
	assert.Equal(t, PaymentStatusPending, p.Status)
	assert.Equal(t, "12.35", p.TotalCommissions.StringFixed(2))
	assert.Equal(t, int64(3), p.TotalOrders)

	_, err := NewCommissionPayment(0, january, PendingTotals{}, time.Now())
	assert.True(t, errors.Is(err, ErrValidation))

	inverted := Period{Start: january.End, End: january.Start}
	_, err = NewCommissionPayment(7, inverted, PendingTotals{}, time.Now())
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestPaymentLifecycle(t *testing.T) {
	p := newPayment(t, "100")
	sent := time.Date(2024, 2, 3, 10, 0, 0, 0, time.UTC)

	require.NoError(t, p.SubmitPayment(" bank_transfer ", "REF-1", "https://proof", sent))
	assert.Equal(t, PaymentStatusPaymentInfoSent, p.Status)
	assert.Equal(t, "bank_transfer", p.PaymentMethod)
	require.NotNil(t, p.PaymentSentAt)
	assert.True(t, p.PaymentSentAt.Equal(sent))

	err := p.SubmitPayment("bank_transfer", "REF-2", "", sent)
	assert.True(t, errors.Is(err, ErrInvalidTransition), "no resubmission while awaiting review")

	require.NoError(t, p.Reject("reference not found", sent.Add(time.Hour)))
	assert.Equal(t, PaymentStatusRejected, p.Status)
	assert.Equal(t, "reference not found", p.RejectionReason)

	require.NoError(t, p.SubmitPayment("bank_transfer", "REF-2", "", sent.Add(2*time.Hour)))
	assert.Equal(t, PaymentStatusPaymentInfoSent, p.Status)
	assert.Empty(t, p.RejectionReason)

	confirmed := sent.Add(3 * time.Hour)
	require.NoError(t, p.Confirm(99, "ok", confirmed))
	assert.Equal(t, PaymentStatusPaid, p.Status)
	assert.Equal(t, uint64(99), p.ConfirmedBy)
	require.NotNil(t, p.ConfirmedAt)

	err = p.Confirm(99, "again", confirmed)
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	err = p.SubmitPayment("cash", "X", "", confirmed)
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	assert.True(t, errors.Is(p.CanDelete(), ErrInvalidTransition))
}

func TestPaymentTransitionGuards(t *testing.T) {
	now := time.Date(2024, 2, 3, 10, 0, 0, 0, time.UTC)

	p := newPayment(t, "100")
	assert.True(t, errors.Is(p.Confirm(1, "", now), ErrInvalidTransition), "confirm requires payment info")
	assert.True(t, errors.Is(p.Reject("x", now), ErrInvalidTransition), "reject requires payment info")
	assert.NoError(t, p.CanDelete())

	assert.True(t, errors.Is(p.SubmitPayment("", "REF", "", now), ErrValidation))
	assert.True(t, errors.Is(p.SubmitPayment("cash", " ", "", now), ErrValidation))
	assert.Equal(t, PaymentStatusPending, p.Status, "failed submission must not mutate")

	zero := newPayment(t, "0")
	assert.True(t, errors.Is(zero.SubmitPayment("cash", "REF", "", now), ErrValidation))

	require.NoError(t, p.SubmitPayment("cash", "REF", "", now))
	assert.True(t, errors.Is(p.Reject("  ", now), ErrValidation), "reason is mandatory")
	assert.True(t, errors.Is(p.Confirm(0, "", now), ErrValidation))
	assert.True(t, errors.Is(p.CanDelete(), ErrInvalidTransition))
}

func TestCascadePaidAt(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	sent := now.Add(-48 * time.Hour)
	confirmed := now.Add(-24 * time.Hour)

	p := newPayment(t, "10")
	assert.Equal(t, now, p.CascadePaidAt(now))
	p.ConfirmedAt = &confirmed
	assert.Equal(t, confirmed, p.CascadePaidAt(now))
	p.PaymentSentAt = &sent
	assert.Equal(t, sent, p.CascadePaidAt(now))
}

func TestPaymentHousekeepingChecks(t *testing.T) {
	now := time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC)
	p := newPayment(t, "10")
	assert.True(t, p.IsStale(6, now))
	assert.False(t, p.IsStale(0, now))
	assert.False(t, p.IsStale(12, now))

	invalid, _ := p.StructurallyInvalid()
	assert.False(t, invalid)

	p.TotalCommissions = dec("0")
	invalid, reason := p.StructurallyInvalid()
	assert.True(t, invalid)
	assert.Equal(t, "non_positive_total", reason)

	p.Period = Period{Start: january.End, End: january.Start}
	_, reason = p.StructurallyInvalid()
	assert.Equal(t, "inverted_period", reason)
}
