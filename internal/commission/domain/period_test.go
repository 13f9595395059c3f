package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustPeriod(t *testing.T, start, end string) Period {
	t.Helper()
	p, err := ParsePeriod(start, end)
	require.NoError(t, err)
	return p
}

func TestPeriodOverlaps(t *testing.T) {
	jan := mustPeriod(t, "2024-01-01", "2024-01-31")
	tests := []struct {
		name  string
		other Period
		want  bool
	}{
		{name: "partial overlap", other: mustPeriod(t, "2024-01-15", "2024-02-15"), want: true},
		{name: "same period", other: jan, want: true},
		{name: "touching last day", other: mustPeriod(t, "2024-01-31", "2024-02-29"), want: true},
		{name: "contained", other: mustPeriod(t, "2024-01-10", "2024-01-12"), want: true},
		{name: "next month", other: mustPeriod(t, "2024-02-01", "2024-02-29"), want: false},
		{name: "previous month", other: mustPeriod(t, "2023-12-01", "2023-12-31"), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, jan.Overlaps(tt.other))
			assert.Equal(t, tt.want, tt.other.Overlaps(jan))
		})
	}
}

func TestParsePeriodErrors(t *testing.T) {
	_, err := ParsePeriod("2024-02-01", "2024-01-01")
	assert.True(t, errors.Is(err, ErrValidation))

	_, err = ParsePeriod("01/02/2024", "2024-01-01")
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestPeriodContainsAndBounds(t *testing.T) {
	jan := mustPeriod(t, "2024-01-01", "2024-01-31")
	assert.True(t, jan.Contains(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, jan.Contains(time.Date(2024, 1, 31, 23, 59, 59, 0, time.UTC)))
	assert.False(t, jan.Contains(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)))

	_, to := jan.Bounds()
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), to)
	assert.Equal(t, "2024-01-01..2024-01-31", jan.String())
}

func TestNewPeriodTruncates(t *testing.T) {
	p, err := NewPeriod(time.Date(2024, 3, 5, 17, 4, 0, 0, time.UTC), time.Date(2024, 3, 5, 1, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, p.Start.Equal(p.End))
}

func TestPreviousMonth(t *testing.T) {
	p := PreviousMonth(time.Date(2024, 3, 1, 2, 0, 0, 0, time.UTC))
	assert.Equal(t, "2024-02-01..2024-02-29", p.String())

	p = PreviousMonth(time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, "2023-12-01..2023-12-31", p.String())
}
