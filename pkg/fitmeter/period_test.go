package fitmeter

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUsagePeriod_String(t *testing.T) {
	assert.Equal(t, "2024-3", UsagePeriod{Year: 2024, Month: time.March}.String())
	assert.Equal(t, "2024-12", UsagePeriod{Year: 2024, Month: time.December}.String())
}

func TestParsePeriod(t *testing.T) {
	tests := []struct {
		in      string
		want    UsagePeriod
		wantErr bool
	}{
		{in: "2024-3", want: UsagePeriod{Year: 2024, Month: time.March}},
		{in: "2024-03", want: UsagePeriod{Year: 2024, Month: time.March}},
		{in: " 2025-11 ", want: UsagePeriod{Year: 2025, Month: time.November}},
		{in: "2024-13", wantErr: true},
		{in: "2024-0", wantErr: true},
		{in: "2024", wantErr: true},
		{in: "march-2024", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePeriod(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidPeriod))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPeriodOf_UsesLocation(t *testing.T) {
	// 23:30 UTC on Jan 31 is already February in Tokyo
	instant := time.Date(2024, time.January, 31, 23, 30, 0, 0, time.UTC)
	tokyo := time.FixedZone("JST", 9*60*60)

	assert.Equal(t, UsagePeriod{Year: 2024, Month: time.January}, PeriodOf(instant))
	assert.Equal(t, UsagePeriod{Year: 2024, Month: time.February}, PeriodOf(instant.In(tokyo)))
}

func TestDay(t *testing.T) {
	in := time.Date(2024, time.March, 10, 17, 45, 12, 999, time.UTC)
	assert.Equal(t, time.Date(2024, time.March, 10, 0, 0, 0, 0, time.UTC), Day(in))
	assert.True(t, Day(in).Equal(Day(Day(in))))
}

func TestAddDays(t *testing.T) {
	d := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC), addDays(d, -1))
	assert.Equal(t, time.Date(2024, time.March, 4, 0, 0, 0, 0, time.UTC), addDays(d, 3))
}
