package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsOfPolicyApply(t *testing.T) {
	day := time.Date(2023, 1, 3, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		policy  AsOfPolicy
		asOf    time.Time
		prev    time.Time
		want    time.Time
		assumed bool
		err     bool
	}{
		{name: "stamped before close", asOf: day.Add(20 * time.Hour), want: day.Add(20 * time.Hour)},
		{name: "stamped at close", asOf: day.Add(24 * time.Hour), err: true},
		{name: "stamped days later", asOf: day.AddDate(0, 0, 5), err: true},
		{name: "missing, first bar", want: day.Add(-24 * time.Hour), assumed: true},
		{name: "missing, lags previous bar", prev: day.AddDate(0, 0, -3), want: day.AddDate(0, 0, -3), assumed: true},
		{name: "missing, strict", policy: AsOfPolicy{Strict: true}, err: true},
		{name: "hourly period", policy: AsOfPolicy{Period: time.Hour}, asOf: day.Add(time.Hour), err: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := Bar{Time: day, SignalsAsOf: tt.asOf}
			assumed, err := tt.policy.Apply(&b, tt.prev)
			if tt.err {
				require.ErrorIs(t, err, ErrLookAhead)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.assumed, assumed)
			assert.Equal(t, tt.want, b.SignalsAsOf)
		})
	}
}

func TestCheckAsOfRejectsZeroStamp(t *testing.T) {
	b := Bar{Time: time.Date(2023, 1, 3, 0, 0, 0, 0, time.UTC)}
	assert.ErrorIs(t, b.CheckAsOf(0), ErrLookAhead)
	b.SignalsAsOf = b.Time
	assert.NoError(t, b.CheckAsOf(0))
}
