package limits

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestNextReset(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"mid day", time.Date(2026, 5, 10, 13, 45, 0, 0, time.UTC), time.Date(2026, 5, 11, 0, 0, 0, 0, time.UTC)},
		{"exact midnight", time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC), time.Date(2026, 5, 11, 0, 0, 0, 0, time.UTC)},
		{"month end", time.Date(2026, 1, 31, 23, 59, 59, 0, time.UTC), time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)},
		{"other zone", time.Date(2026, 5, 10, 23, 30, 0, 0, time.FixedZone("UTC-3", -3*3600)), time.Date(2026, 5, 12, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.want.Equal(NextReset(tt.now)))
		})
	}
}

func TestPercentage(t *testing.T) {
	assert.True(t, decimal.RequireFromString("0.5").Equal(Percentage(decimal.NewFromInt(25), decimal.NewFromInt(50))))
	assert.True(t, decimal.NewFromInt(1).Equal(Percentage(decimal.Zero, decimal.Zero)), "zero limit blocks")
	assert.True(t, decimal.NewFromInt(1).Equal(Percentage(decimal.NewFromInt(50), decimal.NewFromInt(50))))
}

func TestDue(t *testing.T) {
	reset := time.Date(2026, 5, 11, 0, 0, 0, 0, time.UTC)
	l := &DynamicLimit{ResetAt: reset}
	assert.False(t, l.Due(reset.Add(-time.Nanosecond)))
	assert.True(t, l.Due(reset))
}
