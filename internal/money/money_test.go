package money

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToCents(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		want int64
	}{
		{name: "whole", in: 500, want: 50000},
		{name: "two decimals", in: 19.99, want: 1999},
		{name: "binary noise", in: 0.1 + 0.2, want: 30},
		{name: "half rounds up", in: 1.005, want: 101},
		{name: "zero", in: 0, want: 0},
		{name: "max amount fits", in: MaxAmount, want: 100_000_000_000_000},
		{name: "overflow clamps high", in: 1e17, want: math.MaxInt64},
		{name: "overflow clamps low", in: -1e17, want: math.MinInt64},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ToCents(tt.in))
		})
	}
}

func TestFromCents(t *testing.T) {
	assert.Equal(t, 19.99, FromCents(1999))
	assert.Equal(t, 0.0, FromCents(0))
	assert.Equal(t, 500.0, FromCents(50000))
}

func TestFromFloatRounds(t *testing.T) {
	assert.Equal(t, "4.99", FromFloat(4.994).String())
	assert.Equal(t, "5", FromFloat(4.995).String())
}

func TestValidAmount(t *testing.T) {
	assert.True(t, ValidAmount(0))
	assert.True(t, ValidAmount(MaxAmount))
	assert.False(t, ValidAmount(-0.01))
	assert.False(t, ValidAmount(MaxAmount+1))
	assert.False(t, ValidAmount(1e17))
	assert.False(t, ValidAmount(math.NaN()))
	assert.False(t, ValidAmount(math.Inf(1)))
}

func TestRound(t *testing.T) {
	assert.Equal(t, 33.33, Round(33.333))
	assert.Equal(t, 19.99, Round(19.99))
	assert.Equal(t, 5.0, Round(4.995))
}
