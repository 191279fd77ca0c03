package jobs

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/FCJuventus/DoPi-demo/models"
)

func TestNewQuote(t *testing.T) {
	policy := models.DefaultFeePolicy()
	tests := []struct {
		budget, fee, total string
	}{
		{"10", "0.5", "10.5"},
		{"0.1", "0.01", "0.11"},
		{"5", "0.25", "5.25"},
		{"0.3", "0.02", "0.32"}, // 0.015 rounds away from zero
		{"1234.56", "61.73", "1296.29"},
	}
	for _, tt := range tests {
		t.Run(tt.budget, func(t *testing.T) {
			q := NewQuote(decimal.RequireFromString(tt.budget), policy)
			assert.True(t, q.Fee.Equal(decimal.RequireFromString(tt.fee)), "fee %s", q.Fee)
			assert.True(t, q.Total.Equal(decimal.RequireFromString(tt.total)), "total %s", q.Total)
		})
	}
}

func TestNewQuoteCustomPolicy(t *testing.T) {
	policy := models.FeePolicy{Percent: decimal.RequireFromString("0.1"), Minimum: decimal.NewFromInt(1)}
	q := NewQuote(decimal.NewFromInt(5), policy)
	assert.True(t, q.Fee.Equal(decimal.NewFromInt(1)))
	assert.True(t, q.Total.Equal(decimal.NewFromInt(6)))
}
