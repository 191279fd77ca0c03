package payments

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/FCJuventus/DoPi-demo/internal/jobs"
	"github.com/FCJuventus/DoPi-demo/models"
)

func TestComputeCharge(t *testing.T) {
	policy := models.DefaultFeePolicy()

	c := computeCharge(decimal.NewFromInt(10), policy)
	assert.True(t, c.Fee.Equal(decimal.RequireFromString("0.5")))
	assert.True(t, c.Total.Equal(decimal.RequireFromString("10.5")))

	c = computeCharge(decimal.RequireFromString("0.1"), policy)
	assert.True(t, c.Fee.Equal(decimal.RequireFromString("0.01")))
	assert.True(t, c.Total.Equal(decimal.RequireFromString("0.11")))

	assert.True(t, c.matches(decimal.RequireFromString("0.110")))
	assert.False(t, c.matches(decimal.RequireFromString("0.1")))
}

func TestPayerAndVerifierAgree(t *testing.T) {
	policies := []models.FeePolicy{
		models.DefaultFeePolicy(),
		{Percent: decimal.RequireFromString("0.025"), Minimum: decimal.RequireFromString("0.05")},
		{Percent: decimal.RequireFromString("0.1"), Minimum: decimal.Zero},
		{Percent: decimal.RequireFromString("0.05"), Minimum: decimal.RequireFromString("0.015")},
	}
	budgets := []string{"0.01", "0.1", "0.3", "0.5", "1", "5", "9.99", "10", "33.33", "100.05", "1234.56", "99999.99"}

	for _, policy := range policies {
		for _, b := range budgets {
			budget := decimal.RequireFromString(b)
			payer := jobs.NewQuote(budget, policy)
			verifier := computeCharge(budget, policy)
			assert.True(t, payer.Fee.Equal(verifier.Fee), "fee for %s at %s: payer %s verifier %s", b, policy.Percent, payer.Fee, verifier.Fee)
			assert.True(t, payer.Total.Equal(verifier.Total), "total for %s at %s: payer %s verifier %s", b, policy.Percent, payer.Total, verifier.Total)
			assert.True(t, verifier.matches(payer.Total))
		}
	}
}
