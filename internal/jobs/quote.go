package jobs

import (
	"github.com/shopspring/decimal"

	"github.com/FCJuventus/DoPi-demo/models"
)

// Quote is what the payer is asked to send for a job budget.
type Quote struct {
	Budget decimal.Decimal `json:"budget"`
	Fee    decimal.Decimal `json:"fee"`
	Total  decimal.Decimal `json:"total"`
}

// NewQuote computes the payer-side surcharge: the percentage of the budget
// rounded to cents, never below the policy minimum rounded to cents.
func NewQuote(budget decimal.Decimal, policy models.FeePolicy) Quote {
	fee := budget.Mul(policy.Percent).Round(2)
	if floor := policy.Minimum.Round(2); fee.LessThan(floor) {
		fee = floor
	}
	return Quote{
		Budget: budget,
		Fee:    fee,
		Total:  budget.Add(fee).Round(2),
	}
}
