package payments

import (
	"github.com/shopspring/decimal"

	"github.com/FCJuventus/DoPi-demo/models"
)

var (
	hundred = decimal.NewFromInt(100)
	half    = decimal.RequireFromString("0.5")
)

// expectedCharge is the verifier's own computation of what a payer owes for
// a budget. It works in whole cents and does not share code with the payer
// side, so a tampered client quote cannot leak into the check.
type expectedCharge struct {
	Budget decimal.Decimal
	Fee    decimal.Decimal
	Total  decimal.Decimal
}

func computeCharge(budget decimal.Decimal, policy models.FeePolicy) expectedCharge {
	feeCents := toCents(budget.Mul(policy.Percent))
	if minCents := toCents(policy.Minimum); feeCents.LessThan(minCents) {
		feeCents = minCents
	}
	totalCents := toCents(budget).Add(feeCents)
	return expectedCharge{
		Budget: budget,
		Fee:    feeCents.Div(hundred),
		Total:  totalCents.Div(hundred),
	}
}

// toCents scales d to cents, rounding halves away from zero.
func toCents(d decimal.Decimal) decimal.Decimal {
	scaled := d.Mul(hundred)
	if scaled.IsNegative() {
		return scaled.Neg().Add(half).Floor().Neg()
	}
	return scaled.Add(half).Floor()
}

// matches reports whether a claimed amount equals the expected total to the cent.
func (c expectedCharge) matches(amount decimal.Decimal) bool {
	return toCents(amount).Equal(toCents(c.Total))
}
