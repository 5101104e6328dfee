package models

import (
	"github.com/shopspring/decimal"
)

// TransferStep is one planned inter-account money movement (MTO).
// Routing fields are copied from the source AccountBalance.
type TransferStep struct {
	FromAccountID    int64
	ToAccountID      int64
	Currency         string // currency of the source account
	Amount           decimal.Decimal
	ConversionNeeded bool
	SubAccount       string
	IBAN             string
}

// TransferPlan is an ordered list of transfer steps. Same-currency steps
// always precede cross-currency steps.
type TransferPlan []TransferStep

// Total returns the sum of all step amounts.
func (p TransferPlan) Total() decimal.Decimal {
	total := decimal.Zero
	for _, step := range p {
		total = total.Add(step.Amount)
	}
	return total
}

// Covers reports whether the plan moves at least the given shortfall.
func (p TransferPlan) Covers(shortfall decimal.Decimal) bool {
	return p.Total().GreaterThanOrEqual(shortfall)
}

// HasConversion reports whether any step requires a currency conversion.
func (p TransferPlan) HasConversion() bool {
	for _, step := range p {
		if step.ConversionNeeded {
			return true
		}
	}
	return false
}
