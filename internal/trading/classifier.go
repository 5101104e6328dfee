package trading

import (
	"github.com/shopspring/decimal"

	"securities-trader/internal/models"
)

// Classifier decides whether an order can be funded from existing balances.
type Classifier struct {
	// CrossCurrencyFunding also counts balances held in other currencies when
	// checking fundability. When the same-currency total falls short but the
	// overall total covers the amount, the classifier returns
	// FundingNeedsRebalanceWithConversion instead of FundingNeedsTopUp.
	// Off by default to match the upstream funding rules.
	CrossCurrencyFunding bool
}

// Classify returns the funding decision for the given order terms and balance
// snapshot. Sell orders never need pre-funding. The decision is a pure
// function of its inputs.
func (c Classifier) Classify(side models.Side, required decimal.Decimal, targetCurrency string, balances []models.AccountBalance) models.FundingDecision {
	if side != models.SideBuy {
		return models.FundingSufficient
	}
	if len(balances) == 0 {
		return models.FundingNeedsTopUp
	}

	sameCurrencyTotal := decimal.Zero
	overallTotal := decimal.Zero
	for _, b := range balances {
		overallTotal = overallTotal.Add(b.Free)
		if b.Currency != targetCurrency {
			continue
		}
		// A single account that covers the amount means no consolidation is
		// needed, regardless of how the rest of the accounts look.
		if b.Free.GreaterThanOrEqual(required) {
			return models.FundingSufficient
		}
		sameCurrencyTotal = sameCurrencyTotal.Add(b.Free)
	}

	if sameCurrencyTotal.GreaterThanOrEqual(required) {
		return models.FundingNeedsRebalance
	}

	if c.CrossCurrencyFunding && overallTotal.GreaterThanOrEqual(required) {
		return models.FundingNeedsRebalanceWithConversion
	}

	return models.FundingNeedsTopUp
}
