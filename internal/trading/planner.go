package trading

import (
	"sort"

	"github.com/shopspring/decimal"

	"securities-trader/internal/models"
)

// Planner computes deterministic transfer plans that consolidate fragmented
// balances into a single target account.
type Planner struct {
	// CentralDepository is the holding-place label of the preferred target
	// account for consolidated funds.
	CentralDepository string
}

// Plan computes an ordered list of transfer steps covering requiredAmount
// whenever the source balances make that possible. Same-currency steps come
// first, cross-currency steps after, each phase drawing from the largest
// account first. Largest-first keeps the number of transfer operations
// minimal; every step is a separate remote call with its own failure surface.
// The target account's own balance is not drawn; draws stop once the amount
// is covered or the sources run dry, so the plan together with the target's
// existing funds never under-funds the destination.
//
// If the total available funds cannot cover requiredAmount the partial plan
// is returned as computed; callers are expected to have classified the
// situation as fundable before planning. If no account exists in the target
// currency there is no destination to consolidate into and the plan is empty.
func (p Planner) Plan(balances []models.AccountBalance, requiredAmount decimal.Decimal, targetCurrency string) models.TransferPlan {
	target, ok := p.selectTarget(balances, targetCurrency)
	if !ok {
		return nil
	}

	remaining := requiredAmount

	var sameCurrency, otherCurrency []models.AccountBalance
	for _, b := range balances {
		if b.AccountID == target.AccountID {
			continue
		}
		if b.Currency == targetCurrency {
			sameCurrency = append(sameCurrency, b)
		} else {
			otherCurrency = append(otherCurrency, b)
		}
	}

	plan := models.TransferPlan{}
	remaining = p.draw(&plan, sameCurrency, target, remaining, false)
	if remaining.GreaterThan(decimal.Zero) {
		p.draw(&plan, otherCurrency, target, remaining, true)
	}
	return plan
}

// selectTarget picks the consolidation destination: the target-currency
// account held at the central depository, else the first target-currency
// account by input order.
func (p Planner) selectTarget(balances []models.AccountBalance, targetCurrency string) (models.AccountBalance, bool) {
	var fallback models.AccountBalance
	found := false
	for _, b := range balances {
		if b.Currency != targetCurrency {
			continue
		}
		if b.HoldingPlace == p.CentralDepository {
			return b, true
		}
		if !found {
			fallback = b
			found = true
		}
	}
	return fallback, found
}

// draw greedily appends transfer steps from the given sources, largest free
// amount first, until the remaining shortfall is covered or the sources are
// exhausted. Returns the remaining shortfall.
func (p Planner) draw(plan *models.TransferPlan, sources []models.AccountBalance, target models.AccountBalance, remaining decimal.Decimal, conversion bool) decimal.Decimal {
	// Stable sort keeps input order among equal balances, which makes the
	// plan fully deterministic.
	sorted := make([]models.AccountBalance, len(sources))
	copy(sorted, sources)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Free.GreaterThan(sorted[j].Free)
	})

	for _, src := range sorted {
		if remaining.LessThanOrEqual(decimal.Zero) {
			break
		}
		if src.Free.LessThanOrEqual(decimal.Zero) {
			continue
		}
		amount := decimal.Min(src.Free, remaining)
		*plan = append(*plan, models.TransferStep{
			FromAccountID:    src.AccountID,
			ToAccountID:      target.AccountID,
			Currency:         src.Currency,
			Amount:           amount,
			ConversionNeeded: conversion,
			SubAccount:       src.SubAccount,
			IBAN:             src.IBAN,
		})
		remaining = remaining.Sub(amount)
	}
	return remaining
}
