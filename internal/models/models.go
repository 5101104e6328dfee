// Package models defines the core data types for the fund-rebalancing engine.
package models

import (
	"github.com/shopspring/decimal"
)

// AccountBalance is a snapshot of one ledger sub-account position.
// It is fetched per order attempt and never mutated.
type AccountBalance struct {
	AccountID    int64
	Currency     string
	Free         decimal.Decimal // spendable now
	Blocked      decimal.Decimal // reserved
	HoldingPlace string          // custodian label, e.g. "central depository"
	SubAccount   string
	IBAN         string
}

// CurrencyGroup aggregates the balances sharing a currency.
type CurrencyGroup struct {
	Currency  string
	TotalFree decimal.Decimal
	Accounts  []AccountBalance // input order preserved
}
