package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side represents the direction of an order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Valid reports whether the side is a known value.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// OrderType represents the execution type of an order.
type OrderType string

const (
	OrderTypeLimit  OrderType = "LIMIT"
	OrderTypeMarket OrderType = "MARKET"
)

// Valid reports whether the order type is a known value.
func (t OrderType) Valid() bool {
	return t == OrderTypeLimit || t == OrderTypeMarket
}

// OrderRequest is the immutable order intent. It is constructed once the
// order type and terms are confirmed and never mutated after submission begins.
type OrderRequest struct {
	ISIN     string
	Side     Side
	Type     OrderType
	Price    decimal.Decimal // reference price for market orders
	Quantity int64
	Currency string
	Expiry   time.Time
}

// Value returns the gross order value (price x quantity), before commission.
func (r OrderRequest) Value() decimal.Decimal {
	return r.Price.Mul(decimal.NewFromInt(r.Quantity))
}

// OrderResult is the outcome of an order submission.
type OrderResult struct {
	OrderID string
	Status  string
	Message string
}

// CommissionQuote is an estimated commission for an order, expressed in the
// order's selected currency.
type CommissionQuote struct {
	Amount   decimal.Decimal
	Currency string
	QuotedAt time.Time
}
