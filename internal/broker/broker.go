// Package broker provides brokerage integration interfaces and implementations.
package broker

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"securities-trader/internal/models"
)

// Brokerage defines the interface for the remote brokerage collaborators the
// engine depends on. Balances are snapshots; order and transfer submissions
// are terminal calls with no automatic retry.
type Brokerage interface {
	// Accounts
	FetchBalances(ctx context.Context, userID string) ([]models.AccountBalance, error)

	// Rates. Returns 1 when from == to; implementations also fall back to 1
	// when the rate service fails.
	ExchangeRate(ctx context.Context, from, to string, fromDate, toDate time.Time) (decimal.Decimal, error)

	// Orders
	EstimateCommission(ctx context.Context, req *models.OrderRequest) (decimal.Decimal, error)
	SubmitOrder(ctx context.Context, req *models.OrderRequest) (*models.OrderResult, error)
	SubmitPendingOrder(ctx context.Context, req *models.OrderRequest) (*models.OrderResult, error)

	// Transfers. pendingOrderID links the MTO to a pending order and may be
	// empty for standalone transfers.
	SubmitTransfer(ctx context.Context, step models.TransferStep, pendingOrderID string) error
}

// PhoneVerifier defines the interface for the phone-verification collaborator.
// Code issuance and validation are fully delegated; the engine treats codes as
// opaque strings.
type PhoneVerifier interface {
	SendCode(ctx context.Context, phone string) error
	VerifyCode(ctx context.Context, phone, code string) (bool, error)
}
