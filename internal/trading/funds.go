// Package trading implements the multi-account fund-rebalancing and
// order-settlement engine.
package trading

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"securities-trader/internal/broker"
	"securities-trader/internal/models"
	"securities-trader/pkg/utils"
)

// AggregateBalances groups a raw list of per-sub-account cash records into
// per-currency groups. Grouping key is the currency code; input order is
// preserved within each group and groups appear in order of first occurrence.
// Pure and total: empty input yields an empty output.
func AggregateBalances(balances []models.AccountBalance) []models.CurrencyGroup {
	groups := make([]models.CurrencyGroup, 0, len(balances))
	index := make(map[string]int, len(balances))

	for _, b := range balances {
		i, ok := index[b.Currency]
		if !ok {
			index[b.Currency] = len(groups)
			groups = append(groups, models.CurrencyGroup{
				Currency:  b.Currency,
				TotalFree: decimal.Zero,
			})
			i = len(groups) - 1
		}
		groups[i].TotalFree = groups[i].TotalFree.Add(b.Free)
		groups[i].Accounts = append(groups[i].Accounts, b)
	}

	return groups
}

// FundManager fetches balance snapshots from the brokerage and aggregates
// them. A snapshot is fetched per order attempt and not cached beyond it.
type FundManager struct {
	broker broker.Brokerage
	logger zerolog.Logger
}

// NewFundManager creates a new fund manager.
func NewFundManager(b broker.Brokerage, logger zerolog.Logger) *FundManager {
	return &FundManager{
		broker: b,
		logger: logger,
	}
}

// Snapshot fetches the current free-balance snapshot for the user. The fetch
// is an idempotent read and is retried with backoff on transient failures.
func (f *FundManager) Snapshot(ctx context.Context, userID string) ([]models.AccountBalance, error) {
	balances, err := utils.RetryWithResult(ctx, utils.DefaultRetryConfig(), func() ([]models.AccountBalance, error) {
		return f.broker.FetchBalances(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	f.logger.Debug().Int("accounts", len(balances)).Msg("Balance snapshot fetched")
	return balances, nil
}

// Groups fetches a snapshot and returns it aggregated per currency.
func (f *FundManager) Groups(ctx context.Context, userID string) ([]models.CurrencyGroup, error) {
	balances, err := f.Snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}
	return AggregateBalances(balances), nil
}
