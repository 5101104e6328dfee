package trading

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"securities-trader/internal/models"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		side     models.Side
		required int64
		currency string
		balances []models.AccountBalance
		cross    bool
		want     models.FundingDecision
	}{
		{
			name:     "sell orders never need pre-funding",
			side:     models.SideSell,
			required: 1_000_000,
			currency: "USD",
			balances: nil,
			want:     models.FundingSufficient,
		},
		{
			name:     "empty balances need top-up",
			side:     models.SideBuy,
			required: 1,
			currency: "USD",
			balances: []models.AccountBalance{},
			want:     models.FundingNeedsTopUp,
		},
		{
			name:     "single account covers the amount",
			side:     models.SideBuy,
			required: 600,
			currency: "USD",
			balances: []models.AccountBalance{
				bal(1, "USD", 500),
				bal(2, "USD", 700),
			},
			want: models.FundingSufficient,
		},
		{
			name:     "same-currency sum covers the amount",
			side:     models.SideBuy,
			required: 500,
			currency: "USD",
			balances: []models.AccountBalance{
				bal(1, "USD", 300),
				bal(2, "USD", 250),
			},
			want: models.FundingNeedsRebalance,
		},
		{
			name:     "cross-currency funds are not counted by default",
			side:     models.SideBuy,
			required: 500,
			currency: "USD",
			balances: []models.AccountBalance{
				bal(1, "USD", 100),
				bal(2, "EUR", 1000),
			},
			want: models.FundingNeedsTopUp,
		},
		{
			name:     "cross-currency funds count when enabled",
			side:     models.SideBuy,
			required: 500,
			currency: "USD",
			balances: []models.AccountBalance{
				bal(1, "USD", 100),
				bal(2, "EUR", 1000),
			},
			cross: true,
			want:  models.FundingNeedsRebalanceWithConversion,
		},
		{
			name:     "total shortfall needs top-up",
			side:     models.SideBuy,
			required: 500,
			currency: "USD",
			balances: []models.AccountBalance{
				bal(1, "USD", 100),
				bal(2, "USD", 100),
			},
			want: models.FundingNeedsTopUp,
		},
		{
			name:     "other currencies do not trigger single-account sufficiency",
			side:     models.SideBuy,
			required: 500,
			currency: "USD",
			balances: []models.AccountBalance{
				bal(1, "EUR", 900),
				bal(2, "USD", 500),
			},
			want: models.FundingSufficient,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Classifier{CrossCurrencyFunding: tt.cross}
			got := c.Classify(tt.side, decimal.NewFromInt(tt.required), tt.currency, tt.balances)
			assert.Equal(t, tt.want, got)
		})
	}
}

// Property: if Classify returns Sufficient for amount A, it also returns
// Sufficient for any smaller amount with the same balances.
func TestProperty_ClassifierMonotonicity(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	currencies := []string{"EUR", "USD", "GBP"}
	balancesGen := gen.SliceOf(gen.Int64Range(0, 10_000))
	amountGen := gen.Int64Range(1, 30_000)
	deltaGen := gen.Int64Range(0, 29_999)

	properties.Property("sufficient stays sufficient for smaller amounts", prop.ForAll(
		func(frees []int64, amount, delta int64) bool {
			balances := make([]models.AccountBalance, len(frees))
			for i, f := range frees {
				balances[i] = bal(int64(i+1), currencies[i%len(currencies)], f)
			}

			c := Classifier{}
			if c.Classify(models.SideBuy, decimal.NewFromInt(amount), "EUR", balances) != models.FundingSufficient {
				return true
			}

			smaller := amount - delta
			if smaller < 1 {
				smaller = 1
			}
			return c.Classify(models.SideBuy, decimal.NewFromInt(smaller), "EUR", balances) == models.FundingSufficient
		},
		balancesGen,
		amountGen,
		deltaGen,
	))

	properties.TestingRun(t)
}
