package trading

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"securities-trader/internal/broker"
	"securities-trader/internal/logging"
	"securities-trader/internal/models"
)

// CommissionEstimator re-quotes the commission whenever the order terms
// change, coalescing rapid edits behind a quiet period. Each input change
// bumps a version counter; a quote response is applied only if its
// originating version is still current, so results arrive last-write-wins by
// input version rather than by response order.
type CommissionEstimator struct {
	broker       broker.Brokerage
	baseCurrency string
	debounce     time.Duration
	timeout      time.Duration
	logger       zerolog.Logger

	mu       sync.Mutex
	version  uint64
	timer    *time.Timer
	last     models.CommissionQuote
	hasQuote bool
	closed   bool
	onUpdate func(models.CommissionQuote)
}

// NewCommissionEstimator creates a new commission estimator. baseCurrency is
// the currency the brokerage quotes commissions in; quotes are converted to
// the order's selected currency before being applied.
func NewCommissionEstimator(b broker.Brokerage, baseCurrency string, debounce, timeout time.Duration, logger zerolog.Logger) *CommissionEstimator {
	return &CommissionEstimator{
		broker:       b,
		baseCurrency: baseCurrency,
		debounce:     debounce,
		timeout:      timeout,
		logger:       logger,
	}
}

// OnUpdate registers the callback invoked with each applied quote.
func (e *CommissionEstimator) OnUpdate(fn func(models.CommissionQuote)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onUpdate = fn
}

// Update notifies the estimator of changed order terms. After the debounce
// interval with no further changes, exactly one quote request is issued for
// the latest terms. No quote is issued while price or quantity is
// non-positive.
func (e *CommissionEstimator) Update(req models.OrderRequest) {
	if req.Price.LessThanOrEqual(decimal.Zero) || req.Quantity <= 0 {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}

	e.version++
	version := e.version
	if e.timer != nil {
		e.timer.Stop()
	}
	e.timer = time.AfterFunc(e.debounce, func() {
		e.quote(version, req)
	})
}

// quote issues the dry-run commission request for one settled input version.
func (e *CommissionEstimator) quote(version uint64, req models.OrderRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()

	amount, err := e.broker.EstimateCommission(ctx, &req)
	if err != nil {
		// Transient quote failures degrade silently; the displayed commission
		// stays at its last-known value.
		logger := logging.WithCurrency(e.logger, req.Currency)
		logger.Debug().Err(err).Msg("Commission quote failed")
		return
	}

	if req.Currency != e.baseCurrency {
		now := time.Now()
		rate, err := e.broker.ExchangeRate(ctx, e.baseCurrency, req.Currency, now.AddDate(0, 0, -7), now)
		if err == nil {
			amount = amount.Mul(rate)
		}
	}

	e.mu.Lock()
	if e.closed || version != e.version {
		// A newer input change occurred while this request was in flight.
		e.mu.Unlock()
		return
	}
	quote := models.CommissionQuote{
		Amount:   amount,
		Currency: req.Currency,
		QuotedAt: time.Now(),
	}
	e.last = quote
	e.hasQuote = true
	fn := e.onUpdate
	e.mu.Unlock()

	if fn != nil {
		fn(quote)
	}
}

// Latest returns the most recently applied quote, if any.
func (e *CommissionEstimator) Latest() (models.CommissionQuote, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last, e.hasQuote
}

// Reset discards the pending debounced request, any in-flight response and
// the last quote, keeping the estimator usable for a new order attempt.
func (e *CommissionEstimator) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.version++
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.last = models.CommissionQuote{}
	e.hasQuote = false
}

// Close cancels any pending debounced request. Responses already in flight
// are discarded. Safe to call more than once.
func (e *CommissionEstimator) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}
