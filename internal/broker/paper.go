package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"securities-trader/internal/models"
)

// PaperBroker implements Brokerage and PhoneVerifier against in-memory state.
// It is used for paper mode and for tests: balances are scripted, ids are
// synthetic, and individual operations can be programmed to fail.
type PaperBroker struct {
	mu sync.RWMutex

	balances   []models.AccountBalance
	rates      map[string]decimal.Decimal // "FROM/TO" -> rate
	commission decimal.Decimal
	acceptCode string // code accepted by VerifyCode; empty accepts anything

	orderCounter    int
	transferCounter int

	// Recorded activity, for paper-mode inspection and assertions.
	Orders        []models.OrderRequest
	PendingOrders []models.OrderRequest
	Transfers     []models.TransferStep
	SentCodes     []string

	// Programmable failures.
	FailBalances     error
	FailCommission   error
	FailOrder        error
	FailPendingOrder error
	FailSend         error
	FailTransferAt   int // fail the n-th transfer (1-based); 0 disables
}

// NewPaperBroker creates a paper broker with the given balance snapshot.
func NewPaperBroker(balances []models.AccountBalance) *PaperBroker {
	return &PaperBroker{
		balances:   balances,
		rates:      make(map[string]decimal.Decimal),
		commission: decimal.NewFromFloat(9.90),
	}
}

// SetBalances replaces the scripted balance snapshot.
func (p *PaperBroker) SetBalances(balances []models.AccountBalance) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.balances = balances
}

// SetRate scripts the exchange rate for a currency pair.
func (p *PaperBroker) SetRate(from, to string, rate decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rates[from+"/"+to] = rate
}

// SetCommission scripts the commission returned by EstimateCommission.
func (p *PaperBroker) SetCommission(c decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.commission = c
}

// SetAcceptCode scripts the only code VerifyCode will accept.
func (p *PaperBroker) SetAcceptCode(code string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.acceptCode = code
}

// FetchBalances returns the scripted balance snapshot.
func (p *PaperBroker) FetchBalances(ctx context.Context, userID string) ([]models.AccountBalance, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.FailBalances != nil {
		return nil, p.FailBalances
	}
	out := make([]models.AccountBalance, len(p.balances))
	copy(out, p.balances)
	return out, nil
}

// ExchangeRate returns the scripted rate, or 1 when the pair is unknown or the
// currencies match.
func (p *PaperBroker) ExchangeRate(ctx context.Context, from, to string, fromDate, toDate time.Time) (decimal.Decimal, error) {
	if from == to {
		return decimal.NewFromInt(1), nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if rate, ok := p.rates[from+"/"+to]; ok {
		return rate, nil
	}
	return decimal.NewFromInt(1), nil
}

// EstimateCommission returns the scripted commission.
func (p *PaperBroker) EstimateCommission(ctx context.Context, req *models.OrderRequest) (decimal.Decimal, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.FailCommission != nil {
		return decimal.Zero, p.FailCommission
	}
	return p.commission, nil
}

// SubmitOrder records the order and returns a synthetic id.
func (p *PaperBroker) SubmitOrder(ctx context.Context, req *models.OrderRequest) (*models.OrderResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.FailOrder != nil {
		return nil, p.FailOrder
	}
	p.orderCounter++
	p.Orders = append(p.Orders, *req)
	return &models.OrderResult{
		OrderID: fmt.Sprintf("PAPER-%d", p.orderCounter),
		Status:  "ACCEPTED",
	}, nil
}

// SubmitPendingOrder records the order as awaiting transfer and returns a
// synthetic pending order id.
func (p *PaperBroker) SubmitPendingOrder(ctx context.Context, req *models.OrderRequest) (*models.OrderResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.FailPendingOrder != nil {
		return nil, p.FailPendingOrder
	}
	p.orderCounter++
	p.PendingOrders = append(p.PendingOrders, *req)
	return &models.OrderResult{
		OrderID: fmt.Sprintf("PAPER-PENDING-%d", p.orderCounter),
		Status:  "AWAITING_TRANSFER",
	}, nil
}

// SubmitTransfer records the transfer step, failing at the scripted position.
func (p *PaperBroker) SubmitTransfer(ctx context.Context, step models.TransferStep, pendingOrderID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.transferCounter++
	if p.FailTransferAt > 0 && p.transferCounter == p.FailTransferAt {
		return fmt.Errorf("scripted transfer failure at step %d", p.FailTransferAt)
	}
	p.Transfers = append(p.Transfers, step)
	return nil
}

// SendCode records the phone number the code was sent to.
func (p *PaperBroker) SendCode(ctx context.Context, phone string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.FailSend != nil {
		return p.FailSend
	}
	p.SentCodes = append(p.SentCodes, phone)
	return nil
}

// VerifyCode accepts the scripted code, or any code when none is scripted.
func (p *PaperBroker) VerifyCode(ctx context.Context, phone, code string) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.acceptCode == "" {
		return true, nil
	}
	return code == p.acceptCode, nil
}
