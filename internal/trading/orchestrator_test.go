package trading

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"securities-trader/internal/broker"
	"securities-trader/internal/errors"
	"securities-trader/internal/models"
)

// recordingJournal captures journal events in order so tests can assert what
// was written without a database.
type recordingJournal struct {
	mu            sync.Mutex
	decisions     []string
	confirmations []string
	transfers     []string
	outcomes      []string
}

func (r *recordingJournal) RecordDecision(ctx context.Context, isin, decision, currency, required string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decisions = append(r.decisions, decision)
	return nil
}

func (r *recordingJournal) RecordConfirmation(ctx context.Context, phone, event string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.confirmations = append(r.confirmations, event)
	return nil
}

func (r *recordingJournal) RecordTransfer(ctx context.Context, pendingOrderID string, stepIndex int, step models.TransferStep, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transfers = append(r.transfers, fmt.Sprintf("%s:%d", status, stepIndex))
	return nil
}

func (r *recordingJournal) RecordOutcome(ctx context.Context, orderID, state, detail string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, state)
	return nil
}

func newTestOrchestrator(pb *broker.PaperBroker, journal Journal) *Orchestrator {
	return NewOrchestrator(OrchestratorConfig{
		Broker:          pb,
		Gate:            NewConfirmationGate(pb, 0),
		Classifier:      Classifier{},
		Planner:         Planner{CentralDepository: depository},
		Journal:         journal,
		Logger:          zerolog.Nop(),
		UserID:          "user-1",
		Phone:           testPhone,
		DefaultCurrency: "USD",
	})
}

func buyOrder(price, qty int64) models.OrderRequest {
	return models.OrderRequest{
		ISIN:     "US0378331005",
		Side:     models.SideBuy,
		Type:     models.OrderTypeLimit,
		Price:    decimal.NewFromInt(price),
		Quantity: qty,
		Currency: "USD",
	}
}

func TestOrchestrator_DirectFlow(t *testing.T) {
	pb := broker.NewPaperBroker([]models.AccountBalance{
		depositBal(1, "USD", 1000),
	})
	journal := &recordingJournal{}
	orch := newTestOrchestrator(pb, journal)
	ctx := context.Background()

	require.NoError(t, orch.SelectType(buyOrder(50, 10)))
	assert.Equal(t, StateTypeSelected, orch.State())

	decision, err := orch.RequestSubmission(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.FundingSufficient, decision)
	assert.Equal(t, StateConfirming, orch.State())
	assert.Equal(t, []string{testPhone}, pb.SentCodes)

	require.NoError(t, orch.Confirm(ctx, "123456"))
	assert.Equal(t, StateDone, orch.State())
	assert.Equal(t, "PAPER-1", orch.OrderID())

	// A sufficient order goes straight to the order service; no pending order
	// and no transfers.
	assert.Len(t, pb.Orders, 1)
	assert.Empty(t, pb.PendingOrders)
	assert.Empty(t, pb.Transfers)
	assert.Equal(t, []string{"code_sent", "code_verified"}, journal.confirmations)
	assert.Equal(t, []string{"DONE"}, journal.outcomes)
}

func TestOrchestrator_RebalanceFlow(t *testing.T) {
	pb := broker.NewPaperBroker([]models.AccountBalance{
		depositBal(1, "USD", 300),
		bal(2, "USD", 250),
	})
	journal := &recordingJournal{}
	orch := newTestOrchestrator(pb, journal)
	ctx := context.Background()

	require.NoError(t, orch.SelectType(buyOrder(50, 10)))

	decision, err := orch.RequestSubmission(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.FundingNeedsRebalance, decision)
	assert.Equal(t, StateTypeSelected, orch.State())
	assert.Empty(t, pb.SentCodes, "no code before rebalance consent")

	plan := orch.Plan()
	require.Len(t, plan, 1)
	assert.True(t, plan[0].Amount.Equal(decimal.NewFromInt(250)))

	require.NoError(t, orch.AcceptRebalance(ctx))
	assert.Equal(t, StateConfirming, orch.State())

	require.NoError(t, orch.Confirm(ctx, "123456"))
	assert.Equal(t, StateDone, orch.State())
	assert.Equal(t, "PAPER-PENDING-1", orch.OrderID())

	assert.Empty(t, pb.Orders)
	assert.Len(t, pb.PendingOrders, 1)
	require.Len(t, pb.Transfers, 1)
	assert.Equal(t, int64(2), pb.Transfers[0].FromAccountID)
	assert.Equal(t, []string{"executed:0"}, journal.transfers)
	assert.Equal(t, []string{"NEEDS_REBALANCE"}, journal.decisions)
}

func TestOrchestrator_TransferFailureStopsSequence(t *testing.T) {
	pb := broker.NewPaperBroker([]models.AccountBalance{
		depositBal(1, "USD", 0),
		bal(2, "USD", 200),
		bal(3, "USD", 200),
		bal(4, "USD", 200),
	})
	pb.FailTransferAt = 2
	journal := &recordingJournal{}
	orch := newTestOrchestrator(pb, journal)
	ctx := context.Background()

	require.NoError(t, orch.SelectType(buyOrder(60, 10)))
	decision, err := orch.RequestSubmission(ctx)
	require.NoError(t, err)
	require.Equal(t, models.FundingNeedsRebalance, decision)
	require.Len(t, orch.Plan(), 3)

	require.NoError(t, orch.AcceptRebalance(ctx))
	err = orch.Confirm(ctx, "123456")
	require.Error(t, err)

	var terr *errors.TransferError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, 1, terr.StepIndex)
	assert.Equal(t, 1, terr.Executed)

	// The first transfer stays executed; the remaining steps are never
	// attempted and the pending order is left for manual reconciliation.
	assert.Equal(t, StateFailed, orch.State())
	assert.Len(t, pb.Transfers, 1)
	assert.Len(t, pb.PendingOrders, 1)
	assert.Equal(t, "PAPER-PENDING-1", orch.OrderID())
	assert.Equal(t, []string{"executed:0", "failed:1"}, journal.transfers)
	assert.Equal(t, []string{"FAILED"}, journal.outcomes)

	require.NoError(t, orch.Retry())
	assert.Equal(t, StateTypeSelected, orch.State())
	assert.NoError(t, orch.Err())
}

func TestOrchestrator_TopUpKeepsState(t *testing.T) {
	pb := broker.NewPaperBroker([]models.AccountBalance{
		bal(1, "USD", 100),
	})
	orch := newTestOrchestrator(pb, nil)
	ctx := context.Background()

	require.NoError(t, orch.SelectType(buyOrder(50, 10)))
	decision, err := orch.RequestSubmission(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.FundingNeedsTopUp, decision)
	assert.Equal(t, StateTypeSelected, orch.State())
	assert.Empty(t, pb.SentCodes)
	assert.Empty(t, pb.Orders)
	assert.Empty(t, pb.PendingOrders)
}

func TestOrchestrator_CrossCurrencyWithoutDestination(t *testing.T) {
	// Funds exist only in another currency and no target-currency account is
	// available to consolidate into. The cross-currency classification alone
	// would call this fundable, but with no destination the plan is empty and
	// no pending order may be created.
	pb := broker.NewPaperBroker([]models.AccountBalance{
		bal(1, "EUR", 1000),
	})
	journal := &recordingJournal{}
	orch := NewOrchestrator(OrchestratorConfig{
		Broker:          pb,
		Gate:            NewConfirmationGate(pb, 0),
		Classifier:      Classifier{CrossCurrencyFunding: true},
		Planner:         Planner{CentralDepository: depository},
		Journal:         journal,
		Logger:          zerolog.Nop(),
		UserID:          "user-1",
		Phone:           testPhone,
		DefaultCurrency: "USD",
	})
	ctx := context.Background()

	require.NoError(t, orch.SelectType(buyOrder(50, 10)))
	decision, err := orch.RequestSubmission(ctx)
	require.NoError(t, err)

	assert.Equal(t, models.FundingNeedsTopUp, decision)
	assert.Equal(t, StateTypeSelected, orch.State())
	assert.Empty(t, orch.Plan())
	assert.Empty(t, pb.SentCodes)
	assert.Empty(t, pb.PendingOrders)
	assert.Empty(t, pb.Transfers)
	assert.Equal(t, []string{"NEEDS_TOP_UP"}, journal.decisions)
}

func TestOrchestrator_DeclineRebalance(t *testing.T) {
	pb := broker.NewPaperBroker([]models.AccountBalance{
		depositBal(1, "USD", 300),
		bal(2, "USD", 250),
	})
	orch := newTestOrchestrator(pb, nil)
	ctx := context.Background()

	require.NoError(t, orch.SelectType(buyOrder(50, 10)))
	decision, err := orch.RequestSubmission(ctx)
	require.NoError(t, err)
	require.True(t, decision.NeedsRebalance())

	orch.DeclineRebalance()
	assert.Equal(t, StateTypeSelected, orch.State())
	assert.Empty(t, orch.Plan())
	assert.True(t, errors.Is(orch.AcceptRebalance(ctx), errors.ErrInvalidTransition))
	assert.Empty(t, pb.SentCodes)
}

func TestOrchestrator_RejectedCodeRetried(t *testing.T) {
	pb := broker.NewPaperBroker([]models.AccountBalance{
		depositBal(1, "USD", 1000),
	})
	pb.SetAcceptCode("424242")
	journal := &recordingJournal{}
	orch := newTestOrchestrator(pb, journal)
	ctx := context.Background()

	require.NoError(t, orch.SelectType(buyOrder(50, 10)))
	_, err := orch.RequestSubmission(ctx)
	require.NoError(t, err)

	err = orch.Confirm(ctx, "000000")
	assert.True(t, errors.Is(err, errors.ErrCodeRejected))
	assert.Equal(t, StateConfirming, orch.State())
	assert.Empty(t, pb.Orders)

	require.NoError(t, orch.Confirm(ctx, "424242"))
	assert.Equal(t, StateDone, orch.State())
	assert.Equal(t, []string{"code_sent", "code_rejected", "code_verified"}, journal.confirmations)
}

func TestOrchestrator_CancelConfirmation(t *testing.T) {
	pb := broker.NewPaperBroker([]models.AccountBalance{
		depositBal(1, "USD", 1000),
	})
	orch := newTestOrchestrator(pb, nil)
	ctx := context.Background()

	require.NoError(t, orch.SelectType(buyOrder(50, 10)))
	_, err := orch.RequestSubmission(ctx)
	require.NoError(t, err)
	require.Equal(t, StateConfirming, orch.State())

	require.NoError(t, orch.CancelConfirmation())
	assert.Equal(t, StateTypeSelected, orch.State())

	err = orch.Confirm(ctx, "123456")
	assert.True(t, errors.Is(err, errors.ErrInvalidTransition))
	assert.Empty(t, pb.Orders)
}

func TestOrchestrator_InvalidTransitions(t *testing.T) {
	pb := broker.NewPaperBroker(nil)
	orch := newTestOrchestrator(pb, nil)
	ctx := context.Background()

	_, err := orch.RequestSubmission(ctx)
	assert.True(t, errors.Is(err, errors.ErrInvalidTransition))
	assert.True(t, errors.Is(orch.Confirm(ctx, "1"), errors.ErrInvalidTransition))
	assert.True(t, errors.Is(orch.Retry(), errors.ErrInvalidTransition))
	assert.True(t, errors.Is(orch.ResendCode(ctx), errors.ErrInvalidTransition))
	assert.True(t, errors.Is(orch.CancelConfirmation(), errors.ErrInvalidTransition))
}

func TestOrchestrator_SelectTypeValidation(t *testing.T) {
	orch := newTestOrchestrator(broker.NewPaperBroker(nil), nil)

	tests := []struct {
		name    string
		mutate  func(*models.OrderRequest)
		wantErr error
	}{
		{
			name:    "missing order type",
			mutate:  func(r *models.OrderRequest) { r.Type = "" },
			wantErr: errors.ErrNoOrderType,
		},
		{
			name:    "zero quantity",
			mutate:  func(r *models.OrderRequest) { r.Quantity = 0 },
			wantErr: errors.ErrInvalidQuantity,
		},
		{
			name:    "non-positive price",
			mutate:  func(r *models.OrderRequest) { r.Price = decimal.Zero },
			wantErr: errors.ErrInvalidPrice,
		},
		{
			name:    "expiry in the past",
			mutate:  func(r *models.OrderRequest) { r.Expiry = time.Now().AddDate(0, 0, -1) },
			wantErr: errors.ErrExpiredOrder,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := buyOrder(50, 10)
			tt.mutate(&req)
			err := orch.SelectType(req)
			assert.True(t, errors.Is(err, tt.wantErr))
			assert.Equal(t, StateIdle, orch.State())
		})
	}
}

func TestOrchestrator_DefaultCurrencyApplied(t *testing.T) {
	orch := newTestOrchestrator(broker.NewPaperBroker(nil), nil)

	req := buyOrder(50, 10)
	req.Currency = ""
	require.NoError(t, orch.SelectType(req))
	assert.Equal(t, "USD", orch.req.Currency)
}

func TestOrchestrator_AbandonKeepsEstimatorUsable(t *testing.T) {
	pb := broker.NewPaperBroker([]models.AccountBalance{
		depositBal(1, "USD", 1000),
	})
	pb.SetCommission(decimal.NewFromInt(10))
	estimator := NewCommissionEstimator(pb, "USD", time.Hour, time.Second, zerolog.Nop())
	defer estimator.Close()

	orch := NewOrchestrator(OrchestratorConfig{
		Broker:          pb,
		Gate:            NewConfirmationGate(pb, 0),
		Estimator:       estimator,
		Classifier:      Classifier{},
		Planner:         Planner{CentralDepository: depository},
		Logger:          zerolog.Nop(),
		UserID:          "user-1",
		Phone:           testPhone,
		DefaultCurrency: "USD",
	})

	require.NoError(t, orch.SelectType(buyOrder(50, 10)))
	require.NoError(t, orch.Abandon())
	assert.Equal(t, StateIdle, orch.State())
	assert.False(t, estimator.closed, "abandon must not close the estimator")

	// A fresh attempt on the same orchestrator still gets quotes.
	req := buyOrder(60, 10)
	require.NoError(t, orch.SelectType(req))
	estimator.quote(estimator.version, req)

	quote, ok := estimator.Latest()
	require.True(t, ok)
	assert.True(t, quote.Amount.Equal(decimal.NewFromInt(10)))
}

func TestOrchestrator_Abandon(t *testing.T) {
	pb := broker.NewPaperBroker([]models.AccountBalance{
		depositBal(1, "USD", 1000),
	})
	orch := newTestOrchestrator(pb, nil)
	ctx := context.Background()

	require.NoError(t, orch.SelectType(buyOrder(50, 10)))
	_, err := orch.RequestSubmission(ctx)
	require.NoError(t, err)
	require.Equal(t, StateConfirming, orch.State())

	require.NoError(t, orch.Abandon())
	assert.Equal(t, StateIdle, orch.State())
	assert.Empty(t, orch.Plan())
	assert.Zero(t, orch.cfg.Gate.RemainingCooldown())
}
